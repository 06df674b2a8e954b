package common

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/lni/dragonboat/v4/config"
)

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (for the server util)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the ServerConfig to Dragonboat Config
func (c *ServerConfig) ToDragonboatConfig(shardId uint64) config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            shardId,
		ElectionRTT:        electionRTTFactor,
		HeartbeatRTT:       heartbeatRTTFactor,
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *ServerConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ShardStore selects the record store of a shard's master.
type ShardStore string

const (
	ShardStoreLocal       ShardStore = "lstore" // in-memory with snapshot file
	ShardStoreBolt        ShardStore = "bstore" // bbolt database file
	ShardStoreDistributed ShardStore = "dstore" // replicated raft shard
)

// ServerShard is one master hosted by the server.
type ServerShard struct {
	// ShardID is the ID of the shard
	ShardID uint64
	// Levels are the level names of the key schema
	Levels []string
	// Store is the record store of the master
	Store ShardStore
}

// String renders the shard in the format accepted by ParseServerShard.
func (s ServerShard) String() string {
	return fmt.Sprintf("%d=%s@%s", s.ShardID, strings.Join(s.Levels, ","), s.Store)
}

// ParseServerShard parses a shard definition of the form "ID=level,level@store".
// The store defaults to lstore.
func ParseServerShard(def string) (ServerShard, error) {
	idStr, rest, ok := strings.Cut(strings.TrimSpace(def), "=")
	if !ok {
		return ServerShard{}, fmt.Errorf("invalid shard %q: expected ID=levels[@store]", def)
	}
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return ServerShard{}, fmt.Errorf("invalid shard id %q: %w", idStr, err)
	}

	levelsStr, storeStr, hasStore := strings.Cut(rest, "@")
	store := ShardStoreLocal
	if hasStore {
		store = ShardStore(storeStr)
	}
	switch store {
	case ShardStoreLocal, ShardStoreBolt, ShardStoreDistributed:
	default:
		return ServerShard{}, fmt.Errorf("invalid store %q for shard %d: must be one of lstore, bstore, dstore", storeStr, id)
	}

	var levels []string
	for _, l := range strings.Split(levelsStr, ",") {
		if l = strings.TrimSpace(l); l != "" {
			levels = append(levels, l)
		}
	}
	if len(levels) == 0 {
		return ServerShard{}, fmt.Errorf("shard %d has no schema levels", id)
	}
	return ServerShard{ShardID: id, Levels: levels, Store: store}, nil
}

// ServerTransportConfig holds the socket settings of the server transport.
type ServerTransportConfig struct {
	Endpoint string

	// socket tuning (tcp only)
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
	WriteBufferSize int
	ReadBufferSize  int

	// WorkersPerConn limits concurrent requests per connection
	WorkersPerConn int
}

// ServerConfig holds all configuration parameters of the master server.
type ServerConfig struct {
	// the masters hosted by this server
	Shards []ServerShard

	// Dragonboat parameters, only used by dstore shards
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	ReplicaID          uint64
	ClusterMembers     map[uint64]string

	// DataDir holds the record files of lstore and bstore shards and the raft data
	DataDir string
	// SnapshotIntervalSecond is the flush interval of lstore shards
	SnapshotIntervalSecond int64

	// request timeout
	TimeoutSecond int64

	Transport ServerTransportConfig

	// Logging configuration
	LogLevel string
}

// HasRaftShard checks if the configuration contains any replicated shards
func (c *ServerConfig) HasRaftShard() bool {
	for _, shard := range c.Shards {
		if shard.Store == ShardStoreDistributed {
			return true
		}
	}
	return false
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Workers Per Conn", strconv.Itoa(c.Transport.WorkersPerConn))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Shards
	addSection("Shards")
	for _, shard := range c.Shards {
		addField(strconv.FormatUint(shard.ShardID, 10), fmt.Sprintf("[%s] on %s", strings.Join(shard.Levels, ","), shard.Store))
	}

	// Storage
	addSection("Storage")
	addField("Data Directory", c.DataDir)
	addField("Snapshot Interval", fmt.Sprintf("%d sec", c.SnapshotIntervalSecond))

	if c.HasRaftShard() {
		// Node Identity
		addSection("Node Identity")
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))

		// RAFT parameters
		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Check Quorum", fmt.Sprintf("%t", true))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))

		addSection("Cluster")
		sb.WriteString("  Initial Cluster Members:\n")

		// Sort keys for consistent output
		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientTransportConfig holds the connection settings of a client transport.
type ClientTransportConfig struct {
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int

	// socket tuning (tcp only)
	TCPNoDelay      bool
	TCPKeepAliveSec int
}

type ClientConfig struct {
	TimeoutSecond int
	Transport     ClientTransportConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.Transport.ConnectionsPerEndpoint)))))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
