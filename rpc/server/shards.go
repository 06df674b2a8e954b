package server

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ValentinKolb/dStats/lib/schema"
	"github.com/ValentinKolb/dStats/lib/statsdb"
	"github.com/ValentinKolb/dStats/lib/store"
	"github.com/ValentinKolb/dStats/lib/store/bstore"
	"github.com/ValentinKolb/dStats/lib/store/dstore"
	"github.com/ValentinKolb/dStats/lib/store/lstore"
	"github.com/ValentinKolb/dStats/rpc/common"
	"github.com/lni/dragonboat/v4"
)

// Key prefixes of the two record sets a master keeps in its backing store.
const (
	rootsNamespace  = "root/"
	ledgerNamespace = "host/"
)

// serverShard is one master served by the RPC server together with the
// store backing it and the adapter that handles requests for it
type serverShard struct {
	Master  *statsdb.Master
	Adapter IRPCServerAdapter
	backing store.IStore
}

func (s serverShard) close() error {
	// the master only closes its namespaces, the backing store is closed here
	if err := s.Master.Close(); err != nil {
		return err
	}
	return s.backing.Close()
}

// openBacking opens the record store of a shard according to its store type.
func (s *RPCServer) openBacking(shard common.ServerShard, nodeHost *dragonboat.NodeHost) (store.IStore, error) {
	dir := filepath.Join(s.config.DataDir, fmt.Sprintf("shard-%d", shard.ShardID))

	switch shard.Store {
	case common.ShardStoreLocal:
		if s.config.DataDir == "" {
			Logger.Warningf("shard %d: no data dir configured, records are kept in memory only", shard.ShardID)
			return lstore.NewMemStore(), nil
		}
		interval := time.Duration(s.config.SnapshotIntervalSecond) * time.Second
		return lstore.NewLocalStore(lstore.Options{
			Path:             filepath.Join(dir, "records.snap"),
			SnapshotInterval: interval,
		})

	case common.ShardStoreBolt:
		if s.config.DataDir == "" {
			return nil, fmt.Errorf("shard %d: bstore requires a data dir", shard.ShardID)
		}
		return bstore.NewBoltStore(bstore.Options{
			Path:    filepath.Join(dir, "records.db"),
			Timeout: 5 * time.Second,
		})

	case common.ShardStoreDistributed:
		if nodeHost == nil {
			return nil, fmt.Errorf("node host is nil, cannot create distributed store")
		}
		// Start Raft for the shard
		if err := nodeHost.StartConcurrentReplica(
			s.config.ClusterMembers, false,
			dstore.CreateStateMachineFactory(),
			s.config.ToDragonboatConfig(shard.ShardID),
		); err != nil {
			return nil, fmt.Errorf("failed to start shard %d: %w", shard.ShardID, err)
		}
		timeout := time.Duration(s.config.TimeoutSecond) * time.Second
		return dstore.NewDistributedStore(nodeHost, shard.ShardID, timeout), nil

	default:
		return nil, fmt.Errorf("invalid store type %q for shard %d", shard.Store, shard.ShardID)
	}
}

// openShard creates and starts the master of one shard.
func (s *RPCServer) openShard(shard common.ServerShard, nodeHost *dragonboat.NodeHost) (serverShard, error) {
	ks, err := schema.New(shard.Levels...)
	if err != nil {
		return serverShard{}, fmt.Errorf("shard %d: %w", shard.ShardID, err)
	}

	backing, err := s.openBacking(shard, nodeHost)
	if err != nil {
		return serverShard{}, err
	}

	master, err := statsdb.NewMaster(ks, s.codec,
		store.Namespace(backing, rootsNamespace),
		statsdb.WithLedger(store.Namespace(backing, ledgerNamespace)),
	)
	if err != nil {
		backing.Close()
		return serverShard{}, err
	}
	if err := master.Start(); err != nil {
		master.Close()
		backing.Close()
		return serverShard{}, fmt.Errorf("failed to start master of shard %d: %w", shard.ShardID, err)
	}

	return serverShard{
		Master:  master,
		Adapter: NewMasterServerAdapter(s.codec),
		backing: backing,
	}, nil
}
