// Package server implements the RPC server of dStats. It hosts one
// statsdb.Master per configured shard and answers the requests collectors and
// query clients send to it.
//
// Key Components:
//
//   - IRPCServerAdapter: translates a common.Message into a call on a master
//     and the result back into a message.
//
//   - NewMasterServerAdapter: the adapter for the four master operations
//     (Sync, GetSchema, Get, Children). Tree values travel encoded with the
//     tree.Codec given to the server.
//
//   - NewRPCServer: creates the server over a transport and a serializer.
//
// Every shard has its own key schema and one of three backing stores:
//
//   - lstore: in memory, flushed to a snapshot file in the data dir every
//     SnapshotIntervalSecond and on Close. Without a data dir the records
//     are lost on shutdown.
//
//   - bstore: a bbolt file per shard in the data dir.
//
//   - dstore: a Dragonboat RAFT shard replicated over ClusterMembers. The
//     RAFT parameters of the config must be set.
//
// The tree records and the per host sync ledger of a master share the backing
// store under different key prefixes.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {ShardID: 1, Levels: []string{"service", "endpoint"}, Store: common.ShardStoreBolt},
//	  },
//	  DataDir:       "/var/lib/dstats",
//	  TimeoutSecond: 5,
//	  LogLevel:      "info",
//	}
//	config.Transport.Endpoint = "0.0.0.0:8080"
//
//	s := server.NewRPCServer(config, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer(), values.NewCodec())
//	defer s.Close()
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Thread Safety:
//
//	Requests are handled concurrently. Serve must be called only once.
package server
