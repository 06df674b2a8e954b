// Package client implements the RPC client of a dStats master shard.
//
// NewRPCRemote returns an RPCRemote, which implements statsdb.RemoteStatsDB
// and can therefore be handed to a collector node (statsdb.NewNode) as its
// connection to the master. It also exposes the read operations of the
// master (Get, Children) for query tools.
//
// Usage Example:
//
//	config := common.ClientConfig{TimeoutSecond: 5}
//	config.Transport.Endpoints = []string{"localhost:8080"}
//	config.Transport.RetryCount = 3
//
//	remote, err := client.NewRPCRemote(1, config, tcp.NewTCPClientTransport(),
//		serializer.NewBinarySerializer(), values.NewCodec())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer remote.Close()
//
//	node, _ := statsdb.NewNode(ks, values.NewCodec(), remote, buffer, outbox, statsdb.NodeConfig{})
//	if err := node.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// Every call takes a context. The call returns when the context ends, while
// the request itself is only bounded by the transport timeout.
//
// Errors reported by the master (a closed master, an invalid path) are
// returned as errors, just like transport failures. A sync message refused by
// the master is no error but an AckRejected.
//
// Thread Safety:
//
//	RPCRemote is safe for concurrent use.
package client
