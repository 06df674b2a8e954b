package client

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dStats/lib/schema"
	"github.com/ValentinKolb/dStats/lib/statsdb"
	"github.com/ValentinKolb/dStats/lib/tree"
	"github.com/ValentinKolb/dStats/rpc/common"
	"github.com/ValentinKolb/dStats/rpc/serializer"
	"github.com/ValentinKolb/dStats/rpc/transport"
)

// NewRPCRemote connects to the master of a shard. The returned remote is the
// statsdb.RemoteStatsDB of a collector node and also answers queries.
// codec must know the value types stored on the master.
func NewRPCRemote(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
	codec *tree.Codec,
) (*RPCRemote, error) {
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	return &RPCRemote{
		rpcClientAdapter: rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
		codec: codec,
	}, nil
}

// RPCRemote is the client of one master shard.
type RPCRemote struct {
	rpcClientAdapter
	codec *tree.Codec
}

var _ statsdb.RemoteStatsDB = (*RPCRemote)(nil)

// --------------------------------------------------------------------------
// Interface Methods (docu see statsdb.RemoteStatsDB)
// --------------------------------------------------------------------------

func (r *RPCRemote) Update(ctx context.Context, msg *statsdb.Sync, host string) (statsdb.Ack, error) {
	if msg == nil {
		return statsdb.AckRejected, fmt.Errorf("no sync message")
	}
	data, err := r.codec.EncodeNodes(msg.Data)
	if err != nil {
		return statsdb.AckRejected, err
	}
	resp, err := r.invoke(ctx, common.NewSyncRequest(host, msg.ID, data))
	if err != nil {
		return statsdb.AckRejected, err
	}
	return statsdb.Ack(resp.Ack), nil
}

func (r *RPCRemote) GetSchema(ctx context.Context) (schema.KeySchema, error) {
	resp, err := r.invoke(ctx, common.NewGetSchemaRequest())
	if err != nil {
		return schema.KeySchema{}, err
	}
	return schema.New(resp.Path...)
}

// --------------------------------------------------------------------------
// Queries
// --------------------------------------------------------------------------

// Get returns the value at path on the master. The boolean is false if the
// node does not exist or has no value.
func (r *RPCRemote) Get(ctx context.Context, path []string) (tree.Value, bool, error) {
	resp, err := r.invoke(ctx, common.NewGetRequest(path))
	if err != nil || !resp.Ok {
		return nil, false, err
	}
	v, err := r.codec.DecodeValue(resp.Value)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Children returns the leaf values under path on the master, see statsdb.Master.Children.
func (r *RPCRemote) Children(ctx context.Context, path []string) ([]tree.Value, error) {
	resp, err := r.invoke(ctx, common.NewChildrenRequest(path))
	if err != nil {
		return nil, err
	}
	return r.codec.DecodeValues(resp.Value)
}

// Close closes the transport.
func (r *RPCRemote) Close() error {
	return r.transport.Close()
}
