package server

import (
	"fmt"

	"github.com/ValentinKolb/dStats/lib/statsdb"
	"github.com/ValentinKolb/dStats/lib/tree"
	"github.com/ValentinKolb/dStats/rpc/common"
)

// NewMasterServerAdapter creates the adapter translating RPC messages into
// calls of a statsdb.Master. codec must know every value type the collectors send.
func NewMasterServerAdapter(codec *tree.Codec) IRPCServerAdapter {
	return &masterServerAdapterImpl{codec: codec}
}

type masterServerAdapterImpl struct {
	codec *tree.Codec
}

func (adapter *masterServerAdapterImpl) Handle(req *common.Message, master *statsdb.Master) *common.Message {
	// Check for nil master
	if master == nil {
		return common.NewErrorResponse("handler: master is nil")
	}

	switch req.MsgType {
	case common.MsgTSync:
		data, err := adapter.codec.DecodeNodes(req.Value)
		if err != nil {
			// an undecodable message is refused, never partially applied
			Logger.Warningf("rejected sync %d from host %q: %v", req.SyncID, req.Host, err)
			return common.NewSyncResponse(uint8(statsdb.AckRejected), nil)
		}
		ack, err := master.AbsorbSync(&statsdb.Sync{ID: req.SyncID, Data: data}, req.Host)
		return common.NewSyncResponse(uint8(ack), err)

	case common.MsgTGetSchema:
		return common.NewGetSchemaResponse(master.Schema().Levels(), nil)

	case common.MsgTGet:
		v, err := master.Get(req.Path)
		if err != nil || v == nil {
			return common.NewGetResponse(nil, false, err)
		}
		b, err := adapter.codec.EncodeValue(v)
		return common.NewGetResponse(b, err == nil, err)

	case common.MsgTChildren:
		vs, err := master.Children(req.Path)
		if err != nil {
			return common.NewChildrenResponse(nil, err)
		}
		b, err := adapter.codec.EncodeValues(vs)
		return common.NewChildrenResponse(b, err)

	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC MasterAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}
