package server

import (
	"github.com/ValentinKolb/dStats/lib/statsdb"
	"github.com/ValentinKolb/dStats/rpc/common"
)

// IRPCServerAdapter executes a decoded request against the master of its shard.
type IRPCServerAdapter interface {
	// Handle always returns a response. Failures are reported through
	// Message.Err with the MsgTError type, never by panicking.
	Handle(req *common.Message, master *statsdb.Master) (resp *common.Message)
}
