package transport

import (
	"github.com/ValentinKolb/dStats/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc answers one request addressed to shardId. It is called
// concurrently and must always return a response, errors included.
type ServerHandleFunc func(shardId uint64, req []byte) (resp []byte)

// IRPCServerTransport accepts requests and hands them to the registered handler.
type IRPCServerTransport interface {
	// RegisterHandler sets the handler. It must be called before Listen.
	RegisterHandler(handler ServerHandleFunc)
	// Listen serves on config.Transport.Endpoint and blocks until Close is
	// called or the listener fails. After Close it returns nil.
	Listen(config common.ServerConfig) error
	// Close stops accepting requests and unblocks Listen.
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport sends requests to the endpoints of a ClientConfig.
type IRPCClientTransport interface {
	// Connect prepares the transport. Socket transports dial every endpoint here.
	Connect(config common.ClientConfig) error
	// Send delivers req to shardId and waits for the response, retrying as
	// configured. It is safe for concurrent use.
	Send(shardId uint64, req []byte) (resp []byte, err error)
	// Close releases all connections. Pending calls to Send fail.
	Close() error
}
