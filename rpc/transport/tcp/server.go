package tcp

import (
	"fmt"
	"net"

	"github.com/ValentinKolb/dStats/rpc/common"
	"github.com/ValentinKolb/dStats/rpc/transport"
	"github.com/ValentinKolb/dStats/rpc/transport/base"
)

const (
	// sync messages carry whole subtrees, so the read buffers are larger
	// than for the unix transport
	defaultBufferSize = 512 * 1024 // 512 KB
)

type serverConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "tcp"
}

func (c *serverConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	listener, err := net.Listen("tcp", config.Transport.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", config.Transport.Endpoint, err)
	}
	return listener, nil
}

func (c *serverConnector) UpgradeConnection(conn net.Conn, config common.ServerConfig) error {
	return tune(conn, socketOptions{
		noDelay:      config.Transport.TCPNoDelay,
		keepAliveSec: config.Transport.TCPKeepAliveSec,
		lingerSec:    config.Transport.TCPLingerSec,
		readBuffer:   config.Transport.ReadBufferSize,
		writeBuffer:  config.Transport.WriteBufferSize,
	})
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPServerTransport creates a TCP server transport with the default buffer size
func NewTCPServerTransport() transport.IRPCServerTransport {
	return base.NewBaseServerTransport(&serverConnector{}, defaultBufferSize)
}
