package tcp

import (
	"net"
	"time"
)

// socketOptions are the per-connection settings shared by client and server.
// Zero values keep the OS defaults, except noDelay which is always applied.
type socketOptions struct {
	noDelay      bool
	keepAliveSec int
	lingerSec    int
	readBuffer   int
	writeBuffer  int
}

// tune applies opts to conn. Connections that are not TCP are left alone.
func tune(conn net.Conn, opts socketOptions) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tcpConn.SetNoDelay(opts.noDelay); err != nil {
		return err
	}
	if opts.keepAliveSec > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		if err := tcpConn.SetKeepAlivePeriod(time.Duration(opts.keepAliveSec) * time.Second); err != nil {
			return err
		}
	}
	if opts.lingerSec > 0 {
		if err := tcpConn.SetLinger(opts.lingerSec); err != nil {
			return err
		}
	}
	if opts.readBuffer > 0 {
		if err := tcpConn.SetReadBuffer(opts.readBuffer); err != nil {
			return err
		}
	}
	if opts.writeBuffer > 0 {
		if err := tcpConn.SetWriteBuffer(opts.writeBuffer); err != nil {
			return err
		}
	}
	return nil
}
