package tcp

import (
	"net"
	"testing"
	"time"

	"github.com/ValentinKolb/dStats/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeAddr(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestTCPTransport(t *testing.T) {
	addr := freeAddr(t)

	server := NewTCPServerTransport()
	server.RegisterHandler(func(shardId uint64, req []byte) []byte {
		out := make([]byte, len(req))
		for i, b := range req {
			out[len(req)-1-i] = b
		}
		return out
	})

	serverCfg := common.ServerConfig{TimeoutSecond: 5}
	serverCfg.Transport.Endpoint = addr
	serverCfg.Transport.TCPNoDelay = true
	serverCfg.Transport.TCPKeepAliveSec = 30

	done := make(chan error, 1)
	go func() { done <- server.Listen(serverCfg) }()

	clientCfg := common.ClientConfig{TimeoutSecond: 5}
	clientCfg.Transport.Endpoints = []string{addr}
	clientCfg.Transport.TCPNoDelay = true
	clientCfg.Transport.TCPKeepAliveSec = 30

	client := NewTCPClientTransport()
	require.Eventually(t, func() bool {
		return client.Connect(clientCfg) == nil
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := client.Send(3, []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, "cba", string(resp))

	big := make([]byte, 1<<20)
	big[0] = 1
	resp, err = client.Send(3, big)
	require.NoError(t, err)
	require.Len(t, resp, len(big))
	assert.Equal(t, byte(1), resp[len(resp)-1])

	require.NoError(t, client.Close())
	require.NoError(t, server.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Listen did not return after Close")
	}
}

func TestTCPCloseBeforeListen(t *testing.T) {
	server := NewTCPServerTransport()
	server.RegisterHandler(func(uint64, []byte) []byte { return nil })
	require.NoError(t, server.Close())

	cfg := common.ServerConfig{}
	cfg.Transport.Endpoint = freeAddr(t)
	assert.NoError(t, server.Listen(cfg))
}

func TestTCPClientRedials(t *testing.T) {
	addr := freeAddr(t)
	handler := func(_ uint64, req []byte) []byte { return req }

	start := func() (chan error, func() error) {
		server := NewTCPServerTransport()
		server.RegisterHandler(handler)
		cfg := common.ServerConfig{TimeoutSecond: 5}
		cfg.Transport.Endpoint = addr
		done := make(chan error, 1)
		go func() { done <- server.Listen(cfg) }()
		return done, server.Close
	}

	done, stop := start()

	clientCfg := common.ClientConfig{TimeoutSecond: 1}
	clientCfg.Transport.Endpoints = []string{addr}
	clientCfg.Transport.RetryCount = 1

	client := NewTCPClientTransport()
	require.Eventually(t, func() bool {
		return client.Connect(clientCfg) == nil
	}, 5*time.Second, 10*time.Millisecond)
	defer client.Close()

	_, err := client.Send(1, []byte("before"))
	require.NoError(t, err)

	// the server drops the connection, the client must notice and redial
	require.NoError(t, stop())
	<-done
	done, stop = start()
	defer func() {
		_ = stop()
		<-done
	}()

	require.Eventually(t, func() bool {
		resp, err := client.Send(1, []byte("after"))
		return err == nil && string(resp) == "after"
	}, 10*time.Second, 50*time.Millisecond)
}
