package base

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dStats/rpc/common"
	"github.com/ValentinKolb/dStats/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

const (
	initialBackoff = 50 * time.Millisecond
	maxRedialWait  = 5 * time.Second
)

var (
	errNoConnection = errors.New("no connection to any endpoint is up")
	errConnDown     = errors.New("connection is down")
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector dials and tunes connections for one network protocol.
type IClientConnector interface {
	// Connect dials endpoint
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the protocol name used in logs (e.g. "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol specific socket options
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

type frameResult struct {
	data []byte
	err  error
}

// pooledConn is one connection of the pool. Requests are written under
// writeMu and matched to their responses by request id. A single reader
// goroutine owns the read side and redials after failures.
type pooledConn struct {
	endpoint string
	owner    *clientTransport

	writeMu sync.Mutex
	conn    net.Conn // guarded by writeMu
	up      atomic.Bool

	pending *xsync.MapOf[uint64, chan frameResult]
	stop    chan struct{}
	done    chan struct{}
}

// clientTransport spreads requests round robin over a pool of connections
// to all endpoints.
type clientTransport struct {
	connector IClientConnector
	config    common.ClientConfig

	poolMu sync.RWMutex
	pool   []*pooledConn

	next      atomic.Uint64
	requestID atomic.Uint64
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a client transport that dials through connector.
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{connector: connector}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

// Connect succeeds if at least one connection could be dialed. The others
// keep redialing in the background.
func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}
	t.closePool()
	t.config = config

	perEndpoint := max(1, config.Transport.ConnectionsPerEndpoint)
	pool := make([]*pooledConn, 0, len(config.Transport.Endpoints)*perEndpoint)
	var firstErr error
	for _, endpoint := range config.Transport.Endpoints {
		for i := 0; i < perEndpoint; i++ {
			pc := &pooledConn{
				endpoint: endpoint,
				owner:    t,
				pending:  xsync.NewMapOf[uint64, chan frameResult](),
				stop:     make(chan struct{}),
				done:     make(chan struct{}),
			}
			if err := pc.dial(); err != nil && firstErr == nil {
				firstErr = err
			}
			pool = append(pool, pc)
		}
	}

	up := 0
	for _, pc := range pool {
		if pc.up.Load() {
			up++
		}
	}
	if up == 0 {
		for _, pc := range pool {
			close(pc.stop)
			close(pc.done)
		}
		return fmt.Errorf("failed to connect to any endpoint: %w", firstErr)
	}

	for _, pc := range pool {
		go pc.serve()
	}
	t.poolMu.Lock()
	t.pool = pool
	t.poolMu.Unlock()

	Logger.Infof("%s transport: %d of %d connections to %d endpoints are up",
		t.connector.GetName(), up, len(pool), len(config.Transport.Endpoints))
	return nil
}

// Send tries up to RetryCount connections with exponential backoff and jitter
// between the attempts.
func (t *clientTransport) Send(shardId uint64, req []byte) ([]byte, error) {
	timeout := time.Duration(t.config.TimeoutSecond) * time.Second
	attempts := max(1, t.config.Transport.RetryCount)
	backoff := initialBackoff

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(jitter(backoff))
			backoff *= 2
		}
		pc := t.pick()
		if pc == nil {
			lastErr = errNoConnection
			continue
		}
		data, err := pc.roundTrip(shardId, req, timeout)
		if err == nil {
			return data, nil
		}
		lastErr = err
		Logger.Debugf("request to %s failed (attempt %d/%d): %v", pc.endpoint, i+1, attempts, err)
	}
	return nil, fmt.Errorf("failed to send request after %d attempts: %w", attempts, lastErr)
}

func (t *clientTransport) Close() error {
	t.closePool()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// jitter spreads d by +-10%
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.9 + 0.2*rand.Float64()))
}

// pick returns the next connection that is up, round robin. nil if none is.
func (t *clientTransport) pick() *pooledConn {
	t.poolMu.RLock()
	defer t.poolMu.RUnlock()

	n := uint64(len(t.pool))
	start := t.next.Add(1)
	for i := uint64(0); i < n; i++ {
		if pc := t.pool[(start+i)%n]; pc.up.Load() {
			return pc
		}
	}
	return nil
}

func (t *clientTransport) closePool() {
	t.poolMu.Lock()
	pool := t.pool
	t.pool = nil
	t.poolMu.Unlock()

	for _, pc := range pool {
		close(pc.stop)
		pc.writeMu.Lock()
		if pc.conn != nil {
			pc.conn.Close()
		}
		pc.writeMu.Unlock()
		<-pc.done
		pc.failPending(net.ErrClosed)
	}
}

// roundTrip writes one request frame and waits for the matching response.
func (pc *pooledConn) roundTrip(shardId uint64, req []byte, timeout time.Duration) ([]byte, error) {
	id := pc.owner.requestID.Add(1)
	ch := make(chan frameResult, 1)
	pc.pending.Store(id, ch)
	defer pc.pending.Delete(id)

	pc.writeMu.Lock()
	if pc.conn == nil || !pc.up.Load() {
		pc.writeMu.Unlock()
		return nil, errConnDown
	}
	if timeout > 0 {
		_ = pc.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	err := writeFrame(pc.conn, shardId, id, req)
	pc.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case res := <-ch:
		return res.data, res.err
	case <-expired:
		return nil, fmt.Errorf("no response from %s within %s", pc.endpoint, timeout)
	}
}

func (pc *pooledConn) stopped() bool {
	select {
	case <-pc.stop:
		return true
	default:
		return false
	}
}

// dial replaces the current connection with a fresh one.
func (pc *pooledConn) dial() error {
	conn, err := pc.owner.connector.Connect(pc.endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", pc.endpoint, err)
	}
	if err := pc.owner.connector.UpgradeConnection(conn, pc.owner.config); err != nil {
		conn.Close()
		return fmt.Errorf("failed to upgrade connection to %s: %w", pc.endpoint, err)
	}

	pc.writeMu.Lock()
	defer pc.writeMu.Unlock()
	if pc.stopped() {
		conn.Close()
		return net.ErrClosed
	}
	if pc.conn != nil {
		pc.conn.Close()
	}
	pc.conn = conn
	pc.up.Store(true)
	return nil
}

// failPending answers every request in flight with err.
func (pc *pooledConn) failPending(err error) {
	pc.pending.Range(func(_ uint64, ch chan frameResult) bool {
		select {
		case ch <- frameResult{err: err}:
		default:
		}
		return true
	})
}

// serve reads responses until stop is closed. A broken connection fails the
// requests in flight and is redialed with growing pauses.
func (pc *pooledConn) serve() {
	defer close(pc.done)
	for !pc.stopped() {
		if !pc.up.Load() {
			pc.redial()
			continue
		}

		pc.writeMu.Lock()
		conn := pc.conn
		pc.writeMu.Unlock()

		shardID, requestID, data, err := readFrame(conn, nil)
		if err != nil {
			if pc.stopped() {
				return
			}
			Logger.Warningf("connection to %s lost: %v", pc.endpoint, err)
			pc.up.Store(false)
			pc.failPending(fmt.Errorf("connection to %s lost: %w", pc.endpoint, err))
			continue
		}

		if ch, ok := pc.pending.Load(requestID); ok {
			select {
			case ch <- frameResult{data: data}:
			default:
			}
		} else {
			Logger.Warningf("response for unknown request %d (shard %d) from %s", requestID, shardID, pc.endpoint)
		}
	}
}

// redial blocks until the connection is up again or stop is closed.
func (pc *pooledConn) redial() {
	wait := initialBackoff
	for {
		err := pc.dial()
		if err == nil {
			Logger.Infof("reconnected to %s", pc.endpoint)
			return
		}
		Logger.Debugf("redial of %s failed: %v", pc.endpoint, err)
		select {
		case <-pc.stop:
			return
		case <-time.After(jitter(wait)):
		}
		wait = min(2*wait, maxRedialWait)
	}
}
