package statsdb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dStats/lib/schema"
	"github.com/ValentinKolb/dStats/lib/store"
	"github.com/ValentinKolb/dStats/lib/store/lstore"
	"github.com/ValentinKolb/dStats/lib/tree"
	"github.com/puzpuzpuz/xsync/v3"
)

// Master owns the canonical tree of every root key. Collectors push their
// buffered changes to it with sync messages.
type Master struct {
	schema schema.KeySchema
	codec  *tree.Codec
	roots  *rootTable

	// ledger persists the last accepted sync id per host
	ledger store.IStore
	hosts  *xsync.MapOf[string, *hostEntry]

	closed atomic.Bool
}

type hostEntry struct {
	mu    sync.Mutex
	last  int64
	known bool
}

// MasterOption configures optional parts of a Master.
type MasterOption func(*Master)

// WithLedger sets the store for the per-host sync ids. Without it the ids live
// in memory and a restarted master accepts any id once per host.
func WithLedger(st store.IStore) MasterOption {
	return func(m *Master) {
		m.ledger = st
	}
}

// NewMaster creates a master over the given record store. The master takes
// ownership of the stores and closes them in Close. Call Start before use.
func NewMaster(s schema.KeySchema, codec *tree.Codec, roots store.IStore, opts ...MasterOption) (*Master, error) {
	if s.IsZero() {
		return nil, fmt.Errorf("%w: master requires a schema", schema.ErrInvalidSchema)
	}
	if codec == nil || roots == nil {
		return nil, fmt.Errorf("master requires a codec and a store")
	}
	m := &Master{
		schema: s,
		codec:  codec,
		roots:  newRootTable("master", codec, roots),
		hosts:  xsync.NewMapOf[string, *hostEntry](),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.ledger == nil {
		m.ledger = lstore.NewMemStore()
	}
	return m, nil
}

// Start loads all persisted trees and sync ids.
func (m *Master) Start() error {
	n, err := m.roots.load()
	if err != nil {
		return err
	}

	hosts, err := m.ledger.Keys()
	if err != nil {
		return fmt.Errorf("failed to list sync ledger: %w", err)
	}
	for _, host := range hosts {
		b, ok, err := m.ledger.Get(host)
		if err != nil {
			return fmt.Errorf("failed to read sync ledger of %q: %w", host, err)
		}
		if !ok || len(b) != 8 {
			continue
		}
		m.hosts.Store(host, &hostEntry{last: int64(binary.BigEndian.Uint64(b)), known: true})
	}

	log.Infof("master started with %d roots and %d known hosts, schema %s", n, len(hosts), m.schema)
	return nil
}

// Close closes the stores of the master.
func (m *Master) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	return errors.Join(m.roots.store.Close(), m.ledger.Close())
}

// Schema returns the key schema.
func (m *Master) Schema() schema.KeySchema {
	return m.schema
}

// --------------------------------------------------------------------------
// Reads and Writes
// --------------------------------------------------------------------------

// Update writes the node at path, see tree.Update. path[0] is the root key.
// The root's record is persisted afterwards.
func (m *Master) Update(path []string, mutate func(tree.Value) error, create func() tree.Value) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if err := m.schema.ValidatePath(path); err != nil {
		return err
	}

	key := path[0]
	e := m.roots.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	err := tree.Update(e.node, path[1:], mutate, create)
	reportUpdateError(m.roots, key, err)
	updatesCounter("master").Inc()
	return errors.Join(err, m.roots.persist(key, e))
}

// reportUpdateError logs aggregate failures of an update.
func reportUpdateError(t *rootTable, key string, err error) {
	var mf *tree.MergeFailure
	if errors.As(err, &mf) {
		t.reporter(key)(mf)
	}
}

// Get returns the value at path or nil.
func (m *Master) Get(path []string) (tree.Value, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if err := m.schema.ValidatePath(path); err != nil {
		return nil, err
	}
	return m.roots.get(path), nil
}

// Children returns the values of all leaves under path. An empty path
// returns the leaves of every root, a path of full schema depth returns
// nothing. The order is unspecified.
func (m *Master) Children(path []string) ([]tree.Value, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	return m.roots.children(m.schema, path)
}

// RootKeys returns all root keys in lexical order.
func (m *Master) RootKeys() []string {
	return m.roots.sortedKeys()
}

// --------------------------------------------------------------------------
// Sync
// --------------------------------------------------------------------------

// AbsorbSync merges a sync message from host.
//
// A message whose id is not greater than the last accepted id of the host is
// acknowledged with AckAlreadyApplied and ignored. Otherwise every subtree is
// merged into its root; a failing node is logged and skipped while the rest of
// the message is applied, and the id is accepted.
func (m *Master) AbsorbSync(msg *Sync, host string) (Ack, error) {
	if m.closed.Load() {
		return AckRejected, ErrClosed
	}
	if reason := m.check(msg, host); reason != "" {
		log.Warningf("rejected sync from host %q: %s", host, reason)
		absorbCounter(AckRejected).Inc()
		return AckRejected, nil
	}

	h, _ := m.hosts.LoadOrCompute(host, func() *hostEntry { return &hostEntry{} })
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.known && msg.ID <= h.last {
		log.Infof("sync %d from host %q already applied (last %d)", msg.ID, host, h.last)
		absorbCounter(AckAlreadyApplied).Inc()
		return AckAlreadyApplied, nil
	}

	keys := make([]string, 0, len(msg.Data))
	for k := range msg.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		m.absorbRoot(key, msg.Data[key])
	}

	h.last, h.known = msg.ID, true
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(msg.ID))
	if err := m.ledger.Set(host, buf[:]); err != nil {
		log.Errorf("failed to persist sync id %d of host %q: %v", msg.ID, host, err)
	}

	absorbCounter(AckApplied).Inc()
	return AckApplied, nil
}

func (m *Master) absorbRoot(key string, sub *tree.Node) {
	if sub == nil {
		return
	}
	e := m.roots.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	tree.Merge(e.node, sub, m.roots.reporter(key))
	if err := m.roots.persist(key, e); err != nil {
		log.Errorf("failed to persist root %q after sync: %v", key, err)
	}
}

// check validates a sync message and returns why it must be rejected, if so.
func (m *Master) check(msg *Sync, host string) string {
	if host == "" {
		return "empty host id"
	}
	if msg == nil {
		return "no message"
	}
	for key, sub := range msg.Data {
		if key == "" {
			return "empty root key"
		}
		if sub != nil && tree.Height(sub) > m.schema.Depth()-1 {
			return fmt.Sprintf("root %q is deeper than schema %s", key, m.schema)
		}
	}
	return ""
}

// Remote returns a RemoteStatsDB for collectors running in the same process.
// Messages are copied, so the collector keeps ownership of its trees.
func (m *Master) Remote() RemoteStatsDB {
	return localRemote{m}
}

type localRemote struct {
	m *Master
}

func (r localRemote) Update(ctx context.Context, msg *Sync, host string) (Ack, error) {
	if err := ctx.Err(); err != nil {
		return AckRejected, err
	}
	if msg != nil {
		msg = msg.Clone()
	}
	return r.m.AbsorbSync(msg, host)
}

func (r localRemote) GetSchema(ctx context.Context) (schema.KeySchema, error) {
	if err := ctx.Err(); err != nil {
		return schema.KeySchema{}, err
	}
	return r.m.Schema(), nil
}
