package statsdb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dStats/lib/schema"
	"github.com/ValentinKolb/dStats/lib/store"
	"github.com/ValentinKolb/dStats/lib/tree"
	"github.com/google/uuid"
)

const (
	DefaultSyncTimeout = 30 * time.Second

	outboxPrefix  = "sync:"
	metaHostKey   = "meta:host"
	metaLastIDKey = "meta:last-id"
)

// SyncStatus is the outcome of Node.Sync.
type SyncStatus uint8

const (
	SyncEmpty          SyncStatus = iota // Nothing was buffered, no message was sent.
	SyncApplied                          // The master merged the message.
	SyncAlreadyApplied                   // The master had already accepted the message id.
	SyncFailed                           // Delivery failed, the data stays buffered.
	SyncBusy                             // Another Sync call is running.
)

func (s SyncStatus) String() string {
	switch s {
	case SyncEmpty:
		return "empty"
	case SyncApplied:
		return "applied"
	case SyncAlreadyApplied:
		return "already_applied"
	case SyncFailed:
		return "failed"
	case SyncBusy:
		return "busy"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// NodeConfig configures a collector node.
type NodeConfig struct {
	// Host identifies the collector at the master. If empty, a random id is
	// generated once and kept in the outbox store.
	Host string
	// SyncTimeout bounds a single delivery to the master.
	SyncTimeout time.Duration
	// Tokens issues sync ids. Defaults to ClockTokens continuing after the
	// last id this node used.
	Tokens TokenSource
}

// pendingSync is a message that was drained and written to the outbox but
// whose delivery was never confirmed (the process stopped in between).
type pendingSync struct {
	key string
	msg *Sync
}

// uncleanDrain is a drained message whose buffer records could not all be
// deleted. Its outbox record is kept until they are gone, so a restart can
// still tell the stale records apart from newer data.
type uncleanDrain struct {
	id        int64
	keys      []string
	delivered bool
}

// Node is a collector. It buffers updates in a local tree, persisted per root
// key, and pushes them to the master with Sync.
type Node struct {
	schema schema.KeySchema
	codec  *tree.Codec
	remote RemoteStatsDB
	cfg    NodeConfig

	buffer *rootTable
	outbox store.IStore

	syncMu  sync.Mutex
	pending []pendingSync
	unclean map[string]*uncleanDrain // by outbox key, guarded by syncMu
	host    string

	// epoch is the id of the last drained message. Buffer records carry the
	// epoch they were written in.
	epoch   atomic.Int64
	started atomic.Bool
	closed  atomic.Bool
}

// NewNode creates a collector. buffer holds the buffered trees, outbox the
// messages in flight; both must be durable for crash recovery. The node takes
// ownership of the stores. Call Start before use.
func NewNode(s schema.KeySchema, codec *tree.Codec, remote RemoteStatsDB, buffer, outbox store.IStore, cfg NodeConfig) (*Node, error) {
	if s.IsZero() {
		return nil, fmt.Errorf("%w: node requires a schema", schema.ErrInvalidSchema)
	}
	if codec == nil || remote == nil || buffer == nil || outbox == nil {
		return nil, fmt.Errorf("node requires a codec, a remote and two stores")
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = DefaultSyncTimeout
	}
	n := &Node{
		schema:  s,
		codec:   codec,
		remote:  remote,
		cfg:     cfg,
		buffer:  newRootTable("node", codec, buffer),
		outbox:  outbox,
		unclean: make(map[string]*uncleanDrain),
	}
	n.buffer.epoch = n.epoch.Load
	return n, nil
}

// Start restores the buffered trees and undelivered messages and checks that
// the master uses the same schema. An unreachable master is only logged, the
// node keeps buffering until it can sync. Start must not run concurrently
// with other calls.
func (n *Node) Start(ctx context.Context) error {
	if err := n.loadOutbox(); err != nil {
		return err
	}
	count, err := n.buffer.load()
	if err != nil {
		return err
	}
	n.reconcile()
	log.Infof("node %s started with %d buffered roots and %d pending syncs", n.host, count, len(n.pending))

	remote, err := n.remote.GetSchema(ctx)
	if err != nil {
		log.Warningf("node %s: could not fetch schema from master: %v", n.host, err)
		n.started.Store(true)
		return nil
	}
	if !remote.Equal(n.schema) {
		return fmt.Errorf("%w: local %s, master %s", ErrSchemaIncompatible, n.schema, remote)
	}
	n.started.Store(true)
	return nil
}

// reconcile drops buffered roots that a pending message already holds. They
// are left behind if the process stopped, or the delete failed, between
// writing the outbox and clearing the buffer. Records written after the drain
// carry an epoch not below the message id and are kept.
func (n *Node) reconcile() {
	for _, p := range n.pending {
		var failed []string
		for key := range p.msg.Data {
			e := n.buffer.lookup(key)
			if e == nil || e.stampOf() >= p.msg.ID {
				continue
			}
			log.Warningf("node %s: dropping buffered root %q, it is part of pending sync %d", n.host, key, p.msg.ID)
			n.buffer.roots.Delete(key)
			e.removed = true
			if err := n.buffer.store.Delete(key); err != nil {
				log.Errorf("node %s: failed to delete drained root %q: %v", n.host, key, err)
				failed = append(failed, key)
			}
		}
		if len(failed) > 0 {
			n.unclean[p.key] = &uncleanDrain{id: p.msg.ID, keys: failed}
		}
	}
}

func (n *Node) loadOutbox() error {
	// host id
	n.host = n.cfg.Host
	if n.host == "" {
		b, ok, err := n.outbox.Get(metaHostKey)
		if err != nil {
			return fmt.Errorf("failed to read host id: %w", err)
		}
		if ok {
			n.host = string(b)
		} else {
			n.host = uuid.NewString()
			if err := n.outbox.Set(metaHostKey, []byte(n.host)); err != nil {
				return fmt.Errorf("failed to persist host id: %w", err)
			}
		}
	}

	// last token
	var last int64
	if b, ok, err := n.outbox.Get(metaLastIDKey); err != nil {
		return fmt.Errorf("failed to read last sync id: %w", err)
	} else if ok && len(b) == 8 {
		last = int64(binary.BigEndian.Uint64(b))
	}

	// undelivered messages
	keys, err := n.outbox.Keys()
	if err != nil {
		return fmt.Errorf("failed to list outbox: %w", err)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !strings.HasPrefix(key, outboxPrefix) {
			continue
		}
		b, ok, err := n.outbox.Get(key)
		if err != nil {
			return fmt.Errorf("failed to read outbox record %q: %w", key, err)
		}
		if !ok {
			continue
		}
		msg, err := DecodeSync(n.codec, b)
		if err != nil {
			return fmt.Errorf("failed to decode outbox record %q: %w", key, err)
		}
		if msg.ID > last {
			last = msg.ID
		}
		n.pending = append(n.pending, pendingSync{key: key, msg: msg})
	}

	if n.cfg.Tokens == nil {
		n.cfg.Tokens = NewClockTokens(last)
	}
	n.epoch.Store(last)
	return nil
}

// Close closes the stores of the node. Buffered data stays in the stores.
func (n *Node) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		return nil
	}
	// wait for a running sync
	n.syncMu.Lock()
	defer n.syncMu.Unlock()
	return errors.Join(n.buffer.store.Close(), n.outbox.Close())
}

// Host returns the host id the node reports to the master.
func (n *Node) Host() string {
	return n.host
}

// Schema returns the key schema.
func (n *Node) Schema() schema.KeySchema {
	return n.schema
}

// --------------------------------------------------------------------------
// Reads and Writes
// --------------------------------------------------------------------------

// Update writes the node at path in the local buffer and persists the root.
// Semantics are the same as Master.Update.
func (n *Node) Update(path []string, mutate func(tree.Value) error, create func() tree.Value) error {
	if n.closed.Load() {
		return ErrClosed
	}
	if err := n.schema.ValidatePath(path); err != nil {
		return err
	}

	key := path[0]
	for {
		e := n.buffer.entry(key)
		e.mu.RLock()
		if e.removed {
			// drained while we waited, the next entry is fresh
			e.mu.RUnlock()
			continue
		}
		err := tree.Update(e.node, path[1:], mutate, create)
		reportUpdateError(n.buffer, key, err)
		perr := n.buffer.persist(key, e)
		e.mu.RUnlock()

		updatesCounter("node").Inc()
		return errors.Join(err, perr)
	}
}

// Get returns the buffered value at path. Values already delivered to the
// master are not visible here.
func (n *Node) Get(path []string) (tree.Value, error) {
	if n.closed.Load() {
		return nil, ErrClosed
	}
	if err := n.schema.ValidatePath(path); err != nil {
		return nil, err
	}
	return n.buffer.get(path), nil
}

// Children returns the buffered leaf values under path, see Master.Children.
func (n *Node) Children(path []string) ([]tree.Value, error) {
	if n.closed.Load() {
		return nil, ErrClosed
	}
	return n.buffer.children(n.schema, path)
}

// DirtyKeys returns the root keys with buffered changes in lexical order.
func (n *Node) DirtyKeys() []string {
	var keys []string
	for _, key := range n.buffer.sortedKeys() {
		if e := n.buffer.lookup(key); e != nil && !e.node.IsEmpty() {
			keys = append(keys, key)
		}
	}
	return keys
}

// --------------------------------------------------------------------------
// Sync
// --------------------------------------------------------------------------

// Sync pushes all buffered changes to the master.
//
// Messages left in the outbox by a previous run are delivered first with their
// original id. Then the buffer is drained into a new message, which is written
// to the outbox before it is sent. If delivery fails the drained subtrees are
// merged back into the buffer, so nothing is lost and the next call retries.
//
// Sync never panics and never returns an error. Overlapping calls return
// SyncBusy immediately, calls before Start return SyncFailed.
func (n *Node) Sync(ctx context.Context) SyncStatus {
	if !n.syncMu.TryLock() {
		return SyncBusy
	}
	defer n.syncMu.Unlock()

	start := time.Now()
	status := n.sync(ctx)
	syncDuration.UpdateDuration(start)
	syncCounter(status).Inc()
	return status
}

func (n *Node) sync(ctx context.Context) SyncStatus {
	if n.closed.Load() {
		return SyncFailed
	}
	if !n.started.Load() {
		log.Errorf("node %s: sync called before start", n.host)
		return SyncFailed
	}

	n.cleanDrained()
	if !n.flushPending(ctx) {
		return SyncFailed
	}

	msg, key, failed, err := n.drain()
	if err != nil {
		log.Errorf("node %s: drain failed: %v", n.host, err)
		return SyncFailed
	}
	if msg == nil {
		return SyncEmpty
	}

	ack, err := n.deliver(ctx, msg)
	if err != nil || !ack.Delivered() {
		log.Warningf("node %s: sync %d failed (ack %s): %v", n.host, msg.ID, ack, err)
		n.restore(msg, key)
		return SyncFailed
	}

	if len(failed) > 0 {
		n.unclean[key] = &uncleanDrain{id: msg.ID, keys: failed, delivered: true}
	} else if err := n.outbox.Delete(key); err != nil {
		log.Errorf("node %s: failed to clear outbox record of sync %d: %v", n.host, msg.ID, err)
	}
	if ack == AckAlreadyApplied {
		return SyncAlreadyApplied
	}
	return SyncApplied
}

// flushPending delivers messages recovered from the outbox.
func (n *Node) flushPending(ctx context.Context) bool {
	for len(n.pending) > 0 {
		p := n.pending[0]
		ack, err := n.deliver(ctx, p.msg)
		switch {
		case err != nil:
			// the outcome is unknown, keep the id so the master can deduplicate
			log.Warningf("node %s: redelivery of sync %d failed: %v", n.host, p.msg.ID, err)
			return false
		case ack == AckRejected:
			// the master did not apply it, put the data back into the buffer
			log.Warningf("node %s: master rejected pending sync %d, rebuffering", n.host, p.msg.ID)
			n.restore(p.msg, p.key)
			// restored roots are rewritten in the current epoch
			delete(n.unclean, p.key)
		default:
			if u, ok := n.unclean[p.key]; ok {
				u.delivered = true
			} else if err := n.outbox.Delete(p.key); err != nil {
				log.Errorf("node %s: failed to clear outbox record of sync %d: %v", n.host, p.msg.ID, err)
			}
		}
		n.pending = n.pending[1:]
	}
	return true
}

// deliver sends msg within the sync timeout. Panics of the remote are
// returned as errors.
func (n *Node) deliver(ctx context.Context, msg *Sync) (ack Ack, err error) {
	defer func() {
		if r := recover(); r != nil {
			ack, err = AckRejected, fmt.Errorf("remote panicked: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, n.cfg.SyncTimeout)
	defer cancel()
	return n.remote.Update(ctx, msg, n.host)
}

// cleanDrained retries deleting the buffer records of unclean drains. The
// outbox record of a delivered message is cleared once all are gone.
func (n *Node) cleanDrained() {
	for outKey, u := range n.unclean {
		var failed []string
		for _, key := range u.keys {
			if err := n.dropDrained(key, u.id); err != nil {
				log.Errorf("node %s: failed to delete drained root %q: %v", n.host, key, err)
				failed = append(failed, key)
			}
		}
		if u.keys = failed; len(failed) > 0 {
			continue
		}
		delete(n.unclean, outKey)
		if !u.delivered {
			continue
		}
		if err := n.outbox.Delete(outKey); err != nil {
			log.Errorf("node %s: failed to clear outbox record of sync %d: %v", n.host, u.id, err)
		}
	}
}

// dropDrained deletes the record of key unless the root was written after
// the drain with the given id.
func (n *Node) dropDrained(key string, id int64) error {
	for {
		e := n.buffer.entry(key)
		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			continue
		}
		var err error
		if e.stampOf() < id {
			err = n.buffer.store.Delete(key)
		}
		e.mu.Unlock()
		return err
	}
}

// drain removes every dirty root from the buffer and returns them as a new
// message, already written to the outbox under the returned key. Updates of
// the drained roots wait until the drain is complete. The keys whose records
// could not be deleted from the buffer store are returned as well.
func (n *Node) drain() (*Sync, string, []string, error) {
	var (
		held []*rootEntry
		keys []string
	)
	unlock := func() {
		for _, e := range held {
			e.mu.Unlock()
		}
	}

	// lock in key order; updates hold at most one root lock, so this cannot deadlock
	for _, key := range n.buffer.sortedKeys() {
		e := n.buffer.lookup(key)
		if e == nil {
			continue
		}
		e.mu.Lock()
		if e.removed || e.node.IsEmpty() {
			e.mu.Unlock()
			continue
		}
		held = append(held, e)
		keys = append(keys, key)
	}
	if len(held) == 0 {
		return nil, "", nil, nil
	}

	msg := &Sync{ID: n.cfg.Tokens.Next(), Data: make(map[string]*tree.Node, len(held))}
	for i, e := range held {
		msg.Data[keys[i]] = e.node
	}

	outKey, err := n.writeOutbox(msg)
	if err != nil {
		unlock()
		return nil, "", nil, err
	}

	// later writes of the drained roots are stamped with the new epoch
	if msg.ID > n.epoch.Load() {
		n.epoch.Store(msg.ID)
	}
	var failed []string
	for i, e := range held {
		if err := n.buffer.store.Delete(keys[i]); err != nil {
			log.Errorf("node %s: failed to delete drained root %q: %v", n.host, keys[i], err)
			failed = append(failed, keys[i])
		}
		n.buffer.roots.Delete(keys[i])
		e.removed = true
	}
	unlock()
	return msg, outKey, failed, nil
}

func outboxKey(id int64) string {
	// zero padded so lexical order is id order
	return fmt.Sprintf("%s%020d", outboxPrefix, id)
}

func (n *Node) writeOutbox(msg *Sync) (string, error) {
	b, err := EncodeSync(n.codec, msg)
	if err != nil {
		return "", fmt.Errorf("failed to encode sync: %w", err)
	}
	key := outboxKey(msg.ID)
	if err := n.outbox.Set(key, b); err != nil {
		return "", fmt.Errorf("failed to write outbox: %w", err)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(msg.ID))
	if err := n.outbox.Set(metaLastIDKey, buf[:]); err != nil {
		return "", fmt.Errorf("failed to write last sync id: %w", err)
	}
	return key, nil
}

// restore merges the subtrees of a failed message back into the buffer and
// drops its outbox record.
func (n *Node) restore(msg *Sync, outKey string) {
	for key, sub := range msg.Data {
		if sub == nil {
			continue
		}
		for {
			e := n.buffer.entry(key)
			e.mu.Lock()
			if e.removed {
				e.mu.Unlock()
				continue
			}
			tree.Merge(e.node, sub, n.buffer.reporter(key))
			if err := n.buffer.persist(key, e); err != nil {
				log.Errorf("node %s: failed to persist restored root %q: %v", n.host, key, err)
			}
			e.mu.Unlock()
			break
		}
	}
	if err := n.outbox.Delete(outKey); err != nil {
		log.Errorf("node %s: failed to clear outbox record of sync %d: %v", n.host, msg.ID, err)
	}
}

// Run calls Sync every interval until ctx is done, then syncs one last time.
func (n *Node) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			n.Sync(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			n.Sync(ctx)
		}
	}
}
