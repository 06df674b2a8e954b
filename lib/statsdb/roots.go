package statsdb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ValentinKolb/dStats/lib/schema"
	"github.com/ValentinKolb/dStats/lib/store"
	"github.com/ValentinKolb/dStats/lib/tree"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("statsdb")

var (
	// ErrClosed is returned by operations on a closed master or node.
	ErrClosed = errors.New("statsdb: closed")
	// ErrSchemaIncompatible is returned by Node.Start if the master uses another schema.
	ErrSchemaIncompatible = errors.New("statsdb: schema incompatible with master")
)

// rootEntry is the tree of one root key.
//
// mu is the coarse lock of the root. The master holds it exclusively for
// every write; a collector holds it shared for updates (the tree locks its
// nodes itself) and exclusively while draining.
type rootEntry struct {
	mu      sync.RWMutex
	node    *tree.Node
	removed bool
	// stamp of the last record written or loaded, guarded by pmu
	stamp int64

	// pmu orders encode+write pairs so a stale encoding never overwrites a newer one
	pmu sync.Mutex
}

// rootTable holds the trees of all root keys and their persisted records.
type rootTable struct {
	role  string
	codec *tree.Codec
	store store.IStore
	roots *xsync.MapOf[string, *rootEntry]
	// epoch stamps written records, nil writes stamp 0
	epoch func() int64
}

func newRootTable(role string, codec *tree.Codec, st store.IStore) *rootTable {
	return &rootTable{
		role:  role,
		codec: codec,
		store: st,
		roots: xsync.NewMapOf[string, *rootEntry](),
	}
}

// entry returns the entry of key, creating an empty tree if needed.
func (t *rootTable) entry(key string) *rootEntry {
	e, _ := t.roots.LoadOrCompute(key, func() *rootEntry {
		return &rootEntry{node: tree.NewNode()}
	})
	return e
}

func (t *rootTable) lookup(key string) *rootEntry {
	e, _ := t.roots.Load(key)
	return e
}

// sortedKeys returns all root keys in lexical order.
func (t *rootTable) sortedKeys() []string {
	keys := make([]string, 0, t.roots.Size())
	t.roots.Range(func(k string, _ *rootEntry) bool {
		keys = append(keys, k)
		return true
	})
	sort.Strings(keys)
	return keys
}

// persist writes the record of key. The caller holds e.mu (shared or exclusive).
func (t *rootTable) persist(key string, e *rootEntry) error {
	e.pmu.Lock()
	defer e.pmu.Unlock()
	var stamp int64
	if t.epoch != nil {
		stamp = t.epoch()
	}
	return t.write(key, e, stamp)
}

// write encodes and stores the record of key with stamp. The caller holds e.pmu
// or owns e exclusively.
func (t *rootTable) write(key string, e *rootEntry, stamp int64) error {
	b, err := t.codec.EncodeStampedRecord(e.node, stamp)
	if err != nil {
		return fmt.Errorf("failed to encode root %q: %w", key, err)
	}
	if err := t.store.Set(key, b); err != nil {
		return fmt.Errorf("failed to persist root %q: %w", key, err)
	}
	e.stamp = stamp
	return nil
}

// stampOf returns the stamp of the last record of e.
func (e *rootEntry) stampOf() int64 {
	e.pmu.Lock()
	defer e.pmu.Unlock()
	return e.stamp
}

// load reads every record of the store into the table. Records written before
// aggregates were stored get their aggregates recomputed and are rewritten.
func (t *rootTable) load() (int, error) {
	keys, err := t.store.Keys()
	if err != nil {
		return 0, fmt.Errorf("failed to list records: %w", err)
	}
	for _, key := range keys {
		b, ok, err := t.store.Get(key)
		if err != nil {
			return 0, fmt.Errorf("failed to read root %q: %w", key, err)
		}
		if !ok {
			continue
		}
		node, stamp, legacy, err := t.codec.DecodeStampedRecord(b)
		if err != nil {
			return 0, fmt.Errorf("failed to decode root %q: %w", key, err)
		}
		e := &rootEntry{node: node, stamp: stamp}
		if legacy {
			log.Infof("%s: recomputing aggregates of root %q", t.role, key)
			tree.RecomputeAggregates(node, t.reporter(key))
			// the rewrite keeps the stamp, it carries no new data
			if err := t.write(key, e, stamp); err != nil {
				return 0, err
			}
		}
		t.roots.Store(key, e)
	}
	return len(keys), nil
}

// reporter returns the merge failure callback for a root key.
func (t *rootTable) reporter(key string) func(*tree.MergeFailure) {
	return func(f *tree.MergeFailure) {
		mergeFailures.Inc()
		log.Errorf("%s: merge failure root=%q path=%v: %v", t.role, key, f.Path, f.Err)
	}
}

// get returns the value at path. The path must already be validated.
func (t *rootTable) get(path []string) tree.Value {
	e := t.lookup(path[0])
	if e == nil {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return tree.Get(e.node, path[1:])
}

// children returns the leaf values under path, see Master.Children.
func (t *rootTable) children(s schema.KeySchema, path []string) ([]tree.Value, error) {
	if err := s.ValidateQuery(path); err != nil {
		return nil, err
	}
	if len(path) == s.Depth() {
		return []tree.Value{}, nil
	}

	collect := func(e *rootEntry, rel []string) []tree.Value {
		e.mu.RLock()
		defer e.mu.RUnlock()
		return tree.Descendants(e.node, rel, s.Depth()-1)
	}

	out := []tree.Value{}
	if len(path) == 0 {
		for _, key := range t.sortedKeys() {
			if e := t.lookup(key); e != nil {
				out = append(out, collect(e, nil)...)
			}
		}
		return out, nil
	}
	if e := t.lookup(path[0]); e != nil {
		out = append(out, collect(e, path[1:])...)
	}
	return out, nil
}
