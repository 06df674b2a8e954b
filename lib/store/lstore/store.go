package lstore

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dStats/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("store")

const (
	magicNum        = "DSTATS\x00\x00" // File format identifier
	snapshotVersion = 1                // Snapshot format version

	DefaultSnapshotInterval = 10 * time.Second
)

// Options configures a local store.
type Options struct {
	// Path of the snapshot file. Empty means the store is memory only.
	Path string
	// SnapshotInterval is how often a changed store is written to Path.
	// Zero uses DefaultSnapshotInterval, a negative value only saves on Close.
	SnapshotInterval time.Duration
}

// Store is an in-memory implementation of store.IStore with optional
// snapshot persistence. It can also be saved to and loaded from any stream,
// which is how the raft state machine of dstore snapshots its records.
type Store struct {
	data *xsync.MapOf[string, []byte]

	// index is incremented on every write, savedIndex is the index of the
	// last snapshot written to disk
	index      atomic.Uint64
	savedIndex atomic.Uint64

	opts   Options
	closed atomic.Bool
	saveMu sync.Mutex
	stop   chan struct{}
	done   chan struct{}
}

// NewMemStore creates a store without persistence.
func NewMemStore() *Store {
	return &Store{data: xsync.NewMapOf[string, []byte]()}
}

// NewLocalStore creates a local store. If opts.Path is set, an existing
// snapshot is loaded and changes are flushed to it periodically and on Close.
func NewLocalStore(opts Options) (*Store, error) {
	s := NewMemStore()
	s.opts = opts
	if opts.Path == "" {
		return s, nil
	}

	if err := s.loadFile(); err != nil {
		return nil, err
	}

	interval := opts.SnapshotInterval
	if interval == 0 {
		interval = DefaultSnapshotInterval
	}
	if interval > 0 {
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		go s.snapshotLoop(interval)
	}
	return s, nil
}

// incAndGetIndex increments the index and returns the new value.
//
// Thread-safety: This method is thread-safe since it uses atomic operations.
func (s *Store) incAndGetIndex() uint64 {
	return s.index.Add(1)
}

func (s *Store) checkOpen() error {
	if s.closed.Load() {
		return store.NewError(store.RetCClosed, "local store is closed")
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *Store) Set(key string, value []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	s.data.Store(key, cp)
	s.incAndGetIndex()
	return nil
}

func (s *Store) Get(key string) ([]byte, bool, error) {
	if err := s.checkOpen(); err != nil {
		return nil, false, err
	}
	val, ok := s.data.Load(key)
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(val))
	copy(cp, val)
	return cp, true, nil
}

func (s *Store) Has(key string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	_, ok := s.data.Load(key)
	return ok, nil
}

func (s *Store) Delete(key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, ok := s.data.LoadAndDelete(key); ok {
		s.incAndGetIndex()
	}
	return nil
}

func (s *Store) Keys() ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	keys := make([]string, 0, s.data.Size())
	s.data.Range(func(key string, _ []byte) bool {
		keys = append(keys, key)
		return true
	})
	return keys, nil
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.stop != nil {
		close(s.stop)
		<-s.done
	}
	if s.opts.Path != "" {
		return s.saveFile()
	}
	return nil
}

// --------------------------------------------------------------------------
// Snapshots
// --------------------------------------------------------------------------

// Save writes all records to w.
//
// File layout (little endian):
//
//	magic (8 bytes) | version (uint8) | count (uint64) | count * entry
//	entry: keyLen (uint32) | key | valueLen (uint32) | value
func (s *Store) Save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	type entry struct {
		key   string
		value []byte
	}
	entries := make([]entry, 0, s.data.Size())
	s.data.Range(func(key string, value []byte) bool {
		entries = append(entries, entry{key, value})
		return true
	})

	// Write file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(snapshotVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	// Write entries
	for _, e := range entries {
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(e.key))); err != nil {
			return err
		}
		if _, err := bw.WriteString(e.key); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(e.value))); err != nil {
			return err
		}
		if _, err := bw.Write(e.value); err != nil {
			return err
		}
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

// Load replaces the content of the store with the records read from r.
//
// Thread-safety: Load must not run concurrently with writes.
func (s *Store) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if version != snapshotVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, snapshotVersion)
	}

	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}

	data := xsync.NewMapOf[string, []byte](xsync.WithPresize(int(count)))
	for i := uint64(0); i < count; i++ {
		key, err := readChunk(br)
		if err != nil {
			return err
		}
		value, err := readChunk(br)
		if err != nil {
			return err
		}
		data.Store(string(key), value)
	}

	s.data = data
	s.incAndGetIndex()
	return nil
}

func readChunk(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) loadFile() error {
	f, err := os.Open(s.opts.Path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return store.Errorf(store.RetCInternalError, "failed to open snapshot: %v", err)
	}
	defer f.Close()

	if err := s.Load(f); err != nil {
		return store.Errorf(store.RetCInternalError, "failed to load snapshot %s: %v", s.opts.Path, err)
	}
	s.savedIndex.Store(s.index.Load())
	log.Infof("loaded %d records from %s", s.data.Size(), s.opts.Path)
	return nil
}

// saveFile writes a snapshot if the store changed since the last one.
// The snapshot is written to a temporary file first and renamed into place.
func (s *Store) saveFile() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	idx := s.index.Load()
	if idx == s.savedIndex.Load() {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.opts.Path), 0o755); err != nil {
		return store.Errorf(store.RetCInternalError, "failed to create snapshot dir: %v", err)
	}
	tmp := s.opts.Path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return store.Errorf(store.RetCInternalError, "failed to create snapshot: %v", err)
	}
	if err := s.Save(f); err != nil {
		f.Close()
		return store.Errorf(store.RetCInternalError, "failed to write snapshot: %v", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return store.Errorf(store.RetCInternalError, "failed to sync snapshot: %v", err)
	}
	if err := f.Close(); err != nil {
		return store.Errorf(store.RetCInternalError, "failed to close snapshot: %v", err)
	}
	if err := os.Rename(tmp, s.opts.Path); err != nil {
		return store.Errorf(store.RetCInternalError, "failed to replace snapshot: %v", err)
	}
	s.savedIndex.Store(idx)
	return nil
}

func (s *Store) snapshotLoop(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.saveFile(); err != nil {
				log.Errorf("periodic snapshot failed: %v", err)
			}
		}
	}
}

var _ store.IStore = (*Store)(nil)
