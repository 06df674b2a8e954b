package bstore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dStats/lib/store"
	bolt "go.etcd.io/bbolt"
)

const (
	DefaultBucket = "records"
	fileMode      = 0600
)

// Options configures a bolt store.
type Options struct {
	// Path of the database file. Parent directories are created.
	Path string
	// Bucket holding the records, DefaultBucket if empty.
	Bucket string
	// Timeout for acquiring the file lock. Zero waits forever.
	Timeout time.Duration
	// NoSync skips fsync after each commit. Only meant for tests and benchmarks.
	NoSync bool
}

type storeImpl struct {
	db     *bolt.DB
	bucket []byte
	closed atomic.Bool
}

// NewBoltStore opens (or creates) a bolt database and returns it as a store.IStore.
func NewBoltStore(opts Options) (store.IStore, error) {
	if opts.Path == "" {
		return nil, store.NewError(store.RetCInvalidOperation, "bolt store requires a path")
	}
	if opts.Bucket == "" {
		opts.Bucket = DefaultBucket
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database dir: %w", err)
	}

	db, err := bolt.Open(opts.Path, fileMode, &bolt.Options{Timeout: opts.Timeout, NoSync: opts.NoSync})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	bucket := []byte(opts.Bucket)
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &storeImpl{db: db, bucket: bucket}, nil
}

func (s *storeImpl) checkOpen() error {
	if s.closed.Load() {
		return store.NewError(store.RetCClosed, "bolt store is closed")
	}
	return nil
}

func internalErr(op string, err error) error {
	return store.Errorf(store.RetCInternalError, "%s failed: %v", op, err)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), value)
	})
	if err != nil {
		return internalErr("set", err)
	}
	return nil
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	if err := s.checkOpen(); err != nil {
		return nil, false, err
	}
	var (
		value []byte
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		// a cursor distinguishes empty values from missing keys
		k, v := tx.Bucket(s.bucket).Cursor().Seek([]byte(key))
		if k != nil && bytes.Equal(k, []byte(key)) {
			found = true
			// bolt memory is only valid inside the transaction
			value = make([]byte, len(v))
			copy(value, v)
		}
		return nil
	})
	if err != nil {
		return nil, false, internalErr("get", err)
	}
	return value, found, nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	_, found, err := s.Get(key)
	return found, err
}

func (s *storeImpl) Delete(key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
	if err != nil {
		return internalErr("delete", err)
	}
	return nil
}

func (s *storeImpl) Keys() ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, internalErr("keys", err)
	}
	return keys, nil
}

func (s *storeImpl) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}
