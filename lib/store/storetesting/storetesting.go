// Package storetesting provides a conformance test suite for store.IStore
// implementations.
package storetesting

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/ValentinKolb/dStats/lib/store"
)

// RunIStoreTests runs the conformance suite against stores created by factory.
// Every sub test gets a fresh store and closes it.
func RunIStoreTests(t *testing.T, name string, factory store.Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, open(t, factory))
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, open(t, factory))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, open(t, factory))
		})

		t.Run("Keys", func(t *testing.T) {
			testKeys(t, open(t, factory))
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, open(t, factory))
		})

		t.Run("Concurrent", func(t *testing.T) {
			testConcurrent(t, open(t, factory))
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, open(t, factory))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func open(t *testing.T, factory store.Factory) store.IStore {
	t.Helper()
	s, err := factory()
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	return s
}

func mustSet(t *testing.T, s store.IStore, key string, value []byte) {
	t.Helper()
	if err := s.Set(key, value); err != nil {
		t.Fatalf("Set(%q) failed: %v", key, err)
	}
}

func mustGet(t *testing.T, s store.IStore, key string) ([]byte, bool) {
	t.Helper()
	value, ok, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", key, err)
	}
	return value, ok
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, s store.IStore) {
	defer s.Close()

	mustSet(t, s, "k", []byte("v1"))
	value, ok := mustGet(t, s, "k")
	if !ok || !bytes.Equal(value, []byte("v1")) {
		t.Errorf("Expected v1, got %q (found=%v)", value, ok)
	}

	mustSet(t, s, "k", []byte("v2"))
	value, ok = mustGet(t, s, "k")
	if !ok || !bytes.Equal(value, []byte("v2")) {
		t.Errorf("Expected v2, got %q (found=%v)", value, ok)
	}

	if _, ok := mustGet(t, s, "missing"); ok {
		t.Errorf("Expected missing key to return found=false")
	}

	// the returned slice must not alias the stored record
	value[0] = 'X'
	value, _ = mustGet(t, s, "k")
	if !bytes.Equal(value, []byte("v2")) {
		t.Errorf("Stored value was modified through a returned slice: %q", value)
	}

	// neither must the slice passed to Set
	in := []byte("v3")
	mustSet(t, s, "k", in)
	in[0] = 'X'
	value, _ = mustGet(t, s, "k")
	if !bytes.Equal(value, []byte("v3")) {
		t.Errorf("Stored value was modified through the input slice: %q", value)
	}
}

func testHas(t *testing.T, s store.IStore) {
	defer s.Close()

	mustSet(t, s, "k", []byte("v"))
	if ok, err := s.Has("k"); err != nil || !ok {
		t.Errorf("Expected Has(k) = true, got %v (%v)", ok, err)
	}
	if ok, err := s.Has("missing"); err != nil || ok {
		t.Errorf("Expected Has(missing) = false, got %v (%v)", ok, err)
	}
}

func testDelete(t *testing.T, s store.IStore) {
	defer s.Close()

	mustSet(t, s, "k", []byte("v"))
	if err := s.Delete("k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := mustGet(t, s, "k"); ok {
		t.Errorf("Expected key to be gone after Delete")
	}
	if err := s.Delete("k"); err != nil {
		t.Errorf("Deleting a missing key must not fail: %v", err)
	}
}

func testKeys(t *testing.T, s store.IStore) {
	defer s.Close()

	keys, err := s.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Expected no keys in a new store, got %v", keys)
	}

	for _, k := range []string{"c", "a", "b"} {
		mustSet(t, s, k, []byte(k))
	}
	if err := s.Delete("b"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	keys, err = s.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	sort.Strings(keys)
	if fmt.Sprint(keys) != "[a c]" {
		t.Errorf("Expected keys [a c], got %v", keys)
	}
}

func testEdgeCases(t *testing.T, s store.IStore) {
	defer s.Close()

	// empty value
	mustSet(t, s, "empty", []byte{})
	value, ok := mustGet(t, s, "empty")
	if !ok || len(value) != 0 {
		t.Errorf("Expected empty value, got %q (found=%v)", value, ok)
	}

	// unusual keys
	for _, k := range []string{"with space", "ümlaut", "slash/ed", "a\x00b"} {
		mustSet(t, s, k, []byte(k))
		value, ok := mustGet(t, s, k)
		if !ok || string(value) != k {
			t.Errorf("Round trip of key %q failed: %q (found=%v)", k, value, ok)
		}
	}

	// large value
	large := bytes.Repeat([]byte("x"), 1<<20)
	mustSet(t, s, "large", large)
	value, _ = mustGet(t, s, "large")
	if !bytes.Equal(value, large) {
		t.Errorf("Large value round trip failed (len %d)", len(value))
	}
}

func testConcurrent(t *testing.T, s store.IStore) {
	defer s.Close()

	const workers, perWorker = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				k := fmt.Sprintf("w%d-%d", w, i)
				if err := s.Set(k, []byte(k)); err != nil {
					t.Errorf("Set failed: %v", err)
					return
				}
				if _, _, err := s.Get(k); err != nil {
					t.Errorf("Get failed: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	keys, err := s.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != workers*perWorker {
		t.Errorf("Expected %d keys, got %d", workers*perWorker, len(keys))
	}
}

func testClosed(t *testing.T, s store.IStore) {
	mustSet(t, s, "k", []byte("v"))
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, _, err := s.Get("k"); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Expected ErrClosed after Close, got %v", err)
	}
	if err := s.Set("k", nil); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Expected ErrClosed after Close, got %v", err)
	}
}
