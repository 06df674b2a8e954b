package bstore

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/dStats/lib/store"
	"github.com/ValentinKolb/dStats/lib/store/storetesting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltStoreInterface(t *testing.T) {
	dir := t.TempDir()
	n := 0
	storetesting.RunIStoreTests(t, "BoltStore", func() (store.IStore, error) {
		n++
		return NewBoltStore(Options{Path: filepath.Join(dir, fmt.Sprintf("store-%d.db", n)), NoSync: true})
	})
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "buffer.db")

	s, err := NewBoltStore(Options{Path: path, Bucket: "buffer"})
	require.NoError(t, err)
	require.NoError(t, s.Set("k1", []byte("v1")))
	require.NoError(t, s.Close())

	s, err = NewBoltStore(Options{Path: path, Bucket: "buffer"})
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get("k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), v)
}

func TestMissingPath(t *testing.T) {
	_, err := NewBoltStore(Options{})
	assert.Error(t, err)
}
