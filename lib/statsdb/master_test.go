package statsdb

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ValentinKolb/dStats/lib/schema"
	"github.com/ValentinKolb/dStats/lib/store"
	"github.com/ValentinKolb/dStats/lib/store/bstore"
	"github.com/ValentinKolb/dStats/lib/store/lstore"
	"github.com/ValentinKolb/dStats/lib/tree"
	tt "github.com/ValentinKolb/dStats/lib/tree/treetest"
	"github.com/ValentinKolb/dStats/lib/values"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	depth2 = schema.MustNew("root", "leaf")
	depth4 = schema.MustNew("a", "b", "c", "d")
)

func newTestMaster(t *testing.T, s schema.KeySchema, roots store.IStore, opts ...MasterOption) *Master {
	t.Helper()
	m, err := NewMaster(s, tt.Codec(), roots, opts...)
	require.NoError(t, err)
	require.NoError(t, m.Start())
	return m
}

func boltStore(t *testing.T, path string) store.IStore {
	t.Helper()
	st, err := bstore.NewBoltStore(bstore.Options{Path: path, NoSync: true})
	require.NoError(t, err)
	return st
}

func counterCI(t *testing.T, db Getter, path ...string) int64 {
	t.Helper()
	c, ok, err := Get[*tt.Counter](db, path)
	require.NoError(t, err)
	require.True(t, ok, "no counter at %v", path)
	return c.CI
}

func group(t *testing.T, db Getter, path ...string) *tt.Group {
	t.Helper()
	g, ok, err := Get[*tt.Group](db, path)
	require.NoError(t, err)
	require.True(t, ok, "no group at %v", path)
	return g
}

func cis(vs []tree.Value) []int64 {
	out := make([]int64, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.(*tt.Counter).CI)
	}
	return out
}

func TestNewMaster(t *testing.T) {
	_, err := NewMaster(schema.KeySchema{}, tt.Codec(), lstore.NewMemStore())
	assert.ErrorIs(t, err, schema.ErrInvalidSchema)

	_, err = NewMaster(depth2, nil, lstore.NewMemStore())
	assert.Error(t, err)
}

func TestMasterChildren(t *testing.T) {
	m := newTestMaster(t, depth2, lstore.NewMemStore())
	defer m.Close()

	require.NoError(t, m.Update([]string{"k1", "k2"}, tt.SetCI(10), tt.NewCounter(0)))
	require.NoError(t, m.Update([]string{"k1", "k3"}, tt.SetCI(3), tt.NewCounter(0)))
	require.NoError(t, m.Update([]string{"k2", "k4"}, tt.SetCI(4), tt.NewCounter(0)))

	children := func(path ...string) []int64 {
		vs, err := m.Children(path)
		require.NoError(t, err)
		return cis(vs)
	}

	assert.ElementsMatch(t, []int64{10, 3}, children("k1"))
	assert.ElementsMatch(t, []int64{4}, children("k2"))
	assert.Empty(t, children("unknown"))
	assert.Empty(t, children("k1", "k2"))
	assert.ElementsMatch(t, []int64{10, 3, 4}, children())

	_, err := m.Children([]string{"k1", "k2", "k3"})
	assert.ErrorIs(t, err, schema.ErrSchemaMismatch)
	assert.Equal(t, []string{"k1", "k2"}, m.RootKeys())
}

func TestMasterPathValidation(t *testing.T) {
	m := newTestMaster(t, depth2, lstore.NewMemStore())
	defer m.Close()

	assert.ErrorIs(t, m.Update(nil, tt.Noop, tt.NewCounter(0)), schema.ErrSchemaMismatch)
	assert.ErrorIs(t, m.Update([]string{"a", "b", "c"}, tt.Noop, tt.NewCounter(0)), schema.ErrSchemaMismatch)
	_, err := m.Get([]string{"a", "b", "c"})
	assert.ErrorIs(t, err, schema.ErrSchemaMismatch)

	v, err := m.Get([]string{"missing"})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestMasterPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.db")

	m := newTestMaster(t, depth2, boltStore(t, path))
	require.NoError(t, m.Update([]string{"k1", "k2"}, tt.SetCI(10), tt.NewCounter(0)))
	require.NoError(t, m.Update([]string{"k1", "k3"}, tt.SetCI(11), tt.NewCounter(0)))
	require.NoError(t, m.Update([]string{"k1"}, tt.SetI2(20), tt.NewGroup(0)))
	require.NoError(t, m.Close())

	m = newTestMaster(t, depth2, boltStore(t, path))
	defer m.Close()

	assert.Equal(t, int64(10), counterCI(t, m, "k1", "k2"))
	assert.Equal(t, int64(11), counterCI(t, m, "k1", "k3"))
	assert.Equal(t, &tt.Group{I2: 20, Sum: 21}, group(t, m, "k1"))
}

func TestMasterLegacyRecord(t *testing.T) {
	codec := tt.Codec()
	root := tree.NewNode()
	require.NoError(t, tree.Update(root, []string{"k2"}, tt.SetCI(10), tt.NewCounter(0)))
	require.NoError(t, tree.Update(root, []string{"k3"}, tt.SetCI(11), tt.NewCounter(0)))
	// stale aggregate, as written before aggregates were stored
	root.SetValue(&tt.Group{I2: 20})

	st := lstore.NewMemStore()
	b, err := codec.EncodeLegacyRecord(root)
	require.NoError(t, err)
	require.NoError(t, st.Set("k1", b))

	m := newTestMaster(t, depth2, st)
	defer m.Close()
	assert.Equal(t, int64(21), group(t, m, "k1").Sum)

	// the record was rewritten in the current format
	b, ok, err := st.Get("k1")
	require.NoError(t, err)
	require.True(t, ok)
	_, legacy, err := codec.DecodeRecord(b)
	require.NoError(t, err)
	assert.False(t, legacy)
}

func TestMasterCurrentRecordNotRecomputed(t *testing.T) {
	codec := tt.Codec()
	root := tree.NewNode()
	require.NoError(t, tree.Update(root, []string{"k2"}, tt.SetCI(10), tt.NewCounter(0)))
	root.SetValue(&tt.Group{I2: 1, Sum: 99})

	st := lstore.NewMemStore()
	b, err := codec.EncodeRecord(root)
	require.NoError(t, err)
	require.NoError(t, st.Set("k1", b))

	m := newTestMaster(t, depth2, st)
	defer m.Close()
	assert.Equal(t, int64(99), group(t, m, "k1").Sum, "stored aggregates are loaded as-is")
}

func syncMsg(t *testing.T, id int64, build func(root func(key string) *tree.Node)) *Sync {
	t.Helper()
	msg := &Sync{ID: id, Data: map[string]*tree.Node{}}
	build(func(key string) *tree.Node {
		n, ok := msg.Data[key]
		if !ok {
			n = tree.NewNode()
			msg.Data[key] = n
		}
		return n
	})
	return msg
}

func TestMasterAbsorbSync(t *testing.T) {
	m := newTestMaster(t, depth2, lstore.NewMemStore())
	defer m.Close()

	msg := func(id, ci int64) *Sync {
		return syncMsg(t, id, func(root func(string) *tree.Node) {
			require.NoError(t, tree.Update(root("k1"), []string{"k2"}, tt.SetCI(ci), tt.NewCounter(0)))
		})
	}

	ack, err := m.AbsorbSync(msg(1, 10), "h1")
	require.NoError(t, err)
	assert.Equal(t, AckApplied, ack)

	t.Run("Duplicate", func(t *testing.T) {
		ack, err := m.AbsorbSync(msg(1, 10), "h1")
		require.NoError(t, err)
		assert.Equal(t, AckAlreadyApplied, ack)
		ack, err = m.AbsorbSync(msg(0, 10), "h1")
		require.NoError(t, err)
		assert.Equal(t, AckAlreadyApplied, ack)
		assert.Equal(t, int64(10), counterCI(t, m, "k1", "k2"))
	})

	t.Run("OtherHost", func(t *testing.T) {
		ack, err := m.AbsorbSync(msg(1, 5), "h2")
		require.NoError(t, err)
		assert.Equal(t, AckApplied, ack)
		assert.Equal(t, int64(15), counterCI(t, m, "k1", "k2"))
	})

	t.Run("Rejected", func(t *testing.T) {
		ack, err := m.AbsorbSync(msg(9, 1), "")
		require.NoError(t, err)
		assert.Equal(t, AckRejected, ack)

		ack, err = m.AbsorbSync(nil, "h1")
		require.NoError(t, err)
		assert.Equal(t, AckRejected, ack)

		tooDeep := syncMsg(t, 9, func(root func(string) *tree.Node) {
			require.NoError(t, tree.Update(root("k1"), []string{"a", "b"}, tt.Noop, tt.NewCounter(1)))
		})
		ack, err = m.AbsorbSync(tooDeep, "h1")
		require.NoError(t, err)
		assert.Equal(t, AckRejected, ack)

		// a rejected id is not consumed
		ack, err = m.AbsorbSync(msg(9, 1), "h1")
		require.NoError(t, err)
		assert.Equal(t, AckApplied, ack)
		assert.Equal(t, int64(16), counterCI(t, m, "k1", "k2"))
	})
}

func TestMasterAbsorbFailSoft(t *testing.T) {
	m := newTestMaster(t, depth2, lstore.NewMemStore())
	defer m.Close()

	require.NoError(t, m.Update([]string{"bad", "x"}, tt.Noop, func() tree.Value { return &tt.Faulty{} }))
	require.NoError(t, m.Update([]string{"good", "x"}, tt.SetCI(1), tt.NewCounter(0)))

	msg := syncMsg(t, 1, func(root func(string) *tree.Node) {
		require.NoError(t, tree.Update(root("bad"), []string{"x"}, tt.Noop, func() tree.Value { return &tt.Faulty{N: 1} }))
		require.NoError(t, tree.Update(root("good"), []string{"x"}, tt.SetCI(2), tt.NewCounter(0)))
	})

	ack, err := m.AbsorbSync(msg, "h")
	require.NoError(t, err)
	assert.Equal(t, AckApplied, ack)
	assert.Equal(t, int64(3), counterCI(t, m, "good", "x"))

	ack, err = m.AbsorbSync(msg, "h")
	require.NoError(t, err)
	assert.Equal(t, AckAlreadyApplied, ack, "the id is accepted despite the failed node")
}

func TestMasterLedgerPersist(t *testing.T) {
	dir := t.TempDir()
	open := func() *Master {
		return newTestMaster(t, depth2,
			boltStore(t, filepath.Join(dir, "roots.db")),
			WithLedger(boltStore(t, filepath.Join(dir, "ledger.db"))))
	}

	msg := syncMsg(t, 7, func(root func(string) *tree.Node) {
		require.NoError(t, tree.Update(root("k1"), []string{"k2"}, tt.SetCI(10), tt.NewCounter(0)))
	})

	m := open()
	ack, err := m.AbsorbSync(msg.Clone(), "h1")
	require.NoError(t, err)
	assert.Equal(t, AckApplied, ack)
	require.NoError(t, m.Close())

	m = open()
	defer m.Close()
	ack, err = m.AbsorbSync(msg, "h1")
	require.NoError(t, err)
	assert.Equal(t, AckAlreadyApplied, ack)
	assert.Equal(t, int64(10), counterCI(t, m, "k1", "k2"))
}

func TestMasterConcurrent(t *testing.T) {
	s := schema.MustNew("service", "endpoint")
	m, err := NewMaster(s, values.NewCodec(), lstore.NewMemStore())
	require.NoError(t, err)
	require.NoError(t, m.Start())
	defer m.Close()

	const workers, rounds = 8, 100
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				_ = m.Update([]string{"api"}, values.Increment("calls", 0), values.Factory(false))
				_ = m.Update([]string{"api", "get"}, values.Increment("calls", 1), values.Factory(true))
				if i%10 == 0 {
					msg := &Sync{ID: int64(i + 1), Data: map[string]*tree.Node{"api": tree.NewNode()}}
					_ = tree.Update(msg.Data["api"], []string{"post"}, values.Increment("calls", 1), values.Factory(true))
					_, _ = m.AbsorbSync(msg, "h")
				}
			}
		}(w)
	}
	wg.Wait()

	r, ok, err := Get[*values.Rollup](m, []string{"api"})
	require.NoError(t, err)
	require.True(t, ok)
	get, ok, err := Get[*values.Counters](m, []string{"api", "get"})
	require.NoError(t, err)
	require.True(t, ok)
	post, ok, err := Get[*values.Counters](m, []string{"api", "post"})
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, int64(workers*rounds), get.Get("calls"))
	assert.Equal(t, get.Get("calls")+post.Get("calls"), r.Total.Get("calls"))
}

func TestLocalRemote(t *testing.T) {
	m := newTestMaster(t, depth2, lstore.NewMemStore())
	defer m.Close()
	r := m.Remote()

	s, err := r.GetSchema(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Equal(depth2))

	msg := syncMsg(t, 1, func(root func(string) *tree.Node) {
		require.NoError(t, tree.Update(root("k1"), []string{"k2"}, tt.SetCI(1), tt.NewCounter(0)))
	})
	ack, err := r.Update(context.Background(), msg, "h")
	require.NoError(t, err)
	assert.Equal(t, AckApplied, ack)

	// the master holds a copy
	require.NoError(t, tree.Update(msg.Data["k1"], []string{"k2"}, tt.SetCI(100), nil))
	assert.Equal(t, int64(1), counterCI(t, m, "k1", "k2"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Update(ctx, msg, "h")
	assert.Error(t, err)
}

func TestClosedMaster(t *testing.T) {
	m := newTestMaster(t, depth2, lstore.NewMemStore())
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.ErrorIs(t, m.Update([]string{"k"}, tt.Noop, tt.NewCounter(0)), ErrClosed)
	_, err := m.Get([]string{"k"})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.AbsorbSync(&Sync{ID: 1}, "h")
	assert.ErrorIs(t, err, ErrClosed)
}
