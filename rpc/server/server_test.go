package server

import (
	"sync"
	"testing"

	"github.com/ValentinKolb/dStats/lib/statsdb"
	"github.com/ValentinKolb/dStats/lib/tree"
	"github.com/ValentinKolb/dStats/lib/values"
	"github.com/ValentinKolb/dStats/rpc/common"
	"github.com/ValentinKolb/dStats/rpc/serializer"
	"github.com/ValentinKolb/dStats/rpc/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopTransport registers the handler and returns from Listen immediately.
type loopTransport struct {
	mu      sync.Mutex
	handler transport.ServerHandleFunc
	closed  bool
}

func (l *loopTransport) RegisterHandler(h transport.ServerHandleFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = h
}

func (l *loopTransport) Listen(common.ServerConfig) error { return nil }

func (l *loopTransport) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

type testServer struct {
	*RPCServer
	ser serializer.IRPCSerializer
}

func newTestServer(t *testing.T, dataDir string, shards ...string) *testServer {
	t.Helper()
	cfg := common.ServerConfig{DataDir: dataDir, LogLevel: "error", SnapshotIntervalSecond: -1}
	for _, def := range shards {
		shard, err := common.ParseServerShard(def)
		require.NoError(t, err)
		cfg.Shards = append(cfg.Shards, shard)
	}
	ser := serializer.NewBinarySerializer()
	s := NewRPCServer(cfg, &loopTransport{}, ser, values.NewCodec())
	require.NoError(t, s.Serve())
	t.Cleanup(func() { s.Close() })
	return &testServer{RPCServer: s, ser: ser}
}

func (s *testServer) call(t *testing.T, shard uint64, req *common.Message) *common.Message {
	t.Helper()
	b, err := s.ser.Serialize(*req)
	require.NoError(t, err)
	var resp common.Message
	require.NoError(t, s.ser.Deserialize(s.handle(shard, b), &resp))
	return &resp
}

// apiSync builds the subtree api{hits:own} -> get{hits:leaf}.
func apiSync(t *testing.T, own, leaf int64) []byte {
	t.Helper()
	root := tree.NewNode()
	require.NoError(t, tree.Update(root, nil, values.Increment("hits", own), values.Factory(false)))
	require.NoError(t, tree.Update(root, []string{"get"}, values.Increment("hits", leaf), values.Factory(true)))
	b, err := values.NewCodec().EncodeNodes(map[string]*tree.Node{"api": root})
	require.NoError(t, err)
	return b
}

func getRollup(t *testing.T, s *testServer, shard uint64, path ...string) *values.Rollup {
	t.Helper()
	resp := s.call(t, shard, common.NewGetRequest(path))
	require.Empty(t, resp.Err)
	require.True(t, resp.Ok)
	v, err := values.NewCodec().DecodeValue(resp.Value)
	require.NoError(t, err)
	r, ok := v.(*values.Rollup)
	require.True(t, ok, "got %T", v)
	return r
}

func TestMasterAdapter(t *testing.T) {
	s := newTestServer(t, "", "1=service,endpoint")

	t.Run("GetSchema", func(t *testing.T) {
		resp := s.call(t, 1, common.NewGetSchemaRequest())
		assert.Empty(t, resp.Err)
		assert.Equal(t, []string{"service", "endpoint"}, resp.Path)
	})

	t.Run("Sync", func(t *testing.T) {
		resp := s.call(t, 1, common.NewSyncRequest("host-a", 1, apiSync(t, 1, 2)))
		require.Empty(t, resp.Err)
		assert.Equal(t, statsdb.AckApplied, statsdb.Ack(resp.Ack))

		resp = s.call(t, 1, common.NewSyncRequest("host-a", 1, apiSync(t, 1, 2)))
		assert.Equal(t, statsdb.AckAlreadyApplied, statsdb.Ack(resp.Ack))

		resp = s.call(t, 1, common.NewSyncRequest("", 2, apiSync(t, 1, 2)))
		assert.Equal(t, statsdb.AckRejected, statsdb.Ack(resp.Ack))

		resp = s.call(t, 1, common.NewSyncRequest("host-a", 3, []byte("garbage")))
		assert.Equal(t, statsdb.AckRejected, statsdb.Ack(resp.Ack))

		assert.Equal(t, int64(3), getRollup(t, s, 1, "api").Sum("hits"))
	})

	t.Run("Get", func(t *testing.T) {
		resp := s.call(t, 1, common.NewGetRequest([]string{"api", "get"}))
		require.True(t, resp.Ok)
		v, err := values.NewCodec().DecodeValue(resp.Value)
		require.NoError(t, err)
		assert.Equal(t, int64(2), v.(*values.Counters).Get("hits"))

		resp = s.call(t, 1, common.NewGetRequest([]string{"api", "post"}))
		assert.Empty(t, resp.Err)
		assert.False(t, resp.Ok)

		resp = s.call(t, 1, common.NewGetRequest([]string{"a", "b", "c"}))
		assert.NotEmpty(t, resp.Err)
		assert.False(t, resp.Ok)
	})

	t.Run("Children", func(t *testing.T) {
		resp := s.call(t, 1, common.NewChildrenRequest(nil))
		require.Empty(t, resp.Err)
		vs, err := values.NewCodec().DecodeValues(resp.Value)
		require.NoError(t, err)
		require.Len(t, vs, 1)
		assert.Equal(t, int64(2), vs[0].(*values.Counters).Get("hits"))

		resp = s.call(t, 1, common.NewChildrenRequest([]string{"api", "get"}))
		require.Empty(t, resp.Err)
		vs, err = values.NewCodec().DecodeValues(resp.Value)
		require.NoError(t, err)
		assert.Empty(t, vs)
	})

	t.Run("Errors", func(t *testing.T) {
		resp := s.call(t, 99, common.NewGetSchemaRequest())
		assert.Equal(t, common.MsgTError, resp.MsgType)
		assert.Contains(t, resp.Err, "shard 99 not found")

		var garbage common.Message
		require.NoError(t, s.ser.Deserialize(s.handle(1, []byte{1}), &garbage))
		assert.Equal(t, common.MsgTError, garbage.MsgType)

		resp = s.call(t, 1, &common.Message{MsgType: common.MsgTSuccess})
		assert.Equal(t, common.MsgTError, resp.MsgType)
	})
}

func TestServerShardStores(t *testing.T) {
	for _, store := range []string{"lstore", "bstore"} {
		t.Run(store, func(t *testing.T) {
			dir := t.TempDir()

			s := newTestServer(t, dir, "7=service,endpoint@"+store)
			resp := s.call(t, 7, common.NewSyncRequest("host-a", 10, apiSync(t, 1, 4)))
			require.Equal(t, statsdb.AckApplied, statsdb.Ack(resp.Ack))
			require.NoError(t, s.Close())

			s = newTestServer(t, dir, "7=service,endpoint@"+store)
			assert.Equal(t, int64(5), getRollup(t, s, 7, "api").Sum("hits"))

			// the ledger survived the restart as well
			resp = s.call(t, 7, common.NewSyncRequest("host-a", 10, apiSync(t, 1, 4)))
			assert.Equal(t, statsdb.AckAlreadyApplied, statsdb.Ack(resp.Ack))
		})
	}
}

func TestServerInitErrors(t *testing.T) {
	serve := func(dataDir string, shards ...common.ServerShard) error {
		cfg := common.ServerConfig{DataDir: dataDir, LogLevel: "error", Shards: shards}
		return NewRPCServer(cfg, &loopTransport{}, serializer.NewBinarySerializer(), values.NewCodec()).Serve()
	}
	shard := func(id uint64, store common.ShardStore, levels ...string) common.ServerShard {
		return common.ServerShard{ShardID: id, Levels: levels, Store: store}
	}

	assert.Error(t, serve("", shard(1, common.ShardStoreBolt, "a")), "bstore without data dir")
	assert.Error(t, serve("", shard(1, common.ShardStoreLocal)), "no levels")
	assert.Error(t, serve("", shard(1, common.ShardStoreLocal, "a"), shard(1, common.ShardStoreLocal, "b")), "duplicate id")
	assert.Error(t, serve("", shard(1, "nostore", "a")), "unknown store")
}

func TestServerCloseTwice(t *testing.T) {
	s := newTestServer(t, "", "1=a")
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
