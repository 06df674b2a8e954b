package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ValentinKolb/dStats/rpc/common"
	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	transport := NewHttpServerTransport()
	transport.RegisterHandler(func(shardId uint64, req []byte) []byte {
		return append([]byte(strings.Repeat("x", int(shardId))), req...)
	})
	srv := httptest.NewServer(transport.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestHttpTransport(t *testing.T) {
	srv := newTestServer(t)

	cfg := common.ClientConfig{TimeoutSecond: 5}
	cfg.Transport.Endpoints = []string{srv.URL}
	client := NewHttpClientTransport()
	require.NoError(t, client.Connect(cfg))
	defer client.Close()

	resp, err := client.Send(2, []byte("ab"))
	require.NoError(t, err)
	assert.Equal(t, "xxab", string(resp))
}

func TestHttpRetryNextEndpoint(t *testing.T) {
	srv := newTestServer(t)

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	cfg := common.ClientConfig{TimeoutSecond: 5}
	cfg.Transport.Endpoints = []string{deadURL, srv.URL}
	cfg.Transport.RetryCount = 2
	client := NewHttpClientTransport()
	require.NoError(t, client.Connect(cfg))
	defer client.Close()

	// with two endpoints and two attempts every request reaches the live one
	for i := 0; i < 4; i++ {
		resp, err := client.Send(0, []byte("ok"))
		require.NoError(t, err)
		assert.Equal(t, "ok", string(resp))
	}
}

func TestHttpServerRoutes(t *testing.T) {
	srv := newTestServer(t)
	metrics.GetOrCreateCounter(`dstats_http_test_total`).Inc()

	t.Run("InvalidShard", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/abc", "application/octet-stream", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Metrics", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), "dstats_http_test_total 1")
	})

	t.Run("NotConnected", func(t *testing.T) {
		_, err := NewHttpClientTransport().Send(1, nil)
		assert.Error(t, err)
	})
}
