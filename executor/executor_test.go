package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/contentsquare/reqengine/cache"
	"github.com/contentsquare/reqengine/config"
	"github.com/contentsquare/reqengine/interceptor"
	"github.com/contentsquare/reqengine/queue"
	"github.com/contentsquare/reqengine/request"
	"github.com/contentsquare/reqengine/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	body       []byte
	statusCode int
	err        error
	calls      int
}

func (s *stubAdapter) Send(ctx context.Context, opts transport.Options) (*transport.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &transport.Result{StatusCode: s.statusCode, Body: s.body, Headers: http.Header{}}, nil
}

func (s *stubAdapter) Download(ctx context.Context, opts transport.Options, savePath string, progress transport.ProgressFunc) (*transport.Result, error) {
	return &transport.Result{StatusCode: 200}, nil
}

type payload struct {
	Value string `json:"value"`
}

func parseJSON(body []byte, _ http.Header) (payload, error) {
	var p payload
	err := json.Unmarshal(body, &p)
	return p, err
}

func newTestExecutor(t *testing.T, adapter *stubAdapter) *Executor {
	t.Helper()
	var cacheCfg config.CacheConfig
	cacheCfg.EnableMemory = true
	cacheCfg.MaxMemoryBytes = config.ByteSize(1 << 20)
	cacheCfg.DefaultTTL = config.Duration(time.Hour)
	c, err := cache.NewStore(cacheCfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Dispose() })

	q := queue.New(queue.Config{MaxConcurrent: 4, ProcessingInterval: 5 * time.Millisecond}, nil)
	t.Cleanup(q.Stop)

	chain := interceptor.NewChain()

	return New("http://example.test", http.Header{}, c, q, chain, adapter, nil)
}

func TestExecuteMissThenHit(t *testing.T) {
	adapter := &stubAdapter{body: []byte(`{"value":"hi"}`), statusCode: 200}
	e := newTestExecutor(t, adapter)

	req := &request.Request[payload]{
		Method:  request.MethodGet,
		Path:    "/thing",
		Timeout: time.Second,
		Cache:   request.CachePolicy{Enabled: true, TTL: time.Minute},
		Parse:   parseJSON,
	}

	resp, err := Execute(context.Background(), e, req)
	require.NoError(t, err)
	assert.False(t, resp.FromCache)
	assert.Equal(t, "hi", resp.Data.Value)
	assert.Equal(t, 1, adapter.calls)

	resp2, err := Execute(context.Background(), e, req)
	require.NoError(t, err)
	assert.True(t, resp2.FromCache)
	assert.Equal(t, "hi", resp2.Data.Value)
	assert.Equal(t, 1, adapter.calls, "second call must be served from cache, not transport")
}

func TestExecutePropagatesTransportError(t *testing.T) {
	adapter := &stubAdapter{err: assertError("boom")}
	e := newTestExecutor(t, adapter)

	req := &request.Request[payload]{
		Method:  request.MethodGet,
		Path:    "/thing",
		Timeout: time.Second,
		Parse:   parseJSON,
	}

	_, err := Execute(context.Background(), e, req)
	assert.Error(t, err)
}

func TestExecuteBatchIndependentFailures(t *testing.T) {
	adapter := &stubAdapter{body: []byte(`{"value":"ok"}`), statusCode: 200}
	e := newTestExecutor(t, adapter)

	reqs := []*request.Request[payload]{
		{Method: request.MethodGet, Path: "/a", Timeout: time.Second, Parse: parseJSON},
		{Method: request.MethodGet, Path: "/b", Timeout: time.Second, Parse: parseJSON},
	}

	results := ExecuteBatch(context.Background(), e, reqs)
	require.Len(t, results, 2)
	for _, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, "ok", r.Response.Data.Value)
	}
}

type assertError string

func (e assertError) Error() string { return string(e) }
