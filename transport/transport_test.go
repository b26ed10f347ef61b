package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/contentsquare/reqengine/errs"
	"github.com/contentsquare/reqengine/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPAdapterSendSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	}))
	defer srv.Close()

	a := NewHTTPAdapter(10, 10)
	result, err := a.Send(context.Background(), Options{Method: request.MethodGet, URL: srv.URL, Headers: http.Header{}, ReceiveTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "pong", string(result.Body))
}

func TestHTTPAdapterSendClassifiesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewHTTPAdapter(10, 10)
	_, err := a.Send(context.Background(), Options{Method: request.MethodGet, URL: srv.URL, Headers: http.Header{}, ReceiveTimeout: time.Second})
	require.Error(t, err)
	e, ok := err.(*errs.Error)
	require.True(t, ok)
	assert.Equal(t, errs.Server, e.Category)
}

func TestHTTPAdapterDownloadWritesFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("file-contents"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	savePath := filepath.Join(dir, "nested", "out.bin")

	var lastTransferred int64
	a := NewHTTPAdapter(10, 10)
	_, err := a.Download(context.Background(), Options{Method: request.MethodGet, URL: srv.URL, Headers: http.Header{}, ReceiveTimeout: time.Second}, savePath,
		func(transferred, total int64) { lastTransferred = transferred })
	require.NoError(t, err)

	data, err := os.ReadFile(savePath)
	require.NoError(t, err)
	assert.Equal(t, "file-contents", string(data))
	assert.Equal(t, int64(len("file-contents")), lastTransferred)
}

func TestHTTPHealthCheckHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hc := NewHTTPHealthCheck("/ping", time.Second, time.Minute)
	assert.NoError(t, hc.IsHealthy(context.Background(), srv.URL))
}

func TestHTTPHealthCheckUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	hc := NewHTTPHealthCheck("/ping", time.Second, time.Minute)
	assert.Error(t, hc.IsHealthy(context.Background(), srv.URL))
}
