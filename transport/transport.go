// Package transport implements the TransportAdapter collaborator contract
// from SPEC_FULL.md §4.8, built on net/http with a custom *http.Transport
// adapted from the teacher's newReverseProxy (proxy.go) dial/timeout
// tuning, generalized from a fixed reverse-proxy transport into a
// general-purpose HTTP client transport.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/contentsquare/reqengine/errs"
	"github.com/contentsquare/reqengine/request"
)

// ProgressFunc reports bytes transferred so far, and the total if known
// (0 if unknown).
type ProgressFunc func(transferred, total int64)

// Options describes one outgoing call, after the interceptor chain's
// request hooks have run (base URL joined, headers merged).
type Options struct {
	Method  request.Method
	URL     string
	Headers http.Header
	Body    []byte

	ConnectTimeout time.Duration
	SendTimeout    time.Duration
	ReceiveTimeout time.Duration
}

// Result is what the transport hands back to the Executor: either a body
// plus status, or a classified error.
type Result struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Adapter is the TransportAdapter contract from SPEC_FULL.md §4.8.
type Adapter interface {
	Send(ctx context.Context, opts Options) (*Result, error)
	Download(ctx context.Context, opts Options, savePath string, progress ProgressFunc) (*Result, error)
}

// HTTPAdapter is the default Adapter, grounded on the teacher's
// newReverseProxy transport tuning (proxy.go).
type HTTPAdapter struct {
	client *http.Client
}

// NewHTTPAdapter builds an HTTPAdapter with connection pooling tuned the
// way the teacher's reverseProxy transport is tuned.
func NewHTTPAdapter(maxIdleConns, maxIdleConnsPerHost int) *HTTPAdapter {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}
			return dialer.DialContext(ctx, network, addr)
		},
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          maxIdleConns,
		MaxIdleConnsPerHost:   maxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &HTTPAdapter{client: &http.Client{Transport: transport}}
}

// Send issues opts and returns the full response body, classifying any
// transport-level failure into the errs taxonomy per SPEC_FULL.md §4.8.
func (a *HTTPAdapter) Send(ctx context.Context, opts Options) (*Result, error) {
	if opts.ReceiveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.ReceiveTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, string(opts.Method), opts.URL, bytes.NewReader(opts.Body))
	if err != nil {
		return nil, errs.Classify(errs.ClassParseFailure, 0, err)
	}
	req.Header = opts.Headers

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, classifyDoErr(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Classify(errs.ClassReceiveTimeout, 0, err)
	}

	if resp.StatusCode >= 400 {
		return nil, errs.Classify(errs.ClassNone, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	return &Result{StatusCode: resp.StatusCode, Headers: resp.Header, Body: body}, nil
}

// Download streams opts' response body to savePath, reporting progress if
// given, writing to a temp file then renaming on completion so a partial
// download never appears as a finished file.
func (a *HTTPAdapter) Download(ctx context.Context, opts Options, savePath string, progress ProgressFunc) (*Result, error) {
	if opts.ReceiveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.ReceiveTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, string(opts.Method), opts.URL, nil)
	if err != nil {
		return nil, errs.Classify(errs.ClassParseFailure, 0, err)
	}
	req.Header = opts.Headers

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, classifyDoErr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, errs.Classify(errs.ClassNone, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	if err := os.MkdirAll(filepath.Dir(savePath), 0o755); err != nil {
		return nil, errs.Wrap(errs.Data, errs.CodeDataCorrupted, "cannot create download directory", err)
	}

	tmp := savePath + ".download"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, errs.Wrap(errs.Data, errs.CodeDataCorrupted, "cannot create temp download file", err)
	}

	total := resp.ContentLength
	var transferred int64
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				f.Close()
				os.Remove(tmp)
				return nil, errs.Wrap(errs.Data, errs.CodeDataCorrupted, "write failed during download", writeErr)
			}
			transferred += int64(n)
			if progress != nil {
				progress(transferred, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			f.Close()
			os.Remove(tmp)
			return nil, errs.Classify(errs.ClassReceiveTimeout, 0, readErr)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return nil, errs.Wrap(errs.Data, errs.CodeDataCorrupted, "cannot finalize download", err)
	}
	if err := os.Rename(tmp, savePath); err != nil {
		os.Remove(tmp)
		return nil, errs.Wrap(errs.Data, errs.CodeDataCorrupted, "cannot finalize download", err)
	}

	return &Result{StatusCode: resp.StatusCode, Headers: resp.Header}, nil
}

func classifyDoErr(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errs.Classify(errs.ClassReceiveTimeout, 0, err)
	}
	if ctx.Err() == context.Canceled {
		return errs.Classify(errs.ClassCancelled, 0, err)
	}
	if urlErr, ok := err.(*url.Error); ok {
		if urlErr.Timeout() {
			return errs.Classify(errs.ClassConnectTimeout, 0, err)
		}
		if strings.Contains(urlErr.Err.Error(), "no such host") {
			return errs.Classify(errs.ClassDNSFailure, 0, err)
		}
	}
	return errs.Classify(errs.ClassConnectionError, 0, err)
}
