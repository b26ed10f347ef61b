// Package executor implements the Executor from SPEC_FULL.md §4.6: it
// binds cache lookup, deduplication, queue submission, transport
// invocation, parsing, and cache population into the single control flow
// described in spec.md §2 — grounded in style on the teacher's scope.go
// (one lifecycle-tracked struct per in-flight call, atomically ID'd).
//
// Go has no generic methods, so Execute/ExecuteBatch/ExecuteConcurrent are
// package-level generic functions taking *Executor as their first
// argument rather than methods on a generic Executor type.
package executor

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/contentsquare/reqengine/cache"
	"github.com/contentsquare/reqengine/errs"
	"github.com/contentsquare/reqengine/interceptor"
	"github.com/contentsquare/reqengine/log"
	"github.com/contentsquare/reqengine/queue"
	"github.com/contentsquare/reqengine/request"
	"github.com/contentsquare/reqengine/transport"
)

// Executor wires together the engine's collaborators: Cache, Queue,
// InterceptorChain, and TransportAdapter.
type Executor struct {
	BaseURL        string
	DefaultHeaders http.Header

	Cache     *cache.Store
	Queue     *queue.Queue
	Chain     *interceptor.Chain
	Transport transport.Adapter
	Logger    log.Logger

	DefaultTimeout time.Duration
}

// lifecycle tracks the timestamps described in SPEC_FULL.md §4.6: start,
// firstBytes, parseComplete, complete. A response already delivered by the
// transport is never re-labelled as a timeout even if the overall deadline
// fires after parse, because completion is recorded exactly once by the
// queue's completion flag, not by this tracker.
type lifecycle struct {
	start         time.Time
	firstBytes    time.Time
	parseComplete time.Time
	complete      time.Time
}

// New builds an Executor.
func New(baseURL string, defaultHeaders http.Header, c *cache.Store, q *queue.Queue, chain *interceptor.Chain, t transport.Adapter, logger log.Logger) *Executor {
	if logger == nil {
		logger = log.Nop
	}
	return &Executor{
		BaseURL:        baseURL,
		DefaultHeaders: defaultHeaders,
		Cache:          c,
		Queue:          q,
		Chain:          chain,
		Transport:      t,
		Logger:         logger,
		DefaultTimeout: 30 * time.Second,
	}
}

func (e *Executor) joinURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	base := strings.TrimRight(e.BaseURL, "/")
	return base + "/" + strings.TrimLeft(path, "/")
}

func (e *Executor) mergedHeaders(reqHeaders http.Header) http.Header {
	merged := make(http.Header, len(e.DefaultHeaders)+len(reqHeaders))
	for k, v := range e.DefaultHeaders {
		merged[k] = append([]string(nil), v...)
	}
	for k, v := range reqHeaders {
		merged[k] = append([]string(nil), v...) // per-request headers last-wins
	}
	return merged
}

func (e *Executor) timeoutFor(requested time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	return e.DefaultTimeout
}

func withQuery(base string, query map[string]string) string {
	if len(query) == 0 {
		return base
	}
	u := base
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	first := true
	for k, v := range query {
		if first {
			u += sep
			first = false
		} else {
			u += "&"
		}
		u += k + "=" + v
	}
	return u
}

// Execute runs req through the full pipeline: cache check, dedup, queue,
// transport, parse, cache write. Cache lookup, dedup, and queue submission
// happen in that order; a cache hit issues no transport call and invokes
// no interceptor, per SPEC_FULL.md §4.6's invariants.
func Execute[T any](ctx context.Context, e *Executor, req *request.Request[T]) (*request.Response[T], error) {
	lc := lifecycle{start: time.Now()}
	if req.Context != nil {
		ctx = req.Context
	}
	if req.ID == "" {
		req.ID = req.Key()
	}

	cacheKey := req.CacheKey()

	if req.Cache.Enabled && e.Cache != nil {
		if entry, err := e.Cache.Get(cacheKey); err == nil {
			return cacheHitResponse(entry, req, lc)
		}
	}

	rc := &interceptor.RequestContext{
		Ctx:     ctx,
		Method:  req.Method,
		Path:    e.joinURL(req.Path),
		Headers: map[string][]string(e.mergedHeaders(req.Headers)),
		Query:   req.Query,
		Body:    req.Body,
	}
	if e.Chain != nil {
		sc, shortResp, err := e.Chain.RunRequest(rc)
		if err != nil {
			return nil, err
		}
		if sc {
			return shortCircuitResponse[T](shortResp, lc), nil
		}
	}

	opts := transport.Options{
		Method:  req.Method,
		URL:     withQuery(rc.Path, req.Query),
		Headers: http.Header(rc.Headers),
		Body:    rc.Body,
	}

	item := &queue.Item{
		ID:         req.ID,
		Method:     req.Method,
		Priority:   req.Priority,
		Timeout:    e.timeoutFor(req.Timeout),
		MaxRetries: req.Retry.MaxRetries,
	}
	if req.Dedup {
		item.DedupKey = req.Key()
	}

	item.Task = func() (interface{}, error) {
		if req.SavePath != "" {
			return e.Transport.Download(ctx, opts, req.SavePath, req.Progress)
		}
		return e.Transport.Send(ctx, opts)
	}

	resultCh := e.Queue.Enqueue(item)
	result := <-resultCh

	if result.Err != nil {
		e.Logger.Errorf(ctx, "request %s failed: %s", req.ID, result.Err)
		if e.Chain != nil {
			if recovered, ok := e.Chain.RunError(result.Err); ok {
				return shortCircuitResponse[T](recovered, lc), nil
			}
		}
		return nil, result.Err
	}

	transportResult, ok := result.Value.(*transport.Result)
	if !ok {
		return nil, errs.New(errs.Unknown, errs.CodeUnknownError, "unexpected transport result type")
	}
	lc.firstBytes = time.Now()

	if req.SavePath != "" {
		lc.complete = time.Now()
		var data T
		resp := &request.Response[T]{
			Success:    true,
			Data:       data,
			StatusCode: transportResult.StatusCode,
			Headers:    transportResult.Headers,
			Message:    req.SavePath,
			Timestamp:  time.Now(),
			DurationMs: time.Since(lc.start).Milliseconds(),
		}
		return resp, nil
	}

	var data T
	if req.Parse != nil {
		parsed, err := req.Parse(transportResult.Body, transportResult.Headers)
		if err != nil {
			parseErr := errs.Wrap(errs.Data, errs.CodeParseError, "failed to parse response body", err)
			if e.Chain != nil {
				if recovered, ok := e.Chain.RunError(parseErr); ok {
					return shortCircuitResponse[T](recovered, lc), nil
				}
			}
			return nil, parseErr
		}
		data = parsed
	}
	lc.parseComplete = time.Now()

	resp := &request.Response[T]{
		Success:    true,
		Data:       data,
		StatusCode: transportResult.StatusCode,
		Headers:    transportResult.Headers,
		Timestamp:  time.Now(),
		DurationMs: time.Since(lc.start).Milliseconds(),
	}

	if e.Chain != nil {
		if mutated, ok := e.Chain.RunResponse(resp).(*request.Response[T]); ok {
			resp = mutated
		}
	}

	if req.Cache.Enabled && e.Cache != nil {
		ttl := req.Cache.TTL
		if ttl <= 0 {
			ttl = time.Hour
		}
		_ = e.Cache.Set(cacheKey, transportResult.Body, ttl, req.Cache.Priority, req.Cache.Tags)
	}

	lc.complete = time.Now()
	return resp, nil
}

func cacheHitResponse[T any](entry *cache.Entry, req *request.Request[T], lc lifecycle) (*request.Response[T], error) {
	var data T
	if req.Parse != nil {
		parsed, err := req.Parse(entry.Payload, nil)
		if err != nil {
			return nil, errs.Wrap(errs.Data, errs.CodeParseError, "failed to parse cached payload", err)
		}
		data = parsed
	}
	return &request.Response[T]{
		Success:    true,
		Data:       data,
		StatusCode: http.StatusOK,
		Timestamp:  time.Now(),
		DurationMs: time.Since(lc.start).Milliseconds(),
		FromCache:  true,
	}, nil
}

func shortCircuitResponse[T any](value interface{}, lc lifecycle) *request.Response[T] {
	if resp, ok := value.(*request.Response[T]); ok {
		return resp
	}
	var data T
	if v, ok := value.(T); ok {
		data = v
	}
	return &request.Response[T]{
		Success:    true,
		Data:       data,
		Timestamp:  time.Now(),
		DurationMs: time.Since(lc.start).Milliseconds(),
	}
}

// Cancel cancels the in-flight or pending request identified by id.
func (e *Executor) Cancel(id string) {
	e.Queue.Cancel(id)
}
