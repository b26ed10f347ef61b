package interceptor

import (
	"context"
	"sync"

	"github.com/contentsquare/reqengine/errs"
	"github.com/contentsquare/reqengine/log"
)

// LoggingInterceptor logs request/response/error hooks through the
// engine's Logger, grounded on log/log.go's context-aware level methods.
type LoggingInterceptor struct {
	mu       sync.Mutex
	name     string
	priority int
	logger   log.Logger
}

// NewLoggingInterceptor builds a LoggingInterceptor at the given priority.
func NewLoggingInterceptor(priority int, logger log.Logger) *LoggingInterceptor {
	if logger == nil {
		logger = log.Nop
	}
	return &LoggingInterceptor{name: "logging", priority: priority, logger: logger}
}

func (l *LoggingInterceptor) Name() string { return l.name }
func (l *LoggingInterceptor) Priority() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.priority
}
func (l *LoggingInterceptor) SetPriority(p int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.priority = p
}

func (l *LoggingInterceptor) OnRequest(rc *RequestContext) (bool, interface{}, error) {
	l.logger.Infof(rc.Ctx, "request: %s %s", rc.Method, rc.Path)
	return false, nil, nil
}

func (l *LoggingInterceptor) OnResponse(resp interface{}) interface{} {
	l.logger.Debugf(context.Background(), "response: %+v", resp)
	return resp
}

func (l *LoggingInterceptor) OnError(err error) (interface{}, bool) {
	l.logger.Warnf(context.Background(), "request error: %s", err)
	return nil, false
}

// HeaderInjectionInterceptor adds a fixed set of headers to every outgoing
// request, grounded on middleware/proxy_middleware.go's header-rewriting
// style (there applied to X-Forwarded-For/X-Real-Ip; here generalized to
// an arbitrary static header set).
type HeaderInjectionInterceptor struct {
	mu       sync.Mutex
	name     string
	priority int
	headers  map[string]string
}

// NewHeaderInjectionInterceptor builds an interceptor that injects headers
// into every request passing through onRequest.
func NewHeaderInjectionInterceptor(priority int, headers map[string]string) *HeaderInjectionInterceptor {
	return &HeaderInjectionInterceptor{name: "header-injection", priority: priority, headers: headers}
}

func (h *HeaderInjectionInterceptor) Name() string { return h.name }
func (h *HeaderInjectionInterceptor) Priority() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.priority
}
func (h *HeaderInjectionInterceptor) SetPriority(p int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.priority = p
}

func (h *HeaderInjectionInterceptor) OnRequest(rc *RequestContext) (bool, interface{}, error) {
	if rc.Headers == nil {
		rc.Headers = make(map[string][]string)
	}
	for k, v := range h.headers {
		rc.Headers[k] = []string{v}
	}
	return false, nil, nil
}

func (h *HeaderInjectionInterceptor) OnResponse(resp interface{}) interface{} { return resp }
func (h *HeaderInjectionInterceptor) OnError(error) (interface{}, bool)      { return nil, false }

// RetryDecisionInterceptor consults errs.Error.IsRetryable to annotate
// errors as it observes them; it never itself recovers a response, only
// records the decision for the Queue's retry path to read via
// LastWasRetryable.
type RetryDecisionInterceptor struct {
	mu             sync.Mutex
	name           string
	priority       int
	lastRetryable  bool
}

// NewRetryDecisionInterceptor builds a RetryDecisionInterceptor.
func NewRetryDecisionInterceptor(priority int) *RetryDecisionInterceptor {
	return &RetryDecisionInterceptor{name: "retry-decision", priority: priority}
}

func (r *RetryDecisionInterceptor) Name() string { return r.name }
func (r *RetryDecisionInterceptor) Priority() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.priority
}
func (r *RetryDecisionInterceptor) SetPriority(p int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.priority = p
}

func (r *RetryDecisionInterceptor) OnRequest(*RequestContext) (bool, interface{}, error) {
	return false, nil, nil
}
func (r *RetryDecisionInterceptor) OnResponse(resp interface{}) interface{} { return resp }

func (r *RetryDecisionInterceptor) OnError(err error) (interface{}, bool) {
	retryable := false
	if e, ok := err.(*errs.Error); ok {
		retryable = e.IsRetryable()
	}
	r.mu.Lock()
	r.lastRetryable = retryable
	r.mu.Unlock()
	return nil, false
}

// LastWasRetryable reports whether the most recently observed error was
// classified as retryable.
func (r *RetryDecisionInterceptor) LastWasRetryable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRetryable
}
