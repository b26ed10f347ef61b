// Package interceptor implements the InterceptorChain from SPEC_FULL.md
// §4.4: an ordered, priority-sorted collection of request/response/error
// hooks, adapted in style from the teacher's middleware.ProxyMiddleware
// chain-of-handlers approach (middleware/proxy_middleware.go), generalized
// from a single fixed HTTP middleware into a dynamically reorderable chain.
package interceptor

import (
	"context"

	"github.com/contentsquare/reqengine/request"
)

// Outcome is what an interceptor hook decided to do, mirroring the "reqOpts
// | short-circuited response" and "err | resp" shapes from SPEC_FULL.md
// §4.4. Only one of the fields is meaningful per hook kind.
type Outcome struct {
	// ShortCircuit, when true, stops the chain and the Response field
	// becomes the final result.
	ShortCircuit bool
	Response     interface{}
	Err          error
}

// RequestContext is the mutable request state passed through onRequest
// hooks. Headers/Query are mutated in place; interceptors may replace Body.
type RequestContext struct {
	Ctx     context.Context
	Method  request.Method
	Path    string
	Headers map[string][]string
	Query   map[string]string
	Body    []byte
}

// Interceptor is a named, prioritized hook set. Smaller Priority runs first
// for onRequest/onError; onResponse runs in the mirrored (descending)
// order, per SPEC_FULL.md §4.4.
type Interceptor interface {
	Name() string
	Priority() int

	// OnRequest may mutate rc in place, or set short-circuit to return a
	// response without calling the transport.
	OnRequest(rc *RequestContext) (shortCircuit bool, response interface{}, err error)
	// OnResponse may transform resp before it reaches the caller.
	OnResponse(resp interface{}) interface{}
	// OnError may convert err into a recovery response.
	OnError(err error) (recovered interface{}, ok bool)
}

// BaseInterceptor gives Interceptor implementations no-op hooks to embed,
// so a concrete type only needs to override the hooks it cares about.
type BaseInterceptor struct {
	NameValue     string
	PriorityValue int
}

func (b BaseInterceptor) Name() string  { return b.NameValue }
func (b BaseInterceptor) Priority() int { return b.PriorityValue }
func (BaseInterceptor) OnRequest(*RequestContext) (bool, interface{}, error) {
	return false, nil, nil
}
func (BaseInterceptor) OnResponse(resp interface{}) interface{} { return resp }
func (BaseInterceptor) OnError(error) (interface{}, bool)       { return nil, false }
