// Package queue implements the RequestQueue from SPEC_FULL.md §4.5: four
// priority FIFO sub-queues feeding a bounded "executing" set, with
// deduplication, retry, timeout, and exactly-once completion semantics.
// Structurally grounded on the teacher's scope.go (one id per in-flight
// unit of work, atomically allocated) and internal/counter.Counter (the
// executing-set size accounting).
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/contentsquare/reqengine/cache"
	"github.com/contentsquare/reqengine/errs"
	"github.com/contentsquare/reqengine/internal/counter"
	"github.com/contentsquare/reqengine/request"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Task is the unit of work a QueuedRequest wraps: a thunk returning a
// result or an error, matching the "thunk (() -> transport result)" field
// from SPEC_FULL.md §3.
type Task func() (interface{}, error)

// Result is delivered exactly once to a QueuedRequest's completion slot.
type Result struct {
	Value interface{}
	Err   error
}

// Item describes one unit of work submitted to the Queue.
type Item struct {
	ID         string
	Method     request.Method
	DedupKey   string
	Priority   request.Priority
	Timeout    time.Duration
	MaxRetries int
	Task       Task

	enqueuedAt time.Time
	retryCount int
	resultCh   chan Result
}

type pendingItem struct {
	item *Item
	dups []*Item
}

// Queue is the RequestQueue from SPEC_FULL.md §4.5.
type Queue struct {
	maxConcurrent      int
	processingInterval time.Duration
	maxQueueTime       time.Duration
	retryBaseDelay     time.Duration
	exponentialBackoff bool

	dedup cache.TransactionRegistry

	limiter *rate.Limiter

	// queueMu guards the sub-queues and the dedup map, per the two
	// fine-grained locks described in SPEC_FULL.md §5.
	queueMu    sync.Mutex
	subqueues  [4][]*Item
	dedupIndex map[string]*pendingItem
	paused     bool

	// execMu guards the executing set and completion flags.
	execMu      sync.Mutex
	executing   map[string]struct{}
	completed   map[string]*atomic.Bool
	cancels     map[string]chan struct{}
	resultChans map[string]chan Result

	executingCount counter.Counter

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	stats Stats
}

// Stats are the queue counters aggregated by the Metrics package, per
// SPEC_FULL.md §4.7.
type Stats struct {
	Enqueued  atomic.Uint64
	Executed  atomic.Uint64
	Succeeded atomic.Uint64
	Failed    atomic.Uint64
	TimedOut  atomic.Uint64
	Retried   atomic.Uint64
	Duplicate atomic.Uint64

	totalExecNs atomic.Int64
}

// Snapshot is an immutable copy of Stats for publishing.
type Snapshot struct {
	Enqueued, Executed, Succeeded, Failed, TimedOut, Retried, Duplicate uint64
	AvgExecutionMs                                                     float64
	SuccessRate                                                        float64
}

// Config configures a new Queue.
type Config struct {
	MaxConcurrent      int
	ProcessingInterval time.Duration
	MaxQueueTime       time.Duration
	RetryBaseDelay     time.Duration
	ExponentialBackoff bool
	// RatePerSecond, if > 0, paces dequeues via a token bucket, per
	// SPEC_FULL.md §4.5's optional pacing extension. One limiter is
	// shared by all priority tiers.
	RatePerSecond float64
}

// New builds a Queue with the given dedup registry collaborator.
func New(cfg Config, dedup cache.TransactionRegistry) *Queue {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if cfg.ProcessingInterval <= 0 {
		cfg.ProcessingInterval = 50 * time.Millisecond
	}

	q := &Queue{
		maxConcurrent:      cfg.MaxConcurrent,
		processingInterval: cfg.ProcessingInterval,
		maxQueueTime:       cfg.MaxQueueTime,
		retryBaseDelay:     cfg.RetryBaseDelay,
		exponentialBackoff: cfg.ExponentialBackoff,
		dedup:              dedup,
		dedupIndex:         make(map[string]*pendingItem),
		executing:          make(map[string]struct{}),
		completed:          make(map[string]*atomic.Bool),
		cancels:            make(map[string]chan struct{}),
		resultChans:        make(map[string]chan Result),
		stopCh:             make(chan struct{}),
	}
	if cfg.RatePerSecond > 0 {
		q.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), int(cfg.RatePerSecond)+1)
	}

	q.wg.Add(1)
	go q.processingLoop()
	return q
}

// Enqueue submits item, assigning an id if unset, and returns a channel
// that receives the eventual Result exactly once. If dedup is enabled via
// a non-empty DedupKey and a matching request is in-flight or pending, the
// new item is attached as a duplicate sharing that request's outcome.
func (q *Queue) Enqueue(item *Item) <-chan Result {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.enqueuedAt = time.Now()
	item.resultCh = make(chan Result, 1)

	q.stats.Enqueued.Add(1)

	// Every dispatched id needs its completion slot tracked here, not just
	// deduplicated ones: dedupIndex only ever holds requests with a non-empty
	// DedupKey, but completeOnce must be able to deliver to any id.
	q.execMu.Lock()
	q.resultChans[item.ID] = item.resultCh
	q.execMu.Unlock()

	q.queueMu.Lock()
	if item.DedupKey != "" {
		if existing, ok := q.dedupIndex[item.DedupKey]; ok {
			existing.dups = append(existing.dups, item)
			q.stats.Duplicate.Add(1)
			q.queueMu.Unlock()
			return item.resultCh
		}
	}

	// Registered on the TransactionRegistry so any other holder of the same
	// registry instance sees this key as in-flight until completeOnce
	// unregisters it. cache.Store itself does not consult the registry.
	if item.DedupKey != "" && q.dedup != nil {
		q.dedup.Register(item.DedupKey)
	}

	pi := &pendingItem{item: item}
	if item.DedupKey != "" {
		q.dedupIndex[item.DedupKey] = pi
	}
	q.subqueues[item.Priority.Ordinal()] = append(q.subqueues[item.Priority.Ordinal()], item)
	q.queueMu.Unlock()

	q.drain()
	return item.resultCh
}

// Cancel removes id from pending state, or signals its cancellation
// channel if it is executing. The completion flip still guarantees
// exactly-once delivery.
func (q *Queue) Cancel(id string) {
	q.queueMu.Lock()
	for p := 0; p < 4; p++ {
		for idx, it := range q.subqueues[p] {
			if it.ID == id {
				q.subqueues[p] = append(q.subqueues[p][:idx], q.subqueues[p][idx+1:]...)
				q.queueMu.Unlock()
				q.completeOnce(id, Result{Err: errs.Cancelled("request cancelled")})
				return
			}
		}
	}
	q.queueMu.Unlock()

	q.execMu.Lock()
	cancelCh, ok := q.cancels[id]
	q.execMu.Unlock()
	if ok {
		close(cancelCh)
	}
}

// Pause stops the processing tick from draining new work; in-flight
// executions are allowed to finish.
func (q *Queue) Pause() {
	q.queueMu.Lock()
	q.paused = true
	q.queueMu.Unlock()
}

// Resume re-enables draining.
func (q *Queue) Resume() {
	q.queueMu.Lock()
	q.paused = false
	q.queueMu.Unlock()
	q.drain()
}

// Clear fails every pending request (optionally restricted to priority)
// with a cancellation error and clears the dedup map.
func (q *Queue) Clear(priority *request.Priority) {
	q.queueMu.Lock()
	var toFail []*Item
	for p := 0; p < 4; p++ {
		if priority != nil && p != priority.Ordinal() {
			continue
		}
		toFail = append(toFail, q.subqueues[p]...)
		q.subqueues[p] = nil
	}
	if priority == nil {
		q.dedupIndex = make(map[string]*pendingItem)
	} else {
		for k, pi := range q.dedupIndex {
			if pi.item.Priority == *priority {
				delete(q.dedupIndex, k)
			}
		}
	}
	q.queueMu.Unlock()

	cancelErr := errs.Cancelled("queue cleared")
	for _, it := range toFail {
		q.completeOnce(it.ID, Result{Err: cancelErr})
	}
}

// Stop halts the processing loop. Idempotent.
func (q *Queue) Stop() {
	q.once.Do(func() { close(q.stopCh) })
	q.wg.Wait()
}

func (q *Queue) processingLoop() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.processingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			q.drain()
		case <-q.stopCh:
			return
		}
	}
}

// drain dispatches pending items top-down by priority until maxConcurrent
// is reached, dropping items whose queue time has been exceeded.
func (q *Queue) drain() {
	for {
		q.queueMu.Lock()
		if q.paused {
			q.queueMu.Unlock()
			return
		}
		if int(q.executingCount.Load()) >= q.maxConcurrent {
			q.queueMu.Unlock()
			return
		}

		item := q.popNextLocked()
		q.queueMu.Unlock()
		if item == nil {
			return
		}

		if q.maxQueueTime > 0 && time.Since(item.enqueuedAt) > q.maxQueueTime {
			q.completeOnce(item.ID, Result{Err: errs.Cancelled("request expired while queued")})
			continue
		}

		if q.limiter != nil {
			_ = q.limiter.Wait(context.Background())
		}

		q.dispatch(item)
	}
}

func (q *Queue) popNextLocked() *Item {
	for p := 0; p < 4; p++ {
		if len(q.subqueues[p]) > 0 {
			item := q.subqueues[p][0]
			q.subqueues[p] = q.subqueues[p][1:]
			return item
		}
	}
	return nil
}

func (q *Queue) dispatch(item *Item) {
	q.execMu.Lock()
	q.executing[item.ID] = struct{}{}
	q.completed[item.ID] = &atomic.Bool{}
	cancelCh := make(chan struct{})
	q.cancels[item.ID] = cancelCh
	q.execMu.Unlock()
	q.executingCount.Inc()
	q.stats.Executed.Add(1)

	q.wg.Add(1)
	go q.run(item, cancelCh)
}

func (q *Queue) run(item *Item, cancelCh chan struct{}) {
	defer q.wg.Done()
	start := time.Now()

	done := make(chan Result, 1)
	go func() {
		v, err := item.Task()
		done <- Result{Value: v, Err: err}
	}()

	timer := time.NewTimer(item.Timeout)
	defer timer.Stop()

	var result Result
	select {
	case result = <-done:
	case <-timer.C:
		result = Result{Err: errs.Timeout("request timed out")}
		q.stats.TimedOut.Add(1)
	case <-cancelCh:
		result = Result{Err: errs.Cancelled("request cancelled")}
	}

	q.stats.totalExecNs.Add(time.Since(start).Nanoseconds())

	if result.Err != nil && q.shouldRetry(item, result.Err) {
		q.retry(item)
		q.finishExecuting(item.ID)
		return
	}

	if result.Err != nil {
		q.stats.Failed.Add(1)
	} else {
		q.stats.Succeeded.Add(1)
	}

	q.finishExecuting(item.ID)
	q.completeOnce(item.ID, result)
}

// shouldRetry implements the retryability + idempotency filter from
// SPEC_FULL.md §4.5: non-idempotent methods are only retried when the
// error indicates the request never reached the server.
func (q *Queue) shouldRetry(item *Item, err error) bool {
	if item.retryCount >= item.MaxRetries {
		return false
	}
	e, ok := err.(*errs.Error)
	if !ok || !e.IsRetryable() {
		return false
	}
	if item.Method.Idempotent() {
		return true
	}
	return e.Code == errs.CodeConnectTimeout || e.Code == errs.CodeConnectionError
}

func (q *Queue) retry(item *Item) {
	item.retryCount++
	q.stats.Retried.Add(1)
	delay := retryDelay(item.retryCount, q.retryBaseDelay, q.exponentialBackoff)
	time.AfterFunc(delay, func() {
		q.queueMu.Lock()
		q.subqueues[item.Priority.Ordinal()] = append(q.subqueues[item.Priority.Ordinal()], item)
		q.queueMu.Unlock()
		q.drain()
	})
}

func retryDelay(attempt int, base time.Duration, exponential bool) time.Duration {
	if !exponential {
		return base
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	const maxDelay = 30 * time.Second
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

func (q *Queue) finishExecuting(id string) {
	q.execMu.Lock()
	delete(q.executing, id)
	delete(q.cancels, id)
	q.execMu.Unlock()
	q.executingCount.Dec()
}

// completeOnce atomically flips the completed flag for id and, if this
// caller won the flip, delivers result to id's own completion slot and
// every duplicate attached to it via dedupIndex, then cleans the dedup
// entry. Implements the five-step completion path from SPEC_FULL.md §4.5.
//
// id's slot is looked up in resultChans, which holds every dispatched
// item regardless of whether it carries a DedupKey: dedupIndex only ever
// holds requests that opted into deduplication, so scanning it alone
// would silently drop delivery for every non-dedup request.
func (q *Queue) completeOnce(id string, result Result) {
	q.execMu.Lock()
	flag, ok := q.completed[id]
	if !ok {
		flag = &atomic.Bool{}
		q.completed[id] = flag
	}
	won := flag.CompareAndSwap(false, true)
	var primaryCh chan Result
	if won {
		primaryCh = q.resultChans[id]
		delete(q.resultChans, id)
	}
	q.execMu.Unlock()

	if !won {
		return
	}

	q.queueMu.Lock()
	var dupTargets []*Item
	var dedupKey string
	for k, pi := range q.dedupIndex {
		if pi.item.ID == id {
			dedupKey = k
			dupTargets = pi.dups
			delete(q.dedupIndex, k)
			break
		}
	}
	q.queueMu.Unlock()

	if dedupKey != "" && q.dedup != nil {
		q.dedup.Unregister(dedupKey)
	}

	if primaryCh != nil {
		primaryCh <- result
	}
	if len(dupTargets) > 0 {
		q.execMu.Lock()
		for _, dup := range dupTargets {
			delete(q.resultChans, dup.ID)
		}
		q.execMu.Unlock()
	}
	for _, dup := range dupTargets {
		dup.resultCh <- result
	}
}

// Snapshot returns the current queue statistics for the Metrics package.
func (q *Queue) Snapshot() Snapshot {
	executed := q.stats.Executed.Load()
	succeeded := q.stats.Succeeded.Load()
	var avgMs, successRate float64
	if executed > 0 {
		avgMs = float64(q.stats.totalExecNs.Load()) / float64(executed) / 1e6
		successRate = float64(succeeded) / float64(executed)
	}
	return Snapshot{
		Enqueued:       q.stats.Enqueued.Load(),
		Executed:       executed,
		Succeeded:      succeeded,
		Failed:         q.stats.Failed.Load(),
		TimedOut:       q.stats.TimedOut.Load(),
		Retried:        q.stats.Retried.Load(),
		Duplicate:      q.stats.Duplicate.Load(),
		AvgExecutionMs: avgMs,
		SuccessRate:    successRate,
	}
}

// ExecutingCount returns the current size of the executing set.
func (q *Queue) ExecutingCount() uint32 {
	return q.executingCount.Load()
}
