// Package metrics implements the aggregator from SPEC_FULL.md §4.7: a
// periodic snapshot puller over the Queue, Cache and InterceptorChain,
// exposed both as Prometheus gauges (grounded on the teacher's metrics.go
// registration style) and as plain Go snapshots for in-process
// subscribers. Configuration values are not part of the snapshot.
package metrics

import (
	"sync"
	"time"

	"github.com/contentsquare/reqengine/cache"
	"github.com/contentsquare/reqengine/interceptor"
	"github.com/contentsquare/reqengine/queue"
	"github.com/prometheus/client_golang/prometheus"
)

// EfficiencyBand buckets a cache hit rate per SPEC_FULL.md §4.7.
type EfficiencyBand string

const (
	Excellent EfficiencyBand = "excellent"
	Good      EfficiencyBand = "good"
	Fair      EfficiencyBand = "fair"
	Poor      EfficiencyBand = "poor"
)

// BandFor classifies a hit rate into an EfficiencyBand.
func BandFor(hitRate float64) EfficiencyBand {
	switch {
	case hitRate >= 0.8:
		return Excellent
	case hitRate >= 0.6:
		return Good
	case hitRate >= 0.4:
		return Fair
	default:
		return Poor
	}
}

// Snapshot is the aggregated state published on each tick.
type Snapshot struct {
	Timestamp time.Time

	Queue queue.Snapshot

	CacheStatistics cache.Statistics
	CacheHitRate    float64
	CacheEfficiency EfficiencyBand
	CacheMemoryUsed int64

	Interceptors []interceptor.HookCounts
}

// Subscriber receives every published Snapshot.
type Subscriber func(Snapshot)

// Aggregator is the Metrics component from SPEC_FULL.md §4.7.
type Aggregator struct {
	q     *queue.Queue
	c     *cache.Store
	chain *interceptor.Chain

	interval time.Duration

	mu          sync.Mutex
	subscribers []Subscriber
	lastSnap    Snapshot

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	promEnqueued     prometheus.Gauge
	promExecuted     prometheus.Gauge
	promSucceeded    prometheus.Gauge
	promFailed       prometheus.Gauge
	promCacheHitRate prometheus.Gauge
}

// New builds an Aggregator polling q/c/chain every interval.
func New(q *queue.Queue, c *cache.Store, chain *interceptor.Chain, interval time.Duration) *Aggregator {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	a := &Aggregator{
		q:        q,
		c:        c,
		chain:    chain,
		interval: interval,
		stopCh:   make(chan struct{}),

		promEnqueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reqengine_queue_enqueued_total",
			Help: "Total requests enqueued so far.",
		}),
		promExecuted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reqengine_queue_executed_total",
			Help: "Total requests executed so far.",
		}),
		promSucceeded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reqengine_queue_succeeded_total",
			Help: "Total requests succeeded so far.",
		}),
		promFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reqengine_queue_failed_total",
			Help: "Total requests failed so far.",
		}),
		promCacheHitRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reqengine_cache_hit_rate",
			Help: "Current cache hit rate across both tiers.",
		}),
	}
	return a
}

// Collectors returns the Prometheus collectors for registration with a
// prometheus.Registerer.
func (a *Aggregator) Collectors() []prometheus.Collector {
	return []prometheus.Collector{a.promEnqueued, a.promExecuted, a.promSucceeded, a.promFailed, a.promCacheHitRate}
}

// Subscribe registers sub to receive every future snapshot.
func (a *Aggregator) Subscribe(sub Subscriber) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subscribers = append(a.subscribers, sub)
}

// Snapshot returns the most recently published snapshot.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSnap
}

// Reset zeroes the locally cached snapshot; it does not reset the
// underlying Queue/Cache/InterceptorChain counters, which are each owned
// by their respective component.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastSnap = Snapshot{}
}

// Start begins the periodic aggregation loop.
func (a *Aggregator) Start() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.tick()
			case <-a.stopCh:
				return
			}
		}
	}()
}

// Stop halts the aggregation loop. Idempotent.
func (a *Aggregator) Stop() {
	a.once.Do(func() { close(a.stopCh) })
	a.wg.Wait()
}

func (a *Aggregator) tick() {
	snap := a.collect()

	a.mu.Lock()
	a.lastSnap = snap
	subs := make([]Subscriber, len(a.subscribers))
	copy(subs, a.subscribers)
	a.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
}

// collect builds a fresh Snapshot and updates the Prometheus gauges from
// it, without storing the Snapshot or notifying subscribers; tick does
// both afterwards.
func (a *Aggregator) collect() Snapshot {
	qSnap := a.q.Snapshot()
	cStats := a.c.Statistics()

	a.promEnqueued.Set(float64(qSnap.Enqueued))
	a.promExecuted.Set(float64(qSnap.Executed))
	a.promSucceeded.Set(float64(qSnap.Succeeded))
	a.promFailed.Set(float64(qSnap.Failed))
	a.promCacheHitRate.Set(cStats.HitRate())

	var hookCounts []interceptor.HookCounts
	if a.chain != nil {
		hookCounts = a.chain.Snapshot()
	}

	return Snapshot{
		Timestamp:       time.Now(),
		Queue:           qSnap,
		CacheStatistics: cStats,
		CacheHitRate:    cStats.HitRate(),
		CacheEfficiency: BandFor(cStats.HitRate()),
		CacheMemoryUsed: a.c.MemoryUsedBytes(),
		Interceptors:    hookCounts,
	}
}
