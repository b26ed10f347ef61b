package metrics

import (
	"testing"
	"time"

	"github.com/contentsquare/reqengine/cache"
	"github.com/contentsquare/reqengine/config"
	"github.com/contentsquare/reqengine/interceptor"
	"github.com/contentsquare/reqengine/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBandFor(t *testing.T) {
	assert.Equal(t, Excellent, BandFor(0.9))
	assert.Equal(t, Good, BandFor(0.65))
	assert.Equal(t, Fair, BandFor(0.45))
	assert.Equal(t, Poor, BandFor(0.1))
}

func TestAggregatorCollectSnapshot(t *testing.T) {
	var cacheCfg config.CacheConfig
	cacheCfg.EnableMemory = true
	cacheCfg.MaxMemoryBytes = config.ByteSize(1 << 20)
	cacheCfg.DefaultTTL = config.Duration(time.Hour)
	c, err := cache.NewStore(cacheCfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Dispose() })

	q := queue.New(queue.Config{MaxConcurrent: 2, ProcessingInterval: 5 * time.Millisecond}, nil)
	t.Cleanup(q.Stop)

	chain := interceptor.NewChain()

	agg := New(q, c, chain, time.Hour)
	snap := agg.collect()

	assert.Equal(t, EfficiencyBand(Poor), snap.CacheEfficiency)
	assert.NotNil(t, snap.Interceptors)
}
