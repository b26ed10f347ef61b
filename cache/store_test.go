package cache

import (
	"os"
	"testing"
	"time"

	"github.com/contentsquare/reqengine/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentsquare/reqengine/config"
)

func newTestStore(t *testing.T, cfg config.CacheConfig) *Store {
	t.Helper()
	s, err := NewStore(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Dispose() })
	return s
}

func memOnlyConfig(maxBytes int64) config.CacheConfig {
	var cfg config.CacheConfig
	cfg.EnableMemory = true
	cfg.MaxMemoryBytes = config.ByteSize(maxBytes)
	cfg.DefaultTTL = config.Duration(time.Hour)
	return cfg
}

// TestMemorySetGetRoundTrip is the round-trip law from spec §8: a value
// just set is immediately retrievable unchanged.
func TestMemorySetGetRoundTrip(t *testing.T) {
	s := newTestStore(t, memOnlyConfig(1<<20))
	require.NoError(t, s.Set("k1", []byte("hello"), time.Minute, request.Normal, nil))

	e, err := s.Get("k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), e.Payload)
}

// TestGetMissReturnsErrMissing covers the universal miss invariant.
func TestGetMissReturnsErrMissing(t *testing.T) {
	s := newTestStore(t, memOnlyConfig(1<<20))
	_, err := s.Get("absent")
	assert.ErrorIs(t, err, ErrMissing)
}

// TestExpiredEntryIsAMiss: S2 — an entry whose TTL has elapsed is reported
// as a miss even though it has not yet been swept.
func TestExpiredEntryIsAMiss(t *testing.T) {
	s := newTestStore(t, memOnlyConfig(1<<20))
	require.NoError(t, s.Set("k1", []byte("v"), -time.Second, request.Normal, nil))

	_, err := s.Get("k1")
	assert.ErrorIs(t, err, ErrMissing)
}

// TestMemoryEvictionPreservesHigherPriority reproduces scenario S5 from
// spec §8: maxMemoryBytes=1000, insert A(400B,Low), B(400B,Low),
// C(400B,Normal) in order; A is evicted, B and C remain.
func TestMemoryEvictionPreservesHigherPriority(t *testing.T) {
	s := newTestStore(t, memOnlyConfig(1000))

	require.NoError(t, s.Set("A", make([]byte, 400), time.Hour, request.Low, nil))
	require.NoError(t, s.Set("B", make([]byte, 400), time.Hour, request.Low, nil))
	require.NoError(t, s.Set("C", make([]byte, 400), time.Hour, request.Normal, nil))

	_, err := s.Get("A")
	assert.ErrorIs(t, err, ErrMissing, "A should have been evicted")

	_, err = s.Get("B")
	assert.NoError(t, err, "B should remain")

	_, err = s.Get("C")
	assert.NoError(t, err, "C should remain")
}

// TestClearByTagRemovesOnlyTaggedKeys: S6 — tag-based invalidation removes
// exactly the keys sharing the tag, leaving untagged/differently-tagged
// keys untouched.
func TestClearByTagRemovesOnlyTaggedKeys(t *testing.T) {
	s := newTestStore(t, memOnlyConfig(1<<20))

	require.NoError(t, s.Set("a", []byte("1"), time.Hour, request.Normal, []string{"user:42"}))
	require.NoError(t, s.Set("b", []byte("2"), time.Hour, request.Normal, []string{"user:42", "region:eu"}))
	require.NoError(t, s.Set("c", []byte("3"), time.Hour, request.Normal, []string{"region:eu"}))

	require.NoError(t, s.ClearByTag("user:42"))

	_, err := s.Get("a")
	assert.ErrorIs(t, err, ErrMissing)
	_, err = s.Get("b")
	assert.ErrorIs(t, err, ErrMissing)

	_, err = s.Get("c")
	assert.NoError(t, err, "c carries only region:eu and must survive")
}

// TestClearResetsStatisticsAndTiers verifies Clear empties both tiers and
// the running counters.
func TestClearResetsStatisticsAndTiers(t *testing.T) {
	s := newTestStore(t, memOnlyConfig(1<<20))
	require.NoError(t, s.Set("k", []byte("v"), time.Hour, request.Normal, []string{"t"}))
	_, _ = s.Get("k")

	require.NoError(t, s.Clear())

	_, err := s.Get("k")
	assert.ErrorIs(t, err, ErrMissing)
	assert.Equal(t, uint64(0), s.Statistics().TotalSets)
}

// TestDiskPromotionOnMemoryMiss exercises the file_system-backed disk tier:
// a value evicted from (or never written to) memory is still retrievable
// from disk and gets promoted back into memory on read.
func TestDiskPromotionOnMemoryMiss(t *testing.T) {
	dir := t.TempDir()
	defer os.RemoveAll(dir)

	var cfg config.CacheConfig
	cfg.EnableMemory = true
	cfg.EnableDisk = true
	cfg.MaxMemoryBytes = config.ByteSize(1 << 20)
	cfg.DefaultTTL = config.Duration(time.Hour)
	cfg.Backend = "file_system"
	cfg.FileSystem.Dir = dir

	s := newTestStore(t, cfg)

	require.NoError(t, s.Set("k1", []byte("persisted"), time.Hour, request.Normal, nil))

	s.memory.remove("k1")
	_, foundAfterRemove := s.memory.get("k1", time.Now())
	require.False(t, foundAfterRemove)

	e, getErr := s.Get("k1")
	require.NoError(t, getErr)
	assert.Equal(t, []byte("persisted"), e.Payload)

	_, ok := s.memory.get("k1", time.Now())
	assert.True(t, ok, "disk hit should promote back into memory")
}

// TestEncodeDecodeRoundTrip is the encoding round-trip law from spec §8
// ("encode then decode returns the original entry") exercised across all
// four compressed/obfuscated flag combinations. It would have caught the
// base64 regression where the `data` field was stored raw instead of
// base64-encoded, corrupting any payload encoding/json treated as invalid
// UTF-8 (including every AEAD-sealed obfuscated payload).
func TestEncodeDecodeRoundTrip(t *testing.T) {
	// Deliberately includes bytes that are invalid UTF-8 on their own, so a
	// regression to un-encoded storage would be caught even for the
	// non-obfuscated cases.
	payload := []byte{0xff, 0xfe, 0x00, 'h', 'i', 0x80, 0x81}

	cases := []struct {
		name       string
		compressed bool
		obfuscated bool
	}{
		{"plain", false, false},
		{"compressedOnly", true, false},
		{"obfuscatedOnly", false, true},
		{"compressedAndObfuscated", true, true},
	}

	const obfuscationKey = "s3cr3t"

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			want := &Entry{
				Key:            "k1",
				Payload:        payload,
				ExpiresAt:      time.Now().Add(time.Hour).Truncate(time.Millisecond),
				Priority:       request.High,
				AccessCount:    3,
				LastAccessedAt: time.Now().Truncate(time.Millisecond),
				Tags:           []string{"a", "b"},
				Compressed:     tc.compressed,
				Obfuscated:     tc.obfuscated,
				Size:           int64(len(payload)),
			}

			raw, err := encode(want, obfuscationKey)
			require.NoError(t, err)

			got, err := decode(raw, obfuscationKey)
			require.NoError(t, err)

			assert.Equal(t, want.Key, got.Key)
			assert.Equal(t, want.Payload, got.Payload)
			assert.Equal(t, want.ExpiresAt.UnixMilli(), got.ExpiresAt.UnixMilli())
			assert.Equal(t, want.Priority, got.Priority)
			assert.Equal(t, want.AccessCount, got.AccessCount)
			assert.Equal(t, want.LastAccessedAt.UnixMilli(), got.LastAccessedAt.UnixMilli())
			assert.Equal(t, want.Tags, got.Tags)
			assert.Equal(t, want.Compressed, got.Compressed)
			assert.Equal(t, want.Obfuscated, got.Obfuscated)
		})
	}
}

// TestStatisticsHitRate checks the derived hit-rate computation.
func TestStatisticsHitRate(t *testing.T) {
	s := newTestStore(t, memOnlyConfig(1<<20))
	require.NoError(t, s.Set("k", []byte("v"), time.Hour, request.Normal, nil))

	_, _ = s.Get("k")
	_, _ = s.Get("missing")

	stats := s.Statistics()
	assert.Equal(t, uint64(2), stats.TotalRequests)
	assert.InDelta(t, 0.5, stats.HitRate(), 0.0001)
}
