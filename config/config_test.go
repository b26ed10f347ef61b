package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validNetworkCache() (NetworkConfig, CacheConfig) {
	return Production()
}

func TestValidateAcceptsPresets(t *testing.T) {
	for name := range presets {
		nc, cc, ok := ApplyPreset(name)
		require.True(t, ok, name)
		nc.BaseURL = "https://example.com" // presets carry no base URL
		res := Validate(&nc, &cc)
		assert.True(t, res.IsValid, "%s: %v", name, res.Errors)
	}
}

func TestValidateRejectsBadBaseURL(t *testing.T) {
	nc, cc := validNetworkCache()
	nc.BaseURL = "not a url ::"
	res := Validate(&nc, &cc)
	assert.False(t, res.IsValid)
}

func TestValidateRejectsRelativeBaseURL(t *testing.T) {
	nc, cc := validNetworkCache()
	nc.BaseURL = "/just/a/path"
	res := Validate(&nc, &cc)
	assert.False(t, res.IsValid)
}

func TestValidateRejectsNonHTTPScheme(t *testing.T) {
	nc, cc := validNetworkCache()
	nc.BaseURL = "ftp://example.com"
	res := Validate(&nc, &cc)
	assert.False(t, res.IsValid)
}

func TestValidateRejectsNonPositiveTimeout(t *testing.T) {
	nc, cc := validNetworkCache()
	nc.BaseURL = "https://example.com"
	nc.ConnectTimeout = 0
	res := Validate(&nc, &cc)
	assert.False(t, res.IsValid)
}

func TestValidateWarnsOutsideRecommendedRange(t *testing.T) {
	nc, cc := validNetworkCache()
	nc.BaseURL = "https://example.com"
	nc.ConnectTimeout = Duration(500 * time.Millisecond) // below 1s
	res := Validate(&nc, &cc)
	assert.True(t, res.IsValid)
	assert.NotEmpty(t, res.Warnings)
}

func TestValidateMemoryMustNotExceedDisk(t *testing.T) {
	nc, cc := validNetworkCache()
	nc.BaseURL = "https://example.com"
	cc.MaxMemoryBytes = 100 * MB
	cc.MaxDiskBytes = 10 * MB
	res := Validate(&nc, &cc)
	assert.False(t, res.IsValid)
}

func TestValidateCleanupIntervalMustNotExceedTTL(t *testing.T) {
	nc, cc := validNetworkCache()
	nc.BaseURL = "https://example.com"
	cc.DefaultTTL = Duration(time.Second)
	cc.CleanupInterval = Duration(time.Minute)
	res := Validate(&nc, &cc)
	assert.False(t, res.IsValid)
}

func TestValidateCacheEnabledButNoTierEnabled(t *testing.T) {
	nc, cc := validNetworkCache()
	nc.BaseURL = "https://example.com"
	nc.EnableCache = true
	cc.EnableMemory = false
	cc.EnableDisk = false
	res := Validate(&nc, &cc)
	assert.False(t, res.IsValid)
}

func TestRetryDelayExponential(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, base, RetryDelay(1, base, true))
	assert.Equal(t, 200*time.Millisecond, RetryDelay(2, base, true))
	assert.Equal(t, 400*time.Millisecond, RetryDelay(3, base, true))
}

func TestRetryDelayCapsAt30s(t *testing.T) {
	base := 100 * time.Millisecond
	d := RetryDelay(20, base, true)
	assert.Equal(t, 30*time.Second, d)
}

func TestRetryDelayConstantWhenExponentialDisabled(t *testing.T) {
	base := 250 * time.Millisecond
	assert.Equal(t, base, RetryDelay(5, base, false))
}

func TestByteSizeParsing(t *testing.T) {
	var ds ByteSize
	require.NoError(t, ds.parse("2MB"))
	assert.Equal(t, int64(2*1024*1024), ds.Bytes())
}

func TestByteSizeRejectsInvalid(t *testing.T) {
	var ds ByteSize
	assert.Error(t, ds.parse("not-a-size"))
}

func TestRuntimeSwitchEnvironment(t *testing.T) {
	rt := NewRuntime(Testing())
	rt.SwitchEnvironment(Production)
	nc, _ := rt.GetRuntime()
	assert.Equal(t, Production, nc.Environment)
}

func TestRuntimeApplyPresetUnknown(t *testing.T) {
	rt := NewRuntime(Testing())
	_, err := rt.ApplyPreset("nonexistent")
	assert.Error(t, err)
}

// TestRuntimeSetRuntimeRoundTrip verifies SetRuntime/GetRuntime round-trips
// the pair of configs unchanged.
func TestRuntimeSetRuntimeRoundTrip(t *testing.T) {
	rt := NewRuntime(Testing())
	wantNC, wantCC := Production()
	rt.SetRuntime(wantNC, wantCC)

	gotNC, gotCC := rt.GetRuntime()
	if diff := cmp.Diff(wantNC, gotNC); diff != "" {
		t.Fatalf("network config mismatch after round-trip (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantCC, gotCC); diff != "" {
		t.Fatalf("cache config mismatch after round-trip (-want +got):\n%s", diff)
	}
}

// TestApplyPresetDevelopmentDiffersFromProduction guards against the two
// built-in presets silently converging; cmp.Diff doubles as documentation
// of exactly what differs between them.
func TestApplyPresetDevelopmentDiffersFromProduction(t *testing.T) {
	devNC, devCC, ok := ApplyPreset("development")
	require.True(t, ok)
	prodNC, prodCC, ok := ApplyPreset("production")
	require.True(t, ok)

	if cmp.Equal(devNC, prodNC) && cmp.Equal(devCC, prodCC) {
		t.Fatal("development and production presets must not be identical")
	}
}

func TestCacheConfigStringRedactsSecrets(t *testing.T) {
	cc := CacheConfig{EnableObfuscation: true, ObfuscationKey: "super-secret"}
	s := cc.String()
	assert.NotContains(t, s, "super-secret")
}
