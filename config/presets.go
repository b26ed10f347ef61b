package config

import "time"

// Preset is a named (NetworkConfig, CacheConfig) factory, mirroring the
// teacher's package-level default* config values in config.go, generalized
// into named factory functions per SPEC_FULL.md §4.2.
type Preset func() (NetworkConfig, CacheConfig)

var presets = map[string]Preset{
	"development": Development,
	"testing":     Testing,
	"staging":     Staging,
	"production":  Production,
	"fastResponse": FastResponse,
	"heavyLoad":    HeavyLoad,
	"offlineFirst": OfflineFirst,
	"lowBandwidth": LowBandwidth,
}

// ApplyPreset looks up a preset by name. ok is false for an unknown name.
func ApplyPreset(name string) (NetworkConfig, CacheConfig, bool) {
	p, ok := presets[name]
	if !ok {
		return NetworkConfig{}, CacheConfig{}, false
	}
	nc, cc := p()
	return nc, cc, true
}

func baseNetwork(env Environment) NetworkConfig {
	return NetworkConfig{
		ConnectTimeout:           Duration(5 * time.Second),
		ReceiveTimeout:           Duration(30 * time.Second),
		SendTimeout:              Duration(30 * time.Second),
		MaxRetries:               3,
		RetryBaseDelayMs:         500,
		EnableExponentialBackoff: true,
		EnableLogging:            true,
		EnableCache:              true,
		DefaultCacheDurationS:    60,
		Environment:              env,
	}
}

func baseCache() CacheConfig {
	return CacheConfig{
		EnableMemory:              true,
		EnableDisk:                true,
		MaxMemoryBytes:            16 * MB,
		MaxDiskBytes:              256 * MB,
		DefaultTTL:                Duration(5 * time.Minute),
		CleanupInterval:           Duration(time.Minute),
		EnableCompression:         true,
		CompressionThresholdBytes: 4 * KB,
		EnableTagIndex:            true,
		AsyncDiskIO:               true,
		DiskIOBufferBytes:         64 * KB,
		Backend:                   "file_system",
		FileSystem:                FileSystemConfig{Dir: "network_cache"},
	}
}

// Development favors visibility (debug logging, short TTLs) over throughput.
func Development() (NetworkConfig, CacheConfig) {
	nc := baseNetwork(Development)
	nc.MaxRetries = 1
	cc := baseCache()
	cc.MaxMemoryBytes = 4 * MB
	cc.MaxDiskBytes = 32 * MB
	cc.DefaultTTL = Duration(30 * time.Second)
	cc.CleanupInterval = Duration(15 * time.Second)
	return nc, cc
}

// Testing disables disk I/O and network retries so unit tests stay fast
// and hermetic.
func Testing() (NetworkConfig, CacheConfig) {
	nc := baseNetwork(Testing)
	nc.MaxRetries = 0
	nc.EnableExponentialBackoff = false
	nc.ConnectTimeout = Duration(time.Second)
	nc.ReceiveTimeout = Duration(time.Second)
	nc.SendTimeout = Duration(time.Second)
	cc := baseCache()
	cc.EnableDisk = false
	cc.AsyncDiskIO = false
	cc.MaxMemoryBytes = 1 * MB
	return nc, cc
}

// Staging mirrors Production with more conservative cache sizes.
func Staging() (NetworkConfig, CacheConfig) {
	nc := baseNetwork(Staging)
	cc := baseCache()
	cc.MaxMemoryBytes = 8 * MB
	cc.MaxDiskBytes = 128 * MB
	return nc, cc
}

// Production is tuned for throughput and resilience.
func Production() (NetworkConfig, CacheConfig) {
	nc := baseNetwork(Production)
	nc.MaxRetries = 5
	cc := baseCache()
	cc.MaxMemoryBytes = 64 * MB
	cc.MaxDiskBytes = 1 * GB
	cc.DefaultTTL = Duration(15 * time.Minute)
	cc.EnableObfuscation = true
	return nc, cc
}

// FastResponse minimizes latency: short timeouts, a single retry,
// memory-only cache.
func FastResponse() (NetworkConfig, CacheConfig) {
	nc := baseNetwork(Production)
	nc.ConnectTimeout = Duration(2 * time.Second)
	nc.ReceiveTimeout = Duration(3 * time.Second)
	nc.SendTimeout = Duration(3 * time.Second)
	nc.MaxRetries = 1
	cc := baseCache()
	cc.EnableDisk = false
	cc.MaxMemoryBytes = 32 * MB
	return nc, cc
}

// HeavyLoad maximizes cache capacity and retry budget for bursty traffic.
func HeavyLoad() (NetworkConfig, CacheConfig) {
	nc := baseNetwork(Production)
	nc.MaxRetries = 8
	nc.RetryBaseDelayMs = 200
	cc := baseCache()
	cc.MaxMemoryBytes = 128 * MB
	cc.MaxDiskBytes = 4 * GB
	cc.AsyncDiskIO = true
	cc.DiskIOBufferBytes = 1 * MB
	return nc, cc
}

// OfflineFirst favors long TTLs and large disk capacity so a flaky network
// still serves from cache.
func OfflineFirst() (NetworkConfig, CacheConfig) {
	nc := baseNetwork(Production)
	nc.DefaultCacheDurationS = 3600
	cc := baseCache()
	cc.DefaultTTL = Duration(24 * time.Hour)
	cc.MaxDiskBytes = 2 * GB
	return nc, cc
}

// LowBandwidth compresses aggressively and shrinks the memory tier to
// favor disk, which is assumed to be local and cheap relative to network.
func LowBandwidth() (NetworkConfig, CacheConfig) {
	nc := baseNetwork(Production)
	nc.ConnectTimeout = Duration(10 * time.Second)
	nc.ReceiveTimeout = Duration(60 * time.Second)
	cc := baseCache()
	cc.CompressionThresholdBytes = 512
	cc.MaxMemoryBytes = 4 * MB
	cc.MaxDiskBytes = 512 * MB
	return nc, cc
}
