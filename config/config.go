// Package config defines the NetworkConfig/CacheConfig records, their
// environment presets, and validation — adapted from the teacher's
// config.Config (YAML unmarshal-then-validate, ByteSize scalars,
// mohae/deepcopy-based redaction) but scoped to SPEC_FULL.md §4.2 instead
// of the teacher's cluster/user/proxy configuration.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/mohae/deepcopy"
	"gopkg.in/yaml.v2"
)

// NetworkConfig configures the transport-facing side of the engine.
type NetworkConfig struct {
	BaseURL string `yaml:"base_url"`

	ConnectTimeout Duration `yaml:"connect_timeout,omitempty"`
	ReceiveTimeout Duration `yaml:"receive_timeout,omitempty"`
	SendTimeout    Duration `yaml:"send_timeout,omitempty"`

	MaxRetries               int      `yaml:"max_retries,omitempty"`
	RetryBaseDelayMs          int      `yaml:"retry_base_delay_ms,omitempty"`
	EnableExponentialBackoff  bool     `yaml:"enable_exponential_backoff,omitempty"`
	EnableLogging             bool     `yaml:"enable_logging,omitempty"`
	EnableCache               bool     `yaml:"enable_cache,omitempty"`
	DefaultCacheDurationS     int      `yaml:"default_cache_duration_s,omitempty"`
	Environment               Environment `yaml:"environment,omitempty"`

	// Catches all undefined fields, matching the teacher's XXX convention.
	XXX map[string]interface{} `yaml:",inline"`
}

// CacheConfig configures the two-tier CacheStore.
type CacheConfig struct {
	EnableMemory bool     `yaml:"enable_memory,omitempty"`
	EnableDisk   bool     `yaml:"enable_disk,omitempty"`

	MaxMemoryBytes ByteSize `yaml:"max_memory_bytes,omitempty"`
	MaxDiskBytes   ByteSize `yaml:"max_disk_bytes,omitempty"`

	DefaultTTL      Duration `yaml:"default_ttl,omitempty"`
	CleanupInterval Duration `yaml:"cleanup_interval,omitempty"`

	EnableCompression         bool     `yaml:"enable_compression,omitempty"`
	CompressionThresholdBytes ByteSize `yaml:"compression_threshold_bytes,omitempty"`

	EnableObfuscation bool   `yaml:"enable_obfuscation,omitempty"`
	ObfuscationKey    string `yaml:"obfuscation_key,omitempty"`

	EnableTagIndex bool `yaml:"enable_tag_index,omitempty"`

	AsyncDiskIO     bool     `yaml:"async_disk_io,omitempty"`
	DiskIOBufferBytes ByteSize `yaml:"disk_io_buffer_bytes,omitempty"`

	// Backend selects the disk tier implementation: "file_system" or
	// "redis", mirroring the teacher's config.Cache.Mode switch.
	Backend    string           `yaml:"backend,omitempty"`
	FileSystem FileSystemConfig `yaml:"file_system,omitempty"`
	Redis      RedisConfig      `yaml:"redis,omitempty"`

	XXX map[string]interface{} `yaml:",inline"`
}

// FileSystemConfig configures the file_system disk backend.
type FileSystemConfig struct {
	Dir string `yaml:"dir"`
}

// RedisConfig configures the redis disk backend, mirroring the teacher's
// config.RedisCacheConfig / clients.NewRedisClient.
type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Username  string   `yaml:"username,omitempty"`
	Password  string   `yaml:"password,omitempty"`
	DBIndex   int      `yaml:"db_index,omitempty"`
	PoolSize  int      `yaml:"pool_size,omitempty"`
}

// ValidationResult is the outcome of validating a NetworkConfig/CacheConfig
// pair: validation is total (always returns a result, never just an error)
// so the caller can choose to proceed with warnings.
type ValidationResult struct {
	IsValid  bool
	Errors   []string
	Warnings []string
}

func (r *ValidationResult) addError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.IsValid = false
}

func (r *ValidationResult) addWarning(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks a NetworkConfig/CacheConfig pair per SPEC_FULL.md §4.2.
func Validate(nc *NetworkConfig, cc *CacheConfig) *ValidationResult {
	res := &ValidationResult{IsValid: true}

	validateBaseURL(nc.BaseURL, res)
	validateTimeout("connect_timeout", nc.ConnectTimeout.Value(), time.Second, 60*time.Second, res)
	validateTimeout("receive_timeout", nc.ReceiveTimeout.Value(), time.Second, 300*time.Second, res)
	validateTimeout("send_timeout", nc.SendTimeout.Value(), time.Second, 300*time.Second, res)

	if nc.MaxRetries < 0 {
		res.addError("max_retries must not be negative")
	}

	if nc.EnableCache {
		if !cc.EnableMemory && !cc.EnableDisk {
			res.addError("network config enables cache but cache config disables both memory and disk tiers")
		}
	}

	if cc.EnableMemory && cc.EnableDisk {
		if cc.MaxMemoryBytes > cc.MaxDiskBytes {
			res.addError("memory cache size (%v) must be <= disk cache size (%v) when both tiers are enabled", cc.MaxMemoryBytes, cc.MaxDiskBytes)
		}
	}

	if cc.CleanupInterval.Value() > cc.DefaultTTL.Value() && cc.DefaultTTL.Value() > 0 {
		res.addError("cleanup_interval (%s) must not exceed default_ttl (%s)", cc.CleanupInterval, cc.DefaultTTL)
	}

	if cc.EnableObfuscation && cc.ObfuscationKey == "" {
		res.addError("enable_obfuscation is set but obfuscation_key is empty")
	}

	if cc.EnableDisk {
		switch cc.Backend {
		case "file_system":
			if cc.FileSystem.Dir == "" {
				res.addError("disk backend file_system requires file_system.dir")
			}
		case "redis":
			if len(cc.Redis.Addresses) == 0 {
				res.addError("disk backend redis requires redis.addresses")
			}
		default:
			res.addError("unknown disk backend %q: must be file_system or redis", cc.Backend)
		}
	}

	return res
}

func validateBaseURL(base string, res *ValidationResult) {
	if base == "" {
		res.addError("base_url must not be empty")
		return
	}
	u, err := url.Parse(base)
	if err != nil {
		res.addError("base_url %q does not parse: %s", base, err)
		return
	}
	if !u.IsAbs() {
		res.addError("base_url %q must be absolute", base)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		res.addError("base_url %q must use http or https", base)
	}
}

func validateTimeout(name string, d, warnLow, warnHigh time.Duration, res *ValidationResult) {
	if d <= 0 {
		res.addError("%s must be positive", name)
		return
	}
	if d < warnLow || d > warnHigh {
		res.addWarning("%s (%s) is outside the recommended range [%s, %s]", name, d, warnLow, warnHigh)
	}
}

// RetryDelay implements the exponential backoff formula from §4.2:
// min(baseDelay * 2^(attempt-1), 30s) when exponential is enabled, else a
// constant baseDelay.
func RetryDelay(attempt int, baseDelay time.Duration, exponential bool) time.Duration {
	if !exponential {
		return baseDelay
	}
	if attempt < 1 {
		attempt = 1
	}
	d := baseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d > 30*time.Second {
			return 30 * time.Second
		}
	}
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

// String implements the Stringer interface, redacting secrets the way the
// teacher's withoutSensitiveInfo does before logging a config.
func (c *CacheConfig) String() string {
	cp, _ := deepcopy.Copy(c).(*CacheConfig)
	if cp == nil {
		cp = c
	}
	const placeholder = "***"
	if cp.ObfuscationKey != "" {
		cp.ObfuscationKey = placeholder
	}
	if cp.Redis.Password != "" {
		cp.Redis.Password = placeholder
	}
	b, err := yaml.Marshal(cp)
	if err != nil {
		return fmt.Sprintf("<cache config: marshal error: %s>", err)
	}
	return string(b)
}
