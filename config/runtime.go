package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v2"
)

// Runtime owns the live NetworkConfig/CacheConfig pair and exposes the
// Config.{load, applyPreset, validate, switchEnvironment, setRuntime,
// getRuntime} surface from SPEC_FULL.md §6. It replaces the teacher's
// global, lazily-initialized singleton (SPEC_FULL.md §9's "Singletons
// with lazy init" design note): callers construct one explicitly and pass
// it by reference.
type Runtime struct {
	mu      sync.RWMutex
	network NetworkConfig
	cache   CacheConfig
}

// NewRuntime seeds a Runtime directly from a config pair, without
// validation — callers that already validated (e.g. via a preset) can
// skip re-checking.
func NewRuntime(nc NetworkConfig, cc CacheConfig) *Runtime {
	return &Runtime{network: nc, cache: cc}
}

type fileConfig struct {
	Network NetworkConfig `yaml:"network"`
	Cache   CacheConfig   `yaml:"cache"`
}

// Load reads a YAML file containing `network:` and `cache:` top-level
// keys and validates it, matching the teacher's load-then-validate
// UnmarshalYAML idiom in config.Config.
func Load(path string) (*Runtime, *ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot read config %q: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, nil, fmt.Errorf("cannot parse config %q: %w", path, err)
	}
	if err := checkOverflow(fc.Network.XXX, "network"); err != nil {
		return nil, nil, err
	}
	if err := checkOverflow(fc.Cache.XXX, "cache"); err != nil {
		return nil, nil, err
	}

	res := Validate(&fc.Network, &fc.Cache)
	return NewRuntime(fc.Network, fc.Cache), res, nil
}

// ApplyPreset installs a named preset, validating it first.
func (r *Runtime) ApplyPreset(name string) (*ValidationResult, error) {
	nc, cc, ok := ApplyPreset(name)
	if !ok {
		return nil, fmt.Errorf("unknown preset %q", name)
	}
	res := Validate(&nc, &cc)

	r.mu.Lock()
	r.network = nc
	r.cache = cc
	r.mu.Unlock()

	return res, nil
}

// Validate re-validates the live config.
func (r *Runtime) Validate() *ValidationResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	nc, cc := r.network, r.cache
	return Validate(&nc, &cc)
}

// SwitchEnvironment applies the named preset matching env, if one exists,
// otherwise only flips the Environment field on the current network
// config.
func (r *Runtime) SwitchEnvironment(env Environment) {
	if p, ok := presets[string(env)]; ok {
		nc, cc := p()
		r.mu.Lock()
		r.network = nc
		r.cache = cc
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	r.network.Environment = env
	r.mu.Unlock()
}

// SetRuntime atomically replaces the live config pair.
func (r *Runtime) SetRuntime(nc NetworkConfig, cc CacheConfig) {
	r.mu.Lock()
	r.network = nc
	r.cache = cc
	r.mu.Unlock()
}

// GetRuntime returns a copy of the live config pair.
func (r *Runtime) GetRuntime() (NetworkConfig, CacheConfig) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.network, r.cache
}
