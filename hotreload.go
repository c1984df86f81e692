// hotreload.go: dynamic configuration with Argus integration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package strata

import (
	"fmt"
	"sync"
	"time"

	"github.com/agilira/argus"
)

// HotConfig watches a configuration file and hot-swaps the subset of a
// Cache's settings that can change without reconstruction: ExpireAfterWrite,
// ExpireAfterAccess, and RefreshAfterWrite (spec §6). Structural parameters
// (MaxSize, WindowRatio, EvictionPolicy, Strategy, ...) require a new Cache
// instance, matching the limitation the teacher documents for MaxSize.
type HotConfig[K comparable, V any] struct {
	engine  *engine[K, V]
	watcher *argus.Watcher
	mu      sync.RWMutex
	applied hotConfigValues

	// OnReload is called after configuration is successfully reloaded. It
	// must be fast and non-blocking.
	OnReload func(old, new hotConfigValues)
}

// hotConfigValues is the subset of Config a HotConfig can apply live.
type hotConfigValues struct {
	ExpireAfterWrite  time.Duration
	ExpireAfterAccess time.Duration
	RefreshAfterWrite time.Duration
}

// HotConfigOptions configures hot reload behavior.
type HotConfigOptions struct {
	// ConfigPath is the path to the configuration file to watch. Supports
	// JSON, YAML, TOML, HCL, INI, and Properties, via Argus.
	ConfigPath string

	// PollInterval is how often to check for configuration changes.
	// Default: 1 second. Minimum: 100ms.
	PollInterval time.Duration

	// OnReload is called after configuration is successfully reloaded.
	OnReload func(old, new hotConfigValues)

	// Logger for hot reload operations. If nil, uses NoOpLogger.
	Logger Logger
}

// NewHotConfig creates a hot-reloadable configuration wrapper around cache
// and starts watching opts.ConfigPath immediately.
//
// Supported configuration keys (under a top-level "cache" section, or at
// the document root):
//   - expire_after_write (duration string, e.g. "1h")
//   - expire_after_access (duration string)
//   - refresh_after_write (duration string)
func NewHotConfig[K comparable, V any](cache Cache[K, V], opts HotConfigOptions) (*HotConfig[K, V], error) {
	if opts.ConfigPath == "" {
		return nil, fmt.Errorf("config_path is required")
	}

	e, ok := cache.(*engine[K, V])
	if !ok {
		return nil, fmt.Errorf("strata: HotConfig requires a *strata.engine instance")
	}

	if opts.PollInterval == 0 {
		opts.PollInterval = 1 * time.Second
	} else if opts.PollInterval < 100*time.Millisecond {
		opts.PollInterval = 100 * time.Millisecond
	}

	if opts.Logger == nil {
		opts.Logger = NoOpLogger{}
	}

	hc := &HotConfig[K, V]{
		engine:   e,
		OnReload: opts.OnReload,
		applied: hotConfigValues{
			ExpireAfterWrite:  e.cfg.ExpireAfterWrite,
			ExpireAfterAccess: e.cfg.ExpireAfterAccess,
			RefreshAfterWrite: e.cfg.RefreshAfterWrite,
		},
	}

	argusConfig := argus.Config{PollInterval: opts.PollInterval}

	watcher, err := argus.UniversalConfigWatcherWithConfig(opts.ConfigPath, hc.handleConfigChange, argusConfig)
	if err != nil {
		return nil, err
	}
	hc.watcher = watcher

	return hc, nil
}

// Start begins watching the configuration file for changes.
func (hc *HotConfig[K, V]) Start() error {
	if hc.watcher.IsRunning() {
		return nil
	}
	return hc.watcher.Start()
}

// Stop stops watching the configuration file.
func (hc *HotConfig[K, V]) Stop() error {
	return hc.watcher.Stop()
}

// Current returns the currently applied hot-reloadable values.
func (hc *HotConfig[K, V]) Current() hotConfigValues {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.applied
}

func (hc *HotConfig[K, V]) handleConfigChange(data map[string]interface{}) {
	hc.mu.Lock()
	old := hc.applied
	updated := parseHotConfig(data, old)
	hc.applied = updated
	hc.mu.Unlock()

	hc.apply(updated)

	if hc.OnReload != nil {
		hc.OnReload(old, updated)
	}
}

func (hc *HotConfig[K, V]) apply(v hotConfigValues) {
	hc.engine.expiry.expireAfterWrite.Store(int64(v.ExpireAfterWrite))
	hc.engine.expiry.expireAfterAccess.Store(int64(v.ExpireAfterAccess))
	if hc.engine.refresher != nil {
		hc.engine.refresher.setInterval(int64(v.RefreshAfterWrite))
	}
}

func parseDuration(value interface{}) (time.Duration, bool) {
	if str, ok := value.(string); ok {
		if d, err := time.ParseDuration(str); err == nil {
			return d, true
		}
	}
	return 0, false
}

// parseHotConfig extracts the hot-reloadable fields from Argus config data,
// falling back to prior for anything absent or malformed.
func parseHotConfig(data map[string]interface{}, prior hotConfigValues) hotConfigValues {
	section, ok := data["cache"].(map[string]interface{})
	if !ok {
		section = data
	}

	result := prior
	if d, ok := parseDuration(section["expire_after_write"]); ok {
		result.ExpireAfterWrite = d
	}
	if d, ok := parseDuration(section["expire_after_access"]); ok {
		result.ExpireAfterAccess = d
	}
	if d, ok := parseDuration(section["refresh_after_write"]); ok {
		result.RefreshAfterWrite = d
	}
	return result
}
