package config

import (
	"strings"
	"sync/atomic"
)

// Live serves the hot-reloadable part of the configuration to the engine. Reads
// are lock-free; Swap replaces the snapshot after a successful reload.
type Live struct {
	current atomic.Pointer[Config]
}

// NewLive seeds the holder with the startup snapshot.
func NewLive(cfg Config) *Live {
	l := &Live{}
	l.Swap(cfg)
	return l
}

// Swap installs a new snapshot.
func (l *Live) Swap(cfg Config) {
	snapshot := cfg
	snapshot.CDN.RelatedPaths = append([]string(nil), cfg.CDN.RelatedPaths...)
	l.current.Store(&snapshot)
}

// Snapshot returns a copy of the active configuration.
func (l *Live) Snapshot() Config {
	if l == nil {
		return DefaultConfig()
	}
	cfg := l.current.Load()
	if cfg == nil {
		return DefaultConfig()
	}
	return *cfg
}

// DistributionID returns the configured CDN distribution.
func (l *Live) DistributionID() string {
	return strings.TrimSpace(l.Snapshot().CDN.DistributionID)
}

// BaseURL returns the public origin the entity permalinks are relative to.
func (l *Live) BaseURL() string {
	return strings.TrimSpace(l.Snapshot().CDN.BaseURL)
}
