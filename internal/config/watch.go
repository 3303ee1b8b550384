package config

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ResourceApplier pushes a loaded catalogue into the running system.
type ResourceApplier func(ctx context.Context, cfg *ResourcesConfig) error

// ResourceWatcher polls resources.yaml and applies every new version.
//
// A file that fails to parse is reported once and skipped until it changes
// again; the last applied catalogue stays in effect. A catalogue that parses
// but fails to apply stays pending and is retried on the next poll.
type ResourceWatcher struct {
	path     string
	interval time.Duration
	apply    ResourceApplier
	logger   zerolog.Logger

	mu       sync.Mutex
	current  *ResourcesConfig
	applied  time.Time
	rejected time.Time
}

func NewResourceWatcher(path string, interval time.Duration, apply ResourceApplier, logger *zerolog.Logger) *ResourceWatcher {
	if path == "" {
		path = "configs/resources.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "resource_watcher").Str("path", path).Logger()
	}
	return &ResourceWatcher{path: path, interval: interval, apply: apply, logger: l}
}

// Load reads and applies the catalogue once. Startup treats any failure as fatal.
func (w *ResourceWatcher) Load(ctx context.Context) error {
	info, err := os.Stat(w.path)
	if err != nil {
		return err
	}
	cfg, err := LoadResourcesConfig(w.path)
	if err != nil {
		return err
	}
	if err := w.applyConfig(ctx, cfg); err != nil {
		return err
	}

	w.mu.Lock()
	w.current, w.applied = cfg, info.ModTime()
	w.mu.Unlock()
	return nil
}

// Run polls every interval until ctx is done.
func (w *ResourceWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll checks the file once and reports whether a new catalogue was applied.
func (w *ResourceWatcher) Poll(ctx context.Context) bool {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Debug().Err(err).Msg("resources config stat failed")
		return false
	}
	mod := info.ModTime()

	w.mu.Lock()
	unchanged := !mod.After(w.applied) || mod.Equal(w.rejected)
	w.mu.Unlock()
	if unchanged {
		return false
	}

	cfg, err := LoadResourcesConfig(w.path)
	if err != nil {
		w.mu.Lock()
		w.rejected = mod
		w.mu.Unlock()
		w.logger.Warn().Err(err).Msg("resources config rejected, keeping previous catalogue")
		return false
	}
	if err := w.applyConfig(ctx, cfg); err != nil {
		w.logger.Warn().Err(err).Msg("resources config apply failed, will retry")
		return false
	}

	w.mu.Lock()
	w.current, w.applied = cfg, mod
	w.mu.Unlock()
	w.logger.Info().Str("config", cfg.String()).Msg("resources config reloaded")
	return true
}

// Current returns the last applied catalogue.
func (w *ResourceWatcher) Current() *ResourcesConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

func (w *ResourceWatcher) applyConfig(ctx context.Context, cfg *ResourcesConfig) error {
	if w.apply == nil {
		return nil
	}
	return w.apply(ctx, cfg)
}
