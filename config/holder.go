// Package config provides configuration loading and hot reload.
package config

import (
	"fmt"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/artpar/filinggate/adapters/metrics"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// reloadDebounce collapses the burst of events an editor save produces.
const reloadDebounce = 100 * time.Millisecond

// field is one dotted config path and whether a running app applies it.
type field struct {
	name      string
	live      bool
	unchanged func(a, b *Config) bool
}

var fields = []field{
	{"plans", true, func(a, b *Config) bool { return slices.Equal(a.Plans, b.Plans) }},
	{"rate_limit.default", true, func(a, b *Config) bool { return a.RateLimit.Default == b.RateLimit.Default }},
	{"rate_limit.overrides", true, func(a, b *Config) bool { return maps.Equal(a.RateLimit.Overrides, b.RateLimit.Overrides) }},
	{"rate_limit.fail_open", true, func(a, b *Config) bool { return a.RateLimit.FailOpen == b.RateLimit.FailOpen }},
	{"logging.level", true, func(a, b *Config) bool { return a.Logging.Level == b.Logging.Level }},

	{"server.host", false, func(a, b *Config) bool { return a.Server.Host == b.Server.Host }},
	{"server.port", false, func(a, b *Config) bool { return a.Server.Port == b.Server.Port }},
	{"upstream.url", false, func(a, b *Config) bool { return a.Upstream.URL == b.Upstream.URL }},
	{"auth.header", false, func(a, b *Config) bool { return a.Auth.Header == b.Auth.Header }},
	{"database.dsn", false, func(a, b *Config) bool { return a.Database.DSN == b.Database.DSN }},
	{"rate_limit.store", false, func(a, b *Config) bool { return a.RateLimit.Store == b.RateLimit.Store }},
	{"rate_limit.atomic", false, func(a, b *Config) bool { return a.RateLimit.IsAtomic() == b.RateLimit.IsAtomic() }},
	{"usage.store", false, func(a, b *Config) bool { return a.Usage.Store == b.Usage.Store }},
	{"billing.mode", false, func(a, b *Config) bool { return a.Billing.Mode == b.Billing.Mode }},
}

// ReloadableFields returns the fields a running app picks up on reload.
func ReloadableFields() []string {
	return fieldNames(true)
}

// NonReloadableFields returns the fields that only take effect on restart.
func NonReloadableFields() []string {
	return fieldNames(false)
}

func fieldNames(live bool) []string {
	var out []string
	for _, f := range fields {
		if f.live == live {
			out = append(out, f.name)
		}
	}
	return out
}

// Changes compares two configurations and returns the changed fields,
// split into those applied on reload and those that need a restart.
func Changes(prev, next *Config) (live, restart []string) {
	for _, f := range fields {
		if f.unchanged(prev, next) {
			continue
		}
		if f.live {
			live = append(live, f.name)
		} else {
			restart = append(restart, f.name)
		}
	}
	return live, restart
}

// Holder keeps the live configuration and reloads it from its file on
// change or on SIGHUP. A config that fails to load never replaces the
// current one.
type Holder struct {
	path   string
	logger zerolog.Logger

	current  atomic.Pointer[Config]
	reloadMu sync.Mutex

	mu        sync.Mutex
	listeners []func(*Config)
	metrics   *metrics.Collector // optional

	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHolder loads the file at path.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg, err := Load(abs)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	h := &Holder{
		path:   abs,
		logger: logger.With().Str("component", "config").Logger(),
		stopCh: make(chan struct{}),
	}
	h.current.Store(cfg)
	return h, nil
}

// SetMetrics makes reloads count in m.
func (h *Holder) SetMetrics(m *metrics.Collector) {
	h.mu.Lock()
	h.metrics = m
	h.mu.Unlock()
}

// Get returns the current configuration. Callers must not modify it.
func (h *Holder) Get() *Config {
	return h.current.Load()
}

// OnChange registers fn to run after every successful reload.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	h.listeners = append(h.listeners, fn)
	h.mu.Unlock()
}

// Reload reads the file again and, if it is valid, swaps it in and
// notifies listeners.
func (h *Holder) Reload() error {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	h.mu.Lock()
	m := h.metrics
	listeners := slices.Clone(h.listeners)
	h.mu.Unlock()

	next, err := Load(h.path)
	if err != nil {
		if m != nil {
			m.ConfigReloadErrors.Inc()
		}
		h.logger.Error().Err(err).Str("path", h.path).Msg("config reload failed, keeping current config")
		return fmt.Errorf("reload config: %w", err)
	}

	prev := h.current.Swap(next)
	if m != nil {
		m.ConfigReloads.Inc()
		m.ConfigLastReload.Set(float64(time.Now().Unix()))
	}

	live, restart := Changes(prev, next)
	h.logger.Info().Strs("applied", live).Msg("configuration reloaded")
	if len(restart) > 0 {
		h.logger.Warn().Strs("fields", restart).Msg("changed fields take effect after restart")
	}

	for _, fn := range listeners {
		fn(next)
	}
	return nil
}

// WatchFile reloads whenever the config file is written or replaced.
// The directory is watched so editors that save by rename are seen.
func (h *Holder) WatchFile() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(h.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(h.path), err)
	}
	h.watcher = w

	go h.watch(w)
	h.logger.Info().Str("path", h.path).Msg("watching config file")
	return nil
}

func (h *Holder) watch(w *fsnotify.Watcher) {
	var pending <-chan time.Time

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != filepath.Base(h.path) || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			pending = time.After(reloadDebounce)

		case <-pending:
			pending = nil
			h.Reload()

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			h.logger.Warn().Err(err).Msg("config watcher error")

		case <-h.stopCh:
			return
		}
	}
}

// WatchSignals reloads on SIGHUP until Stop.
func (h *Holder) WatchSignals() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sig)
		for {
			select {
			case <-sig:
				h.logger.Info().Msg("SIGHUP received")
				h.Reload()
			case <-h.stopCh:
				return
			}
		}
	}()
}

// Stop ends file and signal watching. Safe to call more than once.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}
