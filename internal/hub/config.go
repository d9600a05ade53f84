package hub

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/netresearch/hub-server/internal/node"
)

// Config is the hub-wide configuration overlay: a stack of hashfile
// sources merged into one logical Mapping, later sources in the stack
// overriding earlier ones key-for-key (spec §4.D). It is refreshed on a
// ticker the same way the teacher's ldap_cache.Manager refreshes its
// directory caches — a background goroutine started by Run, stopped by
// Stop, polling each source's mtime and re-merging only when something
// changed.
type Config struct {
	hub     *Hub
	sources []string // hashfile paths, in override order

	mu         sync.RWMutex
	merged     *node.Mapping
	mtimes     map[string]time.Time
	aggregate  time.Time // max(mtimes), the single "has anything changed" signal
	stop       chan struct{}
	stopOnce   sync.Once
	refreshDur time.Duration
}

func newConfig(h *Hub) *Config {
	return &Config{
		hub:        h,
		merged:     node.NewMapping(),
		mtimes:     map[string]time.Time{},
		stop:       make(chan struct{}),
		refreshDur: 30 * time.Second,
	}
}

// AddSource appends path (relative to the hub root unless absolute) to the
// overlay stack. Sources added later override earlier ones.
func (c *Config) AddSource(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !filepath.IsAbs(path) {
		path = filepath.Join(c.hub.root, path)
	}

	c.sources = append(c.sources, path)
}

// Config returns the hub's configuration overlay.
func (h *Hub) Config() *Config { return h.config }

// Aggregate returns the most recent mtime among every configured source,
// the single value internal/rcache compares against a cached response's
// recorded aggregate to invalidate on any config change (spec §4.H).
func (c *Config) Aggregate() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.aggregate
}

// Get reads key from the merged overlay.
func (c *Config) Get(key string) (node.Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.merged.Get(key)
}

// Snapshot returns the current merged configuration, for the debug/cache
// endpoint and for handing to responders that need a read-only view.
func (c *Config) Snapshot() *node.Mapping {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.merged.Clone()
}

// Refresh re-reads every source whose mtime has advanced since the last
// refresh and recomputes the merged view. It is safe to call concurrently
// with Get/Snapshot and with itself; only one refresh does real work at a
// time, chosen by acquiring mu for the whole pass (sources are small
// hashfiles, so this is not a contended hot path).
func (c *Config) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := false
	newest := c.aggregate

	for _, src := range c.sources {
		fi, err := os.Stat(src)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return err
		}

		if prev, ok := c.mtimes[src]; ok && !fi.ModTime().After(prev) {
			if fi.ModTime().After(newest) {
				newest = fi.ModTime()
			}

			continue
		}

		changed = true
		c.mtimes[src] = fi.ModTime()

		if fi.ModTime().After(newest) {
			newest = fi.ModTime()
		}
	}

	if !changed {
		c.aggregate = newest

		return nil
	}

	merged := node.NewMapping()

	for _, src := range c.sources {
		raw, err := os.ReadFile(src) // #nosec G304 -- sources are operator-configured, not request input
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return err
		}

		layer, err := node.ParseHashFile(raw)
		if err != nil {
			return err
		}

		for _, k := range layer.Keys() {
			v, _ := layer.Get(k)
			merged.Set(k, v)
		}
	}

	c.merged = merged
	c.aggregate = newest

	return nil
}

// Run starts the background refresh loop, polling at the configured
// interval until ctx is canceled or Stop is called. Intended to be
// launched in its own goroutine alongside the web server, mirroring the
// teacher's cache-manager Run/Stop lifecycle.
func (c *Config) Run(ctx context.Context) {
	if err := c.Refresh(); err != nil {
		log.Error().Err(err).Msg("initial config overlay load failed")
	}

	t := time.NewTicker(c.refreshDur)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-t.C:
			if err := c.Refresh(); err != nil {
				log.Error().Err(err).Msg("config overlay refresh failed")
			}
		}
	}
}

// Stop signals Run to terminate. Idempotent.
func (c *Config) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}
