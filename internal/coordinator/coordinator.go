// Package coordinator provides all-or-nothing mutual exclusion over
// named hardware resources. The resource table is the only shared
// mutable state in the scheduling core and is reachable solely through
// the Coordinator's methods.
package coordinator

import (
	"log/slog"
	"sync"

	"github.com/me/s7dump/pkg/model"
)

// Coordinator is an in-memory mutual-exclusion table over ResourceKeys.
// There is no fairness guarantee between competing callers: the first
// successful TryAcquire wins.
type Coordinator struct {
	mu     sync.Mutex
	held   map[model.ResourceKey]struct{}
	logger *slog.Logger
}

// New creates an empty Coordinator.
func New(logger *slog.Logger) *Coordinator {
	return &Coordinator{
		held:   make(map[model.ResourceKey]struct{}),
		logger: logger.With("component", "coordinator"),
	}
}

// TryAcquire atomically reserves all of the given keys. If any key is
// already held, nothing is acquired and false is returned. The check
// and the acquisition happen in one critical section, so no caller can
// ever observe a partial acquisition.
func (c *Coordinator) TryAcquire(keys []model.ResourceKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range keys {
		if _, busy := c.held[k]; busy {
			c.logger.Debug("acquire denied", "key", k.String())
			return false
		}
	}
	for _, k := range keys {
		c.held[k] = struct{}{}
	}
	return true
}

// Release unconditionally frees the given keys. Releasing an unheld
// key is a no-op, so failure paths may release without tracking what
// was actually acquired.
func (c *Coordinator) Release(keys []model.ResourceKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range keys {
		delete(c.held, k)
	}
}

// Held reports whether a single key is currently reserved.
func (c *Coordinator) Held(key model.ResourceKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.held[key]
	return ok
}

// Holdings returns a snapshot of all currently reserved keys.
func (c *Coordinator) Holdings() []model.ResourceKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]model.ResourceKey, 0, len(c.held))
	for k := range c.held {
		keys = append(keys, k)
	}
	return keys
}
