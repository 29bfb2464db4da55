// Package claim implements the process-wide single-flight rule for audible
// playback: at most one registered producer is audible at a time.
//
// Every component that can produce sound — the live session output, one-shot
// speech playback, the global media player, and per-message players —
// registers a stop function under a unique owner ID. Before becoming
// audible a producer calls [Coordinator.Acquire], which stops every other
// registered producer before returning. Only playback is silenced; the live
// session microphone is unaffected.
//
// The Coordinator is an explicit, injectable object rather than module
// state, so subsystems can be tested in isolation with their own instance.
package claim

import (
	"sync"

	"github.com/google/uuid"
)

// Coordinator arbitrates the audible-playback claim between producers.
// All methods are safe for concurrent use.
type Coordinator struct {
	mu     sync.Mutex
	stops  map[string]func()
	holder string
}

// NewCoordinator creates an empty Coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{stops: make(map[string]func())}
}

// NewOwnerID returns a unique owner identifier with a human-readable prefix,
// e.g. "live-7f3c…". Use one ID per producer instance.
func NewOwnerID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// Register records stop as the silencer for owner. The stop function must be
// idempotent and must not block; it is invoked whenever another producer
// acquires the claim. Registering an existing owner replaces its stop
// function.
func (c *Coordinator) Register(owner string, stop func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops[owner] = stop
}

// Unregister removes owner. If owner currently holds the claim, the claim is
// released.
func (c *Coordinator) Unregister(owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.stops, owner)
	if c.holder == owner {
		c.holder = ""
	}
}

// Acquire makes owner the sole audible producer. Every other registered
// producer's stop function has been invoked by the time Acquire returns.
// Acquiring an already-held claim is a no-op.
func (c *Coordinator) Acquire(owner string) {
	c.mu.Lock()
	if c.holder == owner {
		c.mu.Unlock()
		return
	}
	c.holder = owner
	var stops []func()
	for id, stop := range c.stops {
		if id != owner {
			stops = append(stops, stop)
		}
	}
	c.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
}

// Release clears the claim if owner still holds it. Releasing a claim held
// by someone else is a no-op — the claim has already been handed off.
func (c *Coordinator) Release(owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.holder == owner {
		c.holder = ""
	}
}

// Holder returns the owner ID currently holding the claim, or "" if none.
func (c *Coordinator) Holder() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holder
}
