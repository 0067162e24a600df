package hexapod

import (
	"fmt"
	"sync"
	"time"

	"github.com/nasa-jpl/hexsrv/gcs2"
)

// DefaultRefreshInterval is the minimum time between controller polls.
// Accesses that arrive within one interval of the last successful refresh
// are served from the cached snapshot.
const DefaultRefreshInterval = 100 * time.Millisecond

// AxisSnapshot is the cached state of one axis, in controller coordinates
type AxisSnapshot struct {
	Position   float64 `json:"pos"`
	AtLimit    bool    `json:"atLimit"`
	Moving     bool    `json:"moving"`
	Referenced bool    `json:"referenced"`

	// Velocity is the platform setpoint, the same for every axis
	Velocity float64 `json:"velocity"`
}

// UnknownAxisError indicates a request for an axis the controller did not
// report at startup
type UnknownAxisError struct {
	Axis string
}

func (e UnknownAxisError) Error() string {
	return fmt.Sprintf("axis %q is not reported by the controller", e.Axis)
}

// controllerState is one coherent poll of the controller.  It is replaced
// wholesale on refresh, never mutated in place.
type controllerState struct {
	positions  map[string]float64
	limits     map[string]bool
	moving     map[string]bool
	referenced map[string]bool
	velocity   float64
	pivot      gcs2.Pivot
}

// Cache owns a controller link and throttles state queries against it.  Any
// number of goroutines may read through the cache; refreshes are serialized
// on a single mutex, so a reader that arrives during an in-flight poll waits
// for that poll's result instead of triggering another.
type Cache struct {
	link     Link
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	axes      []string
	axisSet   map[string]struct{}
	state     controllerState
	last      time.Time
	populated bool
	failed    bool
}

// NewCache queries the controller for its axis list and returns a cache
// around the link.  The axis list is fixed for the life of the cache.
func NewCache(link Link, interval time.Duration) (*Cache, error) {
	axes, err := link.AxisNames()
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(axes))
	for _, ax := range axes {
		set[ax] = struct{}{}
	}
	return &Cache{
		link:     link,
		interval: interval,
		now:      time.Now,
		axes:     axes,
		axisSet:  set,
	}, nil
}

// Refresh polls the controller if the cached state is older than the refresh
// interval, otherwise it is a no-op.  On failure the previous snapshot and
// its timestamp are kept, so the next access retries immediately.
func (c *Cache) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if c.populated && now.Sub(c.last) < c.interval {
		return nil
	}
	positions, err := c.link.Positions()
	if err != nil {
		c.failed = true
		return err
	}
	limits, err := c.link.Limits()
	if err != nil {
		c.failed = true
		return err
	}
	moving, err := c.link.Moving(nil)
	if err != nil {
		c.failed = true
		return err
	}
	referenced, err := c.link.Referenced()
	if err != nil {
		c.failed = true
		return err
	}
	velocity, err := c.link.SystemVelocity()
	if err != nil {
		c.failed = true
		return err
	}
	pivot, err := c.link.Pivot()
	if err != nil {
		c.failed = true
		return err
	}
	c.state = controllerState{
		positions:  positions,
		limits:     limits,
		moving:     moving,
		referenced: referenced,
		velocity:   velocity,
		pivot:      pivot,
	}
	c.last = now
	c.populated = true
	c.failed = false
	return nil
}

// Invalidate expires the cached state, so the next access polls the
// controller regardless of how recently the last refresh ran.  Callers use
// it after a command whose effect the very next read must observe.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.last = time.Time{}
	c.mu.Unlock()
}

// Snapshot returns the cached state of one axis.  It does not refresh;
// callers refresh first and decide how to treat a stale or failed read.
func (c *Cache) Snapshot(axis string) (AxisSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.axisSet[axis]; !ok {
		return AxisSnapshot{}, UnknownAxisError{Axis: axis}
	}
	return AxisSnapshot{
		Position:   c.state.positions[axis],
		AtLimit:    c.state.limits[axis],
		Moving:     c.state.moving[axis],
		Referenced: c.state.referenced[axis],
		Velocity:   c.state.velocity,
	}, nil
}

// SystemVelocity returns the cached platform velocity setpoint
func (c *Cache) SystemVelocity() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.velocity
}

// Pivot returns the cached rotation pivot point
func (c *Cache) Pivot() gcs2.Pivot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.pivot
}

// Axes returns the axis names reported by the controller at startup, in
// controller order
func (c *Cache) Axes() []string {
	out := make([]string, len(c.axes))
	copy(out, c.axes)
	return out
}

// Known reports whether the controller reported the axis at startup
func (c *Cache) Known(axis string) bool {
	_, ok := c.axisSet[axis]
	return ok
}

// AnyMoving reports whether any axis was moving in the cached state
func (c *Cache) AnyMoving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.state.moving {
		if m {
			return true
		}
	}
	return false
}

// Failed reports whether the most recent refresh attempt failed
func (c *Cache) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}
