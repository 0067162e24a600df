package hexapod

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/nasa-jpl/hexsrv/gcs2"
)

// ErrReferenceFailed indicates a reference search that ran to completion
// with at least one axis still unreferenced
var ErrReferenceFailed = errors.New("hexapod: reference search completed with unreferenced axes")

// pivotCoordinates are the GCS2 pivot coordinate identifiers, paired with
// the platform translation axes X, Y, Z in that order
var pivotCoordinates = []string{"R", "S", "T"}

// Controller exposes the command surface of the whole hexapod platform.
// Reads are served through its cache; writes go to the link directly.  An
// accepted move expires the cache, so the very next read observes the
// motion instead of a pre-move snapshot.
type Controller struct {
	link  Link
	cache *Cache

	// refPoll is the interval between reference-search progress polls
	refPoll time.Duration

	mu        sync.Mutex
	refFailed bool
}

// New queries the controller for its axis list and returns a Controller
// around the link
func New(link Link) (*Controller, error) {
	cache, err := NewCache(link, DefaultRefreshInterval)
	if err != nil {
		return nil, err
	}
	return &Controller{
		link:    link,
		cache:   cache,
		refPoll: 100 * time.Millisecond,
	}, nil
}

// Identification returns the controller's identity string
func (c *Controller) Identification() (string, error) {
	return c.link.Identification()
}

// AxisNames returns the axis names reported by the controller at startup
func (c *Controller) AxisNames() []string {
	return c.cache.Axes()
}

// QueryAxisState refreshes the cache if it is stale and returns the state
// of one axis
func (c *Controller) QueryAxisState(axis string) (AxisSnapshot, error) {
	if err := c.cache.Refresh(); err != nil {
		return AxisSnapshot{}, err
	}
	return c.cache.Snapshot(axis)
}

// SetPosition commands an absolute move of one axis and returns the
// controller's result code for the command.  Zero means the move was
// accepted; a nonzero code is the controller's reason for rejecting it
// (e.g. unreferenced axis, target out of limits).  The error return covers
// the exchange itself, not the command's outcome.
func (c *Controller) SetPosition(axis string, pos float64) (int, error) {
	if !c.cache.Known(axis) {
		return 0, UnknownAxisError{Axis: axis}
	}
	if err := c.link.MoveAbs(axis, pos); err != nil {
		return 0, err
	}
	code, err := c.link.LastErrorCode()
	if err == nil && code == 0 {
		// the motion just started; the next state read must see it rather
		// than a snapshot taken before the move
		c.cache.Invalidate()
	}
	return code, err
}

// SystemVelocity refreshes the cache if it is stale and returns the
// platform velocity setpoint
func (c *Controller) SystemVelocity() (float64, error) {
	if err := c.cache.Refresh(); err != nil {
		return 0, err
	}
	return c.cache.SystemVelocity(), nil
}

// SetSystemVelocity sets the platform velocity setpoint.  The setpoint is
// shared by all axes; there is no per-axis velocity on this controller.
func (c *Controller) SetSystemVelocity(v float64) error {
	return c.link.SetSystemVelocity(v)
}

// PivotPoint refreshes the cache if it is stale and returns the rotation
// pivot point
func (c *Controller) PivotPoint() (gcs2.Pivot, error) {
	if err := c.cache.Refresh(); err != nil {
		return gcs2.Pivot{}, err
	}
	return c.cache.Pivot(), nil
}

// SetPivotPoint sets the rotation pivot point from its X, Y, Z coordinates
func (c *Controller) SetPivotPoint(x, y, z float64) error {
	return c.link.SetPivot(pivotCoordinates, []float64{x, y, z})
}

// FindReferences starts a reference search for all axes and blocks until it
// completes, polling the controller for progress.  The search finishes when
// every axis reports referenced; if motion stops before that, the search
// failed and the platform is left in Fault until another search succeeds.
// The controller serializes commands, so other callers block for the
// duration of the search.
func (c *Controller) FindReferences() error {
	if err := c.link.FindReferences(); err != nil {
		c.setRefFailed(true)
		return err
	}
	for {
		referenced, err := c.link.Referenced()
		if err != nil {
			c.setRefFailed(true)
			return err
		}
		all := true
		for _, ok := range referenced {
			if !ok {
				all = false
				break
			}
		}
		if all {
			c.setRefFailed(false)
			return nil
		}
		moving, err := c.link.Moving(nil)
		if err != nil {
			c.setRefFailed(true)
			return err
		}
		any := false
		for _, m := range moving {
			if m {
				any = true
				break
			}
		}
		if !any {
			c.setRefFailed(true)
			return ErrReferenceFailed
		}
		time.Sleep(c.refPoll)
	}
}

func (c *Controller) setRefFailed(v bool) {
	c.mu.Lock()
	c.refFailed = v
	c.mu.Unlock()
}

// Halt smoothly decelerates all motion.  A reference search in progress is
// not interrupted.  Halting an idle controller is not an error; any
// controller complaint is logged and swallowed.
func (c *Controller) Halt() {
	if err := c.link.Halt(true); err != nil {
		log.Printf("halt: %v", err)
	}
}

// Stop aborts all motion immediately, including reference searches.  Like
// Halt, controller complaints are logged and swallowed.
func (c *Controller) Stop() {
	if err := c.link.Stop(true); err != nil {
		log.Printf("stop: %v", err)
	}
}

// AxisBounds returns the travel range of an axis
func (c *Controller) AxisBounds(axis string) (float64, float64, error) {
	if !c.cache.Known(axis) {
		return 0, 0, UnknownAxisError{Axis: axis}
	}
	return c.link.AxisBounds(axis)
}

// AxisUnit returns the physical unit of an axis
func (c *Controller) AxisUnit(axis string) (string, error) {
	if !c.cache.Known(axis) {
		return "", UnknownAxisError{Axis: axis}
	}
	return c.link.AxisUnit(axis)
}

// DeviceState derives the platform state from the cached controller state.
// An unreachable controller or a failed reference search is Fault; any
// moving axis is Moving; otherwise the platform is On.
func (c *Controller) DeviceState() DeviceState {
	err := c.cache.Refresh()
	c.mu.Lock()
	refFailed := c.refFailed
	c.mu.Unlock()
	if err != nil || c.cache.Failed() || refFailed {
		return Fault
	}
	if c.cache.AnyMoving() {
		return Moving
	}
	return On
}
