package hexapod

import (
	"sync"

	"github.com/nasa-jpl/hexsrv/util"
)

// Memory persists per-axis settings across restarts.  settings.Store
// satisfies it; tests use a map.
type Memory interface {
	// AxisInverted returns the persisted inversion flag, false if never set
	AxisInverted(axis string) (bool, error)

	// SetAxisInverted persists the inversion flag
	SetAxisInverted(axis string, inverted bool) error
}

// Axis presents one axis of the platform as an independently addressable
// device.  It holds no motion state of its own; every read goes through the
// controller's cache and every command goes to the shared link.  The one
// piece of local state is the inversion flag, which flips the sign of
// positions crossing the boundary in both directions and is persisted
// through Memory.
//
// An Axis whose name the controller does not report is permanently Fault:
// it is constructed so the device surface exists, but every operation on it
// returns UnknownAxisError.
type Axis struct {
	ctl  *Controller
	name string
	mem  Memory

	known   bool
	min     float64
	max     float64
	unit    string
	limiter util.Limiter

	mu       sync.Mutex
	inverted bool
}

// NewAxis builds the view of one named axis.  For a known axis the travel
// range and unit are captured from the controller once, and the persisted
// inversion flag is loaded.  For an unknown axis the view is returned in
// its permanent-fault form with no controller traffic.
func NewAxis(ctl *Controller, name string, mem Memory) (*Axis, error) {
	a := &Axis{ctl: ctl, name: name, mem: mem}
	if !ctl.cache.Known(name) {
		return a, nil
	}
	a.known = true
	min, max, err := ctl.AxisBounds(name)
	if err != nil {
		return nil, err
	}
	a.min = min
	a.max = max
	a.limiter = util.Limiter{Min: min, Max: max}
	unit, err := ctl.AxisUnit(name)
	if err != nil {
		return nil, err
	}
	a.unit = unit
	if mem != nil {
		inverted, err := mem.AxisInverted(name)
		if err != nil {
			return nil, err
		}
		a.inverted = inverted
	}
	return a, nil
}

// Name returns the controller-side axis name
func (a *Axis) Name() string {
	return a.name
}

// Known reports whether the controller reported this axis at startup
func (a *Axis) Known() bool {
	return a.known
}

// sign returns the coordinate transform between view and controller frames.
// The transform is its own inverse, so it applies on both reads and writes.
func (a *Axis) sign() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inverted {
		return -1
	}
	return 1
}

// Position returns the axis position in the view frame
func (a *Axis) Position() (float64, error) {
	if !a.known {
		return 0, UnknownAxisError{Axis: a.name}
	}
	snap, err := a.ctl.QueryAxisState(a.name)
	if err != nil {
		return 0, err
	}
	return a.sign() * snap.Position, nil
}

// MoveTo commands an absolute move to a position in the view frame and
// returns the controller's result code, zero if the move was accepted
func (a *Axis) MoveTo(pos float64) (int, error) {
	if !a.known {
		return 0, UnknownAxisError{Axis: a.name}
	}
	return a.ctl.SetPosition(a.name, a.sign()*pos)
}

// TargetInBounds reports whether a view-frame target lies within the axis
// travel range
func (a *Axis) TargetInBounds(pos float64) bool {
	if !a.known {
		return false
	}
	return a.limiter.Check(a.sign() * pos)
}

// LimitSwitch reports whether the axis is at a limit switch
func (a *Axis) LimitSwitch() (bool, error) {
	if !a.known {
		return false, UnknownAxisError{Axis: a.name}
	}
	snap, err := a.ctl.QueryAxisState(a.name)
	if err != nil {
		return false, err
	}
	return snap.AtLimit, nil
}

// Referenced reports whether the axis has a valid reference
func (a *Axis) Referenced() (bool, error) {
	if !a.known {
		return false, UnknownAxisError{Axis: a.name}
	}
	snap, err := a.ctl.QueryAxisState(a.name)
	if err != nil {
		return false, err
	}
	return snap.Referenced, nil
}

// Velocity returns the platform velocity setpoint.  Velocity is a platform
// property on this controller; all axes report the same value.
func (a *Axis) Velocity() (float64, error) {
	if !a.known {
		return 0, UnknownAxisError{Axis: a.name}
	}
	snap, err := a.ctl.QueryAxisState(a.name)
	if err != nil {
		return 0, err
	}
	return snap.Velocity, nil
}

// SetVelocity sets the platform velocity setpoint, affecting every axis
func (a *Axis) SetVelocity(v float64) error {
	if !a.known {
		return UnknownAxisError{Axis: a.name}
	}
	return a.ctl.SetSystemVelocity(v)
}

// Inverted returns the view-frame inversion flag
func (a *Axis) Inverted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inverted
}

// SetInverted sets and persists the inversion flag.  The change applies to
// subsequent reads and commands only; it does not move the axis.
func (a *Axis) SetInverted(inverted bool) error {
	if !a.known {
		return UnknownAxisError{Axis: a.name}
	}
	if a.mem != nil {
		if err := a.mem.SetAxisInverted(a.name, inverted); err != nil {
			return err
		}
	}
	a.mu.Lock()
	a.inverted = inverted
	a.mu.Unlock()
	return nil
}

// Bounds returns the controller-frame travel range captured at construction
func (a *Axis) Bounds() (float64, float64) {
	return a.min, a.max
}

// Unit returns the physical unit of the axis
func (a *Axis) Unit() string {
	return a.unit
}

// Halt smoothly decelerates the platform.  The controller cannot halt a
// single axis, so this affects all of them.
func (a *Axis) Halt() {
	a.ctl.Halt()
}

// Stop aborts all platform motion, including reference searches
func (a *Axis) Stop() {
	a.ctl.Stop()
}

// State derives the axis state.  An unknown axis is permanently Fault; an
// unreachable controller is Fault; a moving axis is Moving; an idle but
// unreferenced axis is Warn, since its reported position is unverified;
// otherwise the axis is On.
func (a *Axis) State() DeviceState {
	if !a.known {
		return Fault
	}
	snap, err := a.ctl.QueryAxisState(a.name)
	if err != nil {
		return Fault
	}
	if snap.Moving {
		return Moving
	}
	if !snap.Referenced {
		return Warn
	}
	return On
}
