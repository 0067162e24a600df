/*Package hexapod contains the device logic for serving a PI hexapod.

The package is layered.  A Cache owns the controller link and coalesces
state queries from any number of consumers into at most one controller
round-trip per refresh interval.  A Controller wraps the cache with the
command surface of the whole platform (moves, velocity, pivot point,
reference searches, halt and stop).  An Axis presents one named axis of
that platform as an independently addressable device with a local
coordinate transform (sign inversion) and its own derived state.

Nothing in this package talks to the network directly; all controller
traffic flows through the Link interface, which gcs2.Device satisfies for
real hardware and gcs2.Mock satisfies in memory.
*/
package hexapod

import (
	"github.com/nasa-jpl/hexsrv/gcs2"
)

// Link is the command surface of a GCS2 motion controller consumed by this
// package.  All calls block for the duration of the underlying network
// exchange; only one command may be in flight at a time, which the gcs2
// types enforce internally.
type Link interface {
	// Identification returns the controller's identity string
	Identification() (string, error)

	// AxisNames lists the axes the controller reports
	AxisNames() ([]string, error)

	// Positions returns the position of every axis
	Positions() (map[string]float64, error)

	// Limits returns the limit switch state of every axis
	Limits() (map[string]bool, error)

	// Moving returns the motion state of the given axes (all axes if nil)
	Moving([]string) (map[string]bool, error)

	// Referenced returns the reference state of every axis
	Referenced() (map[string]bool, error)

	// SystemVelocity returns the platform velocity setpoint
	SystemVelocity() (float64, error)

	// SetSystemVelocity sets the platform velocity setpoint, shared by all axes
	SetSystemVelocity(float64) error

	// Pivot returns the rotation pivot point
	Pivot() (gcs2.Pivot, error)

	// SetPivot sets the rotation pivot point
	SetPivot(axes []string, values []float64) error

	// MoveAbs commands an absolute move of one axis, without handshaking
	MoveAbs(axis string, pos float64) error

	// LastErrorCode pops the controller's error register
	LastErrorCode() (int, error)

	// FindReferences starts the reference search for all axes
	FindReferences() error

	// Halt smoothly stops motion without aborting a reference search
	Halt(noraise bool) error

	// Stop aborts all motion, including reference searches
	Stop(noraise bool) error

	// AxisBounds returns the travel range of an axis
	AxisBounds(axis string) (float64, float64, error)

	// AxisUnit returns the physical unit of an axis
	AxisUnit(axis string) (string, error)
}

var (
	_ Link = (*gcs2.Device)(nil)
	_ Link = (*gcs2.Mock)(nil)
)

// DeviceState is the operational state of a device, derived on every access
// and never stored
type DeviceState int

// device states, in escalating order of operator attention
const (
	// Off - the device is not communicating
	Off DeviceState = iota

	// On - idle and ready for commands
	On

	// Moving - at least one axis is in motion
	Moving

	// Warn - operable, but position is unverified (axis not referenced)
	Warn

	// Fault - the controller is unreachable, an axis is misconfigured, or a
	// reference search failed
	Fault
)

func (s DeviceState) String() string {
	switch s {
	case Off:
		return "OFF"
	case On:
		return "ON"
	case Moving:
		return "MOVING"
	case Warn:
		return "WARN"
	case Fault:
		return "FAULT"
	default:
		return "UNKNOWN"
	}
}
