package gcs2

import (
	"math"
	"sync"
	"time"
)

// mockMove is an in-flight simulated motion.  Position is interpolated
// against the wall clock, so readers see a smooth trajectory without a
// background goroutine.
type mockMove struct {
	start, end time.Time
	from, to   float64
}

func (m mockMove) at(now time.Time) float64 {
	if !now.Before(m.end) {
		return m.to
	}
	if now.Before(m.start) {
		return m.from
	}
	frac := float64(now.Sub(m.start)) / float64(m.end.Sub(m.start))
	return m.from + frac*(m.to-m.from)
}

// Mock simulates a C-887 hexapod controller in memory.  It implements the
// same surface as Device and mimics the controller's error register
// semantics: command rejections are reported through LastErrorCode, not as
// Go errors.
type Mock struct {
	// RefDuration is how long a simulated reference search takes
	RefDuration time.Duration

	mu         sync.Mutex
	axes       []string
	units      map[string]string
	min, max   map[string]float64
	pos        map[string]float64
	moves      map[string]mockMove
	referenced map[string]bool
	refEnd     time.Time
	refActive  bool
	vel        float64
	pivot      Pivot
	errCode    int
}

// NewMock returns a Mock with the axis complement and travel ranges of an
// H-811 class hexapod, unreferenced, with a 10 unit/s velocity setpoint.
func NewMock() *Mock {
	m := &Mock{
		RefDuration: 100 * time.Millisecond,
		axes:        []string{"X", "Y", "Z", "U", "V", "W"},
		units:       map[string]string{"X": "MM", "Y": "MM", "Z": "MM", "U": "DEG", "V": "DEG", "W": "DEG"},
		min:         map[string]float64{"X": -17, "Y": -16, "Z": -6.5, "U": -10, "V": -10, "W": -21},
		max:         map[string]float64{"X": 17, "Y": 16, "Z": 6.5, "U": 10, "V": 10, "W": 21},
		pos:         map[string]float64{},
		moves:       map[string]mockMove{},
		referenced:  map[string]bool{},
		vel:         10,
	}
	for _, ax := range m.axes {
		m.pos[ax] = 0
		m.referenced[ax] = false
	}
	return m
}

// settle folds finished moves and reference searches into the settled state.
// callers must hold m.mu.
func (m *Mock) settle(now time.Time) {
	for ax, mv := range m.moves {
		if !now.Before(mv.end) {
			m.pos[ax] = mv.to
			delete(m.moves, ax)
		}
	}
	if m.refActive && !now.Before(m.refEnd) {
		m.refActive = false
		for _, ax := range m.axes {
			m.referenced[ax] = true
			m.pos[ax] = 0
		}
	}
}

func (m *Mock) known(axis string) bool {
	for _, ax := range m.axes {
		if ax == axis {
			return true
		}
	}
	return false
}

// Identification implements the Device surface
func (m *Mock) Identification() (string, error) {
	return "Physik Instrumente, C-887 (mock), 0, 1.0.0.0", nil
}

// AxisNames returns the simulated axis complement
func (m *Mock) AxisNames() ([]string, error) {
	out := make([]string, len(m.axes))
	copy(out, m.axes)
	return out, nil
}

// Positions returns all axis positions, interpolating in-flight moves
func (m *Mock) Positions() (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.settle(now)
	out := make(map[string]float64, len(m.axes))
	for _, ax := range m.axes {
		if mv, ok := m.moves[ax]; ok {
			out[ax] = mv.at(now)
		} else {
			out[ax] = m.pos[ax]
		}
	}
	return out, nil
}

// Limits reports no limit switch ever tripped
func (m *Mock) Limits() (map[string]bool, error) {
	out := make(map[string]bool, len(m.axes))
	for _, ax := range m.axes {
		out[ax] = false
	}
	return out, nil
}

// Referenced returns each axis' reference state
func (m *Mock) Referenced() (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settle(time.Now())
	out := make(map[string]bool, len(m.axes))
	for _, ax := range m.axes {
		out[ax] = m.referenced[ax]
	}
	return out, nil
}

// Moving returns each axis' motion state
func (m *Mock) Moving(axes []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.settle(now)
	if axes == nil {
		axes = m.axes
	}
	out := make(map[string]bool, len(axes))
	for _, ax := range axes {
		_, inFlight := m.moves[ax]
		out[ax] = inFlight || m.refActive
	}
	return out, nil
}

// SystemVelocity returns the platform velocity setpoint
func (m *Mock) SystemVelocity() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vel, nil
}

// SetSystemVelocity sets the platform velocity setpoint
func (m *Mock) SetSystemVelocity(vel float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if vel <= 0 {
		m.errCode = 8
		return nil
	}
	m.vel = vel
	return nil
}

// Pivot returns the rotation pivot point
func (m *Mock) Pivot() (Pivot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pivot, nil
}

// SetPivot sets the rotation pivot point
func (m *Mock) SetPivot(axes []string, values []float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, ax := range axes {
		switch ax {
		case "R":
			m.pivot.R = values[i]
		case "S":
			m.pivot.S = values[i]
		case "T":
			m.pivot.T = values[i]
		default:
			m.errCode = 17
			return nil
		}
	}
	return nil
}

// MoveAbs starts a simulated move.  Mirroring the hardware, rejections
// (unknown axis, unreferenced axis, target out of travel) land in the
// error register rather than returning a Go error.
func (m *Mock) MoveAbs(axis string, pos float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.settle(now)
	if !m.known(axis) {
		m.errCode = 23
		return nil
	}
	if !m.referenced[axis] {
		m.errCode = 5
		return nil
	}
	if pos < m.min[axis] || pos > m.max[axis] {
		m.errCode = 7
		return nil
	}
	from := m.pos[axis]
	if mv, ok := m.moves[axis]; ok {
		from = mv.at(now)
	}
	dur := time.Duration(math.Abs(pos-from) / m.vel * float64(time.Second))
	m.moves[axis] = mockMove{start: now, end: now.Add(dur), from: from, to: pos}
	return nil
}

// FindReferences starts a simulated reference search for all axes
func (m *Mock) FindReferences() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moves = map[string]mockMove{}
	m.refActive = true
	m.refEnd = time.Now().Add(m.RefDuration)
	return nil
}

// Halt stops commanded motion, freezing axes where they are.  A reference
// search in progress continues.  Sets code 10 like the hardware.
func (m *Mock) Halt(noraise bool) error {
	m.mu.Lock()
	now := time.Now()
	m.settle(now)
	for ax, mv := range m.moves {
		m.pos[ax] = mv.at(now)
		delete(m.moves, ax)
	}
	m.errCode = 10
	m.mu.Unlock()
	if noraise {
		return nil
	}
	return m.PopError()
}

// Stop aborts everything, including a reference search
func (m *Mock) Stop(noraise bool) error {
	m.mu.Lock()
	now := time.Now()
	m.settle(now)
	for ax, mv := range m.moves {
		m.pos[ax] = mv.at(now)
		delete(m.moves, ax)
	}
	m.refActive = false
	m.errCode = 10
	m.mu.Unlock()
	if noraise {
		return nil
	}
	return m.PopError()
}

// AxisBounds returns the travel range of an axis
func (m *Mock) AxisBounds(axis string) (float64, float64, error) {
	if !m.known(axis) {
		return 0, 0, Err(15)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.min[axis], m.max[axis], nil
}

// AxisUnit returns the physical unit of an axis
func (m *Mock) AxisUnit(axis string) (string, error) {
	if !m.known(axis) {
		return "", Err(15)
	}
	return m.units[axis], nil
}

// LastErrorCode pops the simulated error register
func (m *Mock) LastErrorCode() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	code := m.errCode
	m.errCode = 0
	return code, nil
}

// PopError returns the last error from the register, or nil
func (m *Mock) PopError() error {
	code, err := m.LastErrorCode()
	if err != nil {
		return err
	}
	return Err(code)
}

// Reference marks every axis referenced immediately, for tests that do not
// want to wait out a simulated search
func (m *Mock) Reference() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refActive = false
	for _, ax := range m.axes {
		m.referenced[ax] = true
	}
}
