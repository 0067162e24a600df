package hexapod

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nasa-jpl/hexsrv/gcs2"
)

// stubLink is a hand-controlled Link.  It counts refreshes through the
// Positions call, which the cache issues exactly once per poll, and can be
// made to fail on demand.
type stubLink struct {
	axes  []string
	pos   map[string]float64
	lim   map[string]bool
	mov   map[string]bool
	ref   map[string]bool
	vel   float64
	pivot gcs2.Pivot

	fail  error
	polls int
}

func newStubLink() *stubLink {
	return &stubLink{
		axes: []string{"X", "Y"},
		pos:  map[string]float64{"X": 1.5, "Y": -2.5},
		lim:  map[string]bool{"X": false, "Y": true},
		mov:  map[string]bool{"X": false, "Y": false},
		ref:  map[string]bool{"X": true, "Y": true},
		vel:  10,
	}
}

func (s *stubLink) Identification() (string, error) { return "stub", nil }

func (s *stubLink) AxisNames() ([]string, error) { return s.axes, nil }

func (s *stubLink) Positions() (map[string]float64, error) {
	s.polls++
	if s.fail != nil {
		return nil, s.fail
	}
	return s.pos, nil
}

func (s *stubLink) Limits() (map[string]bool, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	return s.lim, nil
}

func (s *stubLink) Moving([]string) (map[string]bool, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	return s.mov, nil
}

func (s *stubLink) Referenced() (map[string]bool, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	return s.ref, nil
}

func (s *stubLink) SystemVelocity() (float64, error) {
	if s.fail != nil {
		return 0, s.fail
	}
	return s.vel, nil
}

func (s *stubLink) SetSystemVelocity(v float64) error { s.vel = v; return nil }

func (s *stubLink) Pivot() (gcs2.Pivot, error) {
	if s.fail != nil {
		return gcs2.Pivot{}, s.fail
	}
	return s.pivot, nil
}

func (s *stubLink) SetPivot(axes []string, values []float64) error { return nil }

func (s *stubLink) MoveAbs(axis string, pos float64) error { return nil }

func (s *stubLink) LastErrorCode() (int, error) { return 0, nil }

func (s *stubLink) FindReferences() error { return nil }

func (s *stubLink) Halt(noraise bool) error { return nil }

func (s *stubLink) Stop(noraise bool) error { return nil }

func (s *stubLink) AxisBounds(axis string) (float64, float64, error) { return -10, 10, nil }

func (s *stubLink) AxisUnit(axis string) (string, error) { return "MM", nil }

func TestCacheThrottlesRefresh(t *testing.T) {
	s := newStubLink()
	c, err := NewCache(s, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	now := time.Now()
	c.now = func() time.Time { return now }

	if err := c.Refresh(); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if s.polls != 1 {
		t.Errorf("expected 1 poll after first refresh, got %d", s.polls)
	}
	// inside the interval, no traffic
	for i := 0; i < 10; i++ {
		if err := c.Refresh(); err != nil {
			t.Fatalf("refresh: %v", err)
		}
	}
	now = now.Add(99 * time.Millisecond)
	if err := c.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if s.polls != 1 {
		t.Errorf("expected refreshes inside the interval to be served from cache, got %d polls", s.polls)
	}
	// past the interval, exactly one more
	now = now.Add(2 * time.Millisecond)
	if err := c.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if s.polls != 2 {
		t.Errorf("expected 2 polls after the interval elapsed, got %d", s.polls)
	}
}

func TestCacheCoalescesConcurrentRefresh(t *testing.T) {
	s := newStubLink()
	c, err := NewCache(s, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	now := time.Now()
	c.now = func() time.Time { return now }

	// every caller blocks on the in-flight poll and returns its result, so
	// a stampede costs exactly one controller round-trip
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Refresh()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("refresh: %v", err)
		}
	}
	if s.polls != 1 {
		t.Errorf("expected concurrent refreshes to coalesce onto 1 poll, got %d", s.polls)
	}
}

func TestCacheSnapshotReflectsController(t *testing.T) {
	s := newStubLink()
	c, err := NewCache(s, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	now := time.Now()
	c.now = func() time.Time { return now }
	if err := c.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	snap, err := c.Snapshot("Y")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Position != -2.5 || !snap.AtLimit || snap.Moving || !snap.Referenced {
		t.Errorf("snapshot does not match controller state: %+v", snap)
	}

	// controller state changes are visible after the next refresh
	s.pos = map[string]float64{"X": 1.5, "Y": 3}
	s.mov = map[string]bool{"X": false, "Y": true}
	now = now.Add(150 * time.Millisecond)
	if err := c.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	snap, err = c.Snapshot("Y")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Position != 3 || !snap.Moving {
		t.Errorf("snapshot not updated after refresh: %+v", snap)
	}
}

func TestCacheFailurePreservesSnapshot(t *testing.T) {
	s := newStubLink()
	c, err := NewCache(s, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	now := time.Now()
	c.now = func() time.Time { return now }
	if err := c.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	boom := errors.New("conn reset")
	s.fail = boom
	now = now.Add(150 * time.Millisecond)
	if err := c.Refresh(); !errors.Is(err, boom) {
		t.Fatalf("expected refresh to surface the link error, got %v", err)
	}
	if !c.Failed() {
		t.Error("cache should report the failed refresh")
	}
	snap, err := c.Snapshot("X")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Position != 1.5 {
		t.Errorf("failure should leave the prior snapshot intact, got pos %v", snap.Position)
	}

	// the failed attempt did not advance the timestamp, so recovery is
	// immediate rather than throttled
	s.fail = nil
	if err := c.Refresh(); err != nil {
		t.Fatalf("refresh after recovery: %v", err)
	}
	if c.Failed() {
		t.Error("cache should clear the failure flag after a good refresh")
	}
	if s.polls != 3 {
		t.Errorf("expected 3 polls, got %d", s.polls)
	}
}

func TestCacheUnknownAxis(t *testing.T) {
	s := newStubLink()
	c, err := NewCache(s, time.Millisecond)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	_, err = c.Snapshot("Q")
	var uae UnknownAxisError
	if !errors.As(err, &uae) {
		t.Fatalf("expected UnknownAxisError, got %v", err)
	}
	if uae.Axis != "Q" {
		t.Errorf("error should name the axis, got %q", uae.Axis)
	}
	if c.Known("Q") {
		t.Error("Q should not be a known axis")
	}
}
