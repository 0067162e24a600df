package gcs2

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeGCS is a loopback TCP server that answers a canned subset of GCS2,
// recording every command it receives.
type fakeGCS struct {
	mu       sync.Mutex
	received []string
	errCode  string // ERR? reply
}

func (f *fakeGCS) record(cmd string) {
	f.mu.Lock()
	f.received = append(f.received, cmd)
	f.mu.Unlock()
}

func (f *fakeGCS) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.received))
	copy(out, f.received)
	return out
}

func (f *fakeGCS) serve(t *testing.T) string {
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal("could not listen, test aborted:", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go f.handle(conn)
		}
	}()
	return ln.Addr().String()
}

func (f *fakeGCS) handle(conn net.Conn) {
	defer conn.Close()
	rd := bufio.NewReader(conn)
	for {
		first, err := rd.Peek(1)
		if err != nil {
			return
		}
		if first[0] == 5 {
			rd.ReadByte()
			f.record("#5")
			conn.Write([]byte("9\n")) // X and U moving
			continue
		}
		line, err := rd.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimSuffix(line, "\n")
		f.record(cmd)
		switch {
		case cmd == "*IDN?":
			conn.Write([]byte("Physik Instrumente, C-887, 119040712, 2.5.0.1\n"))
		case cmd == "SAI?":
			conn.Write([]byte("X \nY \nZ \nU \nV \nW\n"))
		case cmd == "POS?":
			conn.Write([]byte("X=1.5 \nY=-2.5 \nZ=0.0 \nU=0.0 \nV=0.0 \nW=0.0\n"))
		case cmd == "LIM?":
			conn.Write([]byte("X=0 \nY=0 \nZ=0 \nU=0 \nV=0 \nW=0\n"))
		case cmd == "FRF?":
			conn.Write([]byte("X=1 \nY=1 \nZ=1 \nU=1 \nV=1 \nW=0\n"))
		case cmd == "VLS?":
			conn.Write([]byte("5.5\n"))
		case cmd == "SPI?":
			conn.Write([]byte("R=1 \nS=2 \nT=3\n"))
		case cmd == "ERR?":
			f.mu.Lock()
			code := f.errCode
			f.errCode = "0"
			f.mu.Unlock()
			conn.Write([]byte(code + "\n"))
		case strings.HasPrefix(cmd, "TMN?"):
			conn.Write([]byte("X=-17\n"))
		case strings.HasPrefix(cmd, "TMX?"):
			conn.Write([]byte("X=17\n"))
		case strings.HasPrefix(cmd, "PUN?"):
			conn.Write([]byte("X=MM\n"))
		default:
			// write-only command, no reply
		}
	}
}

func newFakePair(t *testing.T) (*fakeGCS, *Device) {
	f := &fakeGCS{errCode: "0"}
	addr := f.serve(t)
	return f, New(addr, false)
}

func TestDeviceAxisNames(t *testing.T) {
	_, dev := newFakePair(t)
	axes, err := dev.AxisNames()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"X", "Y", "Z", "U", "V", "W"}
	if len(axes) != len(want) {
		t.Fatalf("got %d axes, want %d", len(axes), len(want))
	}
	for i := range want {
		if axes[i] != want[i] {
			t.Errorf("axis %d: got %q want %q", i, axes[i], want[i])
		}
	}
}

func TestDevicePositionsParsesMultiline(t *testing.T) {
	_, dev := newFakePair(t)
	pos, err := dev.Positions()
	if err != nil {
		t.Fatal(err)
	}
	if pos["X"] != 1.5 || pos["Y"] != -2.5 {
		t.Errorf("got X=%v Y=%v, want 1.5, -2.5", pos["X"], pos["Y"])
	}
	if len(pos) != 6 {
		t.Errorf("got %d axes, want 6", len(pos))
	}
}

func TestDeviceReferencedParsesBools(t *testing.T) {
	_, dev := newFakePair(t)
	refs, err := dev.Referenced()
	if err != nil {
		t.Fatal(err)
	}
	if !refs["X"] {
		t.Error("X should be referenced")
	}
	if refs["W"] {
		t.Error("W should not be referenced")
	}
}

func TestDeviceMovingUnpacksBitfield(t *testing.T) {
	_, dev := newFakePair(t)
	// reply is 0x9: bits 0 and 3 => X and U in SAI? order
	moving, err := dev.Moving(nil)
	if err != nil {
		t.Fatal(err)
	}
	for ax, want := range map[string]bool{"X": true, "Y": false, "Z": false, "U": true, "V": false, "W": false} {
		if moving[ax] != want {
			t.Errorf("axis %s: moving=%v, want %v", ax, moving[ax], want)
		}
	}
}

func TestDeviceMovingUnknownAxis(t *testing.T) {
	_, dev := newFakePair(t)
	_, err := dev.Moving([]string{"Q"})
	if err == nil {
		t.Error("expected error for axis the controller does not report")
	}
}

func TestDeviceMoveAbsFormatsCommand(t *testing.T) {
	f, dev := newFakePair(t)
	if err := dev.MoveAbs("X", 5.25); err != nil {
		t.Fatal(err)
	}
	// MoveAbs is write-only; poll until the fake has read the bytes off
	// the wire before asserting on what it recorded.
	deadline := time.Now().Add(2 * time.Second)
	var cmds []string
	for {
		cmds = f.commands()
		if len(cmds) > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if len(cmds) == 0 || cmds[len(cmds)-1] != "MOV X 5.25" {
		t.Errorf("controller received %v, want trailing MOV X 5.25", cmds)
	}
}

func TestDeviceSystemVelocityAndPivot(t *testing.T) {
	_, dev := newFakePair(t)
	vel, err := dev.SystemVelocity()
	if err != nil {
		t.Fatal(err)
	}
	if vel != 5.5 {
		t.Errorf("velocity: got %v want 5.5", vel)
	}
	piv, err := dev.Pivot()
	if err != nil {
		t.Fatal(err)
	}
	if piv != (Pivot{R: 1, S: 2, T: 3}) {
		t.Errorf("pivot: got %+v", piv)
	}
}

func TestDeviceAxisBoundsAndUnit(t *testing.T) {
	_, dev := newFakePair(t)
	min, max, err := dev.AxisBounds("X")
	if err != nil {
		t.Fatal(err)
	}
	if min != -17 || max != 17 {
		t.Errorf("bounds: got (%v, %v) want (-17, 17)", min, max)
	}
	unit, err := dev.AxisUnit("X")
	if err != nil {
		t.Fatal(err)
	}
	if unit != "MM" {
		t.Errorf("unit: got %q want MM", unit)
	}
}

func TestDeviceHaltNoraiseSwallowsControllerError(t *testing.T) {
	f, dev := newFakePair(t)
	f.mu.Lock()
	f.errCode = "10" // controller was stopped by command
	f.mu.Unlock()
	if err := dev.Halt(true); err != nil {
		t.Errorf("noraise halt should not error, got %v", err)
	}
	f.mu.Lock()
	f.errCode = "10"
	f.mu.Unlock()
	err := dev.Halt(false)
	if err == nil {
		t.Fatal("halt without noraise should surface code 10")
	}
	status, ok := err.(Status)
	if !ok || status.Code() != 10 {
		t.Errorf("expected Status with code 10, got %v", err)
	}
}

func TestSplitKVRejectsGarbage(t *testing.T) {
	if _, _, err := splitKV("no separator here"); err == nil {
		t.Error("expected error for line without =")
	}
}

func TestErrZeroIsNil(t *testing.T) {
	if Err(0) != nil {
		t.Error("code 0 should map to nil")
	}
	if Err(7) == nil {
		t.Error("code 7 should be an error")
	}
	if !strings.Contains(Err(7).Error(), "Position out of limits") {
		t.Errorf("unexpected message: %v", Err(7))
	}
}
