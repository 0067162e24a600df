/*Package gcs2 speaks PI's General Command Set 2 to motion controllers,
principally the C-887 hexapod family.

GCS2 is a line-oriented ASCII protocol.  Commands are mnemonics with space
separated arguments ("MOV X 1.5"); queries end in '?' and produce one or more
lines of the form "X=1.5".  In a multiline reply every line except the last
carries a trailing space before the linefeed, which is how the end of the
reply is detected.  A handful of commands are single control bytes with no
terminator, e.g. #5 which reports the motion status of all axes as a
hexadecimal bitfield.

The controller only tolerates one in-flight command, so the device runs all
traffic through a connection pool of size one.
*/
package gcs2

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/nasa-jpl/hexsrv/comm"
)

const (
	// Terminator is the line terminator used by GCS2 in both directions
	Terminator = '\n'

	tcpFrameSize = 1500

	// rqMotionStatus is the single-byte "request motion status" query (#5)
	rqMotionStatus = byte(5)
)

// Pivot is the rotation pivot point of a hexapod.  The controller names the
// pivot coordinates R, S, T; they correspond to the X, Y, Z axes.
type Pivot struct {
	R float64 `json:"r"`
	S float64 `json:"s"`
	T float64 `json:"t"`
}

// makeSerConf makes a new serial.Config with correct parity, baud, etc, set.
func makeSerConf(addr string) *serial.Config {
	return &serial.Config{
		Name:        addr,
		Baud:        115200,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: 10 * time.Minute}
}

// Device is a GCS2 controller.  It is concurrent safe; commands are
// serialized on the underlying connection.
type Device struct {
	pool    *comm.Pool
	timeout time.Duration

	mu   sync.Mutex
	axes []string // SAI? reply, cached for #5 bit ordering
}

// New returns a new Device.  addr is either host:port for TCP or a serial
// device path when connectSerial is true.  No traffic occurs until the first
// command; connections are made lazily and kept warm between commands.
func New(addr string, connectSerial bool) *Device {
	var maker comm.CreationFunc
	if connectSerial {
		maker = comm.SerialConnMaker(makeSerConf(addr))
	} else {
		maker = comm.BackingOffTCPConnMaker(addr, 3*time.Second)
	}
	pool := comm.NewPool(1, 30*time.Second, maker)
	return &Device{pool: pool, timeout: 10 * time.Minute}
}

// exchange writes one message and, if read is true, consumes the complete
// (possibly multiline) reply.  raw skips the Tx terminator, for the
// single-byte control commands.
func (d *Device) exchange(msg []byte, read, raw bool) ([]string, error) {
	conn, err := d.pool.Get()
	if err != nil {
		return nil, err
	}
	var lines []string
	err = func() error {
		rw, err := comm.NewTimeout(conn, d.timeout)
		if err != nil {
			rw = conn // serial ports carry their own timeout
		}
		wrap := comm.NewTerminator(rw, Terminator, Terminator)
		if raw {
			_, err = rw.Write(msg)
		} else {
			_, err = wrap.Write(msg)
		}
		if err != nil {
			return err
		}
		if !read {
			return nil
		}
		buf := make([]byte, tcpFrameSize)
		for {
			n, err := wrap.Read(buf)
			if err != nil {
				return err
			}
			line := string(buf[:n])
			// a trailing space marks a continuation line
			if strings.HasSuffix(line, " ") {
				lines = append(lines, strings.TrimRight(line, " "))
				continue
			}
			lines = append(lines, line)
			return nil
		}
	}()
	d.pool.ReturnWithError(conn, err)
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (d *Device) writeOnly(msg string) error {
	_, err := d.exchange([]byte(msg), false, false)
	return err
}

func (d *Device) writeRead(msg string) (string, error) {
	lines, err := d.exchange([]byte(msg), true, false)
	if err != nil {
		return "", err
	}
	return lines[0], nil
}

func (d *Device) writeReadLines(msg string) ([]string, error) {
	return d.exchange([]byte(msg), true, false)
}

// command sends a write-only command and handshakes it against the error
// register, so callers learn about rejections immediately
func (d *Device) command(msg string) error {
	if err := d.writeOnly(msg); err != nil {
		return err
	}
	return d.PopError()
}

// splitKV splits "X=1.5" into its key and value
func splitKV(line string) (string, string, error) {
	parts := strings.SplitN(line, "=", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("gcs2: malformed reply line %q", line)
	}
	return parts[0], parts[1], nil
}

func parseFloatMap(lines []string) (map[string]float64, error) {
	out := make(map[string]float64, len(lines))
	for _, line := range lines {
		k, v, err := splitKV(line)
		if err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, err
		}
		out[k] = f
	}
	return out, nil
}

func parseBoolMap(lines []string) (map[string]bool, error) {
	out := make(map[string]bool, len(lines))
	for _, line := range lines {
		k, v, err := splitKV(line)
		if err != nil {
			return nil, err
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, err
		}
		out[k] = b
	}
	return out, nil
}

// Identification returns the controller's identification string (*IDN?)
func (d *Device) Identification() (string, error) {
	return d.writeRead("*IDN?")
}

// AxisNames returns the axis names the controller reports (SAI?).  The
// result is cached; the axis complement of a hexapod cannot change while
// it is powered.
func (d *Device) AxisNames() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.axes != nil {
		out := make([]string, len(d.axes))
		copy(out, d.axes)
		return out, nil
	}
	lines, err := d.writeReadLines("SAI?")
	if err != nil {
		return nil, err
	}
	d.axes = lines
	out := make([]string, len(lines))
	copy(out, lines)
	return out, nil
}

// Positions returns the current position of every axis (POS?)
func (d *Device) Positions() (map[string]float64, error) {
	lines, err := d.writeReadLines("POS?")
	if err != nil {
		return nil, err
	}
	return parseFloatMap(lines)
}

// Limits returns the limit switch state of every axis (LIM?)
func (d *Device) Limits() (map[string]bool, error) {
	lines, err := d.writeReadLines("LIM?")
	if err != nil {
		return nil, err
	}
	return parseBoolMap(lines)
}

// Referenced returns whether each axis has completed a reference
// search (FRF?)
func (d *Device) Referenced() (map[string]bool, error) {
	lines, err := d.writeReadLines("FRF?")
	if err != nil {
		return nil, err
	}
	return parseBoolMap(lines)
}

// Moving returns the motion state of the given axes, or of all axes if
// axes is nil.  Uses the #5 single-byte query; the reply is a hexadecimal
// bitfield with one bit per axis in SAI? order.
func (d *Device) Moving(axes []string) (map[string]bool, error) {
	order, err := d.AxisNames()
	if err != nil {
		return nil, err
	}
	lines, err := d.exchange([]byte{rqMotionStatus}, true, true)
	if err != nil {
		return nil, err
	}
	field, err := strconv.ParseInt(strings.TrimSpace(lines[0]), 16, 64)
	if err != nil {
		return nil, err
	}
	all := make(map[string]bool, len(order))
	for i, name := range order {
		all[name] = field>>uint(i)&1 == 1
	}
	if axes == nil {
		return all, nil
	}
	out := make(map[string]bool, len(axes))
	for _, name := range axes {
		moving, ok := all[name]
		if !ok {
			return nil, fmt.Errorf("gcs2: axis %q not reported by controller", name)
		}
		out[name] = moving
	}
	return out, nil
}

// SystemVelocity returns the platform velocity setpoint (VLS?)
func (d *Device) SystemVelocity() (float64, error) {
	resp, err := d.writeRead("VLS?")
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(resp, 64)
}

// SetSystemVelocity sets the platform velocity setpoint (VLS).  The
// setting is shared by all axes.
func (d *Device) SetSystemVelocity(vel float64) error {
	return d.command("VLS " + strconv.FormatFloat(vel, 'G', -1, 64))
}

// Pivot returns the rotation pivot point (SPI?)
func (d *Device) Pivot() (Pivot, error) {
	lines, err := d.writeReadLines("SPI?")
	if err != nil {
		return Pivot{}, err
	}
	m, err := parseFloatMap(lines)
	if err != nil {
		return Pivot{}, err
	}
	return Pivot{R: m["R"], S: m["S"], T: m["T"]}, nil
}

// SetPivot sets the rotation pivot point (SPI).  The controller rejects
// this while U, V, W are nonzero (error code 9).
func (d *Device) SetPivot(axes []string, values []float64) error {
	if len(axes) != len(values) {
		return fmt.Errorf("gcs2: %d axes but %d values", len(axes), len(values))
	}
	pieces := make([]string, 0, 1+2*len(axes))
	pieces = append(pieces, "SPI")
	for i := range axes {
		pieces = append(pieces, axes[i], strconv.FormatFloat(values[i], 'G', -1, 64))
	}
	return d.command(strings.Join(pieces, " "))
}

// MoveAbs commands the controller to move an axis to an absolute
// position (MOV).  The command is not handshaked; query LastErrorCode
// to learn whether the controller accepted the target.
func (d *Device) MoveAbs(axis string, pos float64) error {
	posS := strconv.FormatFloat(pos, 'G', -1, 64)
	return d.writeOnly(strings.Join([]string{"MOV", axis, posS}, " "))
}

// FindReferences starts the reference search for all axes (FRF).  The
// controller performs the search in the background; poll Referenced and
// Moving for completion.
func (d *Device) FindReferences() error {
	return d.command("FRF")
}

// Halt requests a smooth stop of all motion (HLT).  A reference search in
// progress is not interrupted.  With noraise, a controller-reported error
// is swallowed; halt is frequently invoked on a controller that is already
// stopped, which reports code 10.
func (d *Device) Halt(noraise bool) error {
	if err := d.writeOnly("HLT"); err != nil {
		return err
	}
	err := d.PopError()
	if noraise {
		return nil
	}
	return err
}

// Stop aborts all motion unconditionally, including reference
// searches (STP).  noraise behaves as in Halt.
func (d *Device) Stop(noraise bool) error {
	if err := d.writeOnly("STP"); err != nil {
		return err
	}
	err := d.PopError()
	if noraise {
		return nil
	}
	return err
}

// AxisBounds returns the travel range of an axis (TMN?, TMX?)
func (d *Device) AxisBounds(axis string) (float64, float64, error) {
	min, err := d.queryAxisFloat("TMN?", axis)
	if err != nil {
		return 0, 0, err
	}
	max, err := d.queryAxisFloat("TMX?", axis)
	if err != nil {
		return 0, 0, err
	}
	return min, max, nil
}

func (d *Device) queryAxisFloat(cmd, axis string) (float64, error) {
	resp, err := d.writeRead(cmd + " " + axis)
	if err != nil {
		return 0, err
	}
	_, v, err := splitKV(resp)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(v, 64)
}

// AxisUnit returns the physical unit of an axis (PUN?), e.g. "MM" or "DEG"
func (d *Device) AxisUnit(axis string) (string, error) {
	resp, err := d.writeRead("PUN? " + axis)
	if err != nil {
		return "", err
	}
	_, v, err := splitKV(resp)
	if err != nil {
		return "", err
	}
	return v, nil
}

// LastErrorCode pops the controller's error register (ERR?).  Reading the
// register clears it.
func (d *Device) LastErrorCode() (int, error) {
	resp, err := d.writeRead("ERR?")
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(resp))
}

// PopError returns the last error from the controller, or nil if the
// register holds 0
func (d *Device) PopError() error {
	code, err := d.LastErrorCode()
	if err != nil {
		return err
	}
	return Err(code)
}

// Raw sends a raw command string and returns the raw response, for
// debugging against the bench
func (d *Device) Raw(s string) (string, error) {
	if strings.Contains(s, "?") {
		lines, err := d.writeReadLines(s)
		if err != nil {
			return "", err
		}
		return strings.Join(lines, "\n"), nil
	}
	return "", d.writeOnly(s)
}
