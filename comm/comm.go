package comm

import (
	"bufio"
	"errors"
	"io"
	"net"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

// ErrTimeoutUnsupported is generated when NewTimeout is handed a ReadWriter
// whose concrete type has no deadline support.
var ErrTimeoutUnsupported = errors.New("comm: ReadWriter does not support deadlines")

// BackingOffTCPConnMaker returns a CreationFunc which dials addr with an
// exponential backoff.  Some devices do not like being connection thrashed,
// and benchtop controllers frequently need a beat after closing a socket
// before they will accept another.
func BackingOffTCPConnMaker(addr string, timeout time.Duration) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		var conn net.Conn
		op := func() error {
			var err error
			conn, err = net.DialTimeout("tcp", addr, timeout)
			return err
		}
		err := backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0,
			Multiplier:          2,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      3 * time.Second,
			Clock:               backoff.SystemClock})
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// SerialConnMaker returns a CreationFunc which opens the serial port
// described by conf.
func SerialConnMaker(conf *serial.Config) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		return serial.OpenPort(conf)
	}
}

type timeoutRW struct {
	conn    net.Conn
	timeout time.Duration
}

func (t timeoutRW) Read(p []byte) (int, error) {
	t.conn.SetReadDeadline(time.Now().Add(t.timeout))
	return t.conn.Read(p)
}

func (t timeoutRW) Write(p []byte) (int, error) {
	t.conn.SetWriteDeadline(time.Now().Add(t.timeout))
	return t.conn.Write(p)
}

// NewTimeout wraps a ReadWriter such that every Read or Write refreshes the
// I/O deadline.  The concrete type must support deadlines (a net.Conn);
// otherwise ErrTimeoutUnsupported is returned.
func NewTimeout(rw io.ReadWriter, timeout time.Duration) (io.ReadWriter, error) {
	conn, ok := rw.(net.Conn)
	if !ok {
		return nil, ErrTimeoutUnsupported
	}
	return timeoutRW{conn: conn, timeout: timeout}, nil
}

// Terminator bolts message framing onto a ReadWriter.  Writes have the Tx
// terminator appended; each Read returns one message with the Rx terminator
// stripped.  A Terminator buffers the underlying ReadWriter and should live
// for one request-response exchange on a pooled connection.
type Terminator struct {
	rw     io.ReadWriter
	buf    *bufio.Reader
	rx, tx byte
}

// NewTerminator returns a Terminator with the given Rx and Tx terminator bytes.
func NewTerminator(rw io.ReadWriter, rx, tx byte) *Terminator {
	return &Terminator{rw: rw, buf: bufio.NewReader(rw), rx: rx, tx: tx}
}

// Write sends p followed by the Tx terminator.  The returned count excludes
// the terminator, so io.WriteString and friends see what they expect.
func (t *Terminator) Write(p []byte) (int, error) {
	out := make([]byte, len(p)+1)
	copy(out, p)
	out[len(p)] = t.tx
	n, err := t.rw.Write(out)
	if n == len(out) {
		n--
	}
	return n, err
}

// Read returns the next message, stripped of the Rx terminator.  If p is too
// small to hold the message, io.ErrShortBuffer is returned.
func (t *Terminator) Read(p []byte) (int, error) {
	msg, err := t.buf.ReadBytes(t.rx)
	if err != nil {
		return 0, err
	}
	msg = msg[:len(msg)-1] // strip terminator
	if len(msg) > len(p) {
		return 0, io.ErrShortBuffer
	}
	copy(p, msg)
	return len(msg), nil
}
