/*Package comm provides connection management for communication with lab hardware.

The central type is Pool, which holds one or more connections to a device.
Connections are leased with Get and returned with Put, or discarded with
Destroy when they have gone bad.  A pool of size one serializes access to
devices that only tolerate a single in-flight command, which is the common
case for benchtop motion controllers.

The package also provides CreationFuncs for TCP (with dial retry) and RS-232
transports, and thin wrappers that bolt terminator and deadline handling onto
a leased connection.
*/
package comm

import (
	"io"
	"sync"
	"time"
)

// CreationFunc is a function which returns a new "connection" to something.
// a closure should be used to encapsulate the variables and functions needed
type CreationFunc func() (io.ReadWriteCloser, error)

// Pool is a communication pool which holds one or more connections to a device
// that will be closed if they are not in use, and re-opened as needed.
// it is concurrent safe.  Pools must be created with NewPool.
type Pool struct {
	maxSize int                     // maximum number of connections, == cap(conns)
	onLease int                     // number of connections given out, <= cap(conns)
	timeout time.Duration           // time after len(conns) == maxSize to free all connections
	conns   chan io.ReadWriteCloser // the circular buffer of connections
	timer   *time.Timer             // timer used to destroy connections after all are returned
	maker   CreationFunc

	reclaiming bool
	mu         sync.Mutex
}

// NewPool creates a new Pool which will make at most maxSize connections
// with maker and close the idle ones timeout after the last lease is returned.
func NewPool(maxSize int, timeout time.Duration, maker CreationFunc) *Pool {
	p := &Pool{
		maxSize: maxSize,
		timeout: timeout,
		conns:   make(chan io.ReadWriteCloser, maxSize),
		timer:   time.NewTimer(timeout),
		maker:   maker,
	}
	p.timer.Stop() // nothing to reclaim yet
	return p
}

// Get retrieves a connection from the pool, blocking until one is available
// if all are leased out.  The consumer should not attempt to cast the
// ReadWriter to its concrete type and use it outside this interface.
//
// When done, return it with Put, or discard it with Destroy if it has gone
// bad (e.g., all calls error).  If the error from Get is not nil, the
// returned value must not be given back to the pool.
func (p *Pool) Get() (io.ReadWriter, error) {
	// stopping an expired timer is allowed to fail; a dead connection will
	// be remade with retry logic anyway
	p.timer.Stop()

	p.mu.Lock()
	// short circuit: if a connection is idle, immediately return it
	if len(p.conns) > 0 {
		ret := <-p.conns
		p.onLease++
		p.mu.Unlock()
		return ret, nil
	}
	if p.onLease == p.maxSize {
		// all given out; wait for one to come back.  The channel recv must
		// happen without the lock held or Put would deadlock.
		p.mu.Unlock()
		ret := <-p.conns
		p.mu.Lock()
		p.onLease++
		p.mu.Unlock()
		return ret, nil
	}
	// no connection available and they aren't all out; make one.
	// only count the lease if we are giving out something other than garbage.
	c, err := p.maker()
	if err == nil {
		p.onLease++
	}
	p.mu.Unlock()
	return c, err
}

// Put restores a connection to the pool.  It may be reused, or will be
// automatically freed after all connections are returned and the timeout
// has elapsed.  Junk connections (ones that always error) should be
// Destroy()'d instead.
func (p *Pool) Put(rw io.ReadWriter) {
	rwc := rw.(io.ReadWriteCloser)
	p.mu.Lock()
	p.conns <- rwc
	p.onLease--
	if len(p.conns) == p.maxSize {
		p.startReclaim()
	}
	p.mu.Unlock()
}

// Destroy immediately frees a connection from the pool.  This should be used
// instead of Put if the connection has gone bad.
func (p *Pool) Destroy(rw io.ReadWriter) {
	rwc := rw.(io.ReadWriteCloser)
	rwc.Close()
	p.mu.Lock()
	p.onLease--
	p.mu.Unlock()
}

// ReturnWithError calls Destroy if err is non-nil, else Put.  It exists to
// flatten the cleanup at the end of a write-read exchange.
func (p *Pool) ReturnWithError(rw io.ReadWriter, err error) {
	if err != nil {
		p.Destroy(rw)
	} else {
		p.Put(rw)
	}
}

// Size returns the number of connections in the pool or leased out from it.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns) + p.onLease
}

// Active returns the number of connections currently leased out.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onLease
}

// startReclaim spawns a goroutine which closes all idle connections after
// the pool timeout elapses.  callers must hold p.mu.
func (p *Pool) startReclaim() {
	if p.reclaiming {
		return
	}
	p.reclaiming = true
	p.timer.Reset(p.timeout)
	go func() {
		<-p.timer.C
		p.mu.Lock()
		for len(p.conns) > 0 {
			c := <-p.conns
			c.Close()
		}
		p.reclaiming = false
		p.mu.Unlock()
	}()
}
