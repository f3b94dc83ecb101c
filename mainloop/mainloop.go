// Package mainloop implements the host's cooperative event loop. Callbacks
// bound to file descriptors and deferred functions are executed on the
// goroutine which drives the loop with Iterate or Run.
package mainloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dh1tw/tunnelsink/fdsem"
	"golang.org/x/sys/unix"
)

// ErrClosed is returned when using a Mainloop after Close.
var ErrClosed = errors.New("mainloop: closed")

// IOEventFlags describe the conditions an IOEvent waits for.
type IOEventFlags uint32

// Event conditions. Hangup and Error are always reported.
const (
	IOEventInput IOEventFlags = 1 << iota
	IOEventOutput
	IOEventHangup
	IOEventError
)

// IOCallback is executed on the loop goroutine when the descriptor of
// an IOEvent is ready.
type IOCallback func(api API, e *IOEvent, fd int, events IOEventFlags)

// API is the interface a loop offers to its users. Mainloop implements
// API; tests and nested loops may provide their own.
type API interface {
	IONew(fd int, events IOEventFlags, cb IOCallback) (*IOEvent, error)
	IOFree(e *IOEvent)
	Once(fn func())
	Quit(retval int)
}

// IOEvent is a callback bound to a file descriptor.
type IOEvent struct {
	fd     int
	events IOEventFlags
	cb     IOCallback
	dead   bool
}

// Fd returns the descriptor the event is bound to.
func (e *IOEvent) Fd() int {
	return e.fd
}

// Mainloop is a poll(2) based event loop. Registration functions are
// safe for concurrent use; Iterate and Run must only be called from one
// goroutine.
type Mainloop struct {
	sync.Mutex
	ioEvents []*IOEvent
	deferred []func()
	wake     *fdsem.FdSem
	quit     bool
	retval   int
	closed   bool
}

// New returns an initialized Mainloop.
func New() (*Mainloop, error) {
	wake, err := fdsem.New()
	if err != nil {
		return nil, fmt.Errorf("mainloop: %v", err)
	}
	return &Mainloop{wake: wake}, nil
}

// IONew binds cb to fd. The callback is executed on the loop goroutine
// whenever one of the requested conditions is met.
func (m *Mainloop) IONew(fd int, events IOEventFlags, cb IOCallback) (*IOEvent, error) {
	if cb == nil {
		return nil, errors.New("mainloop: callback must not be nil")
	}
	if fd < 0 {
		return nil, fmt.Errorf("mainloop: invalid file descriptor %d", fd)
	}

	e := &IOEvent{fd: fd, events: events, cb: cb}

	m.Lock()
	if m.closed {
		m.Unlock()
		return nil, ErrClosed
	}
	m.ioEvents = append(m.ioEvents, e)
	m.Unlock()

	m.wake.Post()
	return e, nil
}

// IOFree removes an IOEvent from the loop. Once IOFree returned, the
// callback is not executed anymore, even if the event became ready in the
// current iteration.
func (m *Mainloop) IOFree(e *IOEvent) {
	if e == nil {
		return
	}

	m.Lock()
	e.dead = true
	for i, ev := range m.ioEvents {
		if ev == e {
			m.ioEvents = append(m.ioEvents[:i], m.ioEvents[i+1:]...)
			break
		}
	}
	m.Unlock()

	m.wake.Post()
}

// Once schedules fn for execution on the loop goroutine during the next
// iteration.
func (m *Mainloop) Once(fn func()) {
	m.Lock()
	if m.closed {
		m.Unlock()
		return
	}
	m.deferred = append(m.deferred, fn)
	m.Unlock()

	m.wake.Post()
}

// Quit asks Run to return with retval.
func (m *Mainloop) Quit(retval int) {
	m.Lock()
	m.quit = true
	m.retval = retval
	m.Unlock()

	m.wake.Post()
}

// Iterate runs one iteration of the loop: deferred functions are executed,
// then the loop waits up to timeout for descriptors to become ready and
// executes their callbacks. A negative timeout blocks until an event
// arrives.
func (m *Mainloop) Iterate(timeout time.Duration) error {

	m.Lock()
	if m.closed {
		m.Unlock()
		return ErrClosed
	}
	deferred := m.deferred
	m.deferred = nil
	m.Unlock()

	for _, fn := range deferred {
		fn()
	}

	m.Lock()
	if len(m.deferred) > 0 || m.quit || m.closed {
		timeout = 0
	}
	events := make([]*IOEvent, len(m.ioEvents))
	copy(events, m.ioEvents)
	m.Unlock()

	pfds := make([]unix.PollFd, 0, len(events)+1)
	pfds = append(pfds, unix.PollFd{Fd: int32(m.wake.Fd()), Events: unix.POLLIN})
	for _, e := range events {
		pfds = append(pfds, unix.PollFd{Fd: int32(e.fd), Events: toPoll(e.events)})
	}

	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}

	_, err := unix.Poll(pfds, ms)
	if err == unix.EINTR || err == unix.EAGAIN {
		return nil
	}
	if err != nil {
		return fmt.Errorf("mainloop: poll: %v", err)
	}

	if pfds[0].Revents != 0 {
		m.wake.AfterPoll()
	}

	for i, e := range events {
		revents := pfds[i+1].Revents
		if revents == 0 {
			continue
		}
		m.Lock()
		dead := e.dead
		m.Unlock()
		if dead {
			continue
		}
		e.cb(m, e, e.fd, fromPoll(revents))
	}

	return nil
}

// Run iterates the loop until Quit is called or ctx is cancelled. It
// returns the value passed to Quit, or -1 on cancellation.
func (m *Mainloop) Run(ctx context.Context) (int, error) {
	stop := context.AfterFunc(ctx, func() {
		m.Quit(-1)
	})
	defer stop()

	for {
		if err := m.Iterate(-1); err != nil {
			return -1, err
		}

		m.Lock()
		quit, retval := m.quit, m.retval
		m.Unlock()

		if quit {
			return retval, nil
		}
	}
}

// Close releases the resources of the loop. Pending deferred functions
// are dropped.
func (m *Mainloop) Close() {
	m.Lock()
	if m.closed {
		m.Unlock()
		return
	}
	m.closed = true
	m.ioEvents = nil
	m.deferred = nil
	m.Unlock()

	m.wake.Close()
}

func toPoll(f IOEventFlags) int16 {
	var ev int16
	if f&IOEventInput != 0 {
		ev |= unix.POLLIN
	}
	if f&IOEventOutput != 0 {
		ev |= unix.POLLOUT
	}
	return ev
}

func fromPoll(ev int16) IOEventFlags {
	var f IOEventFlags
	if ev&unix.POLLIN != 0 {
		f |= IOEventInput
	}
	if ev&unix.POLLOUT != 0 {
		f |= IOEventOutput
	}
	if ev&unix.POLLHUP != 0 {
		f |= IOEventHangup
	}
	if ev&(unix.POLLERR|unix.POLLNVAL) != 0 {
		f |= IOEventError
	}
	return f
}
