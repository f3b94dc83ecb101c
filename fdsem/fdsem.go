// Package fdsem implements a wake-up semaphore backed by a file descriptor.
// The descriptor becomes readable after Post and stays readable until the
// waiting side calls AfterPoll, which makes it usable with poll(2) based
// event loops.
package fdsem

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned when waiting on a closed semaphore.
var ErrClosed = errors.New("fdsem: closed")

// FdSem is a coalescing wake-up semaphore. Any number of Posts between two
// AfterPolls result in a single readable event on the descriptor.
type FdSem struct {
	mu        sync.RWMutex
	readFd    int
	writeFd   int
	signalled atomic.Uint32
	closed    bool
}

// New returns an initialized FdSem.
func New() (*FdSem, error) {
	r, w, err := openFds()
	if err != nil {
		return nil, err
	}
	return &FdSem{readFd: r, writeFd: w}, nil
}

// Fd returns the descriptor which becomes readable when the semaphore
// has been posted.
func (s *FdSem) Fd() int {
	return s.readFd
}

// Post wakes up the waiting side. It never blocks and is safe to call
// from any goroutine.
func (s *FdSem) Post() {
	if !s.signalled.CompareAndSwap(0, 1) {
		return // already pending
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	notify(s.writeFd)
}

// Pending reports whether a Post has not been consumed by AfterPoll yet.
func (s *FdSem) Pending() bool {
	return s.signalled.Load() == 1
}

// AfterPoll consumes a pending wake-up. The caller must re-check its
// condition after AfterPoll and before sleeping again.
func (s *FdSem) AfterPoll() {
	s.mu.RLock()
	if !s.closed {
		drain(s.readFd)
	}
	s.mu.RUnlock()

	// the flag must be cleared after draining, otherwise a concurrent
	// Post could be swallowed by drain and never be written again
	s.signalled.Store(0)
}

// Wait blocks until the semaphore has been posted or the timeout expired.
// A negative timeout blocks indefinitely. Wait reports whether the
// semaphore was posted; it does not consume the wake-up.
func (s *FdSem) Wait(timeout time.Duration) (bool, error) {
	if s.Pending() {
		return true, nil
	}

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return false, ErrClosed
	}

	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}

	pfd := []unix.PollFd{{Fd: int32(s.readFd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(pfd, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		return n > 0 || s.Pending(), nil
	}
}

// Close releases the descriptors. Calling Close more than once is safe.
func (s *FdSem) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return closeFds(s.readFd, s.writeFd)
}
