package rtpoll

import "golang.org/x/sys/unix"

// Item is an entry of a poll set.
type Item struct {
	rtp      *RTPoll
	priority Priority
	fds      []unix.PollFd
	dead     bool

	before func(*Item) bool
	after  func(*Item)
	work   func(*Item) (bool, error)
}

// NewItem adds an item watching fds for readability to the poll set.
func (p *RTPoll) NewItem(prio Priority, fds ...int) *Item {
	i := &Item{
		rtp:      p,
		priority: prio,
		fds:      make([]unix.PollFd, len(fds)),
	}
	for k, fd := range fds {
		i.fds[k] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}
	p.insert(i)
	return i
}

// RTPoll returns the poll set the item belongs to.
func (i *Item) RTPoll() *RTPoll {
	return i.rtp
}

// Priority returns the priority of the item.
func (i *Item) Priority() Priority {
	return i.priority
}

// PollFds gives access to the descriptors of the item. Revents is valid
// within the after callback.
func (i *Item) PollFds() []unix.PollFd {
	return i.fds
}

// SetBeforeCallback sets the callback executed before the poll set goes
// to sleep. Returning false prevents sleeping and ends the cycle.
func (i *Item) SetBeforeCallback(cb func(*Item) bool) {
	i.before = cb
}

// SetAfterCallback sets the callback executed after the poll set woke up.
func (i *Item) SetAfterCallback(cb func(*Item)) {
	i.after = cb
}

// SetWorkCallback sets the callback executed at the start of each cycle.
// Reporting true ends the cycle, an error aborts Run.
func (i *Item) SetWorkCallback(cb func(*Item) (bool, error)) {
	i.work = cb
}

// Free removes the item from its poll set. Calling Free more than once
// is safe.
func (i *Item) Free() {
	if i == nil || i.dead {
		return
	}
	i.dead = true
	i.rtp.prune = true
}
