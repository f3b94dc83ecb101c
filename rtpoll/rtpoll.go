// Package rtpoll implements the poll set driving a realtime processing
// goroutine. Items bind file descriptors and callbacks to the poll set and
// are processed in order of their priority. An optional timer bounds the
// time spent sleeping.
//
// An RTPoll is not safe for concurrent use. It is set up by its creator
// and then handed over to the processing goroutine.
package rtpoll

import (
	"fmt"
	"sort"
	"time"

	"golang.org/x/sys/unix"
)

// Priority determines the order in which items are processed.
type Priority int

const (
	PriorityEarly Priority = iota
	PriorityNormal
	PriorityLate
)

func (p Priority) String() string {
	switch p {
	case PriorityEarly:
		return "early"
	case PriorityNormal:
		return "normal"
	case PriorityLate:
		return "late"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// RTPoll is a set of items which are polled together.
type RTPoll struct {
	items   []*Item
	prune   bool
	pollfds []unix.PollFd

	timerEnabled bool
	nextElapse   time.Time
	timerElapsed bool

	quit bool
}

// New returns an empty poll set.
func New() *RTPoll {
	return &RTPoll{}
}

// Run executes one cycle of the poll set:
//
//  1. the work callbacks are executed; if one reports that it did work,
//     the cycle ends,
//  2. the before callbacks are executed; if one refuses to sleep, the
//     after callbacks of the items already prepared are executed and the
//     cycle ends,
//  3. the descriptors are polled until one becomes ready or the timer
//     elapses,
//  4. the after callbacks are executed.
//
// Run returns false once Quit has been called.
func (p *RTPoll) Run() (bool, error) {

	p.timerElapsed = false

	if p.prune {
		p.pruneItems()
	}

	for _, i := range p.items {
		if i.dead || i.work == nil {
			continue
		}
		if p.quit {
			return false, nil
		}
		done, err := i.work(i)
		if err != nil {
			return false, err
		}
		if done {
			return !p.quit, nil
		}
	}

	for idx, i := range p.items {
		if i.dead || i.before == nil {
			continue
		}
		if p.quit || !i.before(i) {
			for k := idx - 1; k >= 0; k-- {
				prev := p.items[k]
				if prev.dead || prev.after == nil {
					continue
				}
				prev.after(prev)
			}
			return !p.quit, nil
		}
	}

	p.pollfds = p.pollfds[:0]
	for _, i := range p.items {
		if i.dead {
			continue
		}
		for _, fd := range i.fds {
			p.pollfds = append(p.pollfds, unix.PollFd{Fd: fd.Fd, Events: fd.Events})
		}
	}

	timeout := -1
	if p.quit {
		timeout = 0
	} else if p.timerEnabled {
		d := time.Until(p.nextElapse)
		if d < 0 {
			d = 0
		}
		// round up, waking up early only results in another cycle
		timeout = int((d + time.Millisecond - 1) / time.Millisecond)
	}

	var pollErr error
	_, err := unix.Poll(p.pollfds, timeout)
	if err != nil && err != unix.EINTR && err != unix.EAGAIN {
		pollErr = fmt.Errorf("rtpoll: poll: %v", err)
	}

	if p.timerEnabled && !time.Now().Before(p.nextElapse) {
		p.timerElapsed = true
	}

	n := 0
	for _, i := range p.items {
		if i.dead {
			continue
		}
		for k := range i.fds {
			if pollErr == nil {
				i.fds[k].Revents = p.pollfds[n].Revents
			} else {
				i.fds[k].Revents = 0
			}
			n++
		}
	}

	for _, i := range p.items {
		if i.dead || i.after == nil {
			continue
		}
		i.after(i)
	}

	if pollErr != nil {
		return false, pollErr
	}

	return !p.quit, nil
}

// SetTimerAbsolute arms the timer to elapse at t.
func (p *RTPoll) SetTimerAbsolute(t time.Time) {
	p.nextElapse = t
	p.timerEnabled = true
}

// SetTimerRelative arms the timer to elapse after d.
func (p *RTPoll) SetTimerRelative(d time.Duration) {
	p.SetTimerAbsolute(time.Now().Add(d))
}

// DisableTimer disarms the timer.
func (p *RTPoll) DisableTimer() {
	p.timerEnabled = false
}

// TimerElapsed reports whether the timer elapsed during the last Run.
func (p *RTPoll) TimerElapsed() bool {
	return p.timerElapsed
}

// Quit makes the current or next Run return false.
func (p *RTPoll) Quit() {
	p.quit = true
}

// Free releases all items of the poll set.
func (p *RTPoll) Free() {
	for _, i := range p.items {
		i.dead = true
	}
	p.items = nil
	p.pollfds = nil
}

func (p *RTPoll) pruneItems() {
	items := p.items[:0]
	for _, i := range p.items {
		if !i.dead {
			items = append(items, i)
		}
	}
	for k := len(items); k < len(p.items); k++ {
		p.items[k] = nil
	}
	p.items = items
	p.prune = false
}

func (p *RTPoll) insert(i *Item) {
	// after all items with the same or a lower priority
	idx := sort.Search(len(p.items), func(k int) bool {
		return p.items[k].priority > i.priority
	})
	p.items = append(p.items, nil)
	copy(p.items[idx+1:], p.items[idx:])
	p.items[idx] = i
}
