// Package threadmq connects a realtime processing goroutine with the
// host's main loop. A ThreadMQ consists of two message queues: InQ carries
// messages from the host to the processing goroutine, OutQ carries
// messages back to the host. The host side is driven by IO events on a
// mainloop.API, the processing side either by an rtpoll.RTPoll or by a
// nested main loop chained with ChainToNestedLoop.
package threadmq

import (
	"context"
	"errors"
	"fmt"

	"github.com/dh1tw/tunnelsink/asyncmsgq"
	"github.com/dh1tw/tunnelsink/mainloop"
	"github.com/dh1tw/tunnelsink/rtpoll"
)

var (
	// ErrAlreadyInstalled is the panic value when installing a bridge
	// into a context which carries one already.
	ErrAlreadyInstalled = errors.New("threadmq: bridge already installed")
	// ErrRelayInstalled is returned when chaining a bridge a second time.
	ErrRelayInstalled = errors.New("threadmq: relay already installed")
)

// ThreadMQ is a bidirectional message bridge.
type ThreadMQ struct {
	InQ  *asyncmsgq.Queue
	OutQ *asyncmsgq.Queue

	mainloop   mainloop.API
	readEvent  *mainloop.IOEvent
	writeEvent *mainloop.IOEvent
	readItem   *rtpoll.Item
	writeItem  *rtpoll.Item

	relay  *ThreadMQ
	owner  bool // the bridge closes the queues on Done
	nested bool // the bridge drives a nested loop
	done   bool
}

// New creates a bridge with two empty queues. The host side is registered
// on ml. If rtp is not nil, the processing side is registered on rtp: InQ
// is consumed by an early item, the completions of OutQ are collected by a
// late item. Without rtp, the processing side is attached later with
// ChainToNestedLoop.
func New(ml mainloop.API, rtp *rtpoll.RTPoll, opts ...Option) (*ThreadMQ, error) {

	options := Options{
		Capacity: DefaultCapacity,
	}

	for _, option := range opts {
		option(&options)
	}

	inq, err := asyncmsgq.New(options.Capacity)
	if err != nil {
		return nil, fmt.Errorf("threadmq: %v", err)
	}

	outq, err := asyncmsgq.New(options.Capacity)
	if err != nil {
		inq.Close()
		return nil, fmt.Errorf("threadmq: %v", err)
	}

	q := &ThreadMQ{
		InQ:   inq,
		OutQ:  outq,
		owner: true,
	}

	if err := q.initMainloop(ml); err != nil {
		q.Done()
		return nil, err
	}

	if rtp != nil {
		q.readItem = rtpoll.NewAsyncMsgqRead(rtp, rtpoll.PriorityEarly, inq)
		q.writeItem = rtpoll.NewAsyncMsgqWrite(rtp, rtpoll.PriorityLate, outq)
	}

	return q, nil
}

func (q *ThreadMQ) initMainloop(ml mainloop.API) error {
	q.mainloop = ml

	q.InQ.WriteBeforePoll()

	ev, err := ml.IONew(q.OutQ.ReadFd(), mainloop.IOEventInput, q.readCb)
	if err != nil {
		return fmt.Errorf("threadmq: unable to register read event: %v", err)
	}
	q.readEvent = ev

	ev, err = ml.IONew(q.InQ.WriteFd(), mainloop.IOEventInput, q.writeCb)
	if err != nil {
		return fmt.Errorf("threadmq: unable to register write event: %v", err)
	}
	q.writeEvent = ev

	return nil
}

// readCb dispatches everything waiting in OutQ and only returns once the
// queue has been seen empty after the last dispatch.
func (q *ThreadMQ) readCb(api mainloop.API, e *mainloop.IOEvent, fd int, events mainloop.IOEventFlags) {

	aq := q.OutQ
	if aq == nil {
		return
	}

	aq.ReadAfterPoll()

	for {
		for {
			msg, ok := aq.TryGet()
			if !ok {
				break
			}

			if q.nested && msg.IsShutdown() {
				aq.Done(0)
				api.Quit(0)
				return
			}

			aq.Done(asyncmsgq.Dispatch(msg))
		}

		if aq.ReadBeforePoll() {
			break
		}
	}
}

func (q *ThreadMQ) writeCb(api mainloop.API, e *mainloop.IOEvent, fd int, events mainloop.IOEventFlags) {
	if q.InQ == nil {
		return
	}
	q.InQ.WriteAfterPoll()
	q.InQ.WriteBeforePoll()
}

// ChainToNestedLoop relays the bridge into a nested loop running on the
// processing goroutine. The returned bridge shares the queues with q in
// swapped roles: its InQ is q.OutQ and its OutQ is q.InQ. A shutdown
// message sent by the host on q.InQ makes the nested loop quit.
func (q *ThreadMQ) ChainToNestedLoop(ml mainloop.API) (*ThreadMQ, error) {
	if q.done {
		return nil, asyncmsgq.ErrClosed
	}
	if q.relay != nil {
		return nil, ErrRelayInstalled
	}

	inner := &ThreadMQ{
		InQ:    q.OutQ,
		OutQ:   q.InQ,
		nested: true,
	}

	if err := inner.initMainloop(ml); err != nil {
		inner.releaseHooks()
		return nil, err
	}

	q.relay = inner

	return inner, nil
}

// Done tears the bridge down. Messages left in OutQ are dispatched unless
// the caller is dispatching one of them right now. The hooks of a chained
// relay are released before the bridge's own hooks and items. Queues are
// closed by the bridge which created them. Calling Done more than once
// is safe.
func (q *ThreadMQ) Done() {
	if q.done {
		return
	}
	q.done = true

	if q.owner && q.OutQ != nil && !q.OutQ.Dispatching() {
		q.OutQ.Flush(true)
	}

	if q.relay != nil {
		q.relay.releaseHooks()
		q.relay.done = true
		q.relay = nil
	}

	q.releaseHooks()

	q.readItem.Free()
	q.writeItem.Free()
	q.readItem, q.writeItem = nil, nil

	if q.owner {
		if q.InQ != nil {
			q.InQ.Close()
		}
		if q.OutQ != nil {
			q.OutQ.Close()
		}
	}
	q.InQ, q.OutQ = nil, nil
}

func (q *ThreadMQ) releaseHooks() {
	if q.mainloop != nil {
		q.mainloop.IOFree(q.readEvent)
		q.mainloop.IOFree(q.writeEvent)
	}
	q.readEvent, q.writeEvent = nil, nil
	q.mainloop = nil
}

type ctxKey struct{}

// Install attaches q to the processing context ctx. Installing a second
// bridge into the same context is a programming error and panics with
// ErrAlreadyInstalled.
func Install(ctx context.Context, q *ThreadMQ) context.Context {
	if q == nil {
		panic("threadmq: Install called with nil bridge")
	}
	if FromContext(ctx) != nil {
		panic(ErrAlreadyInstalled)
	}
	return context.WithValue(ctx, ctxKey{}, q)
}

// FromContext returns the bridge installed in ctx or nil.
func FromContext(ctx context.Context) *ThreadMQ {
	q, _ := ctx.Value(ctxKey{}).(*ThreadMQ)
	return q
}
