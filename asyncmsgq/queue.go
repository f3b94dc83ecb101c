package asyncmsgq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dh1tw/tunnelsink/audio"
	"github.com/dh1tw/tunnelsink/fdsem"
)

var (
	// ErrQueueFull is returned by Post when all slots of the queue are
	// in use. The rejected message remains owned by the caller.
	ErrQueueFull = errors.New("asyncmsgq: queue full")
	// ErrClosed is returned when using a queue after Close.
	ErrClosed = errors.New("asyncmsgq: queue closed")
)

// granularity in which blocking calls check their context
const pollInterval = 100 * time.Millisecond

type slot struct {
	msg   Message
	free  FreeFunc
	reply chan int
}

// Queue is a fixed capacity message queue for exactly one producer and
// one consumer. Post never blocks. A slot is only reused after the
// consumer has completed its message (Done) and the producer has seen the
// completion, so the capacity bounds the number of messages in flight.
//
// The read descriptor (ReadFd) becomes readable when messages are
// available for the consumer, the write descriptor (WriteFd) when
// completions are available for the producer.
type Queue struct {
	slots    []slot
	capacity uint64

	write     atomic.Uint64 // producer: next slot to fill
	read      atomic.Uint64 // consumer: next slot to take
	done      atomic.Uint64 // consumer: slots completed
	reclaimed atomic.Uint64 // producer: slots released

	readSem  *fdsem.FdSem
	writeSem *fdsem.FdSem

	current   atomic.Bool // consumer holds a message (between Get and Done)
	closed    atomic.Bool
	closing   chan struct{}
	closeOnce sync.Once
}

// New returns an empty queue which can hold up to capacity messages.
func New(capacity int) (*Queue, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("asyncmsgq: invalid capacity %d", capacity)
	}

	readSem, err := fdsem.New()
	if err != nil {
		return nil, fmt.Errorf("asyncmsgq: %v", err)
	}

	writeSem, err := fdsem.New()
	if err != nil {
		readSem.Close()
		return nil, fmt.Errorf("asyncmsgq: %v", err)
	}

	q := &Queue{
		slots:    make([]slot, capacity),
		capacity: uint64(capacity),
		readSem:  readSem,
		writeSem: writeSem,
		closing:  make(chan struct{}),
	}

	return q, nil
}

// Capacity returns the maximum number of messages in flight.
func (q *Queue) Capacity() int {
	return int(q.capacity)
}

// Len returns the number of messages waiting for the consumer.
func (q *Queue) Len() int {
	return int(q.write.Load() - q.read.Load())
}

// Post enqueues a message without blocking. free, if not nil, is executed
// on the producer's context after the consumer completed the message.
func (q *Queue) Post(obj Object, code int, data interface{}, offset int64, chunk *audio.Msg, free FreeFunc) error {
	return q.push(slot{
		msg:  Message{Object: obj, Code: code, Data: data, Offset: offset, Chunk: chunk},
		free: free,
	})
}

// Send enqueues a message and blocks until the consumer has processed it.
// It returns the result of the target's ProcessMsg. Send waits for a free
// slot if the queue is full. A message that has been accepted can not be
// cancelled; when ctx expires the result is discarded.
func (q *Queue) Send(ctx context.Context, obj Object, code int, data interface{}, offset int64, chunk *audio.Msg) (int, error) {

	reply := make(chan int, 1)
	s := slot{
		msg:   Message{Object: obj, Code: code, Data: data, Offset: offset, Chunk: chunk},
		reply: reply,
	}

	for {
		err := q.push(s)
		if err == nil {
			break
		}
		if err != ErrQueueFull {
			return 0, err
		}
		if err := q.waitWritable(ctx); err != nil {
			return 0, err
		}
	}

	select {
	case ret := <-reply:
		return ret, nil
	case <-q.closing:
		// the consumer might have answered right before the queue was closed
		select {
		case ret := <-reply:
			return ret, nil
		default:
		}
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (q *Queue) push(s slot) error {
	if q.closed.Load() {
		return ErrClosed
	}

	w := q.write.Load()
	if w-q.reclaimed.Load() >= q.capacity {
		q.reclaim()
		if w-q.reclaimed.Load() >= q.capacity {
			return ErrQueueFull
		}
	}

	q.slots[w%q.capacity] = s
	q.write.Store(w + 1)
	q.readSem.Post()

	return nil
}

// waitWritable blocks the producer until the consumer completed at
// least one message.
func (q *Queue) waitWritable(ctx context.Context) error {
	for {
		ok, err := q.writeSem.Wait(pollInterval)
		if err != nil {
			return ErrClosed
		}
		if ok {
			q.writeSem.AfterPoll()
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// reclaim releases the slots completed by the consumer. Producer only.
func (q *Queue) reclaim() {
	d := q.done.Load()
	for c := q.reclaimed.Load(); c < d; c++ {
		s := &q.slots[c%q.capacity]
		if s.free != nil {
			s.free(s.msg.Data)
		}
		*s = slot{}
		q.reclaimed.Store(c + 1)
	}
}

// TryGet takes the next message without blocking. Every message taken
// must be completed with Done before the next one can be taken.
func (q *Queue) TryGet() (Message, bool) {
	if q.current.Load() {
		panic("asyncmsgq: TryGet called before Done")
	}

	if q.closed.Load() {
		return Message{}, false
	}

	r := q.read.Load()
	if r == q.write.Load() {
		return Message{}, false
	}

	msg := q.slots[r%q.capacity].msg
	q.current.Store(true)
	q.read.Store(r + 1)

	return msg, true
}

// Get takes the next message, blocking until one is available.
func (q *Queue) Get(ctx context.Context) (Message, error) {
	for {
		if msg, ok := q.TryGet(); ok {
			return msg, nil
		}
		if q.closed.Load() {
			return Message{}, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return Message{}, err
		}
		if _, err := q.readSem.Wait(pollInterval); err != nil {
			return Message{}, ErrClosed
		}
		q.readSem.AfterPoll()
	}
}

// Done completes the message taken last and hands ret to a waiting
// sender. The slot is returned to the producer.
func (q *Queue) Done(ret int) {
	if !q.current.Load() {
		panic("asyncmsgq: Done called without a message")
	}

	r := q.read.Load() - 1
	if reply := q.slots[r%q.capacity].reply; reply != nil {
		reply <- ret
	}

	q.done.Store(r + 1)
	q.current.Store(false)
	q.writeSem.Post()
}

// Dispatching reports whether the consumer is currently processing a
// message.
func (q *Queue) Dispatching() bool {
	return q.current.Load()
}

// WaitFor dispatches all incoming messages in order until a message with
// the given code has been dispatched and completed.
func (q *Queue) WaitFor(ctx context.Context, code int) error {
	for {
		msg, err := q.Get(ctx)
		if err != nil {
			return err
		}
		q.Done(Dispatch(msg))
		if msg.Code == code {
			return nil
		}
	}
}

// Flush completes all pending messages. If run is true, the messages are
// dispatched, otherwise they are completed with 0.
func (q *Queue) Flush(run bool) {
	for {
		msg, ok := q.TryGet()
		if !ok {
			return
		}
		ret := 0
		if run {
			ret = Dispatch(msg)
		}
		q.Done(ret)
	}
}

// ReadFd returns the descriptor the consumer polls for new messages.
func (q *Queue) ReadFd() int {
	return q.readSem.Fd()
}

// ReadBeforePoll reports whether the consumer may go to sleep, i.e. no
// message is pending.
func (q *Queue) ReadBeforePoll() bool {
	return q.read.Load() == q.write.Load() || q.closed.Load()
}

// ReadAfterPoll acknowledges the wake-up of the consumer.
func (q *Queue) ReadAfterPoll() {
	q.readSem.AfterPoll()
}

// WriteFd returns the descriptor the producer polls for completions.
func (q *Queue) WriteFd() int {
	return q.writeSem.Fd()
}

// WriteBeforePoll releases completed slots and reports whether the
// producer may go to sleep.
func (q *Queue) WriteBeforePoll() bool {
	q.reclaim()
	return q.done.Load() == q.reclaimed.Load()
}

// WriteAfterPoll acknowledges the wake-up of the producer and releases
// completed slots.
func (q *Queue) WriteAfterPoll() {
	q.writeSem.AfterPoll()
	q.reclaim()
}

// Close releases the wake-up descriptors. Messages still in the queue are
// dropped without being dispatched; their free functions are not called.
// Close must only be called when neither side uses the queue anymore.
// Calling Close more than once is safe.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		close(q.closing)
		q.reclaim()
		q.readSem.Close()
		q.writeSem.Close()
	})
}
