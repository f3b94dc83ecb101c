package threadmq

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/dh1tw/tunnelsink/asyncmsgq"
	"github.com/dh1tw/tunnelsink/audio"
	"github.com/dh1tw/tunnelsink/mainloop"
	"github.com/dh1tw/tunnelsink/rtpoll"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	msgPing = iota
	msgPong
	msgChunk
)

func newHost(t *testing.T) *mainloop.Mainloop {
	t.Helper()
	ml, err := mainloop.New()
	require.NoError(t, err)
	t.Cleanup(ml.Close)
	return ml
}

// iterate drives the host loop until cond holds
func iterate(t *testing.T, ml *mainloop.Mainloop, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		require.True(t, time.Now().Before(deadline), "condition not met in time")
		require.NoError(t, ml.Iterate(10*time.Millisecond))
	}
}

type hostObject struct {
	mu     sync.Mutex
	codes  []int
	chunks []*audio.Msg
}

func (h *hostObject) ProcessMsg(code int, data interface{}, offset int64, chunk *audio.Msg) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.codes = append(h.codes, code)
	h.chunks = append(h.chunks, chunk)
	return 0
}

func (h *hostObject) received() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.codes)
}

func TestBridgeWithRTPoll(t *testing.T) {
	ml := newHost(t)
	rtp := rtpoll.New()

	q, err := New(ml, rtp, Capacity(8))
	require.NoError(t, err)

	host := &hostObject{}

	// the thread side answers every ping with a pong to the host
	thread := asyncmsgq.ObjectFunc(func(code int, data interface{}, offset int64, chunk *audio.Msg) int {
		if code == msgPing {
			if err := q.OutQ.Post(host, msgPong, data, 0, nil, nil); err != nil {
				t.Error(err)
			}
		}
		return 42
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		ctx := Install(context.Background(), q)
		assert.Same(t, q, FromContext(ctx))

		for {
			ok, err := rtp.Run()
			if err != nil {
				t.Error(err)
				return
			}
			if !ok {
				return
			}
		}
	}()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.InQ.Post(thread, msgPing, i, 0, nil, nil))
	}

	iterate(t, ml, func() bool { return host.received() == 3 })
	assert.Equal(t, []int{msgPong, msgPong, msgPong}, host.codes)

	ret, err := q.InQ.Send(context.Background(), thread, msgPong, nil, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, ret)

	ret, err = q.InQ.Send(context.Background(), nil, asyncmsgq.MessageShutdown, nil, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, ret)

	wg.Wait()

	inq := q.InQ
	q.Done()
	q.Done()
	rtp.Free()

	assert.Equal(t, asyncmsgq.ErrClosed, inq.Post(nil, msgPing, nil, 0, nil, nil))
}

func TestDoneTwiceIsNoop(t *testing.T) {
	ml := newHost(t)

	q, err := New(ml, nil)
	require.NoError(t, err)

	q.Done()
	assert.NotPanics(t, q.Done)
	assert.Nil(t, q.InQ)
	assert.Nil(t, q.OutQ)
}

func TestDoneFlushesOutQ(t *testing.T) {
	ml := newHost(t)

	q, err := New(ml, nil)
	require.NoError(t, err)

	host := &hostObject{}
	require.NoError(t, q.OutQ.Post(host, msgPong, nil, 0, nil, nil))
	require.NoError(t, q.OutQ.Post(host, msgPong, nil, 0, nil, nil))

	q.Done()
	assert.Equal(t, 2, host.received())
}

func TestOverflow(t *testing.T) {
	ml := newHost(t)

	q, err := New(ml, nil, Capacity(2))
	require.NoError(t, err)
	defer q.Done()

	require.NoError(t, q.InQ.Post(nil, msgPing, nil, 0, nil, nil))
	require.NoError(t, q.InQ.Post(nil, msgPing, nil, 0, nil, nil))
	assert.Equal(t, asyncmsgq.ErrQueueFull, q.InQ.Post(nil, msgPing, nil, 0, nil, nil))
	assert.Equal(t, 2, q.InQ.Len())
}

func TestInstall(t *testing.T) {
	ml := newHost(t)

	a, err := New(ml, nil)
	require.NoError(t, err)
	defer a.Done()

	b, err := New(ml, nil)
	require.NoError(t, err)
	defer b.Done()

	ctx := Install(context.Background(), a)
	assert.PanicsWithError(t, ErrAlreadyInstalled.Error(), func() {
		Install(ctx, b)
	})
	assert.Same(t, a, FromContext(ctx))

	// an independent processing context installs its own bridge
	done := make(chan *ThreadMQ)
	go func() {
		done <- FromContext(Install(context.Background(), b))
	}()
	assert.Same(t, b, <-done)

	assert.Nil(t, FromContext(context.Background()))
}

func TestRelay(t *testing.T) {
	host := newHost(t)

	outer, err := New(host, nil)
	require.NoError(t, err)

	nested := newHost(t)
	inner, err := outer.ChainToNestedLoop(nested)
	require.NoError(t, err)
	assert.Same(t, outer.OutQ, inner.InQ)
	assert.Same(t, outer.InQ, inner.OutQ)

	_, err = outer.ChainToNestedLoop(nested)
	assert.Equal(t, ErrRelayInstalled, err)

	hostObj := &hostObject{}

	// the nested side forwards every chunk back to the host
	threadObj := asyncmsgq.ObjectFunc(func(code int, data interface{}, offset int64, chunk *audio.Msg) int {
		if err := inner.InQ.Post(hostObj, msgChunk, nil, 0, chunk, nil); err != nil {
			t.Error(err)
		}
		return 0
	})

	result := make(chan int, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		ret, err := nested.Run(context.Background())
		if err != nil {
			t.Error(err)
		}
		result <- ret
	}()

	chunk := &audio.Msg{Data: make([]float32, 960), Channels: 2, Frames: 480, Samplerate: 48000}
	require.NoError(t, outer.InQ.Post(threadObj, msgChunk, nil, 0, chunk, nil))

	iterate(t, host, func() bool { return hostObj.received() == 1 })
	assert.Same(t, chunk, hostObj.chunks[0])

	_, err = outer.InQ.Send(context.Background(), nil, asyncmsgq.MessageShutdown, nil, 0, nil)
	require.NoError(t, err)

	select {
	case ret := <-result:
		assert.Equal(t, 0, ret)
	case <-time.After(2 * time.Second):
		t.Fatal("nested loop did not quit")
	}

	outer.Done()
	outer.Done()
	assert.Nil(t, outer.relay)
}
