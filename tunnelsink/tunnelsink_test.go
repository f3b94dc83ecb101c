package tunnelsink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cskr/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dh1tw/tunnelsink/audio"
	"github.com/dh1tw/tunnelsink/core"
	"github.com/dh1tw/tunnelsink/events"
	"github.com/dh1tw/tunnelsink/mainloop"
	"github.com/dh1tw/tunnelsink/modargs"
	"github.com/dh1tw/tunnelsink/transport"
)

type fakeTransport struct {
	sync.Mutex
	frames  []transport.Frame
	sendErr error
	closed  bool
}

func (f *fakeTransport) Send(fr transport.Frame) error {
	f.Lock()
	defer f.Unlock()
	if f.closed {
		return transport.ErrClosed
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeTransport) Close() error {
	f.Lock()
	defer f.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) Frames() []transport.Frame {
	f.Lock()
	defer f.Unlock()
	return append([]transport.Frame(nil), f.frames...)
}

func (f *fakeTransport) Closed() bool {
	f.Lock()
	defer f.Unlock()
	return f.closed
}

func withTransport(t *testing.T, ft *fakeTransport) {
	t.Helper()
	orig := dialTransport
	dialTransport = func(cfg *config) (transport.Transport, error) {
		return ft, nil
	}
	t.Cleanup(func() { dialTransport = orig })
}

// runCore returns a core whose main loop runs until the test ends.
func runCore(t *testing.T, evPS *pubsub.PubSub) *core.Core {
	t.Helper()

	ml, err := mainloop.New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ml.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
		ml.Close()
	})

	return core.New(ml, evPS)
}

func call(t *testing.T, c *core.Core, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Call(ctx, fn))
}

func loadModule(t *testing.T, c *core.Core, args string) (*core.Module, error) {
	t.Helper()
	var m *core.Module
	var err error
	call(t, c, func() {
		m, err = c.LoadModule(ModuleName, args)
	})
	return m, err
}

func TestRegistered(t *testing.T) {
	info, ok := core.Info(ModuleName)
	require.True(t, ok)
	assert.Equal(t, usage, info.Usage)
	assert.NotNil(t, info.Init)
	assert.NotNil(t, info.Done)
}

func TestTunnel(t *testing.T) {
	evPS := pubsub.New(10)
	t.Cleanup(evPS.Shutdown)
	statsCh := evPS.Sub(events.SinkStats)

	ft := &fakeTransport{}
	withTransport(t, ft)

	c := runCore(t, evPS)

	m, err := loadModule(t, c,
		"sink_name=tunnel codec=pcm format=float32le rate=48000 channels=2 block_msec=10 "+
			"sink_properties='device.description=Remote'")
	require.NoError(t, err)

	var s *core.Sink
	call(t, c, func() {
		s, _ = c.SinkByName("tunnel")
	})
	require.NotNil(t, s)
	assert.Equal(t, "abstract", s.Proplist.Gets("device.class"))
	assert.Equal(t, "Remote", s.Proplist.Gets("device.description"))
	assert.Equal(t, "tunnelsink.tunnel.audio", s.Proplist.Gets("device.string"))
	assert.Equal(t, core.SinkIdle, s.State())

	// an idle sink streams silence
	require.Eventually(t, func() bool {
		return len(ft.Frames()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	f := ft.Frames()[0]
	assert.Equal(t, "pcm/float32le", f.Codec)
	assert.Equal(t, uint32(48000), f.Samplerate)
	assert.Equal(t, 2, f.Channels)
	assert.Equal(t, 480, f.Frames)
	assert.Len(t, f.Payload, 480*2*4)

	// one second of a constant signal
	data := make([]float32, 48000*2)
	for i := range data {
		data[i] = 0.5
	}

	call(t, c, func() {
		require.NoError(t, s.Start())
		require.NoError(t, s.Write(audio.Msg{
			Data:       data,
			Samplerate: 48000,
			Channels:   2,
			Frames:     48000,
		}))
	})

	var l time.Duration
	call(t, c, func() {
		l, err = s.Latency()
	})
	require.NoError(t, err)
	assert.True(t, l > 0 && l <= time.Second, "latency %v", l)

	select {
	case msg := <-statsCh:
		ev, ok := msg.(events.SinkStatsEvent)
		require.True(t, ok)
		assert.Equal(t, "tunnel", ev.Sink)
		assert.NotZero(t, ev.BlocksSent)
	case <-time.After(3 * time.Second):
		t.Fatal("no stats received")
	}

	call(t, c, func() {
		c.UnloadModule(m)
	})
	assert.True(t, ft.Closed())
	assert.Empty(t, c.Modules())

	call(t, c, func() {
		_, ok := c.SinkByName("tunnel")
		assert.False(t, ok)
	})
}

func TestTransportFailureUnloadsModule(t *testing.T) {
	ft := &fakeTransport{sendErr: errors.New("broken pipe")}
	withTransport(t, ft)

	c := runCore(t, nil)

	_, err := loadModule(t, c, "codec=pcm block_msec=10")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(c.Modules()) == 0
	}, 3*time.Second, 10*time.Millisecond)

	assert.True(t, ft.Closed())
}

func TestInvalidArguments(t *testing.T) {
	ft := &fakeTransport{}
	withTransport(t, ft)

	c := runCore(t, nil)

	tests := []struct {
		name string
		args string
		key  string
	}{
		{"unknown key", "foo=bar", "foo"},
		{"codec", "codec=mp3", "codec"},
		{"port", "remote_port=70000", "remote_port"},
		{"opus rate", "rate=44100", "rate"},
		{"opus block", "block_msec=15", "block_msec"},
		{"partial frames", "codec=pcm rate=44100 block_msec=1", "block_msec"},
		{"buffer", "buffer_length=0", "buffer_length"},
		{"opus application", "opus_application=music", "opus_application"},
		{"opus complexity", "opus_complexity=11", "opus_complexity"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadModule(t, c, tc.args)
			require.Error(t, err)
			var argErr *modargs.ArgError
			require.ErrorAs(t, err, &argErr)
			assert.Equal(t, tc.key, argErr.Key)
		})
	}

	assert.Empty(t, c.Modules())
	assert.False(t, ft.Closed())
}

func TestEnqueue(t *testing.T) {
	u := &userdata{
		cfg: &config{
			ss:          audio.SampleSpec{Format: audio.FormatFloat32LE, Rate: 1000, Channels: 1},
			blockFrames: 4,
		},
		block: make([]float32, 4),
	}
	u.ring.SetCapacity(2)

	u.enqueue(&audio.Msg{Data: []float32{1, 2, 3, 4, 5, 6}})
	assert.Equal(t, 1, u.ring.Length())
	assert.Equal(t, []float32{5, 6}, u.stash)
	assert.Equal(t, 6*time.Millisecond, u.latency())

	u.enqueue(&audio.Msg{Data: []float32{7, 8}, EOF: true})
	assert.Equal(t, 2, u.ring.Length())
	assert.Empty(t, u.stash)

	assert.Equal(t, []float32{1, 2, 3, 4}, u.ring.Dequeue())
	assert.Equal(t, []float32{5, 6, 7, 8}, u.ring.Dequeue())

	// a partial block at the end of a file is padded with silence
	u.enqueue(&audio.Msg{Data: []float32{9}, EOF: true})
	assert.Equal(t, []float32{9, 0, 0, 0}, u.ring.Dequeue())

	// the oldest block is dropped when the ring is full
	u.enqueue(&audio.Msg{Data: []float32{1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3}})
	assert.Equal(t, uint64(1), u.stats.overruns)
	assert.Equal(t, []float32{2, 2, 2, 2}, u.ring.Dequeue())

	u.flush()
	assert.Equal(t, 0, u.ring.Length())
}
