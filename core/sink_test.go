package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dh1tw/tunnelsink/asyncmsgq"
	"github.com/dh1tw/tunnelsink/audio"
	"github.com/dh1tw/tunnelsink/proplist"
	"github.com/dh1tw/tunnelsink/rtpoll"
	"github.com/dh1tw/tunnelsink/threadmq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// processing goroutine serving a sink's message queue
type testThread struct {
	mq   *threadmq.ThreadMQ
	rtp  *rtpoll.RTPoll
	done chan struct{}
}

func startThread(t *testing.T, c *Core) *testThread {
	t.Helper()

	rtp := rtpoll.New()
	mq, err := threadmq.New(c.Mainloop, rtp)
	require.NoError(t, err)

	th := &testThread{mq: mq, rtp: rtp, done: make(chan struct{})}
	go func() {
		defer close(th.done)
		for {
			ok, err := rtp.Run()
			if err != nil || !ok {
				return
			}
		}
	}()
	return th
}

func (th *testThread) stop(t *testing.T) {
	t.Helper()
	_, err := th.mq.InQ.Send(context.Background(), nil, asyncmsgq.MessageShutdown, nil, 0, nil)
	require.NoError(t, err)
	<-th.done
	th.mq.Done()
	th.rtp.Free()
}

func TestSinkLifecycle(t *testing.T) {
	c := newCore(t, nil)
	th := startThread(t, c)

	s, err := c.NewSink(SinkNewData{
		Name:       "test_sink",
		Driver:     "sink_test.go",
		SampleSpec: c.DefaultSampleSpec,
		ChannelMap: c.DefaultChannelMap,
		Proplist:   proplist.Proplist{proplist.DeviceClass: "abstract"},
	})
	require.NoError(t, err)
	assert.Equal(t, SinkInit, s.State())

	chunks := make(chan *audio.Msg, 4)
	s.SetProcessMsg(func(s *Sink, code int, data interface{}, offset int64, chunk *audio.Msg) int {
		if code == SinkMessagePostChunk {
			chunks <- chunk
			return 0
		}
		if code == SinkMessageGetLatency {
			*data.(*time.Duration) = 20 * time.Millisecond
			return 0
		}
		return s.DefaultProcessMsg(code, data, offset, chunk)
	})
	s.SetAsyncMsgq(th.mq.InQ)
	s.SetRTPoll(th.rtp)

	require.NoError(t, s.Put())
	assert.Equal(t, SinkIdle, s.State())
	assert.Equal(t, SinkIdle, s.ThreadInfo.State)

	found, ok := c.SinkByName("test_sink")
	require.True(t, ok)
	assert.Same(t, s, found)
	assert.Equal(t, []*Sink{s}, c.Sinks())

	require.NoError(t, s.Start())
	assert.Equal(t, SinkRunning, s.ThreadInfo.State)

	// mono audio is converted to the sink's two channels
	require.NoError(t, s.Write(audio.Msg{
		Data:       []float32{0.1, 0.2, 0.3},
		Samplerate: 48000,
		Channels:   1,
		Frames:     3,
	}))
	select {
	case chunk := <-chunks:
		assert.Equal(t, 2, chunk.Channels)
		assert.Equal(t, []float32{0.1, 0.1, 0.2, 0.2, 0.3, 0.3}, chunk.Data)
	case <-time.After(time.Second):
		t.Fatal("chunk not delivered")
	}

	err = s.Write(audio.Msg{Data: []float32{0, 0}, Samplerate: 44100, Channels: 2, Frames: 1})
	assert.Error(t, err)

	l, err := s.Latency()
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, l)

	s.SetVolume(0.5)
	assert.Equal(t, float32(0.5), s.Volume())
	require.NoError(t, s.Stop())
	assert.Equal(t, float32(0.5), s.ThreadInfo.Volume)

	s.Unlink()
	assert.Equal(t, SinkUnlinked, s.State())
	assert.Equal(t, SinkUnlinked, s.ThreadInfo.State)
	_, ok = c.SinkByName("test_sink")
	assert.False(t, ok)
	assert.True(t, errors.Is(s.Write(audio.Msg{Samplerate: 48000, Channels: 2}), ErrSinkUnlinked))
	assert.NotPanics(t, s.Unlink)

	th.stop(t)
	s.Release()
	assert.Nil(t, s.AsyncMsgq())
}

func TestNewSinkValidation(t *testing.T) {
	c := newCore(t, nil)

	good := SinkNewData{
		Name:       "sink",
		SampleSpec: c.DefaultSampleSpec,
		ChannelMap: c.DefaultChannelMap,
	}

	noName := good
	noName.Name = ""
	_, err := c.NewSink(noName)
	assert.Error(t, err)

	badSpec := good
	badSpec.SampleSpec.Rate = 0
	_, err = c.NewSink(badSpec)
	assert.Error(t, err)

	badMap := good
	badMap.ChannelMap = audio.ChannelMap{audio.PositionMono}
	_, err = c.NewSink(badMap)
	assert.Error(t, err)

	c.sinks["sink"] = &Sink{Name: "sink"}
	_, err = c.NewSink(good)
	assert.Error(t, err)
}

func TestUnlinkUnputSink(t *testing.T) {
	c := newCore(t, nil)

	s, err := c.NewSink(SinkNewData{
		Name:       "sink",
		SampleSpec: c.DefaultSampleSpec,
		ChannelMap: c.DefaultChannelMap,
	})
	require.NoError(t, err)

	assert.Equal(t, ErrNoAsyncMsgq, s.Put())
	assert.NotPanics(t, s.Unlink)
	assert.NotPanics(t, s.Release)
	assert.Equal(t, SinkUnlinked, s.State())
}
