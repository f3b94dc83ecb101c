package tunnelsink

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"time"

	"github.com/dh1tw/tunnelsink/asyncmsgq"
	"github.com/dh1tw/tunnelsink/audio"
	"github.com/dh1tw/tunnelsink/core"
	"github.com/dh1tw/tunnelsink/threadmq"
	"github.com/dh1tw/tunnelsink/transport"
)

const statsInterval = time.Second

// if rendering falls further behind than this, the clock is reset instead
// of catching up
const maxLag = 200 * time.Millisecond

func (u *userdata) threadFunc() {

	defer close(u.threadDone)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ctx := threadmq.Install(context.Background(), u.mq)

	log.Printf("tunnelsink: thread starting up (%s)", u.cfg.sinkName)

	u.timestamp = time.Now()
	u.nextStats = u.timestamp.Add(statsInterval)

	for {
		if u.sink.ThreadInfo.State.Opened() {
			now := time.Now()

			if now.Sub(u.timestamp) > maxLag {
				u.timestamp = now
			}

			for !u.timestamp.After(now) {
				if err := u.render(); err != nil {
					log.Printf("tunnelsink: %s: %v", u.cfg.sinkName, err)
					u.fail(ctx)
					return
				}
				u.timestamp = u.timestamp.Add(u.cfg.blockDuration)
			}

			if !now.Before(u.nextStats) {
				u.postStats()
				u.nextStats = now.Add(statsInterval)
			}

			u.rtpoll.SetTimerAbsolute(u.timestamp)
		} else {
			u.rtpoll.DisableTimer()
		}

		ok, err := u.rtpoll.Run()
		if err != nil {
			log.Printf("tunnelsink: %s: %v", u.cfg.sinkName, err)
			u.fail(ctx)
			return
		}
		if !ok {
			break
		}
	}

	log.Printf("tunnelsink: thread shutting down (%s)", u.cfg.sinkName)
}

// fail asks the host to unload the module and waits until it has done so.
func (u *userdata) fail(ctx context.Context) {
	mq := threadmq.FromContext(ctx)

	// the post may fail if the queue is full; the host still tears the
	// module down eventually and sends the shutdown request
	if err := mq.OutQ.Post(u.core, core.MessageUnloadModule, u.module, 0, nil, nil); err != nil {
		log.Printf("tunnelsink: %s: unable to request unload: %v", u.cfg.sinkName, err)
	}

	if err := mq.InQ.WaitFor(ctx, asyncmsgq.MessageShutdown); err != nil {
		log.Printf("tunnelsink: %s: %v", u.cfg.sinkName, err)
	}
}

// render encodes and sends the next block. If no audio is buffered, a
// block of silence is sent.
func (u *userdata) render() error {

	src := u.silence
	if b := u.ring.Dequeue(); b != nil {
		src = b.([]float32)
	} else if u.sink.ThreadInfo.State == core.SinkRunning {
		u.stats.underruns++
	}

	copy(u.block, src)
	if vol := u.sink.ThreadInfo.Volume; vol != 1 {
		audio.AdjustVolume(vol, u.block)
	}

	u.levelSum += audio.Level(u.block)
	u.levelCount++

	n, err := u.encoder.Encode(u.block, u.encBuf)
	if err != nil {
		return fmt.Errorf("encode: %v", err)
	}

	payload := make([]byte, n)
	copy(payload, u.encBuf[:n])

	err = u.transport.Send(transport.Frame{
		Codec:      u.encoder.Name(),
		Samplerate: u.cfg.ss.Rate,
		Channels:   int(u.cfg.ss.Channels),
		Frames:     u.cfg.blockFrames,
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("send: %v", err)
	}

	u.stats.blocksSent++
	return nil
}

// enqueue chops a chunk into blocks and adds them to the ring buffer.
// Samples which don't fill a whole block are kept for the next chunk.
func (u *userdata) enqueue(chunk *audio.Msg) {

	size := len(u.block)
	data := chunk.Data
	if len(u.stash) > 0 {
		data = append(u.stash, data...)
		u.stash = nil
	}

	for len(data) >= size {
		u.push(data[:size:size])
		data = data[size:]
	}

	if len(data) == 0 {
		return
	}

	if chunk.EOF {
		b := make([]float32, size)
		copy(b, data)
		u.push(b)
		return
	}

	u.stash = append([]float32(nil), data...)
}

func (u *userdata) push(b []float32) {
	if u.ring.Length() == u.ring.Capacity() {
		u.ring.Dequeue() // drop the oldest block
		u.stats.overruns++
	}
	u.ring.Enqueue(b)
}

func (u *userdata) flush() {
	for u.ring.Dequeue() != nil {
	}
	u.stash = nil
}

func (u *userdata) latency() time.Duration {
	frames := u.ring.Length()*u.cfg.blockFrames + len(u.stash)/int(u.cfg.ss.Channels)
	return time.Duration(frames) * time.Second / time.Duration(u.cfg.ss.Rate)
}

func (u *userdata) postStats() {
	st := u.stats
	st.latency = u.latency()
	if u.levelCount > 0 {
		st.level = u.levelSum / float32(u.levelCount)
	}
	u.levelSum, u.levelCount = 0, 0

	if err := u.mq.OutQ.Post(u, messageStats, st, 0, nil, nil); err != nil {
		log.Printf("tunnelsink: %s: unable to post stats: %v", u.cfg.sinkName, err)
	}
}

// sinkProcessMsg runs on the processing goroutine.
func (u *userdata) sinkProcessMsg(s *core.Sink, code int, data interface{}, offset int64, chunk *audio.Msg) int {

	switch code {
	case core.SinkMessageSetState:
		state, ok := data.(core.SinkState)
		if !ok {
			return -1
		}
		if state.Opened() && !s.ThreadInfo.State.Opened() {
			u.timestamp = time.Now()
		}
		if state == core.SinkUnlinked {
			u.flush()
		}

	case core.SinkMessageGetLatency:
		if l, ok := data.(*time.Duration); ok {
			*l = u.latency()
		}
		return 0

	case core.SinkMessagePostChunk:
		if chunk == nil {
			return -1
		}
		u.enqueue(chunk)
		return 0

	case core.SinkMessageFlush:
		u.flush()
		return 0
	}

	return s.DefaultProcessMsg(code, data, offset, chunk)
}
