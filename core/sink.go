package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dh1tw/tunnelsink/asyncmsgq"
	"github.com/dh1tw/tunnelsink/audio"
	"github.com/dh1tw/tunnelsink/proplist"
	"github.com/dh1tw/tunnelsink/rtpoll"
)

// SinkState is the state of a sink.
type SinkState int

// Sink states
const (
	SinkInit SinkState = iota
	SinkIdle
	SinkRunning
	SinkUnlinked
)

func (s SinkState) String() string {
	switch s {
	case SinkInit:
		return "init"
	case SinkIdle:
		return "idle"
	case SinkRunning:
		return "running"
	case SinkUnlinked:
		return "unlinked"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Opened reports whether a sink in this state accepts audio.
func (s SinkState) Opened() bool {
	return s == SinkIdle || s == SinkRunning
}

// Sink message codes, handled on the sink's processing goroutine.
const (
	SinkMessageSetState   = iota // data: SinkState
	SinkMessageGetLatency        // data: *time.Duration
	SinkMessageSetVolume         // data: float32
	SinkMessagePostChunk         // chunk: the audio to play
	SinkMessageFlush
	// SinkMessageMax is the first code available to sink implementations.
	SinkMessageMax
)

// timeout for synchronous requests to a processing goroutine
const sendTimeout = 5 * time.Second

var (
	ErrSinkUnlinked = errors.New("core: sink unlinked")
	ErrNoAsyncMsgq  = errors.New("core: sink has no message queue")
)

// ProcessMsgFunc handles messages to a sink on its processing goroutine.
// Implementations should pass messages they don't handle to
// Sink.DefaultProcessMsg.
type ProcessMsgFunc func(s *Sink, code int, data interface{}, offset int64, chunk *audio.Msg) int

// SinkNewData collects the parameters of a new sink.
type SinkNewData struct {
	Name       string
	Driver     string
	Module     *Module
	SampleSpec audio.SampleSpec
	ChannelMap audio.ChannelMap
	Proplist   proplist.Proplist
}

// SinkThreadInfo is the state of a sink as seen by its processing
// goroutine. It must only be accessed from there.
type SinkThreadInfo struct {
	State  SinkState
	Volume float32
}

// Sink is a playback endpoint. Audio written to a Sink is handed to its
// processing goroutine through the sink's message queue. Sink implements
// audio.Sink and asyncmsgq.Object.
type Sink struct {
	Core       *Core
	Index      uint32
	Name       string
	Driver     string
	Module     *Module
	SampleSpec audio.SampleSpec
	ChannelMap audio.ChannelMap
	Proplist   proplist.Proplist
	// Userdata is owned by the sink implementation.
	Userdata interface{}

	ThreadInfo SinkThreadInfo

	state      SinkState
	volume     float32
	asyncmsgq  *asyncmsgq.Queue
	rtpoll     *rtpoll.RTPoll
	processMsg ProcessMsgFunc
}

// NewSink validates data and returns a sink in the Init state. The sink
// becomes visible with Put.
func (c *Core) NewSink(data SinkNewData) (*Sink, error) {

	if data.Name == "" {
		return nil, fmt.Errorf("core: sink name must not be empty")
	}

	if _, exists := c.SinkByName(data.Name); exists {
		return nil, fmt.Errorf("core: sink '%s' already exists", data.Name)
	}

	if !data.SampleSpec.Valid() {
		return nil, fmt.Errorf("core: invalid sample spec %s", data.SampleSpec)
	}

	if !data.ChannelMap.Compatible(data.SampleSpec) {
		return nil, fmt.Errorf("core: channel map '%s' incompatible with %s",
			data.ChannelMap, data.SampleSpec)
	}

	pl := proplist.New()
	if data.Proplist != nil {
		pl = data.Proplist.Copy()
	}

	s := &Sink{
		Core:       c,
		Name:       data.Name,
		Driver:     data.Driver,
		Module:     data.Module,
		SampleSpec: data.SampleSpec,
		ChannelMap: append(audio.ChannelMap(nil), data.ChannelMap...),
		Proplist:   pl,
		ThreadInfo: SinkThreadInfo{State: SinkInit, Volume: 1},
		state:      SinkInit,
		volume:     1,
	}

	return s, nil
}

// SetAsyncMsgq sets the queue on which the sink's processing goroutine
// receives messages.
func (s *Sink) SetAsyncMsgq(q *asyncmsgq.Queue) {
	s.asyncmsgq = q
}

// AsyncMsgq returns the sink's message queue.
func (s *Sink) AsyncMsgq() *asyncmsgq.Queue {
	return s.asyncmsgq
}

// SetRTPoll sets the poll set of the sink's processing goroutine.
func (s *Sink) SetRTPoll(rtp *rtpoll.RTPoll) {
	s.rtpoll = rtp
}

// RTPoll returns the poll set of the sink's processing goroutine.
func (s *Sink) RTPoll() *rtpoll.RTPoll {
	return s.rtpoll
}

// SetProcessMsg sets the message handler of the sink implementation.
func (s *Sink) SetProcessMsg(fn ProcessMsgFunc) {
	s.processMsg = fn
}

// ProcessMsg implements asyncmsgq.Object. It runs on the processing
// goroutine.
func (s *Sink) ProcessMsg(code int, data interface{}, offset int64, chunk *audio.Msg) int {
	if s.processMsg != nil {
		return s.processMsg(s, code, data, offset, chunk)
	}
	return s.DefaultProcessMsg(code, data, offset, chunk)
}

// DefaultProcessMsg implements the generic part of the sink messages.
func (s *Sink) DefaultProcessMsg(code int, data interface{}, offset int64, chunk *audio.Msg) int {

	switch code {
	case SinkMessageSetState:
		state, ok := data.(SinkState)
		if !ok {
			return -1
		}
		s.ThreadInfo.State = state
		return 0

	case SinkMessageSetVolume:
		v, ok := data.(float32)
		if !ok {
			return -1
		}
		s.ThreadInfo.Volume = v
		return 0

	case SinkMessageGetLatency:
		if l, ok := data.(*time.Duration); ok {
			*l = 0
		}
		return 0

	case SinkMessagePostChunk, SinkMessageFlush:
		return 0
	}

	return -1
}

// State returns the state of the sink.
func (s *Sink) State() SinkState {
	return s.state
}

func (s *Sink) send(code int, data interface{}) (int, error) {
	if s.asyncmsgq == nil {
		return 0, ErrNoAsyncMsgq
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	return s.asyncmsgq.Send(ctx, s, code, data, 0, nil)
}

func (s *Sink) setState(state SinkState) error {
	if s.state == state {
		return nil
	}

	if ret, err := s.send(SinkMessageSetState, state); err != nil {
		return fmt.Errorf("core: sink %s: %w", s.Name, err)
	} else if ret < 0 {
		return fmt.Errorf("core: sink %s refused state %s", s.Name, state)
	}

	s.state = state
	s.Core.publishSinkState(s)
	return nil
}

// Put links the sink into the core. The sink's message queue must have
// been set before.
func (s *Sink) Put() error {
	if s.state != SinkInit {
		return fmt.Errorf("core: sink %s already linked", s.Name)
	}
	if s.asyncmsgq == nil {
		return ErrNoAsyncMsgq
	}

	if err := s.setState(SinkIdle); err != nil {
		return err
	}

	s.Core.Lock()
	s.Index = s.Core.sinkIndex
	s.Core.sinkIndex++
	s.Core.sinks[s.Name] = s
	s.Core.Unlock()

	log.Printf("core: created sink %s (#%d) %s", s.Name, s.Index, s.SampleSpec)
	return nil
}

// Unlink removes the sink from the core and tells the processing
// goroutine to stop rendering. It is safe to call Unlink on a sink which
// was never linked or has been unlinked already.
func (s *Sink) Unlink() {
	if s.state == SinkUnlinked {
		return
	}

	linked := s.state != SinkInit

	if linked {
		if err := s.setState(SinkUnlinked); err != nil {
			log.Println(err)
		}
	}
	s.state = SinkUnlinked

	s.Core.Lock()
	if s.Core.sinks[s.Name] == s {
		delete(s.Core.sinks, s.Name)
	}
	s.Core.Unlock()
}

// Release drops the references of the sink to its processing side.
func (s *Sink) Release() {
	s.asyncmsgq = nil
	s.rtpoll = nil
	s.processMsg = nil
}

// Start switches the sink into the running state.
func (s *Sink) Start() error {
	if !s.state.Opened() {
		return ErrSinkUnlinked
	}
	return s.setState(SinkRunning)
}

// Stop switches the sink into the idle state.
func (s *Sink) Stop() error {
	if !s.state.Opened() {
		return ErrSinkUnlinked
	}
	return s.setState(SinkIdle)
}

// Close unlinks the sink.
func (s *Sink) Close() error {
	s.Unlink()
	return nil
}

// SetVolume sets the volume of the sink.
func (s *Sink) SetVolume(v float32) {
	if v < 0 {
		v = 0
	}
	s.volume = v

	if s.asyncmsgq == nil {
		return
	}
	if err := s.asyncmsgq.Post(s, SinkMessageSetVolume, v, 0, nil, nil); err != nil {
		log.Printf("core: sink %s: unable to set volume: %v", s.Name, err)
	}
}

// Volume returns the volume of the sink.
func (s *Sink) Volume() float32 {
	return s.volume
}

// Write hands audio to the processing goroutine without waiting. The
// audio must match the sink's sample rate; mono and stereo are converted
// into each other.
func (s *Sink) Write(msg audio.Msg) error {

	if !s.state.Opened() {
		return ErrSinkUnlinked
	}

	if msg.Samplerate != float64(s.SampleSpec.Rate) {
		return fmt.Errorf("core: sink %s: samplerate %v does not match %d",
			s.Name, msg.Samplerate, s.SampleSpec.Rate)
	}

	chs := int(s.SampleSpec.Channels)
	if msg.Channels != chs {
		if (msg.Channels != 1 && msg.Channels != 2) || (chs != 1 && chs != 2) {
			return fmt.Errorf("core: sink %s: unable to convert %d to %d channels",
				s.Name, msg.Channels, chs)
		}
		msg.Data = audio.AdjustChannels(msg.Channels, chs, msg.Data)
		msg.Channels = chs
	}

	if s.asyncmsgq == nil {
		return ErrNoAsyncMsgq
	}

	return s.asyncmsgq.Post(s, SinkMessagePostChunk, nil, 0, &msg, nil)
}

// Flush asks the processing goroutine to drop all pending audio.
func (s *Sink) Flush() {
	if s.asyncmsgq == nil {
		return
	}
	if err := s.asyncmsgq.Post(s, SinkMessageFlush, nil, 0, nil, nil); err != nil {
		log.Printf("core: sink %s: unable to flush: %v", s.Name, err)
	}
}

// Latency queries the latency of the sink from its processing goroutine.
func (s *Sink) Latency() (time.Duration, error) {
	var l time.Duration
	if _, err := s.send(SinkMessageGetLatency, &l); err != nil {
		return 0, fmt.Errorf("core: sink %s: %w", s.Name, err)
	}
	return l, nil
}
