// Package tunnelsink implements module-tunnelstream-sink, a virtual sink
// which encodes everything played on it and streams it to a remote
// server over a nats broker.
//
// Importing the package registers the module with the core.
package tunnelsink

import (
	"context"
	"fmt"
	"log"
	"time"

	ringBuffer "github.com/dh1tw/golang-ring"

	"github.com/dh1tw/tunnelsink/asyncmsgq"
	"github.com/dh1tw/tunnelsink/audio"
	"github.com/dh1tw/tunnelsink/audiocodec"
	"github.com/dh1tw/tunnelsink/audiocodec/opus"
	"github.com/dh1tw/tunnelsink/audiocodec/pcm"
	"github.com/dh1tw/tunnelsink/core"
	"github.com/dh1tw/tunnelsink/events"
	"github.com/dh1tw/tunnelsink/proplist"
	"github.com/dh1tw/tunnelsink/rtpoll"
	"github.com/dh1tw/tunnelsink/threadmq"
	"github.com/dh1tw/tunnelsink/transport"
)

// ModuleName is the name under which the module is registered.
const ModuleName = "module-tunnelstream-sink"

// messages from the processing goroutine to the host
const (
	messageStats = iota // data: stats
)

// bounds the time Done waits for the processing goroutine to acknowledge
// the shutdown request
const shutdownTimeout = 5 * time.Second

func init() {
	core.Register(ModuleName, core.ModuleInfo{
		Description: "Create a network sink which connects via a stream to a remote server",
		Usage:       usage,
		Init:        Init,
		Done:        Done,
	})
}

// dialTransport connects the tunnel to the remote side.
var dialTransport = func(cfg *config) (transport.Transport, error) {
	return transport.NewNats(
		transport.Server(cfg.remoteServer),
		transport.Port(cfg.remotePort),
		transport.Subject(cfg.subject),
		transport.Username(cfg.username),
		transport.Password(cfg.password),
		transport.Name("tunnelsink:"+cfg.sinkName),
	)
}

type stats struct {
	blocksSent uint64
	underruns  uint64
	overruns   uint64
	level      float32
	latency    time.Duration
}

type userdata struct {
	module    *core.Module
	core      *core.Core
	cfg       *config
	sink      *core.Sink
	rtpoll    *rtpoll.RTPoll
	mq        *threadmq.ThreadMQ
	encoder   audiocodec.Encoder
	transport transport.Transport

	threadDone chan struct{}

	// owned by the processing goroutine
	ring       ringBuffer.Ring
	stash      []float32
	silence    []float32
	block      []float32
	encBuf     []byte
	timestamp  time.Time
	nextStats  time.Time
	stats      stats
	levelSum   float32
	levelCount int
}

// Init loads the module. On error the core calls Done, which releases
// whatever Init had set up.
func Init(m *core.Module) error {

	c := m.Core

	cfg, ma, err := parseArgs(c, m.Argument)
	if err != nil {
		log.Println("tunnelsink: failed to parse module arguments:", err)
		return err
	}

	u := &userdata{
		module: m,
		core:   c,
		cfg:    cfg,
	}
	m.Userdata = u

	u.rtpoll = rtpoll.New()

	u.mq, err = threadmq.New(c.Mainloop, u.rtpoll, threadmq.Capacity(cfg.queueLength))
	if err != nil {
		return fmt.Errorf("tunnelsink: %v", err)
	}

	u.encoder, err = newEncoder(cfg)
	if err != nil {
		return fmt.Errorf("tunnelsink: %v", err)
	}

	pl := proplist.New()
	pl.Sets(proplist.DeviceClass, "abstract")
	pl.Sets(proplist.DeviceDescription,
		fmt.Sprintf("Tunnel to %s:%d", cfg.remoteServer, cfg.remotePort))
	pl.Sets(proplist.DeviceString, cfg.subject)
	pl.Sets(proplist.DeviceAPI, u.encoder.Name())

	if err := ma.Proplist("sink_properties", pl, proplist.UpdateReplace); err != nil {
		log.Println("tunnelsink: invalid properties:", err)
		return err
	}

	u.sink, err = c.NewSink(core.SinkNewData{
		Name:       cfg.sinkName,
		Driver:     "tunnelsink",
		Module:     m,
		SampleSpec: cfg.ss,
		ChannelMap: cfg.cm,
		Proplist:   pl,
	})
	if err != nil {
		log.Println("tunnelsink: failed to create sink:", err)
		return err
	}

	u.sink.Userdata = u
	u.sink.SetProcessMsg(u.sinkProcessMsg)
	u.sink.SetAsyncMsgq(u.mq.InQ)
	u.sink.SetRTPoll(u.rtpoll)

	u.transport, err = dialTransport(cfg)
	if err != nil {
		return fmt.Errorf("tunnelsink: %v", err)
	}

	samples := cfg.blockFrames * int(cfg.ss.Channels)
	u.ring = ringBuffer.Ring{}
	u.ring.SetCapacity(cfg.bufferLength)
	u.silence = make([]float32, samples)
	u.block = make([]float32, samples)
	u.encBuf = make([]byte, encodedSize(cfg, samples))

	u.threadDone = make(chan struct{})
	go u.threadFunc()

	if err := u.sink.Put(); err != nil {
		return fmt.Errorf("tunnelsink: %v", err)
	}

	return nil
}

func newEncoder(cfg *config) (audiocodec.Encoder, error) {
	switch cfg.codec {
	case "opus":
		return opus.NewEncoder(
			opus.Samplerate(int(cfg.ss.Rate)),
			opus.Channels(int(cfg.ss.Channels)),
			opus.Bitrate(cfg.bitrate),
			opus.Application(cfg.application),
			opus.MaxBandwidth(cfg.maxBandwidth),
			opus.Complexity(cfg.complexity),
		)
	case "pcm":
		return pcm.New(
			pcm.Format(cfg.ss.Format),
			pcm.Channels(int(cfg.ss.Channels)),
		)
	}
	return nil, fmt.Errorf("unknown codec %s", cfg.codec)
}

func encodedSize(cfg *config, samples int) int {
	if cfg.codec == "opus" {
		return opus.MaxPacketSize
	}
	return samples * 4
}

// Done unloads the module.
func Done(m *core.Module) {

	u, ok := m.Userdata.(*userdata)
	if !ok || u == nil {
		return
	}

	if u.sink != nil {
		u.sink.Unlink()
	}

	if u.threadDone != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		_, err := u.mq.InQ.Send(ctx, nil, asyncmsgq.MessageShutdown, nil, 0, nil)
		cancel()
		if err != nil {
			log.Println("tunnelsink: shutdown request:", err)
		}
		<-u.threadDone
	}

	if u.mq != nil {
		u.mq.Done()
	}

	if u.sink != nil {
		u.sink.Release()
	}

	if u.rtpoll != nil {
		u.rtpoll.Free()
	}

	if u.transport != nil {
		if err := u.transport.Close(); err != nil {
			log.Println("tunnelsink:", err)
		}
	}

	m.Userdata = nil
}

// ProcessMsg handles the messages of the processing goroutine on the
// host.
func (u *userdata) ProcessMsg(code int, data interface{}, offset int64, chunk *audio.Msg) int {
	switch code {
	case messageStats:
		st, ok := data.(stats)
		if !ok {
			return -1
		}
		if u.core.Events != nil {
			u.core.Events.Pub(events.SinkStatsEvent{
				Sink:       u.cfg.sinkName,
				BlocksSent: st.blocksSent,
				Underruns:  st.underruns,
				Overruns:   st.overruns,
				Level:      st.level,
				Latency:    st.latency,
			}, events.SinkStats)
		}
		return 0
	}
	return -1
}
