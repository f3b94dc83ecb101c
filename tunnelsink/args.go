package tunnelsink

import (
	"fmt"
	"time"

	"github.com/dh1tw/tunnelsink/audio"
	"github.com/dh1tw/tunnelsink/audiocodec/opus"
	"github.com/dh1tw/tunnelsink/core"
	"github.com/dh1tw/tunnelsink/modargs"
	hopus "gopkg.in/hraban/opus.v2"
)

const (
	defaultSinkName     = "tunnel_sink"
	defaultRemoteServer = "localhost"
	defaultRemotePort   = 4222
	defaultCodec        = "opus"
	defaultBitrate      = 64000
	defaultBlockMsec    = 20
	defaultBufferLength = 50
	defaultQueueLength  = 256
	defaultComplexity   = 5
)

var validArgs = []string{
	"sink_name",
	"sink_properties",
	"remote_server",
	"remote_port",
	"subject",
	"username",
	"password",
	"format",
	"rate",
	"channels",
	"channel_map",
	"codec",
	"bitrate",
	"opus_application",
	"opus_max_bandwidth",
	"opus_complexity",
	"block_msec",
	"buffer_length",
	"queue_length",
}

const usage = `sink_name=<name of sink> ` +
	`sink_properties=<properties for the sink> ` +
	`remote_server=<address of the nats broker> ` +
	`remote_port=<port of the nats broker> ` +
	`subject=<subject the audio is published on> ` +
	`username=<broker username> password=<broker password> ` +
	`format=<sample format> rate=<sample rate> channels=<number of channels> ` +
	`channel_map=<channel map> ` +
	`codec=<opus|pcm> bitrate=<opus bitrate in bit/s> ` +
	`opus_application=<voip|audio|restricted_lowdelay> ` +
	`opus_max_bandwidth=<narrowband..fullband> opus_complexity=<0..10> ` +
	`block_msec=<duration of an encoded block> ` +
	`buffer_length=<number of blocks buffered> ` +
	`queue_length=<capacity of the message queues>`

// config holds the validated module arguments.
type config struct {
	sinkName      string
	ss            audio.SampleSpec
	cm            audio.ChannelMap
	remoteServer  string
	remotePort    int
	subject       string
	username      string
	password      string
	codec         string
	bitrate       int
	application   hopus.Application
	maxBandwidth  hopus.Bandwidth
	complexity    int
	blockDuration time.Duration
	blockFrames   int
	bufferLength  int
	queueLength   int
}

func parseArgs(c *core.Core, argument string) (*config, *modargs.ModArgs, error) {

	ma, err := modargs.New(argument, validArgs)
	if err != nil {
		return nil, nil, err
	}

	cfg := &config{
		ss: c.DefaultSampleSpec,
		cm: c.DefaultChannelMap,
	}

	if err := ma.SampleSpecAndChannelMap(&cfg.ss, &cfg.cm); err != nil {
		return nil, nil, err
	}

	cfg.sinkName = ma.Value("sink_name", defaultSinkName)
	if cfg.sinkName == "" {
		return nil, nil, &modargs.ArgError{Key: "sink_name", Msg: "must not be empty"}
	}

	cfg.remoteServer = ma.Value("remote_server", defaultRemoteServer)

	port, err := ma.Uint32("remote_port", defaultRemotePort)
	if err != nil {
		return nil, nil, err
	}
	if port == 0 || port > 65535 {
		return nil, nil, &modargs.ArgError{Key: "remote_port", Msg: fmt.Sprintf("invalid port %d", port)}
	}
	cfg.remotePort = int(port)

	cfg.subject = ma.Value("subject", fmt.Sprintf("tunnelsink.%s.audio", cfg.sinkName))
	cfg.username = ma.Value("username", "")
	cfg.password = ma.Value("password", "")

	cfg.codec = ma.Value("codec", defaultCodec)
	switch cfg.codec {
	case "opus", "pcm":
	default:
		return nil, nil, &modargs.ArgError{Key: "codec", Msg: "allowed values are opus and pcm"}
	}

	bitrate, err := ma.Uint32("bitrate", defaultBitrate)
	if err != nil {
		return nil, nil, err
	}
	cfg.bitrate = int(bitrate)

	cfg.blockDuration, err = ma.Duration("block_msec", defaultBlockMsec*time.Millisecond)
	if err != nil {
		return nil, nil, err
	}
	if cfg.blockDuration <= 0 {
		return nil, nil, &modargs.ArgError{Key: "block_msec", Msg: "must be greater than 0"}
	}

	// the block must contain a whole number of frames
	us := int64(cfg.blockDuration / time.Microsecond)
	if int64(cfg.ss.Rate)*us%int64(time.Second/time.Microsecond) != 0 {
		return nil, nil, &modargs.ArgError{Key: "block_msec",
			Msg: fmt.Sprintf("%v is not a whole number of frames at %dHz", cfg.blockDuration, cfg.ss.Rate)}
	}
	cfg.blockFrames = int(int64(cfg.ss.Rate) * us / int64(time.Second/time.Microsecond))

	if cfg.codec == "opus" {
		if !opus.ValidSamplerate(int(cfg.ss.Rate)) {
			return nil, nil, &modargs.ArgError{Key: "rate",
				Msg: "opus supports 8000, 12000, 16000, 24000 and 48000Hz"}
		}
		if !opus.ValidFrameDuration(cfg.blockDuration) {
			return nil, nil, &modargs.ArgError{Key: "block_msec",
				Msg: "opus supports blocks of 5, 10, 20, 40 and 60ms"}
		}
		if cfg.bitrate < 6000 || cfg.bitrate > 510000 {
			return nil, nil, &modargs.ArgError{Key: "bitrate",
				Msg: "allowed values are [6000...510000]"}
		}

		cfg.application, err = opus.ParseApplication(ma.Value("opus_application", "audio"))
		if err != nil {
			return nil, nil, &modargs.ArgError{Key: "opus_application",
				Msg: "allowed values are voip, audio or restricted_lowdelay"}
		}

		cfg.maxBandwidth, err = opus.ParseMaxBandwidth(ma.Value("opus_max_bandwidth", "fullband"))
		if err != nil {
			return nil, nil, &modargs.ArgError{Key: "opus_max_bandwidth",
				Msg: "allowed values are narrowband, mediumband, wideband, superwideband, fullband"}
		}

		complexity, err := ma.Uint32("opus_complexity", defaultComplexity)
		if err != nil {
			return nil, nil, err
		}
		if complexity > 10 {
			return nil, nil, &modargs.ArgError{Key: "opus_complexity",
				Msg: "allowed values are [0...10]"}
		}
		cfg.complexity = int(complexity)
	}

	bl, err := ma.Uint32("buffer_length", defaultBufferLength)
	if err != nil {
		return nil, nil, err
	}
	if bl == 0 {
		return nil, nil, &modargs.ArgError{Key: "buffer_length", Msg: "must be greater than 0"}
	}
	cfg.bufferLength = int(bl)

	ql, err := ma.Uint32("queue_length", defaultQueueLength)
	if err != nil {
		return nil, nil, err
	}
	if ql == 0 {
		return nil, nil, &modargs.ArgError{Key: "queue_length", Msg: "must be greater than 0"}
	}
	cfg.queueLength = int(ql)

	return cfg, ma, nil
}
