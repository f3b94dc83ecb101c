package cmd

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cskr/pubsub"
	"github.com/dh1tw/tunnelsink/audio"
	"github.com/dh1tw/tunnelsink/audio/sinks/wavWriter"
	"github.com/dh1tw/tunnelsink/audiocodec"
	"github.com/dh1tw/tunnelsink/audiocodec/opus"
	"github.com/dh1tw/tunnelsink/audiocodec/pcm"
	"github.com/dh1tw/tunnelsink/events"
	"github.com/dh1tw/tunnelsink/transport"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// recordCmd represents the record command
var recordCmd = &cobra.Command{
	Use:   "record <file.wav>",
	Short: "record the audio stream of a tunnel sink into a wav file",
	Long: `record subscribes to the nats subject of a tunnel sink, decodes the
received audio and writes it into a wav file. Lost blocks are replaced by
silence.`,
	Args: cobra.ExactArgs(1),
	Run:  recordStream,
}

func init() {
	RootCmd.AddCommand(recordCmd)
	recordCmd.Flags().IntP("bit-depth", "b", 16, "bit depth of the wav file (16, 24 or 32)")
	recordCmd.Flags().DurationP("duration", "d", 0, "stop recording after this duration (0 = until interrupted)")
}

// frames lost in a single gap which are replaced by silence at most
const maxGapBlocks = 50

// recorder decodes the frames of one tunnel stream into a wav file.
type recorder struct {
	sync.Mutex
	path       string
	bitDepth   int
	streamID   string
	codec      string
	samplerate uint32
	channels   int
	nextSeq    uint64
	decoder    audiocodec.Decoder
	writer     *wavWriter.WavWriter
	pcm        []float32
	lost       uint64
}

func newRecorder(path string, bitDepth int) *recorder {
	return &recorder{
		path:     path,
		bitDepth: bitDepth,
	}
}

func newDecoder(codec string, rate uint32, chs int) (audiocodec.Decoder, error) {
	if codec == "opus" {
		return opus.NewDecoder(opus.Samplerate(int(rate)), opus.Channels(chs))
	}
	f, err := pcm.ParseName(codec)
	if err != nil {
		return nil, fmt.Errorf("unsupported codec %s", codec)
	}
	return pcm.New(pcm.Format(f), pcm.Channels(chs))
}

// handleFrame decodes f and appends it to the wav file. The first frame
// selects the stream; frames of other streams are rejected.
func (r *recorder) handleFrame(f transport.Frame) error {
	r.Lock()
	defer r.Unlock()

	if r.writer == nil {
		dec, err := newDecoder(f.Codec, f.Samplerate, f.Channels)
		if err != nil {
			return err
		}
		w, err := wavWriter.NewWavWriter(r.path,
			wavWriter.Samplerate(float64(f.Samplerate)),
			wavWriter.Channels(f.Channels),
			wavWriter.BitDepth(r.bitDepth))
		if err != nil {
			return err
		}
		log.Printf("recording stream %s (%s, %dHz, %d channels)",
			f.StreamID, f.Codec, f.Samplerate, f.Channels)
		r.writer = w
		r.decoder = dec
		r.streamID = f.StreamID
		r.codec = f.Codec
		r.samplerate = f.Samplerate
		r.channels = f.Channels
		r.nextSeq = f.Seq
	}

	if f.StreamID != r.streamID {
		return fmt.Errorf("ignoring frame of stream %s", f.StreamID)
	}

	if f.Codec != r.codec || f.Samplerate != r.samplerate || f.Channels != r.channels {
		return fmt.Errorf("stream %s changed its format", f.StreamID)
	}

	if f.Seq < r.nextSeq {
		// duplicate or late
		return nil
	}

	if gap := f.Seq - r.nextSeq; gap > 0 {
		r.lost += gap
		if gap > maxGapBlocks {
			gap = maxGapBlocks
		}
		log.Printf("lost %d frames of stream %s", f.Seq-r.nextSeq, f.StreamID)
		if err := r.write(make([]float32, int(gap)*f.Frames*f.Channels), int(gap)*f.Frames); err != nil {
			return err
		}
	}
	r.nextSeq = f.Seq + 1

	if n := f.Frames * f.Channels; len(r.pcm) < n {
		r.pcm = make([]float32, n)
	}

	frames, err := r.decoder.Decode(f.Payload, r.pcm)
	if err != nil {
		return fmt.Errorf("decode frame %d: %v", f.Seq, err)
	}

	return r.write(r.pcm[:frames*f.Channels], frames)
}

func (r *recorder) write(data []float32, frames int) error {
	return r.writer.Write(audio.Msg{
		Data:       data,
		Samplerate: float64(r.samplerate),
		Channels:   r.channels,
		Frames:     frames,
	})
}

// Close finalizes the wav file.
func (r *recorder) Close() error {
	r.Lock()
	defer r.Unlock()
	if r.writer == nil {
		return nil
	}
	log.Printf("recorded %v into %s (%d frames lost)",
		time.Duration(r.writer.Frames())*time.Second/time.Duration(r.samplerate), r.path, r.lost)
	return r.writer.Close()
}

func recordStream(cmd *cobra.Command, args []string) {

	readConfig()

	viper.BindPFlag("record.bit-depth", cmd.Flags().Lookup("bit-depth"))
	viper.BindPFlag("record.duration", cmd.Flags().Lookup("duration"))

	nt, err := transport.NewNats(
		transport.Server(viper.GetString("nats.broker-url")),
		transport.Port(viper.GetInt("nats.broker-port")),
		transport.Username(viper.GetString("nats.username")),
		transport.Password(viper.GetString("nats.password")),
		transport.Subject(subject()),
		transport.Name("tunnelsink-recorder"),
	)
	if err != nil {
		exit(err)
	}

	rec := newRecorder(args[0], viper.GetInt("record.bit-depth"))

	sub, err := nt.Subscribe(func(f transport.Frame) {
		if err := rec.handleFrame(f); err != nil {
			log.Println(err)
		}
	})
	if err != nil {
		nt.Close()
		exit(err)
	}

	log.Printf("waiting for audio on %s", subject())

	evPS := pubsub.New(1)
	osExitCh := evPS.Sub(events.OsExit)

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if d := viper.GetDuration("record.duration"); d > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), d)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()

	go events.WatchSystemEvents(ctx, evPS)

	select {
	case <-osExitCh:
	case <-ctx.Done():
	}

	if err := sub.Unsubscribe(); err != nil {
		log.Println(err)
	}
	if err := nt.Close(); err != nil {
		log.Println(err)
	}
	if err := rec.Close(); err != nil {
		exit(err)
	}
}
