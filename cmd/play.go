package cmd

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/dh1tw/tunnelsink/audio"
	"github.com/dh1tw/tunnelsink/audio/sources/wavReader"
	"github.com/dh1tw/tunnelsink/core"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// playCmd represents the play command
var playCmd = &cobra.Command{
	Use:   "play <file.wav>",
	Short: "stream a wav file through the tunnel sink",
	Long: `play loads the tunnel sink and plays a wav file on it in realtime. Unless
set explicitly, the sample rate and the number of channels of the sink are
taken from the file.`,
	Args: cobra.ExactArgs(1),
	Run:  playFile,
}

func init() {
	RootCmd.AddCommand(playCmd)
	addAudioFlags(playCmd)
	playCmd.Flags().Int("volume", 100, "volume of the sink [0...100]")
}

func playFile(cmd *cobra.Command, args []string) {

	readConfig()

	bindAudioFlags(cmd)
	viper.BindPFlag("tunnel.volume", cmd.Flags().Lookup("volume"))

	probe, err := wavReader.NewWavReader(args[0])
	if err != nil {
		exit(err)
	}

	if !cmd.Flags().Changed("rate") && !viper.InConfig("audio.rate") {
		viper.Set("audio.rate", int(probe.Samplerate()))
	}
	if !cmd.Flags().Changed("channels") && !viper.InConfig("audio.channels") {
		viper.Set("audio.channels", probe.Channels())
	}

	if err := checkTunnelParameters(); err != nil {
		exit(err)
	}

	blockFrames := viper.GetInt("audio.rate") * viper.GetInt("audio.block-msec") / 1000

	// read the file again, chopped into blocks of the tunnel
	r, err := wavReader.NewWavReader(args[0],
		wavReader.FramesPerBuffer(blockFrames),
		wavReader.Paced(true))
	if err != nil {
		exit(err)
	}
	defer r.Close()

	h, err := newHost()
	if err != nil {
		exit(err)
	}

	log.Printf("playing %s (%v) on %s", args[0], r.Duration().Round(time.Millisecond), subject())

	err = h.run(context.Background(), func(ctx context.Context) error {
		return h.play(ctx, r)
	})
	h.close()
	if err != nil && err != errPlaybackDone {
		exit(err)
	}
}

var errPlaybackDone = errors.New("playback finished")

// play feeds src into the tunnel sink until the end of the stream has
// been sent.
func (h *host) play(ctx context.Context, src audio.Source) error {

	eof := make(chan struct{})

	src.SetCb(func(msg audio.Msg) {
		err := h.call(ctx, func(s *core.Sink) error {
			return s.Write(msg)
		})
		if err != nil {
			log.Println(err)
		}
		if msg.EOF {
			close(eof)
		}
	})

	err := h.call(ctx, func(s *core.Sink) error {
		s.SetVolume(float32(viper.GetInt("tunnel.volume")) / 100)
		return s.Start()
	})
	if err != nil {
		return err
	}

	if err := src.Start(); err != nil {
		return err
	}
	defer src.Stop()

	select {
	case <-ctx.Done():
		return nil
	case <-eof:
	}

	// wait until the buffered audio has been sent
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		var latency time.Duration
		err := h.call(ctx, func(s *core.Sink) error {
			var err error
			latency, err = s.Latency()
			return err
		})
		if err != nil {
			return err
		}
		if latency == 0 {
			return errPlaybackDone
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
