// Copyright © 2016 Tobias Wellnitz, DH1TW <Tobias.Wellnitz@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cskr/pubsub"
	"github.com/dh1tw/tunnelsink/core"
	"github.com/dh1tw/tunnelsink/events"
	"github.com/dh1tw/tunnelsink/mainloop"
	"github.com/dh1tw/tunnelsink/tunnelsink"
	"github.com/dh1tw/tunnelsink/webserver"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run the audio host with a tunnel sink",
	Long: `run starts the audio host and loads the tunnel sink module. Audio played
on the sink is streamed to the nats broker. The state of the host can be
queried through the web interface.`,
	Run: runHost,
}

func init() {
	RootCmd.AddCommand(runCmd)
	addAudioFlags(runCmd)
	runCmd.Flags().String("sink-properties", "", "additional properties of the sink (e.g. \"device.description='My Tunnel'\")")
	runCmd.Flags().StringP("http-host", "w", "127.0.0.1", "Host (use '0.0.0.0' to listen on all network adapters)")
	runCmd.Flags().IntP("http-port", "k", 9090, "Port to access the web interface")
	runCmd.Flags().Int("volume", 100, "volume of the sink on startup [0...100]")
	runCmd.Flags().Bool("keyboard", false, "control the sink from stdin (m: mute, u: unmute, q: quit)")
}

// addAudioFlags adds the flags describing the tunnel's audio stream.
func addAudioFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("codec", "c", "opus", "audio codec (opus or pcm)")
	cmd.Flags().String("format", "float32le", "sample format (pcm codec)")
	cmd.Flags().IntP("rate", "r", 48000, "sample rate")
	cmd.Flags().Int("channels", 2, "number of channels")
	cmd.Flags().Int("block-msec", 20, "duration of an encoded audio block in ms")
	cmd.Flags().Int("buffer-length", 50, "number of audio blocks buffered by the sink")
	cmd.Flags().Int("opus-bitrate", 64000, "opus bitrate in bit/s")
	cmd.Flags().Int("opus-complexity", 5, "opus complexity [0...10]")
	cmd.Flags().String("opus-application", "audio", "opus application (VOIP, AUDIO or RESTRICTED_LOWDELAY)")
	cmd.Flags().String("opus-max-bandwidth", "fullband", "opus max bandwidth")
}

func bindAudioFlags(cmd *cobra.Command) {
	viper.BindPFlag("audio.codec", cmd.Flags().Lookup("codec"))
	viper.BindPFlag("audio.format", cmd.Flags().Lookup("format"))
	viper.BindPFlag("audio.rate", cmd.Flags().Lookup("rate"))
	viper.BindPFlag("audio.channels", cmd.Flags().Lookup("channels"))
	viper.BindPFlag("audio.block-msec", cmd.Flags().Lookup("block-msec"))
	viper.BindPFlag("audio.buffer-length", cmd.Flags().Lookup("buffer-length"))
	viper.BindPFlag("opus.bitrate", cmd.Flags().Lookup("opus-bitrate"))
	viper.BindPFlag("opus.complexity", cmd.Flags().Lookup("opus-complexity"))
	viper.BindPFlag("opus.application", cmd.Flags().Lookup("opus-application"))
	viper.BindPFlag("opus.max-bandwidth", cmd.Flags().Lookup("opus-max-bandwidth"))
}

// host is the audio host with a loaded tunnel sink module.
type host struct {
	evPS   *pubsub.PubSub
	ml     *mainloop.Mainloop
	core   *core.Core
	module *core.Module
}

func newHost() (*host, error) {

	evPS := pubsub.New(10)

	ml, err := mainloop.New()
	if err != nil {
		return nil, err
	}

	c := core.New(ml, evPS)

	args := tunnelArgs()
	m, err := c.LoadModule(tunnelsink.ModuleName, args)
	if err != nil {
		ml.Close()
		return nil, fmt.Errorf("unable to load %s: %v", tunnelsink.ModuleName, err)
	}

	return &host{
		evPS:   evPS,
		ml:     ml,
		core:   c,
		module: m,
	}, nil
}

// sink returns the tunnel sink. Must be called on the main loop.
func (h *host) sink() (*core.Sink, error) {
	name := viper.GetString("tunnel.sink-name")
	s, ok := h.core.SinkByName(name)
	if !ok {
		return nil, fmt.Errorf("sink %s not found", name)
	}
	return s, nil
}

// run drives the host until ctx is done, the process receives a signal
// or the tunnel module got unloaded. fn, if not nil, is run alongside.
func (h *host) run(ctx context.Context, fn func(context.Context) error) error {

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	evCh := h.evPS.Sub(events.OsExit, events.SetVolume, events.ModuleUnloaded)
	defer func() {
		go func() {
			for range evCh {
			}
		}()
		h.evPS.Unsub(evCh)
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		_, err := h.ml.Run(gctx)
		return err
	})

	g.Go(func() error {
		events.WatchSystemEvents(gctx, h.evPS)
		return nil
	})

	if fn != nil {
		g.Go(func() error {
			return fn(gctx)
		})
	}

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev := <-evCh:
				switch e := ev.(type) {
				case bool:
					// OsExit
					cancel()
					return nil
				case float32:
					err := h.call(gctx, func(s *core.Sink) error {
						s.SetVolume(e)
						return nil
					})
					if err != nil {
						log.Println(err)
					}
				case events.ModuleEvent:
					if e.Index == h.module.Index && e.Name == h.module.Name {
						return fmt.Errorf("%s was unloaded", tunnelsink.ModuleName)
					}
				}
			}
		}
	})

	return g.Wait()
}

// call executes fn with the tunnel sink on the main loop.
func (h *host) call(ctx context.Context, fn func(*core.Sink) error) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var err error
	if cErr := h.core.Call(ctx, func() {
		var s *core.Sink
		s, err = h.sink()
		if err != nil {
			return
		}
		err = fn(s)
	}); cErr != nil {
		return cErr
	}
	return err
}

// close unloads all modules. The main loop must not run anymore.
func (h *host) close() {
	h.core.Shutdown()
	h.ml.Close()
	h.evPS.Shutdown()
}

func runHost(cmd *cobra.Command, args []string) {

	readConfig()

	bindAudioFlags(cmd)
	viper.BindPFlag("tunnel.sink-properties", cmd.Flags().Lookup("sink-properties"))
	viper.BindPFlag("http.host", cmd.Flags().Lookup("http-host"))
	viper.BindPFlag("http.port", cmd.Flags().Lookup("http-port"))
	viper.BindPFlag("tunnel.volume", cmd.Flags().Lookup("volume"))
	viper.BindPFlag("tunnel.keyboard", cmd.Flags().Lookup("keyboard"))

	// check if values from config file / pflags are valid
	if err := checkTunnelParameters(); err != nil {
		exit(err)
	}

	h, err := newHost()
	if err != nil {
		exit(err)
	}

	s, err := h.sink()
	if err != nil {
		h.close()
		exit(err)
	}
	s.SetVolume(float32(viper.GetInt("tunnel.volume")) / 100)

	web, err := webserver.NewWebServer(viper.GetString("http.host"), viper.GetInt("http.port"), h.core)
	if err != nil {
		h.close()
		exit(err)
	}

	if viper.GetBool("tunnel.keyboard") {
		go events.CaptureKeyboard(h.evPS, os.Stdin)
	}

	log.Printf("streaming sink %s to %s", s.Name, subject())

	err = h.run(context.Background(), web.Start)
	h.close()
	if err != nil {
		exit(err)
	}
}
