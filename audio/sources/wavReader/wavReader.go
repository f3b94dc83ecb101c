package wavReader

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	ga "github.com/go-audio/audio"
	wav "github.com/go-audio/wav"

	"github.com/dh1tw/tunnelsink/audio"
)

// WavReader implements the audio.Source interface and is used to read (play)
// audio frames from a wav source (e.g. file).
type WavReader struct {
	sync.RWMutex
	options    Options
	buffer     []audio.Msg
	cb         audio.OnDataCb
	samplerate float64
	channels   int
	stop       chan struct{}
	done       chan struct{}
}

// NewWavReader reads a wav file from disk into memory and returns a
// WavReader object which implements the audio.Source interface.
func NewWavReader(file string, opts ...Option) (*WavReader, error) {

	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)

	if !dec.IsValidFile() {
		return nil, errors.New("invalid WAV file")
	}

	w := &WavReader{
		buffer: []audio.Msg{},
		options: Options{
			FramesPerBuffer: DefaultFramesPerBuffer,
		},
	}

	for _, o := range opts {
		o(&w.options)
	}

	if w.options.FramesPerBuffer <= 0 {
		return nil, fmt.Errorf("wavReader: invalid frames per buffer %d", w.options.FramesPerBuffer)
	}

	format := dec.Format()
	w.samplerate = float64(format.SampleRate)
	w.channels = format.NumChannels

	// full scale of the integer samples
	bitDepth := int(dec.BitDepth)
	if bitDepth <= 0 {
		return nil, fmt.Errorf("wavReader: invalid bit depth %d", bitDepth)
	}
	scale := float32(int64(1) << uint(bitDepth-1))

	for {
		buf := &ga.IntBuffer{
			Data:   make([]int, w.options.FramesPerBuffer*w.channels),
			Format: format,
		}

		n, err := dec.PCMBuffer(buf)
		if err != nil {
			return nil, fmt.Errorf("wavReader: %v", err)
		}

		if n == 0 {
			break
		}

		data := make([]float32, n)
		for i, s := range buf.Data[:n] {
			if bitDepth == 8 {
				// 8 bit wav samples are unsigned
				s -= 128
			}
			data[i] = float32(s) / scale
		}

		msg := audio.Msg{
			Data:       data,
			Channels:   w.channels,
			Samplerate: w.samplerate,
			Frames:     n / w.channels,
		}
		w.buffer = append(w.buffer, msg)
	}

	if len(w.buffer) == 0 {
		return nil, fmt.Errorf("wavReader: %s contains no audio", file)
	}

	w.buffer[len(w.buffer)-1].EOF = true

	return w, nil
}

// Samplerate returns the sample rate of the wav file.
func (w *WavReader) Samplerate() float64 {
	return w.samplerate
}

// Channels returns the number of channels of the wav file.
func (w *WavReader) Channels() int {
	return w.channels
}

// Duration returns the playback duration of the wav file.
func (w *WavReader) Duration() time.Duration {
	var d float64
	for _, msg := range w.buffer {
		d += msg.Duration()
	}
	return time.Duration(d * float64(time.Second))
}

// SetCb sets the callback which will be executed to provide audio buffers.
func (w *WavReader) SetCb(cb audio.OnDataCb) {
	w.Lock()
	defer w.Unlock()
	w.cb = cb
}

// Start will "play" the audio by providing audio buffers through the
// set callback function.
func (w *WavReader) Start() error {
	w.Lock()
	defer w.Unlock()

	if w.stop != nil {
		return nil
	}

	w.stop = make(chan struct{})
	w.done = make(chan struct{})

	go w.play(w.stop, w.done)

	return nil
}

func (w *WavReader) play(stop, done chan struct{}) {
	defer close(done)

	var ticker *time.Ticker
	if w.options.Paced {
		ticker = time.NewTicker(time.Duration(w.buffer[0].Duration() * float64(time.Second)))
		defer ticker.Stop()
	}

	for _, msg := range w.buffer {
		select {
		case <-stop:
			return
		default:
		}

		w.RLock()
		cb := w.cb
		w.RUnlock()
		if cb != nil {
			cb(msg)
		}

		if ticker != nil && !msg.EOF {
			select {
			case <-ticker.C:
			case <-stop:
				return
			}
		}
	}

	w.Lock()
	if w.stop == stop {
		w.stop = nil
	}
	w.Unlock()
}

// Stop cancels sending audio through the callback and waits until the
// playing goroutine returned.
func (w *WavReader) Stop() error {
	w.Lock()
	stop, done := w.stop, w.done
	w.stop = nil
	w.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

// Close shutsdown the wav player
func (w *WavReader) Close() error {
	return w.Stop()
}
