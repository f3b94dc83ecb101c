package wavWriter

import (
	"fmt"
	"os"
	"sync"

	ga "github.com/go-audio/audio"
	wav "github.com/go-audio/wav"

	"github.com/dh1tw/tunnelsink/audio"
)

// WavWriter implements the audio.Sink interface and is used to write (record)
// audio frames in the wav format.
type WavWriter struct {
	sync.Mutex
	file    *os.File
	encoder *wav.Encoder
	options Options
	volume  float32
	frames  int
	closed  bool
}

// NewWavWriter returns a wavWriter to which audio frames can be written to.
// The audio data will be saved in the wav format.
func NewWavWriter(path string, opts ...Option) (*WavWriter, error) {

	w := &WavWriter{
		options: Options{
			Channels:   DefaultChannels,
			BitDepth:   DefaultBitDepth,
			Samplerate: DefaultSamplerate,
		},
		volume: 1.0,
	}

	for _, o := range opts {
		o(&w.options)
	}

	// make sure we only allow 16 / 24 / 32 bit Bitdepth (dynamic range)
	switch w.options.BitDepth {
	case 16, 24, 32:
	default:
		w.options.BitDepth = 16
	}

	if w.options.Channels < 1 || w.options.Channels > audio.MaxChannels {
		return nil, fmt.Errorf("wavWriter: invalid number of channels %d", w.options.Channels)
	}

	if w.options.Samplerate <= 0 {
		return nil, fmt.Errorf("wavWriter: invalid samplerate %v", w.options.Samplerate)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w.file = f

	w.encoder = wav.NewEncoder(f, int(w.options.Samplerate),
		w.options.BitDepth, w.options.Channels, 1)

	return w, nil
}

// Start writing audio to the wav file.
func (w *WavWriter) Start() error {
	return nil
}

// Stop writing audio frames to the wav file.
func (w *WavWriter) Stop() error {
	return nil
}

// Close finalizes the wav header and closes the file. Calling Close more
// than once is safe.
func (w *WavWriter) Close() error {
	w.Lock()
	defer w.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	err := w.encoder.Close()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// SetVolume sets the volume for all incoming audio frames.
func (w *WavWriter) SetVolume(v float32) {
	w.Lock()
	defer w.Unlock()
	if v < 0 {
		w.volume = 0
	} else if v > 1 {
		w.volume = 1
	} else {
		w.volume = v
	}
}

// Volume returns the current volume.
func (w *WavWriter) Volume() float32 {
	w.Lock()
	defer w.Unlock()
	return w.volume
}

// Frames returns the number of frames written so far.
func (w *WavWriter) Frames() int {
	w.Lock()
	defer w.Unlock()
	return w.frames
}

// Write appends audio buffers to the wav file. Mono and stereo are
// converted into each other if necessary; the sample rate must match.
func (w *WavWriter) Write(msg audio.Msg) error {

	var aData []float32

	if msg.Samplerate != w.options.Samplerate {
		return fmt.Errorf("wavWriter: samplerate %v does not match %v",
			msg.Samplerate, w.options.Samplerate)
	}

	// if necessary adjust the amount of audio channels
	if msg.Channels != w.options.Channels {
		aData = audio.AdjustChannels(msg.Channels, w.options.Channels, msg.Data)
	} else {
		aData = make([]float32, len(msg.Data))
		copy(aData, msg.Data)
	}

	if len(aData)%w.options.Channels != 0 {
		return fmt.Errorf("wavWriter: unable to write %d channels into a %d channel file",
			msg.Channels, w.options.Channels)
	}

	w.Lock()
	defer w.Unlock()

	if w.closed {
		return os.ErrClosed
	}

	audio.AdjustVolume(w.volume, aData)

	buf := ga.IntBuffer{
		Format: &ga.Format{
			SampleRate:  int(w.options.Samplerate),
			NumChannels: w.options.Channels,
		},
		SourceBitDepth: w.options.BitDepth,
		Data:           make([]int, 0, len(aData)),
	}

	// max size of an audio sample at the chosen bitdepth
	max := int(int64(1)<<uint(w.options.BitDepth-1) - 1)

	for _, frame := range aData {
		f := int(float64(frame) * float64(max))
		if f > max {
			f = max
		} else if f < -max {
			f = -max
		}
		buf.Data = append(buf.Data, f)
	}

	if err := w.encoder.Write(&buf); err != nil {
		return fmt.Errorf("wavWriter: %v", err)
	}

	w.frames += len(aData) / w.options.Channels

	return nil
}

// Flush is not implemented
func (w *WavWriter) Flush() {}
