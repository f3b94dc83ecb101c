// Package pcm implements an uncompressed codec which serializes float32
// samples into one of the audio.SampleFormat representations.
package pcm

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/dh1tw/tunnelsink/audio"
)

// Name is the codec name. The names of the codec instances carry the
// sample format as well, e.g. "pcm/s16le".
const Name = "pcm"

// ParseName returns the sample format of a pcm codec name.
func ParseName(name string) (audio.SampleFormat, error) {
	f, ok := strings.CutPrefix(name, Name+"/")
	if !ok {
		return audio.FormatInvalid, fmt.Errorf("pcm: invalid codec name '%s'", name)
	}
	return audio.ParseSampleFormat(f)
}

// Option is the type for a function option
type Option func(*Options)

// Options contains the parameters of the pcm codec.
type Options struct {
	Format   audio.SampleFormat
	Channels int
}

// Format is a functional option to set the wire sample format.
func Format(f audio.SampleFormat) Option {
	return func(args *Options) {
		args.Format = f
	}
}

// Channels is a functional option to set the number of channels.
func Channels(chs int) Option {
	return func(args *Options) {
		args.Channels = chs
	}
}

// Codec implements audiocodec.Encoder and audiocodec.Decoder.
type Codec struct {
	name    string
	options Options
	width   int
	order   binary.ByteOrder
}

// New returns a pcm codec. The default format is float32le, stereo.
func New(opts ...Option) (*Codec, error) {

	c := &Codec{
		options: Options{
			Format:   audio.FormatFloat32LE,
			Channels: 2,
		},
	}

	for _, option := range opts {
		option(&c.options)
	}

	if c.options.Channels < 1 || c.options.Channels > audio.MaxChannels {
		return nil, fmt.Errorf("pcm: invalid number of channels %d", c.options.Channels)
	}

	switch c.options.Format {
	case audio.FormatU8:
		c.width = 1
	case audio.FormatS16LE, audio.FormatS16BE:
		c.width = 2
	case audio.FormatS32LE, audio.FormatS32BE, audio.FormatFloat32LE, audio.FormatFloat32BE:
		c.width = 4
	default:
		return nil, fmt.Errorf("pcm: unsupported sample format %s", c.options.Format)
	}

	c.name = Name + "/" + c.options.Format.String()

	switch c.options.Format {
	case audio.FormatS16BE, audio.FormatS32BE, audio.FormatFloat32BE:
		c.order = binary.BigEndian
	default:
		c.order = binary.LittleEndian
	}

	return c, nil
}

// Name returns the name of the audio codec
func (c *Codec) Name() string {
	return c.name
}

// Options returns a copy of the codec's options
func (c *Codec) Options() Options {
	return c.options
}

// EncodedSize returns the number of bytes needed to encode the given
// number of frames.
func (c *Codec) EncodedSize(frames int) int {
	return frames * c.options.Channels * c.width
}

func clip(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}

// Encode serializes the samples into data and returns the number of bytes
// written.
func (c *Codec) Encode(pcm []float32, data []byte) (int, error) {

	n := len(pcm) * c.width
	if len(data) < n {
		return 0, fmt.Errorf("pcm: buffer too small (%d < %d bytes)", len(data), n)
	}

	for i, s := range pcm {
		b := data[i*c.width:]
		switch c.options.Format {
		case audio.FormatU8:
			b[0] = uint8(clip(s)*127 + 128)
		case audio.FormatS16LE, audio.FormatS16BE:
			c.order.PutUint16(b, uint16(int16(clip(s)*math.MaxInt16)))
		case audio.FormatS32LE, audio.FormatS32BE:
			c.order.PutUint32(b, uint32(int32(float64(clip(s))*math.MaxInt32)))
		case audio.FormatFloat32LE, audio.FormatFloat32BE:
			c.order.PutUint32(b, math.Float32bits(s))
		}
	}

	return n, nil
}

// Decode deserializes data into pcm and returns the number of frames
// written.
func (c *Codec) Decode(data []byte, pcm []float32) (int, error) {

	if len(data)%(c.width*c.options.Channels) != 0 {
		return 0, fmt.Errorf("pcm: %d bytes are not a multiple of the frame size", len(data))
	}

	samples := len(data) / c.width
	if len(pcm) < samples {
		return 0, fmt.Errorf("pcm: buffer too small (%d < %d samples)", len(pcm), samples)
	}

	for i := 0; i < samples; i++ {
		b := data[i*c.width:]
		switch c.options.Format {
		case audio.FormatU8:
			pcm[i] = (float32(b[0]) - 128) / 127
		case audio.FormatS16LE, audio.FormatS16BE:
			pcm[i] = float32(int16(c.order.Uint16(b))) / math.MaxInt16
		case audio.FormatS32LE, audio.FormatS32BE:
			pcm[i] = float32(float64(int32(c.order.Uint32(b))) / math.MaxInt32)
		case audio.FormatFloat32LE, audio.FormatFloat32BE:
			pcm[i] = math.Float32frombits(c.order.Uint32(b))
		}
	}

	return samples / c.options.Channels, nil
}
