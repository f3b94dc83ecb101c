package opus

import (
	"fmt"

	opus "gopkg.in/hraban/opus.v2"
)

// MaxPacketSize is the recommended size of the buffer passed to Encode.
const MaxPacketSize = 4000

//OpusEncoder is the data structure for the opus encoder. This struct hold
//the internal values of the encoder.
type OpusEncoder struct {
	name    string
	options Options
	encoder *opus.Encoder
}

// NewEncoder is the constructor method for an Opus encoder.
func NewEncoder(opts ...Option) (*OpusEncoder, error) {

	oEnc := &OpusEncoder{
		name: "opus",
		options: Options{
			Samplerate:   48000,
			Channels:     2,
			MaxBandwidth: opus.Fullband,
			Application:  opus.AppAudio,
			Bitrate:      64000,
			Complexity:   5,
		},
	}

	for _, option := range opts {
		option(&oEnc.options)
	}

	if !ValidSamplerate(oEnc.options.Samplerate) {
		return nil, fmt.Errorf("opus: unsupported samplerate %d", oEnc.options.Samplerate)
	}

	encoder, err := opus.NewEncoder(oEnc.options.Samplerate,
		oEnc.options.Channels,
		oEnc.options.Application)

	if err != nil {
		return nil, fmt.Errorf("opus: %v", err)
	}

	if err := encoder.SetBitrate(oEnc.options.Bitrate); err != nil {
		return nil, fmt.Errorf("opus: bitrate %d: %v", oEnc.options.Bitrate, err)
	}

	if err := encoder.SetComplexity(oEnc.options.Complexity); err != nil {
		return nil, fmt.Errorf("opus: complexity %d: %v", oEnc.options.Complexity, err)
	}

	if err := encoder.SetMaxBandwidth(oEnc.options.MaxBandwidth); err != nil {
		return nil, fmt.Errorf("opus: max bandwidth: %v", err)
	}

	oEnc.encoder = encoder
	return oEnc, nil
}

// Name returns the name of the audio codec
func (oEnc *OpusEncoder) Name() string {
	return oEnc.name
}

// Options returns a copy of the codec's options
func (oEnc *OpusEncoder) Options() Options {
	return oEnc.options
}

// Encode interleaved float32 samples with the opus codec into the supplied
// buffer. The number of frames in pcm must correspond to a valid opus
// frame duration. On success the amount of bytes written into the buffer
// will be returned.
func (oEnc *OpusEncoder) Encode(pcm []float32, data []byte) (int, error) {
	return oEnc.encoder.EncodeFloat32(pcm, data)
}
