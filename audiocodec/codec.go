// Package audiocodec defines the interfaces of the codecs a tunnel uses to
// encode its audio blocks.
package audiocodec

// Encoder encodes interleaved float32 samples.
type Encoder interface {
	Name() string
	// Encode writes the encoded samples into data and returns the
	// number of bytes written.
	Encode(pcm []float32, data []byte) (int, error)
}

// Decoder decodes into interleaved float32 samples.
type Decoder interface {
	Name() string
	// Decode writes the decoded samples into pcm and returns the number
	// of frames (samples per channel) written.
	Decode(data []byte, pcm []float32) (int, error)
}
