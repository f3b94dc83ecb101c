package pcm

import (
	"testing"

	"github.com/dh1tw/tunnelsink/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat32IsLossless(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	in := []float32{0.5, -0.25, 1.5, -1}
	data := make([]byte, c.EncodedSize(2))
	n, err := c.Encode(in, data)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Equal(t, []byte{0, 0, 0, 0x3f}, data[:4])

	out := make([]float32, 4)
	frames, err := c.Decode(data, out)
	require.NoError(t, err)
	assert.Equal(t, 2, frames)
	assert.Equal(t, in, out)
}

func TestIntegerFormats(t *testing.T) {
	formats := []audio.SampleFormat{
		audio.FormatU8, audio.FormatS16LE, audio.FormatS16BE,
		audio.FormatS32LE, audio.FormatS32BE, audio.FormatFloat32BE,
	}

	in := []float32{0.5, -0.5, 2, 0}

	for _, f := range formats {
		t.Run(f.String(), func(t *testing.T) {
			c, err := New(Format(f), Channels(1))
			require.NoError(t, err)

			data := make([]byte, c.EncodedSize(len(in)))
			_, err = c.Encode(in, data)
			require.NoError(t, err)

			out := make([]float32, len(in))
			frames, err := c.Decode(data, out)
			require.NoError(t, err)
			assert.Equal(t, len(in), frames)

			assert.InDelta(t, 0.5, out[0], 0.01)
			assert.InDelta(t, -0.5, out[1], 0.01)
			if f != audio.FormatFloat32BE {
				// clipped
				assert.InDelta(t, 1, out[2], 0.01)
			}
			assert.InDelta(t, 0, out[3], 0.01)
		})
	}
}

func TestErrors(t *testing.T) {
	_, err := New(Format(audio.FormatInvalid))
	assert.Error(t, err)

	_, err = New(Channels(0))
	assert.Error(t, err)

	c, err := New(Format(audio.FormatS16LE), Channels(2))
	require.NoError(t, err)

	_, err = c.Encode(make([]float32, 4), make([]byte, 4))
	assert.Error(t, err)

	_, err = c.Decode(make([]byte, 6), make([]float32, 8))
	assert.Error(t, err)
}

func TestName(t *testing.T) {
	c, err := New(Format(audio.FormatS16BE), Channels(1))
	require.NoError(t, err)
	assert.Equal(t, "pcm/s16be", c.Name())

	f, err := ParseName(c.Name())
	require.NoError(t, err)
	assert.Equal(t, audio.FormatS16BE, f)

	_, err = ParseName("opus")
	assert.Error(t, err)
	_, err = ParseName("pcm/s24le")
	assert.Error(t, err)
}
