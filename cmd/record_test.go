package cmd

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dh1tw/tunnelsink/audio"
	"github.com/dh1tw/tunnelsink/audio/sources/wavReader"
	"github.com/dh1tw/tunnelsink/audiocodec/pcm"
	"github.com/dh1tw/tunnelsink/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcmFrame(t *testing.T, seq uint64, value float32) transport.Frame {
	t.Helper()

	enc, err := pcm.New(pcm.Format(audio.FormatS16LE), pcm.Channels(1))
	require.NoError(t, err)

	samples := make([]float32, 80)
	for i := range samples {
		samples[i] = value
	}
	payload := make([]byte, enc.EncodedSize(80))
	_, err = enc.Encode(samples, payload)
	require.NoError(t, err)

	return transport.Frame{
		StreamID:   "stream-1",
		Seq:        seq,
		Codec:      enc.Name(),
		Samplerate: 8000,
		Channels:   1,
		Frames:     80,
		Payload:    payload,
	}
}

func TestRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.wav")
	rec := newRecorder(path, 16)

	require.NoError(t, rec.handleFrame(pcmFrame(t, 10, 0.5)))
	require.NoError(t, rec.handleFrame(pcmFrame(t, 11, 0.5)))

	// duplicates are dropped
	require.NoError(t, rec.handleFrame(pcmFrame(t, 11, 0.5)))

	// frame 12 got lost and is replaced by silence
	require.NoError(t, rec.handleFrame(pcmFrame(t, 13, 0.25)))

	foreign := pcmFrame(t, 14, 0.5)
	foreign.StreamID = "stream-2"
	assert.Error(t, rec.handleFrame(foreign))

	changed := pcmFrame(t, 14, 0.5)
	changed.Samplerate = 16000
	assert.Error(t, rec.handleFrame(changed))

	assert.Equal(t, uint64(1), rec.lost)
	require.NoError(t, rec.Close())

	r, err := wavReader.NewWavReader(path, wavReader.FramesPerBuffer(80))
	require.NoError(t, err)
	assert.Equal(t, 8000.0, r.Samplerate())
	assert.Equal(t, 1, r.Channels())

	var msgs []audio.Msg
	eof := make(chan struct{})
	r.SetCb(func(msg audio.Msg) {
		msgs = append(msgs, msg)
		if msg.EOF {
			close(eof)
		}
	})
	require.NoError(t, r.Start())
	select {
	case <-eof:
	case <-time.After(time.Second):
		t.Fatal("wav file not read")
	}
	require.NoError(t, r.Stop())

	require.Len(t, msgs, 4)
	assert.InDelta(t, 0.5, msgs[0].Data[0], 0.001)
	assert.InDelta(t, 0.5, msgs[1].Data[79], 0.001)
	assert.Equal(t, float32(0), msgs[2].Data[40])
	assert.InDelta(t, 0.25, msgs[3].Data[0], 0.001)
}

func TestRecorderUnknownCodec(t *testing.T) {
	rec := newRecorder(filepath.Join(t.TempDir(), "rec.wav"), 16)
	f := pcmFrame(t, 0, 0.5)
	f.Codec = "mp3"
	assert.Error(t, rec.handleFrame(f))
	assert.NoError(t, rec.Close())
}
