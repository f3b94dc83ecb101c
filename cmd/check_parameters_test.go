package cmd

import (
	"testing"

	"github.com/dh1tw/tunnelsink/modargs"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setDefaults() {
	viper.Reset()
	viper.Set("tunnel.sink-name", "tunnel_sink")
	viper.Set("nats.broker-url", "localhost")
	viper.Set("nats.broker-port", 4222)
	viper.Set("audio.codec", "opus")
	viper.Set("audio.format", "float32le")
	viper.Set("audio.rate", 48000)
	viper.Set("audio.channels", 2)
	viper.Set("audio.block-msec", 20)
	viper.Set("audio.buffer-length", 50)
	viper.Set("opus.bitrate", 64000)
	viper.Set("opus.complexity", 5)
	viper.Set("opus.application", "AUDIO")
	viper.Set("opus.max-bandwidth", "FULLBAND")
}

func TestCheckTunnelParameters(t *testing.T) {
	defer viper.Reset()

	tests := []struct {
		key   string
		value interface{}
	}{
		{"audio.codec", "mp3"},
		{"audio.format", "s24le"},
		{"audio.channels", 0},
		{"audio.rate", 44100},
		{"audio.block-msec", 15},
		{"audio.buffer-length", 0},
		{"opus.bitrate", 1000},
		{"opus.complexity", 11},
		{"opus.application", "music"},
		{"opus.max-bandwidth", "ultraband"},
	}

	setDefaults()
	require.NoError(t, checkTunnelParameters())

	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			setDefaults()
			viper.Set(tc.key, tc.value)
			err := checkTunnelParameters()
			require.Error(t, err)
			perr, ok := err.(*parmError)
			require.True(t, ok)
			assert.Equal(t, tc.key, perr.parm)
		})
	}

	// the opus limits don't apply to pcm
	setDefaults()
	viper.Set("audio.codec", "pcm")
	viper.Set("audio.rate", 44100)
	viper.Set("opus.bitrate", 0)
	assert.NoError(t, checkTunnelParameters())
}

func TestTunnelArgs(t *testing.T) {
	defer viper.Reset()

	setDefaults()
	viper.Set("nats.password", `se cr"et`)
	viper.Set("tunnel.sink-properties", `device.description='Living Room'`)

	valid := []string{"sink_name", "sink_properties", "remote_server", "remote_port",
		"subject", "username", "password", "codec", "format", "rate", "channels",
		"block_msec", "buffer_length", "bitrate", "opus_application",
		"opus_max_bandwidth", "opus_complexity"}

	ma, err := modargs.New(tunnelArgs(), valid)
	require.NoError(t, err)

	assert.Equal(t, "tunnel_sink", ma.Value("sink_name", ""))
	assert.Equal(t, "tunnelsink.tunnel_sink.audio", ma.Value("subject", ""))
	assert.Equal(t, `se cr"et`, ma.Value("password", ""))
	assert.Equal(t, `device.description='Living Room'`, ma.Value("sink_properties", ""))
	assert.Equal(t, "audio", ma.Value("opus_application", ""))
	assert.Equal(t, "fullband", ma.Value("opus_max_bandwidth", ""))
	assert.False(t, ma.Has("username"))

	rate, err := ma.Uint32("rate", 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(48000), rate)

	viper.Set("audio.codec", "pcm")
	viper.Set("nats.subject", "custom.subject")
	ma, err = modargs.New(tunnelArgs(), valid)
	require.NoError(t, err)
	assert.False(t, ma.Has("bitrate"))
	assert.Equal(t, "custom.subject", ma.Value("subject", ""))
}
