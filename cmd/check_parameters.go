package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/dh1tw/tunnelsink/audio"
	"github.com/dh1tw/tunnelsink/audiocodec/opus"
	"github.com/spf13/viper"
)

func checkTunnelParameters() error {

	codec := viper.GetString("audio.codec")
	if codec != "opus" && codec != "pcm" {
		return &parmError{
			parm: "audio.codec",
			msg:  "allowed values are opus and pcm",
		}
	}

	if _, err := audio.ParseSampleFormat(viper.GetString("audio.format")); err != nil {
		return &parmError{
			parm: "audio.format",
			msg:  "allowed values are u8, s16le, s16be, s32le, s32be, float32le, float32be",
		}
	}

	if chs := viper.GetInt("audio.channels"); chs < 1 || chs > audio.MaxChannels {
		return &parmError{
			parm: "audio.channels",
			msg:  fmt.Sprintf("allowed values are [1...%d]", audio.MaxChannels),
		}
	}

	if viper.GetInt("audio.rate") <= 0 {
		return &parmError{
			parm: "audio.rate",
			msg:  "value must be > 0",
		}
	}

	if viper.GetInt("audio.block-msec") <= 0 {
		return &parmError{
			parm: "audio.block-msec",
			msg:  "value must be > 0",
		}
	}

	if viper.GetInt("audio.buffer-length") <= 0 {
		return &parmError{
			parm: "audio.buffer-length",
			msg:  "value must be > 0",
		}
	}

	if codec != "opus" {
		return nil
	}

	if !opus.ValidSamplerate(viper.GetInt("audio.rate")) {
		return &parmError{
			parm: "audio.rate",
			msg:  "allowed values for the opus codec are 8000, 12000, 16000, 24000 and 48000",
		}
	}

	if !opus.ValidFrameDuration(time.Duration(viper.GetInt("audio.block-msec")) * time.Millisecond) {
		return &parmError{
			parm: "audio.block-msec",
			msg:  "allowed values for the opus codec are 5, 10, 20, 40 and 60ms",
		}
	}

	if _, err := opus.ParseMaxBandwidth(viper.GetString("opus.max-bandwidth")); err != nil {
		return &parmError{
			parm: "opus.max-bandwidth",
			msg:  "allowed values are NARROWBAND, MEDIUMBAND, WIDEBAND, SUPERWIDEBAND, FULLBAND",
		}
	}

	if _, err := opus.ParseApplication(viper.GetString("opus.application")); err != nil {
		return &parmError{
			parm: "opus.application",
			msg:  "allowed values are VOIP, AUDIO or RESTRICTED_LOWDELAY",
		}
	}

	if viper.GetInt("opus.bitrate") < 6000 || viper.GetInt("opus.bitrate") > 510000 {
		return &parmError{
			parm: "opus.bitrate",
			msg:  "allowed values are [6000...510000]",
		}
	}

	if viper.GetInt("opus.complexity") < 0 || viper.GetInt("opus.complexity") > 10 {
		return &parmError{
			parm: "opus.complexity",
			msg:  "allowed values are [0...10]",
		}
	}

	return nil
}

type parmError struct {
	parm string
	msg  string
}

func (p *parmError) Error() string {
	return fmt.Sprintf("%v: %v", p.parm, p.msg)
}

// tunnelArgs assembles the argument string of the tunnel sink module
// from the settings.
func tunnelArgs() string {

	args := []struct{ key, value string }{
		{"sink_name", viper.GetString("tunnel.sink-name")},
		{"sink_properties", viper.GetString("tunnel.sink-properties")},
		{"remote_server", viper.GetString("nats.broker-url")},
		{"remote_port", viper.GetString("nats.broker-port")},
		{"subject", subject()},
		{"username", viper.GetString("nats.username")},
		{"password", viper.GetString("nats.password")},
		{"codec", viper.GetString("audio.codec")},
		{"format", viper.GetString("audio.format")},
		{"rate", viper.GetString("audio.rate")},
		{"channels", viper.GetString("audio.channels")},
		{"block_msec", viper.GetString("audio.block-msec")},
		{"buffer_length", viper.GetString("audio.buffer-length")},
	}

	if viper.GetString("audio.codec") == "opus" {
		args = append(args, []struct{ key, value string }{
			{"bitrate", viper.GetString("opus.bitrate")},
			{"opus_application", strings.ToLower(viper.GetString("opus.application"))},
			{"opus_max_bandwidth", strings.ToLower(viper.GetString("opus.max-bandwidth"))},
			{"opus_complexity", viper.GetString("opus.complexity")},
		}...)
	}

	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a.value == "" {
			continue
		}
		parts = append(parts, a.key+"="+quoteArg(a.value))
	}

	return strings.Join(parts, " ")
}

// quoteArg quotes values containing whitespace or quotes.
func quoteArg(v string) string {
	if !strings.ContainsAny(v, " \t\n\r'\"\\") {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(v) + `"`
}
