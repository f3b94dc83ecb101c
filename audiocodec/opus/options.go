package opus

import opus "gopkg.in/hraban/opus.v2"

// Option is the type for a function option
type Option func(*Options)

// Options contains the parameters of the opus encoder and decoder.
type Options struct {
	Samplerate   int
	Channels     int
	Application  opus.Application
	Bitrate      int
	Complexity   int
	MaxBandwidth opus.Bandwidth
}

// Samplerate is a functional option to set the sample rate.
func Samplerate(sr int) Option {
	return func(args *Options) {
		args.Samplerate = sr
	}
}

// Channels is a functional option to set the number of channels.
func Channels(chs int) Option {
	return func(args *Options) {
		args.Channels = chs
	}
}

// Application is a functional option to set the opus application (encoder
// only).
func Application(app opus.Application) Option {
	return func(args *Options) {
		args.Application = app
	}
}

// Bitrate is a functional option to set the bitrate in bit/s (encoder
// only).
func Bitrate(br int) Option {
	return func(args *Options) {
		args.Bitrate = br
	}
}

// Complexity is a functional option to set the computational complexity
// (0...10) of the encoder.
func Complexity(c int) Option {
	return func(args *Options) {
		args.Complexity = c
	}
}

// MaxBandwidth is a functional option to set the maximum bandwidth of the
// encoder.
func MaxBandwidth(bw opus.Bandwidth) Option {
	return func(args *Options) {
		args.MaxBandwidth = bw
	}
}
