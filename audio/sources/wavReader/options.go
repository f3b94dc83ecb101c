package wavReader

const (
	DefaultFramesPerBuffer int = 960
)

// Option is the type for a function option
type Option func(*Options)

// Options contains the parameters for initializing a wav Reader.
type Options struct {
	FramesPerBuffer int
	Paced           bool
}

// FramesPerBuffer is a functional option which sets the amount of audio frames
// the wavReader will provide when executing the callback.
// Example: A buffer with 960 frames at 48000kHz / stereo contains
// 1920 samples and results in 20ms Audio.
func FramesPerBuffer(s int) Option {
	return func(args *Options) {
		args.FramesPerBuffer = s
	}
}

// Paced is a functional option which makes the wavReader deliver the
// buffers in realtime instead of as fast as possible.
func Paced(p bool) Option {
	return func(args *Options) {
		args.Paced = p
	}
}
