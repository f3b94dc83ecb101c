package audio

// OnDataCb is the callback through which a Source delivers audio.
type OnDataCb func(Msg)

// Source is the interface which is implemented by an audio source. This
// could be a local file or audio received from a network connection.
type Source interface {
	Start() error
	Stop() error
	Close() error
	SetCb(OnDataCb)
}

// Sink is the interface which is implemented by an audio sink. This could
// be a network tunnel or a file for recording.
type Sink interface {
	Start() error
	Stop() error
	Close() error
	SetVolume(float32)
	Volume() float32
	Write(Msg) error
	Flush()
}

// Msg contains an audio buffer with it's metadata. Msgs travel as chunks
// through the message queues; after a Msg has been handed over, the sender
// must not modify Data anymore.
type Msg struct {
	Data       []float32 // interleaved samples
	Samplerate float64
	Channels   int
	Frames     int // Number of Frames in the buffer
	IsStream   bool
	EOF        bool // End of File
	Metadata   map[string]interface{}
}

// Duration returns the playback duration of the buffer.
func (m *Msg) Duration() float64 {
	if m.Samplerate == 0 {
		return 0
	}
	return float64(m.Frames) / m.Samplerate
}
