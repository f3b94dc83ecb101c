// Package transport carries encoded audio blocks from a tunnel sink to
// the remote side.
package transport

import (
	"errors"
)

// ErrClosed is returned when sending on a closed transport.
var ErrClosed = errors.New("transport: closed")

// Frame is an encoded block of audio.
type Frame struct {
	StreamID   string
	Seq        uint64
	Codec      string
	Samplerate uint32
	Channels   int
	Frames     int // samples per channel
	Payload    []byte
}

// Transport is the interface implemented by the tunnel transports.
type Transport interface {
	Send(Frame) error
	Close() error
}
