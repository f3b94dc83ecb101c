// Package asyncmsgq implements a bounded, single-producer/single-consumer
// message queue for passing control and audio messages between two
// scheduling contexts. Both ends are integrated into poll based event
// loops through wake-up descriptors.
package asyncmsgq

import (
	"github.com/dh1tw/tunnelsink/audio"
)

// Codes below zero are reserved for control messages of the bridge.
const (
	// MessageShutdown asks the consumer's processing loop to terminate.
	// It is sent without a target Object.
	MessageShutdown = -1
)

// Object is the target of a Message. ProcessMsg is executed on the
// consumer's scheduling context and its result is returned to a sender
// waiting in Send.
type Object interface {
	ProcessMsg(code int, data interface{}, offset int64, chunk *audio.Msg) int
}

// ObjectFunc is an adapter to allow the use of ordinary functions as
// message targets.
type ObjectFunc func(code int, data interface{}, offset int64, chunk *audio.Msg) int

// ProcessMsg calls f(code, data, offset, chunk).
func (f ObjectFunc) ProcessMsg(code int, data interface{}, offset int64, chunk *audio.Msg) int {
	return f(code, data, offset, chunk)
}

// FreeFunc releases the data of a posted message. It is executed on the
// producer's context once the consumer has completed the message.
type FreeFunc func(data interface{})

// Message is the unit transported by a Queue. The concrete type of Data
// depends on Code and is defined by the receiving Object.
type Message struct {
	Object Object
	Code   int
	Data   interface{}
	Offset int64
	Chunk  *audio.Msg
}

// IsShutdown reports whether msg is the bridge's shutdown request.
func (msg Message) IsShutdown() bool {
	return msg.Object == nil && msg.Code == MessageShutdown
}

// Dispatch executes the message on its target object. Messages without
// target return 0.
func Dispatch(msg Message) int {
	if msg.Object == nil {
		return 0
	}
	return msg.Object.ProcessMsg(msg.Code, msg.Data, msg.Offset, msg.Chunk)
}
