// Package core implements a minimal audio server host: a main loop, a
// registry of loadable modules and the sinks created by them.
//
// Unless noted otherwise, the functions of Core, Module and Sink must be
// called on the main loop goroutine (or before the loop is started).
// Other goroutines use Call to hop onto the loop.
package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/cskr/pubsub"
	"github.com/dh1tw/tunnelsink/audio"
	"github.com/dh1tw/tunnelsink/events"
	"github.com/dh1tw/tunnelsink/mainloop"
)

// Core message codes
const (
	// MessageUnloadModule asks the host to unload the module passed as
	// data (*Module). Posted by processing goroutines which failed.
	MessageUnloadModule = iota
)

var (
	ErrUnknownModule = errors.New("core: unknown module")
	ErrModuleLoaded  = errors.New("core: module may only be loaded once")
)

// Core is the host. It implements asyncmsgq.Object for the core messages.
type Core struct {
	sync.RWMutex
	Mainloop          *mainloop.Mainloop
	Events            *pubsub.PubSub
	DefaultSampleSpec audio.SampleSpec
	DefaultChannelMap audio.ChannelMap

	modules     map[uint32]*Module
	sinks       map[string]*Sink
	moduleIndex uint32
	sinkIndex   uint32
}

// New returns a Core driven by ml. evPS may be nil, in which case no
// events are published.
func New(ml *mainloop.Mainloop, evPS *pubsub.PubSub) *Core {
	return &Core{
		Mainloop: ml,
		Events:   evPS,
		DefaultSampleSpec: audio.SampleSpec{
			Format:   audio.FormatFloat32LE,
			Rate:     48000,
			Channels: 2,
		},
		DefaultChannelMap: audio.DefaultChannelMap(2),
		modules:           make(map[uint32]*Module),
		sinks:             make(map[string]*Sink),
	}
}

// ProcessMsg handles the core messages arriving from processing
// goroutines.
func (c *Core) ProcessMsg(code int, data interface{}, offset int64, chunk *audio.Msg) int {
	switch code {
	case MessageUnloadModule:
		m, ok := data.(*Module)
		if !ok {
			log.Printf("core: unload request with invalid data %T", data)
			return -1
		}
		c.UnloadRequest(m)
		return 0
	}

	log.Printf("core: unknown message code %d", code)
	return -1
}

// Call executes fn on the main loop goroutine and waits for it to return.
func (c *Core) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})

	c.Mainloop.Once(func() {
		fn()
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("core: %w", ctx.Err())
	}
}

// Sinks returns all linked sinks ordered by index. Safe for concurrent
// use.
func (c *Core) Sinks() []*Sink {
	c.RLock()
	defer c.RUnlock()

	sinks := make([]*Sink, 0, len(c.sinks))
	for _, s := range c.sinks {
		sinks = append(sinks, s)
	}
	sort.Slice(sinks, func(i, j int) bool {
		return sinks[i].Index < sinks[j].Index
	})
	return sinks
}

// SinkByName returns the linked sink with the given name. Safe for
// concurrent use.
func (c *Core) SinkByName(name string) (*Sink, bool) {
	c.RLock()
	defer c.RUnlock()
	s, ok := c.sinks[name]
	return s, ok
}

func (c *Core) publish(msg interface{}, topic string) {
	if c.Events == nil {
		return
	}
	c.Events.Pub(msg, topic)
}

func (c *Core) publishSinkState(s *Sink) {
	c.publish(events.SinkStateEvent{Sink: s.Name, State: s.state.String()}, events.SinkState)
}
