package events

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cskr/pubsub"
)

// Event channel names used for event Pubsub

// host
const (
	ModuleLoaded   = "moduleLoaded"   // ModuleEvent
	ModuleUnloaded = "moduleUnloaded" // ModuleEvent
	SinkState      = "sinkState"      // SinkStateEvent
	SinkStats      = "sinkStats"      // SinkStatsEvent
	SetVolume      = "setVolume"      // float32
	OsExit         = "osExit"         // bool
)

// ModuleEvent is published when a module is loaded or unloaded.
type ModuleEvent struct {
	Index    uint32 `json:"index"`
	Name     string `json:"name"`
	Argument string `json:"argument"`
}

// SinkStateEvent is published whenever a sink changes its state.
type SinkStateEvent struct {
	Sink  string `json:"sink"`
	State string `json:"state"`
}

// SinkStatsEvent carries the statistics a sink's processing goroutine
// reports periodically.
type SinkStatsEvent struct {
	Sink       string        `json:"sink"`
	BlocksSent uint64        `json:"blocks_sent"`
	Underruns  uint64        `json:"underruns"`
	Overruns   uint64        `json:"overruns"`
	Level      float32       `json:"level"`
	Latency    time.Duration `json:"latency"`
}

// WatchSystemEvents publishes OsExit when the process receives SIGINT or
// SIGTERM. It returns after the first signal or when ctx is done.
func WatchSystemEvents(ctx context.Context, evPS *pubsub.PubSub) {

	// Channel to handle OS signals
	osSignals := make(chan os.Signal, 1)

	signal.Notify(osSignals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(osSignals)

	select {
	case <-osSignals:
		evPS.Pub(true, OsExit)
	case <-ctx.Done():
	}
}
