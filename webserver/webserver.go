// Package webserver exposes the state of the host through a small REST
// api and streams the host's events to websocket clients.
package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/cskr/pubsub"
	"github.com/dh1tw/tunnelsink/core"
	"github.com/dh1tw/tunnelsink/events"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// timeout for requests which have to be executed on the main loop
const callTimeout = 5 * time.Second

// WebServer is the http server of the host.
type WebServer struct {
	sync.RWMutex
	url            string
	router         *mux.Router
	apiVersion     string
	apiMatch       *regexp.Regexp
	core           *core.Core
	events         *pubsub.PubSub
	wsClients      map[*wsClient]struct{}
	addWsClient    chan *wsClient
	removeWsClient chan *wsClient
	stats          map[string]events.SinkStatsEvent
	quit           chan struct{}
}

// wsEvent is the envelope of all messages sent to websocket clients.
type wsEvent struct {
	Topic string      `json:"topic"`
	Data  interface{} `json:"data"`
}

// clientMessage is sent by websocket clients.
type clientMessage struct {
	SetVolume *float32 `json:"volume,omitempty"`
}

// NewWebServer returns a WebServer serving the state of c. The events of
// c.Events are forwarded to the websocket clients.
func NewWebServer(host string, port int, c *core.Core) (*WebServer, error) {

	if c == nil {
		return nil, fmt.Errorf("webserver: core must not be nil")
	}

	apiMatch, err := regexp.Compile(`api\/v\d\.\d`)
	if err != nil {
		return nil, err
	}

	web := &WebServer{
		url:            fmt.Sprintf("%s:%d", host, port),
		router:         mux.NewRouter().StrictSlash(true),
		apiVersion:     "1.0",
		apiMatch:       apiMatch,
		core:           c,
		events:         c.Events,
		wsClients:      make(map[*wsClient]struct{}),
		addWsClient:    make(chan *wsClient),
		removeWsClient: make(chan *wsClient),
		stats:          make(map[string]events.SinkStatsEvent),
		quit:           make(chan struct{}),
	}

	web.routes()

	return web, nil
}

// Handler returns the http.Handler of the webserver.
func (web *WebServer) Handler() http.Handler {
	return web.apiRedirectRouter(web.router)
}

// Start serves http until ctx is done.
func (web *WebServer) Start(ctx context.Context) error {

	go web.hub(ctx)

	srv := &http.Server{
		Addr:    web.url,
		Handler: web.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Println("webserver: listening on", web.url)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("webserver: %v", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	<-web.quit
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webserver: %v", err)
	}
	return nil
}

// hub forwards the host's events to the websocket clients. It also keeps
// the latest statistics of each sink.
func (web *WebServer) hub(ctx context.Context) {

	defer close(web.quit)

	var evCh chan interface{}
	topics := []string{events.ModuleLoaded, events.ModuleUnloaded,
		events.SinkState, events.SinkStats}

	if web.events != nil {
		evCh = web.events.Sub(topics...)
		defer func() {
			if evCh == nil {
				return
			}
			// the channel must be drained while unsubscribing
			go func(ch chan interface{}) {
				for range ch {
				}
			}(evCh)
			web.events.Unsub(evCh)
		}()
	}

	for {
		select {
		case <-ctx.Done():
			web.Lock()
			for c := range web.wsClients {
				delete(web.wsClients, c)
				close(c.send)
			}
			web.Unlock()
			return

		case ev, ok := <-evCh:
			if !ok {
				evCh = nil
				continue
			}
			web.handleEvent(ev)

		case c := <-web.addWsClient:
			log.Println("webserver: websocket connected")
			web.Lock()
			web.wsClients[c] = struct{}{}
			web.Unlock()
			web.sendStats(c)

		case c := <-web.removeWsClient:
			log.Println("webserver: websocket disconnected")
			web.Lock()
			if _, ok := web.wsClients[c]; ok {
				delete(web.wsClients, c)
				close(c.send)
			}
			web.Unlock()
		}
	}
}

func (web *WebServer) handleEvent(ev interface{}) {

	var topic string

	switch e := ev.(type) {
	case events.SinkStatsEvent:
		topic = events.SinkStats
		web.Lock()
		web.stats[e.Sink] = e
		web.Unlock()
	case events.SinkStateEvent:
		topic = events.SinkState
		if e.State == core.SinkUnlinked.String() {
			web.Lock()
			delete(web.stats, e.Sink)
			web.Unlock()
		}
	case events.ModuleEvent:
		// loaded and unloaded carry the same payload
		topic = "module"
	default:
		return
	}

	web.broadcast(wsEvent{Topic: topic, Data: ev})
}

func (web *WebServer) broadcast(ev wsEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Println("webserver:", err)
		return
	}

	web.RLock()
	defer web.RUnlock()
	for c := range web.wsClients {
		select {
		case c.send <- data:
		default:
			log.Println("webserver: websocket client too slow, dropping event")
		}
	}
}

// sendStats sends the latest statistics to a newly connected client.
func (web *WebServer) sendStats(c *wsClient) {
	web.RLock()
	defer web.RUnlock()
	for _, st := range web.stats {
		data, err := json.Marshal(wsEvent{Topic: events.SinkStats, Data: st})
		if err != nil {
			log.Println("webserver:", err)
			continue
		}
		select {
		case c.send <- data:
		default:
		}
	}
}

// lastStats returns the latest statistics of a sink.
func (web *WebServer) lastStats(sink string) (events.SinkStatsEvent, bool) {
	web.RLock()
	defer web.RUnlock()
	st, ok := web.stats[sink]
	return st, ok
}

func (web *WebServer) handleClientMsg(data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Println("webserver: unable to unmarshal client message", string(data))
		return
	}

	if msg.SetVolume != nil && web.events != nil {
		web.events.Pub(*msg.SetVolume, events.SetVolume)
	}
}

type wsClient struct {
	ws           *websocket.Conn
	send         chan []byte
	removeClient chan<- *wsClient
	quit         <-chan struct{}
	onMessage    func([]byte)
}

func (c *wsClient) write() {
	defer c.ws.Close()

	for msg := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Println("webserver:", err)
			return
		}
	}
	c.ws.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *wsClient) read() {
	defer func() {
		select {
		case c.removeClient <- c:
		case <-c.quit:
		}
		c.ws.Close()
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.onMessage(data)
	}
}
