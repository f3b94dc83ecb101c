package webserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/dh1tw/tunnelsink/core"
	"github.com/dh1tw/tunnelsink/events"
	"github.com/gorilla/mux"
)

// Module is the json representation of a loaded module.
type Module struct {
	Index    uint32 `json:"index"`
	Name     string `json:"name"`
	Argument string `json:"argument"`
}

// Sink is the json representation of a sink.
type Sink struct {
	Index      uint32                 `json:"index"`
	Name       string                 `json:"name"`
	Driver     string                 `json:"driver"`
	State      string                 `json:"state"`
	SampleSpec string                 `json:"sample_spec"`
	ChannelMap string                 `json:"channel_map"`
	Volume     int                    `json:"volume"`
	Properties map[string]string      `json:"properties,omitempty"`
	LatencyMs  *float64               `json:"latency_ms,omitempty"`
	Stats      *events.SinkStatsEvent `json:"stats,omitempty"`
}

// SinkVolume is used to query and set the volume of a sink in percent.
type SinkVolume struct {
	Volume *int `json:"volume"`
}

// call executes fn on the main loop of the host.
func (web *WebServer) call(req *http.Request, fn func()) error {
	ctx, cancel := context.WithTimeout(req.Context(), callTimeout)
	defer cancel()
	return web.core.Call(ctx, fn)
}

func sinkInfo(s *core.Sink) Sink {
	return Sink{
		Index:      s.Index,
		Name:       s.Name,
		Driver:     s.Driver,
		State:      s.State().String(),
		SampleSpec: s.SampleSpec.String(),
		ChannelMap: s.ChannelMap.String(),
		Volume:     int(s.Volume()*100 + 0.5),
	}
}

func (web *WebServer) webSocketHdlr(w http.ResponseWriter, req *http.Request) {

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("webserver: unable to open ws for %v: %v\n", req.RemoteAddr, err)
		return
	}

	wsClient := &wsClient{
		ws:           conn,
		send:         make(chan []byte, 16),
		removeClient: web.removeWsClient,
		quit:         web.quit,
		onMessage:    web.handleClientMsg,
	}

	select {
	case web.addWsClient <- wsClient:
	case <-web.quit:
		conn.Close()
		return
	}

	go wsClient.write()
	go wsClient.read()
}

func (web *WebServer) modulesHdlr(w http.ResponseWriter, req *http.Request) {
	defer req.Body.Close()
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")

	modules := []Module{}
	err := web.call(req, func() {
		for _, m := range web.core.Modules() {
			modules = append(modules, Module{
				Index:    m.Index,
				Name:     m.Name,
				Argument: m.Argument,
			})
		}
	})
	if err != nil {
		log.Println(err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("500 - unable to execute query"))
		return
	}

	if err := json.NewEncoder(w).Encode(modules); err != nil {
		log.Println(err)
	}
}

func (web *WebServer) sinksHdlr(w http.ResponseWriter, req *http.Request) {
	defer req.Body.Close()
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")

	sinks := []Sink{}
	err := web.call(req, func() {
		for _, s := range web.core.Sinks() {
			sinks = append(sinks, sinkInfo(s))
		}
	})
	if err != nil {
		log.Println(err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("500 - unable to execute query"))
		return
	}

	if err := json.NewEncoder(w).Encode(sinks); err != nil {
		log.Println(err)
	}
}

func (web *WebServer) sinkHdlr(w http.ResponseWriter, req *http.Request) {
	defer req.Body.Close()
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")

	name := mux.Vars(req)["sink"]

	var (
		sink  Sink
		found bool
	)

	err := web.call(req, func() {
		s, ok := web.core.SinkByName(name)
		if !ok {
			return
		}
		found = true
		sink = sinkInfo(s)
		sink.Properties = map[string]string(s.Proplist.Copy())

		l, err := s.Latency()
		if err != nil {
			log.Println(err)
			return
		}
		ms := float64(l.Microseconds()) / 1000
		sink.LatencyMs = &ms
	})
	if err != nil {
		log.Println(err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("500 - unable to execute query"))
		return
	}

	if !found {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(fmt.Sprintf("404 - unable to find sink %s", name)))
		return
	}

	if st, ok := web.lastStats(name); ok {
		sink.Stats = &st
	}

	if err := json.NewEncoder(w).Encode(sink); err != nil {
		log.Println(err)
	}
}

func (web *WebServer) sinkVolumeHdlr(w http.ResponseWriter, req *http.Request) {
	defer req.Body.Close()
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")

	name := mux.Vars(req)["sink"]

	switch req.Method {
	case "GET":
		var (
			volume float32
			found  bool
		)
		err := web.call(req, func() {
			if s, ok := web.core.SinkByName(name); ok {
				volume = s.Volume()
				found = true
			}
		})
		if err != nil {
			log.Println(err)
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("500 - unable to execute query"))
			return
		}
		if !found {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(fmt.Sprintf("404 - unable to find sink %s", name)))
			return
		}
		vol := int(volume*100 + 0.5)
		if err := json.NewEncoder(w).Encode(&SinkVolume{Volume: &vol}); err != nil {
			log.Println(err)
		}

	case "PUT":
		var volMsg SinkVolume
		if err := json.NewDecoder(req.Body).Decode(&volMsg); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("400 - invalid JSON"))
			return
		}
		if volMsg.Volume == nil || *volMsg.Volume < 0 {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("400 - invalid Request"))
			return
		}

		found := false
		err := web.call(req, func() {
			if s, ok := web.core.SinkByName(name); ok {
				s.SetVolume(float32(*volMsg.Volume) / 100)
				found = true
			}
		})
		if err != nil {
			log.Println(err)
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("500 - unable to set volume"))
			return
		}
		if !found {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(fmt.Sprintf("404 - unable to find sink %s", name)))
			return
		}
		if err := json.NewEncoder(w).Encode(&volMsg); err != nil {
			log.Println(err)
		}

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
