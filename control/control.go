// Package control serves the loopback HTTP API a tray UI uses to drive the proxy.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/bluemods/deceive-proxy/constants"
	"github.com/bluemods/deceive-proxy/metrics"
	"github.com/bluemods/deceive-proxy/policy"
	"github.com/bluemods/deceive-proxy/server"
)

// What the API drives. Implemented by *server.Server.
type Controller interface {
	Policy() policy.Policy
	SetStatus(status policy.Status)
	SetEnabled(enabled bool)
	SetLobbyChat(enabled bool)
	SendTestMessage()
	Shutdown()
	SessionCount() int
	SessionEvents() <-chan server.SessionEvent
}

type State struct {
	Enabled   bool   `json:"enabled"`
	Status    string `json:"status"`
	LobbyChat bool   `json:"lobbyChat"`
	Sessions  int    `json:"sessions"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

type ControlServer struct {
	addr       string
	controller Controller
	apiKey     *apiKey
	metrics    *metrics.Collector
	profiling  bool

	handlerOnce sync.Once
	handler     http.Handler

	httpServer *http.Server
	listener   net.Listener

	subMu       sync.Mutex
	subscribers map[chan server.SessionEvent]struct{}
}

func NewControlServer(addr string, controller Controller) *ControlServer {
	return &ControlServer{
		addr:        addr,
		controller:  controller,
		subscribers: make(map[chan server.SessionEvent]struct{}),
	}
}

// When specified, every endpoint except /health requires
// the 'x-api-key' header matching key.
func (s *ControlServer) WithApiKey(key string) *ControlServer {
	k := newApiKey(key)
	s.apiKey = &k
	return s
}

// Serves the collector on /metrics.
func (s *ControlServer) WithMetrics(m *metrics.Collector) *ControlServer {
	s.metrics = m
	return s
}

// Serves the pprof profiler under /debug/pprof/.
// Only enable this on a loopback address.
func (s *ControlServer) WithProfiling() *ControlServer {
	s.profiling = true
	return s
}

// Builds the routes once. Also starts relaying session events to /events subscribers.
func (s *ControlServer) Handler() http.Handler {
	s.handlerOnce.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /health", s.handleHealth)
		mux.Handle("GET /state", s.authorized(s.handleState))
		mux.Handle("POST /status", s.authorized(s.handleStatus))
		mux.Handle("POST /enabled", s.authorized(s.handleEnabled))
		mux.Handle("POST /lobby", s.authorized(s.handleLobby))
		mux.Handle("POST /test-message", s.authorized(s.handleTestMessage))
		mux.Handle("POST /shutdown", s.authorized(s.handleShutdown))
		mux.Handle("GET /events", s.authorized(s.handleEvents))
		if s.metrics != nil {
			mux.Handle("GET /metrics", s.authorized(s.metrics.Handler().ServeHTTP))
		}
		if s.profiling {
			mux.Handle("/debug/pprof/", s.authorized(pprof.Index))
			mux.Handle("/debug/pprof/cmdline", s.authorized(pprof.Cmdline))
			mux.Handle("/debug/pprof/profile", s.authorized(pprof.Profile))
			mux.Handle("/debug/pprof/symbol", s.authorized(pprof.Symbol))
			mux.Handle("/debug/pprof/trace", s.authorized(pprof.Trace))
		}
		s.handler = mux
		go s.relayEvents()
	})
	return s.handler
}

// Opens the listener and serves in the background.
func (s *ControlServer) Start() error {
	listener, err := net.Listen(constants.SERVER_TYPE, s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Println("Control API listening on " + listener.Addr().String())
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Println("Control API error:", err.Error())
		}
	}()
	return nil
}

func (s *ControlServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *ControlServer) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *ControlServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *ControlServer) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeState(w)
}

func (s *ControlServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	status, err := policy.ParseStatus(req.Status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.controller.SetStatus(status)
	s.writeState(w)
}

func (s *ControlServer) handleEnabled(w http.ResponseWriter, r *http.Request) {
	enabled, ok := decodeToggle(w, r)
	if !ok {
		return
	}
	s.controller.SetEnabled(enabled)
	s.writeState(w)
}

func (s *ControlServer) handleLobby(w http.ResponseWriter, r *http.Request) {
	enabled, ok := decodeToggle(w, r)
	if !ok {
		return
	}
	s.controller.SetLobbyChat(enabled)
	s.writeState(w)
}

func (s *ControlServer) handleTestMessage(w http.ResponseWriter, r *http.Request) {
	s.controller.SendTestMessage()
	w.WriteHeader(http.StatusNoContent)
}

// Responds first, Shutdown normally ends the process.
func (s *ControlServer) handleShutdown(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusAccepted)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	go s.controller.Shutdown()
}

// Streams session-closed events as server-sent events until the client goes away.
func (s *ControlServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	events := s.subscribe()
	defer s.unsubscribe(events)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-events:
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: session-closed\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *ControlServer) writeState(w http.ResponseWriter) {
	p := s.controller.Policy()
	state := State{
		Enabled:   p.Enabled,
		Status:    p.Status.String(),
		LobbyChat: p.LobbyChat,
		Sessions:  s.controller.SessionCount(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		log.Println("Control API: failed to write state:", err.Error())
	}
}

func decodeToggle(w http.ResponseWriter, r *http.Request) (bool, bool) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return false, false
	}
	if req.Enabled == nil {
		http.Error(w, "missing field 'enabled'", http.StatusBadRequest)
		return false, false
	}
	return *req.Enabled, true
}

func (s *ControlServer) subscribe() chan server.SessionEvent {
	ch := make(chan server.SessionEvent, server.SESSION_EVENT_BUFFER)
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers[ch] = struct{}{}
	return ch
}

func (s *ControlServer) unsubscribe(ch chan server.SessionEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	delete(s.subscribers, ch)
}

// Fans the controller's single event channel out to every /events client.
// Slow subscribers miss events rather than holding up the others.
func (s *ControlServer) relayEvents() {
	for event := range s.controller.SessionEvents() {
		s.subMu.Lock()
		for ch := range s.subscribers {
			select {
			case ch <- event:
			default:
			}
		}
		s.subMu.Unlock()
	}
}
