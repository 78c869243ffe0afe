// Package livereload pushes rebuild notifications to connected browsers
// over server-sent events. The dev loop calls Notify after artifacts
// change; each connected client receives one reload event naming the
// changed files.
package livereload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProtocolVersion identifies the reload contract version exposed via /health.
const ProtocolVersion = "1.0.0"

// clientBuffer is the per-client event queue; a client that falls this
// far behind starts losing reloads, which is harmless since any reload
// forces a full refresh.
const clientBuffer = 8

// Logger records server status information. It matches logging.Logger's
// signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// ServerStatus reports runtime lifecycle states for the HTTP server.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
)

var errServerDisabled = errors.New("livereload: server disabled")

// reloadEvent is the SSE payload delivered to browsers.
type reloadEvent struct {
	Files []string  `json:"files"`
	Time  time.Time `json:"time"`
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Clients       int    `json:"clients"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type client struct {
	id     string
	events chan reloadEvent
}

// Server broadcasts reload events to subscribed browser clients.
type Server struct {
	settings Settings
	logger   Logger
	clock    func() time.Time

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	status    ServerStatus
	startTime time.Time
	clients   map[string]*client
}

// Option customizes server construction.
type Option func(*Server)

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer prepares a reload server using the provided settings.
func NewServer(settings Settings, opts ...Option) *Server {
	s := &Server{
		settings: settings,
		logger:   nopLogger{},
		clock:    func() time.Time { return time.Now().UTC() },
		status:   StatusStarting,
		clients:  map[string]*client{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("livereload: server is nil")
	}
	if !s.settings.Enabled {
		return errServerDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("livereload: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("livereload: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.startTime = s.clock()
	mux := http.NewServeMux()
	// The write bound applies to the health endpoint only; the reload
	// stream stays open for the life of the client.
	health := http.Handler(http.HandlerFunc(s.handleHealth))
	if s.settings.WriteTimeout > 0 {
		health = http.TimeoutHandler(health, s.settings.WriteTimeout, "health check timed out")
	}
	mux.Handle("/health", health)
	mux.HandleFunc("/reload", s.handleReload)
	server := &http.Server{
		Handler:     mux,
		IdleTimeout: s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	s.status = StatusReady
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("livereload: serve error: %v", err)
		}
	}()
	s.logger.Printf("livereload: listening on %s", listener.Addr().String())
	return nil
}

// Shutdown stops accepting new connections and disconnects streaming
// clients.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.listener == nil || s.server == nil {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusDraining
	for _, c := range s.clients {
		close(c.events)
	}
	s.clients = map[string]*client{}
	server := s.server
	s.listener = nil
	s.server = nil
	s.mu.Unlock()

	deadline := ctx
	if deadline == nil {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	return server.Shutdown(deadline)
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the HTTP base URL for the running server.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return s.settings.URL()
	}
	return "http://" + addr
}

// Status reports the server's lifecycle state.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// ClientCount reports how many browsers hold an open reload stream.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Notify broadcasts a reload event naming the changed files. Slow
// clients drop the event rather than block the caller.
func (s *Server) Notify(files []string) {
	event := reloadEvent{
		Files: append([]string{}, files...),
		Time:  s.clock(),
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		select {
		case c.events <- event:
		default:
			s.logger.Printf("livereload: client %s lagging, dropped reload", c.id)
		}
	}
}

func (s *Server) addClient() *client {
	c := &client{
		id:     uuid.New().String(),
		events: make(chan reloadEvent, clientBuffer),
	}
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	return c
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.id]; ok {
		delete(s.clients, c.id)
		close(c.events)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", fmt.Sprintf("%s, %s", http.MethodGet, http.MethodHead))
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	resp := healthResponse{
		Status:        string(s.Status()),
		Version:       ProtocolVersion,
		Clients:       s.ClientCount(),
		UptimeSeconds: s.uptimeSeconds(),
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReload streams reload events to one browser as server-sent
// events until the client disconnects or the server drains.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}
	c := s.addClient()
	defer s.removeClient(c)
	s.logger.Printf("livereload: client %s connected", c.id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "event: connected\ndata: {\"client\":%q}\n\n", c.id)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-c.events:
			if !open {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				s.logger.Printf("livereload: encode event: %v", err)
				continue
			}
			fmt.Fprintf(w, "event: reload\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(time.Since(s.startTime).Seconds())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
