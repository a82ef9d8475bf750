package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024 * 16,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// Server presents the source and its extraction side by side
type Server struct {
	source     *Source
	extractor  *Extractor
	cache      *CachedExtractor
	mode       Mode
	httpServer *http.Server
}

// NewServer creates the web presentation layer for one source
func NewServer(addr string, source *Source, extractor *Extractor, cacheSize int) (*Server, error) {
	cache, err := NewCachedExtractor(extractor, cacheSize)
	if err != nil {
		return nil, err
	}

	s := &Server{
		source:    source,
		extractor: extractor,
		cache:     cache,
		mode:      extractor.config.Mode,
	}
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: h2c.NewHandler(s.Handler(), &http2.Server{}),
	}
	return s, nil
}

// Handler returns the routes of the presentation layer
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/targets", s.handleTargets)
	mux.HandleFunc("/api/extract", s.handleExtract)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

func (s *Server) Start() error {
	log.Printf("Starting shakeout server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// view is one rendering of the source for a selected target
type view struct {
	snapshot *Snapshot
	targets  []string
	target   string
	result   *ExtractionResult
	err      error
}

// render extracts target from the current source. An empty target selects
// the default one.
func (s *Server) render(snap *Snapshot, target string) view {
	v := view{snapshot: snap}

	targets, err := s.extractor.ListTargets(snap.Path, snap.Language, snap.Text)
	if err != nil {
		v.err = err
		return v
	}
	v.targets = targets

	if target == "" {
		target = s.extractor.DefaultTarget(targets)
	}
	v.target = target

	v.result, v.err = s.cache.Extract(snap, target, s.mode)
	return v
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	v := s.render(s.source.Current(), strings.TrimSpace(r.URL.Query().Get("target")))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderPage(w, v); err != nil {
		log.Printf("Error rendering page: %v", err)
	}
}

func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Current()
	targets, err := s.extractor.ListTargets(snap.Path, snap.Language, snap.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"file":     snap.Path,
		"language": snap.Language,
		"targets":  targets,
	})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	v := s.render(s.source.Current(), strings.TrimSpace(r.URL.Query().Get("target")))
	if v.err != nil {
		writeError(w, v.err)
		return
	}
	writeJSON(w, http.StatusOK, v.result)
}

type wsInbound struct {
	Type   string `json:"type"`
	Target string `json:"target,omitempty"`
}

type wsOutbound struct {
	Type    string            `json:"type"`
	Session string            `json:"session,omitempty"`
	Target  string            `json:"target,omitempty"`
	Targets []string          `json:"targets,omitempty"`
	Result  *ExtractionResult `json:"result,omitempty"`
	Source  string            `json:"source,omitempty"`
	Message string            `json:"message,omitempty"`
}

// session is one WebSocket client. loading guards against overlapping
// selections.
type session struct {
	id      string
	server  *Server
	writeCh chan wsOutbound

	mu      sync.Mutex
	loading bool
	target  string
}

func newSession(s *Server) *session {
	return &session{
		id:      uuid.New().String(),
		server:  s,
		writeCh: make(chan wsOutbound, 32),
	}
}

// begin marks the session busy; false means a selection is already running
func (ss *session) begin(target string) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.loading {
		return false
	}
	ss.loading = true
	ss.target = target
	return true
}

func (ss *session) end(target string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.loading = false
	ss.target = target
}

func (ss *session) currentTarget() string {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.target
}

// selectTarget runs one extraction in the background and pushes loading,
// then result or error
func (ss *session) selectTarget(target string, done *sync.WaitGroup) {
	if !ss.begin(target) {
		ss.push(wsOutbound{Type: "busy", Target: target, Message: "an extraction is already running"})
		return
	}
	ss.push(wsOutbound{Type: "loading", Target: target})

	done.Add(1)
	go func() {
		defer done.Done()
		v := ss.server.render(ss.server.source.Current(), target)
		ss.end(v.target)
		source := string(v.snapshot.Text)
		if v.err != nil {
			ss.push(wsOutbound{Type: "error", Target: v.target, Targets: v.targets, Source: source, Message: v.err.Error()})
			return
		}
		ss.push(wsOutbound{Type: "result", Target: v.target, Targets: v.targets, Source: source, Result: v.result})
	}()
}

// push queues a message, dropping the oldest queued one when full
func (ss *session) push(out wsOutbound) {
	select {
	case ss.writeCh <- out:
		return
	default:
	}
	select {
	case <-ss.writeCh:
	default:
	}
	select {
	case ss.writeCh <- out:
	default:
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		log.Printf("ws set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	ss := newSession(s)
	var running sync.WaitGroup
	defer running.Wait()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(wsPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-ss.writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	snapshots, unsubscribe := s.source.Subscribe()
	defer unsubscribe()
	running.Add(1)
	go func() {
		defer running.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-snapshots:
				ss.selectTarget(ss.currentTarget(), &running)
			}
		}
	}()

	snap := s.source.Current()
	targets, _ := s.extractor.ListTargets(snap.Path, snap.Language, snap.Text)
	ss.push(wsOutbound{Type: "hello", Session: ss.id, Targets: targets})

	for {
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			cancel()
			<-writerDone
			return
		}

		switch strings.ToLower(strings.TrimSpace(in.Type)) {
		case "select":
			ss.selectTarget(strings.TrimSpace(in.Target), &running)
		case "ping":
			ss.push(wsOutbound{Type: "pong"})
		case "":
			ss.push(wsOutbound{Type: "error", Message: "type is required"})
		default:
			ss.push(wsOutbound{Type: "error", Message: "unsupported type: " + in.Type})
		}
	}
}

// statusFor maps extraction errors to HTTP status codes
func statusFor(err error) int {
	if isUserError(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	body := map[string]any{"error": err.Error()}
	var targetErr *TargetNotFoundError
	if errors.As(err, &targetErr) {
		body["available_targets"] = targetErr.Available
	}
	writeJSON(w, statusFor(err), body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}
