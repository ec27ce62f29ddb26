// Package server is the development server: it serves the output
// directory, injects a live-reload client into HTML pages and pushes a
// reload message to connected browsers after every rebuild.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/conneroisu/unify/internal/build"
	"github.com/conneroisu/unify/internal/interfaces"
	"github.com/conneroisu/unify/internal/logging"
	"github.com/conneroisu/unify/internal/validation"
	"github.com/conneroisu/unify/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LiveReloadPath is the websocket endpoint of the live-reload client.
const LiveReloadPath = "/__livereload"

// Options configures a PreviewServer.
type Options struct {
	Host       string
	Port       int
	OutputDir  string
	LiveReload bool
	// Gatherer backs /metrics. prometheus.DefaultGatherer when nil.
	Gatherer prometheus.Gatherer
}

// Addr returns host:port.
func (o Options) Addr() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

// Client represents a WebSocket client
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *PreviewServer
}

// PreviewServer serves the built site with live reload.
type PreviewServer struct {
	opts    Options
	fs      interfaces.FileSystem
	builder *build.Builder
	logger  logging.Logger
	router  *chi.Mux

	httpServer  *http.Server
	serverMutex sync.RWMutex

	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *websocket.Conn
	hubDone      chan struct{}
	shutdownOnce sync.Once
}

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	Targets   []string  `json:"targets,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates a server. builder may be nil, in which case the build status
// endpoints report nothing.
func New(opts Options, fsys interfaces.FileSystem, builder *build.Builder, logger logging.Logger) *PreviewServer {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	opts.OutputDir = filepath.Clean(opts.OutputDir)

	s := &PreviewServer{
		opts:       opts,
		fs:         fsys,
		builder:    builder,
		logger:     logger.WithComponent("server"),
		router:     chi.NewRouter(),
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
		hubDone:    make(chan struct{}),
	}
	s.setupRoutes()

	if builder != nil && opts.LiveReload {
		builder.AddCallback(s.NotifyBuild)
	}
	return s
}

func (s *PreviewServer) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true}).ServeHTTP)
	s.router.Get("/api/deps", s.handleDependencies)
	s.router.Get(LiveReloadPath, s.handleWebSocket)
	s.router.Get("/*", s.handleStatic)
}

// Handler returns the router.
func (s *PreviewServer) Handler() http.Handler { return s.router }

// Start runs the websocket hub and serves until ctx is done or the server
// fails.
func (s *PreviewServer) Start(ctx context.Context) error {
	go s.runWebSocketHub(ctx)

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              s.opts.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "serving", "url", "http://"+s.opts.Addr(), "output", s.opts.OutputDir)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown closes every websocket client and stops the HTTP server.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.clientsMutex.Lock()
		for conn, client := range s.clients {
			close(client.send)
			conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		s.clients = make(map[*websocket.Conn]*Client)
		s.clientsMutex.Unlock()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}

// NotifyBuild tells browsers to reload after a rebuild that changed output.
func (s *PreviewServer) NotifyBuild(result build.IncrementalResult) {
	targets := make([]string, 0, len(result.AffectedOutputs))
	for _, out := range result.AffectedOutputs {
		if rel, err := filepath.Rel(s.opts.OutputDir, out); err == nil {
			targets = append(targets, "/"+filepath.ToSlash(rel))
		}
	}
	s.Broadcast(UpdateMessage{Type: "reload", Targets: targets, Timestamp: time.Now()})
}

// Broadcast queues msg for every connected client. Messages are dropped
// when the hub is saturated.
func (s *PreviewServer) Broadcast(msg UpdateMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error(context.Background(), err, "encode update message")
		return
	}
	select {
	case s.broadcast <- data:
	default:
		s.logger.Warn(context.Background(), nil, "live reload queue full, dropping message")
	}
}

// ClientCount returns the number of connected live-reload clients.
func (s *PreviewServer) ClientCount() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	return len(s.clients)
}

func (s *PreviewServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   version.GetShortVersion(),
		"clients":   s.ClientCount(),
	}
	if s.builder != nil {
		snap := s.builder.Metrics().GetSnapshot()
		health["builds"] = map[string]interface{}{
			"total":        snap.TotalBuilds,
			"incremental":  snap.IncrementalBuilds,
			"pages_built":  snap.PagesBuilt,
			"success_rate": s.builder.Metrics().GetSuccessRate(),
		}
	}
	s.writeJSON(w, http.StatusOK, health)
}

func (s *PreviewServer) handleDependencies(w http.ResponseWriter, r *http.Request) {
	if s.builder == nil {
		s.writeJSON(w, http.StatusOK, map[string][]string{})
		return
	}
	if file := r.URL.Query().Get("file"); file != "" {
		s.writeJSON(w, http.StatusOK, s.builder.Tracker().GetDependentPages(file))
		return
	}
	s.writeJSON(w, http.StatusOK, s.builder.Tracker().Graph())
}

func (s *PreviewServer) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error(context.Background(), err, "encode response")
	}
}

// handleStatic serves the output directory. Directory requests get their
// index.html; extensionless requests fall back to name.html.
func (s *PreviewServer) handleStatic(w http.ResponseWriter, r *http.Request) {
	upath := path.Clean("/" + r.URL.Path)
	name := filepath.Join(s.opts.OutputDir, filepath.FromSlash(upath))
	if err := validation.ValidatePath(name, s.opts.OutputDir); err != nil {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	name, ok := s.resolveFile(name, upath)
	if !ok {
		http.NotFound(w, r)
		return
	}

	data, err := s.fs.ReadFile(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	var modTime time.Time
	if info, err := s.fs.Stat(name); err == nil {
		modTime = info.ModTime()
	}

	if s.opts.LiveReload && isHTMLFile(name) {
		data = []byte(InjectLiveReload(string(data)))
		w.Header().Set("Cache-Control", "no-cache")
	}
	http.ServeContent(w, r, filepath.Base(name), modTime, bytes.NewReader(data))
}

func (s *PreviewServer) resolveFile(name, upath string) (string, bool) {
	if info, err := s.fs.Stat(name); err == nil {
		if !info.IsDir() {
			return name, true
		}
		index := filepath.Join(name, "index.html")
		return index, s.fs.Exists(index)
	}
	if path.Ext(upath) == "" && s.fs.Exists(name+".html") {
		return name + ".html", true
	}
	return "", false
}

func isHTMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".html" || ext == ".htm"
}
