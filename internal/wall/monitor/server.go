package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/robbyt/go-supervisor/runnables/httpserver"
	"github.com/robbyt/go-supervisor/supervisor"
)

var (
	_ supervisor.Runnable  = (*Server)(nil)
	_ supervisor.Stateable = (*Server)(nil)
)

// DefaultDrainTimeout bounds how long Stop waits for open requests.
const DefaultDrainTimeout = 5 * time.Second

// Server exposes a Store over HTTP.
//
//	GET /api/status          every node
//	GET /api/status/{node}   one node, 404 when unknown
//	GET /healthz             liveness
type Server struct {
	address string
	store   *Store
	logger  *slog.Logger
	drain   time.Duration
	router  *mux.Router
	runner  *httpserver.Runner
}

type ServerOption func(*Server)

// WithServerLogHandler sets the handler for request logs.
func WithServerLogHandler(handler slog.Handler) ServerOption {
	return func(s *Server) {
		if handler != nil {
			s.logger = slog.New(handler).WithGroup("monitor.Server")
		}
	}
}

// WithDrainTimeout sets how long shutdown waits for open requests.
func WithDrainTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.drain = d
	}
}

func NewServer(address string, store *Store, opts ...ServerOption) (*Server, error) {
	s := &Server{
		address: address,
		store:   store,
		logger:  slog.Default().WithGroup("monitor.Server"),
		drain:   DefaultDrainTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = mux.NewRouter()
	s.router.HandleFunc("/api/status", s.listStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/api/status/{node}", s.nodeStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)

	route, err := httpserver.NewRouteFromHandlerFunc("monitor", "/", s.router.ServeHTTP)
	if err != nil {
		return nil, fmt.Errorf("failed to create monitor route: %w", err)
	}
	routes := []httpserver.Route{*route}

	runner, err := httpserver.NewRunner(
		httpserver.WithConfigCallback(func() (*httpserver.Config, error) {
			return httpserver.NewConfig(s.address, routes, httpserver.WithDrainTimeout(s.drain))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP server runner: %w", err)
	}
	s.runner = runner
	return s, nil
}

func (s *Server) String() string {
	return fmt.Sprintf("monitor.Server[%s]", s.address)
}

// Handler is the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting monitoring API", "address", s.address)
	return s.runner.Run(ctx)
}

func (s *Server) Stop() {
	s.logger.Info("Stopping monitoring API", "address", s.address)
	s.runner.Stop()
}

func (s *Server) GetState() string {
	return s.runner.GetState()
}

func (s *Server) GetStateChan(ctx context.Context) <-chan string {
	return s.runner.GetStateChan(ctx)
}

func (s *Server) IsRunning() bool {
	return s.runner.IsReady()
}

func (s *Server) listStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.All())
}

func (s *Server) nodeStatus(w http.ResponseWriter, r *http.Request) {
	node := mux.Vars(r)["node"]
	snap, ok := s.store.Get(node)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown node " + node})
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "nodes": len(s.store.All())})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
