package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// RunView is a snapshot of one in-flight backtest's progress, polled by the
// /snapshot endpoint.
type RunView struct {
	Name          string    `json:"name"`
	Equity        float64   `json:"equity"`
	TicksSeen     int       `json:"ticks_seen"`
	FillsSeen     int       `json:"fills_seen"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// Registry tracks RunView state for every backtest in a sweep, updated by
// whichever goroutine runs that backtest and read by the HTTP handlers.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]RunView
}

// NewRegistry creates an empty run registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]RunView)}
}

// Update replaces the stored view for name.
func (r *Registry) Update(view RunView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[view.Name] = view
}

// Snapshot returns a copy of every tracked run view.
func (r *Registry) Snapshot() []RunView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	views := make([]RunView, 0, len(r.runs))
	for _, v := range r.runs {
		views = append(views, v)
	}
	return views
}

// Server is the dashboard's HTTP surface: a health check, a JSON snapshot
// of every tracked run, and the WebSocket upgrade endpoint for live events.
type Server struct {
	hub      *Hub
	registry *Registry
	logger   *slog.Logger
	httpSrv  *http.Server
}

// NewServer wires a Hub and Registry into an http.Server listening on addr.
func NewServer(addr string, hub *Hub, registry *Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "dashboard")

	s := &Server{hub: hub, registry: registry, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/ws", hub.ServeWS)

	s.httpSrv = &http.Server{Addr: addr, Handler: mux}
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.registry.Snapshot()); err != nil {
		s.logger.Error("encode snapshot failed", "error", err)
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled, at which
// point it shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("dashboard server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("dashboard shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
