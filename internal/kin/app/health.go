package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bdobrica/kin/common/version"
	"github.com/bdobrica/kin/internal/kin/session"
)

// HealthServer exposes /health and /status. It is optional; kin runs without
// it when the HTTP address is empty.
type HealthServer struct {
	addr      string
	provider  statusProvider
	logger    *slog.Logger
	build     version.Build
	startedAt time.Time
	mux       *http.ServeMux
}

// statusProvider is the minimal view of the running app the server needs.
type statusProvider interface {
	Snapshot() session.Snapshot
	MemoryCount(ctx context.Context) (int, error)
	StatusLines() []string
}

// healthResponse is returned by GET /health.
type healthResponse struct {
	Status string        `json:"status"`
	Build  version.Build `json:"build"`
	Mode   session.Mode  `json:"mode"`
}

// statusResponse is returned by GET /status.
type statusResponse struct {
	Status       string           `json:"status"`
	Build        version.Build    `json:"build"`
	StartedAt    time.Time        `json:"started_at"`
	UptimeSecs   float64          `json:"uptime_seconds"`
	Session      session.Snapshot `json:"session"`
	MemoryCount  int              `json:"memory_count"`
	RecentStatus []string         `json:"recent_status"`
}

// NewHealthServer configures the HTTP server. Serve starts it.
func NewHealthServer(addr string, sp statusProvider, logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	hs := &HealthServer{
		addr:      addr,
		provider:  sp,
		logger:    logger,
		build:     version.Current(),
		startedAt: time.Now(),
		mux:       mux,
	}
	mux.HandleFunc("GET /health", hs.handleHealth)
	mux.HandleFunc("GET /status", hs.handleStatus)
	return hs
}

// ServeHTTP lets tests drive the handlers without a listener.
func (h *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Serve listens on the configured address and blocks until ctx is cancelled.
func (h *HealthServer) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("health server: listen %s: %w", h.addr, err)
	}
	return h.serve(ctx, ln)
}

func (h *HealthServer) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("health server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("health server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		h.logger.Warn("health server shutdown error", "err", err)
	}
	<-errCh
	return nil
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, healthResponse{
		Status: "ok",
		Build:  h.build,
		Mode:   h.provider.Snapshot().Mode,
	})
}

func (h *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := h.provider.MemoryCount(r.Context())
	if err != nil {
		h.logger.Warn("health: memory count failed", "err", err)
		count = -1
	}
	lines := h.provider.StatusLines()
	if lines == nil {
		lines = []string{}
	}

	writeJSON(w, h.logger, http.StatusOK, statusResponse{
		Status:       "ok",
		Build:        h.build,
		StartedAt:    h.startedAt,
		UptimeSecs:   time.Since(h.startedAt).Seconds(),
		Session:      h.provider.Snapshot(),
		MemoryCount:  count,
		RecentStatus: lines,
	})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("health: failed to encode JSON response", "err", err)
	}
}
