package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is a standalone HTTP server exposing /metrics, run alongside
// (not behind) the TAP dispatcher so scraping never competes with query
// traffic for the same listener.
type Server struct {
	server *http.Server
	log    *slog.Logger
}

// NewServer builds a Server listening on addr (host:port, or ":port").
func NewServer(addr string, log *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		server: &http.Server{Addr: addr, Handler: mux},
		log:    log,
	}
}

// StartAsync starts the server in a background goroutine. Listener errors
// other than a clean shutdown are logged, not returned, since the caller
// has already moved on.
func (s *Server) StartAsync() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics server stopped", "error", err)
		}
	}()
}

// Stop gracefully shuts the server down, honoring ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
