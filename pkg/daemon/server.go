package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/jamesainslie/radarsync/pkg/radar/metrics"
)

// Server is the daemon's HTTP listener for metrics and health checks.
type Server struct {
	http     *http.Server
	listener net.Listener
}

// NewServer listens on addr. The listener is bound immediately so callers
// learn about port conflicts before the daemon starts polling.
func NewServer(ctx context.Context, addr string, statusPath string) (*Server, error) {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		status, err := ReadStatus(statusPath)
		if err != nil || status.Status == StateError {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("unhealthy\n"))
			return
		}
		_, _ = w.Write([]byte(status.Status + "\n"))
	})

	return &Server{
		http: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: listener,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until the server is closed.
func (s *Server) Serve() error {
	if err := s.http.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops the server, waiting up to timeout for open requests.
func (s *Server) Close(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
