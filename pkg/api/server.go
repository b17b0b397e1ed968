package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/entrhq/mnemo/pkg/memory"
	"github.com/entrhq/mnemo/pkg/metrics"
)

// DefaultAddr is the listen address used by `mnemo serve`.
const DefaultAddr = "127.0.0.1:7427"

// Server is the HTTP server lifecycle around NewRouter.
type Server struct {
	server *http.Server
}

// NewServer builds a server for addr. Nothing listens until Start.
func NewServer(addr string, svc *memory.Service, m *metrics.Manager) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(svc, m),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start listens and serves until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	debugLog.Infof("serving memory API on %s", ln.Addr())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}
	debugLog.Infof("memory API stopped")
	return nil
}
