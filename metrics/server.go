package metrics

import (
	"context"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is an optional HTTP endpoint for the metrics registry. Use it
// only when the embedding application does not already expose one.
type Server struct {
	server   *http.Server
	listener net.Listener
	errChan  chan error
}

// NewServer creates a metrics server on the given address, e.g. ":9090".
// Pass ":0" to bind an ephemeral port and read it back from Addr.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		server:  &http.Server{Addr: addr, Handler: mux},
		errChan: make(chan error, 1),
	}
}

// Start binds the listener and begins serving in a goroutine. Bind
// failures are returned directly; later serve errors surface via Err.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	go func() {
		if serr := s.server.Serve(ln); serr != nil && serr != http.ErrServerClosed {
			s.errChan <- serr
		}
	}()
	return nil
}

// Addr returns the bound listen address. Empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Err returns any error from serving, non-blocking.
func (s *Server) Err() error {
	select {
	case err := <-s.errChan:
		return err
	default:
		return nil
	}
}

// Shutdown gracefully shuts down the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
