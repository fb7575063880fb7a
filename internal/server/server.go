// Package server runs the trending HTTP API.
//
// The server owns the listener and the http.Server around the REST
// handler, and shuts both down gracefully.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/xtxerr/trending/config"
	"github.com/xtxerr/trending/internal/errors"
	"github.com/xtxerr/trending/internal/logging"
)

var log = logging.Component("server")

// =============================================================================
// Server Configuration
// =============================================================================

// Config holds server configuration.
type Config struct {
	// Handler serves every request (required).
	Handler http.Handler

	// Listen is the address to listen on (e.g., "0.0.0.0:8080").
	Listen string

	// TLS configuration (optional).
	TLSCertFile string
	TLSKeyFile  string

	// ShutdownTimeout bounds waiting for in-flight requests.
	ShutdownTimeout time.Duration
}

// =============================================================================
// Server
// =============================================================================

// Server is the trending HTTP server.
type Server struct {
	cfg  Config
	http *http.Server

	mu       sync.Mutex
	listener net.Listener
	serving  bool
	shutdown bool
}

// New creates a new server.
func New(cfg Config) (*Server, error) {
	if cfg.Handler == nil {
		return nil, errors.NewMissingField("handler")
	}
	if cfg.Listen == "" {
		cfg.Listen = config.DefaultListenAddress
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = config.DefaultShutdownTimeout
	}

	return &Server{
		cfg: cfg,
		http: &http.Server{
			Handler:           cfg.Handler,
			ReadHeaderTimeout: 10 * time.Second,
			ErrorLog:          logging.NewStdLogger(log),
		},
	}, nil
}

// Listen binds the listen address. Run calls it when it has not been
// called yet.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return errors.ErrClosed
	}
	if s.listener != nil {
		return nil
	}

	var ln net.Listener
	var err error

	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("load TLS cert: %w", err)
		}
		tlsCfg := &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		ln, err = tls.Listen("tcp", s.cfg.Listen, tlsCfg)
		if err != nil {
			return fmt.Errorf("TLS listen: %w", err)
		}
		log.Info("listening with TLS", "address", ln.Addr().String())
	} else {
		ln, err = net.Listen("tcp", s.cfg.Listen)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		log.Info("listening without TLS", "address", ln.Addr().String())
	}

	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run serves requests and blocks until Shutdown.
func (s *Server) Run() error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return errors.ErrClosed
	}
	ln := s.listener
	s.serving = true
	s.mu.Unlock()

	err := s.http.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits up to the shutdown
// timeout for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	idle := s.listener
	if s.serving {
		idle = nil
	}
	s.mu.Unlock()

	if idle != nil {
		idle.Close()
	}

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		log.Warn("graceful shutdown incomplete", "error", err)
		s.http.Close()
		return err
	}

	log.Info("shutdown complete")
	return nil
}
