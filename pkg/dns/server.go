package dns

import (
	"context"
	"fmt"
	"sync"
	"time"

	"advoid/pkg/logging"

	"github.com/miekg/dns"
)

// tcpIdleTimeout closes quiet TCP connections (RFC 7766 recommends
// conservative reuse; five seconds matches common resolver practice).
const tcpIdleTimeout = 5 * time.Second

// Server binds the UDP and TCP listeners and dispatches inbound queries to
// the handler.
type Server struct {
	bind      string
	handler   *Handler
	logger    *logging.Logger
	udpServer *dns.Server
	tcpServer *dns.Server
	running   bool
	mu        sync.RWMutex
}

// NewServer creates a DNS server on bind.
func NewServer(bind string, handler *Handler, logger *logging.Logger) *Server {
	return &Server{
		bind:    bind,
		handler: handler,
		logger:  logger,
	}
}

// Start brings up both listeners and blocks until ctx is cancelled or a
// listener fails. A bind failure surfaces as the returned error.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true

	mux := dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		start := time.Now()
		s.handler.ServeDNS(ctx, w, r)
		s.logger.Debug("Query processed",
			"client", clientIP(w),
			"duration", time.Since(start),
		)
	})

	s.udpServer = &dns.Server{
		Addr:    s.bind,
		Net:     "udp",
		Handler: mux,
	}
	s.tcpServer = &dns.Server{
		Addr:        s.bind,
		Net:         "tcp",
		Handler:     mux,
		IdleTimeout: func() time.Duration { return tcpIdleTimeout },
	}
	s.mu.Unlock()

	errChan := make(chan error, 2)

	go func() {
		s.logger.Info("Starting UDP DNS server", "address", s.bind)
		if err := s.udpServer.ListenAndServe(); err != nil {
			errChan <- fmt.Errorf("UDP server failed: %w", err)
		}
	}()

	go func() {
		s.logger.Info("Starting TCP DNS server", "address", s.bind)
		if err := s.tcpServer.ListenAndServe(); err != nil {
			errChan <- fmt.Errorf("TCP server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("DNS server shutting down")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.logger.Error("DNS server error", "error", err)
		return err
	}
}

// Shutdown stops both listeners, letting in-flight requests finish within
// ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	var errs []error

	if s.udpServer != nil {
		if err := s.udpServer.ShutdownContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("UDP shutdown: %w", err))
		}
	}
	if s.tcpServer != nil {
		if err := s.tcpServer.ShutdownContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("TCP shutdown: %w", err))
		}
	}

	s.running = false

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	s.logger.Info("DNS server shut down")
	return nil
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
