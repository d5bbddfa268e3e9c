// Package tcpapi accepts Wyoming connections and runs one handler per connection.
package tcpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"wyoming-stt-bridge/internal/observability"
)

// ParseURI splits a listener URI such as tcp://0.0.0.0:10301 or
// unix:///run/wyoming.sock into a network and address.
func ParseURI(uri string) (network, address string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("invalid listener uri %q: %w", uri, err)
	}
	switch u.Scheme {
	case "tcp":
		if u.Host == "" {
			return "", "", fmt.Errorf("invalid listener uri %q: missing host:port", uri)
		}
		return "tcp", u.Host, nil
	case "unix":
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == "" {
			return "", "", fmt.Errorf("invalid listener uri %q: missing socket path", uri)
		}
		return "unix", path, nil
	default:
		return "", "", fmt.Errorf("invalid listener uri %q: unsupported scheme %q", uri, u.Scheme)
	}
}

// Server is the Wyoming accept loop. It keeps a registry of live
// connections so shutdown can close them and wait for their handlers.
type Server struct {
	network string
	address string
	handler observability.ConnHandler

	mu       sync.Mutex
	listener net.Listener
	conns    map[string]net.Conn
	closing  bool
	wg       sync.WaitGroup
}

// New creates a server for uri. Nothing is bound until Listen.
func New(uri string, handler observability.ConnHandler) (*Server, error) {
	network, address, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	return &Server{
		network: network,
		address: address,
		handler: handler,
		conns:   make(map[string]net.Conn),
	}, nil
}

// Listen binds the listener. A stale unix socket file is removed first.
func (s *Server) Listen() error {
	if s.network == "unix" {
		if err := os.Remove(s.address); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale socket: %w", err)
		}
	}
	ln, err := net.Listen(s.network, s.address)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	log.Info().Str("network", s.network).Str("addr", ln.Addr().String()).Msg("Wyoming server listening")
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

// ActiveConnections returns the number of open connections.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Serve accepts connections until ctx is cancelled or Shutdown is called,
// then waits for every handler to return. Listen must be called first.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("tcpapi: Serve called before Listen")
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.Shutdown()
		case <-stop:
		}
	}()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosing() {
				s.wg.Wait()
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				s.Shutdown()
				return err
			}
			// Errors such as EMFILE are transient; live sessions keep running.
			backoff = nextBackoff(backoff)
			log.Warn().Err(err).Dur("retryIn", backoff).Msg("Accept failed")
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0

		id := uuid.NewString()
		if !s.track(id, conn) {
			conn.Close()
			continue
		}
		go s.serveConn(ctx, id, conn)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		d = time.Second
	}
	return d
}

// ListenAndServe binds and serves.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (s *Server) serveConn(ctx context.Context, id string, conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(id)
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("connectionId", id).Msg("Connection handler panicked")
		}
	}()

	_ = s.handler(ctx, conn, id)
}

func (s *Server) track(id string, conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[id] = conn
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Shutdown stops accepting, closes every live connection and waits for
// their handlers to return. It is safe to call more than once.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if !s.closing {
		s.closing = true
		if s.listener != nil {
			s.listener.Close()
		}
		for _, c := range s.conns {
			c.Close()
		}
		log.Info().Int("connections", len(s.conns)).Msg("Wyoming server shutting down")
	}
	s.mu.Unlock()

	s.wg.Wait()
}
