package server

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NicolasHaas/gochat/pkg/protocol"
)

// Run starts the server and blocks until a shutdown signal arrives.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	slog.Info("GoChat server running", "addr", s.Addr())

	// Start Prometheus metrics HTTP endpoint
	s.StartMetricsHTTP()

	// Start periodic status logging (every 60s)
	s.StartPeriodicLog(60*time.Second, s.ctx.Done())

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	s.Shutdown()
	return nil
}

// Start binds the listener, bootstraps groups, and launches the accept loop.
// It returns once the server is accepting connections.
func (s *Server) Start() error {
	if s.store == nil {
		return fmt.Errorf("server: missing store dependency")
	}

	// Load predefined groups from YAML config if provided
	if s.cfg.GroupsFile != "" {
		if err := LoadGroupsFromYAML(s.cfg.GroupsFile, s.groups); err != nil {
			slog.Error("failed to load groups config", "err", err)
		}
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.listener = ln
	slog.Info("listening", "addr", ln.Addr())

	go s.acceptLoop(ln)
	return nil
}

// acceptLoop accepts connections until the listener closes, spawning one
// independent worker per connection. Workers coordinate only through the
// shared registries.
func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				slog.Error("accept error", "err", err)
				continue
			}
		}
		s.metrics.TotalConnections.Inc()
		s.metrics.ActiveConnections.Inc()
		s.trackConn(conn)
		s.workers.Add(1)
		go func() {
			defer s.workers.Done()
			defer s.untrackConn(conn)
			newRouter(s, conn).run()
		}()
	}
}

// Shutdown stops accepting, notifies all live sessions, closes their
// connections, releases the listener, and waits for the workers to finish
// their cleanup. In-flight requests complete locally; no new frames are
// accepted.
func (s *Server) Shutdown() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for _, sess := range s.sessions.All() {
		_ = sess.Send(protocol.ShutdownNotice)
	}
	s.connMu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.connMu.Unlock()
	s.workers.Wait()
	if s.store != nil {
		_ = s.store.Close()
	}
}
