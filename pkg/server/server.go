// Package server implements the GoChat server: the connection acceptor, the
// per-connection message router, and the shared session and group registries.
package server

import (
	"context"
	"net"
	"sync"

	"github.com/NicolasHaas/gochat/pkg/datastore"
)

// Config holds server configuration.
type Config struct {
	Addr        string // TCP bind address (e.g. ":12345")
	DBPath      string // SQLite database path
	GroupsFile  string // YAML file defining groups to create on startup
	MetricsAddr string // HTTP bind address for /metrics endpoint (empty = disabled)

	// CLI-only actions (run and exit)
	ExportUsers bool // export all users as YAML and exit
}

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Store and will Close() it on shutdown.
type Dependencies struct {
	Store datastore.Store
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:        ":12345",
		MetricsAddr: ":12346",
		DBPath:      "gochat.db",
	}
}

// Server is the main GoChat server.
type Server struct {
	cfg      Config
	sessions *SessionRegistry
	groups   *GroupDirectory
	metrics  *Metrics
	store    datastore.Store
	listener net.Listener
	workers  sync.WaitGroup

	// Every open connection, authenticated or not, so shutdown can unblock
	// all workers.
	connMu sync.Mutex
	conns  map[net.Conn]struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		sessions: NewSessionRegistry(),
		groups:   NewGroupDirectory(),
		metrics:  NewMetrics(),
		store:    deps.Store,
		conns:    make(map[net.Conn]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Server) trackConn(conn net.Conn) {
	s.connMu.Lock()
	s.conns[conn] = struct{}{}
	s.connMu.Unlock()
}

func (s *Server) untrackConn(conn net.Conn) {
	s.connMu.Lock()
	delete(s.conns, conn)
	s.connMu.Unlock()
}

// Sessions returns the session registry.
func (s *Server) Sessions() *SessionRegistry {
	return s.sessions
}

// Groups returns the group directory.
func (s *Server) Groups() *GroupDirectory {
	return s.groups
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Addr returns the bound listen address, useful when configured with port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}
