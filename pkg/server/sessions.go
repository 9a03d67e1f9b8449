package server

import (
	"errors"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/NicolasHaas/gochat/pkg/protocol"
)

var ErrAlreadyLoggedIn = errors.New("server: user already logged in")

// Session is the live binding between an authenticated username and one open
// connection. It owns the connection handle so that cleanup on disconnect is a
// single well-defined operation regardless of which worker detects the
// failure first.
type Session struct {
	Username string
	JoinedAt time.Time

	conn net.Conn

	// Serializes writes: the session's own worker writes replies while other
	// workers push deliveries to the same socket.
	writeMu sync.Mutex
}

// Send writes one frame line to the session's connection.
func (s *Session) Send(line string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return protocol.WriteFrame(s.conn, line)
}

// Close closes the session's connection. The session's worker then unblocks
// from its read and runs the disconnect cleanup path.
func (s *Session) Close() {
	_ = s.conn.Close()
}

// RemoteAddr returns the peer address for logging.
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

// SessionRegistry maps each authenticated username to its single live
// session. It is the only writer of that mapping; routers on all connection
// workers read it concurrently.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
	}
}

// Login binds username to conn. The check-and-insert is one critical section:
// two concurrent logins for the same username can never both succeed, and an
// existing session is never displaced.
func (r *SessionRegistry) Login(username string, conn net.Conn) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[username]; exists {
		return nil, ErrAlreadyLoggedIn
	}
	sess := &Session{
		Username: username,
		JoinedAt: time.Now(),
		conn:     conn,
	}
	r.sessions[username] = sess
	return sess, nil
}

// Logout removes the session for username. Idempotent: absent usernames are a
// no-op.
func (r *SessionRegistry) Logout(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, username)
}

// Lookup returns the live session for username. Absence means "not currently
// reachable", not an error.
func (r *SessionRegistry) Lookup(username string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[username]
	return s, ok
}

// All returns a snapshot of every live session. Callers iterate the snapshot
// and perform socket writes outside the registry lock.
func (r *SessionRegistry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		result = append(result, s)
	}
	return result
}

// Usernames returns the sorted logged-in usernames.
func (r *SessionRegistry) Usernames() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Count returns the number of live sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
