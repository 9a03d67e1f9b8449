package datastore

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/NicolasHaas/gochat/pkg/crypto"
	"github.com/NicolasHaas/gochat/pkg/model"
)

// Memory is an in-memory Store implementation for tests. It mirrors SQLite
// behavior for validation and error handling, including password hashing.
type Memory struct {
	mu    sync.RWMutex
	now   func() time.Time
	users map[string]*memoryUser
}

type memoryUser struct {
	hash      []byte
	salt      []byte
	createdAt time.Time
}

// NewMemory creates a Memory store using time.Now().UTC().
func NewMemory() *Memory {
	return NewMemoryWithClock(nil)
}

// NewMemoryWithClock creates a Memory store with a custom clock.
func NewMemoryWithClock(now func() time.Time) *Memory {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Memory{
		now:   now,
		users: make(map[string]*memoryUser),
	}
}

// Close is a no-op for Memory.
func (s *Memory) Close() error {
	return nil
}

// CreateUser registers a new credential pair.
func (s *Memory) CreateUser(username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if err := model.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("datastore: create user: %w", err)
	}
	if password == "" {
		return nil, ErrPasswordEmpty
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("datastore: create user: %w", err)
	}
	hash := crypto.HashPassword(password, salt)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[username]; exists {
		return nil, ErrUsernameTaken
	}
	createdAt := s.now()
	s.users[username] = &memoryUser{hash: hash, salt: salt, createdAt: createdAt}
	return &model.User{Username: username, CreatedAt: createdAt}, nil
}

// Authenticate checks a credential pair against the stored record.
func (s *Memory) Authenticate(username, password string) error {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)

	s.mu.RLock()
	u, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		return ErrInvalidCredentials
	}
	if !crypto.VerifyPassword(password, u.salt, u.hash) {
		return ErrInvalidCredentials
	}
	return nil
}

// ListUsers returns all registered users ordered by username.
func (s *Memory) ListUsers() ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]model.User, 0, len(s.users))
	for name, u := range s.users {
		users = append(users, model.User{Username: name, CreatedAt: u.createdAt})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}
