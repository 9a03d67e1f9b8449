package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NicolasHaas/gochat/pkg/crypto"
	"github.com/NicolasHaas/gochat/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

// SQL is the SQLite-backed credential store.
type SQL struct {
	db *sql.DB
}

// NewSQL opens (or creates) a SQLite database and runs migrations.
func NewSQL(dbPath string) (*SQL, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("datastore: open DB: %w", err)
	}

	ctx := context.Background()

	// Enable WAL mode for better concurrent read performance
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: set WAL: %w", err)
	}
	// Set busy timeout to avoid "database is locked" under concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: set busy_timeout: %w", err)
	}

	s := &SQL{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQL) Close() error {
	return s.db.Close()
}

func (s *SQL) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		username   TEXT NOT NULL PRIMARY KEY CHECK(length(username) > 0 AND length(username) <= 32),
		pass_hash  BLOB NOT NULL,
		salt       BLOB NOT NULL,
		created_at TEXT NOT NULL DEFAULT (datetime('now'))
	);
	`
	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version    int
		statements []string
	}{
		{
			version:    1,
			statements: []string{schema},
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("datastore: migrate: %w", err)
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQL) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("datastore: create schema_migrations: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("datastore: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("datastore: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *SQL) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("datastore: read schema version: %w", err)
	}
	return version, nil
}

func (s *SQL) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("datastore: update schema version: %w", err)
	}
	return nil
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}

// CreateUser registers a new credential pair. The password is stored as an
// Argon2id hash with a per-user salt, never in the clear.
func (s *SQL) CreateUser(username, password string) (*model.User, error) {
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

	_, err = s.db.ExecContext(context.Background(),
		"INSERT INTO users (username, pass_hash, salt) VALUES (?, ?, ?)",
		username, hash, salt)
	if err != nil {
		// The primary key rejects duplicates atomically, so two concurrent
		// registrations for the same name cannot both succeed.
		if strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "PRIMARY KEY constraint") {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("datastore: create user: %w", err)
	}
	return &model.User{
		Username:  username,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Authenticate checks a credential pair against the stored record.
func (s *SQL) Authenticate(username, password string) error {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)

	var hash, salt []byte
	err := s.db.QueryRowContext(context.Background(),
		"SELECT pass_hash, salt FROM users WHERE username = ?", username).
		Scan(&hash, &salt)
	if err == sql.ErrNoRows {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("datastore: authenticate: %w", err)
	}
	if !crypto.VerifyPassword(password, salt, hash) {
		return ErrInvalidCredentials
	}
	return nil
}

// ListUsers returns all registered users ordered by username.
func (s *SQL) ListUsers() ([]model.User, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT username, created_at FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("datastore: list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		var u model.User
		var createdAt string
		if err := rows.Scan(&u.Username, &createdAt); err != nil {
			return nil, fmt.Errorf("datastore: scan user: %w", err)
		}
		parsed, err := parseDBTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan user: %w", err)
		}
		u.CreatedAt = parsed
		users = append(users, u)
	}
	return users, rows.Err()
}
