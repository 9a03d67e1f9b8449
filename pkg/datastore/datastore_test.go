package datastore_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/NicolasHaas/gochat/pkg/datastore"
	"github.com/NicolasHaas/gochat/pkg/model"
)

// newSQL opens a throwaway on-disk database for one test.
func newSQL(t *testing.T) *datastore.SQL {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := datastore.NewSQL(dbPath)
	if err != nil {
		t.Fatalf("datastore_test: failed to open db: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Errorf("closing database: %v", err)
		}
	})
	return st
}

// eachStore runs the subtest against both Store implementations so the
// in-memory mirror cannot drift from SQLite behavior.
func eachStore(t *testing.T, fn func(t *testing.T, st datastore.Store)) {
	t.Helper()
	t.Run("sql", func(t *testing.T) {
		t.Parallel()
		fn(t, newSQL(t))
	})
	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		fn(t, datastore.NewMemory())
	})
}

func TestCreateUser(t *testing.T) {
	t.Parallel()

	type tcase struct {
		username  string
		password  string
		expectErr error
	}

	tcases := map[string]tcase{
		"minimum_required_fields": {
			username: "johndoe",
			password: "pw1",
		},
		"trims_whitespace": {
			username: "  johndoe  ",
			password: " pw1 ",
		},
		"empty_username": {
			username:  "",
			password:  "pw1",
			expectErr: model.ErrUsernameEmpty,
		},
		"whitespace_username": {
			username:  "   ",
			password:  "pw1",
			expectErr: model.ErrUsernameEmpty,
		},
		"empty_password": {
			username:  "johndoe",
			password:  "",
			expectErr: datastore.ErrPasswordEmpty,
		},
		"whitespace_password": {
			username:  "johndoe",
			password:  "   ",
			expectErr: datastore.ErrPasswordEmpty,
		},
		"invalid_username": {
			username:  "john doe",
			password:  "pw1",
			expectErr: model.ErrUsernameInvalidChars,
		},
	}

	for name, tc := range tcases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			eachStore(t, func(t *testing.T, st datastore.Store) {
				user, err := st.CreateUser(tc.username, tc.password)
				if tc.expectErr != nil {
					if !errors.Is(err, tc.expectErr) {
						t.Fatalf("CreateUser(%q) error = %v, want %v", tc.username, err, tc.expectErr)
					}
					return
				}
				if err != nil {
					t.Fatalf("CreateUser(%q): %v", tc.username, err)
				}

				want := &model.User{Username: "johndoe"}
				if diff := cmp.Diff(want, user, cmpopts.IgnoreFields(model.User{}, "CreatedAt")); diff != "" {
					t.Errorf("CreateUser mismatch (-want +got):\n%s", diff)
				}
				if user.CreatedAt.IsZero() {
					t.Error("CreateUser: CreatedAt not set")
				}
			})
		})
	}
}

func TestCreateUserDuplicate(t *testing.T) {
	t.Parallel()

	eachStore(t, func(t *testing.T, st datastore.Store) {
		if _, err := st.CreateUser("alice", "pw1"); err != nil {
			t.Fatalf("first CreateUser: %v", err)
		}
		if _, err := st.CreateUser("alice", "pw2"); !errors.Is(err, datastore.ErrUsernameTaken) {
			t.Fatalf("second CreateUser error = %v, want ErrUsernameTaken", err)
		}
		// The stored password must remain the first one.
		if err := st.Authenticate("alice", "pw1"); err != nil {
			t.Errorf("Authenticate with original password: %v", err)
		}
		if err := st.Authenticate("alice", "pw2"); !errors.Is(err, datastore.ErrInvalidCredentials) {
			t.Errorf("Authenticate with rejected password error = %v, want ErrInvalidCredentials", err)
		}
	})
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	eachStore(t, func(t *testing.T, st datastore.Store) {
		if _, err := st.CreateUser("alice", "pw1"); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}

		if err := st.Authenticate("alice", "pw1"); err != nil {
			t.Errorf("Authenticate(correct): %v", err)
		}
		if err := st.Authenticate("alice", "wrong"); !errors.Is(err, datastore.ErrInvalidCredentials) {
			t.Errorf("Authenticate(wrong password) = %v, want ErrInvalidCredentials", err)
		}
		// Unknown users answer the same error as wrong passwords.
		if err := st.Authenticate("mallory", "pw1"); !errors.Is(err, datastore.ErrInvalidCredentials) {
			t.Errorf("Authenticate(unknown user) = %v, want ErrInvalidCredentials", err)
		}
	})
}

func TestListUsers(t *testing.T) {
	t.Parallel()

	eachStore(t, func(t *testing.T, st datastore.Store) {
		for _, name := range []string{"carol", "alice", "bob"} {
			if _, err := st.CreateUser(name, "pw"); err != nil {
				t.Fatalf("CreateUser(%q): %v", name, err)
			}
		}

		users, err := st.ListUsers()
		if err != nil {
			t.Fatalf("ListUsers: %v", err)
		}

		want := []model.User{
			{Username: "alice"},
			{Username: "bob"},
			{Username: "carol"},
		}
		if diff := cmp.Diff(want, users, cmpopts.IgnoreFields(model.User{}, "CreatedAt")); diff != "" {
			t.Errorf("ListUsers mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestCredentialsSurviveReopen(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "persist.db")

	st, err := datastore.NewSQL(dbPath)
	if err != nil {
		t.Fatalf("NewSQL: %v", err)
	}
	if _, err := st.CreateUser("alice", "pw1"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := datastore.NewSQL(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	if err := reopened.Authenticate("alice", "pw1"); err != nil {
		t.Errorf("Authenticate after reopen: %v", err)
	}
}

func TestMemoryClock(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	st := datastore.NewMemoryWithClock(func() time.Time { return fixed })

	user, err := st.CreateUser("alice", "pw1")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if diff := cmp.Diff(fixed, user.CreatedAt); diff != "" {
		t.Errorf("CreatedAt mismatch (-want +got):\n%s", diff)
	}
}
