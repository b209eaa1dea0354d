package auth

import (
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kifel/authcore/internal/infrastructure/database"
	_ "github.com/kifel/authcore/migrations" // registers the embedded schema
)

// testDB creates a temporary SQLite database with the production schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(t.Context(), database.Config{
		Path:        filepath.Join(t.TempDir(), "auth-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if _, err := db.Migrate(t.Context()); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	return db.DB
}

// testHasher is a cheap Argon2id configuration so tests stay fast.
func testHasher() *Argon2Hasher {
	return &Argon2Hasher{Time: 1, Memory: 1024, Threads: 1}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedTestRoles creates the built-in roles.
func seedTestRoles(t *testing.T, db *sql.DB) {
	t.Helper()
	if _, err := SeedRoles(t.Context(), NewRoleRepository(db), discardLogger()); err != nil {
		t.Fatalf("seeding roles: %v", err)
	}
}

// seedTestPrincipal inserts a principal with the given password and roles.
func seedTestPrincipal(t *testing.T, db *sql.DB, name, password string, roles ...Role) *Principal {
	t.Helper()

	hash, err := testHasher().Hash(password)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	p := &Principal{
		Name:         name,
		Email:        name + "@x.com",
		PasswordHash: hash,
		Roles:        roles,
	}
	if err := NewPrincipalRepository(db).Create(t.Context(), p); err != nil {
		t.Fatalf("creating test principal %s: %v", name, err)
	}
	return p
}

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
