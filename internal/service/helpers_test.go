package service

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/sakif/linkbio/internal/model"
	sqliteRepo "github.com/sakif/linkbio/internal/repository/sqlite"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestStore opens a migrated in-memory database that lives as long as
// the test.
func newTestStore(t *testing.T) *sqliteRepo.DB {
	t.Helper()
	db, err := sqliteRepo.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createUser(t *testing.T, db *sqliteRepo.DB, handle string) *model.User {
	t.Helper()
	u := &model.User{Handle: handle, Email: handle + "@example.com", PasswordHash: "x"}
	if err := db.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("failed to create user %s: %v", handle, err)
	}
	return u
}

// clock is a settable time source for the services' now field.
type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }
