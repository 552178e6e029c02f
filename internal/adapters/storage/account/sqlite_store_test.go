package account

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"gymhub/internal/adapters/storage"
	domain "gymhub/internal/domain/account"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := storage.MigrateDB(db, ":memory:"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewSQLiteStore(db)
}

func TestSQLiteStore_SaveAndLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	acct := domain.Account{
		ID:          "a1",
		Email:       "Coach@Gym.test",
		DisplayName: "Coach Sam",
		Role:        domain.RoleCoach,
		CreatedAt:   time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC),
	}
	if err := store.Save(ctx, acct); err != nil {
		t.Fatalf("Save: %v", err)
	}

	byID, err := store.GetByID(ctx, "a1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if byID.DisplayName != "Coach Sam" || byID.Role != domain.RoleCoach {
		t.Errorf("GetByID = %+v", byID)
	}
	if !byID.LockedUntil.IsZero() {
		t.Errorf("LockedUntil = %v, want zero", byID.LockedUntil)
	}

	byEmail, err := store.GetByEmail(ctx, "coach@gym.test")
	if err != nil {
		t.Fatalf("GetByEmail (case-insensitive): %v", err)
	}
	if byEmail.ID != "a1" {
		t.Errorf("GetByEmail ID = %q, want a1", byEmail.ID)
	}
}

func TestSQLiteStore_SaveUpdatesLockout(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	acct := domain.Account{ID: "a1", Email: "a@gym.test", Role: domain.RoleAdmin, CreatedAt: time.Now()}
	if err := store.Save(ctx, acct); err != nil {
		t.Fatalf("Save: %v", err)
	}
	for i := 0; i < 5; i++ {
		acct.RecordFailedLogin()
	}
	if err := store.Save(ctx, acct); err != nil {
		t.Fatalf("Save update: %v", err)
	}
	got, err := store.GetByID(ctx, "a1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.FailedLogins != 5 || !got.IsLocked() {
		t.Errorf("FailedLogins=%d locked=%v, want 5 and locked", got.FailedLogins, got.IsLocked())
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestSQLiteStore_NotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetByID(context.Background(), "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID err = %v, want ErrNotFound", err)
	}
	if _, err := store.GetByEmail(context.Background(), "x@y"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByEmail err = %v, want ErrNotFound", err)
	}
}
