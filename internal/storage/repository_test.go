package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gestionale/internal/activity"
	"gestionale/internal/auth"
	"gestionale/internal/core"
	"gestionale/internal/listing"
	"gestionale/internal/session"
)

func openRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	for i := 0; i < 2; i++ {
		if err := RunMigrations(path); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
}

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	user := core.User{ID: 3, Name: "Ada", Email: "ada@example.com",
		Role: &core.Role{Name: "Accountant", Permissions: []core.Permission{{Name: "expense-list"}}}}
	s := auth.NewSession("sid-1", "tok", user, time.Hour, "Super Admin")

	if err := repo.Save(ctx, s); err != nil {
		t.Fatal(err)
	}
	got, err := repo.Get(ctx, "sid-1")
	if err != nil {
		t.Fatal(err)
	}
	got.Authorize("Super Admin")
	if got.Token != "tok" || got.User.Email != "ada@example.com" || !got.Permissions().Has("expense-list") {
		t.Fatalf("round-tripped session = %+v", got)
	}

	// Save again updates in place.
	s.Token = "tok-2"
	if err := repo.Save(ctx, s); err != nil {
		t.Fatal(err)
	}
	if got, _ := repo.Get(ctx, "sid-1"); got == nil || got.Token != "tok-2" {
		t.Fatalf("upsert did not update the token: %+v", got)
	}

	if err := repo.Delete(ctx, "sid-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Get(ctx, "sid-1"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("Get after delete = %v", err)
	}
}

func TestSessionStore_Expiry(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	_ = repo.Save(ctx, auth.NewSession("short", "t", core.User{}, time.Minute, ""))
	_ = repo.Save(ctx, auth.NewSession("long", "t", core.User{}, time.Hour, ""))

	repo.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
	if _, err := repo.Get(ctx, "short"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expired session returned: %v", err)
	}
	n, err := repo.Purge(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Purge() = %d, %v", n, err)
	}
	if _, err := repo.Get(ctx, "long"); err != nil {
		t.Fatal(err)
	}
}

func TestActivityJournal(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	actor := activity.Actor{SessionID: "s", User: "ada"}

	first := activity.NewEvent(actor, "expenses", listing.OpCreate, "1", nil)
	second := activity.NewEvent(actor, "tickets", listing.OpDelete, "9", errors.New("in use"))
	second.OccurredAt = first.OccurredAt.Add(time.Second)

	for _, ev := range []activity.Event{first, second, first} {
		if err := repo.AppendActivity(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	all, err := repo.RecentActivity(ctx, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("replayed event must be journaled once, got %d entries", len(all))
	}
	if all[0].ID != second.ID || all[0].Success || all[0].Error != "in use" {
		t.Fatalf("newest entry = %+v", all[0])
	}

	only, err := repo.RecentActivity(ctx, "expenses", 10)
	if err != nil || len(only) != 1 || only[0].RecordID != "1" {
		t.Fatalf("filtered = %+v, %v", only, err)
	}
}
