package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gestionale/internal/activity"
	"gestionale/internal/auth"
	"gestionale/internal/session"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the console's local database: the sqlite session
// store and the activity journal.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

var (
	_ session.Store    = (*SQLiteRepository)(nil)
	_ activity.Journal = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// Save implements session.Store.
func (r *SQLiteRepository) Save(ctx context.Context, s *auth.Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	err = r.queries.UpsertSession(ctx, SessionRow{
		ID:        s.ID,
		Token:     s.Token,
		Payload:   string(payload),
		CreatedAt: unixOrZero(s.CreatedAt),
		ExpiresAt: unixOrZero(s.ExpiresAt),
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Get implements session.Store.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*auth.Session, error) {
	row, err := r.queries.GetSession(ctx, id, r.now().Unix())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var s auth.Session
	if err := json.Unmarshal([]byte(row.Payload), &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

// Delete implements session.Store.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if err := r.queries.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Purge removes expired sessions.
func (r *SQLiteRepository) Purge(ctx context.Context) (int, error) {
	n, err := r.queries.DeleteExpiredSessions(ctx, r.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return int(n), nil
}

// AppendActivity implements activity.Journal. Events already journaled
// are skipped.
func (r *SQLiteRepository) AppendActivity(ctx context.Context, ev activity.Event) error {
	_, err := r.queries.InsertActivity(ctx, ActivityRow{
		EventID:    ev.ID,
		OccurredAt: ev.OccurredAt.UnixMilli(),
		SessionID:  ev.SessionID,
		UserName:   ev.User,
		Resource:   ev.Resource,
		Operation:  ev.Operation,
		RecordID:   ev.RecordID,
		Success:    ev.Success,
		Error:      ev.Error,
	})
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// RecentActivity returns the latest journal entries, newest first. An
// empty resource matches all resources.
func (r *SQLiteRepository) RecentActivity(ctx context.Context, resource string, limit int) ([]activity.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.queries.ListActivity(ctx, resource, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	out := make([]activity.Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, activity.Event{
			ID:         row.EventID,
			OccurredAt: time.UnixMilli(row.OccurredAt).UTC(),
			SessionID:  row.SessionID,
			User:       row.UserName,
			Resource:   row.Resource,
			Operation:  row.Operation,
			RecordID:   row.RecordID,
			Success:    row.Success,
			Error:      row.Error,
		})
	}
	return out, nil
}
