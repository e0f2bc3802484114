package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type SessionRow struct {
	ID        string
	Token     string
	Payload   string
	CreatedAt int64
	ExpiresAt int64
}

const upsertSession = `
INSERT INTO sessions (id, token, payload, created_at, expires_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    token = excluded.token,
    payload = excluded.payload,
    expires_at = excluded.expires_at`

func (q *Queries) UpsertSession(ctx context.Context, arg SessionRow) error {
	_, err := q.db.ExecContext(ctx, upsertSession, arg.ID, arg.Token, arg.Payload, arg.CreatedAt, arg.ExpiresAt)
	return err
}

const getSession = `
SELECT id, token, payload, created_at, expires_at FROM sessions
WHERE id = ? AND (expires_at = 0 OR expires_at > ?)`

func (q *Queries) GetSession(ctx context.Context, id string, now int64) (SessionRow, error) {
	var r SessionRow
	err := q.db.QueryRowContext(ctx, getSession, id, now).Scan(&r.ID, &r.Token, &r.Payload, &r.CreatedAt, &r.ExpiresAt)
	return r, err
}

const deleteSession = `DELETE FROM sessions WHERE id = ?`

func (q *Queries) DeleteSession(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deleteSession, id)
	return err
}

const deleteExpiredSessions = `DELETE FROM sessions WHERE expires_at != 0 AND expires_at <= ?`

func (q *Queries) DeleteExpiredSessions(ctx context.Context, now int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpiredSessions, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type ActivityRow struct {
	EventID    string
	OccurredAt int64
	SessionID  string
	UserName   string
	Resource   string
	Operation  string
	RecordID   string
	Success    bool
	Error      string
}

// Replayed deliveries carry the same event id and are ignored.
const insertActivity = `
INSERT INTO activity_journal (event_id, occurred_at, session_id, user_name, resource, operation, record_id, success, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(event_id) DO NOTHING`

func (q *Queries) InsertActivity(ctx context.Context, arg ActivityRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertActivity,
		arg.EventID, arg.OccurredAt, arg.SessionID, arg.UserName,
		arg.Resource, arg.Operation, arg.RecordID, arg.Success, arg.Error)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listActivity = `
SELECT event_id, occurred_at, session_id, user_name, resource, operation, record_id, success, error
FROM activity_journal
WHERE (? = '' OR resource = ?)
ORDER BY occurred_at DESC, id DESC
LIMIT ?`

func (q *Queries) ListActivity(ctx context.Context, resource string, limit int) ([]ActivityRow, error) {
	rows, err := q.db.QueryContext(ctx, listActivity, resource, resource, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ActivityRow
	for rows.Next() {
		var r ActivityRow
		if err := rows.Scan(&r.EventID, &r.OccurredAt, &r.SessionID, &r.UserName,
			&r.Resource, &r.Operation, &r.RecordID, &r.Success, &r.Error); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}
