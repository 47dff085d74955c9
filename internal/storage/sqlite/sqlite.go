package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/indeavr/znainik/internal/model"
	"github.com/indeavr/znainik/internal/storage"

	_ "modernc.org/sqlite"
)

var (
	_ storage.SubscriptionStore = (*Store)(nil)
	_ storage.DispatchLogStore  = (*Store)(nil)
)

// Pragmas go through the DSN so every pooled connection gets them.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
}

const schema = `
CREATE TABLE IF NOT EXISTS subscriptions (
    seq             INTEGER PRIMARY KEY AUTOINCREMENT,
    endpoint        TEXT NOT NULL UNIQUE,
    p256dh          TEXT NOT NULL DEFAULT '',
    auth            TEXT NOT NULL DEFAULT '',
    expiration_time INTEGER,
    created         TEXT NOT NULL,
    updated         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS dispatch_logs (
    id         TEXT PRIMARY KEY,
    kind       TEXT NOT NULL,
    title      TEXT NOT NULL DEFAULT '',
    body       TEXT NOT NULL DEFAULT '',
    total      INTEGER NOT NULL DEFAULT 0,
    succeeded  INTEGER NOT NULL DEFAULT 0,
    failed     INTEGER NOT NULL DEFAULT 0,
    pruned     INTEGER NOT NULL DEFAULT 0,
    created    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dispatch_logs_created ON dispatch_logs(created);
`

// Store is a SQLite-backed subscription store with row-level upserts.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path and applies the schema.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	database, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	database.SetMaxOpenConns(4)
	database.SetConnMaxIdleTime(30 * time.Minute)

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := database.Exec(schema); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: database}, nil
}

func dsn(path string) string {
	params := make(url.Values)
	for _, pragma := range sqlitePragmas {
		params.Add("_pragma", pragma)
	}
	return path + "?" + params.Encode()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertSubscription inserts or updates the row for the endpoint. Updates keep the row's seq.
func (s *Store) UpsertSubscription(ctx context.Context, sub model.PushSubscription) error {
	endpoint := strings.TrimSpace(sub.Endpoint)
	if endpoint == "" {
		return storage.ErrInvalidSubscription
	}
	now := nowRFC3339()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO subscriptions (endpoint, p256dh, auth, expiration_time, created, updated)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(endpoint) DO UPDATE SET
    p256dh = excluded.p256dh,
    auth = excluded.auth,
    expiration_time = excluded.expiration_time,
    updated = excluded.updated`,
		endpoint, sub.Keys.P256dh, sub.Keys.Auth, nullableInt(sub.ExpirationTime), now, now)
	return err
}

// RemoveSubscription deletes the row for endpoint; zero affected rows is not an error.
func (s *Store) RemoveSubscription(ctx context.Context, endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return storage.ErrInvalidSubscription
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE endpoint = ?`, endpoint)
	return err
}

// ListSubscriptions returns every row ordered by insertion.
func (s *Store) ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT endpoint, p256dh, auth, expiration_time FROM subscriptions ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	subs := make([]model.PushSubscription, 0)
	for rows.Next() {
		var (
			sub        model.PushSubscription
			expiration sql.NullInt64
		)
		if err := rows.Scan(&sub.Endpoint, &sub.Keys.P256dh, &sub.Keys.Auth, &expiration); err != nil {
			return nil, err
		}
		if expiration.Valid {
			v := expiration.Int64
			sub.ExpirationTime = &v
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// PruneSubscriptions deletes rows whose keys still match the given records.
func (s *Store) PruneSubscriptions(ctx context.Context, subs []model.PushSubscription) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	removed := 0
	for _, sub := range subs {
		res, err := tx.ExecContext(ctx, `
DELETE FROM subscriptions WHERE endpoint = ? AND p256dh = ? AND auth = ?`,
			strings.TrimSpace(sub.Endpoint), sub.Keys.P256dh, sub.Keys.Auth)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		removed += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return removed, nil
}

// AppendDispatchLog records one dispatch run.
func (s *Store) AppendDispatchLog(ctx context.Context, log *model.DispatchLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO dispatch_logs (id, kind, title, body, total, succeeded, failed, pruned, created)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.Kind, log.Title, log.Body, log.Total, log.Succeeded, log.Failed, log.Pruned,
		log.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// ListDispatchLogs returns all dispatch logs, oldest first.
func (s *Store) ListDispatchLogs(ctx context.Context) ([]*model.DispatchLog, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, kind, title, body, total, succeeded, failed, pruned, created
FROM dispatch_logs ORDER BY rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	logs := make([]*model.DispatchLog, 0)
	for rows.Next() {
		var (
			log     model.DispatchLog
			created string
		)
		if err := rows.Scan(&log.ID, &log.Kind, &log.Title, &log.Body, &log.Total, &log.Succeeded, &log.Failed, &log.Pruned, &created); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			log.CreatedAt = t
		}
		logs = append(logs, &log)
	}
	return logs, rows.Err()
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
