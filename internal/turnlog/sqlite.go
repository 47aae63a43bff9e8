package turnlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/omalmisr/omal-responder/internal/models"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS turns (
		id TEXT PRIMARY KEY,
		sender_id TEXT NOT NULL,
		channel TEXT NOT NULL,
		inbound TEXT NOT NULL,
		outbound TEXT NOT NULL,
		source TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		stage TEXT NOT NULL,
		created_at_unix INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_turns_created ON turns(created_at_unix);`,
	`CREATE INDEX IF NOT EXISTS idx_turns_sender ON turns(channel, sender_id);`,
}

// SQLiteStore is a Store backed by a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != MemoryDSN {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create turn log dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite pragmas: %w", err)
	}
	for _, q := range migrations {
		if _, err := db.ExecContext(ctx, q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate turn log: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Append records a turn.
func (s *SQLiteStore) Append(ctx context.Context, t models.Turn) error {
	if t.ID == "" {
		return fmt.Errorf("append turn: empty id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (id, sender_id, channel, inbound, outbound, source, category, stage, created_at_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sender_id = excluded.sender_id,
			channel = excluded.channel,
			inbound = excluded.inbound,
			outbound = excluded.outbound,
			source = excluded.source,
			category = excluded.category,
			stage = excluded.stage,
			created_at_unix = excluded.created_at_unix`,
		t.ID, t.SenderID, string(t.Channel), t.Inbound, t.Outbound,
		string(t.Source), string(t.Category), string(t.Stage), t.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("append turn %s: %w", t.ID, err)
	}
	return nil
}

const selectTurn = `SELECT id, sender_id, channel, inbound, outbound, source, category, stage, created_at_unix FROM turns`

// Get retrieves a single turn by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Turn, error) {
	row := s.db.QueryRowContext(ctx, selectTurn+` WHERE id = ?`, id)
	t, err := scanTurn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get turn %s: %w", id, err)
	}
	return &t, nil
}

// List returns matching turns, newest first.
func (s *SQLiteStore) List(ctx context.Context, filter *Filter, limit int) ([]models.Turn, error) {
	var (
		where []string
		args  []any
	)
	if filter != nil {
		if filter.SenderID != nil {
			where = append(where, "sender_id = ?")
			args = append(args, *filter.SenderID)
		}
		if filter.Channel != nil {
			where = append(where, "channel = ?")
			args = append(args, string(*filter.Channel))
		}
		if filter.Since != nil {
			where = append(where, "created_at_unix >= ?")
			args = append(args, filter.Since.UnixNano())
		}
	}
	q := selectTurn
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at_unix DESC, id DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var out []models.Turn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	return out, nil
}

// Stats returns summary statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*models.TurnStats, error) {
	stats := newStats()
	var oldest, newest sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT channel || '/' || sender_id), MIN(created_at_unix), MAX(created_at_unix)
		FROM turns`).Scan(&stats.TotalTurns, &stats.Senders, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("turn stats: %w", err)
	}
	if oldest.Valid {
		t := time.Unix(0, oldest.Int64).UTC()
		stats.Oldest = &t
	}
	if newest.Valid {
		t := time.Unix(0, newest.Int64).UTC()
		stats.Newest = &t
	}

	groups := []struct {
		column string
		into   map[string]int64
	}{
		{"channel", stats.ByChannel},
		{"source", stats.BySource},
		{"category", stats.ByCategory},
	}
	for _, g := range groups {
		if err := s.countBy(ctx, g.column, g.into); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

// countBy fills into with per-value counts of column. column is one of a
// fixed set of identifiers, never user input.
func (s *SQLiteStore) countBy(ctx context.Context, column string, into map[string]int64) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM turns WHERE `+column+` != '' GROUP BY `+column)
	if err != nil {
		return fmt.Errorf("turn stats by %s: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("turn stats by %s: %w", column, err)
		}
		into[key] = n
	}
	return rows.Err()
}

// DeleteBefore removes turns created before cutoff.
func (s *SQLiteStore) DeleteBefore(ctx context.Context, cutoff time.Time, dryRun bool) (int, error) {
	if dryRun {
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM turns WHERE created_at_unix < ?`, cutoff.UnixNano()).Scan(&n); err != nil {
			return 0, fmt.Errorf("count expired turns: %w", err)
		}
		return n, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE created_at_unix < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete expired turns: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired turns: %w", err)
	}
	return int(n), nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTurn(r scanner) (models.Turn, error) {
	var (
		t                                models.Turn
		channel, source, category, stage string
		created                          int64
	)
	if err := r.Scan(&t.ID, &t.SenderID, &channel, &t.Inbound, &t.Outbound, &source, &category, &stage, &created); err != nil {
		return models.Turn{}, err
	}
	t.Channel = models.Channel(channel)
	t.Source = models.Source(source)
	t.Category = models.Category(category)
	t.Stage = models.Stage(stage)
	t.CreatedAt = time.Unix(0, created).UTC()
	return t, nil
}
