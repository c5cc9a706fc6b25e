package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cl33/RealTimeTTS/internal/config"
	_ "modernc.org/sqlite"
)

// Event is one turn timeline entry. Only metadata is stored: neither the
// utterance nor the generated text is ever written.
type Event struct {
	ID        int64
	TurnID    string
	Type      string
	Segments  int
	Error     string
	LatencyMS int64
	CreatedAt time.Time
}

// Store keeps the turn timeline in SQLite. In ephemeral mode every method is
// a no-op.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("event store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("event store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS turns (
    turn_id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    segments INTEGER NOT NULL DEFAULT 0,
    started_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS turn_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    turn_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    segments INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    latency_ms INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    FOREIGN KEY(turn_id) REFERENCES turns(turn_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_turn_events_turn_created ON turn_events(turn_id, created_at);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init event store schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) enabled() bool {
	return s != nil && s.cfg.RetentionMode != "ephemeral" && s.db != nil
}

// Append records evt and keeps the turn summary row in step with it.
func (s *Store) Append(ctx context.Context, evt Event) error {
	if !s.enabled() {
		return nil
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.clock().UTC()
	}
	at := evt.CreatedAt.UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turns(turn_id, status, segments, started_at, updated_at)
		 VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(turn_id) DO UPDATE SET
		   status=excluded.status,
		   segments=MAX(turns.segments, excluded.segments),
		   updated_at=excluded.updated_at`,
		evt.TurnID, evt.Type, evt.Segments, at, at); err != nil {
		return fmt.Errorf("upsert turn: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turn_events(turn_id, event_type, segments, error, latency_ms, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		evt.TurnID, evt.Type, evt.Segments, evt.Error, evt.LatencyMS, at); err != nil {
		return fmt.Errorf("insert turn event: %w", err)
	}
	return tx.Commit()
}

// ListTurnEvents returns up to limit events for a turn, oldest first.
func (s *Store) ListTurnEvents(ctx context.Context, turnID string, limit int) ([]Event, error) {
	if !s.enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, turn_id, event_type, segments, COALESCE(error, ''), latency_ms, created_at
		 FROM turn_events WHERE turn_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`, turnID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var created int64
		if err := rows.Scan(&e.ID, &e.TurnID, &e.Type, &e.Segments, &e.Error, &e.LatencyMS, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = time.UnixMilli(created).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// TurnStatus returns the last recorded event type for a turn.
func (s *Store) TurnStatus(ctx context.Context, turnID string) (string, int, error) {
	if !s.enabled() {
		return "", 0, nil
	}
	var status string
	var segments int
	err := s.db.QueryRowContext(ctx,
		`SELECT status, segments FROM turns WHERE turn_id = ?`, turnID).Scan(&status, &segments)
	if err == sql.ErrNoRows {
		return "", 0, nil
	}
	return status, segments, err
}

// Prune applies retention_days and max_sessions. Session mode also clears
// everything from earlier runs.
func (s *Store) Prune(ctx context.Context) (err error) {
	if !s.enabled() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour).UnixMilli()
		if _, err = tx.ExecContext(ctx, `DELETE FROM turns WHERE started_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM turns WHERE turn_id IN (
			SELECT turn_id FROM turns ORDER BY started_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}
