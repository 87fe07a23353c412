// Package snapshot persists the state needed to finish a session after
// a crash. One snapshot exists at a time: it is written when the user
// ends the interview and deleted the moment the final evaluation lands.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/vettalabs/vetta-core/internal/config"
	"github.com/vettalabs/vetta-core/internal/transcript"
	_ "modernc.org/sqlite"
)

// State is the unit persisted for crash recovery.
type State struct {
	SessionID      string            `json:"session_id"`
	Transcript     string            `json:"transcript"`
	Turns          []transcript.Turn `json:"turns"`
	RecipientEmail string            `json:"recipient_email,omitempty"`
	Role           string            `json:"role,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Store keeps at most one recovery snapshot in SQLite.
type Store struct {
	db        *sql.DB
	retention time.Duration
	log       *slog.Logger
	clock     func() time.Time
}

const snapshotKey = "current"

// Open initializes the snapshot store according to config.
func Open(ctx context.Context, cfg config.RecoveryConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{
		db:        db,
		retention: time.Duration(cfg.RetentionHours) * time.Hour,
		log:       log,
		clock:     time.Now,
	}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS recovery_snapshots (
    key TEXT PRIMARY KEY,
    payload BLOB NOT NULL,
    created_at TIMESTAMP NOT NULL
);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes the snapshot, replacing any previous one.
func (s *Store) Save(ctx context.Context, state State) error {
	if state.CreatedAt.IsZero() {
		state.CreatedAt = s.clock().UTC()
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO recovery_snapshots(key, payload, created_at)
		 VALUES(?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET payload=excluded.payload, created_at=excluded.created_at`,
		snapshotKey, payload, state.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the pending snapshot if one exists and is younger than
// the retention window. An expired snapshot is deleted unread.
func (s *Store) Load(ctx context.Context) (State, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload, created_at FROM recovery_snapshots WHERE key = ?`, snapshotKey)

	var payload []byte
	var created string
	if err := row.Scan(&payload, &created); err != nil {
		if err == sql.ErrNoRows {
			return State{}, false, nil
		}
		return State{}, false, err
	}

	createdAt, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		s.log.Warn("discarding snapshot with unreadable timestamp", slog.String("error", err.Error()))
		return State{}, false, s.Discard(ctx)
	}
	if s.retention > 0 && s.clock().Sub(createdAt) > s.retention {
		s.log.Info("discarding expired recovery snapshot",
			slog.Time("created_at", createdAt))
		return State{}, false, s.Discard(ctx)
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		s.log.Warn("discarding unreadable snapshot", slog.String("error", err.Error()))
		return State{}, false, s.Discard(ctx)
	}
	return state, true, nil
}

// Discard removes the snapshot if present.
func (s *Store) Discard(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM recovery_snapshots WHERE key = ?`, snapshotKey)
	return err
}
