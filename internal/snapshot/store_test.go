package snapshot

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/vettalabs/vetta-core/internal/config"
	"github.com/vettalabs/vetta-core/internal/transcript"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T, retentionHours int) *Store {
	t.Helper()
	cfg := config.RecoveryConfig{
		Path:           filepath.Join(t.TempDir(), "recovery.db"),
		RetentionHours: retentionHours,
	}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open snapshot store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openStore(t, 24)

	state := State{
		SessionID:      "session-123",
		Transcript:     "Tell me about a time you led a team. Sure, last year we shipped...",
		Turns:          []transcript.Turn{{Order: 0, Text: "Tell me about a time you led a team."}},
		RecipientEmail: "hiring@example.com",
		Role:           "sales",
	}
	if err := s.Save(context.Background(), state); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatal("expected pending snapshot")
	}
	if got.SessionID != state.SessionID || got.Transcript != state.Transcript {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Turns) != 1 || got.Turns[0].Text != state.Turns[0].Text {
		t.Fatalf("turns mismatch: %+v", got.Turns)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("created_at must be stamped on save")
	}
}

func TestLoadWithoutSnapshot(t *testing.T) {
	s := openStore(t, 24)
	_, ok, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatal("fresh store must report no snapshot")
	}
}

func TestSaveReplacesPrevious(t *testing.T) {
	s := openStore(t, 24)

	if err := s.Save(context.Background(), State{SessionID: "first", Transcript: "a"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(context.Background(), State{SessionID: "second", Transcript: "b"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := s.Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("load: %v ok=%v", err, ok)
	}
	if got.SessionID != "second" {
		t.Fatalf("later save must replace earlier, got %q", got.SessionID)
	}
}

func TestExpiredSnapshotDiscardedUnread(t *testing.T) {
	s := openStore(t, 24)

	s.clock = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }
	if err := s.Save(context.Background(), State{SessionID: "stale", Transcript: "old"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	s.clock = func() time.Time { return time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC) }
	_, ok, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatal("snapshot older than retention must not be offered")
	}

	// expiry deletes the row, not just hides it
	s.clock = func() time.Time { return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC) }
	_, ok, err = s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatal("expired snapshot must be gone even if the clock rewinds")
	}
}

func TestDiscardRemovesSnapshot(t *testing.T) {
	s := openStore(t, 24)

	if err := s.Save(context.Background(), State{SessionID: "x", Transcript: "t"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Discard(context.Background()); err != nil {
		t.Fatalf("discard: %v", err)
	}
	_, ok, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatal("discarded snapshot must not reappear")
	}
}
