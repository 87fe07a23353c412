package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vettalabs/vetta-core/internal/audio"
	"github.com/vettalabs/vetta-core/internal/config"
	"github.com/vettalabs/vetta-core/internal/eval"
	"github.com/vettalabs/vetta-core/internal/protocol"
	"github.com/vettalabs/vetta-core/internal/report"
	"github.com/vettalabs/vetta-core/internal/rubric"
	"github.com/vettalabs/vetta-core/internal/snapshot"
	"github.com/vettalabs/vetta-core/internal/transcript"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeCapture struct {
	startErr error
	started  atomic.Int32
	stopped  atomic.Int32
}

func (f *fakeCapture) Start(string, audio.Mode) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started.Add(1)
	return nil
}
func (f *fakeCapture) Stop() { f.stopped.Add(1) }

type fakeLink struct {
	connectErr   error
	disconnected atomic.Int32
}

func (f *fakeLink) Connect(context.Context, string) error { return f.connectErr }
func (f *fakeLink) Disconnect(string)                     { f.disconnected.Add(1) }

type fakeScorer struct {
	mu          sync.Mutex
	partial     eval.PartialEvaluation
	partialErr  error
	final       eval.FinalEvaluation
	finalErr    error // consumed by the first final call
	finalBlock  chan struct{}
	finalCalls  atomic.Int32
	finalActive atomic.Int32
	maxActive   atomic.Int32
}

func (f *fakeScorer) EvaluatePartial(ctx context.Context, _ string, _ rubric.Role) (eval.PartialEvaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.partialErr != nil {
		return eval.PartialEvaluation{}, f.partialErr
	}
	return f.partial, nil
}

func (f *fakeScorer) EvaluateFinal(ctx context.Context, _ string, _ []transcript.Turn, _ rubric.Role) (eval.FinalEvaluation, error) {
	f.finalCalls.Add(1)
	active := f.finalActive.Add(1)
	defer f.finalActive.Add(-1)
	for {
		prev := f.maxActive.Load()
		if active <= prev || f.maxActive.CompareAndSwap(prev, active) {
			break
		}
	}
	if f.finalBlock != nil {
		select {
		case <-f.finalBlock:
		case <-ctx.Done():
			return eval.FinalEvaluation{}, ctx.Err()
		}
	}
	f.mu.Lock()
	err := f.finalErr
	f.finalErr = nil
	result := f.final
	f.mu.Unlock()
	if err != nil {
		return eval.FinalEvaluation{}, err
	}
	return result, nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Scheduler.IntervalMS = 3600000
	return cfg
}

func testRole(t *testing.T) rubric.Role {
	t.Helper()
	lib, err := rubric.Load("", "general")
	if err != nil {
		t.Fatalf("load rubric: %v", err)
	}
	return lib.Lookup("general")
}

func openSnapshots(t *testing.T) *snapshot.Store {
	t.Helper()
	store, err := snapshot.Open(context.Background(),
		config.RecoveryConfig{Path: filepath.Join(t.TempDir(), "recovery.db"), RetentionHours: 24},
		testLogger())
	if err != nil {
		t.Fatalf("open snapshot store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func buildSession(t *testing.T, scorer eval.Scorer, deliverer report.Deliverer, snapshots *snapshot.Store) *Session {
	t.Helper()
	deps := Deps{
		Capture:   &fakeCapture{},
		Stt:       &fakeLink{},
		Scorer:    scorer,
		Deliverer: deliverer,
		Snapshots: snapshots,
		Log:       testLogger(),
	}
	s := newSession(context.Background(), "session-1", testRole(t), "hiring@example.com", testConfig(), deps)
	t.Cleanup(s.close)
	return s
}

func waitPhase(t *testing.T, s *Session, want Phase) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if s.Phase.Get() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("phase = %q, want %q", s.Phase.Get(), want)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestEndInterviewSucceedsAndClearsSnapshot(t *testing.T) {
	scorer := &fakeScorer{final: eval.FinalEvaluation{
		HireRecommendation:   eval.StrongHire,
		WeightedOverallScore: 88,
		Summary:              "great interview",
	}}
	deliverer := report.NewMockDeliverer()
	snapshots := openSnapshots(t)
	s := buildSession(t, scorer, deliverer, snapshots)

	s.ApplyTurn(protocol.TurnUpdate{SessionID: "session-1", Order: 0, Text: "Tell me about yourself."})
	s.ApplyTurn(protocol.TurnUpdate{SessionID: "session-1", Order: 1, Text: "Sure, I spent five years in sales."})

	if err := s.EndInterview(); err != nil {
		t.Fatalf("end interview: %v", err)
	}
	waitPhase(t, s, PhaseSucceeded)

	final := s.Final.Get()
	if final == nil || final.HireRecommendation != eval.StrongHire {
		t.Fatalf("final evaluation not surfaced: %+v", final)
	}

	if _, ok, err := snapshots.Load(context.Background()); err != nil || ok {
		t.Fatalf("snapshot must be discarded on success (ok=%v err=%v)", ok, err)
	}

	delivered := deliverer.Delivered()
	if len(delivered) != 1 {
		t.Fatalf("expected one delivered report, got %d", len(delivered))
	}
	if delivered[0].Recipient != "hiring@example.com" {
		t.Fatalf("wrong recipient %q", delivered[0].Recipient)
	}
	if !strings.Contains(delivered[0].Transcript, "five years in sales") {
		t.Fatal("report must carry the transcript")
	}
}

func TestEndInterviewIsIdempotentlyRejected(t *testing.T) {
	scorer := &fakeScorer{finalBlock: make(chan struct{})}
	s := buildSession(t, scorer, report.NewMockDeliverer(), nil)

	if err := s.EndInterview(); err != nil {
		t.Fatalf("end interview: %v", err)
	}
	if err := s.EndInterview(); err == nil {
		t.Fatal("second end must be rejected")
	}
	close(scorer.finalBlock)
}

func TestFinalFailureKeepsSnapshotAndRetryWorks(t *testing.T) {
	scorer := &fakeScorer{final: eval.FinalEvaluation{
		HireRecommendation: eval.NoHire,
		Summary:            "thin answers",
	}}
	scorer.finalErr = errors.New("backend unavailable")
	snapshots := openSnapshots(t)
	s := buildSession(t, scorer, report.NewMockDeliverer(), snapshots)

	s.ApplyTurn(protocol.TurnUpdate{SessionID: "session-1", Order: 0, Text: "hello"})
	if err := s.EndInterview(); err != nil {
		t.Fatalf("end interview: %v", err)
	}
	waitPhase(t, s, PhaseFailed)

	if _, ok, err := snapshots.Load(context.Background()); err != nil || !ok {
		t.Fatalf("snapshot must survive a failed final (ok=%v err=%v)", ok, err)
	}
	if s.Final.Get() != nil {
		t.Fatal("no final evaluation may be surfaced on failure")
	}

	if err := s.RetryFinalEvaluation(); err != nil {
		t.Fatalf("retry: %v", err)
	}
	waitPhase(t, s, PhaseSucceeded)

	if _, ok, _ := snapshots.Load(context.Background()); ok {
		t.Fatal("snapshot must be discarded once the retry lands")
	}
	if n := scorer.finalCalls.Load(); n != 2 {
		t.Fatalf("expected 2 final calls, got %d", n)
	}
}

func TestRetryRejectedWhileFinalInFlight(t *testing.T) {
	scorer := &fakeScorer{finalBlock: make(chan struct{})}
	s := buildSession(t, scorer, report.NewMockDeliverer(), nil)

	if err := s.EndInterview(); err != nil {
		t.Fatalf("end interview: %v", err)
	}
	if err := s.RetryFinalEvaluation(); err == nil {
		t.Fatal("retry must be rejected while a final is outstanding")
	}
	close(scorer.finalBlock)
	waitPhase(t, s, PhaseSucceeded)

	if scorer.maxActive.Load() > 1 {
		t.Fatal("more than one final evaluation was in flight")
	}
	if n := scorer.finalCalls.Load(); n != 1 {
		t.Fatalf("expected exactly one final call, got %d", n)
	}
}

func TestDeliveryFailureIsWarningOnly(t *testing.T) {
	scorer := &fakeScorer{final: eval.FinalEvaluation{
		HireRecommendation: eval.HireWithCaveats,
		Summary:            "fine",
	}}
	deliverer := report.NewMockDeliverer()
	deliverer.Err = errors.New("smtp timeout")
	s := buildSession(t, scorer, deliverer, nil)

	if err := s.EndInterview(); err != nil {
		t.Fatalf("end interview: %v", err)
	}
	waitPhase(t, s, PhaseSucceeded)

	if s.Final.Get() == nil {
		t.Fatal("delivery failure must not invalidate the evaluation")
	}
	deadline := time.After(2 * time.Second)
	for !strings.Contains(s.Notice.Get(), "delivery failed") {
		select {
		case <-deadline:
			t.Fatalf("expected delivery warning, notice = %q", s.Notice.Get())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStaleUpdatesDroppedAfterEnd(t *testing.T) {
	scorer := &fakeScorer{
		final:   eval.FinalEvaluation{HireRecommendation: eval.NoHire, Summary: "x"},
		partial: eval.PartialEvaluation{Scores: []eval.CategoryScore{{Category: "communication", Score: 50}}},
	}
	s := buildSession(t, scorer, report.NewMockDeliverer(), nil)

	s.ApplyTurn(protocol.TurnUpdate{SessionID: "session-1", Order: 0, Text: "before end"})
	if err := s.EndInterview(); err != nil {
		t.Fatalf("end interview: %v", err)
	}
	waitPhase(t, s, PhaseSucceeded)

	s.ApplyTurn(protocol.TurnUpdate{SessionID: "session-1", Order: 1, Text: "late arrival"})
	if got := s.Transcript(); got != "before end" {
		t.Fatalf("late turn must be dropped, transcript = %q", got)
	}

	// a partial result resolving after end must not clobber state
	s.runPartial(context.Background(), "before end")
	if len(s.Partial.Get().Scores) != 0 {
		t.Fatal("stale partial result must be discarded after end")
	}
}

func TestTurnsForOtherSessionsIgnored(t *testing.T) {
	scorer := &fakeScorer{}
	s := buildSession(t, scorer, report.NewMockDeliverer(), nil)

	s.ApplyTurn(protocol.TurnUpdate{SessionID: "someone-else", Order: 0, Text: "noise"})
	if got := s.Transcript(); got != "" {
		t.Fatalf("foreign turn applied: %q", got)
	}
}

func TestPartialSuccessReplacesQuestionList(t *testing.T) {
	scorer := &fakeScorer{partial: eval.PartialEvaluation{
		Scores:     []eval.CategoryScore{{Category: "communication", Score: 70}},
		Impression: "warming up",
		SuggestedQuestions: []eval.SuggestedQuestion{
			{Question: "Tell me about a time you led a team through a failed launch."},
			{Question: "What would your last manager say about you?", AlreadyAsked: true},
		},
	}}
	s := buildSession(t, scorer, report.NewMockDeliverer(), nil)

	s.ApplyTurn(protocol.TurnUpdate{SessionID: "session-1", Order: 0, Text: "Welcome, thanks for joining."})
	s.runPartial(context.Background(), s.Transcript())

	if s.Partial.Get().Impression != "warming up" {
		t.Fatal("partial result must replace live state wholesale")
	}
	presented := s.Presented.Get()
	if len(presented) != 2 {
		t.Fatalf("expected 2 presented questions, got %d", len(presented))
	}
	if presented[0].AlreadyAsked {
		t.Fatal("unasked question must stay unasked")
	}
	if !presented[1].AlreadyAsked {
		t.Fatal("backend already-asked flag must be preserved")
	}
}

func TestPartialFailureLeavesStateVisible(t *testing.T) {
	scorer := &fakeScorer{partial: eval.PartialEvaluation{Impression: "good"}}
	s := buildSession(t, scorer, report.NewMockDeliverer(), nil)

	s.runPartial(context.Background(), "transcript")
	if s.Partial.Get().Impression != "good" {
		t.Fatal("first partial should land")
	}

	scorer.partialErr = errors.New("rate limited")
	s.runPartial(context.Background(), "transcript more")

	if s.Partial.Get().Impression != "good" {
		t.Fatal("failed partial must leave previous state unchanged")
	}
	if s.Notice.Get() == "" {
		t.Fatal("failure must surface a notice")
	}
}

func TestStartFailurePropagates(t *testing.T) {
	deps := Deps{
		Capture:   &fakeCapture{startErr: audio.ErrPermissionDenied},
		Stt:       &fakeLink{},
		Scorer:    &fakeScorer{},
		Deliverer: report.NewMockDeliverer(),
		Log:       testLogger(),
	}
	s := newSession(context.Background(), "session-1", testRole(t), "", testConfig(), deps)
	err := s.start(audio.ModeMic)
	if !errors.Is(err, audio.ErrPermissionDenied) {
		t.Fatalf("capture error kind must survive: %v", err)
	}
	if s.Phase.Get() != PhaseIdle {
		t.Fatal("failed start must not go live")
	}
}

func TestResumeFromSnapshotRunsFinal(t *testing.T) {
	scorer := &fakeScorer{final: eval.FinalEvaluation{
		HireRecommendation: eval.HireWithCaveats,
		Summary:            "resumed",
	}}
	snapshots := openSnapshots(t)
	s := buildSession(t, scorer, report.NewMockDeliverer(), snapshots)

	// the manager rebuilds a session this way after a crash: restore
	// turns, mark the interview over, go straight to the final step
	s.agg.Restore([]transcript.Turn{
		{Order: 0, Text: "Tell me about a time you led a team."},
		{Order: 1, Text: "Sure, last year we shipped a rewrite."},
	})
	s.ended.Store(true)
	s.Phase.Set(PhaseEnding)
	s.launchFinal()
	waitPhase(t, s, PhaseSucceeded)

	if s.Final.Get() == nil || s.Final.Get().Summary != "resumed" {
		t.Fatal("resumed session must surface the final evaluation")
	}
	if got := s.Transcript(); !strings.Contains(got, "shipped a rewrite") {
		t.Fatalf("restored transcript missing content: %q", got)
	}
}
