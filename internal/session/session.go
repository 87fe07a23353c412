// Package session owns the interview lifecycle: it wires capture,
// transcription, scheduling, reconciliation, and the final evaluation
// into one state machine and exposes its state as observables.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vettalabs/vetta-core/internal/audio"
	"github.com/vettalabs/vetta-core/internal/config"
	"github.com/vettalabs/vetta-core/internal/eval"
	"github.com/vettalabs/vetta-core/internal/llm"
	"github.com/vettalabs/vetta-core/internal/observe"
	"github.com/vettalabs/vetta-core/internal/protocol"
	"github.com/vettalabs/vetta-core/internal/questions"
	"github.com/vettalabs/vetta-core/internal/report"
	"github.com/vettalabs/vetta-core/internal/rubric"
	"github.com/vettalabs/vetta-core/internal/scheduler"
	"github.com/vettalabs/vetta-core/internal/snapshot"
	"github.com/vettalabs/vetta-core/internal/transcript"
)

// CaptureController starts and stops the audio pipeline.
type CaptureController interface {
	Start(sessionID string, mode audio.Mode) error
	Stop()
}

// TranscriberLink opens and closes the transcription socket.
type TranscriberLink interface {
	Connect(ctx context.Context, sessionID string) error
	Disconnect(sessionID string)
}

// Deps are the collaborators a session needs. Snapshots may be nil in
// tests; everything else is required.
type Deps struct {
	Capture   CaptureController
	Stt       TranscriberLink
	Scorer    eval.Scorer
	Deliverer report.Deliverer
	Snapshots *snapshot.Store
	Metrics   *Metrics
	Log       *slog.Logger
}

// Session is one interview from start to final report.
type Session struct {
	ID        string
	Role      rubric.Role
	Recipient string

	cfg    config.Config
	params questions.Params
	deps   Deps
	agg    *transcript.Aggregator
	sched  *scheduler.Scheduler
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger

	mu         sync.Mutex
	asked      map[string]bool
	candidates []eval.SuggestedQuestion
	ended      atomic.Bool

	finalInFlight atomic.Bool
	finalWG       sync.WaitGroup

	// observables consumed by the API layer
	Phase      *observe.Value[Phase]
	Connection *observe.Value[protocol.ConnectionEvent]
	Partial    *observe.Value[eval.PartialEvaluation]
	Presented  *observe.Value[[]eval.SuggestedQuestion]
	Final      *observe.Value[*eval.FinalEvaluation]
	Notice     *observe.Value[string]
}

func newSession(parent context.Context, id string, role rubric.Role, recipient string, cfg config.Config, deps Deps) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		ID:        id,
		Role:      role,
		Recipient: recipient,
		cfg:       cfg,
		params:    questions.ParamsFromConfig(cfg.Questions, cfg.Scheduler.MaxQuestions),
		deps:      deps,
		agg:       transcript.NewAggregator(),
		ctx:       ctx,
		cancel:    cancel,
		log:       deps.Log.With(slog.String("component", "session"), slog.String("session_id", id)),
		asked:     make(map[string]bool),

		Phase:      observe.NewValue(PhaseIdle),
		Connection: observe.NewValue(protocol.ConnectionEvent{SessionID: id, State: "disconnected"}),
		Partial:    observe.NewValue(eval.PartialEvaluation{}),
		Presented:  observe.NewValue[[]eval.SuggestedQuestion](nil),
		Final:      observe.NewValue[*eval.FinalEvaluation](nil),
		Notice:     observe.NewValue(""),
	}

	// before the first partial lands, the rubric's own questions are
	// the candidate list, already weight-descending
	for _, q := range rubric.SampleQuestions(role, cfg.Scheduler.MaxQuestions) {
		s.candidates = append(s.candidates, eval.SuggestedQuestion{Question: q})
	}
	s.reconcileLocked()
	return s
}

// start brings the session live: capture, transcription link, and the
// evaluation scheduler.
func (s *Session) start(mode audio.Mode) error {
	if err := s.deps.Capture.Start(s.ID, mode); err != nil {
		s.cancel()
		return fmt.Errorf("start capture: %w", err)
	}
	if err := s.deps.Stt.Connect(s.ctx, s.ID); err != nil {
		s.deps.Capture.Stop()
		s.cancel()
		return fmt.Errorf("connect transcription: %w", err)
	}

	s.sched = scheduler.New(s.ctx, s.cfg.Scheduler, s.agg.Transcript, s.agg.Changes(), s.runPartial, s.log)
	s.sched.Start()
	s.Phase.Set(PhaseLive)
	s.deps.Metrics.SessionStarted(s.ctx)
	s.log.Info("session live", slog.String("mode", string(mode)), slog.String("role", s.Role.Name))
	return nil
}

// ApplyTurn merges one turn update. Updates for other sessions or
// arriving after the interview ended are stale and dropped.
func (s *Session) ApplyTurn(update protocol.TurnUpdate) {
	if update.SessionID != s.ID || s.ended.Load() {
		return
	}
	if !s.agg.Apply(update.Order, update.Text) {
		return
	}
	s.deps.Metrics.TurnApplied(s.ctx)

	// promote already-asked immediately instead of waiting for the
	// next evaluation cycle
	s.mu.Lock()
	s.reconcileLocked()
	s.mu.Unlock()
}

// ApplyConnection records transcription link state for the UI.
func (s *Session) ApplyConnection(evt protocol.ConnectionEvent) {
	if evt.SessionID != s.ID {
		return
	}
	s.Connection.Set(evt)
}

// Transcript returns the current deterministic transcript.
func (s *Session) Transcript() string { return s.agg.Transcript() }

// Turns returns the ordered turn list behind the transcript.
func (s *Session) Turns() []transcript.Turn { return s.agg.Turns() }

// runPartial is the scheduler's work function: one scoring pass merged
// into live state.
func (s *Session) runPartial(ctx context.Context, snapshotText string) {
	result, err := s.deps.Scorer.EvaluatePartial(ctx, snapshotText, s.Role)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.deps.Metrics.PartialEvaluation(s.ctx, false)
		s.notify(partialFailureNotice(err))
		s.log.Warn("partial evaluation failed", slogError(err))
		return
	}
	if s.ended.Load() {
		// the interview ended while this was in flight; the final
		// evaluation owns state from here on
		return
	}
	s.deps.Metrics.PartialEvaluation(s.ctx, true)

	s.mu.Lock()
	s.candidates = result.SuggestedQuestions
	if max := s.cfg.Scheduler.MaxQuestions; max > 0 && len(s.candidates) > max {
		s.candidates = s.candidates[:max]
	}
	s.reconcileLocked()
	s.mu.Unlock()

	s.Partial.Set(result)
	s.notify("")
}

func partialFailureNotice(err error) string {
	if errors.Is(err, llm.ErrRateLimited) {
		return "evaluation backend is rate limiting; keeping previous scores"
	}
	return "partial evaluation failed; keeping previous scores"
}

// reconcileLocked recomputes the presented list. Callers hold s.mu.
func (s *Session) reconcileLocked() {
	presented := questions.Reconcile(s.params, s.candidates, s.agg.Transcript(), s.asked)
	s.Presented.Set(presented)
}

// EndInterview stops capture and scheduling, snapshots state, and
// launches the final evaluation.
func (s *Session) EndInterview() error {
	if !s.ended.CompareAndSwap(false, true) {
		return fmt.Errorf("interview already ended")
	}
	s.Phase.Set(PhaseEnding)

	if s.sched != nil {
		s.sched.Stop()
	}
	s.deps.Capture.Stop()
	s.deps.Stt.Disconnect(s.ID)

	if s.deps.Snapshots != nil {
		state := snapshot.State{
			SessionID:      s.ID,
			Transcript:     s.agg.Transcript(),
			Turns:          s.agg.Turns(),
			RecipientEmail: s.Recipient,
			Role:           s.Role.Name,
		}
		if err := s.deps.Snapshots.Save(s.ctx, state); err != nil {
			// recovery is degraded but the evaluation itself proceeds
			s.log.Warn("failed to persist recovery snapshot", slogError(err))
		}
	}

	s.launchFinal()
	return nil
}

// RetryFinalEvaluation re-issues the final evaluation after a failure.
func (s *Session) RetryFinalEvaluation() error {
	if s.Phase.Get() != PhaseFailed {
		return fmt.Errorf("nothing to retry in phase %q", s.Phase.Get())
	}
	if s.finalInFlight.Load() {
		return fmt.Errorf("final evaluation already in flight")
	}
	s.Phase.Set(PhaseEnding)
	s.launchFinal()
	return nil
}

func (s *Session) launchFinal() {
	if !s.finalInFlight.CompareAndSwap(false, true) {
		return
	}
	s.finalWG.Add(1)
	go func() {
		defer s.finalWG.Done()
		defer s.finalInFlight.Store(false)
		s.runFinal()
	}()
}

func (s *Session) runFinal() {
	result, err := s.deps.Scorer.EvaluateFinal(s.ctx, s.agg.Transcript(), s.agg.Turns(), s.Role)
	if err != nil {
		s.deps.Metrics.FinalEvaluation(s.ctx, false)
		s.Phase.Set(PhaseFailed)
		s.notify(finalFailureNotice(err))
		s.log.Error("final evaluation failed", slogError(err))
		return
	}
	s.deps.Metrics.FinalEvaluation(s.ctx, true)

	if s.deps.Snapshots != nil {
		if err := s.deps.Snapshots.Discard(s.ctx); err != nil {
			s.log.Warn("failed to discard recovery snapshot", slogError(err))
		}
	}

	s.Final.Set(&result)
	s.Phase.Set(PhaseSucceeded)
	s.notify("")
	s.log.Info("final evaluation complete",
		slog.Float64("overall_score", result.WeightedOverallScore),
		slog.String("recommendation", string(result.HireRecommendation)))

	if s.Recipient != "" {
		s.deliverReport(result)
	}
}

func finalFailureNotice(err error) string {
	switch {
	case errors.Is(err, llm.ErrRateLimited):
		return "final evaluation rate limited; retry when the backend recovers"
	case errors.Is(err, eval.ErrMalformedResponse):
		return "final evaluation returned an unreadable result; retry available"
	default:
		return "final evaluation failed; retry available"
	}
}

// deliverReport sends the report as a side effect. Failure is a warning
// on an otherwise successful evaluation, never a phase change.
func (s *Session) deliverReport(result eval.FinalEvaluation) {
	rep := report.Report{
		SessionID:  s.ID,
		Recipient:  s.Recipient,
		Role:       s.Role.Name,
		Evaluation: result,
		Transcript: s.agg.Transcript(),
		CreatedAt:  time.Now().UTC(),
	}
	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), 30*time.Second)
	defer cancel()

	if err := s.deps.Deliverer.Deliver(deliverCtx, rep); err != nil {
		s.deps.Metrics.ReportDelivered(s.ctx, false)
		s.notify("evaluation succeeded but report delivery failed: " + err.Error())
		s.log.Warn("report delivery failed", slogError(err))
		return
	}
	s.deps.Metrics.ReportDelivered(s.ctx, true)
	s.log.Info("report delivered", slog.String("recipient", s.Recipient))
}

// close tears the session down without waiting for a final evaluation.
func (s *Session) close() {
	s.cancel()
	s.finalWG.Wait()
}

func (s *Session) notify(msg string) {
	s.Notice.Set(msg)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
