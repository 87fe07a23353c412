package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/vettalabs/vetta-core/internal/audio"
	"github.com/vettalabs/vetta-core/internal/bus"
	"github.com/vettalabs/vetta-core/internal/config"
	"github.com/vettalabs/vetta-core/internal/protocol"
	"github.com/vettalabs/vetta-core/internal/rubric"
	"github.com/vettalabs/vetta-core/internal/snapshot"
)

// Manager owns the single live session and the recovery offer. Turn and
// connection events from the bus are routed to whichever session is
// current; everything else is stale and dropped.
type Manager struct {
	cfg    config.Config
	bus    *bus.Client
	rubric *rubric.Library
	deps   Deps
	log    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	subs   []*nats.Subscription
	wg     sync.WaitGroup

	mu      sync.Mutex
	current *Session
	pending *snapshot.State
	ready   bool
}

func NewManager(parent context.Context, cfg config.Config, busClient *bus.Client, lib *rubric.Library, deps Deps) *Manager {
	ctx, cancel := context.WithCancel(parent)
	return &Manager{
		cfg:    cfg,
		bus:    busClient,
		rubric: lib,
		deps:   deps,
		log:    deps.Log.With(slog.String("component", "session-manager")),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to transcript events and checks for a pending
// recovery snapshot from a previous run.
func (m *Manager) Start() error {
	turnSub, err := m.bus.Conn().Subscribe(protocol.SubjectTranscriptTurn, m.handleTurn)
	if err != nil {
		return fmt.Errorf("subscribe transcript turns: %w", err)
	}
	m.subs = append(m.subs, turnSub)

	connSub, err := m.bus.Conn().Subscribe(protocol.SubjectConnectionState, m.handleConnection)
	if err != nil {
		return fmt.Errorf("subscribe connection state: %w", err)
	}
	m.subs = append(m.subs, connSub)

	if m.deps.Snapshots != nil {
		state, ok, err := m.deps.Snapshots.Load(m.ctx)
		if err != nil {
			m.log.Warn("failed to load recovery snapshot", slogError(err))
		} else if ok {
			m.mu.Lock()
			m.pending = &state
			m.mu.Unlock()
			m.log.Info("recovery snapshot pending",
				slog.String("session_id", state.SessionID),
				slog.Time("created_at", state.CreatedAt))
		}
	}

	m.mu.Lock()
	m.ready = true
	m.mu.Unlock()
	return nil
}

func (m *Manager) Close() {
	m.cancel()
	for _, sub := range m.subs {
		_ = sub.Drain()
	}
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()
	if current != nil {
		current.close()
	}
	m.wg.Wait()
}

func (m *Manager) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// Current returns the session in progress, if any.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// StartCapture begins a new interview session. Only one session may be
// live or ending at a time.
func (m *Manager) StartCapture(mode audio.Mode, roleName, recipient string) (*Session, error) {
	role := m.rubric.Lookup(roleName)

	m.mu.Lock()
	if m.current != nil {
		phase := m.current.Phase.Get()
		if phase == PhaseLive || phase == PhaseEnding {
			m.mu.Unlock()
			return nil, fmt.Errorf("a session is already %s", phase)
		}
		m.current.close()
	}
	s := newSession(m.ctx, uuid.NewString(), role, recipient, m.cfg, m.deps)
	m.current = s
	m.mu.Unlock()

	m.forwardPhase(s)
	if err := s.start(mode); err != nil {
		m.mu.Lock()
		if m.current == s {
			m.current = nil
		}
		m.mu.Unlock()
		return nil, err
	}
	return s, nil
}

// EndInterview signals end-of-interview on the current session.
func (m *Manager) EndInterview() error {
	s := m.Current()
	if s == nil {
		return fmt.Errorf("no session in progress")
	}
	return s.EndInterview()
}

// RetryFinalEvaluation retries a failed final evaluation.
func (m *Manager) RetryFinalEvaluation() error {
	s := m.Current()
	if s == nil {
		return fmt.Errorf("no session in progress")
	}
	return s.RetryFinalEvaluation()
}

// Recovery returns the pending snapshot offer, if any.
func (m *Manager) Recovery() (snapshot.State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return snapshot.State{}, false
	}
	return *m.pending, true
}

// ResumeFromRecovery rebuilds a session from the pending snapshot and
// re-enters the pipeline at the final-evaluation step.
func (m *Manager) ResumeFromRecovery() (*Session, error) {
	m.mu.Lock()
	state := m.pending
	if state == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("no recovery snapshot pending")
	}
	if m.current != nil {
		phase := m.current.Phase.Get()
		if phase == PhaseLive || phase == PhaseEnding {
			m.mu.Unlock()
			return nil, fmt.Errorf("a session is already %s", phase)
		}
		m.current.close()
	}
	m.pending = nil

	role := m.rubric.Lookup(state.Role)
	s := newSession(m.ctx, state.SessionID, role, state.RecipientEmail, m.cfg, m.deps)
	s.agg.Restore(state.Turns)
	s.ended.Store(true)
	m.current = s
	m.mu.Unlock()

	m.forwardPhase(s)
	s.Phase.Set(PhaseEnding)
	s.launchFinal()
	m.log.Info("resumed session from recovery snapshot", slog.String("session_id", s.ID))
	return s, nil
}

// DiscardRecovery drops the pending snapshot unread.
func (m *Manager) DiscardRecovery() error {
	m.mu.Lock()
	m.pending = nil
	m.mu.Unlock()
	if m.deps.Snapshots == nil {
		return nil
	}
	return m.deps.Snapshots.Discard(m.ctx)
}

func (m *Manager) handleTurn(msg *nats.Msg) {
	var update protocol.TurnUpdate
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		m.log.Warn("failed to decode turn update", slogError(err))
		return
	}
	if s := m.Current(); s != nil {
		s.ApplyTurn(update)
	}
}

func (m *Manager) handleConnection(msg *nats.Msg) {
	var evt protocol.ConnectionEvent
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		m.log.Warn("failed to decode connection event", slogError(err))
		return
	}
	if s := m.Current(); s != nil {
		s.ApplyConnection(evt)
	}
}

// forwardPhase republishes a session's phase transitions on the bus.
func (m *Manager) forwardPhase(s *Session) {
	ch, cancelSub := s.Phase.Subscribe()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancelSub()
		for {
			select {
			case <-m.ctx.Done():
				return
			case <-s.ctx.Done():
				return
			case phase := <-ch:
				evt := protocol.PhaseEvent{
					SessionID: s.ID,
					Phase:     string(phase),
					Timestamp: time.Now().UTC(),
				}
				data, err := json.Marshal(evt)
				if err != nil {
					continue
				}
				if err := m.bus.Conn().Publish(protocol.SubjectSessionPhase, data); err != nil {
					m.log.Debug("failed to publish phase event", slogError(err))
				}
				if phase.Terminal() {
					return
				}
			}
		}
	}()
}
