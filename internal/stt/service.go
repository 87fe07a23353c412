package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vettalabs/vetta-core/internal/bus"
	"github.com/vettalabs/vetta-core/internal/protocol"
)

// Service bridges the bus and the transcription backend. Audio frames
// arriving on the bus are forwarded over the live socket; turn updates
// coming back are published for the aggregator.
type Service struct {
	bus  *bus.Client
	dial Dialer
	log  *slog.Logger

	mu        sync.Mutex
	stream    Stream
	sessionID string
	ctx       context.Context
	cancel    context.CancelFunc
	sub       *nats.Subscription
	wg        sync.WaitGroup
	ready     bool
}

func NewService(parent context.Context, busClient *bus.Client, dial Dialer, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		bus:    busClient,
		dial:   dial,
		log:    logger.With(slog.String("component", "stt")),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Service) Start() error {
	subject := protocol.SubjectAudioFramePrefix + ".>"
	sub, err := s.bus.Conn().Subscribe(subject, s.handleFrame)
	if err != nil {
		return fmt.Errorf("subscribe audio frames: %w", err)
	}
	s.sub = sub
	s.ready = true
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.Disconnect("")
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return s.ready
}

// Connect opens the backend socket for a session and starts the reader.
// Only one session streams at a time; connecting replaces any prior link.
func (s *Service) Connect(ctx context.Context, sessionID string) error {
	s.Disconnect("")
	s.publishConnection(sessionID, "connecting", nil)

	stream, err := s.dial(ctx)
	if err != nil {
		s.publishConnection(sessionID, "errored", err)
		return fmt.Errorf("connect transcription backend: %w", err)
	}

	s.mu.Lock()
	s.stream = stream
	s.sessionID = sessionID
	s.mu.Unlock()

	s.publishConnection(sessionID, "connected", nil)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readLoop(stream, sessionID)
	}()
	return nil
}

// Disconnect asks the backend to finish, then closes the socket. An
// empty sessionID tears down whatever link is active.
func (s *Service) Disconnect(sessionID string) {
	s.mu.Lock()
	stream := s.stream
	active := s.sessionID
	if stream == nil || (sessionID != "" && sessionID != active) {
		s.mu.Unlock()
		return
	}
	s.stream = nil
	s.sessionID = ""
	s.mu.Unlock()

	termCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := stream.Terminate(termCtx); err != nil {
		s.log.Debug("terminate request failed", slogError(err))
	}
	cancel()
	_ = stream.Close()
}

func (s *Service) handleFrame(msg *nats.Msg) {
	var frame protocol.AudioFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		s.log.Warn("failed to decode audio frame", slogError(err))
		return
	}

	s.mu.Lock()
	stream := s.stream
	active := s.sessionID
	s.mu.Unlock()
	if stream == nil || frame.SessionID != active {
		return
	}

	if len(frame.PCM) > 0 {
		sendCtx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		err := stream.Send(sendCtx, frame.PCM)
		cancel()
		if err != nil {
			s.log.Warn("failed to forward audio frame",
				slog.String("session_id", frame.SessionID), slogError(err))
			return
		}
	}
	if frame.Final {
		s.Disconnect(frame.SessionID)
	}
}

// readLoop pumps backend messages until the socket closes. Revisions to
// an earlier turn arrive as repeats of its turn order and are published
// as-is; ordering is the aggregator's concern.
func (s *Service) readLoop(stream Stream, sessionID string) {
	for {
		msg, err := stream.Recv(s.ctx)
		if err != nil {
			s.streamEnded(stream, sessionID, err)
			return
		}
		switch msg.Type {
		case messageTypeTurn:
			s.publishTurn(sessionID, msg)
		case messageTypeTerminate:
			s.streamEnded(stream, sessionID, nil)
			return
		default:
			s.log.Debug("ignoring backend message", slog.String("type", msg.Type))
		}
	}
}

func (s *Service) streamEnded(stream Stream, sessionID string, err error) {
	s.mu.Lock()
	wasActive := s.stream == stream
	if wasActive {
		s.stream = nil
		s.sessionID = ""
	}
	s.mu.Unlock()

	if err != nil && wasActive && !errors.Is(err, context.Canceled) {
		s.publishConnection(sessionID, "errored", err)
		return
	}
	s.publishConnection(sessionID, "disconnected", nil)
}

func (s *Service) publishTurn(sessionID string, msg TurnMessage) {
	update := protocol.TurnUpdate{
		SessionID: sessionID,
		Order:     msg.TurnOrder,
		Text:      msg.Transcript,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(update)
	if err != nil {
		s.log.Warn("failed to marshal turn update", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectTranscriptTurn, data); err != nil {
		s.log.Warn("failed to publish turn update", slogError(err))
	}
}

func (s *Service) publishConnection(sessionID, state string, cause error) {
	evt := protocol.ConnectionEvent{
		SessionID: sessionID,
		State:     state,
		Timestamp: time.Now().UTC(),
	}
	if cause != nil {
		evt.Error = cause.Error()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectConnectionState, data); err != nil {
		s.log.Warn("failed to publish connection event", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
