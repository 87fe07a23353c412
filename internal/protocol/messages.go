package protocol

import "time"

// AudioFrame carries fixed-duration PCM blocks from the capture pipeline
// to the transcription service.
type AudioFrame struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// TurnUpdate is one correction-and-append unit from the speech backend.
// A given Order may be resent with revised Text and replaces the prior
// value for that order.
type TurnUpdate struct {
	SessionID string    `json:"session_id"`
	Order     int       `json:"order"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ConnectionEvent reports transcription link state changes.
type ConnectionEvent struct {
	SessionID string    `json:"session_id"`
	State     string    `json:"state"` // connecting, connected, disconnected, errored
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PhaseEvent announces session state machine transitions.
type PhaseEvent struct {
	SessionID string    `json:"session_id"`
	Phase     string    `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectAudioFramePrefix = "audio.frame"
	SubjectTranscriptTurn   = "transcript.turn"
	SubjectConnectionState  = "transcript.connection"
	SubjectSessionPhase     = "session.phase"
)
