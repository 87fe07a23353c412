package session

// Phase is the session lifecycle state. Failed is retryable back to
// Ending; Succeeded is terminal.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseLive      Phase = "live"
	PhaseEnding    Phase = "ending"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

func (p Phase) Terminal() bool {
	return p == PhaseSucceeded
}
