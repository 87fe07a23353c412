package runtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/vettalabs/vetta-core/internal/audio"
	"github.com/vettalabs/vetta-core/internal/eval"
	"github.com/vettalabs/vetta-core/internal/protocol"
	"github.com/vettalabs/vetta-core/internal/session"
	"github.com/vettalabs/vetta-core/internal/transcript"
)

// api is the UI-facing surface. Observable state is polled via GET
// /session; lifecycle operations are POSTs.
type api struct {
	manager *session.Manager
	log     *slog.Logger
}

func registerAPI(mux *http.ServeMux, manager *session.Manager, logger *slog.Logger) {
	a := &api{manager: manager, log: logger.With(slog.String("component", "api"))}
	mux.HandleFunc("/session", a.handleSession)
	mux.HandleFunc("/session/start", a.handleStart)
	mux.HandleFunc("/session/end", a.handleEnd)
	mux.HandleFunc("/session/retry", a.handleRetry)
	mux.HandleFunc("/session/recovery", a.handleRecovery)
	mux.HandleFunc("/session/recovery/resume", a.handleResume)
	mux.HandleFunc("/session/recovery/discard", a.handleDiscard)
}

type sessionView struct {
	SessionID  string                   `json:"session_id,omitempty"`
	Phase      session.Phase            `json:"phase"`
	Role       string                   `json:"role,omitempty"`
	Recipient  string                   `json:"recipient,omitempty"`
	Transcript string                   `json:"transcript"`
	Turns      []transcript.Turn        `json:"turns"`
	Connection protocol.ConnectionEvent `json:"connection"`
	Partial    eval.PartialEvaluation   `json:"partial_evaluation"`
	Presented  []eval.SuggestedQuestion `json:"presented_questions"`
	Final      *eval.FinalEvaluation    `json:"final_evaluation"`
	Notice     string                   `json:"notice,omitempty"`
}

func (a *api) handleSession(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s := a.manager.Current()
	if s == nil {
		writeJSON(w, http.StatusOK, sessionView{Phase: session.PhaseIdle})
		return
	}
	writeJSON(w, http.StatusOK, sessionView{
		SessionID:  s.ID,
		Phase:      s.Phase.Get(),
		Role:       s.Role.Name,
		Recipient:  s.Recipient,
		Transcript: s.Transcript(),
		Turns:      s.Turns(),
		Connection: s.Connection.Get(),
		Partial:    s.Partial.Get(),
		Presented:  s.Presented.Get(),
		Final:      s.Final.Get(),
		Notice:     s.Notice.Get(),
	})
}

type startRequest struct {
	Mode           string `json:"mode"`
	Role           string `json:"role"`
	RecipientEmail string `json:"recipient_email"`
}

func (a *api) handleStart(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body startRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	mode := audio.Mode(body.Mode)
	if body.Mode == "" {
		mode = audio.ModeMic
	}
	if !mode.Valid() {
		http.Error(w, "unknown capture mode", http.StatusBadRequest)
		return
	}

	s, err := a.manager.StartCapture(mode, body.Role, body.RecipientEmail)
	if err != nil {
		a.log.Warn("failed to start session", slog.String("error", err.Error()))
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"session_id": s.ID,
		"role":       s.Role.Name,
	})
}

func (a *api) handleEnd(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := a.manager.EndInterview(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ending"})
}

func (a *api) handleRetry(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := a.manager.RetryFinalEvaluation(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "retrying"})
}

type recoveryView struct {
	Pending   bool      `json:"pending"`
	SessionID string    `json:"session_id,omitempty"`
	Role      string    `json:"role,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	Chars     int       `json:"transcript_chars,omitempty"`
}

func (a *api) handleRecovery(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	state, ok := a.manager.Recovery()
	if !ok {
		writeJSON(w, http.StatusOK, recoveryView{Pending: false})
		return
	}
	writeJSON(w, http.StatusOK, recoveryView{
		Pending:   true,
		SessionID: state.SessionID,
		Role:      state.Role,
		Recipient: state.RecipientEmail,
		CreatedAt: state.CreatedAt,
		Chars:     len(state.Transcript),
	})
}

func (a *api) handleResume(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s, err := a.manager.ResumeFromRecovery()
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"session_id": s.ID})
}

func (a *api) handleDiscard(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := a.manager.DiscardRecovery(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "discarded"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
