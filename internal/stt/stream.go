// Package stt connects the audio pipeline to the speech-to-text backend:
// PCM frames go out over a streaming socket, turn updates come back.
package stt

import "context"

// TurnMessage is the inbound wire shape. The backend resends a
// turn_order with revised transcript text as its best guess evolves.
type TurnMessage struct {
	Type       string `json:"type"`
	TurnOrder  int    `json:"turn_order"`
	Transcript string `json:"transcript"`
}

const (
	messageTypeTurn      = "Turn"
	messageTypeTerminate = "Terminate"
)

// Stream is one live socket to the transcription backend.
type Stream interface {
	// Send writes one binary PCM frame.
	Send(ctx context.Context, pcm []byte) error
	// Recv blocks for the next backend message.
	Recv(ctx context.Context) (TurnMessage, error)
	// Terminate requests a graceful close.
	Terminate(ctx context.Context) error
	// Close tears the socket down immediately.
	Close() error
}

// Dialer opens a Stream; injected so tests can run without a backend.
type Dialer func(ctx context.Context) (Stream, error)
