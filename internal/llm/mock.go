package llm

import (
	"context"
	"fmt"
	"time"
)

type mockGenerator struct{}

// NewMockGenerator returns a backend-less generator for development.
// Output is deterministic in the prompt size and arrives in two chunks
// so consumers exercise their accumulation path.
func NewMockGenerator() Generator { return &mockGenerator{} }

func (m *mockGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Millisecond):
	}
	if err := consumer(Chunk{SessionID: req.SessionID, Content: "Mock assessment over ", Partial: true}); err != nil {
		return err
	}
	return consumer(Chunk{
		SessionID: req.SessionID,
		Content:   fmt.Sprintf("%d characters of interview material.", len(req.Prompt)),
		Latency:   5 * time.Millisecond,
	})
}
