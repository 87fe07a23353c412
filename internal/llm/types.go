package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vettalabs/vetta-core/internal/config"
)

// Request describes a language model prompt.
type Request struct {
	SessionID   string
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float64
	TraceID     string
}

// Chunk represents streamed model output.
type Chunk struct {
	SessionID        string
	Content          string
	Partial          bool
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
	TraceID          string
}

// Generator defines a pluggable LLM backend.
type Generator interface {
	Generate(ctx context.Context, req Request, consumer func(Chunk) error) error
}

// ErrRateLimited marks backend throttling so callers can back off
// instead of treating the failure as terminal.
var ErrRateLimited = errors.New("llm backend rate limited")

// FromConfig builds the generator named by the evaluator config.
func FromConfig(cfg config.EvaluatorConfig) (Generator, error) {
	switch cfg.Mode {
	case "mock", "":
		return NewMockGenerator(), nil
	case "ollama":
		return NewOllamaGenerator(cfg.Endpoint, cfg.Model), nil
	case "exec":
		return NewExecGenerator(cfg.Command)
	}
	return nil, fmt.Errorf("unknown evaluator mode %q", cfg.Mode)
}

// Complete runs a request to completion and returns the accumulated
// output as one string.
func Complete(ctx context.Context, gen Generator, req Request) (string, error) {
	var sb strings.Builder
	err := gen.Generate(ctx, req, func(chunk Chunk) error {
		sb.WriteString(chunk.Content)
		return nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}
