package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vettalabs/vetta-core/internal/config"
	"github.com/vettalabs/vetta-core/internal/llm"
	"github.com/vettalabs/vetta-core/internal/rubric"
	"github.com/vettalabs/vetta-core/internal/transcript"
)

// Scorer produces partial and final evaluations from transcripts. The
// final call additionally receives the ordered turn list so the backend
// sees turn boundaries the flat transcript loses.
type Scorer interface {
	EvaluatePartial(ctx context.Context, transcript string, role rubric.Role) (PartialEvaluation, error)
	EvaluateFinal(ctx context.Context, transcript string, turns []transcript.Turn, role rubric.Role) (FinalEvaluation, error)
}

// NewScorer builds the scorer named by the evaluator config. Every mode
// goes through a generator backend; mock keeps deterministic scoring on
// top of the mock generator.
func NewScorer(cfg config.EvaluatorConfig) (Scorer, error) {
	gen, err := llm.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Mode == "mock" || cfg.Mode == "" {
		return NewMockScorer(gen), nil
	}
	return NewLLMScorer(gen, cfg), nil
}

type llmScorer struct {
	gen llm.Generator
	cfg config.EvaluatorConfig
}

// NewLLMScorer wraps a generator with prompt construction and response
// parsing.
func NewLLMScorer(gen llm.Generator, cfg config.EvaluatorConfig) Scorer {
	return &llmScorer{gen: gen, cfg: cfg}
}

func (s *llmScorer) timeout() time.Duration {
	if s.cfg.RequestTimeout > 0 {
		return time.Duration(s.cfg.RequestTimeout) * time.Millisecond
	}
	return 45 * time.Second
}

func (s *llmScorer) complete(ctx context.Context, system, prompt string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	return llm.Complete(reqCtx, s.gen, llm.Request{
		Prompt:      prompt,
		System:      system,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	})
}

func (s *llmScorer) EvaluatePartial(ctx context.Context, transcript string, role rubric.Role) (PartialEvaluation, error) {
	raw, err := s.complete(ctx, partialSystem, partialPrompt(role, transcript))
	if err != nil {
		return PartialEvaluation{}, err
	}

	payload, err := ExtractJSON(raw)
	if err != nil {
		return PartialEvaluation{}, err
	}
	var result PartialEvaluation
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return PartialEvaluation{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return result, nil
}

func (s *llmScorer) EvaluateFinal(ctx context.Context, flat string, turns []transcript.Turn, role rubric.Role) (FinalEvaluation, error) {
	bounded := TruncateTranscript(transcriptBody(flat, turns), s.cfg.FinalMaxChars)
	raw, err := s.complete(ctx, finalSystem, finalPrompt(role, bounded))
	if err != nil {
		return FinalEvaluation{}, err
	}

	payload, err := ExtractJSON(raw)
	if err != nil {
		return FinalEvaluation{}, err
	}
	var result FinalEvaluation
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return FinalEvaluation{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if !result.HireRecommendation.Valid() {
		return FinalEvaluation{}, fmt.Errorf("%w: bad hire recommendation %q", ErrMalformedResponse, result.HireRecommendation)
	}
	if result.WeightedOverallScore == 0 {
		result.WeightedOverallScore = WeightedScore(result.CategoryScores, role)
	}
	return result, nil
}

// WeightedScore folds category scores with the rubric weights. Scores
// for categories the rubric does not name are ignored.
func WeightedScore(scores []CategoryScore, role rubric.Role) float64 {
	weights := make(map[string]int, len(role.Categories))
	for _, cat := range role.Categories {
		weights[cat.Name] = cat.WeightPct
	}

	var total float64
	var weightSum int
	for _, sc := range scores {
		w, ok := weights[sc.Category]
		if !ok {
			continue
		}
		total += sc.Score * float64(w)
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return total / float64(weightSum)
}
