package eval

import (
	"context"

	"github.com/vettalabs/vetta-core/internal/llm"
	"github.com/vettalabs/vetta-core/internal/rubric"
	"github.com/vettalabs/vetta-core/internal/transcript"
)

type mockScorer struct {
	gen llm.Generator
}

// NewMockScorer returns a deterministic scorer for development and
// tests. Narrative fields come from the generator backend; scores
// derive from transcript length so repeated calls over a growing
// transcript visibly change.
func NewMockScorer(gen llm.Generator) Scorer { return &mockScorer{gen: gen} }

func (m *mockScorer) EvaluatePartial(ctx context.Context, flat string, role rubric.Role) (PartialEvaluation, error) {
	impression, err := llm.Complete(ctx, m.gen, llm.Request{System: partialSystem, Prompt: flat})
	if err != nil {
		return PartialEvaluation{}, err
	}

	base := mockScore(flat)
	result := PartialEvaluation{
		Impression: impression,
		Strengths:  []string{"Answers are on topic."},
	}
	for i, cat := range role.Categories {
		result.Scores = append(result.Scores, CategoryScore{
			Category:      cat.Name,
			Score:         clampScore(base + float64(i)),
			Justification: "mock score",
		})
	}
	for _, q := range rubric.SampleQuestions(role, 10) {
		result.SuggestedQuestions = append(result.SuggestedQuestions, SuggestedQuestion{
			Question: q,
		})
	}
	return result, nil
}

func (m *mockScorer) EvaluateFinal(ctx context.Context, flat string, turns []transcript.Turn, role rubric.Role) (FinalEvaluation, error) {
	body := transcriptBody(flat, turns)
	summary, err := llm.Complete(ctx, m.gen, llm.Request{System: finalSystem, Prompt: body})
	if err != nil {
		return FinalEvaluation{}, err
	}

	base := mockScore(body)
	result := FinalEvaluation{
		HireRecommendation: HireWithCaveats,
		Summary:            summary,
		Strengths:          []string{"Consistent communication."},
		Weaknesses:         []string{"Limited depth in follow-ups."},
		QuestionsCoverage: QuestionsCoverage{
			Missed: rubric.SampleQuestions(role, 3),
		},
	}
	for i, cat := range role.Categories {
		result.CategoryScores = append(result.CategoryScores, CategoryScore{
			Category:      cat.Name,
			Score:         clampScore(base + float64(i)),
			Justification: "mock score",
		})
	}
	result.WeightedOverallScore = WeightedScore(result.CategoryScores, role)
	if result.WeightedOverallScore >= 85 {
		result.HireRecommendation = StrongHire
	} else if result.WeightedOverallScore < 50 {
		result.HireRecommendation = NoHire
	}
	return result, nil
}

func mockScore(transcript string) float64 {
	score := 50 + float64(len(transcript)%40)
	return clampScore(score)
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
