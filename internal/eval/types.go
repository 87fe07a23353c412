// Package eval turns transcripts into structured interview scores via
// a pluggable language model backend.
package eval

import "errors"

// CategoryScore grades one rubric category.
type CategoryScore struct {
	Category      string  `json:"category"`
	Score         float64 `json:"score"`
	Justification string  `json:"justification,omitempty"`
}

// SuggestedQuestion is a backend-proposed follow-up. AlreadyAsked may be
// set by the backend; reconciliation can only promote it to true.
type SuggestedQuestion struct {
	Question     string `json:"question"`
	AlreadyAsked bool   `json:"already_asked"`
	Category     string `json:"category,omitempty"`
	WeightPct    int    `json:"weight_pct,omitempty"`
}

// PartialEvaluation is one in-progress scoring pass. Each pass replaces
// the previous one wholesale; nothing is merged across calls.
type PartialEvaluation struct {
	Scores             []CategoryScore     `json:"scores"`
	SuggestedQuestions []SuggestedQuestion `json:"suggested_questions"`
	RedFlags           []string            `json:"red_flags,omitempty"`
	Strengths          []string            `json:"strengths,omitempty"`
	Impression         string              `json:"impression,omitempty"`
}

// HireRecommendation is the terminal verdict.
type HireRecommendation string

const (
	StrongHire      HireRecommendation = "StrongHire"
	HireWithCaveats HireRecommendation = "HireWithCaveats"
	NoHire          HireRecommendation = "NoHire"
)

func (r HireRecommendation) Valid() bool {
	switch r {
	case StrongHire, HireWithCaveats, NoHire:
		return true
	}
	return false
}

// QuestionsCoverage splits the rubric's question space by whether it was
// exercised during the interview.
type QuestionsCoverage struct {
	Asked  []string `json:"asked"`
	Missed []string `json:"missed"`
}

// FinalEvaluation is the single authoritative scoring pass over the
// complete transcript.
type FinalEvaluation struct {
	CategoryScores       []CategoryScore    `json:"category_scores"`
	WeightedOverallScore float64            `json:"weighted_overall_score"`
	HireRecommendation   HireRecommendation `json:"hire_recommendation"`
	Summary              string             `json:"summary"`
	Strengths            []string           `json:"strengths,omitempty"`
	Weaknesses           []string           `json:"weaknesses,omitempty"`
	RedFlags             []string           `json:"red_flags,omitempty"`
	QuestionsCoverage    QuestionsCoverage  `json:"questions_coverage"`
}

// ErrMalformedResponse marks a backend reply that arrived but could not
// be parsed. Transport failures are never wrapped in it.
var ErrMalformedResponse = errors.New("malformed evaluation response")
