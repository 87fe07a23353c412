package eval

import (
	"fmt"
	"strings"

	"github.com/vettalabs/vetta-core/internal/rubric"
	"github.com/vettalabs/vetta-core/internal/transcript"
)

// TruncationMarker is prepended to a transcript whose head was dropped
// to fit the final-evaluation size bound. The marker always survives so
// the evaluation never mistakes a truncated transcript for a short one.
const TruncationMarker = "[earlier transcript omitted]"

// TruncateTranscript keeps the tail of a transcript within maxChars,
// prefixing the marker when anything was dropped.
func TruncateTranscript(transcript string, maxChars int) string {
	if maxChars <= 0 || len(transcript) <= maxChars {
		return transcript
	}
	keep := maxChars - len(TruncationMarker) - 1
	if keep < 0 {
		keep = 0
	}
	tail := transcript[len(transcript)-keep:]
	// avoid starting mid-word
	if idx := strings.IndexByte(tail, ' '); idx > 0 && idx < len(tail)-1 {
		tail = tail[idx+1:]
	}
	return TruncationMarker + " " + tail
}

// transcriptBody prefers the turn-structured layout when turns are
// available and falls back to the flat transcript otherwise.
func transcriptBody(flat string, turns []transcript.Turn) string {
	if len(turns) == 0 {
		return flat
	}
	var sb strings.Builder
	for i, t := range turns {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "[%d] %s", t.Order, t.Text)
	}
	return sb.String()
}

const partialSystem = `You are an interview evaluator. You observe a live interview transcript and score the candidate so far. Respond with a single JSON object and nothing else.`

const finalSystem = `You are an interview evaluator. The interview has ended. Score the candidate against the rubric and produce a final verdict. Respond with a single JSON object and nothing else.`

func partialPrompt(role rubric.Role, transcript string) string {
	var sb strings.Builder
	sb.WriteString("Role: ")
	sb.WriteString(role.Name)
	sb.WriteString("\n\nRubric categories (weight %):\n")
	writeRubric(&sb, role)
	sb.WriteString("\nTranscript so far:\n")
	sb.WriteString(transcript)
	sb.WriteString(`

Return JSON with this shape:
{
  "scores": [{"category": "...", "score": 0-100, "justification": "..."}],
  "suggested_questions": [{"question": "...", "already_asked": false, "category": "...", "weight_pct": 0-100}],
  "red_flags": ["..."],
  "strengths": ["..."],
  "impression": "one sentence"
}
Order suggested_questions by how much asking them would improve rubric coverage, best first. Mark already_asked true only if the interviewer has substantially asked that question.`)
	return sb.String()
}

func finalPrompt(role rubric.Role, transcript string) string {
	var sb strings.Builder
	sb.WriteString("Role: ")
	sb.WriteString(role.Name)
	sb.WriteString("\n\nRubric categories (weight %):\n")
	writeRubric(&sb, role)
	sb.WriteString("\nComplete transcript:\n")
	sb.WriteString(transcript)
	sb.WriteString(`

Return JSON with this shape:
{
  "category_scores": [{"category": "...", "score": 0-100, "justification": "..."}],
  "weighted_overall_score": 0-100,
  "hire_recommendation": "StrongHire" | "HireWithCaveats" | "NoHire",
  "summary": "...",
  "strengths": ["..."],
  "weaknesses": ["..."],
  "red_flags": ["..."],
  "questions_coverage": {"asked": ["..."], "missed": ["..."]}
}`)
	return sb.String()
}

func writeRubric(sb *strings.Builder, role rubric.Role) {
	for _, cat := range role.Categories {
		fmt.Fprintf(sb, "- %s (%d%%)\n", cat.Name, cat.WeightPct)
	}
}
