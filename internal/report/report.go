// Package report formats and delivers the final evaluation to a
// recipient. Delivery is a side effect of a successful final
// evaluation; its failure never invalidates the evaluation.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vettalabs/vetta-core/internal/config"
	"github.com/vettalabs/vetta-core/internal/eval"
)

// Report bundles everything a delivery backend needs.
type Report struct {
	SessionID  string               `json:"session_id"`
	Recipient  string               `json:"recipient"`
	Role       string               `json:"role"`
	Evaluation eval.FinalEvaluation `json:"evaluation"`
	Transcript string               `json:"transcript"`
	Body       string               `json:"body"`
	CreatedAt  time.Time            `json:"created_at"`
}

// Deliverer sends a formatted report somewhere.
type Deliverer interface {
	Deliver(ctx context.Context, rep Report) error
}

// FromConfig builds the deliverer named by the report config.
func FromConfig(cfg config.ReportConfig) (Deliverer, error) {
	switch cfg.Mode {
	case "mock", "":
		return NewMockDeliverer(), nil
	case "http":
		return NewHTTPDeliverer(cfg), nil
	case "exec":
		return NewExecDeliverer(cfg)
	}
	return nil, fmt.Errorf("unknown report mode %q", cfg.Mode)
}

// Render produces the human-readable report body.
func Render(rep Report) string {
	ev := rep.Evaluation
	var sb strings.Builder

	fmt.Fprintf(&sb, "Interview evaluation (%s)\n", rep.Role)
	fmt.Fprintf(&sb, "Recommendation: %s\n", ev.HireRecommendation)
	fmt.Fprintf(&sb, "Overall score: %.1f/100\n\n", ev.WeightedOverallScore)
	fmt.Fprintf(&sb, "%s\n", ev.Summary)

	if len(ev.CategoryScores) > 0 {
		sb.WriteString("\nScores by category:\n")
		for _, sc := range ev.CategoryScores {
			fmt.Fprintf(&sb, "  %-24s %.0f", sc.Category, sc.Score)
			if sc.Justification != "" {
				fmt.Fprintf(&sb, "  (%s)", sc.Justification)
			}
			sb.WriteByte('\n')
		}
	}
	writeList(&sb, "Strengths", ev.Strengths)
	writeList(&sb, "Weaknesses", ev.Weaknesses)
	writeList(&sb, "Red flags", ev.RedFlags)
	writeList(&sb, "Questions not covered", ev.QuestionsCoverage.Missed)
	return sb.String()
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(sb, "  - %s\n", item)
	}
}
