package questions

import (
	"fmt"
	"testing"

	"github.com/vettalabs/vetta-core/internal/config"
	"github.com/vettalabs/vetta-core/internal/eval"
)

func testParams() Params {
	return ParamsFromConfig(config.QuestionsConfig{
		ShortQuestionRunes:  20,
		MinSignificantWords: 3,
		MinWordFraction:     0.35,
	}, 10)
}

func TestReconcilePromotesOnSignificantWordOverlap(t *testing.T) {
	candidates := []eval.SuggestedQuestion{
		{Question: "Tell me about a time you missed a quota."},
		{Question: "Describe a deal you should have walked away from earlier."},
	}
	transcript := "So, last quarter I actually missed my quota by about fifteen percent, and here is what happened."

	asked := map[string]bool{}
	out := Reconcile(testParams(), candidates, transcript, asked)

	if !out[0].AlreadyAsked {
		t.Fatal("quota question words appear in transcript, should be promoted")
	}
	if out[1].AlreadyAsked {
		t.Fatal("unrelated question must stay unasked")
	}
}

func TestReconcileShortQuestionNeedsVerbatimMatch(t *testing.T) {
	candidates := []eval.SuggestedQuestion{{Question: "Why this role?"}}

	out := Reconcile(testParams(), candidates, "i asked why they wanted this particular role", map[string]bool{})
	if out[0].AlreadyAsked {
		t.Fatal("short question should only match verbatim")
	}

	out = Reconcile(testParams(), candidates, "then i said: why this role? and they paused", map[string]bool{})
	if !out[0].AlreadyAsked {
		t.Fatal("verbatim substring should promote a short question")
	}
}

func TestReconcileNeverDowngrades(t *testing.T) {
	params := testParams()
	asked := map[string]bool{}
	candidates := []eval.SuggestedQuestion{{Question: "Tell me about a time you missed a quota."}}

	transcript := "I missed my quota once."
	out := Reconcile(params, candidates, transcript, asked)
	if !out[0].AlreadyAsked {
		t.Fatal("expected promotion")
	}

	// next cycle the backend resends the question unflagged and the
	// matching words are no longer in the (hypothetically revised)
	// transcript; the session memory keeps it asked
	out = Reconcile(params, candidates, "completely different text", asked)
	if !out[0].AlreadyAsked {
		t.Fatal("asked must be monotonic within a session")
	}
}

func TestReconcileKeepsBackendFlag(t *testing.T) {
	candidates := []eval.SuggestedQuestion{{Question: "Anything at all?", AlreadyAsked: true}}
	out := Reconcile(testParams(), candidates, "", map[string]bool{})
	if !out[0].AlreadyAsked {
		t.Fatal("backend judgment must be preserved")
	}
}

func TestReconcileCapsAndPreservesOrder(t *testing.T) {
	var candidates []eval.SuggestedQuestion
	for i := 0; i < 15; i++ {
		candidates = append(candidates, eval.SuggestedQuestion{
			Question: fmt.Sprintf("Unique question number %d about topic %d?", i, i),
		})
	}

	out := Reconcile(testParams(), candidates, "", map[string]bool{})
	if len(out) != 10 {
		t.Fatalf("expected cap of 10, got %d", len(out))
	}
	for i, q := range out {
		if q.Question != candidates[i].Question {
			t.Fatalf("order must be preserved: slot %d has %q", i, q.Question)
		}
	}
}

func TestReconcileExtraStopWords(t *testing.T) {
	params := ParamsFromConfig(config.QuestionsConfig{
		ShortQuestionRunes:  20,
		MinSignificantWords: 3,
		MinWordFraction:     0.35,
		ExtraStopWords:      []string{"customer"},
	}, 10)

	candidates := []eval.SuggestedQuestion{
		{Question: "Tell me about a customer conversation that changed your roadmap thinking."},
	}
	// only "customer" appears; it is stopped out, so no promotion
	out := Reconcile(params, candidates, "the customer was happy", map[string]bool{})
	if out[0].AlreadyAsked {
		t.Fatal("stopped-out word alone must not promote")
	}
}
