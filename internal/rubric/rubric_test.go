package rubric

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadBuiltinOnly(t *testing.T) {
	lib, err := Load("", "general")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	role := lib.Lookup("general")
	total := 0
	for _, cat := range role.Categories {
		total += cat.WeightPct
	}
	if total != 100 {
		t.Fatalf("builtin weights sum to %d", total)
	}
}

func TestLoadFileAddsRoles(t *testing.T) {
	lib, err := Load(filepath.Join("testdata", "roles.yaml"), "general")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	role := lib.Lookup("Sales")
	if role.Name != "sales" {
		t.Fatalf("lookup should be case-insensitive, got %q", role.Name)
	}
	if len(role.Categories) != 3 {
		t.Fatalf("expected 3 categories, got %d", len(role.Categories))
	}
}

func TestLookupFallsBackToDefault(t *testing.T) {
	lib, err := Load("", "general")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	role := lib.Lookup("astronaut")
	if role.Name != "general" {
		t.Fatalf("unknown role should fall back to default, got %q", role.Name)
	}
	if lib.Lookup("").Name != "general" {
		t.Fatal("empty role should fall back to default")
	}
}

func TestSampleQuestionsWeightOrdered(t *testing.T) {
	lib, err := Load(filepath.Join("testdata", "roles.yaml"), "general")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	role := lib.Lookup("sales")

	qs := SampleQuestions(role, 2)
	if len(qs) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(qs))
	}
	if qs[0] != "Tell me about a time you uncovered a need the customer had not stated." {
		t.Fatalf("heaviest category should come first, got %q", qs[0])
	}
}

func TestLoadRejectsBadWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	body := "roles:\n  - name: broken\n    categories:\n      - name: only\n        weight_pct: 60\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, "general"); err == nil {
		t.Fatal("expected weight validation error")
	}
}
