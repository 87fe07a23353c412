// Package rubric defines the scoring categories an interview is graded
// against. Each role carries weighted categories plus sample questions
// used before the model has produced suggestions of its own.
package rubric

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Category struct {
	Name            string   `yaml:"name" json:"name"`
	WeightPct       int      `yaml:"weight_pct" json:"weight_pct"`
	SampleQuestions []string `yaml:"sample_questions" json:"sample_questions,omitempty"`
}

type Role struct {
	Name       string     `yaml:"name" json:"name"`
	Categories []Category `yaml:"categories" json:"categories"`
}

// Library holds every role rubric known to the runtime.
type Library struct {
	defaultRole string
	roles       map[string]Role
}

type libraryFile struct {
	Roles []Role `yaml:"roles"`
}

// Load reads a role library from a YAML file. Roles there replace the
// builtin role of the same name; unknown roles are added.
func Load(path, defaultRole string) (*Library, error) {
	lib := builtin(defaultRole)
	if path == "" {
		return lib, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rubric library: %w", err)
	}
	var file libraryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rubric library: %w", err)
	}

	for _, role := range file.Roles {
		if err := validateRole(role); err != nil {
			return nil, fmt.Errorf("rubric role %q: %w", role.Name, err)
		}
		lib.roles[normalizeRole(role.Name)] = role
	}
	if _, ok := lib.roles[lib.defaultRole]; !ok {
		return nil, fmt.Errorf("rubric library has no default role %q", defaultRole)
	}
	return lib, nil
}

func validateRole(role Role) error {
	if role.Name == "" {
		return fmt.Errorf("missing name")
	}
	if len(role.Categories) == 0 {
		return fmt.Errorf("no categories")
	}
	total := 0
	for _, cat := range role.Categories {
		if cat.Name == "" {
			return fmt.Errorf("category with empty name")
		}
		if cat.WeightPct <= 0 {
			return fmt.Errorf("category %q has non-positive weight", cat.Name)
		}
		total += cat.WeightPct
	}
	if total != 100 {
		return fmt.Errorf("category weights sum to %d, want 100", total)
	}
	return nil
}

// Lookup resolves a role name, falling back to the default role when
// the name is empty or unknown.
func (l *Library) Lookup(name string) Role {
	if role, ok := l.roles[normalizeRole(name)]; ok {
		return role
	}
	return l.roles[l.defaultRole]
}

// Roles lists the known role names sorted alphabetically.
func (l *Library) Roles() []string {
	names := make([]string, 0, len(l.roles))
	for name := range l.roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SampleQuestions flattens a role's sample questions, heaviest category
// first, so early suggestions lean toward what matters most.
func SampleQuestions(role Role, limit int) []string {
	cats := append([]Category(nil), role.Categories...)
	sort.SliceStable(cats, func(i, j int) bool {
		return cats[i].WeightPct > cats[j].WeightPct
	})

	var out []string
	for _, cat := range cats {
		out = append(out, cat.SampleQuestions...)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// CategoryNames returns the role's category names in declared order.
func CategoryNames(role Role) []string {
	names := make([]string, 0, len(role.Categories))
	for _, cat := range role.Categories {
		names = append(names, cat.Name)
	}
	return names
}

func normalizeRole(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func builtin(defaultRole string) *Library {
	if defaultRole == "" {
		defaultRole = "general"
	}
	lib := &Library{
		defaultRole: normalizeRole(defaultRole),
		roles:       make(map[string]Role),
	}
	lib.roles["general"] = Role{
		Name: "general",
		Categories: []Category{
			{
				Name:      "communication",
				WeightPct: 30,
				SampleQuestions: []string{
					"Tell me about a time you had to explain a complex topic to a non-expert.",
					"Describe a situation where you disagreed with a teammate. How did you resolve it?",
				},
			},
			{
				Name:      "problem solving",
				WeightPct: 30,
				SampleQuestions: []string{
					"Walk me through the hardest problem you solved in the last year.",
					"Tell me about a time you had to make a decision with incomplete information.",
				},
			},
			{
				Name:      "ownership",
				WeightPct: 25,
				SampleQuestions: []string{
					"Tell me about a project you drove end to end.",
					"Describe a time something went wrong on your watch. What did you do?",
				},
			},
			{
				Name:      "growth",
				WeightPct: 15,
				SampleQuestions: []string{
					"What is the most useful piece of critical feedback you have received?",
				},
			},
		},
	}
	return lib
}
