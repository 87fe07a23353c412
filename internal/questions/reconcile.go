// Package questions decides which suggested questions the interviewer
// still needs to ask. The scoring backend's already-asked judgment lags
// by one evaluation cycle, so a local text heuristic promotes questions
// to asked the moment they appear in the transcript.
package questions

import (
	"strings"
	"unicode/utf8"

	"github.com/vettalabs/vetta-core/internal/config"
	"github.com/vettalabs/vetta-core/internal/eval"
)

// Params tunes the matching heuristic.
type Params struct {
	MaxPresented        int
	ShortQuestionRunes  int
	MinSignificantWords int
	MinWordFraction     float64
	StopWords           map[string]struct{}
}

// ParamsFromConfig builds matcher parameters, merging any extra stop
// words into the builtin set. maxPresented caps the output list.
func ParamsFromConfig(cfg config.QuestionsConfig, maxPresented int) Params {
	stop := make(map[string]struct{}, len(defaultStopWords)+len(cfg.ExtraStopWords))
	for _, w := range defaultStopWords {
		stop[w] = struct{}{}
	}
	for _, w := range cfg.ExtraStopWords {
		stop[normalize(w)] = struct{}{}
	}
	return Params{
		MaxPresented:        maxPresented,
		ShortQuestionRunes:  cfg.ShortQuestionRunes,
		MinSignificantWords: cfg.MinSignificantWords,
		MinWordFraction:     cfg.MinWordFraction,
		StopWords:           stop,
	}
}

var defaultStopWords = []string{
	"a", "an", "the", "and", "or", "but", "of", "to", "in", "on", "at",
	"for", "with", "about", "into", "over", "after", "before", "between",
	"is", "are", "was", "were", "be", "been", "being", "am",
	"do", "does", "did", "have", "has", "had", "can", "could", "would",
	"should", "will", "shall", "may", "might", "must",
	"i", "you", "he", "she", "it", "we", "they", "me", "him", "her",
	"them", "us", "my", "your", "his", "its", "our", "their",
	"this", "that", "these", "those", "there", "here",
	"what", "when", "where", "which", "who", "whom", "whose", "why", "how",
	"tell", "describe", "walk", "through", "give", "example", "time",
	"please", "like", "any", "some", "if", "not", "no", "so", "as", "by",
}

// Reconcile computes the presentation list. Candidate order is
// preserved; each question's asked flag is the OR of the backend's
// judgment, the session's memory in asked, and the text heuristic.
// Promotions are recorded back into asked, which only ever grows.
func Reconcile(params Params, candidates []eval.SuggestedQuestion, transcript string, asked map[string]bool) []eval.SuggestedQuestion {
	normTranscript := normalize(transcript)

	limit := len(candidates)
	if params.MaxPresented > 0 && limit > params.MaxPresented {
		limit = params.MaxPresented
	}

	out := make([]eval.SuggestedQuestion, 0, limit)
	for _, cand := range candidates[:limit] {
		key := normalize(cand.Question)
		wasAsked := cand.AlreadyAsked || asked[key] || params.matches(key, normTranscript)
		if wasAsked && asked != nil {
			asked[key] = true
		}
		cand.AlreadyAsked = wasAsked
		out = append(out, cand)
	}
	return out
}

// matches reports whether a normalized question appears in a normalized
// transcript. Short questions must match verbatim; longer ones match on
// significant-word overlap.
func (p Params) matches(question, transcript string) bool {
	if question == "" || transcript == "" {
		return false
	}
	if utf8.RuneCountInString(question) < p.ShortQuestionRunes {
		return strings.Contains(transcript, question)
	}

	var significant []string
	for _, word := range strings.Fields(question) {
		if _, stop := p.StopWords[word]; stop {
			continue
		}
		significant = append(significant, word)
	}
	if len(significant) == 0 {
		return strings.Contains(transcript, question)
	}

	hits := 0
	for _, word := range significant {
		if strings.Contains(transcript, word) {
			hits++
		}
	}

	need := p.MinSignificantWords
	if len(significant) < need {
		need = len(significant)
	}
	if hits < need {
		return false
	}
	return float64(hits) >= p.MinWordFraction*float64(len(significant))
}

// normalize lowercases and strips terminal punctuation so question and
// transcript compare on the same footing.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimRight(s, "?!.…")
}
