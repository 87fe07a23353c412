// Package transcript reconstructs a totally-ordered transcript from the
// unordered stream of turn updates the speech backend emits. It is pure
// state transformation: no networking, no evaluation.
package transcript

import (
	"sort"
	"strings"
	"sync"
)

// Turn is one utterance segment at a fixed position. The backend may
// resend an order with revised text; the latest text wins.
type Turn struct {
	Order int    `json:"order"`
	Text  string `json:"text"`
}

// Aggregator maintains the order → text mapping and derives the
// transcript on demand. Safe for concurrent use.
type Aggregator struct {
	mu    sync.Mutex
	turns map[int]string
	ch    chan struct{}
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		turns: make(map[int]string),
		ch:    make(chan struct{}, 1),
	}
}

// Apply overwrites the text for the given order. Repeated identical
// updates are idempotent. Returns true when the stored state changed.
func (a *Aggregator) Apply(order int, text string) bool {
	a.mu.Lock()
	prev, ok := a.turns[order]
	if ok && prev == text {
		a.mu.Unlock()
		return false
	}
	a.turns[order] = text
	a.mu.Unlock()

	select {
	case a.ch <- struct{}{}:
	default:
	}
	return true
}

// Transcript returns all known turns sorted ascending by order, joined
// with a single space. An empty mapping yields an empty string.
func (a *Aggregator) Transcript() string {
	turns := a.Turns()
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		parts = append(parts, t.Text)
	}
	return strings.Join(parts, " ")
}

// Turns returns a sorted copy of the current turn set.
func (a *Aggregator) Turns() []Turn {
	a.mu.Lock()
	turns := make([]Turn, 0, len(a.turns))
	for order, text := range a.turns {
		turns = append(turns, Turn{Order: order, Text: text})
	}
	a.mu.Unlock()

	sort.Slice(turns, func(i, j int) bool { return turns[i].Order < turns[j].Order })
	return turns
}

// Len returns the current transcript length in bytes.
func (a *Aggregator) Len() int {
	return len(a.Transcript())
}

// Changes signals (coalesced) whenever the turn set changes.
func (a *Aggregator) Changes() <-chan struct{} {
	return a.ch
}

// Restore replaces the turn set wholesale, used when resuming a session
// from a recovery snapshot.
func (a *Aggregator) Restore(turns []Turn) {
	a.mu.Lock()
	a.turns = make(map[int]string, len(turns))
	for _, t := range turns {
		a.turns[t.Order] = t.Text
	}
	a.mu.Unlock()

	select {
	case a.ch <- struct{}{}:
	default:
	}
}
