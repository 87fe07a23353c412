// Package observe provides a small typed observable: a current value plus
// push notification to subscribers. It backs the reactive fields the
// session exposes to its UI surface.
package observe

import "sync"

// Value holds a current value of type T and notifies subscribers on Set.
// Subscriber channels have capacity one and keep only the latest value;
// a slow subscriber never blocks a publisher.
type Value[T any] struct {
	mu   sync.Mutex
	cur  T
	subs map[int]chan T
	next int
}

func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		cur:  initial,
		subs: make(map[int]chan T),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur
}

// Set replaces the current value and pushes it to all subscribers.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cur = val
	for _, ch := range v.subs {
		select {
		case ch <- val:
		default:
			// drop the stale value, replace with the latest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- val:
			default:
			}
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel function must
// be called to release it.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.next
	v.next++
	ch := make(chan T, 1)
	v.subs[id] = ch
	cancel := func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.subs, id)
	}
	return ch, cancel
}
