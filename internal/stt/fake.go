package stt

import (
	"context"
	"sync"
)

// FakeStream replays scripted turn messages. The runtime falls back to
// it when no backend is configured, and tests drive it directly.
type FakeStream struct {
	mu     sync.Mutex
	script []TurnMessage
	sent   [][]byte
	done   chan struct{}
	once   sync.Once
}

func NewFakeStream(script []TurnMessage) *FakeStream {
	return &FakeStream{script: script, done: make(chan struct{})}
}

// FakeDialer returns a dialer that hands out s.
func FakeDialer(s *FakeStream) Dialer {
	return func(context.Context) (Stream, error) { return s, nil }
}

func (f *FakeStream) Send(_ context.Context, pcm []byte) error {
	f.mu.Lock()
	f.sent = append(f.sent, append([]byte(nil), pcm...))
	f.mu.Unlock()
	return nil
}

// Recv pops the next scripted message; once the script is exhausted it
// blocks until Terminate or Close, then reports a terminate message.
func (f *FakeStream) Recv(ctx context.Context) (TurnMessage, error) {
	f.mu.Lock()
	if len(f.script) > 0 {
		msg := f.script[0]
		f.script = f.script[1:]
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()

	select {
	case <-f.done:
		return TurnMessage{Type: messageTypeTerminate}, nil
	case <-ctx.Done():
		return TurnMessage{}, ctx.Err()
	}
}

func (f *FakeStream) Terminate(context.Context) error {
	f.once.Do(func() { close(f.done) })
	return nil
}

func (f *FakeStream) Close() error {
	f.once.Do(func() { close(f.done) })
	return nil
}

// Sent returns copies of every PCM payload written so far.
func (f *FakeStream) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}
