package audio

import "sync"

// FakeSource feeds predefined samples once started. Used in tests and
// available to exercise the pipeline without hardware.
type FakeSource struct {
	name    string
	samples []float32
	chunk   int

	mu sync.Mutex
	cb SampleCallback
}

func NewFakeSource(name string, samples []float32, chunk int) *FakeSource {
	if chunk <= 0 {
		chunk = 256
	}
	return &FakeSource{name: name, samples: samples, chunk: chunk}
}

func (f *FakeSource) Name() string { return f.name }

func (f *FakeSource) SetCallback(cb SampleCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

// Start delivers all samples synchronously in chunk-sized callbacks.
func (f *FakeSource) Start() error {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb == nil {
		return nil
	}
	for pos := 0; pos < len(f.samples); pos += f.chunk {
		end := pos + f.chunk
		if end > len(f.samples) {
			end = len(f.samples)
		}
		cb(f.samples[pos:end])
	}
	return nil
}

func (f *FakeSource) Stop()  {}
func (f *FakeSource) Close() {}

// FailingSource reports a fixed error on Start, for exercising terminal
// capture failures.
type FailingSource struct {
	Err error
}

func (f *FailingSource) Name() string               { return "failing" }
func (f *FailingSource) SetCallback(SampleCallback) {}
func (f *FailingSource) Start() error               { return f.Err }
func (f *FailingSource) Stop()                      {}
func (f *FailingSource) Close()                     {}
