package audio

import "sync"

// mixer combines two asynchronously-arriving sample streams into one
// mono stream. Each side is gain-attenuated before summation so the mix
// cannot clip two full-scale inputs.
type mixer struct {
	mu   sync.Mutex
	gain float32
	// maxLag bounds how far one side may run ahead of a stalled peer;
	// the oldest samples past it are dropped
	maxLag int
	a      []float32
	b      []float32
}

func newMixer(gain float64, maxLag int) *mixer {
	return &mixer{gain: float32(gain), maxLag: maxLag}
}

func (m *mixer) pushA(samples []float32) []float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.a = append(m.a, samples...)
	m.trimLocked()
	return m.drainLocked()
}

func (m *mixer) pushB(samples []float32) []float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.b = append(m.b, samples...)
	m.trimLocked()
	return m.drainLocked()
}

func (m *mixer) trimLocked() {
	if m.maxLag <= 0 {
		return
	}
	if n := len(m.a) - m.maxLag; n > 0 {
		m.a = m.a[n:]
	}
	if n := len(m.b) - m.maxLag; n > 0 {
		m.b = m.b[n:]
	}
}

func (m *mixer) drainLocked() []float32 {
	n := len(m.a)
	if len(m.b) < n {
		n = len(m.b)
	}
	if n == 0 {
		return nil
	}
	mixed := make([]float32, n)
	for i := 0; i < n; i++ {
		mixed[i] = clamp(m.a[i]*m.gain + m.b[i]*m.gain)
	}
	m.a = m.a[n:]
	m.b = m.b[n:]
	return mixed
}
