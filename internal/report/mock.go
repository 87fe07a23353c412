package report

import (
	"context"
	"sync"
)

// MockDeliverer records reports instead of sending them.
type MockDeliverer struct {
	mu        sync.Mutex
	delivered []Report
	Err       error
}

func NewMockDeliverer() *MockDeliverer { return &MockDeliverer{} }

func (m *MockDeliverer) Deliver(_ context.Context, rep Report) error {
	if m.Err != nil {
		return m.Err
	}
	if rep.Body == "" {
		rep.Body = Render(rep)
	}
	m.mu.Lock()
	m.delivered = append(m.delivered, rep)
	m.mu.Unlock()
	return nil
}

// Delivered returns the reports accepted so far.
func (m *MockDeliverer) Delivered() []Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Report(nil), m.delivered...)
}
