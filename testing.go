package bdbmq

import (
	"context"
	"sync"
)

// MockDeviceModel is a synchronous, in-memory DeviceModel for tests. Submit
// completes immediately (on the calling goroutine) by invoking complete,
// rather than emulating asynchronous device latency; see devicemodel for a
// model that actually simulates async completion.
type MockDeviceModel struct {
	mu          sync.Mutex
	submitCalls int
	rejectNext  bool

	complete func(req *Request)
}

// NewMockDeviceModel creates a mock device model that immediately completes
// every request it accepts via complete.
func NewMockDeviceModel(complete func(req *Request)) *MockDeviceModel {
	return &MockDeviceModel{complete: complete}
}

// RejectNext makes the next Submit call return an error instead of
// completing, to exercise the dispatcher's device-model-rejection path.
func (m *MockDeviceModel) RejectNext() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectNext = true
}

// Submit implements DeviceModel.
func (m *MockDeviceModel) Submit(ctx context.Context, req *Request) error {
	m.mu.Lock()
	m.submitCalls++
	reject := m.rejectNext
	m.rejectNext = false
	m.mu.Unlock()

	if reject {
		return ErrCodeDeviceRejected
	}

	if m.complete != nil {
		m.complete(req)
	}
	return nil
}

// SubmitCalls returns how many times Submit has been called.
func (m *MockDeviceModel) SubmitCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitCalls
}

// MockUpperLayer collects terminal completions for assertions in tests.
type MockUpperLayer struct {
	mu    sync.Mutex
	ended []*Request
}

// NewMockUpperLayer creates an empty MockUpperLayer.
func NewMockUpperLayer() *MockUpperLayer {
	return &MockUpperLayer{}
}

// EndReq implements UpperLayer.
func (u *MockUpperLayer) EndReq(req *Request) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ended = append(u.ended, req)
}

// Completed returns a snapshot of every request EndReq has seen, in order.
func (u *MockUpperLayer) Completed() []*Request {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]*Request, len(u.ended))
	copy(out, u.ended)
	return out
}

// Count returns how many requests EndReq has seen.
func (u *MockUpperLayer) Count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.ended)
}

var (
	_ DeviceModel = (*MockDeviceModel)(nil)
	_ UpperLayer  = (*MockUpperLayer)(nil)
)
