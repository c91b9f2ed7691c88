// Package devicemodel provides an in-memory NAND device-model reference
// implementation: the asynchronous backend a Dispatcher drives. It is a
// reference collaborator for tests and the CLI demo, not a faithful NAND
// timing simulator. Pages live in a map keyed by (channel, chip, block,
// page); every accepted submission completes on its own goroutine after an
// optional simulated latency.
package devicemodel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jhoonl/bdbm-mq/internal/request"
)

const defaultPageSize = 4096

// Config configures an InMemory device model.
type Config struct {
	NumChannels     int
	ChipsPerChannel int
	BlocksPerChip   int
	PagesPerBlock   int
	PageSize        int

	// Latency simulates per-operation device latency. Zero means
	// complete as soon as the goroutine scheduler runs the completion.
	Latency time.Duration

	// Complete is invoked asynchronously once a submitted request's
	// simulated latency has elapsed; normally the Dispatcher's Complete
	// method.
	Complete func(req *request.Request)
}

// page identifies one physical page, used as a map key.
type page struct {
	channel, chip, block, pageNo uint32
}

// InMemory is a reference NAND device model: pages are stored in a single
// map guarded by one RWMutex, and every Submit completes asynchronously on its own goroutine after
// the configured simulated latency.
type InMemory struct {
	cfg   Config
	mu    sync.RWMutex
	pages map[page][]byte

	mu2         sync.Mutex
	rejectNextN int
	submitCount int
}

// New constructs an InMemory device model.
func New(cfg Config) *InMemory {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	return &InMemory{
		cfg:   cfg,
		pages: make(map[page][]byte),
	}
}

// RejectNext makes the next n Submit calls return an error synchronously,
// to exercise the dispatcher's device-model-rejection path.
func (m *InMemory) RejectNext(n int) {
	m.mu2.Lock()
	defer m.mu2.Unlock()
	m.rejectNextN = n
}

// Submit implements bdbmq.DeviceModel / internal/interfaces.DeviceModel.
// It never blocks: the actual read/write/erase work and the completion
// callback happen on a dedicated goroutine.
func (m *InMemory) Submit(ctx context.Context, req *request.Request) error {
	m.mu2.Lock()
	m.submitCount++
	reject := m.rejectNextN > 0
	if reject {
		m.rejectNextN--
	}
	m.mu2.Unlock()

	if reject {
		return fmt.Errorf("devicemodel: rejected by test injection")
	}

	go m.complete(req)
	return nil
}

func (m *InMemory) complete(req *request.Request) {
	if m.cfg.Latency > 0 {
		time.Sleep(m.cfg.Latency)
	}

	switch req.Kind {
	case request.Read, request.ReadDummy, request.GCRead, request.RMWRead:
		m.read(req.Primary)
	case request.Write, request.GCWrite, request.RMWWrite:
		m.write(req.Primary)
	case request.Trim, request.GCErase:
		m.erase(req.Primary)
	}

	if m.cfg.Complete != nil {
		m.cfg.Complete(req)
	}
}

func (m *InMemory) read(addr request.PhysAddr) {
	key := page{addr.Channel, addr.Chip, addr.Block, addr.Page}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_ = m.pages[key]
}

func (m *InMemory) write(addr request.PhysAddr) {
	key := page{addr.Channel, addr.Chip, addr.Block, addr.Page}
	buf := make([]byte, m.cfg.PageSize)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[key] = buf
}

func (m *InMemory) erase(addr request.PhysAddr) {
	key := page{addr.Channel, addr.Chip, addr.Block, addr.Page}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pages, key)
}

// PageCount returns the number of pages currently resident, for test
// assertions.
func (m *InMemory) PageCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pages)
}

// SubmitCount returns how many times Submit has been called.
func (m *InMemory) SubmitCount() int {
	m.mu2.Lock()
	defer m.mu2.Unlock()
	return m.submitCount
}
