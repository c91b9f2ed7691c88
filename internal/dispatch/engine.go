// Package dispatch implements the dispatcher's single background worker: the
// round-robin scan over parallel units, the try-acquire/dequeue/hand-off
// sequence, and the RMW read/write phase transition. One dedicated,
// optionally CPU-pinned goroutine serves every parallel unit; per-unit
// mutual exclusion comes from the lock array, not from per-unit loops.
package dispatch

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jhoonl/bdbm-mq/internal/interfaces"
	"github.com/jhoonl/bdbm-mq/internal/lock"
	"github.com/jhoonl/bdbm-mq/internal/queue"
	"github.com/jhoonl/bdbm-mq/internal/request"
)

// RMWStrategy selects how the write phase of an RMW request reaches the
// queue.
type RMWStrategy int

const (
	// RMWPreEnqueue inserts both phases at Submit time; the write phase is
	// enqueued ineligible and flipped eligible when the read phase
	// completes. This is the default: the write slot is allocated and
	// counted at Submit, so the completion path only pushes it onto its
	// bucket's heap instead of moving a node between buckets.
	RMWPreEnqueue RMWStrategy = iota
	// RMWDeferredMove inserts only the read phase at Submit time and moves
	// its slot into the write-phase bucket when the read phase completes.
	RMWDeferredMove
)

// Config configures an Engine.
type Config struct {
	NumPU           int
	ChipsPerChannel int
	RMWStrategy     RMWStrategy
	CPUAffinity     int  // constants.NoCPUAffinity (-1) to disable
	SerializeDebug  bool // force one request in flight end-to-end
	DeviceModel     interfaces.DeviceModel
	UpperLayer      interfaces.UpperLayer
	Logger          interfaces.Logger
	Observer        interfaces.Observer
}

// Engine is the dispatcher's background worker plus the state it closes
// over: the queue, the PU lock array, and the collaborators it drives.
type Engine struct {
	cfg    Config
	queue  *queue.Buckets
	locks  *lock.Array
	wake   chan struct{}
	stop   chan struct{}
	done   chan struct{}
	logger interfaces.Logger
	obs    interfaces.Observer

	// writeSlots maps an in-flight RMW request to its pre-enqueued,
	// still-ineligible write-phase slot. Only populated under
	// RMWPreEnqueue; entries live from Submit until the read-phase
	// completion flips the slot eligible.
	mu         sync.Mutex
	writeSlots map[*request.Request]*queue.Handle

	// dbgSeq is held from Submit until terminal completion when
	// cfg.SerializeDebug is set, forcing strict end-to-end serialization.
	// Locked and unlocked on different goroutines, which sync.Mutex
	// permits.
	dbgSeq sync.Mutex
}

// NewEngine constructs an Engine and starts its background goroutine.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		cfg:        cfg,
		queue:      queue.NewBuckets(cfg.NumPU),
		locks:      lock.NewArray(cfg.NumPU),
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     cfg.Logger,
		obs:        cfg.Observer,
		writeSlots: make(map[*request.Request]*queue.Handle),
	}
	go e.run()
	return e
}

// Queue exposes the underlying bucket set for Submit/Flush to query.
func (e *Engine) Queue() *queue.Buckets { return e.queue }

// Locks exposes the PU lock array so Close can prove quiescence.
func (e *Engine) Locks() *lock.Array { return e.locks }

// WakeUp nudges the dispatcher loop. Safe to call from any goroutine; never
// blocks (the wake channel is a coalescing signal).
func (e *Engine) WakeUp() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Stop signals the background goroutine to exit and waits for it.
func (e *Engine) Stop() {
	close(e.stop)
	<-e.done
}

func (e *Engine) run() {
	defer close(e.done)

	if e.cfg.CPUAffinity >= 0 {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		var mask unix.CPUSet
		mask.Set(e.cfg.CPUAffinity)
		if err := unix.SchedSetaffinity(0, &mask); err != nil && e.logger != nil {
			e.logger.Printf("dispatcher: failed to pin to CPU %d: %v", e.cfg.CPUAffinity, err)
		}
	}

	for {
		if e.queue.IsAllEmpty() {
			select {
			case <-e.stop:
				return
			case <-e.wake:
				// recheck emptiness at the top of the loop; this is the
				// check-then-wait idiom that avoids a lost wakeup against
				// a concurrent Submit.
			}
			continue
		}

		select {
		case <-e.stop:
			return
		default:
		}

		e.scanOnce()
	}
}

// scanOnce performs one round-robin pass over every PU, dispatching at most
// one request per busy-free PU.
func (e *Engine) scanOnce() {
	for pu := 0; pu < e.cfg.NumPU; pu++ {
		if !e.locks.TryLock(pu) {
			continue
		}

		payload, slot, ok := e.queue.Dequeue(pu)
		if !ok {
			e.locks.Unlock(pu)
			continue
		}

		req := payload.(*request.Request)
		req.SetSlot(slot)
		req.MarkDispatched()

		if e.obs != nil {
			e.obs.ObserveSubmit(pu)
		}

		if err := e.cfg.DeviceModel.Submit(context.Background(), req); err != nil {
			// Device-model rejection: synthesize a completion so the PU
			// lock and queue slot unwind through the normal path. Rare.
			if e.logger != nil {
				e.logger.Printf("dispatcher: device model rejected pu=%d kind=%s: %v", pu, req.Kind, err)
			}
			req.Status = fmt.Errorf("device model rejected request: %w", err)
			e.Complete(req)
		}
	}
}

// Submit computes the target PU, enqueues (twice for the read phase of an
// RMW, under a strategy-dependent scheme), and wakes the dispatcher.
func (e *Engine) Submit(req *request.Request) {
	if e.cfg.SerializeDebug {
		e.dbgSeq.Lock()
	}

	pu := request.PUID(req.Primary, e.cfg.ChipsPerChannel)

	if req.Kind == request.RMWRead && e.cfg.RMWStrategy == RMWPreEnqueue {
		// Pre-reserve the write phase's position now, ineligible until the
		// read phase completes. The write slot and its map entry must both
		// exist before the read slot does: the read phase can dispatch and
		// complete the instant it is enqueued.
		writePU := request.PUID(req.Secondary, e.cfg.ChipsPerChannel)
		writeSlot := e.queue.Enqueue(writePU, req.LPA, req, false)
		e.mu.Lock()
		e.writeSlots[req] = writeSlot
		e.mu.Unlock()
	}

	e.queue.Enqueue(pu, req.LPA, req, true)

	if e.obs != nil {
		e.obs.ObserveQueueDepth(e.queue.Total())
	}
	e.WakeUp()
}

// Complete advances req after the device model finishes (or rejects) its
// current phase: the read phase of an RMW rolls over into its write phase,
// terminal kinds retire the request upward, unknown kinds are logged and
// left untouched.
func (e *Engine) Complete(req *request.Request) {
	switch req.Kind {
	case request.RMWRead:
		e.completeRMWRead(req)
	case request.Read, request.ReadDummy, request.Write, request.Trim,
		request.GCRead, request.GCWrite, request.GCErase, request.RMWWrite:
		e.completeTerminal(req)
	default:
		if e.logger != nil {
			e.logger.Printf("dispatcher: completion for invalid request kind %d", uint8(req.Kind))
		}
	}
}

func (e *Engine) completeRMWRead(req *request.Request) {
	readPU := request.PUID(req.Primary, e.cfg.ChipsPerChannel)
	readSlot := req.GetSlot().(*queue.Handle)
	latency := req.DispatchLatency()

	e.locks.Unlock(readPU)

	// Roll the request over into its write phase. The write slot is still
	// ineligible (or not yet enqueued, under RMWDeferredMove), so the
	// dispatcher cannot observe the request mid-rewrite.
	req.Primary = req.Secondary
	req.Kind = request.RMWWrite

	switch e.cfg.RMWStrategy {
	case RMWPreEnqueue:
		e.queue.Remove(readSlot)
		e.mu.Lock()
		writeSlot := e.writeSlots[req]
		delete(e.writeSlots, req)
		e.mu.Unlock()
		if writeSlot != nil {
			e.queue.MakeEligible(writeSlot)
		}
	case RMWDeferredMove:
		writePU := request.PUID(req.Primary, e.cfg.ChipsPerChannel)
		e.queue.Move(readSlot, writePU)
	}

	if e.obs != nil {
		e.obs.ObserveComplete(readPU, request.RMWRead, latency, req.Status == nil)
	}
	e.WakeUp()
}

func (e *Engine) completeTerminal(req *request.Request) {
	pu := request.PUID(req.Primary, e.cfg.ChipsPerChannel)

	e.queue.Remove(req.GetSlot().(*queue.Handle))
	e.locks.Unlock(pu)

	if e.obs != nil {
		e.obs.ObserveComplete(pu, req.Kind, req.DispatchLatency(), req.Status == nil)
	}

	if e.cfg.UpperLayer != nil {
		e.cfg.UpperLayer.EndReq(req)
	}

	if e.cfg.SerializeDebug {
		e.dbgSeq.Unlock()
	}
}

// Flush busy-waits until the queue drains, honoring ctx cancellation.
func Flush(ctx context.Context, q *queue.Buckets) error {
	for !q.IsAllEmpty() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		runtime.Gosched()
	}
	return nil
}

// WaitDrain busy-waits with a small sleep until the queue drains, used by
// Close which has no caller-supplied context to honor.
func WaitDrain(q *queue.Buckets) {
	for !q.IsAllEmpty() {
		time.Sleep(time.Millisecond)
	}
}
