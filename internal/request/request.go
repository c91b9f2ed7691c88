// Package request defines the wire-free request record threaded between the
// dispatcher, its internal queue/lock machinery, and the device model. It
// has no dependencies so every other internal package, and the root
// package, can import it without creating cycles.
package request

import "time"

// PhysAddr names one NAND physical location.
type PhysAddr struct {
	Channel uint32
	Chip    uint32
	Block   uint32
	Page    uint32
}

// Kind enumerates the request kinds the dispatcher understands.
type Kind uint8

const (
	Read Kind = iota
	ReadDummy
	Write
	Trim
	GCRead
	GCWrite
	GCErase
	RMWRead
	RMWWrite
)

func (k Kind) String() string {
	switch k {
	case Read:
		return "READ"
	case ReadDummy:
		return "READ_DUMMY"
	case Write:
		return "WRITE"
	case Trim:
		return "TRIM"
	case GCRead:
		return "GC_READ"
	case GCWrite:
		return "GC_WRITE"
	case GCErase:
		return "GC_ERASE"
	case RMWRead:
		return "RMW_READ"
	case RMWWrite:
		return "RMW_WRITE"
	default:
		return "UNKNOWN"
	}
}

// IsRMW reports whether k is one of the two RMW phases.
func (k Kind) IsRMW() bool {
	return k == RMWRead || k == RMWWrite
}

// Slot is the opaque back-pointer a request carries from the moment the
// dispatcher dequeues it until Remove (or a Move, under the deferred-move
// RMW strategy) retires it. It is a weak reference: the queue
// owns the slot's lifetime, the request only remembers where to find it.
type Slot interface{}

// Request is the record the upper layer builds and Submits, and the one the
// dispatcher and device model pass back and forth until EndReq.
type Request struct {
	Kind      Kind
	Primary   PhysAddr
	Secondary PhysAddr // only meaningful for RMWRead/RMWWrite
	LPA       uint64

	// slot is populated by the dispatcher when it dequeues this request.
	// It is not cleared when the queue slot is retired: it keeps the last
	// dequeued slot until the next dequeue overwrites it. Never set by
	// Submit's caller.
	slot Slot

	// dispatchedAt records when the dispatcher handed this request (or,
	// for an RMW, its current phase) to the device model.
	dispatchedAt time.Time

	// Status carries the outcome back to the upper layer's EndReq. A
	// synthesized completion (device-model rejection) sets this instead of
	// leaving it nil.
	Status error
}

// GetSlot returns the request's current queue slot back-pointer.
func (r *Request) GetSlot() Slot { return r.slot }

// SetSlot records the queue slot back-pointer. Called by the dispatcher
// immediately after a successful Dequeue.
func (r *Request) SetSlot(s Slot) { r.slot = s }

// MarkDispatched stamps the moment the dispatcher hands this request's
// current phase to the device model, for completion-latency accounting.
func (r *Request) MarkDispatched() { r.dispatchedAt = time.Now() }

// DispatchLatency returns the time elapsed since MarkDispatched, in
// nanoseconds. Zero if the request was never dispatched.
func (r *Request) DispatchLatency() uint64 {
	if r.dispatchedAt.IsZero() {
		return 0
	}
	return uint64(time.Since(r.dispatchedAt))
}

// PUID computes the parallel-unit index for a physical address given the
// NAND topology's chips-per-channel count.
func PUID(addr PhysAddr, chipsPerChannel int) int {
	return int(addr.Channel)*chipsPerChannel + int(addr.Chip)
}
