// Package queue implements the dispatcher's priority-indexed queue: one
// bucket per parallel unit, each a container/heap min-heap ordered by
// ascending LPA (ties broken by enqueue order), plus per-bucket item
// accounting so the dispatcher can answer IsAllEmpty/Total without a
// separate global counter. A dequeued item stays counted until Remove, so
// emptiness covers in-flight requests too.
package queue

import (
	"container/heap"
	"sync"
	"sync/atomic"
)

// node is one queued item. A node exists in one of three states:
//   - pending, ineligible: counted, not in the heap (RMW write phase
//     waiting on its read phase to complete)
//   - pending, eligible: counted, sitting in the bucket's heap
//   - in flight: counted, popped from the heap by Dequeue, not yet Removed
type node struct {
	key      uint64
	seq      uint64
	payload  any
	index    int // heap index; -1 when not present in the heap
	eligible bool
}

// nodeHeap implements container/heap.Interface ordered by (key, seq).
type nodeHeap []*node

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].key != h[j].key {
		return h[i].key < h[j].key
	}
	return h[i].seq < h[j].seq
}
func (h nodeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *nodeHeap) Push(x any) {
	n := x.(*node)
	n.index = len(*h)
	*h = append(*h, n)
}
func (h *nodeHeap) Pop() any {
	old := *h
	last := len(old) - 1
	n := old[last]
	old[last] = nil
	n.index = -1
	*h = old[:last]
	return n
}

type bucketState struct {
	mu    sync.Mutex
	heap  nodeHeap
	count int // queued + ineligible + in-flight; decremented by Remove, and by Move on the bucket it leaves
}

// Handle is the opaque back-pointer a Request carries from Enqueue (or
// Dequeue) until Remove. It is a weak reference: Buckets owns the node's
// lifetime, the handle only locates it.
type Handle struct {
	bucket int
	n      *node
}

// Bucket returns the PU bucket this handle belongs to.
func (h *Handle) Bucket() int { return h.bucket }

// Buckets is N_pu independent LPA-ordered priority queues sharing one
// sequence counter for enqueue-order tie-breaking.
type Buckets struct {
	states []bucketState
	seq    atomic.Uint64
}

// NewBuckets allocates n empty buckets.
func NewBuckets(n int) *Buckets {
	return &Buckets{states: make([]bucketState, n)}
}

// Len returns the number of PU buckets.
func (b *Buckets) Len() int { return len(b.states) }

// Enqueue inserts payload into bucket, keyed by key. If eligible is false,
// the item is counted but withheld from the heap until MakeEligible is
// called on the returned handle; the dispatcher gates the write phase of an
// RMW this way so it cannot dispatch before the read phase completes.
func (b *Buckets) Enqueue(bucket int, key uint64, payload any, eligible bool) *Handle {
	n := getNode()
	n.key = key
	n.seq = b.seq.Add(1)
	n.payload = payload
	n.eligible = eligible
	n.index = -1

	st := &b.states[bucket]
	st.mu.Lock()
	st.count++
	if eligible {
		heap.Push(&st.heap, n)
	}
	st.mu.Unlock()

	return &Handle{bucket: bucket, n: n}
}

// Dequeue pops the lowest-key eligible item from bucket, if any. The item
// remains counted (still "in the queue" for Total/IsAllEmpty purposes) until
// the caller eventually calls Remove on the returned handle.
func (b *Buckets) Dequeue(bucket int) (payload any, h *Handle, ok bool) {
	st := &b.states[bucket]
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.heap.Len() == 0 {
		return nil, nil, false
	}
	n := heap.Pop(&st.heap).(*node)
	return n.payload, &Handle{bucket: bucket, n: n}, true
}

// MakeEligible moves a previously-ineligible node into its bucket's heap.
// Called from the RMW read-phase completion to admit the pre-enqueued write
// phase for dispatch.
func (b *Buckets) MakeEligible(h *Handle) {
	st := &b.states[h.bucket]
	st.mu.Lock()
	if !h.n.eligible {
		h.n.eligible = true
		heap.Push(&st.heap, h.n)
	}
	st.mu.Unlock()
}

// Remove finalizes removal of the item referenced by h. Valid to call
// exactly once per handle, whether or not it was ever Dequeued.
func (b *Buckets) Remove(h *Handle) {
	st := &b.states[h.bucket]
	st.mu.Lock()
	if h.n.index >= 0 {
		heap.Remove(&st.heap, h.n.index)
	}
	st.count--
	st.mu.Unlock()
	putNode(h.n)
}

// Move relocates the item referenced by h out of its current bucket and
// into newBucket, eligible for immediate dispatch there. It is the
// alternative to the pre-enqueue RMW strategy: the write phase isn't
// inserted anywhere until the read phase completes.
func (b *Buckets) Move(h *Handle, newBucket int) *Handle {
	old := &b.states[h.bucket]
	old.mu.Lock()
	if h.n.index >= 0 {
		heap.Remove(&old.heap, h.n.index)
	}
	old.count--
	n := h.n
	old.mu.Unlock()

	n.eligible = true
	n.index = -1
	n.seq = b.seq.Add(1)

	st := &b.states[newBucket]
	st.mu.Lock()
	st.count++
	heap.Push(&st.heap, n)
	st.mu.Unlock()

	return &Handle{bucket: newBucket, n: n}
}

// IsAllEmpty reports whether every bucket has zero items, counting anything
// queued, ineligible, or in flight.
func (b *Buckets) IsAllEmpty() bool {
	for i := range b.states {
		st := &b.states[i]
		st.mu.Lock()
		c := st.count
		st.mu.Unlock()
		if c != 0 {
			return false
		}
	}
	return true
}

// Total returns the sum of all buckets' item counts.
func (b *Buckets) Total() int {
	total := 0
	for i := range b.states {
		st := &b.states[i]
		st.mu.Lock()
		total += st.count
		st.mu.Unlock()
	}
	return total
}
