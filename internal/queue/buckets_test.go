package queue

import (
	"sync"
	"testing"
)

func TestEnqueueDequeueOrder(t *testing.T) {
	b := NewBuckets(2)

	b.Enqueue(0, 20, "twenty", true)
	b.Enqueue(0, 5, "five", true)
	b.Enqueue(0, 10, "ten", true)

	want := []string{"five", "ten", "twenty"}
	for _, w := range want {
		payload, h, ok := b.Dequeue(0)
		if !ok {
			t.Fatalf("expected item %q, bucket empty", w)
		}
		if payload.(string) != w {
			t.Fatalf("expected %q, got %q", w, payload)
		}
		b.Remove(h)
	}

	if _, _, ok := b.Dequeue(0); ok {
		t.Fatal("expected bucket to be empty")
	}
}

func TestTiesBreakByEnqueueOrder(t *testing.T) {
	b := NewBuckets(1)

	b.Enqueue(0, 7, "first", true)
	b.Enqueue(0, 7, "second", true)
	b.Enqueue(0, 7, "third", true)

	for _, w := range []string{"first", "second", "third"} {
		payload, h, _ := b.Dequeue(0)
		if payload.(string) != w {
			t.Fatalf("tie-break violated: expected %q, got %q", w, payload)
		}
		b.Remove(h)
	}
}

func TestInFlightCountsUntilRemove(t *testing.T) {
	b := NewBuckets(1)

	b.Enqueue(0, 1, "a", true)
	if b.Total() != 1 || b.IsAllEmpty() {
		t.Fatal("expected one queued item")
	}

	payload, h2, ok := b.Dequeue(0)
	if !ok || payload.(string) != "a" {
		t.Fatal("dequeue failed")
	}

	// Dequeued but not removed: still counted, not re-dequeueable.
	if b.Total() != 1 || b.IsAllEmpty() {
		t.Fatal("in-flight item must stay counted")
	}
	if _, _, ok := b.Dequeue(0); ok {
		t.Fatal("in-flight item must not be re-dequeueable")
	}

	b.Remove(h2)
	if b.Total() != 0 || !b.IsAllEmpty() {
		t.Fatal("expected empty after remove")
	}
}

func TestRemoveWithoutDequeue(t *testing.T) {
	b := NewBuckets(1)

	h := b.Enqueue(0, 3, "x", true)
	b.Enqueue(0, 1, "y", true)

	// Removing a still-queued item must excise it from the heap.
	b.Remove(h)
	payload, h2, ok := b.Dequeue(0)
	if !ok || payload.(string) != "y" {
		t.Fatalf("expected %q after removal, got %v", "y", payload)
	}
	b.Remove(h2)

	if !b.IsAllEmpty() {
		t.Fatal("expected empty")
	}
}

func TestEligibilityGate(t *testing.T) {
	b := NewBuckets(1)

	gated := b.Enqueue(0, 1, "gated", false)
	b.Enqueue(0, 2, "open", true)

	// The gated item has the lower key but must not dequeue.
	payload, h, ok := b.Dequeue(0)
	if !ok || payload.(string) != "open" {
		t.Fatalf("expected the eligible item, got %v", payload)
	}
	b.Remove(h)

	if _, _, ok := b.Dequeue(0); ok {
		t.Fatal("ineligible item must not dequeue")
	}
	if b.Total() != 1 {
		t.Fatalf("ineligible item must stay counted, total=%d", b.Total())
	}

	b.MakeEligible(gated)
	payload, h, ok = b.Dequeue(0)
	if !ok || payload.(string) != "gated" {
		t.Fatalf("expected the gated item after MakeEligible, got %v", payload)
	}
	b.Remove(h)
}

func TestMoveAcrossBuckets(t *testing.T) {
	b := NewBuckets(2)

	b.Enqueue(0, 5, "moving", true)
	payload, h, ok := b.Dequeue(0)
	if !ok || payload.(string) != "moving" {
		t.Fatal("dequeue failed")
	}

	// Relocating the in-flight slot to the other bucket keeps totals
	// intact and makes it dispatchable there.
	h2 := b.Move(h, 1)
	if b.Total() != 1 {
		t.Fatalf("move must not change the total, got %d", b.Total())
	}
	if h2.Bucket() != 1 {
		t.Fatalf("expected bucket 1, got %d", h2.Bucket())
	}

	if _, _, ok := b.Dequeue(0); ok {
		t.Fatal("old bucket should be empty")
	}
	payload, h3, ok := b.Dequeue(1)
	if !ok || payload.(string) != "moving" {
		t.Fatal("moved item not dequeueable from new bucket")
	}
	b.Remove(h3)

	if !b.IsAllEmpty() {
		t.Fatal("expected empty after remove")
	}
}

func TestIsAllEmptySpansBuckets(t *testing.T) {
	b := NewBuckets(4)
	if !b.IsAllEmpty() {
		t.Fatal("new bucket set should be empty")
	}

	h := b.Enqueue(3, 1, "only", true)
	if b.IsAllEmpty() {
		t.Fatal("one occupied bucket should make IsAllEmpty false")
	}
	b.Remove(h)
	if !b.IsAllEmpty() {
		t.Fatal("expected empty after remove")
	}
}

func BenchmarkEnqueueDequeueRemove(b *testing.B) {
	q := NewBuckets(8)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Enqueue(i%8, uint64(i), i, true)
		_, h, _ := q.Dequeue(i % 8)
		q.Remove(h)
	}
}

func TestConcurrentEnqueueDequeue(t *testing.T) {
	const buckets = 4
	const producers = 8
	const perProducer = 500

	b := NewBuckets(buckets)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				b.Enqueue(i%buckets, uint64(p*perProducer+i), i, true)
			}
		}(p)
	}
	wg.Wait()

	total := producers * perProducer
	if b.Total() != total {
		t.Fatalf("expected %d items, got %d", total, b.Total())
	}

	var consumed int
	var mu sync.Mutex
	for c := 0; c < buckets; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			for {
				_, h, ok := b.Dequeue(c)
				if !ok {
					return
				}
				b.Remove(h)
				mu.Lock()
				consumed++
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	if consumed != total {
		t.Fatalf("expected %d consumed, got %d", total, consumed)
	}
	if !b.IsAllEmpty() {
		t.Fatal("expected empty after drain")
	}
}
