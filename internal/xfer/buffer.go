// Package xfer implements the Transfer Buffer: an ordered sequence of
// (message_number, bytes) segments produced by worker-pool tasks and
// drained in order by the channel writer/.
package xfer

import (
	"container/heap"
	"sync"
)

// Segment is one enqueued unit of wire bytes tagged with the message
// number it was assigned at enqueue time.
type Segment struct {
	MessageNumber uint64
	Bytes         []byte
	// Stop marks the sentinel segment that causes Drain's consumer
	// loop to exit once everything before it has drained.
	Stop bool
}

type segmentHeap []Segment

func (h segmentHeap) Len() int            { return len(h) }
func (h segmentHeap) Less(i, j int) bool  { return h[i].MessageNumber < h[j].MessageNumber }
func (h segmentHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *segmentHeap) Push(x interface{}) { *h = append(*h, x.(Segment)) }
func (h *segmentHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Buffer holds in-flight segments under a lock. Producers may complete
// out of order; Drain still yields segments in ascending MessageNumber
// order, waiting for gaps.
type Buffer struct {
	mu   sync.Mutex
	cond *sync.Cond

	next    uint64 // next MessageNumber to allocate
	want    uint64 // next MessageNumber Drain is waiting to emit
	pending segmentHeap
}

// New constructs an empty Buffer; the first allocated message number is
// zero.
func New() *Buffer {
	b := &Buffer{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// NextMessageNumber allocates and returns the next monotone message
// number, for a producer that needs to know its number before the bytes
// are ready (so multiple segments can be ordered before any of their
// payloads exist).
func (b *Buffer) NextMessageNumber() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.next
	b.next++
	return n
}

// Append enqueues a completed segment. Safe to call from any worker-pool
// goroutine concurrently.
func (b *Buffer) Append(seg Segment) {
	b.mu.Lock()
	heap.Push(&b.pending, seg)
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Stop enqueues the STOP sentinel at the next message number, so Drain
// exits once every segment queued ahead of it has drained.
func (b *Buffer) Stop() {
	b.Append(Segment{MessageNumber: b.NextMessageNumber(), Stop: true})
}

// Drain blocks until the segment with MessageNumber == the next expected
// number is available, then returns it (advancing the expectation). It
// returns ok=false once the STOP sentinel has been returned.
func (b *Buffer) Drain() (seg Segment, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if len(b.pending) > 0 && b.pending[0].MessageNumber == b.want {
			seg = heap.Pop(&b.pending).(Segment)
			b.want++
			return seg, !seg.Stop
		}
		b.cond.Wait()
	}
}
