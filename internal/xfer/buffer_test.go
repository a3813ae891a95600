package xfer

import (
	"math/rand"
	"testing"
	"time"
)

func TestDrainOrdersOutOfOrderAppends(t *testing.T) {
	b := New()
	nums := make([]uint64, 20)
	for i := range nums {
		nums[i] = b.NextMessageNumber()
	}
	shuffled := append([]uint64(nil), nums...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	for _, n := range shuffled {
		b.Append(Segment{MessageNumber: n, Bytes: []byte{byte(n)}})
	}

	for _, want := range nums {
		seg, ok := b.Drain()
		if !ok {
			t.Fatalf("unexpected STOP before message %d", want)
		}
		if seg.MessageNumber != want {
			t.Fatalf("Drain() = %d, want %d", seg.MessageNumber, want)
		}
	}
}

func TestDrainBlocksUntilGapFills(t *testing.T) {
	b := New()
	n0 := b.NextMessageNumber()
	n1 := b.NextMessageNumber()

	b.Append(Segment{MessageNumber: n1, Bytes: []byte("second")})

	done := make(chan Segment, 1)
	go func() {
		seg, _ := b.Drain()
		done <- seg
	}()

	select {
	case <-done:
		t.Fatalf("Drain returned before the missing earlier message arrived")
	case <-time.After(20 * time.Millisecond):
	}

	b.Append(Segment{MessageNumber: n0, Bytes: []byte("first")})
	seg := <-done
	if seg.MessageNumber != n0 {
		t.Errorf("Drain() = %d, want %d", seg.MessageNumber, n0)
	}
}

func TestStopSentinelEndsDrain(t *testing.T) {
	b := New()
	b.Stop()
	_, ok := b.Drain()
	if ok {
		t.Errorf("Drain() ok = true for the STOP sentinel, want false")
	}
}
