package pool

import (
	"sync/atomic"
	"testing"
)

func TestDrainRunsAllEnqueuedTasks(t *testing.T) {
	p := New(4)
	defer p.Stop(4)

	var n int32
	for i := 0; i < 50; i++ {
		p.Enqueue(Task{Kind: TaskDiffRegion, Run: func() error {
			atomic.AddInt32(&n, 1)
			return nil
		}})
	}
	if err := p.Drain(); err != nil {
		t.Fatalf("Drain: %s", err)
	}
	if got := atomic.LoadInt32(&n); got != 50 {
		t.Errorf("ran %d tasks, want 50", got)
	}
}

func TestDrainLatchesFirstError(t *testing.T) {
	p := New(2)
	defer p.Stop(2)

	p.Enqueue(Task{Run: func() error { return nil }})
	p.Enqueue(Task{Run: func() error { return errBoom }})
	p.Enqueue(Task{Run: func() error { return nil }})

	if err := p.Drain(); err != errBoom {
		t.Errorf("Drain error = %v, want %v", err, errBoom)
	}
}

func TestZeroSizedPoolRunsTasksDuringDrain(t *testing.T) {
	p := New(0)
	var ran bool
	p.Enqueue(Task{Run: func() error {
		ran = true
		return nil
	}})
	if err := p.Drain(); err != nil {
		t.Fatalf("Drain: %s", err)
	}
	if !ran {
		t.Errorf("a zero-sized pool must still execute its queued task during Drain")
	}
}

var errBoom = &poolTestError{"boom"}

type poolTestError struct{ msg string }

func (e *poolTestError) Error() string { return e.msg }
