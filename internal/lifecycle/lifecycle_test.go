package lifecycle

import (
	"context"
	"testing"
	"time"
)

type fakeHandler struct {
	calls int
	got   error
}

func (f *fakeHandler) HandleOnceShutdown(completionErr error) error {
	f.calls++
	f.got = completionErr
	return completionErr
}

func TestStartShutdownIsIdempotent(t *testing.T) {
	var h Helper
	fh := &fakeHandler{}
	h.Init(fh)

	h.StartShutdown(nil)
	h.StartShutdown(errBoom) // second call must be a no-op

	if err := h.WaitShutdown(); err != nil {
		t.Errorf("WaitShutdown() = %v, want nil (first call wins)", err)
	}
	if fh.calls != 1 {
		t.Errorf("handler invoked %d times, want 1", fh.calls)
	}
}

func TestShutdownOnContextTriggersShutdown(t *testing.T) {
	var h Helper
	h.Init(&fakeHandler{})

	ctx, cancel := context.WithCancel(context.Background())
	h.ShutdownOnContext(ctx)
	cancel()

	select {
	case <-h.ShutdownDoneChan():
	case <-time.After(time.Second):
		t.Fatal("shutdown never completed after context cancellation")
	}
	if err := h.WaitShutdown(); err != context.Canceled {
		t.Errorf("WaitShutdown() = %v, want %v", err, context.Canceled)
	}
}

func TestAddChildShutsDownBeforeParentCompletes(t *testing.T) {
	var parent, child Helper
	parent.Init(&fakeHandler{})
	child.Init(&fakeHandler{})

	parent.AddChild(&child)
	parent.StartShutdown(nil)

	if err := parent.WaitShutdown(); err != nil {
		t.Fatalf("parent WaitShutdown: %s", err)
	}
	if !child.IsDoneShutdown() {
		t.Errorf("child should be done shutting down once the parent completes")
	}
}

var errBoom = &lifecycleTestError{"boom"}

type lifecycleTestError struct{ msg string }

func (e *lifecycleTestError) Error() string { return e.msg }
