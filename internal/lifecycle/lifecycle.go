// Package lifecycle provides the asynchronous shutdown base embedded by
// the transport package's channels, dialers and listeners: idempotent
// shutdown, a context hook for a process-wide shutdown signal, and
// parent/child shutdown propagation.
package lifecycle

import (
	"context"
	"sync"
)

// OnceShutdownHandler is implemented by the object a Helper manages. It is
// invoked exactly once, in its own goroutine, to perform the actual
// teardown (closing fds, unlinking sockets, releasing buffers).
type OnceShutdownHandler interface {
	HandleOnceShutdown(completionErr error) error
}

// AsyncShutdowner is the capability a Helper grants to its owner: schedule
// shutdown, and observe its completion.
type AsyncShutdowner interface {
	StartShutdown(completionErr error)
	ShutdownDoneChan() <-chan struct{}
	IsDoneShutdown() bool
	WaitShutdown() error
}

// Helper is embedded by value in any struct that needs asynchronous,
// idempotent shutdown semantics.
type Helper struct {
	mu              sync.Mutex
	handler         OnceShutdownHandler
	started         bool
	done            bool
	err             error
	startedChan     chan struct{}
	doneChan        chan struct{}
	wg              sync.WaitGroup
}

// Init must be called before any other Helper method.
func (h *Helper) Init(handler OnceShutdownHandler) {
	h.handler = handler
	h.startedChan = make(chan struct{})
	h.doneChan = make(chan struct{})
}

// StartShutdown schedules shutdown exactly once. Subsequent calls are
// no-ops; completionErr from the first call wins.
func (h *Helper) StartShutdown(completionErr error) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.err = completionErr
	close(h.startedChan)
	h.mu.Unlock()

	go func() {
		h.err = h.handler.HandleOnceShutdown(h.err)
		h.wg.Wait()
		h.mu.Lock()
		h.done = true
		h.mu.Unlock()
		close(h.doneChan)
	}()
}

// ShutdownOnContext begins background monitoring of ctx and starts
// shutdown with ctx.Err() as the advisory completion error if ctx
// completes before shutdown is otherwise started. It does not block.
func (h *Helper) ShutdownOnContext(ctx context.Context) {
	go func() {
		select {
		case <-h.startedChan:
		case <-ctx.Done():
			h.StartShutdown(ctx.Err())
		}
	}()
}

// AddChild registers a child AsyncShutdowner that must finish shutting
// down before this Helper's shutdown is considered complete. The child is
// asked to shut down (with this Helper's completion error) once this
// Helper's own shutdown starts.
func (h *Helper) AddChild(child AsyncShutdowner) {
	h.wg.Add(1)
	go func() {
		<-h.startedChan
		h.mu.Lock()
		err := h.err
		h.mu.Unlock()
		child.StartShutdown(err)
		<-child.ShutdownDoneChan()
		h.wg.Done()
	}()
}

// ShutdownDoneChan returns a channel closed once shutdown has completed.
func (h *Helper) ShutdownDoneChan() <-chan struct{} {
	return h.doneChan
}

// IsStartedShutdown reports whether StartShutdown has been called.
func (h *Helper) IsStartedShutdown() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

// IsDoneShutdown reports whether shutdown has completed.
func (h *Helper) IsDoneShutdown() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

// WaitShutdown blocks until shutdown completes, then returns the final
// completion error. It does not itself initiate shutdown.
func (h *Helper) WaitShutdown() error {
	<-h.doneChan
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Shutdown starts shutdown (if not already started) and waits for it to
// complete, returning the final completion status.
func (h *Helper) Shutdown(completionErr error) error {
	h.StartShutdown(completionErr)
	return h.WaitShutdown()
}
