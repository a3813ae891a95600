package lifecycle

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// ShutdownFlag is a process-wide cancellation token set from SIGINT/SIGTERM
// handlers. The supervisor and reconnection helper do not read it; they
// stop on context cancellation.
type ShutdownFlag struct {
	flag atomic.Bool
}

// NewShutdownFlag creates a ShutdownFlag and starts a goroutine that sets
// it when SIGINT or SIGTERM is received.
func NewShutdownFlag() *ShutdownFlag {
	f := &ShutdownFlag{}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		f.Set()
	}()
	return f
}

// Set marks the flag as raised. Idempotent.
func (f *ShutdownFlag) Set() {
	f.flag.Store(true)
}

// IsSet reports whether the flag has been raised.
func (f *ShutdownFlag) IsSet() bool {
	return f.flag.Load()
}
