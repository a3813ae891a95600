package reconnect

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mstoeckl/waypipe-go/internal/transport"
	"github.com/mstoeckl/waypipe-go/internal/wplog"
)

func testLogger() *wplog.Logger {
	return wplog.New("reconnect-test", wplog.LevelError)
}

func TestDialWithRetrySucceedsOnceListenerExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sock")
	log := testLogger()

	started := make(chan struct{})
	go func() {
		time.Sleep(30 * time.Millisecond)
		ln, err := transport.Listen(log, path, 0)
		if err != nil {
			return
		}
		close(started)
		ch, err := ln.Accept()
		if err == nil {
			ch.Close()
		}
		ln.StartShutdown(nil)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch, err := DialWithRetry(ctx, log, path, DialRetryConfig{MaxInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("DialWithRetry: %s", err)
	}
	defer ch.Close()
	<-started
}

func TestDialWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nobody-listening")
	log := testLogger()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := DialWithRetry(ctx, log, path, DialRetryConfig{MaxInterval: time.Millisecond, MaxAttempts: 3})
	if err == nil {
		t.Fatalf("expected DialWithRetry to give up after MaxAttempts")
	}
}
