package reconnect

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"github.com/mstoeckl/waypipe-go/internal/transport"
	"github.com/mstoeckl/waypipe-go/internal/wplog"
)

// DialRetryConfig bounds the initial-channel-dial backoff loop used at
// session bring-up.
type DialRetryConfig struct {
	MaxInterval time.Duration
	MaxAttempts int // <=0 means unbounded: retry until the parent hangs up
}

// DialWithRetry dials addr, retrying with exponential backoff on
// failure, until it succeeds, ctx is cancelled, or MaxAttempts is
// exceeded. This is distinct from the Reconnection Helper's per-line
// single-attempt dial: at session bring-up there is no control
// line to wait for, so a transient failure is retried rather than
// reported back to WAIT.
func DialWithRetry(ctx context.Context, log *wplog.Logger, addr string, cfg DialRetryConfig) (transport.Channel, error) {
	b := &backoff.Backoff{Max: cfg.MaxInterval}
	for {
		ch, err := transport.Dial(ctx, log, addr)
		if err == nil {
			return ch, nil
		}
		attempt := int(b.Attempt()) + 1
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			return nil, fmt.Errorf("reconnect: dial %s: giving up after %d attempts: %w", addr, attempt, err)
		}
		d := b.Duration()
		log.Warnf("dial %s failed (attempt %d): %s; retrying in %s", addr, attempt, err, d)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
		}
	}
}
