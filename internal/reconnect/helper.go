// Package reconnect implements the Reconnection Helper state machine:
// watch the control FIFO for a freshly-dialed channel address, hand the
// new socket to the worker that owns it, and watch the link socket for
// the worker hanging up.
//
// A forked-process-per-session model would fork a dedicated OS process
// per reconnectable session. This implementation keeps the same
// wire-level behavior — a real AF_UNIX socketpair carrying SCM_RIGHTS
// fd passing across the boundary — but runs the state machine as a
// goroutine rather than a forked process, under a single-process,
// task-per-connection model.
package reconnect

import (
	"context"
	"net"
	"os"

	"github.com/mstoeckl/waypipe-go/internal/ipc"
	"github.com/mstoeckl/waypipe-go/internal/token"
	"github.com/mstoeckl/waypipe-go/internal/transport"
	"github.com/mstoeckl/waypipe-go/internal/wplog"
)

// Helper runs the WAIT/EXIT state machine for one reconnectable session.
type Helper struct {
	log  *wplog.Logger
	link *net.UnixConn

	// tok is updated (UPDATE flag set) each time a new channel is
	// successfully established, so the value written into a freshly
	// dialed socket always reflects the latest session state.
	tok token.Token

	hungUp chan struct{}
}

// NewHelper constructs a Helper. link is the supervisor-side end of the
// socketpair shared with the worker; the worker holds the other end and
// reads replacement fds from it.
func NewHelper(log *wplog.Logger, link *net.UnixConn, initial token.Token) *Helper {
	h := &Helper{log: log, link: link, tok: initial, hungUp: make(chan struct{})}
	go h.watchHangup()
	return h
}

// watchHangup blocks on a zero-length Read to detect the worker closing
// its end of the link; per the state machine, this is what moves the
// helper from WAIT to EXIT.
func (h *Helper) watchHangup() {
	buf := make([]byte, 1)
	h.link.Read(buf)
	close(h.hungUp)
}

// Run drives the state machine until the link hangs up, the context is
// cancelled, or newPaths is closed. newPaths delivers one Unix socket
// path per successfully parsed control-FIFO line (the NUL-or-newline
// framing and length check happen in the control package); Run must
// never read from the FIFO itself without it having been polled ready,
// which the caller already guarantees by the nature of a channel send.
func (h *Helper) Run(ctx context.Context, newPaths <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.hungUp:
			return nil
		case path, ok := <-newPaths:
			if !ok {
				return nil
			}
			h.handleNewPath(ctx, path)
		}
	}
}

func (h *Helper) handleNewPath(ctx context.Context, path string) {
	ch, err := transport.Dial(ctx, h.log, path)
	if err != nil {
		h.log.Warnf("reconnect: dial %s failed, staying on previous channel: %s", path, err)
		return
	}
	h.tok = token.FlagUpdate(h.tok)
	if _, err := ch.Write(h.tok.Marshal()); err != nil {
		h.log.Warnf("reconnect: write update token to %s failed: %s", path, err)
		ch.Close()
		return
	}

	sc, ok := ch.(interface {
		DupFile() (*os.File, error)
	})
	if !ok {
		h.log.Warnf("reconnect: %s did not yield a passable fd", path)
		ch.Close()
		return
	}
	f, err := sc.DupFile()
	if err != nil {
		h.log.Warnf("reconnect: %s: %s", path, err)
		ch.Close()
		return
	}
	if err := ipc.SendFD(h.link, int(f.Fd())); err != nil {
		h.log.Warnf("reconnect: pass new channel fd across link failed: %s", err)
	}
	f.Close()
	ch.Close()
}
