package supervisor

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/mstoeckl/waypipe-go/internal/control"
	"github.com/mstoeckl/waypipe-go/internal/ipc"
	"github.com/mstoeckl/waypipe-go/internal/reconnect"
	"github.com/mstoeckl/waypipe-go/internal/token"
	"github.com/mstoeckl/waypipe-go/internal/transport"
	"github.com/mstoeckl/waypipe-go/internal/worker"
	"github.com/mstoeckl/waypipe-go/internal/wplog"
)

// runOneshot dials the channel socket, sends a freshly-minted token,
// optionally starts the Reconnection Helper, then invokes the
// per-connection worker "Oneshot runner".
func runOneshot(ctx context.Context, log *wplog.Logger, p Params, appLink *os.File, reconnectable bool, fifo *control.FIFO) error {
	ch, err := reconnect.DialWithRetry(ctx, log, p.SocketAddr, reconnect.DialRetryConfig{})
	if err != nil {
		return fmt.Errorf("supervisor: oneshot: %w", err)
	}

	tok := token.Mint(token.Token{}, reconnectable, false)
	if _, err := ch.Write(tok.Marshal()); err != nil {
		return fmt.Errorf("supervisor: oneshot: write token: %w", err)
	}

	appConn, err := net.FileConn(appLink)
	if err != nil {
		return fmt.Errorf("supervisor: oneshot: wrap app link: %w", err)
	}
	appChan := transport.NewSocketChannel(log.Fork("app"), appConn)

	params := worker.Params{Chan: ch, App: appChan, Config: p.Config, IsClient: false}

	var helperDone chan struct{}
	if reconnectable {
		supervisorEnd, workerEnd, err := ipc.Socketpair()
		if err != nil {
			return fmt.Errorf("supervisor: oneshot: link socketpair: %w", err)
		}
		supervisorLink, err := linkUnixConn(supervisorEnd)
		if err != nil {
			return err
		}
		workerLink, err := linkUnixConn(workerEnd)
		if err != nil {
			return err
		}
		params.Link = workerLink

		helper := reconnect.NewHelper(log.Fork("reconnect"), supervisorLink, tok)
		newPaths := make(chan string, 4)
		if fifo != nil {
			go pumpControlLines(ctx, log, fifo, newPaths)
		}
		helperDone = make(chan struct{})
		go func() {
			helper.Run(ctx, newPaths)
			close(helperDone)
		}()
	}

	w := worker.New(log.Fork("worker"), p.Config, true)
	runErr := w.MainInterfaceLoop(ctx, params)
	if params.Link != nil {
		params.Link.Close()
	}
	if helperDone != nil {
		<-helperDone
	}
	return runErr
}

// pumpControlLines reads migration lines from fifo and forwards them,
// stopping on a read error (closing fifo causes one) or, while a line
// is waiting to be forwarded, on ctx cancellation.
func pumpControlLines(ctx context.Context, log *wplog.Logger, fifo *control.FIFO, out chan<- string) {
	defer close(out)
	for {
		line, err := fifo.ReadLine()
		if err != nil {
			log.Debugf("control fifo closed: %s", err)
			return
		}
		select {
		case out <- line:
		case <-ctx.Done():
			return
		}
	}
}
