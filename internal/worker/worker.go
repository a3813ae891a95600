// Package worker implements the per-connection worker's I/O contract:
// main_interface_loop(chan_fd, app_fd, link_fd_or_none, config,
// is_client). The Wayland wire-protocol parsing and object tracking
// that would normally sit between chan_fd and app_fd — inspecting each
// message for fds to translate — is an external collaborator out of
// scope here; in its place, this package mints a single shadow-fd
// table entry per worker standing in for "the application's byte
// stream" and replicates it end to end: bytes read from the app are
// diffed/appended through the real Table/CollectUpdate path rather
// than a hand-built frame, and bytes the peer worker replicated for
// its own app stream are copied back out to this side's application
// connection once adopted.
package worker

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/mstoeckl/waypipe-go/internal/config"
	"github.com/mstoeckl/waypipe-go/internal/ipc"
	"github.com/mstoeckl/waypipe-go/internal/pool"
	"github.com/mstoeckl/waypipe-go/internal/shadow"
	"github.com/mstoeckl/waypipe-go/internal/transport"
	"github.com/mstoeckl/waypipe-go/internal/wire"
	"github.com/mstoeckl/waypipe-go/internal/wplog"
	"github.com/mstoeckl/waypipe-go/internal/xfer"
)

// Params bundles main_interface_loop's arguments.
type Params struct {
	Chan     transport.Channel
	App      transport.Channel
	Link     *net.UnixConn // nil when the session is not reconnectable
	Config   *config.Main
	IsClient bool
}

// Worker owns one connection's shadow-fd table and transfer pipeline for
// the lifetime of MainInterfaceLoop.
type Worker struct {
	log     *wplog.Logger
	table   *shadow.Table
	pool    *pool.Pool
	xfer    *xfer.Buffer
	threads int

	mu        sync.Mutex
	chanConn  transport.Channel
	closing   bool
	forwarded map[int32]bool

	appConn transport.Channel
}

// New constructs a Worker. mintsNegative selects the shadow table's id
// partitioning (true for the server side).
func New(log *wplog.Logger, cfg *config.Main, mintsNegative bool) *Worker {
	threads := config.DefaultThreads
	if cfg != nil {
		threads = cfg.Threads
	}
	return &Worker{
		log:     log,
		table:   shadow.NewTable(mintsNegative),
		pool:    pool.New(threads),
		xfer:    xfer.New(),
		threads: threads,
	}
}

// MainInterfaceLoop bridges application bytes to/from the channel,
// switching to a replacement channel fd on channel hangup when p.Link is
// set, and returns once the application side reaches EOF or fails. A
// channel hangup by itself does not end the loop: without a link only
// the channel reader stops, and the loop still waits for the
// application side.
func (w *Worker) MainInterfaceLoop(ctx context.Context, p Params) error {
	w.mu.Lock()
	w.chanConn = p.Chan
	w.mu.Unlock()
	w.appConn = p.App

	writerDone := make(chan error, 1)
	go func() { writerDone <- w.runChannelWriter(ctx) }()

	readerDone := make(chan error, 1)
	go func() { readerDone <- w.runChannelReader(ctx, p) }()

	appErr := w.bridgeApp(p)

	w.xfer.Stop()
	werr := <-writerDone

	// The application side is done for good; closing the active channel
	// connection unblocks the reader's blocking Read so the loop can
	// return rather than wait forever on a peer with nothing left to say.
	// closing tells the reader that whatever error this produces is the
	// expected consequence of our own shutdown, not a real channel fault.
	w.mu.Lock()
	w.closing = true
	ch := w.chanConn
	w.mu.Unlock()
	ch.Close()
	rerr := <-readerDone

	w.pool.Stop(w.threads)
	if appErr != nil {
		return appErr
	}
	if werr != nil {
		return werr
	}
	return rerr
}

// bridgeApp mints one PIPE_READ-kind shadow entry standing in for the
// application's byte stream, announces it with a TypeMetadata frame,
// and then stages every chunk read from p.App into that entry and runs
// it through the real Table/CollectUpdate path (not a hand-built frame
// with a made-up id) so the peer can adopt it and replicate it back out
// through the ordinary ApplyUpdate path.
func (w *Worker) bridgeApp(p Params) error {
	id, err := w.table.Translate(nil, shadow.KindPipeRead, nil, nil)
	if err != nil {
		return fmt.Errorf("worker: translate app stream: %w", err)
	}
	if err := w.sendMetadata(id, shadow.KindPipeRead); err != nil {
		return err
	}
	e, err := w.table.Lookup(id)
	if err != nil {
		return fmt.Errorf("worker: lookup app stream entry: %w", err)
	}

	buf := make([]byte, 64*1024)
	for {
		n, err := p.App.Read(buf)
		if n > 0 {
			e.Lock()
			e.PendingBytes = append(e.PendingBytes, buf[:n]...)
			e.Damage.MarkAll()
			e.IsDirty = true
			e.Unlock()
			if cerr := shadow.CollectUpdate(e, p.Config, w.pool, w.xfer); cerr != nil {
				return fmt.Errorf("worker: collect app stream update: %w", cerr)
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("worker: read app: %w", err)
		}
	}
}

// sendMetadata announces a freshly minted shadow id ahead of any frame
// referencing it, required before the peer's ApplyUpdate can adopt it.
func (w *Worker) sendMetadata(id int32, kind shadow.Kind) error {
	payload, err := wire.EncodeMetadata(wire.Metadata{Kind: uint8(kind)})
	if err != nil {
		return fmt.Errorf("worker: encode metadata for remote id %d: %w", id, err)
	}
	frame, err := wire.Encode(nil, wire.Header{Type: wire.TypeMetadata, XID: id}, payload)
	if err != nil {
		return fmt.Errorf("worker: encode metadata frame for remote id %d: %w", id, err)
	}
	w.xfer.Append(xfer.Segment{MessageNumber: w.xfer.NextMessageNumber(), Bytes: frame})
	return nil
}

// maybeStartPipeForwarder starts the channel->app copy for a pipe entry
// the moment this worker adopts it from the peer's metadata: applyMetadata
// hands a PIPE_READ/PIPE_WRITE entry's PeerFD to "whichever local
// consumer" owns it, which for this worker's simplified app-stream model
// is always the local application connection.
func (w *Worker) maybeStartPipeForwarder(remoteID int32) {
	e, err := w.table.Lookup(remoteID)
	if err != nil {
		return
	}
	if (e.Kind != shadow.KindPipeRead && e.Kind != shadow.KindPipeWrite) || e.PeerFD == nil {
		return
	}
	w.mu.Lock()
	if w.forwarded == nil {
		w.forwarded = make(map[int32]bool)
	}
	start := !w.forwarded[remoteID]
	w.forwarded[remoteID] = true
	w.mu.Unlock()
	if start {
		go w.forwardPipeToApp(e)
	}
}

// forwardPipeToApp copies bytes the peer replicates for its own app
// stream out to this side's application connection: the channel->app
// half of the bridge that bridgeApp's own read loop, covering only
// app->channel, does not provide.
func (w *Worker) forwardPipeToApp(e *shadow.Entry) {
	if _, err := io.Copy(w.appConn, e.PeerFD); err != nil {
		w.log.Debugf("app stream forwarder for remote id %d stopped: %s", e.RemoteID, err)
	}
}

// runChannelWriter drains the transfer buffer in order and writes each
// segment's bytes to the active channel connection.
func (w *Worker) runChannelWriter(ctx context.Context) error {
	for {
		seg, ok := w.xfer.Drain()
		if !ok {
			return nil
		}
		w.mu.Lock()
		ch := w.chanConn
		w.mu.Unlock()
		if _, err := ch.Write(seg.Bytes); err != nil {
			return fmt.Errorf("worker: write channel: %w", err)
		}
	}
}

// runChannelReader reads frames from the channel and applies them to the
// local shadow table; on channel hangup (EOF or a read error), if p.Link
// is set it blocks for a replacement fd and continues reading frames
// from it. No message numbers are acknowledged or replayed: frames that
// were in flight on the dropped channel are not resent.
func (w *Worker) runChannelReader(ctx context.Context, p Params) error {
	current := p.Chan
	for {
		err := w.readFramesUntilError(current)
		w.mu.Lock()
		closing := w.closing
		w.mu.Unlock()
		if closing || err == nil {
			return nil
		}
		if p.Link == nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		w.log.Warnf("channel read failed (%s); waiting for replacement fd", err)
		fd, rerr := ipc.RecvFD(p.Link)
		if rerr != nil {
			return fmt.Errorf("worker: recv replacement fd: %w", rerr)
		}
		f := os.NewFile(uintptr(fd), "replacement-channel")
		conn, rerr := net.FileConn(f)
		f.Close()
		if rerr != nil {
			return fmt.Errorf("worker: wrap replacement fd: %w", rerr)
		}
		current = transport.NewSocketChannel(w.log.Fork("chan"), conn)
		w.mu.Lock()
		w.chanConn = current
		w.mu.Unlock()
	}
}

func (w *Worker) readFramesUntilError(ch transport.Channel) error {
	var pending []byte
	buf := make([]byte, 64*1024)
	for {
		n, err := ch.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				h, payload, consumed, derr := wire.Decode(pending)
				if derr != nil {
					break
				}
				if aerr := w.table.ApplyUpdate(h, payload, w.pool); aerr != nil {
					return fmt.Errorf("worker: apply update: %w", aerr)
				}
				if h.Type == wire.TypeMetadata {
					w.maybeStartPipeForwarder(h.XID)
				}
				pending = pending[consumed:]
			}
		}
		if err != nil {
			return err
		}
	}
}
