package supervisor

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/mstoeckl/waypipe-go/internal/connmap"
	"github.com/mstoeckl/waypipe-go/internal/control"
	"github.com/mstoeckl/waypipe-go/internal/ipc"
	"github.com/mstoeckl/waypipe-go/internal/token"
	"github.com/mstoeckl/waypipe-go/internal/transport"
	"github.com/mstoeckl/waypipe-go/internal/worker"
	"github.com/mstoeckl/waypipe-go/internal/wplog"
)

// runMulti implements the multi-mode event loop: accept new
// application connections on listener and dispatch migrations read from
// fifo to every live connection map row. It reaps no child processes; a
// row leaves the map when its worker goroutine returns (cm.Remove).
func runMulti(ctx context.Context, log *wplog.Logger, p Params, listener transport.Listener, reconnectable bool, fifo *control.FIFO) error {
	cm := connmap.New()
	cm.SetCurrentAddr(p.SocketAddr)

	newPaths := make(chan string, 4)
	if fifo != nil {
		go pumpControlLines(ctx, log, fifo, newPaths)
	}

	accepted := make(chan transport.Channel, 4)
	acceptErrs := make(chan error, 1)
	go func() {
		for {
			ch, err := listener.Accept()
			if err != nil {
				acceptErrs <- err
				return
			}
			accepted <- ch
		}
	}()

	for {
		select {
		case <-ctx.Done():
			listener.StartShutdown(nil)
			closeAllRows(cm)
			return nil

		case err := <-acceptErrs:
			return fmt.Errorf("supervisor: multi: accept: %w", err)

		case ch := <-accepted:
			if err := handleNewConnection(log, p, cm, ch, reconnectable); err != nil {
				log.Warnf("multi: new connection setup failed: %s", err)
			}

		case path := <-newPaths:
			migrateAll(ctx, log, cm, p, path)
		}
	}
}

func closeAllRows(cm *connmap.Map) {
	for _, row := range cm.Rows() {
		if row.LinkFD != nil {
			row.LinkFD.Close()
		}
	}
}

func handleNewConnection(log *wplog.Logger, p Params, cm *connmap.Map, appCh transport.Channel, reconnectable bool) error {
	ch, err := transport.Dial(context.Background(), log, cm.CurrentAddr())
	if err != nil {
		appCh.Close()
		return fmt.Errorf("dial channel: %w", err)
	}
	tok := token.Mint(token.Token{}, reconnectable, false)
	if _, err := ch.Write(tok.Marshal()); err != nil {
		ch.Close()
		appCh.Close()
		return fmt.Errorf("write token: %w", err)
	}

	w := worker.New(log.Fork("worker"), p.Config, true)
	params := worker.Params{Chan: ch, App: appCh, Config: p.Config, IsClient: false}

	row := &connmap.Row{Token: tok}
	if reconnectable {
		supervisorEnd, workerEnd, err := ipc.Socketpair()
		if err != nil {
			ch.Close()
			appCh.Close()
			return fmt.Errorf("link socketpair: %w", err)
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
		row.LinkFD = supervisorLink
	}
	cm.Add(row)

	go func() {
		if err := w.MainInterfaceLoop(context.Background(), params); err != nil {
			log.Debugf("worker exited: %s", err)
		}
		cm.Remove(row)
	}()
	return nil
}

// migrateAll implements control-pipe handling: for each surviving
// row, dial the new address, send the row's token with UPDATE set, and
// pass the new socket fd through the row's link fd. On any error, abort
// that row's migration but keep its old address in effect (the
// best-effort-with-quarantine policy resolving the open question). Only
// once every non-quarantined row has migrated successfully does the map
// adopt newPath for subsequent new connections, unlinking the previous
// address if this supervisor owns it, mirroring update_connections.
func migrateAll(ctx context.Context, log *wplog.Logger, cm *connmap.Map, p Params, newPath string) {
	allSucceeded := true
	for _, row := range cm.Rows() {
		if row.Quarantined || row.LinkFD == nil {
			continue
		}
		if err := migrateRow(ctx, log, row, newPath); err != nil {
			log.Warnf("migration of connection %v to %s failed, quarantining: %s", row.Token.SessionKey(), newPath, err)
			cm.Quarantine(row)
			allSucceeded = false
		}
	}
	if !allSucceeded {
		return
	}
	oldPath := cm.CurrentAddr()
	if p.UnlinkAtEnd && oldPath != newPath {
		if err := os.Remove(oldPath); err != nil {
			log.Warnf("migration: unlink previous channel address %s: %s", oldPath, err)
		}
	}
	cm.SetCurrentAddr(newPath)
}

func migrateRow(ctx context.Context, log *wplog.Logger, row *connmap.Row, newPath string) error {
	ch, err := transport.Dial(ctx, log, newPath)
	if err != nil {
		return err
	}
	defer ch.Close()

	updated := token.FlagUpdate(row.Token)
	if _, err := ch.Write(updated.Marshal()); err != nil {
		return err
	}
	sc, ok := ch.(*transport.SocketChannel)
	if !ok {
		return fmt.Errorf("dialed channel does not support fd passing")
	}
	f, err := sc.DupFile()
	if err != nil {
		return err
	}
	defer f.Close()
	if err := ipc.SendFD(row.LinkFD, int(f.Fd())); err != nil {
		return err
	}
	row.Token = updated
	return nil
}

// waitAnyChild is a connmap.Waiter backed by wait4(-1, WNOHANG). Kept
// as tested, designed infrastructure for a forked-child deployment; see
// DESIGN.md for why the live event loop below does not call it.
func waitAnyChild() (pid int, status int, ok bool) {
	var ws syscall.WaitStatus
	p, err := syscall.Wait4(-1, &ws, syscall.WNOHANG, nil)
	if err != nil || p <= 0 {
		return 0, 0, false
	}
	return p, ws.ExitStatus(), true
}
