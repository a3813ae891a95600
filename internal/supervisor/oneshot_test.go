package supervisor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/mstoeckl/waypipe-go/internal/control"
	"github.com/mstoeckl/waypipe-go/internal/ipc"
	"github.com/mstoeckl/waypipe-go/internal/token"
	"github.com/mstoeckl/waypipe-go/internal/transport"
	"github.com/mstoeckl/waypipe-go/internal/wplog"
)

func testSupervisorLogger() *wplog.Logger {
	return wplog.New("supervisor-test", wplog.LevelError)
}

// readFull blocks until exactly len(buf) bytes have been read from ch.
func readFull(ch transport.Channel, buf []byte) error {
	read := 0
	for read < len(buf) {
		n, err := ch.Read(buf[read:])
		read += n
		if err != nil {
			return err
		}
	}
	return nil
}

// acceptOneToken accepts a single connection on ln and consumes its
// 16-byte token header, leaving the channel open for the caller.
func acceptOneToken(t *testing.T, ln transport.Listener) transport.Channel {
	t.Helper()
	ch, err := ln.Accept()
	if err != nil {
		t.Fatalf("Accept: %s", err)
	}
	buf := make([]byte, token.Size)
	if err := readFull(ch, buf); err != nil {
		t.Fatalf("read token: %s", err)
	}
	if _, err := token.Unmarshal(buf); err != nil {
		t.Fatalf("token.Unmarshal: %s", err)
	}
	return ch
}

// writeControlLine opens the FIFO at path for writing, the way an external
// operator process would, and sends one newline-terminated migration line.
func writeControlLine(t *testing.T, path, line string) {
	t.Helper()
	w, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open fifo for write: %s", err)
	}
	defer w.Close()
	if _, err := w.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("write control line: %s", err)
	}
}

// TestRunOneshotReconnectsThroughControlFIFO exercises spec S2: a
// reconnectable oneshot session, told via the control FIFO to migrate to a
// new channel address, hands the replacement fd across the link to the
// worker and keeps forwarding application bytes over the new channel.
func TestRunOneshotReconnectsThroughControlFIFO(t *testing.T) {
	log := testSupervisorLogger()
	dir := t.TempDir()

	path1 := filepath.Join(dir, "sock1")
	path2 := filepath.Join(dir, "sock2")
	fifoPath := filepath.Join(dir, "control")

	ln1, err := transport.Listen(log, path1, 0)
	if err != nil {
		t.Fatalf("Listen path1: %s", err)
	}
	defer ln1.StartShutdown(nil)
	ln2, err := transport.Listen(log, path2, 0)
	if err != nil {
		t.Fatalf("Listen path2: %s", err)
	}
	defer ln2.StartShutdown(nil)

	ch1Ready := make(chan transport.Channel, 1)
	go func() { ch1Ready <- acceptOneToken(t, ln1) }()

	fifo, err := control.Create(fifoPath)
	if err != nil {
		t.Fatalf("control.Create: %s", err)
	}
	defer fifo.Close(true)

	appLink, appFile, err := ipc.Socketpair()
	if err != nil {
		t.Fatalf("Socketpair: %s", err)
	}
	defer appFile.Close()

	p := Params{SocketAddr: path1}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- runOneshot(ctx, log, p, appLink, true, fifo) }()

	var ch1 transport.Channel
	select {
	case ch1 = <-ch1Ready:
	case <-time.After(2 * time.Second):
		t.Fatal("initial channel was never dialed")
	}

	ch2Ready := make(chan transport.Channel, 1)
	go func() { ch2Ready <- acceptOneToken(t, ln2) }()

	writeControlLine(t, fifoPath, path2)

	var ch2 transport.Channel
	select {
	case ch2 = <-ch2Ready:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement channel was never dialed after the control line")
	}
	defer ch2.Close()

	// The Reconnection Helper dials and hands off the replacement fd as
	// soon as the control line arrives, independent of the worker's own
	// channel; the worker itself only picks it up once its current read
	// fails, mirroring the WAIT/EXIT state machine's contract.
	ch1.Close()

	if _, err := appFile.Write([]byte("post-migration bytes")); err != nil {
		t.Fatalf("write app bytes: %s", err)
	}

	type readResult struct {
		n   int
		err error
	}
	readDone := make(chan readResult, 1)
	go func() {
		readBuf := make([]byte, 4096)
		n, err := ch2.Read(readBuf)
		readDone <- readResult{n, err}
	}()
	select {
	case got := <-readDone:
		if got.err != nil {
			t.Fatalf("read from replacement channel: %s", got.err)
		}
		if got.n == 0 {
			t.Fatalf("expected forwarded bytes on the replacement channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("never received forwarded bytes on the replacement channel")
	}

	appFile.Close()
	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("runOneshot did not return after cancellation")
	}
}

// TestRunServerOneshotPropagatesApplicationExitStatus exercises spec S4:
// the application exits with status 7 in oneshot mode, and RunServer's
// result reports the same status rather than a supervisor-level failure
// code, once the channel itself stays healthy throughout.
func TestRunServerOneshotPropagatesApplicationExitStatus(t *testing.T) {
	if _, err := exec.LookPath("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	log := testSupervisorLogger()
	dir := t.TempDir()
	path := filepath.Join(dir, "sock")

	ln, err := transport.Listen(log, path, 0)
	if err != nil {
		t.Fatalf("Listen: %s", err)
	}
	defer ln.StartShutdown(nil)

	chReady := make(chan transport.Channel, 1)
	go func() { chReady <- acceptOneToken(t, ln) }()

	p := Params{
		SocketAddr: path,
		Oneshot:    true,
		Argv:       []string{"/bin/sh", "-c", "exit 7"},
	}

	resultDone := make(chan struct {
		res Result
		err error
	}, 1)
	go func() {
		res, err := RunServer(context.Background(), log, p)
		resultDone <- struct {
			res Result
			err error
		}{res, err}
	}()

	select {
	case <-chReady:
	case <-time.After(2 * time.Second):
		t.Fatal("channel was never dialed")
	}

	select {
	case got := <-resultDone:
		if got.err != nil {
			t.Fatalf("RunServer: %s", got.err)
		}
		if got.res.ExitCode != 7 {
			t.Errorf("ExitCode = %d, want 7", got.res.ExitCode)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunServer did not return after the application exited")
	}
}
