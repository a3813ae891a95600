package ipc

import (
	"net"
	"os"
	"testing"
)

func TestSendRecvFDRoundTrip(t *testing.T) {
	a, b, err := Socketpair()
	if err != nil {
		t.Fatalf("Socketpair: %s", err)
	}
	defer a.Close()
	defer b.Close()

	aConn, err := net.FileConn(a)
	if err != nil {
		t.Fatalf("FileConn(a): %s", err)
	}
	defer aConn.Close()
	bConn, err := net.FileConn(b)
	if err != nil {
		t.Fatalf("FileConn(b): %s", err)
	}
	defer bConn.Close()

	payload, err := os.CreateTemp(t.TempDir(), "fdpass-*")
	if err != nil {
		t.Fatalf("CreateTemp: %s", err)
	}
	defer payload.Close()
	if _, err := payload.WriteString("passed across the wire"); err != nil {
		t.Fatalf("write payload: %s", err)
	}

	done := make(chan error, 1)
	var recvFD int
	go func() {
		fd, err := RecvFD(bConn.(*net.UnixConn))
		recvFD = fd
		done <- err
	}()

	if err := SendFD(aConn.(*net.UnixConn), int(payload.Fd())); err != nil {
		t.Fatalf("SendFD: %s", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("RecvFD: %s", err)
	}

	received := os.NewFile(uintptr(recvFD), "received")
	defer received.Close()
	if _, err := received.Seek(0, 0); err != nil {
		t.Fatalf("seek received fd: %s", err)
	}
	buf := make([]byte, len("passed across the wire"))
	if _, err := received.Read(buf); err != nil {
		t.Fatalf("read received fd: %s", err)
	}
	if string(buf) != "passed across the wire" {
		t.Errorf("got %q, want %q", buf, "passed across the wire")
	}
}
