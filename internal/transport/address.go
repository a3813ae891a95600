package transport

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/mstoeckl/waypipe-go/internal/wplog"
)

// Dial connects to addr, which is either a bare filesystem path (treated
// as a unix-domain socket), a "host:port" pair (treated as TCP), or a
// "ws://" / "wss://" URL (treated as a websocket relay). This is the one
// entry point the reconnection helper and the supervisor's dial paths use
// so that a channel address's scheme stays opaque to callers.
func Dial(ctx context.Context, log *wplog.Logger, addr string) (Channel, error) {
	switch {
	case strings.HasPrefix(addr, "ws://"), strings.HasPrefix(addr, "wss://"):
		return NewWSDialer(log).DialContext(ctx, WSDialParams{URL: addr})
	case strings.Contains(addr, "/") && !strings.Contains(addr, ":"):
		return NewNetDialer(log).DialContext(ctx, NetDialParams{Network: "unix", Address: addr})
	default:
		return NewNetDialer(log).DialContext(ctx, NetDialParams{Network: "tcp", Address: addr})
	}
}

// Listen binds addr the same way Dial interprets it, for the display
// socket and any debug listeners. Websocket addresses are not valid here;
// a WSListener must instead be mounted on an *http.Server by the caller.
// backlog, if positive, is applied explicitly for a unix-domain address
// (Go's net.Listen always uses the OS's SOMAXCONN-derived default, which
// setup_nb_socket's caller-supplied backlog argument does not); it is
// ignored for tcp, since nothing in this module's listen call sites needs
// a non-default TCP backlog.
func Listen(log *wplog.Logger, addr string, backlog int) (Listener, error) {
	network := "tcp"
	if strings.Contains(addr, "/") && !strings.Contains(addr, ":") {
		network = "unix"
	}
	if network == "unix" && backlog > 0 {
		ln, err := listenUnixWithBacklog(addr, backlog)
		if err != nil {
			return nil, fmt.Errorf("transport: listen unix %s (backlog %d): %w", addr, backlog, err)
		}
		return NewNetListener(log, ln), nil
	}
	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s %s: %w", network, addr, err)
	}
	return NewNetListener(log, ln), nil
}

// listenUnixWithBacklog binds and listens on a unix-domain address using
// the raw socket/bind/listen syscalls directly, the only way to pass an
// explicit backlog rather than Go's compiled-in default.
func listenUnixWithBacklog(addr string, backlog int) (net.Listener, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: addr}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}
	f := os.NewFile(uintptr(fd), addr)
	ln, err := net.FileListener(f)
	f.Close()
	if err != nil {
		return nil, err
	}
	return ln, nil
}
