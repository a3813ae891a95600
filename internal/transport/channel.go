// Package transport provides the Channel abstraction used on both ends of
// a connection: a bidirectional byte stream with a half-close, plus
// listener and dialer factories for the concrete addressing schemes a
// channel address may name (unix domain socket, TCP, or a WebSocket
// relay).
package transport

import (
	"context"
	"io"

	"github.com/mstoeckl/waypipe-go/internal/lifecycle"
)

// WriteHalfCloser lets a Channel's write side be shut down (so the peer's
// Read observes EOF) while local reads continue, matching half-duplex
// protocols where one side signals "no more requests" before reading a
// reply.
type WriteHalfCloser interface {
	CloseWrite() error
}

// Channel is an open bidirectional stream between this process and a
// peer: either the compositor-facing transport (chan_fd) used by a
// per-connection worker, or a link-socket rendezvous used by the
// reconnection helper. It intentionally mirrors net.Conn plus a
// half-close and async shutdown, so that a net.Conn can be wrapped into a
// Channel with no copying.
type Channel interface {
	io.ReadWriteCloser
	WriteHalfCloser
	lifecycle.AsyncShutdowner
}

// DialParams carries scheme-specific dial information (for example, a
// path for unix sockets, or a host:port for tcp/ws); its meaning is
// specific to the Dialer implementation in use.
type DialParams interface{}

// Dialer produces Channels on demand by connecting to a named address.
type Dialer interface {
	lifecycle.AsyncShutdowner

	// DialContext connects to the channel endpoint described by params.
	// A returned error indicates that this attempt failed, not that
	// future attempts will also fail.
	DialContext(ctx context.Context, params DialParams) (Channel, error)
}

// Listener produces Channels by accepting inbound connections.
type Listener interface {
	lifecycle.AsyncShutdowner

	// Accept blocks until a new channel is established or the listener
	// is shut down, in which case it returns an error promptly.
	Accept() (Channel, error)
}
