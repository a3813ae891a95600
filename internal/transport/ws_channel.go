package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mstoeckl/waypipe-go/internal/lifecycle"
	"github.com/mstoeckl/waypipe-go/internal/wplog"
)

// Subprotocol is advertised on every websocket upgrade so that a relay
// fronting multiple protocols can route appropriately, mirroring the
// teacher's ProtocolVersion subprotocol tag.
const Subprotocol = "waypipe-channel-v1"

// WSChannel adapts a *websocket.Conn's message-oriented API to the
// byte-stream Channel interface: each Write call is sent as one binary
// message, and Read drains messages into the caller's buffer, splitting a
// message across multiple Read calls as needed. This lets a ws:// or
// wss:// relay stand in for a raw TCP channel address ( Channel).
type WSChannel struct {
	helper lifecycle.Helper
	log    *wplog.Logger
	conn   *websocket.Conn

	readMu  sync.Mutex
	pending []byte

	writeMu sync.Mutex
}

// NewWSChannel wraps an already-established websocket connection.
func NewWSChannel(log *wplog.Logger, conn *websocket.Conn) *WSChannel {
	c := &WSChannel{log: log, conn: conn}
	c.helper.Init(c)
	return c
}

func (c *WSChannel) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	for len(c.pending) == 0 {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return 0, fmt.Errorf("transport: ws read: %w", err)
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		c.pending = data
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *WSChannel) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, fmt.Errorf("transport: ws write: %w", err)
	}
	return len(p), nil
}

// CloseWrite sends a close control frame for the write direction; the
// underlying websocket protocol has no independent half-close, so this
// signals intent via a normal-closure control message and lets reads
// continue until the peer responds.
func (c *WSChannel) CloseWrite() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline := time.Now().Add(5 * time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && err != websocket.ErrCloseSent {
		return fmt.Errorf("transport: ws CloseWrite: %w", err)
	}
	return nil
}

func (c *WSChannel) Close() error                         { return c.helper.Shutdown(nil) }
func (c *WSChannel) StartShutdown(completionErr error)     { c.helper.StartShutdown(completionErr) }
func (c *WSChannel) ShutdownDoneChan() <-chan struct{}     { return c.helper.ShutdownDoneChan() }
func (c *WSChannel) IsDoneShutdown() bool                  { return c.helper.IsDoneShutdown() }
func (c *WSChannel) WaitShutdown() error                   { return c.helper.WaitShutdown() }

func (c *WSChannel) HandleOnceShutdown(completionErr error) error {
	err := c.conn.Close()
	if completionErr != nil {
		return completionErr
	}
	if err != nil {
		return fmt.Errorf("transport: ws close: %w", err)
	}
	return nil
}

// WSDialParams names the URL to dial ("ws://" or "wss://").
type WSDialParams struct {
	URL string
}

// WSDialer dials websocket channel addresses.
type WSDialer struct {
	helper lifecycle.Helper
	log    *wplog.Logger
	dialer websocket.Dialer
}

// NewWSDialer constructs a ready-to-use WSDialer with a conservative
// handshake timeout and buffer sizing.
func NewWSDialer(log *wplog.Logger) *WSDialer {
	d := &WSDialer{
		log: log,
		dialer: websocket.Dialer{
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			HandshakeTimeout: 45 * time.Second,
			Subprotocols:     []string{Subprotocol},
		},
	}
	d.helper.Init(d)
	return d
}

func (d *WSDialer) DialContext(ctx context.Context, params DialParams) (Channel, error) {
	p, ok := params.(WSDialParams)
	if !ok {
		return nil, fmt.Errorf("transport: WSDialer: unexpected dial params %T", params)
	}
	conn, _, err := d.dialer.DialContext(ctx, p.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: ws dial %s: %w", p.URL, err)
	}
	return NewWSChannel(d.log.Fork("chan"), conn), nil
}

func (d *WSDialer) StartShutdown(completionErr error) { d.helper.StartShutdown(completionErr) }
func (d *WSDialer) ShutdownDoneChan() <-chan struct{} { return d.helper.ShutdownDoneChan() }
func (d *WSDialer) IsDoneShutdown() bool              { return d.helper.IsDoneShutdown() }
func (d *WSDialer) WaitShutdown() error               { return d.helper.WaitShutdown() }
func (d *WSDialer) HandleOnceShutdown(completionErr error) error {
	return completionErr
}

// WSListener upgrades incoming HTTP requests to websocket channels,
// handing each accepted connection off through a buffered channel so
// Accept can present the same blocking-call contract as NetListener.
type WSListener struct {
	helper   lifecycle.Helper
	log      *wplog.Logger
	upgrader websocket.Upgrader
	accepted chan Channel
	errs     chan error
}

// NewWSListener constructs a listener; the caller is responsible for
// routing an http.Server's handler to ServeHTTP.
func NewWSListener(log *wplog.Logger) *WSListener {
	l := &WSListener{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			Subprotocols:    []string{Subprotocol},
		},
		accepted: make(chan Channel, 16),
		errs:     make(chan error, 16),
	}
	l.helper.Init(l)
	return l
}

// ServeHTTP upgrades the request and enqueues the resulting channel for
// Accept. Wire this as an http.Handler on whatever path the relay uses.
func (l *WSListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.log.Warnf("ws upgrade failed: %s", err)
		return
	}
	select {
	case l.accepted <- NewWSChannel(l.log.Fork("chan"), conn):
	case <-l.helper.ShutdownDoneChan():
		conn.Close()
	}
}

func (l *WSListener) Accept() (Channel, error) {
	select {
	case ch := <-l.accepted:
		return ch, nil
	case err := <-l.errs:
		return nil, err
	case <-l.helper.ShutdownDoneChan():
		return nil, io.EOF
	}
}

func (l *WSListener) StartShutdown(completionErr error) { l.helper.StartShutdown(completionErr) }
func (l *WSListener) ShutdownDoneChan() <-chan struct{} { return l.helper.ShutdownDoneChan() }
func (l *WSListener) IsDoneShutdown() bool              { return l.helper.IsDoneShutdown() }
func (l *WSListener) WaitShutdown() error               { return l.helper.WaitShutdown() }
func (l *WSListener) HandleOnceShutdown(completionErr error) error {
	return completionErr
}
