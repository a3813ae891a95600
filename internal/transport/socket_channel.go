package transport

import (
	"fmt"
	"net"
	"os"
	"sync/atomic"

	"github.com/mstoeckl/waypipe-go/internal/lifecycle"
	"github.com/mstoeckl/waypipe-go/internal/wplog"
)

// SocketChannel wraps a net.Conn (unix or tcp) as a Channel, mirroring the
// teacher's SocketConn: byte counters, CloseWrite via a type assertion
// against the underlying net.Conn, and shutdown delegated to a
// lifecycle.Helper.
type SocketChannel struct {
	helper lifecycle.Helper
	log    *wplog.Logger
	conn   net.Conn

	bytesRead    int64
	bytesWritten int64
}

// NewSocketChannel wraps conn and starts its shutdown helper.
func NewSocketChannel(log *wplog.Logger, conn net.Conn) *SocketChannel {
	c := &SocketChannel{log: log, conn: conn}
	c.helper.Init(c)
	return c
}

func (c *SocketChannel) Read(p []byte) (int, error) {
	n, err := c.conn.Read(p)
	atomic.AddInt64(&c.bytesRead, int64(n))
	return n, err
}

func (c *SocketChannel) Write(p []byte) (int, error) {
	n, err := c.conn.Write(p)
	atomic.AddInt64(&c.bytesWritten, int64(n))
	return n, err
}

// CloseWrite shuts down the write half if the wrapped net.Conn supports
// it (*net.TCPConn and *net.UnixConn both do); otherwise it is a no-op.
func (c *SocketChannel) CloseWrite() error {
	type writeHalfCloser interface {
		CloseWrite() error
	}
	if whc, ok := c.conn.(writeHalfCloser); ok {
		if err := whc.CloseWrite(); err != nil {
			return fmt.Errorf("transport: CloseWrite: %w", err)
		}
		return nil
	}
	c.log.Debugf("CloseWrite ignored: %T does not support half-close", c.conn)
	return nil
}

func (c *SocketChannel) Close() error {
	return c.helper.Shutdown(nil)
}

func (c *SocketChannel) StartShutdown(completionErr error) {
	c.helper.StartShutdown(completionErr)
}

func (c *SocketChannel) ShutdownDoneChan() <-chan struct{} {
	return c.helper.ShutdownDoneChan()
}

func (c *SocketChannel) IsDoneShutdown() bool {
	return c.helper.IsDoneShutdown()
}

func (c *SocketChannel) WaitShutdown() error {
	return c.helper.WaitShutdown()
}

// DupFile returns a duplicate of the wrapped connection's underlying fd
// as an *os.File, for callers that must pass it across a process or link
// boundary via ancillary messages (the reconnection helper). The
// caller owns the returned file and must close it once sent.
func (c *SocketChannel) DupFile() (*os.File, error) {
	type fileConn interface {
		File() (*os.File, error)
	}
	fc, ok := c.conn.(fileConn)
	if !ok {
		return nil, fmt.Errorf("transport: %T does not expose a raw fd", c.conn)
	}
	f, err := fc.File()
	if err != nil {
		return nil, fmt.Errorf("transport: DupFile: %w", err)
	}
	return f, nil
}

// HandleOnceShutdown implements lifecycle.OnceShutdownHandler.
func (c *SocketChannel) HandleOnceShutdown(completionErr error) error {
	err := c.conn.Close()
	if completionErr != nil {
		return completionErr
	}
	if err != nil {
		return fmt.Errorf("transport: close: %w", err)
	}
	return nil
}
