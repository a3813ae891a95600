package transport

import (
	"fmt"
	"net"

	"github.com/mstoeckl/waypipe-go/internal/lifecycle"
	"github.com/mstoeckl/waypipe-go/internal/wplog"
)

// NetListener wraps a net.Listener (unix-domain display socket, or a TCP
// listener for a forwarded debug port) as a Listener.
type NetListener struct {
	helper   lifecycle.Helper
	log      *wplog.Logger
	listener net.Listener
}

// NewNetListener wraps an already-bound net.Listener.
func NewNetListener(log *wplog.Logger, listener net.Listener) *NetListener {
	l := &NetListener{log: log, listener: listener}
	l.helper.Init(l)
	return l
}

func (l *NetListener) Accept() (Channel, error) {
	conn, err := l.listener.Accept()
	if err != nil {
		return nil, fmt.Errorf("transport: accept: %w", err)
	}
	return NewSocketChannel(l.log.Fork("chan"), conn), nil
}

func (l *NetListener) StartShutdown(completionErr error) { l.helper.StartShutdown(completionErr) }
func (l *NetListener) ShutdownDoneChan() <-chan struct{} { return l.helper.ShutdownDoneChan() }
func (l *NetListener) IsDoneShutdown() bool              { return l.helper.IsDoneShutdown() }
func (l *NetListener) WaitShutdown() error                { return l.helper.WaitShutdown() }
func (l *NetListener) HandleOnceShutdown(completionErr error) error {
	err := l.listener.Close()
	if completionErr != nil {
		return completionErr
	}
	if err != nil {
		return fmt.Errorf("transport: listener close: %w", err)
	}
	return nil
}
