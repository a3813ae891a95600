package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/mstoeckl/waypipe-go/internal/lifecycle"
	"github.com/mstoeckl/waypipe-go/internal/wplog"
)

// NetDialParams names a network ("unix" or "tcp") and address to dial,
// passed as the DialParams for a NetDialer.
type NetDialParams struct {
	Network string
	Address string
}

// NetDialer dials plain unix-domain or TCP addresses with net.Dialer.
type NetDialer struct {
	helper lifecycle.Helper
	log    *wplog.Logger
	dialer net.Dialer
}

// NewNetDialer constructs a ready-to-use NetDialer.
func NewNetDialer(log *wplog.Logger) *NetDialer {
	d := &NetDialer{log: log}
	d.helper.Init(d)
	return d
}

func (d *NetDialer) DialContext(ctx context.Context, params DialParams) (Channel, error) {
	p, ok := params.(NetDialParams)
	if !ok {
		return nil, fmt.Errorf("transport: NetDialer: unexpected dial params %T", params)
	}
	conn, err := d.dialer.DialContext(ctx, p.Network, p.Address)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s %s: %w", p.Network, p.Address, err)
	}
	return NewSocketChannel(d.log.Fork("chan"), conn), nil
}

func (d *NetDialer) StartShutdown(completionErr error) { d.helper.StartShutdown(completionErr) }
func (d *NetDialer) ShutdownDoneChan() <-chan struct{} { return d.helper.ShutdownDoneChan() }
func (d *NetDialer) IsDoneShutdown() bool              { return d.helper.IsDoneShutdown() }
func (d *NetDialer) WaitShutdown() error               { return d.helper.WaitShutdown() }
func (d *NetDialer) HandleOnceShutdown(completionErr error) error {
	return completionErr
}
