package shadow

import (
	"bytes"
	"testing"

	"github.com/mstoeckl/waypipe-go/internal/ipc"
	"github.com/mstoeckl/waypipe-go/internal/pool"
	"github.com/mstoeckl/waypipe-go/internal/wire"
	"github.com/mstoeckl/waypipe-go/internal/xfer"
)

func TestPipeAppendRoundTrip(t *testing.T) {
	e := &Entry{RemoteID: 2, Kind: KindPipeRead, PendingBytes: []byte("streamed bytes")}
	e.Damage.MarkAll()
	e.IsDirty = true

	p := pool.New(0)
	buf := xfer.New()
	if err := CollectUpdate(e, nil, p, buf); err != nil {
		t.Fatalf("CollectUpdate: %s", err)
	}
	if err := p.Drain(); err != nil {
		t.Fatalf("Drain: %s", err)
	}
	buf.Stop()
	seg, ok := buf.Drain()
	if !ok {
		t.Fatalf("expected one pipe-append segment before the sentinel")
	}

	h, payload, _, err := wire.Decode(seg.Bytes)
	if err != nil {
		t.Fatalf("wire.Decode: %s", err)
	}
	if h.Type != wire.TypePipeAppend || h.XID != 2 {
		t.Fatalf("unexpected frame header: %+v", h)
	}
	if string(payload) != "streamed bytes" {
		t.Errorf("payload = %q, want %q", payload, "streamed bytes")
	}
	if e.PendingBytes != nil || e.IsDirty || !e.Damage.Empty() {
		t.Errorf("pipe entry state not reset after collection: %+v", e)
	}
}

func TestApplyPipeAppendWritesToLocalFD(t *testing.T) {
	r, w, err := ipc.Socketpair()
	if err != nil {
		t.Fatalf("socketpair: %s", err)
	}
	defer r.Close()
	defer w.Close()

	tab := NewTable(false)
	tab.adopt(4, &Entry{Kind: KindPipeRead, FDLocal: w})

	payload := []byte("hello over the pipe")
	if err := tab.ApplyUpdate(wire.Header{Type: wire.TypePipeAppend, XID: 4}, payload, nil); err != nil {
		t.Fatalf("ApplyUpdate: %s", err)
	}

	got := make([]byte, len(payload))
	n, err := r.Read(got)
	if err != nil {
		t.Fatalf("read back: %s", err)
	}
	if !bytes.Equal(got[:n], payload) {
		t.Errorf("got %q, want %q", got[:n], payload)
	}
}
