package shadow

import (
	"fmt"

	"github.com/mstoeckl/waypipe-go/internal/diffcodec"
	"github.com/mstoeckl/waypipe-go/internal/ipc"
	"github.com/mstoeckl/waypipe-go/internal/pool"
	"github.com/mstoeckl/waypipe-go/internal/wire"
)

// ApplyUpdate reconstitutes or patches the fd named by header.XID from a
// received transfer frame. On first sighting of an id (driven
// by a TypeMetadata frame) it creates the backing memfd/pipe; subsequent
// TypeFullResend/TypeDiff frames patch byte ranges; TypeClose marks a
// pipe entry's peer side gone.
//
// Applying the same block twice is idempotent: a segment whose
// target bytes already match is compared and skipped without a copy,
// and a diff in which every segment matches leaves is_dirty unchanged.
func (t *Table) ApplyUpdate(header wire.Header, payload []byte, p *pool.Pool) error {
	switch header.Type {
	case wire.TypeMetadata:
		return t.applyMetadata(header.XID, payload)
	case wire.TypeFullResend, wire.TypeDiff:
		return t.applyDiff(header.XID, payload, p)
	case wire.TypePipeAppend:
		return t.applyPipeAppend(header.XID, payload)
	case wire.TypeClose:
		return t.applyClose(header.XID)
	default:
		return fmt.Errorf("shadow: apply_update: unknown transfer type %d", header.Type)
	}
}

func (t *Table) applyMetadata(remoteID int32, payload []byte) error {
	md, err := wire.DecodeMetadata(payload)
	if err != nil {
		return fmt.Errorf("shadow: apply metadata for remote id %d: %w", remoteID, err)
	}
	if _, err := t.Lookup(remoteID); err == nil {
		// Already adopted (e.g. a metadata retransmit); nothing to do.
		return nil
	}
	switch Kind(md.Kind) {
	case KindFile:
		f, err := ipc.CreateMemfd(fmt.Sprintf("shadow-%d", remoteID), md.Size)
		if err != nil {
			return fmt.Errorf("shadow: create memfd for remote id %d: %w", remoteID, err)
		}
		mapped, err := ipc.MapShared(f, int(md.Size))
		if err != nil {
			f.Close()
			return fmt.Errorf("shadow: map memfd for remote id %d: %w", remoteID, err)
		}
		t.adopt(remoteID, &Entry{
			Kind:         KindFile,
			FDLocal:      f,
			Size:         md.Size,
			mapped:       mapped,
			MirrorBuffer: make([]byte, md.Size),
		})
		return nil
	case KindDMABUF:
		t.adopt(remoteID, &Entry{
			Kind:       KindDMABUF,
			DMABUFMeta: md.DMABUF,
			Size:       md.Size,
		})
		return nil
	case KindPipeRead, KindPipeWrite:
		// A pipe-kind shadow entry reconstitutes as one end of a
		// fresh pair; PeerFD is the other end, handed to the local
		// application consumer by the per-connection worker's I/O
		// contract rather than by the table itself.
		local, peer, err := ipc.Socketpair()
		if err != nil {
			return fmt.Errorf("shadow: create pipe pair for remote id %d: %w", remoteID, err)
		}
		t.adopt(remoteID, &Entry{Kind: Kind(md.Kind), FDLocal: local, PeerFD: peer})
		return nil
	case KindSocket:
		return fmt.Errorf("shadow: apply metadata for remote id %d: SOCKET kind has no local reconstitution path", remoteID)
	default:
		return fmt.Errorf("shadow: apply metadata for remote id %d: unknown kind %d", remoteID, md.Kind)
	}
}

// applyDiff decompresses and applies a received diff/full-resend frame.
// Both steps run as pool tasks (TaskDecompressBlock, TaskApplyDiff) rather
// than inline on the channel-reader goroutine, then Drain is used to wait
// for each before moving on: that keeps application order identical to
// frame-arrival order for a given remote id while still letting the pool's
// goroutines, not the reader, do the CPU work.
func (t *Table) applyDiff(remoteID int32, payload []byte, p *pool.Pool) error {
	e, err := t.Lookup(remoteID)
	if err != nil {
		return fmt.Errorf("shadow: apply diff: %w", err)
	}

	var raw []byte
	var decodeErr error
	p.Enqueue(pool.Task{
		Kind: pool.TaskDecompressBlock,
		Run: func() error {
			raw, decodeErr = diffcodec.DecodeEnvelope(payload)
			return decodeErr
		},
	})
	if err := p.Drain(); err != nil {
		return fmt.Errorf("shadow: apply diff for remote id %d: %w", remoteID, err)
	}

	segs, err := wire.DecodeDiffSegments(raw)
	if err != nil {
		return fmt.Errorf("shadow: apply diff for remote id %d: %w", remoteID, err)
	}

	var applyErr error
	p.Enqueue(pool.Task{
		Kind: pool.TaskApplyDiff,
		Run: func() error {
			e.Lock()
			defer e.Unlock()
			anyChanged := false
			for _, seg := range segs {
				end := int(seg.Offset) + int(seg.Length)
				if end > len(e.mapped) {
					applyErr = fmt.Errorf("shadow: apply diff for remote id %d: segment [%d,%d) exceeds size %d", remoteID, seg.Offset, end, len(e.mapped))
					return applyErr
				}
				dst := e.mapped[seg.Offset:end]
				if !bytesEqual(dst, seg.Bytes) {
					copy(dst, seg.Bytes)
					copy(e.MirrorBuffer[seg.Offset:end], seg.Bytes)
					anyChanged = true
				}
			}
			if anyChanged {
				e.IsDirty = false
				e.Damage.Clear()
			}
			return nil
		},
	})
	if err := p.Drain(); err != nil {
		return err
	}
	return applyErr
}

func (t *Table) applyPipeAppend(remoteID int32, payload []byte) error {
	e, err := t.Lookup(remoteID)
	if err != nil {
		return fmt.Errorf("shadow: apply pipe-append: %w", err)
	}
	if e.Kind != KindPipeRead && e.Kind != KindPipeWrite {
		return fmt.Errorf("shadow: apply pipe-append for remote id %d: not a pipe entry", remoteID)
	}
	if _, err := e.FDLocal.Write(payload); err != nil {
		return fmt.Errorf("shadow: apply pipe-append for remote id %d: %w", remoteID, err)
	}
	return nil
}

func (t *Table) applyClose(remoteID int32) error {
	e, err := t.Lookup(remoteID)
	if err != nil {
		return fmt.Errorf("shadow: apply close: %w", err)
	}
	e.Lock()
	e.closed = true
	e.Unlock()
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
