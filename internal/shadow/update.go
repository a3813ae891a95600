package shadow

import (
	"fmt"

	"github.com/mstoeckl/waypipe-go/internal/config"
	"github.com/mstoeckl/waypipe-go/internal/diffcodec"
	"github.com/mstoeckl/waypipe-go/internal/pool"
	"github.com/mstoeckl/waypipe-go/internal/wire"
	"github.com/mstoeckl/waypipe-go/internal/xfer"
)

// CollectUpdate schedules worker-pool tasks that compute entry's update
// block(s) and append them to buf. It returns once every task
// has been queued, not once they have completed; the caller drains the
// pool separately.
//
// For FILE/DMABUF kinds this diffs the current contents against the
// mirror buffer within the damaged region, optionally compresses the
// result, and appends one TypeDiff segment. For pipe kinds it appends
// whatever bytes have accumulated on the readable side as a
// TypePipeAppend segment. An entry with no damage produces no segments
// ("no-op transmission").
func CollectUpdate(e *Entry, cfg *config.Main, p *pool.Pool, buf *xfer.Buffer) error {
	e.Lock()
	if e.Damage.Empty() {
		e.Unlock()
		return nil
	}
	kind := e.Kind
	remoteID := e.RemoteID
	e.Unlock()

	switch kind {
	case KindFile, KindDMABUF:
		return collectDiffUpdate(e, cfg, p, buf, remoteID)
	case KindPipeRead:
		return collectPipeUpdate(e, buf, remoteID)
	default:
		// PIPE_WRITE and SOCKET entries are not diffed; the owning
		// worker writes to them directly and never marks them dirty.
		return nil
	}
}

func collectDiffUpdate(e *Entry, cfg *config.Main, p *pool.Pool, buf *xfer.Buffer, remoteID int32) error {
	e.Lock()
	intervals := e.Damage.Resolve(len(e.mapped))
	current := e.mapped
	mirror := e.MirrorBuffer
	e.pendingIntervals = intervals
	e.Unlock()

	msgNum := buf.NextMessageNumber()
	p.Enqueue(pool.Task{
		Kind: pool.TaskDiffRegion,
		Run: func() error {
			segs := diffcodec.ScanDamage(current, mirror, toDiffcodecIntervals(intervals))
			raw := wire.EncodeDiffSegments(segs)
			mode := config.CompressionNone
			level := 0
			if cfg != nil {
				mode, level = cfg.Compression.Mode, cfg.Compression.Level
			}
			payload, err := diffcodec.EncodeEnvelope(mode, level, raw)
			if err != nil {
				return fmt.Errorf("shadow: compress diff for remote id %d: %w", remoteID, err)
			}
			frame, err := wire.Encode(nil, wire.Header{Type: wire.TypeDiff, XID: remoteID}, payload)
			if err != nil {
				return fmt.Errorf("shadow: encode diff frame for remote id %d: %w", remoteID, err)
			}
			buf.Append(xfer.Segment{MessageNumber: msgNum, Bytes: frame})
			return nil
		},
	})
	return nil
}

func collectPipeUpdate(e *Entry, buf *xfer.Buffer, remoteID int32) error {
	e.Lock()
	// Pipe bytes are staged into PendingBytes by the worker's read
	// loop before CollectUpdate is called; no diffing applies (:
	// "transferred as append-only streams; no mirror buffer").
	payload := e.PendingBytes
	e.PendingBytes = nil
	e.Damage.Clear()
	e.IsDirty = false
	e.Unlock()

	msgNum := buf.NextMessageNumber()
	frame, err := wire.Encode(nil, wire.Header{Type: wire.TypePipeAppend, XID: remoteID}, payload)
	if err != nil {
		return fmt.Errorf("shadow: encode pipe-append frame for remote id %d: %w", remoteID, err)
	}
	buf.Append(xfer.Segment{MessageNumber: msgNum, Bytes: frame})
	return nil
}

// FinishUpdate is called once the channel writer has drained entry's
// transfer blocks: it copies the now-current contents into the mirror
// for the emitted intervals and clears damage/is_dirty.
func FinishUpdate(e *Entry) error {
	e.Lock()
	defer e.Unlock()
	if e.Kind.HasMirror() {
		for _, iv := range e.pendingIntervals {
			end := iv.End
			if end > len(e.mapped) {
				end = len(e.mapped)
			}
			if iv.Start >= end {
				continue
			}
			copy(e.MirrorBuffer[iv.Start:end], e.mapped[iv.Start:end])
		}
	}
	e.pendingIntervals = nil
	e.Damage.Clear()
	e.IsDirty = false
	return nil
}

func toDiffcodecIntervals(ivs []Interval) []diffcodec.Interval {
	out := make([]diffcodec.Interval, len(ivs))
	for i, iv := range ivs {
		out[i] = diffcodec.Interval{Start: iv.Start, End: iv.End}
	}
	return out
}
