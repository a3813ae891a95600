// Package diffcodec implements the fixed-size-block diff scan: within a
// damaged region, compare current vs mirror contents in fixed-size
// blocks, coalesce consecutive differing blocks into one segment, and
// optionally compress the concatenated payload with LZ4 or Zstd.
package diffcodec

import (
	"bytes"

	"github.com/mstoeckl/waypipe-go/internal/wire"
)

// BlockSize is the granularity of the block-compare scan, chosen within
// a 64-256 byte range that splits the difference between per-call
// overhead and wasted bytes on a single-byte change near a block
// boundary.
const BlockSize = 128

// ScanRange compares current and mirror over [start, end) (both must
// have length >= end) and returns coalesced diff segments covering every
// byte range that differs, each aligned to BlockSize boundaries except
// possibly at start/end of the scanned range.
func ScanRange(current, mirror []byte, start, end int) []wire.DiffSegment {
	var segs []wire.DiffSegment
	inRun := false
	runStart := 0
	for off := start; off < end; off += BlockSize {
		blockEnd := off + BlockSize
		if blockEnd > end {
			blockEnd = end
		}
		differs := !bytes.Equal(current[off:blockEnd], mirror[off:blockEnd])
		switch {
		case differs && !inRun:
			inRun = true
			runStart = off
		case !differs && inRun:
			inRun = false
			segs = append(segs, makeSegment(current, runStart, off))
		}
	}
	if inRun {
		segs = append(segs, makeSegment(current, runStart, end))
	}
	return segs
}

func makeSegment(current []byte, start, end int) wire.DiffSegment {
	buf := make([]byte, end-start)
	copy(buf, current[start:end])
	return wire.DiffSegment{Offset: uint32(start), Length: uint32(end - start), Bytes: buf}
}

// ScanDamage runs ScanRange over every interval in damage (a set of
// half-open [start,end) byte ranges) and concatenates the results in
// interval order, matching "damage minimality": only bytes inside the
// union of damage intervals can appear in the emitted segments.
func ScanDamage(current, mirror []byte, damage []Interval) []wire.DiffSegment {
	var segs []wire.DiffSegment
	for _, iv := range damage {
		start, end := iv.Start, iv.End
		if end > len(current) {
			end = len(current)
		}
		if start >= end {
			continue
		}
		segs = append(segs, ScanRange(current, mirror, start, end)...)
	}
	return segs
}

// Interval is a half-open byte range [Start, End) within a shadow
// entry's mapped contents.
type Interval struct {
	Start, End int
}
