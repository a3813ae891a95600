package diffcodec

import (
	"bytes"
	"testing"
)

func TestScanRangeFindsNoDiffOnIdenticalContent(t *testing.T) {
	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i)
	}
	mirror := append([]byte(nil), data...)
	segs := ScanRange(data, mirror, 0, len(data))
	if len(segs) != 0 {
		t.Errorf("expected no diff segments for identical buffers, got %d", len(segs))
	}
}

func TestScanRangeCoalescesAdjacentDirtyBlocks(t *testing.T) {
	size := BlockSize * 4
	current := make([]byte, size)
	mirror := make([]byte, size)
	for i := BlockSize; i < BlockSize*3; i++ {
		current[i] = 0xff
	}
	segs := ScanRange(current, mirror, 0, size)
	if len(segs) != 1 {
		t.Fatalf("expected one coalesced segment, got %d: %+v", len(segs), segs)
	}
	if segs[0].Offset != uint32(BlockSize) || segs[0].Length != uint32(2*BlockSize) {
		t.Errorf("unexpected segment bounds: %+v", segs[0])
	}
	if !bytes.Equal(segs[0].Bytes, current[BlockSize:BlockSize*3]) {
		t.Errorf("segment bytes do not match current contents")
	}
}

func TestScanRangeNonAlignedTail(t *testing.T) {
	size := BlockSize + 10
	current := make([]byte, size)
	mirror := make([]byte, size)
	current[size-1] = 1
	segs := ScanRange(current, mirror, 0, size)
	if len(segs) != 1 {
		t.Fatalf("expected one segment covering the tail block, got %d", len(segs))
	}
	if int(segs[0].Offset) != BlockSize || int(segs[0].Offset+segs[0].Length) != size {
		t.Errorf("tail segment bounds wrong: %+v, size=%d", segs[0], size)
	}
}

func TestScanDamageOnlyTouchesDamagedIntervals(t *testing.T) {
	size := BlockSize * 6
	current := make([]byte, size)
	mirror := make([]byte, size)
	// Dirty a block inside the damaged interval and one entirely outside it.
	current[BlockSize+1] = 1
	current[BlockSize*5] = 1

	segs := ScanDamage(current, mirror, []Interval{{Start: BlockSize, End: BlockSize * 2}})
	if len(segs) != 1 {
		t.Fatalf("expected exactly one segment within the damaged interval, got %d", len(segs))
	}
	if int(segs[0].Offset) < BlockSize || int(segs[0].Offset+segs[0].Length) > BlockSize*2 {
		t.Errorf("segment escaped the damaged interval: %+v", segs[0])
	}
}
