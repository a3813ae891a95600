package wire

import (
	"encoding/binary"
	"fmt"
)

// DiffSegment is one (offset, length, bytes) run within a TypeDiff
// frame's payload. A zero-length segment is the sentinel that
// terminates the diff stream for one shadow entry within a transfer.
type DiffSegment struct {
	Offset uint32
	Length uint32
	Bytes  []byte
}

// segmentHeaderSize is the 8-byte (offset, length) pair preceding each
// segment's bytes; segments are individually padded to Align so they can
// be scanned without buffering the whole stream.
const segmentHeaderSize = 8

// EncodeDiffSegments concatenates segs (in order) into a TypeDiff frame
// payload, terminated by the zero-length sentinel.
func EncodeDiffSegments(segs []DiffSegment) []byte {
	var out []byte
	for _, s := range segs {
		out = appendSegment(out, s)
	}
	out = appendSegment(out, DiffSegment{})
	return out
}

func appendSegment(dst []byte, s DiffSegment) []byte {
	var hdr [segmentHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], s.Offset)
	binary.LittleEndian.PutUint32(hdr[4:8], s.Length)
	dst = append(dst, hdr[:]...)
	dst = append(dst, s.Bytes...)
	padded := PaddedLen(len(dst))
	if pad := padded - len(dst); pad > 0 {
		var zeros [Align]byte
		dst = append(dst, zeros[:pad]...)
	}
	return dst
}

// DecodeDiffSegments parses a TypeDiff frame payload produced by
// EncodeDiffSegments back into its segments, stopping at the zero-length
// sentinel.
func DecodeDiffSegments(payload []byte) ([]DiffSegment, error) {
	var segs []DiffSegment
	for len(payload) > 0 {
		if len(payload) < segmentHeaderSize {
			return nil, fmt.Errorf("wire: short diff segment header: %d bytes left", len(payload))
		}
		offset := binary.LittleEndian.Uint32(payload[0:4])
		length := binary.LittleEndian.Uint32(payload[4:8])
		if length == 0 {
			return segs, nil
		}
		end := segmentHeaderSize + int(length)
		if len(payload) < end {
			return nil, fmt.Errorf("wire: short diff segment body: have %d, need %d", len(payload), end)
		}
		segs = append(segs, DiffSegment{
			Offset: offset,
			Length: length,
			Bytes:  payload[segmentHeaderSize:end],
		})
		consumed := PaddedLen(end)
		if consumed > len(payload) {
			consumed = len(payload)
		}
		payload = payload[consumed:]
	}
	return nil, fmt.Errorf("wire: diff segment stream missing terminating sentinel")
}
