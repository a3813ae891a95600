// Package wire implements the transfer frame format carried over a
// Channel: a fixed 8-byte header (transfer type + payload size, then an
// xid), a payload padded to 16-byte alignment, and the diff-segment and
// metadata payload encodings nested inside full-resend/diff/metadata
// frames.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Type identifies a transfer frame's payload semantics.
type Type uint8

const (
	TypeFullResend Type = iota
	TypeDiff
	TypePipeAppend
	TypeClose
	TypeMetadata
)

func (t Type) String() string {
	switch t {
	case TypeFullResend:
		return "full-resend"
	case TypeDiff:
		return "diff"
	case TypePipeAppend:
		return "pipe-append"
	case TypeClose:
		return "close"
	case TypeMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// HeaderSize is the fixed 8-byte frame header: one 32-bit word packing
// (transfer_type, size_class), one 32-bit xid word.
const HeaderSize = 8

// Align is the padding boundary every frame's payload is rounded up to,
// so the next header begins 16-byte aligned.
const Align = 16

// maxPayloadSize is the largest payload size_class's low 24 bits can
// represent; this implementation defines size_class as the literal
// payload byte length rather than a bucketed index, trading a few spare
// header bits for a codec with no lookup table.
const maxPayloadSize = 1<<24 - 1

// Header is the decoded form of a frame's two leading words.
type Header struct {
	Type Type
	// XID is the shadow remote id this frame concerns, or a control
	// code for frame types that are not fd-scoped.
	XID     int32
	payload uint32 // low 24 bits: payload length in bytes.
}

func packHeader(h Header, payloadLen int) (uint32, error) {
	if payloadLen < 0 || payloadLen > maxPayloadSize {
		return 0, fmt.Errorf("wire: payload length %d exceeds %d", payloadLen, maxPayloadSize)
	}
	return uint32(h.Type)<<24 | uint32(payloadLen), nil
}

// TransferSize recovers the payload length in bytes encoded in a frame's
// first header word.
func TransferSize(word0 uint32) int {
	return int(word0 & maxPayloadSize)
}

func unpackType(word0 uint32) Type {
	return Type(word0 >> 24)
}

// PaddedLen rounds n up to the next multiple of Align.
func PaddedLen(n int) int {
	return (n + Align - 1) &^ (Align - 1)
}

// Encode appends one complete frame (header + payload + zero padding) to
// dst and returns the extended slice.
func Encode(dst []byte, h Header, payload []byte) ([]byte, error) {
	word0, err := packHeader(h, len(payload))
	if err != nil {
		return nil, err
	}
	padded := PaddedLen(HeaderSize + len(payload))
	out := dst
	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], word0)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(h.XID))
	out = append(out, hdr[:]...)
	out = append(out, payload...)
	if pad := padded - HeaderSize - len(payload); pad > 0 {
		var zeros [Align]byte
		out = append(out, zeros[:pad]...)
	}
	return out, nil
}

// Decode reads one frame from the front of buf. It returns the decoded
// header, the unpadded payload (a subslice of buf, not copied), and the
// number of bytes consumed including padding.
func Decode(buf []byte) (h Header, payload []byte, consumed int, err error) {
	if len(buf) < HeaderSize {
		return Header{}, nil, 0, fmt.Errorf("wire: short header: have %d bytes, need %d", len(buf), HeaderSize)
	}
	word0 := binary.LittleEndian.Uint32(buf[0:4])
	xid := int32(binary.LittleEndian.Uint32(buf[4:8]))
	size := TransferSize(word0)
	total := PaddedLen(HeaderSize + size)
	if len(buf) < total {
		return Header{}, nil, 0, fmt.Errorf("wire: short frame: have %d bytes, need %d", len(buf), total)
	}
	h = Header{Type: unpackType(word0), XID: xid}
	return h, buf[HeaderSize : HeaderSize+size], total, nil
}
