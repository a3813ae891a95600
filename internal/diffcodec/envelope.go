package diffcodec

import (
	"encoding/binary"
	"fmt"

	"github.com/mstoeckl/waypipe-go/internal/config"
)

// envelopeHeaderSize is the mode byte plus the two size words prefixed to
// every diff frame's payload, matching "the containing block header
// records both compressed and uncompressed sizes".
const envelopeHeaderSize = 9

// EncodeEnvelope compresses raw per mode/level and prefixes the result
// with a small header carrying the mode and both sizes, so the receiver
// can decompress without out-of-band knowledge of the sender's
// configuration.
func EncodeEnvelope(mode config.CompressionMode, level int, raw []byte) ([]byte, error) {
	p, err := Compress(mode, level, raw)
	if err != nil {
		return nil, err
	}
	out := make([]byte, envelopeHeaderSize+len(p.Data))
	out[0] = byte(p.Mode)
	binary.LittleEndian.PutUint32(out[1:5], uint32(p.CompressedSize))
	binary.LittleEndian.PutUint32(out[5:9], uint32(p.UncompressedSize))
	copy(out[envelopeHeaderSize:], p.Data)
	return out, nil
}

// DecodeEnvelope reverses EncodeEnvelope.
func DecodeEnvelope(envelope []byte) ([]byte, error) {
	if len(envelope) < envelopeHeaderSize {
		return nil, fmt.Errorf("diffcodec: envelope too short: %d bytes", len(envelope))
	}
	mode := config.CompressionMode(envelope[0])
	compressedSize := int(binary.LittleEndian.Uint32(envelope[1:5]))
	uncompressedSize := int(binary.LittleEndian.Uint32(envelope[5:9]))
	body := envelope[envelopeHeaderSize:]
	if len(body) != compressedSize {
		return nil, fmt.Errorf("diffcodec: envelope size mismatch: header says %d, have %d", compressedSize, len(body))
	}
	return Decompress(CompressedPayload{
		Mode:             mode,
		CompressedSize:   compressedSize,
		UncompressedSize: uncompressedSize,
		Data:             body,
	})
}
