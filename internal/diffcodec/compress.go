package diffcodec

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/mstoeckl/waypipe-go/internal/config"
)

// CompressedPayload wraps a compressed diff-segment stream with the
// sizes needed to validate and reverse the compression, matching the
// block header's "records both compressed and uncompressed sizes"
// requirement.
type CompressedPayload struct {
	Mode             config.CompressionMode
	CompressedSize   int
	UncompressedSize int
	Data             []byte
}

// Compress encodes raw (typically the output of EncodeDiffSegments)
// according to mode. level is not used: LZ4 and Zstd always run at their
// library default levels. CompressionNone returns raw unchanged with
// both sizes equal.
func Compress(mode config.CompressionMode, level int, raw []byte) (CompressedPayload, error) {
	switch mode {
	case config.CompressionNone:
		return CompressedPayload{Mode: mode, CompressedSize: len(raw), UncompressedSize: len(raw), Data: raw}, nil
	case config.CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return CompressedPayload{}, fmt.Errorf("diffcodec: lz4 compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return CompressedPayload{}, fmt.Errorf("diffcodec: lz4 close: %w", err)
		}
		return CompressedPayload{Mode: mode, CompressedSize: buf.Len(), UncompressedSize: len(raw), Data: buf.Bytes()}, nil
	case config.CompressionZstd:
		enc := zstdEncoderPool.Get().(*zstd.Encoder)
		defer zstdEncoderPool.Put(enc)
		data := enc.EncodeAll(raw, nil)
		return CompressedPayload{Mode: mode, CompressedSize: len(data), UncompressedSize: len(raw), Data: data}, nil
	default:
		return CompressedPayload{}, fmt.Errorf("diffcodec: unknown compression mode %d", mode)
	}
}

// Decompress reverses Compress.
func Decompress(p CompressedPayload) ([]byte, error) {
	switch p.Mode {
	case config.CompressionNone:
		return p.Data, nil
	case config.CompressionLZ4:
		r := lz4.NewReader(bytes.NewReader(p.Data))
		out := make([]byte, p.UncompressedSize)
		if _, err := io.ReadFull(r, out); err != nil {
			return nil, fmt.Errorf("diffcodec: lz4 decompress: %w", err)
		}
		return out, nil
	case config.CompressionZstd:
		dec := zstdDecoderPool.Get().(*zstd.Decoder)
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(p.Data, make([]byte, 0, p.UncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("diffcodec: zstd decompress: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("diffcodec: unknown compression mode %d", p.Mode)
	}
}

var zstdEncoderPool = sync.Pool{
	New: func() interface{} {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			panic(err)
		}
		return enc
	},
}

var zstdDecoderPool = sync.Pool{
	New: func() interface{} {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			panic(err)
		}
		return dec
	},
}
