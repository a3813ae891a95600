package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// DMABUFMeta is the dmabuf_meta attribute: width/height/format/modifier
// plus up to four plane offsets, strides, and a per-plane usage flag.
type DMABUFMeta struct {
	Width       uint32    `cbor:"1,keyasint"`
	Height      uint32    `cbor:"2,keyasint"`
	Format      uint32    `cbor:"3,keyasint"`
	Modifier    uint64    `cbor:"4,keyasint"`
	PlaneOffset [4]uint32 `cbor:"5,keyasint"`
	PlaneStride [4]uint32 `cbor:"6,keyasint"`
	PlaneInUse  [4]bool   `cbor:"7,keyasint"`
}

// Metadata is the payload of a TypeMetadata frame: out-of-band shadow
// entry attributes (kind and, for DMABUFs, their plane layout) that must
// accompany the first sighting of an fd, ahead of any full-resend or diff
// frame referencing it.
type Metadata struct {
	Kind   uint8       `cbor:"1,keyasint"`
	Size   int64       `cbor:"2,keyasint"`
	DMABUF *DMABUFMeta `cbor:"3,keyasint,omitempty"`
}

// EncodeMetadata cbor-encodes m for use as a TypeMetadata frame payload.
func EncodeMetadata(m Metadata) ([]byte, error) {
	buf, err := cbor.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("wire: encode metadata: %w", err)
	}
	return buf, nil
}

// DecodeMetadata reverses EncodeMetadata.
func DecodeMetadata(payload []byte) (Metadata, error) {
	var m Metadata
	if err := cbor.Unmarshal(payload, &m); err != nil {
		return Metadata{}, fmt.Errorf("wire: decode metadata: %w", err)
	}
	return m, nil
}
