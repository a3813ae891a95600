// Package token implements the 16-byte connection handshake header: a
// protocol version and flag bits (FIXED, UPDATE, RECONNECTABLE), plus a
// 12-byte session key used to match a reconnect attempt to its prior
// session.
package token

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
	"time"
)

// ProtocolVersion occupies the high 16 bits of the header. A mismatch on
// either end must abort the connection.
const ProtocolVersion uint16 = 1

const (
	flagFixed         uint32 = 1 << 0
	flagUpdate        uint32 = 1 << 1
	flagReconnectable uint32 = 1 << 2
)

// Size is the wire size of a Token: 4-byte header + 3*4-byte key.
const Size = 16

// Token is the 16-byte connection handshake header.
type Token struct {
	Header uint32
	Key    [3]uint32
}

func header(version uint16, reconnectable, update bool) uint32 {
	h := uint32(version)<<16 | flagFixed
	if update {
		h |= flagUpdate
	}
	if reconnectable {
		h |= flagReconnectable
	}
	return h
}

// Version extracts the protocol version from the header's high 16 bits.
func (t Token) Version() uint16 {
	return uint16(t.Header >> 16)
}

// IsFixed reports the FIXED bit, required on every valid token.
func (t Token) IsFixed() bool {
	return t.Header&flagFixed != 0
}

// IsUpdate reports whether this token resumes an existing session.
func (t Token) IsUpdate() bool {
	return t.Header&flagUpdate != 0
}

// IsReconnectable reports whether the session this token establishes may
// later be resumed via the Reconnection Helper.
func (t Token) IsReconnectable() bool {
	return t.Header&flagReconnectable != 0
}

// fillRandomKey mixes whatever was previously in key with small
// multiplicative constants, folds in process identity and the current
// time, then adds OS randomness on top. This mirrors the design
// note's "Token key mixing": defense-in-depth against a failed
// /dev/urandom read at boot, without depending on it being the sole
// entropy source. A failed OS-randomness read is tolerated; the
// arithmetic mixing and time/pid entropy still leave the key unguessable
// enough to avoid accidental collision, though not cryptographically
// secure on its own.
func fillRandomKey(key *[3]uint32) {
	key[0] *= 13
	key[1] *= 17
	key[2] *= 29

	now := time.Now()
	key[0] += uint32(os.Getpid())
	key[1] += 1 + uint32(now.Unix())
	key[2] += 1 + uint32(now.UnixNano())

	var randBytes [12]byte
	if _, err := rand.Read(randBytes[:]); err == nil {
		key[0] += binary.LittleEndian.Uint32(randBytes[0:4])
		key[1] += binary.LittleEndian.Uint32(randBytes[4:8])
		key[2] += binary.LittleEndian.Uint32(randBytes[8:12])
	}
}

// Mint creates a fresh token: header per reconnectable/update, and a key
// derived from whatever was in prev (pass the zero value for a brand new
// session) mixed with entropy, so that successive mints in one process
// are not trivially correlated to an observer.
func Mint(prev Token, reconnectable, update bool) Token {
	key := prev.Key
	fillRandomKey(&key)
	return Token{
		Header: header(ProtocolVersion, reconnectable, update),
		Key:    key,
	}
}

// FlagUpdate returns a copy of t with the UPDATE bit set; key and version
// are left unchanged.
func FlagUpdate(t Token) Token {
	t.Header |= flagUpdate
	return t
}

// Marshal encodes t as 16 little-endian bytes: header, then the three key
// words.
func (t Token) Marshal() []byte {
	buf := make([]byte, Size)
	binary.LittleEndian.PutUint32(buf[0:4], t.Header)
	binary.LittleEndian.PutUint32(buf[4:8], t.Key[0])
	binary.LittleEndian.PutUint32(buf[8:12], t.Key[1])
	binary.LittleEndian.PutUint32(buf[12:16], t.Key[2])
	return buf
}

// Unmarshal decodes a 16-byte wire token and validates the FIXED bit and
// protocol version. Any endpoint receiving a header with a mismatching
// protocol version must refuse.
func Unmarshal(buf []byte) (Token, error) {
	if len(buf) != Size {
		return Token{}, fmt.Errorf("token: expected %d bytes, got %d", Size, len(buf))
	}
	t := Token{
		Header: binary.LittleEndian.Uint32(buf[0:4]),
		Key: [3]uint32{
			binary.LittleEndian.Uint32(buf[4:8]),
			binary.LittleEndian.Uint32(buf[8:12]),
			binary.LittleEndian.Uint32(buf[12:16]),
		},
	}
	if !t.IsFixed() {
		return Token{}, fmt.Errorf("token: FIXED bit not set, header=%#08x", t.Header)
	}
	if t.Version() != ProtocolVersion {
		return Token{}, fmt.Errorf("token: protocol version mismatch: got %d, want %d", t.Version(), ProtocolVersion)
	}
	return t, nil
}

// Key is the 12-byte session identity used as a map key to match a
// reconnect attempt to its prior session (the Connection Map).
type Key [3]uint32

// SessionKey returns t's key as a comparable map key.
func (t Token) SessionKey() Key {
	return Key(t.Key)
}
