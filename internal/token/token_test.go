package token

import "testing"

func TestMintSetsFixedBitAndVersion(t *testing.T) {
	tok := Mint(Token{}, false, false)
	if !tok.IsFixed() {
		t.Errorf("minted token does not have FIXED set")
	}
	if tok.Version() != ProtocolVersion {
		t.Errorf("version = %d, want %d", tok.Version(), ProtocolVersion)
	}
	if tok.IsUpdate() || tok.IsReconnectable() {
		t.Errorf("unexpected flags set on plain mint: %#08x", tok.Header)
	}
}

func TestMintFlags(t *testing.T) {
	tok := Mint(Token{}, true, false)
	if !tok.IsReconnectable() {
		t.Errorf("reconnectable flag not set")
	}

	tok2 := FlagUpdate(tok)
	if !tok2.IsUpdate() {
		t.Errorf("FlagUpdate did not set UPDATE")
	}
	if tok2.Key != tok.Key {
		t.Errorf("FlagUpdate changed the key: got %v, want %v", tok2.Key, tok.Key)
	}
}

func TestMintUniqueness(t *testing.T) {
	seen := make(map[Key]bool)
	for i := 0; i < 1000; i++ {
		tok := Mint(Token{}, false, false)
		k := tok.SessionKey()
		if seen[k] {
			t.Fatalf("duplicate session key minted at iteration %d: %v", i, k)
		}
		seen[k] = true
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	tok := Mint(Token{}, true, true)
	buf := tok.Marshal()
	if len(buf) != Size {
		t.Fatalf("Marshal produced %d bytes, want %d", len(buf), Size)
	}
	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal: %s", err)
	}
	if got != tok {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, tok)
	}
}

func TestUnmarshalRejectsWrongLength(t *testing.T) {
	if _, err := Unmarshal(make([]byte, Size-1)); err == nil {
		t.Errorf("expected error for short buffer")
	}
	if _, err := Unmarshal(make([]byte, Size+1)); err == nil {
		t.Errorf("expected error for long buffer")
	}
}

func TestUnmarshalRejectsMissingFixedBit(t *testing.T) {
	tok := Mint(Token{}, false, false)
	buf := tok.Marshal()
	buf[0] &^= byte(flagFixed)
	if _, err := Unmarshal(buf); err == nil {
		t.Errorf("expected error when FIXED bit is cleared")
	}
}

func TestUnmarshalRejectsVersionMismatch(t *testing.T) {
	tok := Mint(Token{}, false, false)
	buf := tok.Marshal()
	buf[2] = 0xff
	buf[3] = 0xff
	if _, err := Unmarshal(buf); err == nil {
		t.Errorf("expected error on protocol version mismatch")
	}
}
