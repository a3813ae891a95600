package config

import "testing"

func TestNewFillsInDefaultThreads(t *testing.T) {
	cfg, err := New(Compression{Mode: CompressionNone}, VideoOff, 0, "", false)
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	if cfg.Threads != DefaultThreads {
		t.Errorf("Threads = %d, want %d", cfg.Threads, DefaultThreads)
	}
}

func TestNewClampsNegativeCompressionLevel(t *testing.T) {
	cfg, err := New(Compression{Mode: CompressionLZ4, Level: -5}, VideoOff, 1, "", false)
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	if cfg.Compression.Level != 0 {
		t.Errorf("Level = %d, want 0", cfg.Compression.Level)
	}
}

func TestNewRejectsUnknownModes(t *testing.T) {
	if _, err := New(Compression{Mode: CompressionMode(99)}, VideoOff, 1, "", false); err == nil {
		t.Errorf("expected error for unknown compression mode")
	}
	if _, err := New(Compression{Mode: CompressionNone}, VideoMode(99), 1, "", false); err == nil {
		t.Errorf("expected error for unknown video mode")
	}
}
