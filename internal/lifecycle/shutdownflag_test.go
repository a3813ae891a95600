package lifecycle

import "testing"

func TestShutdownFlagSetIsIdempotentAndObservable(t *testing.T) {
	f := &ShutdownFlag{}
	if f.IsSet() {
		t.Fatalf("flag should start clear")
	}
	f.Set()
	f.Set()
	if !f.IsSet() {
		t.Errorf("flag should be set after Set")
	}
}

func TestShutdownFlagZeroValue(t *testing.T) {
	var f ShutdownFlag
	if f.IsSet() {
		t.Errorf("zero-value flag should report unset")
	}
}
