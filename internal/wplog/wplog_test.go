package wplog

import "testing"

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"error": LevelError, "warn": LevelWarn, "info": LevelInfo, "debug": LevelDebug}
	for name, want := range cases {
		got, ok := ParseLevel(name)
		if !ok || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, true", name, got, ok, want)
		}
	}
	if _, ok := ParseLevel("verbose"); ok {
		t.Errorf("ParseLevel(verbose) should report unrecognized")
	}
}

func TestForkJoinsPrefixes(t *testing.T) {
	root := New("server", LevelDebug)
	child := root.Fork("worker-%d", 3)
	if child.Prefix() != "server: worker-3" {
		t.Errorf("Prefix() = %q, want %q", child.Prefix(), "server: worker-3")
	}
	grandchild := child.Fork("xfer")
	if grandchild.Prefix() != "server: worker-3: xfer" {
		t.Errorf("Prefix() = %q", grandchild.Prefix())
	}
}

func TestForkInheritsLevel(t *testing.T) {
	root := New("server", LevelWarn)
	child := root.Fork("x")
	if child.Level() != LevelWarn {
		t.Errorf("child level = %v, want %v", child.Level(), LevelWarn)
	}
	child.SetLevel(LevelDebug)
	if root.Level() != LevelWarn {
		t.Errorf("SetLevel on child should not affect the parent")
	}
}

func TestErrorfReturnsPrefixedError(t *testing.T) {
	log := New("comp", LevelError)
	err := log.Errorf("failed: %d", 42)
	if err.Error() != "comp: failed: 42" {
		t.Errorf("Errorf() = %q", err.Error())
	}
}
