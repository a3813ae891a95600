package supervisor

import (
	"strings"
	"testing"
)

func TestLoginShellArgvUsesSHELL(t *testing.T) {
	t.Setenv("SHELL", "/bin/zsh")
	path, argv := LoginShellArgv(false)
	if path != "/bin/zsh" {
		t.Errorf("path = %q, want /bin/zsh", path)
	}
	if len(argv) != 1 || argv[0] != "zsh" {
		t.Errorf("argv = %v, want [zsh]", argv)
	}
}

func TestLoginShellArgvPrefixesDash(t *testing.T) {
	t.Setenv("SHELL", "/bin/bash")
	_, argv := LoginShellArgv(true)
	if len(argv) != 1 || argv[0] != "-bash" {
		t.Errorf("argv = %v, want [-bash]", argv)
	}
}

func TestLoginShellArgvFallsBackWhenUnset(t *testing.T) {
	t.Setenv("SHELL", "")
	path, argv := LoginShellArgv(false)
	if path != "/bin/sh" || len(argv) != 1 || argv[0] != "-sh" {
		t.Errorf("got %q, %v; want /bin/sh, [-sh]", path, argv)
	}
}

func TestLoginShellArgvFallsBackWhenTooLong(t *testing.T) {
	t.Setenv("SHELL", "/bin/"+strings.Repeat("x", maxShellEnvLen))
	path, _ := LoginShellArgv(false)
	if path != "/bin/sh" {
		t.Errorf("path = %q, want /bin/sh for an implausibly long $SHELL", path)
	}
}
