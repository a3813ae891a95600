package supervisor

import (
	"os"
	"path/filepath"
)

// maxShellEnvLen bounds $SHELL, falling back to /bin/sh when it is
// unset or implausibly long.
const maxShellEnvLen = 253

// LoginShellArgv builds the argv for "no application given, run the
// user's shell": argv[0] is the shell's basename, prefixed with "-"
// when loginShell requests a login shell, and the shell binary itself
// is argv0Path. When $SHELL is unset or longer than maxShellEnvLen the
// result is /bin/sh with argv ["-sh"], whatever loginShell says.
func LoginShellArgv(loginShell bool) (argv0Path string, argv []string) {
	shell := os.Getenv("SHELL")
	if shell == "" || len(shell) > maxShellEnvLen {
		return "/bin/sh", []string{"-sh"}
	}
	name := filepath.Base(shell)
	if loginShell {
		name = "-" + name
	}
	return shell, []string{name}
}
