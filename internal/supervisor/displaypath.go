// Package supervisor implements the session supervisor's entry contract
// (run_server): computing the display socket path, launching the
// application, and dispatching to the oneshot or multi runner.
package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
)

// MaxUnixPathLen is the Unix-domain socket path length limit that the
// display path and any control-fifo-supplied migration path must fit
// within (struct sockaddr_un's sun_path on Linux is 108 bytes including
// the NUL terminator).
const MaxUnixPathLen = 108

// ResolveDisplayPath computes the display socket path step 1:
// an absolute waylandDisplay is used verbatim; otherwise it is joined to
// $XDG_RUNTIME_DIR.
func ResolveDisplayPath(waylandDisplay string) (string, error) {
	var path string
	if filepath.IsAbs(waylandDisplay) {
		path = waylandDisplay
	} else {
		xdgDir := os.Getenv("XDG_RUNTIME_DIR")
		if xdgDir == "" {
			return "", fmt.Errorf("supervisor: XDG_RUNTIME_DIR not set, cannot place display socket for WAYLAND_DISPLAY=%q", waylandDisplay)
		}
		path = filepath.Join(xdgDir, waylandDisplay)
	}
	if len(path) >= MaxUnixPathLen {
		return "", fmt.Errorf("supervisor: display socket path %q too long (%d bytes >= %d)", path, len(path), MaxUnixPathLen)
	}
	return path, nil
}
