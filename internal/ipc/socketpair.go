// Package ipc wraps the raw Unix-domain socket and file-descriptor
// primitives the supervisor, reconnection helper, and shadow-fd table need:
// socketpair creation for link sockets and the oneshot app-fd pair,
// ancillary-message fd passing for reconnection and migration, and the
// memfd/mmap operations backing FILE-kind shadow entries.
package ipc

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Socketpair creates a connected pair of SOCK_STREAM Unix-domain sockets
// and wraps each end as an *os.File, suitable for passing to exec.Cmd via
// ExtraFiles (the Go analogue of inheriting an fd across fork) or for
// wrapping in a net.Conn with net.FileConn.
func Socketpair() (a, b *os.File, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("ipc: socketpair: %w", err)
	}
	return os.NewFile(uintptr(fds[0]), "socketpair"), os.NewFile(uintptr(fds[1]), "socketpair"), nil
}
