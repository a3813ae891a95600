package ipc

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// SendFD passes fd as ancillary data (SCM_RIGHTS) across link, along with
// a single zero payload byte (Linux requires at least one byte of regular
// payload to carry a control message). Used by the reconnection helper
// and the multi-mode migration path to hand a freshly-dialed
// channel socket to the process that owns the per-connection worker.
func SendFD(link *net.UnixConn, fd int) error {
	rights := unix.UnixRights(fd)
	var sendErr error
	rawConn, err := link.SyscallConn()
	if err != nil {
		return fmt.Errorf("ipc: SendFD: %w", err)
	}
	ctrlErr := rawConn.Control(func(linkFd uintptr) {
		sendErr = unix.Sendmsg(int(linkFd), []byte{0}, rights, nil, 0)
	})
	if ctrlErr != nil {
		return fmt.Errorf("ipc: SendFD: %w", ctrlErr)
	}
	if sendErr != nil {
		return fmt.Errorf("ipc: SendFD: sendmsg: %w", sendErr)
	}
	return nil
}

// RecvFD blocks until a message carrying exactly one ancillary fd arrives
// on link, and returns that fd. Used by a per-connection worker's
// reconnection path to receive a replacement channel fd, and by the
// reconnection helper to receive a freshly dialed socket is not needed
// since SendFD covers that direction; RecvFD mirrors it for the consumer.
func RecvFD(link *net.UnixConn) (fd int, err error) {
	buf := make([]byte, 1)
	oob := make([]byte, unix.CmsgSpace(4))
	var n, oobn int
	rawConn, err := link.SyscallConn()
	if err != nil {
		return -1, fmt.Errorf("ipc: RecvFD: %w", err)
	}
	var recvErr error
	ctrlErr := rawConn.Read(func(linkFd uintptr) bool {
		n, oobn, _, _, recvErr = unix.Recvmsg(int(linkFd), buf, oob, 0)
		return true
	})
	if ctrlErr != nil {
		return -1, fmt.Errorf("ipc: RecvFD: %w", ctrlErr)
	}
	if recvErr != nil {
		return -1, fmt.Errorf("ipc: RecvFD: recvmsg: %w", recvErr)
	}
	if n == 0 && oobn == 0 {
		return -1, fmt.Errorf("ipc: RecvFD: peer closed link")
	}
	scms, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return -1, fmt.Errorf("ipc: RecvFD: parse control message: %w", err)
	}
	if len(scms) != 1 {
		return -1, fmt.Errorf("ipc: RecvFD: expected exactly one control message, got %d", len(scms))
	}
	fds, err := unix.ParseUnixRights(&scms[0])
	if err != nil {
		return -1, fmt.Errorf("ipc: RecvFD: parse unix rights: %w", err)
	}
	if len(fds) != 1 {
		return -1, fmt.Errorf("ipc: RecvFD: expected exactly one fd, got %d", len(fds))
	}
	return fds[0], nil
}
