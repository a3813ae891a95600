package ipc

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// CreateMemfd creates an anonymous, sealable memory file used to mirror a
// FILE-kind shadow entry on the receiving side of apply_update. name is
// cosmetic (visible in /proc/self/fd on Linux).
func CreateMemfd(name string, size int64) (*os.File, error) {
	fd, err := unix.MemfdCreate(name, 0)
	if err != nil {
		return nil, fmt.Errorf("ipc: memfd_create: %w", err)
	}
	f := os.NewFile(uintptr(fd), name)
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("ipc: memfd truncate: %w", err)
	}
	return f, nil
}

// MapShared mmaps the full contents of f (length bytes) for read/write and
// returns the backing slice. If f was opened without write access, the
// mapping is read-only and must not be written through. The caller must
// Unmap it exactly once.
func MapShared(f *os.File, length int) ([]byte, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err == unix.EACCES {
		data, err = unix.Mmap(int(f.Fd()), 0, length, unix.PROT_READ, unix.MAP_SHARED)
	}
	if err != nil {
		return nil, fmt.Errorf("ipc: mmap: %w", err)
	}
	return data, nil
}

// Unmap releases a mapping obtained from MapShared. It is idempotent-safe
// to call at most once per mapping per the scoped-acquisition resource
// policy: every opened mapping is released on every exit path of the
// function that took it.
func Unmap(data []byte) error {
	if data == nil {
		return nil
	}
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("ipc: munmap: %w", err)
	}
	return nil
}

// FileKindAndSize inspects fd and returns whether it is a regular file
// (suitable for FILE-kind translation) and its size in bytes, via fstat,
// matching translate's "fstat for files" size determination.
func FileKindAndSize(f *os.File) (isRegular bool, size int64, err error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return false, 0, fmt.Errorf("ipc: fstat: %w", err)
	}
	isRegular = st.Mode&unix.S_IFMT == unix.S_IFREG
	return isRegular, st.Size, nil
}

// FileIdentity returns the (device, inode) pair used by translate to
// detect that two fds refer to the same underlying file, so that the
// duplicate can be closed and the existing shadow id returned.
func FileIdentity(f *os.File) (dev uint64, ino uint64, err error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return 0, 0, fmt.Errorf("ipc: fstat: %w", err)
	}
	return uint64(st.Dev), st.Ino, nil
}
