// Package control implements the on-disk control FIFO through which an
// operator injects a replacement channel address to trigger migration.
package control

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/fsnotify/fsnotify"

	"github.com/mstoeckl/waypipe-go/internal/wplog"
)

// MaxLineLen bounds a single migration line at the Unix-domain socket
// path limit ("<108 bytes").
const MaxLineLen = 107

// FIFO wraps the supervisor's control FIFO: created at path with mode
// 0644, opened read-write to suppress POLLHUP storms while no writer is
// attached, and watched so an external deletion or recreation of the
// path is noticed rather than silently read as EOF forever.
type FIFO struct {
	Path string

	mu      sync.Mutex
	readMu  sync.Mutex
	file    *os.File
	owned   bool
	reader  *bufio.Reader
	watcher *fsnotify.Watcher
}

// Create makes the FIFO at path (mode 0644) if it does not already
// exist, opens it O_RDWR, and starts a directory watch on its parent so
// WasRemoved can detect external removal.
func Create(path string) (*FIFO, error) {
	owned := true
	if err := unix.Mkfifo(path, 0644); err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("control: mkfifo %s: %w", path, err)
		}
		owned = false
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("control: open %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("control: new watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		f.Close()
		w.Close()
		return nil, fmt.Errorf("control: watch %s: %w", filepath.Dir(path), err)
	}
	return &FIFO{
		Path:    path,
		file:    f,
		owned:   owned,
		reader:  bufio.NewReaderSize(f, MaxLineLen+1),
		watcher: w,
	}, nil
}

// Fd exposes the underlying descriptor for poll-loop registration.
func (c *FIFO) Fd() uintptr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file.Fd()
}

// ReadLine reads one NUL-or-newline-terminated migration line. A line
// longer than MaxLineLen is an error: the supervisor must not attempt
// to dial a truncated path. A terminator with nothing before it is
// skipped, so "path\x00\n" yields one line. ReadLine takes its own lock
// rather than the one Close takes, so Close can close the file and make
// a blocked ReadLine return an error.
func (c *FIFO) ReadLine() (string, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	var raw []byte
	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			if len(raw) == 0 {
				return "", fmt.Errorf("control: read: %w", err)
			}
			break
		}
		if b == '\n' || b == 0 {
			if len(raw) == 0 {
				continue
			}
			break
		}
		raw = append(raw, b)
	}
	if len(raw) > MaxLineLen {
		return "", fmt.Errorf("control: line exceeds %d bytes", MaxLineLen)
	}
	return string(raw), nil
}

// WasRemoved reports, without blocking, whether the watched directory
// has reported a remove/rename event for this FIFO's path since the last
// call.
func (c *FIFO) WasRemoved() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		select {
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return false
			}
			if ev.Name == c.Path && (ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0) {
				return true
			}
		default:
			return false
		}
	}
}

// Close releases the FIFO's file handle and watcher, and unlinks the
// path if unlink is true and Create made the FIFO itself (rather than
// opening one that already existed).
func (c *FIFO) Close(unlink bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ferr error
	if err := c.watcher.Close(); err != nil {
		ferr = fmt.Errorf("control: close watcher: %w", err)
	}
	if err := c.file.Close(); err != nil && ferr == nil {
		ferr = fmt.Errorf("control: close fifo: %w", err)
	}
	if unlink && c.owned {
		if err := os.Remove(c.Path); err != nil && !os.IsNotExist(err) && ferr == nil {
			ferr = fmt.Errorf("control: unlink %s: %w", c.Path, err)
		}
	}
	return ferr
}

// LogUnexpectedRemoval logs a warning that the FIFO at path was deleted
// out from under a live session, which is not fatal but worth
// surfacing. It is meant for a caller that has seen WasRemoved report
// true; the supervisor's runners call neither WasRemoved nor this.
func LogUnexpectedRemoval(log *wplog.Logger, path string) {
	log.Warnf("control fifo %s was removed externally; migrations will no longer be delivered until it is recreated", path)
}
