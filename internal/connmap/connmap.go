// Package connmap implements the supervisor's Connection Map: an
// append-mostly sequence of {token, child_pid, link_fd} rows, one per
// live reconnectable child.
package connmap

import (
	"fmt"
	"net"
	"sync"

	"github.com/mstoeckl/waypipe-go/internal/token"
)

// Row is one connection map entry.
type Row struct {
	Token    token.Token
	ChildPID int
	LinkFD   *net.UnixConn

	// Quarantined marks a row excluded from future migration attempts
	// after a partial-migration failure: the row's worker keeps
	// running on its old address until it exits naturally and is
	// reaped, but no further migration is attempted for it.
	Quarantined bool
}

// Map is the supervisor's live connection table. It exists only for
// reconnectable sessions in multi mode.
type Map struct {
	mu          sync.Mutex
	rows        []*Row
	currentAddr string
}

// New constructs an empty Map.
func New() *Map {
	return &Map{}
}

// Add appends a new row, preserving arrival order (migration must visit
// rows "in their recorded order" S3).
func (m *Map) Add(row *Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, row)
}

// Rows returns a snapshot slice of the live rows, safe to iterate without
// holding the map's lock.
func (m *Map) Rows() []*Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Row, len(m.rows))
	copy(out, m.rows)
	return out
}

// RemoveByPID removes and returns the row for pid, closing its link fd,
// when a waitpid reap reports that child has exited.
func (m *Map) RemoveByPID(pid int) (*Row, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rows {
		if r.ChildPID == pid {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			if r.LinkFD != nil {
				r.LinkFD.Close()
			}
			return r, true
		}
	}
	return nil, false
}

// Remove removes row by identity and closes its link fd, for the
// goroutine-per-connection model where a row's worker has no child pid
// to wait on: the spawning goroutine calls this itself once
// MainInterfaceLoop returns, in place of a waitpid-driven RemoveByPID.
func (m *Map) Remove(row *Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rows {
		if r == row {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			if r.LinkFD != nil {
				r.LinkFD.Close()
			}
			return
		}
	}
}

// Quarantine marks row as excluded from future migrations without
// removing it from the map; the row stays until it is removed in the
// ordinary way (Remove, or RemoveByPID/ReapExited for a child process).
func (m *Map) Quarantine(row *Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row.Quarantined = true
}

// Waiter abstracts waitpid so ReapExited can be tested without a real
// child process: it returns the pid and exit status of one exited child,
// or ok=false if none are ready.
type Waiter func() (pid int, status int, ok bool)

// ReapExited drains every currently-exited child reported by wait and
// removes its row. It returns the removed rows.
func ReapExited(m *Map, wait Waiter) []*Row {
	var removed []*Row
	for {
		pid, _, ok := wait()
		if !ok {
			return removed
		}
		if row, found := m.RemoveByPID(pid); found {
			removed = append(removed, row)
		}
	}
}

// Len reports the current row count.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// CurrentAddr returns the channel address new application connections
// should dial: the initial address until a full-success migration
// adopts a replacement.
func (m *Map) CurrentAddr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentAddr
}

// SetCurrentAddr records addr as the channel address to dial for every
// subsequent new connection. Called once at startup with the initial
// address, and again by a migration that succeeds for every
// non-quarantined row.
func (m *Map) SetCurrentAddr(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentAddr = addr
}

// ErrEmptyMigration is returned by callers that attempted a migration
// with no live rows to update; not itself an error condition for the
// control-path read, just a signal there was nothing to do.
var ErrEmptyMigration = fmt.Errorf("connmap: no live rows")
