package shadow

import (
	"fmt"
	"os"
	"sync"

	"github.com/mstoeckl/waypipe-go/internal/ipc"
	"github.com/mstoeckl/waypipe-go/internal/wire"
)

// Entry is one shadow-fd table row: a locally-owned fd that has been or
// will be shared over the channel, plus its dirty state.
type Entry struct {
	mu sync.Mutex

	RemoteID int32
	Kind     Kind

	FDLocal *os.File
	// PeerFD is set only for freshly-reconstituted PIPE_READ/
	// PIPE_WRITE entries: the other end of the socketpair created in
	// ApplyUpdate, owned by whichever local consumer the worker hands
	// it to.
	PeerFD *os.File
	Size   int64

	DMABUFMeta *wire.DMABUFMeta

	// mapped is the live mmap for FILE entries; DMABUF mapping is
	// modeled as an external collaborator (platform buffer-object
	// facility, out of scope) and is represented here only by
	// its byte contents once imported.
	mapped []byte

	IsDirty bool
	Damage  DamageSet

	// MirrorBuffer is the owned copy of the last successfully
	// transmitted contents, used as the diff baseline. Unused for pipe
	// kinds, which have no mirror.
	MirrorBuffer []byte

	// PendingBytes holds bytes read from a PIPE_READ entry's readable
	// side that have not yet been appended to the transfer buffer.
	PendingBytes []byte

	refcount int

	// pendingIntervals records which byte ranges CollectUpdate
	// diffed, so FinishUpdate knows exactly what to copy into the
	// mirror rather than assuming "everything".
	pendingIntervals []Interval

	// closed marks a PIPE_READ/PIPE_WRITE entry whose peer side has
	// produced the explicit close-record described in.
	closed bool
}

// Current returns the entry's live mapped contents for FILE/DMABUF
// kinds. Callers must hold no assumption about slice stability across a
// resize (Retarget).
func (e *Entry) Current() []byte {
	return e.mapped
}

// Retarget replaces the entry's mapping after a size change (a file
// grew, or a DMABUF was reimported at a new size). A shrink forces a
// full resend, since the mirror no longer corresponds byte-for-byte.
func (e *Entry) Retarget(mapped []byte, size int64) {
	shrunk := size < e.Size
	e.mapped = mapped
	e.Size = size
	if shrunk {
		e.Damage.MarkAll()
		e.IsDirty = true
		if e.MirrorBuffer != nil {
			e.MirrorBuffer = make([]byte, size)
		}
	} else if int64(len(e.MirrorBuffer)) < size {
		grown := make([]byte, size)
		copy(grown, e.MirrorBuffer)
		e.MirrorBuffer = grown
	}
}

// Lock/Unlock expose the entry's mutex directly: the owning worker holds
// it across mutation (translate/mark_dirty/collect_update/finish_update).
// Send-side diff tasks are handed already-sliced, non-overlapping byte
// ranges and do not take it; the receive-side TaskApplyDiff task in
// applyDiff holds it while it patches the mapping and mirror.
func (e *Entry) Lock()   { e.mu.Lock() }
func (e *Entry) Unlock() { e.mu.Unlock() }

// Retain increments the entry's refcount. Called whenever a new protocol
// object or pending transfer starts referencing it.
func (e *Entry) Retain() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refcount++
}

// releaseOne decrements the refcount and reports whether it reached zero
// (in which case the caller, normally the owning Table, must finalize
// the entry exactly once).
func (e *Entry) releaseOne() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.refcount <= 0 {
		return false, fmt.Errorf("shadow: double-release of remote id %d", e.RemoteID)
	}
	e.refcount--
	return e.refcount == 0, nil
}

func (e *Entry) finalize() error {
	var ferr error
	if e.mapped != nil {
		if err := ipc.Unmap(e.mapped); err != nil {
			ferr = err
		}
		e.mapped = nil
	}
	if e.FDLocal != nil {
		if err := e.FDLocal.Close(); err != nil && ferr == nil {
			ferr = fmt.Errorf("shadow: close fd: %w", err)
		}
		e.FDLocal = nil
	}
	return ferr
}
