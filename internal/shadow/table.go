package shadow

import (
	"fmt"
	"os"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/mstoeckl/waypipe-go/internal/ipc"
	"github.com/mstoeckl/waypipe-go/internal/wire"
)

type fileIdentity struct {
	dev, ino uint64
}

// Table is one worker's shadow-fd table: every locally-owned fd that has
// been translated for transmission or reconstituted from a received
// update, keyed by remote id.
type Table struct {
	mu sync.Mutex

	// mintsNegative selects the id partitioning: true for a
	// server-minted table, false for client-minted
	// "negative values reserved for server-minted IDs, positive for
	// client-minted".
	mintsNegative bool
	nextID        int32

	entries map[int32]*Entry

	fileIdentities   map[fileIdentity]int32
	dmabufIdentities map[[32]byte]int32
}

// NewTable constructs an empty table. mintsNegative should be true for
// the table owned by the server-side half of a connection.
func NewTable(mintsNegative bool) *Table {
	return &Table{
		mintsNegative:    mintsNegative,
		entries:          make(map[int32]*Entry),
		fileIdentities:   make(map[fileIdentity]int32),
		dmabufIdentities: make(map[[32]byte]int32),
	}
}

func (t *Table) allocID() int32 {
	t.nextID++
	if t.mintsNegative {
		return -t.nextID
	}
	return t.nextID
}

// Translate classifies fd and either returns the existing id for an
// already-known underlying resource (closing the duplicate fd) or
// allocates a fresh shadow entry and returns its new id. identity is
// required for KindDMABUF (the platform import identity, hashed with
// blake3 for the dedup key) and ignored otherwise; FILE identity is
// derived from fstat's (device, inode) pair.
func (t *Table) Translate(fd *os.File, kind Kind, dmabufMeta *wire.DMABUFMeta, identity []byte) (int32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch kind {
	case KindFile:
		_, _, err := ipc.FileKindAndSize(fd)
		if err != nil {
			return 0, err
		}
		dev, ino, err := ipc.FileIdentity(fd)
		if err != nil {
			return 0, err
		}
		key := fileIdentity{dev: dev, ino: ino}
		if id, ok := t.fileIdentities[key]; ok {
			fd.Close()
			return id, nil
		}
		_, size, err := ipc.FileKindAndSize(fd)
		if err != nil {
			return 0, err
		}
		mapped, err := ipc.MapShared(fd, int(size))
		if err != nil {
			return 0, err
		}
		id := t.allocID()
		t.entries[id] = &Entry{
			RemoteID:     id,
			Kind:         kind,
			FDLocal:      fd,
			Size:         size,
			mapped:       mapped,
			MirrorBuffer: make([]byte, size),
			refcount:     1,
		}
		t.fileIdentities[key] = id
		return id, nil

	case KindDMABUF:
		if dmabufMeta == nil {
			return 0, fmt.Errorf("shadow: translate: DMABUF requires metadata")
		}
		key := blake3.Sum256(identity)
		if id, ok := t.dmabufIdentities[key]; ok {
			fd.Close()
			return id, nil
		}
		id := t.allocID()
		t.entries[id] = &Entry{
			RemoteID:   id,
			Kind:       kind,
			FDLocal:    fd,
			DMABUFMeta: dmabufMeta,
			refcount:   1,
		}
		t.dmabufIdentities[key] = id
		return id, nil

	case KindPipeRead, KindPipeWrite, KindSocket:
		id := t.allocID()
		t.entries[id] = &Entry{
			RemoteID: id,
			Kind:     kind,
			FDLocal:  fd,
			refcount: 1,
		}
		return id, nil

	default:
		return 0, fmt.Errorf("shadow: translate: unknown kind %d", kind)
	}
}

// Lookup returns the entry for remoteID, or an "unknown id" error.
func (t *Table) Lookup(remoteID int32) (*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[remoteID]
	if !ok {
		return nil, fmt.Errorf("shadow: unknown remote id %d", remoteID)
	}
	return e, nil
}

// MarkDirty unions interval into the entry's damage; a nil interval
// means "all".
func (t *Table) MarkDirty(remoteID int32, interval *Interval) error {
	e, err := t.Lookup(remoteID)
	if err != nil {
		return err
	}
	e.Lock()
	defer e.Unlock()
	if interval == nil {
		e.Damage.MarkAll()
	} else {
		e.Damage.Union(*interval)
	}
	e.IsDirty = true
	return nil
}

// adopt registers an entry created by ApplyUpdate's first-sighting path
// (the receiving side has no translate call of its own to allocate an
// id; the id arrives on the wire instead).
func (t *Table) adopt(remoteID int32, e *Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.RemoteID = remoteID
	e.refcount = 1
	t.entries[remoteID] = e
}

// Release decrements remoteID's refcount; at zero it unmaps/closes the
// fd and removes the entry from the table. Double-release is reported as
// an error, per the invariant in.
func (t *Table) Release(remoteID int32) error {
	e, err := t.Lookup(remoteID)
	if err != nil {
		return err
	}
	zero, err := e.releaseOne()
	if err != nil {
		return err
	}
	if !zero {
		return nil
	}
	t.mu.Lock()
	delete(t.entries, remoteID)
	for k, id := range t.fileIdentities {
		if id == remoteID {
			delete(t.fileIdentities, k)
			break
		}
	}
	for k, id := range t.dmabufIdentities {
		if id == remoteID {
			delete(t.dmabufIdentities, k)
			break
		}
	}
	t.mu.Unlock()
	return e.finalize()
}
