package storage

import (
	"errors"
	"fmt"

	"github.com/tuannm99/clockpool/internal/storage/common"
)

var (
	ErrInvalidPageID = errors.New("storage: invalid page id")
	ErrWrongSize     = errors.New("storage: buffer size != PageSize")
	ErrClosed        = errors.New("storage: disk manager is closed")
)

// DiskManager is the durable side of the buffer pool. Every call blocks
// until the I/O is complete.
type DiskManager interface {
	ReadPage(pageID common.PageID, dst []byte) error
	WritePage(pageID common.PageID, src []byte) error
	AllocatePage() (common.PageID, error)
	DeallocatePage(pageID common.PageID) error
}

var (
	_ DiskManager = (*FileDiskManager)(nil)
	_ DiskManager = (*MemoryDiskManager)(nil)
)

func checkArgs(pageID common.PageID, buf []byte) error {
	if !pageID.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidPageID, pageID)
	}
	if len(buf) != common.PageSize {
		return fmt.Errorf("%w: got %d bytes", ErrWrongSize, len(buf))
	}
	return nil
}

// idAllocator hands out page ids, preferring the most recently released one.
type idAllocator struct {
	next  common.PageID
	free  []common.PageID
	freed map[common.PageID]struct{}
}

func newIDAllocator(next common.PageID) idAllocator {
	return idAllocator{next: next, freed: make(map[common.PageID]struct{})}
}

func (a *idAllocator) allocate() common.PageID {
	if n := len(a.free); n > 0 {
		id := a.free[n-1]
		a.free = a.free[:n-1]
		delete(a.freed, id)
		return id
	}
	id := a.next
	a.next++
	return id
}

// release returns false when the id was never handed out or is already free.
func (a *idAllocator) release(id common.PageID) bool {
	if !id.Valid() || id >= a.next {
		return false
	}
	if _, ok := a.freed[id]; ok {
		return false
	}
	a.freed[id] = struct{}{}
	a.free = append(a.free, id)
	return true
}

// claim marks id as in use after a write the allocator did not hand out,
// such as WAL redo. Ids below it that were never allocated become holes.
func (a *idAllocator) claim(id common.PageID) {
	if id >= a.next {
		a.next = id + 1
		return
	}
	if _, ok := a.freed[id]; !ok {
		return
	}
	delete(a.freed, id)
	for i, f := range a.free {
		if f == id {
			a.free = append(a.free[:i], a.free[i+1:]...)
			break
		}
	}
}
