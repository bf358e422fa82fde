package bufferpool

import "github.com/tuannm99/clockpool/internal/storage/common"

// Replacer picks eviction victims among unpinned resident frames.
type Replacer interface {
	// Unpin makes frameID an eviction candidate (its pin count reached zero).
	Unpin(frameID int)
	// Pin removes frameID from the candidates.
	Pin(frameID int)
	Victim() (frameID int, ok bool)
	Tracked(frameID int) bool
	Size() int
}

// LogManager is the write-ahead log the pool is constructed with.
// The pool keeps it for durability hooks and does not call it yet.
type LogManager interface {
	AppendPageImage(pageID common.PageID, page []byte) (uint64, error)
	Flush(upto uint64) error
	FlushedLSN() uint64
}

type Manager interface {
	FetchPage(pageID common.PageID) (*Page, error)
	UnpinPage(pageID common.PageID, isDirty bool) error
	FlushPage(pageID common.PageID) error
	NewPage() (*Page, error)
	DeletePage(pageID common.PageID) error
	FlushAllPages() error
}
