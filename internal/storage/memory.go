package storage

import (
	"sync"

	"github.com/tuannm99/clockpool/internal/storage/common"
)

// MemoryDiskManager keeps pages in a map. Reads and writes copy, so callers
// never share memory with the "disk". It also records per-page I/O which
// the pool tests assert on.
type MemoryDiskManager struct {
	mu          sync.Mutex
	pages       map[common.PageID][]byte
	ids         idAllocator
	reads       map[common.PageID]int
	writes      map[common.PageID]int
	deallocated []common.PageID

	// FailWrites makes WritePage return the error for the given page ids.
	FailWrites map[common.PageID]error
	// FailReads does the same for ReadPage.
	FailReads map[common.PageID]error
	// FailAllocate, when set, is returned by AllocatePage.
	FailAllocate error
}

func NewMemoryDiskManager() *MemoryDiskManager {
	return &MemoryDiskManager{
		pages:      make(map[common.PageID][]byte),
		ids:        newIDAllocator(0),
		reads:      make(map[common.PageID]int),
		writes:     make(map[common.PageID]int),
		FailWrites: make(map[common.PageID]error),
		FailReads:  make(map[common.PageID]error),
	}
}

func (m *MemoryDiskManager) ReadPage(pageID common.PageID, dst []byte) error {
	if err := checkArgs(pageID, dst); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.FailReads[pageID]; err != nil {
		return err
	}
	m.reads[pageID]++
	if src, ok := m.pages[pageID]; ok {
		copy(dst, src)
		return nil
	}
	clear(dst)
	return nil
}

func (m *MemoryDiskManager) WritePage(pageID common.PageID, src []byte) error {
	if err := checkArgs(pageID, src); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.FailWrites[pageID]; err != nil {
		return err
	}
	buf, ok := m.pages[pageID]
	if !ok {
		buf = make([]byte, common.PageSize)
		m.pages[pageID] = buf
	}
	copy(buf, src)
	m.ids.claim(pageID)
	m.writes[pageID]++
	return nil
}

func (m *MemoryDiskManager) AllocatePage() (common.PageID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAllocate != nil {
		return common.InvalidPageID, m.FailAllocate
	}
	return m.ids.allocate(), nil
}

func (m *MemoryDiskManager) DeallocatePage(pageID common.PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deallocated = append(m.deallocated, pageID)
	if m.ids.release(pageID) {
		delete(m.pages, pageID)
	}
	return nil
}

// SetPage stores content for pageID directly, bypassing the write counters.
func (m *MemoryDiskManager) SetPage(pageID common.PageID, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, common.PageSize)
	copy(buf, content)
	m.pages[pageID] = buf
	m.ids.claim(pageID)
}

// Page returns a copy of what is stored for pageID, or nil.
func (m *MemoryDiskManager) Page(pageID common.PageID) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.pages[pageID]
	if !ok {
		return nil
	}
	out := make([]byte, len(src))
	copy(out, src)
	return out
}

func (m *MemoryDiskManager) Reads(pageID common.PageID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[pageID]
}

func (m *MemoryDiskManager) Writes(pageID common.PageID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[pageID]
}

func (m *MemoryDiskManager) TotalWrites() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.writes {
		total += n
	}
	return total
}

// Deallocated lists every DeallocatePage call in order, including no-ops.
func (m *MemoryDiskManager) Deallocated() []common.PageID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]common.PageID(nil), m.deallocated...)
}
