package bufferpool

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"

	"github.com/tuannm99/clockpool/internal/storage"
	"github.com/tuannm99/clockpool/internal/storage/common"
)

var DefaultPoolSize = 128

// Stats counts pool activity since construction.
type Stats struct {
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	WriteBacks uint64
}

type Option func(*BufferPoolManager)

func WithLogger(l *slog.Logger) Option {
	return func(b *BufferPoolManager) {
		if l != nil {
			b.log = l
		}
	}
}

// WithReplacer swaps the CLOCK replacer. The replacer must cover frame
// indices [0..poolSize).
func WithReplacer(r Replacer) Option {
	return func(b *BufferPoolManager) {
		if r != nil {
			b.replacer = r
		}
	}
}

var _ Manager = (*BufferPoolManager)(nil)

// BufferPoolManager caches disk pages in a fixed set of frames.
//
// Each frame is in exactly one state: free (on freeList), pinned
// (pinCount > 0, not tracked by the replacer) or unpinned-resident
// (pinCount == 0, tracked by the replacer). pageTable maps exactly the
// resident page ids to their frames. One mutex guards all of it, disk
// I/O included.
type BufferPoolManager struct {
	dm  storage.DiskManager
	lm  LogManager
	log *slog.Logger

	mu        sync.Mutex
	frames    []Page
	freeList  []int
	pageTable map[common.PageID]int
	replacer  Replacer
	stats     Stats
}

func NewBufferPoolManager(poolSize int, dm storage.DiskManager, lm LogManager, opts ...Option) *BufferPoolManager {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	b := &BufferPoolManager{
		dm:        dm,
		lm:        lm,
		log:       slog.Default(),
		frames:    make([]Page, poolSize),
		freeList:  make([]int, poolSize),
		pageTable: make(map[common.PageID]int, poolSize),
		replacer:  newClockAdapter(poolSize),
	}
	for i := range b.frames {
		b.frames[i].id = common.InvalidPageID
		b.freeList[i] = i
	}
	for _, opt := range opts {
		opt(b)
	}

	b.log.Info("bufferpool: ready",
		"frames", poolSize,
		"capacity", humanize.IBytes(uint64(poolSize)*common.PageSize),
	)
	return b
}

// FetchPage pins pageID, reading it from disk if it is not resident.
func (b *BufferPoolManager) FetchPage(pageID common.PageID) (*Page, error) {
	if !pageID.Valid() {
		return nil, fmt.Errorf("%w: %d", storage.ErrInvalidPageID, pageID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// 1) HIT
	if idx, ok := b.pageTable[pageID]; ok {
		p := &b.frames[idx]
		p.pinCount++
		if p.pinCount == 1 {
			b.replacer.Pin(idx)
		}
		b.stats.Hits++
		return p, nil
	}

	// 2) MISS: free list first, then a victim
	idx, err := b.acquireFrame()
	if err != nil {
		return nil, err
	}

	p := &b.frames[idx]
	if err := b.dm.ReadPage(pageID, p.Data()); err != nil {
		p.reset()
		b.releaseFrame(idx)
		return nil, fmt.Errorf("bufferpool: read page %d: %w", pageID, err)
	}

	p.id = pageID
	p.pinCount = 1
	p.dirty = false
	b.pageTable[pageID] = idx
	b.replacer.Pin(idx)
	b.stats.Misses++
	return p, nil
}

// UnpinPage drops one pin on pageID. isDirty only ever sets the dirty flag.
func (b *BufferPoolManager) UnpinPage(pageID common.PageID, isDirty bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, ok := b.pageTable[pageID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrPageNotFound, pageID)
	}
	p := &b.frames[idx]
	if p.pinCount == 0 {
		return fmt.Errorf("%w: %d", ErrInvalidUnpin, pageID)
	}

	if isDirty {
		p.dirty = true
	}
	p.pinCount--
	if p.pinCount == 0 {
		b.replacer.Unpin(idx)
	}
	return nil
}

// FlushPage writes pageID back to disk whether or not it is pinned or dirty.
func (b *BufferPoolManager) FlushPage(pageID common.PageID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, ok := b.pageTable[pageID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrPageNotFound, pageID)
	}
	return b.writeBack(&b.frames[idx])
}

// NewPage allocates a fresh page on disk and pins a zeroed frame for it.
func (b *BufferPoolManager) NewPage() (*Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, err := b.acquireFrame()
	if err != nil {
		return nil, err
	}

	pageID, err := b.dm.AllocatePage()
	if err != nil {
		b.releaseFrame(idx)
		return nil, fmt.Errorf("bufferpool: allocate page: %w", err)
	}

	p := &b.frames[idx]
	p.resetMemory()
	p.id = pageID
	p.pinCount = 1
	p.dirty = false
	b.pageTable[pageID] = idx
	b.replacer.Pin(idx)
	return p, nil
}

// DeletePage drops pageID from the pool and deallocates it on disk.
// A non-resident page is only deallocated.
func (b *BufferPoolManager) DeletePage(pageID common.PageID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, ok := b.pageTable[pageID]
	if !ok {
		if err := b.dm.DeallocatePage(pageID); err != nil {
			return fmt.Errorf("bufferpool: deallocate page %d: %w", pageID, err)
		}
		return nil
	}

	p := &b.frames[idx]
	if p.pinCount > 0 {
		return fmt.Errorf("%w: %d (pin count %d)", ErrPageInUse, pageID, p.pinCount)
	}

	delete(b.pageTable, pageID)
	b.replacer.Pin(idx)
	p.reset()
	b.freeList = append(b.freeList, idx)

	if err := b.dm.DeallocatePage(pageID); err != nil {
		return fmt.Errorf("bufferpool: deallocate page %d: %w", pageID, err)
	}
	return nil
}

// FlushAllPages writes every resident page. It keeps going past failures
// and returns them combined.
func (b *BufferPoolManager) FlushAllPages() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs error
	for i := range b.frames {
		p := &b.frames[i]
		if p.id == common.InvalidPageID {
			continue
		}
		errs = multierr.Append(errs, b.writeBack(p))
	}
	if errs != nil {
		b.log.Warn("bufferpool: flush all incomplete",
			"failed", len(multierr.Errors(errs)),
			"err", errs,
		)
	}
	return errs
}

// acquireFrame returns a frame that holds no page, evicting if the free
// list is empty. A dirty victim is written back first; if that fails the
// victim stays resident. Caller holds mu.
func (b *BufferPoolManager) acquireFrame() (int, error) {
	if len(b.freeList) > 0 {
		idx := b.freeList[0]
		b.freeList = b.freeList[1:]
		return idx, nil
	}

	idx, ok := b.replacer.Victim()
	if !ok {
		return -1, ErrPoolExhausted
	}

	victim := &b.frames[idx]
	wasDirty := victim.dirty
	if wasDirty {
		if err := b.writeBack(victim); err != nil {
			// Put victim back as evictable
			b.replacer.Unpin(idx)
			return -1, err
		}
	}

	b.log.Debug("bufferpool: evict",
		"frame", idx,
		"page", victim.id,
		"dirty", wasDirty,
	)
	delete(b.pageTable, victim.id)
	victim.id = common.InvalidPageID
	b.stats.Evictions++
	return idx, nil
}

// releaseFrame puts an unused frame back at the front of the free list.
// Caller holds mu.
func (b *BufferPoolManager) releaseFrame(idx int) {
	b.frames[idx].reset()
	b.freeList = append([]int{idx}, b.freeList...)
}

// writeBack persists p and clears its dirty flag. Caller holds mu.
func (b *BufferPoolManager) writeBack(p *Page) error {
	if err := b.dm.WritePage(p.id, p.Data()); err != nil {
		return fmt.Errorf("bufferpool: write page %d: %w", p.id, err)
	}
	p.dirty = false
	b.stats.WriteBacks++
	return nil
}

// PageMeta is a snapshot of a resident page's metadata.
type PageMeta struct {
	PinCount int32
	Dirty    bool
}

// Meta reports pageID's pin count and dirty flag under the pool lock.
func (b *BufferPoolManager) Meta(pageID common.PageID) (PageMeta, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, ok := b.pageTable[pageID]
	if !ok {
		return PageMeta{}, fmt.Errorf("%w: %d", ErrPageNotFound, pageID)
	}
	p := &b.frames[idx]
	return PageMeta{PinCount: p.pinCount, Dirty: p.dirty}, nil
}

func (b *BufferPoolManager) PoolSize() int { return len(b.frames) }

func (b *BufferPoolManager) FreeFrames() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.freeList)
}

func (b *BufferPoolManager) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// LogManager returns the log manager the pool was built with (may be nil).
func (b *BufferPoolManager) LogManager() LogManager { return b.lm }
