package bufferpool

import "github.com/tuannm99/clockpool/internal/storage/common"

// Page is one frame of the pool. Its metadata is written only by the
// BufferPoolManager; callers read it and mutate Data while holding a pin.
type Page struct {
	id       common.PageID
	data     [common.PageSize]byte
	pinCount int32
	dirty    bool
}

func (p *Page) ID() common.PageID { return p.id }

// Data is the frame buffer. It is valid until the caller's matching unpin.
func (p *Page) Data() []byte { return p.data[:] }

// PinCount and IsDirty read without the pool lock. They are only safe while
// no other caller can fetch, unpin or flush the same page; use
// BufferPoolManager.Meta otherwise.
func (p *Page) PinCount() int32 { return p.pinCount }

func (p *Page) IsDirty() bool { return p.dirty }

func (p *Page) resetMemory() {
	clear(p.data[:])
}

// reset returns the frame to the free state.
func (p *Page) reset() {
	p.resetMemory()
	p.id = common.InvalidPageID
	p.pinCount = 0
	p.dirty = false
}
