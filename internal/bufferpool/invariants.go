package bufferpool

import (
	"errors"
	"fmt"

	"github.com/tuannm99/clockpool/internal/storage/common"
)

var ErrInvariant = errors.New("bufferpool: invariant violated")

// Validate checks the frame-state invariants of the pool.
func (b *BufferPoolManager) Validate() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	free := make(map[int]bool, len(b.freeList))
	for _, idx := range b.freeList {
		if free[idx] {
			return fmt.Errorf("%w: frame %d twice on free list", ErrInvariant, idx)
		}
		free[idx] = true
	}

	tracked := 0
	resident := 0
	for idx := range b.frames {
		p := &b.frames[idx]
		inReplacer := b.replacer.Tracked(idx)
		if inReplacer {
			tracked++
		}

		if p.pinCount < 0 {
			return fmt.Errorf("%w: frame %d pin count %d", ErrInvariant, idx, p.pinCount)
		}

		if p.id == common.InvalidPageID {
			switch {
			case !free[idx]:
				return fmt.Errorf("%w: empty frame %d not on free list", ErrInvariant, idx)
			case p.pinCount != 0 || p.dirty:
				return fmt.Errorf("%w: free frame %d has metadata", ErrInvariant, idx)
			case inReplacer:
				return fmt.Errorf("%w: free frame %d tracked by replacer", ErrInvariant, idx)
			}
			continue
		}

		resident++
		if free[idx] {
			return fmt.Errorf("%w: frame %d holds page %d but is on free list", ErrInvariant, idx, p.id)
		}
		if got, ok := b.pageTable[p.id]; !ok || got != idx {
			return fmt.Errorf("%w: page table does not map page %d to frame %d", ErrInvariant, p.id, idx)
		}
		if (p.pinCount == 0) != inReplacer {
			return fmt.Errorf("%w: frame %d pin count %d, tracked=%v", ErrInvariant, idx, p.pinCount, inReplacer)
		}
	}

	if resident != len(b.pageTable) {
		return fmt.Errorf("%w: %d resident frames, %d page table entries", ErrInvariant, resident, len(b.pageTable))
	}
	if tracked != b.replacer.Size() {
		return fmt.Errorf("%w: replacer size %d, tracked frames %d", ErrInvariant, b.replacer.Size(), tracked)
	}
	return nil
}
