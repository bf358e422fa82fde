package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"

	"github.com/tuannm99/clockpool/internal/storage/common"
)

// LocalFileSet represents a local directory + base file name.
// Segments are stored as: Base, Base.1, Base.2, ...
type LocalFileSet struct {
	Dir  string
	Base string
}

func (lfs LocalFileSet) segmentPath(segNo int32) string {
	name := lfs.Base
	if segNo > 0 {
		name = fmt.Sprintf("%s.%d", lfs.Base, segNo)
	}
	return filepath.Join(lfs.Dir, name)
}

// FileDiskManager stores pages in segmented files and maps a logical
// pageID -> (segment, offset).
//
// The free-id list lives in memory only. After a restart every page up to
// the end of the last segment counts as allocated, including ids that were
// deallocated before the restart.
type FileDiskManager struct {
	lfs LocalFileSet

	mu        sync.Mutex
	segments  map[int32]*os.File
	ids       idAllocator
	numReads  uint64
	numWrites uint64
	closed    bool
}

// NewFileDiskManager opens (or creates) the file set and continues page
// allocation after the last page found on disk.
func NewFileDiskManager(lfs LocalFileSet) (*FileDiskManager, error) {
	if err := os.MkdirAll(lfs.Dir, common.FileMode0755); err != nil {
		return nil, fmt.Errorf("storage: create dir: %w", err)
	}
	n, err := countPages(lfs)
	if err != nil {
		return nil, err
	}
	return &FileDiskManager{
		lfs:      lfs,
		segments: make(map[int32]*os.File),
		ids:      newIDAllocator(common.PageID(n)),
	}, nil
}

func locate(pageID common.PageID) (segNo int32, offset int64) {
	segNo = int32(pageID) / common.MaxPagePerSegment
	pageInSeg := int64(pageID) % common.MaxPagePerSegment
	return segNo, pageInSeg * common.PageSize
}

// segment returns the open handle for segNo. Caller holds mu.
func (dm *FileDiskManager) segment(segNo int32) (*os.File, error) {
	if dm.closed {
		return nil, ErrClosed
	}
	if f, ok := dm.segments[segNo]; ok {
		return f, nil
	}
	// RDWR | CREATE (no truncate)
	f, err := os.OpenFile(dm.lfs.segmentPath(segNo), os.O_RDWR|os.O_CREATE, common.FileMode0644)
	if err != nil {
		return nil, fmt.Errorf("storage: open segment %d: %w", segNo, err)
	}
	dm.segments[segNo] = f
	return f, nil
}

// ReadPage reads exactly one page into dst. If the segment is shorter than
// offset+PageSize the remainder is zero-filled, so allocated but never
// written pages read as zeros.
func (dm *FileDiskManager) ReadPage(pageID common.PageID, dst []byte) error {
	if err := checkArgs(pageID, dst); err != nil {
		return err
	}
	segNo, off := locate(pageID)

	dm.mu.Lock()
	defer dm.mu.Unlock()

	f, err := dm.segment(segNo)
	if err != nil {
		return err
	}
	n, err := f.ReadAt(dst, off)
	if err != nil && err != io.EOF {
		return fmt.Errorf("storage: read page %d: %w", pageID, err)
	}
	clear(dst[n:])
	dm.numReads++
	return nil
}

// WritePage writes exactly one page from src at the location computed from pageID.
// Writing an id the allocator has not handed out marks it allocated.
func (dm *FileDiskManager) WritePage(pageID common.PageID, src []byte) error {
	if err := checkArgs(pageID, src); err != nil {
		return err
	}
	segNo, off := locate(pageID)

	dm.mu.Lock()
	defer dm.mu.Unlock()

	f, err := dm.segment(segNo)
	if err != nil {
		return err
	}
	n, err := f.WriteAt(src, off)
	if err != nil {
		return fmt.Errorf("storage: write page %d: %w", pageID, err)
	}
	if n != common.PageSize {
		return io.ErrShortWrite
	}
	dm.ids.claim(pageID)
	dm.numWrites++
	return nil
}

func (dm *FileDiskManager) AllocatePage() (common.PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.closed {
		return common.InvalidPageID, ErrClosed
	}
	return dm.ids.allocate(), nil
}

// DeallocatePage releases pageID for reuse. The bytes stay on disk until the
// id is handed out and written again.
func (dm *FileDiskManager) DeallocatePage(pageID common.PageID) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.closed {
		return ErrClosed
	}
	dm.ids.release(pageID)
	return nil
}

// Sync fsyncs every open segment.
func (dm *FileDiskManager) Sync() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	var err error
	for _, f := range dm.segments {
		err = multierr.Append(err, f.Sync())
	}
	return err
}

func (dm *FileDiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.closed {
		return nil
	}
	dm.closed = true

	var err error
	for segNo, f := range dm.segments {
		err = multierr.Append(err, f.Sync())
		err = multierr.Append(err, f.Close())
		delete(dm.segments, segNo)
	}
	return err
}

func (dm *FileDiskManager) NumReads() uint64 {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.numReads
}

func (dm *FileDiskManager) NumWrites() uint64 {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.numWrites
}

// countPages computes total pages for a file set by scanning all segments.
func countPages(lfs LocalFileSet) (int64, error) {
	var total int64
	for segNo := int32(0); ; segNo++ {
		info, err := os.Stat(lfs.segmentPath(segNo))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				break
			}
			return 0, fmt.Errorf("storage: stat segment %d: %w", segNo, err)
		}
		size := info.Size()
		total = int64(segNo)*common.MaxPagePerSegment + (size+common.PageSize-1)/common.PageSize
		if size < common.SegmentSize {
			break
		}
	}
	return total, nil
}
