package common

const (
	OneB  = 1
	OneKB = 1024
	OneMB = OneKB * 1024
	OneGB = OneMB * 1024
)

const (
	// PageSize is the size of every page on disk and of every frame in the pool.
	PageSize = OneKB * 4

	SegmentSize       = 1 * OneGB
	MaxPagePerSegment = SegmentSize / PageSize
)

const (
	FileMode0644 = 0o644 // rw-r--r--
	FileMode0664 = 0o664 // rw-rw-r--
	FileMode0755 = 0o755 // rwxr-xr-x
)

// PageID identifies a page on disk.
type PageID int32

// InvalidPageID marks a frame that holds no page.
const InvalidPageID PageID = -1

func (id PageID) Valid() bool { return id >= 0 }
