package bufferpool

import "errors"

var (
	// ErrPoolExhausted: every frame is pinned and the free list is empty.
	ErrPoolExhausted = errors.New("bufferpool: no free frame available (all pinned)")
	// ErrPageNotFound: the page is not resident.
	ErrPageNotFound = errors.New("bufferpool: page not resident")
	// ErrInvalidUnpin: unpin of a page whose pin count is already zero.
	ErrInvalidUnpin = errors.New("bufferpool: unpin of unpinned page")
	// ErrPageInUse: delete of a pinned page.
	ErrPageInUse = errors.New("bufferpool: page is pinned")
)
