package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/clockpool/internal/storage/common"
)

func TestMemoryDiskManager_CopiesInAndOut(t *testing.T) {
	m := NewMemoryDiskManager()

	src := make([]byte, common.PageSize)
	src[0] = 1
	require.NoError(t, m.WritePage(3, src))

	// mutating the caller's buffer must not reach the stored page
	src[0] = 2
	dst := make([]byte, common.PageSize)
	require.NoError(t, m.ReadPage(3, dst))
	assert.Equal(t, byte(1), dst[0])

	assert.Equal(t, 1, m.Writes(3))
	assert.Equal(t, 1, m.Reads(3))
	assert.Equal(t, 1, m.TotalWrites())
}

func TestMemoryDiskManager_UnknownPageReadsZero(t *testing.T) {
	m := NewMemoryDiskManager()
	dst := []byte{}
	require.ErrorIs(t, m.ReadPage(0, dst), ErrWrongSize)

	dst = make([]byte, common.PageSize)
	dst[5] = 9
	require.NoError(t, m.ReadPage(0, dst))
	assert.Equal(t, byte(0), dst[5])
}

func TestMemoryDiskManager_DeallocateRecordsAndFrees(t *testing.T) {
	m := NewMemoryDiskManager()
	m.SetPage(0, []byte("zero"))

	id, err := m.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, common.PageID(1), id)

	require.NoError(t, m.DeallocatePage(0))
	require.NoError(t, m.DeallocatePage(42))
	assert.Equal(t, []common.PageID{0, 42}, m.Deallocated())
	assert.Nil(t, m.Page(0))

	id, err = m.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, common.PageID(0), id)
}

func TestMemoryDiskManager_FailWrites(t *testing.T) {
	m := NewMemoryDiskManager()
	boom := errors.New("disk on fire")
	m.FailWrites[4] = boom

	err := m.WritePage(4, make([]byte, common.PageSize))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, m.Writes(4))
}

func TestMemoryDiskManager_WriteClaimsUnallocatedID(t *testing.T) {
	m := NewMemoryDiskManager()
	require.NoError(t, m.WritePage(2, make([]byte, common.PageSize)))

	id, err := m.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, common.PageID(3), id)
}

func TestMemoryDiskManager_FailReadsAndAllocate(t *testing.T) {
	m := NewMemoryDiskManager()
	boom := errors.New("bad sector")
	m.FailReads[1] = boom
	m.FailAllocate = boom

	err := m.ReadPage(1, make([]byte, common.PageSize))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, m.Reads(1))

	_, err = m.AllocatePage()
	require.ErrorIs(t, err, boom)

	m.FailAllocate = nil
	id, err := m.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, common.PageID(0), id)
}
