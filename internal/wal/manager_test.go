package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/clockpool/internal/storage"
	"github.com/tuannm99/clockpool/internal/storage/common"
)

func pageWith(b byte) []byte {
	p := make([]byte, common.PageSize)
	p[0] = b
	p[common.PageSize-1] = b
	return p
}

func TestManager_AppendFlushRecover(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	lsn1, err := m.AppendPageImage(3, pageWith(1))
	require.NoError(t, err)
	lsn2, err := m.AppendPageImage(5, pageWith(2))
	require.NoError(t, err)
	lsn3, err := m.AppendPageImage(3, pageWith(3))
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3}, []uint64{lsn1, lsn2, lsn3})

	require.Equal(t, uint64(0), m.FlushedLSN())
	require.NoError(t, m.Flush(lsn2))
	require.Equal(t, lsn2, m.FlushedLSN())
	// flushing an older lsn is a no-op
	require.NoError(t, m.Flush(lsn1))
	require.Equal(t, lsn2, m.FlushedLSN())

	dm := storage.NewMemoryDiskManager()
	require.NoError(t, m.Recover(dm))

	// later images win
	assert.Equal(t, pageWith(3), dm.Page(3))
	assert.Equal(t, pageWith(2), dm.Page(5))
	assert.Equal(t, 2, dm.Writes(3))
}

func TestManager_ReopenRestoresLSN(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	require.NoError(t, err)
	_, err = m.AppendPageImage(0, pageWith(9))
	require.NoError(t, err)
	_, err = m.AppendPageImage(1, pageWith(8))
	require.NoError(t, err)
	require.NoError(t, m.Close())

	m2, err := Open(dir)
	require.NoError(t, err)
	defer func() { _ = m2.Close() }()
	require.Equal(t, uint64(2), m2.LastLSN())
	require.Equal(t, uint64(2), m2.FlushedLSN())

	lsn, err := m2.AppendPageImage(2, pageWith(7))
	require.NoError(t, err)
	require.Equal(t, uint64(3), lsn)
}

func TestManager_RecoverToleratesTornTail(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	require.NoError(t, err)
	_, err = m.AppendPageImage(4, pageWith(4))
	require.NoError(t, err)
	_, err = m.AppendPageImage(6, pageWith(6))
	require.NoError(t, err)
	require.NoError(t, m.Close())

	// cut the second record in half
	path := filepath.Join(dir, "wal.log")
	require.NoError(t, os.Truncate(path, recordLen+recordLen/2))

	m2, err := Open(dir)
	require.NoError(t, err)
	defer func() { _ = m2.Close() }()
	require.Equal(t, uint64(1), m2.LastLSN())

	dm := storage.NewMemoryDiskManager()
	require.NoError(t, m2.Recover(dm))
	assert.Equal(t, pageWith(4), dm.Page(4))
	assert.Nil(t, dm.Page(6))
}

func TestManager_RecoverDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	require.NoError(t, err)
	_, err = m.AppendPageImage(1, pageWith(1))
	require.NoError(t, err)
	require.NoError(t, m.Close())

	path := filepath.Join(dir, "wal.log")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[headerLen+bodyFixedLen+10] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	m2, err := Open(dir)
	require.NoError(t, err)
	defer func() { _ = m2.Close() }()
	require.ErrorIs(t, m2.Recover(storage.NewMemoryDiskManager()), ErrBadCRC)
}

func TestManager_RejectsBadInput(t *testing.T) {
	m, err := Open(t.TempDir())
	require.NoError(t, err)

	_, err = m.AppendPageImage(0, []byte("short"))
	require.ErrorIs(t, err, ErrBadRecord)
	_, err = m.AppendPageImage(common.InvalidPageID, pageWith(0))
	require.ErrorIs(t, err, ErrBadRecord)

	require.NoError(t, m.Close())
	_, err = m.AppendPageImage(0, pageWith(0))
	require.ErrorIs(t, err, ErrNoWALFile)
}

func TestManager_RecoverThenAllocateSkipsRecoveredPages(t *testing.T) {
	walDir := t.TempDir()
	m, err := Open(walDir)
	require.NoError(t, err)
	defer func() { _ = m.Close() }()
	_, err = m.AppendPageImage(0, pageWith(1))
	require.NoError(t, err)
	_, err = m.AppendPageImage(1, pageWith(2))
	require.NoError(t, err)
	require.NoError(t, m.Flush(2))

	// the pages never reached the data file before the crash
	dm, err := storage.NewFileDiskManager(storage.LocalFileSet{Dir: t.TempDir(), Base: "pages"})
	require.NoError(t, err)
	defer func() { _ = dm.Close() }()

	require.NoError(t, m.Recover(dm))

	id, err := dm.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, common.PageID(2), id)

	buf := make([]byte, common.PageSize)
	require.NoError(t, dm.ReadPage(0, buf))
	assert.Equal(t, pageWith(1), buf)
}
