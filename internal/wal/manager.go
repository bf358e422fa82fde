package wal

import (
	"bufio"
	"errors"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/tuannm99/clockpool/internal/alias/bx"
	"github.com/tuannm99/clockpool/internal/storage/common"
)

var (
	ErrBadMagic  = errors.New("wal: bad magic")
	ErrBadCRC    = errors.New("wal: bad crc")
	ErrBadRecord = errors.New("wal: bad record")
	ErrShortRead = errors.New("wal: short read")
	ErrNoWALFile = errors.New("wal: wal file not found")
)

const (
	magicU32   uint32 = 0x4C415743 // "CWAL"
	versionU16        = 1

	recPageImage uint8 = 1

	// magic(4) ver(2) typ(1) rsv(1) totalLen(4) crc(4)
	headerLen = 4 + 2 + 1 + 1 + 4 + 4
	// lsn(8) pageID(4)
	bodyFixedLen = 8 + 4
	recordLen    = headerLen + bodyFixedLen + common.PageSize
)

// PageWriter receives redo page images. storage.DiskManager satisfies it.
type PageWriter interface {
	WritePage(pageID common.PageID, pageBytes []byte) error
}

type Manager struct {
	mu      sync.Mutex
	f       *os.File
	path    string
	lsn     uint64
	flushed uint64
}

func Open(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, common.FileMode0755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "wal.log")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, common.FileMode0644)
	if err != nil {
		return nil, err
	}
	m := &Manager{f: f, path: path}
	_ = m.initLastLSN()
	return m, nil
}

func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil {
		return nil
	}
	err := m.f.Close()
	m.f = nil
	return err
}

// AppendPageImage logs a full page image and returns its LSN.
func (m *Manager) AppendPageImage(pageID common.PageID, pageBytes []byte) (uint64, error) {
	if len(pageBytes) != common.PageSize || !pageID.Valid() {
		return 0, ErrBadRecord
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.f == nil {
		return 0, ErrNoWALFile
	}

	m.lsn++
	lsn := m.lsn

	buf := make([]byte, recordLen)
	bx.PutU32(buf[0:], magicU32)
	bx.PutU16(buf[4:], versionU16)
	buf[6] = recPageImage
	buf[7] = 0
	bx.PutU32(buf[8:], uint32(recordLen))
	// crc at [12:16] covers everything after it
	bx.PutU64(buf[headerLen:], lsn)
	bx.PutI32(buf[headerLen+8:], int32(pageID))
	copy(buf[headerLen+bodyFixedLen:], pageBytes)
	bx.PutU32(buf[12:], crc32.ChecksumIEEE(buf[headerLen:]))

	if _, err := m.f.Write(buf); err != nil {
		m.lsn--
		return 0, err
	}
	return lsn, nil
}

// Flush makes every record up to upto durable.
func (m *Manager) Flush(upto uint64) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil {
		return nil
	}
	if upto == 0 || upto <= m.flushed {
		return nil
	}
	if upto > m.lsn {
		upto = m.lsn
	}
	if err := m.f.Sync(); err != nil {
		return err
	}
	m.flushed = upto
	return nil
}

func (m *Manager) FlushedLSN() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushed
}

func (m *Manager) LastLSN() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lsn
}

// Recover replays WAL page images (redo) using writer.
func (m *Manager) Recover(writer PageWriter) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	path := m.path
	m.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReaderSize(f, 1<<20)

	for {
		rec, err := readOne(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			// tolerate torn tail record
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrShortRead) {
				return nil
			}
			return err
		}
		if rec.typ != recPageImage {
			continue
		}
		if err := writer.WritePage(rec.pageID, rec.page); err != nil {
			return err
		}
	}
}

type decodedRecord struct {
	typ    uint8
	lsn    uint64
	pageID common.PageID
	page   []byte
}

func readOne(r *bufio.Reader) (*decodedRecord, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	if bx.U32(hdr[0:]) != magicU32 {
		return nil, ErrBadMagic
	}
	if bx.U16(hdr[4:]) != versionU16 {
		return nil, ErrBadRecord
	}
	tp := hdr[6]
	totalLen := bx.U32(hdr[8:])
	if totalLen != recordLen {
		return nil, ErrBadRecord
	}
	wantCRC := bx.U32(hdr[12:])

	rest := make([]byte, int(totalLen)-headerLen)
	if _, err := io.ReadFull(r, rest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrShortRead
		}
		return nil, err
	}
	if crc32.ChecksumIEEE(rest) != wantCRC {
		return nil, ErrBadCRC
	}

	return &decodedRecord{
		typ:    tp,
		lsn:    bx.U64(rest[0:]),
		pageID: common.PageID(bx.I32(rest[8:])),
		page:   rest[bodyFixedLen:],
	}, nil
}

func (m *Manager) initLastLSN() error {
	f, err := os.Open(m.path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReaderSize(f, 1<<20)
	var last uint64

	for {
		rec, err := readOne(r)
		if err != nil {
			break
		}
		if rec.lsn > last {
			last = rec.lsn
		}
	}

	if last > 0 {
		m.lsn = last
		m.flushed = last
	}
	return nil
}
