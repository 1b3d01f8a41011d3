// Package page implements the fixed 4 KiB page store that backs the
// B+-tree index files: a memory-mapped file grown in 1 MiB increments,
// with a CRC32-checksummed header on every page.
//
// The file layout is a flat array of Size-byte pages indexed by page id
// (page id * Size = byte offset). Page 0 always holds the tree root.
package page

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
)

const (
	// Size is the fixed page size in bytes.
	Size = 4096
	// HeaderSize is the fixed header size in bytes.
	HeaderSize = 32
	// DataSize is the usable data section of a page.
	DataSize = Size - HeaderSize

	// Magic identifies a valid ReedBase index page.
	Magic uint32 = 0xB7EE7EE1

	// growthIncrement is how much the backing file grows at a time.
	growthIncrement = 1024 * 1024
)

// Type distinguishes internal nodes from leaves.
type Type uint8

const (
	TypeInternal Type = 0
	TypeLeaf     Type = 1
)

// Header is the fixed 32-byte page header, laid out exactly as specified:
//
//	offset 0  : u32  magic
//	offset 4  : u8   page_type
//	offset 5  : u16  num_keys
//	offset 7  : u32  next_page   ; leaves only, 0 if none
//	offset 11 : u32  checksum    ; CRC32 of bytes[32..4096]
//	offset 15 : 17B  reserved (zero)
type Header struct {
	Type     Type
	NumKeys  uint16
	NextPage uint32
	Checksum uint32
}

// Page is one in-memory page: a decoded header plus its raw data section.
type Page struct {
	ID     uint32
	Header Header
	Data   [DataSize]byte
}

// ErrCorruptedPage is returned when a page's magic or checksum does not
// validate.
type ErrCorruptedPage struct {
	PageID uint32
	Reason string
}

func (e *ErrCorruptedPage) Error() string {
	return fmt.Sprintf("corrupted page %d: %s", e.PageID, e.Reason)
}

// Store manages a memory-mapped, growable file of fixed-size pages.
// Store is not safe for concurrent use from multiple goroutines without
// external synchronization — callers (internal/bptree) serialize access.
type Store struct {
	f     *os.File
	flk   fileLock
	mm    mmap.MMap
	mu    sync.Mutex
	size  int64  // current mapped file size
	next  uint32 // next free page id
	fresh bool   // file was zero-length at Open
}

// Open creates or attaches to a page file at path. New files are sized to
// 1 MiB; existing files are mapped at their current size.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("page: open %s: %w", path, err)
	}

	s := &Store{f: f}
	s.flk.setFile(f)
	if err := s.flk.Lock(); err != nil {
		f.Close()
		return nil, fmt.Errorf("page: lock %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("page: stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		if err := f.Truncate(growthIncrement); err != nil {
			f.Close()
			return nil, fmt.Errorf("page: truncate %s: %w", path, err)
		}
		s.size = growthIncrement
		s.fresh = true
	} else {
		s.size = info.Size()
	}

	if err := s.remap(); err != nil {
		f.Close()
		return nil, err
	}

	// Page allocation uses an in-memory counter inferred by scanning
	// from page 0 until the first page that fails to validate (or the
	// end of the mapped region, if every page happens to be valid).
	s.next = 0
	total := uint32(s.size / Size)
	for s.next < total {
		if _, err := s.readLocked(s.next); err != nil {
			break
		}
		s.next++
	}

	return s, nil
}

// Close unmaps the file, releases the file lock, and closes the
// handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.mm != nil {
		err = s.mm.Unmap()
	}
	if lerr := s.flk.Unlock(); lerr != nil && err == nil {
		err = lerr
	}
	s.flk.setFile(nil)
	if cerr := s.f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// remap must be called with mu held.
func (s *Store) remap() error {
	if s.mm != nil {
		if err := s.mm.Unmap(); err != nil {
			return fmt.Errorf("page: unmap: %w", err)
		}
	}
	mm, err := mmap.Map(s.f, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("page: mmap: %w", err)
	}
	s.mm = mm
	return nil
}

// Fresh reports whether the backing file was zero-length at Open,
// i.e. this store has never held a page.
func (s *Store) Fresh() bool { return s.fresh }

// NumPages returns the number of pages currently backed by the file.
func (s *Store) NumPages() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint32(s.size / Size)
}

// grow extends the file by growthIncrement bytes and remaps it. Any
// slices previously obtained from the old mapping must not be used
// after this call returns.
func (s *Store) grow() error {
	newSize := s.size + growthIncrement
	if err := s.f.Truncate(newSize); err != nil {
		return fmt.Errorf("page: grow: %w", err)
	}
	s.size = newSize
	return s.remap()
}

// Allocate returns the id of a fresh zeroed page of the given type,
// growing the file if necessary.
func (s *Store) Allocate(t Type) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	if int64(id+1)*Size > s.size {
		if err := s.grow(); err != nil {
			return 0, err
		}
	}

	hdr := Header{Type: t}
	if err := s.writeLocked(id, hdr, [DataSize]byte{}); err != nil {
		return 0, err
	}
	s.next++
	return id, nil
}

// Read loads and validates the page at id.
func (s *Store) Read(id uint32) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(id)
}

func (s *Store) readLocked(id uint32) (*Page, error) {
	off := int64(id) * Size
	if off+Size > int64(len(s.mm)) {
		return nil, &ErrCorruptedPage{id, "out of range"}
	}
	buf := s.mm[off : off+Size]

	magic := binary.BigEndian.Uint32(buf[0:4])
	if magic != Magic {
		return nil, &ErrCorruptedPage{id, "bad magic"}
	}

	p := &Page{ID: id}
	p.Header.Type = Type(buf[4])
	p.Header.NumKeys = binary.BigEndian.Uint16(buf[5:7])
	p.Header.NextPage = binary.BigEndian.Uint32(buf[7:11])
	p.Header.Checksum = binary.BigEndian.Uint32(buf[11:15])
	copy(p.Data[:], buf[HeaderSize:Size])

	got := crc32.ChecksumIEEE(p.Data[:])
	if got != p.Header.Checksum {
		return nil, &ErrCorruptedPage{id, "checksum mismatch"}
	}
	return p, nil
}

// Write recomputes the checksum and flushes header+data for page id.
func (s *Store) Write(id uint32, hdr Header, data [DataSize]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(id, hdr, data)
}

func (s *Store) writeLocked(id uint32, hdr Header, data [DataSize]byte) error {
	off := int64(id) * Size
	if off+Size > int64(len(s.mm)) {
		return &ErrCorruptedPage{id, "out of range"}
	}

	hdr.Checksum = crc32.ChecksumIEEE(data[:])

	buf := s.mm[off : off+Size]
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	buf[4] = byte(hdr.Type)
	binary.BigEndian.PutUint16(buf[5:7], hdr.NumKeys)
	binary.BigEndian.PutUint32(buf[7:11], hdr.NextPage)
	binary.BigEndian.PutUint32(buf[11:15], hdr.Checksum)
	for i := 15; i < HeaderSize; i++ {
		buf[i] = 0
	}
	copy(buf[HeaderSize:Size], data[:])

	return s.mm.Flush()
}

// Validate re-reads a page and returns an error if its checksum no
// longer matches its data — used by tests to assert CRC coverage.
func (s *Store) Validate(id uint32) error {
	_, err := s.Read(id)
	return err
}

// SetData right-pads src with zeros to exactly DataSize bytes. It is an
// error for src to be longer than DataSize.
func SetData(src []byte) ([DataSize]byte, error) {
	var out [DataSize]byte
	if len(src) > DataSize {
		return out, fmt.Errorf("page: data too large: %d > %d", len(src), DataSize)
	}
	copy(out[:], src)
	return out, nil
}
