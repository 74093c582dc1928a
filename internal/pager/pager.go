package pager

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// ErrReadOnly is returned when a write operation is attempted on a
// read-only pager.
var ErrReadOnly = errors.New("pager: database is read-only")

// ErrLockRangeViolation is returned when an operation would touch a page
// inside the reserved lock-byte range.
var ErrLockRangeViolation = errors.New("pager: page falls inside reserved lock-byte range")

// ErrLocked is returned by Open when the advisory lock on the reserved
// byte range is already held (exclusively, or for a conflicting mode) by
// another process.
var ErrLocked = errors.New("pager: database is locked by another process")

// Pager presents a single file as an array of fixed-size pages: reads,
// fsync'd writes, page allocation, and mmap'd zero-copy ranges (spec.md §4.1).
// It exclusively owns the file descriptor; every other component only
// borrows it.
type Pager struct {
	mu sync.RWMutex

	file     StorageFile
	osFile   *os.File // non-nil when file is backed by a real descriptor (needed for mmap)
	mem      *MemFile
	path     string
	pageSize uint32
	readOnly bool
	logger   *slog.Logger

	fileSizeBytes int64 // cached, updated on every write/allocate/truncate

	lock *fileLock

	cache *pageCache

	mmapMu    sync.Mutex
	mmapCache map[mmapKey]*MappedRegion
}

// Options configures Open.
type Options struct {
	PageSize   uint32
	ReadOnly   bool
	LockFile   bool
	CacheSize  int // pages held in the LRU cache
	Logger     *slog.Logger
	CreateOnly bool // fail if file already exists
}

// Open opens or creates the single database file at path.
func Open(path string, opts Options) (*Pager, error) {
	if opts.PageSize == 0 {
		opts.PageSize = DefaultPageSize
	}
	if !IsValidPageSize(opts.PageSize) {
		return nil, fmt.Errorf("pager: invalid page size %d: %w", opts.PageSize, ErrInvalidPageSize)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	flags := os.O_RDWR | os.O_CREATE
	if opts.CreateOnly {
		flags |= os.O_EXCL
	}
	if opts.ReadOnly {
		flags = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("pager: open %s: %w", path, err)
	}

	var lock *fileLock
	if opts.LockFile {
		lock, err = lockFile(f, opts.ReadOnly)
		if err != nil {
			f.Close()
			return nil, err
		}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		if lock != nil {
			lock.unlock(f)
		}
		return nil, err
	}

	p := &Pager{
		file:          f,
		osFile:        f,
		path:          path,
		pageSize:      opts.PageSize,
		readOnly:      opts.ReadOnly,
		logger:        logger,
		lock:          lock,
		fileSizeBytes: info.Size(),
		cache:         newPageCache(cacheSizeOrDefault(opts.CacheSize), opts.PageSize),
		mmapCache:     make(map[mmapKey]*MappedRegion),
	}
	return p, nil
}

// OpenMemory creates a pager entirely in memory, with no file descriptor
// and therefore no mmap or advisory locking (used for the WASM/playground
// mode and for fast unit tests).
func OpenMemory(pageSize uint32) (*Pager, error) {
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if !IsValidPageSize(pageSize) {
		return nil, fmt.Errorf("pager: invalid page size %d: %w", pageSize, ErrInvalidPageSize)
	}
	mem := NewMemFile()
	return &Pager{
		file:      mem,
		mem:       mem,
		path:      ":memory:",
		pageSize:  pageSize,
		logger:    slog.Default(),
		cache:     newPageCache(1024, pageSize),
		mmapCache: make(map[mmapKey]*MappedRegion),
	}, nil
}

func cacheSizeOrDefault(n int) int {
	if n <= 0 {
		return 1024
	}
	return n
}

// ErrInvalidPageSize is wrapped into the error returned by Open when the
// requested page size is not a supported power of two.
var ErrInvalidPageSize = errors.New("page size must be a power of two in [4096,65536]")

// PageSize returns the configured page size in bytes.
func (p *Pager) PageSize() uint32 { return p.pageSize }

// IsReadOnly reports whether the pager rejects writes.
func (p *Pager) IsReadOnly() bool { return p.readOnly }

// Path returns the backing file path ("" or ":memory:" for in-memory pagers).
func (p *Pager) Path() string { return p.path }

// PageCount returns the number of whole pages currently in the file.
func (p *Pager) PageCount() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return uint64(p.fileSizeBytes) / uint64(p.pageSize)
}

// Close flushes and releases the file and its advisory lock.
func (p *Pager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalidateAllMMapsLocked()
	var syncErr error
	if !p.readOnly {
		syncErr = p.file.Sync()
	}
	closeErr := p.file.Close()
	if p.lock != nil && p.osFile != nil {
		p.lock.unlock(p.osFile)
	}
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}

func (p *Pager) invalidateAllMMapsLocked() {
	p.mmapMu.Lock()
	defer p.mmapMu.Unlock()
	for key, region := range p.mmapCache {
		region.Close()
		delete(p.mmapCache, key)
	}
}

// ReadPage reads page n. Reads past EOF return a zero-filled page rather
// than an error, per spec.md §4.1.
func (p *Pager) ReadPage(n uint64) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.readPageLocked(n)
}

func (p *Pager) readPageLocked(n uint64) ([]byte, error) {
	if data, ok := p.cache.get(n); ok {
		return data, nil
	}
	buf := make([]byte, p.pageSize)
	off := int64(n) * int64(p.pageSize)
	if off >= p.fileSizeBytes {
		return buf, nil // past EOF: zero page
	}
	_, err := p.file.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("pager: read page %d: %w", n, err)
	}
	p.cache.put(n, buf)
	return buf, nil
}

// WritePage writes buf (len(buf) == PageSize) to page n. It extends the
// file when n falls past the current end, and rejects writes that would
// overlap the reserved lock-byte range.
func (p *Pager) WritePage(n uint64, buf []byte) error {
	if p.readOnly {
		return ErrReadOnly
	}
	if uint32(len(buf)) != p.pageSize {
		return fmt.Errorf("pager: write page %d: buffer length %d != page size %d", n, len(buf), p.pageSize)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writePageLocked(n, buf)
}

func (p *Pager) writePageLocked(n uint64, buf []byte) error {
	off := int64(n) * int64(p.pageSize)
	if RangeOverlapsLock(off, int64(p.pageSize)) {
		return ErrLockRangeViolation
	}
	if _, err := p.file.WriteAt(buf, off); err != nil {
		return fmt.Errorf("pager: write page %d: %w", n, err)
	}
	if end := off + int64(p.pageSize); end > p.fileSizeBytes {
		p.fileSizeBytes = end
	}
	p.cache.put(n, buf)
	p.invalidateMMapsOverlappingLocked(n, 1)
	return nil
}

func (p *Pager) invalidateMMapsOverlappingLocked(startPage, count uint64) {
	p.mmapMu.Lock()
	defer p.mmapMu.Unlock()
	end := startPage + count
	for key, region := range p.mmapCache {
		if key.start < end && key.start+key.count > startPage {
			region.Close()
			delete(p.mmapCache, key)
		}
	}
}

// AllocatePages extends the file by count pages, skipping over the
// reserved lock-byte range if the new pages would otherwise overlap it,
// and returns the first allocated page number.
func (p *Pager) AllocatePages(count uint64) (uint64, error) {
	if p.readOnly {
		return 0, ErrReadOnly
	}
	if count == 0 {
		return 0, fmt.Errorf("pager: allocate: count must be > 0")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	start := uint64(p.fileSizeBytes) / uint64(p.pageSize)
	startOff := int64(start) * int64(p.pageSize)
	span := int64(count) * int64(p.pageSize)
	if RangeOverlapsLock(startOff, span) {
		// Skip forward to just past the reserved range.
		start = uint64(LockRangeStart+LockRangeLen) / uint64(p.pageSize)
		if (LockRangeStart+LockRangeLen)%int64(p.pageSize) != 0 {
			start++
		}
		startOff = int64(start) * int64(p.pageSize)
	}
	newEnd := startOff + span
	if newEnd > p.fileSizeBytes {
		if err := p.file.Truncate(newEnd); err != nil {
			return 0, fmt.Errorf("pager: allocate %d pages: %w", count, err)
		}
		p.fileSizeBytes = newEnd
	}
	p.invalidateMMapsOverlappingLocked(start, count)
	return start, nil
}

// Sync fsyncs the file.
func (p *Pager) Sync() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.file.Sync()
}

// MMapRange returns a zero-copy view of [startPage, startPage+count) backed
// by the OS page cache, cached by (start,count). In-memory pagers hand back
// a private copy since there is no descriptor to map.
func (p *Pager) MMapRange(startPage, count uint64) (*MappedRegion, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mmapRange(startPage, count)
}

// InvalidateMMapRange drops cached mappings overlapping [startPage,startPage+count).
func (p *Pager) InvalidateMMapRange(startPage, count uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	p.invalidateMMapsOverlappingLocked(startPage, count)
}

// RelocateArea copies count pages from src to dst, direction-safe (handles
// overlapping ranges), syncing before the source pages can be considered
// free by the caller.
func (p *Pager) RelocateArea(src, count, dst uint64) error {
	if p.readOnly {
		return ErrReadOnly
	}
	if src == dst || count == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	forward := dst < src
	indices := make([]uint64, count)
	for i := range indices {
		indices[i] = uint64(i)
	}
	if !forward {
		for i, j := 0, len(indices)-1; i < j; i, j = i+1, j-1 {
			indices[i], indices[j] = indices[j], indices[i]
		}
	}
	for _, i := range indices {
		buf, err := p.readPageLocked(src + i)
		if err != nil {
			return fmt.Errorf("pager: relocate read %d: %w", src+i, err)
		}
		if err := p.writePageLocked(dst+i, buf); err != nil {
			return fmt.Errorf("pager: relocate write %d: %w", dst+i, err)
		}
	}
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("pager: relocate sync: %w", err)
	}
	return nil
}

// CacheStats returns LRU page-cache hit/miss counters.
func (p *Pager) CacheStats() (hits, misses uint64, size, capacity int) {
	return p.cache.stats()
}

// ClearCache drops every cached page.
func (p *Pager) ClearCache() {
	p.cache.clear()
}

// Logger returns the pager's structured logger.
func (p *Pager) Logger() *slog.Logger { return p.logger }
