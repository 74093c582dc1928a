// Package raydb is an embeddable, single-writer graph database engine: a
// fixed-page file, a dual-region write-ahead log, an immutable CSR snapshot
// format, and an in-memory delta overlay reconciled by a merged read path.
// See the internal/ subpackages for each layer; this package is the only
// one meant to be imported by collaborators outside the module.
package raydb

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/raydb/raydb/internal/checkpoint"
	"github.com/raydb/raydb/internal/delta"
	"github.com/raydb/raydb/internal/header"
	"github.com/raydb/raydb/internal/pager"
	"github.com/raydb/raydb/internal/snapshot"
	"github.com/raydb/raydb/internal/txn"
	"github.com/raydb/raydb/internal/wal"
)

// DB is an open handle on a single raydb file (or an in-memory instance).
// All methods are safe for concurrent use by multiple goroutines; the
// single-writer constraint is enforced at the transaction layer, not here.
type DB struct {
	opts Options

	pgr     *pager.Pager
	txMgr   *txn.Manager
	ckptMgr *checkpoint.Manager

	catalog *catalog

	snapMu sync.Mutex // serializes swapping the cached *snapshot.Snapshot on checkpoint

	closed bool
}

// Open opens or creates the single-file database at path. Defaults: a 4 KiB
// page file with a 64 KiB dual-region WAL, matching spec.md §6.2.
func Open(path string, opts Options) (*DB, error) {
	if err := validatePath(path); err != nil {
		return nil, newError("Open", err)
	}
	opts = opts.withDefaults()

	existed, err := pathExists(path)
	if err != nil {
		return nil, newError("Open", err)
	}
	if !existed && !opts.CreateIfMissing && !opts.ReadOnly {
		return nil, newError("Open", fmt.Errorf("%w: %s", ErrNotFound, path))
	}

	pgr, err := pager.Open(path, pager.Options{
		PageSize:  opts.PageSize,
		ReadOnly:  opts.ReadOnly,
		LockFile:  opts.LockFile,
		CacheSize: opts.CacheSize,
		Logger:    opts.Logger,
	})
	if err != nil {
		return nil, newError("Open", err)
	}

	db, err := openDB(pgr, opts, !existed)
	if err != nil {
		pgr.Close()
		return nil, err
	}
	return db, nil
}

// OpenMemory creates a database entirely in memory, with no file descriptor,
// mmap, or advisory locking — used for tests and ephemeral instances.
func OpenMemory(opts Options) (*DB, error) {
	opts = opts.withDefaults()
	pgr, err := pager.OpenMemory(opts.PageSize)
	if err != nil {
		return nil, newError("OpenMemory", err)
	}
	db, err := openDB(pgr, opts, true)
	if err != nil {
		pgr.Close()
		return nil, err
	}
	return db, nil
}

func openDB(pgr *pager.Pager, opts Options, fresh bool) (*DB, error) {
	var hdr *header.Header
	var committed *delta.Delta
	var walBuf *wal.Buffer

	if fresh {
		var err error
		hdr, walBuf, err = initializeFresh(pgr, opts)
		if err != nil {
			return nil, newError("Open", err)
		}
		committed = delta.New()
	} else {
		var err error
		hdr, walBuf, committed, err = recoverExisting(pgr, opts)
		if err != nil {
			return nil, newError("Open", err)
		}
	}

	db := &DB{opts: opts, pgr: pgr}
	// txn.Manager and checkpoint.Manager each need a reference to the
	// other (the checkpointer backpressures commits; the checkpointer
	// itself drives the transaction manager's WAL/header/delta state), so
	// neither constructor can take a fully-built instance of the other.
	// Build txn.Manager first with no checkpointer, then checkpoint.Manager
	// against it, then wire the back-reference.
	db.txMgr = txn.NewManager(pgr, hdr, walBuf, committed, opts.ReadOnly, opts.AutoCheckpoint, opts.CheckpointThreshold, nil, opts.Logger, db.nowFn())
	db.ckptMgr = checkpoint.NewManager(pgr, db.txMgr, opts.IncludeInEdges, opts.Logger, db.nowFn())
	db.txMgr.SetCheckpointer(db.ckptMgr)

	snap, err := db.loadCurrentSnapshot()
	if err != nil {
		return nil, newError("Open", err)
	}
	db.catalog = newCatalog(snap, committed)

	return db, nil
}

// nowFn returns the unix-nanosecond clock every layer below uses, so tests
// can't accidentally observe real wall-clock nondeterminism through this
// package (internal layers already take an overridable nowFn; this package
// always wires the real clock).
func (db *DB) nowFn() func() int64 {
	return func() int64 { return time.Now().UnixNano() }
}

func initializeFresh(pgr *pager.Pager, opts Options) (*header.Header, *wal.Buffer, error) {
	hdr := header.New(pgr.PageSize())

	// Page 0 is the header; the WAL ring follows it directly.
	totalWalPages := pagesForBytes(opts.WALSize, pgr.PageSize())
	walStart, err := pgr.AllocatePages(totalWalPages)
	if err != nil {
		return nil, nil, fmt.Errorf("raydb: allocate wal region: %w", err)
	}
	hdr.WalStartPage = walStart
	hdr.WalPageCount = totalWalPages

	primaryPages, secondaryPages := splitWALRegion(totalWalPages)
	walBuf := wal.NewBuffer(pgr, walStart, primaryPages, walStart+primaryPages, secondaryPages, header.RegionPrimary, 0, 0)

	buf := hdr.Serialize()
	if err := pgr.WritePage(0, buf); err != nil {
		return nil, nil, fmt.Errorf("raydb: write initial header: %w", err)
	}
	if err := pgr.Sync(); err != nil {
		return nil, nil, fmt.Errorf("raydb: sync initial header: %w", err)
	}
	return hdr, walBuf, nil
}

// recoverExisting implements spec.md §4.6's "recovery on open": parse page
// 0, replay whatever both WAL regions hold (both, regardless of
// checkpointInProgress — an interrupted checkpoint only ever discards
// nothing, per §8.3's boundary behavior) into a fresh delta, and clear a
// stuck in-progress flag so it never leaks into the reopened handle.
func recoverExisting(pgr *pager.Pager, opts Options) (*header.Header, *wal.Buffer, *delta.Delta, error) {
	page0, err := pgr.ReadPage(0)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("raydb: read header page: %w", err)
	}
	hdr, err := header.Parse(page0, true)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("raydb: parse header: %w", err)
	}

	primaryPages, secondaryPages := splitWALRegion(hdr.WalPageCount)
	walBuf := wal.NewBuffer(pgr, hdr.WalStartPage, primaryPages, hdr.WalStartPage+primaryPages, secondaryPages, hdr.ActiveWalRegion, hdr.WalPrimaryHead, hdr.WalSecondaryHead)

	primaryRecords, err := walBuf.ScanRegion(header.RegionPrimary)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("raydb: scan primary wal region: %w", err)
	}
	secondaryRecords, err := walBuf.ScanRegion(header.RegionSecondary)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("raydb: scan secondary wal region: %w", err)
	}
	all := append(append([]wal.Record(nil), primaryRecords...), secondaryRecords...)

	committed, maxTxID, err := txn.Replay(all)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("raydb: replay wal: %w", err)
	}
	if maxTxID > hdr.NextTxID {
		hdr.NextTxID = maxTxID
	}

	if hdr.CheckpointInProgress && !opts.ReadOnly {
		hdr.CheckpointInProgress = false
		buf := hdr.Serialize()
		if err := pgr.WritePage(0, buf); err != nil {
			return nil, nil, nil, fmt.Errorf("raydb: clear checkpointInProgress: %w", err)
		}
		if err := pgr.Sync(); err != nil {
			return nil, nil, nil, fmt.Errorf("raydb: sync cleared header: %w", err)
		}
	}

	return hdr, walBuf, committed, nil
}

// splitWALRegion divides a contiguous WAL area into primary (first 75%) and
// secondary (remaining 25%) page counts, per spec.md §5, never starving
// either region below one page.
func splitWALRegion(totalPages uint64) (primaryPages, secondaryPages uint64) {
	if totalPages < 2 {
		return totalPages, 0
	}
	primaryPages = totalPages * 3 / 4
	if primaryPages == 0 {
		primaryPages = 1
	}
	secondaryPages = totalPages - primaryPages
	if secondaryPages == 0 {
		primaryPages--
		secondaryPages = 1
	}
	return primaryPages, secondaryPages
}

func pagesForBytes(size uint64, pageSize uint32) uint64 {
	ps := uint64(pageSize)
	pages := (size + ps - 1) / ps
	if pages < 2 {
		pages = 2 // at least one page per region
	}
	return pages
}

// loadCurrentSnapshot mmaps and parses the header's active snapshot, or
// returns nil if the database has never been checkpointed.
func (db *DB) loadCurrentSnapshot() (*snapshot.Snapshot, error) {
	start, count := db.txMgr.HeaderSnapshotPointers()
	if count == 0 {
		return nil, nil
	}
	// The pager caches and owns this mapping's lifetime (it invalidates on
	// the next write/allocate over these pages); Parse keeps region.Bytes()
	// without copying, so this call must not Close it itself.
	region, err := db.pgr.MMapRange(start, count)
	if err != nil {
		return nil, fmt.Errorf("raydb: mmap current snapshot: %w", err)
	}
	return snapshot.Parse(region.Bytes(), false)
}

// currentSnapshot re-reads the header's snapshot pointer on every call
// rather than caching a *Snapshot across checkpoints, since a background
// checkpoint can swap the active generation at any moment; mmap pages
// themselves are cached by the pager.
func (db *DB) currentSnapshot() (*snapshot.Snapshot, error) {
	db.snapMu.Lock()
	defer db.snapMu.Unlock()
	return db.loadCurrentSnapshot()
}

// committed returns the live delta overlay shared by every read in this
// package.
func (db *DB) committed() *delta.Delta { return db.txMgr.Committed() }

// Close flushes and releases the underlying file and its advisory lock. A
// caller should Checkpoint before Close if it wants the next Open to start
// from a small WAL replay rather than a full one.
func (db *DB) Close() error {
	if db.closed {
		return nil
	}
	db.closed = true
	if err := db.pgr.Close(); err != nil {
		return newError("Close", err)
	}
	return nil
}

// Logger returns the structured logger this handle was opened with.
func (db *DB) Logger() *slog.Logger { return db.opts.Logger }

// ErrInvalidPath is the sentinel classify maps to KindPathValidation.
var ErrInvalidPath = errors.New("raydb: path contains a traversal segment or control byte")

func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("%w: NUL byte", ErrInvalidPath)
	}
	for _, r := range path {
		if r < 0x20 {
			return fmt.Errorf("%w: control byte", ErrInvalidPath)
		}
	}
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return nil
}

func pathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
