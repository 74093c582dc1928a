package raydb

import (
	"log/slog"

	"github.com/raydb/raydb/internal/pager"
	"github.com/raydb/raydb/internal/txn"
)

// Options configures Open, matching spec.md §6.2's named fields exactly
// plus the collaborator hooks from the same section. The zero Options
// value is usable: Open fills in every documented default.
type Options struct {
	// ReadOnly rejects any mutation on the resulting DB.
	ReadOnly bool
	// CreateIfMissing creates a new single-file database when path doesn't
	// exist; if false, Open fails on a missing file.
	CreateIfMissing bool
	// LockFile takes the OS advisory lock over the reserved byte range of
	// the database file (spec.md §5). False (the zero value) opens the
	// file without the lock; meaningless for in-memory databases.
	LockFile bool
	// PageSize in bytes, power of two in [4096,65536]. Zero defaults to 4096.
	PageSize uint32
	// WALSize is the total size in bytes of the dual-region WAL ring,
	// split 75%/25% primary/secondary (spec.md §4.3). Zero defaults to 64 KiB.
	WALSize uint64
	// AutoCheckpoint triggers a background checkpoint once the active WAL
	// region passes CheckpointThreshold full.
	AutoCheckpoint bool
	// CheckpointThreshold is the fill fraction (0,1] past which a commit
	// triggers a background checkpoint. Zero defaults to
	// txn.DefaultCheckpointThreshold (0.8).
	CheckpointThreshold float64
	// CacheSnapshot enables the snapshot's mmap-backed zero-copy reads
	// (always true in this implementation; kept as a named field for
	// collaborators that inspect Options, per spec.md §6.2).
	CacheSnapshot bool
	// CacheSize is the number of pages held in the LRU page cache. Zero
	// defaults to 1024.
	CacheSize int
	// IncludeInEdges controls whether built snapshots carry the IN_* CSR
	// sections, trading snapshot size for O(1) in-neighbor iteration
	// (spec.md §4.4).
	IncludeInEdges bool
	// Logger receives structured diagnostics; nil defaults to slog.Default().
	Logger *slog.Logger

	// Cache, MVCC, and Vector are optional collaborator hooks (spec.md
	// §6.2); nil means "not wired", and the engine behaves exactly as if
	// the hook didn't exist (see hooks.go).
	Cache CacheManager
	MVCC  MVCCManager
	Vector VectorStore
}

// withDefaults returns a copy of o with every zero-value numeric field and
// a nil Logger replaced by its documented default; boolean fields are left
// exactly as the caller set them.
func (o Options) withDefaults() Options {
	if o.PageSize == 0 {
		o.PageSize = pager.DefaultPageSize
	}
	if o.WALSize == 0 {
		o.WALSize = defaultWALSize
	}
	if o.CheckpointThreshold <= 0 {
		o.CheckpointThreshold = txn.DefaultCheckpointThreshold
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

const defaultWALSize = 64 * 1024

// WithLogger returns opts with Logger set, for call sites that prefer the
// functional-option style over struct-literal construction.
func (o Options) WithLogger(l *slog.Logger) Options { o.Logger = l; return o }

// WithPageSize returns opts with PageSize set.
func (o Options) WithPageSize(n uint32) Options { o.PageSize = n; return o }

// WithWALSize returns opts with WALSize set.
func (o Options) WithWALSize(n uint64) Options { o.WALSize = n; return o }

// WithAutoCheckpoint returns opts with AutoCheckpoint and its threshold set.
func (o Options) WithAutoCheckpoint(threshold float64) Options {
	o.AutoCheckpoint = true
	o.CheckpointThreshold = threshold
	return o
}

// WithReadOnly returns opts with ReadOnly set.
func (o Options) WithReadOnly() Options { o.ReadOnly = true; return o }

// WithCreateIfMissing returns opts with CreateIfMissing set.
func (o Options) WithCreateIfMissing() Options { o.CreateIfMissing = true; return o }
