package raydb

import (
	"errors"
	"fmt"

	"github.com/raydb/raydb/internal/header"
	"github.com/raydb/raydb/internal/pager"
	"github.com/raydb/raydb/internal/snapshot"
	"github.com/raydb/raydb/internal/txn"
)

// Kind categorizes a raydb error into one of the buckets from the error
// handling design: callers branch on Kind rather than string-matching a
// message, the way the teacher branches on its own sentinel errors.
type Kind int

const (
	// KindUnknown is the zero value; never returned by raydb itself.
	KindUnknown Kind = iota
	// KindInvalidFormat: bad magic, unknown version, unsupported page size.
	KindInvalidFormat
	// KindChecksumMismatch: header, section, or WAL record CRC failed.
	KindChecksumMismatch
	// KindWalBufferFull: the active WAL region could not fit a record and a
	// checkpoint could not free space.
	KindWalBufferFull
	// KindVersionTooNew: minReaderVersion exceeds what this build supports.
	KindVersionTooNew
	// KindTransactionState: commit on a rolled-back/foreign tx, or a second
	// concurrent Begin in non-MVCC mode.
	KindTransactionState
	// KindReadOnlyViolation: a mutation attempted on a read-only handle.
	KindReadOnlyViolation
	// KindLockContention: the advisory file lock is held by another process.
	KindLockContention
	// KindIntegrityFailure: Check found a structural inconsistency.
	KindIntegrityFailure
	// KindPathValidation: the supplied path contains traversal or control bytes.
	KindPathValidation
	// KindInternal: an invariant was violated after input validation passed.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidFormat:
		return "InvalidFormat"
	case KindChecksumMismatch:
		return "ChecksumMismatch"
	case KindWalBufferFull:
		return "WalBufferFull"
	case KindVersionTooNew:
		return "VersionTooNew"
	case KindTransactionState:
		return "TransactionState"
	case KindReadOnlyViolation:
		return "ReadOnlyViolation"
	case KindLockContention:
		return "LockContention"
	case KindIntegrityFailure:
		return "IntegrityFailure"
	case KindPathValidation:
		return "PathValidation"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error is the type every fallible raydb operation wraps its cause in. Op
// names the failing call ("Open", "CreateNode", "Vacuum", ...) the way the
// teacher prefixes its own wrapped errors with a package tag.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("raydb: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("raydb: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Sentinel errors for the common cases collaborators are expected to check
// for directly with errors.Is, mirroring the teacher's ErrReadOnly-style
// sentinels. These are the same sentinel values the internal layers return,
// re-exported here rather than re-declared, so errors.Is(err, raydb.ErrX)
// matches both the direct error and an *Error wrapping it via Unwrap.
var (
	ErrReadOnly          = txn.ErrReadOnly
	ErrTransactionActive = txn.ErrTransactionActive
	ErrNotFound          = errors.New("raydb: not found")
	// ErrIntegrityFailure is returned by Check when the active snapshot
	// violates a structural invariant (out-edge sort order, IN_OUT_INDEX
	// symmetry, key-index uniqueness, or a CRC mismatch).
	ErrIntegrityFailure = errors.New("raydb: structural integrity check failed")
)

// newError wraps err with Kind, classifying it from the lower layers'
// sentinels when possible and defaulting to KindInternal otherwise — see
// classify for the mapping table.
func newError(op string, err error) error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return &Error{Kind: already.Kind, Op: op, Err: err}
	}
	return &Error{Kind: classify(err), Op: op, Err: err}
}

// classify maps a lower-layer sentinel to its spec.md §7 Kind. Anything not
// recognized is KindInternal: an invariant violation after validation,
// which this library surfaces rather than panics on (it is an embeddable
// component and must not kill the host process).
func classify(err error) Kind {
	switch {
	case errors.Is(err, header.ErrBadMagic),
		errors.Is(err, header.ErrUnsupportedSize),
		errors.Is(err, snapshot.ErrBadMagic),
		errors.Is(err, pager.ErrInvalidPageSize):
		return KindInvalidFormat
	case errors.Is(err, header.ErrChecksumMismatch),
		errors.Is(err, snapshot.ErrChecksumMismatch):
		return KindChecksumMismatch
	case errors.Is(err, header.ErrVersionTooNew),
		errors.Is(err, snapshot.ErrVersionTooNew):
		return KindVersionTooNew
	case errors.Is(err, txn.ErrWalBufferFull):
		return KindWalBufferFull
	case errors.Is(err, txn.ErrTransactionActive),
		errors.Is(err, txn.ErrNotActive):
		return KindTransactionState
	case errors.Is(err, txn.ErrReadOnly),
		errors.Is(err, pager.ErrReadOnly):
		return KindReadOnlyViolation
	case errors.Is(err, pager.ErrLockRangeViolation), errors.Is(err, pager.ErrLocked):
		return KindLockContention
	case errors.Is(err, ErrInvalidPath):
		return KindPathValidation
	case errors.Is(err, ErrIntegrityFailure):
		return KindIntegrityFailure
	default:
		return KindInternal
	}
}
