package txn

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/raydb/raydb/internal/delta"
	"github.com/raydb/raydb/internal/header"
	"github.com/raydb/raydb/internal/model"
	"github.com/raydb/raydb/internal/pager"
	"github.com/raydb/raydb/internal/wal"
)

// Sentinel errors surfaced by the transaction layer (spec.md §7's
// TransactionState and ReadOnlyViolation kinds); the raydb façade package
// wraps these with its Kind-carrying *Error type.
var (
	ErrReadOnly          = errors.New("txn: database is read-only")
	ErrTransactionActive = errors.New("txn: another transaction is already active")
	ErrNotActive         = errors.New("txn: transaction is not the active one, or already finished")
	ErrWalBufferFull     = errors.New("txn: wal region full and checkpoint could not free space")
)

// DefaultCheckpointThreshold is the primary-region fill fraction past which
// Commit triggers a background checkpoint (spec.md §4.6).
const DefaultCheckpointThreshold = 0.8

// backgroundCheckpointHighWater is the secondary-region fill fraction past
// which a commit blocks awaiting the running checkpoint instead of merely
// triggering one.
const backgroundCheckpointHighWater = 0.9

// Checkpointer is the subset of the checkpoint/compactor the transaction
// layer needs to apply backpressure, satisfied by internal/checkpoint.
// Kept as a narrow interface so txn has no import-cycle dependency on it.
type Checkpointer interface {
	// TriggerBackground starts a background checkpoint if one isn't
	// already running; it never blocks.
	TriggerBackground() error
	// AwaitRunning blocks until any in-progress checkpoint completes.
	AwaitRunning() error
	// Running reports whether a checkpoint is currently in flight.
	Running() bool
}

// Manager owns the single current-transaction slot, the live delta overlay,
// the WAL ring, and the header. It is the one piece of the engine that
// serializes writers, matching the single-writer model of spec.md §5.
type Manager struct {
	mu sync.Mutex

	pgr    *pager.Pager
	hdr    *header.Header
	walBuf *wal.Buffer

	committed *delta.Delta
	current   *Txn
	nextTxID  uint64
	maxNodeID model.NodeID

	readOnly            bool
	autoCheckpoint      bool
	checkpointThreshold float64
	checkpointer        Checkpointer
	logger              *slog.Logger

	now func() int64 // unix-nanos clock, overridable in tests
}

// NewManager wires a transaction Manager over an already-open pager, header,
// and WAL buffer. checkpointer may be nil (no auto-checkpoint wiring yet);
// nowFn may be nil, in which case commit and checkpoint timestamps are
// recorded as zero.
func NewManager(pgr *pager.Pager, hdr *header.Header, walBuf *wal.Buffer, committed *delta.Delta, readOnly, autoCheckpoint bool, checkpointThreshold float64, checkpointer Checkpointer, logger *slog.Logger, nowFn func() int64) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if checkpointThreshold <= 0 {
		checkpointThreshold = DefaultCheckpointThreshold
	}
	return &Manager{
		pgr:                 pgr,
		hdr:                 hdr,
		walBuf:              walBuf,
		committed:           committed,
		nextTxID:            hdr.NextTxID,
		maxNodeID:           model.NodeID(hdr.MaxNodeID),
		readOnly:            readOnly,
		autoCheckpoint:      autoCheckpoint,
		checkpointThreshold: checkpointThreshold,
		checkpointer:        checkpointer,
		logger:              logger,
		now:                 nowFn,
	}
}

// Committed returns the live delta overlay shared by readers and writers.
func (m *Manager) Committed() *delta.Delta { return m.committed }

// SetCheckpointer wires the checkpointer used for auto-checkpoint
// backpressure after construction, for callers (the raydb façade) where the
// checkpointer and the transaction Manager it backpressures each need a
// reference to the other and so cannot both be built in one constructor call.
func (m *Manager) SetCheckpointer(c Checkpointer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpointer = c
}

// HeaderSnapshotPointers returns the header's current snapshot start page
// and page count, for callers (the checkpointer, diagnostics) that need to
// locate the active snapshot without reaching into the header package
// directly.
func (m *Manager) HeaderSnapshotPointers() (startPage, pageCount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hdr.SnapshotStartPage, m.hdr.SnapshotPageCount
}

// Diagnostics reports the header/WAL facts a diagnostics caller (the raydb
// façade's Stats) needs, without handing the header or WAL buffer
// themselves to callers outside this package.
type Diagnostics struct {
	ActiveSnapshotGen    uint64
	CheckpointInProgress bool
	WalPrimaryHead       uint64
	WalSecondaryHead     uint64
	WalPrimaryCapacity   int64
	WalSecondaryCapacity int64
}

// Diagnostics returns a snapshot of the header/WAL fields Stats needs.
func (m *Manager) Diagnostics() Diagnostics {
	m.mu.Lock()
	defer m.mu.Unlock()
	primCap, secCap := m.walBuf.Capacities()
	return Diagnostics{
		ActiveSnapshotGen:    m.hdr.ActiveSnapshotGen,
		CheckpointInProgress: m.hdr.CheckpointInProgress,
		WalPrimaryHead:       m.hdr.WalPrimaryHead,
		WalSecondaryHead:     m.hdr.WalSecondaryHead,
		WalPrimaryCapacity:   primCap,
		WalSecondaryCapacity: secCap,
	}
}

// NextNodeID allocates and returns the next NodeID, for use by callers
// composing a CreateNode op before starting the transaction that commits it.
func (m *Manager) NextNodeID() model.NodeID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxNodeID++
	return m.maxNodeID
}

// Txn is one pending, uncommitted transaction: an ordered Op log (for WAL
// durability, verbatim, uncancelled) plus a local delta overlay mirroring
// it (for read-your-own-writes before commit), per spec.md §4.6.
type Txn struct {
	id    uint64
	mgr   *Manager
	ops   []Op
	local *delta.Delta
	done  bool
}

// ID returns the transaction's allocated id.
func (t *Txn) ID() uint64 { return t.id }

// Local returns the transaction's own pending overlay, for read-your-own-
// writes: callers should check Local() before falling back to Committed().
func (t *Txn) Local() *delta.Delta { return t.local }

// BeginTx starts a new transaction. It waits for the Manager's lock (held
// for the length of a single Commit, Rollback or checkpoint step), then
// returns ErrTransactionActive if another transaction is still open.
func (m *Manager) BeginTx() (*Txn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.beginLocked()
}

// TryBeginTx is BeginTx's non-blocking sibling: it returns
// ErrTransactionActive immediately instead of waiting, for callers that run
// their own scheduler around the single current-tx slot (SPEC_FULL.md §13).
func (m *Manager) TryBeginTx() (*Txn, error) {
	if !m.mu.TryLock() {
		return nil, ErrTransactionActive
	}
	defer m.mu.Unlock()
	return m.beginLocked()
}

func (m *Manager) beginLocked() (*Txn, error) {
	if m.readOnly {
		return nil, ErrReadOnly
	}
	if m.current != nil {
		return nil, ErrTransactionActive
	}
	m.nextTxID++
	tx := &Txn{id: m.nextTxID, mgr: m, local: delta.New()}
	m.current = tx
	return tx, nil
}

func (t *Txn) checkActive() error {
	if t.done {
		return ErrNotActive
	}
	if t.mgr.current != t {
		return ErrNotActive
	}
	return nil
}

func (t *Txn) record(op Op) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	t.ops = append(t.ops, op)
	return Apply(t.local, []Op{op})
}

// Mutation methods: each appends to the ordered op log and applies to the
// transaction's local overlay for read-your-own-writes. None of these touch
// the WAL or the committed delta until Commit.

func (t *Txn) DefineLabel(id model.LabelID, name string) error {
	return t.record(Op{Kind: OpDefineLabel, Label: id, Name: name})
}
func (t *Txn) DefineEtype(id model.ETypeID, name string) error {
	return t.record(Op{Kind: OpDefineEtype, Etype: id, Name: name})
}
func (t *Txn) DefinePropkey(id model.PropKeyID, name string) error {
	return t.record(Op{Kind: OpDefinePropkey, Pkey: id, Name: name})
}
func (t *Txn) CreateNode(id model.NodeID, key string) error {
	return t.record(Op{Kind: OpCreateNode, Node: id, Key: key})
}
func (t *Txn) DeleteNode(id model.NodeID) error {
	return t.record(Op{Kind: OpDeleteNode, Node: id})
}
func (t *Txn) AddNodeLabel(id model.NodeID, l model.LabelID) error {
	return t.record(Op{Kind: OpAddNodeLabel, Node: id, Label: l})
}
func (t *Txn) RemoveNodeLabel(id model.NodeID, l model.LabelID) error {
	return t.record(Op{Kind: OpRemoveNodeLabel, Node: id, Label: l})
}
func (t *Txn) AddEdge(e model.Edge) error {
	return t.record(Op{Kind: OpAddEdge, Edge: e})
}
func (t *Txn) DeleteEdge(e model.Edge) error {
	return t.record(Op{Kind: OpDeleteEdge, Edge: e})
}
func (t *Txn) SetNodeProp(id model.NodeID, key model.PropKeyID, v model.PropValue) error {
	return t.record(Op{Kind: OpSetNodeProp, Node: id, Pkey: key, Value: v})
}
func (t *Txn) DelNodeProp(id model.NodeID, key model.PropKeyID) error {
	return t.record(Op{Kind: OpDelNodeProp, Node: id, Pkey: key})
}
func (t *Txn) SetEdgeProp(e model.Edge, key model.PropKeyID, v model.PropValue) error {
	return t.record(Op{Kind: OpSetEdgeProp, Edge: e, Pkey: key, Value: v})
}
func (t *Txn) DelEdgeProp(e model.Edge, key model.PropKeyID) error {
	return t.record(Op{Kind: OpDelEdgeProp, Edge: e, Pkey: key})
}

// Rollback discards the transaction's pending ops; nothing was ever
// written, so there is nothing to undo besides freeing the tx slot.
func (t *Txn) Rollback() error {
	t.mgr.mu.Lock()
	defer t.mgr.mu.Unlock()
	if err := t.checkActive(); err != nil {
		return err
	}
	t.done = true
	t.mgr.current = nil
	return nil
}

// Commit implements spec.md §4.6's commit(tx): compose the WAL record
// list (BEGIN, the ops verbatim and in order, COMMIT), append it to the
// WAL ring, fsync a header reflecting the new WAL head and allocator
// high-water marks, then replay the same ops into the committed delta via
// the shared Apply logic — so the committed overlay and a crash-recovered
// overlay are built by identical code from identical WAL contents.
func (t *Txn) Commit() error {
	t.mgr.mu.Lock()
	defer t.mgr.mu.Unlock()
	if err := t.checkActive(); err != nil {
		return err
	}

	m := t.mgr
	if err := m.maybeApplyBackpressure(); err != nil {
		return err
	}

	records := make([]wal.Record, 0, len(t.ops)+2)
	records = append(records, wal.Record{Type: wal.RecBegin, TxID: t.id})
	for _, op := range t.ops {
		records = append(records, ToRecord(t.id, op))
	}
	records = append(records, wal.Record{Type: wal.RecCommit, TxID: t.id})

	for _, rec := range records {
		if err := m.writeRecordWithSwitch(rec); err != nil {
			return fmt.Errorf("txn: commit: %w", err)
		}
	}

	primaryHead, secondaryHead := m.walBuf.Heads()
	nowNs := int64(0)
	if m.now != nil {
		nowNs = m.now()
	}
	m.hdr.UpdateForCommit(primaryHead, secondaryHead, uint64(m.maxNodeID), t.id, nowNs)
	if err := m.writeHeaderLocked(); err != nil {
		return fmt.Errorf("txn: commit: header fsync: %w", err)
	}

	if err := Apply(m.committed, t.ops); err != nil {
		return fmt.Errorf("txn: commit: apply to committed delta: %w", err)
	}

	t.done = true
	m.current = nil
	m.logger.Debug("txn committed", "txid", t.id, "ops", len(t.ops))
	return nil
}

// writeRecordWithSwitch appends rec, switching the WAL's active region (and
// retrying once) if the first attempt reports the region is full.
func (m *Manager) writeRecordWithSwitch(rec wal.Record) error {
	err := m.walBuf.WriteRecord(rec)
	if err == nil {
		return nil
	}
	if !errors.Is(err, wal.ErrRegionFull) {
		return err
	}
	m.walBuf.SwitchRegion()
	if err := m.walBuf.WriteRecord(rec); err != nil {
		return fmt.Errorf("%w: %v", ErrWalBufferFull, err)
	}
	return nil
}

// maybeApplyBackpressure implements spec.md §4.6's backpressure rule: past
// checkpointThreshold fill of the primary region, kick off a background
// checkpoint; past the high-water mark of the secondary region, block until
// the running one finishes.
func (m *Manager) maybeApplyBackpressure() error {
	if !m.autoCheckpoint || m.checkpointer == nil {
		return nil
	}
	primHead, secHead := m.walBuf.Heads()
	primCap, secCap := m.walBuf.Capacities()
	if m.checkpointer.Running() {
		if float64(secHead) < backgroundCheckpointHighWater*float64(secCap) {
			return nil
		}
		// The running checkpoint takes m.mu to finish, so wait without it.
		m.mu.Unlock()
		defer m.mu.Lock()
		return m.checkpointer.AwaitRunning()
	}
	if float64(primHead) < m.checkpointThreshold*float64(primCap) {
		return nil
	}
	return m.checkpointer.TriggerBackground()
}

// RunBlockingCheckpoint implements spec.md §4.7's blocking compaction mode:
// it holds the single-writer lock for the whole call (rejecting outright if
// the database is read-only or another transaction is in progress), lets
// fn build and persist a new snapshot from the current committed delta, and
// on success rewrites the header to point at it and clears the WAL ring and
// delta overlay the new snapshot now subsumes.
func (m *Manager) RunBlockingCheckpoint(fn func(committed *delta.Delta, snapStart, snapCount, activeGen uint64) (newStart, newCount, newGen uint64, err error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readOnly {
		return ErrReadOnly
	}
	if m.current != nil {
		return ErrTransactionActive
	}

	newStart, newCount, newGen, err := fn(m.committed, m.hdr.SnapshotStartPage, m.hdr.SnapshotPageCount, m.hdr.ActiveSnapshotGen)
	if err != nil {
		return err
	}

	nowNs := int64(0)
	if m.now != nil {
		nowNs = m.now()
	}
	m.hdr.UpdateForCompaction(newStart, newCount, newGen, nowNs)
	if err := m.writeHeaderLocked(); err != nil {
		return fmt.Errorf("txn: blocking checkpoint: header fsync: %w", err)
	}
	m.walBuf.ResetAfterCheckpoint()
	*m.committed = *delta.New()
	return nil
}

// BeginBackgroundCheckpoint implements the "Switch" step of spec.md §4.7's
// background compaction: under the writer lock, it scans the region about
// to be compacted (so the caller has a frozen view of exactly what's being
// folded into the new snapshot), flips the active WAL region so new commits
// land elsewhere, and persists CheckpointInProgress so a crash mid-checkpoint
// is recoverable. It returns the frozen region's committed records alongside
// the snapshot pointer fields fn will need to build the next generation.
func (m *Manager) BeginBackgroundCheckpoint() (vacatedRecords []wal.Record, snapStart, snapCount, activeGen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readOnly {
		return nil, 0, 0, 0, ErrReadOnly
	}

	vacated := m.walBuf.ActiveRegion()
	records, err := m.walBuf.ScanRegion(vacated)
	if err != nil {
		return nil, 0, 0, 0, fmt.Errorf("txn: checkpoint begin: scan region: %w", err)
	}

	m.walBuf.SwitchRegion()
	m.hdr.ActiveWalRegion = m.walBuf.ActiveRegion()
	m.hdr.CheckpointInProgress = true
	if err := m.writeHeaderLocked(); err != nil {
		return nil, 0, 0, 0, fmt.Errorf("txn: checkpoint begin: header fsync: %w", err)
	}
	return records, m.hdr.SnapshotStartPage, m.hdr.SnapshotPageCount, m.hdr.ActiveSnapshotGen, nil
}

// FinishBackgroundCheckpoint implements the "Merge" and "Complete" steps:
// under the writer lock, it scans whatever committed while the new snapshot
// was being built, resets both WAL regions, re-emits those records into the
// now-empty primary so they remain durable, replays them into a fresh delta
// (replacing the live overlay, which the new snapshot has otherwise fully
// subsumed), and finally installs the new snapshot pointers in the header.
func (m *Manager) FinishBackgroundCheckpoint(newSnapStart, newSnapCount, newGen uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.walBuf.ScanRegion(m.walBuf.ActiveRegion())
	if err != nil {
		return fmt.Errorf("txn: checkpoint merge: scan pending region: %w", err)
	}
	m.walBuf.ResetAfterCheckpoint()
	for _, rec := range pending {
		if err := m.writeRecordWithSwitch(rec); err != nil {
			return fmt.Errorf("txn: checkpoint merge: re-emit: %w", err)
		}
	}

	replayed, maxTxID, err := Replay(pending)
	if err != nil {
		return fmt.Errorf("txn: checkpoint merge: replay pending: %w", err)
	}
	*m.committed = *replayed
	if maxTxID > m.nextTxID {
		m.nextTxID = maxTxID
	}

	nowNs := int64(0)
	if m.now != nil {
		nowNs = m.now()
	}
	m.hdr.UpdateForCompaction(newSnapStart, newSnapCount, newGen, nowNs)
	m.hdr.WalPrimaryHead, m.hdr.WalSecondaryHead = m.walBuf.Heads()
	if err := m.writeHeaderLocked(); err != nil {
		return fmt.Errorf("txn: checkpoint merge: header fsync: %w", err)
	}
	return nil
}

// AbortBackgroundCheckpoint is the best-effort recovery path for a
// background checkpoint that failed after BeginBackgroundCheckpoint: it
// clears CheckpointInProgress and persists the header so recovery never
// sees a stuck flag. The WAL region switch and any records committed since
// are left exactly as they are — both regions still hold only durable,
// already-committed data, so nothing here is lost; the next checkpoint
// attempt simply compacts a bigger region.
func (m *Manager) AbortBackgroundCheckpoint() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hdr.CheckpointInProgress = false
	return m.writeHeaderLocked()
}

func (m *Manager) writeHeaderLocked() error {
	buf := m.hdr.Serialize()
	if err := m.pgr.WritePage(0, buf); err != nil {
		return err
	}
	return m.pgr.Sync()
}
