package checkpoint

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/raydb/raydb/internal/pager"
	"github.com/raydb/raydb/internal/snapshot"
	"github.com/raydb/raydb/internal/txn"
)

// State is one stage of the background checkpoint state machine (spec.md
// §4.7): idle between runs, running while the new snapshot is built without
// holding the writer lock, merging while pending-since-switch records are
// folded back in and the new header is installed, completing while the old
// snapshot's mapping is released.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateMerging
	StateCompleting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateMerging:
		return "merging"
	case StateCompleting:
		return "completing"
	default:
		return "unknown"
	}
}

// Manager runs background checkpoints and implements txn.Checkpointer, so a
// txn.Manager can apply its own backpressure policy (spec.md §4.6) against
// it without importing this package. Only one checkpoint runs at a time;
// mergeLock guards the state machine, while the Merge step itself runs
// under txn.Manager's writer lock inside FinishBackgroundCheckpoint.
type Manager struct {
	mergeLock sync.Mutex

	pgr            *pager.Pager
	txMgr          *txn.Manager
	includeInEdges bool
	logger         *slog.Logger
	now            func() int64

	state State
	done  chan struct{}
	err   error
}

// NewManager wires a background checkpoint Manager over an already-running
// txn.Manager. nowFn may be nil; includeInEdges controls whether built
// snapshots carry the IN_* CSR sections (spec.md §4.4).
func NewManager(pgr *pager.Pager, txMgr *txn.Manager, includeInEdges bool, logger *slog.Logger, nowFn func() int64) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{pgr: pgr, txMgr: txMgr, includeInEdges: includeInEdges, logger: logger, now: nowFn}
}

// Running reports whether a checkpoint is currently in flight.
func (m *Manager) Running() bool {
	m.mergeLock.Lock()
	defer m.mergeLock.Unlock()
	return m.state != StateIdle
}

// State returns the current stage, mostly for diagnostics/tests.
func (m *Manager) State() State {
	m.mergeLock.Lock()
	defer m.mergeLock.Unlock()
	return m.state
}

// TriggerBackground starts a background checkpoint if one isn't already
// running; it never blocks on the checkpoint itself completing.
func (m *Manager) TriggerBackground() error {
	m.mergeLock.Lock()
	if m.state != StateIdle {
		m.mergeLock.Unlock()
		return nil
	}
	m.state = StateRunning
	done := make(chan struct{})
	m.done = done
	m.mergeLock.Unlock()

	go m.run(done)
	return nil
}

// AwaitRunning blocks until the in-flight checkpoint (if any) completes and
// returns the error it finished with.
func (m *Manager) AwaitRunning() error {
	m.mergeLock.Lock()
	done := m.done
	lastErr := m.err
	m.mergeLock.Unlock()
	if done == nil {
		return lastErr
	}
	<-done
	m.mergeLock.Lock()
	defer m.mergeLock.Unlock()
	return m.err
}

func (m *Manager) run(done chan struct{}) {
	defer close(done)
	err := m.runOnce()

	m.mergeLock.Lock()
	m.state = StateIdle
	m.err = err
	m.mergeLock.Unlock()

	if err != nil {
		m.logger.Error("background checkpoint failed", "error", err)
	}
}

// runOnce is the Switch -> Build -> Write -> Merge -> Complete sequence of
// spec.md §4.7's background mode. Only Switch (inside BeginBackgroundCheckpoint)
// and Merge/Complete (inside FinishBackgroundCheckpoint) hold the writer
// lock; Build/Write run concurrently with ordinary commits into the region
// Switch just freed up.
func (m *Manager) runOnce() error {
	records, snapStart, snapCount, activeGen, err := m.txMgr.BeginBackgroundCheckpoint()
	if err != nil {
		return fmt.Errorf("checkpoint: begin: %w", err)
	}

	snap, err := parseCurrentSnapshot(m.pgr, snapStart, snapCount)
	if err != nil {
		m.abort()
		return err
	}

	frozen, _, err := txn.Replay(records)
	if err != nil {
		m.abort()
		return fmt.Errorf("checkpoint: replay frozen region: %w", err)
	}

	in := CollectGraphData(snap, frozen, m.includeInEdges)
	in.Generation = activeGen + 1
	if m.now != nil {
		in.CreatedUnixNs = uint64(m.now())
	}
	buf, err := snapshot.Build(in)
	if err != nil {
		m.abort()
		return fmt.Errorf("checkpoint: build snapshot: %w", err)
	}

	newStart, numPages, err := writeSnapshot(m.pgr, buf)
	if err != nil {
		m.abort()
		return err
	}

	m.mergeLock.Lock()
	m.state = StateMerging
	m.mergeLock.Unlock()

	if err := m.txMgr.FinishBackgroundCheckpoint(newStart, numPages, in.Generation); err != nil {
		m.abort()
		return fmt.Errorf("checkpoint: finish: %w", err)
	}

	m.mergeLock.Lock()
	m.state = StateCompleting
	m.mergeLock.Unlock()

	m.pgr.InvalidateMMapRange(snapStart, snapCount)
	return nil
}

func (m *Manager) abort() {
	if err := m.txMgr.AbortBackgroundCheckpoint(); err != nil {
		m.logger.Error("background checkpoint abort failed", "error", err)
	}
}
