package txn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raydb/raydb/internal/delta"
	"github.com/raydb/raydb/internal/header"
	"github.com/raydb/raydb/internal/model"
	"github.com/raydb/raydb/internal/pager"
	"github.com/raydb/raydb/internal/wal"
)

func newTestManager(t *testing.T) (*Manager, *pager.Pager) {
	t.Helper()
	pgr, err := pager.OpenMemory(4096)
	require.NoError(t, err)

	primaryStart, err := pgr.AllocatePages(8)
	require.NoError(t, err)
	secondaryStart, err := pgr.AllocatePages(4)
	require.NoError(t, err)

	hdr := header.New(4096)
	hdr.WalStartPage = primaryStart
	hdr.WalPageCount = 8

	walBuf := wal.NewBuffer(pgr, primaryStart, 8, secondaryStart, 4, header.RegionPrimary, 0, 0)
	committed := delta.New()

	mgr := NewManager(pgr, hdr, walBuf, committed, false, false, 0, nil, nil, func() int64 { return 1 })
	return mgr, pgr
}

func TestBeginCommit_SimpleNodeAndEdge(t *testing.T) {
	mgr, _ := newTestManager(t)

	tx, err := mgr.BeginTx()
	require.NoError(t, err)

	require.NoError(t, tx.DefineLabel(1, "Person"))
	require.NoError(t, tx.CreateNode(100, "alice"))
	require.NoError(t, tx.AddNodeLabel(100, 1))
	require.NoError(t, tx.CreateNode(101, "bob"))
	require.NoError(t, tx.AddEdge(model.Edge{Src: 100, EType: 1, Dst: 101}))
	require.NoError(t, tx.SetNodeProp(100, 5, model.Str("Alice")))

	require.NoError(t, tx.Commit())

	// Committed delta reflects every op.
	d := mgr.Committed()
	require.True(t, d.IsCreated(100))
	require.True(t, d.IsCreated(101))
	require.True(t, d.OutAdd[100].Has(1, 101))
	require.Equal(t, "Person", d.NewLabels[1])

	// A second Begin after Commit must succeed (slot was freed).
	tx2, err := mgr.BeginTx()
	require.NoError(t, err)
	require.NoError(t, tx2.Rollback())
}

func TestSingleWriterEnforced(t *testing.T) {
	mgr, _ := newTestManager(t)

	tx, err := mgr.BeginTx()
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = mgr.TryBeginTx()
	require.ErrorIs(t, err, ErrTransactionActive)
}

func TestRollbackDiscardsOps(t *testing.T) {
	mgr, _ := newTestManager(t)

	tx, err := mgr.BeginTx()
	require.NoError(t, err)
	require.NoError(t, tx.CreateNode(1, "x"))
	require.NoError(t, tx.Rollback())

	require.False(t, mgr.Committed().IsCreated(1))

	// The slot is free again.
	tx2, err := mgr.BeginTx()
	require.NoError(t, err)
	require.NoError(t, tx2.Rollback())
}

func TestReadOnlyRejectsBegin(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.readOnly = true
	_, err := mgr.BeginTx()
	require.ErrorIs(t, err, ErrReadOnly)
}

// TestCancellationSurvivesInWAL reproduces spec.md §8.4 scenario 3: within
// one transaction, ADD_EDGE then DELETE_EDGE of the same edge nets to no
// change in the delta, but both ops must still appear verbatim in the WAL.
func TestCancellationSurvivesInWAL(t *testing.T) {
	mgr, _ := newTestManager(t)

	tx, err := mgr.BeginTx()
	require.NoError(t, err)
	e := model.Edge{Src: 1, EType: 1, Dst: 2}
	require.NoError(t, tx.CreateNode(1, ""))
	require.NoError(t, tx.CreateNode(2, ""))
	require.NoError(t, tx.AddEdge(e))
	require.NoError(t, tx.DeleteEdge(e))
	require.NoError(t, tx.Commit())

	// The committed delta shows no net edge.
	require.False(t, mgr.Committed().HasEdge(e, false))

	// But the WAL itself still has both records, decodable back to Ops.
	records, err := mgr.walBuf.ScanRegion(header.RegionPrimary)
	require.NoError(t, err)

	var edgeOps []Op
	for _, rec := range records {
		if rec.Type == wal.RecEdgeOp {
			op, err := FromRecord(rec)
			require.NoError(t, err)
			edgeOps = append(edgeOps, op)
		}
	}
	require.Len(t, edgeOps, 2)
	require.Equal(t, OpAddEdge, edgeOps[0].Kind)
	require.Equal(t, OpDeleteEdge, edgeOps[1].Kind)
}

func TestReplayFromWAL(t *testing.T) {
	mgr, _ := newTestManager(t)

	tx, err := mgr.BeginTx()
	require.NoError(t, err)
	require.NoError(t, tx.DefineLabel(1, "Person"))
	require.NoError(t, tx.CreateNode(1, "alice"))
	require.NoError(t, tx.CreateNode(2, "bob"))
	require.NoError(t, tx.AddEdge(model.Edge{Src: 1, EType: 1, Dst: 2}))
	require.NoError(t, tx.Commit())

	records, err := mgr.walBuf.ScanRegion(header.RegionPrimary)
	require.NoError(t, err)

	replayed, maxTxID, err := Replay(records)
	require.NoError(t, err)
	require.Equal(t, tx.id, maxTxID)
	require.True(t, replayed.IsCreated(1))
	require.True(t, replayed.IsCreated(2))
	require.True(t, replayed.OutAdd[1].Has(1, 2))
	require.Equal(t, "Person", replayed.NewLabels[1])
}
