package raydb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTx_CommitAppliesOpsToCommittedOverlay(t *testing.T) {
	db, err := OpenMemory(Options{})
	require.NoError(t, err)
	defer db.Close()

	tx, err := db.BeginTx()
	require.NoError(t, err)
	require.NoError(t, tx.CreateNode(1, "alice"))
	require.NoError(t, tx.SetNodeProp(1, 1, Str("Alice")))
	require.NoError(t, tx.Commit())

	ok, err := db.Exists(1)
	require.NoError(t, err)
	require.True(t, ok)

	v, err := db.NodeProp(1, 1)
	require.NoError(t, err)
	require.Equal(t, "Alice", v.Str())
}

func TestTx_RollbackDiscardsOps(t *testing.T) {
	db, err := OpenMemory(Options{})
	require.NoError(t, err)
	defer db.Close()

	tx, err := db.BeginTx()
	require.NoError(t, err)
	require.NoError(t, tx.CreateNode(1, "alice"))
	require.NoError(t, tx.Rollback())

	ok, err := db.Exists(1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBeginTx_BlocksSecondWriterUntilFirstFinishes(t *testing.T) {
	db, err := OpenMemory(Options{})
	require.NoError(t, err)
	defer db.Close()

	tx, err := db.BeginTx()
	require.NoError(t, err)

	_, err = db.TryBeginTx()
	require.ErrorIs(t, err, ErrTransactionActive)

	require.NoError(t, tx.Commit())

	second, err := db.TryBeginTx()
	require.NoError(t, err)
	require.NoError(t, second.Rollback())
}

func TestAutoCommit_SingleShotMethodsCommitImmediately(t *testing.T) {
	db, err := OpenMemory(Options{})
	require.NoError(t, err)
	defer db.Close()

	id, err := db.CreateNode(NodeOptions{Key: "alice"})
	require.NoError(t, err)
	require.NoError(t, db.SetNodeProp(id, 1, I64(42)))

	// A concurrent caller must be able to open its own transaction right
	// after: the auto-committed helper never leaves the slot held.
	tx, err := db.TryBeginTx()
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
}
