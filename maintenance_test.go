package raydb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStats_ReflectsPendingOverlayBeforeVacuum(t *testing.T) {
	db, err := OpenMemory(Options{})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.CreateNode(NodeOptions{Key: "alice"})
	require.NoError(t, err)
	_, err = db.CreateNode(NodeOptions{Key: "bob"})
	require.NoError(t, err)

	stats, err := db.Stats()
	require.NoError(t, err)
	require.Equal(t, 2, stats.DeltaNodesCreated)
	require.Equal(t, 0, stats.SnapshotNodes)
	require.False(t, stats.CheckpointInProgress)
}

func TestVacuum_FoldsOverlayIntoANewSnapshotGeneration(t *testing.T) {
	db, err := OpenMemory(Options{})
	require.NoError(t, err)
	defer db.Close()

	alice, err := db.CreateNode(NodeOptions{Key: "alice"})
	require.NoError(t, err)

	before, err := db.Stats()
	require.NoError(t, err)

	require.NoError(t, db.Vacuum(VacuumOptions{}))

	after, err := db.Stats()
	require.NoError(t, err)
	require.Greater(t, after.SnapshotGen, before.SnapshotGen)
	require.Equal(t, 1, after.SnapshotNodes)
	require.Equal(t, 0, after.DeltaNodesCreated)

	ok, err := db.Exists(alice)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCheck_HealthySnapshotReportsNoFailures(t *testing.T) {
	db, err := OpenMemory(Options{IncludeInEdges: true})
	require.NoError(t, err)
	defer db.Close()

	knows, err := db.DefineEtype("KNOWS")
	require.NoError(t, err)
	alice, err := db.CreateNode(NodeOptions{Key: "alice"})
	require.NoError(t, err)
	bob, err := db.CreateNode(NodeOptions{Key: "bob"})
	require.NoError(t, err)
	require.NoError(t, db.AddEdge(Edge{Src: alice, EType: knows, Dst: bob}))

	require.NoError(t, db.Vacuum(VacuumOptions{}))

	report, err := db.Check()
	require.NoError(t, err)
	require.True(t, report.OK())
	require.Equal(t, 2, report.NodesChecked)
	require.Equal(t, 1, report.EdgesChecked)
}

func TestCheck_EmptyDatabaseHasNothingToVerify(t *testing.T) {
	db, err := OpenMemory(Options{})
	require.NoError(t, err)
	defer db.Close()

	report, err := db.Check()
	require.NoError(t, err)
	require.True(t, report.OK())
	require.Equal(t, 0, report.NodesChecked)
}
