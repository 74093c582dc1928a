package raydb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func setupTwoNodes(t *testing.T, db *DB) (NodeID, NodeID, ETypeID) {
	t.Helper()
	knows, err := db.DefineEtype("KNOWS")
	require.NoError(t, err)
	alice, err := db.CreateNode(NodeOptions{Key: "alice"})
	require.NoError(t, err)
	bob, err := db.CreateNode(NodeOptions{Key: "bob"})
	require.NoError(t, err)
	return alice, bob, knows
}

func TestAddEdge_VisibleThroughHasEdgeAndNeighbors(t *testing.T) {
	db, err := OpenMemory(Options{IncludeInEdges: true})
	require.NoError(t, err)
	defer db.Close()

	alice, bob, knows := setupTwoNodes(t, db)
	require.NoError(t, db.AddEdge(Edge{Src: alice, EType: knows, Dst: bob}))

	has, err := db.HasEdge(Edge{Src: alice, EType: knows, Dst: bob})
	require.NoError(t, err)
	require.True(t, has)

	out, err := db.OutNeighbors(alice, nil)
	require.NoError(t, err)
	require.Equal(t, []Edge{{Src: alice, EType: knows, Dst: bob}}, out)

	in, err := db.InNeighbors(bob, nil)
	require.NoError(t, err)
	require.Equal(t, []Edge{{Src: alice, EType: knows, Dst: bob}}, in)
}

func TestDeleteEdge_CancelsAPendingAdd(t *testing.T) {
	db, err := OpenMemory(Options{})
	require.NoError(t, err)
	defer db.Close()

	alice, bob, knows := setupTwoNodes(t, db)
	e := Edge{Src: alice, EType: knows, Dst: bob}

	require.NoError(t, db.AddEdge(e))
	require.NoError(t, db.DeleteEdge(e))

	has, err := db.HasEdge(e)
	require.NoError(t, err)
	require.False(t, has)
}

func TestEdgeProp_MergesOverlayOverSnapshot(t *testing.T) {
	db, err := OpenMemory(Options{})
	require.NoError(t, err)
	defer db.Close()

	alice, bob, knows := setupTwoNodes(t, db)
	e := Edge{Src: alice, EType: knows, Dst: bob}
	since, err := db.DefinePropkey("since")
	require.NoError(t, err)

	require.NoError(t, db.AddEdge(e))
	require.NoError(t, db.SetEdgeProp(e, since, I64(2020)))

	require.NoError(t, db.Vacuum(VacuumOptions{}))

	require.NoError(t, db.SetEdgeProp(e, since, I64(2021)))
	v, err := db.EdgeProp(e, since)
	require.NoError(t, err)
	require.Equal(t, int64(2021), v.I64())
}

func TestDeleteNode_HidesItsOwnEdgesFromIterators(t *testing.T) {
	db, err := OpenMemory(Options{IncludeInEdges: true})
	require.NoError(t, err)
	defer db.Close()

	alice, bob, knows := setupTwoNodes(t, db)
	e := Edge{Src: alice, EType: knows, Dst: bob}
	since, err := db.DefinePropkey("since")
	require.NoError(t, err)
	require.NoError(t, db.AddEdge(e))
	require.NoError(t, db.SetEdgeProp(e, since, I64(2020)))

	require.NoError(t, db.DeleteNode(alice))

	out, err := db.OutNeighbors(alice, nil)
	require.NoError(t, err)
	require.Empty(t, out, "a deleted node's own out-edges must not be returned")

	in, err := db.InNeighbors(bob, nil)
	require.NoError(t, err)
	require.Empty(t, in, "an edge from a deleted node must not appear in its peer's in-edges")

	v, err := db.EdgeProp(e, since)
	require.NoError(t, err)
	require.Equal(t, Null, v)
}

func TestOutNeighbors_FilteredByEtype(t *testing.T) {
	db, err := OpenMemory(Options{})
	require.NoError(t, err)
	defer db.Close()

	alice, bob, knows := setupTwoNodes(t, db)
	likes, err := db.DefineEtype("LIKES")
	require.NoError(t, err)

	require.NoError(t, db.AddEdge(Edge{Src: alice, EType: knows, Dst: bob}))
	require.NoError(t, db.AddEdge(Edge{Src: alice, EType: likes, Dst: bob}))

	out, err := db.OutNeighbors(alice, &knows)
	require.NoError(t, err)
	require.Equal(t, []Edge{{Src: alice, EType: knows, Dst: bob}}, out)
}
