package keyiter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raydb/raydb/internal/delta"
	"github.com/raydb/raydb/internal/model"
	"github.com/raydb/raydb/internal/snapshot"
)

func buildTestSnapshot(t *testing.T) *snapshot.Snapshot {
	t.Helper()
	buf, err := snapshot.Build(snapshot.BuildInput{
		Generation: 1,
		Nodes: []snapshot.NodeInput{
			{ID: 1, Key: "alice"},
			{ID: 2, Key: "bob"},
			{ID: 3, Key: "carol"},
		},
		Edges: []snapshot.EdgeInput{
			{Src: 1, EType: 1, Dst: 2},
			{Src: 1, EType: 1, Dst: 3},
			{Src: 2, EType: 2, Dst: 3},
		},
		IncludeInEdges: true,
	})
	require.NoError(t, err)
	snap, err := snapshot.Parse(buf, false)
	require.NoError(t, err)
	return snap
}

func TestLookup_SnapshotOnly(t *testing.T) {
	snap := buildTestSnapshot(t)
	d := delta.New()

	id, ok := Lookup(snap, d, "bob")
	require.True(t, ok)
	require.Equal(t, model.NodeID(2), id)

	_, ok = Lookup(snap, d, "nobody")
	require.False(t, ok)
}

func TestLookup_DeltaTakesPrecedence(t *testing.T) {
	snap := buildTestSnapshot(t)
	d := delta.New()
	d.CreateNode(4, "dave", nil)
	d.DeleteNode(2)

	id, ok := Lookup(snap, d, "dave")
	require.True(t, ok)
	require.Equal(t, model.NodeID(4), id)

	_, ok = Lookup(snap, d, "bob")
	require.False(t, ok, "bob's node was deleted in the overlay")
}

func TestOutNeighbors_MergesSnapshotAndDelta(t *testing.T) {
	snap := buildTestSnapshot(t)
	d := delta.New()
	d.DeleteEdge(model.Edge{Src: 1, EType: 1, Dst: 2})
	d.CreateNode(4, "dave", nil)
	d.AddEdge(model.Edge{Src: 1, EType: 1, Dst: 4})

	out := OutNeighbors(snap, d, 1, nil)
	want := map[model.NodeID]bool{3: true, 4: true}
	require.Len(t, out, 2)
	for _, e := range out {
		require.True(t, want[e.Dst])
		delete(want, e.Dst)
	}
	require.Empty(t, want)
}

func TestOutNeighbors_DeletedEndpointDropped(t *testing.T) {
	snap := buildTestSnapshot(t)
	d := delta.New()
	d.DeleteNode(3)

	out := OutNeighbors(snap, d, 1, nil)
	require.Len(t, out, 1)
	require.Equal(t, model.NodeID(2), out[0].Dst)
}

func TestOutNeighbors_QueriedNodeItselfDeleted(t *testing.T) {
	snap := buildTestSnapshot(t)
	d := delta.New()
	d.DeleteNode(1)

	require.Empty(t, OutNeighbors(snap, d, 1, nil), "deleted node's own out-edges must not surface")
}

func TestInNeighbors_QueriedNodeItselfDeleted(t *testing.T) {
	snap := buildTestSnapshot(t)
	d := delta.New()
	d.DeleteNode(3)

	require.Empty(t, InNeighbors(snap, d, 3, nil), "deleted node's own in-edges must not surface")
}

func TestOutNeighbors_EtypeFilter(t *testing.T) {
	snap := buildTestSnapshot(t)
	d := delta.New()

	et := model.ETypeID(1)
	out := OutNeighbors(snap, d, 1, &et)
	require.Len(t, out, 2)
	for _, e := range out {
		require.Equal(t, et, e.EType)
	}
}

func TestInNeighbors_MergesSnapshotAndDelta(t *testing.T) {
	snap := buildTestSnapshot(t)
	d := delta.New()
	d.DeleteEdge(model.Edge{Src: 2, EType: 2, Dst: 3})

	in := InNeighbors(snap, d, 3, nil)
	require.Len(t, in, 1)
	require.Equal(t, model.NodeID(1), in[0].Src)
}

func TestOutNeighbors_PurelyDeltaNode(t *testing.T) {
	snap := buildTestSnapshot(t)
	d := delta.New()
	d.CreateNode(5, "erin", nil)
	d.CreateNode(6, "frank", nil)
	d.AddEdge(model.Edge{Src: 5, EType: 1, Dst: 6})

	out := OutNeighbors(snap, d, 5, nil)
	require.Len(t, out, 1)
	require.Equal(t, model.NodeID(6), out[0].Dst)
}

func TestHasEdge(t *testing.T) {
	snap := buildTestSnapshot(t)
	d := delta.New()

	require.True(t, HasEdge(snap, d, model.Edge{Src: 1, EType: 1, Dst: 2}))
	require.False(t, HasEdge(snap, d, model.Edge{Src: 1, EType: 1, Dst: 5}))

	d.DeleteEdge(model.Edge{Src: 1, EType: 1, Dst: 2})
	require.False(t, HasEdge(snap, d, model.Edge{Src: 1, EType: 1, Dst: 2}))

	d.AddEdge(model.Edge{Src: 2, EType: 1, Dst: 1})
	require.True(t, HasEdge(snap, d, model.Edge{Src: 2, EType: 1, Dst: 1}))
}
