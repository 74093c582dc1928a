package txn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raydb/raydb/internal/delta"
	"github.com/raydb/raydb/internal/model"
)

func TestApply_CreateAndLinkNodes(t *testing.T) {
	d := delta.New()
	ops := []Op{
		{Kind: OpDefinePropkey, Pkey: 1, Name: "name"},
		{Kind: OpCreateNode, Node: 1, Key: "a"},
		{Kind: OpCreateNode, Node: 2, Key: "b"},
		{Kind: OpSetNodeProp, Node: 1, Pkey: 1, Value: model.Str("A")},
		{Kind: OpAddEdge, Edge: model.Edge{Src: 1, EType: 1, Dst: 2}},
	}
	require.NoError(t, Apply(d, ops))

	require.True(t, d.IsCreated(1))
	require.True(t, d.IsCreated(2))
	require.True(t, d.OutAdd[1].Has(1, 2))
	require.Equal(t, "name", d.NewPropkeys[1])

	n1, ok := d.LookupByKey("a")
	require.True(t, ok)
	require.Equal(t, model.NodeID(1), n1)
}

func TestApply_DeleteNodeRemovesPendingEdges(t *testing.T) {
	d := delta.New()
	ops := []Op{
		{Kind: OpCreateNode, Node: 1, Key: ""},
		{Kind: OpCreateNode, Node: 2, Key: ""},
		{Kind: OpAddEdge, Edge: model.Edge{Src: 1, EType: 1, Dst: 2}},
		{Kind: OpDeleteNode, Node: 1},
	}
	require.NoError(t, Apply(d, ops))
	require.False(t, d.IsCreated(1))
	require.Equal(t, 0, d.OutAdd[1].Len())
}

func TestApply_UnknownOpKind(t *testing.T) {
	d := delta.New()
	err := Apply(d, []Op{{Kind: OpKind(255)}})
	require.Error(t, err)
}
