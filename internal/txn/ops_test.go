package txn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raydb/raydb/internal/model"
)

func TestOpRoundTrip_Catalog(t *testing.T) {
	op := Op{Kind: OpDefineLabel, Label: 7, Name: "Person"}
	rec := ToRecord(1, op)
	got, err := FromRecord(rec)
	require.NoError(t, err)
	require.Equal(t, op.Label, got.Label)
	require.Equal(t, op.Name, got.Name)
}

func TestOpRoundTrip_CreateDeleteNode(t *testing.T) {
	create := Op{Kind: OpCreateNode, Node: 42, Key: "user:42"}
	rec := ToRecord(1, create)
	got, err := FromRecord(rec)
	require.NoError(t, err)
	require.Equal(t, create.Node, got.Node)
	require.Equal(t, create.Key, got.Key)

	del := Op{Kind: OpDeleteNode, Node: 42}
	rec = ToRecord(1, del)
	got, err = FromRecord(rec)
	require.NoError(t, err)
	require.Equal(t, del.Node, got.Node)
}

func TestOpRoundTrip_NodeLabel(t *testing.T) {
	for _, kind := range []OpKind{OpAddNodeLabel, OpRemoveNodeLabel} {
		op := Op{Kind: kind, Node: 5, Label: 3}
		rec := ToRecord(1, op)
		got, err := FromRecord(rec)
		require.NoError(t, err)
		require.Equal(t, op.Node, got.Node)
		require.Equal(t, op.Label, got.Label)
	}
}

func TestOpRoundTrip_Edge(t *testing.T) {
	e := model.Edge{Src: 1, EType: 2, Dst: 3}
	for _, kind := range []OpKind{OpAddEdge, OpDeleteEdge} {
		op := Op{Kind: kind, Edge: e}
		rec := ToRecord(9, op)
		require.Equal(t, uint64(9), rec.TxID)
		got, err := FromRecord(rec)
		require.NoError(t, err)
		require.Equal(t, e, got.Edge)
	}
}

func TestOpRoundTrip_NodeProp(t *testing.T) {
	cases := []model.PropValue{
		model.Null,
		model.Bool(true),
		model.I64(-7),
		model.F64(3.5),
		model.Str("hello graph"),
		model.Vector([]float32{1, 2, 3.5}),
	}
	for _, v := range cases {
		op := Op{Kind: OpSetNodeProp, Node: 10, Pkey: 4, Value: v}
		rec := ToRecord(1, op)
		got, err := FromRecord(rec)
		require.NoError(t, err)
		require.True(t, v.Equal(got.Value), "value round-trip for tag %s", v.Tag)
		require.Equal(t, op.Node, got.Node)
		require.Equal(t, op.Pkey, got.Pkey)
	}

	delOp := Op{Kind: OpDelNodeProp, Node: 10, Pkey: 4}
	rec := ToRecord(1, delOp)
	got, err := FromRecord(rec)
	require.NoError(t, err)
	require.Equal(t, delOp.Node, got.Node)
	require.Equal(t, delOp.Pkey, got.Pkey)
}

func TestOpRoundTrip_EdgeProp(t *testing.T) {
	e := model.Edge{Src: 1, EType: 2, Dst: 3}
	op := Op{Kind: OpSetEdgeProp, Edge: e, Pkey: 9, Value: model.Str("weight")}
	rec := ToRecord(1, op)
	got, err := FromRecord(rec)
	require.NoError(t, err)
	require.Equal(t, e, got.Edge)
	require.True(t, op.Value.Equal(got.Value))

	delOp := Op{Kind: OpDelEdgeProp, Edge: e, Pkey: 9}
	rec = ToRecord(1, delOp)
	got, err = FromRecord(rec)
	require.NoError(t, err)
	require.Equal(t, e, got.Edge)
}

func TestFromRecord_FamilyMismatch(t *testing.T) {
	rec := ToRecord(1, Op{Kind: OpAddEdge, Edge: model.Edge{Src: 1, EType: 1, Dst: 2}})
	rec.Type = 99 // corrupt the family tag
	_, err := FromRecord(rec)
	require.Error(t, err)
}
