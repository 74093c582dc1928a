package raydb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateNode_WithLabelsAndProps(t *testing.T) {
	db, err := OpenMemory(Options{})
	require.NoError(t, err)
	defer db.Close()

	person, err := db.DefineLabel("Person")
	require.NoError(t, err)
	nameKey, err := db.DefinePropkey("name")
	require.NoError(t, err)

	id, err := db.CreateNode(NodeOptions{
		Key:    "alice",
		Labels: []LabelID{person},
		Props:  map[PropKeyID]PropValue{nameKey: Str("Alice")},
	})
	require.NoError(t, err)

	labels, err := db.NodeLabels(id)
	require.NoError(t, err)
	require.ElementsMatch(t, []LabelID{person}, labels)

	v, err := db.NodeProp(id, nameKey)
	require.NoError(t, err)
	require.Equal(t, "Alice", v.Str())

	found, ok, err := db.LookupByKey("alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, id, found)
}

func TestDeleteNode_RemovesExistence(t *testing.T) {
	db, err := OpenMemory(Options{})
	require.NoError(t, err)
	defer db.Close()

	id, err := db.CreateNode(NodeOptions{Key: "alice"})
	require.NoError(t, err)

	require.NoError(t, db.DeleteNode(id))

	ok, err := db.Exists(id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNodeLabels_MergesRemovalOverSnapshot(t *testing.T) {
	db, err := OpenMemory(Options{})
	require.NoError(t, err)
	defer db.Close()

	person, err := db.DefineLabel("Person")
	require.NoError(t, err)
	id, err := db.CreateNode(NodeOptions{Key: "alice", Labels: []LabelID{person}})
	require.NoError(t, err)

	require.NoError(t, db.Vacuum(VacuumOptions{}))

	require.NoError(t, db.RemoveNodeLabel(id, person))

	labels, err := db.NodeLabels(id)
	require.NoError(t, err)
	require.Empty(t, labels)
}

func TestNodeProp_NullWhenUnset(t *testing.T) {
	db, err := OpenMemory(Options{})
	require.NoError(t, err)
	defer db.Close()

	id, err := db.CreateNode(NodeOptions{Key: "alice"})
	require.NoError(t, err)

	v, err := db.NodeProp(id, 1)
	require.NoError(t, err)
	require.Equal(t, Null, v)
}

func TestExists_FalseForNeverCreatedNode(t *testing.T) {
	db, err := OpenMemory(Options{})
	require.NoError(t, err)
	defer db.Close()

	ok, err := db.Exists(12345)
	require.NoError(t, err)
	require.False(t, ok)
}
