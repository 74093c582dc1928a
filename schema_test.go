package raydb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefineLabel_IdempotentAcrossCalls(t *testing.T) {
	db, err := OpenMemory(Options{})
	require.NoError(t, err)
	defer db.Close()

	id1, err := db.DefineLabel("Person")
	require.NoError(t, err)
	id2, err := db.DefineLabel("Person")
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	name, ok := db.LabelName(id1)
	require.True(t, ok)
	require.Equal(t, "Person", name)
}

func TestDefineEtype_AllocatesDistinctIDs(t *testing.T) {
	db, err := OpenMemory(Options{})
	require.NoError(t, err)
	defer db.Close()

	knows, err := db.DefineEtype("KNOWS")
	require.NoError(t, err)
	likes, err := db.DefineEtype("LIKES")
	require.NoError(t, err)
	require.NotEqual(t, knows, likes)

	name, ok := db.EtypeName(likes)
	require.True(t, ok)
	require.Equal(t, "LIKES", name)
}

func TestDefinePropkey_RepeatCallReturnsSameID(t *testing.T) {
	db, err := OpenMemory(Options{})
	require.NoError(t, err)
	defer db.Close()

	id, err := db.DefinePropkey("name")
	require.NoError(t, err)

	again, err := db.DefinePropkey("name")
	require.NoError(t, err)
	require.Equal(t, id, again)
}

func TestLabelName_UnknownIDNotFound(t *testing.T) {
	db, err := OpenMemory(Options{})
	require.NoError(t, err)
	defer db.Close()

	_, ok := db.LabelName(999)
	require.False(t, ok)
}
