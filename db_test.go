package raydb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenMemory_UsableImmediately(t *testing.T) {
	db, err := OpenMemory(Options{})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.CreateNode(NodeOptions{Key: "alice"})
	require.NoError(t, err)
}

func TestOpen_CreateIfMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.raydb")

	_, err := Open(path, Options{})
	require.ErrorIs(t, err, ErrNotFound)

	db, err := Open(path, Options{CreateIfMissing: true})
	require.NoError(t, err)
	id, err := db.CreateNode(NodeOptions{Key: "alice"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := Open(path, Options{})
	require.NoError(t, err)
	defer reopened.Close()

	ok, err := reopened.Exists(id)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestOpen_RecoversUncheckpointedCommits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.raydb")

	db, err := Open(path, Options{CreateIfMissing: true})
	require.NoError(t, err)
	alice, err := db.CreateNode(NodeOptions{Key: "alice"})
	require.NoError(t, err)
	bob, err := db.CreateNode(NodeOptions{Key: "bob"})
	require.NoError(t, err)
	require.NoError(t, db.AddEdge(Edge{Src: alice, EType: 1, Dst: bob}))
	require.NoError(t, db.Close())

	reopened, err := Open(path, Options{})
	require.NoError(t, err)
	defer reopened.Close()

	has, err := reopened.HasEdge(Edge{Src: alice, EType: 1, Dst: bob})
	require.NoError(t, err)
	require.True(t, has)
}

func TestValidatePath_RejectsTraversalAndControlBytes(t *testing.T) {
	_, err := Open("../escape.raydb", Options{CreateIfMissing: true})
	require.ErrorIs(t, err, ErrInvalidPath)

	_, err = Open("bad\x00path", Options{CreateIfMissing: true})
	require.ErrorIs(t, err, ErrInvalidPath)

	_, err = Open("", Options{CreateIfMissing: true})
	require.ErrorIs(t, err, ErrInvalidPath)
}

func TestClose_Idempotent(t *testing.T) {
	db, err := OpenMemory(Options{})
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())
}
