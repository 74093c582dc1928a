package raydb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raydb/raydb/internal/pager"
	"github.com/raydb/raydb/internal/txn"
)

func TestOptions_WithDefaultsFillsZeroValues(t *testing.T) {
	got := Options{}.withDefaults()
	require.Equal(t, uint32(pager.DefaultPageSize), got.PageSize)
	require.Equal(t, uint64(defaultWALSize), got.WALSize)
	require.Equal(t, txn.DefaultCheckpointThreshold, got.CheckpointThreshold)
	require.NotNil(t, got.Logger)
}

func TestOptions_WithDefaultsPreservesExplicitValues(t *testing.T) {
	got := Options{PageSize: 8192, WALSize: 1 << 20, CheckpointThreshold: 0.5}.withDefaults()
	require.Equal(t, uint32(8192), got.PageSize)
	require.Equal(t, uint64(1<<20), got.WALSize)
	require.Equal(t, 0.5, got.CheckpointThreshold)
}

func TestOptions_FunctionalSetters(t *testing.T) {
	got := Options{}.WithPageSize(16384).WithWALSize(2 << 20).WithAutoCheckpoint(0.6).WithReadOnly().WithCreateIfMissing()
	require.Equal(t, uint32(16384), got.PageSize)
	require.Equal(t, uint64(2<<20), got.WALSize)
	require.True(t, got.AutoCheckpoint)
	require.Equal(t, 0.6, got.CheckpointThreshold)
	require.True(t, got.ReadOnly)
	require.True(t, got.CreateIfMissing)
}
