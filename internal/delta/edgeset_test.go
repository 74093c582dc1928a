package delta

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raydb/raydb/internal/model"
)

func TestPatchSet_HasAcrossHighDegreeCacheBoundary(t *testing.T) {
	p := &PatchSet{}
	for i := 0; i < highDegreeThreshold+8; i++ {
		p.Add(1, model.NodeID(i))
	}
	require.NotNil(t, p.cache, "cache should have been built past the threshold")
	for i := 0; i < highDegreeThreshold+8; i++ {
		require.True(t, p.Has(1, model.NodeID(i)), "entry %d added past the cache build point must still be visible", i)
	}
}

func TestPatchSet_RemoveAfterCacheBuild(t *testing.T) {
	p := &PatchSet{}
	for i := 0; i < highDegreeThreshold+4; i++ {
		p.Add(1, model.NodeID(i))
	}
	p.Remove(1, model.NodeID(highDegreeThreshold+1))
	require.False(t, p.Has(1, model.NodeID(highDegreeThreshold+1)))
	require.True(t, p.Has(1, model.NodeID(highDegreeThreshold+2)))
}
