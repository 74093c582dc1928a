package delta

import (
	"sort"

	"github.com/raydb/raydb/internal/model"
)

// EdgePatch is one pending edge-side change: "other" is the opposite
// endpoint of the edge from the node this patch set belongs to.
type EdgePatch struct {
	EType model.ETypeID
	Other model.NodeID
}

func less(a, b EdgePatch) bool {
	if a.EType != b.EType {
		return a.EType < b.EType
	}
	return a.Other < b.Other
}

// highDegreeThreshold is the point past which a patch set also maintains
// a hash-cache so has() is O(1) instead of O(log k) + O(k) scans on
// high-degree hubs (spec.md §4.8).
const highDegreeThreshold = 32

// edgeKey packs (etype,other) for the hash-cache, per spec.md §4.8.
func edgeKey(etype model.ETypeID, other model.NodeID) uint64 {
	return uint64(etype)<<53 | uint64(other)
}

// PatchSet is a sorted vector of EdgePatch for one node and one direction
// (outAdd, outDel, inAdd, or inDel). Sorted by (etype,other); insertion is
// binary-search + splice.
type PatchSet struct {
	items []EdgePatch
	cache map[uint64]struct{} // non-nil only once len(items) > highDegreeThreshold
}

// Len reports the number of pending patches.
func (p *PatchSet) Len() int {
	if p == nil {
		return 0
	}
	return len(p.items)
}

// Has reports whether (etype,other) is present.
func (p *PatchSet) Has(etype model.ETypeID, other model.NodeID) bool {
	if p == nil {
		return false
	}
	if p.cache != nil {
		_, ok := p.cache[edgeKey(etype, other)]
		return ok
	}
	return p.search(etype, other) < len(p.items) && p.items[p.search(etype, other)] == (EdgePatch{etype, other})
}

func (p *PatchSet) search(etype model.ETypeID, other model.NodeID) int {
	target := EdgePatch{etype, other}
	return sort.Search(len(p.items), func(i int) bool { return !less(p.items[i], target) })
}

// Add inserts (etype,other), a no-op if already present.
func (p *PatchSet) Add(etype model.ETypeID, other model.NodeID) {
	target := EdgePatch{etype, other}
	i := p.search(etype, other)
	if i < len(p.items) && p.items[i] == target {
		return
	}
	p.items = append(p.items, EdgePatch{})
	copy(p.items[i+1:], p.items[i:])
	p.items[i] = target
	if p.cache != nil {
		p.cache[edgeKey(etype, other)] = struct{}{}
	}
	p.maybeBuildCache()
}

// Remove deletes (etype,other) if present.
func (p *PatchSet) Remove(etype model.ETypeID, other model.NodeID) {
	i := p.search(etype, other)
	target := EdgePatch{etype, other}
	if i >= len(p.items) || p.items[i] != target {
		return
	}
	p.items = append(p.items[:i], p.items[i+1:]...)
	if p.cache != nil {
		delete(p.cache, edgeKey(etype, other))
	}
}

func (p *PatchSet) maybeBuildCache() {
	if p.cache != nil || len(p.items) <= highDegreeThreshold {
		return
	}
	p.cache = make(map[uint64]struct{}, len(p.items))
	for _, e := range p.items {
		p.cache[edgeKey(e.EType, e.Other)] = struct{}{}
	}
}

// All returns the patch set contents in sorted order; the caller must not
// mutate the returned slice.
func (p *PatchSet) All() []EdgePatch {
	if p == nil {
		return nil
	}
	return p.items
}

// Filter returns the subset matching etype, or every entry if etype is nil.
func (p *PatchSet) Filter(etype *model.ETypeID) []EdgePatch {
	all := p.All()
	if etype == nil {
		return all
	}
	lo := sort.Search(len(all), func(i int) bool { return all[i].EType >= *etype })
	hi := sort.Search(len(all), func(i int) bool { return all[i].EType > *etype })
	return all[lo:hi]
}
