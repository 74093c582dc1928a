// Package delta implements the in-memory overlay that represents
// committed-but-not-yet-checkpointed changes on top of the last snapshot
// (spec.md §4.5): created/deleted/modified nodes, edge patch sets with
// add/delete cancellation, property edits, new catalog entries, and the
// pending key index.
package delta

import (
	"github.com/raydb/raydb/internal/model"
)

// NodeDelta is the pending state for one node: its key (if set when
// created, or changed), label membership, and property edits. A nil
// PropValue pointer in Props denotes a pending deletion of that key; a
// pointer to an explicit model.Null tagged value denotes "set to NULL";
// see SetNodeProp/DelNodeProp.
type NodeDelta struct {
	Key    *string // nil = unchanged/none
	Labels map[model.LabelID]bool // true = added, false = removed
	Props  map[model.PropKeyID]*model.PropValue // nil value = deleted
}

func newNodeDelta() *NodeDelta {
	return &NodeDelta{
		Labels: make(map[model.LabelID]bool),
		Props:  make(map[model.PropKeyID]*model.PropValue),
	}
}

// Delta is the full overlay owned by the database handle.
type Delta struct {
	CreatedNodes  map[model.NodeID]*NodeDelta
	DeletedNodes  map[model.NodeID]struct{}
	ModifiedNodes map[model.NodeID]*NodeDelta

	OutAdd map[model.NodeID]*PatchSet
	OutDel map[model.NodeID]*PatchSet
	InAdd  map[model.NodeID]*PatchSet
	InDel  map[model.NodeID]*PatchSet

	// IncomingEdgeSources accelerates node-delete cleanup: dst -> set of
	// src nodes with at least one pending out-edge patch targeting dst.
	IncomingEdgeSources map[model.NodeID]map[model.NodeID]struct{}

	// EdgeProps keys by the logical edge triple; a nil value denotes
	// property deletion, as with NodeDelta.Props.
	EdgeProps map[model.Edge]map[model.PropKeyID]*model.PropValue

	NewLabels   map[model.LabelID]string
	NewEtypes   map[model.ETypeID]string
	NewPropkeys map[model.PropKeyID]string

	KeyIndex        map[string]model.NodeID
	KeyIndexDeleted map[string]struct{}
}

// New returns an empty overlay.
func New() *Delta {
	return &Delta{
		CreatedNodes:        make(map[model.NodeID]*NodeDelta),
		DeletedNodes:        make(map[model.NodeID]struct{}),
		ModifiedNodes:       make(map[model.NodeID]*NodeDelta),
		OutAdd:              make(map[model.NodeID]*PatchSet),
		OutDel:              make(map[model.NodeID]*PatchSet),
		InAdd:               make(map[model.NodeID]*PatchSet),
		InDel:               make(map[model.NodeID]*PatchSet),
		IncomingEdgeSources: make(map[model.NodeID]map[model.NodeID]struct{}),
		EdgeProps:           make(map[model.Edge]map[model.PropKeyID]*model.PropValue),
		NewLabels:           make(map[model.LabelID]string),
		NewEtypes:           make(map[model.ETypeID]string),
		NewPropkeys:         make(map[model.PropKeyID]string),
		KeyIndex:            make(map[string]model.NodeID),
		KeyIndexDeleted:     make(map[string]struct{}),
	}
}

// IsDeleted reports whether n has a pending or applied deletion.
func (d *Delta) IsDeleted(n model.NodeID) bool {
	_, ok := d.DeletedNodes[n]
	return ok
}

// IsCreated reports whether n was created in this overlay (not yet
// checkpointed into the snapshot).
func (d *Delta) IsCreated(n model.NodeID) bool {
	_, ok := d.CreatedNodes[n]
	return ok
}

func (d *Delta) outAdd(n model.NodeID) *PatchSet {
	p, ok := d.OutAdd[n]
	if !ok {
		p = &PatchSet{}
		d.OutAdd[n] = p
	}
	return p
}
func (d *Delta) outDel(n model.NodeID) *PatchSet {
	p, ok := d.OutDel[n]
	if !ok {
		p = &PatchSet{}
		d.OutDel[n] = p
	}
	return p
}
func (d *Delta) inAdd(n model.NodeID) *PatchSet {
	p, ok := d.InAdd[n]
	if !ok {
		p = &PatchSet{}
		d.InAdd[n] = p
	}
	return p
}
func (d *Delta) inDel(n model.NodeID) *PatchSet {
	p, ok := d.InDel[n]
	if !ok {
		p = &PatchSet{}
		d.InDel[n] = p
	}
	return p
}

// AddEdge applies the cancellation rule from spec.md §4.5: if the edge is
// pending deletion, the deletion is canceled instead of re-adding it;
// otherwise it's added. Symmetric on both the src's out-side and the
// dst's in-side.
func (d *Delta) AddEdge(e model.Edge) {
	if d.OutDel[e.Src].Has(e.EType, e.Dst) {
		d.outDel(e.Src).Remove(e.EType, e.Dst)
	} else {
		d.outAdd(e.Src).Add(e.EType, e.Dst)
	}
	if d.InDel[e.Dst].Has(e.EType, e.Src) {
		d.inDel(e.Dst).Remove(e.EType, e.Src)
	} else {
		d.inAdd(e.Dst).Add(e.EType, e.Src)
	}
	d.trackIncoming(e.Src, e.Dst)
}

// DeleteEdge applies the symmetric cancellation rule: if pending addition,
// cancel it; otherwise record the deletion.
func (d *Delta) DeleteEdge(e model.Edge) {
	if d.OutAdd[e.Src].Has(e.EType, e.Dst) {
		d.outAdd(e.Src).Remove(e.EType, e.Dst)
	} else {
		d.outDel(e.Src).Add(e.EType, e.Dst)
	}
	if d.InAdd[e.Dst].Has(e.EType, e.Src) {
		d.inAdd(e.Dst).Remove(e.EType, e.Src)
	} else {
		d.inDel(e.Dst).Add(e.EType, e.Src)
	}
}

func (d *Delta) trackIncoming(src, dst model.NodeID) {
	set, ok := d.IncomingEdgeSources[dst]
	if !ok {
		set = make(map[model.NodeID]struct{})
		d.IncomingEdgeSources[dst] = set
	}
	set[src] = struct{}{}
}

// DeleteNode implements spec.md §4.5's deleteNode: if n was created in
// this overlay, erase it and its pending edges outright (using the
// reverse index for O(k) incoming-edge cleanup); otherwise mark it
// deleted and purge any modifiedNodes entry.
func (d *Delta) DeleteNode(n model.NodeID) {
	if d.IsCreated(n) {
		if key := d.CreatedNodes[n].Key; key != nil && d.KeyIndex[*key] == n {
			delete(d.KeyIndex, *key)
		}
		for _, p := range d.OutAdd[n].All() {
			if set := d.InAdd[p.Other]; set != nil {
				set.Remove(p.EType, n)
			}
			delete(d.EdgeProps, model.Edge{Src: n, EType: p.EType, Dst: p.Other})
		}
		delete(d.CreatedNodes, n)
		delete(d.OutAdd, n)
		delete(d.OutDel, n)
		delete(d.InAdd, n)
		delete(d.InDel, n)
		for src := range d.IncomingEdgeSources[n] {
			if set := d.OutAdd[src]; set != nil {
				pending := append([]EdgePatch(nil), set.All()...)
				for _, p := range pending {
					if p.Other == n {
						set.Remove(p.EType, n)
						delete(d.EdgeProps, model.Edge{Src: src, EType: p.EType, Dst: n})
					}
				}
			}
		}
		delete(d.IncomingEdgeSources, n)
		return
	}
	d.DeletedNodes[n] = struct{}{}
	delete(d.ModifiedNodes, n)
}

// CreateNode registers a newly created node with optional key/labels.
func (d *Delta) CreateNode(n model.NodeID, key string, labels []model.LabelID) {
	nd := newNodeDelta()
	if key != "" {
		k := key
		nd.Key = &k
		d.KeyIndex[key] = n
		delete(d.KeyIndexDeleted, key)
	}
	for _, l := range labels {
		nd.Labels[l] = true
	}
	d.CreatedNodes[n] = nd
}

func (d *Delta) modified(n model.NodeID) *NodeDelta {
	if nd, ok := d.CreatedNodes[n]; ok {
		return nd
	}
	nd, ok := d.ModifiedNodes[n]
	if !ok {
		nd = newNodeDelta()
		d.ModifiedNodes[n] = nd
	}
	return nd
}

// SetNodeProp records a node property set, distinguishing it from deletion
// via a non-nil PropValue pointer.
func (d *Delta) SetNodeProp(n model.NodeID, key model.PropKeyID, v model.PropValue) {
	nd := d.modified(n)
	val := v
	nd.Props[key] = &val
}

// DelNodeProp records a node property deletion with the nil sentinel.
func (d *Delta) DelNodeProp(n model.NodeID, key model.PropKeyID) {
	nd := d.modified(n)
	nd.Props[key] = nil
}

// AddNodeLabel / RemoveNodeLabel record label membership changes.
func (d *Delta) AddNodeLabel(n model.NodeID, l model.LabelID) {
	d.modified(n).Labels[l] = true
}
func (d *Delta) RemoveNodeLabel(n model.NodeID, l model.LabelID) {
	d.modified(n).Labels[l] = false
}

// SetEdgeProp / DelEdgeProp record property edits keyed by the logical
// edge triple, using the same nil-pointer deletion sentinel.
func (d *Delta) SetEdgeProp(e model.Edge, key model.PropKeyID, v model.PropValue) {
	m, ok := d.EdgeProps[e]
	if !ok {
		m = make(map[model.PropKeyID]*model.PropValue)
		d.EdgeProps[e] = m
	}
	val := v
	m[key] = &val
}
func (d *Delta) DelEdgeProp(e model.Edge, key model.PropKeyID) {
	m, ok := d.EdgeProps[e]
	if !ok {
		m = make(map[model.PropKeyID]*model.PropValue)
		d.EdgeProps[e] = m
	}
	m[key] = nil
}

// DefineLabel / DefineEtype / DefinePropkey record new catalog entries.
func (d *Delta) DefineLabel(id model.LabelID, name string)     { d.NewLabels[id] = name }
func (d *Delta) DefineEtype(id model.ETypeID, name string)     { d.NewEtypes[id] = name }
func (d *Delta) DefinePropkey(id model.PropKeyID, name string) { d.NewPropkeys[id] = name }

// LookupByKey implements spec.md §4.8's key lookup: delta first (deleted
// takes priority over re-added), caller falls back to the snapshot and
// must still check IsDeleted on the result.
func (d *Delta) LookupByKey(key string) (model.NodeID, bool) {
	if _, ok := d.KeyIndexDeleted[key]; ok {
		return 0, false
	}
	if n, ok := d.KeyIndex[key]; ok {
		return n, true
	}
	return 0, false
}

// DeleteKey removes a key from the pending index, e.g. when its node is deleted.
func (d *Delta) DeleteKey(key string) {
	delete(d.KeyIndex, key)
	d.KeyIndexDeleted[key] = struct{}{}
}

// MergedOutEdges returns snapshot out-edges (provided by the caller,
// already filtered to exclude anything dropped) combined with this
// node's OutAdd entries whose other endpoint is not deleted, per §4.5/§4.8.
func (d *Delta) MergedOutEdges(n model.NodeID, snapshotEdges []model.Edge) []model.Edge {
	out := make([]model.Edge, 0, len(snapshotEdges)+d.OutAdd[n].Len())
	del := d.OutDel[n]
	for _, e := range snapshotEdges {
		if del.Has(e.EType, e.Dst) {
			continue
		}
		out = append(out, e)
	}
	for _, p := range d.OutAdd[n].All() {
		if d.IsDeleted(p.Other) {
			continue
		}
		out = append(out, model.Edge{Src: n, EType: p.EType, Dst: p.Other})
	}
	return out
}

// MergedInEdges is the in-edge symmetric counterpart of MergedOutEdges.
func (d *Delta) MergedInEdges(n model.NodeID, snapshotEdges []model.Edge) []model.Edge {
	out := make([]model.Edge, 0, len(snapshotEdges)+d.InAdd[n].Len())
	del := d.InDel[n]
	for _, e := range snapshotEdges {
		if del.Has(e.EType, e.Src) {
			continue
		}
		out = append(out, e)
	}
	for _, p := range d.InAdd[n].All() {
		if d.IsDeleted(p.Other) {
			continue
		}
		out = append(out, model.Edge{Src: p.Other, EType: p.EType, Dst: n})
	}
	return out
}

// HasEdge reports whether (src,etype,dst) is visible through the overlay
// alone, given whether the snapshot itself has the edge.
func (d *Delta) HasEdge(e model.Edge, inSnapshot bool) bool {
	if d.IsDeleted(e.Src) || d.IsDeleted(e.Dst) {
		return false
	}
	if d.OutAdd[e.Src].Has(e.EType, e.Dst) {
		return true
	}
	if inSnapshot && !d.OutDel[e.Src].Has(e.EType, e.Dst) {
		return true
	}
	return false
}
