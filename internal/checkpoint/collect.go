// Package checkpoint implements spec.md §4.7's compaction: folding the
// current snapshot plus the pending delta into a fresh snapshot generation,
// both as a blocking call and as a background idle/running/merging/
// completing state machine that lets writers keep committing to the
// secondary WAL region while the new snapshot is built.
package checkpoint

import (
	"sort"

	"github.com/raydb/raydb/internal/delta"
	"github.com/raydb/raydb/internal/model"
	"github.com/raydb/raydb/internal/snapshot"
)

// CollectGraphData implements §4.7 step 3, "collect_graph_data": it merges
// snap (nil for a brand-new, still-empty database) with the overlay d into
// the BuildInput snapshot.Build needs for the next generation. Every live
// node's final key/labels/properties and every live edge's final
// endpoints/properties are resolved here; Build only sorts and serializes.
func CollectGraphData(snap *snapshot.Snapshot, d *delta.Delta, includeInEdges bool) snapshot.BuildInput {
	in := snapshot.BuildInput{
		Labels:         map[model.LabelID]string{},
		Etypes:         map[model.ETypeID]string{},
		Propkeys:       map[model.PropKeyID]string{},
		IncludeInEdges: includeInEdges,
		Compression:    snapshot.CompressionZSTD,
	}
	copyCatalog(snap, d, &in)

	if snap != nil {
		for phys := 0; phys < snap.NumNodes(); phys++ {
			p := model.PhysNode(phys)
			id, ok := snap.PhysToNode(p)
			if !ok || d.IsDeleted(id) {
				continue
			}
			in.Nodes = append(in.Nodes, mergeExistingNode(snap, d, p, id))
			in.Edges = append(in.Edges, mergeExistingNodeEdges(snap, d, p, id)...)
		}
	}

	for id, nd := range d.CreatedNodes {
		in.Nodes = append(in.Nodes, createdNodeInput(id, nd))
		in.Edges = append(in.Edges, createdNodeEdges(d, id)...)
	}

	return in
}

func copyCatalog(snap *snapshot.Snapshot, d *delta.Delta, in *snapshot.BuildInput) {
	if snap != nil {
		hdr := snap.Header()
		for id := model.LabelID(1); uint64(id) <= hdr.NumLabels; id++ {
			in.Labels[id] = snap.LabelName(id)
		}
		for id := model.ETypeID(1); uint64(id) <= hdr.NumEtypes; id++ {
			in.Etypes[id] = snap.EtypeName(id)
		}
		for id := model.PropKeyID(1); uint64(id) <= hdr.NumPropkeys; id++ {
			in.Propkeys[id] = snap.PropkeyName(id)
		}
	}
	for id, name := range d.NewLabels {
		in.Labels[id] = name
	}
	for id, name := range d.NewEtypes {
		in.Etypes[id] = name
	}
	for id, name := range d.NewPropkeys {
		in.Propkeys[id] = name
	}
}

func mergeExistingNode(snap *snapshot.Snapshot, d *delta.Delta, phys model.PhysNode, id model.NodeID) snapshot.NodeInput {
	key := snap.NodeKey(phys)
	labels := append([]model.LabelID(nil), snap.NodeLabels(phys)...)
	props := make(map[model.PropKeyID]model.PropValue)
	for _, k := range snap.NodePropKeys(phys) {
		props[k] = snap.NodeProp(phys, k)
	}

	if nd, ok := d.ModifiedNodes[id]; ok {
		if nd.Key != nil {
			key = *nd.Key
		}
		labels = applyLabelEdits(labels, nd.Labels)
		applyPropEdits(props, nd.Props)
	}
	return snapshot.NodeInput{ID: id, Key: key, Labels: labels, Props: props}
}

func mergeExistingNodeEdges(snap *snapshot.Snapshot, d *delta.Delta, phys model.PhysNode, id model.NodeID) []snapshot.EdgeInput {
	start, _ := snap.OutEdgeRange(phys)
	raw := snap.OutEdges(phys)

	base := make([]model.Edge, 0, len(raw))
	baseProps := make(map[model.Edge]map[model.PropKeyID]model.PropValue, len(raw))
	for i, oe := range raw {
		dstID, ok := snap.PhysToNode(oe.Dst)
		if !ok || d.IsDeleted(dstID) {
			continue // dropped endpoint: MergedOutEdges wants its input pre-filtered
		}
		e := model.Edge{Src: id, EType: oe.EType, Dst: dstID}
		base = append(base, e)

		outPos := start + i
		props := make(map[model.PropKeyID]model.PropValue)
		for _, k := range snap.EdgePropKeys(outPos) {
			props[k] = snap.EdgeProp(outPos, k)
		}
		baseProps[e] = props
	}

	merged := d.MergedOutEdges(id, base)
	out := make([]snapshot.EdgeInput, 0, len(merged))
	for _, e := range merged {
		props := copyPropMap(baseProps[e])
		applyPropEdits(props, d.EdgeProps[e])
		out = append(out, snapshot.EdgeInput{Src: e.Src, EType: e.EType, Dst: e.Dst, Props: props})
	}
	return out
}

func createdNodeInput(id model.NodeID, nd *delta.NodeDelta) snapshot.NodeInput {
	key := ""
	if nd.Key != nil {
		key = *nd.Key
	}
	labels := make([]model.LabelID, 0, len(nd.Labels))
	for l, present := range nd.Labels {
		if present {
			labels = append(labels, l)
		}
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })

	props := make(map[model.PropKeyID]model.PropValue, len(nd.Props))
	for k, v := range nd.Props {
		if v != nil {
			props[k] = *v
		}
	}
	return snapshot.NodeInput{ID: id, Key: key, Labels: labels, Props: props}
}

func createdNodeEdges(d *delta.Delta, id model.NodeID) []snapshot.EdgeInput {
	merged := d.MergedOutEdges(id, nil)
	out := make([]snapshot.EdgeInput, 0, len(merged))
	for _, e := range merged {
		props := make(map[model.PropKeyID]model.PropValue)
		for k, v := range d.EdgeProps[e] {
			if v != nil {
				props[k] = *v
			}
		}
		out = append(out, snapshot.EdgeInput{Src: e.Src, EType: e.EType, Dst: e.Dst, Props: props})
	}
	return out
}

func applyLabelEdits(base []model.LabelID, edits map[model.LabelID]bool) []model.LabelID {
	set := make(map[model.LabelID]bool, len(base)+len(edits))
	for _, l := range base {
		set[l] = true
	}
	for l, add := range edits {
		set[l] = add
	}
	out := make([]model.LabelID, 0, len(set))
	for l, present := range set {
		if present {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func applyPropEdits(props map[model.PropKeyID]model.PropValue, edits map[model.PropKeyID]*model.PropValue) {
	for k, v := range edits {
		if v == nil {
			delete(props, k)
		} else {
			props[k] = *v
		}
	}
}

func copyPropMap(m map[model.PropKeyID]model.PropValue) map[model.PropKeyID]model.PropValue {
	out := make(map[model.PropKeyID]model.PropValue, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
