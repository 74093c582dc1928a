package snapshot

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/zstd"

	"github.com/raydb/raydb/internal/model"
)

// NodeInput describes one node going into a new snapshot.
type NodeInput struct {
	ID     model.NodeID
	Key    string // "" if the node has no key
	Labels []model.LabelID
	Props  map[model.PropKeyID]model.PropValue
}

// EdgeInput describes one directed edge going into a new snapshot.
type EdgeInput struct {
	Src   model.NodeID
	EType model.ETypeID
	Dst   model.NodeID
	Props map[model.PropKeyID]model.PropValue
}

// BuildInput is everything needed to build one snapshot (spec.md §4.4 writer).
type BuildInput struct {
	Generation    uint64
	CreatedUnixNs uint64
	Nodes         []NodeInput
	Edges         []EdgeInput
	Labels        map[model.LabelID]string
	Etypes        map[model.ETypeID]string
	Propkeys      map[model.PropKeyID]string
	IncludeInEdges bool
	Compression   Compression
}

// Build implements spec.md §4.4's writer: sort nodes, intern strings,
// build out/in CSR, build the key index, and emit a 64-aligned,
// optionally-compressed section buffer with a trailing footer CRC.
func Build(in BuildInput) ([]byte, error) {
	nodes := append([]NodeInput(nil), in.Nodes...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	numNodes := len(nodes)
	physOf := make(map[model.NodeID]model.PhysNode, numNodes)
	var maxNodeID model.NodeID
	for i, n := range nodes {
		physOf[n.ID] = model.PhysNode(i)
		if n.ID > maxNodeID {
			maxNodeID = n.ID
		}
	}

	strTab := newStringTableBuilder()
	labelIDs := sortedLabelKeys(in.Labels)
	etypeIDs := sortedEtypeKeys(in.Etypes)
	propkeyIDs := sortedPropkeyKeys(in.Propkeys)
	for _, id := range labelIDs {
		strTab.Intern(in.Labels[id])
	}
	for _, id := range etypeIDs {
		strTab.Intern(in.Etypes[id])
	}
	for _, id := range propkeyIDs {
		strTab.Intern(in.Propkeys[id])
	}
	keyedNodes := make(map[model.NodeID]uint32)
	for _, n := range nodes {
		if n.Key != "" {
			keyedNodes[n.ID] = strTab.Intern(n.Key)
		}
		for _, pv := range n.Props {
			if pv.Tag == model.TagString {
				strTab.Intern(pv.Str)
			}
		}
	}
	for _, e := range in.Edges {
		for _, pv := range e.Props {
			if pv.Tag == model.TagString {
				strTab.Intern(pv.Str)
			}
		}
	}

	// --- out-CSR: group edges by source phys index, sort by (etype,dstPhys) ---
	type outEdge struct {
		etype   model.ETypeID
		dstPhys model.PhysNode
		srcPhys model.PhysNode
		propRef int // index into in.Edges, for property lookup below
	}
	outByNode := make([][]outEdge, numNodes)
	for idx, e := range in.Edges {
		sp, ok := physOf[e.Src]
		if !ok {
			continue // endpoint not in this snapshot (deleted)
		}
		dp, ok := physOf[e.Dst]
		if !ok {
			continue
		}
		outByNode[sp] = append(outByNode[sp], outEdge{etype: e.EType, dstPhys: dp, srcPhys: sp, propRef: idx})
	}
	for i := range outByNode {
		sort.Slice(outByNode[i], func(a, b int) bool {
			if outByNode[i][a].etype != outByNode[i][b].etype {
				return outByNode[i][a].etype < outByNode[i][b].etype
			}
			return outByNode[i][a].dstPhys < outByNode[i][b].dstPhys
		})
	}

	numEdges := 0
	for _, v := range outByNode {
		numEdges += len(v)
	}

	outOffsets := make([]byte, 4*(numNodes+1))
	outDst := make([]byte, 4*numEdges)
	outEType := make([]byte, 4*numEdges)
	edgePropRefs := make([]int, 0, numEdges) // parallel to CSR traversal order, for EDGE_PROP_*
	cursor := 0
	for i := 0; i < numNodes; i++ {
		binary.LittleEndian.PutUint32(outOffsets[4*i:], uint32(cursor))
		for _, oe := range outByNode[i] {
			binary.LittleEndian.PutUint32(outDst[4*cursor:], uint32(oe.dstPhys))
			binary.LittleEndian.PutUint32(outEType[4*cursor:], uint32(oe.etype))
			edgePropRefs = append(edgePropRefs, oe.propRef)
			cursor++
		}
	}
	binary.LittleEndian.PutUint32(outOffsets[4*numNodes:], uint32(cursor))

	// --- in-CSR, derived from out-CSR with an outIndex back-pointer ---
	var inOffsets, inSrc, inEType, inOutIndex []byte
	if in.IncludeInEdges {
		type inEdge struct {
			etype    model.ETypeID
			srcPhys  model.PhysNode
			outIndex int
		}
		inByNode := make([][]inEdge, numNodes)
		pos := 0
		for i := 0; i < numNodes; i++ {
			for _, oe := range outByNode[i] {
				dp := oe.dstPhys
				inByNode[dp] = append(inByNode[dp], inEdge{etype: oe.etype, srcPhys: model.PhysNode(i), outIndex: pos})
				pos++
			}
		}
		for i := range inByNode {
			sort.Slice(inByNode[i], func(a, b int) bool {
				if inByNode[i][a].etype != inByNode[i][b].etype {
					return inByNode[i][a].etype < inByNode[i][b].etype
				}
				return inByNode[i][a].srcPhys < inByNode[i][b].srcPhys
			})
		}
		inOffsets = make([]byte, 4*(numNodes+1))
		inSrc = make([]byte, 4*numEdges)
		inEType = make([]byte, 4*numEdges)
		inOutIndex = make([]byte, 4*numEdges)
		c := 0
		for i := 0; i < numNodes; i++ {
			binary.LittleEndian.PutUint32(inOffsets[4*i:], uint32(c))
			for _, ie := range inByNode[i] {
				binary.LittleEndian.PutUint32(inSrc[4*c:], uint32(ie.srcPhys))
				binary.LittleEndian.PutUint32(inEType[4*c:], uint32(ie.etype))
				binary.LittleEndian.PutUint32(inOutIndex[4*c:], uint32(ie.outIndex))
				c++
			}
		}
		binary.LittleEndian.PutUint32(inOffsets[4*numNodes:], uint32(c))
	}

	// --- PHYS_TO_NODEID / NODEID_TO_PHYS ---
	physToNodeID := make([]byte, 8*numNodes)
	for i, n := range nodes {
		binary.LittleEndian.PutUint64(physToNodeID[8*i:], uint64(n.ID))
	}
	nodeIDToPhys := make([]byte, 4*(maxNodeID+1))
	for i := range nodeIDToPhys {
		nodeIDToPhys[i] = 0xFF // -1 sentinel, byte-wise
	}
	for i, n := range nodes {
		binary.LittleEndian.PutUint32(nodeIDToPhys[4*n.ID:], uint32(i))
	}

	// --- node key strings ---
	nodeKeyString := make([]byte, 4*numNodes)
	for i, n := range nodes {
		if sid, ok := keyedNodes[n.ID]; ok {
			binary.LittleEndian.PutUint32(nodeKeyString[4*i:], sid)
		}
	}

	// --- catalog ID -> string arrays ---
	labelStringIDs := catalogArray(labelIDs, in.Labels, strTab)
	etypeStringIDs := catalogArray(etypeIDs, in.Etypes, strTab)
	propkeyStringIDs := catalogArray(propkeyIDs, in.Propkeys, strTab)

	// --- key index ---
	keyEntries, keyBuckets, nBuckets := buildKeyIndex(keyedNodes, func(id model.NodeID) string {
		for _, n := range nodes {
			if n.ID == id {
				return n.Key
			}
		}
		return ""
	})
	_ = nBuckets

	// --- node labels (supplemental: not in spec.md's section list but
	// required by the data model's "Set of LabelID" per node) ---
	nodeLabelOffsets := make([]byte, 4*(numNodes+1))
	var nodeLabelIDs []byte
	lc := 0
	for i, n := range nodes {
		binary.LittleEndian.PutUint32(nodeLabelOffsets[4*i:], uint32(lc))
		for _, lid := range n.Labels {
			b := make([]byte, 4)
			binary.LittleEndian.PutUint32(b, uint32(lid))
			nodeLabelIDs = append(nodeLabelIDs, b...)
			lc++
		}
	}
	binary.LittleEndian.PutUint32(nodeLabelOffsets[4*numNodes:], uint32(lc))

	// --- node properties, sorted by keyId within each node ---
	nodePropOffsets, nodePropKeys, nodePropVals := buildPropTables(nodeProps(nodes), numNodes, strTab)

	// --- edge properties, indexed in CSR traversal order ---
	edgeProps := make([]map[model.PropKeyID]model.PropValue, len(edgePropRefs))
	for i, ref := range edgePropRefs {
		edgeProps[i] = in.Edges[ref].Props
	}
	edgePropOffsets, edgePropKeys, edgePropVals := buildPropTables(edgeProps, numEdges, strTab)

	strOffsets, strBytes := strTab.Build()

	sections := make([][]byte, NumSections)
	sections[SecPhysToNodeID] = physToNodeID
	sections[SecNodeIDToPhys] = nodeIDToPhys
	sections[SecOutOffsets] = outOffsets
	sections[SecOutDst] = outDst
	sections[SecOutEType] = outEType
	sections[SecInOffsets] = inOffsets
	sections[SecInSrc] = inSrc
	sections[SecInEType] = inEType
	sections[SecInOutIndex] = inOutIndex
	sections[SecStringOffsets] = strOffsets
	sections[SecStringBytes] = strBytes
	sections[SecLabelStringIDs] = labelStringIDs
	sections[SecEtypeStringIDs] = etypeStringIDs
	sections[SecPropkeyStringIDs] = propkeyStringIDs
	sections[SecNodeKeyString] = nodeKeyString
	sections[SecKeyEntries] = keyEntries
	sections[SecKeyBuckets] = keyBuckets
	sections[SecNodePropOffsets] = nodePropOffsets
	sections[SecNodePropKeys] = nodePropKeys
	sections[SecNodePropVals] = nodePropVals
	sections[SecEdgePropOffsets] = edgePropOffsets
	sections[SecEdgePropKeys] = edgePropKeys
	sections[SecEdgePropVals] = edgePropVals
	sections[SecNodeLabelOffsets] = nodeLabelOffsets
	sections[SecNodeLabelIDs] = nodeLabelIDs

	flags := uint32(0)
	if in.IncludeInEdges {
		flags |= FlagHasInEdges
	}
	flags |= FlagHasProperties
	if len(keyedNodes) > 0 {
		flags |= FlagHasKeyBuckets
	}

	hdr := Header{
		Magic:         Magic,
		Version:       CurrentVersion,
		MinReader:     MinReaderVersion,
		Flags:         flags,
		Generation:    in.Generation,
		CreatedUnixNs: in.CreatedUnixNs,
		NumNodes:      uint64(numNodes),
		NumEdges:      uint64(numEdges),
		MaxNodeID:     uint64(maxNodeID),
		NumLabels:     uint64(len(labelIDs)),
		NumEtypes:     uint64(len(etypeIDs)),
		NumPropkeys:   uint64(len(propkeyIDs)),
		NumStrings:    uint64(strTab.Count()),
	}

	return assemble(hdr, sections, in.Compression)
}

func assemble(hdr Header, sections [][]byte, compression Compression) ([]byte, error) {
	entries := make([]SectionEntry, NumSections)
	bodies := make([][]byte, NumSections)
	cursor := alignUp64(HeaderSize + SectionTableSize)

	for i, raw := range sections {
		if len(raw) == 0 {
			continue
		}
		body := raw
		comp := CompressionNone
		if compression != CompressionNone && len(raw) > 64 {
			if c, ok := compress(raw, compression); ok && len(c) < len(raw) {
				body, comp = c, compression
			}
		}
		entries[i] = SectionEntry{Offset: uint64(cursor), Length: uint64(len(body)), Compression: comp, UncompressedSize: uint32(len(raw))}
		bodies[i] = body
		cursor = alignUp64(cursor + len(body))
	}

	total := cursor + 4 // footer CRC
	buf := make([]byte, total)
	putHeader(buf[:HeaderSize], hdr)
	for i, e := range entries {
		putSectionEntry(buf[HeaderSize+i*sectionSlotSize:], e)
	}
	for i, body := range bodies {
		if len(body) == 0 {
			continue
		}
		copy(buf[entries[i].Offset:], body)
	}

	footer := checksum(buf[:total-4])
	binary.LittleEndian.PutUint32(buf[total-4:], footer)
	return buf, nil
}

func compress(raw []byte, c Compression) ([]byte, bool) {
	var out bytes.Buffer
	switch c {
	case CompressionZSTD:
		w, err := zstd.NewWriter(&out)
		if err != nil {
			return nil, false
		}
		if _, err := w.Write(raw); err != nil {
			w.Close()
			return nil, false
		}
		if err := w.Close(); err != nil {
			return nil, false
		}
	case CompressionGZIP:
		w := gzip.NewWriter(&out)
		if _, err := w.Write(raw); err != nil {
			w.Close()
			return nil, false
		}
		if err := w.Close(); err != nil {
			return nil, false
		}
	case CompressionDeflate:
		w, err := flate.NewWriter(&out, flate.DefaultCompression)
		if err != nil {
			return nil, false
		}
		if _, err := w.Write(raw); err != nil {
			w.Close()
			return nil, false
		}
		if err := w.Close(); err != nil {
			return nil, false
		}
	default:
		return nil, false
	}
	return out.Bytes(), true
}

func decompress(body []byte, c Compression, uncompressedSize uint32) ([]byte, error) {
	switch c {
	case CompressionNone:
		return body, nil
	case CompressionZSTD:
		r, err := zstd.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("snapshot: zstd decode: %w", err)
		}
		defer r.Close()
		out := make([]byte, 0, uncompressedSize)
		buf := bytes.NewBuffer(out)
		if _, err := io.Copy(buf, r); err != nil {
			return nil, fmt.Errorf("snapshot: zstd decode: %w", err)
		}
		return buf.Bytes(), nil
	case CompressionGZIP:
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("snapshot: gzip decode: %w", err)
		}
		defer r.Close()
		out := make([]byte, 0, uncompressedSize)
		buf := bytes.NewBuffer(out)
		if _, err := io.Copy(buf, r); err != nil {
			return nil, fmt.Errorf("snapshot: gzip decode: %w", err)
		}
		return buf.Bytes(), nil
	case CompressionDeflate:
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close()
		out := make([]byte, 0, uncompressedSize)
		buf := bytes.NewBuffer(out)
		if _, err := io.Copy(buf, r); err != nil {
			return nil, fmt.Errorf("snapshot: deflate decode: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("snapshot: unknown compression id %d", c)
	}
}

func sortedLabelKeys(m map[model.LabelID]string) []model.LabelID {
	ids := make([]model.LabelID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedEtypeKeys(m map[model.ETypeID]string) []model.ETypeID {
	ids := make([]model.ETypeID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedPropkeyKeys(m map[model.PropKeyID]string) []model.PropKeyID {
	ids := make([]model.PropKeyID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func catalogArray[K ~uint32](ids []K, names map[K]string, strTab *stringTableBuilder) []byte {
	if len(ids) == 0 {
		return nil
	}
	maxID := ids[len(ids)-1]
	out := make([]byte, 4*(int(maxID)+1))
	for _, id := range ids {
		binary.LittleEndian.PutUint32(out[4*id:], strTab.Intern(names[id]))
	}
	return out
}

func nodeProps(nodes []NodeInput) []map[model.PropKeyID]model.PropValue {
	out := make([]map[model.PropKeyID]model.PropValue, len(nodes))
	for i, n := range nodes {
		out[i] = n.Props
	}
	return out
}

// buildPropTables emits *_PROP_OFFSETS/*_PROP_KEYS/*_PROP_VALS for a
// sequence of per-entity property maps, sorting each entity's keys
// ascending (spec.md §4.4).
func buildPropTables(perEntity []map[model.PropKeyID]model.PropValue, n int, strTab *stringTableBuilder) (offsets, keys, vals []byte) {
	offsets = make([]byte, 4*(n+1))
	var keyBuf []byte
	var valBuf []byte
	cursor := 0
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(offsets[4*i:], uint32(cursor))
		props := perEntity[i]
		ids := make([]model.PropKeyID, 0, len(props))
		for k := range props {
			ids = append(ids, k)
		}
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
		for _, k := range ids {
			kb := make([]byte, 4)
			binary.LittleEndian.PutUint32(kb, uint32(k))
			keyBuf = append(keyBuf, kb...)
			enc := model.EncodeFixed(props[k], func(s string) model.StringID {
				return model.StringID(strTab.Intern(s))
			})
			valBuf = append(valBuf, enc[:]...)
			cursor++
		}
	}
	binary.LittleEndian.PutUint32(offsets[4*n:], uint32(cursor))
	return offsets, keyBuf, valBuf
}
