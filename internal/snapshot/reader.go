package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/raydb/raydb/internal/model"
)

var (
	ErrBadMagic         = errors.New("snapshot: bad magic")
	ErrVersionTooNew    = errors.New("snapshot: minReaderVersion exceeds supported version")
	ErrChecksumMismatch = errors.New("snapshot: footer checksum mismatch")
	ErrTruncated        = errors.New("snapshot: buffer shorter than declared sections")
)

// Snapshot is a parsed, read-only view over a CSR snapshot buffer. Every
// lookup method reads directly from buf (or a lazily-decompressed copy of
// one section), making Parse itself allocation-light and the common case
// (reading an mmap'd buffer) zero-copy.
type Snapshot struct {
	hdr      Header
	entries  [NumSections]SectionEntry
	buf      []byte
	decompMu sync.Mutex
	decomp   [NumSections][]byte // lazily populated

	strTab  stringTableReader
	keyIdx  keyIndexReader
}

// Header returns the parsed snapshot header.
func (s *Snapshot) Header() Header { return s.hdr }

// Parse validates and wraps buf. skipFooterCRC permits trusted reads (of
// data this process just wrote) to skip the trailing checksum.
func Parse(buf []byte, skipFooterCRC bool) (*Snapshot, error) {
	if len(buf) < HeaderSize+SectionTableSize {
		return nil, ErrTruncated
	}
	hdr := getHeader(buf[:HeaderSize])
	if hdr.Magic != Magic {
		return nil, ErrBadMagic
	}
	if hdr.MinReader > CurrentVersion {
		return nil, fmt.Errorf("%w: requires >= %d, have %d", ErrVersionTooNew, hdr.MinReader, CurrentVersion)
	}

	s := &Snapshot{hdr: hdr, buf: buf}
	logicalEnd := alignUp64(HeaderSize + SectionTableSize)
	for i := 0; i < NumSections; i++ {
		off := HeaderSize + i*sectionSlotSize
		e := getSectionEntry(buf[off:])
		s.entries[i] = e
		if e.Present() {
			end := int(e.Offset + e.Length)
			if end > len(buf) {
				return nil, ErrTruncated
			}
			if aligned := alignUp64(end); aligned > logicalEnd {
				logicalEnd = aligned
			}
		}
	}

	footerOff := logicalEnd
	if footerOff+4 > len(buf) {
		return nil, ErrTruncated
	}
	if !skipFooterCRC {
		want := checksum(buf[:footerOff])
		got := binary.LittleEndian.Uint32(buf[footerOff:])
		if want != got {
			return nil, ErrChecksumMismatch
		}
	}

	s.strTab = stringTableReader{
		offsets: s.sectionBytes(SecStringOffsets),
		bytes:   s.sectionBytes(SecStringBytes),
	}
	s.keyIdx = keyIndexReader{
		entries:  s.sectionBytes(SecKeyEntries),
		buckets:  s.sectionBytes(SecKeyBuckets),
		nBuckets: numBucketsFromSection(s.sectionBytes(SecKeyBuckets)),
		strTable: s.strTab,
	}
	return s, nil
}

func numBucketsFromSection(buckets []byte) int {
	if len(buckets) < 4 {
		return 0
	}
	return len(buckets)/4 - 1
}

// sectionBytes returns the (decompressing and caching, if necessary)
// bytes of section id, or nil if absent.
func (s *Snapshot) sectionBytes(id SectionID) []byte {
	e := s.entries[id]
	if !e.Present() {
		return nil
	}
	if e.Compression == CompressionNone {
		return s.buf[e.Offset : e.Offset+e.Length]
	}

	s.decompMu.Lock()
	defer s.decompMu.Unlock()
	if s.decomp[id] != nil {
		return s.decomp[id]
	}
	raw, err := decompress(s.buf[e.Offset:e.Offset+e.Length], e.Compression, e.UncompressedSize)
	if err != nil {
		return nil
	}
	s.decomp[id] = raw
	return raw
}

// NumNodes / NumEdges report the snapshot's logical size.
func (s *Snapshot) NumNodes() int { return int(s.hdr.NumNodes) }
func (s *Snapshot) NumEdges() int { return int(s.hdr.NumEdges) }

// PhysToNode resolves a dense physical index to its NodeID.
func (s *Snapshot) PhysToNode(phys model.PhysNode) (model.NodeID, bool) {
	sec := s.sectionBytes(SecPhysToNodeID)
	if int(phys)*8+8 > len(sec) {
		return 0, false
	}
	return model.NodeID(binary.LittleEndian.Uint64(sec[8*phys:])), true
}

// NodeToPhys resolves a NodeID to its dense physical index.
func (s *Snapshot) NodeToPhys(id model.NodeID) (model.PhysNode, bool) {
	sec := s.sectionBytes(SecNodeIDToPhys)
	if int(id)*4+4 > len(sec) {
		return 0, false
	}
	v := int32(binary.LittleEndian.Uint32(sec[4*id:]))
	if v < 0 {
		return 0, false
	}
	return model.PhysNode(v), true
}

// HasNode reports whether id exists in this snapshot.
func (s *Snapshot) HasNode(id model.NodeID) bool {
	_, ok := s.NodeToPhys(id)
	return ok
}

// OutEdge is one decoded out-edge row.
type OutEdge struct {
	EType model.ETypeID
	Dst   model.PhysNode
}

// OutEdges returns phys's out-edges, sorted by (etype,dstPhys).
func (s *Snapshot) OutEdges(phys model.PhysNode) []OutEdge {
	return s.csrEdges(SecOutOffsets, SecOutDst, SecOutEType, phys)
}

// InEdges returns phys's in-edges (src as the "other" endpoint), present
// only when the snapshot was built with IN edges included.
func (s *Snapshot) InEdges(phys model.PhysNode) []OutEdge {
	return s.csrEdges(SecInOffsets, SecInSrc, SecInEType, phys)
}

// OutEdgeRange returns the [start,end) CSR positions backing
// OutEdges(phys), so a caller walking OutEdges's result can recover each
// edge's absolute position for EdgeProp/EdgePropKeys lookups.
func (s *Snapshot) OutEdgeRange(phys model.PhysNode) (start, end int) {
	offsets := s.sectionBytes(SecOutOffsets)
	if offsets == nil || int(phys+1)*4+4 > len(offsets) {
		return 0, 0
	}
	return int(binary.LittleEndian.Uint32(offsets[4*phys:])), int(binary.LittleEndian.Uint32(offsets[4*(phys+1):]))
}

// InEdgeRange returns the [start,end) CSR positions backing InEdges(phys),
// the in-edge counterpart to OutEdgeRange.
func (s *Snapshot) InEdgeRange(phys model.PhysNode) (start, end int) {
	offsets := s.sectionBytes(SecInOffsets)
	if offsets == nil || int(phys+1)*4+4 > len(offsets) {
		return 0, 0
	}
	return int(binary.LittleEndian.Uint32(offsets[4*phys:])), int(binary.LittleEndian.Uint32(offsets[4*(phys+1):]))
}

func (s *Snapshot) csrEdges(offSec, otherSec, etypeSec SectionID, phys model.PhysNode) []OutEdge {
	offsets := s.sectionBytes(offSec)
	if offsets == nil {
		return nil
	}
	if int(phys+1)*4+4 > len(offsets) {
		return nil
	}
	start := binary.LittleEndian.Uint32(offsets[4*phys:])
	end := binary.LittleEndian.Uint32(offsets[4*(phys+1):])
	others := s.sectionBytes(otherSec)
	etypes := s.sectionBytes(etypeSec)
	out := make([]OutEdge, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, OutEdge{
			EType: model.ETypeID(binary.LittleEndian.Uint32(etypes[4*i:])),
			Dst:   model.PhysNode(binary.LittleEndian.Uint32(others[4*i:])),
		})
	}
	return out
}

// HasEdge reports whether (srcPhys, etype, dstPhys) exists, via binary
// search on the sorted out-edge row.
func (s *Snapshot) HasEdge(srcPhys model.PhysNode, etype model.ETypeID, dstPhys model.PhysNode) bool {
	edges := s.OutEdges(srcPhys)
	i := sort.Search(len(edges), func(i int) bool {
		if edges[i].EType != etype {
			return edges[i].EType >= etype
		}
		return edges[i].Dst >= dstPhys
	})
	return i < len(edges) && edges[i].EType == etype && edges[i].Dst == dstPhys
}

// OutIndex returns, for in-edge position i in the IN_* arrays, the
// corresponding position in the OUT_* arrays.
func (s *Snapshot) OutIndex(inPos int) (int, bool) {
	sec := s.sectionBytes(SecInOutIndex)
	if sec == nil || (inPos+1)*4 > len(sec) {
		return 0, false
	}
	return int(binary.LittleEndian.Uint32(sec[4*inPos:])), true
}

// LookupByKey resolves a user key to the NodeID whose key matches
// literally, disambiguating hash collisions.
func (s *Snapshot) LookupByKey(key string) (model.NodeID, bool) {
	return s.keyIdx.lookup(key)
}

// NodeKey returns phys's key string, or "" if it has none.
func (s *Snapshot) NodeKey(phys model.PhysNode) string {
	sec := s.sectionBytes(SecNodeKeyString)
	if int(phys)*4+4 > len(sec) {
		return ""
	}
	sid := binary.LittleEndian.Uint32(sec[4*phys:])
	return s.strTab.At(sid)
}

// NodeLabels returns phys's label ids.
func (s *Snapshot) NodeLabels(phys model.PhysNode) []model.LabelID {
	offsets := s.sectionBytes(SecNodeLabelOffsets)
	if offsets == nil || int(phys+1)*4+4 > len(offsets) {
		return nil
	}
	start := binary.LittleEndian.Uint32(offsets[4*phys:])
	end := binary.LittleEndian.Uint32(offsets[4*(phys+1):])
	ids := s.sectionBytes(SecNodeLabelIDs)
	out := make([]model.LabelID, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, model.LabelID(binary.LittleEndian.Uint32(ids[4*i:])))
	}
	return out
}

// NodeProp returns phys's value for key, or model.Null if unset.
func (s *Snapshot) NodeProp(phys model.PhysNode, key model.PropKeyID) model.PropValue {
	return s.prop(SecNodePropOffsets, SecNodePropKeys, SecNodePropVals, int(phys), key)
}

// EdgeProp returns the CSR-traversal-order edge at outPos's value for key.
func (s *Snapshot) EdgeProp(outPos int, key model.PropKeyID) model.PropValue {
	return s.prop(SecEdgePropOffsets, SecEdgePropKeys, SecEdgePropVals, outPos, key)
}

// NodePropKeys returns every PropKeyID phys has a value for, for callers
// (e.g. checkpoint's collect-graph-data pass) that need to enumerate a
// node's full property set rather than probe one key at a time.
func (s *Snapshot) NodePropKeys(phys model.PhysNode) []model.PropKeyID {
	return s.propKeys(SecNodePropOffsets, SecNodePropKeys, int(phys))
}

// EdgePropKeys is NodePropKeys' counterpart for the edge at CSR position outPos.
func (s *Snapshot) EdgePropKeys(outPos int) []model.PropKeyID {
	return s.propKeys(SecEdgePropOffsets, SecEdgePropKeys, outPos)
}

func (s *Snapshot) propKeys(offSec, keySec SectionID, idx int) []model.PropKeyID {
	offsets := s.sectionBytes(offSec)
	if offsets == nil || (idx+1)*4+4 > len(offsets) {
		return nil
	}
	start := binary.LittleEndian.Uint32(offsets[4*idx:])
	end := binary.LittleEndian.Uint32(offsets[4*(idx+1):])
	keys := s.sectionBytes(keySec)
	out := make([]model.PropKeyID, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, model.PropKeyID(binary.LittleEndian.Uint32(keys[4*i:])))
	}
	return out
}

func (s *Snapshot) prop(offSec, keySec, valSec SectionID, idx int, key model.PropKeyID) model.PropValue {
	offsets := s.sectionBytes(offSec)
	if offsets == nil || (idx+1)*4+4 > len(offsets) {
		return model.Null
	}
	start := binary.LittleEndian.Uint32(offsets[4*idx:])
	end := binary.LittleEndian.Uint32(offsets[4*(idx+1):])
	keys := s.sectionBytes(keySec)
	vals := s.sectionBytes(valSec)
	// keys within an entity are sorted ascending: binary search.
	lo, hi := int(start), int(end)
	for lo < hi {
		mid := (lo + hi) / 2
		k := model.PropKeyID(binary.LittleEndian.Uint32(keys[4*mid:]))
		if k == key {
			var fixed [model.EncodedValueSize]byte
			copy(fixed[:], vals[model.EncodedValueSize*mid:model.EncodedValueSize*(mid+1)])
			return model.DecodeFixed(fixed, s.strTab.At)
		}
		if k < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return model.Null
}

// ResolveString exposes the interned string table for callers (e.g. the
// catalog layer) that need to resolve a StringID outside the lookup
// helpers above.
func (s *Snapshot) ResolveString(id model.StringID) string {
	return s.strTab.At(uint32(id))
}

// LabelName / EtypeName / PropkeyName resolve a catalog id to its name.
func (s *Snapshot) LabelName(id model.LabelID) string {
	return s.catalogName(SecLabelStringIDs, uint32(id))
}
func (s *Snapshot) EtypeName(id model.ETypeID) string {
	return s.catalogName(SecEtypeStringIDs, uint32(id))
}
func (s *Snapshot) PropkeyName(id model.PropKeyID) string {
	return s.catalogName(SecPropkeyStringIDs, uint32(id))
}

func (s *Snapshot) catalogName(sec SectionID, id uint32) string {
	arr := s.sectionBytes(sec)
	if int(id)*4+4 > len(arr) {
		return ""
	}
	return s.strTab.At(binary.LittleEndian.Uint32(arr[4*id:]))
}
