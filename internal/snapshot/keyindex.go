package snapshot

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/raydb/raydb/internal/model"
)

// KeyEntrySize is the fixed on-disk size of one KEY_ENTRIES row: hash64
// u64, stringId u32, reserved u32, nodeId u64.
const KeyEntrySize = 8 + 4 + 4 + 8

// HashKey computes the key-index hash for a node key string, xxHash64 over
// its UTF-8 bytes (spec.md §4.4/§6.1).
func HashKey(key string) uint64 {
	return xxhash.Sum64String(key)
}

type keyEntry struct {
	hash     uint64
	stringID uint32
	nodeID   model.NodeID
}

// numBuckets follows spec.md §4.4: max(16, 2*numKeys).
func numBuckets(numKeys int) int {
	n := 2 * numKeys
	if n < 16 {
		n = 16
	}
	return n
}

// buildKeyIndex produces KEY_ENTRIES (sorted by bucket, then hash) and
// KEY_BUCKETS (CSR-style offsets into KEY_ENTRIES).
func buildKeyIndex(keyed map[model.NodeID]uint32, strOf func(model.NodeID) string) (entries []byte, buckets []byte, nBuckets int) {
	list := make([]keyEntry, 0, len(keyed))
	for nid, sid := range keyed {
		list = append(list, keyEntry{hash: HashKey(strOf(nid)), stringID: sid, nodeID: nid})
	}
	nBuckets = numBuckets(len(list))

	sort.Slice(list, func(i, j int) bool {
		bi := list[i].hash % uint64(nBuckets)
		bj := list[j].hash % uint64(nBuckets)
		if bi != bj {
			return bi < bj
		}
		return list[i].hash < list[j].hash
	})

	entries = make([]byte, KeyEntrySize*len(list))
	counts := make([]uint32, nBuckets)
	for i, e := range list {
		off := KeyEntrySize * i
		binary.LittleEndian.PutUint64(entries[off:], e.hash)
		binary.LittleEndian.PutUint32(entries[off+8:], e.stringID)
		binary.LittleEndian.PutUint64(entries[off+16:], uint64(e.nodeID))
		counts[e.hash%uint64(nBuckets)]++
	}

	buckets = make([]byte, 4*(nBuckets+1))
	cursor := uint32(0)
	for b := 0; b < nBuckets; b++ {
		binary.LittleEndian.PutUint32(buckets[4*b:], cursor)
		cursor += counts[b]
	}
	binary.LittleEndian.PutUint32(buckets[4*nBuckets:], cursor)
	return entries, buckets, nBuckets
}

// keyIndexReader resolves a user key to a NodeID via bucket + literal
// tie-break on hash collision.
type keyIndexReader struct {
	entries   []byte
	buckets   []byte
	nBuckets  int
	strTable  stringTableReader
}

func (r keyIndexReader) lookup(key string) (model.NodeID, bool) {
	if r.nBuckets == 0 || len(r.buckets) == 0 {
		return 0, false
	}
	hash := HashKey(key)
	bucket := int(hash % uint64(r.nBuckets))
	start := binary.LittleEndian.Uint32(r.buckets[4*bucket:])
	end := binary.LittleEndian.Uint32(r.buckets[4*(bucket+1):])
	for i := start; i < end; i++ {
		off := KeyEntrySize * int(i)
		h := binary.LittleEndian.Uint64(r.entries[off:])
		if h != hash {
			continue
		}
		sid := binary.LittleEndian.Uint32(r.entries[off+8:])
		if r.strTable.At(sid) != key {
			continue // hash collision: literal tie-break
		}
		nid := model.NodeID(binary.LittleEndian.Uint64(r.entries[off+16:]))
		return nid, true
	}
	return 0, false
}
