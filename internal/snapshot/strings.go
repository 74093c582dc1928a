package snapshot

import "encoding/binary"

// stringTableBuilder interns strings in first-seen order, StringID 0
// always reserved for the empty string.
type stringTableBuilder struct {
	ids   map[string]uint32
	order []string
}

func newStringTableBuilder() *stringTableBuilder {
	b := &stringTableBuilder{ids: make(map[string]uint32)}
	b.ids[""] = 0
	b.order = append(b.order, "")
	return b
}

// Intern returns s's StringID, assigning a fresh one on first use.
func (b *stringTableBuilder) Intern(s string) uint32 {
	if id, ok := b.ids[s]; ok {
		return id
	}
	id := uint32(len(b.order))
	b.ids[s] = id
	b.order = append(b.order, s)
	return id
}

// Build emits STRING_OFFSETS and STRING_BYTES.
func (b *stringTableBuilder) Build() (offsets []byte, bytes []byte) {
	off := make([]byte, 4*(len(b.order)+1))
	var blob []byte
	cursor := uint32(0)
	for i, s := range b.order {
		binary.LittleEndian.PutUint32(off[4*i:], cursor)
		blob = append(blob, s...)
		cursor += uint32(len(s))
	}
	binary.LittleEndian.PutUint32(off[4*len(b.order):], cursor)
	return off, blob
}

// Count returns the number of interned strings, including the empty one.
func (b *stringTableBuilder) Count() int { return len(b.order) }

// stringTableReader resolves StringIDs against the raw section bytes.
type stringTableReader struct {
	offsets []byte // STRING_OFFSETS, u32 each, len = numStrings+1
	bytes   []byte // STRING_BYTES
}

func (r stringTableReader) numStrings() int {
	if len(r.offsets) == 0 {
		return 0
	}
	return len(r.offsets)/4 - 1
}

// At resolves id to its string, returning "" for id 0 or an out-of-range id.
func (r stringTableReader) At(id uint32) string {
	n := r.numStrings()
	if n == 0 || int(id) >= n {
		return ""
	}
	start := binary.LittleEndian.Uint32(r.offsets[4*id:])
	end := binary.LittleEndian.Uint32(r.offsets[4*(id+1):])
	if end < start || int(end) > len(r.bytes) {
		return ""
	}
	return string(r.bytes[start:end])
}
