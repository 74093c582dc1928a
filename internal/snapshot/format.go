// Package snapshot implements the immutable, column-oriented CSR graph
// snapshot format described in spec.md §4.4: a zero-copy mmap-friendly
// reader and a buffer-emitting writer, with lazy per-section
// decompression cached across calls.
package snapshot

import (
	"encoding/binary"
	"hash/crc32"
)

// Magic identifies a snapshot buffer.
const Magic uint32 = 0x52415953 // "RAYS"

// CurrentVersion is the format version this package writes.
const CurrentVersion uint32 = 1

// MinReaderVersion is the oldest version this package can still read.
const MinReaderVersion uint32 = 1

// Flag bits in the snapshot header's flags bitset.
const (
	FlagHasInEdges    uint32 = 1 << 0
	FlagHasProperties uint32 = 1 << 1
	FlagHasKeyBuckets uint32 = 1 << 2
)

// SectionAlign is the byte alignment every section's offset must satisfy.
const SectionAlign = 64

// Compression identifies the codec used for one section. Identifiers are
// stable on-disk values (spec.md §6.1).
type Compression uint32

const (
	CompressionNone    Compression = 0
	CompressionZSTD    Compression = 1
	CompressionGZIP    Compression = 2
	CompressionDeflate Compression = 3
)

// SectionID enumerates the fixed slots of the section table.
type SectionID int

const (
	SecPhysToNodeID SectionID = iota
	SecNodeIDToPhys
	SecOutOffsets
	SecOutDst
	SecOutEType
	SecInOffsets
	SecInSrc
	SecInEType
	SecInOutIndex
	SecStringOffsets
	SecStringBytes
	SecLabelStringIDs
	SecEtypeStringIDs
	SecPropkeyStringIDs
	SecNodeKeyString
	SecKeyEntries
	SecKeyBuckets
	SecNodePropOffsets
	SecNodePropKeys
	SecNodePropVals
	SecEdgePropOffsets
	SecEdgePropKeys
	SecEdgePropVals
	SecNodeLabelOffsets
	SecNodeLabelIDs

	numSections
)

// NumSections is the fixed number of slots in every section table.
const NumSections = int(numSections)

// HeaderSize is the fixed-layout snapshot header size in bytes.
const HeaderSize = 4 + 4 + 4 + 4 + 8 + 8 + 8 + 8 + 8 + 8 + 8 + 8

// sectionSlotSize is the on-disk size of one SectionTableEntry: offset
// u64, length u64, compression u32, uncompressedSize u32.
const sectionSlotSize = 8 + 8 + 4 + 4

// SectionTableSize is the total size of the fixed section table.
const SectionTableSize = sectionSlotSize * NumSections

// Header mirrors the fixed snapshot header fields.
type Header struct {
	Magic        uint32
	Version      uint32
	MinReader    uint32
	Flags        uint32
	Generation   uint64
	CreatedUnixNs uint64
	NumNodes     uint64
	NumEdges     uint64
	MaxNodeID    uint64
	NumLabels    uint64
	NumEtypes    uint64
	NumPropkeys  uint64
	NumStrings   uint64
}

// SectionEntry is one slot of the section table.
type SectionEntry struct {
	Offset           uint64
	Length           uint64
	Compression      Compression
	UncompressedSize uint32
}

// Present reports whether this slot holds a section (length != 0).
func (e SectionEntry) Present() bool { return e.Length != 0 }

var crc32c = crc32.MakeTable(crc32.Castagnoli)

func checksum(b []byte) uint32 { return crc32.Checksum(b, crc32c) }

func alignUp64(n int) int {
	return (n + SectionAlign - 1) &^ (SectionAlign - 1)
}

func putHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint32(buf[0:], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:], h.Version)
	binary.LittleEndian.PutUint32(buf[8:], h.MinReader)
	binary.LittleEndian.PutUint32(buf[12:], h.Flags)
	binary.LittleEndian.PutUint64(buf[16:], h.Generation)
	binary.LittleEndian.PutUint64(buf[24:], h.CreatedUnixNs)
	binary.LittleEndian.PutUint64(buf[32:], h.NumNodes)
	binary.LittleEndian.PutUint64(buf[40:], h.NumEdges)
	binary.LittleEndian.PutUint64(buf[48:], h.MaxNodeID)
	binary.LittleEndian.PutUint64(buf[56:], h.NumLabels)
	binary.LittleEndian.PutUint64(buf[64:], h.NumEtypes)
	binary.LittleEndian.PutUint64(buf[72:], h.NumPropkeys)
	binary.LittleEndian.PutUint64(buf[80:], h.NumStrings)
}

func getHeader(buf []byte) Header {
	return Header{
		Magic:         binary.LittleEndian.Uint32(buf[0:]),
		Version:       binary.LittleEndian.Uint32(buf[4:]),
		MinReader:     binary.LittleEndian.Uint32(buf[8:]),
		Flags:         binary.LittleEndian.Uint32(buf[12:]),
		Generation:    binary.LittleEndian.Uint64(buf[16:]),
		CreatedUnixNs: binary.LittleEndian.Uint64(buf[24:]),
		NumNodes:      binary.LittleEndian.Uint64(buf[32:]),
		NumEdges:      binary.LittleEndian.Uint64(buf[40:]),
		MaxNodeID:     binary.LittleEndian.Uint64(buf[48:]),
		NumLabels:     binary.LittleEndian.Uint64(buf[56:]),
		NumEtypes:     binary.LittleEndian.Uint64(buf[64:]),
		NumPropkeys:   binary.LittleEndian.Uint64(buf[72:]),
		NumStrings:    binary.LittleEndian.Uint64(buf[80:]),
	}
}

func putSectionEntry(buf []byte, e SectionEntry) {
	binary.LittleEndian.PutUint64(buf[0:], e.Offset)
	binary.LittleEndian.PutUint64(buf[8:], e.Length)
	binary.LittleEndian.PutUint32(buf[16:], uint32(e.Compression))
	binary.LittleEndian.PutUint32(buf[20:], e.UncompressedSize)
}

func getSectionEntry(buf []byte) SectionEntry {
	return SectionEntry{
		Offset:           binary.LittleEndian.Uint64(buf[0:]),
		Length:           binary.LittleEndian.Uint64(buf[8:]),
		Compression:      Compression(binary.LittleEndian.Uint32(buf[16:])),
		UncompressedSize: binary.LittleEndian.Uint32(buf[20:]),
	}
}
