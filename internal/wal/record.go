// Package wal implements the dual-region circular write-ahead log
// (spec.md §4.3/§6.2): record framing, region scanning, and the skip
// markers used to jump past a region's tail during recovery.
package wal

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

// RecordType identifies the kind of a WAL record.
type RecordType uint8

const (
	RecBegin    RecordType = 1
	RecCommit   RecordType = 2
	RecRollback RecordType = 3
	RecNodeOp   RecordType = 4
	RecEdgeOp   RecordType = 5
	RecPropOp   RecordType = 6
	RecCatalog  RecordType = 7
)

// Flag bits stored in a record's flags byte.
const (
	FlagNone uint8 = 0
)

// skipSentinel marks a skip record: a fixed 4-byte value written in place
// of recLen whenever the remaining space in a region is too small to hold
// another real record. Scanners that read this sentinel stop there rather
// than interpreting it as a length: nothing follows it in the region.
const skipSentinel uint32 = 0xFFFFFFFF

// headerSize is the span of fields between recLen and the payload:
// type(1) + flags(1) + reserved(2) + txid(8) + payloadLen(4).
const headerSize = 16

// FrameOverhead is the number of bytes a record occupies beyond its
// payload: the 4-byte recLen prefix, the 16-byte header, and the 4-byte
// footer CRC, before 8-byte alignment padding.
const FrameOverhead = 4 + headerSize + 4

var (
	ErrTruncated       = errors.New("wal: truncated record")
	ErrChecksumInvalid = errors.New("wal: footer checksum mismatch")
	ErrSkipMarker      = errors.New("wal: position holds a skip marker, not a record")
)

var crc32c = crc32.MakeTable(crc32.Castagnoli)

// Record is a single decoded WAL entry.
type Record struct {
	Type    RecordType
	Flags   uint8
	TxID    uint64
	Payload []byte
}

// Encode serializes r into an 8-byte-aligned frame: [recLen][header][payload][footerCRC][padding].
func Encode(r Record) []byte {
	unpadded := FrameOverhead + len(r.Payload)
	total := alignUp8(unpadded)

	buf := make([]byte, total)
	recLen := uint32(headerSize + len(r.Payload) + 4) // header + payload + footer CRC, excludes recLen itself and padding
	binary.LittleEndian.PutUint32(buf[0:], recLen)
	buf[4] = byte(r.Type)
	buf[5] = r.Flags
	// buf[6:8] reserved, left zero
	binary.LittleEndian.PutUint64(buf[8:], r.TxID)
	binary.LittleEndian.PutUint32(buf[16:], uint32(len(r.Payload)))
	copy(buf[20:], r.Payload)

	footerOff := 20 + len(r.Payload)
	footerCRC := crc32.Checksum(buf[:footerOff], crc32c)
	binary.LittleEndian.PutUint32(buf[footerOff:], footerCRC)
	// remaining bytes (padding) are already zero from make([]byte, total)
	return buf
}

// Decode reads one record (or skip marker) starting at buf[0]. It returns
// the record, the total on-disk size including alignment padding, and an
// error. ErrSkipMarker is returned (with size 4, the sentinel's own width)
// when the position holds a skip sentinel rather than a record.
func Decode(buf []byte) (rec Record, size int, err error) {
	if len(buf) < 4 {
		return Record{}, 0, ErrTruncated
	}
	recLen := binary.LittleEndian.Uint32(buf[0:])
	if recLen == skipSentinel {
		return Record{}, 4, ErrSkipMarker
	}
	if recLen < headerSize+4 {
		return Record{}, 0, ErrTruncated
	}
	unpadded := 4 + int(recLen)
	if len(buf) < unpadded {
		return Record{}, 0, ErrTruncated
	}

	payloadLen := binary.LittleEndian.Uint32(buf[16:])
	footerOff := 20 + int(payloadLen)
	if unpadded < footerOff+4 {
		return Record{}, 0, ErrTruncated
	}

	wantCRC := crc32.Checksum(buf[:footerOff], crc32c)
	gotCRC := binary.LittleEndian.Uint32(buf[footerOff:])
	if wantCRC != gotCRC {
		return Record{}, 0, ErrChecksumInvalid
	}

	rec = Record{
		Type:    RecordType(buf[4]),
		Flags:   buf[5],
		TxID:    binary.LittleEndian.Uint64(buf[8:]),
		Payload: append([]byte(nil), buf[20:footerOff]...),
	}
	return rec, alignUp8(unpadded), nil
}

// EncodeSkipMarker returns a frame of exactly n bytes (n must be a
// multiple of 8 and at least 8) whose first 4 bytes are the skip
// sentinel, used to pad out the remainder of a region before the writer
// switches to the other region.
func EncodeSkipMarker(n int) []byte {
	buf := make([]byte, n)
	binary.LittleEndian.PutUint32(buf[0:], skipSentinel)
	return buf
}

func alignUp8(n int) int {
	return (n + 7) &^ 7
}
