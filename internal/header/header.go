// Package header parses and serializes page 0 of a raydb file: the
// CRC-validated, fixed-offset commit anchor described in spec.md §4.2/§6.1.
// Writing the header is the sole commit point in the system — nothing
// downstream is durable until the header referencing it has been fsync'd.
package header

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// Size of the fixed header fields, ending right before HeaderCRC.
const FixedSize = 176

// Field byte offsets from the start of page 0 (spec.md §6.1).
const (
	offMagic                = 0
	offPageSize             = 16
	offVersion              = 20
	offMinReaderVersion     = 24
	offFlags                = 28
	offChangeCounter        = 32
	offDbSizePages          = 40
	offSnapshotStartPage    = 48
	offSnapshotPageCount    = 56
	offWalStartPage         = 64
	offWalPageCount         = 72
	offWalHead              = 80
	offWalTail              = 88
	offActiveSnapshotGen    = 96
	offPrevSnapshotGen      = 104
	offMaxNodeID            = 112
	offNextTxID             = 120
	offLastCommitTs         = 128
	offSchemaCookie         = 136
	offWalPrimaryHead       = 144
	offWalSecondaryHead     = 152
	offActiveWalRegion      = 160
	offCheckpointInProgress = 161
	offReserved             = 162
	offHeaderCRC            = 176
)

// ReservedSize is the span of the reserved padding field.
const ReservedSize = offHeaderCRC - offReserved // 14 bytes

// Magic identifies a raydb single-file database. 16 bytes, NUL-padded.
var Magic = [16]byte{'r', 'a', 'y', 'd', 'b', '-', 's', 'n', 'a', 'p', 'v', '2', 0, 0, 0, 0}

// CurrentVersion is the format version this package writes.
const CurrentVersion = 2

// MinReaderVersion is the oldest reader version this package can still be
// read by; bump only on a breaking format change.
const MinReaderVersion = 2

// Region identifies which WAL region is currently receiving writes.
type Region uint8

const (
	RegionPrimary   Region = 0
	RegionSecondary Region = 1
)

// Header mirrors page 0's fixed layout.
type Header struct {
	PageSize         uint32
	Version          uint32
	MinReaderVersion uint32
	Flags            uint32

	ChangeCounter uint64
	DbSizePages   uint64

	SnapshotStartPage uint64
	SnapshotPageCount uint64

	WalStartPage uint64
	WalPageCount uint64
	WalHead      uint64 // legacy, kept for format compatibility
	WalTail      uint64 // legacy, kept for format compatibility

	ActiveSnapshotGen uint64
	PrevSnapshotGen   uint64

	MaxNodeID    uint64
	NextTxID     uint64
	LastCommitTs uint64
	SchemaCookie uint64

	// Dual-WAL V2 fields.
	WalPrimaryHead       uint64
	WalSecondaryHead     uint64
	ActiveWalRegion      Region
	CheckpointInProgress bool
}

// Error kinds surfaced while parsing a header; see Kind in the raydb package.
var (
	ErrBadMagic          = errors.New("header: bad magic")
	ErrUnsupportedSize   = errors.New("header: unsupported page size")
	ErrVersionTooNew     = errors.New("header: minReaderVersion exceeds supported version")
	ErrChecksumMismatch  = errors.New("header: checksum mismatch")
	ErrBufferTooSmall    = errors.New("header: buffer smaller than a page")
)

// New builds a fresh header for a newly created database.
func New(pageSize uint32) *Header {
	return &Header{
		PageSize:         pageSize,
		Version:          CurrentVersion,
		MinReaderVersion: MinReaderVersion,
		DbSizePages:      1, // page 0 itself
		ActiveWalRegion:  RegionPrimary,
	}
}

// Parse validates and decodes page 0. skipFooterCRC permits trusted reads
// (e.g. of data this process just wrote) to skip the page-end checksum.
func Parse(buf []byte, skipFooterCRC bool) (*Header, error) {
	if len(buf) < FixedSize+4 {
		return nil, ErrBufferTooSmall
	}
	if string(buf[offMagic:offMagic+16]) != string(Magic[:]) {
		return nil, ErrBadMagic
	}

	h := &Header{}
	h.PageSize = binary.LittleEndian.Uint32(buf[offPageSize:])
	h.Version = binary.LittleEndian.Uint32(buf[offVersion:])
	h.MinReaderVersion = binary.LittleEndian.Uint32(buf[offMinReaderVersion:])
	h.Flags = binary.LittleEndian.Uint32(buf[offFlags:])
	h.ChangeCounter = binary.LittleEndian.Uint64(buf[offChangeCounter:])
	h.DbSizePages = binary.LittleEndian.Uint64(buf[offDbSizePages:])
	h.SnapshotStartPage = binary.LittleEndian.Uint64(buf[offSnapshotStartPage:])
	h.SnapshotPageCount = binary.LittleEndian.Uint64(buf[offSnapshotPageCount:])
	h.WalStartPage = binary.LittleEndian.Uint64(buf[offWalStartPage:])
	h.WalPageCount = binary.LittleEndian.Uint64(buf[offWalPageCount:])
	h.WalHead = binary.LittleEndian.Uint64(buf[offWalHead:])
	h.WalTail = binary.LittleEndian.Uint64(buf[offWalTail:])
	h.ActiveSnapshotGen = binary.LittleEndian.Uint64(buf[offActiveSnapshotGen:])
	h.PrevSnapshotGen = binary.LittleEndian.Uint64(buf[offPrevSnapshotGen:])
	h.MaxNodeID = binary.LittleEndian.Uint64(buf[offMaxNodeID:])
	h.NextTxID = binary.LittleEndian.Uint64(buf[offNextTxID:])
	h.LastCommitTs = binary.LittleEndian.Uint64(buf[offLastCommitTs:])
	h.SchemaCookie = binary.LittleEndian.Uint64(buf[offSchemaCookie:])
	h.WalPrimaryHead = binary.LittleEndian.Uint64(buf[offWalPrimaryHead:])
	h.WalSecondaryHead = binary.LittleEndian.Uint64(buf[offWalSecondaryHead:])
	h.ActiveWalRegion = Region(buf[offActiveWalRegion])
	h.CheckpointInProgress = buf[offCheckpointInProgress] != 0

	if !isPowerOfTwoInRange(h.PageSize) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSize, h.PageSize)
	}
	if h.MinReaderVersion > CurrentVersion {
		return nil, fmt.Errorf("%w: requires >= %d, have %d", ErrVersionTooNew, h.MinReaderVersion, CurrentVersion)
	}

	wantHeaderCRC := crc32.Checksum(buf[:offHeaderCRC], crc32c)
	gotHeaderCRC := binary.LittleEndian.Uint32(buf[offHeaderCRC:])
	if wantHeaderCRC != gotHeaderCRC {
		return nil, fmt.Errorf("%w: header CRC", ErrChecksumMismatch)
	}

	if !skipFooterCRC {
		pageSize := int(h.PageSize)
		if len(buf) < pageSize {
			return nil, ErrBufferTooSmall
		}
		wantFooterCRC := crc32.Checksum(buf[:pageSize-4], crc32c)
		gotFooterCRC := binary.LittleEndian.Uint32(buf[pageSize-4:])
		if wantFooterCRC != gotFooterCRC {
			return nil, fmt.Errorf("%w: footer CRC", ErrChecksumMismatch)
		}
	}

	return h, nil
}

var crc32c = crc32.MakeTable(crc32.Castagnoli)

// Serialize writes h into a freshly allocated page-sized buffer, computing
// both CRCs. The buffer is h.PageSize bytes long.
func (h *Header) Serialize() []byte {
	buf := make([]byte, h.PageSize)
	copy(buf[offMagic:], Magic[:])
	binary.LittleEndian.PutUint32(buf[offPageSize:], h.PageSize)
	binary.LittleEndian.PutUint32(buf[offVersion:], h.Version)
	binary.LittleEndian.PutUint32(buf[offMinReaderVersion:], h.MinReaderVersion)
	binary.LittleEndian.PutUint32(buf[offFlags:], h.Flags)
	binary.LittleEndian.PutUint64(buf[offChangeCounter:], h.ChangeCounter)
	binary.LittleEndian.PutUint64(buf[offDbSizePages:], h.DbSizePages)
	binary.LittleEndian.PutUint64(buf[offSnapshotStartPage:], h.SnapshotStartPage)
	binary.LittleEndian.PutUint64(buf[offSnapshotPageCount:], h.SnapshotPageCount)
	binary.LittleEndian.PutUint64(buf[offWalStartPage:], h.WalStartPage)
	binary.LittleEndian.PutUint64(buf[offWalPageCount:], h.WalPageCount)
	binary.LittleEndian.PutUint64(buf[offWalHead:], h.WalHead)
	binary.LittleEndian.PutUint64(buf[offWalTail:], h.WalTail)
	binary.LittleEndian.PutUint64(buf[offActiveSnapshotGen:], h.ActiveSnapshotGen)
	binary.LittleEndian.PutUint64(buf[offPrevSnapshotGen:], h.PrevSnapshotGen)
	binary.LittleEndian.PutUint64(buf[offMaxNodeID:], h.MaxNodeID)
	binary.LittleEndian.PutUint64(buf[offNextTxID:], h.NextTxID)
	binary.LittleEndian.PutUint64(buf[offLastCommitTs:], h.LastCommitTs)
	binary.LittleEndian.PutUint64(buf[offSchemaCookie:], h.SchemaCookie)
	binary.LittleEndian.PutUint64(buf[offWalPrimaryHead:], h.WalPrimaryHead)
	binary.LittleEndian.PutUint64(buf[offWalSecondaryHead:], h.WalSecondaryHead)
	buf[offActiveWalRegion] = byte(h.ActiveWalRegion)
	if h.CheckpointInProgress {
		buf[offCheckpointInProgress] = 1
	}

	headerCRC := crc32.Checksum(buf[:offHeaderCRC], crc32c)
	binary.LittleEndian.PutUint32(buf[offHeaderCRC:], headerCRC)

	footerCRC := crc32.Checksum(buf[:len(buf)-4], crc32c)
	binary.LittleEndian.PutUint32(buf[len(buf)-4:], footerCRC)

	return buf
}

// Clone returns a deep copy (Header has no pointer fields, so a value copy
// suffices, but Clone documents the intent at call sites that snapshot
// header state before a risky mutation).
func (h *Header) Clone() *Header {
	cp := *h
	return &cp
}

// UpdateForCommit advances the header to reflect a freshly committed
// transaction: bumps the change counter, records the new WAL head(s),
// allocator high-water marks, and commit timestamp.
func (h *Header) UpdateForCommit(walPrimaryHead, walSecondaryHead, maxNodeID, nextTxID uint64, nowUnixNs int64) {
	h.ChangeCounter++
	h.WalPrimaryHead = walPrimaryHead
	h.WalSecondaryHead = walSecondaryHead
	h.MaxNodeID = maxNodeID
	h.NextTxID = nextTxID
	h.LastCommitTs = uint64(nowUnixNs)
}

// UpdateForCompaction advances the header to reflect a freshly built
// snapshot after a checkpoint, resetting the WAL fields.
func (h *Header) UpdateForCompaction(snapStart, snapCount, newGen uint64, nowUnixNs int64) {
	h.ChangeCounter++
	h.PrevSnapshotGen = h.ActiveSnapshotGen
	h.ActiveSnapshotGen = newGen
	h.SnapshotStartPage = snapStart
	h.SnapshotPageCount = snapCount
	h.WalPrimaryHead = 0
	h.WalSecondaryHead = 0
	h.ActiveWalRegion = RegionPrimary
	h.CheckpointInProgress = false
	h.LastCommitTs = uint64(nowUnixNs)
}

func isPowerOfTwoInRange(size uint32) bool {
	if size < 4096 || size > 65536 {
		return false
	}
	return size&(size-1) == 0
}
