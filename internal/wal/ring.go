package wal

import (
	"errors"
	"fmt"

	"github.com/raydb/raydb/internal/header"
	"github.com/raydb/raydb/internal/pager"
)

// ErrRegionFull is returned by WriteRecord when the active region has no
// room left for the frame; the caller must call SwitchRegion and retry.
var ErrRegionFull = errors.New("wal: active region full")

// region describes one half of the dual-region ring as a page-addressed
// byte span within the shared database file.
type region struct {
	startPage uint64
	pageCount uint64
	head      uint64 // bytes written so far, relative to startPage
}

func (r region) capacityBytes(pageSize uint32) int64 {
	return int64(r.pageCount) * int64(pageSize)
}

// Buffer is the dual-region WAL ring described in spec.md §4.3: writes
// append to whichever region is active; when it fills, the writer switches
// to the other region so a background checkpoint can compact the first one
// without blocking new transactions.
type Buffer struct {
	pgr      *pager.Pager
	pageSize uint32

	primary   region
	secondary region
	active    header.Region
}

// NewBuffer wires a ring buffer over the page ranges recorded in the
// database header.
func NewBuffer(pgr *pager.Pager, primaryStart, primaryPages, secondaryStart, secondaryPages uint64, active header.Region, primaryHead, secondaryHead uint64) *Buffer {
	return &Buffer{
		pgr:      pgr,
		pageSize: pgr.PageSize(),
		primary:  region{startPage: primaryStart, pageCount: primaryPages, head: primaryHead},
		secondary: region{
			startPage: secondaryStart,
			pageCount: secondaryPages,
			head:      secondaryHead,
		},
		active: active,
	}
}

// ActiveRegion reports which region new writes land in.
func (b *Buffer) ActiveRegion() header.Region { return b.active }

// Capacities returns the (primary, secondary) region sizes in bytes, for
// diagnostics callers computing fill fraction alongside Heads.
func (b *Buffer) Capacities() (primaryBytes, secondaryBytes int64) {
	return b.primary.capacityBytes(b.pageSize), b.secondary.capacityBytes(b.pageSize)
}

// Heads returns the current (primary, secondary) write offsets, the values
// persisted into the header on every commit.
func (b *Buffer) Heads() (primaryHead, secondaryHead uint64) {
	return b.primary.head, b.secondary.head
}

func (b *Buffer) activeRegionPtr() *region {
	if b.active == header.RegionSecondary {
		return &b.secondary
	}
	return &b.primary
}

func (b *Buffer) inactiveRegionPtr() *region {
	if b.active == header.RegionSecondary {
		return &b.primary
	}
	return &b.secondary
}

// WriteRecord appends rec's frame to the active region. It returns
// ErrRegionFull (after writing a skip marker over the remainder of the
// region, if any bytes remain) when the frame does not fit; the caller is
// expected to call SwitchRegion and retry.
func (b *Buffer) WriteRecord(rec Record) error {
	frame := Encode(rec)
	active := b.activeRegionPtr()
	capacity := active.capacityBytes(b.pageSize)
	remaining := capacity - int64(active.head)

	if int64(len(frame)) > remaining {
		if remaining >= 8 {
			marker := EncodeSkipMarker(int(remaining))
			if err := b.writeRegionBytes(active, int64(active.head), marker); err != nil {
				return err
			}
		}
		active.head = uint64(capacity)
		return ErrRegionFull
	}

	if err := b.writeRegionBytes(active, int64(active.head), frame); err != nil {
		return err
	}
	active.head += uint64(len(frame))
	return nil
}

// SwitchRegion makes the currently-inactive region active and resets its
// write head to zero, so the region that just filled up is left untouched
// for the checkpointer to compact in the background.
func (b *Buffer) SwitchRegion() {
	next := b.inactiveRegionPtr()
	next.head = 0
	if b.active == header.RegionPrimary {
		b.active = header.RegionSecondary
	} else {
		b.active = header.RegionPrimary
	}
}

// ResetAfterCheckpoint returns both regions to empty and active=primary,
// called once a blocking or background checkpoint has folded the WAL's
// contents into a new snapshot.
func (b *Buffer) ResetAfterCheckpoint() {
	b.primary.head = 0
	b.secondary.head = 0
	b.active = header.RegionPrimary
}

// ScanRegion decodes records from the start of the given region up to its
// recorded head, in append order, stopping at the first skip marker,
// truncated frame or bad checksum.
func (b *Buffer) ScanRegion(active header.Region) ([]Record, error) {
	var r region
	if active == header.RegionSecondary {
		r = b.secondary
	} else {
		r = b.primary
	}

	buf, err := b.readRegionBytes(&r, 0, int64(r.head))
	if err != nil {
		return nil, err
	}

	var records []Record
	offset := 0
	for offset < len(buf) {
		rec, size, err := Decode(buf[offset:])
		if err != nil {
			// Skip marker, truncated frame, or a bad checksum: nothing
			// meaningful follows in this region, so stop here. This
			// mirrors the teacher's crash-safe "stop at first bad
			// record" recovery scan.
			break
		}
		records = append(records, rec)
		offset += size
	}
	return records, nil
}

// readRegionBytes reads length bytes starting at byteOff within region r,
// crossing page boundaries as needed.
func (b *Buffer) readRegionBytes(r *region, byteOff, length int64) ([]byte, error) {
	out := make([]byte, length)
	ps := int64(b.pageSize)
	remaining := length
	pos := byteOff
	written := int64(0)
	for remaining > 0 {
		pageIdx := r.startPage + uint64(pos/ps)
		inPage := pos % ps
		n := ps - inPage
		if n > remaining {
			n = remaining
		}
		page, err := b.pgr.ReadPage(pageIdx)
		if err != nil {
			return nil, fmt.Errorf("wal: read region page %d: %w", pageIdx, err)
		}
		copy(out[written:written+n], page[inPage:inPage+n])
		pos += n
		written += n
		remaining -= n
	}
	return out, nil
}

// writeRegionBytes writes data starting at byteOff within region r,
// read-modify-writing any page it only partially covers.
func (b *Buffer) writeRegionBytes(r *region, byteOff int64, data []byte) error {
	ps := int64(b.pageSize)
	remaining := int64(len(data))
	pos := byteOff
	read := int64(0)
	for remaining > 0 {
		pageIdx := r.startPage + uint64(pos/ps)
		inPage := pos % ps
		n := ps - inPage
		if n > remaining {
			n = remaining
		}
		var page []byte
		if n == ps {
			page = make([]byte, ps)
		} else {
			existing, err := b.pgr.ReadPage(pageIdx)
			if err != nil {
				return fmt.Errorf("wal: read-modify-write page %d: %w", pageIdx, err)
			}
			page = existing
		}
		copy(page[inPage:inPage+n], data[read:read+n])
		if err := b.pgr.WritePage(pageIdx, page); err != nil {
			return fmt.Errorf("wal: write region page %d: %w", pageIdx, err)
		}
		pos += n
		read += n
		remaining -= n
	}
	return nil
}
