package pager

import (
	"fmt"

	"github.com/edsrzf/mmap-go"
)

// MappedRegion is a zero-copy view of [startPage, startPage+count) when the
// pager is backed by a real file descriptor. In-memory pagers hand back a
// private copy instead, since there is no descriptor to map.
type MappedRegion struct {
	bytes   []byte
	mm      mmap.MMap // non-nil only for real-file mappings
	private bool
}

// Bytes returns the mapped (or copied, for in-memory pagers) byte view.
func (r *MappedRegion) Bytes() []byte { return r.bytes }

// Close unmaps a real mapping; a no-op for private copies.
func (r *MappedRegion) Close() error {
	if r.mm != nil {
		return r.mm.Unmap()
	}
	return nil
}

type mmapKey struct {
	start uint64
	count uint64
}

// mmapRange implements Pager.MMapRange. The caller holds p.mu (read lock is
// enough: mapping is read-only metadata, actual page bytes come from the OS).
func (p *Pager) mmapRange(startPage, count uint64) (*MappedRegion, error) {
	key := mmapKey{start: startPage, count: count}

	p.mmapMu.Lock()
	defer p.mmapMu.Unlock()
	if cached, ok := p.mmapCache[key]; ok {
		return cached, nil
	}

	off := int64(startPage) * int64(p.pageSize)
	length := int64(count) * int64(p.pageSize)

	if p.osFile == nil {
		region := &MappedRegion{bytes: p.mem.Bytes(off, length), private: true}
		p.mmapCache[key] = region
		return region, nil
	}

	m, err := mmap.MapRegion(p.osFile, int(length), mmap.RDONLY, 0, off)
	if err != nil {
		return nil, fmt.Errorf("pager: mmap range [%d,%d): %w", startPage, startPage+count, err)
	}
	region := &MappedRegion{bytes: []byte(m), mm: m}
	p.mmapCache[key] = region
	return region, nil
}
