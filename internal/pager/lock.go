package pager

// LockRangeStart and LockRangeLen define the reserved byte range inside the
// database file that the advisory file lock spans (spec.md §5/§9). The
// pager must never allocate or write pages overlapping this range.
const (
	LockRangeStart int64 = 1 << 30 // 1 GiB
	LockRangeLen   int64 = MaxPageSize
)

// RangeOverlapsLock reports whether the byte range [off, off+n) intersects
// the reserved lock-byte range.
func RangeOverlapsLock(off, n int64) bool {
	end := off + n
	return off < LockRangeStart+LockRangeLen && end > LockRangeStart
}
