//go:build windows

package pager

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// fileLock is an OS-level advisory lock over the reserved byte range of the
// database file, acquired with LockFileEx — exclusive for read-write
// handles, shared for read-only handles (spec.md §5).
type fileLock struct {
	handle   windows.Handle
	shared   bool
	released bool
}

func lockFile(f *os.File, readOnly bool) (*fileLock, error) {
	h := windows.Handle(f.Fd())
	var flags uint32
	if !readOnly {
		flags = windows.LOCKFILE_EXCLUSIVE_LOCK
	}
	flags |= windows.LOCKFILE_FAIL_IMMEDIATELY

	ol := new(windows.Overlapped)
	ol.Offset = uint32(LockRangeStart)
	ol.OffsetHigh = uint32(LockRangeStart >> 32)

	if err := windows.LockFileEx(h, flags, 0, uint32(LockRangeLen), uint32(LockRangeLen>>32), ol); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLocked, err)
	}
	return &fileLock{handle: h, shared: readOnly}, nil
}

func (fl *fileLock) unlock(f *os.File) error {
	if fl == nil || fl.released {
		return nil
	}
	fl.released = true
	ol := new(windows.Overlapped)
	ol.Offset = uint32(LockRangeStart)
	ol.OffsetHigh = uint32(LockRangeStart >> 32)
	return windows.UnlockFileEx(fl.handle, 0, uint32(LockRangeLen), uint32(LockRangeLen>>32), ol)
}
