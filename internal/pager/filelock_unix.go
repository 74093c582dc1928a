//go:build !windows && !js && !wasip1

package pager

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// fileLock is an OS-level advisory lock over the reserved byte range of the
// database file, acquired with fcntl(F_SETLK) — exclusive for read-write
// handles, shared for read-only handles (spec.md §5).
type fileLock struct {
	fd       int
	shared   bool
	released bool
}

// lockFile acquires the advisory lock on path's reserved byte range.
func lockFile(f *os.File, readOnly bool) (*fileLock, error) {
	lt := unix.F_WRLCK
	if readOnly {
		lt = unix.F_RDLCK
	}
	flock := unix.Flock_t{
		Type:   int16(lt),
		Whence: int16(unix.SEEK_SET),
		Start:  LockRangeStart,
		Len:    LockRangeLen,
	}
	if err := unix.FcntlFlock(f.Fd(), unix.F_SETLK, &flock); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLocked, err)
	}
	return &fileLock{fd: int(f.Fd()), shared: readOnly}, nil
}

func (fl *fileLock) unlock(f *os.File) error {
	if fl == nil || fl.released {
		return nil
	}
	fl.released = true
	flock := unix.Flock_t{
		Type:   int16(unix.F_UNLCK),
		Whence: int16(unix.SEEK_SET),
		Start:  LockRangeStart,
		Len:    LockRangeLen,
	}
	return unix.FcntlFlock(f.Fd(), unix.F_SETLK, &flock)
}
