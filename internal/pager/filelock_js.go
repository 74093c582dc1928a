//go:build js || wasip1

package pager

import "os"

// fileLock is a no-op on js/wasm targets: there is no OS-level advisory
// locking primitive, and the playground/WASM build is always single-process.
type fileLock struct{}

func lockFile(f *os.File, readOnly bool) (*fileLock, error) {
	return &fileLock{}, nil
}

func (fl *fileLock) unlock(f *os.File) error {
	return nil
}
