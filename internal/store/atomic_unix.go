//go:build !windows

package store

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// syncDir flushes the rename of a directory entry to disk.
func syncDir(dir string) error {
	d, err := os.Open(dir) //nolint:gosec // G304: directory of the backing file
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", dir, err)
	}
	// Some network filesystems do not support fsync on directories and
	// report EINVAL.
	if err := d.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) {
		return errors.Join(fmt.Errorf("failed to sync %s: %w", dir, err), d.Close())
	}
	return d.Close()
}
