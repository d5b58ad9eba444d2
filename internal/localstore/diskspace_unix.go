//go:build !windows

package localstore

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// getDiskFreeSpace returns the available bytes on the filesystem holding
// the given path.
func getDiskFreeSpace(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}

	// Validate that Bsize is positive to avoid overflow when converting to uint64
	if stat.Bsize <= 0 {
		return 0, fmt.Errorf("localstore: invalid block size %d from filesystem", stat.Bsize)
	}

	bsize := uint64(stat.Bsize)
	return stat.Bavail * bsize, nil
}
