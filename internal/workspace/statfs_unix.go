//go:build unix

package workspace

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// FreeBytes returns the space available to unprivileged users at path.
func FreeBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, errors.Wrapf(err, "statfs %s", path)
	}
	return uint64(stat.Bavail) * uint64(stat.Bsize), nil
}
