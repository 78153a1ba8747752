package services

import (
	"golang.org/x/sys/unix"
)

// freeSpace returns the bytes available to unprivileged writers on the
// filesystem holding path.
func freeSpace(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * st.Bsize, nil
}
