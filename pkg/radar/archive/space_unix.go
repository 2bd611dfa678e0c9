//go:build unix

package archive

import "golang.org/x/sys/unix"

// freeBytes returns the bytes available to unprivileged users on the filesystem holding path.
func freeBytes(path string) (uint64, bool, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, false, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), true, nil //nolint:unconvert // field widths differ per platform
}
