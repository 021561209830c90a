//go:build !windows

package sitearchive

import "golang.org/x/sys/unix"

// availableSpace returns the bytes available to the current user on the
// filesystem containing path.
func availableSpace(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}
