// Package device answers two questions about the filesystem under a
// mount point: how full is it, and which block device backs it.
package device

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Usage is a point-in-time snapshot of a filesystem's capacity.
// All values are in bytes.
type Usage struct {
	Total uint64
	Used  uint64
	Avail uint64
}

// Percent returns the occupancy as an integer percentage, rounded up
// the same way df does, so a filesystem with any usage at all never
// reports 0% and only a completely full one reports 100%.
func (u Usage) Percent() int {
	denom := u.Used + u.Avail
	if denom == 0 {
		return 0
	}
	return int((u.Used*100 + denom - 1) / denom)
}

// QueryFunc is the signature of an occupancy query. The production
// implementation is FS; tests substitute synthetic ones.
type QueryFunc func(path string) (Usage, error)

// FS reports the usage of the filesystem containing path via statfs.
func FS(path string) (Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Usage{}, fmt.Errorf("statfs %s: %w", path, err)
	}

	bsize := uint64(st.Bsize)
	total := st.Blocks * bsize
	free := st.Bfree * bsize
	return Usage{
		Total: total,
		Used:  total - free,
		Avail: st.Bavail * bsize,
	}, nil
}
