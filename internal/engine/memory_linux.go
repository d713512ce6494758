//go:build linux

package engine

import (
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// cgroupMemoryMax is the cgroup v2 hard limit for the calling process.
const cgroupMemoryMax = "/sys/fs/cgroup/memory.max"

// memoryLimit reports total RAM from sysinfo(2), lowered to the cgroup v2
// memory.max when one is set.
func memoryLimit() (int64, bool) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, false
	}
	unit := int64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	total := mulSat(int64(info.Totalram), unit)
	if limit, ok := readCgroupLimit(cgroupMemoryMax); ok && limit < total {
		total = limit
	}
	return total, true
}

// readCgroupLimit parses a cgroup v2 memory.max file. "max" and unreadable
// files mean no limit.
func readCgroupLimit(path string) (int64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
