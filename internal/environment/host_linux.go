//go:build linux

package environment

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// ProbeHost reads total memory from sysinfo(2) and the usable CPU count.
func ProbeHost() (HostInfo, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return HostInfo{CPUCores: runtime.NumCPU()}, fmt.Errorf("sysinfo: %w", err)
	}
	total := uint64(info.Totalram) * uint64(info.Unit)
	return HostInfo{
		TotalMemoryMB: int(total / (1024 * 1024)),
		CPUCores:      runtime.NumCPU(),
	}, nil
}
