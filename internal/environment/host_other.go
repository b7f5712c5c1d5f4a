//go:build !linux

package environment

import (
	"errors"
	"runtime"
)

// ProbeHost cannot read total memory off Linux, so profiles are not enforced.
func ProbeHost() (HostInfo, error) {
	return HostInfo{CPUCores: runtime.NumCPU()}, errors.New("resource limits are only enforced on linux")
}
