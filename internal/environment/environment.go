// Package environment applies simulated hardware profiles to the current
// process for the duration of a single run.
package environment

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"runtime/debug"
	"sync"
)

// Profile is a simulated hardware budget. Zero fields leave that resource
// unconstrained.
type Profile struct {
	ID            string `json:"id" validate:"required"`
	MemoryLimitMB int    `json:"memoryLimitMb" validate:"gte=0"`
	CPUCores      int    `json:"cpuCores" validate:"gte=0"`
}

// Constrained reports whether the profile limits anything.
func (p Profile) Constrained() bool {
	return p.MemoryLimitMB > 0 || p.CPUCores > 0
}

// HostInfo is the capacity of the machine running the pipeline.
type HostInfo struct {
	TotalMemoryMB int
	CPUCores      int
}

// ResourceConstraintError reports a profile that could not be enforced. The
// run continues unconstrained; the error is a warning for the run record.
type ResourceConstraintError struct {
	ProfileID string
	Reason    string
}

func (e *ResourceConstraintError) Error() string {
	return fmt.Sprintf("hardware profile %q not enforced: %s", e.ProfileID, e.Reason)
}

// Scope is an applied profile. Release restores the previous limits and is
// safe to call more than once.
type Scope struct {
	Profile  Profile
	Enforced bool
	// Warning is set when the profile could not be enforced.
	Warning *ResourceConstraintError

	once    sync.Once
	release func()
}

// NewScope returns a scope for p that calls release at most once.
func NewScope(p Profile, enforced bool, release func()) *Scope {
	return &Scope{Profile: p, Enforced: enforced, release: release}
}

// Release restores the limits in place before the scope was acquired.
func (s *Scope) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}

// limiter abstracts the process-wide knobs so tests can observe them.
type limiter interface {
	SetMaxProcs(n int) int
	SetMemoryLimit(bytes int64) int64
}

type runtimeLimiter struct{}

func (runtimeLimiter) SetMaxProcs(n int) int            { return runtime.GOMAXPROCS(n) }
func (runtimeLimiter) SetMemoryLimit(b int64) int64 { return debug.SetMemoryLimit(b) }

// Manager hands out profile scopes. GOMAXPROCS and the soft memory limit are
// process-wide, so at most one enforced scope is active at a time; Acquire
// blocks until the previous one is released.
type Manager struct {
	host    HostInfo
	hostErr error
	limits  limiter
	slot    chan struct{}
}

// NewManager probes the host and returns a Manager.
func NewManager() *Manager {
	host, err := ProbeHost()
	return newManager(host, err, runtimeLimiter{})
}

func newManager(host HostInfo, hostErr error, l limiter) *Manager {
	return &Manager{
		host:    host,
		hostErr: hostErr,
		limits:  l,
		slot:    make(chan struct{}, 1),
	}
}

// Host returns the probed host capacity.
func (m *Manager) Host() (HostInfo, error) { return m.host, m.hostErr }

// Acquire applies p and returns its scope. It only fails when ctx ends while
// waiting for another enforced scope. A profile that cannot be enforced
// yields an unenforced scope carrying a ResourceConstraintError warning.
func (m *Manager) Acquire(ctx context.Context, p Profile) (*Scope, error) {
	if !p.Constrained() {
		return &Scope{Profile: p}, nil
	}
	if warn := m.check(p); warn != nil {
		return &Scope{Profile: p, Warning: warn}, nil
	}

	select {
	case m.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	prevProcs := -1
	prevMem := int64(-1)
	if p.CPUCores > 0 {
		prevProcs = m.limits.SetMaxProcs(p.CPUCores)
	}
	if p.MemoryLimitMB > 0 {
		prevMem = m.limits.SetMemoryLimit(int64(p.MemoryLimitMB) * 1024 * 1024)
	}

	return NewScope(p, true, func() {
		if prevProcs > 0 {
			m.limits.SetMaxProcs(prevProcs)
		}
		if prevMem >= 0 {
			m.limits.SetMemoryLimit(prevMem)
		}
		<-m.slot
	}), nil
}

func (m *Manager) check(p Profile) *ResourceConstraintError {
	if m.hostErr != nil {
		return &ResourceConstraintError{ProfileID: p.ID, Reason: m.hostErr.Error()}
	}
	if p.CPUCores > 0 && m.host.CPUCores > 0 && p.CPUCores > m.host.CPUCores {
		return &ResourceConstraintError{
			ProfileID: p.ID,
			Reason:    fmt.Sprintf("profile wants %d cores, host has %d", p.CPUCores, m.host.CPUCores),
		}
	}
	if p.MemoryLimitMB > 0 && m.host.TotalMemoryMB > 0 && p.MemoryLimitMB > m.host.TotalMemoryMB {
		return &ResourceConstraintError{
			ProfileID: p.ID,
			Reason:    fmt.Sprintf("profile wants %d MB, host has %d MB", p.MemoryLimitMB, m.host.TotalMemoryMB),
		}
	}
	if int64(p.MemoryLimitMB) > math.MaxInt64/(1024*1024) {
		return &ResourceConstraintError{ProfileID: p.ID, Reason: "memory limit overflows"}
	}
	return nil
}
