package metrics

import (
	"fmt"

	"github.com/prometheus/procfs"
)

// Reading is a raw process resource reading.
type Reading struct {
	// CPUSeconds is cumulative user+system CPU time.
	CPUSeconds float64
	// RSSBytes is the resident set size.
	RSSBytes uint64
}

// Sampler reads current process resource usage.
type Sampler interface {
	Read() (Reading, error)
}

// ProcSampler reads /proc/self/stat through procfs.
type ProcSampler struct {
	proc procfs.Proc
}

// NewProcSampler opens the current process in the default /proc mount. It
// fails on platforms without procfs.
func NewProcSampler() (*ProcSampler, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}
	proc, err := fs.Self()
	if err != nil {
		return nil, fmt.Errorf("open /proc/self: %w", err)
	}
	return &ProcSampler{proc: proc}, nil
}

// Read returns the current CPU time and resident memory.
func (s *ProcSampler) Read() (Reading, error) {
	stat, err := s.proc.Stat()
	if err != nil {
		return Reading{}, fmt.Errorf("read /proc/self/stat: %w", err)
	}
	return Reading{
		CPUSeconds: stat.CPUTime(),
		RSSBytes:   uint64(stat.ResidentMemory()),
	}, nil
}

// DefaultSampler returns a ProcSampler, or nil when procfs is unavailable.
// A nil Sampler makes collectors report duration only.
func DefaultSampler() Sampler {
	s, err := NewProcSampler()
	if err != nil {
		return nil
	}
	return s
}
