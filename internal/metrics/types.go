// internal/metrics/types.go
package metrics

import "math"

// Sample is one resource reading taken while a run executes.
type Sample struct {
	TimestampMs int64   `json:"timestampMs"`
	CPUPercent  float64 `json:"cpuPercent"`
	MemoryMB    float64 `json:"memoryMb"`
}

// Summary describes resource use over one collection window. The CPU and
// memory fields are nil when the platform could not be sampled.
type Summary struct {
	DurationMs    int64    `json:"durationMs"`
	SampleCount   int      `json:"sampleCount"`
	AvgCPUPercent *float64 `json:"avgCpuPercent,omitempty"`
	MaxCPUPercent *float64 `json:"maxCpuPercent,omitempty"`
	AvgMemoryMB   *float64 `json:"avgMemoryMb,omitempty"`
	MaxMemoryMB   *float64 `json:"maxMemoryMb,omitempty"`
	Degraded      bool     `json:"degraded,omitempty"`
}

// RunningStat holds the necessary values for online calculation of mean, variance, and stddev.
// It uses Welford's online algorithm.
type RunningStat struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	M2    float64 `json:"-"` // Sum of squares of differences from the current mean
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Add folds value into the statistic.
func (rs *RunningStat) Add(value float64) {
	rs.Count++
	if rs.Count == 1 {
		rs.Min = value
		rs.Max = value
	} else {
		if value < rs.Min {
			rs.Min = value
		}
		if value > rs.Max {
			rs.Max = value
		}
	}

	delta := value - rs.Mean
	rs.Mean += delta / float64(rs.Count)
	delta2 := value - rs.Mean
	rs.M2 += delta * delta2
}

// StdDev returns the sample standard deviation, or 0 with fewer than two values.
func (rs RunningStat) StdDev() float64 {
	if rs.Count < 2 {
		return 0
	}
	return math.Sqrt(rs.M2 / float64(rs.Count-1))
}
