package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mwiater/edgeprompt/internal/logging"
)

// DefaultInterval is the sampling period used when none is configured.
const DefaultInterval = 250 * time.Millisecond

// ErrCollectorRunning is returned by Start on a collector that is already sampling.
var ErrCollectorRunning = errors.New("metrics collector already running")

// Collector samples process CPU and memory on a fixed interval between Start
// and Stop. Readings are process-wide, so concurrent runs share them.
type Collector struct {
	sampler Sampler
	now     func() time.Time

	mu       sync.Mutex
	running  bool
	degraded bool
	start    time.Time
	last     Reading
	lastAt   time.Time
	samples  []Sample
	cpu      RunningStat
	mem      RunningStat

	stop chan struct{}
	done chan struct{}
}

// NewCollector returns a Collector reading from s. A nil s collects duration only.
func NewCollector(s Sampler) *Collector {
	return &Collector{sampler: s, now: time.Now}
}

// Start begins sampling every interval. A sampler that fails its first read
// degrades the collector to duration-only instead of failing.
func (c *Collector) Start(interval time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrCollectorRunning
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	c.running = true
	c.start = c.now()
	c.samples = nil
	c.cpu, c.mem = RunningStat{}, RunningStat{}
	c.degraded = c.sampler == nil
	if !c.degraded {
		r, err := c.sampler.Read()
		if err != nil {
			logging.LogWarning("metrics: sampling unavailable, recording duration only: %v", err)
			c.degraded = true
		} else {
			c.last, c.lastAt = r, c.start
		}
	}

	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	if c.degraded {
		close(c.done)
		return nil
	}
	go c.loop(interval, c.stop, c.done)
	return nil
}

func (c *Collector) loop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.sampleLocked()
			c.mu.Unlock()
		}
	}
}

func (c *Collector) sampleLocked() {
	r, err := c.sampler.Read()
	if err != nil {
		return
	}
	at := c.now()
	var cpuPct float64
	if wall := at.Sub(c.lastAt).Seconds(); wall > 0 {
		cpuPct = max(0, (r.CPUSeconds-c.last.CPUSeconds)/wall*100)
	}
	memMB := float64(r.RSSBytes) / (1024 * 1024)
	c.last, c.lastAt = r, at

	c.samples = append(c.samples, Sample{
		TimestampMs: at.UnixMilli(),
		CPUPercent:  cpuPct,
		MemoryMB:    memMB,
	})
	c.cpu.Add(cpuPct)
	c.mem.Add(memMB)
}

// Stop halts sampling, takes a final reading, and summarizes the window.
// Calling Stop on a collector that is not running returns a zero Summary.
func (c *Collector) Stop() Summary {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return Summary{}
	}
	c.running = false
	close(c.stop)
	done := c.done
	c.mu.Unlock()

	<-done

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.degraded {
		c.sampleLocked()
	}
	s := Summary{
		DurationMs:  c.now().Sub(c.start).Milliseconds(),
		SampleCount: len(c.samples),
		Degraded:    c.degraded,
	}
	if c.cpu.Count > 0 {
		s.AvgCPUPercent = ptr(c.cpu.Mean)
		s.MaxCPUPercent = ptr(c.cpu.Max)
		s.AvgMemoryMB = ptr(c.mem.Mean)
		s.MaxMemoryMB = ptr(c.mem.Max)
	}
	return s
}

// Samples returns a copy of the readings taken so far.
func (c *Collector) Samples() []Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Sample, len(c.samples))
	copy(out, c.samples)
	return out
}

// Track samples while fn runs and always stops the collector, including when
// fn returns an error or panics.
func Track(ctx context.Context, s Sampler, interval time.Duration, fn func(context.Context) error) (summary Summary, err error) {
	c := NewCollector(s)
	if startErr := c.Start(interval); startErr != nil {
		return Summary{}, startErr
	}
	defer func() { summary = c.Stop() }()
	return Summary{}, fn(ctx)
}

func ptr(v float64) *float64 { return &v }
