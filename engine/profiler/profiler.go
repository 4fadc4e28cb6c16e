package profiler

import (
	"log/slog"
	"runtime"
	"time"
)

// Sample holds how long each stage of one frame took on the host.
type Sample struct {
	Await, Size, Grow, Rebind, Record, Submit time.Duration
}

func (s Sample) add(o Sample) Sample {
	return Sample{
		Await:  s.Await + o.Await,
		Size:   s.Size + o.Size,
		Grow:   s.Grow + o.Grow,
		Rebind: s.Rebind + o.Rebind,
		Record: s.Record + o.Record,
		Submit: s.Submit + o.Submit,
	}
}

func (s Sample) div(n int) Sample {
	d := time.Duration(n)
	return Sample{
		Await:  s.Await / d,
		Size:   s.Size / d,
		Grow:   s.Grow / d,
		Rebind: s.Rebind / d,
		Record: s.Record / d,
		Submit: s.Submit / d,
	}
}

// Stats is one reporting window.
type Stats struct {
	FPS float64

	// Stages is the mean Sample over the window.
	Stages Sample

	// Failures counts frames reported as failed in the window.
	Failures int

	HeapMB      float64
	AllocRateMB float64
	SysMB       float64
	GCCount     uint32
	LastPauseUs uint64
	MaxPauseUs  uint64
}

// Profiler tracks frame rate, per-stage frame timings and memory statistics.
// Outputs stats to the log at a configurable interval.
type Profiler struct {
	logger         *slog.Logger
	now            func() time.Time
	updateInterval time.Duration

	frameCount int
	failures   int
	stageSum   Sample
	lastTime   time.Time

	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	last Stats
}

// NewProfiler creates a new Profiler. The update interval defaults to 1 second.
//
// Parameters:
//   - options: variadic list of ProfilerBuilderOption functions to configure the Profiler
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		now:            time.Now,
		updateInterval: time.Second,
	}
	for _, opt := range options {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.lastTime = p.now()
	return p
}

// Tick should be called once per frame with the frame's stage timings.
// Logs "frame stats" when the update interval has elapsed: FPS, mean stage durations, heap
// usage, allocation rate and GC pauses.
//
// Parameters:
//   - sample: the frame's stage timings
//   - failed: whether the frame failed
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick(sample Sample, failed bool) bool {
	p.frameCount++
	p.stageSum = p.stageSum.add(sample)
	if failed {
		p.failures++
	}

	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval || elapsed <= 0 {
		return false
	}

	runtime.ReadMemStats(&p.memStats)
	stats := Stats{
		FPS:      float64(p.frameCount) / elapsed.Seconds(),
		Stages:   p.stageSum.div(p.frameCount),
		Failures: p.failures,
		HeapMB:   float64(p.memStats.Alloc) / 1024 / 1024,
		SysMB:    float64(p.memStats.Sys) / 1024 / 1024,
		GCCount:  p.memStats.NumGC,
	}
	stats.AllocRateMB = float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds()

	if gcCount := p.memStats.NumGC; gcCount > 0 {
		// PauseNs is a circular buffer of the last 256 GC pauses
		stats.LastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		start := p.lastGCCount
		if gcCount-start > 256 {
			start = gcCount - 256
		}
		for i := start; i < gcCount; i++ {
			stats.MaxPauseUs = max(stats.MaxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	p.logger.Info("frame stats",
		"fps", stats.FPS,
		"failures", stats.Failures,
		"await", stats.Stages.Await,
		"size", stats.Stages.Size,
		"grow", stats.Stages.Grow,
		"rebind", stats.Stages.Rebind,
		"record", stats.Stages.Record,
		"submit", stats.Stages.Submit,
		"heap_mb", stats.HeapMB,
		"alloc_rate_mb_s", stats.AllocRateMB,
		"gc", stats.GCCount,
		"gc_last_us", stats.LastPauseUs,
		"gc_max_us", stats.MaxPauseUs,
		"sys_mb", stats.SysMB,
	)

	p.last = stats
	p.frameCount = 0
	p.failures = 0
	p.stageSum = Sample{}
	p.lastTime = currentTime
	p.lastGCCount = p.memStats.NumGC
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// Last returns the stats of the last completed window.
//
// Returns:
//   - Stats: the stats, zero before the first window completes
func (p *Profiler) Last() Stats {
	return p.last
}
