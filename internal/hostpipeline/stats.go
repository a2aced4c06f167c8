package hostpipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/cpu"
)

// StatsSnapshot is a point-in-time copy of the one-second aggregation
// window.
type StatsSnapshot struct {
	FPS            float64
	MegabitsPerSec float64
	AvgFrameAgeMs  float64
	FramesEncoded  uint64
	FramesDropped  uint64
	HostCPUPercent float64
	Uptime         time.Duration
}

// String renders a human-readable one-line summary, using go-humanize for
// the byte-rate portion rather than hand-rolled unit formatting.
func (s StatsSnapshot) String() string {
	bps := humanize.Bytes(uint64(s.MegabitsPerSec * 1_000_000 / 8))
	return fmt.Sprintf("fps=%.1f rate=%s/s age=%.1fms cpu=%.0f%% encoded=%d dropped=%d",
		s.FPS, bps, s.AvgFrameAgeMs, s.HostCPUPercent, s.FramesEncoded, s.FramesDropped)
}

// statsAggregator samples frames-per-second, bitrate-megabits-per-second
// and average-frame-age-at-send over a rolling one-second window, enriched
// with host CPU utilization via gopsutil.
type statsAggregator struct {
	mu sync.Mutex

	windowStart    time.Time
	framesInWindow uint64
	bytesInWindow  uint64
	ageSumMs       float64

	totalEncoded uint64
	totalDropped uint64
	startTime    time.Time

	latest StatsSnapshot
}

func newStatsAggregator() *statsAggregator {
	now := time.Now()
	return &statsAggregator{windowStart: now, startTime: now}
}

// recordSend is called once per frame handed to the server, with the
// encoded size and the age (send time minus capture timestamp) in
// milliseconds.
func (a *statsAggregator) recordSend(size int, ageMs float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.framesInWindow++
	a.bytesInWindow += uint64(size)
	a.ageSumMs += ageMs
	a.totalEncoded++
}

func (a *statsAggregator) recordDrop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalDropped++
}

// tick closes out the current one-second window, producing a snapshot, and
// starts a new window. Intended to be called from a 1-second ticker.
func (a *statsAggregator) tick() StatsSnapshot {
	a.mu.Lock()
	elapsed := time.Since(a.windowStart).Seconds()
	frames := a.framesInWindow
	bytes := a.bytesInWindow
	ageSum := a.ageSumMs
	a.framesInWindow = 0
	a.bytesInWindow = 0
	a.ageSumMs = 0
	a.windowStart = time.Now()
	totalEncoded := a.totalEncoded
	totalDropped := a.totalDropped
	startTime := a.startTime
	a.mu.Unlock()

	if elapsed <= 0 {
		elapsed = 1
	}

	var avgAge float64
	if frames > 0 {
		avgAge = ageSum / float64(frames)
	}

	snap := StatsSnapshot{
		FPS:            float64(frames) / elapsed,
		MegabitsPerSec: float64(bytes) * 8 / 1_000_000 / elapsed,
		AvgFrameAgeMs:  avgAge,
		FramesEncoded:  totalEncoded,
		FramesDropped:  totalDropped,
		HostCPUPercent: sampleHostCPU(),
		Uptime:         time.Since(startTime),
	}

	a.mu.Lock()
	a.latest = snap
	a.mu.Unlock()
	return snap
}

func (a *statsAggregator) Snapshot() StatsSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latest
}

// sampleHostCPU returns the host-wide CPU percentage from gopsutil, or 0
// when the sample fails (as it may in a sandboxed environment).
var sampleHostCPU = func() float64 {
	percents, err := cpu.Percent(0, false)
	if err != nil || len(percents) == 0 {
		return 0
	}
	return percents[0]
}
