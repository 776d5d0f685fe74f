package profiler

import (
	"time"

	"github.com/Carmen-Shannon/oxy-editor/engine/renderer/vram"
)

// ProfilerBuilderOption is a functional option applied during construction via NewProfiler.
type ProfilerBuilderOption func(*Profiler)

// WithInterval sets how often a report is produced.
//
// Parameters:
//   - d: the report interval
//
// Returns:
//   - ProfilerBuilderOption: a function that applies the interval option
func WithInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.updateInterval = d
	}
}

// WithRenderStats adds draw call, vertex and triangle counts to each report.
func WithRenderStats(stats RenderStats) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.stats = stats
	}
}

// WithVRAMTracker adds the tracker's per-category totals to each report.
func WithVRAMTracker(tracker vram.Tracker) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.tracker = tracker
	}
}

// WithDeviceMemory adds the driver's memory report to each report.
func WithDeviceMemory(device DeviceMemory) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.device = device
	}
}

// WithQuiet disables logging; reports are still available from Last.
func WithQuiet(quiet bool) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.quiet = quiet
	}
}
