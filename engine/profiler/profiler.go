package profiler

import (
	"fmt"
	"log"
	"runtime"
	"strings"
	"time"

	"github.com/Carmen-Shannon/oxy-editor/engine/renderer/vram"
)

// RenderStats is the draw statistics source. pipeline.RenderingPipeline satisfies it.
type RenderStats interface {
	DrawCallCount() int
	VertexCount() int
	TriangleCount() int
}

// DeviceMemory reports driver-side memory use. renderer.API satisfies it. total is 0 when the
// driver does not report it.
type DeviceMemory interface {
	QueryVRAMUsage() (used, total uint64)
}

// Report is one interval's worth of statistics.
type Report struct {
	FPS          float64
	HeapMB       float64
	AllocRateMB  float64
	GCCount      uint32
	LastPauseUs  uint64
	MaxPauseUs   uint64
	SysMB        float64
	DrawCalls    int
	Vertices     int
	Triangles    int
	VRAM         vram.Usage
	DeviceUsed   uint64
	DeviceTotal  uint64
	hasStats     bool
	hasVRAM      bool
	hasDeviceMem bool
}

const mb = 1024 * 1024

func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "FPS: %.2f | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d (last: %d µs, max: %d µs) | Sys: %.2f MB",
		r.FPS, r.HeapMB, r.AllocRateMB, r.GCCount, r.LastPauseUs, r.MaxPauseUs, r.SysMB)
	if r.hasStats {
		fmt.Fprintf(&b, " | Draws: %d | Verts: %d | Tris: %d", r.DrawCalls, r.Vertices, r.Triangles)
	}
	if r.hasVRAM {
		fmt.Fprintf(&b, " | VRAM: %.2f MB (tex %.2f, buf %.2f, fb %.2f, shader %.2f, compute %.2f)",
			float64(r.VRAM.Total())/mb,
			float64(r.VRAM.Texture)/mb, float64(r.VRAM.Buffer)/mb, float64(r.VRAM.Framebuffer)/mb,
			float64(r.VRAM.Shader)/mb, float64(r.VRAM.Compute)/mb)
	}
	if r.hasDeviceMem {
		if r.DeviceTotal > 0 {
			fmt.Fprintf(&b, " | Device: %.2f / %.2f MB", float64(r.DeviceUsed)/mb, float64(r.DeviceTotal)/mb)
		} else {
			fmt.Fprintf(&b, " | Device: %.2f MB", float64(r.DeviceUsed)/mb)
		}
	}
	return b.String()
}

// Profiler tracks frame rate, memory and render statistics for performance monitoring.
// Outputs stats to the log at a configurable interval.
type Profiler struct {
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	stats   RenderStats
	tracker vram.Tracker
	device  DeviceMemory
	quiet   bool
	last    Report
}

// NewProfiler creates a new Profiler.
// Update interval defaults to 1 second.
//
// Parameters:
//   - options: variadic list of ProfilerBuilderOption functions
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		lastTime:       time.Now(),
		updateInterval: time.Second,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Tick should be called once per frame to track frame timing.
// Builds and logs a Report when the update interval has elapsed.
//
// Returns:
//   - bool: true if a report was produced this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.frameCount++
	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	r := Report{}
	if secs := elapsed.Seconds(); secs > 0 {
		r.FPS = float64(p.frameCount) / secs
	}

	runtime.ReadMemStats(&p.memStats)
	r.HeapMB = float64(p.memStats.Alloc) / mb
	r.SysMB = float64(p.memStats.Sys) / mb
	if secs := elapsed.Seconds(); secs > 0 {
		r.AllocRateMB = float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / mb / secs
	}

	gcCount := p.memStats.NumGC
	r.GCCount = gcCount
	if gcCount > 0 {
		// PauseNs is a circular buffer of the last 256 pauses
		r.LastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			r.MaxPauseUs = max(r.MaxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	if p.stats != nil {
		r.hasStats = true
		r.DrawCalls = p.stats.DrawCallCount()
		r.Vertices = p.stats.VertexCount()
		r.Triangles = p.stats.TriangleCount()
	}
	if p.tracker != nil {
		r.hasVRAM = true
		r.VRAM = p.tracker.Snapshot()
	}
	if p.device != nil {
		r.hasDeviceMem = true
		r.DeviceUsed, r.DeviceTotal = p.device.QueryVRAMUsage()
	}

	if !p.quiet {
		log.Printf("[Profiler] %s", r)
	}

	p.last = r
	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// Last returns the most recent report.
func (p *Profiler) Last() Report {
	return p.last
}
