package renderer

import "github.com/cogentcore/webgpu/wgpu"

// apiConfig collects construction options for NewAPI.
type apiConfig struct {
	surfaceDescriptor    *wgpu.SurfaceDescriptor
	surfaceWidth         uint32
	surfaceHeight        uint32
	forceFallbackAdapter bool
	presentMode          PresentMode
	maxSamples           MSAASampleCount
	tracker              MemoryTracker
}

// RendererBuilderOption is a functional option applied during construction via NewAPI.
type RendererBuilderOption func(*apiConfig)

// WithSurface attaches a window surface the API presents into. Without it the API is headless
// and Present returns ErrNoSurface.
//
// Parameters:
//   - desc: the platform surface descriptor, e.g. from the window
//   - width: the initial surface width in pixels
//   - height: the initial surface height in pixels
//
// Returns:
//   - RendererBuilderOption: a function that applies the surface option
func WithSurface(desc *wgpu.SurfaceDescriptor, width, height uint32) RendererBuilderOption {
	return func(c *apiConfig) {
		c.surfaceDescriptor = desc
		c.surfaceWidth = width
		c.surfaceHeight = height
	}
}

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(c *apiConfig) {
		c.presentMode = mode
	}
}

// WithMaxSamples caps the MSAA sample count reported by MaxSamples.
// When not specified, the default is MSAA4x, the highest count WebGPU guarantees.
// Higher values (MSAA8x, MSAA16x) are adapter-dependent and may not be supported
// by all hardware.
//
// Parameters:
//   - count: the MSAASampleCount cap
//
// Returns:
//   - RendererBuilderOption: a function that applies the MSAA option
func WithMaxSamples(count MSAASampleCount) RendererBuilderOption {
	return func(c *apiConfig) {
		c.maxSamples = count
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe).
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the force software renderer option
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(c *apiConfig) {
		c.forceFallbackAdapter = force
	}
}

// WithMemoryTracker reports buffer and shader allocations made by the API to tracker.
//
// Parameters:
//   - tracker: the tracker to notify, typically a vram.Tracker
//
// Returns:
//   - RendererBuilderOption: a function that applies the tracker option
func WithMemoryTracker(tracker MemoryTracker) RendererBuilderOption {
	return func(c *apiConfig) {
		c.tracker = tracker
	}
}
