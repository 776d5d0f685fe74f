package pipeline

import (
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer/drawcall"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer/vram"
	"github.com/Carmen-Shannon/oxy-editor/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// PipelineBuilderOption is a functional option used to configure a RenderingPipeline during construction.
type PipelineBuilderOption func(*renderingPipeline)

// WithResolution sets the initial framebuffer size. Defaults to 800x600.
//
// Parameters:
//   - width: the width in pixels
//   - height: the height in pixels
//
// Returns:
//   - PipelineBuilderOption: a function that sets the initial resolution
func WithResolution(width, height uint32) PipelineBuilderOption {
	return func(p *renderingPipeline) {
		p.width = width
		p.height = height
	}
}

// WithMsaaSamples sets the initial scene sample count. It is clamped like SetMsaaSamples.
// Defaults to 4.
func WithMsaaSamples(samples uint32) PipelineBuilderOption {
	return func(p *renderingPipeline) {
		p.samples = samples
	}
}

// WithTracker accounts every framebuffer the pipeline allocates in tracker.
//
// Parameters:
//   - tracker: the VRAM tracker
//
// Returns:
//   - PipelineBuilderOption: a function that sets the tracker
func WithTracker(tracker vram.Tracker) PipelineBuilderOption {
	return func(p *renderingPipeline) {
		p.tracker = tracker
	}
}

// WithAspectSetter registers a receiver, usually the editor camera, for aspect ratio changes.
func WithAspectSetter(setter AspectSetter) PipelineBuilderOption {
	return func(p *renderingPipeline) {
		p.aspectSetter = setter
	}
}

// WithExposure sets the initial tone-mapping exposure. Defaults to 1.
func WithExposure(exposure float32) PipelineBuilderOption {
	return func(p *renderingPipeline) {
		p.exposure = exposure
	}
}

// WithTonemapType sets the initial tone-mapping operator. Defaults to scene.TonemapACES.
func WithTonemapType(t scene.TonemapType) PipelineBuilderOption {
	return func(p *renderingPipeline) {
		p.tonemap = t
	}
}

// WithClearColor sets the scene pass clear color.
//
// Parameters:
//   - color: the linear RGBA clear color
//
// Returns:
//   - PipelineBuilderOption: a function that sets the clear color
func WithClearColor(color mgl32.Vec4) PipelineBuilderOption {
	return func(p *renderingPipeline) {
		p.clearColor = color
	}
}

// WithWorkerOptions forwards options to the pipeline's drawcall.Worker.
func WithWorkerOptions(options ...drawcall.WorkerBuilderOption) PipelineBuilderOption {
	return func(p *renderingPipeline) {
		p.workerOptions = append(p.workerOptions, options...)
	}
}
