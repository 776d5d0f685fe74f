package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-editor/engine/asset"
	"github.com/Carmen-Shannon/oxy-editor/engine/camera"
	"github.com/Carmen-Shannon/oxy-editor/engine/profiler"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer/vram"
	"github.com/Carmen-Shannon/oxy-editor/engine/window"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithProfiler replaces the default profiler.
//
// Parameters:
//   - p: the profiler to tick each frame
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiler(p *profiler.Profiler) EngineBuilderOption {
	return func(e *engine) {
		e.profiler = p
	}
}

// WithTickRate sets the editor tick rate in ticks per second.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.engineTickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithWindow sets a custom configured window for the engine to use rather than allowing the engine
// to create and manage one internally. The engine does not destroy a supplied window on Close.
//
// Parameters:
//   - w: a pre-configured Window instance
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithAPI sets the renderer API instead of creating a wgpu API on the window surface.
// The engine does not release a supplied API on Close.
//
// Parameters:
//   - api: the renderer API to draw with
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithAPI(api renderer.API) EngineBuilderOption {
	return func(e *engine) {
		e.api = api
	}
}

// WithRendererOptions appends options used when the engine creates its own wgpu API.
//
// Parameters:
//   - options: renderer builder options (present mode, max samples, software adapter)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRendererOptions(options ...renderer.RendererBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.rendererOptions = append(e.rendererOptions, options...)
	}
}

// WithPipelineOptions appends options passed to the rendering pipeline after the engine defaults.
//
// Parameters:
//   - options: pipeline builder options
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithPipelineOptions(options ...pipeline.PipelineBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.pipelineOptions = append(e.pipelineOptions, options...)
	}
}

// WithRegistry sets the asset registry shared with the editor.
//
// Parameters:
//   - registry: the registry draw calls resolve against
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRegistry(registry asset.Registry) EngineBuilderOption {
	return func(e *engine) {
		e.registry = registry
	}
}

// WithTracker sets the VRAM tracker shared by the API and the pipeline.
//
// Parameters:
//   - tracker: the tracker
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTracker(tracker vram.Tracker) EngineBuilderOption {
	return func(e *engine) {
		e.tracker = tracker
	}
}

// WithCamera sets the editor camera. The pipeline keeps its aspect ratio in sync with the viewport.
//
// Parameters:
//   - cam: the camera
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithCamera(cam camera.Camera) EngineBuilderOption {
	return func(e *engine) {
		e.camera = cam
	}
}

// WithSettingsFile sets the TOML file scene settings are loaded from in LoadScene and saved to in Close.
//
// Parameters:
//   - path: the settings file path
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithSettingsFile(path string) EngineBuilderOption {
	return func(e *engine) {
		e.settingsPath = path
	}
}

// WithRenderFrameLimit sets an optional render frame rate cap in frames per second.
// Pass 0 to uncap the render loop (default).
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			e.renderFrameLimit = 0
			return
		}
		e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
	}
}
