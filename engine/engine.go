package engine

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-editor/common"
	"github.com/Carmen-Shannon/oxy-editor/engine/asset"
	"github.com/Carmen-Shannon/oxy-editor/engine/camera"
	"github.com/Carmen-Shannon/oxy-editor/engine/profiler"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer/vram"
	"github.com/Carmen-Shannon/oxy-editor/engine/scene"
	"github.com/Carmen-Shannon/oxy-editor/engine/window"
	"github.com/go-gl/mathgl/mgl32"
)

var (
	// ErrNoWindow is returned when the engine is built without a window and none could be created.
	ErrNoWindow = errors.New("engine: no window")
)

// engine implements the Engine interface.
// Frames, picking and resizes run on the window thread, which owns the renderer API.
// The editor tick runs on its own goroutine and only touches the thread-safe scene and worker.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running atomic.Bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once
	closeOnce   sync.Once

	window       window.Window
	ownsWindow   bool
	windowClosed bool

	api             renderer.API
	ownsAPI         bool
	rendererOptions []renderer.RendererBuilderOption
	tracker         vram.Tracker
	registry        asset.Registry
	camera          camera.Camera
	pipeline        pipeline.RenderingPipeline
	pipelineOptions []pipeline.PipelineBuilderOption

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)
	pickCallback   func(picked scene.Entity)
	keyCallback    func(keyCode uint32)

	mu             sync.Mutex
	activeScene    scene.Scene
	lastGeneration uint64
	selected       scene.Entity

	settingsPath string

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
	lastRender       time.Time

	// mouse state, only touched on the window thread
	orbiting   bool
	panning    bool
	lastMouseX int32
	lastMouseY int32
}

// Engine is the editor viewport host.
// It owns the window, the renderer API, the rendering pipeline and the editor tick loop.
type Engine interface {
	// Window returns the underlying window.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// API returns the renderer API frames are drawn with.
	//
	// Returns:
	//   - renderer.API: the renderer API
	API() renderer.API

	// Pipeline returns the rendering pipeline that draws the viewport.
	//
	// Returns:
	//   - pipeline.RenderingPipeline: the pipeline
	Pipeline() pipeline.RenderingPipeline

	// Registry returns the asset registry the draw-call worker resolves models and materials against.
	//
	// Returns:
	//   - asset.Registry: the registry
	Registry() asset.Registry

	// Tracker returns the VRAM tracker shared by the API and the pipeline framebuffers.
	//
	// Returns:
	//   - vram.Tracker: the tracker
	Tracker() vram.Tracker

	// Camera returns the editor camera.
	//
	// Returns:
	//   - camera.Camera: the camera
	Camera() camera.Camera

	// LoadScene makes s the scene shown in the viewport.
	// When a settings file is configured its values are applied to the scene settings first.
	//
	// Parameters:
	//   - s: the scene to show, or nil to clear the viewport
	LoadScene(s scene.Scene)

	// Scene returns the scene shown in the viewport, or nil.
	//
	// Returns:
	//   - scene.Scene: the active scene
	Scene() scene.Scene

	// Pick renders the entity-id pass and returns the entity under pixel (x, y).
	// Must be called on the window thread. The result is stored as the selection and passed to the pick callback.
	//
	// Parameters:
	//   - x, y: pixel coordinates with the origin at the top-left corner of the viewport
	//
	// Returns:
	//   - scene.Entity: the picked entity or scene.NullEntity
	Pick(x, y int) scene.Entity

	// Selected returns the entity chosen by the most recent pick.
	//
	// Returns:
	//   - scene.Entity: the selected entity or scene.NullEntity
	Selected() scene.Entity

	// Resize resizes the surface and every pipeline framebuffer. Must be called on the window thread.
	//
	// Parameters:
	//   - width, height: the new viewport size in pixels
	//
	// Returns:
	//   - error: error if the size is invalid
	Resize(width, height int) error

	// RenderFrame draws one frame and presents it. Must be called on the window thread.
	//
	// Parameters:
	//   - deltaTime: seconds since the previous frame
	RenderFrame(deltaTime float32)

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// Profiler returns the frame profiler.
	//
	// Returns:
	//   - *profiler.Profiler: the profiler
	Profiler() *profiler.Profiler

	// SetTickRate sets the editor tick rate in ticks per second.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each editor tick.
	// Use this for scene edits; the engine invalidates the draw-call list when the scene generation changes.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called after each rendered frame.
	//
	// Parameters:
	//   - callback: function to call each render frame, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetPickCallback registers the function called after every pick.
	//
	// Parameters:
	//   - callback: function receiving the picked entity (scene.NullEntity for empty space)
	SetPickCallback(callback func(picked scene.Entity))

	// SetKeyCallback registers the function called for every key press after the built-in
	// viewport shortcuts (G grid, T tonemap, F focus, Backspace delete selection) have run.
	//
	// Parameters:
	//   - callback: function receiving the key code
	SetKeyCallback(callback func(keyCode uint32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Run starts the editor tick loop and the window message loop (blocks until the window closes).
	Run()

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()

	// Close stops the engine, saves the scene settings when a settings file is configured and
	// releases the pipeline, the API and the window when the engine created them.
	Close()
}

// NewEngine creates a new Engine instance with the provided options.
// A window, wgpu API and pipeline are created unless supplied through options.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
//   - error: ErrNoWindow, an API creation error or a pipeline creation error
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		engineTickRate:  time.Second / 60,
		tracker:         vram.NewTracker(),
		registry:        asset.NewRegistry(),
	}

	for _, opt := range options {
		opt(e)
	}

	if e.window == nil {
		w, err := window.NewWindow()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoWindow, err)
		}
		e.window = w
		e.ownsWindow = true
	}

	width, height := e.window.Width(), e.window.Height()
	if e.api == nil {
		opts := append([]renderer.RendererBuilderOption{
			renderer.WithSurface(e.window.SurfaceDescriptor(), uint32(width), uint32(height)),
			renderer.WithMemoryTracker(e.tracker),
		}, e.rendererOptions...)
		api, err := renderer.NewAPI(renderer.BackendTypeWGPU, opts...)
		if err != nil {
			if e.ownsWindow {
				e.closeWindow()
			}
			return nil, err
		}
		e.api = api
		e.ownsAPI = true
	}

	if e.camera == nil {
		e.camera = camera.NewCamera(
			camera.WithAspect(float32(width)/float32(max(height, 1))),
			camera.WithController(camera.NewCameraController()),
		)
	}

	popts := append([]pipeline.PipelineBuilderOption{
		pipeline.WithResolution(uint32(width), uint32(height)),
		pipeline.WithTracker(e.tracker),
		pipeline.WithAspectSetter(e.camera),
	}, e.pipelineOptions...)
	p, err := pipeline.NewRenderingPipeline(e.api, e.registry, popts...)
	if err != nil {
		if e.ownsAPI {
			e.api.Release()
		}
		if e.ownsWindow {
			e.closeWindow()
		}
		return nil, err
	}
	e.pipeline = p

	if e.profiler == nil {
		e.profiler = profiler.NewProfiler(
			profiler.WithRenderStats(p),
			profiler.WithVRAMTracker(e.tracker),
			profiler.WithDeviceMemory(e.api),
		)
	}

	e.window.SetResizeCallback(func(width, height int) {
		if err := e.Resize(width, height); err != nil {
			log.Printf("[Engine] resize to %dx%d failed: %v", width, height, err)
		}
	})
	e.window.SetMouseDownCallback(e.handleMouseDown)
	e.window.SetMouseUpCallback(e.handleMouseUp)
	e.window.SetMouseMoveCallback(e.handleMouseMove)
	e.window.SetScrollCallback(e.handleScroll)
	e.window.SetKeyDownCallback(e.handleKeyDown)
	e.window.SetUpdateCallback(e.handleUpdate)

	return e, nil
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) API() renderer.API {
	return e.api
}

func (e *engine) Pipeline() pipeline.RenderingPipeline {
	return e.pipeline
}

func (e *engine) Registry() asset.Registry {
	return e.registry
}

func (e *engine) Tracker() vram.Tracker {
	return e.tracker
}

func (e *engine) Camera() camera.Camera {
	return e.camera
}

func (e *engine) Profiler() *profiler.Profiler {
	return e.profiler
}

func (e *engine) LoadScene(s scene.Scene) {
	if s != nil && e.settingsPath != "" {
		values, err := scene.LoadSettingsFile(e.settingsPath)
		if err != nil {
			log.Printf("[Engine] failed to load settings %q: %v", e.settingsPath, err)
		} else {
			s.Settings().Apply(values)
		}
	}

	e.mu.Lock()
	e.activeScene = s
	e.selected = scene.NullEntity
	if s != nil {
		e.lastGeneration = s.Generation()
	}
	e.mu.Unlock()

	if s == nil {
		e.pipeline.UnloadScene()
		return
	}
	e.pipeline.LoadScene(s)
}

func (e *engine) Scene() scene.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeScene
}

func (e *engine) Pick(x, y int) scene.Entity {
	s := e.Scene()
	if s == nil {
		return scene.NullEntity
	}
	e.camera.Update()
	if err := e.pipeline.RenderIds(s, e.camera); err != nil {
		log.Printf("[Engine] id pass failed: %v", err)
		return scene.NullEntity
	}
	picked := e.pipeline.ReadPixelId(x, y)

	e.mu.Lock()
	e.selected = picked
	cb := e.pickCallback
	e.mu.Unlock()

	if cb != nil {
		cb(picked)
	}
	return picked
}

func (e *engine) Selected() scene.Entity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected
}

func (e *engine) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("engine: invalid viewport size %dx%d", width, height)
	}
	e.api.ResizeSurface(uint32(width), uint32(height))
	return e.pipeline.SetResolution(uint32(width), uint32(height))
}

// RenderFrame draws the active scene and presents the presentation framebuffer.
// Recovers from panics to avoid crashing the process and signals quit on recovery.
func (e *engine) RenderFrame(deltaTime float32) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Engine] render recovered from panic: %v", r)
			e.signalQuit()
		}
	}()

	e.camera.Update()
	if err := e.pipeline.RenderScene(e.camera, e.pipeline.Grid()); err != nil {
		log.Printf("[Engine] render failed: %v", err)
	}
	if err := e.api.Present(e.pipeline.PresentationFramebuffer()); err != nil && !errors.Is(err, renderer.ErrNoSurface) {
		log.Printf("[Engine] present failed: %v", err)
	}

	if e.renderCallback != nil {
		e.renderCallback(deltaTime)
	}

	if e.profilingEnabled && e.profiler != nil {
		e.profiler.Tick()
	}
}

func (e *engine) Run() {
	e.handle()
	e.window.ProcessMessages()
	e.Close()
}

// Quit signals all engine goroutines to stop.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

func (e *engine) Close() {
	e.closeOnce.Do(func() {
		e.signalQuit()
		e.wg.Wait()

		if s := e.Scene(); s != nil && e.settingsPath != "" {
			if err := scene.SaveSettingsFile(e.settingsPath, s.Settings().Values()); err != nil {
				log.Printf("[Engine] failed to save settings %q: %v", e.settingsPath, err)
			}
		}

		e.pipeline.Close()
		if e.ownsAPI {
			e.api.Release()
		}
		if e.ownsWindow {
			e.closeWindow()
		}
	})
}

// closeWindow closes the window once. Windows supplied through WithWindow are only closed
// from the message loop after a quit, never during Close.
func (e *engine) closeWindow() {
	if e.windowClosed || e.window == nil {
		return
	}
	e.windowClosed = true
	if err := e.window.Close(); err != nil {
		log.Printf("[Engine] failed to close window: %v", err)
	}
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running.Store(false)
		close(e.quitChannel)
	})
}

// handle launches the editor tick and quit goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.running.Store(true)
	e.lastRender = time.Now()
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleQuit()
}

// handleEngine runs the fixed-rate editor tick loop in its own goroutine.
// Fires the tick callback at the configured rate, then invalidates the draw-call list
// when the scene generation moved. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now
			e.tick(dt)
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// tick runs one editor tick.
func (e *engine) tick(dt float32) {
	if e.tickCallback != nil {
		e.tickCallback(dt)
	}

	e.mu.Lock()
	s := e.activeScene
	changed := false
	if s != nil {
		if gen := s.Generation(); gen != e.lastGeneration {
			e.lastGeneration = gen
			changed = true
		}
	}
	e.mu.Unlock()

	if changed {
		e.pipeline.Invalidate()
	}
}

// handleQuit blocks until the quit channel is closed, then decrements the WaitGroup.
func (e *engine) handleQuit() {
	defer e.wg.Done()
	<-e.quitChannel
}

// handleUpdate renders a frame each window loop iteration until quit is signalled.
func (e *engine) handleUpdate() {
	select {
	case <-e.quitChannel:
		e.closeWindow()
		return
	default:
	}

	now := time.Now()
	if e.renderFrameLimit > 0 && now.Sub(e.lastRender) < e.renderFrameLimit {
		return
	}
	dt := float32(now.Sub(e.lastRender).Seconds())
	e.lastRender = now
	e.RenderFrame(dt)
}

func (e *engine) handleMouseDown(button window.MouseButton, x, y int32) {
	e.lastMouseX, e.lastMouseY = x, y
	switch button {
	case window.MouseButtonLeft:
		e.Pick(int(x), int(y))
	case window.MouseButtonRight:
		e.orbiting = true
	case window.MouseButtonMiddle:
		e.panning = true
	}
}

func (e *engine) handleMouseUp(button window.MouseButton, x, y int32) {
	switch button {
	case window.MouseButtonRight:
		e.orbiting = false
	case window.MouseButtonMiddle:
		e.panning = false
	}
}

func (e *engine) handleMouseMove(x, y int32) {
	dx := float32(x - e.lastMouseX)
	dy := float32(y - e.lastMouseY)
	e.lastMouseX, e.lastMouseY = x, y

	ctrl := e.camera.Controller()
	if ctrl == nil {
		return
	}
	if e.orbiting {
		ctrl.Orbit(dx, dy)
	}
	if e.panning {
		ctrl.Pan(dx, dy)
	}
}

func (e *engine) handleScroll(delta float32) {
	if ctrl := e.camera.Controller(); ctrl != nil {
		ctrl.Zoom(delta)
	}
}

// handleKeyDown applies the viewport shortcuts, then forwards the key to the key callback.
func (e *engine) handleKeyDown(keyCode uint32) {
	if s := e.Scene(); s != nil {
		e.applyShortcut(s, keyCode)
	}

	e.mu.Lock()
	cb := e.keyCallback
	e.mu.Unlock()
	if cb != nil {
		cb(keyCode)
	}
}

func (e *engine) applyShortcut(s scene.Scene, keyCode uint32) {
	switch keyCode {
	case common.KeyG:
		grid := s.Settings().Values().Grid
		grid.Enabled = !grid.Enabled
		s.Settings().SetGrid(grid)
	case common.KeyT:
		next := (s.Settings().Values().Tonemap + 1) % (scene.TonemapFilmic + 1)
		s.Settings().SetTonemap(next)
	case common.KeyF:
		e.focusSelection(s)
	case common.KeyBackspace:
		e.deleteSelection(s)
	}
}

// deleteSelection destroys the selected entity and its descendants and clears the selection.
func (e *engine) deleteSelection(s scene.Scene) {
	e.mu.Lock()
	sel := e.selected
	e.selected = scene.NullEntity
	e.mu.Unlock()

	if sel == scene.NullEntity {
		return
	}
	if err := s.DestroyEntity(sel); err != nil {
		log.Printf("[Engine] failed to delete entity %d: %v", sel, err)
	}
}

// focusSelection points the orbit controller at the selected entity.
func (e *engine) focusSelection(s scene.Scene) {
	sel := e.Selected()
	ctrl := e.camera.Controller()
	if sel == scene.NullEntity || ctrl == nil {
		return
	}
	world, err := s.WorldMatrix(sel)
	if err != nil {
		return
	}
	center := world.Col(3).Vec3()
	ctrl.Focus(center, max(ctrl.MinRadius(), focusDistance(world)))
}

// focusDistance picks an orbit radius proportional to the largest world scale axis.
func focusDistance(world mgl32.Mat4) float32 {
	scale := max(world.Col(0).Vec3().Len(), world.Col(1).Vec3().Len(), world.Col(2).Vec3().Len())
	return 3 * scale
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetTickRate sets the editor tick rate in ticks per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if e.running.Load() {
		// Non-blocking send - if channel is full, replace the pending value
		select {
		case e.tickRateChannel <- newRate:
		default:
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	} else {
		e.engineTickRate = newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

func (e *engine) SetPickCallback(callback func(picked scene.Entity)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pickCallback = callback
}

func (e *engine) SetKeyCallback(callback func(keyCode uint32)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keyCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}
