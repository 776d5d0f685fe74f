package pipeline

import (
	_ "embed"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/Carmen-Shannon/oxy-editor/common"
	"github.com/Carmen-Shannon/oxy-editor/engine/asset"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer/drawcall"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer/framebuffer"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer/vram"
	"github.com/Carmen-Shannon/oxy-editor/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

var (
	//go:embed shaders/mesh.wgsl
	meshSource string

	//go:embed shaders/id.wgsl
	idSource string

	//go:embed shaders/tonemap.wgsl
	tonemapSource string

	//go:embed shaders/grid.wgsl
	gridSource string
)

// Shader keys of the built-in passes.
const (
	MeshShaderKey    = "mesh"
	IDShaderKey      = "id"
	TonemapShaderKey = "tonemap"
	GridShaderKey    = "grid"
)

var (
	// ErrNilAPI is returned by NewRenderingPipeline without a renderer API.
	ErrNilAPI = errors.New("pipeline: nil renderer API")

	// ErrNilRegistry is returned by NewRenderingPipeline without an asset registry.
	ErrNilRegistry = errors.New("pipeline: nil asset registry")

	// ErrClosed is returned by rendering calls after Close.
	ErrClosed = errors.New("pipeline: closed")
)

// AspectSetter receives the aspect ratio whenever the resolution changes. camera.Camera
// satisfies it.
type AspectSetter interface {
	SetAspect(aspect float32)
}

// idMaterial draws with the picking shader, writing entity into the integer attachment.
type idMaterial struct {
	shader renderer.Shader
	entity scene.Entity
}

func (m idMaterial) ID() uint64              { return 0 }
func (m idMaterial) Transparent() bool       { return false }
func (m idMaterial) Shader() renderer.Shader { return m.shader }
func (m idMaterial) Uniforms() []renderer.Uniform {
	return []renderer.Uniform{renderer.IntUniform("entity_id", int32(m.entity))}
}

// renderingPipeline is the implementation of the RenderingPipeline interface.
type renderingPipeline struct {
	mu *sync.Mutex

	api      renderer.API
	registry asset.Registry
	tracker  vram.Tracker
	worker   drawcall.Worker

	// the following are applied by the builder options before any GPU resource exists

	width, height uint32
	samples       uint32
	exposure      float32
	tonemap       scene.TonemapType
	clearColor    mgl32.Vec4
	aspectSetter  AspectSetter
	workerOptions []drawcall.WorkerBuilderOption

	// pendingSamples is a sample count requested off the render thread; 0 when none
	pendingSamples uint32

	bloom bool
	grid  scene.GridSettings

	sceneFB   framebuffer.Framebuffer
	idFB      framebuffer.Framebuffer
	presentFB framebuffer.Framebuffer
	hdr       framebuffer.PingPongBuffer
	ldr       framebuffer.PingPongBuffer

	meshShader    renderer.Shader
	idShader      renderer.Shader
	tonemapShader renderer.Shader
	gridShader    renderer.Shader

	active       scene.Scene
	subscription scene.Subscription

	closed    bool
	closeOnce *sync.Once
}

// RenderingPipeline renders the active scene through a fixed chain of passes into a presentation
// framebuffer: the scene pass into an MSAA HDR framebuffer, a resolve into the HDR ping-pong
// pair, tone-mapping into the LDR ping-pong pair, an optional grid overlay, and a final copy.
// A separate picking pass renders entity handles into an integer framebuffer.
//
// Draw calls come from a background drawcall.Worker; the render thread only reads the last
// published list. All methods must be called from the thread that owns the renderer API, except
// Invalidate and the stat getters.
type RenderingPipeline interface {
	// RenderScene renders one frame into the presentation framebuffer.
	//
	// Parameters:
	//   - cam: the viewing camera
	//   - grid: the grid overlay settings, the overlay runs only when grid.Enabled is set
	//
	// Returns:
	//   - error: ErrClosed, or the joined errors of the blit passes
	RenderScene(cam renderer.Camera, grid scene.GridSettings) error

	// RenderIds renders every visible mesh-renderer entity of s into the id framebuffer, each
	// pixel holding the entity handle, 0 for background. Merged id meshes are built on first use
	// and cached on the entity's MeshRendererComponent.
	//
	// Parameters:
	//   - s: the scene to render
	//   - cam: the viewing camera
	//
	// Returns:
	//   - error: ErrClosed or a mesh upload error
	RenderIds(s scene.Scene, cam renderer.Camera) error

	// ReadPixelId returns the entity handle at a pixel of the id framebuffer, with y growing
	// downwards. Out of bounds coordinates and background pixels return scene.NullEntity.
	//
	// Parameters:
	//   - x: the pixel column
	//   - y: the pixel row
	//
	// Returns:
	//   - scene.Entity: the entity under the pixel or scene.NullEntity
	ReadPixelId(x, y int) scene.Entity

	// SetResolution resizes the scene, id, presentation and both ping-pong framebuffers.
	//
	// Parameters:
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	//
	// Returns:
	//   - error: framebuffer.ErrInvalidSize when a dimension is out of range, nothing is resized
	SetResolution(width, height uint32) error

	// Resolution returns the current size in pixels.
	Resolution() (width, height uint32)

	// AspectRatio returns width / height.
	AspectRatio() float32

	// SetMsaaSamples sets the scene framebuffer's sample count, clamped to the API's maximum and
	// rounded down to a power of two.
	//
	// Parameters:
	//   - samples: the requested sample count
	//
	// Returns:
	//   - uint32: the sample count applied
	SetMsaaSamples(samples uint32) uint32

	// MsaaSamples returns the scene framebuffer's sample count. A change made through the scene
	// settings is applied, and reported here, from the next RenderScene or RenderIds call.
	MsaaSamples() uint32

	SetExposure(exposure float32)
	Exposure() float32
	SetTonemapType(t scene.TonemapType)
	TonemapType() scene.TonemapType

	// Bloom reports the last bloom setting received. Bloom has no pass yet.
	Bloom() bool

	// Grid returns the last grid settings received from the active scene.
	Grid() scene.GridSettings

	// LoadScene makes s the active scene: the worker extracts from it and the pipeline follows
	// its settings. A previously loaded scene is unloaded first.
	//
	// Parameters:
	//   - s: the scene to render
	LoadScene(s scene.Scene)

	// UnloadScene detaches the active scene, unsubscribing from its settings and releasing its
	// id meshes. No-op without an active scene.
	UnloadScene()

	// ActiveScene returns the loaded scene, or nil.
	ActiveScene() scene.Scene

	// Invalidate asks the worker to re-extract draw calls. Safe from any goroutine.
	Invalidate()

	// Worker returns the draw-call worker.
	Worker() drawcall.Worker

	DrawCallCount() int
	VertexCount() int
	TriangleCount() int

	// PresentationTexture returns the presentation framebuffer's color attachment, suitable for
	// display by the editor.
	PresentationTexture() renderer.Attachment

	// PresentationFramebuffer returns the final framebuffer of RenderScene.
	PresentationFramebuffer() framebuffer.Framebuffer

	// SceneFramebuffer returns the multisampled HDR scene framebuffer.
	SceneFramebuffer() framebuffer.Framebuffer

	// IDFramebuffer returns the picking framebuffer.
	IDFramebuffer() framebuffer.Framebuffer

	// MeshShader returns the built-in lit mesh shader for materials with a base_color parameter.
	MeshShader() renderer.Shader

	// Close stops the worker, unloads the active scene and releases every GPU resource the
	// pipeline owns. Safe to call more than once.
	Close()
}

var _ RenderingPipeline = &renderingPipeline{}

// NewRenderingPipeline allocates the framebuffers and shaders of the pipeline and starts its
// draw-call worker.
//
// Parameters:
//   - api: the renderer API
//   - registry: the asset registry draw calls are resolved through
//   - options: variadic list of PipelineBuilderOption functions
//
// Returns:
//   - RenderingPipeline: the ready pipeline
//   - error: ErrNilAPI, ErrNilRegistry, a framebuffer size error or a shader compile error
func NewRenderingPipeline(api renderer.API, registry asset.Registry, options ...PipelineBuilderOption) (RenderingPipeline, error) {
	if api == nil {
		return nil, ErrNilAPI
	}
	if registry == nil {
		return nil, ErrNilRegistry
	}

	p := &renderingPipeline{
		mu:         &sync.Mutex{},
		api:        api,
		registry:   registry,
		width:      800,
		height:     600,
		samples:    4,
		exposure:   1,
		tonemap:    scene.TonemapACES,
		clearColor: mgl32.Vec4{0.09, 0.09, 0.1, 1},
		grid:       scene.DefaultSettings().Grid,
		closeOnce:  &sync.Once{},
	}
	for _, option := range options {
		option(p)
	}
	p.samples = clampSamples(p.samples, api.MaxSamples())

	if err := p.createShaders(); err != nil {
		p.releaseResources()
		return nil, err
	}
	if err := p.createFramebuffers(); err != nil {
		p.releaseResources()
		return nil, err
	}

	p.worker = drawcall.NewWorker(registry, p.workerOptions...)
	return p, nil
}

func clampSamples(samples, maxSamples uint32) uint32 {
	samples = max(samples, 1)
	if maxSamples > 0 {
		samples = min(samples, maxSamples)
	}
	return common.FloorPowerOfTwo(samples)
}

func (p *renderingPipeline) createShaders() error {
	descs := []struct {
		dst  *renderer.Shader
		desc renderer.ShaderDescriptor
	}{
		{&p.meshShader, renderer.ShaderDescriptor{Key: MeshShaderKey, Kind: renderer.ShaderKindMesh, Source: meshSource}},
		{&p.idShader, renderer.ShaderDescriptor{Key: IDShaderKey, Kind: renderer.ShaderKindMesh, Source: idSource}},
		{&p.tonemapShader, renderer.ShaderDescriptor{Key: TonemapShaderKey, Kind: renderer.ShaderKindFullscreen, Source: tonemapSource}},
		{&p.gridShader, renderer.ShaderDescriptor{Key: GridShaderKey, Kind: renderer.ShaderKindFullscreen, Source: gridSource}},
	}
	for _, d := range descs {
		s, err := p.api.CreateShader(d.desc)
		if err != nil {
			return fmt.Errorf("pipeline: compile %s shader: %w", d.desc.Key, err)
		}
		*d.dst = s
	}
	return nil
}

func (p *renderingPipeline) fbOptions() []framebuffer.FramebufferBuilderOption {
	if p.tracker == nil {
		return nil
	}
	return []framebuffer.FramebufferBuilderOption{framebuffer.WithTracker(p.tracker)}
}

func (p *renderingPipeline) createFramebuffers() error {
	spec := func(label string, samples uint32, formats ...renderer.AttachmentFormat) renderer.FramebufferSpecification {
		return renderer.FramebufferSpecification{
			Width:       p.width,
			Height:      p.height,
			Samples:     samples,
			Attachments: formats,
			Label:       label,
		}
	}
	opts := p.fbOptions()

	var err error
	if p.sceneFB, err = framebuffer.NewFramebuffer(p.api, spec("Scene", p.samples, renderer.AttachmentRGBA16F, renderer.AttachmentDepth24Stencil8), opts...); err != nil {
		return err
	}
	if p.idFB, err = framebuffer.NewFramebuffer(p.api, spec("Ids", 1, renderer.AttachmentRedInteger, renderer.AttachmentDepth24Stencil8), opts...); err != nil {
		return err
	}
	if p.hdr, err = framebuffer.NewPingPongBuffer(p.api, spec("HDR", 1, renderer.AttachmentRGBA16F, renderer.AttachmentDepth24Stencil8), opts...); err != nil {
		return err
	}
	if p.ldr, err = framebuffer.NewPingPongBuffer(p.api, spec("LDR", 1, renderer.AttachmentRGBA8), opts...); err != nil {
		return err
	}
	if p.presentFB, err = framebuffer.NewFramebuffer(p.api, spec("Presentation", 1, renderer.AttachmentRGBA8), opts...); err != nil {
		return err
	}
	return nil
}

// releaseResources frees whatever has been created so far.
func (p *renderingPipeline) releaseResources() {
	for _, fb := range []framebuffer.Framebuffer{p.sceneFB, p.idFB, p.presentFB} {
		if fb != nil {
			fb.Release()
		}
	}
	for _, pp := range []framebuffer.PingPongBuffer{p.hdr, p.ldr} {
		if pp != nil {
			pp.Release()
		}
	}
	for _, s := range []renderer.Shader{p.meshShader, p.idShader, p.tonemapShader, p.gridShader} {
		if s != nil {
			p.api.ReleaseShader(s)
		}
	}
}

func (p *renderingPipeline) RenderScene(cam renderer.Camera, grid scene.GridSettings) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.applyPendingSamples()

	p.sceneFB.Bind()
	p.api.Clear(p.clearColor)
	p.worker.List().View(func(calls []drawcall.DrawCall) {
		for _, dc := range calls {
			p.api.RenderIndexed(dc.Mesh, dc.Material, cam, dc.Model)
		}
	})
	p.sceneFB.Unbind()

	var errs []error
	if err := p.api.Blit(p.sceneFB, p.hdr.Write(), renderer.BlitColor|renderer.BlitDepth); err != nil {
		errs = append(errs, fmt.Errorf("resolve: %w", err))
	}
	p.hdr.Swap()

	// HDR post effects (bloom) slot in here, reading p.hdr.Read() and swapping.

	params := []renderer.Uniform{
		renderer.FloatUniform("exposure", p.exposure),
		renderer.IntUniform("operator", int32(p.tonemap)),
	}
	inputs := []renderer.Attachment{p.hdr.Read().ColorAttachment(0)}
	if err := p.api.CustomBlit(inputs, p.ldr.Write(), p.tonemapShader, params); err != nil {
		errs = append(errs, fmt.Errorf("tonemap: %w", err))
	}
	p.ldr.Swap()

	if grid.Enabled {
		if err := p.gridOverlay(cam, grid); err != nil {
			errs = append(errs, fmt.Errorf("grid: %w", err))
		}
		p.ldr.Swap()
	}

	if err := p.api.Blit(p.ldr.Read(), p.presentFB, renderer.BlitColor); err != nil {
		errs = append(errs, fmt.Errorf("present: %w", err))
	}

	err := errors.Join(errs...)
	if err != nil {
		log.Printf("[Pipeline] frame: %v", err)
	}
	return err
}

// gridOverlay blends the ground grid over the LDR read buffer into the LDR write buffer, occluded
// by the resolved scene depth. Must be called with p.mu held.
func (p *renderingPipeline) gridOverlay(cam renderer.Camera, grid scene.GridSettings) error {
	vp := cam.ViewProjectionMatrix()
	spacing := grid.Spacing
	if spacing <= 0 {
		spacing = 1
	}
	params := []renderer.Uniform{
		renderer.Mat4Uniform("inv_view_proj", vp.Inv()),
		renderer.Mat4Uniform("view_proj", vp),
		renderer.Vec4Uniform("color", mgl32.Vec4(grid.Color)),
		renderer.Vec4Uniform("shape", mgl32.Vec4{spacing, grid.Extent, grid.FadeNear, grid.FadeFar}),
		renderer.Vec4Uniform("camera_position", cam.Position().Vec4(1)),
	}
	inputs := []renderer.Attachment{
		p.ldr.Read().ColorAttachment(0),
		p.hdr.Read().DepthAttachment(),
	}
	return p.api.CustomBlit(inputs, p.ldr.Write(), p.gridShader, params)
}

func (p *renderingPipeline) RenderIds(s scene.Scene, cam renderer.Camera) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.applyPendingSamples()
	if s == nil {
		return nil
	}

	for _, m := range s.DrainOrphanedIDMeshes() {
		p.api.ReleaseMeshBuffer(m)
	}

	p.idFB.Bind()
	defer p.idFB.Unbind()
	p.api.Clear(mgl32.Vec4{})
	if err := p.idFB.ClearAttachment(0, 0); err != nil {
		return err
	}

	var errs []error
	for _, r := range s.Snapshot() {
		if r.Hidden {
			continue
		}
		mr := s.MeshRenderer(r.Entity)
		if mr == nil {
			continue
		}
		mesh := mr.IDMesh()
		if mesh == nil {
			built, err := p.buildIDMesh(r)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if built == nil {
				continue
			}
			// a model swapped since the snapshot leaves the mesh uncached; it still matches
			// this pass's snapshot and is released on the next pass
			mr.SetIDMesh(r.Model, built)
			mesh = built
		}
		p.api.RenderIndexed(mesh, idMaterial{shader: p.idShader, entity: r.Entity}, cam, r.World)
	}
	return errors.Join(errs...)
}

// buildIDMesh merges every uploaded submesh of the entity's model into one buffer. A nil mesh
// with a nil error means the model has nothing to draw yet.
func (p *renderingPipeline) buildIDMesh(r scene.RenderableSnapshot) (renderer.MeshBuffer, error) {
	model, ok := p.registry.Model(r.Model)
	if !ok {
		return nil, nil
	}
	var vertices []renderer.Vertex
	var indices []uint32
	for _, sm := range model.Submeshes() {
		base := uint32(len(vertices))
		vertices = append(vertices, sm.Vertices()...)
		for _, i := range sm.Indices() {
			indices = append(indices, base+i)
		}
	}
	if len(indices) == 0 {
		return nil, nil
	}
	mesh, err := p.api.CreateMeshBuffer(fmt.Sprintf("%s ids #%d", model.Name(), r.Entity), vertices, indices)
	if err != nil {
		return nil, fmt.Errorf("pipeline: id mesh for entity %d: %w", r.Entity, err)
	}
	return mesh, nil
}

func (p *renderingPipeline) ReadPixelId(x, y int) scene.Entity {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return scene.NullEntity
	}

	v, err := p.idFB.ReadPixel(0, x, y)
	if err != nil {
		if !errors.Is(err, renderer.ErrPixelOutOfBounds) {
			log.Printf("[Pipeline] read id at (%d, %d): %v", x, y, err)
		}
		return scene.NullEntity
	}
	if v <= 0 {
		return scene.NullEntity
	}
	return scene.Entity(v)
}

func (p *renderingPipeline) SetResolution(width, height uint32) error {
	if width == 0 || height == 0 || width > framebuffer.MaxDimension || height > framebuffer.MaxDimension {
		return fmt.Errorf("%w: %dx%d", framebuffer.ErrInvalidSize, width, height)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	err := errors.Join(
		p.sceneFB.Resize(width, height),
		p.idFB.Resize(width, height),
		p.presentFB.Resize(width, height),
		p.hdr.Resize(width, height),
		p.ldr.Resize(width, height),
	)
	p.width, p.height = width, height
	aspect := float32(width) / float32(height)
	setter := p.aspectSetter
	p.mu.Unlock()

	if setter != nil {
		setter.SetAspect(aspect)
	}
	return err
}

func (p *renderingPipeline) Resolution() (uint32, uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.width, p.height
}

func (p *renderingPipeline) AspectRatio() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return float32(p.width) / float32(p.height)
}

func (p *renderingPipeline) SetMsaaSamples(samples uint32) uint32 {
	samples = clampSamples(samples, p.api.MaxSamples())

	p.mu.Lock()
	defer p.mu.Unlock()
	p.pendingSamples = 0
	if p.closed || samples == p.samples {
		return p.samples
	}
	p.samples = samples
	p.sceneFB.SetSamples(samples)
	log.Printf("[Pipeline] MSAA set to %dx", samples)
	return samples
}

// requestMsaaSamples records samples for the next render call. Settings observers run on
// whichever goroutine mutated the settings, which may not own the renderer API.
func (p *renderingPipeline) requestMsaaSamples(samples uint32) {
	samples = clampSamples(samples, p.api.MaxSamples())

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.pendingSamples = samples
}

// applyPendingSamples reallocates the scene framebuffer for a requested sample count. Must be
// called with p.mu held on the render thread.
func (p *renderingPipeline) applyPendingSamples() {
	samples := p.pendingSamples
	if samples == 0 {
		return
	}
	p.pendingSamples = 0
	if samples == p.samples {
		return
	}
	p.samples = samples
	p.sceneFB.SetSamples(samples)
	log.Printf("[Pipeline] MSAA set to %dx", samples)
}

func (p *renderingPipeline) MsaaSamples() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.samples
}

func (p *renderingPipeline) SetExposure(exposure float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exposure = max(exposure, 0)
}

func (p *renderingPipeline) Exposure() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exposure
}

func (p *renderingPipeline) SetTonemapType(t scene.TonemapType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tonemap = t
}

func (p *renderingPipeline) TonemapType() scene.TonemapType {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tonemap
}

func (p *renderingPipeline) Bloom() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bloom
}

func (p *renderingPipeline) Grid() scene.GridSettings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.grid
}

// applySettings copies the values the pipeline follows. Must be called with p.mu held.
func (p *renderingPipeline) applySettings(v scene.SettingsValues) {
	p.tonemap = v.Tonemap
	p.exposure = max(v.Exposure, 0)
	p.bloom = v.Bloom
	p.grid = v.Grid
}

func (p *renderingPipeline) onSettingChanged(change scene.SettingChange, v scene.SettingsValues) {
	switch change {
	case scene.SettingTonemap:
		p.SetTonemapType(v.Tonemap)
	case scene.SettingExposure:
		p.SetExposure(v.Exposure)
	case scene.SettingAntiAliasing:
		p.requestMsaaSamples(v.MSAASamples)
	case scene.SettingBloom:
		p.mu.Lock()
		p.bloom = v.Bloom
		p.mu.Unlock()
	case scene.SettingGrid:
		p.mu.Lock()
		p.grid = v.Grid
		p.mu.Unlock()
	}
}

func (p *renderingPipeline) LoadScene(s scene.Scene) {
	p.UnloadScene()
	if s == nil {
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.active = s
	values := s.Settings().Values()
	p.applySettings(values)
	p.subscription = s.Settings().Subscribe(p.onSettingChanged)
	p.mu.Unlock()

	p.SetMsaaSamples(values.MSAASamples)
	p.worker.SetSource(s)
	p.worker.Invalidate()
	log.Printf("[Pipeline] loaded scene %q", s.Name())
}

func (p *renderingPipeline) UnloadScene() {
	p.mu.Lock()
	s := p.active
	sub := p.subscription
	p.active = nil
	p.subscription = scene.Subscription{}
	p.mu.Unlock()

	if s == nil {
		return
	}
	sub.Unsubscribe()
	p.worker.SetSource(nil)
	p.worker.Invalidate()
	for _, m := range s.DrainAllIDMeshes() {
		p.api.ReleaseMeshBuffer(m)
	}
	log.Printf("[Pipeline] unloaded scene %q", s.Name())
}

func (p *renderingPipeline) ActiveScene() scene.Scene {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *renderingPipeline) Invalidate() {
	p.worker.Invalidate()
}

func (p *renderingPipeline) Worker() drawcall.Worker { return p.worker }

func (p *renderingPipeline) DrawCallCount() int { return p.worker.List().Stats().DrawCalls }
func (p *renderingPipeline) VertexCount() int   { return p.worker.List().Stats().Vertices }
func (p *renderingPipeline) TriangleCount() int { return p.worker.List().Stats().Triangles }

func (p *renderingPipeline) PresentationTexture() renderer.Attachment {
	return p.presentFB.ColorAttachment(0)
}

func (p *renderingPipeline) PresentationFramebuffer() framebuffer.Framebuffer { return p.presentFB }
func (p *renderingPipeline) SceneFramebuffer() framebuffer.Framebuffer        { return p.sceneFB }
func (p *renderingPipeline) IDFramebuffer() framebuffer.Framebuffer           { return p.idFB }
func (p *renderingPipeline) MeshShader() renderer.Shader                      { return p.meshShader }

func (p *renderingPipeline) Close() {
	p.closeOnce.Do(func() {
		p.UnloadScene()
		p.worker.Close()

		p.mu.Lock()
		defer p.mu.Unlock()
		p.closed = true
		p.releaseResources()
	})
}
