package renderer

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"runtime"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-editor/common"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

//go:embed shaders/blit.wgsl
var blitShaderSource string

//go:embed shaders/depth_blit.wgsl
var depthBlitShaderSource string

//go:embed shaders/depth_blit_ms.wgsl
var depthBlitMSShaderSource string

const (
	// uniformSlotSize is the bytes reserved per draw in the uniform ring. It is a multiple of
	// the 256 byte minUniformBufferOffsetAlignment.
	uniformSlotSize = 512

	uniformRingSize = uniformSlotSize * 8192

	// drawHeaderSize is view_proj + model + camera_position.
	drawHeaderSize = 64 + 64 + 16

	// readbackSize holds one padded row of a single texel copy.
	readbackSize = uint64(wgpu.CopyBytesPerRowAlignment)
)

// wgpuAttachment is a texture plus its views.
type wgpuAttachment struct {
	label   string
	format  AttachmentFormat
	width   uint32
	height  uint32
	samples uint32

	texture *wgpu.Texture
	view    *wgpu.TextureView

	// sampleView is a depth-only view used when a depth/stencil attachment is read by a shader.
	sampleView *wgpu.TextureView
}

func (a *wgpuAttachment) Label() string            { return a.label }
func (a *wgpuAttachment) Format() AttachmentFormat { return a.format }
func (a *wgpuAttachment) Width() uint32            { return a.width }
func (a *wgpuAttachment) Height() uint32           { return a.height }
func (a *wgpuAttachment) Samples() uint32          { return a.samples }

func (a *wgpuAttachment) bindingView() *wgpu.TextureView {
	if a.sampleView != nil {
		return a.sampleView
	}
	return a.view
}

// wgpuMeshBuffer is an uploaded vertex/index buffer pair.
type wgpuMeshBuffer struct {
	label        string
	vertexBuffer *wgpu.Buffer
	indexBuffer  *wgpu.Buffer
	vertexCount  int
	indexCount   int
	size         uint64
}

func (m *wgpuMeshBuffer) Label() string    { return m.label }
func (m *wgpuMeshBuffer) VertexCount() int { return m.vertexCount }
func (m *wgpuMeshBuffer) IndexCount() int  { return m.indexCount }

// wgpuShader is a compiled WGSL module.
type wgpuShader struct {
	key    string
	kind   ShaderKind
	source string
	module *wgpu.ShaderModule
}

func (s *wgpuShader) Key() string      { return s.key }
func (s *wgpuShader) Kind() ShaderKind { return s.kind }
func (s *wgpuShader) Source() string   { return s.source }

// pipelineKey identifies a render pipeline variant. WebGPU pipelines are baked against their
// target formats and sample count, so one shader can own several pipelines.
type pipelineKey struct {
	shader      string
	colors      string
	depth       AttachmentFormat
	samples     uint32
	transparent bool
}

// wgpuAPI is the WebGPU implementation of API.
type wgpuAPI struct {
	mu *sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface

	surfaceFormat wgpu.TextureFormat
	surfaceAlpha  wgpu.CompositeAlphaMode
	presentMode   wgpu.PresentMode
	surfaceWidth  uint32
	surfaceHeight uint32

	maxSamples uint32
	tracker    MemoryTracker

	stack   TargetStack
	encoder *wgpu.CommandEncoder
	pass    *wgpu.RenderPassEncoder

	uniformRing *wgpu.Buffer
	ringOffset  uint64
	readback    *wgpu.Buffer

	drawLayout         *wgpu.BindGroupLayout
	drawPipelineLayout *wgpu.PipelineLayout
	drawBindGroup      *wgpu.BindGroup

	pipelines map[pipelineKey]*wgpu.RenderPipeline

	blitShader         *wgpuShader
	depthBlitShader    *wgpuShader
	depthBlitMSShader  *wgpuShader
	trackedBufferBytes uint64
}

var _ API = &wgpuAPI{}

func newWGPUAPI(cfg *apiConfig) (*wgpuAPI, error) {
	runtime.LockOSThread()
	b := &wgpuAPI{
		mu:         &sync.Mutex{},
		instance:   wgpu.CreateInstance(nil),
		maxSamples: uint32(cfg.maxSamples),
		tracker:    cfg.tracker,
		pipelines:  make(map[pipelineKey]*wgpu.RenderPipeline),
	}
	switch cfg.presentMode {
	case PresentModeVSync:
		b.presentMode = wgpu.PresentModeFifo
	default:
		b.presentMode = wgpu.PresentModeImmediate
	}

	if cfg.surfaceDescriptor != nil {
		b.surface = b.instance.CreateSurface(cfg.surfaceDescriptor)
	}

	a, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: cfg.forceFallbackAdapter,
		CompatibleSurface:    b.surface,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to request adapter: %w", err)
	}
	b.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Editor Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to request device: %w", err)
	}
	b.device = d
	b.queue = d.GetQueue()

	if err := b.initSharedResources(); err != nil {
		return nil, err
	}

	if b.surface != nil && cfg.surfaceWidth > 0 && cfg.surfaceHeight > 0 {
		b.configureSurface(cfg.surfaceWidth, cfg.surfaceHeight)
	}

	return b, nil
}

func (b *wgpuAPI) initSharedResources() error {
	var err error
	b.uniformRing, err = b.createTrackedBuffer("Uniform Ring", uniformRingSize, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	b.readback, err = b.createTrackedBuffer("Pixel Readback", readbackSize, wgpu.BufferUsageMapRead|wgpu.BufferUsageCopyDst)
	if err != nil {
		return err
	}

	b.drawLayout, err = b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Draw Uniforms Layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
				Buffer: wgpu.BufferBindingLayout{
					Type:             wgpu.BufferBindingTypeUniform,
					HasDynamicOffset: true,
					MinBindingSize:   uniformSlotSize,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create draw bind group layout: %w", err)
	}

	b.drawPipelineLayout, err = b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "Draw Pipeline Layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{b.drawLayout},
	})
	if err != nil {
		return fmt.Errorf("failed to create draw pipeline layout: %w", err)
	}

	b.drawBindGroup, err = b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Draw Uniforms",
		Layout: b.drawLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: b.uniformRing, Offset: 0, Size: uniformSlotSize},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create draw bind group: %w", err)
	}

	builtins := []struct {
		dst    **wgpuShader
		key    string
		source string
	}{
		{&b.blitShader, "builtin.blit", blitShaderSource},
		{&b.depthBlitShader, "builtin.depth_blit", depthBlitShaderSource},
		{&b.depthBlitMSShader, "builtin.depth_blit_ms", depthBlitMSShaderSource},
	}
	for _, bi := range builtins {
		s, err := b.compile(ShaderDescriptor{Key: bi.key, Kind: ShaderKindFullscreen, Source: bi.source})
		if err != nil {
			return err
		}
		*bi.dst = s
	}
	return nil
}

func (b *wgpuAPI) createTrackedBuffer(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer %q: %w", label, err)
	}
	if b.tracker != nil {
		b.tracker.AddBuffer(size)
	}
	b.trackedBufferBytes += size
	return buf, nil
}

func (b *wgpuAPI) releaseTrackedBuffer(buf *wgpu.Buffer, size uint64) {
	if buf == nil {
		return
	}
	buf.Release()
	if b.tracker != nil {
		if err := b.tracker.RemoveBuffer(size); err != nil {
			log.Printf("[Renderer] %v", err)
		}
	}
	b.trackedBufferBytes -= min(size, b.trackedBufferBytes)
}

func (b *wgpuAPI) configureSurface(width, height uint32) {
	capabilities := b.surface.GetCapabilities(b.adapter)
	b.surfaceFormat = capabilities.Formats[0]
	b.surfaceAlpha = capabilities.AlphaModes[0]
	b.surfaceWidth = width
	b.surfaceHeight = height

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      b.surfaceFormat,
		Width:       width,
		Height:      height,
		PresentMode: b.presentMode,
		AlphaMode:   b.surfaceAlpha,
	})
}

func wgpuFormat(f AttachmentFormat) wgpu.TextureFormat {
	switch f {
	case AttachmentRGBA8:
		return wgpu.TextureFormatRGBA8Unorm
	case AttachmentRGBA16F:
		return wgpu.TextureFormatRGBA16Float
	case AttachmentRGBA32F:
		return wgpu.TextureFormatRGBA32Float
	case AttachmentRedInteger:
		return wgpu.TextureFormatR32Sint
	case AttachmentDepth24Stencil8:
		return wgpu.TextureFormatDepth24PlusStencil8
	case AttachmentDepth32F:
		return wgpu.TextureFormatDepth32Float
	default:
		return wgpu.TextureFormatUndefined
	}
}

// asWGPU unwraps an Attachment created by this backend. Nil and foreign attachments yield nil.
func asWGPU(a Attachment) *wgpuAttachment {
	wa, ok := a.(*wgpuAttachment)
	if !ok || wa == nil {
		return nil
	}
	return wa
}

func (b *wgpuAPI) CreateAttachment(desc AttachmentDescriptor) (Attachment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	format := wgpuFormat(desc.Format)
	if format == wgpu.TextureFormatUndefined {
		return nil, fmt.Errorf("unsupported attachment format %s", desc.Format)
	}
	samples := common.Coalesce(desc.Samples, 1)

	usage := wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding
	if samples == 1 {
		usage |= wgpu.TextureUsageCopySrc | wgpu.TextureUsageCopyDst
	}

	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   samples,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create attachment %q: %w", desc.Label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("failed to create view for %q: %w", desc.Label, err)
	}

	a := &wgpuAttachment{
		label:   desc.Label,
		format:  desc.Format,
		width:   desc.Width,
		height:  desc.Height,
		samples: samples,
		texture: tex,
		view:    view,
	}

	if desc.Format == AttachmentDepth24Stencil8 {
		a.sampleView, err = tex.CreateView(&wgpu.TextureViewDescriptor{
			Label:           desc.Label + " Depth Only",
			Format:          format,
			Dimension:       wgpu.TextureViewDimension2D,
			BaseMipLevel:    0,
			MipLevelCount:   1,
			BaseArrayLayer:  0,
			ArrayLayerCount: 1,
			Aspect:          wgpu.TextureAspectDepthOnly,
		})
		if err != nil {
			view.Release()
			tex.Release()
			return nil, fmt.Errorf("failed to create depth view for %q: %w", desc.Label, err)
		}
	}

	return a, nil
}

func (b *wgpuAPI) ReleaseAttachment(a Attachment) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wa := asWGPU(a)
	if wa == nil {
		return
	}
	if wa.sampleView != nil {
		wa.sampleView.Release()
		wa.sampleView = nil
	}
	if wa.view != nil {
		wa.view.Release()
		wa.view = nil
	}
	if wa.texture != nil {
		wa.texture.Release()
		wa.texture = nil
	}
}

func (b *wgpuAPI) CreateMeshBuffer(label string, vertices []Vertex, indices []uint32) (MeshBuffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(vertices) == 0 || len(indices) == 0 {
		return nil, fmt.Errorf("mesh %q has no geometry", label)
	}

	vertexData := common.SliceToBytes(vertices)
	indexData := common.SliceToBytes(indices)

	vb, err := b.createTrackedBuffer(label+" Vertex Buffer", uint64(len(vertexData)), wgpu.BufferUsageVertex|wgpu.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	b.queue.WriteBuffer(vb, 0, vertexData)

	ib, err := b.createTrackedBuffer(label+" Index Buffer", uint64(len(indexData)), wgpu.BufferUsageIndex|wgpu.BufferUsageCopyDst)
	if err != nil {
		b.releaseTrackedBuffer(vb, uint64(len(vertexData)))
		return nil, err
	}
	b.queue.WriteBuffer(ib, 0, indexData)

	return &wgpuMeshBuffer{
		label:        label,
		vertexBuffer: vb,
		indexBuffer:  ib,
		vertexCount:  len(vertices),
		indexCount:   len(indices),
		size:         uint64(len(vertexData) + len(indexData)),
	}, nil
}

func (b *wgpuAPI) ReleaseMeshBuffer(m MeshBuffer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wm, ok := m.(*wgpuMeshBuffer)
	if !ok || wm == nil || wm.vertexBuffer == nil {
		return
	}
	vertexBytes := uint64(wm.vertexCount) * 32
	b.releaseTrackedBuffer(wm.vertexBuffer, vertexBytes)
	b.releaseTrackedBuffer(wm.indexBuffer, wm.size-vertexBytes)
	wm.vertexBuffer = nil
	wm.indexBuffer = nil
}

func (b *wgpuAPI) compile(desc ShaderDescriptor) (*wgpuShader, error) {
	module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: desc.Key,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: desc.Source,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader %q: %w", desc.Key, err)
	}
	if b.tracker != nil {
		b.tracker.AddShader(uint64(len(desc.Source)))
	}
	return &wgpuShader{key: desc.Key, kind: desc.Kind, source: desc.Source, module: module}, nil
}

func (b *wgpuAPI) CreateShader(desc ShaderDescriptor) (Shader, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.compile(desc)
}

func (b *wgpuAPI) ReleaseShader(s Shader) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ws, ok := s.(*wgpuShader)
	if !ok || ws == nil || ws.module == nil {
		return
	}
	for key, p := range b.pipelines {
		if key.shader == ws.key {
			p.Release()
			delete(b.pipelines, key)
		}
	}
	ws.module.Release()
	ws.module = nil
	if b.tracker != nil {
		if err := b.tracker.RemoveShader(uint64(len(ws.source))); err != nil {
			log.Printf("[Renderer] %v", err)
		}
	}
}

func (b *wgpuAPI) BindTarget(t RenderTarget) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endPass()
	b.stack.Push(t)
}

func (b *wgpuAPI) UnbindTarget() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endPass()
	b.stack.Pop()
	b.flush()
}

func (b *wgpuAPI) BoundTarget() RenderTarget {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, _ := b.stack.Top()
	return t
}

func (b *wgpuAPI) SetViewport(vp Viewport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stack.SetViewport(vp)
	if b.pass != nil {
		b.pass.SetViewport(float32(vp.X), float32(vp.Y), float32(vp.Width), float32(vp.Height), 0, 1)
	}
}

func (b *wgpuAPI) Viewport() Viewport {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, vp := b.stack.Top()
	return vp
}

func (b *wgpuAPI) ensureEncoder() error {
	if b.encoder != nil {
		return nil
	}
	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("failed to create command encoder: %w", err)
	}
	b.encoder = encoder
	return nil
}

func depthStencilAttachment(d *wgpuAttachment, load wgpu.LoadOp) *wgpu.RenderPassDepthStencilAttachment {
	ds := &wgpu.RenderPassDepthStencilAttachment{
		View:            d.view,
		DepthLoadOp:     load,
		DepthStoreOp:    wgpu.StoreOpStore,
		DepthClearValue: 1.0,
	}
	if d.format == AttachmentDepth24Stencil8 {
		ds.StencilLoadOp = load
		ds.StencilStoreOp = wgpu.StoreOpStore
		ds.StencilClearValue = 0
	}
	return ds
}

// beginPass opens a render pass over every attachment of the bound target.
// Must be called with b.mu held.
func (b *wgpuAPI) beginPass(clear bool, color mgl32.Vec4) error {
	target, vp := b.stack.Top()
	if target == nil {
		return fmt.Errorf("no render target bound")
	}
	if err := b.ensureEncoder(); err != nil {
		return err
	}

	load := wgpu.LoadOpLoad
	if clear {
		load = wgpu.LoadOpClear
	}

	desc := &wgpu.RenderPassDescriptor{}
	for _, a := range target.ColorAttachments() {
		wa := asWGPU(a)
		if wa == nil {
			continue
		}
		clearValue := wgpu.Color{R: float64(color[0]), G: float64(color[1]), B: float64(color[2]), A: float64(color[3])}
		if wa.format.IsInteger() {
			clearValue = wgpu.Color{}
		}
		desc.ColorAttachments = append(desc.ColorAttachments, wgpu.RenderPassColorAttachment{
			View:       wa.view,
			LoadOp:     load,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: clearValue,
		})
	}
	if d := asWGPU(target.DepthAttachment()); d != nil {
		desc.DepthStencilAttachment = depthStencilAttachment(d, load)
	}

	b.pass = b.encoder.BeginRenderPass(desc)
	b.pass.SetViewport(float32(vp.X), float32(vp.Y), float32(vp.Width), float32(vp.Height), 0, 1)
	return nil
}

// endPass must be called with b.mu held.
func (b *wgpuAPI) endPass() {
	if b.pass == nil {
		return
	}
	b.pass.End()
	b.pass = nil
}

// flush submits all recorded work. Must be called with b.mu held.
func (b *wgpuAPI) flush() {
	b.endPass()
	if b.encoder == nil {
		return
	}

	commandBuffer, err := b.encoder.Finish(nil)
	if err != nil {
		log.Printf("[Renderer] failed to finish command encoder: %v", err)
		b.encoder.Release()
		b.encoder = nil
		return
	}
	b.queue.Submit(commandBuffer)

	commandBuffer.Release()
	b.encoder.Release()
	b.encoder = nil
	b.ringOffset = 0
}

func (b *wgpuAPI) Clear(color mgl32.Vec4) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.endPass()
	if err := b.beginPass(true, color); err != nil {
		log.Printf("[Renderer] clear skipped: %v", err)
	}
}

func (b *wgpuAPI) ClearAttachment(t RenderTarget, index int, value int32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	a, err := TargetAttachment(t, index)
	if err != nil {
		return err
	}
	wa := asWGPU(a)
	if wa == nil {
		return fmt.Errorf("%w: foreign attachment", ErrAttachmentIndex)
	}

	b.endPass()
	if err := b.ensureEncoder(); err != nil {
		return err
	}
	pass := b.encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       wa.view,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: wgpu.Color{R: float64(value)},
			},
		},
	})
	pass.End()
	return nil
}

// packUniforms writes uniforms as consecutive 16 byte aligned slots, matching a WGSL struct whose
// members are declared in the same order (f32/i32 padded to a vec4 slot, mat4 using four).
func packUniforms(dst []byte, uniforms []Uniform) int {
	offset := 0
	put := func(bits uint32) {
		if offset+4 <= len(dst) {
			binary.LittleEndian.PutUint32(dst[offset:], bits)
		}
		offset += 4
	}
	for _, u := range uniforms {
		switch u.Type {
		case UniformFloat:
			put(math.Float32bits(u.Float))
			offset += 12
		case UniformInt:
			put(uint32(u.Int))
			offset += 12
		case UniformVec4:
			for _, v := range u.Vec4 {
				put(math.Float32bits(v))
			}
		case UniformMat4:
			for _, v := range u.Mat4 {
				put(math.Float32bits(v))
			}
		}
	}
	return offset
}

// writeUniformSlot uploads data into the next free ring slot and returns its offset.
// Must be called with b.mu held.
func (b *wgpuAPI) writeUniformSlot(data []byte) (uint32, bool) {
	if b.ringOffset+uniformSlotSize > uniformRingSize {
		return 0, false
	}
	offset := b.ringOffset
	b.queue.WriteBuffer(b.uniformRing, offset, data)
	b.ringOffset += uniformSlotSize
	return uint32(offset), true
}

func colorKey(formats []AttachmentFormat) string {
	parts := make([]string, len(formats))
	for i, f := range formats {
		parts[i] = f.String()
	}
	return strings.Join(parts, ",")
}

var vertexLayout = wgpu.VertexBufferLayout{
	ArrayStride: 32,
	StepMode:    wgpu.VertexStepModeVertex,
	Attributes: []wgpu.VertexAttribute{
		{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
		{Format: wgpu.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1},
		{Format: wgpu.VertexFormatFloat32x2, Offset: 24, ShaderLocation: 2},
	},
}

var alphaBlend = &wgpu.BlendState{
	Color: wgpu.BlendComponent{
		SrcFactor: wgpu.BlendFactorSrcAlpha,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
		Operation: wgpu.BlendOperationAdd,
	},
	Alpha: wgpu.BlendComponent{
		SrcFactor: wgpu.BlendFactorOne,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
		Operation: wgpu.BlendOperationAdd,
	},
}

// renderPipeline returns the cached pipeline for shader drawing into spec's formats, creating it
// on first use. Must be called with b.mu held.
func (b *wgpuAPI) renderPipeline(s *wgpuShader, spec FramebufferSpecification, transparent bool) (*wgpu.RenderPipeline, error) {
	colors := spec.ColorFormats()
	depth := spec.DepthFormat()
	samples := common.Coalesce(spec.Samples, 1)
	key := pipelineKey{shader: s.key, colors: colorKey(colors), depth: depth, samples: samples, transparent: transparent}
	if p, ok := b.pipelines[key]; ok {
		return p, nil
	}

	targets := make([]wgpu.ColorTargetState, 0, len(colors))
	for _, f := range colors {
		state := wgpu.ColorTargetState{
			Format:    wgpuFormat(f),
			WriteMask: wgpu.ColorWriteMaskAll,
		}
		if transparent && !f.IsInteger() {
			state.Blend = alphaBlend
		}
		targets = append(targets, state)
	}

	desc := &wgpu.RenderPipelineDescriptor{
		Label: s.key + " Render Pipeline",
		Vertex: wgpu.VertexState{
			Module:     s.module,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     s.module,
			EntryPoint: "fs_main",
			Targets:    targets,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: samples,
			Mask:  0xFFFFFFFF,
		},
	}

	if s.kind == ShaderKindMesh {
		desc.Layout = b.drawPipelineLayout
		desc.Vertex.Buffers = []wgpu.VertexBufferLayout{vertexLayout}
		desc.Primitive.CullMode = wgpu.CullModeBack
	}

	if depth != AttachmentNone {
		compare := wgpu.CompareFunctionLess
		write := !transparent
		if s.kind == ShaderKindFullscreen {
			compare = wgpu.CompareFunctionAlways
			write = len(targets) == 0
		}
		desc.DepthStencil = &wgpu.DepthStencilState{
			Format:            wgpuFormat(depth),
			DepthWriteEnabled: write,
			DepthCompare:      compare,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		}
	}

	p, err := b.device.CreateRenderPipeline(desc)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline for %q: %w", s.key, err)
	}
	b.pipelines[key] = p
	return p, nil
}

func (b *wgpuAPI) RenderIndexed(mesh MeshBuffer, material Material, cam Camera, model mgl32.Mat4) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wm, ok := mesh.(*wgpuMeshBuffer)
	if !ok || wm == nil || wm.vertexBuffer == nil || material == nil {
		return
	}
	ws, ok := material.Shader().(*wgpuShader)
	if !ok || ws == nil || ws.module == nil {
		return
	}
	target, _ := b.stack.Top()
	if target == nil {
		log.Printf("[Renderer] draw of %q with no bound target", wm.label)
		return
	}

	p, err := b.renderPipeline(ws, target.Specification(), material.Transparent())
	if err != nil {
		log.Printf("[Renderer] %v", err)
		return
	}

	data := make([]byte, uniformSlotSize)
	header := []Uniform{
		Mat4Uniform("view_proj", cam.ViewProjectionMatrix()),
		Mat4Uniform("model", model),
		Vec4Uniform("camera_position", cam.Position().Vec4(1)),
	}
	packUniforms(data, header)
	packUniforms(data[drawHeaderSize:], material.Uniforms())

	offset, ok := b.writeUniformSlot(data)
	if !ok {
		b.flush()
		offset, _ = b.writeUniformSlot(data)
	}

	if b.pass == nil {
		if err := b.beginPass(false, mgl32.Vec4{}); err != nil {
			log.Printf("[Renderer] %v", err)
			return
		}
	}

	b.pass.SetPipeline(p)
	b.pass.SetBindGroup(0, b.drawBindGroup, []uint32{offset})
	b.pass.SetVertexBuffer(0, wm.vertexBuffer, 0, wgpu.WholeSize)
	b.pass.SetIndexBuffer(wm.indexBuffer, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
	b.pass.DrawIndexed(uint32(wm.indexCount), 1, 0, 0, 0)
}

// fullscreenPass draws a single fullscreen triangle with shader into the color and/or depth
// attachment given, binding inputs (and params when present) to group 0.
// Must be called with b.mu held and no open pass.
func (b *wgpuAPI) fullscreenPass(s *wgpuShader, inputs []*wgpuAttachment, color, depth *wgpuAttachment, params []Uniform) error {
	spec := FramebufferSpecification{}
	if color != nil {
		spec.Width, spec.Height, spec.Samples = color.width, color.height, color.samples
		spec.Attachments = append(spec.Attachments, color.format)
	}
	if depth != nil {
		spec.Width, spec.Height, spec.Samples = depth.width, depth.height, depth.samples
		spec.Attachments = append(spec.Attachments, depth.format)
	}

	p, err := b.renderPipeline(s, spec, false)
	if err != nil {
		return err
	}

	entries := make([]wgpu.BindGroupEntry, 0, len(inputs)+1)
	for i, in := range inputs {
		entries = append(entries, wgpu.BindGroupEntry{Binding: uint32(i), TextureView: in.bindingView()})
	}
	if len(params) > 0 {
		data := make([]byte, uniformSlotSize)
		packUniforms(data, params)
		offset, ok := b.writeUniformSlot(data)
		if !ok {
			b.flush()
			offset, _ = b.writeUniformSlot(data)
		}
		entries = append(entries, wgpu.BindGroupEntry{
			Binding: uint32(len(inputs)),
			Buffer:  b.uniformRing,
			Offset:  uint64(offset),
			Size:    uniformSlotSize,
		})
	}

	layout := p.GetBindGroupLayout(0)
	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   s.key + " Inputs",
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("failed to bind inputs for %q: %w", s.key, err)
	}
	defer bindGroup.Release()

	if err := b.ensureEncoder(); err != nil {
		return err
	}
	desc := &wgpu.RenderPassDescriptor{}
	if color != nil {
		desc.ColorAttachments = []wgpu.RenderPassColorAttachment{
			{View: color.view, LoadOp: wgpu.LoadOpLoad, StoreOp: wgpu.StoreOpStore},
		}
	}
	if depth != nil {
		desc.DepthStencilAttachment = depthStencilAttachment(depth, wgpu.LoadOpLoad)
	}
	pass := b.encoder.BeginRenderPass(desc)
	pass.SetPipeline(p)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Draw(3, 1, 0, 0)
	pass.End()

	// The bind group must outlive the submission that uses it.
	b.flush()
	return nil
}

func (b *wgpuAPI) Blit(src, dst RenderTarget, mask BlitMask) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.endPass()

	if mask&BlitColor != 0 {
		srcColors := src.ColorAttachments()
		dstColors := dst.ColorAttachments()
		for i := 0; i < len(srcColors) && i < len(dstColors); i++ {
			sa, da := asWGPU(srcColors[i]), asWGPU(dstColors[i])
			if sa == nil || da == nil {
				continue
			}
			if err := b.blitColor(sa, da); err != nil {
				return err
			}
		}
	}

	if mask&BlitDepth != 0 {
		sd, dd := asWGPU(src.DepthAttachment()), asWGPU(dst.DepthAttachment())
		if sd != nil && dd != nil {
			shader := b.depthBlitShader
			if sd.samples > 1 {
				shader = b.depthBlitMSShader
			}
			if err := b.fullscreenPass(shader, []*wgpuAttachment{sd}, nil, dd, nil); err != nil {
				return err
			}
		}
	}

	b.flush()
	return nil
}

// blitColor must be called with b.mu held and no open pass.
func (b *wgpuAPI) blitColor(sa, da *wgpuAttachment) error {
	sameShape := sa.format == da.format && sa.width == da.width && sa.height == da.height
	if err := b.ensureEncoder(); err != nil {
		return err
	}

	switch {
	case sameShape && sa.samples > 1 && da.samples == 1:
		pass := b.encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
			ColorAttachments: []wgpu.RenderPassColorAttachment{
				{View: sa.view, ResolveTarget: da.view, LoadOp: wgpu.LoadOpLoad, StoreOp: wgpu.StoreOpStore},
			},
		})
		pass.End()
		return nil
	case sameShape && sa.samples == 1 && da.samples == 1:
		return b.encoder.CopyTextureToTexture(
			&wgpu.ImageCopyTexture{Texture: sa.texture, MipLevel: 0, Aspect: wgpu.TextureAspectAll},
			&wgpu.ImageCopyTexture{Texture: da.texture, MipLevel: 0, Aspect: wgpu.TextureAspectAll},
			&wgpu.Extent3D{Width: sa.width, Height: sa.height, DepthOrArrayLayers: 1},
		)
	default:
		return b.fullscreenPass(b.blitShader, []*wgpuAttachment{sa}, da, nil, nil)
	}
}

func (b *wgpuAPI) CustomBlit(inputs []Attachment, dst RenderTarget, shader Shader, params []Uniform) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ws, ok := shader.(*wgpuShader)
	if !ok || ws == nil || ws.module == nil {
		return fmt.Errorf("custom blit with unusable shader")
	}
	wins := make([]*wgpuAttachment, 0, len(inputs))
	for _, in := range inputs {
		wa := asWGPU(in)
		if wa == nil {
			return fmt.Errorf("custom blit %q: missing input attachment", ws.key)
		}
		wins = append(wins, wa)
	}
	colors := dst.ColorAttachments()
	if len(colors) == 0 || asWGPU(colors[0]) == nil {
		return fmt.Errorf("custom blit %q: %w", ws.key, ErrAttachmentIndex)
	}

	b.endPass()
	return b.fullscreenPass(ws, wins, asWGPU(colors[0]), nil, params)
}

func (b *wgpuAPI) ReadPixel(t RenderTarget, index int, x, y int) (int32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	a, err := TargetAttachment(t, index)
	if err != nil {
		return 0, err
	}
	wa := asWGPU(a)
	if wa == nil {
		return 0, fmt.Errorf("%w: foreign attachment", ErrAttachmentIndex)
	}
	if !wa.format.IsInteger() {
		return 0, fmt.Errorf("%w: %s", ErrNotInteger, wa.format)
	}
	if x < 0 || y < 0 || x >= int(wa.width) || y >= int(wa.height) {
		return 0, fmt.Errorf("%w: (%d, %d)", ErrPixelOutOfBounds, x, y)
	}

	b.flush()
	if err := b.ensureEncoder(); err != nil {
		return 0, err
	}
	err = b.encoder.CopyTextureToBuffer(
		&wgpu.ImageCopyTexture{
			Texture:  wa.texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{X: uint32(x), Y: uint32(y)},
			Aspect:   wgpu.TextureAspectAll,
		},
		&wgpu.ImageCopyBuffer{
			Buffer: b.readback,
			Layout: wgpu.TextureDataLayout{
				Offset:       0,
				BytesPerRow:  uint32(readbackSize),
				RowsPerImage: 1,
			},
		},
		&wgpu.Extent3D{Width: 1, Height: 1, DepthOrArrayLayers: 1},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to copy pixel: %w", err)
	}
	b.flush()

	var status wgpu.BufferMapAsyncStatus
	err = b.readback.MapAsync(wgpu.MapModeRead, 0, 4, func(s wgpu.BufferMapAsyncStatus) {
		status = s
	})
	if err != nil {
		return 0, fmt.Errorf("failed to map readback buffer: %w", err)
	}
	b.device.Poll(true, nil)
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return 0, fmt.Errorf("readback map status %v", status)
	}
	value := int32(binary.LittleEndian.Uint32(b.readback.GetMappedRange(0, 4)))
	b.readback.Unmap()
	return value, nil
}

func (b *wgpuAPI) MaxSamples() uint32 {
	return b.maxSamples
}

func (b *wgpuAPI) QueryVRAMUsage() (used, total uint64) {
	if b.tracker != nil {
		return b.tracker.TotalMemory(), 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trackedBufferBytes, 0
}

func (b *wgpuAPI) ResizeSurface(width, height uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.surface == nil || width == 0 || height == 0 {
		return
	}
	b.configureSurface(width, height)
}

func (b *wgpuAPI) Present(src RenderTarget) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.surface == nil {
		return ErrNoSurface
	}
	colors := src.ColorAttachments()
	if len(colors) == 0 || asWGPU(colors[0]) == nil {
		return fmt.Errorf("present: %w", ErrAttachmentIndex)
	}
	b.flush()

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("failed to acquire surface texture: %w", err)
	}
	defer surfaceTexture.Release()
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		return fmt.Errorf("failed to create surface view: %w", err)
	}
	defer view.Release()

	// The swapchain image is wrapped as a transient attachment so the shared blit path applies.
	swap := &wgpuAttachment{
		label:   "Surface",
		format:  AttachmentRGBA8,
		width:   b.surfaceWidth,
		height:  b.surfaceHeight,
		samples: 1,
		view:    view,
	}
	if err := b.presentBlit(asWGPU(colors[0]), swap); err != nil {
		return err
	}
	b.surface.Present()
	return nil
}

// presentBlit draws src into the surface view with a pipeline baked for the surface format.
// Must be called with b.mu held.
func (b *wgpuAPI) presentBlit(src, swap *wgpuAttachment) error {
	key := pipelineKey{shader: b.blitShader.key, colors: fmt.Sprintf("surface:%d", b.surfaceFormat), samples: 1}
	p, ok := b.pipelines[key]
	if !ok {
		var err error
		p, err = b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
			Label:  "Present Pipeline",
			Vertex: wgpu.VertexState{Module: b.blitShader.module, EntryPoint: "vs_main"},
			Fragment: &wgpu.FragmentState{
				Module:     b.blitShader.module,
				EntryPoint: "fs_main",
				Targets:    []wgpu.ColorTargetState{{Format: b.surfaceFormat, WriteMask: wgpu.ColorWriteMaskAll}},
			},
			Primitive:   wgpu.PrimitiveState{Topology: wgpu.PrimitiveTopologyTriangleList, FrontFace: wgpu.FrontFaceCCW, CullMode: wgpu.CullModeNone},
			Multisample: wgpu.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
		})
		if err != nil {
			return fmt.Errorf("failed to create present pipeline: %w", err)
		}
		b.pipelines[key] = p
	}

	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   "Present Input",
		Layout:  p.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{{Binding: 0, TextureView: src.view}},
	})
	if err != nil {
		return fmt.Errorf("failed to bind present input: %w", err)
	}
	defer bindGroup.Release()

	if err := b.ensureEncoder(); err != nil {
		return err
	}
	pass := b.encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{View: swap.view, LoadOp: wgpu.LoadOpClear, StoreOp: wgpu.StoreOpStore, ClearValue: wgpu.Color{A: 1}},
		},
	})
	pass.SetPipeline(p)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Draw(3, 1, 0, 0)
	pass.End()
	b.flush()
	return nil
}

func (b *wgpuAPI) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.flush()
	for key, p := range b.pipelines {
		p.Release()
		delete(b.pipelines, key)
	}
	for _, s := range []*wgpuShader{b.blitShader, b.depthBlitShader, b.depthBlitMSShader} {
		if s != nil && s.module != nil {
			s.module.Release()
			s.module = nil
			if b.tracker != nil {
				if err := b.tracker.RemoveShader(uint64(len(s.source))); err != nil {
					log.Printf("[Renderer] %v", err)
				}
			}
		}
	}
	if b.drawBindGroup != nil {
		b.drawBindGroup.Release()
	}
	if b.drawPipelineLayout != nil {
		b.drawPipelineLayout.Release()
	}
	if b.drawLayout != nil {
		b.drawLayout.Release()
	}
	b.releaseTrackedBuffer(b.uniformRing, uniformRingSize)
	b.releaseTrackedBuffer(b.readback, readbackSize)
	b.uniformRing, b.readback = nil, nil

	if b.queue != nil {
		b.queue.Release()
	}
	if b.device != nil {
		b.device.Release()
	}
	if b.adapter != nil {
		b.adapter.Release()
	}
	if b.surface != nil {
		b.surface.Release()
	}
	if b.instance != nil {
		b.instance.Release()
	}
}
