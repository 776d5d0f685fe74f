package renderer

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Vertex is the interleaved vertex layout shared by every mesh buffer (32 bytes).
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	UV       [2]float32
}

// Attachment is a single GPU image owned by a render target.
type Attachment interface {
	Label() string
	Format() AttachmentFormat
	Width() uint32
	Height() uint32
	Samples() uint32
}

// RenderTarget is anything the API can bind and draw into: an ordered set of color attachments
// plus an optional depth attachment.
type RenderTarget interface {
	// Specification returns the specification the target was allocated from.
	Specification() FramebufferSpecification

	// ColorAttachments returns the color attachments in specification order.
	// Entries may be nil when allocation failed.
	ColorAttachments() []Attachment

	// DepthAttachment returns the depth attachment, or nil when the target has none.
	DepthAttachment() Attachment
}

// MeshBuffer is an uploaded, indexed triangle mesh.
type MeshBuffer interface {
	Label() string
	VertexCount() int
	IndexCount() int
}

// ShaderKind distinguishes mesh shaders (driven by the shared Vertex layout) from
// fullscreen shaders used by CustomBlit.
type ShaderKind int

const (
	ShaderKindMesh ShaderKind = iota
	ShaderKindFullscreen
)

// ShaderDescriptor describes WGSL source to compile. Both kinds expose vs_main and fs_main entry points.
type ShaderDescriptor struct {
	Key    string
	Kind   ShaderKind
	Source string
}

// Shader is a compiled shader program.
type Shader interface {
	Key() string
	Kind() ShaderKind
	Source() string
}

// UniformType identifies which field of a Uniform carries its value.
type UniformType int

const (
	UniformFloat UniformType = iota
	UniformInt
	UniformVec4
	UniformMat4
)

// Uniform is a single named shader parameter.
type Uniform struct {
	Name  string
	Type  UniformType
	Float float32
	Int   int32
	Vec4  mgl32.Vec4
	Mat4  mgl32.Mat4
}

// FloatUniform returns a float Uniform.
func FloatUniform(name string, v float32) Uniform {
	return Uniform{Name: name, Type: UniformFloat, Float: v}
}

// IntUniform returns an int Uniform.
func IntUniform(name string, v int32) Uniform {
	return Uniform{Name: name, Type: UniformInt, Int: v}
}

// Vec4Uniform returns a vec4 Uniform.
func Vec4Uniform(name string, v mgl32.Vec4) Uniform {
	return Uniform{Name: name, Type: UniformVec4, Vec4: v}
}

// Mat4Uniform returns a mat4 Uniform.
func Mat4Uniform(name string, v mgl32.Mat4) Uniform {
	return Uniform{Name: name, Type: UniformMat4, Mat4: v}
}

// Material is the renderer's view of a material: a shader, a transparency flag, a stable identity
// used for draw ordering and the current parameter values.
type Material interface {
	ID() uint64
	Transparent() bool
	Shader() Shader
	Uniforms() []Uniform
}

// Camera is the renderer's view of a camera.
type Camera interface {
	ViewProjectionMatrix() mgl32.Mat4
	Position() mgl32.Vec3
}

// BlitMask selects which attachments a Blit copies.
type BlitMask uint8

const (
	BlitColor BlitMask = 1 << iota
	BlitDepth
)

// Viewport is a pixel rectangle inside the bound target.
type Viewport struct {
	X, Y          int
	Width, Height uint32
}

// AttachmentDescriptor describes an attachment to allocate.
type AttachmentDescriptor struct {
	Label   string
	Format  AttachmentFormat
	Width   uint32
	Height  uint32
	Samples uint32
}

// MemoryTracker receives GPU memory accounting events from an API implementation.
// vram.Tracker satisfies it.
type MemoryTracker interface {
	AddBuffer(size uint64)
	RemoveBuffer(size uint64) error
	AddShader(size uint64)
	RemoveShader(size uint64) error
	TotalMemory() uint64
}

// API is the low-level graphics capability the rendering pipeline is built on. Implementations
// own the GPU context and must only be driven from the thread that created them.
//
// Targets are bound with a stack discipline: BindTarget pushes, UnbindTarget pops and restores
// the previously bound target together with its viewport.
type API interface {
	// CreateAttachment allocates a GPU image.
	//
	// Parameters:
	//   - desc: the attachment format, size and sample count
	//
	// Returns:
	//   - Attachment: the allocated attachment
	//   - error: an error if the allocation fails
	CreateAttachment(desc AttachmentDescriptor) (Attachment, error)

	// ReleaseAttachment frees a GPU image created by CreateAttachment. Nil is ignored.
	//
	// Parameters:
	//   - a: the attachment to release
	ReleaseAttachment(a Attachment)

	// CreateMeshBuffer uploads vertex and index data as an indexed triangle list.
	//
	// Parameters:
	//   - label: a debug label for the buffers
	//   - vertices: the interleaved vertices
	//   - indices: triangle list indices into vertices
	//
	// Returns:
	//   - MeshBuffer: the uploaded mesh
	//   - error: an error if buffer creation fails
	CreateMeshBuffer(label string, vertices []Vertex, indices []uint32) (MeshBuffer, error)

	// ReleaseMeshBuffer frees a mesh created by CreateMeshBuffer. Nil is ignored.
	ReleaseMeshBuffer(m MeshBuffer)

	// CreateShader compiles a shader program.
	//
	// Parameters:
	//   - desc: the shader key, kind and WGSL source
	//
	// Returns:
	//   - Shader: the compiled shader
	//   - error: an error if compilation fails
	CreateShader(desc ShaderDescriptor) (Shader, error)

	// ReleaseShader frees a shader created by CreateShader. Nil is ignored.
	ReleaseShader(s Shader)

	// BindTarget makes t the current render target and resets the viewport to its full size.
	//
	// Parameters:
	//   - t: the target to draw into
	BindTarget(t RenderTarget)

	// UnbindTarget flushes pending work on the current target and restores the previously
	// bound target and viewport. Unbinding with nothing bound is a no-op.
	UnbindTarget()

	// BoundTarget returns the current render target, or nil.
	BoundTarget() RenderTarget

	// SetViewport sets the pixel rectangle draws are mapped into on the current target.
	//
	// Parameters:
	//   - vp: the viewport rectangle
	SetViewport(vp Viewport)

	// Viewport returns the current viewport.
	Viewport() Viewport

	// Clear clears every color attachment of the current target to color and depth to 1.
	// Integer attachments are cleared to zero.
	//
	// Parameters:
	//   - color: the RGBA clear color
	Clear(color mgl32.Vec4)

	// ClearAttachment fills one color attachment of t with an integer value.
	//
	// Parameters:
	//   - t: the target owning the attachment
	//   - index: the color attachment index
	//   - value: the fill value
	//
	// Returns:
	//   - error: ErrAttachmentIndex for a bad index
	ClearAttachment(t RenderTarget, index int, value int32) error

	// RenderIndexed draws mesh with material into the current target.
	//
	// Parameters:
	//   - mesh: the mesh to draw
	//   - material: the material supplying shader and parameters
	//   - cam: the camera supplying the view-projection matrix
	//   - model: the model matrix
	RenderIndexed(mesh MeshBuffer, material Material, cam Camera, model mgl32.Mat4)

	// Blit copies color and/or depth from src into dst, resolving multisampled sources.
	//
	// Parameters:
	//   - src: the source target
	//   - dst: the destination target
	//   - mask: which attachments to copy
	//
	// Returns:
	//   - error: an error if the copy cannot be encoded
	Blit(src, dst RenderTarget, mask BlitMask) error

	// CustomBlit runs a fullscreen shader over dst, reading from inputs.
	// Inputs are bound in order starting at binding 0 and the packed uniforms follow them.
	//
	// Parameters:
	//   - inputs: the attachments the shader reads
	//   - dst: the target written to
	//   - shader: a ShaderKindFullscreen shader
	//   - params: the shader parameters
	//
	// Returns:
	//   - error: an error if the pass cannot be encoded
	CustomBlit(inputs []Attachment, dst RenderTarget, shader Shader, params []Uniform) error

	// ReadPixel reads one texel of an integer color attachment.
	//
	// Parameters:
	//   - t: the target owning the attachment
	//   - index: the color attachment index
	//   - x, y: the pixel coordinates, origin top-left
	//
	// Returns:
	//   - int32: the stored value
	//   - error: ErrAttachmentIndex, ErrNotInteger or ErrPixelOutOfBounds
	ReadPixel(t RenderTarget, index int, x, y int) (int32, error)

	// MaxSamples returns the highest MSAA sample count the backend supports.
	MaxSamples() uint32

	// QueryVRAMUsage returns the tracked and total device memory in bytes.
	// A total of zero means the backend cannot report it.
	QueryVRAMUsage() (used, total uint64)

	// ResizeSurface reconfigures the window surface. Ignored for headless APIs.
	ResizeSurface(width, height uint32)

	// Present copies the first color attachment of src to the window surface and presents it.
	//
	// Returns:
	//   - error: ErrNoSurface for headless APIs
	Present(src RenderTarget) error

	// Release frees every GPU object owned by the API.
	Release()
}

// NewAPI creates the renderer API for the requested backend.
//
// Parameters:
//   - backendType: the backend to create
//   - options: variadic list of RendererBuilderOption functions
//
// Returns:
//   - API: the created API
//   - error: ErrNoBackend, ErrBackendNotImplemented, ErrUnknownBackend or a device acquisition error
func NewAPI(backendType BackendType, options ...RendererBuilderOption) (API, error) {
	cfg := &apiConfig{
		presentMode: PresentModeVSync,
		maxSamples:  MSAA4x,
	}
	for _, option := range options {
		option(cfg)
	}

	switch backendType {
	case BackendTypeNone:
		return nil, ErrNoBackend
	case BackendTypeWGPU:
		api, err := newWGPUAPI(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s backend: %w", backendType, err)
		}
		return api, nil
	case BackendTypeGoGPU:
		return nil, fmt.Errorf("%w: %s", ErrBackendNotImplemented, backendType)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownBackend, int(backendType))
	}
}

// TargetAttachment returns the color attachment of t at index, failing with ErrAttachmentIndex
// when the index is out of range or the attachment was never allocated.
func TargetAttachment(t RenderTarget, index int) (Attachment, error) {
	colors := t.ColorAttachments()
	if index < 0 || index >= len(colors) || colors[index] == nil {
		return nil, fmt.Errorf("%w: %d of %d", ErrAttachmentIndex, index, len(colors))
	}
	return colors[index], nil
}
