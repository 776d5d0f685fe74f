// Package renderertest provides a recording, CPU-only renderer.API for tests. Integer color
// attachments are backed by real memory and RenderIndexed rasterises triangles into them, so
// picking can be exercised end to end without a GPU.
package renderertest

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-editor/engine/renderer"
	"github.com/go-gl/mathgl/mgl32"
)

// EntityIDUniform is the integer uniform RenderIndexed writes into integer attachments.
const EntityIDUniform = "entity_id"

// Attachment is a CPU-side attachment. Ints is populated for integer formats and Depth for
// depth formats; other formats carry no pixel data.
type Attachment struct {
	label   string
	format  renderer.AttachmentFormat
	width   uint32
	height  uint32
	samples uint32

	Ints     []int32
	Depth    []float32
	Released bool
}

func (a *Attachment) Label() string                    { return a.label }
func (a *Attachment) Format() renderer.AttachmentFormat { return a.format }
func (a *Attachment) Width() uint32                    { return a.width }
func (a *Attachment) Height() uint32                   { return a.height }
func (a *Attachment) Samples() uint32                  { return a.samples }

// MeshBuffer keeps the uploaded geometry for rasterisation.
type MeshBuffer struct {
	label    string
	Vertices []renderer.Vertex
	Indices  []uint32
	Released bool
}

func (m *MeshBuffer) Label() string    { return m.label }
func (m *MeshBuffer) VertexCount() int { return len(m.Vertices) }
func (m *MeshBuffer) IndexCount() int  { return len(m.Indices) }

// Shader records its descriptor.
type Shader struct {
	desc     renderer.ShaderDescriptor
	Released bool
}

func (s *Shader) Key() string               { return s.desc.Key }
func (s *Shader) Kind() renderer.ShaderKind { return s.desc.Kind }
func (s *Shader) Source() string            { return s.desc.Source }

// Call is one recorded API operation.
type Call struct {
	Op     string
	Target string
	Detail string
}

func (c Call) String() string {
	parts := []string{c.Op}
	if c.Target != "" {
		parts = append(parts, c.Target)
	}
	if c.Detail != "" {
		parts = append(parts, c.Detail)
	}
	return strings.Join(parts, " ")
}

// API is the fake renderer.API.
type API struct {
	mu *sync.Mutex

	stack renderer.TargetStack
	calls []Call

	maxSamples  uint32
	failFormats map[renderer.AttachmentFormat]bool

	liveAttachments map[*Attachment]struct{}
	liveMeshes      map[*MeshBuffer]struct{}
	presented       int
	released        bool
}

var _ renderer.API = &API{}

// New creates a fake API reporting maxSamples from MaxSamples.
func New(maxSamples uint32) *API {
	return &API{
		mu:              &sync.Mutex{},
		maxSamples:      maxSamples,
		failFormats:     make(map[renderer.AttachmentFormat]bool),
		liveAttachments: make(map[*Attachment]struct{}),
		liveMeshes:      make(map[*MeshBuffer]struct{}),
	}
}

// FailFormat makes CreateAttachment fail for every attachment of format f.
func (f *API) FailFormat(format renderer.AttachmentFormat) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFormats[format] = true
}

// Calls returns a copy of every recorded call.
func (f *API) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Ops returns the recorded calls rendered as strings.
func (f *API) Ops() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

// ResetCalls clears the call log.
func (f *API) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// LiveAttachments returns the number of attachments created and not yet released.
func (f *API) LiveAttachments() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.liveAttachments)
}

// LiveMeshes returns the number of mesh buffers created and not yet released.
func (f *API) LiveMeshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.liveMeshes)
}

// Presented returns the number of successful Present calls.
func (f *API) Presented() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.presented
}

// BindDepth returns the number of currently bound targets.
func (f *API) BindDepth() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stack.Depth()
}

func (f *API) record(op, target, detail string) {
	f.calls = append(f.calls, Call{Op: op, Target: target, Detail: detail})
}

func label(t renderer.RenderTarget) string {
	if t == nil {
		return ""
	}
	return t.Specification().Label
}

func asFake(a renderer.Attachment) *Attachment {
	fa, ok := a.(*Attachment)
	if !ok || fa == nil {
		return nil
	}
	return fa
}

func (f *API) CreateAttachment(desc renderer.AttachmentDescriptor) (renderer.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failFormats[desc.Format] {
		return nil, fmt.Errorf("allocation of %s refused", desc.Format)
	}
	a := &Attachment{
		label:   desc.Label,
		format:  desc.Format,
		width:   desc.Width,
		height:  desc.Height,
		samples: max(desc.Samples, 1),
	}
	n := int(desc.Width) * int(desc.Height)
	if desc.Format.IsInteger() {
		a.Ints = make([]int32, n)
	}
	if desc.Format.IsDepth() {
		a.Depth = make([]float32, n)
		for i := range a.Depth {
			a.Depth[i] = 1
		}
	}
	f.liveAttachments[a] = struct{}{}
	return a, nil
}

func (f *API) ReleaseAttachment(a renderer.Attachment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fa := asFake(a); fa != nil {
		fa.Released = true
		delete(f.liveAttachments, fa)
	}
}

func (f *API) CreateMeshBuffer(label string, vertices []renderer.Vertex, indices []uint32) (renderer.MeshBuffer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(vertices) == 0 || len(indices) == 0 {
		return nil, fmt.Errorf("mesh %q has no geometry", label)
	}
	m := &MeshBuffer{
		label:    label,
		Vertices: append([]renderer.Vertex(nil), vertices...),
		Indices:  append([]uint32(nil), indices...),
	}
	f.liveMeshes[m] = struct{}{}
	f.record("CreateMeshBuffer", "", label)
	return m, nil
}

func (f *API) ReleaseMeshBuffer(m renderer.MeshBuffer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fm, ok := m.(*MeshBuffer); ok && fm != nil {
		fm.Released = true
		delete(f.liveMeshes, fm)
	}
}

func (f *API) CreateShader(desc renderer.ShaderDescriptor) (renderer.Shader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.TrimSpace(desc.Source) == "" {
		return nil, errors.New("empty shader source")
	}
	return &Shader{desc: desc}, nil
}

func (f *API) ReleaseShader(s renderer.Shader) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fs, ok := s.(*Shader); ok && fs != nil {
		fs.Released = true
	}
}

func (f *API) BindTarget(t renderer.RenderTarget) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stack.Push(t)
	f.record("BindTarget", label(t), "")
}

func (f *API) UnbindTarget() {
	f.mu.Lock()
	defer f.mu.Unlock()
	top, _ := f.stack.Top()
	f.stack.Pop()
	f.record("UnbindTarget", label(top), "")
}

func (f *API) BoundTarget() renderer.RenderTarget {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, _ := f.stack.Top()
	return t
}

func (f *API) SetViewport(vp renderer.Viewport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stack.SetViewport(vp)
}

func (f *API) Viewport() renderer.Viewport {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, vp := f.stack.Top()
	return vp
}

func (f *API) Clear(color mgl32.Vec4) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, _ := f.stack.Top()
	f.record("Clear", label(t), "")
	if t == nil {
		return
	}
	for _, a := range t.ColorAttachments() {
		if fa := asFake(a); fa != nil {
			clear(fa.Ints)
		}
	}
	if d := asFake(t.DepthAttachment()); d != nil {
		for i := range d.Depth {
			d.Depth[i] = 1
		}
	}
}

func (f *API) ClearAttachment(t renderer.RenderTarget, index int, value int32) error {
	a, err := renderer.TargetAttachment(t, index)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ClearAttachment", label(t), fmt.Sprintf("%d=%d", index, value))
	if fa := asFake(a); fa != nil {
		for i := range fa.Ints {
			fa.Ints[i] = value
		}
	}
	return nil
}

func entityID(m renderer.Material) (int32, bool) {
	for _, u := range m.Uniforms() {
		if u.Name == EntityIDUniform && u.Type == renderer.UniformInt {
			return u.Int, true
		}
	}
	return 0, false
}

func (f *API) RenderIndexed(mesh renderer.MeshBuffer, material renderer.Material, cam renderer.Camera, model mgl32.Mat4) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, vp := f.stack.Top()
	f.record("RenderIndexed", label(t), mesh.Label())
	if t == nil {
		return
	}
	fm, ok := mesh.(*MeshBuffer)
	if !ok {
		return
	}
	colors := t.ColorAttachments()
	if len(colors) == 0 {
		return
	}
	target := asFake(colors[0])
	if target == nil || !target.format.IsInteger() {
		return
	}
	id, ok := entityID(material)
	if !ok {
		return
	}
	rasterize(fm, cam.ViewProjectionMatrix().Mul4(model), vp, target, asFake(t.DepthAttachment()), id)
}

func (f *API) Blit(src, dst renderer.RenderTarget, mask renderer.BlitMask) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var parts []string
	if mask&renderer.BlitColor != 0 {
		parts = append(parts, "color")
	}
	if mask&renderer.BlitDepth != 0 {
		parts = append(parts, "depth")
	}
	f.record("Blit", label(dst), label(src)+" "+strings.Join(parts, "+"))
	return nil
}

func (f *API) CustomBlit(inputs []renderer.Attachment, dst renderer.RenderTarget, shader renderer.Shader, params []renderer.Uniform) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, in := range inputs {
		if asFake(in) == nil {
			return fmt.Errorf("custom blit %q: input %d missing", shader.Key(), i)
		}
	}
	f.record("CustomBlit", label(dst), shader.Key())
	return nil
}

func (f *API) ReadPixel(t renderer.RenderTarget, index int, x, y int) (int32, error) {
	a, err := renderer.TargetAttachment(t, index)
	if err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	fa := asFake(a)
	if fa == nil || !fa.format.IsInteger() {
		return 0, fmt.Errorf("%w: %s", renderer.ErrNotInteger, a.Format())
	}
	if x < 0 || y < 0 || x >= int(fa.width) || y >= int(fa.height) {
		return 0, fmt.Errorf("%w: (%d, %d)", renderer.ErrPixelOutOfBounds, x, y)
	}
	return fa.Ints[y*int(fa.width)+x], nil
}

func (f *API) MaxSamples() uint32 {
	return f.maxSamples
}

func (f *API) QueryVRAMUsage() (used, total uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for a := range f.liveAttachments {
		used += a.format.BytesPerPixel() * uint64(a.width) * uint64(a.height) * uint64(a.samples)
	}
	return used, 0
}

func (f *API) ResizeSurface(width, height uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ResizeSurface", "", fmt.Sprintf("%dx%d", width, height))
}

func (f *API) Present(src renderer.RenderTarget) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Present", label(src), "")
	f.presented++
	return nil
}

func (f *API) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = true
}

// rasterize fills every pixel whose center lies inside a projected triangle, with an optional
// less-than depth test. Pixel rows grow downwards from the viewport's top edge.
func rasterize(m *MeshBuffer, mvp mgl32.Mat4, vp renderer.Viewport, target, depth *Attachment, value int32) {
	type screen struct{ x, y, z float32 }
	project := func(v renderer.Vertex) (screen, bool) {
		clip := mvp.Mul4x1(mgl32.Vec4{v.Position[0], v.Position[1], v.Position[2], 1})
		if clip.W() <= 0 {
			return screen{}, false
		}
		ndc := clip.Vec3().Mul(1 / clip.W())
		return screen{
			x: float32(vp.X) + (ndc.X()*0.5+0.5)*float32(vp.Width),
			y: float32(vp.Y) + (0.5-ndc.Y()*0.5)*float32(vp.Height),
			z: ndc.Z(),
		}, true
	}
	edge := func(a, b screen, px, py float32) float32 {
		return (b.x-a.x)*(py-a.y) - (b.y-a.y)*(px-a.x)
	}

	w, h := int(target.width), int(target.height)
	for i := 0; i+2 < len(m.Indices); i += 3 {
		var tri [3]screen
		visible := true
		for k := range 3 {
			idx := m.Indices[i+k]
			if int(idx) >= len(m.Vertices) {
				visible = false
				break
			}
			s, ok := project(m.Vertices[idx])
			if !ok {
				visible = false
				break
			}
			tri[k] = s
		}
		if !visible {
			continue
		}
		area := edge(tri[0], tri[1], tri[2].x, tri[2].y)
		if area == 0 {
			continue
		}

		minX := max(0, int(math.Floor(float64(min(tri[0].x, tri[1].x, tri[2].x)))))
		maxX := min(w-1, int(math.Ceil(float64(max(tri[0].x, tri[1].x, tri[2].x)))))
		minY := max(0, int(math.Floor(float64(min(tri[0].y, tri[1].y, tri[2].y)))))
		maxY := min(h-1, int(math.Ceil(float64(max(tri[0].y, tri[1].y, tri[2].y)))))

		for y := minY; y <= maxY; y++ {
			for x := minX; x <= maxX; x++ {
				px, py := float32(x)+0.5, float32(y)+0.5
				w0 := edge(tri[1], tri[2], px, py) / area
				w1 := edge(tri[2], tri[0], px, py) / area
				w2 := edge(tri[0], tri[1], px, py) / area
				if w0 < 0 || w1 < 0 || w2 < 0 {
					continue
				}
				pixel := y*w + x
				if depth != nil && pixel < len(depth.Depth) {
					z := w0*tri[0].z + w1*tri[1].z + w2*tri[2].z
					if z >= depth.Depth[pixel] {
						continue
					}
					depth.Depth[pixel] = z
				}
				target.Ints[pixel] = value
			}
		}
	}
}
