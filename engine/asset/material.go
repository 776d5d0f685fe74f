package asset

import (
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-editor/engine/renderer"
	"github.com/go-gl/mathgl/mgl32"
)

// material is the implementation of the Material interface.
type material struct {
	mu *sync.Mutex

	id          ID
	name        string
	shader      renderer.Shader
	transparent bool

	// params keeps insertion order; the GPU layout packs uniforms in this order.
	params []renderer.Uniform
}

// Material is a shader plus its parameter values. It satisfies renderer.Material, so draw calls
// hand it straight to the renderer API.
type Material interface {
	Payload
	renderer.Material

	Name() string

	// SetTransparent marks the material as alpha blended, which sorts it after opaque draws.
	SetTransparent(transparent bool)

	// SetShader replaces the shader program.
	SetShader(s renderer.Shader)

	// SetFloat sets a float parameter, adding it when new.
	SetFloat(name string, v float32)

	// SetInt sets an int parameter, adding it when new.
	SetInt(name string, v int32)

	// SetVec4 sets a vec4 parameter, adding it when new.
	SetVec4(name string, v mgl32.Vec4)

	// SetMat4 sets a mat4 parameter, adding it when new.
	SetMat4(name string, v mgl32.Mat4)

	// Uniform returns the current value of a parameter.
	Uniform(name string) (renderer.Uniform, bool)
}

var _ Material = &material{}

// NewMaterial creates a material with no parameters.
//
// Parameters:
//   - id: the asset ID, also used as the material's sort identity
//   - name: a human-readable name
//   - shader: the shader program, may be set later
//   - options: variadic list of MaterialBuilderOption functions
//
// Returns:
//   - Material: the new material
func NewMaterial(id ID, name string, shader renderer.Shader, options ...MaterialBuilderOption) Material {
	m := &material{
		mu:     &sync.Mutex{},
		id:     id,
		name:   name,
		shader: shader,
	}
	for _, option := range options {
		option(m)
	}
	return m
}

func (m *material) assetKind() Kind { return KindMaterial }

func (m *material) ID() uint64   { return uint64(m.id) }
func (m *material) Name() string { return m.name }

func (m *material) Transparent() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transparent
}

func (m *material) SetTransparent(transparent bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transparent = transparent
}

func (m *material) Shader() renderer.Shader {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shader
}

func (m *material) SetShader(s renderer.Shader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shader = s
}

func (m *material) Uniforms() []renderer.Uniform {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.params)
}

func (m *material) Uniform(name string) (renderer.Uniform, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.params {
		if u.Name == name {
			return u, true
		}
	}
	return renderer.Uniform{}, false
}

func (m *material) set(u renderer.Uniform) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.params {
		if m.params[i].Name == u.Name {
			m.params[i] = u
			return
		}
	}
	m.params = append(m.params, u)
}

func (m *material) SetFloat(name string, v float32)   { m.set(renderer.FloatUniform(name, v)) }
func (m *material) SetInt(name string, v int32)       { m.set(renderer.IntUniform(name, v)) }
func (m *material) SetVec4(name string, v mgl32.Vec4) { m.set(renderer.Vec4Uniform(name, v)) }
func (m *material) SetMat4(name string, v mgl32.Mat4) { m.set(renderer.Mat4Uniform(name, v)) }
