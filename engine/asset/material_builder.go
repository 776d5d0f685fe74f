package asset

import (
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer"
	"github.com/go-gl/mathgl/mgl32"
)

// MaterialBuilderOption is a functional option applied during construction via NewMaterial.
type MaterialBuilderOption func(*material)

// WithTransparent marks the material as alpha blended.
func WithTransparent(transparent bool) MaterialBuilderOption {
	return func(m *material) {
		m.transparent = transparent
	}
}

// WithBaseColor sets the base_color parameter.
//
// Parameters:
//   - color: the RGBA base color
//
// Returns:
//   - MaterialBuilderOption: a function that applies the base color option
func WithBaseColor(color mgl32.Vec4) MaterialBuilderOption {
	return func(m *material) {
		m.params = append(m.params, renderer.Vec4Uniform("base_color", color))
	}
}
