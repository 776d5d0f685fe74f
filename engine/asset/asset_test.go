package asset

import (
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-editor/engine/renderer"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer/renderertest"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quad() *Submesh {
	return NewSubmesh(0, []renderer.Vertex{
		{Position: [3]float32{-1, -1, 0}},
		{Position: [3]float32{1, -1, 0}},
		{Position: [3]float32{1, 1, 0}},
		{Position: [3]float32{-1, 1, 0}},
	}, []uint32{0, 1, 2, 0, 2, 3})
}

func TestAsTypedAccess(t *testing.T) {
	mat := NewMaterial(7, "red", nil)
	a := New(7, "red", mat)

	got, ok := As[Material](a)
	require.True(t, ok)
	assert.Same(t, mat, got)
	assert.Equal(t, KindMaterial, a.Kind())

	_, ok = As[Model](a)
	assert.False(t, ok)

	_, ok = As[Material](nil)
	assert.False(t, ok)
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(New(1, "quad", NewModel(1, "quad", quad()))))
	require.NoError(t, r.Register(New(2, "red", NewMaterial(2, "red", nil))))

	assert.ErrorIs(t, r.Register(New(1, "dup", NewMaterial(1, "dup", nil))), ErrDuplicateID)
	assert.ErrorIs(t, r.Register(New(NullID, "null", NewMaterial(0, "null", nil))), ErrNullID)

	m, ok := r.Model(1)
	require.True(t, ok)
	assert.Equal(t, 2, m.TriangleCount())

	_, ok = r.Material(1)
	assert.False(t, ok, "a model id must not resolve as a material")
	_, ok = r.Material(NullID)
	assert.False(t, ok)

	r.Remove(2)
	_, ok = r.Material(2)
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestMaterialParameters(t *testing.T) {
	m := NewMaterial(3, "glass", nil, WithTransparent(true), WithBaseColor(mgl32.Vec4{1, 0, 0, 1}))
	assert.True(t, m.Transparent())
	assert.Equal(t, uint64(3), m.ID())

	m.SetFloat("roughness", 0.5)
	m.SetFloat("roughness", 0.25)
	m.SetInt("mode", 2)

	params := m.Uniforms()
	require.Len(t, params, 3)
	assert.Equal(t, "base_color", params[0].Name)
	assert.Equal(t, "roughness", params[1].Name)
	assert.InDelta(t, 0.25, params[1].Float, 1e-6)

	u, ok := m.Uniform("mode")
	require.True(t, ok)
	assert.Equal(t, renderer.UniformInt, u.Type)
	assert.Equal(t, int32(2), u.Int)
}

func TestMaterialConcurrentAccess(t *testing.T) {
	m := NewMaterial(4, "shared", nil)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.SetFloat("exposure", float32(i))
			_ = m.Uniforms()
		}()
	}
	wg.Wait()
	assert.Len(t, m.Uniforms(), 1)
}

func TestModelUploadRelease(t *testing.T) {
	api := renderertest.New(4)
	m := NewModel(5, "mixed", quad(), NewSubmesh(1, nil, nil))

	err := m.Upload(api)
	require.Error(t, err, "the empty submesh cannot be uploaded")
	assert.False(t, m.Uploaded())
	assert.NotNil(t, m.Submeshes()[0].Mesh())
	assert.Nil(t, m.Submeshes()[1].Mesh())
	assert.Equal(t, 1, api.LiveMeshes())

	m.Release(api)
	assert.Nil(t, m.Submeshes()[0].Mesh())
	assert.Equal(t, 0, api.LiveMeshes())
}
