package scene

import (
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-editor/engine/asset"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer/renderertest"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func translation(m mgl32.Mat4) mgl32.Vec3 {
	return m.Col(3).Vec3()
}

func TestMatrixReflectsMutation(t *testing.T) {
	tr := NewTransform()
	assert.Equal(t, mgl32.Ident4(), tr.Matrix())

	tr.SetPosition(mgl32.Vec3{1, 2, 3})
	assert.True(t, tr.Dirty())
	assert.True(t, translation(tr.Matrix()).ApproxEqual(mgl32.Vec3{1, 2, 3}))
	assert.False(t, tr.Dirty())

	tr.SetPosition(mgl32.Vec3{4, 5, 6})
	assert.True(t, translation(tr.Matrix()).ApproxEqual(mgl32.Vec3{4, 5, 6}))

	tr.SetScale(mgl32.Vec3{2, 2, 2})
	m := tr.Matrix()
	assert.InDelta(t, 2, m.At(0, 0), 1e-5)
	assert.InDelta(t, 2, m.At(1, 1), 1e-5)
}

func TestRotationNormalised(t *testing.T) {
	tr := NewTransform()
	tr.SetRotation(mgl32.Vec3{-90, 450, 360})
	r := tr.Rotation()
	assert.InDelta(t, 270, r.X(), 1e-4)
	assert.InDelta(t, 90, r.Y(), 1e-4)
	assert.InDelta(t, 0, r.Z(), 1e-4)
}

// assertTreeConsistent checks that every non-root entity appears exactly once in its parent's
// child list and nowhere else.
func assertTreeConsistent(t *testing.T, s Scene) {
	t.Helper()
	seen := map[Entity]int{}
	for _, e := range s.Entities() {
		children, err := s.Children(e)
		require.NoError(t, err)
		for _, c := range children {
			seen[c]++
			p, err := s.Parent(c)
			require.NoError(t, err)
			assert.Equal(t, e, p, "child %d listed under %d", c, e)
		}
	}
	for _, e := range s.Entities() {
		if e == s.Root() {
			assert.Zero(t, seen[e])
			continue
		}
		assert.Equal(t, 1, seen[e], "entity %d", e)
	}
}

func TestSetParentExactlyOnce(t *testing.T) {
	s := NewScene("test")
	a, err := s.CreateEntity("a", NullEntity)
	require.NoError(t, err)
	b, err := s.CreateEntity("b", NullEntity)
	require.NoError(t, err)
	c, err := s.CreateEntity("c", a)
	require.NoError(t, err)

	require.NoError(t, s.SetParent(c, b))
	require.NoError(t, s.SetParent(c, b))
	require.NoError(t, s.AddChild(b, c))
	assertTreeConsistent(t, s)

	ca, _ := s.Children(a)
	assert.Empty(t, ca)
	cb, _ := s.Children(b)
	assert.Equal(t, []Entity{c}, cb)

	require.NoError(t, s.RemoveChild(b, c))
	require.NoError(t, s.RemoveChild(b, c))
	p, _ := s.Parent(c)
	assert.Equal(t, s.Root(), p)
	assertTreeConsistent(t, s)
}

func TestSetParentRejectsCycles(t *testing.T) {
	s := NewScene("test")
	a, _ := s.CreateEntity("a", NullEntity)
	b, _ := s.CreateEntity("b", a)
	c, _ := s.CreateEntity("c", b)

	assert.ErrorIs(t, s.SetParent(a, a), ErrParentCycle)
	assert.ErrorIs(t, s.SetParent(a, c), ErrParentCycle)
	assert.ErrorIs(t, s.SetParent(s.Root(), a), ErrRootImmutable)
	assert.ErrorIs(t, s.SetParent(a, Entity(999)), ErrUnknownEntity)

	p, _ := s.Parent(a)
	assert.Equal(t, s.Root(), p)
	assertTreeConsistent(t, s)
}

func TestChildIndex(t *testing.T) {
	s := NewScene("test")
	a, _ := s.CreateEntity("a", NullEntity)
	b, _ := s.CreateEntity("b", NullEntity)
	c, _ := s.CreateEntity("c", NullEntity)

	require.NoError(t, s.SetChildIndex(c, 0))
	children, _ := s.Children(s.Root())
	assert.Equal(t, []Entity{c, a, b}, children)

	require.NoError(t, s.SetChildIndex(c, 99))
	children, _ = s.Children(s.Root())
	assert.Equal(t, []Entity{a, b, c}, children)

	i, err := s.ChildIndex(b)
	require.NoError(t, err)
	assert.Equal(t, 1, i)
}

func TestDestroyCascades(t *testing.T) {
	s := NewScene("test")
	a, _ := s.CreateEntity("a", NullEntity)
	b, _ := s.CreateEntity("b", a)
	c, _ := s.CreateEntity("c", b)
	d, _ := s.CreateEntity("d", NullEntity)

	require.NoError(t, s.DestroyEntity(a))
	assert.False(t, s.Contains(a))
	assert.False(t, s.Contains(b))
	assert.False(t, s.Contains(c))
	assert.Equal(t, []Entity{s.Root(), d}, s.Entities())
	assertTreeConsistent(t, s)

	assert.ErrorIs(t, s.DestroyEntity(s.Root()), ErrRootImmutable)
	assert.ErrorIs(t, s.DestroyEntity(a), ErrUnknownEntity)
}

func TestWorldMatrixComposesParents(t *testing.T) {
	s := NewScene("test")
	parent, _ := s.CreateEntity("parent", NullEntity)
	child, _ := s.CreateEntity("child", parent)

	s.Transform(parent).SetPosition(mgl32.Vec3{10, 0, 0})
	s.Transform(parent).SetScale(mgl32.Vec3{2, 2, 2})
	s.Transform(child).SetPosition(mgl32.Vec3{1, 0, 0})

	w, err := s.WorldMatrix(child)
	require.NoError(t, err)
	assert.True(t, translation(w).ApproxEqual(mgl32.Vec3{12, 0, 0}))
}

func TestSnapshotAndGeneration(t *testing.T) {
	s := NewScene("test")
	g0 := s.Generation()

	a, _ := s.CreateEntity("a", NullEntity)
	_, _ = s.CreateEntity("empty", NullEntity)
	mr, err := s.AddMeshRenderer(a, 42)
	require.NoError(t, err)
	mr.SetMaterial(0, 7)
	mr.SetMaterial(1, asset.NullID)
	assert.Greater(t, s.Generation(), g0)

	g1 := s.Generation()
	s.Transform(a).SetPosition(mgl32.Vec3{0, 3, 0})
	assert.Greater(t, s.Generation(), g1)

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, a, snap[0].Entity)
	assert.Equal(t, asset.ID(42), snap[0].Model)
	assert.Equal(t, map[int]asset.ID{0: 7}, snap[0].Materials)
	assert.True(t, translation(snap[0].World).ApproxEqual(mgl32.Vec3{0, 3, 0}))

	mr.SetMaterial(0, 8)
	assert.Equal(t, asset.ID(7), snap[0].Materials[0], "snapshots are copies")
}

func TestIDMeshInvalidation(t *testing.T) {
	api := renderertest.New(1)
	s := NewScene("test")
	a, _ := s.CreateEntity("a", NullEntity)
	mr, _ := s.AddMeshRenderer(a, 1)

	mesh, err := api.CreateMeshBuffer("id", []renderer.Vertex{{}, {}, {}}, []uint32{0, 1, 2})
	require.NoError(t, err)
	assert.True(t, mr.SetIDMesh(1, mesh))
	assert.Same(t, mesh, mr.IDMesh())

	mr.SetModel(1)
	assert.NotNil(t, mr.IDMesh(), "same model keeps the cache")

	mr.SetModel(2)
	assert.Nil(t, mr.IDMesh())
	stale := s.DrainOrphanedIDMeshes()
	require.Len(t, stale, 1)
	assert.Same(t, mesh, stale[0])
	assert.Empty(t, s.DrainOrphanedIDMeshes())

	require.True(t, mr.SetIDMesh(2, mesh))
	require.NoError(t, s.DestroyEntity(a))
	assert.Len(t, s.DrainOrphanedIDMeshes(), 1)
}

func TestIDMeshForReplacedModelIsNotCached(t *testing.T) {
	api := renderertest.New(1)
	s := NewScene("test")
	a, _ := s.CreateEntity("a", NullEntity)
	mr, _ := s.AddMeshRenderer(a, 1)

	mesh, err := api.CreateMeshBuffer("id", []renderer.Vertex{{}, {}, {}}, []uint32{0, 1, 2})
	require.NoError(t, err)

	// built from model 1, but the editor switched to model 4 before it was cached
	mr.SetModel(4)
	assert.False(t, mr.SetIDMesh(1, mesh))
	assert.Nil(t, mr.IDMesh())

	stale := s.DrainOrphanedIDMeshes()
	require.Len(t, stale, 1)
	assert.Same(t, mesh, stale[0])
}

func TestConcurrentEditAndSnapshot(t *testing.T) {
	s := NewScene("test")
	var ents []Entity
	for range 16 {
		e, _ := s.CreateEntity("e", NullEntity)
		_, _ = s.AddMeshRenderer(e, 1)
		ents = append(ents, e)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 200 {
			e := ents[i%len(ents)]
			s.Transform(e).SetPosition(mgl32.Vec3{float32(i), 0, 0})
			_ = s.SetParent(e, ents[(i+1)%len(ents)])
			_ = s.SetParent(e, NullEntity)
		}
	}()
	go func() {
		defer wg.Done()
		for range 200 {
			assert.Len(t, s.Snapshot(), len(ents))
		}
	}()
	wg.Wait()
	assertTreeConsistent(t, s)
}
