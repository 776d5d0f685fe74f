package drawcall

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-editor/engine/asset"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer/renderertest"
	"github.com/Carmen-Shannon/oxy-editor/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cubeSubmesh() *asset.Submesh {
	v := make([]renderer.Vertex, 8)
	idx := make([]uint32, 36)
	for i := range idx {
		idx[i] = uint32(i % 8)
	}
	return asset.NewSubmesh(0, v, idx)
}

func quadSubmesh() *asset.Submesh {
	return asset.NewSubmesh(0, make([]renderer.Vertex, 4), []uint32{0, 1, 2, 0, 2, 3})
}

type fixture struct {
	api      *renderertest.API
	registry asset.Registry
	scene    scene.Scene
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		api:      renderertest.New(4),
		registry: asset.NewRegistry(),
		scene:    scene.NewScene("test"),
	}
	f.addModel(t, 100, "cube", cubeSubmesh())
	f.addModel(t, 101, "quad", quadSubmesh())
	require.NoError(t, f.registry.Register(asset.New(200, "opaque", asset.NewMaterial(200, "opaque", nil))))
	require.NoError(t, f.registry.Register(asset.New(201, "glass", asset.NewMaterial(201, "glass", nil, asset.WithTransparent(true)))))
	return f
}

func (f *fixture) addModel(t *testing.T, id asset.ID, name string, submeshes ...*asset.Submesh) {
	t.Helper()
	m := asset.NewModel(id, name, submeshes...)
	require.NoError(t, m.Upload(f.api))
	require.NoError(t, f.registry.Register(asset.New(id, name, m)))
}

func (f *fixture) addEntity(t *testing.T, name string, model, material asset.ID) scene.Entity {
	t.Helper()
	e, err := f.scene.CreateEntity(name, scene.NullEntity)
	require.NoError(t, err)
	mr, err := f.scene.AddMeshRenderer(e, model)
	require.NoError(t, err)
	mr.SetMaterial(0, material)
	return e
}

func waitExtractions(t *testing.T, w Worker, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool { return w.Extractions() >= n }, 2*time.Second, time.Millisecond)
}

func TestScenarioOpaqueCubeTransparentQuadNullSlot(t *testing.T) {
	f := newFixture(t)
	// transparent quad created first so ordering comes from the sort, not creation order
	quad := f.addEntity(t, "quad", 101, 201)
	cube := f.addEntity(t, "cube", 100, 200)
	f.addEntity(t, "unassigned", 100, asset.NullID)

	w := NewWorker(f.registry, WithSource(f.scene), WithPoolSize(2), WithChunkSize(1))
	defer w.Close()

	w.Invalidate()
	waitExtractions(t, w, 1)

	var got []scene.Entity
	w.List().View(func(calls []DrawCall) {
		for _, dc := range calls {
			got = append(got, dc.Entity)
		}
	})
	assert.Equal(t, []scene.Entity{cube, quad}, got)

	stats := w.List().Stats()
	assert.Equal(t, 2, stats.DrawCalls)
	assert.Equal(t, 12, stats.Vertices)
	assert.Equal(t, 14, stats.Triangles)
}

func TestSkipsUnresolvableEntries(t *testing.T) {
	f := newFixture(t)
	f.addEntity(t, "missing model", 999, 200)
	f.addEntity(t, "missing material", 100, 777)
	hidden := f.addEntity(t, "hidden", 100, 200)
	f.scene.MeshRenderer(hidden).SetHidden(true)

	f.addModel(t, 102, "two slots", quadSubmesh(), asset.NewSubmesh(3, make([]renderer.Vertex, 3), []uint32{0, 1, 2}))
	multi := f.addEntity(t, "two slots", 102, 200)

	w := NewWorker(f.registry, WithSource(f.scene))
	defer w.Close()
	w.Invalidate()
	waitExtractions(t, w, 1)

	require.Equal(t, 1, w.List().Len())
	w.List().View(func(calls []DrawCall) {
		assert.Equal(t, multi, calls[0].Entity)
	})
}

func TestDrawCallCarriesWorldMatrix(t *testing.T) {
	f := newFixture(t)
	e := f.addEntity(t, "cube", 100, 200)
	f.scene.Transform(e).SetPosition(mgl32.Vec3{1, 2, 3})

	w := NewWorker(f.registry, WithSource(f.scene))
	defer w.Close()
	w.Invalidate()
	waitExtractions(t, w, 1)

	w.List().View(func(calls []DrawCall) {
		require.Len(t, calls, 1)
		assert.True(t, calls[0].Model.Col(3).Vec3().ApproxEqual(mgl32.Vec3{1, 2, 3}))
	})
}

func TestSortOpaqueBeforeTransparent(t *testing.T) {
	m := func(id uint64, transparent bool) asset.Material {
		return asset.NewMaterial(asset.ID(id), "", nil, asset.WithTransparent(transparent))
	}
	calls := []DrawCall{
		{Material: m(5, true), Entity: 1},
		{Material: m(9, false), Entity: 2},
		{Material: m(3, true), Entity: 3},
		{Material: m(2, false), Entity: 4},
		{Material: m(9, false), Entity: 5},
	}
	Sort(calls)

	var order []scene.Entity
	for _, dc := range calls {
		order = append(order, dc.Entity)
	}
	assert.Equal(t, []scene.Entity{4, 2, 5, 3, 1}, order)

	seenTransparent := false
	for _, dc := range calls {
		if dc.Material.Transparent() {
			seenTransparent = true
			continue
		}
		assert.False(t, seenTransparent, "opaque draw after a transparent one")
	}
}

// gatedSource blocks its first Snapshot until released.
type gatedSource struct {
	inner   Source
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func newGatedSource(inner Source) *gatedSource {
	return &gatedSource{
		inner:   inner,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedSource) Snapshot() []scene.RenderableSnapshot {
	if g.calls.Add(1) == 1 {
		close(g.entered)
		<-g.release
	}
	return g.inner.Snapshot()
}

func TestInvalidateCoalesces(t *testing.T) {
	f := newFixture(t)
	f.addEntity(t, "cube", 100, 200)
	src := newGatedSource(f.scene)

	w := NewWorker(f.registry, WithSource(src))
	defer w.Close()

	w.Invalidate()
	<-src.entered
	assert.Equal(t, WorkerExtracting, w.State())

	for range 10 {
		w.Invalidate()
	}
	close(src.release)

	waitExtractions(t, w, 2)
	assert.Never(t, func() bool { return w.Extractions() > 2 }, 100*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, int32(2), src.calls.Load())
	assert.Eventually(t, func() bool { return w.State() == WorkerIdle }, time.Second, time.Millisecond)
}

func TestCloseDuringExtraction(t *testing.T) {
	f := newFixture(t)
	src := newGatedSource(f.scene)
	w := NewWorker(f.registry, WithSource(src))

	w.Invalidate()
	<-src.entered

	done := make(chan struct{})
	go func() {
		w.Close()
		close(done)
	}()
	close(src.release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.Equal(t, WorkerStopped, w.State())
	n := w.Extractions()
	assert.LessOrEqual(t, n, uint64(1))

	w.Invalidate()
	w.Close()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, n, w.Extractions())
}

func TestOnPublishedAndNilSource(t *testing.T) {
	f := newFixture(t)
	f.addEntity(t, "cube", 100, 200)

	published := make(chan Stats, 4)
	w := NewWorker(f.registry, WithSource(f.scene), WithOnPublished(func(s Stats) { published <- s }))
	defer w.Close()

	w.Invalidate()
	s := <-published
	assert.Equal(t, 1, s.DrawCalls)

	w.SetSource(nil)
	w.Invalidate()
	s = <-published
	assert.Zero(t, s.DrawCalls)
	assert.Zero(t, w.List().Len())
}
