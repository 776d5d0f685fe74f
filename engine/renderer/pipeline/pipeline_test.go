package pipeline

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-editor/common"
	"github.com/Carmen-Shannon/oxy-editor/engine/asset"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer/drawcall"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer/framebuffer"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer/renderertest"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer/vram"
	"github.com/Carmen-Shannon/oxy-editor/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCamera struct {
	eye    mgl32.Vec3
	aspect float32
}

func (c *testCamera) Position() mgl32.Vec3 { return c.eye }
func (c *testCamera) SetAspect(a float32)  { c.aspect = a }
func (c *testCamera) ViewProjectionMatrix() mgl32.Mat4 {
	proj := common.Perspective(mgl32.DegToRad(45), 1, 0.1, 100)
	view := mgl32.LookAtV(c.eye, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	return proj.Mul4(view)
}

func quadModel(id asset.ID) asset.Model {
	return asset.NewModel(id, "quad", asset.NewSubmesh(0, []renderer.Vertex{
		{Position: [3]float32{-1, -1, 0}},
		{Position: [3]float32{1, -1, 0}},
		{Position: [3]float32{1, 1, 0}},
		{Position: [3]float32{-1, 1, 0}},
	}, []uint32{0, 1, 2, 0, 2, 3}))
}

type fixture struct {
	api      *renderertest.API
	registry asset.Registry
	tracker  vram.Tracker
	pipeline RenderingPipeline
	scene    scene.Scene
}

func newFixture(t *testing.T, options ...PipelineBuilderOption) *fixture {
	t.Helper()
	f := &fixture{
		api:      renderertest.New(8),
		registry: asset.NewRegistry(),
		tracker:  vram.NewTracker(),
		scene:    scene.NewScene("test"),
	}
	p, err := NewRenderingPipeline(f.api, f.registry, append([]PipelineBuilderOption{WithTracker(f.tracker)}, options...)...)
	require.NoError(t, err)
	f.pipeline = p
	t.Cleanup(p.Close)

	m := quadModel(1)
	require.NoError(t, m.Upload(f.api))
	require.NoError(t, f.registry.Register(asset.New(1, "quad", m)))
	mat := asset.NewMaterial(2, "white", p.MeshShader(), asset.WithBaseColor(mgl32.Vec4{1, 1, 1, 1}))
	require.NoError(t, f.registry.Register(asset.New(2, "white", mat)))
	return f
}

func (f *fixture) addQuad(t *testing.T) scene.Entity {
	t.Helper()
	e, err := f.scene.CreateEntity("quad", scene.NullEntity)
	require.NoError(t, err)
	mr, err := f.scene.AddMeshRenderer(e, 1)
	require.NoError(t, err)
	mr.SetMaterial(0, 2)
	return e
}

func (f *fixture) waitDrawCalls(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return f.pipeline.DrawCallCount() == n }, 2*time.Second, time.Millisecond)
}

func opTargets(calls []renderertest.Call) []string {
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, strings.TrimSpace(c.Op+" "+c.Target))
	}
	return out
}

func TestNewRenderingPipelineErrors(t *testing.T) {
	_, err := NewRenderingPipeline(nil, asset.NewRegistry())
	assert.ErrorIs(t, err, ErrNilAPI)

	_, err = NewRenderingPipeline(renderertest.New(4), nil)
	assert.ErrorIs(t, err, ErrNilRegistry)

	api := renderertest.New(4)
	_, err = NewRenderingPipeline(api, asset.NewRegistry(), WithResolution(0, 600))
	assert.ErrorIs(t, err, framebuffer.ErrInvalidSize)
	assert.Zero(t, api.LiveAttachments())
}

func TestRenderScenePassOrder(t *testing.T) {
	f := newFixture(t)
	f.addQuad(t)
	f.pipeline.LoadScene(f.scene)
	f.waitDrawCalls(t, 1)

	cam := &testCamera{eye: mgl32.Vec3{0, 0, 5}}
	f.api.ResetCalls()
	grid := scene.DefaultSettings().Grid
	grid.Enabled = false
	require.NoError(t, f.pipeline.RenderScene(cam, grid))

	assert.Equal(t, []string{
		"BindTarget Scene",
		"Clear Scene",
		"RenderIndexed Scene",
		"UnbindTarget Scene",
		"Blit HDR B",
		"CustomBlit LDR B",
		"Blit Presentation",
	}, opTargets(f.api.Calls()))

	// second frame: both pairs swapped roles, the grid adds a pass and a swap
	f.api.ResetCalls()
	grid.Enabled = true
	require.NoError(t, f.pipeline.RenderScene(cam, grid))
	calls := f.api.Calls()
	assert.Equal(t, []string{
		"BindTarget Scene",
		"Clear Scene",
		"RenderIndexed Scene",
		"UnbindTarget Scene",
		"Blit HDR A",
		"CustomBlit LDR A",
		"CustomBlit LDR B",
		"Blit Presentation",
	}, opTargets(calls))
	assert.Equal(t, "color+depth", strings.Fields(calls[4].Detail)[1])
	assert.Equal(t, TonemapShaderKey, calls[5].Detail)
	assert.Equal(t, GridShaderKey, calls[6].Detail)
	assert.Equal(t, "LDR B color", calls[7].Detail)
	assert.Zero(t, f.api.BindDepth())
}

func TestSetResolution(t *testing.T) {
	cam := &testCamera{}
	f := newFixture(t, WithAspectSetter(cam))

	w, h := f.pipeline.Resolution()
	assert.Equal(t, uint32(800), w)
	assert.Equal(t, uint32(600), h)
	before := f.tracker.FramebufferMemory()

	require.NoError(t, f.pipeline.SetResolution(1920, 1080))
	for _, fb := range []framebuffer.Framebuffer{f.pipeline.SceneFramebuffer(), f.pipeline.IDFramebuffer(), f.pipeline.PresentationFramebuffer()} {
		assert.Equal(t, uint32(1920), fb.Width())
		assert.Equal(t, uint32(1080), fb.Height())
	}
	assert.InDelta(t, 16.0/9.0, f.pipeline.AspectRatio(), 1e-5)
	assert.InDelta(t, 16.0/9.0, cam.aspect, 1e-5)
	assert.Greater(t, f.tracker.FramebufferMemory(), before)

	tex := f.pipeline.PresentationTexture()
	require.NotNil(t, tex)
	assert.Equal(t, uint32(1920), tex.Width())

	assert.ErrorIs(t, f.pipeline.SetResolution(0, 1080), framebuffer.ErrInvalidSize)
	w, _ = f.pipeline.Resolution()
	assert.Equal(t, uint32(1920), w)
}

func TestPickEntity(t *testing.T) {
	f := newFixture(t, WithResolution(64, 64))
	e := f.addQuad(t)
	cam := &testCamera{eye: mgl32.Vec3{0, 0, 5}}

	require.NoError(t, f.pipeline.RenderIds(f.scene, cam))
	assert.Equal(t, e, f.pipeline.ReadPixelId(32, 32))
	assert.Equal(t, scene.NullEntity, f.pipeline.ReadPixelId(2, 2))
	assert.Equal(t, scene.NullEntity, f.pipeline.ReadPixelId(-1, 5))
	assert.Equal(t, scene.NullEntity, f.pipeline.ReadPixelId(64, 5))

	// the merged id mesh is cached on the component
	mesh := f.scene.MeshRenderer(e).IDMesh()
	require.NotNil(t, mesh)
	require.NoError(t, f.pipeline.RenderIds(f.scene, cam))
	assert.Same(t, mesh, f.scene.MeshRenderer(e).IDMesh())
	assert.Equal(t, e, f.pipeline.ReadPixelId(32, 32))

	f.scene.Transform(e).SetPosition(mgl32.Vec3{100, 0, 0})
	require.NoError(t, f.pipeline.RenderIds(f.scene, cam))
	assert.Equal(t, scene.NullEntity, f.pipeline.ReadPixelId(32, 32))
}

func TestPickNearestEntity(t *testing.T) {
	f := newFixture(t, WithResolution(64, 64))
	far := f.addQuad(t)
	near := f.addQuad(t)
	f.scene.Transform(near).SetPosition(mgl32.Vec3{0, 0, 1})
	f.scene.Transform(far).SetScale(mgl32.Vec3{3, 3, 3})

	cam := &testCamera{eye: mgl32.Vec3{0, 0, 5}}
	require.NoError(t, f.pipeline.RenderIds(f.scene, cam))
	assert.Equal(t, near, f.pipeline.ReadPixelId(32, 32))
	assert.Equal(t, far, f.pipeline.ReadPixelId(6, 32))

	f.scene.MeshRenderer(near).SetHidden(true)
	require.NoError(t, f.pipeline.RenderIds(f.scene, cam))
	assert.Equal(t, far, f.pipeline.ReadPixelId(32, 32))
}

func TestIDMeshReleasedOnModelChange(t *testing.T) {
	f := newFixture(t, WithResolution(32, 32))
	e := f.addQuad(t)
	cam := &testCamera{eye: mgl32.Vec3{0, 0, 5}}

	require.NoError(t, f.pipeline.RenderIds(f.scene, cam))
	live := f.api.LiveMeshes()

	m := quadModel(3)
	require.NoError(t, m.Upload(f.api))
	require.NoError(t, f.registry.Register(asset.New(3, "quad2", m)))
	f.scene.MeshRenderer(e).SetModel(3)

	require.NoError(t, f.pipeline.RenderIds(f.scene, cam))
	// model 3's upload added one mesh; the stale id mesh was released and a new one built
	assert.Equal(t, live+1, f.api.LiveMeshes())
}

// modelSwapScene switches the first entity it is asked about to another model, as an edit landing
// between the picking pass's snapshot and its component lookup would.
type modelSwapScene struct {
	scene.Scene
	model asset.ID
	once  sync.Once
}

func (s *modelSwapScene) MeshRenderer(e scene.Entity) *scene.MeshRendererComponent {
	mr := s.Scene.MeshRenderer(e)
	s.once.Do(func() { mr.SetModel(s.model) })
	return mr
}

func TestIDMeshNotCachedAcrossModelSwap(t *testing.T) {
	f := newFixture(t, WithResolution(64, 64))
	e := f.addQuad(t)
	cam := &testCamera{eye: mgl32.Vec3{0, 0, 5}}

	// model 4 sits well outside the view
	offscreen := asset.NewModel(4, "offscreen", asset.NewSubmesh(0, []renderer.Vertex{
		{Position: [3]float32{49, -1, 0}},
		{Position: [3]float32{51, -1, 0}},
		{Position: [3]float32{51, 1, 0}},
		{Position: [3]float32{49, 1, 0}},
	}, []uint32{0, 1, 2, 0, 2, 3}))
	require.NoError(t, offscreen.Upload(f.api))
	require.NoError(t, f.registry.Register(asset.New(4, "offscreen", offscreen)))

	require.NoError(t, f.pipeline.RenderIds(&modelSwapScene{Scene: f.scene, model: 4}, cam))
	assert.Equal(t, e, f.pipeline.ReadPixelId(32, 32))
	assert.Nil(t, f.scene.MeshRenderer(e).IDMesh())
	live := f.api.LiveMeshes()

	require.NoError(t, f.pipeline.RenderIds(f.scene, cam))
	assert.Equal(t, scene.NullEntity, f.pipeline.ReadPixelId(32, 32))
	assert.NotNil(t, f.scene.MeshRenderer(e).IDMesh())
	// the mesh built for model 1 was released and one for model 4 took its place
	assert.Equal(t, live, f.api.LiveMeshes())
}

func TestSetMsaaSamples(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, uint32(4), f.pipeline.MsaaSamples())

	assert.Equal(t, uint32(8), f.pipeline.SetMsaaSamples(16))
	assert.Equal(t, uint32(8), f.pipeline.SceneFramebuffer().Samples())
	assert.Equal(t, uint32(2), f.pipeline.SetMsaaSamples(3))
	assert.Equal(t, uint32(1), f.pipeline.SetMsaaSamples(0))
	assert.Equal(t, uint32(1), f.pipeline.SceneFramebuffer().Samples())
	assert.Equal(t, uint32(1), f.pipeline.IDFramebuffer().Samples())
}

func TestSettingsReactivity(t *testing.T) {
	f := newFixture(t)
	settings := f.scene.Settings()
	f.pipeline.LoadScene(f.scene)
	assert.Equal(t, 1, settings.Observers())

	settings.SetExposure(2.5)
	settings.SetTonemap(scene.TonemapReinhard)
	settings.SetMSAASamples(2)
	settings.SetBloom(true)
	grid := settings.Values().Grid
	grid.Spacing = 5
	settings.SetGrid(grid)

	assert.InDelta(t, 2.5, f.pipeline.Exposure(), 1e-6)
	assert.Equal(t, scene.TonemapReinhard, f.pipeline.TonemapType())
	assert.Equal(t, uint32(4), f.pipeline.MsaaSamples())
	assert.True(t, f.pipeline.Bloom())
	assert.InDelta(t, 5, f.pipeline.Grid().Spacing, 1e-6)

	f.pipeline.UnloadScene()
	assert.Zero(t, settings.Observers())
	settings.SetExposure(7)
	assert.InDelta(t, 2.5, f.pipeline.Exposure(), 1e-6)
	assert.Nil(t, f.pipeline.ActiveScene())
}

func TestSettingsMsaaAppliedOnRenderThread(t *testing.T) {
	f := newFixture(t)
	settings := f.scene.Settings()
	f.pipeline.LoadScene(f.scene)
	cam := &testCamera{eye: mgl32.Vec3{0, 0, 5}}
	grid := scene.DefaultSettings().Grid
	grid.Enabled = false

	color := f.pipeline.SceneFramebuffer().ColorAttachment(0)
	live := f.api.LiveAttachments()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		settings.SetMSAASamples(2)
	}()
	wg.Wait()

	assert.Same(t, color, f.pipeline.SceneFramebuffer().ColorAttachment(0))
	assert.False(t, color.(*renderertest.Attachment).Released)
	assert.Equal(t, live, f.api.LiveAttachments())
	assert.Equal(t, uint32(4), f.pipeline.SceneFramebuffer().Samples())
	assert.Equal(t, uint32(4), f.pipeline.MsaaSamples())

	require.NoError(t, f.pipeline.RenderScene(cam, grid))
	assert.True(t, color.(*renderertest.Attachment).Released)
	assert.Equal(t, live, f.api.LiveAttachments())
	assert.Equal(t, uint32(2), f.pipeline.SceneFramebuffer().Samples())
	assert.Equal(t, uint32(2), f.pipeline.MsaaSamples())

	// a pending request is dropped once an explicit call has set the count
	settings.SetMSAASamples(8)
	assert.Equal(t, uint32(1), f.pipeline.SetMsaaSamples(1))
	require.NoError(t, f.pipeline.RenderIds(f.scene, cam))
	assert.Equal(t, uint32(1), f.pipeline.SceneFramebuffer().Samples())
}

// blockedSource holds its first Snapshot until released.
type blockedSource struct {
	inner    drawcall.Source
	entered  chan struct{}
	release  chan struct{}
	first    sync.Once
	released sync.Once
}

func newBlockedSource(inner drawcall.Source) *blockedSource {
	return &blockedSource{
		inner:   inner,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *blockedSource) Snapshot() []scene.RenderableSnapshot {
	blocked := false
	b.first.Do(func() { blocked = true })
	if blocked {
		close(b.entered)
		<-b.release
	}
	return b.inner.Snapshot()
}

func (b *blockedSource) Release() { b.released.Do(func() { close(b.release) }) }

func TestRenderSceneDuringExtraction(t *testing.T) {
	f := newFixture(t)
	f.addQuad(t)
	f.pipeline.LoadScene(f.scene)
	f.waitDrawCalls(t, 1)
	before := f.pipeline.Worker().Extractions()

	src := newBlockedSource(f.scene)
	t.Cleanup(src.Release)
	f.addQuad(t)
	f.pipeline.Worker().SetSource(src)
	f.pipeline.Invalidate()
	select {
	case <-src.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("extraction did not start")
	}
	assert.Equal(t, drawcall.WorkerExtracting, f.pipeline.Worker().State())

	cam := &testCamera{eye: mgl32.Vec3{0, 0, 5}}
	grid := scene.DefaultSettings().Grid
	grid.Enabled = false
	done := make(chan error, 1)
	go func() { done <- f.pipeline.RenderScene(cam, grid) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("RenderScene blocked on the running extraction")
	}
	// the frame drew the last published list
	assert.Equal(t, 1, f.pipeline.DrawCallCount())

	src.Release()
	require.Eventually(t, func() bool { return f.pipeline.Worker().Extractions() > before }, 2*time.Second, time.Millisecond)
	f.waitDrawCalls(t, 2)
}

func TestStatsAndInvalidate(t *testing.T) {
	f := newFixture(t)
	f.addQuad(t)
	f.pipeline.LoadScene(f.scene)
	f.waitDrawCalls(t, 1)
	assert.Equal(t, 4, f.pipeline.VertexCount())
	assert.Equal(t, 2, f.pipeline.TriangleCount())

	f.addQuad(t)
	f.pipeline.Invalidate()
	f.waitDrawCalls(t, 2)
	assert.Equal(t, 4, f.pipeline.TriangleCount())

	f.pipeline.UnloadScene()
	f.waitDrawCalls(t, 0)
}

func TestCloseReleasesEverything(t *testing.T) {
	f := newFixture(t)
	e := f.addQuad(t)
	f.pipeline.LoadScene(f.scene)
	require.NoError(t, f.pipeline.RenderIds(f.scene, &testCamera{eye: mgl32.Vec3{0, 0, 5}}))
	require.NotNil(t, f.scene.MeshRenderer(e).IDMesh())

	f.pipeline.Close()
	f.pipeline.Close()
	assert.Zero(t, f.api.LiveAttachments())
	assert.Zero(t, f.tracker.FramebufferMemory())
	assert.Nil(t, f.scene.MeshRenderer(e).IDMesh())
	assert.ErrorIs(t, f.pipeline.RenderScene(&testCamera{}, scene.GridSettings{}), ErrClosed)
	assert.Equal(t, scene.NullEntity, f.pipeline.ReadPixelId(0, 0))
}
