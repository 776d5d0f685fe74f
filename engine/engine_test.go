package engine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-editor/common"
	"github.com/Carmen-Shannon/oxy-editor/engine/asset"
	"github.com/Carmen-Shannon/oxy-editor/engine/camera"
	"github.com/Carmen-Shannon/oxy-editor/engine/profiler"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer/renderertest"
	"github.com/Carmen-Shannon/oxy-editor/engine/scene"
	"github.com/Carmen-Shannon/oxy-editor/engine/window"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWindow drives the engine callbacks without a platform window.
type fakeWindow struct {
	width, height int
	frames        int
	running       bool
	closed        int

	onUpdate    func()
	onResize    func(width, height int)
	onScroll    func(delta float32)
	onKeyDown   func(keyCode uint32)
	onKeyUp     func(keyCode uint32)
	onMouseDown func(button window.MouseButton, x, y int32)
	onMouseUp   func(button window.MouseButton, x, y int32)
	onMouseMove func(x, y int32)
}

var _ window.Window = &fakeWindow{}

func newFakeWindow(width, height, frames int) *fakeWindow {
	return &fakeWindow{width: width, height: height, frames: frames, running: true}
}

func (w *fakeWindow) SetUpdateCallback(cb func())                  { w.onUpdate = cb }
func (w *fakeWindow) SetResizeCallback(cb func(width, height int)) { w.onResize = cb }
func (w *fakeWindow) SetScrollCallback(cb func(delta float32))     { w.onScroll = cb }
func (w *fakeWindow) SetKeyDownCallback(cb func(keyCode uint32))   { w.onKeyDown = cb }
func (w *fakeWindow) SetKeyUpCallback(cb func(keyCode uint32))     { w.onKeyUp = cb }
func (w *fakeWindow) SetMouseDownCallback(cb func(button window.MouseButton, x, y int32)) {
	w.onMouseDown = cb
}
func (w *fakeWindow) SetMouseUpCallback(cb func(button window.MouseButton, x, y int32)) {
	w.onMouseUp = cb
}
func (w *fakeWindow) SetMouseMoveCallback(cb func(x, y int32))  { w.onMouseMove = cb }
func (w *fakeWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor { return nil }
func (w *fakeWindow) IsRunning() bool                            { return w.running }
func (w *fakeWindow) Width() int                                 { return w.width }
func (w *fakeWindow) Height() int                                { return w.height }

func (w *fakeWindow) Close() error {
	w.running = false
	w.closed++
	return nil
}

func (w *fakeWindow) ProcessMessages() {
	for i := 0; i < w.frames && w.running; i++ {
		if w.onUpdate != nil {
			w.onUpdate()
		}
	}
}

type fixture struct {
	window *fakeWindow
	api    *renderertest.API
	engine Engine
	scene  scene.Scene
}

func newFixture(t *testing.T, frames int, options ...EngineBuilderOption) *fixture {
	t.Helper()
	f := &fixture{
		window: newFakeWindow(64, 64, frames),
		api:    renderertest.New(8),
		scene:  scene.NewScene("viewport"),
	}
	cam := camera.NewCamera(camera.WithController(camera.NewCameraController(
		camera.WithRadius(5),
		camera.WithAzimuth(0),
		camera.WithElevation(0),
	)))
	opts := append([]EngineBuilderOption{
		WithWindow(f.window),
		WithAPI(f.api),
		WithCamera(cam),
		WithProfiler(profiler.NewProfiler(profiler.WithQuiet(true))),
	}, options...)
	e, err := NewEngine(opts...)
	require.NoError(t, err)
	f.engine = e
	t.Cleanup(e.Close)

	m := asset.NewModel(1, "quad", asset.NewSubmesh(0, []renderer.Vertex{
		{Position: [3]float32{-1, -1, 0}},
		{Position: [3]float32{1, -1, 0}},
		{Position: [3]float32{1, 1, 0}},
		{Position: [3]float32{-1, 1, 0}},
	}, []uint32{0, 1, 2, 0, 2, 3}))
	require.NoError(t, m.Upload(f.api))
	require.NoError(t, e.Registry().Register(asset.New(1, "quad", m)))
	mat := asset.NewMaterial(2, "white", e.Pipeline().MeshShader())
	require.NoError(t, e.Registry().Register(asset.New(2, "white", mat)))
	return f
}

func (f *fixture) addQuad(t *testing.T, name string) scene.Entity {
	t.Helper()
	ent, err := f.scene.CreateEntity(name, scene.NullEntity)
	require.NoError(t, err)
	mr, err := f.scene.AddMeshRenderer(ent, 1)
	require.NoError(t, err)
	mr.SetMaterial(0, 2)
	return ent
}

func TestResizeCallbackUpdatesPipelineAndCamera(t *testing.T) {
	f := newFixture(t, 0)

	f.window.onResize(128, 64)

	w, h := f.engine.Pipeline().Resolution()
	assert.Equal(t, uint32(128), w)
	assert.Equal(t, uint32(64), h)
	assert.InDelta(t, 2.0, f.engine.Camera().Aspect(), 1e-6)

	assert.Error(t, f.engine.Resize(0, 10))
	w, _ = f.engine.Pipeline().Resolution()
	assert.Equal(t, uint32(128), w)
}

func TestClickPicksEntity(t *testing.T) {
	f := newFixture(t, 0)
	quad := f.addQuad(t, "quad")
	f.engine.LoadScene(f.scene)

	var picks []scene.Entity
	f.engine.SetPickCallback(func(picked scene.Entity) { picks = append(picks, picked) })

	f.window.onMouseDown(window.MouseButtonLeft, 32, 32)
	assert.Equal(t, quad, f.engine.Selected())

	f.window.onMouseDown(window.MouseButtonLeft, 1, 1)
	assert.Equal(t, scene.NullEntity, f.engine.Selected())
	assert.Equal(t, []scene.Entity{quad, scene.NullEntity}, picks)
}

func TestPickWithoutScene(t *testing.T) {
	f := newFixture(t, 0)
	assert.Equal(t, scene.NullEntity, f.engine.Pick(32, 32))
}

func TestTickInvalidatesOnSceneChange(t *testing.T) {
	f := newFixture(t, 0)
	f.addQuad(t, "a")
	f.engine.LoadScene(f.scene)
	worker := f.engine.Pipeline().Worker()
	require.Eventually(t, func() bool { return worker.Extractions() == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, 1, f.engine.Pipeline().DrawCallCount())

	e := f.engine.(*engine)
	e.tick(0)
	assert.Equal(t, uint64(1), worker.Extractions())

	f.addQuad(t, "b")
	e.tick(0)
	require.Eventually(t, func() bool { return f.engine.Pipeline().DrawCallCount() == 2 }, 2*time.Second, time.Millisecond)
}

func TestRunRendersAndPresentsEachFrame(t *testing.T) {
	f := newFixture(t, 3)
	f.addQuad(t, "quad")
	f.engine.LoadScene(f.scene)

	frames := 0
	f.engine.SetRenderCallback(func(float32) { frames++ })
	f.engine.Run()

	assert.Equal(t, 3, frames)
	assert.Equal(t, 3, f.api.Presented())
	assert.Zero(t, f.window.closed, "a supplied window is left to its owner")
}

func TestQuitStopsMessageLoop(t *testing.T) {
	f := newFixture(t, 100)
	frames := 0
	f.engine.SetRenderCallback(func(float32) {
		frames++
		if frames == 2 {
			f.engine.Quit()
		}
	})
	f.engine.Run()

	assert.Equal(t, 2, frames)
	assert.Equal(t, 1, f.window.closed)
}

func TestKeyShortcuts(t *testing.T) {
	f := newFixture(t, 0)
	f.engine.LoadScene(f.scene)
	settings := f.scene.Settings()

	require.True(t, settings.Values().Grid.Enabled)
	f.window.onKeyDown(common.KeyG)
	assert.False(t, settings.Values().Grid.Enabled)
	assert.False(t, f.engine.Pipeline().Grid().Enabled)

	require.Equal(t, scene.TonemapACES, settings.Values().Tonemap)
	f.window.onKeyDown(common.KeyT)
	assert.Equal(t, scene.TonemapFilmic, settings.Values().Tonemap)
	f.window.onKeyDown(common.KeyT)
	assert.Equal(t, scene.TonemapNone, f.engine.Pipeline().TonemapType())
}

func TestFocusFramesSelection(t *testing.T) {
	f := newFixture(t, 0)
	quad := f.addQuad(t, "quad")
	f.engine.LoadScene(f.scene)

	require.Equal(t, quad, f.engine.Pick(32, 32))
	f.scene.Transform(quad).SetPosition(mgl32.Vec3{4, 0, 0})
	f.window.onKeyDown(common.KeyF)

	ctrl := f.engine.Camera().Controller()
	assert.True(t, ctrl.Target().ApproxEqual(mgl32.Vec3{4, 0, 0}))
	assert.InDelta(t, 3.0, ctrl.Radius(), 1e-5)
}

func TestBackspaceDeletesSelection(t *testing.T) {
	f := newFixture(t, 0)
	quad := f.addQuad(t, "quad")
	f.engine.LoadScene(f.scene)

	var keys []uint32
	f.engine.SetKeyCallback(func(keyCode uint32) { keys = append(keys, keyCode) })

	require.Equal(t, quad, f.engine.Pick(32, 32))
	f.window.onKeyDown(common.KeyBackspace)

	assert.False(t, f.scene.Contains(quad))
	assert.Equal(t, scene.NullEntity, f.engine.Selected())
	assert.Equal(t, []uint32{common.KeyBackspace}, keys)
	assert.Equal(t, scene.NullEntity, f.engine.Pick(32, 32))
}

func TestMouseDragOrbitsAndPans(t *testing.T) {
	f := newFixture(t, 0)
	ctrl := f.engine.Camera().Controller()
	azimuth := ctrl.Azimuth()

	f.window.onMouseDown(window.MouseButtonRight, 10, 10)
	f.window.onMouseMove(40, 10)
	f.window.onMouseUp(window.MouseButtonRight, 40, 10)
	assert.NotEqual(t, azimuth, ctrl.Azimuth())

	azimuth = ctrl.Azimuth()
	f.window.onMouseMove(80, 10)
	assert.Equal(t, azimuth, ctrl.Azimuth(), "moves without a held button do nothing")

	target := ctrl.Target()
	f.window.onMouseDown(window.MouseButtonMiddle, 80, 10)
	f.window.onMouseMove(120, 50)
	f.window.onMouseUp(window.MouseButtonMiddle, 120, 50)
	assert.False(t, target.ApproxEqual(ctrl.Target()))

	radius := ctrl.Radius()
	f.window.onScroll(1)
	assert.NotEqual(t, radius, ctrl.Radius())
}

func TestSettingsFileLoadedAndSaved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viewport.toml")
	values := scene.DefaultSettings()
	values.Exposure = 2.5
	require.NoError(t, scene.SaveSettingsFile(path, values))

	f := newFixture(t, 0, WithSettingsFile(path))
	f.engine.LoadScene(f.scene)
	assert.InDelta(t, 2.5, f.scene.Settings().Values().Exposure, 1e-6)
	assert.InDelta(t, 2.5, f.engine.Pipeline().Exposure(), 1e-6)

	f.scene.Settings().SetTonemap(scene.TonemapReinhard)
	f.engine.Close()

	saved, err := scene.LoadSettingsFile(path)
	require.NoError(t, err)
	assert.Equal(t, scene.TonemapReinhard, saved.Tonemap)
	assert.InDelta(t, 2.5, saved.Exposure, 1e-6)
}
