package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-editor/common"
	"github.com/go-gl/mathgl/mgl32"
)

// cameraImpl is the implementation of the Camera interface.
type cameraImpl struct {
	mu *sync.Mutex

	up mgl32.Vec3

	fov    float32
	aspect float32
	near   float32
	far    float32

	viewMatrix                  mgl32.Mat4
	projectionMatrix            mgl32.Mat4
	viewProjectionMatrix        mgl32.Mat4
	inverseViewProjectionMatrix mgl32.Mat4

	controller CameraController
}

// Camera is the editor viewport camera. It derives its view from a CameraController and
// caches the view, projection and combined matrices consumed by the rendering pipeline.
type Camera interface {
	// Up returns the camera's up vector.
	//
	// Returns:
	//   - mgl32.Vec3: the up vector
	Up() mgl32.Vec3

	// Fov returns the vertical field of view in radians.
	//
	// Returns:
	//   - float32: the field of view in radians
	Fov() float32

	// Aspect returns the aspect ratio (width / height).
	//
	// Returns:
	//   - float32: the aspect ratio
	Aspect() float32

	// Near returns the near clipping plane distance.
	//
	// Returns:
	//   - float32: the near plane distance
	Near() float32

	// Far returns the far clipping plane distance.
	//
	// Returns:
	//   - float32: the far plane distance
	Far() float32

	// Position returns the world-space eye position reported by the controller.
	// Without a controller this is the origin.
	//
	// Returns:
	//   - mgl32.Vec3: the eye position
	Position() mgl32.Vec3

	// ViewMatrix returns the cached view matrix.
	//
	// Returns:
	//   - mgl32.Mat4: the view matrix
	ViewMatrix() mgl32.Mat4

	// ProjectionMatrix returns the cached projection matrix.
	//
	// Returns:
	//   - mgl32.Mat4: the projection matrix
	ProjectionMatrix() mgl32.Mat4

	// ViewProjectionMatrix returns the cached projection * view matrix.
	//
	// Returns:
	//   - mgl32.Mat4: the combined view-projection matrix
	ViewProjectionMatrix() mgl32.Mat4

	// InverseViewProjectionMatrix returns the inverse of the combined view-projection matrix,
	// used to reconstruct world positions from depth.
	//
	// Returns:
	//   - mgl32.Mat4: the inverse view-projection matrix
	InverseViewProjectionMatrix() mgl32.Mat4

	// Controller returns the attached controller, or nil.
	//
	// Returns:
	//   - CameraController: the controller driving this camera
	Controller() CameraController

	// Update recomputes all cached matrices from the controller's current state.
	// Does nothing when no controller is attached.
	Update()

	// SetUp sets the camera's up vector and recomputes matrices.
	//
	// Parameters:
	//   - up: the new up vector
	SetUp(up mgl32.Vec3)

	// SetFov sets the vertical field of view in radians and recomputes matrices.
	//
	// Parameters:
	//   - fov: the field of view in radians
	SetFov(fov float32)

	// SetAspect sets the aspect ratio and recomputes matrices.
	//
	// Parameters:
	//   - aspect: width / height
	SetAspect(aspect float32)

	// SetNear sets the near clipping plane and recomputes matrices.
	//
	// Parameters:
	//   - near: the near plane distance
	SetNear(near float32)

	// SetFar sets the far clipping plane and recomputes matrices.
	//
	// Parameters:
	//   - far: the far plane distance
	SetFar(far float32)

	// SetController attaches a controller to the camera.
	//
	// Parameters:
	//   - ctrl: the controller to attach
	SetController(ctrl CameraController)
}

var _ Camera = &cameraImpl{}

// NewCamera creates a new Camera with the provided options.
// Defaults: 45 degree field of view, aspect 1, near 0.1, far 1000, Y up.
//
// Parameters:
//   - options: variadic list of CameraBuilderOption functions
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:                          &sync.Mutex{},
		up:                          mgl32.Vec3{0, 1, 0},
		fov:                         45.0 * (math.Pi / 180.0),
		aspect:                      1.0,
		near:                        0.1,
		far:                         1000.0,
		viewMatrix:                  mgl32.Ident4(),
		projectionMatrix:            mgl32.Ident4(),
		viewProjectionMatrix:        mgl32.Ident4(),
		inverseViewProjectionMatrix: mgl32.Ident4(),
	}
	for _, option := range options {
		option(c)
	}
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Up() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.up
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) Position() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller == nil {
		return mgl32.Vec3{}
	}
	return c.controller.Position()
}

func (c *cameraImpl) ViewMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewMatrix
}

func (c *cameraImpl) ProjectionMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectionMatrix
}

func (c *cameraImpl) ViewProjectionMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjectionMatrix
}

func (c *cameraImpl) InverseViewProjectionMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inverseViewProjectionMatrix
}

func (c *cameraImpl) SetUp(up mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.up = up
	c.updateMatrices()
}

func (c *cameraImpl) SetFov(fov float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fov = fov
	c.updateMatrices()
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if aspect <= 0 {
		return
	}
	c.aspect = aspect
	c.updateMatrices()
}

func (c *cameraImpl) SetNear(near float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.near = near
	c.updateMatrices()
}

func (c *cameraImpl) SetFar(far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.far = far
	c.updateMatrices()
}

func (c *cameraImpl) Controller() CameraController {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller == nil {
		return
	}
	c.updateMatrices()
}

func (c *cameraImpl) SetController(ctrl CameraController) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = ctrl
	c.updateMatrices()
}

// updateMatrices must be called with c.mu held.
func (c *cameraImpl) updateMatrices() {
	c.projectionMatrix = common.Perspective(c.fov, c.aspect, c.near, c.far)

	if c.controller != nil {
		c.viewMatrix = mgl32.LookAtV(c.controller.Position(), c.controller.Target(), c.up)
	}

	c.viewProjectionMatrix = c.projectionMatrix.Mul4(c.viewMatrix)
	c.inverseViewProjectionMatrix = c.viewProjectionMatrix.Inv()
}
