package camera

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// cameraControllerImpl is the orbit implementation of CameraController.
type cameraControllerImpl struct {
	mu *sync.Mutex

	position mgl32.Vec3
	target   mgl32.Vec3

	radius    float32
	azimuth   float32 // around Y, 0 looks down -Z from +Z
	elevation float32 // from the horizontal plane

	minRadius    float32
	maxRadius    float32
	minElevation float32
	maxElevation float32

	mouseSensitivity float32
	zoomSpeed        float32
	panSpeed         float32
}

var _ CameraController = &cameraControllerImpl{}

// NewCameraController creates an orbit CameraController with editor defaults.
//
// Parameters:
//   - options: variadic list of CameraControllerOption functions
//
// Returns:
//   - CameraController: the newly created controller
func NewCameraController(options ...CameraControllerOption) CameraController {
	cc := &cameraControllerImpl{
		mu: &sync.Mutex{},

		radius:    10.0,
		azimuth:   float32(math.Pi / 4),
		elevation: float32(math.Pi / 6),

		minRadius:    0.5,
		maxRadius:    5000.0,
		minElevation: float32(-math.Pi/2 + 0.01),
		maxElevation: float32(math.Pi/2 - 0.01),

		mouseSensitivity: 0.005,
		zoomSpeed:        1.0,
		panSpeed:         0.002,
	}

	for _, option := range options {
		option(cc)
	}

	cc.radius = clamp(cc.radius, cc.minRadius, cc.maxRadius)
	cc.elevation = clamp(cc.elevation, cc.minElevation, cc.maxElevation)
	cc.updatePosition()
	return cc
}

func clamp(v, lo, hi float32) float32 {
	return float32(math.Max(float64(lo), math.Min(float64(hi), float64(v))))
}

// updatePosition recomputes position from spherical coordinates. Must be called with cc.mu held.
func (cc *cameraControllerImpl) updatePosition() {
	cosElev := float32(math.Cos(float64(cc.elevation)))
	sinElev := float32(math.Sin(float64(cc.elevation)))
	cosAzim := float32(math.Cos(float64(cc.azimuth)))
	sinAzim := float32(math.Sin(float64(cc.azimuth)))

	cc.position = cc.target.Add(mgl32.Vec3{
		cc.radius * cosElev * sinAzim,
		cc.radius * sinElev,
		cc.radius * cosElev * cosAzim,
	})
}

// localAxes returns the camera's right and up vectors. Must be called with cc.mu held.
func (cc *cameraControllerImpl) localAxes() (right, up mgl32.Vec3) {
	back := cc.position.Sub(cc.target)
	if back.Len() < 1e-8 {
		return mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}
	}
	back = back.Normalize()
	right = mgl32.Vec3{0, 1, 0}.Cross(back)
	if right.Len() < 1e-8 {
		right = mgl32.Vec3{1, 0, 0}
	}
	right = right.Normalize()
	up = back.Cross(right)
	return right, up
}

func (cc *cameraControllerImpl) Position() mgl32.Vec3 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.position
}

func (cc *cameraControllerImpl) Target() mgl32.Vec3 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.target
}

func (cc *cameraControllerImpl) SetTarget(target mgl32.Vec3) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.target = target
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Orbit(dx, dy float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.azimuth -= dx * cc.mouseSensitivity
	cc.elevation = clamp(cc.elevation+dy*cc.mouseSensitivity, cc.minElevation, cc.maxElevation)
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Pan(dx, dy float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	right, up := cc.localAxes()
	scale := cc.panSpeed * cc.radius
	offset := right.Mul(-dx * scale).Add(up.Mul(dy * scale))
	cc.target = cc.target.Add(offset)
	cc.position = cc.position.Add(offset)
}

func (cc *cameraControllerImpl) Zoom(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.radius = clamp(cc.radius-delta*cc.zoomSpeed, cc.minRadius, cc.maxRadius)
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Focus(center mgl32.Vec3, distance float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.target = center
	cc.radius = clamp(distance, cc.minRadius, cc.maxRadius)
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Radius() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.radius
}

func (cc *cameraControllerImpl) Azimuth() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.azimuth
}

func (cc *cameraControllerImpl) Elevation() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.elevation
}

func (cc *cameraControllerImpl) MinRadius() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.minRadius
}

func (cc *cameraControllerImpl) MaxRadius() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.maxRadius
}

func (cc *cameraControllerImpl) MinElevation() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.minElevation
}

func (cc *cameraControllerImpl) MaxElevation() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.maxElevation
}

func (cc *cameraControllerImpl) MouseSensitivity() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.mouseSensitivity
}

func (cc *cameraControllerImpl) ZoomSpeed() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.zoomSpeed
}

func (cc *cameraControllerImpl) PanSpeed() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.panSpeed
}
