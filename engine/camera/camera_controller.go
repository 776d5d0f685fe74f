package camera

import "github.com/go-gl/mathgl/mgl32"

// CameraController drives the editor viewport camera. Controllers own positional state
// (position, target) expressed in spherical coordinates around the target; the Camera reads
// from the controller and computes view/projection matrices.
type CameraController interface {
	// Position returns the camera's world-space position.
	//
	// Returns:
	//   - mgl32.Vec3: world-space camera position
	Position() mgl32.Vec3

	// Target returns the look-at/pivot point.
	//
	// Returns:
	//   - mgl32.Vec3: world-space target position
	Target() mgl32.Vec3

	// SetTarget moves the pivot point and recomputes position from spherical coordinates.
	//
	// Parameters:
	//   - target: world-space pivot
	SetTarget(target mgl32.Vec3)

	// Orbit rotates around the target by the given cursor delta, scaled by MouseSensitivity.
	// Elevation is clamped to the configured bounds.
	//
	// Parameters:
	//   - dx: horizontal cursor delta in pixels
	//   - dy: vertical cursor delta in pixels
	Orbit(dx, dy float32)

	// Pan slides both target and position in the camera's right/up plane, scaled by PanSpeed
	// and the current radius so panning feels uniform at any zoom level.
	//
	// Parameters:
	//   - dx: horizontal cursor delta in pixels
	//   - dy: vertical cursor delta in pixels
	Pan(dx, dy float32)

	// Zoom adjusts the orbit radius. Positive delta moves closer to the target.
	//
	// Parameters:
	//   - delta: zoom amount scaled by ZoomSpeed
	Zoom(delta float32)

	// Focus frames a point: the target moves to center and the radius is set to distance,
	// clamped to the radius bounds.
	//
	// Parameters:
	//   - center: the point to frame
	//   - distance: the desired orbit radius
	Focus(center mgl32.Vec3, distance float32)

	Radius() float32
	Azimuth() float32
	Elevation() float32
	MinRadius() float32
	MaxRadius() float32
	MinElevation() float32
	MaxElevation() float32
	MouseSensitivity() float32
	ZoomSpeed() float32
	PanSpeed() float32
}
