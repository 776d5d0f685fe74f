package common

import (
	"math"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	totalBytes := int(size) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), totalBytes)
}

// NormalizeDegrees wraps an angle in degrees into the half-open range [0, 360).
//
// Parameters:
//   - deg: the angle in degrees, any magnitude or sign
//
// Returns:
//   - float32: the equivalent angle in [0, 360)
func NormalizeDegrees(deg float32) float32 {
	r := float32(math.Mod(float64(deg), 360))
	if r < 0 {
		r += 360
	}
	if r >= 360 {
		r = 0
	}
	return r
}

// NormalizeEuler applies NormalizeDegrees to every component of an Euler angle triple.
func NormalizeEuler(v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{NormalizeDegrees(v[0]), NormalizeDegrees(v[1]), NormalizeDegrees(v[2])}
}

// RotationMatrix builds the rotation part of a model matrix from Euler angles in degrees.
// The rotation order is Y * X * Z (yaw-pitch-roll).
//
// Parameters:
//   - euler: rotation around X, Y and Z in degrees
//
// Returns:
//   - mgl32.Mat4: the homogeneous rotation matrix
func RotationMatrix(euler mgl32.Vec3) mgl32.Mat4 {
	rx := mgl32.HomogRotate3DX(mgl32.DegToRad(euler[0]))
	ry := mgl32.HomogRotate3DY(mgl32.DegToRad(euler[1]))
	rz := mgl32.HomogRotate3DZ(mgl32.DegToRad(euler[2]))
	return ry.Mul4(rx).Mul4(rz)
}

// BuildModelMatrix constructs a 4x4 model matrix as translation * rotation * scale.
// Rotation is given as Euler angles in degrees and applied in Y * X * Z order.
//
// Parameters:
//   - position: translation in parent space
//   - euler: rotation around X, Y and Z in degrees
//   - scale: scale factors along each axis
//
// Returns:
//   - mgl32.Mat4: the composed column-major model matrix
func BuildModelMatrix(position, euler, scale mgl32.Vec3) mgl32.Mat4 {
	t := mgl32.Translate3D(position[0], position[1], position[2])
	s := mgl32.Scale3D(scale[0], scale[1], scale[2])
	return t.Mul4(RotationMatrix(euler)).Mul4(s)
}

// Perspective creates a perspective projection matrix for WebGPU clip space,
// where depth maps to [0, 1] rather than the OpenGL [-1, 1] range produced by mgl32.Perspective.
//
// Parameters:
//   - fovY: vertical field of view in radians
//   - aspect: viewport aspect ratio (width/height)
//   - near: near clipping plane distance (must be > 0)
//   - far: far clipping plane distance (must be > near)
//
// Returns:
//   - mgl32.Mat4: the projection matrix
func Perspective(fovY, aspect, near, far float32) mgl32.Mat4 {
	f := 1.0 / float32(math.Tan(float64(fovY)/2.0))
	m := mgl32.Mat4{}
	m[0] = f / aspect
	m[5] = f
	m[10] = far / (near - far)
	m[11] = -1.0
	m[14] = (near * far) / (near - far)
	return m
}

// FloorPowerOfTwo returns the largest power of two that is less than or equal to n.
// Zero maps to zero.
func FloorPowerOfTwo(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	p := uint32(1)
	for p<<1 != 0 && p<<1 <= n {
		p <<= 1
	}
	return p
}
