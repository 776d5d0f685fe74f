package scene

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-editor/common"
	"github.com/go-gl/mathgl/mgl32"
)

// TransformComponent is an entity's local position, rotation and scale with a lazily recomputed
// model matrix. Rotation is stored as Euler angles in degrees, normalised to [0, 360).
type TransformComponent struct {
	mu *sync.Mutex

	position mgl32.Vec3
	rotation mgl32.Vec3
	scale    mgl32.Vec3

	matrix mgl32.Mat4
	dirty  bool

	onChange func()
}

// NewTransform returns an identity transform.
func NewTransform() *TransformComponent {
	return &TransformComponent{
		mu:     &sync.Mutex{},
		scale:  mgl32.Vec3{1, 1, 1},
		matrix: mgl32.Ident4(),
	}
}

func (t *TransformComponent) Position() mgl32.Vec3 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.position
}

func (t *TransformComponent) Rotation() mgl32.Vec3 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rotation
}

func (t *TransformComponent) Scale() mgl32.Vec3 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scale
}

// SetPosition sets the local translation and marks the matrix dirty.
func (t *TransformComponent) SetPosition(p mgl32.Vec3) {
	t.mutate(func() { t.position = p })
}

// SetRotation sets the local Euler rotation in degrees and marks the matrix dirty.
// Angles are normalised to [0, 360).
func (t *TransformComponent) SetRotation(euler mgl32.Vec3) {
	t.mutate(func() { t.rotation = common.NormalizeEuler(euler) })
}

// SetScale sets the local scale and marks the matrix dirty.
func (t *TransformComponent) SetScale(s mgl32.Vec3) {
	t.mutate(func() { t.scale = s })
}

// Dirty reports whether the cached matrix is stale.
func (t *TransformComponent) Dirty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dirty
}

// Matrix returns the local model matrix T*R*S, recomputing it first when a setter ran since the
// last call.
func (t *TransformComponent) Matrix() mgl32.Mat4 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dirty {
		t.matrix = common.BuildModelMatrix(t.position, t.rotation, t.scale)
		t.dirty = false
	}
	return t.matrix
}

func (t *TransformComponent) mutate(fn func()) {
	t.mu.Lock()
	fn()
	t.dirty = true
	onChange := t.onChange
	t.mu.Unlock()

	if onChange != nil {
		onChange()
	}
}

func (t *TransformComponent) setOnChange(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}
