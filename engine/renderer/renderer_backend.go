package renderer

import "errors"

// BackendType identifies the GPU backend implementation behind an API.
type BackendType int

const (
	// BackendTypeNone declares that no backend is available. NewAPI refuses it.
	BackendTypeNone BackendType = iota

	// BackendTypeWGPU selects the WebGPU-based rendering backend.
	BackendTypeWGPU

	// BackendTypeGoGPU is reserved for a pure-Go WebGPU backend. It is declared but not implemented.
	BackendTypeGoGPU
)

// String returns the human-readable backend name.
func (b BackendType) String() string {
	switch b {
	case BackendTypeNone:
		return "none"
	case BackendTypeWGPU:
		return "wgpu"
	case BackendTypeGoGPU:
		return "gogpu"
	default:
		return "unknown"
	}
}

var (
	// ErrNoBackend is returned when an API is requested for BackendTypeNone.
	ErrNoBackend = errors.New("renderer: no backend selected")

	// ErrBackendNotImplemented is returned for declared backends that have no implementation.
	ErrBackendNotImplemented = errors.New("renderer: backend not implemented")

	// ErrUnknownBackend is returned for backend values outside the declared set.
	ErrUnknownBackend = errors.New("renderer: unknown backend")

	// ErrNoSurface is returned by Present when the API was created without a window surface.
	ErrNoSurface = errors.New("renderer: no presentation surface")

	// ErrAttachmentIndex is returned when an attachment index is outside the target's attachment list.
	ErrAttachmentIndex = errors.New("renderer: attachment index out of range")

	// ErrNotInteger is returned when an integer operation targets a non-integer attachment.
	ErrNotInteger = errors.New("renderer: attachment is not an integer format")

	// ErrPixelOutOfBounds is returned when a pixel read falls outside the attachment.
	ErrPixelOutOfBounds = errors.New("renderer: pixel out of bounds")
)

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// MSAASampleCount controls the number of samples used for multisample anti-aliasing (MSAA).
// Only specific power-of-two values are valid for GPU hardware. WebGPU guarantees support for
// 1 (off) and 4; higher values (8, 16) are adapter-dependent and may not be available.
type MSAASampleCount uint32

const (
	// MSAAOff disables multisample anti-aliasing (sample count 1).
	MSAAOff MSAASampleCount = 1

	// MSAA4x enables 4× multisample anti-aliasing. This is the default.
	MSAA4x MSAASampleCount = 4

	// MSAA8x enables 8× multisample anti-aliasing. Adapter-dependent; not all hardware supports this.
	MSAA8x MSAASampleCount = 8

	// MSAA16x enables 16× multisample anti-aliasing. Adapter-dependent; not all hardware supports this.
	MSAA16x MSAASampleCount = 16
)
