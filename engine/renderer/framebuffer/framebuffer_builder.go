package framebuffer

import "github.com/Carmen-Shannon/oxy-editor/engine/renderer/vram"

// FramebufferBuilderOption is a functional option applied during construction via NewFramebuffer
// or NewPingPongBuffer.
type FramebufferBuilderOption func(*framebuffer)

// WithTracker reports every allocation and release to tracker.
//
// Parameters:
//   - tracker: the VRAM tracker to notify
//
// Returns:
//   - FramebufferBuilderOption: a function that applies the tracker option
func WithTracker(tracker vram.Tracker) FramebufferBuilderOption {
	return func(fb *framebuffer) {
		fb.tracker = tracker
	}
}

// WithLabel overrides the specification label used for attachment debug names.
func WithLabel(label string) FramebufferBuilderOption {
	return func(fb *framebuffer) {
		fb.spec.Label = label
	}
}
