package renderer

// bindEntry is a bound target together with the viewport active while it was bound.
type bindEntry struct {
	target   RenderTarget
	viewport Viewport
}

// TargetStack tracks nested BindTarget/UnbindTarget calls for API implementations.
// It is not safe for concurrent use; APIs guard it with their own lock.
type TargetStack struct {
	entries []bindEntry
}

// Push binds t with a full-size viewport, remembering the current viewport of the outer target.
//
// Parameters:
//   - t: the target being bound
//
// Returns:
//   - Viewport: the viewport that should now be active
func (s *TargetStack) Push(t RenderTarget) Viewport {
	spec := t.Specification()
	vp := Viewport{Width: spec.Width, Height: spec.Height}
	s.entries = append(s.entries, bindEntry{target: t, viewport: vp})
	return vp
}

// Pop unbinds the top target.
//
// Returns:
//   - RenderTarget: the target that is bound after the pop, or nil
//   - Viewport: the viewport restored for that target
//   - bool: false when the stack was already empty
func (s *TargetStack) Pop() (RenderTarget, Viewport, bool) {
	if len(s.entries) == 0 {
		return nil, Viewport{}, false
	}
	s.entries = s.entries[:len(s.entries)-1]
	if len(s.entries) == 0 {
		return nil, Viewport{}, true
	}
	top := s.entries[len(s.entries)-1]
	return top.target, top.viewport, true
}

// Top returns the bound target and its viewport, or nil when nothing is bound.
func (s *TargetStack) Top() (RenderTarget, Viewport) {
	if len(s.entries) == 0 {
		return nil, Viewport{}
	}
	top := s.entries[len(s.entries)-1]
	return top.target, top.viewport
}

// SetViewport records vp as the viewport of the top target.
func (s *TargetStack) SetViewport(vp Viewport) {
	if len(s.entries) == 0 {
		return
	}
	s.entries[len(s.entries)-1].viewport = vp
}

// Depth returns the number of bound targets.
func (s *TargetStack) Depth() int {
	return len(s.entries)
}
