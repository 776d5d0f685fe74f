package drawcall

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-editor/engine/asset"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer"
	"github.com/Carmen-Shannon/oxy-editor/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// DrawCall is one indexed draw: a submesh's buffer with its material and the owning entity's world
// matrix as of the snapshot it was extracted from. DrawCalls are never mutated after publication.
type DrawCall struct {
	Mesh     renderer.MeshBuffer
	Material asset.Material
	Model    mgl32.Mat4
	Entity   scene.Entity
}

// Stats summarises a published list.
type Stats struct {
	DrawCalls int
	Vertices  int
	Triangles int
}

// List is the published draw-call list. The worker replaces the whole list under the mutex and
// readers hold the mutex while iterating, so a reader never observes a partial list.
type List struct {
	mu *sync.Mutex

	calls []DrawCall
	stats Stats
}

// NewList creates an empty List.
func NewList() *List {
	return &List{mu: &sync.Mutex{}}
}

// Publish replaces the current list and its stats.
func (l *List) Publish(calls []DrawCall, stats Stats) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = calls
	l.stats = stats
}

// View calls fn with the current list while holding the list mutex. fn must not retain the slice
// or call back into the List.
func (l *List) View(fn func(calls []DrawCall)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.calls)
}

// Stats returns the stats of the current list.
func (l *List) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Len returns the number of draw calls in the current list.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}
