package framebuffer

import (
	"errors"
	"sync"

	"github.com/Carmen-Shannon/oxy-editor/engine/renderer"
)

// pingPongBuffer is the implementation of the PingPongBuffer interface.
type pingPongBuffer struct {
	mu      *sync.Mutex
	buffers [2]Framebuffer
	read    int
}

// PingPongBuffer is a pair of identical framebuffers with swappable read/write roles, used to
// chain post-processing passes without allocating per pass. Read and Write must be re-fetched
// after every Swap.
type PingPongBuffer interface {
	// Read returns the framebuffer holding the previous pass's output.
	Read() Framebuffer

	// Write returns the framebuffer the next pass renders into.
	Write() Framebuffer

	// Swap exchanges the read and write roles.
	Swap()

	// Resize resizes both framebuffers.
	//
	// Returns:
	//   - error: ErrInvalidSize when either dimension is out of range
	Resize(width, height uint32) error

	// Release frees both framebuffers.
	Release()
}

var _ PingPongBuffer = &pingPongBuffer{}

// NewPingPongBuffer allocates two framebuffers from the same specification.
//
// Parameters:
//   - api: the renderer API that owns the GPU images
//   - spec: the specification shared by both framebuffers
//   - options: options applied to both framebuffers
//
// Returns:
//   - PingPongBuffer: the allocated pair
//   - error: an error if either framebuffer cannot be created
func NewPingPongBuffer(api renderer.API, spec renderer.FramebufferSpecification, options ...FramebufferBuilderOption) (PingPongBuffer, error) {
	p := &pingPongBuffer{mu: &sync.Mutex{}}
	base := spec.Label
	for i := range p.buffers {
		s := spec
		s.Label = base + []string{" A", " B"}[i]
		fb, err := NewFramebuffer(api, s, options...)
		if err != nil {
			if i == 1 {
				p.buffers[0].Release()
			}
			return nil, err
		}
		p.buffers[i] = fb
	}
	return p, nil
}

func (p *pingPongBuffer) Read() Framebuffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffers[p.read]
}

func (p *pingPongBuffer) Write() Framebuffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffers[1-p.read]
}

func (p *pingPongBuffer) Swap() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.read = 1 - p.read
}

func (p *pingPongBuffer) Resize(width, height uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(p.buffers[0].Resize(width, height), p.buffers[1].Resize(width, height))
}

func (p *pingPongBuffer) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffers[0].Release()
	p.buffers[1].Release()
}
