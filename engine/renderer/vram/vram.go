package vram

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-editor/engine/renderer"
)

// ErrUnderflow is returned when a removal would take a counter below zero. The counter is
// clamped at zero; the mismatch indicates an unpaired add/remove somewhere in the caller.
var ErrUnderflow = errors.New("vram: counter underflow")

// Category names one of the tracked memory counters.
type Category int

const (
	CategoryTexture Category = iota
	CategoryBuffer
	CategoryFramebuffer
	CategoryShader
	CategoryCompute
)

func (c Category) String() string {
	switch c {
	case CategoryTexture:
		return "texture"
	case CategoryBuffer:
		return "buffer"
	case CategoryFramebuffer:
		return "framebuffer"
	case CategoryShader:
		return "shader"
	case CategoryCompute:
		return "compute"
	default:
		return "unknown"
	}
}

// Usage is a point-in-time copy of every counter.
type Usage struct {
	Texture     uint64
	Buffer      uint64
	Framebuffer uint64
	Shader      uint64
	Compute     uint64
}

// Total returns the sum of every category.
func (u Usage) Total() uint64 {
	return u.Texture + u.Buffer + u.Framebuffer + u.Shader + u.Compute
}

// tracker is the implementation of the Tracker interface.
type tracker struct {
	counters [5]atomic.Uint64
}

// Tracker accounts for GPU memory by category. It is purely diagnostic: it never rejects an
// allocation. All methods are safe for concurrent use.
type Tracker interface {
	// AddTexture adds the size of a texture, including its mip chain when mipmapped.
	//
	// Parameters:
	//   - spec: the texture's size, format, data type, samples and mip flag
	AddTexture(spec renderer.TextureSpecification)

	// RemoveTexture subtracts the size AddTexture added for the same spec.
	//
	// Parameters:
	//   - spec: the specification passed to AddTexture
	//
	// Returns:
	//   - error: ErrUnderflow when the counter would go negative
	RemoveTexture(spec renderer.TextureSpecification) error

	// AddBuffer adds size bytes of buffer memory.
	AddBuffer(size uint64)

	// RemoveBuffer subtracts size bytes of buffer memory.
	//
	// Returns:
	//   - error: ErrUnderflow when the counter would go negative
	RemoveBuffer(size uint64) error

	// AddFramebuffer adds the combined size of every attachment in spec.
	//
	// Parameters:
	//   - spec: the framebuffer specification
	AddFramebuffer(spec renderer.FramebufferSpecification)

	// RemoveFramebuffer subtracts the size AddFramebuffer added for the same spec.
	//
	// Returns:
	//   - error: ErrUnderflow when the counter would go negative
	RemoveFramebuffer(spec renderer.FramebufferSpecification) error

	// AddShader adds size bytes of shader memory.
	AddShader(size uint64)

	// RemoveShader subtracts size bytes of shader memory.
	RemoveShader(size uint64) error

	// AddCompute adds size bytes of compute-resource memory.
	AddCompute(size uint64)

	// RemoveCompute subtracts size bytes of compute-resource memory.
	RemoveCompute(size uint64) error

	TextureMemory() uint64
	BufferMemory() uint64
	FramebufferMemory() uint64
	ShaderMemory() uint64
	ComputeMemory() uint64

	// TotalMemory returns the sum of all five counters.
	TotalMemory() uint64

	// Snapshot returns a copy of every counter.
	Snapshot() Usage
}

var _ Tracker = &tracker{}
var _ renderer.MemoryTracker = &tracker{}

// NewTracker creates a Tracker with every counter at zero.
//
// Returns:
//   - Tracker: the new tracker
func NewTracker() Tracker {
	return &tracker{}
}

// TextureBytes returns the memory a texture occupies. When mipmapped, every level is summed
// by halving width and height (never below 1) until the 1×1 level is included.
//
// Parameters:
//   - spec: the texture specification
//
// Returns:
//   - uint64: the size in bytes
func TextureBytes(spec renderer.TextureSpecification) uint64 {
	samples := uint64(max(spec.Samples, 1))
	bpt := spec.BytesPerTexel()
	w, h := uint64(spec.Width), uint64(spec.Height)
	if w == 0 || h == 0 {
		return 0
	}
	if !spec.Mipmapped {
		return w * h * bpt * samples
	}

	var texels uint64
	for {
		texels += w * h
		if w == 1 && h == 1 {
			break
		}
		w = max(w/2, 1)
		h = max(h/2, 1)
	}
	return texels * bpt * samples
}

// FramebufferBytes returns Σ bytes-per-pixel × width × height × samples over every attachment.
//
// Parameters:
//   - spec: the framebuffer specification
//
// Returns:
//   - uint64: the size in bytes
func FramebufferBytes(spec renderer.FramebufferSpecification) uint64 {
	samples := uint64(max(spec.Samples, 1))
	pixels := uint64(spec.Width) * uint64(spec.Height)
	var total uint64
	for _, f := range spec.Attachments {
		total += f.BytesPerPixel() * pixels * samples
	}
	return total
}

func (t *tracker) add(c Category, size uint64) {
	t.counters[c].Add(size)
}

// sub subtracts size from the counter, clamping at zero instead of wrapping.
func (t *tracker) sub(c Category, size uint64) error {
	counter := &t.counters[c]
	for {
		cur := counter.Load()
		next := uint64(0)
		if size <= cur {
			next = cur - size
		}
		if counter.CompareAndSwap(cur, next) {
			if size > cur {
				err := fmt.Errorf("%w: %s has %d bytes, removing %d", ErrUnderflow, c, cur, size)
				log.Printf("[VRAM] %v", err)
				return err
			}
			return nil
		}
	}
}

func (t *tracker) AddTexture(spec renderer.TextureSpecification) {
	t.add(CategoryTexture, TextureBytes(spec))
}

func (t *tracker) RemoveTexture(spec renderer.TextureSpecification) error {
	return t.sub(CategoryTexture, TextureBytes(spec))
}

func (t *tracker) AddBuffer(size uint64) {
	t.add(CategoryBuffer, size)
}

func (t *tracker) RemoveBuffer(size uint64) error {
	return t.sub(CategoryBuffer, size)
}

func (t *tracker) AddFramebuffer(spec renderer.FramebufferSpecification) {
	t.add(CategoryFramebuffer, FramebufferBytes(spec))
}

func (t *tracker) RemoveFramebuffer(spec renderer.FramebufferSpecification) error {
	return t.sub(CategoryFramebuffer, FramebufferBytes(spec))
}

func (t *tracker) AddShader(size uint64) {
	t.add(CategoryShader, size)
}

func (t *tracker) RemoveShader(size uint64) error {
	return t.sub(CategoryShader, size)
}

func (t *tracker) AddCompute(size uint64) {
	t.add(CategoryCompute, size)
}

func (t *tracker) RemoveCompute(size uint64) error {
	return t.sub(CategoryCompute, size)
}

func (t *tracker) TextureMemory() uint64     { return t.counters[CategoryTexture].Load() }
func (t *tracker) BufferMemory() uint64      { return t.counters[CategoryBuffer].Load() }
func (t *tracker) FramebufferMemory() uint64 { return t.counters[CategoryFramebuffer].Load() }
func (t *tracker) ShaderMemory() uint64      { return t.counters[CategoryShader].Load() }
func (t *tracker) ComputeMemory() uint64     { return t.counters[CategoryCompute].Load() }

func (t *tracker) TotalMemory() uint64 {
	return t.Snapshot().Total()
}

func (t *tracker) Snapshot() Usage {
	return Usage{
		Texture:     t.TextureMemory(),
		Buffer:      t.BufferMemory(),
		Framebuffer: t.FramebufferMemory(),
		Shader:      t.ShaderMemory(),
		Compute:     t.ComputeMemory(),
	}
}
