package framebuffer

import (
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-editor/common"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer/vram"
)

// MaxDimension is the largest width or height a framebuffer may be resized to.
const MaxDimension = 16384

// ErrInvalidSize is returned for a zero dimension or one larger than MaxDimension.
var ErrInvalidSize = errors.New("framebuffer: invalid size")

// ErrAttachmentIndex is returned when an attachment index is out of range.
var ErrAttachmentIndex = renderer.ErrAttachmentIndex

// framebuffer is the implementation of the Framebuffer interface.
type framebuffer struct {
	mu *sync.Mutex

	api     renderer.API
	tracker vram.Tracker

	spec   renderer.FramebufferSpecification
	colors []renderer.Attachment
	depth  renderer.Attachment

	// tracked is spec narrowed to the attachments that were created, as reported to tracker
	tracked renderer.FramebufferSpecification

	complete  bool
	allocated bool
}

// Framebuffer is an offscreen render target: an ordered list of color attachments plus an
// optional depth attachment, all sharing one size and sample count.
type Framebuffer interface {
	renderer.RenderTarget

	// Bind makes this framebuffer the API's render target and sets the viewport to its size.
	// Binds nest: Unbind restores whatever was bound before, with its viewport.
	Bind()

	// Unbind restores the previously bound target and viewport.
	Unbind()

	// Resize reallocates every attachment at the new size, preserving formats and samples.
	//
	// Parameters:
	//   - width: the new width in pixels, 1..MaxDimension
	//   - height: the new height in pixels, 1..MaxDimension
	//
	// Returns:
	//   - error: ErrInvalidSize when either dimension is out of range; the framebuffer is unchanged
	Resize(width, height uint32) error

	// SetSamples reallocates every attachment with a new sample count.
	//
	// Parameters:
	//   - samples: the new sample count (at least 1)
	SetSamples(samples uint32)

	// ClearAttachment fills one color attachment with an integer value.
	//
	// Parameters:
	//   - index: the color attachment index
	//   - value: the fill value
	//
	// Returns:
	//   - error: ErrAttachmentIndex for a bad index
	ClearAttachment(index int, value int32) error

	// ReadPixel reads one texel of an integer color attachment.
	//
	// Parameters:
	//   - index: the color attachment index
	//   - x, y: pixel coordinates, origin top-left
	//
	// Returns:
	//   - int32: the stored value
	//   - error: an error for a bad index, non-integer attachment or out-of-bounds pixel
	ReadPixel(index, x, y int) (int32, error)

	// ColorAttachment returns the color attachment at index, or nil.
	ColorAttachment(index int) renderer.Attachment

	Width() uint32
	Height() uint32
	Samples() uint32

	// Complete reports whether every attachment was allocated successfully.
	Complete() bool

	// Release frees every attachment. The framebuffer must not be used afterwards.
	Release()
}

var _ Framebuffer = &framebuffer{}

// NewFramebuffer allocates a framebuffer on api. Attachment allocation failures are logged and
// leave the framebuffer incomplete rather than failing construction.
//
// Parameters:
//   - api: the renderer API that owns the GPU images
//   - spec: the size, samples and attachment formats
//   - options: variadic list of FramebufferBuilderOption functions
//
// Returns:
//   - Framebuffer: the allocated framebuffer
//   - error: ErrInvalidSize for a degenerate size, or an error for a nil api or empty spec
func NewFramebuffer(api renderer.API, spec renderer.FramebufferSpecification, options ...FramebufferBuilderOption) (Framebuffer, error) {
	if api == nil {
		return nil, errors.New("framebuffer: nil renderer API")
	}
	if len(spec.Attachments) == 0 {
		return nil, errors.New("framebuffer: specification has no attachments")
	}
	if err := validateSize(spec.Width, spec.Height); err != nil {
		return nil, err
	}

	fb := &framebuffer{
		mu:   &sync.Mutex{},
		api:  api,
		spec: spec,
	}
	fb.spec.Attachments = slices.Clone(spec.Attachments)
	fb.spec.Samples = common.Coalesce(spec.Samples, 1)
	for _, option := range options {
		option(fb)
	}

	fb.allocate()
	return fb, nil
}

func validateSize(width, height uint32) error {
	if width == 0 || height == 0 || width > MaxDimension || height > MaxDimension {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	return nil
}

// allocate creates every attachment for fb.spec. Must be called with fb.mu held or before fb escapes.
func (fb *framebuffer) allocate() {
	fb.colors = fb.colors[:0]
	fb.depth = nil
	fb.complete = true
	fb.tracked = fb.spec
	fb.tracked.Attachments = make([]renderer.AttachmentFormat, 0, len(fb.spec.Attachments))

	for i, format := range fb.spec.Attachments {
		a, err := fb.api.CreateAttachment(renderer.AttachmentDescriptor{
			Label:   fmt.Sprintf("%s #%d %s", fb.spec.Label, i, format),
			Format:  format,
			Width:   fb.spec.Width,
			Height:  fb.spec.Height,
			Samples: fb.spec.Samples,
		})
		if err != nil {
			log.Printf("[Framebuffer] %q incomplete: attachment %d (%s): %v", fb.spec.Label, i, format, err)
			fb.complete = false
			a = nil
		} else {
			fb.tracked.Attachments = append(fb.tracked.Attachments, format)
		}
		if format.IsDepth() {
			if fb.depth == nil {
				fb.depth = a
			}
			continue
		}
		fb.colors = append(fb.colors, a)
	}

	if fb.tracker != nil {
		fb.tracker.AddFramebuffer(fb.tracked)
	}
	fb.allocated = true
}

// free releases every attachment. Must be called with fb.mu held.
func (fb *framebuffer) free() {
	if !fb.allocated {
		return
	}
	for _, a := range fb.colors {
		if a != nil {
			fb.api.ReleaseAttachment(a)
		}
	}
	if fb.depth != nil {
		fb.api.ReleaseAttachment(fb.depth)
	}
	fb.colors = fb.colors[:0]
	fb.depth = nil

	if fb.tracker != nil {
		if err := fb.tracker.RemoveFramebuffer(fb.tracked); err != nil {
			log.Printf("[Framebuffer] %q: %v", fb.spec.Label, err)
		}
	}
	fb.allocated = false
}

func (fb *framebuffer) Specification() renderer.FramebufferSpecification {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	spec := fb.spec
	spec.Attachments = slices.Clone(fb.spec.Attachments)
	return spec
}

func (fb *framebuffer) ColorAttachments() []renderer.Attachment {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return slices.Clone(fb.colors)
}

func (fb *framebuffer) DepthAttachment() renderer.Attachment {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.depth
}

func (fb *framebuffer) ColorAttachment(index int) renderer.Attachment {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if index < 0 || index >= len(fb.colors) {
		return nil
	}
	return fb.colors[index]
}

func (fb *framebuffer) Bind() {
	fb.api.BindTarget(fb)
}

func (fb *framebuffer) Unbind() {
	fb.api.UnbindTarget()
}

func (fb *framebuffer) Resize(width, height uint32) error {
	if err := validateSize(width, height); err != nil {
		return err
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.allocated && fb.spec.Width == width && fb.spec.Height == height {
		return nil
	}
	fb.free()
	fb.spec.Width = width
	fb.spec.Height = height
	fb.allocate()
	return nil
}

func (fb *framebuffer) SetSamples(samples uint32) {
	samples = common.Coalesce(samples, 1)

	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.allocated && fb.spec.Samples == samples {
		return
	}
	fb.free()
	fb.spec.Samples = samples
	fb.allocate()
}

func (fb *framebuffer) ClearAttachment(index int, value int32) error {
	fb.mu.Lock()
	if index < 0 || index >= len(fb.colors) {
		n := len(fb.colors)
		fb.mu.Unlock()
		return fmt.Errorf("%w: %d of %d", ErrAttachmentIndex, index, n)
	}
	fb.mu.Unlock()
	return fb.api.ClearAttachment(fb, index, value)
}

func (fb *framebuffer) ReadPixel(index, x, y int) (int32, error) {
	return fb.api.ReadPixel(fb, index, x, y)
}

func (fb *framebuffer) Width() uint32 {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.spec.Width
}

func (fb *framebuffer) Height() uint32 {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.spec.Height
}

func (fb *framebuffer) Samples() uint32 {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.spec.Samples
}

func (fb *framebuffer) Complete() bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.complete
}

func (fb *framebuffer) Release() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.free()
}
