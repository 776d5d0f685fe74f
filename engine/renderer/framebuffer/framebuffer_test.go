package framebuffer

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-editor/engine/renderer"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer/renderertest"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer/vram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idSpec(w, h uint32) renderer.FramebufferSpecification {
	return renderer.FramebufferSpecification{
		Label:       "ids",
		Width:       w,
		Height:      h,
		Samples:     1,
		Attachments: []renderer.AttachmentFormat{renderer.AttachmentRedInteger, renderer.AttachmentDepth24Stencil8},
	}
}

func TestNewFramebufferValidatesSpec(t *testing.T) {
	api := renderertest.New(4)

	_, err := NewFramebuffer(nil, idSpec(4, 4))
	assert.Error(t, err)

	_, err = NewFramebuffer(api, renderer.FramebufferSpecification{Width: 4, Height: 4})
	assert.Error(t, err)

	_, err = NewFramebuffer(api, idSpec(0, 4))
	assert.ErrorIs(t, err, ErrInvalidSize)

	fb, err := NewFramebuffer(api, idSpec(8, 4))
	require.NoError(t, err)
	assert.True(t, fb.Complete())
	assert.Len(t, fb.ColorAttachments(), 1)
	assert.NotNil(t, fb.DepthAttachment())
	assert.Equal(t, 2, api.LiveAttachments())
}

func TestResizeReallocatesAndRejectsDegenerateSizes(t *testing.T) {
	api := renderertest.New(4)
	tracker := vram.NewTracker()
	fb, err := NewFramebuffer(api, idSpec(16, 16), WithTracker(tracker))
	require.NoError(t, err)
	assert.Equal(t, vram.FramebufferBytes(idSpec(16, 16)), tracker.FramebufferMemory())

	require.NoError(t, fb.Resize(32, 8))
	assert.Equal(t, uint32(32), fb.Width())
	assert.Equal(t, uint32(8), fb.Height())
	assert.Equal(t, uint32(32), fb.ColorAttachment(0).Width())
	assert.Equal(t, renderer.AttachmentRedInteger, fb.ColorAttachment(0).Format())
	assert.Equal(t, vram.FramebufferBytes(idSpec(32, 8)), tracker.FramebufferMemory())
	assert.Equal(t, 2, api.LiveAttachments())

	assert.ErrorIs(t, fb.Resize(0, 8), ErrInvalidSize)
	assert.ErrorIs(t, fb.Resize(8, MaxDimension+1), ErrInvalidSize)
	assert.Equal(t, uint32(32), fb.Width(), "rejected resize leaves the framebuffer unchanged")

	fb.Release()
	assert.Equal(t, uint64(0), tracker.FramebufferMemory())
	assert.Equal(t, 0, api.LiveAttachments())
}

func TestSetSamplesReallocates(t *testing.T) {
	api := renderertest.New(8)
	spec := renderer.FramebufferSpecification{
		Label:       "scene",
		Width:       10,
		Height:      10,
		Samples:     4,
		Attachments: []renderer.AttachmentFormat{renderer.AttachmentRGBA16F, renderer.AttachmentDepth24Stencil8},
	}
	fb, err := NewFramebuffer(api, spec)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), fb.ColorAttachment(0).Samples())

	fb.SetSamples(1)
	assert.Equal(t, uint32(1), fb.Samples())
	assert.Equal(t, uint32(1), fb.DepthAttachment().Samples())
}

func TestIncompleteFramebufferContinues(t *testing.T) {
	api := renderertest.New(4)
	api.FailFormat(renderer.AttachmentDepth24Stencil8)

	fb, err := NewFramebuffer(api, idSpec(4, 4))
	require.NoError(t, err)
	assert.False(t, fb.Complete())
	assert.Nil(t, fb.DepthAttachment())
	require.NoError(t, fb.ClearAttachment(0, 3))
}

func TestIncompleteFramebufferTracksCreatedAttachments(t *testing.T) {
	api := renderertest.New(4)
	api.FailFormat(renderer.AttachmentDepth24Stencil8)
	tracker := vram.NewTracker()

	fb, err := NewFramebuffer(api, idSpec(16, 16), WithTracker(tracker))
	require.NoError(t, err)
	colorOnly := idSpec(16, 16)
	colorOnly.Attachments = []renderer.AttachmentFormat{renderer.AttachmentRedInteger}
	assert.Equal(t, vram.FramebufferBytes(colorOnly), tracker.FramebufferMemory())
	assert.Less(t, tracker.FramebufferMemory(), vram.FramebufferBytes(idSpec(16, 16)))

	require.NoError(t, fb.Resize(8, 8))
	colorOnly.Width, colorOnly.Height = 8, 8
	assert.Equal(t, vram.FramebufferBytes(colorOnly), tracker.FramebufferMemory())

	fb.Release()
	assert.Zero(t, tracker.FramebufferMemory())
	assert.Zero(t, api.LiveAttachments())
}

func TestClearAndReadPixel(t *testing.T) {
	api := renderertest.New(4)
	fb, err := NewFramebuffer(api, idSpec(4, 4))
	require.NoError(t, err)

	require.NoError(t, fb.ClearAttachment(0, 42))
	v, err := fb.ReadPixel(0, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, int32(42), v)

	assert.ErrorIs(t, fb.ClearAttachment(1, 0), ErrAttachmentIndex)
	_, err = fb.ReadPixel(0, 4, 0)
	assert.ErrorIs(t, err, renderer.ErrPixelOutOfBounds)
}

func TestBindNestingRestoresViewport(t *testing.T) {
	api := renderertest.New(4)
	outer, err := NewFramebuffer(api, idSpec(100, 50))
	require.NoError(t, err)
	inner, err := NewFramebuffer(api, idSpec(10, 5))
	require.NoError(t, err)

	outer.Bind()
	api.SetViewport(renderer.Viewport{X: 5, Y: 5, Width: 20, Height: 20})
	inner.Bind()
	assert.Equal(t, renderer.Viewport{Width: 10, Height: 5}, api.Viewport())
	inner.Unbind()

	assert.Equal(t, outer, api.BoundTarget())
	assert.Equal(t, renderer.Viewport{X: 5, Y: 5, Width: 20, Height: 20}, api.Viewport())
	outer.Unbind()
	assert.Equal(t, 0, api.BindDepth())
}

func TestPingPongParity(t *testing.T) {
	api := renderertest.New(4)
	spec := renderer.FramebufferSpecification{
		Label:       "hdr",
		Width:       8,
		Height:      8,
		Attachments: []renderer.AttachmentFormat{renderer.AttachmentRGBA16F},
	}
	pp, err := NewPingPongBuffer(api, spec)
	require.NoError(t, err)

	a, b := pp.Read(), pp.Write()
	assert.NotSame(t, a, b)

	for i := 1; i <= 5; i++ {
		pp.Swap()
		if i%2 == 1 {
			assert.Same(t, b, pp.Read())
			assert.Same(t, a, pp.Write())
		} else {
			assert.Same(t, a, pp.Read())
			assert.Same(t, b, pp.Write())
		}
	}

	require.NoError(t, pp.Resize(16, 4))
	assert.Equal(t, uint32(16), pp.Read().Width())
	assert.Equal(t, uint32(16), pp.Write().Width())
	assert.ErrorIs(t, pp.Resize(0, 0), ErrInvalidSize)

	pp.Release()
	assert.Equal(t, 0, api.LiveAttachments())
}
