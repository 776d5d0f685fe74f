package renderer

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAPIRejectsUnavailableBackends(t *testing.T) {
	api, err := NewAPI(BackendTypeNone)
	assert.Nil(t, api)
	assert.ErrorIs(t, err, ErrNoBackend)

	api, err = NewAPI(BackendTypeGoGPU)
	assert.Nil(t, api)
	assert.ErrorIs(t, err, ErrBackendNotImplemented)

	api, err = NewAPI(BackendType(42))
	assert.Nil(t, api)
	assert.True(t, errors.Is(err, ErrUnknownBackend))
}

func TestSpecificationSplitsColorAndDepth(t *testing.T) {
	spec := FramebufferSpecification{
		Attachments: []AttachmentFormat{AttachmentRGBA16F, AttachmentDepth24Stencil8, AttachmentRedInteger},
	}
	assert.Equal(t, []AttachmentFormat{AttachmentRGBA16F, AttachmentRedInteger}, spec.ColorFormats())
	assert.Equal(t, AttachmentDepth24Stencil8, spec.DepthFormat())

	assert.Equal(t, AttachmentNone, FramebufferSpecification{Attachments: []AttachmentFormat{AttachmentRGBA8}}.DepthFormat())
}

func TestFormatSizes(t *testing.T) {
	assert.Equal(t, uint64(4), AttachmentRGBA8.BytesPerPixel())
	assert.Equal(t, uint64(8), AttachmentRGBA16F.BytesPerPixel())
	assert.Equal(t, uint64(16), AttachmentRGBA32F.BytesPerPixel())
	assert.Equal(t, uint64(4), AttachmentRedInteger.BytesPerPixel())
	assert.Equal(t, uint64(4), AttachmentDepth24Stencil8.BytesPerPixel())

	assert.Equal(t, uint64(4), TextureSpecification{Format: TextureFormatRGBA, DataType: DataTypeUnsignedByte}.BytesPerTexel())
	assert.Equal(t, uint64(12), TextureSpecification{Format: TextureFormatRGB, DataType: DataTypeFloat}.BytesPerTexel())
	assert.Equal(t, uint64(4), TextureSpecification{Format: TextureFormatRG, DataType: DataTypeHalfFloat}.BytesPerTexel())
}

type stubTarget struct {
	spec FramebufferSpecification
}

func (s stubTarget) Specification() FramebufferSpecification { return s.spec }
func (s stubTarget) ColorAttachments() []Attachment          { return nil }
func (s stubTarget) DepthAttachment() Attachment             { return nil }

func TestTargetStackRestoresOuterViewport(t *testing.T) {
	var stack TargetStack
	outer := stubTarget{spec: FramebufferSpecification{Width: 800, Height: 600}}
	inner := stubTarget{spec: FramebufferSpecification{Width: 64, Height: 32}}

	vp := stack.Push(outer)
	assert.Equal(t, Viewport{Width: 800, Height: 600}, vp)
	stack.SetViewport(Viewport{X: 10, Y: 10, Width: 100, Height: 100})

	vp = stack.Push(inner)
	assert.Equal(t, Viewport{Width: 64, Height: 32}, vp)

	top, restored, ok := stack.Pop()
	require.True(t, ok)
	assert.Equal(t, outer, top)
	assert.Equal(t, Viewport{X: 10, Y: 10, Width: 100, Height: 100}, restored)

	top, _, ok = stack.Pop()
	assert.True(t, ok)
	assert.Nil(t, top)

	_, _, ok = stack.Pop()
	assert.False(t, ok, "popping an empty stack is reported")
}

func TestPackUniformsLayout(t *testing.T) {
	buf := make([]byte, 128)
	n := packUniforms(buf, []Uniform{
		FloatUniform("exposure", 1.5),
		IntUniform("operator", 2),
		Vec4Uniform("color", mgl32.Vec4{1, 2, 3, 4}),
	})
	assert.Equal(t, 48, n)
	assert.Equal(t, float32(1.5), math.Float32frombits(binary.LittleEndian.Uint32(buf[0:])))
	assert.Equal(t, int32(2), int32(binary.LittleEndian.Uint32(buf[16:])))
	assert.Equal(t, float32(3), math.Float32frombits(binary.LittleEndian.Uint32(buf[40:])))

	n = packUniforms(make([]byte, 8), []Uniform{Mat4Uniform("m", mgl32.Ident4())})
	assert.Equal(t, 64, n, "short buffers are not overrun")
}
