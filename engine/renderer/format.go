package renderer

// AttachmentFormat is the pixel format of a framebuffer attachment.
type AttachmentFormat int

const (
	AttachmentNone AttachmentFormat = iota

	// Color formats.
	AttachmentRGBA8
	AttachmentRGBA16F
	AttachmentRGBA32F
	AttachmentRedInteger

	// Depth formats.
	AttachmentDepth24Stencil8
	AttachmentDepth32F
)

// IsDepth reports whether the format is a depth (or depth/stencil) format.
func (f AttachmentFormat) IsDepth() bool {
	return f == AttachmentDepth24Stencil8 || f == AttachmentDepth32F
}

// IsInteger reports whether the format stores signed integers rather than normalized or float color.
func (f AttachmentFormat) IsInteger() bool {
	return f == AttachmentRedInteger
}

// BytesPerPixel returns the storage size of one sample in this format.
func (f AttachmentFormat) BytesPerPixel() uint64 {
	switch f {
	case AttachmentRGBA8, AttachmentRedInteger, AttachmentDepth24Stencil8, AttachmentDepth32F:
		return 4
	case AttachmentRGBA16F:
		return 8
	case AttachmentRGBA32F:
		return 16
	default:
		return 0
	}
}

func (f AttachmentFormat) String() string {
	switch f {
	case AttachmentRGBA8:
		return "RGBA8"
	case AttachmentRGBA16F:
		return "RGBA16F"
	case AttachmentRGBA32F:
		return "RGBA32F"
	case AttachmentRedInteger:
		return "RedInteger"
	case AttachmentDepth24Stencil8:
		return "Depth24Stencil8"
	case AttachmentDepth32F:
		return "Depth32F"
	default:
		return "None"
	}
}

// FramebufferSpecification describes a framebuffer: its size, sample count and the ordered list
// of attachment formats. Color attachments keep their relative order; at most one depth format is used.
type FramebufferSpecification struct {
	Width       uint32
	Height      uint32
	Samples     uint32
	Attachments []AttachmentFormat
	Label       string
}

// ColorFormats returns the color attachment formats in declaration order.
func (s FramebufferSpecification) ColorFormats() []AttachmentFormat {
	out := make([]AttachmentFormat, 0, len(s.Attachments))
	for _, f := range s.Attachments {
		if f != AttachmentNone && !f.IsDepth() {
			out = append(out, f)
		}
	}
	return out
}

// DepthFormat returns the first depth format in the specification, or AttachmentNone.
func (s FramebufferSpecification) DepthFormat() AttachmentFormat {
	for _, f := range s.Attachments {
		if f.IsDepth() {
			return f
		}
	}
	return AttachmentNone
}

// TextureFormat is the channel layout of a sampled texture.
type TextureFormat int

const (
	TextureFormatRed TextureFormat = iota
	TextureFormatRG
	TextureFormatRGB
	TextureFormatRGBA
	TextureFormatDepth
)

// Channels returns the number of components stored per texel.
func (f TextureFormat) Channels() uint64 {
	switch f {
	case TextureFormatRed, TextureFormatDepth:
		return 1
	case TextureFormatRG:
		return 2
	case TextureFormatRGB:
		return 3
	case TextureFormatRGBA:
		return 4
	default:
		return 0
	}
}

// DataType is the component storage type of a texture.
type DataType int

const (
	DataTypeUnsignedByte DataType = iota
	DataTypeByte
	DataTypeHalfFloat
	DataTypeFloat
	DataTypeInt
	DataTypeUnsignedInt
)

// Size returns the number of bytes one component occupies.
func (d DataType) Size() uint64 {
	switch d {
	case DataTypeUnsignedByte, DataTypeByte:
		return 1
	case DataTypeHalfFloat:
		return 2
	case DataTypeFloat, DataTypeInt, DataTypeUnsignedInt:
		return 4
	default:
		return 0
	}
}

// TextureSpecification describes a sampled texture for memory accounting.
type TextureSpecification struct {
	Width     uint32
	Height    uint32
	Format    TextureFormat
	DataType  DataType
	Samples   uint32
	Mipmapped bool
}

// BytesPerTexel returns channels × component size.
func (s TextureSpecification) BytesPerTexel() uint64 {
	return s.Format.Channels() * s.DataType.Size()
}
