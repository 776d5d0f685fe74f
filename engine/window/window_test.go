package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampSize(t *testing.T) {
	w := &engineWindow{minWidth: 320, minHeight: 240, maxWidth: 1920, maxHeight: 1080}

	width, height := w.clampSize(100, 5000)
	assert.Equal(t, 320, width)
	assert.Equal(t, 1080, height)

	width, height = w.clampSize(800, 600)
	assert.Equal(t, 800, width)
	assert.Equal(t, 600, height)
}

func TestBuilderOptions(t *testing.T) {
	w := &engineWindow{}
	for _, opt := range []WindowBuilderOption{
		WithTitle("viewport"),
		WithSize(1024, 768),
		WithMinSize(10, 20),
		WithMaxSize(2000, 1500),
		WithCloseOnEscape(false),
	} {
		opt(w)
	}
	assert.Equal(t, "viewport", w.title)
	assert.Equal(t, 1024, w.Width())
	assert.Equal(t, 768, w.Height())
	assert.Equal(t, 10, w.minWidth)
	assert.Equal(t, 1500, w.maxHeight)
	assert.False(t, w.closeOnEscape)
}

func TestUninitializedWindow(t *testing.T) {
	w := &engineWindow{}
	assert.False(t, w.IsRunning())
	assert.Nil(t, w.SurfaceDescriptor())
	assert.Error(t, w.Close())
	assert.Equal(t, "middle", MouseButtonMiddle.String())
}
