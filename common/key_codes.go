package common

// Virtual key codes used by the editor viewport.
// These values match GLFW key codes which use ASCII values for printable keys.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeyF         = 70  // F key (ASCII), focus selection
	KeyG         = 71  // G key (ASCII), toggle grid
	KeyT         = 84  // T key (ASCII), cycle tonemap
	KeyBackspace = 259 // Backspace key (GLFW), delete selection
	KeyEsc       = 256 // Escape key (GLFW)

	Key1 = 49 // 1 key (ASCII)
	Key2 = 50 // 2 key (ASCII)
	Key3 = 51 // 3 key (ASCII)
	Key4 = 52 // 4 key (ASCII)
)
