package scene

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithSettings sets the scene's render settings. Defaults to NewSettings(DefaultSettings()).
//
// Parameters:
//   - settings: the settings object the scene exposes
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithSettings(settings Settings) SceneBuilderOption {
	return func(s *scene) {
		s.settings = settings
	}
}
