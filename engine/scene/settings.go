package scene

import (
	"fmt"
	"io"
	"log"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// TonemapType selects the HDR to LDR operator of the tonemap pass.
type TonemapType int

const (
	TonemapNone TonemapType = iota
	TonemapReinhard
	TonemapACES
	TonemapFilmic
)

var tonemapNames = []string{"none", "reinhard", "aces", "filmic"}

func (t TonemapType) String() string {
	if t < 0 || int(t) >= len(tonemapNames) {
		return fmt.Sprintf("TonemapType(%d)", int(t))
	}
	return tonemapNames[t]
}

func (t TonemapType) MarshalText() ([]byte, error) {
	if t < 0 || int(t) >= len(tonemapNames) {
		return nil, fmt.Errorf("scene: invalid tonemap type %d", int(t))
	}
	return []byte(tonemapNames[t]), nil
}

func (t *TonemapType) UnmarshalText(text []byte) error {
	i := slices.Index(tonemapNames, strings.ToLower(string(text)))
	if i < 0 {
		return fmt.Errorf("scene: unknown tonemap type %q", text)
	}
	*t = TonemapType(i)
	return nil
}

// GridSettings configures the editor grid overlay.
type GridSettings struct {
	Enabled  bool       `toml:"enabled"`
	Spacing  float32    `toml:"spacing"`
	Extent   float32    `toml:"extent"`
	Color    [4]float32 `toml:"color"`
	FadeNear float32    `toml:"fade_near"`
	FadeFar  float32    `toml:"fade_far"`
}

// SettingsValues is the persisted form of a scene's render settings.
type SettingsValues struct {
	Tonemap     TonemapType  `toml:"tonemap"`
	Exposure    float32      `toml:"exposure"`
	MSAASamples uint32       `toml:"msaa_samples"`
	Bloom       bool         `toml:"bloom"`
	SSAO        bool         `toml:"ssao"`
	Shadows     bool         `toml:"shadows"`
	Grid        GridSettings `toml:"grid"`
}

// DefaultSettings returns the settings a new scene starts with.
func DefaultSettings() SettingsValues {
	return SettingsValues{
		Tonemap:     TonemapACES,
		Exposure:    1,
		MSAASamples: 4,
		Shadows:     true,
		Grid: GridSettings{
			Enabled:  true,
			Spacing:  1,
			Extent:   100,
			Color:    [4]float32{0.5, 0.5, 0.5, 1},
			FadeNear: 10,
			FadeFar:  80,
		},
	}
}

// SettingChange names the setting a notification is about.
type SettingChange int

const (
	SettingTonemap SettingChange = iota
	SettingExposure
	SettingAntiAliasing
	SettingBloom
	SettingGrid
	SettingSSAO
	SettingShadows
)

func (c SettingChange) String() string {
	switch c {
	case SettingTonemap:
		return "tonemap"
	case SettingExposure:
		return "exposure"
	case SettingAntiAliasing:
		return "anti-aliasing"
	case SettingBloom:
		return "bloom"
	case SettingGrid:
		return "grid"
	case SettingSSAO:
		return "ssao"
	case SettingShadows:
		return "shadows"
	default:
		return fmt.Sprintf("SettingChange(%d)", int(c))
	}
}

// SettingsObserver is notified after a setting changes, with the values as of that change.
type SettingsObserver func(change SettingChange, values SettingsValues)

// Subscription is the token returned by Settings.Subscribe.
type Subscription struct {
	settings *settings
	id       uint64
	once     *sync.Once
}

// Unsubscribe stops notifications. Calling it more than once, or on the zero Subscription, is a
// no-op.
func (s Subscription) Unsubscribe() {
	if s.settings == nil || s.once == nil {
		return
	}
	s.once.Do(func() {
		s.settings.unsubscribe(s.id)
	})
}

type observerEntry struct {
	id uint64
	fn SettingsObserver
}

// settings is the implementation of the Settings interface.
type settings struct {
	mu *sync.Mutex

	values    SettingsValues
	observers []observerEntry
	nextID    uint64
}

// Settings holds a scene's render settings and notifies subscribers when one changes. Setting a
// value equal to the current one does not notify.
type Settings interface {
	// Values returns a copy of the current settings.
	Values() SettingsValues

	// Subscribe registers an observer. Observers run synchronously on the goroutine that made the
	// change, in subscription order, without the settings lock held.
	//
	// Parameters:
	//   - fn: the observer
	//
	// Returns:
	//   - Subscription: the token that removes the observer
	Subscribe(fn SettingsObserver) Subscription

	// Observers returns the number of registered observers.
	Observers() int

	SetTonemap(t TonemapType)
	SetExposure(exposure float32)
	SetMSAASamples(samples uint32)
	SetBloom(enabled bool)
	SetSSAO(enabled bool)
	SetShadows(enabled bool)
	SetGrid(grid GridSettings)

	// Apply replaces every value, notifying once per setting that differs.
	Apply(values SettingsValues)
}

var _ Settings = &settings{}

// NewSettings creates a Settings holding values.
func NewSettings(values SettingsValues) Settings {
	return &settings{
		mu:     &sync.Mutex{},
		values: values,
		nextID: 1,
	}
}

func (s *settings) Values() SettingsValues {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values
}

func (s *settings) Observers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}

func (s *settings) Subscribe(fn SettingsObserver) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.observers = append(s.observers, observerEntry{id: id, fn: fn})
	return Subscription{settings: s, id: id, once: &sync.Once{}}
}

func (s *settings) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = slices.DeleteFunc(s.observers, func(o observerEntry) bool { return o.id == id })
}

// update applies fn and notifies observers of every change whose value differs afterwards.
func (s *settings) update(fn func(v *SettingsValues)) {
	s.mu.Lock()
	before := s.values
	fn(&s.values)
	after := s.values
	observers := slices.Clone(s.observers)
	s.mu.Unlock()

	for _, change := range diff(before, after) {
		for _, o := range observers {
			o.fn(change, after)
		}
	}
}

func diff(a, b SettingsValues) []SettingChange {
	var out []SettingChange
	if a.Tonemap != b.Tonemap {
		out = append(out, SettingTonemap)
	}
	if a.Exposure != b.Exposure {
		out = append(out, SettingExposure)
	}
	if a.MSAASamples != b.MSAASamples {
		out = append(out, SettingAntiAliasing)
	}
	if a.Bloom != b.Bloom {
		out = append(out, SettingBloom)
	}
	if a.Grid != b.Grid {
		out = append(out, SettingGrid)
	}
	if a.SSAO != b.SSAO {
		out = append(out, SettingSSAO)
	}
	if a.Shadows != b.Shadows {
		out = append(out, SettingShadows)
	}
	return out
}

func (s *settings) SetTonemap(t TonemapType) {
	s.update(func(v *SettingsValues) { v.Tonemap = t })
}

func (s *settings) SetExposure(exposure float32) {
	s.update(func(v *SettingsValues) { v.Exposure = exposure })
}

func (s *settings) SetMSAASamples(samples uint32) {
	s.update(func(v *SettingsValues) { v.MSAASamples = samples })
}

func (s *settings) SetBloom(enabled bool) {
	s.update(func(v *SettingsValues) { v.Bloom = enabled })
}

func (s *settings) SetSSAO(enabled bool) {
	s.update(func(v *SettingsValues) { v.SSAO = enabled })
}

func (s *settings) SetShadows(enabled bool) {
	s.update(func(v *SettingsValues) { v.Shadows = enabled })
}

func (s *settings) SetGrid(grid GridSettings) {
	s.update(func(v *SettingsValues) { v.Grid = grid })
}

func (s *settings) Apply(values SettingsValues) {
	s.update(func(v *SettingsValues) { *v = values })
}

// LoadSettings decodes TOML settings from r. Keys missing from the document keep their
// DefaultSettings values.
//
// Parameters:
//   - r: the TOML source
//
// Returns:
//   - SettingsValues: the decoded settings
//   - error: the decode error, if any
func LoadSettings(r io.Reader) (SettingsValues, error) {
	v := DefaultSettings()
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return DefaultSettings(), fmt.Errorf("scene: decode settings: %w", err)
	}
	return v, nil
}

// SaveSettings encodes v as TOML into w.
func SaveSettings(w io.Writer, v SettingsValues) error {
	if err := toml.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("scene: encode settings: %w", err)
	}
	return nil
}

// LoadSettingsFile reads settings from a TOML file. A missing file yields DefaultSettings.
func LoadSettingsFile(path string) (SettingsValues, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		log.Printf("[Scene] settings file %s not found, using defaults", path)
		return DefaultSettings(), nil
	}
	if err != nil {
		return DefaultSettings(), fmt.Errorf("scene: open settings: %w", err)
	}
	defer f.Close()
	return LoadSettings(f)
}

// SaveSettingsFile writes settings to a TOML file, replacing it.
func SaveSettingsFile(path string, v SettingsValues) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("scene: create settings: %w", err)
	}
	if err := SaveSettings(f, v); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
