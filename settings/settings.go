package settings

import (
	"encoding/json"
	"fmt"
	"sync"

	"dicom-annotations/constants"
	"dicom-annotations/utils"

	"github.com/spf13/viper"
)

var FontFamilies = []string{constants.FontTimes, constants.FontArial}

type CornerFlags struct {
	TopLeft     bool `json:"top_left"`
	TopRight    bool `json:"top_right"`
	BottomLeft  bool `json:"bottom_left"`
	BottomRight bool `json:"bottom_right"`
}

// Flag returns the checkbox of the corner called name. Names are the json keys
// and match annotation.Corner.String.
func (flags *CornerFlags) Flag(name string) (*bool, bool) {
	switch name {
	case "top_left":
		return &flags.TopLeft, true
	case "top_right":
		return &flags.TopRight, true
	case "bottom_left":
		return &flags.BottomLeft, true
	case "bottom_right":
		return &flags.BottomRight, true
	}
	return nil, false
}

func (flags CornerFlags) Enabled(name string) bool {
	flag, found := flags.Flag(name)
	return found && *flag
}

// DisplaySettings is what the settings panel controls.
type DisplaySettings struct {
	Enabled        bool        `json:"enabled"`
	Corners        CornerFlags `json:"corners"`
	FontFamily     string      `json:"font_family"`
	FontSize       int         `json:"font_size"`
	ShowScalingBar bool        `json:"show_scaling_bar"`
	ShowBodyModel  bool        `json:"show_body_model"`
}

// Default matches the panel's initial state with annotations switched on.
func Default() DisplaySettings {
	return DisplaySettings{
		Enabled: true,
		Corners: CornerFlags{
			TopLeft:     true,
			TopRight:    true,
			BottomLeft:  true,
			BottomRight: true,
		},
		FontFamily: constants.FontTimes,
		FontSize:   constants.FontSizeDefault,
	}
}

// SetDefaults registers the annotations.* keys on v.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("annotations.enabled", d.Enabled)
	v.SetDefault("annotations.corners.top_left", d.Corners.TopLeft)
	v.SetDefault("annotations.corners.top_right", d.Corners.TopRight)
	v.SetDefault("annotations.corners.bottom_left", d.Corners.BottomLeft)
	v.SetDefault("annotations.corners.bottom_right", d.Corners.BottomRight)
	v.SetDefault("annotations.font_family", d.FontFamily)
	v.SetDefault("annotations.font_size", d.FontSize)
	v.SetDefault("annotations.show_scaling_bar", d.ShowScalingBar)
	v.SetDefault("annotations.show_body_model", d.ShowBodyModel)
}

// FromViper reads the annotations.* keys.
func FromViper(v *viper.Viper) (DisplaySettings, error) {
	s := DisplaySettings{
		Enabled: v.GetBool("annotations.enabled"),
		Corners: CornerFlags{
			TopLeft:     v.GetBool("annotations.corners.top_left"),
			TopRight:    v.GetBool("annotations.corners.top_right"),
			BottomLeft:  v.GetBool("annotations.corners.bottom_left"),
			BottomRight: v.GetBool("annotations.corners.bottom_right"),
		},
		FontFamily:     v.GetString("annotations.font_family"),
		FontSize:       v.GetInt("annotations.font_size"),
		ShowScalingBar: v.GetBool("annotations.show_scaling_bar"),
		ShowBodyModel:  v.GetBool("annotations.show_body_model"),
	}
	return s, s.Validate()
}

func (s *DisplaySettings) Validate() error {
	if _, found := utils.FindInSlice(FontFamilies, s.FontFamily); !found {
		return fmt.Errorf("font family %q is not one of %v", s.FontFamily, FontFamilies)
	}
	if s.FontSize < constants.FontSizeMin || s.FontSize > constants.FontSizeMax {
		return fmt.Errorf("font size %d is outside [%d, %d]", s.FontSize, constants.FontSizeMin, constants.FontSizeMax)
	}
	return nil
}

func (s *DisplaySettings) String() string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Store owns the current settings. Subscribers run after every accepted change.
type Store struct {
	mu          sync.RWMutex
	current     DisplaySettings
	subscribers []func(DisplaySettings)
}

func NewStore(initial DisplaySettings) *Store {
	return &Store{current: initial}
}

func (store *Store) Get() DisplaySettings {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return store.current
}

// Subscribe registers f to be called with the new settings after each change.
func (store *Store) Subscribe(f func(DisplaySettings)) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.subscribers = append(store.subscribers, f)
}

// Update applies mutate to a copy and keeps it if it validates.
func (store *Store) Update(mutate func(*DisplaySettings)) (DisplaySettings, error) {
	store.mu.Lock()
	next := store.current
	mutate(&next)
	if err := next.Validate(); err != nil {
		store.mu.Unlock()
		return store.current, err
	}
	store.current = next
	subscribers := append([]func(DisplaySettings){}, store.subscribers...)
	store.mu.Unlock()

	for _, f := range subscribers {
		f(next)
	}
	return next, nil
}

func (store *Store) Replace(s DisplaySettings) (DisplaySettings, error) {
	return store.Update(func(current *DisplaySettings) {
		*current = s
	})
}
