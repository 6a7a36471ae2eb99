package viewport

import (
	"fmt"
	"sort"
	"sync"

	"dicom-annotations/annotation"
	"dicom-annotations/constants"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var ErrViewportNotFound = errors.New("viewport not found")

// Matrix is a row-major 4x4 homogeneous transform.
type Matrix [16]float64

func Identity() Matrix {
	return Matrix{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// SliceView is what the host reports for one 2D view.
type SliceView struct {
	Name    string            `json:"name"`
	Width   int               `json:"width"`
	Height  int               `json:"height"`
	Layers  annotation.Layers `json:"layers"`
	XYToRAS Matrix            `json:"xy_to_ras"`
}

func (view SliceView) View() annotation.View {
	return annotation.View{
		Name:   view.Name,
		Width:  view.Width,
		Height: view.Height,
	}
}

// CornerAnnotation is the host's text overlay of one view. Implementations
// must be comparable, a view re-added under the same name is detected by its
// new handle.
type CornerAnnotation interface {
	SetText(corner annotation.Corner, text string)
	SetFont(family string, size int)
	SetScaleBar(bar ScaleBarGeometry)
	// SetBodyModel shows the orientation model from camera, or hides it when camera is nil.
	SetBodyModel(camera *Camera)
	ScheduleRender()
}

// Host is the viewer application the corner text is drawn into.
type Host interface {
	SliceViewNames() []string
	SliceView(name string) (SliceView, bool)
	CornerAnnotation(name string) (CornerAnnotation, bool)
}

type NotificationKind string

const (
	ContentChanged NotificationKind = constants.NotificationContentChanged
	LayoutChanged  NotificationKind = constants.NotificationLayoutChanged
)

func ParseNotificationKind(s string) (NotificationKind, error) {
	switch NotificationKind(s) {
	case ContentChanged, LayoutChanged:
		return NotificationKind(s), nil
	}
	return "", fmt.Errorf("unknown notification kind %q", s)
}

// Notification tells the shim that a view, or the set of views, changed.
// Viewport is ignored for LayoutChanged.
type Notification struct {
	Kind     NotificationKind `json:"kind"`
	Viewport string           `json:"viewport,omitempty"`
}

type registration struct {
	subscriptionID string
	handle         CornerAnnotation
	corners        annotation.Corners
}

// Registry tracks the views the shim has subscribed to.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registration
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*registration),
	}
}

// Subscribe registers name with handle. created is false when name was
// already registered, in which case the existing subscription is kept.
func (registry *Registry) Subscribe(name string, handle CornerAnnotation) (id string, created bool) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if entry, found := registry.entries[name]; found {
		return entry.subscriptionID, false
	}
	id = uuid.New().String()
	registry.entries[name] = &registration{
		subscriptionID: id,
		handle:         handle,
	}
	return id, true
}

func (registry *Registry) Unsubscribe(name string) bool {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, found := registry.entries[name]; !found {
		return false
	}
	delete(registry.entries, name)
	return true
}

func (registry *Registry) Handle(name string) (CornerAnnotation, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	entry, found := registry.entries[name]
	if !found {
		return nil, false
	}
	return entry.handle, true
}

func (registry *Registry) SubscriptionID(name string) (string, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	entry, found := registry.entries[name]
	if !found {
		return "", false
	}
	return entry.subscriptionID, true
}

func (registry *Registry) SetCorners(name string, corners annotation.Corners) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if entry, found := registry.entries[name]; found {
		entry.corners = corners
	}
}

// Corners returns the text last written to name.
func (registry *Registry) Corners(name string) (annotation.Corners, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	entry, found := registry.entries[name]
	if !found {
		return annotation.Corners{}, false
	}
	return entry.corners, true
}

// Names is sorted.
func (registry *Registry) Names() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.entries))
	for name := range registry.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (registry *Registry) Len() int {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return len(registry.entries)
}
