package viewport

import (
	"sort"
	"sync"

	"dicom-annotations/annotation"
)

// AnnotationState is what a corner annotation currently shows.
type AnnotationState struct {
	Corners    annotation.Corners `json:"corners"`
	FontFamily string             `json:"font_family"`
	FontSize   int                `json:"font_size"`
	ScaleBar   ScaleBarGeometry   `json:"scale_bar"`
	BodyModel  *Camera            `json:"body_model,omitempty"`
	Renders    int                `json:"renders"`
}

// MemoryCornerAnnotation records everything written to it.
type MemoryCornerAnnotation struct {
	mu    sync.Mutex
	state AnnotationState
}

func (ca *MemoryCornerAnnotation) SetText(corner annotation.Corner, text string) {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	if corner >= 0 && int(corner) < annotation.CornerCount {
		ca.state.Corners[corner] = text
	}
}

func (ca *MemoryCornerAnnotation) SetFont(family string, size int) {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	ca.state.FontFamily = family
	ca.state.FontSize = size
}

func (ca *MemoryCornerAnnotation) SetScaleBar(bar ScaleBarGeometry) {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	ca.state.ScaleBar = bar
}

func (ca *MemoryCornerAnnotation) SetBodyModel(camera *Camera) {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	if camera == nil {
		ca.state.BodyModel = nil
		return
	}
	c := *camera
	ca.state.BodyModel = &c
}

func (ca *MemoryCornerAnnotation) ScheduleRender() {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	ca.state.Renders++
}

func (ca *MemoryCornerAnnotation) State() AnnotationState {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	state := ca.state
	if state.BodyModel != nil {
		c := *state.BodyModel
		state.BodyModel = &c
	}
	return state
}

// MemoryHost is a Host whose views are reported over HTTP.
type MemoryHost struct {
	mu          sync.RWMutex
	views       map[string]SliceView
	annotations map[string]*MemoryCornerAnnotation
}

func NewMemoryHost() *MemoryHost {
	return &MemoryHost{
		views:       make(map[string]SliceView),
		annotations: make(map[string]*MemoryCornerAnnotation),
	}
}

// PutView adds or replaces a view. created reports whether it is new.
func (host *MemoryHost) PutView(view SliceView) (created bool) {
	host.mu.Lock()
	defer host.mu.Unlock()

	_, found := host.views[view.Name]
	host.views[view.Name] = view
	if !found {
		host.annotations[view.Name] = &MemoryCornerAnnotation{}
	}
	return !found
}

func (host *MemoryHost) RemoveView(name string) bool {
	host.mu.Lock()
	defer host.mu.Unlock()

	if _, found := host.views[name]; !found {
		return false
	}
	delete(host.views, name)
	delete(host.annotations, name)
	return true
}

func (host *MemoryHost) SliceViewNames() []string {
	host.mu.RLock()
	defer host.mu.RUnlock()

	names := make([]string, 0, len(host.views))
	for name := range host.views {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (host *MemoryHost) SliceView(name string) (SliceView, bool) {
	host.mu.RLock()
	defer host.mu.RUnlock()
	view, found := host.views[name]
	return view, found
}

func (host *MemoryHost) CornerAnnotation(name string) (CornerAnnotation, bool) {
	ca, found := host.memoryAnnotation(name)
	if !found {
		return nil, false
	}
	return ca, true
}

// State returns what the corner annotation of name shows.
func (host *MemoryHost) State(name string) (AnnotationState, bool) {
	ca, found := host.memoryAnnotation(name)
	if !found {
		return AnnotationState{}, false
	}
	return ca.State(), true
}

func (host *MemoryHost) memoryAnnotation(name string) (*MemoryCornerAnnotation, bool) {
	host.mu.RLock()
	defer host.mu.RUnlock()
	ca, found := host.annotations[name]
	return ca, found
}
