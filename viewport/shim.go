package viewport

import (
	"context"

	"dicom-annotations/annotation"
	"dicom-annotations/settings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	compositions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corner_annotation_compositions_total",
		Help: "Number of corner annotation passes.",
	}, []string{"result"})
	registeredViews = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "corner_annotation_viewports",
		Help: "Number of slice views with a corner annotation subscription.",
	})
)

// Shim keeps the corner annotations of the host's slice views in sync with
// what they display.
type Shim struct {
	host     Host
	composer *annotation.Composer
	settings *settings.Store
	registry *Registry
	logger   *zap.Logger
}

func NewShim(host Host, composer *annotation.Composer, settings *settings.Store, logger *zap.Logger) *Shim {
	return &Shim{
		host:     host,
		composer: composer,
		settings: settings,
		registry: NewRegistry(),
		logger:   logger,
	}
}

func (shim *Shim) Registry() *Registry {
	return shim.registry
}

// Handle reacts to one host notification.
func (shim *Shim) Handle(ctx context.Context, n Notification) error {
	switch n.Kind {
	case LayoutChanged:
		shim.Sync()
		return shim.Refresh(ctx)
	case ContentChanged:
		if err := shim.subscribe(n.Viewport); err != nil {
			return err
		}
		return shim.Recompose(ctx, n.Viewport)
	}
	_, err := ParseNotificationKind(string(n.Kind))
	return err
}

// Sync subscribes the host's current views and drops the ones that are gone.
// It returns the registered names.
func (shim *Shim) Sync() []string {
	current := make(map[string]bool)
	for _, name := range shim.host.SliceViewNames() {
		current[name] = true
		if err := shim.subscribe(name); err != nil {
			shim.logger.Warn("cannot subscribe slice view", zap.String("view", name), zap.Error(err))
		}
	}
	for _, name := range shim.registry.Names() {
		if !current[name] {
			shim.registry.Unsubscribe(name)
			shim.logger.Debug("slice view unsubscribed", zap.String("view", name))
		}
	}
	registeredViews.Set(float64(shim.registry.Len()))
	return shim.registry.Names()
}

// subscribe registers the host's current corner annotation of name. A view
// that was dropped and re-added under the same name gets a new handle, so a
// cached handle that no longer matches is replaced.
func (shim *Shim) subscribe(name string) error {
	handle, found := shim.host.CornerAnnotation(name)
	if !found {
		return ErrViewportNotFound
	}
	if cached, found := shim.registry.Handle(name); found {
		if cached == handle {
			return nil
		}
		shim.registry.Unsubscribe(name)
		shim.logger.Debug("slice view handle replaced", zap.String("view", name))
	}
	id, _ := shim.registry.Subscribe(name, handle)
	registeredViews.Set(float64(shim.registry.Len()))
	shim.logger.Debug("slice view subscribed", zap.String("view", name), zap.String("subscription", id))
	return nil
}

// Refresh recomposes every registered view. Errors of single views are
// logged and the first one is returned.
func (shim *Shim) Refresh(ctx context.Context) error {
	var first error
	for _, name := range shim.registry.Names() {
		if err := shim.Recompose(ctx, name); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recompose rewrites the corner annotation of one registered view.
func (shim *Shim) Recompose(ctx context.Context, name string) error {
	if _, found := shim.registry.Handle(name); !found {
		return ErrViewportNotFound
	}
	view, found := shim.host.SliceView(name)
	if !found || shim.subscribe(name) != nil {
		shim.logger.Warn("slice view disappeared", zap.String("view", name))
		compositions.WithLabelValues("missing").Inc()
		return ErrViewportNotFound
	}
	handle, found := shim.registry.Handle(name)
	if !found {
		return ErrViewportNotFound
	}

	s := shim.settings.Get()
	if !s.Enabled {
		shim.write(handle, annotation.Corners{})
		handle.SetScaleBar(ScaleBarGeometry{})
		handle.SetBodyModel(nil)
		handle.ScheduleRender()
		shim.registry.SetCorners(name, annotation.Corners{})
		compositions.WithLabelValues("disabled").Inc()
		return nil
	}

	corners := shim.composer.Compose(ctx, view.View(), view.Layers, s)
	shim.write(handle, corners)
	handle.SetFont(s.FontFamily, s.FontSize)

	bar, err := ScaleBar(view.Width, view.XYToRAS, s.ShowScalingBar)
	if err != nil {
		shim.logger.Warn("scale bar hidden", zap.String("view", name), zap.Error(err))
		bar = ScaleBarGeometry{}
	}
	handle.SetScaleBar(bar)

	if s.ShowBodyModel {
		camera := BodyModelCamera(view.XYToRAS)
		handle.SetBodyModel(&camera)
	} else {
		handle.SetBodyModel(nil)
	}

	handle.ScheduleRender()
	shim.registry.SetCorners(name, corners)
	compositions.WithLabelValues("ok").Inc()
	return nil
}

func (shim *Shim) write(handle CornerAnnotation, corners annotation.Corners) {
	for i, text := range corners {
		handle.SetText(annotation.Corner(i), text)
	}
}
