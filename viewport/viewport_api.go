package viewport

import (
	"net/http"

	"dicom-annotations/annotation"
	"dicom-annotations/constants"
	"dicom-annotations/entities"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type ViewportAPI struct {
	host       *MemoryHost
	dispatcher *Dispatcher
	logger     *zap.Logger
}

func NewViewportAPI(host *MemoryHost, dispatcher *Dispatcher, logger *zap.Logger) (app *ViewportAPI) {
	app = &ViewportAPI{
		host:       host,
		dispatcher: dispatcher,
		logger:     logger,
	}
	return app
}

func (app *ViewportAPI) InitRoute(engine gin.IRouter, path string) {
	g := engine.Group(path)
	g.GET("", app.GetViewports)
	g.PUT("/:name", app.PutViewport)
	g.DELETE("/:name", app.DeleteViewport)
	g.POST("/:name/notifications", app.PostNotification)
	g.GET("/:name/annotations", app.GetAnnotations)
}

type viewRequest struct {
	Width   int               `json:"width" binding:"min=0"`
	Height  int               `json:"height" binding:"min=0"`
	Layers  annotation.Layers `json:"layers"`
	XYToRAS *Matrix           `json:"xy_to_ras,omitempty"`
}

type notificationRequest struct {
	Kind string `json:"kind" binding:"required"`
}

func (app *ViewportAPI) GetViewports(c *gin.Context) {
	resp := entities.NewResponse()

	views := make([]SliceView, 0)
	for _, name := range app.host.SliceViewNames() {
		if view, found := app.host.SliceView(name); found {
			views = append(views, view)
		}
	}

	resp.Data = views
	resp.Count = len(views)
	c.JSON(http.StatusOK, resp)
}

// PutViewport reports a view and its layers, then waits for its corners to be
// recomposed.
func (app *ViewportAPI) PutViewport(c *gin.Context) {
	resp := entities.NewResponse()

	var req viewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.ErrorCode = constants.ServerInvalidData
		c.JSON(http.StatusBadRequest, resp)
		return
	}

	view := SliceView{
		Name:    c.Param(constants.ParamViewport),
		Width:   req.Width,
		Height:  req.Height,
		Layers:  req.Layers,
		XYToRAS: Identity(),
	}
	if req.XYToRAS != nil {
		view.XYToRAS = *req.XYToRAS
	}

	n := Notification{Kind: ContentChanged, Viewport: view.Name}
	if app.host.PutView(view) {
		n = Notification{Kind: LayoutChanged}
	}

	if !app.wait(c, n) {
		return
	}
	app.writeState(c, resp, view.Name)
}

func (app *ViewportAPI) DeleteViewport(c *gin.Context) {
	resp := entities.NewResponse()

	if !app.host.RemoveView(c.Param(constants.ParamViewport)) {
		resp.ErrorCode = constants.ServerNotFound
		c.JSON(http.StatusNotFound, resp)
		return
	}

	if !app.wait(c, Notification{Kind: LayoutChanged}) {
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (app *ViewportAPI) PostNotification(c *gin.Context) {
	resp := entities.NewResponse()

	var req notificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.ErrorCode = constants.ServerInvalidData
		c.JSON(http.StatusBadRequest, resp)
		return
	}
	kind, err := ParseNotificationKind(req.Kind)
	if err != nil {
		resp.ErrorCode = constants.ServerInvalidData
		resp.Data = err.Error()
		c.JSON(http.StatusBadRequest, resp)
		return
	}

	name := c.Param(constants.ParamViewport)
	if _, found := app.host.SliceView(name); !found {
		resp.ErrorCode = constants.ServerNotFound
		c.JSON(http.StatusNotFound, resp)
		return
	}

	if !app.wait(c, Notification{Kind: kind, Viewport: name}) {
		return
	}
	app.writeState(c, resp, name)
}

func (app *ViewportAPI) GetAnnotations(c *gin.Context) {
	app.writeState(c, entities.NewResponse(), c.Param(constants.ParamViewport))
}

func (app *ViewportAPI) writeState(c *gin.Context, resp *entities.Response, name string) {
	state, found := app.host.State(name)
	if !found {
		resp.ErrorCode = constants.ServerNotFound
		c.JSON(http.StatusNotFound, resp)
		return
	}
	resp.Data = state
	c.JSON(http.StatusOK, resp)
}

// wait submits n and blocks until it is handled or the request goes away.
// It writes the error response itself and reports whether to continue.
func (app *ViewportAPI) wait(c *gin.Context, n Notification) bool {
	resp := entities.NewResponse()

	var err error
	select {
	case err = <-app.dispatcher.Submit(n):
	case <-c.Request.Context().Done():
		err = c.Request.Context().Err()
	}
	if err == nil {
		return true
	}

	app.logger.Warn("notification failed",
		zap.String("kind", string(n.Kind)),
		zap.String("view", n.Viewport),
		zap.Error(err),
	)
	if errors.Is(err, ErrViewportNotFound) {
		resp.ErrorCode = constants.ServerNotFound
		c.JSON(http.StatusNotFound, resp)
		return false
	}
	resp.ErrorCode = constants.ServerError
	c.JSON(http.StatusInternalServerError, resp)
	return false
}
