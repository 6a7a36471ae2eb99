package settings

import (
	"net/http"

	"dicom-annotations/constants"
	"dicom-annotations/entities"
	"dicom-annotations/mw"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SettingsAPI struct {
	store  *Store
	logger *zap.Logger
}

func NewSettingsAPI(store *Store, logger *zap.Logger) (app *SettingsAPI) {
	app = &SettingsAPI{
		store:  store,
		logger: logger,
	}
	return app
}

func (app *SettingsAPI) InitRoute(engine gin.IRouter, path string) {
	g := engine.Group(path)
	g.GET("", app.GetSettings)
	g.PUT("", app.PutSettings)
	g.PATCH("/corners/:corner", app.PatchCorner)
}

func (app *SettingsAPI) GetSettings(c *gin.Context) {
	resp := entities.NewResponse()
	resp.Data = app.store.Get()
	c.JSON(http.StatusOK, resp)
}

func (app *SettingsAPI) PutSettings(c *gin.Context) {
	resp := entities.NewResponse()

	var s DisplaySettings
	if err := c.ShouldBindJSON(&s); err != nil {
		resp.ErrorCode = constants.ServerInvalidData
		c.JSON(http.StatusBadRequest, resp)
		return
	}

	updated, err := app.store.Replace(s)
	if err != nil {
		app.logger.Info("settings rejected", zap.Error(err))
		resp.ErrorCode = constants.ServerInvalidData
		resp.Data = err.Error()
		c.JSON(http.StatusBadRequest, resp)
		return
	}

	app.logger.Info("settings replaced", zap.String("by", actor(c)), zap.Stringer("settings", &updated))
	resp.Data = updated
	c.JSON(http.StatusOK, resp)
}

// actor names the authenticated caller, if any.
func actor(c *gin.Context) string {
	if account := mw.GetAuthInfoFromGin(c); account != nil {
		return account.Username
	}
	return "anonymous"
}

type cornerToggle struct {
	Enabled *bool `json:"enabled"`
}

// PatchCorner flips one corner checkbox.
func (app *SettingsAPI) PatchCorner(c *gin.Context) {
	resp := entities.NewResponse()

	var toggle cornerToggle
	if err := c.ShouldBindJSON(&toggle); err != nil || toggle.Enabled == nil {
		resp.ErrorCode = constants.ServerInvalidData
		c.JSON(http.StatusBadRequest, resp)
		return
	}

	name := c.Param(constants.ParamCorner)
	if _, found := new(CornerFlags).Flag(name); !found {
		resp.ErrorCode = constants.ServerNotFound
		c.JSON(http.StatusNotFound, resp)
		return
	}

	updated, err := app.store.Update(func(s *DisplaySettings) {
		flag, _ := s.Corners.Flag(name)
		*flag = *toggle.Enabled
	})
	if err != nil {
		resp.ErrorCode = constants.ServerInvalidData
		c.JSON(http.StatusBadRequest, resp)
		return
	}
	app.logger.Info("corner toggled",
		zap.String("by", actor(c)),
		zap.String("corner", name),
		zap.Bool("enabled", *toggle.Enabled),
	)

	resp.Data = updated
	c.JSON(http.StatusOK, resp)
}
