package metadata

import (
	"net/http"

	"dicom-annotations/constants"
	"dicom-annotations/entities"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type HeaderAPI struct {
	source Source
	memory *MemoryStore
	logger *zap.Logger
}

// NewHeaderAPI serves field lookups from source. Headers can only be pushed
// when memory is not nil.
func NewHeaderAPI(source Source, memory *MemoryStore, logger *zap.Logger) (app *HeaderAPI) {
	app = &HeaderAPI{
		source: source,
		memory: memory,
		logger: logger,
	}
	return app
}

func (app *HeaderAPI) InitRoute(engine gin.IRouter, path string) {
	g := engine.Group(path)
	g.GET("/:uid", app.GetIdentity)
	g.GET("/:uid/fields", app.GetFields)
	g.PUT("/:uid", app.PutHeader)
	g.DELETE("/:uid", app.DeleteHeader)
}

// GetIdentity reports which study and series an instance belongs to.
func (app *HeaderAPI) GetIdentity(c *gin.Context) {
	resp := entities.NewResponse()

	ctx := c.Request.Context()
	uid := c.Param(constants.ParamUID)
	identity := entities.MetaData{
		StudyInstanceUID:  LookupField(ctx, app.source, uid, TagStudyInstanceUID),
		SeriesInstanceUID: LookupField(ctx, app.source, uid, TagSeriesInstanceUID),
		SOPInstanceUID:    LookupField(ctx, app.source, uid, TagSOPInstanceUID),
		Modality:          LookupField(ctx, app.source, uid, "0008,0060"),
	}
	if identity.SOPInstanceUID == constants.Unknown && identity.Modality == constants.Unknown {
		resp.ErrorCode = constants.ServerNotFound
		c.JSON(http.StatusNotFound, resp)
		return
	}

	resp.Data = identity
	c.JSON(http.StatusOK, resp)
}

func (app *HeaderAPI) GetFields(c *gin.Context) {
	resp := entities.NewResponse()

	uid := c.Param(constants.ParamUID)
	record := Extract(c.Request.Context(), app.source, uid, Fields)
	if record.Get(FieldModality) == constants.ModalityMR {
		for k, v := range Extract(c.Request.Context(), app.source, uid, MRFields) {
			record[k] = v
		}
	}

	resp.Data = record
	resp.Count = len(record)
	c.JSON(http.StatusOK, resp)
}

func (app *HeaderAPI) PutHeader(c *gin.Context) {
	resp := entities.NewResponse()

	if app.memory == nil {
		resp.ErrorCode = constants.ServerInvalidData
		c.JSON(http.StatusMethodNotAllowed, resp)
		return
	}

	var header Header
	if err := c.ShouldBindJSON(&header); err != nil {
		resp.ErrorCode = constants.ServerInvalidData
		c.JSON(http.StatusBadRequest, resp)
		return
	}

	uid := c.Param(constants.ParamUID)
	app.memory.Put(uid, header)
	app.logger.Debug("header stored", zap.String("uid", uid), zap.Int("tags", len(header)))

	c.JSON(http.StatusOK, resp)
}

func (app *HeaderAPI) DeleteHeader(c *gin.Context) {
	resp := entities.NewResponse()

	if app.memory == nil {
		resp.ErrorCode = constants.ServerInvalidData
		c.JSON(http.StatusMethodNotAllowed, resp)
		return
	}

	if !app.memory.Delete(c.Param(constants.ParamUID)) {
		resp.ErrorCode = constants.ServerNotFound
		c.JSON(http.StatusNotFound, resp)
		return
	}

	c.JSON(http.StatusOK, resp)
}
