package annotation

import (
	"context"
	"encoding/json"

	"dicom-annotations/constants"
	"dicom-annotations/metadata"
	"dicom-annotations/settings"
	"dicom-annotations/utils"

	"go.uber.org/zap"
)

// Layer is one displayed volume of a slice view.
type Layer struct {
	Name       string            `json:"name"`
	Opacity    float64           `json:"opacity"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// InstanceUID is the first instance listed in the layer's DICOM.instanceUIDs
// attribute, or "" when the volume was not loaded from DICOM.
func (layer *Layer) InstanceUID() string {
	if layer == nil {
		return ""
	}
	return utils.FirstField(layer.Attributes[constants.AttrInstanceUIDs])
}

type Layers struct {
	Background *Layer `json:"background,omitempty"`
	Foreground *Layer `json:"foreground,omitempty"`
	Label      *Layer `json:"label,omitempty"`
}

// View identifies the slice view being annotated and its size in pixels.
type View struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Corners holds the text of every corner, indexed by Corner.
type Corners [CornerCount]string

func (corners Corners) Text(corner Corner) string {
	return corners[corner]
}

func (corners Corners) MarshalJSON() ([]byte, error) {
	m := make(map[string]string, CornerCount)
	for i, text := range corners {
		m[Corner(i).String()] = text
	}
	return json.Marshal(m)
}

// Composer turns the layers of a slice view into corner text.
type Composer struct {
	source metadata.Source
	logger *zap.Logger
}

func NewComposer(source metadata.Source, logger *zap.Logger) *Composer {
	return &Composer{
		source: source,
		logger: logger,
	}
}

type composition struct {
	blocks [CornerCount]*Block
	view   View
}

func newComposition(view View) *composition {
	c := &composition{view: view}
	for i := range c.blocks {
		c.blocks[i] = newBlock(Layouts[i])
	}
	return c
}

func (c *composition) set(corner Corner, line LineID, value string) {
	c.blocks[corner].Set(line, value)
}

func prefixed(prefix, value string) string {
	if value == "" {
		return ""
	}
	return prefix + value
}

// Compose builds the four corner texts for view. It never fails: unresolved
// fields show as "Unknown" and missing layers contribute nothing.
func (composer *Composer) Compose(ctx context.Context, view View, layers Layers, s settings.DisplaySettings) Corners {
	var corners Corners
	if !s.Enabled {
		return corners
	}

	c := newComposition(view)
	bg, fg, label := layers.Background, layers.Foreground, layers.Label

	switch {
	case bg != nil && fg != nil:
		c.set(BottomLeft, LineBackground, "B: "+bg.Name)
		c.set(BottomLeft, LineForeground, "F: "+fg.Name+" ("+FormatOpacity(fg.Opacity)+")")

		bgUID, fgUID := bg.InstanceUID(), fg.InstanceUID()
		if bgUID != "" && fgUID != "" {
			composer.composePair(c, composer.extract(ctx, bgUID), composer.extract(ctx, fgUID))
		} else {
			c.blocks[TopLeft].Clear()
		}

	case bg != nil:
		c.set(BottomLeft, LineBackground, "B: "+bg.Name)
		if uid := bg.InstanceUID(); uid != "" {
			composer.composeSingle(ctx, c, uid, s.Corners.BottomRight)
		}

	case fg != nil:
		c.set(BottomLeft, LineForeground, "F: "+fg.Name)
		if uid := fg.InstanceUID(); uid != "" {
			composer.composeSingle(ctx, c, uid, s.Corners.BottomRight)
		}
	}

	if label != nil {
		c.set(BottomLeft, LineLabel, "L: "+label.Name+" ("+FormatOpacity(label.Opacity)+")")
	}

	for i, block := range c.blocks {
		if s.Corners.Enabled(Corner(i).String()) {
			corners[i] = block.Render()
		}
	}
	return corners
}

func (composer *Composer) extract(ctx context.Context, uid string) metadata.Record {
	record := metadata.Extract(ctx, composer.source, uid, metadata.Fields)
	composer.logger.Debug("extracted header fields",
		zap.String("uid", uid),
		zap.String("modality", record.Get(metadata.FieldModality)),
	)
	return record
}

func (composer *Composer) composePatient(c *composition, record metadata.Record) {
	c.set(TopLeft, LinePatientName, FormatPersonName(record.Get(metadata.FieldPatientName)))
	c.set(TopLeft, LinePatientID, prefixed("ID: ", record.Get(metadata.FieldPatientID)))
	c.set(TopLeft, LinePatientInfo, PatientInfo(
		record.Get(metadata.FieldPatientBirthDate),
		record.Get(metadata.FieldPatientAge),
		record.Get(metadata.FieldPatientSex),
	))
}

// composePair merges two records of the same patient into the top-left
// block. Records of different patients leave the block empty.
func (composer *Composer) composePair(c *composition, bg, fg metadata.Record) {
	for _, field := range []string{metadata.FieldPatientName, metadata.FieldPatientID, metadata.FieldPatientBirthDate} {
		if bg.Get(field) != fg.Get(field) {
			composer.logger.Info("background and foreground belong to different patients",
				zap.String("view", c.view.Name),
				zap.String("field", field),
			)
			c.blocks[TopLeft].Clear()
			return
		}
	}

	composer.composePatient(c, bg)

	pairs := []struct {
		field  string
		format func(string) string
		bgLine LineID
		fgLine LineID
	}{
		{metadata.FieldStudyDate, FormatDate, LineBgStudyDate, LineFgStudyDate},
		{metadata.FieldStudyTime, FormatTime, LineBgStudyTime, LineFgStudyTime},
		{metadata.FieldSeriesDescription, func(v string) string { return v }, LineBgSeriesDescription, LineFgSeriesDescription},
	}
	for _, p := range pairs {
		bgValue, fgValue := bg.Get(p.field), fg.Get(p.field)
		if bgValue == fgValue {
			c.set(TopLeft, p.bgLine, p.format(bgValue))
			continue
		}
		c.set(TopLeft, p.bgLine, prefixed("B: ", p.format(bgValue)))
		c.set(TopLeft, p.fgLine, prefixed("F: ", p.format(fgValue)))
	}
}

// composeSingle fills the blocks of a single layer. The MR fields are only
// looked up for MR when the bottom-right corner is shown.
func (composer *Composer) composeSingle(ctx context.Context, c *composition, uid string, bottomRight bool) {
	record := composer.extract(ctx, uid)
	composer.composePatient(c, record)
	c.set(TopLeft, LineBgStudyDate, FormatDate(record.Get(metadata.FieldStudyDate)))
	c.set(TopLeft, LineBgStudyTime, FormatTime(record.Get(metadata.FieldStudyTime)))
	c.set(TopLeft, LineBgSeriesDescription, record.Get(metadata.FieldSeriesDescription))

	if c.view.Width > constants.MinWidthForScannerBlock {
		c.set(TopRight, LineInstitutionName, record.Get(metadata.FieldInstitutionName))
		c.set(TopRight, LineReferringPhysician, FormatPersonName(record.Get(metadata.FieldReferringPhysician)))
		c.set(TopRight, LineManufacturer, record.Get(metadata.FieldManufacturer))
		c.set(TopRight, LineModel, record.Get(metadata.FieldModel))
		c.set(TopRight, LinePatientPosition, record.Get(metadata.FieldPatientPosition))
	}

	if bottomRight && record.Get(metadata.FieldModality) == constants.ModalityMR {
		for name, value := range metadata.Extract(ctx, composer.source, uid, metadata.MRFields) {
			record[name] = value
		}
		c.set(BottomRight, LineTR, prefixed("TR ", record.Get(metadata.FieldRepetitionTime)))
		c.set(BottomRight, LineTE, prefixed("TE ", record.Get(metadata.FieldEchoTime)))
	}
}
