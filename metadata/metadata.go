package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"dicom-annotations/constants"
)

const (
	FieldStudyDate          = "Study Date"
	FieldStudyTime          = "Study Time"
	FieldModality           = "Modality"
	FieldManufacturer       = "Manufacturer"
	FieldInstitutionName    = "Institution Name"
	FieldReferringPhysician = "Referring Physician"
	FieldSeriesDescription  = "Series Description"
	FieldModel              = "Model"
	FieldPatientName        = "Patient Name"
	FieldPatientID          = "Patient ID"
	FieldPatientBirthDate   = "Patient Birth Date"
	FieldPatientSex         = "Patient Sex"
	FieldPatientAge         = "Patient Age"
	FieldPatientPosition    = "Patient Position"
	FieldStudyID            = "Study ID"
	FieldSeriesNumber       = "Series Number"
	FieldRepetitionTime     = "Repetition Time"
	FieldEchoTime           = "Echo Time"
)

// TagSOPInstanceUID identifies the instance a header belongs to.
const (
	TagSOPInstanceUID    = "0008,0018"
	TagStudyInstanceUID  = "0020,000d"
	TagSeriesInstanceUID = "0020,000e"
)

// Field binds a display field to the tag it is read from. Tags use the
// lower-case "gggg,eeee" form.
type Field struct {
	Tag  string `json:"tag"`
	Name string `json:"name"`
}

// Fields is the table read for every displayed instance. Existing deployments
// depend on these exact codes.
var Fields = []Field{
	{"0008,0020", FieldStudyDate},
	{"0008,0030", FieldStudyTime},
	{"0008,0060", FieldModality},
	{"0008,0070", FieldManufacturer},
	{"0008,0080", FieldInstitutionName},
	{"0008,0090", FieldReferringPhysician},
	{"0008,103e", FieldSeriesDescription},
	{"0008,1090", FieldModel},
	{"0010,0010", FieldPatientName},
	{"0010,0020", FieldPatientID},
	{"0010,0030", FieldPatientBirthDate},
	{"0010,0040", FieldPatientSex},
	{"0010,1010", FieldPatientAge},
	{"0018,5100", FieldPatientPosition},
	{"0020,0010", FieldStudyID},
	{"0020,0011", FieldSeriesNumber},
}

// MRFields are only read for MR instances.
var MRFields = []Field{
	{"0018,0080", FieldRepetitionTime},
	{"0018,0081", FieldEchoTime},
}

// Header maps tag codes to their string values for one instance.
type Header map[string]string

func (header Header) String() string {
	b, _ := json.Marshal(header)
	return string(b)
}

// Record maps field names to values. Every requested field is present;
// unresolved ones hold constants.Unknown.
type Record map[string]string

// Get never returns an empty result for a missing key.
func (record Record) Get(name string) string {
	if v, found := record[name]; found {
		return v
	}
	return constants.Unknown
}

// Source is the host's DICOM header store.
type Source interface {
	// HeaderValue reports the value of tagID for the instance uid. ok is false
	// when either the instance or the tag is not available.
	HeaderValue(ctx context.Context, uid, tagID string) (value string, ok bool)
}

// HeaderLoader is implemented by sources that fetch a whole header per round
// trip. Extract loads the header once instead of once per field.
type HeaderLoader interface {
	LoadInstanceHeader(ctx context.Context, uid string) (Header, error)
}

type headerSource struct {
	header Header
}

func (src headerSource) HeaderValue(_ context.Context, _, tagID string) (string, bool) {
	value, found := src.header[tagID]
	return value, found
}

// LookupField returns the tag value or constants.Unknown.
func LookupField(ctx context.Context, src Source, uid, tagID string) string {
	if src == nil || uid == "" {
		return constants.Unknown
	}
	value, ok := src.HeaderValue(ctx, uid, NormalizeTag(tagID))
	if !ok {
		return constants.Unknown
	}
	return value
}

// Extract builds a fresh record for uid holding every field in fields.
func Extract(ctx context.Context, src Source, uid string, fields ...[]Field) Record {
	record := make(Record)
	if loader, ok := src.(HeaderLoader); ok && uid != "" {
		header, err := loader.LoadInstanceHeader(ctx, uid)
		if err != nil {
			header = Header{}
		}
		src = headerSource{header}
	}
	for _, set := range fields {
		for _, field := range set {
			record[field.Name] = LookupField(ctx, src, uid, field.Tag)
		}
	}
	return record
}

// NormalizeTag accepts "(0010,0010)", "0010,0010" and "00100010" in any case.
func NormalizeTag(tagID string) string {
	t := strings.ToLower(strings.TrimSpace(tagID))
	t = strings.TrimPrefix(t, "(")
	t = strings.TrimSuffix(t, ")")
	t = strings.ReplaceAll(t, " ", "")
	if len(t) == 8 && !strings.Contains(t, ",") {
		t = t[:4] + "," + t[4:]
	}
	return t
}

// FormatTag renders a group/element pair the way Fields stores it.
func FormatTag(group, element uint16) string {
	return fmt.Sprintf("%04x,%04x", group, element)
}
