package annotation

import (
	"sort"
	"strings"
)

// Corner indexes the four corner texts in the host's corner-annotation order.
type Corner int

const (
	BottomLeft Corner = iota
	BottomRight
	TopLeft
	TopRight
)

// CornerCount is the number of screen corners.
const CornerCount = 4

var cornerNames = map[Corner]string{
	BottomLeft:  "bottom_left",
	BottomRight: "bottom_right",
	TopLeft:     "top_left",
	TopRight:    "top_right",
}

func (corner Corner) String() string {
	if name, found := cornerNames[corner]; found {
		return name
	}
	return "unknown"
}

// LineID names one line slot of a corner block.
type LineID string

const (
	LineLabel      LineID = "label"
	LineForeground LineID = "foreground"
	LineBackground LineID = "background"

	LineTR LineID = "tr"
	LineTE LineID = "te"

	LinePatientName         LineID = "patient_name"
	LinePatientID           LineID = "patient_id"
	LinePatientInfo         LineID = "patient_info"
	LineBgStudyDate         LineID = "bg_study_date"
	LineFgStudyDate         LineID = "fg_study_date"
	LineBgStudyTime         LineID = "bg_study_time"
	LineFgStudyTime         LineID = "fg_study_time"
	LineBgSeriesDescription LineID = "bg_series_description"
	LineFgSeriesDescription LineID = "fg_series_description"
	LineInstitutionName     LineID = "institution_name"
	LineReferringPhysician  LineID = "referring_physician"
	LineManufacturer        LineID = "manufacturer"
	LineModel               LineID = "model"
	LinePatientPosition     LineID = "patient_position"
)

// Slot ranks a line inside its corner. Lower ranks render first.
type Slot struct {
	Line LineID
	Rank int
}

// Layouts holds the fixed slots of every corner.
var Layouts = [CornerCount][]Slot{
	BottomLeft: {
		{LineLabel, 1},
		{LineForeground, 2},
		{LineBackground, 3},
	},
	BottomRight: {
		{LineTR, 1},
		{LineTE, 2},
	},
	TopLeft: {
		{LinePatientName, 1},
		{LinePatientID, 2},
		{LinePatientInfo, 3},
		{LineBgStudyDate, 4},
		{LineFgStudyDate, 5},
		{LineBgStudyTime, 6},
		{LineFgStudyTime, 7},
		{LineBgSeriesDescription, 8},
		{LineFgSeriesDescription, 9},
	},
	TopRight: {
		{LineInstitutionName, 1},
		{LineReferringPhysician, 2},
		{LineManufacturer, 3},
		{LineModel, 4},
		{LinePatientPosition, 5},
	},
}

// Block is the text of one corner for one composition pass.
type Block struct {
	slots  []Slot
	values map[LineID]string
}

func newBlock(slots []Slot) *Block {
	ordered := append([]Slot(nil), slots...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Rank < ordered[j].Rank
	})
	return &Block{
		slots:  ordered,
		values: make(map[LineID]string, len(slots)),
	}
}

// Set stores value for line. Lines that are not part of the layout are ignored.
func (block *Block) Set(line LineID, value string) {
	for _, slot := range block.slots {
		if slot.Line == line {
			block.values[line] = value
			return
		}
	}
}

func (block *Block) Get(line LineID) string {
	return block.values[line]
}

// Clear empties every line.
func (block *Block) Clear() {
	block.values = make(map[LineID]string, len(block.slots))
}

// Render joins the non-empty lines in rank order, each newline terminated.
func (block *Block) Render() string {
	var sb strings.Builder
	for _, slot := range block.slots {
		if v := block.values[slot.Line]; v != "" {
			sb.WriteString(v)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
