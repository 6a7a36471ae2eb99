package viewport

import (
	"fmt"
	"math"

	"dicom-annotations/constants"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// RulerSizes are the scale bar lengths in millimetres.
var RulerSizes = []int{1, 5, 10, 50, 100}

const (
	rulerFraction  = 7
	minRulerArea   = 0.5
	maxRulerArea   = 500
	cameraDistance = 300
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ScaleBarGeometry is the ruler drawn along the bottom edge of a view, in
// view pixels.
type ScaleBarGeometry struct {
	Visible       bool      `json:"visible"`
	SizeMM        int       `json:"size_mm"`
	Label         string    `json:"label"`
	Points        [10]Point `json:"points"`
	LabelPosition Point     `json:"label_position"`
}

func (m Matrix) dense() *mat.Dense {
	return mat.NewDense(4, 4, m[:])
}

// ScaleBar sizes the ruler for a view of width pixels. The bar is only
// visible when show is set, the view is wide enough and the chosen size is
// plausible for the zoom level.
func ScaleBar(width int, xyToRAS Matrix, show bool) (ScaleBarGeometry, error) {
	var rasToXY mat.Dense
	if err := rasToXY.Inverse(xyToRAS.dense()); err != nil {
		return ScaleBarGeometry{}, errors.Wrap(err, "invert XYToRAS")
	}

	pixelsPerMM := math.Sqrt(
		rasToXY.At(0, 0)*rasToXY.At(0, 0) +
			rasToXY.At(0, 1)*rasToXY.At(0, 1) +
			rasToXY.At(0, 2)*rasToXY.At(0, 2))
	if pixelsPerMM == 0 {
		return ScaleBarGeometry{}, errors.New("degenerate XYToRAS")
	}

	w := float64(width)
	area := w / pixelsPerMM / rulerFraction

	size := RulerSizes[0]
	for _, candidate := range RulerSizes[1:] {
		if math.Abs(float64(candidate)-area) < math.Abs(float64(size)-area) {
			size = candidate
		}
	}

	bar := ScaleBarGeometry{
		Visible: show && width > constants.MinWidthForScalingRuler && area > minRulerArea && area < maxRulerArea,
		SizeMM:  size,
	}
	if size/10 > 1 {
		bar.Label = fmt.Sprintf("%d cm", size/10)
	} else {
		bar.Label = fmt.Sprintf("%d mm", size)
	}

	length := float64(size) * pixelsPerMM
	ticks := []struct {
		x      float64
		height float64
	}{
		{(w - length) / 2, 20},
		{(w - length/2) / 2, 17},
		{w / 2, 20},
		{(w + length/2) / 2, 17},
		{(w + length) / 2, 20},
	}
	for i, tick := range ticks {
		bar.Points[2*i] = Point{tick.x, 10}
		bar.Points[2*i+1] = Point{tick.x, tick.height}
	}
	bar.LabelPosition = Point{float64(int((w+length)/2) + 10), 7}
	return bar, nil
}

// Camera places the orientation body model.
type Camera struct {
	Position [3]float64 `json:"position"`
	ViewUp   [3]float64 `json:"view_up"`
}

// BodyModelCamera looks at the body model from the direction the slice is
// seen from, using the rotation part of xyToRAS.
func BodyModelCamera(xyToRAS Matrix) Camera {
	rotation := mat.NewDense(3, 3, []float64{
		xyToRAS[0], xyToRAS[1], xyToRAS[2],
		xyToRAS[4], xyToRAS[5], xyToRAS[6],
		xyToRAS[8], xyToRAS[9], xyToRAS[10],
	})

	var position, viewUp mat.VecDense
	position.MulVec(rotation, mat.NewVecDense(3, []float64{0, 0, cameraDistance}))
	viewUp.MulVec(rotation, mat.NewVecDense(3, []float64{0, 1, 0}))

	var camera Camera
	for i := 0; i < 3; i++ {
		camera.Position[i] = -position.AtVec(i)
		camera.ViewUp[i] = viewUp.AtVec(i)
	}
	return camera
}
