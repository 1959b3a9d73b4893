// Package metrics computes label accuracy scores for semantic segmentation.
package metrics

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/jamesainslie/go-fcneval/sample"
)

// ErrSizeMismatch indicates the truth and prediction maps cover different grids.
var ErrSizeMismatch = errors.New("metrics: label map size mismatch")

// Value is a statistic that may be undefined, e.g. accuracy of a class with
// no true pixels.
type Value struct {
	V  float64
	OK bool
}

// Some returns a defined Value.
func Some(v float64) Value {
	return Value{V: v, OK: true}
}

// String formats v with the shortest representation that round-trips.
// Undefined values print as "nan".
func (v Value) String() string {
	if !v.OK {
		return "nan"
	}
	s := strconv.FormatFloat(v.V, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// Score holds the four label accuracy statistics of one image, each in [0,1].
type Score struct {
	PixelAccuracy     Value
	MeanClassAccuracy Value
	MeanIoU           Value
	FWIoU             Value // frequency weighted IoU
}

// Confusion builds the nClass x nClass confusion matrix where C[i][j] counts
// pixels with true class i predicted as j. Pixels whose true or predicted
// class is outside [0, nClass) are skipped.
func Confusion(truth, pred sample.LabelMap, nClass int) (*mat.Dense, error) {
	if nClass <= 0 {
		return nil, fmt.Errorf("metrics: invalid class count %d", nClass)
	}
	if !truth.SameSize(pred) || len(truth.Data) != len(pred.Data) {
		return nil, fmt.Errorf("%w: truth %dx%d, prediction %dx%d",
			ErrSizeMismatch, truth.Width, truth.Height, pred.Width, pred.Height)
	}

	counts := make([]float64, nClass*nClass)
	n := int32(nClass)
	for i, t := range truth.Data {
		if t < 0 || t >= n {
			continue
		}
		p := pred.Data[i]
		if p < 0 || p >= n {
			continue
		}
		counts[t*n+p]++
	}
	return mat.NewDense(nClass, nClass, counts), nil
}

// FromConfusion derives the four statistics from a confusion matrix.
func FromConfusion(c *mat.Dense) Score {
	n, _ := c.Dims()
	total := mat.Sum(c)
	if total == 0 {
		// No class has a defined IoU, so the weighted sum is empty.
		return Score{FWIoU: Some(0)}
	}

	rows := make([]float64, n)
	cols := make([]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = floats.Sum(c.RawRowView(i))
		cols[i] = mat.Sum(c.ColView(i))
	}

	var clsAcc, iou []float64
	var fw float64
	for i := 0; i < n; i++ {
		hit := c.At(i, i)
		if rows[i] > 0 {
			clsAcc = append(clsAcc, hit/rows[i])
		}
		union := rows[i] + cols[i] - hit
		if union > 0 {
			u := hit / union
			iou = append(iou, u)
			fw += rows[i] / total * u
		}
	}

	return Score{
		PixelAccuracy:     Some(mat.Trace(c) / total),
		MeanClassAccuracy: meanOf(clsAcc),
		MeanIoU:           meanOf(iou),
		FWIoU:             Some(fw),
	}
}

// LabelAccuracy scores a single prediction against its ground truth.
func LabelAccuracy(truth, pred sample.LabelMap, nClass int) (Score, error) {
	c, err := Confusion(truth, pred, nClass)
	if err != nil {
		return Score{}, err
	}
	return FromConfusion(c), nil
}
