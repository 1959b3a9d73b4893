package metrics

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/jamesainslie/go-fcneval/sample"
)

// Summary is the dataset-level mean of per-image scores.
type Summary struct {
	Score
	Samples int
}

// Percent returns s with every defined statistic scaled by 100.
func (s Summary) Percent() Summary {
	scale := func(v Value) Value {
		if !v.OK {
			return v
		}
		return Some(v.V * 100)
	}
	return Summary{
		Score: Score{
			PixelAccuracy:     scale(s.PixelAccuracy),
			MeanClassAccuracy: scale(s.MeanClassAccuracy),
			MeanIoU:           scale(s.MeanIoU),
			FWIoU:             scale(s.FWIoU),
		},
		Samples: s.Samples,
	}
}

// Accumulator collects per-image scores in arrival order.
// It is not safe for concurrent use.
type Accumulator struct {
	nClass int
	scores []Score
}

// NewAccumulator creates an Accumulator for a fixed class count.
func NewAccumulator(nClass int) *Accumulator {
	return &Accumulator{nClass: nClass}
}

// Add scores one prediction and records it.
func (a *Accumulator) Add(truth, pred sample.LabelMap) (Score, error) {
	s, err := LabelAccuracy(truth, pred, a.nClass)
	if err != nil {
		return Score{}, fmt.Errorf("scoring sample %d: %w", len(a.scores), err)
	}
	a.scores = append(a.scores, s)
	return s, nil
}

// Len returns the number of recorded scores.
func (a *Accumulator) Len() int {
	return len(a.scores)
}

// Summary averages every recorded score.
func (a *Accumulator) Summary() Summary {
	return Mean(a.scores)
}

// Mean averages each statistic over the scores where it is defined.
// A statistic undefined in every score stays undefined.
func Mean(scores []Score) Summary {
	pick := func(get func(Score) Value) Value {
		var xs []float64
		for _, s := range scores {
			if v := get(s); v.OK {
				xs = append(xs, v.V)
			}
		}
		return meanOf(xs)
	}

	return Summary{
		Score: Score{
			PixelAccuracy:     pick(func(s Score) Value { return s.PixelAccuracy }),
			MeanClassAccuracy: pick(func(s Score) Value { return s.MeanClassAccuracy }),
			MeanIoU:           pick(func(s Score) Value { return s.MeanIoU }),
			FWIoU:             pick(func(s Score) Value { return s.FWIoU }),
		},
		Samples: len(scores),
	}
}

func meanOf(xs []float64) Value {
	if len(xs) == 0 {
		return Value{}
	}
	return Some(stat.Mean(xs, nil))
}
