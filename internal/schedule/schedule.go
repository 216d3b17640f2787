// Package schedule provides step-indexed parameter schedules for training
// loops, such as linear warm-up ramps for loss multipliers.
package schedule

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// Point is one control point of a schedule: the parameter Value that applies
// at training Step.
type Point struct {
	Step  float64
	Value float64
}

// PiecewiseLinear interpolates linearly between control points and clamps to
// the endpoint values outside the covered step range.
type PiecewiseLinear struct {
	first Point
	last  Point
	pl    interp.PiecewiseLinear
}

// NewPiecewiseLinear builds a schedule from at least two control points with
// strictly increasing steps. Points may be given in any order.
func NewPiecewiseLinear(points []Point) (*PiecewiseLinear, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("schedule needs at least 2 control points, got %d", len(points))
	}
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Step < sorted[j].Step })

	xs := make([]float64, len(sorted))
	ys := make([]float64, len(sorted))
	for i, p := range sorted {
		if i > 0 && p.Step == sorted[i-1].Step {
			return nil, fmt.Errorf("duplicate control point at step %g", p.Step)
		}
		xs[i] = p.Step
		ys[i] = p.Value
	}

	s := &PiecewiseLinear{first: sorted[0], last: sorted[len(sorted)-1]}
	if err := s.pl.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("fit schedule: %w", err)
	}
	return s, nil
}

// MustPiecewiseLinear is NewPiecewiseLinear for statically known tables.
// It panics on invalid points.
func MustPiecewiseLinear(points []Point) *PiecewiseLinear {
	s, err := NewPiecewiseLinear(points)
	if err != nil {
		panic(err)
	}
	return s
}

// At returns the schedule value at the given step, clamped to the first and
// last control values outside the table.
func (s *PiecewiseLinear) At(step float64) float64 {
	if step <= s.first.Step {
		return s.first.Value
	}
	if step >= s.last.Step {
		return s.last.Value
	}
	return s.pl.Predict(step)
}
