// Package energy models the ordered beam energies associated with the
// frames of a LEEM-I(V) stack.
package energy

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrInvalidAxis is returned for an empty or malformed axis
	ErrInvalidAxis = errors.New("invalid energy axis")

	// ErrIndexOutOfRange is returned when a frame index is outside [0, N)
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Axis is an immutable ordered sequence of energies, one per frame.
// Values are monotonic by convention; this is not enforced.
type Axis struct {
	values []float64
}

// New creates an axis from explicit energy values. The slice is copied.
func New(values []float64) (Axis, error) {
	if len(values) == 0 {
		return Axis{}, fmt.Errorf("%w: no energy values", ErrInvalidAxis)
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Axis{}, fmt.Errorf("%w: value %d is %v", ErrInvalidAxis, i, v)
		}
	}
	return Axis{values: append([]float64(nil), values...)}, nil
}

// FromRange creates an axis from start to stop inclusive in increments of
// step, the way experiment files describe an energy sweep. The number of
// frames is round((stop-start)/step)+1.
func FromRange(start, stop, step float64) (Axis, error) {
	if step == 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return Axis{}, fmt.Errorf("%w: step must be finite and non-zero, got %v", ErrInvalidAxis, step)
	}
	span := (stop - start) / step
	if span < 0 || math.IsNaN(span) || math.IsInf(span, 0) {
		return Axis{}, fmt.Errorf("%w: step %v cannot reach %v from %v", ErrInvalidAxis, step, stop, start)
	}

	n := int(math.Round(span)) + 1
	values := make([]float64, n)
	for i := range values {
		// Computed from the index rather than accumulated to avoid drift
		values[i] = start + float64(i)*step
	}
	return Axis{values: values}, nil
}

// Len returns the number of energies
func (a Axis) Len() int { return len(a.values) }

// ValueAt returns the energy of frame i
func (a Axis) ValueAt(i int) (float64, error) {
	if i < 0 || i >= len(a.values) {
		return 0, fmt.Errorf("%w: energy index %d not in [0,%d)", ErrIndexOutOfRange, i, len(a.values))
	}
	return a.values[i], nil
}

// Values returns a copy of all energies
func (a Axis) Values() []float64 {
	return append([]float64(nil), a.values...)
}

// Nearest returns the frame index whose energy is closest to e.
// Ties resolve to the lower index. It returns -1 for an empty axis.
func (a Axis) Nearest(e float64) int {
	best := -1
	bestDist := math.Inf(1)
	for i, v := range a.values {
		if d := math.Abs(v - e); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// Min returns the smallest energy on the axis
func (a Axis) Min() float64 {
	if len(a.values) == 0 {
		return math.NaN()
	}
	return floats.Min(a.values)
}

// Max returns the largest energy on the axis
func (a Axis) Max() float64 {
	if len(a.values) == 0 {
		return math.NaN()
	}
	return floats.Max(a.values)
}

func (a Axis) String() string {
	if len(a.values) == 0 {
		return "energy axis (empty)"
	}
	return fmt.Sprintf("energy axis %d values [%g, %g] eV", len(a.values), a.Min(), a.Max())
}
