// Package models holds the value types shared by the stack, smoothing,
// session and export packages.
package models

import "fmt"

// Provenance records how a curve was produced
type Provenance int

const (
	// Raw curves are sampled directly from the stack
	Raw Provenance = iota

	// Smoothed curves are the output of a smoothing filter
	Smoothed
)

func (p Provenance) String() string {
	switch p {
	case Raw:
		return "raw"
	case Smoothed:
		return "smoothed"
	default:
		return fmt.Sprintf("provenance(%d)", int(p))
	}
}

// Sample is one (energy, intensity) pair of a curve
type Sample struct {
	Energy    float64
	Intensity float64
}

// Curve is the intensity-vs-energy sequence of one stack pixel, or of a
// box of pixels summed around it.
//
// A Curve is a value: its sample slices are never modified after
// construction and every accessor returns a copy, so curves can be shared
// between goroutines and stored by the session without aliasing.
type Curve struct {
	// X and Y locate the source pixel in stack-pixel space
	X, Y int

	// Provenance tells whether the intensities are raw or filtered
	Provenance Provenance

	// Radius is the half-width of the integration box centred on (X, Y);
	// 0 for a single pixel
	Radius int

	energies    []float64
	intensities []float64
}

// NewCurve builds a curve from index-aligned energy and intensity slices.
//
// The curve takes ownership of both slices; callers must not modify them
// afterwards. The energy slice may be shared between curves as long as
// nobody writes to it.
func NewCurve(x, y int, p Provenance, energies, intensities []float64) (Curve, error) {
	if len(energies) != len(intensities) {
		return Curve{}, fmt.Errorf("curve length mismatch: %d energies, %d intensities",
			len(energies), len(intensities))
	}
	return Curve{X: x, Y: y, Provenance: p, energies: energies, intensities: intensities}, nil
}

// Len returns the number of samples
func (c Curve) Len() int { return len(c.intensities) }

// At returns sample i. It panics if i is out of range, like slice indexing.
func (c Curve) At(i int) Sample {
	return Sample{Energy: c.energies[i], Intensity: c.intensities[i]}
}

// Samples returns a copy of the curve as ordered pairs
func (c Curve) Samples() []Sample {
	out := make([]Sample, len(c.intensities))
	for i := range out {
		out[i] = Sample{Energy: c.energies[i], Intensity: c.intensities[i]}
	}
	return out
}

// Energies returns a copy of the energy values
func (c Curve) Energies() []float64 {
	return append([]float64(nil), c.energies...)
}

// Intensities returns a copy of the intensity values
func (c Curve) Intensities() []float64 {
	return append([]float64(nil), c.intensities...)
}

// WithIntensities returns a new curve sharing this curve's pixel, box
// radius and energies but carrying the given intensities and provenance.
// It takes ownership of intensities.
func (c Curve) WithIntensities(p Provenance, intensities []float64) (Curve, error) {
	out, err := NewCurve(c.X, c.Y, p, c.energies, intensities)
	if err != nil {
		return Curve{}, err
	}
	out.Radius = c.Radius
	return out, nil
}

func (c Curve) String() string {
	if c.Radius > 0 {
		return fmt.Sprintf("%s curve of box r=%d at (%d,%d), %d samples", c.Provenance, c.Radius, c.X, c.Y, c.Len())
	}
	return fmt.Sprintf("%s curve at (%d,%d), %d samples", c.Provenance, c.X, c.Y, c.Len())
}
