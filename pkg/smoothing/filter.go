package smoothing

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"

	"leemiv/internal/models"
)

// Smoother turns a raw curve into a smoothed one. Implementations must be
// deterministic and must not modify their input.
type Smoother interface {
	Smooth(c models.Curve, cfg Config) (models.Curve, error)
}

// Filter is the default Smoother. It convolves the intensities with a
// normalized window of cfg.Window samples covering offsets
// -(w-1)/2 .. w/2 around each point; energies pass through unchanged.
//
// Weights are flat for MovingAverage, the gonum dsp/window tapers for
// Hann, Hamming, Blackman and Triangular, and least-squares polynomial
// projection weights for SavitzkyGolay. Near the ends the configured
// EdgePolicy applies. A kernel whose remaining weight is zero passes the
// centre sample through.
type Filter struct{}

// Default is the Smoother used by sessions unless another is supplied
var Default Smoother = Filter{}

// Smooth applies the default filter
func Smooth(c models.Curve, cfg Config) (models.Curve, error) {
	return Filter{}.Smooth(c, cfg)
}

// Smooth implements Smoother
func (Filter) Smooth(c models.Curve, cfg Config) (models.Curve, error) {
	if err := cfg.ValidateFor(c.Len()); err != nil {
		return models.Curve{}, err
	}
	out, err := Apply(c.Intensities(), cfg)
	if err != nil {
		return models.Curve{}, err
	}
	return c.WithIntensities(models.Smoothed, out)
}

// Apply filters a bare intensity sequence and returns a new slice. The
// input is not modified.
func Apply(y []float64, cfg Config) ([]float64, error) {
	n := len(y)
	if err := cfg.ValidateFor(n); err != nil {
		return nil, err
	}

	left, right := (cfg.Window-1)/2, cfg.Window/2
	k := &kernels{cfg: cfg, left: left, right: right, cache: make(map[[2]int][]float64)}
	full, err := k.get(left, right)
	if err != nil {
		return nil, err
	}

	out := make([]float64, n)
	for i := range y {
		lo, hi := min(left, i), min(right, n-1-i)
		if lo == left && hi == right {
			out[i] = floats.Dot(full, y[i-left:i+right+1])
			continue
		}

		switch cfg.Edge {
		case EdgeTruncate:
			w, err := k.get(lo, hi)
			if err != nil {
				return nil, err
			}
			out[i] = floats.Dot(w, y[i-lo:i+hi+1])
		case EdgeShrink:
			r := min(lo, hi)
			w, err := k.get(r, r)
			if err != nil {
				return nil, err
			}
			out[i] = floats.Dot(w, y[i-r:i+r+1])
		case EdgeMirror, EdgeClamp:
			var acc float64
			for j := -left; j <= right; j++ {
				acc += full[j+left] * y[padIndex(i+j, n, cfg.Edge)]
			}
			out[i] = acc
		default:
			return nil, fmt.Errorf("%w: %d", ErrUnknownEdgePolicy, int(cfg.Edge))
		}
	}
	return out, nil
}

// kernels memoizes the normalized weights for each (lo, hi) extent used
// while filtering one curve. Only the edges need extents other than the
// full window, so at most Window entries are built.
type kernels struct {
	cfg         Config
	left, right int
	cache       map[[2]int][]float64
}

// get returns weights for offsets -lo..hi, summing to one
func (k *kernels) get(lo, hi int) ([]float64, error) {
	key := [2]int{lo, hi}
	if w, ok := k.cache[key]; ok {
		return w, nil
	}

	var w []float64
	switch {
	case k.cfg.Algorithm == SavitzkyGolay:
		var err error
		w, err = savgolWeights(lo, hi, k.cfg.Order)
		if err != nil {
			return nil, err
		}
	case k.cfg.Edge == EdgeShrink && (lo != k.left || hi != k.right):
		w = normalize(taper(k.cfg.Algorithm, lo+hi+1), lo)
	default:
		full := taper(k.cfg.Algorithm, k.cfg.Window)
		w = normalize(full[k.left-lo:k.left+hi+1], lo)
	}

	k.cache[key] = w
	return w, nil
}

// taper returns the unnormalized window weights for m samples
func taper(a Algorithm, m int) []float64 {
	seq := make([]float64, m)
	for i := range seq {
		seq[i] = 1
	}
	if m == 1 {
		return seq
	}
	switch a {
	case Hann:
		return window.Hann(seq)
	case Hamming:
		return window.Hamming(seq)
	case Blackman:
		return window.Blackman(seq)
	case Triangular:
		return window.Triangular(seq)
	default:
		return seq
	}
}

// normalize returns w scaled to unit sum. If the weights sum to zero or
// less, the result selects only the centre sample at index centre.
func normalize(w []float64, centre int) []float64 {
	out := make([]float64, len(w))
	s := sum(w)
	if s <= 0 {
		out[centre] = 1
		return out
	}
	for i, v := range w {
		out[i] = v / s
	}
	return out
}

func sum(w []float64) float64 {
	if len(w) == 0 {
		return 0
	}
	return floats.Sum(w)
}

// padIndex maps an out-of-range index back into [0, n) for the mirror
// and clamp policies
func padIndex(j, n int, e EdgePolicy) int {
	if j >= 0 && j < n {
		return j
	}
	if e == EdgeClamp || n == 1 {
		return max(0, min(n-1, j))
	}
	period := 2 * (n - 1)
	j %= period
	if j < 0 {
		j += period
	}
	if j >= n {
		j = period - j
	}
	return j
}
