// Package smoothing provides the interactive preview filter applied to
// I(V) curves. Filters are pure functions of a curve and a Config.
package smoothing

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidWindow is returned for a window <= 0, longer than the
	// curve, or whose taper has no weight
	ErrInvalidWindow = errors.New("invalid smoothing window")

	// ErrInvalidOrder is returned for a Savitzky-Golay order outside [0, window)
	ErrInvalidOrder = errors.New("invalid polynomial order")

	// ErrUnknownAlgorithm is returned for an algorithm outside the enumeration
	ErrUnknownAlgorithm = errors.New("unknown smoothing algorithm")

	// ErrUnknownEdgePolicy is returned for an edge policy outside the enumeration
	ErrUnknownEdgePolicy = errors.New("unknown edge policy")
)

// Algorithm selects the filter kernel
type Algorithm int

const (
	// MovingAverage weights every sample in the window equally
	MovingAverage Algorithm = iota

	// Hann, Hamming, Blackman and Triangular are tapered windows
	Hann
	Hamming
	Blackman
	Triangular

	// SavitzkyGolay fits a least-squares polynomial over the window
	SavitzkyGolay
)

var algorithmNames = map[Algorithm]string{
	MovingAverage: "moving-average",
	Hann:          "hann",
	Hamming:       "hamming",
	Blackman:      "blackman",
	Triangular:    "triangular",
	SavitzkyGolay: "savitzky-golay",
}

// Aliases accepted by ParseAlgorithm, including the window names used by
// existing experiment files
var algorithmAliases = map[string]Algorithm{
	"moving-average": MovingAverage,
	"flat":           MovingAverage,
	"mean":           MovingAverage,
	"hann":           Hann,
	"hanning":        Hann,
	"hamming":        Hamming,
	"blackman":       Blackman,
	"triangular":     Triangular,
	"bartlett":       Triangular,
	"savitzky-golay": SavitzkyGolay,
	"savgol":         SavitzkyGolay,
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return fmt.Sprintf("algorithm(%d)", int(a))
}

// ParseAlgorithm converts a name such as "hann" or "flat" to an Algorithm
func ParseAlgorithm(s string) (Algorithm, error) {
	if a, ok := algorithmAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return a, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
}

// EdgePolicy decides how the first and last window/2 samples are filtered,
// where a full window does not fit.
type EdgePolicy int

const (
	// EdgeTruncate is an asymmetric shrink: the window keeps the samples
	// that exist on each side, drops the missing ones and renormalizes the
	// remaining weights. Savitzky-Golay refits on the samples available.
	EdgeTruncate EdgePolicy = iota

	// EdgeShrink uses the widest symmetric window that fits
	EdgeShrink

	// EdgeMirror reflects the curve about its end samples, without
	// repeating them: ... x2 x1 | x0 x1 x2 ...
	EdgeMirror

	// EdgeClamp repeats the end samples: ... x0 x0 | x0 x1 x2 ...
	EdgeClamp
)

var edgeNames = map[EdgePolicy]string{
	EdgeTruncate: "truncate",
	EdgeShrink:   "shrink",
	EdgeMirror:   "mirror",
	EdgeClamp:    "clamp",
}

func (e EdgePolicy) String() string {
	if name, ok := edgeNames[e]; ok {
		return name
	}
	return fmt.Sprintf("edge(%d)", int(e))
}

// ParseEdgePolicy converts a name such as "mirror" to an EdgePolicy
func ParseEdgePolicy(s string) (EdgePolicy, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for e, n := range edgeNames {
		if n == name {
			return e, nil
		}
	}
	if name == "reflect" {
		return EdgeMirror, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEdgePolicy, s)
}

// Config is a complete smoothing setting. It is a small value and is
// always replaced as a whole.
type Config struct {
	Algorithm Algorithm
	Window    int

	// Order is the polynomial degree, used only by SavitzkyGolay
	Order int

	Edge EdgePolicy
}

// DefaultConfig returns the preview setting used when none is configured:
// a flat 10-sample moving average with truncated edges.
func DefaultConfig() Config {
	return Config{
		Algorithm: MovingAverage,
		Window:    10,
		Order:     2,
		Edge:      EdgeTruncate,
	}
}

// Validate checks the config independently of any curve
func (c Config) Validate() error {
	if _, ok := algorithmNames[c.Algorithm]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownAlgorithm, int(c.Algorithm))
	}
	if _, ok := edgeNames[c.Edge]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownEdgePolicy, int(c.Edge))
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w: window %d must be positive", ErrInvalidWindow, c.Window)
	}
	if c.Algorithm == SavitzkyGolay && (c.Order < 0 || c.Order >= c.Window) {
		return fmt.Errorf("%w: order %d must be in [0,%d)", ErrInvalidOrder, c.Order, c.Window)
	}
	if c.Algorithm != SavitzkyGolay && c.Algorithm != MovingAverage {
		if sum(taper(c.Algorithm, c.Window)) <= 0 {
			return fmt.Errorf("%w: %s window of %d samples has zero weight", ErrInvalidWindow, c.Algorithm, c.Window)
		}
	}
	return nil
}

// ValidateFor checks the config against a curve of n samples
func (c Config) ValidateFor(n int) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Window > n {
		return fmt.Errorf("%w: window %d exceeds curve length %d", ErrInvalidWindow, c.Window, n)
	}
	return nil
}

// FitTo returns c adjusted to curves of n samples. A window longer than n
// is cut to n and the Savitzky-Golay order is kept below it; a tapered
// window left with no weight becomes a moving average of the same length.
// The second result reports whether c was changed.
func (c Config) FitTo(n int) (Config, bool) {
	if n <= 0 || c.Window <= n {
		return c, false
	}
	c.Window = n
	if c.Algorithm == SavitzkyGolay {
		c.Order = min(c.Order, n-1)
	}
	if c.Validate() != nil {
		c.Algorithm = MovingAverage
	}
	return c, true
}

func (c Config) String() string {
	if c.Algorithm == SavitzkyGolay {
		return fmt.Sprintf("%s window=%d order=%d edge=%s", c.Algorithm, c.Window, c.Order, c.Edge)
	}
	return fmt.Sprintf("%s window=%d edge=%s", c.Algorithm, c.Window, c.Edge)
}
