package smoothing

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// savgolWeights returns the Savitzky-Golay weights that estimate the
// value at offset 0 from samples at offsets -lo..hi. They are row 0 of
// the pseudo-inverse of the Vandermonde matrix of the offsets, so the
// estimate is the constant term of the least-squares polynomial. The
// order drops to the number of samples minus one when fewer points are
// available.
func savgolWeights(lo, hi, order int) ([]float64, error) {
	m := lo + hi + 1
	order = min(order, m-1)

	a := mat.NewDense(m, order+1, nil)
	for r := 0; r < m; r++ {
		x := float64(r - lo)
		p := 1.0
		for c := 0; c <= order; c++ {
			a.Set(r, c, p)
			p *= x
		}
	}

	ones := make([]float64, m)
	for i := range ones {
		ones[i] = 1
	}

	// Least-squares solve of A X = I gives X = pinv(A)
	var pinv mat.Dense
	if err := pinv.Solve(a, mat.NewDiagDense(m, ones)); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("savitzky-golay fit over offsets [-%d,%d] order %d: %w", lo, hi, order, err)
		}
	}
	return mat.Row(nil, 0, &pinv), nil
}
