package stack

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Frame is a read-only view of one energy frame. It implements mat.Matrix
// with rows as image y and columns as image x; there is no way to write
// through it.
type Frame struct {
	s     *ImageStack
	index int
}

// Index returns the frame number within the stack
func (f Frame) Index() int { return f.index }

// Energy returns the beam energy of this frame
func (f Frame) Energy() float64 { return f.s.energies[f.index] }

// Dims returns the frame height and width
func (f Frame) Dims() (r, c int) { return f.s.height, f.s.width }

// At returns the intensity at row i (y), column j (x). It panics with
// mat.ErrIndexOutOfRange for indices outside the frame, as gonum does.
func (f Frame) At(i, j int) float64 {
	if i < 0 || i >= f.s.height || j < 0 || j >= f.s.width {
		panic(mat.ErrIndexOutOfRange)
	}
	return f.s.data[(i*f.s.width+j)*f.s.n+f.index]
}

// T returns the transpose of the frame
func (f Frame) T() mat.Matrix { return mat.Transpose{Matrix: f} }

// Dense copies the frame into a new dense matrix owned by the caller
func (f Frame) Dense() *mat.Dense {
	h, w := f.Dims()
	out := mat.NewDense(h, w, nil)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Set(y, x, f.At(y, x))
		}
	}
	return out
}

// Range returns the smallest and largest intensity in the frame
func (f Frame) Range() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	h, w := f.Dims()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := f.At(y, x)
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	return lo, hi
}

// Gray16 renders the frame as a 16-bit gray image, scaling the frame's
// own intensity range to the full gray range. A flat frame renders black.
func (f Frame) Gray16() *image.Gray16 {
	h, w := f.Dims()
	img := image.NewGray16(image.Rect(0, 0, w, h))
	lo, hi := f.Range()
	span := hi - lo
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var v float64
			if span > 0 {
				v = (f.At(y, x) - lo) / span
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16(math.Max(0, math.Min(65535, v*65535)))})
		}
	}
	return img
}

func (f Frame) String() string {
	return fmt.Sprintf("frame %d at %g eV", f.index, f.Energy())
}
