// Package stack holds a LEEM-I(V) image stack: N frames of H x W
// intensities paired with an energy axis. A stack is immutable once built,
// so any number of goroutines may extract curves from it concurrently.
package stack

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"leemiv/internal/models"
	"leemiv/pkg/energy"
)

var (
	// ErrInvalidAxis is returned when the stack is given an empty axis
	ErrInvalidAxis = energy.ErrInvalidAxis

	// ErrIndexOutOfRange is returned for a frame index outside [0, N)
	ErrIndexOutOfRange = energy.ErrIndexOutOfRange

	// ErrShapeMismatch is returned when frames differ in shape or a
	// pre-stacked volume has the wrong number of values
	ErrShapeMismatch = errors.New("frame shape mismatch")

	// ErrAxisLengthMismatch is returned when the frame count differs from
	// the axis length
	ErrAxisLengthMismatch = errors.New("axis length does not match frame count")

	// ErrOutOfBounds is returned when a pixel lies outside [0,W) x [0,H)
	ErrOutOfBounds = errors.New("pixel out of bounds")

	// ErrInvalidRadius is returned for a negative integration box radius
	ErrInvalidRadius = errors.New("invalid box radius")
)

// ImageStack is a read-only 3D intensity volume indexed by energy.
type ImageStack struct {
	// data is stored pixel-major: the N samples of pixel (x, y) occupy
	// data[(y*width+x)*n : (y*width+x+1)*n]. Curve extraction, which runs
	// on every cursor move, is therefore a single contiguous copy.
	data []float64

	n      int
	height int
	width  int

	axis energy.Axis

	// energies is the axis copy shared by every extracted curve
	energies []float64
}

// New builds a stack from per-frame matrices of identical shape. Row i of
// a frame is image row y = i and column j is x = j.
func New(frames []mat.Matrix, axis energy.Axis) (*ImageStack, error) {
	if axis.Len() == 0 {
		return nil, fmt.Errorf("%w: axis has no values", ErrInvalidAxis)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: no frames for %d energies", ErrAxisLengthMismatch, axis.Len())
	}

	for i, f := range frames {
		if f == nil {
			return nil, fmt.Errorf("%w: frame %d is nil", ErrShapeMismatch, i)
		}
	}

	h, w := frames[0].Dims()
	if h == 0 || w == 0 {
		return nil, fmt.Errorf("%w: frame 0 is empty (%dx%d)", ErrShapeMismatch, w, h)
	}
	for i, f := range frames[1:] {
		if fh, fw := f.Dims(); fh != h || fw != w {
			return nil, fmt.Errorf("%w: frame %d is %dx%d, expected %dx%d",
				ErrShapeMismatch, i+1, fw, fh, w, h)
		}
	}
	if len(frames) != axis.Len() {
		return nil, fmt.Errorf("%w: %d frames, %d energies", ErrAxisLengthMismatch, len(frames), axis.Len())
	}

	s := newEmpty(len(frames), h, w, axis)
	for i, f := range frames {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				s.data[(y*w+x)*s.n+i] = f.At(y, x)
			}
		}
	}
	return s, nil
}

// FromVolume builds a stack from a frame-major volume where the value of
// pixel (x, y) in frame i is data[i*h*w + y*w + x]. The data is copied.
func FromVolume(data []float64, n, h, w int, axis energy.Axis) (*ImageStack, error) {
	if axis.Len() == 0 {
		return nil, fmt.Errorf("%w: axis has no values", ErrInvalidAxis)
	}
	if n <= 0 || h <= 0 || w <= 0 {
		return nil, fmt.Errorf("%w: invalid volume shape (%d, %d, %d)", ErrShapeMismatch, n, h, w)
	}
	if len(data) != n*h*w {
		return nil, fmt.Errorf("%w: volume has %d values, shape (%d, %d, %d) needs %d",
			ErrShapeMismatch, len(data), n, h, w, n*h*w)
	}
	if n != axis.Len() {
		return nil, fmt.Errorf("%w: %d frames, %d energies", ErrAxisLengthMismatch, n, axis.Len())
	}

	s := newEmpty(n, h, w, axis)
	size := h * w
	for i := 0; i < n; i++ {
		frame := data[i*size : (i+1)*size]
		for p, v := range frame {
			s.data[p*n+i] = v
		}
	}
	return s, nil
}

// FromImages builds a stack from decoded images of identical bounds.
// Gray images keep their stored detector counts; color images are
// converted to 16-bit gray. Values are not normalized.
func FromImages(imgs []image.Image, axis energy.Axis) (*ImageStack, error) {
	frames := make([]mat.Matrix, len(imgs))
	for i, img := range imgs {
		frames[i] = imageMatrix(img)
	}
	return New(frames, axis)
}

func newEmpty(n, h, w int, axis energy.Axis) *ImageStack {
	return &ImageStack{
		data:     make([]float64, n*h*w),
		n:        n,
		height:   h,
		width:    w,
		axis:     axis,
		energies: axis.Values(),
	}
}

// Dims returns the frame count, height and width
func (s *ImageStack) Dims() (n, h, w int) { return s.n, s.height, s.width }

// Len returns the number of frames
func (s *ImageStack) Len() int { return s.n }

// Axis returns the energy axis
func (s *ImageStack) Axis() energy.Axis { return s.axis }

// Bounds returns the pixel rectangle of every frame
func (s *ImageStack) Bounds() image.Rectangle { return image.Rect(0, 0, s.width, s.height) }

// Frame returns a read-only view of frame i
func (s *ImageStack) Frame(i int) (Frame, error) {
	if i < 0 || i >= s.n {
		return Frame{}, fmt.Errorf("%w: frame %d not in [0,%d)", ErrIndexOutOfRange, i, s.n)
	}
	return Frame{s: s, index: i}, nil
}

// ExtractCurve returns the raw I(V) curve of pixel (x, y). The bounds are
// checked once; the samples are then copied in one pass.
func (s *ImageStack) ExtractCurve(x, y int) (models.Curve, error) {
	if x < 0 || x >= s.width || y < 0 || y >= s.height {
		return models.Curve{}, fmt.Errorf("%w: (%d,%d) outside %dx%d", ErrOutOfBounds, x, y, s.width, s.height)
	}
	base := (y*s.width + x) * s.n
	intensities := make([]float64, s.n)
	copy(intensities, s.data[base:base+s.n])
	return models.NewCurve(x, y, models.Raw, s.energies, intensities)
}

// ExtractBoxCurve returns the I(V) curve integrated over the square box of
// side 2*radius+1 centred on (x, y): intensity i is the sum of the box in
// frame i. The centre must lie inside the frame; a box crossing the frame
// edge is clipped to it. Radius 0 is the single-pixel curve.
func (s *ImageStack) ExtractBoxCurve(x, y, radius int) (models.Curve, error) {
	if radius < 0 {
		return models.Curve{}, fmt.Errorf("%w: %d", ErrInvalidRadius, radius)
	}
	if !image.Pt(x, y).In(s.Bounds()) {
		return models.Curve{}, fmt.Errorf("%w: (%d,%d) outside %dx%d", ErrOutOfBounds, x, y, s.width, s.height)
	}

	box := image.Rect(x-radius, y-radius, x+radius+1, y+radius+1).Intersect(s.Bounds())
	sums := make([]float64, s.n)
	for py := box.Min.Y; py < box.Max.Y; py++ {
		for px := box.Min.X; px < box.Max.X; px++ {
			base := (py*s.width + px) * s.n
			floats.Add(sums, s.data[base:base+s.n])
		}
	}

	c, err := models.NewCurve(x, y, models.Raw, s.energies, sums)
	if err != nil {
		return models.Curve{}, err
	}
	c.Radius = radius
	return c, nil
}

// Crop returns a new stack restricted to r, which must lie within the
// frame bounds and be non-empty. The energy axis is shared.
func (s *ImageStack) Crop(r image.Rectangle) (*ImageStack, error) {
	if r.Empty() {
		return nil, fmt.Errorf("%w: crop region %v is empty", ErrOutOfBounds, r)
	}
	if !r.In(s.Bounds()) {
		return nil, fmt.Errorf("%w: crop region %v extends beyond %v", ErrOutOfBounds, r, s.Bounds())
	}

	out := newEmpty(s.n, r.Dy(), r.Dx(), s.axis)
	for y := 0; y < out.height; y++ {
		src := ((r.Min.Y+y)*s.width + r.Min.X) * s.n
		dst := y * out.width * s.n
		copy(out.data[dst:dst+out.width*s.n], s.data[src:src+out.width*s.n])
	}
	return out, nil
}

func (s *ImageStack) String() string {
	return fmt.Sprintf("image stack %d frames of %dx%d, %s", s.n, s.width, s.height, s.axis)
}

// imageMatrix adapts an image to mat.Matrix. 8 and 16-bit gray images
// keep their stored counts; other color models go through 16-bit gray.
func imageMatrix(img image.Image) mat.Matrix {
	return grayMatrix{img: img}
}

type grayMatrix struct {
	img image.Image
}

func (g grayMatrix) Dims() (r, c int) {
	b := g.img.Bounds()
	return b.Dy(), b.Dx()
}

func (g grayMatrix) At(i, j int) float64 {
	b := g.img.Bounds()
	if i < 0 || i >= b.Dy() || j < 0 || j >= b.Dx() {
		panic(mat.ErrIndexOutOfRange)
	}
	x, y := b.Min.X+j, b.Min.Y+i
	switch img := g.img.(type) {
	case *image.Gray:
		return float64(img.GrayAt(x, y).Y)
	case *image.Gray16:
		return float64(img.Gray16At(x, y).Y)
	default:
		return float64(color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y)
	}
}

func (g grayMatrix) T() mat.Matrix { return mat.Transpose{Matrix: g} }
