// Package visualization renders views of a LEEM image stack to image files:
// single energy frames and energy-position cuts through the stack.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/floats"

	"leemiv/pkg/stack"
)

// Viewer extracts displayable slices from an image stack
type Viewer struct {
	// stk is the stack being viewed; it is never modified
	stk *stack.ImageStack
}

// NewViewer creates a viewer over stk
func NewViewer(stk *stack.ImageStack) *Viewer {
	return &Viewer{stk: stk}
}

// ExtractSlice extracts a 2D slice of the stack along the specified axis.
//
//   - "e" (or "z"): the energy frame at index position, W x H
//   - "x": the column x = position, N x H, one image column per energy
//   - "y": the row y = position, W x N, one image row per energy
//
// Each slice is scaled to the full 16-bit range of its own intensities.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	n, h, w := v.stk.Dims()

	switch strings.ToLower(axis) {
	case "e", "z":
		f, err := v.stk.Frame(position)
		if err != nil {
			return nil, err
		}
		return f.Gray16(), nil

	case "x":
		if position >= w {
			return nil, fmt.Errorf("position %d exceeds width %d", position, w)
		}
		values := make([]float64, 0, n*h)
		for y := 0; y < h; y++ {
			c, err := v.stk.ExtractCurve(position, y)
			if err != nil {
				return nil, err
			}
			values = append(values, c.Intensities()...)
		}
		// values is row-major with energy along the row
		return scaled(values, n, h), nil

	case "y":
		if position >= h {
			return nil, fmt.Errorf("position %d exceeds height %d", position, h)
		}
		values := make([]float64, n*w)
		for x := 0; x < w; x++ {
			c, err := v.stk.ExtractCurve(x, position)
			if err != nil {
				return nil, err
			}
			for i, val := range c.Intensities() {
				values[i*w+x] = val
			}
		}
		return scaled(values, w, n), nil
	}
	return nil, fmt.Errorf("invalid axis: %s (must be e, x, or y)", axis)
}

// scaled maps row-major values of a width x height image into [0, 65535]
func scaled(values []float64, width, height int) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, width, height))
	lo, hi := floats.Min(values), floats.Max(values)
	scale := 0.0
	if hi > lo {
		scale = 65535 / (hi - lo)
	}
	for i, val := range values {
		y := uint16(math.Max(0, math.Min(65535, math.Round((val-lo)*scale))))
		img.SetGray16(i%width, i/width, color.Gray16{Y: y})
	}
	return img
}

// ExtractRegion returns the sub-stack covering the pixel rectangle
// [x0, x0+sizeX) x [y0, y0+sizeY) at every energy
func (v *Viewer) ExtractRegion(x0, y0, sizeX, sizeY int) (*stack.ImageStack, error) {
	if sizeX <= 0 || sizeY <= 0 {
		return nil, fmt.Errorf("region size must be positive, got %dx%d", sizeX, sizeY)
	}
	return v.stk.Crop(image.Rect(x0, y0, x0+sizeX, y0+sizeY))
}

// SaveSlice saves img as PNG, or as JPEG when filename ends in .jpg or .jpeg
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	}
	return png.Encode(file, img)
}

// SaveSliceSequence extracts and saves every slice along the specified
// axis into outputDir and returns the number saved
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) (int, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, err
	}

	n, h, w := v.stk.Dims()
	axis = strings.ToLower(axis)
	var maxPos int
	switch axis {
	case "x":
		maxPos = w
	case "y":
		maxPos = h
	case "e", "z":
		maxPos = n
	default:
		return 0, fmt.Errorf("invalid axis: %s (must be e, x, or y)", axis)
	}

	energies := v.stk.Axis().Values()
	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return pos, err
		}

		name := fmt.Sprintf("slice_%s_%03d.png", axis, pos)
		if axis == "e" || axis == "z" {
			name = fmt.Sprintf("frame_%03d_%.2feV.png", pos, energies[pos])
		}
		if err := v.SaveSlice(img, filepath.Join(outputDir, name)); err != nil {
			return pos, err
		}
	}
	return maxPos, nil
}
