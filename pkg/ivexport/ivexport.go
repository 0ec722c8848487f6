// Package ivexport writes I(V) curves as tab-delimited text, one
// "energy<TAB>intensity" line per sample.
package ivexport

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"leemiv/internal/models"
	"leemiv/pkg/smoothing"
)

// Options controls WriteAll
type Options struct {
	// Smooth applies Smoothing to each curve before writing
	Smooth bool

	// Smoothing is the filter setting used when Smooth is set
	Smoothing smoothing.Config

	// Smoother replaces the default filter
	Smoother smoothing.Smoother
}

// Write writes c to w
func Write(w io.Writer, c models.Curve) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 48)
	for i := 0; i < c.Len(); i++ {
		s := c.At(i)
		buf = strconv.AppendFloat(buf[:0], s.Energy, 'g', -1, 64)
		buf = append(buf, '\t')
		buf = strconv.AppendFloat(buf, s.Intensity, 'g', -1, 64)
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes c to path, replacing any existing file
func WriteFile(path string, c models.Curve) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating output file: %w", err)
	}
	if err := Write(f, c); err != nil {
		f.Close()
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return f.Close()
}

// WriteAll writes each curve to dir/<name><index>.txt and returns the
// paths written, in curve order. The directory is created if needed.
func WriteAll(dir, name string, curves []models.Curve, opts Options) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("error creating output directory: %w", err)
	}

	smoother := opts.Smoother
	if smoother == nil {
		smoother = smoothing.Default
	}

	paths := make([]string, 0, len(curves))
	for i, c := range curves {
		if opts.Smooth {
			sc, err := smoother.Smooth(c, opts.Smoothing)
			if err != nil {
				return paths, fmt.Errorf("smoothing curve %d at (%d,%d): %w", i, c.X, c.Y, err)
			}
			c = sc
		}

		path := filepath.Join(dir, name+strconv.Itoa(i)+".txt")
		if err := WriteFile(path, c); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
