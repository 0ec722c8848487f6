// Package loader reads a LEEM or LEED experiment directory into an image
// stack.
//
// Two data formats are supported. Raw frames are binary files ending in a
// block of width*height unsigned 8 or 16 bit samples; whatever precedes
// the block is a detector header whose length is inferred from the file
// size. Image frames are PNG, JPEG or TIFF files decoded to gray.
//
// Frames are ordered by the number embedded in their filename, and are
// decoded in parallel with a bounded number of workers.
package loader

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/image/tiff"
	"golang.org/x/sync/errgroup"

	"leemiv/internal/models"
	"leemiv/pkg/energy"
	"leemiv/pkg/stack"
)

var (
	// ErrNoFrames is returned when the directory holds no matching files
	ErrNoFrames = errors.New("no frame files found")

	// ErrShortFile is returned when a raw file is smaller than its pixel block
	ErrShortFile = errors.New("raw file smaller than pixel block")

	// ErrUnsupportedBits is returned for bit depths other than 8 and 16
	ErrUnsupportedBits = errors.New("unsupported bit depth")

	// ErrUnknownFormat is returned for an unrecognized data format or extension
	ErrUnknownFormat = errors.New("unknown data format")
)

// Format selects how frame files are decoded
type Format int

const (
	Raw Format = iota
	Image
)

func (f Format) String() string {
	if f == Image {
		return "image"
	}
	return "raw"
}

// ParseFormat accepts "raw" or "image" in any case
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "raw", "dat":
		return Raw, nil
	case "image", "img":
		return Image, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ParseByteOrder accepts "L" for little-endian and "B" for big-endian
func ParseByteOrder(s string) (binary.ByteOrder, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "L", "LITTLE", "":
		return binary.LittleEndian, nil
	case "B", "BIG":
		return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("unknown byte order %q: expected L or B", s)
}

// Params holds the loading parameters for one experiment
type Params struct {
	// Dir is the directory containing the frame files
	Dir string

	// Format selects raw or image decoding
	Format Format

	// Ext is the frame file extension including the dot. Raw data
	// defaults to ".dat". For images ".tif" and ".tiff" fall back to each
	// other when no file matches.
	Ext string

	// Width and Height are the frame dimensions of raw data
	Width  int
	Height int

	// Bits is the raw sample depth, 8 or 16; 0 means 16
	Bits int

	// ByteOrder of raw 16-bit samples; nil means little-endian
	ByteOrder binary.ByteOrder

	// NumCores bounds the number of frames decoded at once; 0 uses all CPUs
	NumCores int

	// Logger receives progress messages; nil disables them
	Logger *log.Logger
}

// Loader reads frame files described by Params
type Loader struct {
	params *Params
}

// New creates a loader. The params are not copied.
func New(params *Params) *Loader {
	return &Loader{params: params}
}

func (l *Loader) logf(format string, args ...any) {
	if l.params.Logger != nil {
		l.params.Logger.Printf(format, args...)
	}
}

// Files lists the frame files in load order. Hidden files are skipped.
func (l *Loader) Files() ([]models.FrameFile, error) {
	exts := l.extensions()
	var files []models.FrameFile
	for _, ext := range exts {
		found, err := l.list(ext)
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			files = found
			break
		}
		l.logf("No %s files in %s", ext, l.params.Dir)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s in %s", ErrNoFrames, strings.Join(exts, " or "), l.params.Dir)
	}

	// Order by the frame number in the filename, then by name
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Number != files[j].Number {
			return files[i].Number < files[j].Number
		}
		return files[i].Filename < files[j].Filename
	})
	for i := range files {
		files[i].Index = i
	}
	return files, nil
}

func (l *Loader) extensions() []string {
	ext := strings.ToLower(l.params.Ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	switch {
	case ext == "" && l.params.Format == Raw:
		return []string{".dat"}
	case ext == ".tif":
		return []string{".tif", ".tiff"}
	case ext == ".tiff":
		return []string{".tiff", ".tif"}
	}
	return []string{ext}
}

func (l *Loader) list(ext string) ([]models.FrameFile, error) {
	entries, err := os.ReadDir(l.params.Dir)
	if err != nil {
		return nil, fmt.Errorf("error reading data directory: %w", err)
	}

	var files []models.FrameFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if strings.ToLower(filepath.Ext(name)) != ext {
			continue
		}
		files = append(files, models.FrameFile{
			Filename: name,
			Path:     filepath.Join(l.params.Dir, name),
			Number:   extractNumber(name),
		})
	}
	return files, nil
}

// extractNumber returns the digits of a filename read as one integer, or 0
func extractNumber(filename string) int {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	var digits strings.Builder
	for _, c := range base {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	num, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return num
}

// Load decodes every frame and builds a stack paired with axis. It fails
// as a whole if any frame fails.
func (l *Loader) Load(ctx context.Context, axis energy.Axis) (*stack.ImageStack, error) {
	files, err := l.Files()
	if err != nil {
		return nil, err
	}
	l.logf("Found %d %s frames in %s, first is %s",
		len(files), l.params.Format, l.params.Dir, files[0].Filename)

	if len(files) != axis.Len() {
		return nil, fmt.Errorf("%w: %d frame files, %d energies",
			stack.ErrAxisLengthMismatch, len(files), axis.Len())
	}

	switch l.params.Format {
	case Raw:
		return l.loadRaw(ctx, files, axis)
	case Image:
		return l.loadImages(ctx, files, axis)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownFormat, int(l.params.Format))
}

func (l *Loader) group(ctx context.Context) (*errgroup.Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	n := l.params.NumCores
	if n <= 0 {
		n = runtime.NumCPU()
	}
	g.SetLimit(n)
	return g, gctx
}

func (l *Loader) loadRaw(ctx context.Context, files []models.FrameFile, axis energy.Axis) (*stack.ImageStack, error) {
	w, h := l.params.Width, l.params.Height
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("raw data needs a positive width and height, got %dx%d", w, h)
	}
	bits := l.params.Bits
	if bits == 0 {
		bits = 16
	}
	order := l.params.ByteOrder
	if order == nil {
		order = binary.LittleEndian
	}

	size := w * h
	volume := make([]float64, len(files)*size)
	headers := make([]int, len(files))

	g, gctx := l.group(ctx)
	for _, f := range files {
		f := f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(f.Path)
			if err != nil {
				return fmt.Errorf("failed to read frame %s: %w", f.Filename, err)
			}
			header, err := DecodeRaw(data, w, h, bits, order, volume[f.Index*size:(f.Index+1)*size])
			if err != nil {
				return fmt.Errorf("failed to decode frame %s: %w", f.Filename, err)
			}
			headers[f.Index] = header
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	l.logf("Calculated header length of first file: %d bytes", headers[0])
	l.logf("Creating %d x %d x %d stack", len(files), h, w)
	return stack.FromVolume(volume, len(files), h, w, axis)
}

// DecodeRaw decodes the pixel block at the end of data into dst, which
// must hold width*height values, and returns the header length.
func DecodeRaw(data []byte, width, height, bits int, order binary.ByteOrder, dst []float64) (int, error) {
	var bytesPerPixel int
	switch bits {
	case 8:
		bytesPerPixel = 1
	case 16:
		bytesPerPixel = 2
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedBits, bits)
	}

	n := width * height
	if len(dst) != n {
		return 0, fmt.Errorf("destination holds %d values, frame needs %d", len(dst), n)
	}
	header := len(data) - bytesPerPixel*n
	if header < 0 {
		return 0, fmt.Errorf("%w: %d bytes, need %d", ErrShortFile, len(data), bytesPerPixel*n)
	}

	px := data[header:]
	if bytesPerPixel == 1 {
		for i, b := range px {
			dst[i] = float64(b)
		}
		return header, nil
	}
	for i := range dst {
		dst[i] = float64(order.Uint16(px[2*i:]))
	}
	return header, nil
}

func (l *Loader) loadImages(ctx context.Context, files []models.FrameFile, axis energy.Axis) (*stack.ImageStack, error) {
	imgs := make([]image.Image, len(files))

	g, gctx := l.group(ctx)
	for _, f := range files {
		f := f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := LoadImage(f.Path)
			if err != nil {
				return fmt.Errorf("failed to load image %s: %w", f.Filename, err)
			}
			imgs[f.Index] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b := imgs[0].Bounds()
	l.logf("Loaded %d frames with dimensions %dx%d", len(imgs), b.Dx(), b.Dy())
	return stack.FromImages(imgs, axis)
}

// LoadImage decodes a PNG, JPEG or TIFF file chosen by extension
func LoadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return DecodeImage(file, filepath.Ext(path))
}

// DecodeImage decodes r as the format named by ext
func DecodeImage(r io.Reader, ext string) (image.Image, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "png":
		return png.Decode(r)
	case "jpg", "jpeg":
		return jpeg.Decode(r)
	case "tif", "tiff":
		return tiff.Decode(r)
	}
	return nil, fmt.Errorf("%w: extension %q", ErrUnknownFormat, ext)
}
