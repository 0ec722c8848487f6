package visualization

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"leemiv/pkg/energy"
	"leemiv/pkg/stack"
)

// testStack builds a stack of depth frames where pixel (x, y) of frame z
// holds x + 10y + 100z
func testStack(t *testing.T, width, height, depth int) *stack.ImageStack {
	t.Helper()
	data := make([]float64, width*height*depth)
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				data[z*width*height+y*width+x] = float64(x + 10*y + 100*z)
			}
		}
	}
	axis, err := energy.FromRange(1, float64(depth), 1)
	if err != nil {
		t.Fatalf("Failed to create axis: %v", err)
	}
	stk, err := stack.FromVolume(data, depth, height, width, axis)
	if err != nil {
		t.Fatalf("Failed to create stack: %v", err)
	}
	return stk
}

func gray(t *testing.T, img image.Image, x, y int) uint16 {
	t.Helper()
	g, ok := img.(*image.Gray16)
	if !ok {
		t.Fatalf("Expected *image.Gray16, got %T", img)
	}
	return g.Gray16At(x, y).Y
}

// TestExtractSlice verifies the dimensions and scaling of each axis
func TestExtractSlice(t *testing.T) {
	width, height, depth := 4, 3, 5
	viewer := NewViewer(testStack(t, width, height, depth))

	testCases := []struct {
		axis          string
		position      int
		width, height int
	}{
		{"e", 2, width, height},
		{"x", 1, depth, height},
		{"y", 2, width, depth},
	}

	for _, tc := range testCases {
		img, err := viewer.ExtractSlice(tc.axis, tc.position)
		if err != nil {
			t.Fatalf("ExtractSlice(%s, %d) failed: %v", tc.axis, tc.position, err)
		}
		b := img.Bounds()
		if b.Dx() != tc.width || b.Dy() != tc.height {
			t.Errorf("Axis %s: expected %dx%d, got %dx%d", tc.axis, tc.width, tc.height, b.Dx(), b.Dy())
		}
	}

	// Along x the energy runs left to right, so the brightest pixel is the
	// last frame of the bottom row
	img, _ := viewer.ExtractSlice("x", 0)
	if v := gray(t, img, depth-1, height-1); v != 65535 {
		t.Errorf("Expected 65535 at the last energy, got %d", v)
	}
	if v := gray(t, img, 0, 0); v != 0 {
		t.Errorf("Expected 0 at the first energy, got %d", v)
	}

	// Along y the energy runs top to bottom
	img, _ = viewer.ExtractSlice("y", 0)
	if v := gray(t, img, width-1, depth-1); v != 65535 {
		t.Errorf("Expected 65535 at the last energy, got %d", v)
	}
}

func TestExtractSliceErrors(t *testing.T) {
	viewer := NewViewer(testStack(t, 4, 3, 5))

	testCases := []struct {
		axis     string
		position int
	}{
		{"x", 4},
		{"y", 3},
		{"e", 5},
		{"x", -1},
		{"w", 0},
	}
	for _, tc := range testCases {
		if _, err := viewer.ExtractSlice(tc.axis, tc.position); err == nil {
			t.Errorf("ExtractSlice(%s, %d): expected error", tc.axis, tc.position)
		}
	}
}

func TestExtractRegion(t *testing.T) {
	viewer := NewViewer(testStack(t, 4, 3, 5))

	region, err := viewer.ExtractRegion(1, 1, 2, 2)
	if err != nil {
		t.Fatalf("ExtractRegion failed: %v", err)
	}
	n, h, w := region.Dims()
	if n != 5 || h != 2 || w != 2 {
		t.Fatalf("Expected 5x2x2 region, got %dx%dx%d", n, h, w)
	}
	c, _ := region.ExtractCurve(0, 0)
	if c.At(3).Intensity != 1+10+300 {
		t.Errorf("Expected region origin to be pixel (1,1), got %v", c.At(3).Intensity)
	}

	if _, err := viewer.ExtractRegion(3, 0, 2, 1); err == nil {
		t.Error("Expected error for region past the edge")
	}
	if _, err := viewer.ExtractRegion(0, 0, 0, 1); err == nil {
		t.Error("Expected error for empty region")
	}
}

func TestSaveSliceSequence(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "frames")
	viewer := NewViewer(testStack(t, 4, 3, 5))

	count, err := viewer.SaveSliceSequence("e", dir)
	if err != nil {
		t.Fatalf("SaveSliceSequence failed: %v", err)
	}
	if count != 5 {
		t.Errorf("Expected 5 frames, got %d", count)
	}

	path := filepath.Join(dir, "frame_002_3.00eV.png")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Expected %s: %v", path, err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Failed to decode saved frame: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 3 {
		t.Errorf("Expected 4x3 frame, got %dx%d", b.Dx(), b.Dy())
	}

	count, err = viewer.SaveSliceSequence("Y", dir)
	if err != nil || count != 3 {
		t.Errorf("Expected 3 row cuts, got %d (%v)", count, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "slice_y_000.png")); err != nil {
		t.Errorf("Expected row cut file: %v", err)
	}

	if _, err := viewer.SaveSliceSequence("q", dir); err == nil {
		t.Error("Expected error for invalid axis")
	}
}

func TestSaveSliceJPEG(t *testing.T) {
	viewer := NewViewer(testStack(t, 4, 3, 2))
	img, _ := viewer.ExtractSlice("e", 0)
	path := filepath.Join(t.TempDir(), "frame.jpg")
	if err := viewer.SaveSlice(img, path); err != nil {
		t.Fatalf("SaveSlice failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		t.Errorf("Expected non-empty JPEG, got %v", err)
	}
}
