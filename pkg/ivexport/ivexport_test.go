package ivexport

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"leemiv/internal/models"
	"leemiv/pkg/smoothing"
)

func testCurve(t *testing.T, x, y int, intensities []float64) models.Curve {
	t.Helper()
	energies := make([]float64, len(intensities))
	for i := range energies {
		energies[i] = 2.5 + 0.5*float64(i)
	}
	c, err := models.NewCurve(x, y, models.Raw, energies, intensities)
	if err != nil {
		t.Fatalf("Failed to create curve: %v", err)
	}
	return c
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, testCurve(t, 1, 1, []float64{10, 20.25, 15})); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	want := "2.5\t10\n3\t20.25\n3.5\t15\n"
	if buf.String() != want {
		t.Errorf("Expected %q, got %q", want, buf.String())
	}
}

func TestWriteAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	curves := []models.Curve{
		testCurve(t, 0, 0, []float64{10, 20, 15, 25, 30}),
		testCurve(t, 2, 1, []float64{1, 1, 1, 1, 1}),
	}

	paths, err := WriteAll(dir, "iv", curves, Options{})
	if err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("Expected 2 files, got %d", len(paths))
	}
	if filepath.Base(paths[1]) != "iv1.txt" {
		t.Errorf("Expected iv1.txt, got %s", filepath.Base(paths[1]))
	}

	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 5 {
		t.Fatalf("Expected 5 lines, got %d", len(lines))
	}
	if lines[1] != "3\t20" {
		t.Errorf("Expected second line %q, got %q", "3\t20", lines[1])
	}
}

func TestWriteAllSmoothed(t *testing.T) {
	dir := t.TempDir()
	curves := []models.Curve{testCurve(t, 1, 1, []float64{10, 20, 15, 25, 30})}
	opts := Options{
		Smooth:    true,
		Smoothing: smoothing.Config{Algorithm: smoothing.MovingAverage, Window: 3, Edge: smoothing.EdgeTruncate},
	}

	paths, err := WriteAll(dir, "s", curves, opts)
	if err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}
	data, _ := os.ReadFile(paths[0])
	first := strings.SplitN(string(data), "\n", 2)[0]
	if first != "2.5\t15" {
		t.Errorf("Expected smoothed first line %q, got %q", "2.5\t15", first)
	}

	// Input curves are never modified by export
	if curves[0].At(0).Intensity != 10 {
		t.Errorf("Expected input curve to keep 10, got %v", curves[0].At(0).Intensity)
	}

	opts.Smoothing.Window = 9
	if _, err := WriteAll(dir, "bad", curves, opts); !errors.Is(err, smoothing.ErrInvalidWindow) {
		t.Errorf("Expected ErrInvalidWindow, got %v", err)
	}
}
