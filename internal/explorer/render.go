package explorer

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// shades runs from dark to bright
var shades = []rune(" .:-=+*#%@")

// bars are the sparkline levels, lowest first
var bars = []rune("▁▂▃▄▅▆▇█")

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#88C0D0"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#81A1C1"))
	cursorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EBCB8B"))
	previewStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A3BE8C"))
	commitStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#D8DEE9"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#BF616A"))
	helpStyle    = lipgloss.NewStyle().Faint(true)
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#4C566A")).Padding(0, 1)
)

// shade maps v within [lo, hi] to a character. A flat range renders as
// the darkest shade.
func shade(v, lo, hi float64) rune {
	if hi <= lo || math.IsNaN(v) {
		return shades[0]
	}
	t := (v - lo) / (hi - lo)
	i := int(t * float64(len(shades)-1))
	return shades[max(0, min(len(shades)-1, i))]
}

// resample averages values into n bins
func resample(values []float64, n int) []float64 {
	if n <= 0 || len(values) == 0 {
		return nil
	}
	if len(values) <= n {
		return append([]float64(nil), values...)
	}
	out := make([]float64, n)
	for b := range out {
		lo := b * len(values) / n
		hi := (b + 1) * len(values) / n
		var acc float64
		for _, v := range values[lo:hi] {
			acc += v
		}
		out[b] = acc / float64(hi-lo)
	}
	return out
}

// sparkline renders values as one row of block characters scaled to
// [lo, hi], at most width runes wide
func sparkline(values []float64, width int, lo, hi float64) string {
	bins := resample(values, width)
	var b strings.Builder
	for _, v := range bins {
		i := 0
		if hi > lo {
			i = int(math.Round((v - lo) / (hi - lo) * float64(len(bars)-1)))
		}
		b.WriteRune(bars[max(0, min(len(bars)-1, i))])
	}
	return b.String()
}

// grid maps terminal cells onto stack pixels
type grid struct {
	cols, rows int // cells
	w, h       int // pixels
}

// newGrid fits a w x h image into at most maxCols x maxRows cells,
// never enlarging it
func newGrid(w, h, maxCols, maxRows int) grid {
	return grid{
		cols: max(1, min(w, maxCols)),
		rows: max(1, min(h, maxRows)),
		w:    w,
		h:    h,
	}
}

// pixel returns the first stack pixel covered by cell (c, r)
func (g grid) pixel(c, r int) (x, y int) {
	return (c*g.w + g.cols - 1) / g.cols, (r*g.h + g.rows - 1) / g.rows
}

// cell returns the cell showing pixel (x, y)
func (g grid) cell(x, y int) (c, r int) {
	return x * g.cols / g.w, y * g.rows / g.h
}

// contains reports whether cell (c, r) is inside the grid
func (g grid) contains(c, r int) bool {
	return c >= 0 && c < g.cols && r >= 0 && r < g.rows
}
