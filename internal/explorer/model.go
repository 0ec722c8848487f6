// Package explorer is the terminal front end of leemiv. It shows one
// energy frame of the loaded stack as a shaded character map, previews the
// smoothed I(V) curve under the pointer and commits raw curves on click.
package explorer

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"leemiv/internal/models"
	"leemiv/pkg/interaction"
	"leemiv/pkg/ivexport"
	"leemiv/pkg/session"
	"leemiv/pkg/smoothing"
	"leemiv/pkg/stack"
)

// Rows used above the map (title, frame line)
const headerRows = 2

// Rows kept free below the map for the curve panel and help
const footerRows = 10

type previewMsg struct{ curve models.Curve }

type commitMsg struct{ curve models.Curve }

type errorMsg struct{ err *interaction.EventError }

var algorithms = []smoothing.Algorithm{
	smoothing.MovingAverage,
	smoothing.Hann,
	smoothing.Hamming,
	smoothing.Blackman,
	smoothing.Triangular,
	smoothing.SavitzkyGolay,
}

var edges = []smoothing.EdgePolicy{
	smoothing.EdgeTruncate,
	smoothing.EdgeShrink,
	smoothing.EdgeMirror,
	smoothing.EdgeClamp,
}

// Model is the bubbletea model of the explorer
type Model struct {
	sess *session.Session
	ctrl *interaction.Controller
	stk  *stack.ImageStack
	opts Options

	width, height int
	grid          grid

	frame  int
	lo, hi float64 // intensity range of the shown frame

	x, y int // cursor in stack pixels

	preview    models.Curve
	hasPreview bool
	committed  []models.Curve

	status string
	err    error
}

// NewModel creates a model over the stack loaded in sess. Pointer and key
// events are forwarded to ctrl.
func NewModel(sess *session.Session, ctrl *interaction.Controller, opts Options) (Model, error) {
	stk := sess.Stack()
	if stk == nil {
		return Model{}, session.ErrNoStackLoaded
	}
	_, h, w := stk.Dims()
	m := Model{
		sess: sess,
		ctrl: ctrl,
		stk:  stk,
		opts: opts,
		x:    w / 2,
		y:    h / 2,
	}
	m.resize(80, 24)
	m.setFrame(0)
	return m, nil
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	m.ctrl.Move(m.x, m.y)
	return nil
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	_, h, w := m.stk.Dims()
	m.grid = newGrid(w, h, max(1, width-4), max(1, height-headerRows-footerRows))
}

func (m *Model) setFrame(i int) {
	n := m.stk.Len()
	m.frame = (i%n + n) % n
	f, err := m.stk.Frame(m.frame)
	if err != nil {
		m.err = err
		return
	}
	m.lo, m.hi = f.Range()
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case tea.MouseMsg:
		c, r := msg.X-2, msg.Y-headerRows
		if !m.grid.contains(c, r) {
			return m, nil
		}
		x, y := m.grid.pixel(c, r)
		switch {
		case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
			m.x, m.y = x, y
			m.ctrl.Click(x, y)
		case msg.Action == tea.MouseActionMotion:
			m.x, m.y = x, y
			m.ctrl.Move(x, y)
		case msg.Button == tea.MouseButtonWheelUp:
			m.setFrame(m.frame + 1)
		case msg.Button == tea.MouseButtonWheelDown:
			m.setFrame(m.frame - 1)
		}

	case tea.KeyMsg:
		return m.handleKey(msg)

	case previewMsg:
		m.preview, m.hasPreview = msg.curve, true
		m.err = nil

	case commitMsg:
		m.committed = append(m.committed, msg.curve)
		m.status = fmt.Sprintf("Committed (%d,%d)", msg.curve.X, msg.curve.Y)

	case errorMsg:
		m.err = msg.err
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	_, h, w := m.stk.Dims()
	// One cell step in pixels
	sx, sy := max(1, w/m.grid.cols), max(1, h/m.grid.rows)

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "left", "h":
		m.moveCursor(m.x-sx, m.y)
	case "right", "l":
		m.moveCursor(m.x+sx, m.y)
	case "up", "k":
		m.moveCursor(m.x, m.y-sy)
	case "down", "j":
		m.moveCursor(m.x, m.y+sy)
	case "enter", " ":
		m.ctrl.Click(m.x, m.y)
	case "]":
		m.setFrame(m.frame + 1)
	case "[":
		m.setFrame(m.frame - 1)
	case "s":
		m.changeSmoothing(func(c *smoothing.Config) { c.Algorithm = next(algorithms, c.Algorithm) })
	case "m":
		m.changeSmoothing(func(c *smoothing.Config) { c.Edge = next(edges, c.Edge) })
	case "+", "=":
		m.changeSmoothing(func(c *smoothing.Config) { c.Window++ })
	case "-":
		m.changeSmoothing(func(c *smoothing.Config) { c.Window-- })
	case "c":
		m.sess.ClearCommitted()
		m.committed = nil
		m.status = "Cleared committed curves"
	case "e":
		m.export()
	}
	return m, nil
}

func (m *Model) moveCursor(x, y int) {
	_, h, w := m.stk.Dims()
	m.x = max(0, min(w-1, x))
	m.y = max(0, min(h-1, y))
	m.ctrl.Move(m.x, m.y)
}

func (m *Model) changeSmoothing(edit func(*smoothing.Config)) {
	cfg := m.sess.Smoothing()
	edit(&cfg)
	if cfg.Algorithm == smoothing.SavitzkyGolay && cfg.Order >= cfg.Window {
		cfg.Order = max(0, cfg.Window-1)
	}
	if err := m.sess.SetSmoothing(cfg); err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.status = "Smoothing: " + cfg.String()
	m.ctrl.Move(m.x, m.y)
}

func (m *Model) export() {
	curves := m.sess.Committed()
	if len(curves) == 0 {
		m.status = "Nothing to export"
		return
	}
	cfg := m.sess.Smoothing()
	paths, err := ivexport.WriteAll(m.opts.OutDir, m.opts.OutName, curves, ivexport.Options{
		Smooth:    m.opts.SmoothExport,
		Smoothing: cfg,
	})
	if err != nil {
		m.err = err
		return
	}
	m.status = fmt.Sprintf("Wrote %d curves to %s", len(paths), filepath.Dir(paths[0]))
}

func next[T comparable](list []T, cur T) T {
	for i, v := range list {
		if v == cur {
			return list[(i+1)%len(list)]
		}
	}
	return list[0]
}

// View implements tea.Model
func (m Model) View() string {
	var b strings.Builder

	n, h, w := m.stk.Dims()
	mode := "pixel"
	if m.opts.BoxRadius > 0 {
		mode = fmt.Sprintf("box r=%d", m.opts.BoxRadius)
	}
	b.WriteString(titleStyle.Render("leemiv") + " " +
		labelStyle.Render(fmt.Sprintf("%d frames, %dx%d px, %s", n, w, h, mode)) + "\n")
	f, _ := m.stk.Frame(m.frame)
	b.WriteString(fmt.Sprintf("frame %d/%d  E = %.2f eV  cursor (%d,%d)\n", m.frame+1, n, f.Energy(), m.x, m.y))

	b.WriteString(m.renderMap(f))
	b.WriteString(m.renderCurves())
	b.WriteString(m.renderStatus())
	return b.String()
}

func (m Model) renderMap(f stack.Frame) string {
	cc, cr := m.grid.cell(m.x, m.y)
	var b strings.Builder
	for r := 0; r < m.grid.rows; r++ {
		b.WriteString("  ")
		var row strings.Builder
		for c := 0; c < m.grid.cols; c++ {
			if c == cc && r == cr {
				b.WriteString(row.String())
				row.Reset()
				b.WriteString(cursorStyle.Render("+"))
				continue
			}
			x, y := m.grid.pixel(c, r)
			row.WriteRune(shade(f.At(y, x), m.lo, m.hi))
		}
		b.WriteString(row.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func (m Model) renderCurves() string {
	width := max(10, m.width-8)
	var lines []string

	if m.hasPreview {
		v := m.preview.Intensities()
		lo, hi := floats.Min(v), floats.Max(v)
		mean, std := stat.MeanStdDev(v, nil)
		lines = append(lines,
			labelStyle.Render(fmt.Sprintf("preview (%d,%d) %s", m.preview.X, m.preview.Y, m.sess.Smoothing())),
			previewStyle.Render(sparkline(v, width, lo, hi)),
			fmt.Sprintf("min %.1f  max %.1f  mean %.1f  std %.1f", lo, hi, mean, std))
	} else {
		lines = append(lines, labelStyle.Render("no preview yet"))
	}

	lines = append(lines, labelStyle.Render(fmt.Sprintf("committed: %d", len(m.committed))))
	if k := len(m.committed); k > 0 {
		last := m.committed[k-1]
		v := last.Intensities()
		lines = append(lines, commitStyle.Render(sparkline(v, width, floats.Min(v), floats.Max(v))))
	}
	return panelStyle.Render(strings.Join(lines, "\n")) + "\n"
}

func (m Model) renderStatus() string {
	var b strings.Builder
	if m.err != nil {
		msg := m.err.Error()
		var ev *interaction.EventError
		if errors.As(m.err, &ev) && errors.Is(ev, stack.ErrOutOfBounds) {
			msg = fmt.Sprintf("(%d,%d) is outside the image", ev.X, ev.Y)
		}
		b.WriteString(errorStyle.Render(msg) + "\n")
	} else if m.status != "" {
		b.WriteString(m.status + "\n")
	}

	st := m.ctrl.Stats()
	b.WriteString(helpStyle.Render(fmt.Sprintf(
		"moves %d  previews %d  commits %d  errors %d",
		st.MovesReceived, st.PreviewsPublished, st.Commits, st.Errors)) + "\n")
	b.WriteString(helpStyle.Render("arrows move  enter commit  [ ] frame  s algorithm  m edge  +/- window  c clear  e export  q quit"))
	return b.String()
}
