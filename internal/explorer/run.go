package explorer

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"leemiv/internal/models"
	"leemiv/pkg/interaction"
	"leemiv/pkg/session"
)

// Options configures the explorer
type Options struct {
	// Interval is the preview frame interval
	Interval time.Duration

	// OutDir and OutName name the files written by the export key
	OutDir  string
	OutName string

	// SmoothExport smooths exported curves with the active setting
	SmoothExport bool

	// BoxRadius, when positive, integrates curves over a box around the
	// cursor, as for LEED spots
	BoxRadius int
}

// Run shows the explorer until the user quits or ctx is done. The
// interaction controller runs alongside the terminal program and feeds it
// previews, commits and errors.
func Run(ctx context.Context, sess *session.Session, opts Options) error {
	if opts.OutName == "" {
		opts.OutName = "iv"
	}
	if opts.OutDir == "" {
		opts.OutDir = "."
	}

	var p *tea.Program
	ctrl := interaction.New(sess, interaction.Options{
		Interval:  opts.Interval,
		BoxRadius: opts.BoxRadius,
		OnPreview: func(c models.Curve) { p.Send(previewMsg{curve: c}) },
		OnCommit:  func(c models.Curve) { p.Send(commitMsg{curve: c}) },
		OnError:   func(e *interaction.EventError) { p.Send(errorMsg{err: e}) },
	})

	m, err := NewModel(sess, ctrl, opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p = tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseAllMotion(), tea.WithContext(ctx))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ctrl.Run(gctx)
	})
	g.Go(func() error {
		// Quitting the program stops the controller
		defer cancel()
		if _, err := p.Run(); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})
	return g.Wait()
}
