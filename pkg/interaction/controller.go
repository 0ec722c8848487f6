// Package interaction routes pointer events to an experiment session.
//
// Moves go through a single-slot mailbox: only the latest position is
// kept and at most one preview is computed per frame tick. Clicks go
// through an unbounded FIFO queue and are never dropped. The two paths run
// on separate goroutines, so a flood of moves never delays a click and a
// slow commit never holds back previews.
package interaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"leemiv/internal/models"
)

// DefaultInterval is one frame at 60 Hz
const DefaultInterval = 16 * time.Millisecond

// DefaultMaxErrors bounds the error history kept by a controller
const DefaultMaxErrors = 64

// ErrAlreadyRunning is returned by a second call to Run
var ErrAlreadyRunning = errors.New("controller already running")

// Session is the part of an experiment session the controller drives
type Session interface {
	PreviewAt(x, y int) (models.Curve, error)
	CommitAt(x, y int) (models.Curve, error)

	// Box variants integrate the curve over a square of the given radius
	PreviewBoxAt(x, y, radius int) (models.Curve, error)
	CommitBoxAt(x, y, radius int) (models.Curve, error)
}

// Kind tells which input path produced an event
type Kind int

const (
	MoveEvent Kind = iota
	ClickEvent
)

func (k Kind) String() string {
	if k == ClickEvent {
		return "click"
	}
	return "move"
}

// EventError is a failed preview or commit, tagged with its position
type EventError struct {
	Kind Kind
	X, Y int
	Err  error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("%s at (%d,%d): %v", e.Kind, e.X, e.Y, e.Err)
}

func (e *EventError) Unwrap() error { return e.Err }

// Options configures a controller. Callbacks run on the controller's
// goroutines and should return quickly.
type Options struct {
	// Interval between preview ticks; 0 selects DefaultInterval
	Interval time.Duration

	// Tick replaces the internal ticker when set. Closing it stops
	// previews; clicks are still served until Run returns.
	Tick <-chan time.Time

	// BoxRadius, when positive, integrates previews and commits over the
	// box of side 2*BoxRadius+1 around each position
	BoxRadius int

	// OnPreview receives every published preview
	OnPreview func(models.Curve)

	// OnCommit receives every committed curve, in click order
	OnCommit func(models.Curve)

	// OnError receives every failed event
	OnError func(*EventError)

	// MaxErrors bounds Errors(); 0 selects DefaultMaxErrors
	MaxErrors int
}

// Stats counts controller activity since creation
type Stats struct {
	MovesReceived     uint64
	PreviewsComputed  uint64
	PreviewsPublished uint64
	PreviewsDiscarded uint64
	ClicksReceived    uint64
	Commits           uint64
	Errors            uint64
}

type point struct{ x, y int }

// Controller coalesces moves into previews and serializes clicks into
// commits against one session
type Controller struct {
	sess    Session
	opts    Options
	running atomic.Bool

	moveMu sync.Mutex
	pos    point
	seq    uint64 // bumped on every move
	taken  uint64 // seq of the last position handed to a preview

	clickMu     sync.Mutex
	clicks      []point
	clickSignal chan struct{}

	movesReceived     atomic.Uint64
	previewsComputed  atomic.Uint64
	previewsPublished atomic.Uint64
	previewsDiscarded atomic.Uint64
	clicksReceived    atomic.Uint64
	commits           atomic.Uint64
	errorCount        atomic.Uint64

	errMu sync.Mutex
	errs  []*EventError
}

// New creates a controller for sess
func New(sess Session, opts Options) *Controller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = DefaultMaxErrors
	}
	return &Controller{
		sess:        sess,
		opts:        opts,
		clickSignal: make(chan struct{}, 1),
	}
}

// Move records the latest pointer position. It never blocks.
func (c *Controller) Move(x, y int) {
	c.moveMu.Lock()
	c.pos = point{x, y}
	c.seq++
	c.moveMu.Unlock()
	c.movesReceived.Add(1)
}

// Click queues a commit at (x, y). It never blocks and the click is never
// dropped.
func (c *Controller) Click(x, y int) {
	c.clickMu.Lock()
	c.clicks = append(c.clicks, point{x, y})
	c.clickMu.Unlock()
	c.clicksReceived.Add(1)

	select {
	case c.clickSignal <- struct{}{}:
	default:
	}
}

// Run serves moves and clicks until ctx is done. Clicks queued at that
// point are still committed before Run returns. Cancellation is a normal
// shutdown and yields nil.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.moveLoop(gctx)
		return nil
	})
	g.Go(func() error {
		c.clickLoop(gctx)
		return nil
	})
	return g.Wait()
}

func (c *Controller) moveLoop(ctx context.Context) {
	tick := c.opts.Tick
	if tick == nil {
		t := time.NewTicker(c.opts.Interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-tick:
			if !ok {
				return
			}
			c.previewLatest()
		}
	}
}

// previewLatest computes one preview for the newest unserved position,
// publishing it only if no newer move arrived meanwhile
func (c *Controller) previewLatest() {
	c.moveMu.Lock()
	if c.seq == c.taken {
		c.moveMu.Unlock()
		return
	}
	p, seq := c.pos, c.seq
	c.taken = seq
	c.moveMu.Unlock()

	var curve models.Curve
	var err error
	if r := c.opts.BoxRadius; r > 0 {
		curve, err = c.sess.PreviewBoxAt(p.x, p.y, r)
	} else {
		curve, err = c.sess.PreviewAt(p.x, p.y)
	}
	c.previewsComputed.Add(1)
	if err != nil {
		c.fail(&EventError{Kind: MoveEvent, X: p.x, Y: p.y, Err: err})
		return
	}

	c.moveMu.Lock()
	superseded := c.seq != seq
	c.moveMu.Unlock()
	if superseded {
		c.previewsDiscarded.Add(1)
		return
	}

	c.previewsPublished.Add(1)
	if c.opts.OnPreview != nil {
		c.opts.OnPreview(curve)
	}
}

func (c *Controller) clickLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.drainClicks()
			return
		case <-c.clickSignal:
			c.drainClicks()
		}
	}
}

func (c *Controller) drainClicks() {
	for {
		c.clickMu.Lock()
		if len(c.clicks) == 0 {
			c.clickMu.Unlock()
			return
		}
		p := c.clicks[0]
		c.clicks = c.clicks[1:]
		c.clickMu.Unlock()

		curve, err := c.commit(p)
		if err != nil {
			c.fail(&EventError{Kind: ClickEvent, X: p.x, Y: p.y, Err: err})
			continue
		}
		c.commits.Add(1)
		if c.opts.OnCommit != nil {
			c.opts.OnCommit(curve)
		}
	}
}

func (c *Controller) commit(p point) (models.Curve, error) {
	if r := c.opts.BoxRadius; r > 0 {
		return c.sess.CommitBoxAt(p.x, p.y, r)
	}
	return c.sess.CommitAt(p.x, p.y)
}

func (c *Controller) fail(e *EventError) {
	c.errorCount.Add(1)

	c.errMu.Lock()
	c.errs = append(c.errs, e)
	if len(c.errs) > c.opts.MaxErrors {
		c.errs = c.errs[len(c.errs)-c.opts.MaxErrors:]
	}
	c.errMu.Unlock()

	if c.opts.OnError != nil {
		c.opts.OnError(e)
	}
}

// Errors returns the most recent failures, oldest first
func (c *Controller) Errors() []*EventError {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return append([]*EventError(nil), c.errs...)
}

// Stats returns a snapshot of the activity counters
func (c *Controller) Stats() Stats {
	return Stats{
		MovesReceived:     c.movesReceived.Load(),
		PreviewsComputed:  c.previewsComputed.Load(),
		PreviewsPublished: c.previewsPublished.Load(),
		PreviewsDiscarded: c.previewsDiscarded.Load(),
		ClicksReceived:    c.clicksReceived.Load(),
		Commits:           c.commits.Load(),
		Errors:            c.errorCount.Load(),
	}
}
