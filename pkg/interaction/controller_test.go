package interaction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"leemiv/internal/models"
)

var errBadPixel = errors.New("bad pixel")

// fakeSession records calls and fails for negative coordinates. When gate
// is set, PreviewAt blocks until it receives from it.
type fakeSession struct {
	mu       sync.Mutex
	previews []point
	commits  []point
	radii    []int
	gate     chan struct{}
	entered  chan struct{}
}

func (f *fakeSession) curve(x, y int, p models.Provenance) models.Curve {
	c, _ := models.NewCurve(x, y, p, []float64{0}, []float64{float64(x + y)})
	return c
}

func (f *fakeSession) PreviewAt(x, y int) (models.Curve, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	f.previews = append(f.previews, point{x, y})
	f.mu.Unlock()
	if x < 0 || y < 0 {
		return models.Curve{}, errBadPixel
	}
	return f.curve(x, y, models.Smoothed), nil
}

func (f *fakeSession) CommitAt(x, y int) (models.Curve, error) {
	f.mu.Lock()
	f.commits = append(f.commits, point{x, y})
	f.mu.Unlock()
	if x < 0 || y < 0 {
		return models.Curve{}, errBadPixel
	}
	return f.curve(x, y, models.Raw), nil
}

func (f *fakeSession) PreviewBoxAt(x, y, radius int) (models.Curve, error) {
	f.mu.Lock()
	f.radii = append(f.radii, radius)
	f.mu.Unlock()
	return f.PreviewAt(x, y)
}

func (f *fakeSession) CommitBoxAt(x, y, radius int) (models.Curve, error) {
	f.mu.Lock()
	f.radii = append(f.radii, radius)
	f.mu.Unlock()
	return f.CommitAt(x, y)
}

func (f *fakeSession) boxRadii() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.radii...)
}

func (f *fakeSession) recorded() (previews, commits []point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]point(nil), f.previews...), append([]point(nil), f.commits...)
}

// harness runs a controller with a manual tick and buffered callback channels
type harness struct {
	ctrl     *Controller
	sess     *fakeSession
	tick     chan time.Time
	previews chan models.Curve
	commits  chan models.Curve
	errs     chan *EventError
	cancel   context.CancelFunc
	done     chan error
}

func startHarness(t *testing.T, sess *fakeSession) *harness {
	t.Helper()
	return startHarnessWith(t, sess, Options{})
}

// startHarnessWith runs the harness with extra options; the tick and
// callbacks are always the harness's own
func startHarnessWith(t *testing.T, sess *fakeSession, opts Options) *harness {
	t.Helper()
	h := &harness{
		sess:     sess,
		tick:     make(chan time.Time),
		previews: make(chan models.Curve, 256),
		commits:  make(chan models.Curve, 256),
		errs:     make(chan *EventError, 256),
		done:     make(chan error, 1),
	}
	opts.Tick = h.tick
	opts.OnPreview = func(c models.Curve) { h.previews <- c }
	opts.OnCommit = func(c models.Curve) { h.commits <- c }
	opts.OnError = func(e *EventError) { h.errs <- e }
	h.ctrl = New(sess, opts)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.ctrl.Run(ctx) }()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	h.cancel = nil
	<-h.done
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for %s", what)
		var zero T
		return zero
	}
}

func TestMovesCoalesceAndClickCommits(t *testing.T) {
	h := startHarness(t, &fakeSession{})

	for i := 0; i < 100; i++ {
		h.ctrl.Move(i, i+1)
	}
	h.ctrl.Click(7, 8)

	commit := waitFor(t, h.commits, "commit")
	if commit.X != 7 || commit.Y != 8 || commit.Provenance != models.Raw {
		t.Errorf("Expected raw commit at (7,8), got %s", commit)
	}

	h.tick <- time.Now()
	preview := waitFor(t, h.previews, "preview")
	if preview.X != 99 || preview.Y != 100 {
		t.Errorf("Expected preview at latest position (99,100), got (%d,%d)", preview.X, preview.Y)
	}

	// A tick with no new move computes nothing
	h.tick <- time.Now()
	h.tick <- time.Now()
	h.stop()

	previews, commits := h.sess.recorded()
	if len(previews) != 1 {
		t.Errorf("Expected exactly 1 preview, got %d", len(previews))
	}
	if len(commits) != 1 {
		t.Errorf("Expected exactly 1 commit, got %d", len(commits))
	}

	st := h.ctrl.Stats()
	if st.MovesReceived != 100 {
		t.Errorf("Expected 100 moves received, got %d", st.MovesReceived)
	}
	if st.PreviewsComputed != 1 || st.PreviewsPublished != 1 {
		t.Errorf("Expected 1 computed and published preview, got %d/%d", st.PreviewsComputed, st.PreviewsPublished)
	}
	if st.Commits != 1 || st.ClicksReceived != 1 {
		t.Errorf("Expected 1 click and commit, got %d/%d", st.ClicksReceived, st.Commits)
	}
}

func TestClicksServedInOrder(t *testing.T) {
	h := startHarness(t, &fakeSession{})

	for i := 0; i < 50; i++ {
		h.ctrl.Click(i, 0)
		h.ctrl.Move(i, 1)
	}
	for i := 0; i < 50; i++ {
		c := waitFor(t, h.commits, "commit")
		if c.X != i {
			t.Fatalf("Expected commit %d at x=%d, got x=%d", i, i, c.X)
		}
	}
}

func TestClickNotBlockedBySlowPreview(t *testing.T) {
	sess := &fakeSession{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	h := startHarness(t, sess)

	h.ctrl.Move(1, 1)
	h.tick <- time.Now()
	waitFor(t, sess.entered, "preview start")

	// The preview is stuck; moves and clicks still go through
	for i := 0; i < 1000; i++ {
		h.ctrl.Move(i, i)
	}
	h.ctrl.Click(2, 3)
	c := waitFor(t, h.commits, "commit during blocked preview")
	if c.X != 2 || c.Y != 3 {
		t.Errorf("Expected commit at (2,3), got (%d,%d)", c.X, c.Y)
	}

	close(sess.gate)
}

func TestSupersededPreviewDiscarded(t *testing.T) {
	sess := &fakeSession{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	h := startHarness(t, sess)

	h.ctrl.Move(1, 1)
	h.tick <- time.Now()
	waitFor(t, sess.entered, "preview start")

	h.ctrl.Move(2, 2)
	sess.gate <- struct{}{}

	h.tick <- time.Now()
	waitFor(t, sess.entered, "second preview start")
	sess.gate <- struct{}{}

	p := waitFor(t, h.previews, "preview")
	if p.X != 2 || p.Y != 2 {
		t.Errorf("Expected only the newer preview (2,2) to publish, got (%d,%d)", p.X, p.Y)
	}

	h.stop()
	st := h.ctrl.Stats()
	if st.PreviewsComputed != 2 {
		t.Errorf("Expected 2 computed previews, got %d", st.PreviewsComputed)
	}
	if st.PreviewsDiscarded != 1 {
		t.Errorf("Expected 1 discarded preview, got %d", st.PreviewsDiscarded)
	}
	if st.PreviewsPublished != 1 {
		t.Errorf("Expected 1 published preview, got %d", st.PreviewsPublished)
	}
}

func TestErrorsDoNotStopLoops(t *testing.T) {
	h := startHarness(t, &fakeSession{})

	h.ctrl.Move(-1, 0)
	h.tick <- time.Now()
	e := waitFor(t, h.errs, "move error")
	if e.Kind != MoveEvent || !errors.Is(e, errBadPixel) {
		t.Errorf("Expected move error wrapping errBadPixel, got %v", e)
	}

	h.ctrl.Move(1, 1)
	h.tick <- time.Now()
	waitFor(t, h.previews, "preview after error")

	h.ctrl.Click(-3, 4)
	h.ctrl.Click(0, 0)
	e = waitFor(t, h.errs, "click error")
	if e.Kind != ClickEvent || e.X != -3 || e.Y != 4 {
		t.Errorf("Expected click error at (-3,4), got %v", e)
	}
	waitFor(t, h.commits, "commit after error")

	h.stop()
	errs := h.ctrl.Errors()
	if len(errs) != 2 {
		t.Fatalf("Expected 2 recorded errors, got %d", len(errs))
	}
	if errs[0].Kind != MoveEvent || errs[1].Kind != ClickEvent {
		t.Errorf("Expected move then click error, got %s then %s", errs[0].Kind, errs[1].Kind)
	}
	if h.ctrl.Stats().Errors != 2 {
		t.Errorf("Expected error count 2, got %d", h.ctrl.Stats().Errors)
	}
}

func TestErrorHistoryBounded(t *testing.T) {
	ctrl := New(&fakeSession{}, Options{MaxErrors: 3})
	for i := 0; i < 10; i++ {
		ctrl.Click(-i-1, 0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ctrl.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	errs := ctrl.Errors()
	if len(errs) != 3 {
		t.Fatalf("Expected 3 kept errors, got %d", len(errs))
	}
	if errs[2].X != -10 {
		t.Errorf("Expected newest error last, got x=%d", errs[2].X)
	}
	if ctrl.Stats().Errors != 10 {
		t.Errorf("Expected 10 counted errors, got %d", ctrl.Stats().Errors)
	}
}

func TestQueuedClicksDrainedOnShutdown(t *testing.T) {
	sess := &fakeSession{}
	ctrl := New(sess, Options{})
	for i := 0; i < 5; i++ {
		ctrl.Click(i, i)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ctrl.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	_, commits := sess.recorded()
	if len(commits) != 5 {
		t.Fatalf("Expected 5 drained commits, got %d", len(commits))
	}
	for i, p := range commits {
		if p.x != i {
			t.Errorf("Commit %d: expected x=%d, got %d", i, i, p.x)
		}
	}

	if err := ctrl.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}
}

func TestInternalTicker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping ticker test in short mode")
	}

	previews := make(chan models.Curve, 16)
	ctrl := New(&fakeSession{}, Options{
		Interval:  time.Millisecond,
		OnPreview: func(c models.Curve) { previews <- c },
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)

	ctrl.Move(4, 5)
	p := waitFor(t, previews, "ticker preview")
	if p.X != 4 || p.Y != 5 {
		t.Errorf("Expected preview at (4,5), got (%d,%d)", p.X, p.Y)
	}
}

func TestBoxRadiusRoutesToBoxExtraction(t *testing.T) {
	pixel := startHarness(t, &fakeSession{})
	pixel.ctrl.Move(1, 1)
	pixel.tick <- time.Now()
	waitFor(t, pixel.previews, "pixel preview")
	pixel.ctrl.Click(1, 1)
	waitFor(t, pixel.commits, "pixel commit")
	if radii := pixel.sess.boxRadii(); len(radii) != 0 {
		t.Errorf("Expected no box extraction without a radius, got %v", radii)
	}

	box := startHarnessWith(t, &fakeSession{}, Options{BoxRadius: 20})
	box.ctrl.Move(2, 3)
	box.tick <- time.Now()
	waitFor(t, box.previews, "box preview")
	box.ctrl.Click(4, 5)
	c := waitFor(t, box.commits, "box commit")
	if c.X != 4 || c.Y != 5 {
		t.Errorf("Expected commit at (4,5), got (%d,%d)", c.X, c.Y)
	}
	radii := box.sess.boxRadii()
	if len(radii) != 2 || radii[0] != 20 || radii[1] != 20 {
		t.Errorf("Expected previews and commits with radius 20, got %v", radii)
	}
}

func TestClosedTickStopsPreviews(t *testing.T) {
	h := startHarness(t, &fakeSession{})

	h.ctrl.Move(1, 1)
	h.tick <- time.Now()
	waitFor(t, h.previews, "preview")

	close(h.tick)
	h.ctrl.Move(2, 2)
	time.Sleep(50 * time.Millisecond)
	if got := h.ctrl.Stats().PreviewsComputed; got != 1 {
		t.Errorf("Expected no previews after the tick closed, got %d computed", got)
	}

	// Clicks are still served
	h.ctrl.Click(3, 3)
	waitFor(t, h.commits, "commit after tick closed")
}
