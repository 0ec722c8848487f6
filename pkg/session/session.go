// Package session holds the state of one loaded LEEM-I(V) experiment: the
// image stack, the active smoothing setting, the last preview curve and
// the committed curves.
//
// Locking: extraction (PreviewAt, CommitAt) holds a read lock on the
// session for its whole duration, so any number of extractions share the
// immutable stack. Load and Reset take the write lock and therefore wait
// for in-flight extractions; extractions issued while a swap is pending
// queue behind it and then run against the new stack. The smoothing
// config is a single atomic pointer, so readers see either the old or the
// new setting, never a mix.
//
// The requested smoothing setting is kept apart from the active one. A
// load fits the requested setting to the new frame count (see
// smoothing.Config.FitTo), so a window longer than the stack is cut
// rather than left to fail every preview; loading a longer stack later
// restores the requested window.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"gonum.org/v1/gonum/mat"

	"leemiv/internal/models"
	"leemiv/pkg/energy"
	"leemiv/pkg/smoothing"
	"leemiv/pkg/stack"
)

var (
	// ErrNoStackLoaded is returned by extraction while the session is empty
	ErrNoStackLoaded = errors.New("no data loaded")

	// ErrNilStack is the cause of a LoadError for a nil stack
	ErrNilStack = errors.New("nil image stack")
)

// DefaultCacheSize is the number of smoothed preview curves kept per session
const DefaultCacheSize = 4096

// State is the lifecycle state of a session
type State int

const (
	Empty State = iota
	Loaded
)

func (s State) String() string {
	if s == Loaded {
		return "loaded"
	}
	return "empty"
}

// LoadError reports a failed load. The session state is unchanged when
// it is returned.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string { return "load failed: " + e.Err.Error() }

func (e *LoadError) Unwrap() error { return e.Err }

// Options configures a new session
type Options struct {
	// Smoothing is the initial preview setting; nil selects
	// smoothing.DefaultConfig
	Smoothing *smoothing.Config

	// Smoother replaces the default filter
	Smoother smoothing.Smoother

	// CacheSize bounds the preview cache; 0 selects DefaultCacheSize and a
	// negative value disables caching
	CacheSize int
}

// snapshot pairs the active config with the generation it was installed
// at, so a cached preview can never be attributed to the wrong config.
// want is the config as requested, before fitting to the stack.
type snapshot struct {
	cfg  smoothing.Config
	want smoothing.Config
	gen  uint64
}

type previewKey struct {
	x, y   int
	radius int
	gen    uint64
}

// Session is an experiment session. The zero value is not usable; create
// sessions with New.
type Session struct {
	mu  sync.RWMutex
	stk *stack.ImageStack

	// gen increases on every load, reset and config change
	gen      atomic.Uint64
	cfg      atomic.Pointer[snapshot]
	smoother smoothing.Smoother
	cache    *lru.Cache[previewKey, models.Curve]

	previewMu  sync.Mutex
	preview    models.Curve
	hasPreview bool

	commitMu  sync.Mutex
	committed []models.Curve
}

// New creates an empty session
func New(opts Options) (*Session, error) {
	cfg := smoothing.DefaultConfig()
	if opts.Smoothing != nil {
		cfg = *opts.Smoothing
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{smoother: opts.Smoother}
	if s.smoother == nil {
		s.smoother = smoothing.Default
	}

	size := opts.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}
	if size > 0 {
		cache, err := lru.New[previewKey, models.Curve](size)
		if err != nil {
			return nil, fmt.Errorf("preview cache: %w", err)
		}
		s.cache = cache
	}

	s.cfg.Store(&snapshot{cfg: cfg, want: cfg, gen: s.gen.Add(1)})
	return s, nil
}

// Load replaces the session's stack wholesale, clearing the preview and
// the committed curves, and fits the requested smoothing setting to the
// new frame count. A nil stack yields a *LoadError and leaves the session
// untouched.
func (s *Session) Load(stk *stack.ImageStack) error {
	if stk == nil {
		return &LoadError{Err: ErrNilStack}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.swap(stk)
	return nil
}

// LoadFunc builds a stack with build and loads it. Any build failure is
// returned as a *LoadError wrapping the cause, and the prior state is
// kept. The build runs before the write lock is taken, so previews of the
// old stack continue while a new experiment is being read.
func (s *Session) LoadFunc(build func() (*stack.ImageStack, error)) error {
	stk, err := build()
	if err != nil {
		return &LoadError{Err: err}
	}
	return s.Load(stk)
}

// LoadFrames builds a stack from frames and an axis and loads it
func (s *Session) LoadFrames(frames []mat.Matrix, axis energy.Axis) error {
	return s.LoadFunc(func() (*stack.ImageStack, error) {
		return stack.New(frames, axis)
	})
}

// Reset returns the session to the empty state
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swap(nil)
}

// swap installs stk; s.mu must be held for writing
func (s *Session) swap(stk *stack.ImageStack) {
	s.stk = stk

	want := s.cfg.Load().want
	cfg := want
	if stk != nil {
		cfg, _ = want.FitTo(stk.Len())
	}
	s.install(cfg, want)

	s.previewMu.Lock()
	s.preview, s.hasPreview = models.Curve{}, false
	s.previewMu.Unlock()

	s.commitMu.Lock()
	s.committed = nil
	s.commitMu.Unlock()
}

// install stores a new config snapshot and invalidates cached previews
func (s *Session) install(cfg, want smoothing.Config) {
	s.cfg.Store(&snapshot{cfg: cfg, want: want, gen: s.gen.Add(1)})
	if s.cache != nil {
		s.cache.Purge()
	}
}

// State reports whether a stack is loaded
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stk == nil {
		return Empty
	}
	return Loaded
}

// Stack returns the loaded stack, or nil when empty
func (s *Session) Stack() *stack.ImageStack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stk
}

// PreviewAt extracts the curve at (x, y), smooths it with the current
// config and records it as the last preview.
func (s *Session) PreviewAt(x, y int) (models.Curve, error) {
	return s.PreviewBoxAt(x, y, 0)
}

// PreviewBoxAt is PreviewAt for the curve integrated over the box of the
// given radius around (x, y). Radius 0 is the single pixel.
func (s *Session) PreviewBoxAt(x, y, radius int) (models.Curve, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stk == nil {
		return models.Curve{}, ErrNoStackLoaded
	}

	snap := s.cfg.Load()
	key := previewKey{x: x, y: y, radius: radius, gen: snap.gen}
	if s.cache != nil {
		if c, ok := s.cache.Get(key); ok {
			s.setPreview(c)
			return c, nil
		}
	}

	raw, err := s.extract(x, y, radius)
	if err != nil {
		return models.Curve{}, err
	}
	smoothed, err := s.smoother.Smooth(raw, snap.cfg)
	if err != nil {
		return models.Curve{}, err
	}

	if s.cache != nil {
		s.cache.Add(key, smoothed)
	}
	s.setPreview(smoothed)
	return smoothed, nil
}

func (s *Session) setPreview(c models.Curve) {
	s.previewMu.Lock()
	s.preview, s.hasPreview = c, true
	s.previewMu.Unlock()
}

// extract reads a raw curve; s.mu must be held
func (s *Session) extract(x, y, radius int) (models.Curve, error) {
	if radius == 0 {
		return s.stk.ExtractCurve(x, y)
	}
	return s.stk.ExtractBoxCurve(x, y, radius)
}

// CommitAt extracts the raw curve at (x, y) and appends it to the
// committed list. Commits are serialized and kept in call order.
func (s *Session) CommitAt(x, y int) (models.Curve, error) {
	return s.CommitBoxAt(x, y, 0)
}

// CommitBoxAt is CommitAt for the raw curve integrated over the box of
// the given radius around (x, y)
func (s *Session) CommitBoxAt(x, y, radius int) (models.Curve, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stk == nil {
		return models.Curve{}, ErrNoStackLoaded
	}

	raw, err := s.extract(x, y, radius)
	if err != nil {
		return models.Curve{}, err
	}

	s.commitMu.Lock()
	s.committed = append(s.committed, raw)
	s.commitMu.Unlock()
	return raw, nil
}

// SetSmoothing replaces the preview config. The config is validated first,
// against the loaded frame count when a stack is loaded; a rejected config
// leaves the previous one active. Curves already returned or committed
// are not affected.
func (s *Session) SetSmoothing(cfg smoothing.Config) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var err error
	if s.stk != nil {
		err = cfg.ValidateFor(s.stk.Len())
	} else {
		err = cfg.Validate()
	}
	if err != nil {
		return err
	}

	s.install(cfg, cfg)
	return nil
}

// Smoothing returns the active preview config
func (s *Session) Smoothing() smoothing.Config {
	return s.cfg.Load().cfg
}

// Preview returns the last preview curve, if any
func (s *Session) Preview() (models.Curve, bool) {
	s.previewMu.Lock()
	defer s.previewMu.Unlock()
	return s.preview, s.hasPreview
}

// Committed returns the committed curves in commit order
func (s *Session) Committed() []models.Curve {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	return append([]models.Curve(nil), s.committed...)
}

// ClearCommitted drops all committed curves
func (s *Session) ClearCommitted() {
	s.commitMu.Lock()
	s.committed = nil
	s.commitMu.Unlock()
}
