// Package accessor serves a cached channel catalog for one dataserver
// source.
//
// The first Get loads the catalog inline; concurrent callers wait for that
// load instead of starting their own. After every load a single background
// timer is (re)armed: RefreshInterval after a success, RetryInterval after a
// failure. A failed load never replaces the cached catalog.
package accessor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/trending/config"
	"github.com/xtxerr/trending/internal/catalog"
	"github.com/xtxerr/trending/internal/clock"
	"github.com/xtxerr/trending/internal/errors"
	"github.com/xtxerr/trending/internal/logging"
	"github.com/xtxerr/trending/internal/source"
)

var log = logging.Component("accessor")

// =============================================================================
// State
// =============================================================================

// State is the lifecycle state of an Accessor.
type State int32

const (
	// Uninitialized: no load has been attempted.
	Uninitialized State = iota
	// Loading: the first load is in flight.
	Loading
	// Ready: the first load finished, successfully or not.
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Trigger says what started a load.
type Trigger string

const (
	TriggerFirst     Trigger = "first"
	TriggerRefresh   Trigger = "refresh"
	TriggerScheduled Trigger = "scheduled"
)

// LoadEvent describes one finished load.
type LoadEvent struct {
	Site     string
	Source   string
	Kind     string
	Trigger  Trigger
	Start    time.Time
	Duration time.Duration
	Channels int
	Err      error
}

// Observer is called after every load, inline or background.
type Observer func(LoadEvent)

// =============================================================================
// Configuration
// =============================================================================

// Config configures an Accessor.
type Config struct {
	Site   string
	Source string

	// Kind names the catalog variant, e.g. "recent" or "full".
	Kind string

	// Endpoint serves the catalog at Path.
	Endpoint source.Endpoint
	Path     string

	RefreshInterval time.Duration
	RetryInterval   time.Duration

	// LoadTimeout bounds every load, inline ones included.
	LoadTimeout time.Duration

	Clock    clock.Clock
	Observer Observer
}

func (c *Config) applyDefaults() {
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = config.DefaultRefreshInterval
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = config.DefaultRetryInterval
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = config.DefaultLoadTimeout
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
}

// =============================================================================
// Accessor
// =============================================================================

// Accessor caches the catalog of one source. It is safe for concurrent use.
type Accessor struct {
	cfg    Config
	logger *slog.Logger

	cache atomic.Pointer[catalog.Tree]

	mu        sync.Mutex
	state     State
	firstDone chan struct{}
	timer     clock.Timer
	nextLoad  time.Time
	lastLoad  time.Time
	lastErr   error
	closed    bool
}

// New creates an Accessor. Nothing is loaded until the first Get.
func New(cfg Config) (*Accessor, error) {
	if cfg.Endpoint == nil {
		return nil, errors.NewMissingField("endpoint")
	}
	if cfg.Path == "" {
		return nil, errors.NewMissingField("path")
	}
	cfg.applyDefaults()

	return &Accessor{
		cfg: cfg,
		logger: log.With(
			"site", cfg.Site,
			"source", cfg.Source,
			"kind", cfg.Kind),
		firstDone: make(chan struct{}),
	}, nil
}

// Get returns the cached catalog.
//
// The first call loads inline and returns the load's own error. A call with
// refresh set always reloads inline. Other calls made while the first load
// is in flight wait for it, then read the cache. ErrUnavailable means no
// catalog has been loaded yet.
func (a *Accessor) Get(ctx context.Context, refresh bool) (*catalog.Tree, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, errors.Kind(errors.ErrUnavailable, errors.ErrClosed)
	}

	switch {
	case a.state == Uninitialized:
		a.state = Loading
		a.mu.Unlock()
		return a.loadInline(ctx, TriggerFirst)

	case refresh:
		a.mu.Unlock()
		return a.loadInline(ctx, TriggerRefresh)

	case a.state == Loading:
		done := a.firstDone
		a.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return nil, errors.Kind(errors.ErrUnavailable, ctx.Err())
		}

	default:
		a.mu.Unlock()
	}

	if tree := a.cache.Load(); tree != nil {
		return tree, nil
	}
	return nil, fmt.Errorf("%s catalog of %s: %w", a.cfg.Kind, a.name(), errors.ErrUnavailable)
}

type loadResult struct {
	tree *catalog.Tree
	err  error
}

// loadInline runs a load on behalf of the caller. The load itself is not
// tied to ctx: a caller that gives up gets ErrUnavailable while the load
// completes and publishes its result for everyone else.
func (a *Accessor) loadInline(ctx context.Context, trigger Trigger) (*catalog.Tree, error) {
	result := make(chan loadResult, 1)
	go func() {
		tree, err := a.load(trigger)
		if trigger == TriggerFirst {
			a.mu.Lock()
			a.state = Ready
			close(a.firstDone)
			a.mu.Unlock()
		}
		result <- loadResult{tree: tree, err: err}
	}()

	select {
	case r := <-result:
		return r.tree, r.err
	case <-ctx.Done():
		return nil, errors.Kind(errors.ErrUnavailable, ctx.Err())
	}
}

// load fetches and decodes the catalog, publishes a success, rearms the
// timer and notifies the observer.
func (a *Accessor) load(trigger Trigger) (*catalog.Tree, error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.LoadTimeout)
	defer cancel()

	start := a.cfg.Clock.Now()
	tree, channels, err := a.fetch(ctx)
	elapsed := a.cfg.Clock.Now().Sub(start)

	if err == nil {
		a.cache.Store(tree)
		a.logger.Info("catalog loaded",
			"trigger", trigger,
			"channels", channels,
			"duration", elapsed)
	}
	a.schedule(err)

	if a.cfg.Observer != nil {
		a.cfg.Observer(LoadEvent{
			Site:     a.cfg.Site,
			Source:   a.cfg.Source,
			Kind:     a.cfg.Kind,
			Trigger:  trigger,
			Start:    start,
			Duration: elapsed,
			Channels: channels,
			Err:      err,
		})
	}
	return tree, err
}

func (a *Accessor) fetch(ctx context.Context) (*catalog.Tree, int, error) {
	body, err := a.cfg.Endpoint.Open(ctx, a.cfg.Path)
	if err != nil {
		return nil, 0, err
	}
	defer body.Close()

	records, err := catalog.Decode(body)
	if err != nil {
		return nil, 0, err
	}
	return catalog.Build(records), len(records), nil
}

// schedule replaces the pending background load.
func (a *Accessor) schedule(loadErr error) {
	delay := a.cfg.RefreshInterval
	if loadErr != nil {
		delay = a.cfg.RetryInterval
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastLoad = a.cfg.Clock.Now()
	a.lastErr = loadErr
	if a.closed {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = a.cfg.Clock.AfterFunc(delay, a.reload)
	a.nextLoad = a.lastLoad.Add(delay)
}

func (a *Accessor) reload() {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return
	}

	if _, err := a.load(TriggerScheduled); err != nil {
		l := a.logger.Warn
		if !errors.IsRetriable(err) {
			l = a.logger.Error
		}
		l("background catalog load failed",
			"error", err,
			"retry_in", a.cfg.RetryInterval)
	}
}

// Close stops background loads. Get fails with ErrUnavailable afterwards.
func (a *Accessor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	return nil
}

func (a *Accessor) name() string {
	if a.cfg.Source == "" {
		return a.cfg.Site
	}
	return a.cfg.Site + "/" + a.cfg.Source
}

// =============================================================================
// Status
// =============================================================================

// Status is a point-in-time view of an Accessor.
type Status struct {
	Kind      string
	State     State
	Cached    bool
	Nodes     int
	LastLoad  time.Time
	LastError error
	NextLoad  time.Time
}

// Status reports the accessor's state.
func (a *Accessor) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := Status{
		Kind:      a.cfg.Kind,
		State:     a.state,
		LastLoad:  a.lastLoad,
		LastError: a.lastErr,
	}
	if a.timer != nil {
		st.NextLoad = a.nextLoad
	}
	if tree := a.cache.Load(); tree != nil {
		st.Cached = true
		st.Nodes = tree.Len()
	}
	return st
}
