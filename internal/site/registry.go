package site

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/trending/internal/errors"
)

// Registry holds the configured sites and swaps them on configuration
// reloads. It is safe for concurrent use.
type Registry struct {
	opts Options

	applyMu sync.Mutex

	mu          sync.RWMutex
	sites       map[string]*Site
	defaultSite string
	closed      bool
}

// NewRegistry creates an empty registry. Sites built by Apply share opts.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:  opts,
		sites: make(map[string]*Site),
	}
}

// Apply replaces the registry's sites with cfgs. Sites whose configuration
// is unchanged keep their cached catalogs and tunnels. Removed and changed
// sites are closed. On error the registry is left as it was.
func (r *Registry) Apply(cfgs []Config, defaultSite string) error {
	if len(cfgs) == 0 {
		return errors.NewMissingField("sites")
	}
	if defaultSite == "" {
		defaultSite = cfgs[0].Name
	}

	r.applyMu.Lock()
	defer r.applyMu.Unlock()

	r.mu.RLock()
	current := r.sites
	r.mu.RUnlock()

	next := make(map[string]*Site, len(cfgs))
	var built []*Site
	fail := func(err error) error {
		for _, s := range built {
			s.Close()
		}
		return err
	}

	for _, cfg := range cfgs {
		if _, dup := next[cfg.Name]; dup {
			return fail(errors.NewValidation("sites."+cfg.Name, "defined twice"))
		}
		if old, ok := current[cfg.Name]; ok && sameConfig(old.Config(), cfg) {
			next[cfg.Name] = old
			continue
		}
		s, err := New(cfg, r.opts)
		if err != nil {
			return fail(err)
		}
		built = append(built, s)
		next[cfg.Name] = s
	}
	if _, ok := next[defaultSite]; !ok {
		return fail(errors.NewValidation("default_site", fmt.Sprintf("site %q is not defined", defaultSite)))
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fail(errors.ErrClosed)
	}
	old := r.sites
	r.sites = next
	r.defaultSite = defaultSite
	r.mu.Unlock()

	var stale []*Site
	for name, s := range old {
		if next[name] != s {
			stale = append(stale, s)
		}
	}
	for _, s := range stale {
		if err := s.Close(); err != nil {
			log.Warn("closing replaced site", "site", s.Name(), "error", err)
		}
	}

	log.Info("sites applied",
		"sites", len(next),
		"built", len(built),
		"closed", len(stale),
		"default", defaultSite)
	return nil
}

// sameConfig compares a running site's configuration with a new one. The
// running one has defaults applied.
func sameConfig(running, cfg Config) bool {
	if cfg.Validate() != nil {
		return false
	}
	cfg.applyDefaults()
	return reflect.DeepEqual(running, cfg)
}

// Get returns a site by name. An empty name means the default site.
func (r *Registry) Get(name string) (*Site, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.defaultSite
	}
	s, ok := r.sites[name]
	if !ok {
		return nil, fmt.Errorf("site %q: %w", name, errors.ErrUnknownSite)
	}
	return s, nil
}

// Default returns the default site name.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultSite
}

// Names returns the site names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sites))
	for name := range r.sites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Warm loads the recent catalog of every site's default source
// concurrently. Failures are logged; the first one is returned.
func (r *Registry) Warm(ctx context.Context) error {
	r.mu.RLock()
	sites := make([]*Site, 0, len(r.sites))
	for _, s := range r.sites {
		sites = append(sites, s)
	}
	r.mu.RUnlock()

	var g errgroup.Group
	for _, s := range sites {
		g.Go(func() error {
			acc, err := s.Catalog("", KindRecent)
			if err != nil {
				return err
			}
			if _, err := acc.Get(ctx, false); err != nil {
				log.Warn("warming catalog failed", "site", s.Name(), "error", err)
				return errors.Wrapf(err, "site %s", s.Name())
			}
			return nil
		})
	}
	return g.Wait()
}

// Close closes every site. Apply fails afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	sites := r.sites
	r.sites = make(map[string]*Site)
	r.closed = true
	r.mu.Unlock()

	var errs []error
	for _, s := range sites {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
