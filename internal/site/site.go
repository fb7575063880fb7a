// Package site ties a named site's dataserver sources to cached catalogs
// and trending queries.
package site

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xtxerr/trending/config"
	"github.com/xtxerr/trending/internal/accessor"
	"github.com/xtxerr/trending/internal/catalog"
	"github.com/xtxerr/trending/internal/clock"
	"github.com/xtxerr/trending/internal/errors"
	"github.com/xtxerr/trending/internal/logging"
	"github.com/xtxerr/trending/internal/series"
	"github.com/xtxerr/trending/internal/source"
)

var log = logging.Component("site")

// User-facing messages rendered as single-leaf catalogs.
const (
	msgInvalidFilter = "Invalid filter: "
	msgNoResults     = "Filter returned no results"
)

// CatalogKind selects which channels a catalog lists.
type CatalogKind string

const (
	// KindRecent lists channels that reported within the last week.
	KindRecent CatalogKind = "recent"
	// KindFull lists every channel the dataserver knows.
	KindFull CatalogKind = "full"
)

func (k CatalogKind) path() string {
	idle := config.RecentMaxIdleSeconds
	if k == KindFull {
		idle = config.FullMaxIdleSeconds
	}
	return "listchannels?maxIdleSeconds=" + strconv.Itoa(idle)
}

// ProviderFunc builds the tunnel provider of a site.
type ProviderFunc func(source.SSHConfig) (source.TunnelProvider, error)

// SSHProviderFunc builds real SSH tunnel providers.
func SSHProviderFunc(cfg source.SSHConfig) (source.TunnelProvider, error) {
	return source.NewSSHProvider(cfg)
}

// Options carries collaborators shared by every site.
type Options struct {
	Clock    clock.Clock
	Observer accessor.Observer

	// NewProvider defaults to SSHProviderFunc.
	NewProvider ProviderFunc

	// TrendingTimeout defaults to config.DefaultTrendingTimeout.
	TrendingTimeout time.Duration
}

// =============================================================================
// Site
// =============================================================================

// Site serves the catalogs and trending data of one configured site. It is
// safe for concurrent use.
type Site struct {
	cfg             Config
	clock           clock.Clock
	logger          *slog.Logger
	trendingTimeout time.Duration

	endpoints map[string]source.Endpoint
	catalogs  map[string]map[CatalogKind]*accessor.Accessor

	trending singleflight.Group
}

// New creates a site. No connection is made until a catalog or trending
// request needs one.
func New(cfg Config, opts Options) (*Site, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.NewProvider == nil {
		opts.NewProvider = SSHProviderFunc
	}
	if opts.TrendingTimeout <= 0 {
		opts.TrendingTimeout = config.DefaultTrendingTimeout
	}

	s := &Site{
		cfg:             cfg,
		clock:           opts.Clock,
		logger:          log.With("site", cfg.Name),
		trendingTimeout: opts.TrendingTimeout,
		endpoints:       make(map[string]source.Endpoint, len(cfg.Sources)),
		catalogs:        make(map[string]map[CatalogKind]*accessor.Accessor, len(cfg.Sources)),
	}

	var provider source.TunnelProvider
	if cfg.NeedsSSH() {
		p, err := opts.NewProvider(cfg.SSH)
		if err != nil {
			return nil, errors.Wrapf(err, "site %s", cfg.Name)
		}
		provider = p
	}

	for _, name := range cfg.SourceNames() {
		ep, err := s.newEndpoint(cfg.Sources[name], provider)
		if err != nil {
			s.Close()
			return nil, errors.Wrapf(err, "site %s source %q", cfg.Name, name)
		}
		s.endpoints[name] = ep

		s.catalogs[name] = make(map[CatalogKind]*accessor.Accessor, 2)
		for _, kind := range []CatalogKind{KindRecent, KindFull} {
			acc, err := accessor.New(accessor.Config{
				Site:            cfg.Name,
				Source:          name,
				Kind:            string(kind),
				Endpoint:        ep,
				Path:            kind.path(),
				RefreshInterval: cfg.RefreshInterval,
				RetryInterval:   cfg.RetryInterval,
				LoadTimeout:     cfg.LoadTimeout,
				Clock:           opts.Clock,
				Observer:        opts.Observer,
			})
			if err != nil {
				s.Close()
				return nil, err
			}
			s.catalogs[name][kind] = acc
		}
	}

	return s, nil
}

func (s *Site) newEndpoint(sc SourceConfig, provider source.TunnelProvider) (source.Endpoint, error) {
	timeouts := source.Timeouts{Connect: s.cfg.Timeout, Read: s.cfg.Timeout}
	if !sc.UseSSH {
		return source.NewDirect(sc.RestURL, source.Timeouts{Connect: s.cfg.Timeout})
	}
	return source.NewTunneled(source.TunneledConfig{
		RestURL:  sc.RestURL,
		Provider: provider,
		Retries:  s.cfg.Retries,
		Timeouts: timeouts,
		Logger:   s.logger,
	})
}

// Name returns the site name.
func (s *Site) Name() string { return s.cfg.Name }

// Config returns the configuration the site was built from.
func (s *Site) Config() Config { return s.cfg }

// Sources returns the source names in sorted order.
func (s *Site) Sources() []string { return s.cfg.SourceNames() }

// DefaultSource returns the source used when a request names none.
func (s *Site) DefaultSource() string { return s.cfg.DefaultSource }

// Catalog returns the accessor of a source's catalog. An empty source
// means the default source.
func (s *Site) Catalog(src string, kind CatalogKind) (*accessor.Accessor, error) {
	name := s.sourceName(src)
	kinds, ok := s.catalogs[name]
	if !ok {
		return nil, fmt.Errorf("source %q of site %s: %w", src, s.cfg.Name, errors.ErrUnknownSource)
	}
	acc, ok := kinds[kind]
	if !ok {
		return nil, errors.NewInvalidValue("catalog kind", kind, "expected recent or full")
	}
	return acc, nil
}

func (s *Site) endpoint(src string) (source.Endpoint, error) {
	ep, ok := s.endpoints[s.sourceName(src)]
	if !ok {
		return nil, fmt.Errorf("source %q of site %s: %w", src, s.cfg.Name, errors.ErrUnknownSource)
	}
	return ep, nil
}

func (s *Site) sourceName(src string) string {
	if src == "" {
		return s.cfg.DefaultSource
	}
	return src
}

// Close stops background reloads and tears down tunnels.
func (s *Site) Close() error {
	var errs []error
	for _, kinds := range s.catalogs {
		for _, acc := range kinds {
			errs = append(errs, acc.Close())
		}
	}
	for _, ep := range s.endpoints {
		errs = append(errs, ep.Close())
	}
	return errors.Join(errs...)
}

// SourceStatus reports the catalogs of one source.
type SourceStatus struct {
	Source   string
	Default  bool
	Catalogs []accessor.Status
}

// Status reports every source's catalogs.
func (s *Site) Status() []SourceStatus {
	out := make([]SourceStatus, 0, len(s.catalogs))
	for _, name := range s.Sources() {
		st := SourceStatus{Source: name, Default: name == s.cfg.DefaultSource}
		for _, kind := range []CatalogKind{KindRecent, KindFull} {
			st.Catalogs = append(st.Catalogs, s.catalogs[name][kind].Status())
		}
		out = append(out, st)
	}
	return out
}

// =============================================================================
// Channels
// =============================================================================

// ChannelsQuery selects catalog nodes.
type ChannelsQuery struct {
	Source string

	// Handle selects the children of a node. Nil selects the root's.
	Handle *int

	// Filter is a selector, see catalog.ParseSelector.
	Filter string

	// Flatten compacts single-child chains of a filtered catalog. Nil
	// means true.
	Flatten *bool

	Refresh bool
	Full    bool
}

// Channels returns the nodes a catalog browser displays.
//
// An invalid filter or a filter without matches yields a single message
// leaf instead of an error. A handle that the resulting catalog does not
// contain yields ErrHandleNotFound.
func (s *Site) Channels(ctx context.Context, q ChannelsQuery) ([]*catalog.Node, error) {
	kind := KindRecent
	if q.Full {
		kind = KindFull
	}
	acc, err := s.Catalog(q.Source, kind)
	if err != nil {
		return nil, err
	}

	tree, err := acc.Get(ctx, q.Refresh)
	if err != nil {
		return nil, err
	}

	if q.Filter != "" {
		pred, err := catalog.ParseSelector(q.Filter)
		if err != nil {
			return messageNodes(msgInvalidFilter + selectorMessage(err)), nil
		}
		tree = tree.Filter(pred)
		if q.Flatten == nil || *q.Flatten {
			tree = tree.Flatten()
		}
	}
	if tree.IsEmpty() {
		return messageNodes(msgNoResults), nil
	}

	if q.Handle == nil {
		return tree.Root().Children(), nil
	}
	node, ok := tree.Lookup(*q.Handle)
	if !ok {
		return nil, fmt.Errorf("node %d: %w", *q.Handle, errors.ErrHandleNotFound)
	}
	return node.Children(), nil
}

func messageNodes(text string) []*catalog.Node {
	return catalog.Message(text).Root().Children()
}

func selectorMessage(err error) string {
	return strings.TrimSuffix(err.Error(), ": "+errors.ErrSelector.Error())
}

// =============================================================================
// Trending
// =============================================================================

// TrendingQuery selects trending data of one or more channels.
type TrendingQuery struct {
	Source string

	// Keys are channel ids, one series each, in column order.
	Keys []string

	// Period widens the default time range to 12 hours when set.
	Period string

	// T1 and T2 bound the range in Unix milliseconds. Nil means default.
	T1, T2 *int64

	// Bins is the requested bin count. Zero means 100.
	Bins int

	Flavor    series.Flavor
	ErrorBars series.ErrorBars
}

// TrendingResult is a merged trending table. It is shared between
// identical concurrent requests and must not be modified.
type TrendingResult struct {
	Meta series.Meta
	Rows []series.Row
	Keys []string
}

// Trending fetches and merges trending data. Identical concurrent queries
// share one upstream request.
func (s *Site) Trending(ctx context.Context, q TrendingQuery) (*TrendingResult, error) {
	if len(q.Keys) == 0 {
		return nil, errors.NewInvalidValue("key", "", "at least one key is required")
	}
	ep, err := s.endpoint(q.Source)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UnixMilli()
	window := config.DefaultTrendingWindow
	if q.Period != "" {
		window = config.DefaultTrendingPeriodWindow
	}
	t1, t2 := now-window.Milliseconds(), now
	if q.T1 != nil {
		t1 = *q.T1
	}
	if q.T2 != nil {
		t2 = *q.T2
	}
	bins := q.Bins
	if bins <= 0 {
		bins = config.DefaultTrendingBins
	}

	path := dataPath(q.Keys, t1, t2, bins, q.Flavor)
	key := s.sourceName(q.Source) + "|" + q.ErrorBars.String() + "|" + path

	// The fetch is detached from ctx so one caller leaving does not fail
	// the others; each caller waits on its own ctx.
	detached := context.WithoutCancel(ctx)
	ch := s.trending.DoChan(key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(detached, s.trendingTimeout)
		defer cancel()
		return s.fetchTrending(fctx, ep, path, q.Keys, series.Meta{
			ErrorBars: q.ErrorBars,
			Bins:      bins,
			Min:       t1,
			Max:       t2,
			Flavor:    q.Flavor,
		})
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, errors.Kind(errors.ErrConnection, ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		s.logger.Debug("trending request shared", "path", path)
	}
	return res.Val.(*TrendingResult), nil
}

func (s *Site) fetchTrending(ctx context.Context, ep source.Endpoint, path string, keys []string, meta series.Meta) (*TrendingResult, error) {
	start := time.Now()
	s.logger.Info("reading trending data", "path", path)

	body, err := ep.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	merger := series.NewMerger(len(keys), meta.ErrorBars)
	perData, err := series.Decode(body, merger)
	if err != nil {
		return nil, errors.Wrapf(err, "trending data from %s", path)
	}
	meta.PerData = perData
	if meta.PerData == nil {
		meta.PerData = []series.SeriesMeta{}
	}

	s.logger.Debug("trending data read",
		"series", len(keys),
		"rows", merger.Len(),
		"duration", time.Since(start))

	return &TrendingResult{
		Meta: meta,
		Rows: merger.Rows(),
		Keys: append([]string(nil), keys...),
	}, nil
}

// dataPath builds data/?id=k1&id=k2&t1=..&t2=..&n=..&flavor=..
func dataPath(keys []string, t1, t2 int64, bins int, flavor series.Flavor) string {
	var b strings.Builder
	b.WriteString("data/?")
	for _, k := range keys {
		b.WriteString("id=")
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('&')
	}
	fmt.Fprintf(&b, "t1=%d&t2=%d&n=%d&flavor=%s", t1, t2, bins, flavor.Query())
	return b.String()
}
