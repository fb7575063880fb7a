// Package config provides configuration defaults for the trending service.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml.
package config

import "time"

// =============================================================================
// Network Defaults
// =============================================================================

const (
	// DefaultListenAddress is the default HTTP listen address.
	// Override via config: listen
	DefaultListenAddress = "0.0.0.0:8080"

	// DefaultAPIPrefix is the path prefix for every REST endpoint.
	DefaultAPIPrefix = "/rest"

	// DefaultShutdownTimeout bounds graceful HTTP shutdown.
	DefaultShutdownTimeout = 30 * time.Second
)

// =============================================================================
// Catalog Defaults
// =============================================================================

const (
	// DefaultRefreshInterval is how long a successfully loaded catalog is
	// served before the background reload runs.
	// Override via config: catalog.refresh_interval
	DefaultRefreshInterval = 12 * time.Hour

	// DefaultRetryInterval is the delay before a failed load is retried in
	// the background. The previous catalog keeps being served meanwhile.
	// Override via config: catalog.retry_interval
	DefaultRetryInterval = 5 * time.Minute

	// DefaultLoadTimeout bounds a single background catalog load.
	// Override via config: catalog.load_timeout
	DefaultLoadTimeout = 2 * time.Minute

	// RecentMaxIdleSeconds selects channels that reported within a week.
	RecentMaxIdleSeconds = 604800

	// FullMaxIdleSeconds selects every channel the dataserver knows.
	FullMaxIdleSeconds = 0
)

// =============================================================================
// Source Defaults
// =============================================================================

const (
	// DefaultTunnelTimeout is the connect and read timeout for one stream
	// open attempt over an SSH tunnel.
	// Override via config: sites.<name>.timeout
	DefaultTunnelTimeout = 10 * time.Second

	// DefaultTunnelRetries is the total number of attempts (tunnel
	// establish + open) before a ConnectionError is surfaced.
	// Override via config: sites.<name>.retries
	DefaultTunnelRetries = 2

	// DefaultSSHHandshakeTimeout bounds the SSH dial and handshake.
	DefaultSSHHandshakeTimeout = 5 * time.Second

	// DefaultSSHPort is used when sites.<name>.ssh.port is unset.
	DefaultSSHPort = 22
)

// =============================================================================
// Trending Defaults
// =============================================================================

const (
	// DefaultTrendingWindow is the time range used when t1 is omitted.
	DefaultTrendingWindow = time.Hour

	// DefaultTrendingPeriodWindow is the time range used when t1 is omitted
	// and a period is requested.
	DefaultTrendingPeriodWindow = 12 * time.Hour

	// DefaultTrendingBins is the bin count used when n is omitted.
	DefaultTrendingBins = 100

	// DefaultTrendingTimeout bounds one upstream trending fetch, which runs
	// apart from the requests waiting on it.
	DefaultTrendingTimeout = 2 * time.Minute

	// DefaultSketchAccuracy is the relative accuracy of summary quantiles.
	DefaultSketchAccuracy = 0.01
)

// =============================================================================
// Metastore Defaults
// =============================================================================

const (
	// DefaultLoadHistoryLimit is how many load events /loads returns when
	// no limit is given.
	DefaultLoadHistoryLimit = 50

	// DefaultQueryTimeout bounds metastore queries.
	DefaultQueryTimeout = 10 * time.Second

	// DefaultLoadRetention is how long load events are kept.
	// Override via config: metastore.retention
	DefaultLoadRetention = 30 * 24 * time.Hour

	// DefaultPruneInterval is how often expired load events are deleted.
	DefaultPruneInterval = time.Hour
)
