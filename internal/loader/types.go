// Package loader - Configuration Types
//
// Defines the YAML configuration structure for trendingd.
//
//	listen, default_site   HTTP boundary
//	log                    level and format
//	metastore              DuckDB catalog load history (optional)
//	catalog                refresh and retry intervals, warm-up
//	export                 parquet compression
//	sites                  SSH gateway and dataserver sources per site
//	include                additional files contributing sites
package loader

import (
	"time"

	"github.com/xtxerr/trending/config"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for trendingd.
type Config struct {
	// Listen is the HTTP listen address.
	// Format: "host:port" or ":port"
	// Default: "0.0.0.0:8080"
	Listen string `yaml:"listen"`

	// DefaultSite serves /rest/ and /rest/channels.
	// Default: the alphabetically first site.
	DefaultSite string `yaml:"default_site"`

	// TLS enables HTTPS when both files are set.
	TLS TLSConfig `yaml:"tls"`

	Log LogConfig `yaml:"log"`

	// Metastore records catalog loads. Disabled when path is empty.
	Metastore MetastoreConfig `yaml:"metastore"`

	// Catalog holds the reload timing shared by every site.
	Catalog CatalogConfig `yaml:"catalog"`

	Export ExportConfig `yaml:"export"`

	// Sites maps a site name to its configuration.
	Sites map[string]*SiteConfig `yaml:"sites"`

	// Include lists additional config files to load.
	// Supports glob patterns. Relative to this file's directory.
	Include []string `yaml:"include"`
}

// TLSConfig configures HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// JSON switches from text to JSON output.
	JSON bool `yaml:"json"`
}

// MetastoreConfig configures the DuckDB load history.
type MetastoreConfig struct {
	// Path is the database file. Empty disables the metastore.
	Path string `yaml:"path"`

	// QueryTimeout bounds every metastore query.
	// Default: 10s
	QueryTimeout Duration `yaml:"query_timeout"`

	// Retention is how long load events are kept. Zero keeps them forever.
	// Default: 720h
	Retention Duration `yaml:"retention"`
}

// CatalogConfig configures catalog caching.
type CatalogConfig struct {
	// RefreshInterval is how long a loaded catalog is served before the
	// background reload.
	// Default: 12h
	RefreshInterval Duration `yaml:"refresh_interval"`

	// RetryInterval is the delay before a failed load is retried.
	// Default: 5m
	RetryInterval Duration `yaml:"retry_interval"`

	// LoadTimeout bounds a single load.
	// Default: 2m
	LoadTimeout Duration `yaml:"load_timeout"`

	// Warm loads every site's recent catalog at startup.
	Warm bool `yaml:"warm"`
}

// ExportConfig configures /export.
type ExportConfig struct {
	// ParquetCompression is one of none, snappy, gzip, zstd, lz4.
	// Default: zstd
	ParquetCompression string `yaml:"parquet_compression"`
}

// =============================================================================
// Site Configuration
// =============================================================================

// SiteConfig describes one site.
type SiteConfig struct {
	// DefaultSource names the source used when a request names none. The
	// empty string is a valid source name.
	DefaultSource string `yaml:"default_source"`

	// Timeout is the connect and read timeout of tunneled requests.
	// Default: 10s
	Timeout Duration `yaml:"timeout"`

	// Retries is the total number of attempts of tunneled requests.
	// Default: 2
	Retries int `yaml:"retries"`

	// SSH is the gateway tunneled sources go through.
	SSH *SSHConfig `yaml:"ssh"`

	Sources map[string]*SourceConfig `yaml:"sources"`
}

// SSHConfig configures the SSH gateway of a site.
type SSHConfig struct {
	User string `yaml:"user"`
	Host string `yaml:"host"`

	// Port defaults to 22.
	Port int `yaml:"port"`

	// Key is the private key file. "~/" is expanded.
	Key string `yaml:"key"`

	// KeyPassword decrypts Key. Use environment variables:
	// "${TRENDING_KEY_PASSWORD}"
	KeyPassword string `yaml:"key_password"`

	// KnownHosts enables host key checking. Empty accepts any host key.
	KnownHosts string `yaml:"known_hosts"`
}

// SourceConfig is one dataserver of a site.
type SourceConfig struct {
	RestURL string `yaml:"rest_url"`
	UseSSH  bool   `yaml:"use_ssh"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a configuration with every default set.
func DefaultConfig() *Config {
	return &Config{
		Listen: config.DefaultListenAddress,
		Log: LogConfig{
			Level: "info",
		},
		Metastore: MetastoreConfig{
			QueryTimeout: Duration(config.DefaultQueryTimeout),
			Retention:    Duration(config.DefaultLoadRetention),
		},
		Catalog: CatalogConfig{
			RefreshInterval: Duration(config.DefaultRefreshInterval),
			RetryInterval:   Duration(config.DefaultRetryInterval),
			LoadTimeout:     Duration(config.DefaultLoadTimeout),
		},
		Export: ExportConfig{
			ParquetCompression: "zstd",
		},
	}
}

// =============================================================================
// Custom Types
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML, either as
// a Go duration string or as an integer number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var i int
	if err := unmarshal(&i); err == nil {
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	}
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
