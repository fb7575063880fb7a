// Package loader handles configuration file loading, validation, and
// conversion.
//
// This package is responsible for:
//   - Loading YAML configuration files
//   - Expanding environment variables
//   - Processing include directives
//   - Converting between YAML and internal representations
//   - Watching the configuration file for changes
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/trending/internal/errors"
	"github.com/xtxerr/trending/internal/series"
	"github.com/xtxerr/trending/internal/site"
	"github.com/xtxerr/trending/internal/source"
	"github.com/xtxerr/trending/internal/store"
)

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if err := processIncludes(cfg, filepath.Dir(path)); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse parses a YAML document on top of DefaultConfig. Environment
// variables are expanded first. Includes are not processed.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w: %w", errors.ErrInvalidConfig, err)
	}
	return cfg, nil
}

// processIncludes loads and merges included configuration files.
func processIncludes(cfg *Config, baseDir string) error {
	for _, pattern := range cfg.Include {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(baseDir, pattern)
		}

		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}

		for _, match := range matches {
			if err := loadInclude(cfg, match); err != nil {
				return fmt.Errorf("load include %q: %w", match, err)
			}
		}
	}

	return nil
}

// loadInclude merges the sites of one include file into cfg. A site
// defined twice is an error.
func loadInclude(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &partial); err != nil {
		return fmt.Errorf("parse: %w: %w", errors.ErrInvalidConfig, err)
	}

	if cfg.Sites == nil {
		cfg.Sites = make(map[string]*SiteConfig)
	}
	for name, sc := range partial.Sites {
		if _, dup := cfg.Sites[name]; dup {
			return errors.NewValidation("sites."+name, "defined in more than one file")
		}
		cfg.Sites[name] = sc
	}

	return nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	if cfg.Listen == "" {
		errs.AddField("listen", "cannot be empty")
	}

	if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
		errs.AddField("tls", "cert_file and key_file must be set together")
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs.AddField("log.level", fmt.Sprintf("unknown level %q", cfg.Log.Level))
	}

	if cfg.Metastore.Retention < 0 {
		errs.AddField("metastore.retention", "must not be negative")
	}
	if cfg.Catalog.RefreshInterval < 0 {
		errs.AddField("catalog.refresh_interval", "must not be negative")
	}
	if cfg.Catalog.RetryInterval < 0 {
		errs.AddField("catalog.retry_interval", "must not be negative")
	}
	if cfg.Catalog.LoadTimeout < 0 {
		errs.AddField("catalog.load_timeout", "must not be negative")
	}

	switch cfg.Export.ParquetCompression {
	case "", "none", "snappy", "gzip", "zstd", "lz4":
	default:
		errs.AddField("export.parquet_compression", fmt.Sprintf("unknown codec %q", cfg.Export.ParquetCompression))
	}

	if len(cfg.Sites) == 0 {
		errs.AddMissing("sites")
		return errs.Err()
	}
	if cfg.DefaultSite != "" {
		if _, ok := cfg.Sites[cfg.DefaultSite]; !ok {
			errs.AddField("default_site", fmt.Sprintf("site %q is not defined", cfg.DefaultSite))
		}
	}

	sites, err := ToSiteConfigs(cfg)
	if err != nil {
		errs.Add(err)
	}
	for _, sc := range sites {
		if err := sc.Validate(); err != nil {
			errs.Add(err)
		}
	}

	return errs.Err()
}

// =============================================================================
// Conversion
// =============================================================================

// SiteNames returns the configured site names in sorted order.
func (c *Config) SiteNames() []string {
	names := make([]string, 0, len(c.Sites))
	for name := range c.Sites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultSiteName returns default_site, or the first site name.
func (c *Config) DefaultSiteName() string {
	if c.DefaultSite != "" {
		return c.DefaultSite
	}
	if names := c.SiteNames(); len(names) > 0 {
		return names[0]
	}
	return ""
}

// ToSiteConfigs converts the sites section, sorted by name. Catalog timing
// is copied into every site.
func ToSiteConfigs(cfg *Config) ([]site.Config, error) {
	out := make([]site.Config, 0, len(cfg.Sites))
	for _, name := range cfg.SiteNames() {
		sc := cfg.Sites[name]
		if sc == nil {
			return nil, errors.NewMissingField("sites." + name)
		}

		s := site.Config{
			Name:            name,
			DefaultSource:   sc.DefaultSource,
			Sources:         make(map[string]site.SourceConfig, len(sc.Sources)),
			Timeout:         sc.Timeout.Duration(),
			Retries:         sc.Retries,
			RefreshInterval: cfg.Catalog.RefreshInterval.Duration(),
			RetryInterval:   cfg.Catalog.RetryInterval.Duration(),
			LoadTimeout:     cfg.Catalog.LoadTimeout.Duration(),
		}
		for srcName, src := range sc.Sources {
			if src == nil {
				return nil, errors.NewMissingField(fmt.Sprintf("sites.%s.sources.%q", name, srcName))
			}
			s.Sources[srcName] = site.SourceConfig{RestURL: src.RestURL, UseSSH: src.UseSSH}
		}
		if sc.SSH != nil {
			s.SSH = source.SSHConfig{
				User:           sc.SSH.User,
				Host:           sc.SSH.Host,
				Port:           sc.SSH.Port,
				KeyFile:        source.ExpandHome(sc.SSH.Key),
				Passphrase:     sc.SSH.KeyPassword,
				KnownHostsFile: source.ExpandHome(sc.SSH.KnownHosts),
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// ToStoreConfig converts the metastore section. ok is false when the
// metastore is disabled.
func ToStoreConfig(cfg *MetastoreConfig) (sc store.Config, ok bool) {
	if cfg.Path == "" {
		return store.Config{}, false
	}
	sc = store.DefaultConfig()
	sc.DSN = cfg.Path
	if cfg.QueryTimeout > 0 {
		sc.QueryTimeout = cfg.QueryTimeout.Duration()
	}
	return sc, true
}

// ToParquetOptions converts the export section.
func ToParquetOptions(cfg *ExportConfig) series.ParquetOptions {
	opts := series.DefaultParquetOptions()
	if cfg.ParquetCompression != "" {
		opts.Compression = series.ParseCompressionType(cfg.ParquetCompression)
	}
	return opts
}
