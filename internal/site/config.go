package site

import (
	"fmt"
	"sort"
	"time"

	"github.com/xtxerr/trending/config"
	"github.com/xtxerr/trending/internal/errors"
	"github.com/xtxerr/trending/internal/source"
	"github.com/xtxerr/trending/internal/validation"
)

// SourceConfig is one dataserver reachable from a site.
type SourceConfig struct {
	// RestURL is the dataserver REST base URL.
	RestURL string

	// UseSSH routes requests through the site's SSH tunnel.
	UseSSH bool
}

// Config describes a site.
type Config struct {
	Name string

	// DefaultSource names the source used when a request names none.
	DefaultSource string

	Sources map[string]SourceConfig

	// SSH is required when any source sets UseSSH.
	SSH source.SSHConfig

	// Timeout is the connect and read timeout of tunneled requests.
	Timeout time.Duration

	// Retries is the total number of attempts of tunneled requests.
	Retries int

	RefreshInterval time.Duration
	RetryInterval   time.Duration
	LoadTimeout     time.Duration
}

// Validate checks the configuration.
func (c Config) Validate() error {
	errs := errors.NewValidationErrors()
	prefix := "sites." + c.Name

	if c.Name == "" {
		errs.AddMissing("sites.<name>")
	} else if err := validation.ValidateSiteName(c.Name); err != nil {
		errs.AddField(prefix, err.Error())
	}
	if len(c.Sources) == 0 {
		errs.AddMissing(prefix + ".sources")
	} else if _, ok := c.Sources[c.DefaultSource]; !ok {
		errs.AddField(prefix+".default_source", fmt.Sprintf("source %q is not defined", c.DefaultSource))
	}

	needSSH := false
	for _, name := range c.SourceNames() {
		sc := c.Sources[name]
		if err := validation.ValidateSourceName(name); err != nil {
			errs.AddField(fmt.Sprintf("%s.sources.%q", prefix, name), err.Error())
		}
		if sc.RestURL == "" {
			errs.AddMissing(fmt.Sprintf("%s.sources.%q.rest_url", prefix, name))
		} else if _, err := source.ParseBaseURL(sc.RestURL); err != nil {
			errs.Add(fmt.Errorf("%s.sources.%q: %w", prefix, name, err))
		}
		needSSH = needSSH || sc.UseSSH
	}

	if needSSH {
		if c.SSH.Host == "" {
			errs.AddMissing(prefix + ".ssh.host")
		}
		if c.SSH.User == "" {
			errs.AddMissing(prefix + ".ssh.user")
		}
		if c.SSH.KeyFile == "" {
			errs.AddMissing(prefix + ".ssh.key")
		}
	}
	if c.Timeout < 0 {
		errs.AddField(prefix+".timeout", "must not be negative")
	}
	if c.Retries < 0 {
		errs.AddField(prefix+".retries", "must not be negative")
	}

	return errs.Err()
}

// NeedsSSH reports whether any source is tunneled.
func (c Config) NeedsSSH() bool {
	for _, sc := range c.Sources {
		if sc.UseSSH {
			return true
		}
	}
	return false
}

// SourceNames returns the source names in sorted order.
func (c Config) SourceNames() []string {
	names := make([]string, 0, len(c.Sources))
	for name := range c.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = config.DefaultTunnelTimeout
	}
	if c.Retries <= 0 {
		c.Retries = config.DefaultTunnelRetries
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = config.DefaultRefreshInterval
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = config.DefaultRetryInterval
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = config.DefaultLoadTimeout
	}
}
