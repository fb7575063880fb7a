package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/xtxerr/trending/config"
	"github.com/xtxerr/trending/internal/errors"
)

// TunnelProvider establishes tunnels to a remote host:port.
type TunnelProvider interface {
	Open(ctx context.Context, remoteAddr string) (Tunnel, error)
}

// Tunnel is an established port forward. LocalAddr is the host:port that
// reaches the remote address.
type Tunnel interface {
	LocalAddr() string
	Alive() bool
	Close() error
}

// TunneledConfig configures a Tunneled endpoint.
type TunneledConfig struct {
	// RestURL is the dataserver base URL as seen from the tunnel host.
	RestURL string

	// Provider establishes the tunnel.
	Provider TunnelProvider

	// Retries is the total number of attempts, establishing included.
	// Zero means config.DefaultTunnelRetries.
	Retries int

	// Timeouts for each attempt. Zero values mean config.DefaultTunnelTimeout.
	Timeouts Timeouts

	// Logger defaults to the source component logger.
	Logger *slog.Logger
}

// Tunneled reaches a dataserver through a lazily established tunnel. A
// failed open tears the tunnel down and retries with a fresh one.
type Tunneled struct {
	remote   *url.URL
	provider TunnelProvider
	retries  int
	client   *http.Client
	logger   *slog.Logger

	// mu serialises establish and teardown. Opens over an established
	// tunnel do not hold it.
	mu     sync.Mutex
	tunnel Tunnel
	base   *url.URL
	closed bool
}

// NewTunneled creates a Tunneled endpoint. No connection is made until the
// first Open.
func NewTunneled(cfg TunneledConfig) (*Tunneled, error) {
	remote, err := ParseBaseURL(cfg.RestURL)
	if err != nil {
		return nil, err
	}
	if cfg.Provider == nil {
		return nil, errors.NewMissingField("provider")
	}
	if cfg.Retries <= 0 {
		cfg.Retries = config.DefaultTunnelRetries
	}
	if cfg.Timeouts.Connect <= 0 {
		cfg.Timeouts.Connect = config.DefaultTunnelTimeout
	}
	if cfg.Timeouts.Read <= 0 {
		cfg.Timeouts.Read = config.DefaultTunnelTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log
	}

	return &Tunneled{
		remote:   remote,
		provider: cfg.Provider,
		retries:  cfg.Retries,
		client:   newHTTPClient(cfg.Timeouts, false),
		logger:   cfg.Logger.With("remote", remote.Host),
	}, nil
}

// Open fetches relativePath through the tunnel, retrying with a new tunnel
// on failure.
func (e *Tunneled) Open(ctx context.Context, relativePath string) (io.ReadCloser, error) {
	ref, err := url.Parse(relativePath)
	if err != nil {
		return nil, fmt.Errorf("relative path %q: %w", relativePath, errors.ErrInvalidRequest)
	}

	var lastErr error
	for attempt := 1; attempt <= e.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Kind(errors.ErrConnection, err)
		}

		tun, base, err := e.ensure(ctx)
		if err != nil {
			if errors.Is(err, errors.ErrClosed) {
				return nil, errors.Kind(errors.ErrConnection, err)
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, errors.Kind(errors.ErrConnection, ctxErr)
			}
			lastErr = err
			e.logger.Warn("tunnel establish failed", "attempt", attempt, "error", err)
			continue
		}

		u := base.ResolveReference(ref)
		body, err := get(ctx, e.client, u)
		if err == nil {
			return body, nil
		}
		// The caller gave up; the tunnel is still good for everyone else.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Kind(errors.ErrConnection, ctxErr)
		}
		lastErr = err
		e.logger.Warn("open through tunnel failed",
			"path", relativePath,
			"attempt", attempt,
			"error", err)
		e.teardown(tun)
	}

	return nil, fmt.Errorf("open %s failed after %d attempts: %w",
		relativePath, e.retries, errors.Kind(errors.ErrConnection, lastErr))
}

// ensure returns the live tunnel, establishing one if needed.
func (e *Tunneled) ensure(ctx context.Context) (Tunnel, *url.URL, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, nil, errors.ErrClosed
	}
	if e.tunnel != nil && e.tunnel.Alive() {
		return e.tunnel, e.base, nil
	}
	if e.tunnel != nil {
		e.tunnel.Close()
		e.tunnel = nil
		e.client.CloseIdleConnections()
	}

	tun, err := e.provider.Open(ctx, tunnelTarget(e.remote))
	if err != nil {
		return nil, nil, errors.Wrap(err, "establish tunnel")
	}

	e.tunnel = tun
	e.base = &url.URL{
		Scheme: "http",
		Host:   tun.LocalAddr(),
		Path:   e.remote.Path,
	}
	e.logger.Info("tunnel established", "local", tun.LocalAddr())
	return e.tunnel, e.base, nil
}

// teardown closes tun if it is still the current tunnel. Another caller
// may already have replaced it.
func (e *Tunneled) teardown(tun Tunnel) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tunnel != tun {
		return
	}
	e.tunnel.Close()
	e.tunnel = nil
	e.base = nil
	e.client.CloseIdleConnections()
}

// Close tears down the tunnel. Later opens fail with ErrConnection.
func (e *Tunneled) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	var err error
	if e.tunnel != nil {
		err = e.tunnel.Close()
		e.tunnel = nil
	}
	e.client.CloseIdleConnections()
	return err
}

// tunnelTarget returns host:port of u, filling in the scheme's default port.
func tunnelTarget(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	if u.Scheme == "https" {
		return u.Hostname() + ":443"
	}
	return u.Hostname() + ":80"
}
