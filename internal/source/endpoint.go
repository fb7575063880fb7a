// Package source opens byte streams from a dataserver REST endpoint, either
// directly or through a lazily established, retried tunnel.
package source

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xtxerr/trending/internal/errors"
	"github.com/xtxerr/trending/internal/logging"
)

var log = logging.Component("source")

// Endpoint opens readable streams for paths relative to a dataserver base
// URL. Implementations are safe for concurrent use.
type Endpoint interface {
	// Open returns the body of relativePath. Failures wrap
	// errors.ErrConnection.
	Open(ctx context.Context, relativePath string) (io.ReadCloser, error)

	// Close releases any connection held by the endpoint.
	Close() error
}

// Timeouts bounds a single stream open. Zero means no limit.
type Timeouts struct {
	// Connect bounds establishing the TCP connection.
	Connect time.Duration

	// Read bounds every individual read, including waiting for the
	// response headers.
	Read time.Duration
}

// ParseBaseURL parses a dataserver REST URL. The path always ends in '/'
// so that relative paths resolve below it.
func ParseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.NewValidation("rest_url", err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.NewValidation("rest_url", fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}
	if u.Host == "" {
		return nil, errors.NewValidation("rest_url", "missing host")
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

// resolve resolves relativePath against base.
func resolve(base *url.URL, relativePath string) (*url.URL, error) {
	ref, err := url.Parse(relativePath)
	if err != nil {
		return nil, fmt.Errorf("relative path %q: %w", relativePath, errors.ErrInvalidRequest)
	}
	return base.ResolveReference(ref), nil
}

// newHTTPClient returns a client whose connections enforce t.
func newHTTPClient(t Timeouts, useProxy bool) *http.Client {
	dialer := &net.Dialer{Timeout: t.Connect}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if t.Read > 0 {
				return &deadlineConn{Conn: conn, timeout: t.Read}, nil
			}
			return conn, nil
		},
		ResponseHeaderTimeout: t.Read,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
	if useProxy {
		transport.Proxy = http.ProxyFromEnvironment
	}
	return &http.Client{Transport: transport}
}

// deadlineConn arms a fresh read deadline before every Read, so a stalled
// body fails after timeout instead of hanging.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

// get fetches u and returns its body. Any failure, including a non-2xx
// status, wraps errors.ErrConnection.
func get(ctx context.Context, client *http.Client, u *url.URL) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Kind(errors.ErrConnection, err)
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := client.Do(req)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			err = errors.Kind(errors.ErrTimeout, err)
		}
		return nil, errors.Kind(errors.ErrConnection, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s: %w", u.Redacted(), resp.Status, errors.ErrConnection)
	}
	return resp.Body, nil
}

// =============================================================================
// Direct
// =============================================================================

// Direct opens streams straight from the base URL without retries.
type Direct struct {
	base   *url.URL
	client *http.Client
}

// NewDirect creates a Direct endpoint for baseURL.
func NewDirect(baseURL string, t Timeouts) (*Direct, error) {
	base, err := ParseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Direct{
		base:   base,
		client: newHTTPClient(t, true),
	}, nil
}

// Open fetches relativePath resolved against the base URL.
func (d *Direct) Open(ctx context.Context, relativePath string) (io.ReadCloser, error) {
	u, err := resolve(d.base, relativePath)
	if err != nil {
		return nil, err
	}
	return get(ctx, d.client, u)
}

// Close drops idle connections.
func (d *Direct) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

// BaseURL returns the URL relative paths are resolved against.
func (d *Direct) BaseURL() string { return d.base.String() }
