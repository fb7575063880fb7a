// Package client provides a client for the trending REST API.
package client

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/xtxerr/trending/internal/errors"
	"github.com/xtxerr/trending/internal/handler"
	"github.com/xtxerr/trending/internal/series"
	"github.com/xtxerr/trending/internal/store"
)

// DefaultTimeout bounds one request.
const DefaultTimeout = 60 * time.Second

// =============================================================================
// Errors
// =============================================================================

// APIError is a non-2xx response. It unwraps to the error kind matching
// its status, so errors.IsNotFound and friends work on it.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Unwrap maps the status back to an error kind.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return errors.ErrNotFound
	case http.StatusBadRequest:
		return errors.ErrInvalidRequest
	case http.StatusServiceUnavailable:
		return errors.ErrUnavailable
	case http.StatusGatewayTimeout:
		return errors.ErrTimeout
	case http.StatusBadGateway:
		return errors.ErrConnection
	default:
		return errors.ErrInternal
	}
}

// =============================================================================
// Client
// =============================================================================

// Client talks to a trendingd instance.
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a client for the API rooted at baseURL, for example
// "http://localhost:8080/rest/".
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.NewValidation("server", err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.NewValidation("server", fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{base: u, http: &http.Client{Timeout: timeout}}, nil
}

// sitePath joins the optional site and an endpoint: "", "channels" gives
// "channels"; "summit", "channels" gives "summit/channels".
func sitePath(site, endpoint string) string {
	if site == "" {
		return endpoint
	}
	if endpoint == "" {
		return url.PathEscape(site)
	}
	return url.PathEscape(site) + "/" + endpoint
}

func (c *Client) do(ctx context.Context, path string, q url.Values) (*http.Response, error) {
	ref := &url.URL{Path: path}
	if len(q) > 0 {
		ref.RawQuery = q.Encode()
	}
	u := c.base.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Kind(errors.ErrConnection, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		apiErr := &APIError{Status: resp.StatusCode}
		var body handler.ErrorResponse
		if b, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); err == nil && sonic.Unmarshal(b, &body) == nil {
			apiErr.Message = body.Message
		}
		return nil, apiErr
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out interface{}) error {
	resp, err := c.do(ctx, path, q)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Kind(errors.ErrConnection, err)
	}
	if err := sonic.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode %s: %w: %w", path, errors.ErrDecode, err)
	}
	return nil
}

// =============================================================================
// Endpoints
// =============================================================================

// ChannelsQuery selects catalog nodes.
type ChannelsQuery struct {
	Source  string
	Handle  *int
	Filter  string
	Flatten *bool
	Refresh bool
	Full    bool
}

func (q ChannelsQuery) values() url.Values {
	v := url.Values{}
	if q.Source != "" {
		v.Set("source", q.Source)
	}
	if q.Handle != nil {
		v.Set("id", strconv.Itoa(*q.Handle))
	}
	if q.Filter != "" {
		v.Set("filter", q.Filter)
	}
	if q.Flatten != nil {
		v.Set("flatten", strconv.FormatBool(*q.Flatten))
	}
	if q.Refresh {
		v.Set("refresh", "true")
	}
	if q.Full {
		v.Set("full", "true")
	}
	return v
}

// Channels lists catalog nodes of site. An empty site means the default.
func (c *Client) Channels(ctx context.Context, site string, q ChannelsQuery) ([]handler.NodeJSON, error) {
	var nodes []handler.NodeJSON
	err := c.getJSON(ctx, sitePath(site, "channels"), q.values(), &nodes)
	return nodes, err
}

// TrendQuery selects trending data.
type TrendQuery struct {
	Source    string
	Keys      []string
	Period    string
	T1, T2    *int64
	Bins      int
	Flavor    string
	ErrorBars string
	Summary   bool
}

func (q TrendQuery) values() url.Values {
	v := url.Values{"key": q.Keys}
	if q.Source != "" {
		v.Set("source", q.Source)
	}
	if q.Period != "" {
		v.Set("period", q.Period)
	}
	if q.T1 != nil {
		v.Set("t1", strconv.FormatInt(*q.T1, 10))
	}
	if q.T2 != nil {
		v.Set("t2", strconv.FormatInt(*q.T2, 10))
	}
	if q.Bins > 0 {
		v.Set("n", strconv.Itoa(q.Bins))
	}
	if q.Flavor != "" {
		v.Set("flavor", q.Flavor)
	}
	if q.ErrorBars != "" {
		v.Set("errorBars", q.ErrorBars)
	}
	if q.Summary {
		v.Set("summary", "true")
	}
	return v
}

// SummaryJSON is a series summary as served. Missing statistics are nil.
type SummaryJSON struct {
	Count   int64    `json:"count"`
	Min     *float64 `json:"min"`
	Max     *float64 `json:"max"`
	Mean    *float64 `json:"mean"`
	P50     *float64 `json:"p50"`
	P90     *float64 `json:"p90"`
	P99     *float64 `json:"p99"`
	FirstTs int64    `json:"firstTs"`
	LastTs  int64    `json:"lastTs"`
}

// Trend is a trending response. Each Data row is [timestamp, cell...];
// a cell is null, a number, [value, rms] or [min, value, max] depending
// on Meta.ErrorBars.
type Trend struct {
	Meta    series.Meta     `json:"meta"`
	Data    [][]interface{} `json:"data"`
	Summary []SummaryJSON   `json:"summary"`
}

// Trending fetches trending data of site.
func (c *Client) Trending(ctx context.Context, site string, q TrendQuery) (*Trend, error) {
	var t Trend
	if err := c.getJSON(ctx, sitePath(site, ""), q.values(), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Export streams trending data of site in format ("csv", "csv.gz" or
// "parquet") to w and returns the file name the server suggested.
func (c *Client) Export(ctx context.Context, site string, q TrendQuery, format string, w io.Writer) (string, error) {
	v := q.values()
	if format != "" {
		v.Set("format", format)
	}
	resp, err := c.do(ctx, sitePath(site, "export"), v)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", errors.Kind(errors.ErrConnection, err)
	}

	name := "export"
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return name, nil
}

// Loads lists recent catalog loads. An empty site lists every site's.
func (c *Client) Loads(ctx context.Context, site string, limit int) ([]store.Load, error) {
	v := url.Values{}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	var loads []store.Load
	err := c.getJSON(ctx, sitePath(site, "loads"), v, &loads)
	return loads, err
}

// Sites lists configured sites.
func (c *Client) Sites(ctx context.Context) ([]handler.SiteJSON, error) {
	var sites []handler.SiteJSON
	err := c.getJSON(ctx, "sites", nil, &sites)
	return sites, err
}
