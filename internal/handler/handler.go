// Package handler serves the trending REST API.
//
// Endpoints, relative to the API prefix (default /rest):
//
//	GET /                     trending data of the default site
//	GET /{site}               trending data
//	GET /channels             catalog nodes of the default site
//	GET /{site}/channels      catalog nodes
//	GET /export               trending data as a file, default site
//	GET /{site}/export        trending data as a file
//	GET /loads                catalog load history, all sites
//	GET /{site}/loads         catalog load history of one site
//	GET /sites                configured sites and their sources
package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"

	"github.com/xtxerr/trending/config"
	"github.com/xtxerr/trending/internal/errors"
	"github.com/xtxerr/trending/internal/logging"
	"github.com/xtxerr/trending/internal/series"
	"github.com/xtxerr/trending/internal/site"
	"github.com/xtxerr/trending/internal/store"
)

var log = logging.Component("handler")

// =============================================================================
// Handler
// =============================================================================

// Sites resolves site names. *site.Registry implements it.
type Sites interface {
	Get(name string) (*site.Site, error)
	Names() []string
	Default() string
}

// LoadHistory lists recorded catalog loads. *store.Store implements it.
type LoadHistory interface {
	Recent(ctx context.Context, site string, limit int) ([]store.Load, error)
}

// Options configures a Handler.
type Options struct {
	// Prefix is the path every endpoint lives under.
	// Default: config.DefaultAPIPrefix
	Prefix string

	// Loads serves /loads. Nil disables the endpoint.
	Loads LoadHistory

	// Parquet configures parquet exports.
	Parquet series.ParquetOptions
}

// Handler is the REST API. It is safe for concurrent use.
type Handler struct {
	sites   Sites
	loads   LoadHistory
	parquet series.ParquetOptions
	prefix  string

	mux       *http.ServeMux
	requestID atomic.Uint64
}

// New creates a Handler serving sites.
func New(sites Sites, opts Options) *Handler {
	if opts.Prefix == "" {
		opts.Prefix = config.DefaultAPIPrefix
	}
	if opts.Parquet == (series.ParquetOptions{}) {
		opts.Parquet = series.DefaultParquetOptions()
	}

	h := &Handler{
		sites:   sites,
		loads:   opts.Loads,
		parquet: opts.Parquet,
		prefix:  strings.TrimSuffix(opts.Prefix, "/"),
		mux:     http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	p := h.prefix
	h.mux.HandleFunc("GET "+p+"/{$}", h.handleTrending)
	h.mux.HandleFunc("GET "+p+"/{site}", h.handleTrending)
	h.mux.HandleFunc("GET "+p+"/channels", h.handleChannels)
	h.mux.HandleFunc("GET "+p+"/{site}/channels", h.handleChannels)
	h.mux.HandleFunc("GET "+p+"/export", h.handleExport)
	h.mux.HandleFunc("GET "+p+"/{site}/export", h.handleExport)
	h.mux.HandleFunc("GET "+p+"/loads", h.handleLoads)
	h.mux.HandleFunc("GET "+p+"/{site}/loads", h.handleLoads)
	h.mux.HandleFunc("GET "+p+"/sites", h.handleSites)
}

// ServeHTTP logs and dispatches a request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := h.requestID.Add(1)
	start := time.Now()
	ctx := logging.ContextWithRequestID(r.Context(), id)

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	h.mux.ServeHTTP(rec, r.WithContext(ctx))

	logging.WithContext(ctx).Debug("request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"duration", time.Since(start))
}

// site resolves the {site} path value. Absent means the default site.
func (h *Handler) site(r *http.Request) (*site.Site, error) {
	return h.sites.Get(r.PathValue("site"))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// =============================================================================
// Errors
// =============================================================================

// HTTPError is an error with the HTTP status it is reported with.
type HTTPError struct {
	Status  int
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *HTTPError) Unwrap() error {
	return e.Cause
}

// badParam reports an unparseable query parameter.
func badParam(name string, err error) *HTTPError {
	return &HTTPError{
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("invalid %s: %v", name, err),
		Cause:   errors.ErrInvalidRequest,
	}
}

// ToHTTPError converts any error to an HTTPError. The status follows the
// error's kind.
func ToHTTPError(err error) *HTTPError {
	var herr *HTTPError
	if errors.As(err, &herr) {
		return herr
	}
	return &HTTPError{Status: errors.ErrorToStatus(err), Message: err.Error(), Cause: err}
}

// =============================================================================
// Response Helpers
// =============================================================================

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := sonic.Marshal(data)
	if err != nil {
		log.Error("encode response", "error", err)
		status = http.StatusInternalServerError
		body, _ = sonic.Marshal(ErrorResponse{
			Error:   http.StatusText(status),
			Message: "failed to encode response",
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	herr := ToHTTPError(err)
	l := logging.WithContext(r.Context())
	switch {
	case errors.IsTransport(err):
		l.Warn("upstream request failed", "path", r.URL.Path, "status", herr.Status, "error", err)
	case herr.Status >= http.StatusInternalServerError:
		l.Error("request failed", "path", r.URL.Path, "status", herr.Status, "error", err)
	default:
		l.Debug("request rejected", "path", r.URL.Path, "status", herr.Status, "error", err)
	}
	writeJSON(w, herr.Status, ErrorResponse{
		Error:   http.StatusText(herr.Status),
		Message: herr.Message,
	})
}
