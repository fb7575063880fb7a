package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/xtxerr/trending/internal/series"
	"github.com/xtxerr/trending/internal/site"
)

// TrendingResponse is the body of a trending request.
type TrendingResponse struct {
	Meta    series.Meta      `json:"meta"`
	Data    []series.Row     `json:"data"`
	Summary []series.Summary `json:"summary,omitempty"`
}

// parseTrending reads ?key=&period=&t1=&t2=&n=&flavor=&errorBars=&source=
func parseTrending(q url.Values) (site.TrendingQuery, error) {
	query := site.TrendingQuery{
		Source: q.Get("source"),
		Keys:   q["key"],
		Period: q.Get("period"),
	}

	for _, p := range []struct {
		name string
		dst  **int64
	}{{"t1", &query.T1}, {"t2", &query.T2}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return query, badParam(p.name, err)
		}
		*p.dst = &t
	}

	if v := q.Get("n"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return query, badParam("n", err)
		}
		if n <= 0 {
			return query, badParam("n", fmt.Errorf("must be positive"))
		}
		query.Bins = n
	}

	var err error
	if query.Flavor, err = series.ParseFlavor(q.Get("flavor")); err != nil {
		return query, badParam("flavor", err)
	}
	if query.ErrorBars, err = series.ParseErrorBars(q.Get("errorBars")); err != nil {
		return query, badParam("errorBars", err)
	}
	return query, nil
}

func (h *Handler) trending(r *http.Request) (*site.Site, *site.TrendingResult, error) {
	s, err := h.site(r)
	if err != nil {
		return nil, nil, err
	}
	query, err := parseTrending(r.URL.Query())
	if err != nil {
		return nil, nil, err
	}
	res, err := s.Trending(r.Context(), query)
	if err != nil {
		return nil, nil, err
	}
	return s, res, nil
}

// handleTrending serves merged trending data, optionally with per-series
// summaries (?summary=true).
func (h *Handler) handleTrending(w http.ResponseWriter, r *http.Request) {
	summary, err := boolParam(r.URL.Query().Get("summary"))
	if err != nil {
		writeError(w, r, badParam("summary", err))
		return
	}

	_, res, err := h.trending(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := TrendingResponse{Meta: res.Meta, Data: res.Rows}
	if resp.Data == nil {
		resp.Data = []series.Row{}
	}
	if summary {
		resp.Summary = series.SummarizeAll(res.Rows, len(res.Keys))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleExport serves trending data as a csv, csv.gz or parquet file
// (?format=). Columns are labelled with the requested keys.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := series.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, badParam("format", err))
		return
	}

	s, res, err := h.trending(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if format == series.FormatParquet {
		err = series.WriteParquet(&buf, res.Keys, res.Rows, h.parquet)
	} else {
		err = series.Export(&buf, format, res.Keys, res.Rows)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	name := fmt.Sprintf("%s-%d-%d.%s", s.Name(), res.Meta.Min, res.Meta.Max, format.Extension())
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}
