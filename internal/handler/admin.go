package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/xtxerr/trending/config"
	"github.com/xtxerr/trending/internal/errors"
	"github.com/xtxerr/trending/internal/store"
)

// SiteJSON describes a configured site.
type SiteJSON struct {
	Name          string       `json:"name"`
	Default       bool         `json:"default"`
	DefaultSource string       `json:"defaultSource"`
	Sources       []SourceJSON `json:"sources"`
}

// SourceJSON describes a source and the state of its catalogs.
type SourceJSON struct {
	Name     string        `json:"name"`
	Catalogs []CatalogJSON `json:"catalogs"`
}

// CatalogJSON is the cache state of one catalog.
type CatalogJSON struct {
	Kind      string     `json:"kind"`
	State     string     `json:"state"`
	Nodes     int        `json:"nodes"`
	LastLoad  *time.Time `json:"lastLoad,omitempty"`
	NextLoad  *time.Time `json:"nextLoad,omitempty"`
	LastError string     `json:"lastError,omitempty"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// handleSites lists sites, sources and catalog states.
func (h *Handler) handleSites(w http.ResponseWriter, r *http.Request) {
	def := h.sites.Default()
	out := make([]SiteJSON, 0)
	for _, name := range h.sites.Names() {
		s, err := h.sites.Get(name)
		if err != nil {
			// Removed by a concurrent reload.
			continue
		}
		sj := SiteJSON{
			Name:          name,
			Default:       name == def,
			DefaultSource: s.DefaultSource(),
		}
		for _, st := range s.Status() {
			src := SourceJSON{Name: st.Source}
			for _, c := range st.Catalogs {
				cj := CatalogJSON{
					Kind:     c.Kind,
					State:    c.State.String(),
					Nodes:    c.Nodes,
					LastLoad: timePtr(c.LastLoad),
					NextLoad: timePtr(c.NextLoad),
				}
				if c.LastError != nil {
					cj.LastError = c.LastError.Error()
				}
				src.Catalogs = append(src.Catalogs, cj)
			}
			sj.Sources = append(sj.Sources, src)
		}
		out = append(out, sj)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleLoads lists recent catalog loads (?limit=). Without a {site} path
// value every site's loads are listed.
func (h *Handler) handleLoads(w http.ResponseWriter, r *http.Request) {
	if h.loads == nil {
		writeError(w, r, &HTTPError{
			Status:  http.StatusServiceUnavailable,
			Message: "metastore disabled",
			Cause:   errors.ErrUnavailable,
		})
		return
	}

	name := r.PathValue("site")
	if name != "" {
		if _, err := h.sites.Get(name); err != nil {
			writeError(w, r, err)
			return
		}
	}

	limit := config.DefaultLoadHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, r, badParam("limit", err))
			return
		}
		limit = n
	}

	loads, err := h.loads.Recent(r.Context(), name, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if loads == nil {
		loads = []store.Load{}
	}
	writeJSON(w, http.StatusOK, loads)
}
