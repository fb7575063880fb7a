package handler

import (
	"net/http"
	"strconv"

	"github.com/xtxerr/trending/internal/catalog"
	"github.com/xtxerr/trending/internal/site"
)

// NodeJSON is one catalog node as a browser displays it. ID is the node's
// handle; Extra is the data channel id of leaves that have one, which may
// be empty.
type NodeJSON struct {
	Text     string  `json:"text"`
	ID       int     `json:"id"`
	Extra    *string `json:"extra,omitempty"`
	Children bool    `json:"children"`
}

// DataID returns the data channel id and whether the node has one.
func (n NodeJSON) DataID() (string, bool) {
	if n.Extra == nil {
		return "", false
	}
	return *n.Extra, true
}

func nodesJSON(nodes []*catalog.Node) []NodeJSON {
	out := make([]NodeJSON, len(nodes))
	for i, n := range nodes {
		out[i] = NodeJSON{
			Text:     n.Name(),
			ID:       n.Handle(),
			Children: !n.IsLeaf(),
		}
		if id, ok := n.DataID(); ok {
			out[i].Extra = &id
		}
	}
	return out
}

// handleChannels serves ?id=&filter=&flatten=&refresh=&full=&source=
func (h *Handler) handleChannels(w http.ResponseWriter, r *http.Request) {
	s, err := h.site(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	query := site.ChannelsQuery{
		Source: q.Get("source"),
		Filter: q.Get("filter"),
	}
	if v := q.Get("id"); v != "" {
		handle, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, r, badParam("id", err))
			return
		}
		query.Handle = &handle
	}
	if v := q.Get("flatten"); v != "" {
		flatten, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, badParam("flatten", err))
			return
		}
		query.Flatten = &flatten
	}
	if query.Refresh, err = boolParam(q.Get("refresh")); err != nil {
		writeError(w, r, badParam("refresh", err))
		return
	}
	if query.Full, err = boolParam(q.Get("full")); err != nil {
		writeError(w, r, badParam("full", err))
		return
	}

	nodes, err := s.Channels(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodesJSON(nodes))
}

// boolParam parses an optional boolean. Empty is false.
func boolParam(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}
