package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/trending/internal/catalog"
	"github.com/xtxerr/trending/internal/clock"
	"github.com/xtxerr/trending/internal/errors"
	"github.com/xtxerr/trending/internal/series"
	"github.com/xtxerr/trending/internal/site"
	"github.com/xtxerr/trending/internal/store"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const catalogBody = `<datachannels>
  <datachannel><id>1</id><path><pathelement>focal-plane</pathelement><pathelement>R22</pathelement><pathelement>temp</pathelement></path></datachannel>
  <datachannel><id>2</id><path><pathelement>focal-plane</pathelement><pathelement>R22</pathelement><pathelement>volt</pathelement></path></datachannel>
  <datachannel><id>3</id><path><pathelement>vacuum</pathelement><pathelement>cryo</pathelement><pathelement>pressure</pathelement></path></datachannel>
</datachannels>`

const trendingBody = `<datas>
  <data id="11">
    <channelmetadata><channelmetadatavalue name="units" value="C"/></channelmetadata>
    <trendingresult>
      <trendingdata><axisvalue name="time" value="1000"/><datavalue name="value" value="1.5"/></trendingdata>
      <trendingdata><axisvalue name="time" value="2000"/><datavalue name="value" value="2.5"/></trendingdata>
    </trendingresult>
  </data>
  <data id="12">
    <trendingresult>
      <trendingdata><axisvalue name="time" value="2000"/><datavalue name="value" value="7"/></trendingdata>
    </trendingresult>
  </data>
</datas>`

type fixture struct {
	api      *httptest.Server
	upstream *httptest.Server
	registry *site.Registry
	loads    *fakeLoads

	mu       sync.Mutex
	failing  bool
	requests []string
}

func newFixture(t *testing.T, withLoads bool) *fixture {
	t.Helper()
	f := &fixture{}

	f.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.URL.RequestURI())
		failing := f.failing
		f.mu.Unlock()

		if failing {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		switch r.URL.Path {
		case "/rest/listchannels":
			fmt.Fprint(w, catalogBody)
		case "/rest/data/":
			fmt.Fprint(w, trendingBody)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.upstream.Close)

	f.registry = site.NewRegistry(site.Options{Clock: clock.Fake(epoch)})
	t.Cleanup(func() { f.registry.Close() })
	src := map[string]site.SourceConfig{"main": {RestURL: f.upstream.URL + "/rest/"}}
	require.NoError(t, f.registry.Apply([]site.Config{
		{Name: "summit", DefaultSource: "main", Sources: src},
		{Name: "base", DefaultSource: "main", Sources: src},
	}, "summit"))

	opts := Options{}
	if withLoads {
		f.loads = &fakeLoads{}
		opts.Loads = f.loads
	}
	f.api = httptest.NewServer(New(f.registry, opts))
	t.Cleanup(f.api.Close)
	return f
}

func (f *fixture) fail(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

func (f *fixture) upstreamRequests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(f.api.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, sonic.Unmarshal(body, &v), string(body))
	return v
}

type fakeLoads struct {
	site  string
	limit int
	err   error
}

func (f *fakeLoads) Recent(_ context.Context, site string, limit int) ([]store.Load, error) {
	f.site, f.limit = site, limit
	if f.err != nil {
		return nil, f.err
	}
	return []store.Load{{ID: 7, Site: "summit", Source: "main", Kind: "recent", Trigger: "first", Channels: 3}}, nil
}

// =============================================================================
// Channels
// =============================================================================

func TestChannelsDefaultSite(t *testing.T) {
	f := newFixture(t, false)

	resp, body := f.get(t, "/rest/channels")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	nodes := decode[[]NodeJSON](t, body)
	require.Len(t, nodes, 2)
	assert.Equal(t, "focal-plane", nodes[0].Text)
	assert.True(t, nodes[0].Children)
	assert.Nil(t, nodes[0].Extra)
	assert.Equal(t, "vacuum", nodes[1].Text)

	resp, body = f.get(t, fmt.Sprintf("/rest/summit/channels?id=%d", nodes[0].ID))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	children := decode[[]NodeJSON](t, body)
	require.Len(t, children, 1)
	assert.Equal(t, "R22", children[0].Text)
}

func TestChannelsLeafJSON(t *testing.T) {
	f := newFixture(t, false)

	resp, body := f.get(t, "/rest/base/channels?filter=regex:.*/pressure")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[{"text":"vacuum/cryo/pressure","id":1,"extra":"3","children":false}]`, string(body))
}

func TestNodesJSONExtra(t *testing.T) {
	tree := catalog.Build([]catalog.Record{
		{Path: []string{"mcm", "blank"}, ID: ""},
		{Path: []string{"mcm", "temp"}, ID: "7"},
		{Path: []string{"mcm", "sub", "volt"}, ID: "8"},
	})
	mcm := tree.Root().Children()[0]

	tests := []struct {
		name string
		node *catalog.Node
		want string
	}{
		{"empty id", mcm.Children()[0], `{"text":"blank","id":%d,"extra":"","children":false}`},
		{"folder", mcm.Children()[1], `{"text":"sub","id":%d,"children":true}`},
		{"id", mcm.Children()[2], `{"text":"temp","id":%d,"extra":"7","children":false}`},
		{"message", catalog.Message("Filter returned no results").Root().Children()[0],
			`{"text":"Filter returned no results","id":%d,"children":false}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := sonic.Marshal(nodesJSON([]*catalog.Node{tt.node})[0])
			require.NoError(t, err)
			assert.JSONEq(t, fmt.Sprintf(tt.want, tt.node.Handle()), string(body))
		})
	}

	id, ok := nodesJSON([]*catalog.Node{mcm.Children()[0]})[0].DataID()
	assert.True(t, ok)
	assert.Empty(t, id)
	_, ok = nodesJSON([]*catalog.Node{mcm.Children()[1]})[0].DataID()
	assert.False(t, ok)
}

func TestChannelsFilterMessage(t *testing.T) {
	f := newFixture(t, false)

	_, body := f.get(t, "/rest/channels?filter=nothing")
	assert.JSONEq(t, `[{"text":"Filter returned no results","id":1,"children":false}]`, string(body))
}

func TestChannelsFlattenParam(t *testing.T) {
	f := newFixture(t, false)

	_, body := f.get(t, "/rest/channels?filter=focal-plane/**&flatten=false")
	nodes := decode[[]NodeJSON](t, body)
	require.Len(t, nodes, 1)
	assert.Equal(t, "focal-plane", nodes[0].Text)

	_, body = f.get(t, "/rest/channels?filter=focal-plane/**")
	nodes = decode[[]NodeJSON](t, body)
	require.Len(t, nodes, 1)
	assert.Equal(t, "focal-plane/R22", nodes[0].Text)
}

func TestChannelsRefreshAndFull(t *testing.T) {
	f := newFixture(t, false)

	f.get(t, "/rest/channels")
	f.get(t, "/rest/channels?refresh=true")
	f.get(t, "/rest/channels?full=1")
	assert.Equal(t, []string{
		"/rest/listchannels?maxIdleSeconds=604800",
		"/rest/listchannels?maxIdleSeconds=604800",
		"/rest/listchannels?maxIdleSeconds=0",
	}, f.upstreamRequests())
}

func TestChannelsErrors(t *testing.T) {
	f := newFixture(t, false)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"bad id", "/rest/channels?id=abc", http.StatusBadRequest},
		{"bad flatten", "/rest/channels?flatten=maybe", http.StatusBadRequest},
		{"bad refresh", "/rest/channels?refresh=often", http.StatusBadRequest},
		{"unknown site", "/rest/nowhere/channels", http.StatusNotFound},
		{"unknown source", "/rest/channels?source=spare", http.StatusNotFound},
		{"unknown handle", "/rest/channels?id=999", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.get(t, tt.path)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))

			e := decode[ErrorResponse](t, body)
			assert.Equal(t, http.StatusText(tt.status), e.Error)
			assert.NotEmpty(t, e.Message)
		})
	}
}

func TestChannelsUpstreamDown(t *testing.T) {
	f := newFixture(t, false)
	f.fail(true)

	resp, _ := f.get(t, "/rest/channels")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

// =============================================================================
// Trending
// =============================================================================

func TestTrending(t *testing.T) {
	f := newFixture(t, false)

	resp, body := f.get(t, "/rest/?key=11&key=12&t1=500&t2=2500&n=10")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `{
		"meta": {"errorBars":"NONE","nBins":10,"min":500,"max":2500,"flavor":"STAT",
		         "perData":[{"units":"C"},{}]},
		"data": [[1000,1.5,null],[2000,2.5,7]]
	}`, string(body))
	assert.Equal(t, []string{"/rest/data/?id=11&id=12&t1=500&t2=2500&n=10&flavor=stat"}, f.upstreamRequests())
}

func TestTrendingSiteAndOptions(t *testing.T) {
	f := newFixture(t, false)

	resp, body := f.get(t, "/rest/base?key=11&flavor=raw&errorBars=rms&t1=1&t2=2")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	got := decode[map[string]interface{}](t, body)
	meta := got["meta"].(map[string]interface{})
	assert.Equal(t, "RMS", meta["errorBars"])
	assert.Equal(t, "RAW", meta["flavor"])
	assert.Equal(t, []string{"/rest/data/?id=11&t1=1&t2=2&n=100&flavor=raw"}, f.upstreamRequests())
}

func TestTrendingSummary(t *testing.T) {
	f := newFixture(t, false)

	_, body := f.get(t, "/rest/?key=11&key=12&summary=true&t1=0&t2=1")
	got := decode[map[string]interface{}](t, body)
	summary, ok := got["summary"].([]interface{})
	require.True(t, ok, string(body))
	require.Len(t, summary, 2)

	first := summary[0].(map[string]interface{})
	assert.EqualValues(t, 2, first["count"])
	assert.EqualValues(t, 1.5, first["min"])
	assert.EqualValues(t, 2.5, first["max"])
	assert.EqualValues(t, 2, first["mean"])
}

func TestTrendingErrors(t *testing.T) {
	f := newFixture(t, false)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"no key", "/rest/", http.StatusBadRequest},
		{"bad t1", "/rest/?key=1&t1=yesterday", http.StatusBadRequest},
		{"bad n", "/rest/?key=1&n=-3", http.StatusBadRequest},
		{"bad flavor", "/rest/?key=1&flavor=spicy", http.StatusBadRequest},
		{"bad error bars", "/rest/?key=1&errorBars=huge", http.StatusBadRequest},
		{"bad summary", "/rest/?key=1&summary=please", http.StatusBadRequest},
		{"unknown site", "/rest/nowhere?key=1", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.get(t, tt.path)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
		})
	}
	assert.Empty(t, f.upstreamRequests())
}

func TestTrendingUpstreamDown(t *testing.T) {
	f := newFixture(t, false)
	f.fail(true)

	resp, body := f.get(t, "/rest/?key=1")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, decode[ErrorResponse](t, body).Message, "connection")
}

// =============================================================================
// Export
// =============================================================================

func TestExportCSV(t *testing.T) {
	f := newFixture(t, false)

	resp, body := f.get(t, "/rest/summit/export?key=11&key=12&t1=500&t2=2500")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="summit-500-2500.csv"`, resp.Header.Get("Content-Disposition"))
	assert.Equal(t, "timestamp,11,12\n1000,1.5,\n2000,2.5,7\n", string(body))
}

func TestExportParquet(t *testing.T) {
	f := newFixture(t, false)

	resp, body := f.get(t, "/rest/export?key=11&key=12&format=parquet&t1=0&t2=1")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "application/vnd.apache.parquet", resp.Header.Get("Content-Type"))

	r := parquet.NewGenericReader[series.ParquetRow](bytes.NewReader(body))
	defer r.Close()
	rows := make([]series.ParquetRow, 10)
	n, _ := r.Read(rows)
	require.Equal(t, 3, n)
	assert.Equal(t, "11", rows[0].Series)
	assert.Equal(t, int64(1000), rows[0].TimestampMs)
}

func TestExportBadFormat(t *testing.T) {
	f := newFixture(t, false)

	resp, _ := f.get(t, "/rest/export?key=11&format=xlsx")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, f.upstreamRequests())
}

// =============================================================================
// Sites and loads
// =============================================================================

func TestSites(t *testing.T) {
	f := newFixture(t, false)
	f.get(t, "/rest/channels")

	resp, body := f.get(t, "/rest/sites")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sites := decode[[]SiteJSON](t, body)
	require.Len(t, sites, 2)
	assert.Equal(t, "base", sites[0].Name)
	assert.False(t, sites[0].Default)
	assert.Equal(t, "summit", sites[1].Name)
	assert.True(t, sites[1].Default)

	require.Len(t, sites[1].Sources, 1)
	recent := sites[1].Sources[0].Catalogs[0]
	assert.Equal(t, "recent", recent.Kind)
	assert.Equal(t, "ready", recent.State)
	assert.Positive(t, recent.Nodes)
	assert.NotNil(t, recent.LastLoad)
}

func TestLoads(t *testing.T) {
	f := newFixture(t, true)

	resp, body := f.get(t, "/rest/summit/loads?limit=5")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	loads := decode[[]store.Load](t, body)
	require.Len(t, loads, 1)
	assert.Equal(t, int64(7), loads[0].ID)
	assert.Equal(t, "summit", f.loads.site)
	assert.Equal(t, 5, f.loads.limit)

	f.get(t, "/rest/loads")
	assert.Equal(t, "", f.loads.site)
	assert.Equal(t, 50, f.loads.limit)
}

func TestLoadsErrors(t *testing.T) {
	f := newFixture(t, true)

	resp, _ := f.get(t, "/rest/nowhere/loads")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.get(t, "/rest/loads?limit=lots")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	f.loads.err = errors.NewInvalidValue("limit", 0, "must be positive")
	resp, _ = f.get(t, "/rest/loads?limit=0")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	f.loads.err = errors.Kind(errors.ErrDatabase, errors.New("disk full"))
	resp, _ = f.get(t, "/rest/loads")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestLoadsDisabled(t *testing.T) {
	f := newFixture(t, false)

	resp, body := f.get(t, "/rest/loads")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "metastore disabled", decode[ErrorResponse](t, body).Message)
}

// =============================================================================
// Routing
// =============================================================================

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, false)

	resp, err := http.Post(f.api.URL+"/rest/channels", "text/plain", strings.NewReader(""))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCustomPrefix(t *testing.T) {
	f := newFixture(t, false)
	srv := httptest.NewServer(New(f.registry, Options{Prefix: "/api/trending/"}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/trending/channels")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestToHTTPError(t *testing.T) {
	herr := ToHTTPError(fmt.Errorf("wrapped: %w", badParam("n", errors.New("nope"))))
	assert.Equal(t, http.StatusBadRequest, herr.Status)
	assert.Equal(t, "invalid n: nope", herr.Message)

	herr = ToHTTPError(errors.Kind(errors.ErrUnavailable, errors.New("loading")))
	assert.Equal(t, http.StatusServiceUnavailable, herr.Status)
}
