package series

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergerSharedTimestamp(t *testing.T) {
	m := NewMerger(3, ErrorBarsNone)
	require.True(t, m.Put(1000, 0, Scalar(1.5)))
	require.True(t, m.Put(1000, 2, Scalar(-4)))

	rows := m.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1000), rows[0].Timestamp)
	require.Len(t, rows[0].Bins, 3)
	assert.Equal(t, 1.5, rows[0].Bins[0].Value)
	assert.Nil(t, rows[0].Bins[1], "unspecified column stays empty, not zero")
	assert.Equal(t, -4.0, rows[0].Bins[2].Value)
}

func TestMergerAscendingOrder(t *testing.T) {
	m := NewMerger(2, ErrorBarsNone)
	for _, ts := range []int64{500, 100, 400, 200, 300} {
		m.Put(ts, int(ts/100)%2, Scalar(float64(ts)))
	}

	var got []int64
	for _, r := range m.Rows() {
		got = append(got, r.Timestamp)
	}
	assert.Equal(t, []int64{100, 200, 300, 400, 500}, got)
	assert.Equal(t, 5, m.Len())
}

func TestMergerLastWriteWins(t *testing.T) {
	m := NewMerger(1, ErrorBarsNone)
	m.Put(10, 0, Scalar(1))
	m.Put(10, 0, Scalar(2))

	rows := m.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, 2.0, rows[0].Bins[0].Value)
}

func TestMergerAxisOutOfRange(t *testing.T) {
	m := NewMerger(2, ErrorBarsNone)
	assert.False(t, m.Put(10, 2, Scalar(1)))
	assert.False(t, m.Put(10, -1, Scalar(1)))
	assert.Equal(t, 0, m.Len(), "rejected puts create no row")
}

func TestMergerEmpty(t *testing.T) {
	m := NewMerger(0, ErrorBarsNone)
	assert.Empty(t, m.Rows())
	assert.False(t, m.Put(1, 0, Scalar(1)))
}

func TestRowJSON(t *testing.T) {
	full := Bin{Value: 2.5, RMS: 0.25, Min: 1, Max: 4}
	tests := []struct {
		name string
		mode ErrorBars
		bins []*Bin
		want string
	}{
		{"scalar", ErrorBarsNone, []*Bin{&full, nil}, `[1700000000000,2.5,null]`},
		{"rms", ErrorBarsRMS, []*Bin{&full, nil}, `[1700000000000,[2.5,0.25],null]`},
		{"minmax", ErrorBarsMinMax, []*Bin{nil, &full}, `[1700000000000,null,[1,2.5,4]]`},
		{"nan value", ErrorBarsRMS, []*Bin{{Value: math.NaN(), RMS: 1}}, `[1700000000000,null]`},
		{"nan stat", ErrorBarsMinMax, []*Bin{{Value: 3, Min: math.NaN(), Max: 5}}, `[1700000000000,[null,3,5]]`},
		{"large", ErrorBarsNone, []*Bin{{Value: 1e21}}, `[1700000000000,1e+21]`},
		{"no series", ErrorBarsNone, nil, `[1700000000000]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := Row{Timestamp: 1700000000000, Bins: tt.bins, mode: tt.mode}
			b, err := json.Marshal(row)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
		})
	}
}

func TestRowsCarryMode(t *testing.T) {
	m := NewMerger(1, ErrorBarsMinMax)
	m.Put(5, 0, Bin{Value: 2, Min: 1, Max: 3, RMS: math.NaN()})

	b, err := json.Marshal(m.Rows())
	require.NoError(t, err)
	assert.JSONEq(t, `[[5,[1,2,3]]]`, string(b))
}

func TestParseErrorBars(t *testing.T) {
	for in, want := range map[string]ErrorBars{
		"":       ErrorBarsNone,
		"NONE":   ErrorBarsNone,
		"minmax": ErrorBarsMinMax,
		"RMS":    ErrorBarsRMS,
	} {
		got, err := ParseErrorBars(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseErrorBars("stddev")
	assert.Error(t, err)
}

func TestParseFlavor(t *testing.T) {
	f, err := ParseFlavor("")
	require.NoError(t, err)
	assert.Equal(t, FlavorStat, f)
	assert.Equal(t, "stat", f.Query())

	f, err = ParseFlavor("raw")
	require.NoError(t, err)
	assert.Equal(t, FlavorRaw, f)
	assert.Equal(t, "raw", f.Query())
	assert.Equal(t, "RAW", f.String())

	_, err = ParseFlavor("cooked")
	assert.Error(t, err)
}

func TestMetaJSONRoundTrip(t *testing.T) {
	in := Meta{ErrorBars: ErrorBarsMinMax, Bins: 10, Min: 1, Max: 2, Flavor: FlavorRaw, PerData: []SeriesMeta{{Units: "V"}}}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"errorBars":"MINMAX","nBins":10,"min":1,"max":2,"flavor":"RAW","perData":[{"units":"V"}]}`, string(b))

	var out Meta
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)

	assert.Error(t, json.Unmarshal([]byte(`{"flavor":"SPICY"}`), &out))
}
