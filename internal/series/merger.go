// Package series merges per-channel trending data into one time-ordered
// table, decodes the dataserver's trending XML into it, and summarizes or
// exports the result.
package series

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// =============================================================================
// Request Enums
// =============================================================================

// ErrorBars selects what each bin carries besides its value.
type ErrorBars int

const (
	// ErrorBarsNone: scalar value only.
	ErrorBarsNone ErrorBars = iota
	// ErrorBarsMinMax: [min, value, max].
	ErrorBarsMinMax
	// ErrorBarsRMS: [value, rms].
	ErrorBarsRMS
)

func (e ErrorBars) String() string {
	switch e {
	case ErrorBarsMinMax:
		return "MINMAX"
	case ErrorBarsRMS:
		return "RMS"
	default:
		return "NONE"
	}
}

// MarshalText encodes the upper-case name.
func (e ErrorBars) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText accepts the forms ParseErrorBars does.
func (e *ErrorBars) UnmarshalText(b []byte) error {
	v, err := ParseErrorBars(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// ParseErrorBars parses NONE, MINMAX or RMS, case-insensitively. Empty
// means NONE.
func ParseErrorBars(s string) (ErrorBars, error) {
	switch strings.ToUpper(s) {
	case "", "NONE":
		return ErrorBarsNone, nil
	case "MINMAX":
		return ErrorBarsMinMax, nil
	case "RMS":
		return ErrorBarsRMS, nil
	default:
		return ErrorBarsNone, fmt.Errorf("unknown error bars %q", s)
	}
}

// Flavor selects binned statistics or raw samples upstream.
type Flavor int

const (
	FlavorStat Flavor = iota
	FlavorRaw
)

func (f Flavor) String() string {
	if f == FlavorRaw {
		return "RAW"
	}
	return "STAT"
}

// MarshalText encodes the upper-case name.
func (f Flavor) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText accepts the forms ParseFlavor does.
func (f *Flavor) UnmarshalText(b []byte) error {
	v, err := ParseFlavor(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Query returns the lower-case form the dataserver expects.
func (f Flavor) Query() string {
	return strings.ToLower(f.String())
}

// ParseFlavor parses STAT or RAW, case-insensitively. Empty means STAT.
func ParseFlavor(s string) (Flavor, error) {
	switch strings.ToUpper(s) {
	case "", "STAT":
		return FlavorStat, nil
	case "RAW":
		return FlavorRaw, nil
	default:
		return FlavorStat, fmt.Errorf("unknown flavor %q", s)
	}
}

// =============================================================================
// Bins and Rows
// =============================================================================

// Bin is one series' statistics at one timestamp. Missing statistics are
// NaN.
type Bin struct {
	Value float64
	RMS   float64
	Min   float64
	Max   float64
}

// Scalar returns a bin holding only a value.
func Scalar(v float64) Bin {
	return Bin{Value: v, RMS: math.NaN(), Min: math.NaN(), Max: math.NaN()}
}

// Row is one timestamp of the merged table. Bins has one entry per series;
// nil means the series has no data at this timestamp.
type Row struct {
	Timestamp int64
	Bins      []*Bin

	mode ErrorBars
}

// MarshalJSON encodes [ts, cell...]. A cell is a number, [value, rms] or
// [min, value, max] depending on the error bars mode. Empty cells and NaN
// statistics are null.
func (r Row) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 16+len(r.Bins)*24)
	buf = append(buf, '[')
	buf = strconv.AppendInt(buf, r.Timestamp, 10)
	for _, b := range r.Bins {
		buf = append(buf, ',')
		buf = appendBin(buf, b, r.mode)
	}
	return append(buf, ']'), nil
}

func appendBin(buf []byte, b *Bin, mode ErrorBars) []byte {
	if b == nil || math.IsNaN(b.Value) {
		return append(buf, "null"...)
	}
	switch mode {
	case ErrorBarsRMS:
		buf = append(buf, '[')
		buf = appendFloat(buf, b.Value)
		buf = append(buf, ',')
		buf = appendFloat(buf, b.RMS)
		return append(buf, ']')
	case ErrorBarsMinMax:
		buf = append(buf, '[')
		buf = appendFloat(buf, b.Min)
		buf = append(buf, ',')
		buf = appendFloat(buf, b.Value)
		buf = append(buf, ',')
		buf = appendFloat(buf, b.Max)
		return append(buf, ']')
	default:
		return appendFloat(buf, b.Value)
	}
}

func appendFloat(buf []byte, v float64) []byte {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return append(buf, "null"...)
	}
	return strconv.AppendFloat(buf, v, 'g', -1, 64)
}

// =============================================================================
// Merger
// =============================================================================

// Merger accumulates bins of several series keyed by timestamp. It is not
// safe for concurrent use.
type Merger struct {
	width int
	mode  ErrorBars
	rows  map[int64][]*Bin
}

// NewMerger creates a Merger for nSeries columns.
func NewMerger(nSeries int, mode ErrorBars) *Merger {
	return &Merger{
		width: nSeries,
		mode:  mode,
		rows:  make(map[int64][]*Bin),
	}
}

// Put sets column axis of the row at ts, creating the row if needed. A
// later Put for the same ts and axis replaces the bin. Put reports false
// and stores nothing when axis is out of range.
func (m *Merger) Put(ts int64, axis int, b Bin) bool {
	if axis < 0 || axis >= m.width {
		return false
	}
	row, ok := m.rows[ts]
	if !ok {
		row = make([]*Bin, m.width)
		m.rows[ts] = row
	}
	row[axis] = &b
	return true
}

// Width returns the number of series.
func (m *Merger) Width() int { return m.width }

// Mode returns the error bars mode rows are encoded with.
func (m *Merger) Mode() ErrorBars { return m.mode }

// Len returns the number of distinct timestamps.
func (m *Merger) Len() int { return len(m.rows) }

// Rows returns the table in ascending timestamp order.
func (m *Merger) Rows() []Row {
	keys := make([]int64, 0, len(m.rows))
	for ts := range m.rows {
		keys = append(keys, ts)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	rows := make([]Row, len(keys))
	for i, ts := range keys {
		rows[i] = Row{Timestamp: ts, Bins: m.rows[ts], mode: m.mode}
	}
	return rows
}
