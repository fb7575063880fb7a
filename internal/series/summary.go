package series

import (
	"math"
	"strconv"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/xtxerr/trending/config"
)

// Summary holds descriptive statistics of one series over a result.
// Quantiles are approximate to the sketch's relative accuracy.
type Summary struct {
	Count   int64
	Min     float64
	Max     float64
	Mean    float64
	P50     float64
	P90     float64
	P99     float64
	FirstTs int64
	LastTs  int64
}

// MarshalJSON writes NaN statistics as null.
func (s Summary) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 192)
	buf = append(buf, `{"count":`...)
	buf = strconv.AppendInt(buf, s.Count, 10)
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"min", s.Min}, {"max", s.Max}, {"mean", s.Mean},
		{"p50", s.P50}, {"p90", s.P90}, {"p99", s.P99},
	} {
		buf = append(buf, `,"`...)
		buf = append(buf, f.name...)
		buf = append(buf, `":`...)
		buf = appendFloat(buf, f.v)
	}
	buf = append(buf, `,"firstTs":`...)
	buf = strconv.AppendInt(buf, s.FirstTs, 10)
	buf = append(buf, `,"lastTs":`...)
	buf = strconv.AppendInt(buf, s.LastTs, 10)
	return append(buf, '}'), nil
}

// Aggregate maintains running statistics of the values fed to it. NaN and
// infinite values are ignored. The zero value is not usable; call
// NewAggregate.
type Aggregate struct {
	count   int64
	sum     float64
	min     float64
	max     float64
	firstTs int64
	lastTs  int64

	// nil when the sketch could not be created
	sketch *ddsketch.DDSketch
}

// NewAggregate creates an Aggregate with quantiles at the given relative
// accuracy. Zero means config.DefaultSketchAccuracy.
func NewAggregate(accuracy float64) *Aggregate {
	if accuracy <= 0 {
		accuracy = config.DefaultSketchAccuracy
	}
	agg := &Aggregate{
		min: math.MaxFloat64,
		max: -math.MaxFloat64,
	}
	sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err == nil {
		agg.sketch = sketch
	}
	return agg
}

// Add adds a value observed at timestampMs.
func (a *Aggregate) Add(value float64, timestampMs int64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}

	if a.count == 0 || timestampMs < a.firstTs {
		a.firstTs = timestampMs
	}
	if a.count == 0 || timestampMs > a.lastTs {
		a.lastTs = timestampMs
	}
	a.count++
	a.sum += value
	if value < a.min {
		a.min = value
	}
	if value > a.max {
		a.max = value
	}

	if a.sketch != nil {
		a.sketch.Add(value)
	}
}

// Count returns the number of values added.
func (a *Aggregate) Count() int64 { return a.count }

// Result returns the statistics. All fields are NaN or zero when nothing
// was added.
func (a *Aggregate) Result() Summary {
	if a.count == 0 {
		nan := math.NaN()
		return Summary{Min: nan, Max: nan, Mean: nan, P50: nan, P90: nan, P99: nan}
	}

	s := Summary{
		Count:   a.count,
		Min:     a.min,
		Max:     a.max,
		Mean:    a.sum / float64(a.count),
		FirstTs: a.firstTs,
		LastTs:  a.lastTs,
		P50:     math.NaN(),
		P90:     math.NaN(),
		P99:     math.NaN(),
	}
	if a.sketch != nil {
		s.P50, _ = a.sketch.GetValueAtQuantile(0.50)
		s.P90, _ = a.sketch.GetValueAtQuantile(0.90)
		s.P99, _ = a.sketch.GetValueAtQuantile(0.99)
	}
	return s
}

// Summarize computes the summary of column axis over rows. Only the bins'
// primary values are considered.
func Summarize(rows []Row, axis int) Summary {
	agg := NewAggregate(0)
	for _, r := range rows {
		if axis < 0 || axis >= len(r.Bins) || r.Bins[axis] == nil {
			continue
		}
		agg.Add(r.Bins[axis].Value, r.Timestamp)
	}
	return agg.Result()
}

// SummarizeAll returns one Summary per column.
func SummarizeAll(rows []Row, width int) []Summary {
	out := make([]Summary, width)
	for i := range out {
		out[i] = Summarize(rows, i)
	}
	return out
}
