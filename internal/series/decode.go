package series

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/xtxerr/trending/internal/errors"
)

// SeriesMeta is the per-series metadata the dataserver reports.
type SeriesMeta struct {
	Units       string `json:"units,omitempty"`
	Format      string `json:"format,omitempty"`
	Description string `json:"description,omitempty"`
	State       string `json:"state,omitempty"`
}

// Meta describes a trending result.
type Meta struct {
	ErrorBars ErrorBars    `json:"errorBars"`
	Bins      int          `json:"nBins"`
	Min       int64        `json:"min"`
	Max       int64        `json:"max"`
	Flavor    Flavor       `json:"flavor"`
	PerData   []SeriesMeta `json:"perData"`
}

// Decode reads a dataserver trending document into m. Each <data> element
// is one series; they fill axes 0, 1, ... in document order. The returned
// slice holds one SeriesMeta per <data> element, empty when the element
// carries no <channelmetadata>.
//
// Bins without a parseable timestamp are skipped. Unparseable statistics
// are NaN.
func Decode(r io.Reader, m *Merger) ([]SeriesMeta, error) {
	dec := xml.NewDecoder(r)

	var (
		meta    []SeriesMeta
		axis    int
		inBin   bool
		ts      string
		bin     Bin
		current SeriesMeta
		sawRoot bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Kind(errors.ErrDecode, err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			sawRoot = true
			switch el.Name.Local {
			case "trendingdata":
				inBin = true
				ts = ""
				bin = Bin{Value: math.NaN(), RMS: math.NaN(), Min: math.NaN(), Max: math.NaN()}
			case "axisvalue":
				ts = attr(el, "value")
			case "datavalue":
				v := parseFloat(attr(el, "value"))
				switch attr(el, "name") {
				case "value":
					bin.Value = v
				case "rms":
					bin.RMS = v
				case "min":
					bin.Min = v
				case "max":
					bin.Max = v
				}
			case "data":
				current = SeriesMeta{}
			case "channelmetadatavalue":
				v := attr(el, "value")
				switch attr(el, "name") {
				case "units":
					current.Units = v
				case "format":
					current.Format = v
				case "description":
					current.Description = v
				case "state":
					current.State = v
				}
			}

		case xml.EndElement:
			switch el.Name.Local {
			case "trendingdata":
				if inBin {
					if t, err := strconv.ParseInt(ts, 10, 64); err == nil {
						m.Put(t, axis, bin)
					}
				}
				inBin = false
			case "data":
				meta = append(meta, current)
				axis++
			}
		}
	}

	if !sawRoot {
		return nil, fmt.Errorf("empty trending document: %w", errors.ErrDecode)
	}
	return meta, nil
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
