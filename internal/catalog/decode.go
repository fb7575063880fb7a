package catalog

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/xtxerr/trending/internal/errors"
)

// xmlChannel is one <datachannel> of a dataserver listchannels document.
type xmlChannel struct {
	ID   string   `xml:"id"`
	Path []string `xml:"path>pathelement"`
}

// Decode reads a listchannels document:
//
//	<datachannels>
//	  <datachannel>
//	    <id>1234</id>
//	    <path><pathelement>subsystem</pathelement>...</path>
//	  </datachannel>
//	</datachannels>
//
// Path segments are passed through verbatim. Malformed XML, or a document
// whose root is not <datachannels>, returns an error wrapping
// errors.ErrDecode.
func Decode(r io.Reader) ([]Record, error) {
	d := xml.NewDecoder(r)
	var records []Record
	depth := 0
	sawRoot := false

	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse channel list: %v: %w", err, errors.ErrDecode)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				if el.Name.Local != "datachannels" {
					return nil, fmt.Errorf("parse channel list: unexpected root <%s>: %w",
						el.Name.Local, errors.ErrDecode)
				}
				sawRoot = true
				depth++
				continue
			}
			if depth == 1 && el.Name.Local == "datachannel" {
				var ch xmlChannel
				if err := d.DecodeElement(&ch, &el); err != nil {
					return nil, fmt.Errorf("parse channel %d: %v: %w", len(records), err, errors.ErrDecode)
				}
				records = append(records, Record{ID: ch.ID, Path: ch.Path})
				continue
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}

	if !sawRoot {
		return nil, fmt.Errorf("parse channel list: empty document: %w", errors.ErrDecode)
	}
	return records, nil
}

// Load decodes a listchannels document and builds its tree.
func Load(r io.Reader) (*Tree, error) {
	records, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return Build(records), nil
}
