package series

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

// =============================================================================
// Formats
// =============================================================================

// Format is an export file format.
type Format int

const (
	FormatCSV Format = iota
	FormatCSVGzip
	FormatParquet
)

// ParseFormat parses csv, csv.gz or parquet. Empty means csv.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "csv":
		return FormatCSV, nil
	case "csv.gz", "csvgz":
		return FormatCSVGzip, nil
	case "parquet":
		return FormatParquet, nil
	default:
		return FormatCSV, fmt.Errorf("unknown export format %q", s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSVGzip:
		return "application/gzip"
	case FormatParquet:
		return "application/vnd.apache.parquet"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Extension returns the file name extension, without the dot.
func (f Format) Extension() string {
	switch f {
	case FormatCSVGzip:
		return "csv.gz"
	case FormatParquet:
		return "parquet"
	default:
		return "csv"
	}
}

// Export writes rows in format f.
func Export(w io.Writer, f Format, labels []string, rows []Row) error {
	switch f {
	case FormatCSVGzip:
		return WriteCSVGzip(w, labels, rows)
	case FormatParquet:
		return WriteParquet(w, labels, rows, DefaultParquetOptions())
	default:
		return WriteCSV(w, labels, rows)
	}
}

// =============================================================================
// CSV
// =============================================================================

// WriteCSV writes a header "timestamp,<label>..." followed by one line per
// row. Cells hold the bin's value; empty bins and NaN are blank.
func WriteCSV(w io.Writer, labels []string, rows []Row) error {
	width := columns(labels, rows)
	cw := csv.NewWriter(w)

	header := make([]string, 0, width+1)
	header = append(header, "timestamp")
	header = append(header, columnLabels(labels, width)...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	record := make([]string, width+1)
	for _, r := range rows {
		record[0] = strconv.FormatInt(r.Timestamp, 10)
		for i := 0; i < width; i++ {
			record[i+1] = ""
			if i < len(r.Bins) && r.Bins[i] != nil && !math.IsNaN(r.Bins[i].Value) {
				record[i+1] = strconv.FormatFloat(r.Bins[i].Value, 'g', -1, 64)
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCSVGzip writes the CSV form gzip-compressed.
func WriteCSVGzip(w io.Writer, labels []string, rows []Row) error {
	zw, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
	if err != nil {
		return fmt.Errorf("create gzip writer: %w", err)
	}
	if err := WriteCSV(zw, labels, rows); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func columns(labels []string, rows []Row) int {
	width := len(labels)
	if len(rows) > 0 && len(rows[0].Bins) > width {
		width = len(rows[0].Bins)
	}
	return width
}

// columnLabels pads labels to width with series<N>.
func columnLabels(labels []string, width int) []string {
	out := make([]string, width)
	for i := range out {
		if i < len(labels) && labels[i] != "" {
			out[i] = labels[i]
		} else {
			out[i] = "series" + strconv.Itoa(i)
		}
	}
	return out
}

// =============================================================================
// Parquet
// =============================================================================

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// ParseCompressionType parses a compression type string. Unknown names
// select zstd.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

func (ct CompressionType) codec() compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// ParquetOptions configures WriteParquet.
type ParquetOptions struct {
	Compression CompressionType

	// BatchSize is the number of rows handed to the writer at once.
	BatchSize int
}

// DefaultParquetOptions returns zstd compression in batches of 4096 rows.
func DefaultParquetOptions() ParquetOptions {
	return ParquetOptions{
		Compression: CompressionZstd,
		BatchSize:   4096,
	}
}

// ParquetRow is one bin of one series in long format. Statistics the bin
// does not carry are null.
type ParquetRow struct {
	TimestampMs int64    `parquet:"timestamp_ms"`
	Series      string   `parquet:"series,zstd"`
	Value       float64  `parquet:"value"`
	RMS         *float64 `parquet:"rms,optional"`
	Min         *float64 `parquet:"min,optional"`
	Max         *float64 `parquet:"max,optional"`
}

// WriteParquet writes rows in long format, one ParquetRow per non-empty
// bin, ordered by timestamp then column.
func WriteParquet(w io.Writer, labels []string, rows []Row, opts ParquetOptions) error {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultParquetOptions().BatchSize
	}
	names := columnLabels(labels, columns(labels, rows))

	writer := parquet.NewGenericWriter[ParquetRow](w,
		parquet.Compression(opts.Compression.codec()))

	batch := make([]ParquetRow, 0, opts.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := writer.Write(batch); err != nil {
			return fmt.Errorf("write rows: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	for _, r := range rows {
		for i, b := range r.Bins {
			if b == nil || math.IsNaN(b.Value) || i >= len(names) {
				continue
			}
			batch = append(batch, ParquetRow{
				TimestampMs: r.Timestamp,
				Series:      names[i],
				Value:       b.Value,
				RMS:         optional(b.RMS),
				Min:         optional(b.Min),
				Max:         optional(b.Max),
			})
			if len(batch) == cap(batch) {
				if err := flush(); err != nil {
					writer.Close()
					return err
				}
			}
		}
	}
	if err := flush(); err != nil {
		writer.Close()
		return err
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

func optional(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
