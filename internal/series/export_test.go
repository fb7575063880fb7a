package series

import (
	"bytes"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exportFixture() []Row {
	m := NewMerger(2, ErrorBarsRMS)
	m.Put(1000, 0, Bin{Value: 1.5, RMS: 0.1, Min: math.NaN(), Max: math.NaN()})
	m.Put(2000, 1, Scalar(-3))
	m.Put(2000, 0, Scalar(math.NaN()))
	m.Put(3000, 0, Bin{Value: 2, RMS: math.NaN(), Min: 1, Max: 3})
	return m.Rows()
}

const exportCSV = `timestamp,focal-plane/R22/Reb1/CCDTemp,vacuum/Cryo/Pressure
1000,1.5,
2000,,-3
3000,2,
`

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []string{"focal-plane/R22/Reb1/CCDTemp", "vacuum/Cryo/Pressure"}, exportFixture())
	require.NoError(t, err)
	assert.Equal(t, exportCSV, buf.String())
}

func TestWriteCSVMissingLabels(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []string{"a"}, exportFixture()))
	header, _, _ := strings.Cut(buf.String(), "\n")
	assert.Equal(t, "timestamp,a,series1", header)
}

func TestWriteCSVGzip(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSVGzip(&buf, []string{"focal-plane/R22/Reb1/CCDTemp", "vacuum/Cryo/Pressure"}, exportFixture())
	require.NoError(t, err)

	zr, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	b, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, exportCSV, string(b))
}

func TestWriteParquet(t *testing.T) {
	for _, ct := range []CompressionType{CompressionNone, CompressionSnappy, CompressionZstd, CompressionLZ4, CompressionGzip} {
		var buf bytes.Buffer
		opts := ParquetOptions{Compression: ct, BatchSize: 2}
		require.NoError(t, WriteParquet(&buf, []string{"temp", "pressure"}, exportFixture(), opts))

		reader := parquet.NewGenericReader[ParquetRow](bytes.NewReader(buf.Bytes()))
		rows := make([]ParquetRow, reader.NumRows())
		n, err := reader.Read(rows)
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
		}
		require.NoError(t, reader.Close())
		require.Equal(t, 3, n, "one row per non-empty bin")

		assert.Equal(t, int64(1000), rows[0].TimestampMs)
		assert.Equal(t, "temp", rows[0].Series)
		assert.Equal(t, 1.5, rows[0].Value)
		require.NotNil(t, rows[0].RMS)
		assert.Equal(t, 0.1, *rows[0].RMS)
		assert.Nil(t, rows[0].Min)

		assert.Equal(t, "pressure", rows[1].Series)
		assert.Equal(t, -3.0, rows[1].Value)
		assert.Nil(t, rows[1].RMS)

		assert.Equal(t, int64(3000), rows[2].TimestampMs)
		require.NotNil(t, rows[2].Max)
		assert.Equal(t, 3.0, *rows[2].Max)
	}
}

func TestExportDispatch(t *testing.T) {
	for _, f := range []Format{FormatCSV, FormatCSVGzip, FormatParquet} {
		var buf bytes.Buffer
		require.NoError(t, Export(&buf, f, []string{"a", "b"}, exportFixture()), f.Extension())
		assert.NotZero(t, buf.Len())
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		ext     string
		wantErr bool
	}{
		{"", FormatCSV, "csv", false},
		{"CSV", FormatCSV, "csv", false},
		{"csv.gz", FormatCSVGzip, "csv.gz", false},
		{"parquet", FormatParquet, "parquet", false},
		{"xlsx", FormatCSV, "", true},
	}
	for _, tt := range tests {
		f, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, f)
		assert.Equal(t, tt.ext, f.Extension())
		assert.NotEmpty(t, f.ContentType())
	}
}

func TestParseCompressionType(t *testing.T) {
	assert.Equal(t, CompressionNone, ParseCompressionType(""))
	assert.Equal(t, CompressionSnappy, ParseCompressionType("snappy"))
	assert.Equal(t, CompressionLZ4, ParseCompressionType("lz4"))
	assert.Equal(t, CompressionZstd, ParseCompressionType("brotli"))
}
