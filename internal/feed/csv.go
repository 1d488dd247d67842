package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"healthtrend/internal/metric"
	"healthtrend/internal/series"
)

// Record is one parsed CSV row in base units.
type Record struct {
	Kind   metric.Kind
	Sample series.Sample
}

// CSVSource reads samples from a file with a day,kind,value[,unit] header.
// The file is re-read on every fetch so edits are picked up by the next refresh.
type CSVSource struct {
	path string
}

// NewCSVSource constructs a file-backed source.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// FetchSamples returns the rows for kind within range.
func (c *CSVSource) FetchSamples(ctx context.Context, kind metric.Kind, from, to series.Day) ([]series.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("open samples file: %w", err)
	}
	defer f.Close()

	records, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.path, err)
	}

	samples := make([]series.Sample, 0, len(records))
	for _, rec := range records {
		if rec.Kind == kind {
			samples = append(samples, rec.Sample)
		}
	}
	return filterRange(samples, from, to), nil
}

// ReadCSV parses day,kind,value[,unit] rows. A missing unit column means the
// kind's base unit; other units are converted on read.
func ReadCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var out []Record
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec, err := parseRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

type columns struct {
	day, kind, value, unit int
}

func columnIndex(header []string) (columns, error) {
	cols := columns{day: -1, kind: -1, value: -1, unit: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "day", "date":
			cols.day = i
		case "kind", "metric":
			cols.kind = i
		case "value":
			cols.value = i
		case "unit":
			cols.unit = i
		}
	}
	if cols.day < 0 || cols.kind < 0 || cols.value < 0 {
		return columns{}, fmt.Errorf("header must contain day, kind and value columns")
	}
	return cols, nil
}

func parseRow(row []string, cols columns) (Record, error) {
	field := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	day, err := series.ParseDay(field(cols.day))
	if err != nil {
		return Record{}, err
	}
	kind, err := metric.ParseKind(field(cols.kind))
	if err != nil {
		return Record{}, err
	}
	value, err := strconv.ParseFloat(field(cols.value), 64)
	if err != nil {
		return Record{}, fmt.Errorf("parse value: %w", err)
	}

	unit := metric.MustLookup(kind).Base
	if raw := field(cols.unit); raw != "" {
		if unit, err = metric.ParseUnit(raw); err != nil {
			return Record{}, err
		}
	}
	base, err := metric.ToBase(value, kind, unit)
	if err != nil {
		return Record{}, err
	}
	return Record{Kind: kind, Sample: series.Sample{Day: day, Value: base}}, nil
}

var _ Source = (*CSVSource)(nil)
