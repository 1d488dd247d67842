package render

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthtrend/internal/metric"
	"healthtrend/internal/pipeline"
	"healthtrend/internal/series"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func weightSnapshot(t *testing.T) *pipeline.Snapshot {
	t.Helper()
	asOf := series.DayOf(time.Date(2024, time.May, 20, 12, 0, 0, 0, time.UTC), time.UTC)
	samples := make([]series.Sample, 0, 60)
	for i := 1; i <= 60; i++ {
		samples = append(samples, series.Sample{Day: asOf.AddDays(-i), Value: 70 + float64(i%5)})
	}
	snap, err := pipeline.Compute(metric.KindWeight, pipeline.Inputs{
		Series: series.New(samples),
		Target: 72,
		Unit:   metric.UnitKilogram,
		AsOf:   asOf,
	}, pipeline.Options{})
	require.NoError(t, err)
	return snap
}

func TestWritePNGs(t *testing.T) {
	snap := weightSnapshot(t)
	size := Size{Width: 640, Height: 360}

	var daily, periods, monthly bytes.Buffer
	require.NoError(t, WriteDailyPNG(&daily, snap, size))
	require.NoError(t, WritePeriodsPNG(&periods, snap, size))
	require.NoError(t, WriteMonthlyPNG(&monthly, snap, size))

	for name, buf := range map[string]*bytes.Buffer{"daily": &daily, "periods": &periods, "monthly": &monthly} {
		assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic), "%s is not a PNG", name)
	}
}

func TestWriteCSV(t *testing.T) {
	snap := weightSnapshot(t)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, snap))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)

	assert.Equal(t, []string{"section", "label", "value", "unit"}, rows[0])
	want := 1 + len(snap.Chart) + len(snap.Periods) + len(snap.Monthly) + 3
	assert.Len(t, rows, want)

	sections := map[string]int{}
	for _, row := range rows[1:] {
		sections[row[0]]++
	}
	assert.Equal(t, 90, sections[SectionDaily])
	assert.Equal(t, 6, sections[SectionPeriod])
	assert.Equal(t, 3, sections[SectionKPI])

	last := rows[len(rows)-1]
	assert.Equal(t, []string{SectionKPI, "delta", "−1.0 kg", "favorable"}, last)

	for _, row := range rows[1:] {
		if row[0] == SectionPeriod && row[1] == "365T" {
			assert.NotEmpty(t, row[2])
		}
	}
}

func TestTerminal(t *testing.T) {
	snap := weightSnapshot(t)

	out := Terminal(snap, TerminalOptions{PlotWidth: 40, PlotHeight: 6})
	for _, want := range []string{"weight", "2024-05-20", "71.0 kg (2024-05-19)", "72.0 kg", "−1.0 kg", "7T", "365T", "last 90 days (kg)"} {
		assert.Contains(t, out, want)
	}

	plain := Terminal(snap, TerminalOptions{NoPlot: true})
	assert.NotContains(t, plain, "last 90 days")
	assert.True(t, strings.Contains(plain, "Averages:"))
}
