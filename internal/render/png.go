// Package render draws published snapshots as PNG charts, CSV and terminal text.
package render

import (
	"fmt"
	"io"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"healthtrend/internal/display"
	"healthtrend/internal/pipeline"
	"healthtrend/internal/scale"
)

// Size is the pixel size of a PNG.
type Size struct {
	Width  int
	Height int
}

func (s Size) withDefaults() Size {
	if s.Width <= 0 {
		s.Width = 1280
	}
	if s.Height <= 0 {
		s.Height = 720
	}
	return s
}

var (
	lineColor   = drawing.ColorFromHex("3B82F6")
	targetColor = drawing.ColorFromHex("F87171")
	barColor    = drawing.ColorFromHex("10B981")
)

// WriteDailyPNG renders the 90-day chart with the daily scale as the y axis.
func WriteDailyPNG(w io.Writer, snap *pipeline.Snapshot, size Size) error {
	size = size.withDefaults()

	x := make([]time.Time, len(snap.Chart))
	y := make([]float64, len(snap.Chart))
	for i, p := range snap.Chart {
		x[i] = p.Day.Midnight(time.UTC)
		y[i] = p.Value
	}

	series := []chart.Series{
		chart.TimeSeries{
			Name:    fmt.Sprintf("%s (%s)", snap.Kind, snap.Unit.Label()),
			XValues: x,
			YValues: y,
			Style:   chart.Style{StrokeColor: lineColor, StrokeWidth: 2},
		},
	}
	if snap.Target > 0 && len(x) > 1 {
		series = append(series, chart.TimeSeries{
			Name:    "Target " + snap.KPI.Target,
			XValues: []time.Time{x[0], x[len(x)-1]},
			YValues: []float64{snap.Target, snap.Target},
			Style:   chart.Style{StrokeColor: targetColor, StrokeDashArray: []float64{6, 4}},
		})
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s, last %d days", snap.Kind, len(snap.Chart)),
		Width:  size.Width,
		Height: size.Height,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis:  yAxis(snap.Unit.Label(), snap.DailyScale),
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render daily chart: %w", err)
	}
	return nil
}

// WritePeriodsPNG renders period averages as bars on the period scale.
func WritePeriodsPNG(w io.Writer, snap *pipeline.Snapshot, size Size) error {
	return writeBars(w, fmt.Sprintf("%s period averages", snap.Kind), snap.Periods, snap.PeriodScale, snap.Unit.Label(), size)
}

// WriteMonthlyPNG renders monthly averages as bars on the monthly scale.
func WriteMonthlyPNG(w io.Writer, snap *pipeline.Snapshot, size Size) error {
	return writeBars(w, fmt.Sprintf("%s monthly averages", snap.Kind), snap.Monthly, snap.MonthlyScale, snap.Unit.Label(), size)
}

func writeBars(w io.Writer, title string, entries []display.Entry, r scale.Result, unit string, size Size) error {
	if len(entries) == 0 {
		return fmt.Errorf("render %s: no entries", title)
	}
	size = size.withDefaults()

	bars := make([]chart.Value, 0, len(entries))
	for _, e := range entries {
		bars = append(bars, chart.Value{
			Label: e.Label,
			Value: e.Value,
			Style: chart.Style{FillColor: barColor, StrokeColor: barColor},
		})
	}

	graph := chart.BarChart{
		Title:    title,
		Width:    size.Width,
		Height:   size.Height,
		BarWidth: size.Width / (2*len(bars) + 1),
		YAxis:    yAxis(unit, r),
		Bars:     bars,
	}
	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render %s: %w", title, err)
	}
	return nil
}

func yAxis(name string, r scale.Result) chart.YAxis {
	ticks := make([]chart.Tick, 0)
	for _, v := range r.Ticks() {
		ticks = append(ticks, chart.Tick{Value: v, Label: tickLabel(v, r.Step)})
	}
	return chart.YAxis{
		Name:  name,
		Range: &chart.ContinuousRange{Min: r.Min, Max: r.Max},
		Ticks: ticks,
	}
}

func tickLabel(v, step float64) string {
	if step >= 1 {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}
