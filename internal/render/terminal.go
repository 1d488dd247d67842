package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"healthtrend/internal/display"
	"healthtrend/internal/pipeline"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B"))

	favorableStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	adverseStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171")).
			Bold(true)

	neutralStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24"))

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#64748B")).
			Padding(0, 1)
)

// TerminalOptions shape the text view.
type TerminalOptions struct {
	PlotWidth  int
	PlotHeight int
	NoPlot     bool
}

// Terminal renders a snapshot as a card with KPIs, averages and a plot of the
// daily chart bounded by the daily scale.
func Terminal(snap *pipeline.Snapshot, opts TerminalOptions) string {
	if opts.PlotWidth <= 0 {
		opts.PlotWidth = 60
	}
	if opts.PlotHeight <= 0 {
		opts.PlotHeight = 10
	}

	sections := []string{
		titleStyle.Render(fmt.Sprintf("%s · %s", snap.Kind, snap.AsOf)),
		kpiLine(snap),
		entriesLine("Averages", snap.Periods),
	}
	if len(snap.Monthly) > 0 {
		sections = append(sections, entriesLine("Monthly", snap.Monthly))
	}
	if !opts.NoPlot && len(snap.Chart) > 0 {
		sections = append(sections, "", plot(snap, opts))
	}

	return cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

// ToneStyle returns the style used for a delta tone.
func ToneStyle(t display.Tone) lipgloss.Style {
	switch t {
	case display.ToneFavorable:
		return favorableStyle
	case display.ToneAdverse:
		return adverseStyle
	default:
		return neutralStyle
	}
}

func kpiLine(snap *pipeline.Snapshot) string {
	current := snap.KPI.Current
	if snap.TodayFallback {
		current += " (" + snap.TodayDay.String() + ")"
	}
	return strings.Join([]string{
		labelStyle.Render("Today") + " " + current,
		labelStyle.Render("Target") + " " + snap.KPI.Target,
		labelStyle.Render("Delta") + " " + ToneStyle(snap.KPI.Delta.Tone).Render(snap.KPI.Delta.Text),
	}, "   ")
}

func entriesLine(title string, entries []display.Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		value := display.Placeholder
		if e.Valid {
			value = formatFloat(e.Value)
		}
		parts = append(parts, labelStyle.Render(e.Label)+" "+value)
	}
	return labelStyle.Render(title+":") + " " + strings.Join(parts, "  ")
}

func plot(snap *pipeline.Snapshot, opts TerminalOptions) string {
	values := make([]float64, len(snap.Chart))
	for i, p := range snap.Chart {
		values[i] = p.Value
	}
	precision := uint(0)
	if snap.DailyScale.Step < 1 {
		precision = 1
	}
	return asciigraph.Plot(values,
		asciigraph.Height(opts.PlotHeight),
		asciigraph.Width(opts.PlotWidth),
		asciigraph.LowerBound(snap.DailyScale.Min),
		asciigraph.UpperBound(snap.DailyScale.Max),
		asciigraph.Precision(precision),
		asciigraph.Caption(fmt.Sprintf("last %d days (%s)", len(snap.Chart), snap.Unit.Label())),
	)
}
