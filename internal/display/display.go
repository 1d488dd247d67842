// Package display converts base-unit aggregates into the active display unit
// and formats KPI strings. Rounding happens here and nowhere earlier.
package display

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"healthtrend/internal/aggregate"
	"healthtrend/internal/metric"
	"healthtrend/internal/series"
)

// Placeholder stands in for a value with no data.
const Placeholder = "-"

const minusSign = "−"

// Tone classifies a delta for coloring.
type Tone string

const (
	ToneNeutral   Tone = "neutral"
	ToneFavorable Tone = "favorable"
	ToneAdverse   Tone = "adverse"
)

// Entry is a period or monthly average in display units.
type Entry struct {
	Label string  `json:"label"`
	Days  int     `json:"days,omitempty"`
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

// ChartPoint is one day of the chart series in display units.
type ChartPoint struct {
	Day   series.Day `json:"day"`
	Value float64    `json:"value"`
}

// Delta is the formatted current-minus-target difference.
type Delta struct {
	Text  string  `json:"text"`
	Tone  Tone    `json:"tone"`
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

// KPI bundles the three headline strings.
type KPI struct {
	Current string `json:"current"`
	Target  string `json:"target"`
	Delta   Delta  `json:"delta"`
}

// Mapper converts one metric kind into one display unit.
type Mapper struct {
	kind      metric.Kind
	unit      metric.Unit
	direction metric.Direction
	factor    float64
}

// NewMapper validates the (kind, unit) pair. An empty direction falls back to
// the kind's default.
func NewMapper(kind metric.Kind, unit metric.Unit, direction metric.Direction) (*Mapper, error) {
	// every table conversion is linear, so the unit factor is ToDisplay(1)
	factor, err := metric.ToDisplay(1, kind, unit)
	if err != nil {
		return nil, err
	}
	if direction == "" {
		direction = metric.MustLookup(kind).Direction
	}
	return &Mapper{kind: kind, unit: unit, direction: direction, factor: factor}, nil
}

// Unit returns the display unit.
func (m *Mapper) Unit() metric.Unit { return m.unit }

// Direction returns the delta direction in effect.
func (m *Mapper) Direction() metric.Direction { return m.direction }

// Value converts a base value without rounding.
func (m *Mapper) Value(base float64) float64 {
	return base * m.factor
}

// MapPeriodAverages converts and rounds each window average to an integer.
func (m *Mapper) MapPeriodAverages(avgs []aggregate.PeriodAverage) []Entry {
	out := make([]Entry, 0, len(avgs))
	for _, avg := range avgs {
		e := Entry{Label: avg.Label, Days: avg.Days, Valid: avg.Valid}
		if avg.Valid {
			e.Value = roundInt(m.Value(avg.Value))
		}
		out = append(out, e)
	}
	return out
}

// MapMonthly converts monthly averages, labelled "Jan 2024" style.
func (m *Mapper) MapMonthly(months []aggregate.MonthAverage) []Entry {
	out := make([]Entry, 0, len(months))
	for _, month := range months {
		e := Entry{
			Label: time.Date(month.Year, month.Month, 1, 0, 0, 0, 0, time.UTC).Format("Jan 2006"),
			Valid: month.Valid,
		}
		if month.Valid {
			e.Value = roundInt(m.Value(month.Value))
		}
		out = append(out, e)
	}
	return out
}

// MapChartSeries converts the chart series keeping continuous values floored at 0.
func (m *Mapper) MapChartSeries(points []aggregate.Point) []ChartPoint {
	out := make([]ChartPoint, 0, len(points))
	for _, p := range points {
		v := m.Value(p.Value)
		if v < 0 {
			v = 0
		}
		out = append(out, ChartPoint{Day: p.Day, Value: v})
	}
	return out
}

// FormatCurrent formats today's base value.
func (m *Mapper) FormatCurrent(base float64) string {
	return m.formatValue(base)
}

// FormatTarget formats the target base value.
func (m *Mapper) FormatTarget(base float64) string {
	return m.formatValue(base)
}

func (m *Mapper) formatValue(base float64) string {
	if base <= 0 {
		return Placeholder
	}
	return decimal.NewFromFloat(m.Value(base)).StringFixed(1) + " " + m.unit.Label()
}

// FormatDelta formats current minus target. A delta that rounds to zero is
// neutral; otherwise the tone depends on the direction.
func (m *Mapper) FormatDelta(baseDelta float64) Delta {
	rounded := decimal.NewFromFloat(m.Value(baseDelta)).Round(1)
	label := " " + m.unit.Label()

	switch rounded.Sign() {
	case 0:
		return Delta{Text: "±" + decimal.Zero.StringFixed(1) + label, Tone: ToneNeutral, Valid: true}
	case 1:
		return Delta{Text: "+" + rounded.StringFixed(1) + label, Tone: m.toneAbove(), Value: rounded.InexactFloat64(), Valid: true}
	default:
		return Delta{Text: minusSign + rounded.Abs().StringFixed(1) + label, Tone: m.toneBelow(), Value: rounded.InexactFloat64(), Valid: true}
	}
}

// KPIs formats current, target and their delta. The delta is a neutral
// placeholder unless both sides carry data.
func (m *Mapper) KPIs(currentBase, targetBase float64) KPI {
	kpi := KPI{
		Current: m.FormatCurrent(currentBase),
		Target:  m.FormatTarget(targetBase),
		Delta:   Delta{Text: Placeholder, Tone: ToneNeutral},
	}
	if currentBase > 0 && targetBase > 0 {
		kpi.Delta = m.FormatDelta(currentBase - targetBase)
	}
	return kpi
}

func (m *Mapper) toneAbove() Tone {
	if m.direction == metric.HigherIsBetter {
		return ToneFavorable
	}
	return ToneAdverse
}

func (m *Mapper) toneBelow() Tone {
	if m.direction == metric.HigherIsBetter {
		return ToneAdverse
	}
	return ToneFavorable
}

// roundInt rounds half away from zero.
func roundInt(v float64) float64 {
	return decimal.NewFromFloat(v).Round(0).InexactFloat64()
}

// String implements fmt.Stringer for logs.
func (e Entry) String() string {
	if !e.Valid {
		return fmt.Sprintf("%s=%s", e.Label, Placeholder)
	}
	return fmt.Sprintf("%s=%s", e.Label, decimal.NewFromFloat(e.Value).String())
}
