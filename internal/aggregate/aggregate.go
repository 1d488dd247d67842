// Package aggregate derives rolling-window statistics from a daily series.
// Everything here works in the metric's base unit; conversion and rounding
// belong to the display layer.
package aggregate

import (
	"time"

	"healthtrend/internal/metric"
	"healthtrend/internal/series"
)

// ChartDays is the length of the raw daily chart series.
const ChartDays = 90

// Window is a rolling lookback ending the day before as-of.
type Window struct {
	Label string `json:"label"`
	Days  int    `json:"days"`
}

// CanonicalWindows is the window set shared by every metric.
var CanonicalWindows = []Window{
	{Label: "7T", Days: 7},
	{Label: "14T", Days: 14},
	{Label: "30T", Days: 30},
	{Label: "90T", Days: 90},
	{Label: "180T", Days: 180},
	{Label: "365T", Days: 365},
}

// PeriodAverage is a window average in base units. Valid is false when no day
// in the window qualified.
type PeriodAverage struct {
	Window
	Value float64
	Count int
	Valid bool
}

// Point is one day of the chart series.
type Point struct {
	Day   series.Day
	Value float64
}

// MonthAverage is the average of the qualifying days of one calendar month.
type MonthAverage struct {
	Year  int
	Month time.Month
	Value float64
	Count int
	Valid bool
}

// TodayValue is the value presented as "today".
type TodayValue struct {
	Value    float64
	Day      series.Day
	Fallback bool
	Valid    bool
}

func qualifier(kind metric.Kind) func(float64) bool {
	if p, ok := metric.Lookup(kind); ok && p.Qualifies != nil {
		return p.Qualifies
	}
	return func(v float64) bool { return v > 0 }
}

// Average returns the mean of qualifying values in [asOf-windowDays, asOf-1].
// The divisor is the number of qualifying days, not the window length. The
// boolean is false when nothing qualified or windowDays is not positive.
func Average(kind metric.Kind, windowDays int, s *series.Series, asOf series.Day) (float64, bool) {
	v, _, ok := average(qualifier(kind), windowDays, s, asOf)
	return v, ok
}

func average(pred func(float64) bool, windowDays int, s *series.Series, asOf series.Day) (float64, int, bool) {
	if windowDays <= 0 {
		return 0, 0, false
	}
	samples := s.Qualifying(asOf.AddDays(-windowDays), asOf.AddDays(-1), pred)
	return mean(samples)
}

func mean(samples []series.Sample) (float64, int, bool) {
	if len(samples) == 0 {
		return 0, 0, false
	}
	var sum float64
	for _, sample := range samples {
		sum += sample.Value
	}
	return sum / float64(len(samples)), len(samples), true
}

// PeriodAverages evaluates Average for every window.
func PeriodAverages(kind metric.Kind, s *series.Series, asOf series.Day, windows []Window) []PeriodAverage {
	pred := qualifier(kind)
	out := make([]PeriodAverage, 0, len(windows))
	for _, w := range windows {
		v, n, ok := average(pred, w.Days, s, asOf)
		out = append(out, PeriodAverage{Window: w, Value: v, Count: n, Valid: ok})
	}
	return out
}

// ChartSeries returns exactly days points covering [asOf-days+1, asOf]. Missing
// days are 0 and negative values are floored at 0.
func ChartSeries(s *series.Series, asOf series.Day, days int) []Point {
	if days <= 0 {
		return nil
	}
	points := make([]Point, 0, days)
	for d := asOf.AddDays(-(days - 1)); !d.After(asOf); d = d.AddDays(1) {
		v, _ := s.Value(d)
		if v < 0 {
			v = 0
		}
		points = append(points, Point{Day: d, Value: v})
	}
	return points
}

// Today picks current when it qualifies, otherwise the latest qualifying sample
// on or before asOf.
func Today(kind metric.Kind, s *series.Series, current float64, asOf series.Day) TodayValue {
	pred := qualifier(kind)
	if pred(current) {
		return TodayValue{Value: current, Day: asOf, Valid: true}
	}
	if sample, ok := s.LatestQualifying(asOf, pred); ok {
		return TodayValue{Value: sample.Value, Day: sample.Day, Fallback: true, Valid: true}
	}
	return TodayValue{Day: asOf}
}

// MonthlyAverages averages qualifying days per calendar month for the months
// calendar months ending with asOf's month, oldest first. asOf itself is
// excluded, matching the rolling windows.
func MonthlyAverages(kind metric.Kind, s *series.Series, asOf series.Day, months int) []MonthAverage {
	if months <= 0 {
		return nil
	}
	pred := qualifier(kind)
	last := asOf.AddDays(-1)
	anchor := time.Date(asOf.Year, asOf.Month, 1, 12, 0, 0, 0, time.UTC)

	out := make([]MonthAverage, 0, months)
	for i := months - 1; i >= 0; i-- {
		start := anchor.AddDate(0, -i, 0)
		from := series.DayOf(start, time.UTC)
		to := series.DayOf(start.AddDate(0, 1, -1), time.UTC)
		if to.After(last) {
			to = last
		}
		v, n, ok := mean(s.Qualifying(from, to, pred))
		out = append(out, MonthAverage{Year: from.Year, Month: from.Month, Value: v, Count: n, Valid: ok})
	}
	return out
}
