// Package pipeline turns raw inputs into published snapshots. Compute is the
// pure pass; Controller owns the inputs and decides when a pass runs.
package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"healthtrend/internal/aggregate"
	"healthtrend/internal/display"
	"healthtrend/internal/metric"
	"healthtrend/internal/scale"
	"healthtrend/internal/series"
)

// Inputs is one consistent read of everything a pass depends on.
type Inputs struct {
	Series     *series.Series
	Current    float64
	Target     float64
	Unit       metric.Unit
	Direction  metric.Direction
	AsOf       series.Day
	Generation uint64
}

// Options tune the derived outputs. Zero values select the defaults.
type Options struct {
	Windows   []aggregate.Window
	ChartDays int
	Months    int
}

const defaultMonths = 12

func (o Options) withDefaults() Options {
	if len(o.Windows) == 0 {
		o.Windows = aggregate.CanonicalWindows
	}
	if o.ChartDays <= 0 {
		o.ChartDays = aggregate.ChartDays
	}
	if o.Months <= 0 {
		o.Months = defaultMonths
	}
	return o
}

// Snapshot is the immutable output of one pass. Every field derives from the
// same input generation.
type Snapshot struct {
	ID            uuid.UUID            `json:"id"`
	Generation    uint64               `json:"generation"`
	Kind          metric.Kind          `json:"kind"`
	Unit          metric.Unit          `json:"unit"`
	Direction     metric.Direction     `json:"direction"`
	AsOf          series.Day           `json:"as_of"`
	ComputedAt    time.Time            `json:"computed_at"`
	Today         float64              `json:"today"`
	TodayDay      series.Day           `json:"today_day"`
	TodayFallback bool                 `json:"today_fallback"`
	TodayValid    bool                 `json:"today_valid"`
	Target        float64              `json:"target"`
	Chart         []display.ChartPoint `json:"chart"`
	Periods       []display.Entry      `json:"periods"`
	Monthly       []display.Entry      `json:"monthly"`
	DailyScale    scale.Result         `json:"daily_scale"`
	PeriodScale   scale.Result         `json:"period_scale"`
	MonthlyScale  scale.Result         `json:"monthly_scale"`
	KPI           display.KPI          `json:"kpi"`
}

// Compute runs store → aggregator → mapper → scale over in. It fails only when
// the (kind, unit) pair cannot be displayed.
func Compute(kind metric.Kind, in Inputs, opts Options) (*Snapshot, error) {
	mapper, err := display.NewMapper(kind, in.Unit, in.Direction)
	if err != nil {
		return nil, fmt.Errorf("compute %s snapshot: %w", kind, err)
	}
	opts = opts.withDefaults()

	s := in.Series
	if s == nil {
		s = series.Empty()
	}

	today := aggregate.Today(kind, s, in.Current, in.AsOf)
	chart := mapper.MapChartSeries(aggregate.ChartSeries(s, in.AsOf, opts.ChartDays))
	periods := mapper.MapPeriodAverages(aggregate.PeriodAverages(kind, s, in.AsOf, opts.Windows))
	monthly := mapper.MapMonthly(aggregate.MonthlyAverages(kind, s, in.AsOf, opts.Months))

	snap := &Snapshot{
		Generation:    in.Generation,
		Kind:          kind,
		Unit:          in.Unit,
		Direction:     mapper.Direction(),
		AsOf:          in.AsOf,
		TodayDay:      today.Day,
		TodayFallback: today.Fallback,
		TodayValid:    today.Valid,
		Chart:         chart,
		Periods:       periods,
		Monthly:       monthly,
		DailyScale:    scale.Scale(chartValues(chart), kind),
		PeriodScale:   scale.Scale(entryValues(periods), kind),
		MonthlyScale:  scale.Scale(entryValues(monthly), kind),
		KPI:           mapper.KPIs(today.Value, in.Target),
	}
	if today.Valid {
		snap.Today = mapper.Value(today.Value)
	}
	if in.Target > 0 {
		snap.Target = mapper.Value(in.Target)
	}
	return snap, nil
}

func chartValues(points []display.ChartPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

func entryValues(entries []display.Entry) []float64 {
	out := make([]float64, 0, len(entries))
	for _, e := range entries {
		if e.Valid {
			out = append(out, e.Value)
		}
	}
	return out
}
