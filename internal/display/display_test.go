package display

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthtrend/internal/aggregate"
	"healthtrend/internal/metric"
	"healthtrend/internal/series"
)

func mapper(t *testing.T, kind metric.Kind, unit metric.Unit) *Mapper {
	t.Helper()
	m, err := NewMapper(kind, unit, "")
	require.NoError(t, err)
	return m
}

func TestNewMapperRejectsUnsupportedUnit(t *testing.T) {
	_, err := NewMapper(metric.KindSteps, metric.UnitKilogram, "")
	var unsupported *metric.UnsupportedUnitError
	require.True(t, errors.As(err, &unsupported))
}

func TestPeriodAverageInPounds(t *testing.T) {
	m := mapper(t, metric.KindWeight, metric.UnitPound)
	got := m.MapPeriodAverages([]aggregate.PeriodAverage{
		{Window: aggregate.Window{Label: "7T", Days: 7}, Value: 73, Count: 7, Valid: true},
		{Window: aggregate.Window{Label: "14T", Days: 14}},
	})

	require.Len(t, got, 2)
	assert.Equal(t, Entry{Label: "7T", Days: 7, Value: 161, Valid: true}, got[0])
	assert.Equal(t, Entry{Label: "14T", Days: 14, Value: 0, Valid: false}, got[1])
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	assert.Equal(t, 3.0, roundInt(2.5))
	assert.Equal(t, -3.0, roundInt(-2.5))
	assert.Equal(t, 2.0, roundInt(2.49))
}

func TestChartSeriesFloorsAtZero(t *testing.T) {
	m := mapper(t, metric.KindWeight, metric.UnitPound)
	d := series.Day{Year: 2024, Month: time.January, Day: 1}
	got := m.MapChartSeries([]aggregate.Point{{Day: d, Value: 10}, {Day: d.AddDays(1), Value: -1}, {Day: d.AddDays(2), Value: 0}})
	require.Len(t, got, 3)
	assert.InDelta(t, 22.0462, got[0].Value, 1e-9)
	assert.Equal(t, 0.0, got[1].Value)
	assert.Equal(t, 0.0, got[2].Value)
}

func TestFormatCurrentAndTarget(t *testing.T) {
	kg := mapper(t, metric.KindWeight, metric.UnitKilogram)
	assert.Equal(t, "73.0 kg", kg.FormatCurrent(73))
	assert.Equal(t, Placeholder, kg.FormatCurrent(0))
	assert.Equal(t, Placeholder, kg.FormatTarget(-4))

	lb := mapper(t, metric.KindWeight, metric.UnitPound)
	assert.Equal(t, "160.9 lbs", lb.FormatTarget(73))
}

func TestFormatDeltaWeight(t *testing.T) {
	m := mapper(t, metric.KindWeight, metric.UnitKilogram)

	below := m.KPIs(70, 75)
	assert.Equal(t, "−5.0 kg", below.Delta.Text)
	assert.Equal(t, ToneFavorable, below.Delta.Tone)

	above := m.KPIs(80, 75)
	assert.Equal(t, "+5.0 kg", above.Delta.Text)
	assert.Equal(t, ToneAdverse, above.Delta.Tone)

	even := m.KPIs(75, 75)
	assert.Equal(t, "±0.0 kg", even.Delta.Text)
	assert.Equal(t, ToneNeutral, even.Delta.Tone)
}

func TestFormatDeltaDirectionIsPerKind(t *testing.T) {
	steps := mapper(t, metric.KindSteps, metric.UnitCount)
	d := steps.FormatDelta(500)
	assert.Equal(t, "+500.0 steps", d.Text)
	assert.Equal(t, ToneFavorable, d.Tone)

	override, err := NewMapper(metric.KindWeight, metric.UnitKilogram, metric.HigherIsBetter)
	require.NoError(t, err)
	assert.Equal(t, ToneFavorable, override.FormatDelta(2).Tone)
	assert.Equal(t, ToneAdverse, override.FormatDelta(-2).Tone)
}

func TestKPIsWithoutData(t *testing.T) {
	m := mapper(t, metric.KindWeight, metric.UnitKilogram)
	kpi := m.KPIs(0, 75)
	assert.Equal(t, Placeholder, kpi.Current)
	assert.Equal(t, "75.0 kg", kpi.Target)
	assert.Equal(t, Placeholder, kpi.Delta.Text)
	assert.Equal(t, ToneNeutral, kpi.Delta.Tone)
	assert.False(t, kpi.Delta.Valid)
}

func TestMapMonthly(t *testing.T) {
	m := mapper(t, metric.KindSleep, metric.UnitHour)
	got := m.MapMonthly([]aggregate.MonthAverage{{Year: 2024, Month: time.March, Value: 450, Valid: true}})
	require.Len(t, got, 1)
	assert.Equal(t, "Mar 2024", got[0].Label)
	assert.Equal(t, 8.0, got[0].Value)
}
