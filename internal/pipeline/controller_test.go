package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthtrend/internal/aggregate"
	"healthtrend/internal/display"
	"healthtrend/internal/metric"
	"healthtrend/internal/series"
)

var fixedNow = time.Date(2024, time.May, 20, 9, 30, 0, 0, time.UTC)

func newController(t *testing.T, kind metric.Kind, cfg Config) *Controller {
	t.Helper()
	cfg.Location = time.UTC
	cfg.Clock = func() time.Time { return fixedNow }
	c, err := NewController(kind, cfg, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func lastWeek(values ...float64) []series.Sample {
	today := series.DayOf(fixedNow, time.UTC)
	out := make([]series.Sample, 0, len(values))
	for i, v := range values {
		out = append(out, series.Sample{Day: today.AddDays(-(len(values) - i)), Value: v})
	}
	return out
}

type countingObserver struct {
	passes    atomic.Int32
	failures  atomic.Int32
	coalesced atomic.Int32
}

func (o *countingObserver) ObserveRecompute(_ metric.Kind, _ time.Duration, err error) {
	if err != nil {
		o.failures.Add(1)
		return
	}
	o.passes.Add(1)
}

func (o *countingObserver) ObserveCoalesced(metric.Kind) { o.coalesced.Add(1) }

func TestComputeWeightInPounds(t *testing.T) {
	c := newController(t, metric.KindWeight, Config{Unit: metric.UnitPound, Target: 75})
	c.SetSamples(lastWeek(70, 71, 72, 73, 74, 75, 76))

	snap, err := c.Recompute()
	require.NoError(t, err)

	require.Len(t, snap.Periods, len(aggregate.CanonicalWindows))
	assert.Equal(t, display.Entry{Label: "7T", Days: 7, Value: 161, Valid: true}, snap.Periods[0])
	assert.Len(t, snap.Chart, aggregate.ChartDays)
	assert.Equal(t, series.DayOf(fixedNow, time.UTC), snap.AsOf)

	assert.True(t, snap.TodayFallback, "no value for today, latest positive used")
	assert.InDelta(t, 76*2.20462, snap.Today, 1e-9)
	assert.Equal(t, "167.6 lbs", snap.KPI.Current)
	assert.Equal(t, "165.3 lbs", snap.KPI.Target)
	assert.Equal(t, "+2.2 lbs", snap.KPI.Delta.Text)
	assert.Equal(t, display.ToneAdverse, snap.KPI.Delta.Tone)

	assert.GreaterOrEqual(t, snap.DailyScale.Max, 76*2.20462)
	assert.GreaterOrEqual(t, snap.PeriodScale.Max, 161.0)
	assert.NotEqual(t, snap.DailyScale, snap.MonthlyScale)
	assert.NotEmpty(t, snap.ID.String())
	assert.Equal(t, fixedNow, snap.ComputedAt)
}

func TestComputeEmptySeries(t *testing.T) {
	snap, err := Compute(metric.KindSteps, Inputs{Unit: metric.UnitCount, AsOf: series.DayOf(fixedNow, time.UTC)}, Options{})
	require.NoError(t, err)
	assert.False(t, snap.TodayValid)
	assert.Equal(t, display.Placeholder, snap.KPI.Current)
	assert.Len(t, snap.Chart, aggregate.ChartDays)
	for _, p := range snap.Periods {
		assert.False(t, p.Valid)
	}
	assert.Greater(t, snap.DailyScale.Max, snap.DailyScale.Min)
}

func TestStateTransitions(t *testing.T) {
	c := newController(t, metric.KindSteps, Config{})
	assert.Equal(t, StateIdle, c.State())
	assert.Nil(t, c.Current())

	_, err := c.Recompute()
	require.NoError(t, err)
	assert.Equal(t, StatePublished, c.State())
	assert.Equal(t, "published", c.State().String())
}

func TestUnsupportedUnitKeepsPreviousSnapshot(t *testing.T) {
	obs := &countingObserver{}
	c := newController(t, metric.KindWeight, Config{Unit: metric.UnitKilogram, Observer: obs})
	c.SetSamples(lastWeek(80))

	first, err := c.Recompute()
	require.NoError(t, err)

	c.SetUnit(metric.UnitCount)
	_, err = c.Recompute()
	var unsupported *metric.UnsupportedUnitError
	require.True(t, errors.As(err, &unsupported))

	assert.Same(t, first, c.Current())
	assert.Equal(t, StatePublished, c.State())
	assert.Equal(t, int32(1), obs.passes.Load())
	assert.Equal(t, int32(1), obs.failures.Load())
}

func TestUnsupportedUnitBeforeFirstSnapshotStaysIdle(t *testing.T) {
	c := newController(t, metric.KindSteps, Config{Unit: metric.UnitPound})
	_, err := c.Recompute()
	require.Error(t, err)
	assert.Equal(t, StateIdle, c.State())
	assert.Nil(t, c.Current())
}

func TestTriggersCoalesceIntoOneSnapshot(t *testing.T) {
	obs := &countingObserver{}
	c := newController(t, metric.KindWeight, Config{Unit: metric.UnitKilogram, Observer: obs})

	published := make(chan *Snapshot, 8)
	c.Subscribe(func(s *Snapshot) { published <- s })

	c.SetTarget(75)
	c.SetUnit(metric.UnitPound)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case snap := <-published:
		assert.Equal(t, uint64(2), snap.Generation)
		assert.Equal(t, metric.UnitPound, snap.Unit)
		assert.InDelta(t, 75*2.20462, snap.Target, 1e-9)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot published")
	}

	select {
	case snap := <-published:
		t.Fatalf("unexpected second snapshot generation %d", snap.Generation)
	case <-time.After(100 * time.Millisecond):
	}

	assert.Equal(t, int32(1), obs.coalesced.Load())
	assert.Equal(t, int32(1), obs.passes.Load())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestTriggerDuringPublishRunsOneFollowUp(t *testing.T) {
	c := newController(t, metric.KindSteps, Config{})

	published := make(chan *Snapshot, 8)
	var once atomic.Bool
	c.Subscribe(func(s *Snapshot) {
		if once.CompareAndSwap(false, true) {
			c.SetTarget(9000)
			c.SetTarget(10000)
		}
		published <- s
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	c.SetCurrent(4000)

	var got []*Snapshot
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case s := <-published:
			got = append(got, s)
		case <-timeout:
			t.Fatalf("expected two snapshots, got %d", len(got))
		}
	}

	select {
	case s := <-published:
		t.Fatalf("unexpected third snapshot generation %d", s.Generation)
	case <-time.After(100 * time.Millisecond):
	}

	assert.Equal(t, "10000.0 steps", got[1].KPI.Target)
	assert.Equal(t, uint64(3), got[1].Generation)
}

func TestUnsubscribe(t *testing.T) {
	c := newController(t, metric.KindSteps, Config{})
	var calls atomic.Int32
	cancel := c.Subscribe(func(*Snapshot) { calls.Add(1) })

	_, err := c.Recompute()
	require.NoError(t, err)
	cancel()
	_, err = c.Recompute()
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
}

func TestSetAsOfShiftsWindows(t *testing.T) {
	c := newController(t, metric.KindSteps, Config{})
	today := series.DayOf(fixedNow, time.UTC)
	c.SetSamples([]series.Sample{{Day: today, Value: 1000}})

	snap, err := c.Recompute()
	require.NoError(t, err)
	assert.False(t, snap.Periods[0].Valid, "today is excluded")

	c.SetAsOf(today.AddDays(1))
	snap, err = c.Recompute()
	require.NoError(t, err)
	assert.True(t, snap.Periods[0].Valid)
	assert.Equal(t, 1000.0, snap.Periods[0].Value)
}

func TestNewControllerUnknownKind(t *testing.T) {
	_, err := NewController(metric.Kind("mood"), Config{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestTriggersWhileRunningPublishEachGenerationOnce(t *testing.T) {
	obs := &countingObserver{}
	c := newController(t, metric.KindWeight, Config{Unit: metric.UnitKilogram, Observer: obs})

	published := make(chan *Snapshot, 8)
	c.Subscribe(func(s *Snapshot) { published <- s })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)

	c.SetSamples(lastWeek(80, 80, 80))
	c.SetTarget(70)

	var got []*Snapshot
	timeout := time.After(300 * time.Millisecond)
collect:
	for {
		select {
		case s := <-published:
			got = append(got, s)
		case <-timeout:
			break collect
		}
	}

	require.NotEmpty(t, got)
	seen := make(map[uint64]bool)
	for _, s := range got {
		assert.False(t, seen[s.Generation], "generation %d published twice", s.Generation)
		seen[s.Generation] = true
	}
	last := got[len(got)-1]
	assert.Equal(t, uint64(2), last.Generation)
	assert.Same(t, last, c.Current())
	assert.Equal(t, int32(len(got)), obs.passes.Load())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSetFeedIsOneGeneration(t *testing.T) {
	c := newController(t, metric.KindWeight, Config{Unit: metric.UnitKilogram, Target: 75})
	asOf := series.DayOf(fixedNow, time.UTC).AddDays(-1)
	samples := append(lastWeek(80, 80), series.Sample{Day: asOf, Value: 78})

	c.SetFeed(samples, 78, asOf)

	snap, err := c.Recompute()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, asOf, snap.AsOf)
	assert.Equal(t, 78.0, snap.Today)
	assert.False(t, snap.TodayFallback)
	assert.Equal(t, "+3.0 kg", snap.KPI.Delta.Text)
}

func TestSetPreferenceIsOneGeneration(t *testing.T) {
	c := newController(t, metric.KindWeight, Config{Unit: metric.UnitKilogram})
	c.SetSamples(lastWeek(80))

	c.SetPreference(metric.UnitPound, 75, metric.HigherIsBetter)

	snap, err := c.Recompute()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Generation)
	assert.Equal(t, metric.UnitPound, snap.Unit)
	assert.Equal(t, metric.HigherIsBetter, snap.Direction)
	assert.Equal(t, display.ToneFavorable, snap.KPI.Delta.Tone)
}
