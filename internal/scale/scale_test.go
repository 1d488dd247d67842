package scale

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthtrend/internal/metric"
)

func assertSane(t *testing.T, r Result) {
	t.Helper()
	for _, v := range []float64{r.Min, r.Max, r.Step} {
		require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "non-finite axis %+v", r)
	}
	require.Greater(t, r.Step, 0.0)
	require.Greater(t, r.Max, r.Min)
}

func TestDegenerateInputs(t *testing.T) {
	inputs := [][]float64{nil, {}, {0, 0, 0}, {math.NaN()}, {-5, 0}}
	for _, kind := range metric.Kinds() {
		for _, in := range inputs {
			r := Scale(in, kind)
			assertSane(t, r)
			assert.NotEmpty(t, r.Ticks())
		}
	}
}

func TestStepCountsUseThousands(t *testing.T) {
	r := Scale([]float64{10000, 12000, 8000}, metric.KindSteps)
	assertSane(t, r)
	assert.Equal(t, 0.0, r.Min)
	assert.GreaterOrEqual(t, r.Max, 12000.0)
	assert.Zero(t, math.Mod(r.Step, 1000), "step %v", r.Step)
	assert.Equal(t, 2000.0, r.Step)
}

func TestSmallStepCountsKeepMinimumStep(t *testing.T) {
	r := Scale([]float64{120, 300}, metric.KindSteps)
	assert.Equal(t, 1000.0, r.Step)
	assert.GreaterOrEqual(t, r.Max, 300.0)
}

func TestWeightRangeIsPadded(t *testing.T) {
	r := Scale([]float64{0, 70, 72, 76, 0}, metric.KindWeight)
	assertSane(t, r)
	assert.LessOrEqual(t, r.Min, 70.0)
	assert.Greater(t, r.Min, 0.0, "gap fillers must not pull the axis to zero")
	assert.GreaterOrEqual(t, r.Max, 76.0)
	assert.Equal(t, 68.0, r.Min)
	assert.Equal(t, 78.0, r.Max)
	assert.Equal(t, 2.0, r.Step)
}

func TestSingleValueRange(t *testing.T) {
	r := Scale([]float64{161}, metric.KindWeight)
	assertSane(t, r)
	assert.LessOrEqual(t, r.Min, 161.0)
	assert.GreaterOrEqual(t, r.Max, 161.0)
}

func TestPercentClamped(t *testing.T) {
	r := Scale([]float64{18, 99}, metric.KindBodyFat)
	assert.Equal(t, 0.0, r.Min)
	assert.Equal(t, 100.0, r.Max)

	r = Scale([]float64{150}, metric.KindBodyFat)
	assert.LessOrEqual(t, r.Max, 100.0)
}

func TestZeroBasedSleep(t *testing.T) {
	r := Scale([]float64{6.5, 7.25, 8}, metric.KindSleep)
	assert.Equal(t, 0.0, r.Min)
	assert.GreaterOrEqual(t, r.Max, 8.0)
}

func TestTicks(t *testing.T) {
	r := Result{Min: 0, Max: 12000, Step: 2000}
	assert.Equal(t, []float64{0, 2000, 4000, 6000, 8000, 10000, 12000}, r.Ticks())
	assert.Nil(t, Result{}.Ticks())
}
