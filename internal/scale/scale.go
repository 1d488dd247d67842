// Package scale derives chart axis ranges from display-unit values.
package scale

import (
	"math"

	"healthtrend/internal/metric"
)

// Result describes a chart axis.
type Result struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step"`
}

const (
	targetIntervals = 5
	maxTicks        = 64
)

var (
	fineSteps  = []float64{1, 2, 2.5, 5, 10}
	countSteps = []float64{1, 2, 5, 10}
)

var defaults = map[metric.ScaleStyle]Result{
	metric.ScaleRange:     {Min: 0, Max: 100, Step: 20},
	metric.ScaleZeroBased: {Min: 0, Max: 10, Step: 2},
	metric.ScaleCount:     {Min: 0, Max: 10000, Step: 2000},
	metric.ScalePercent:   {Min: 0, Max: 100, Step: 20},
}

// Scale computes the axis for values, which must already be in display units.
func Scale(values []float64, kind metric.Kind) Result {
	style := metric.ScaleRange
	if p, ok := metric.Lookup(kind); ok {
		style = p.Scale
	}

	lo, hi, ok := positiveBounds(values)
	if !ok {
		return defaults[style]
	}

	var r Result
	switch style {
	case metric.ScaleRange:
		r = paddedRange(lo, hi)
	case metric.ScaleCount:
		r = zeroBased(hi, countSteps, 1000)
	case metric.ScalePercent:
		r = zeroBased(math.Min(hi, 100), fineSteps, 0)
		r.Max = math.Min(r.Max, 100)
	default:
		r = zeroBased(hi, fineSteps, 0)
	}

	if !r.valid() {
		return defaults[style]
	}
	return r
}

// Ticks lists axis ticks from Min to Max inclusive.
func (r Result) Ticks() []float64 {
	if !r.valid() {
		return nil
	}
	ticks := make([]float64, 0, int((r.Max-r.Min)/r.Step)+1)
	for v := r.Min; v <= r.Max+r.Step/2 && len(ticks) < maxTicks; v += r.Step {
		ticks = append(ticks, math.Min(v, r.Max))
	}
	return ticks
}

func (r Result) valid() bool {
	for _, v := range []float64{r.Min, r.Max, r.Step} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return r.Step > 0 && r.Max > r.Min
}

// positiveBounds ignores zero gap fillers and non-finite values.
func positiveBounds(values []float64) (float64, float64, bool) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi, !math.IsInf(lo, 1)
}

func paddedRange(lo, hi float64) Result {
	if hi <= lo {
		lo, hi = lo-1, hi+1
	}
	pad := (hi - lo) * 0.05
	a, b := lo-pad, hi+pad
	step := niceStep(b-a, fineSteps, 0)
	lower := math.Floor(a/step) * step
	if lower < 0 {
		lower = 0
	}
	return Result{Min: lower, Max: math.Ceil(b/step) * step, Step: step}
}

func zeroBased(hi float64, candidates []float64, minStep float64) Result {
	step := niceStep(hi, candidates, minStep)
	upper := math.Ceil(hi/step) * step
	if upper < hi {
		upper += step
	}
	return Result{Min: 0, Max: upper, Step: step}
}

// niceStep picks candidate*10^n whose interval count is closest to targetIntervals.
func niceStep(span float64, candidates []float64, minStep float64) float64 {
	if span <= 0 {
		span = 1
	}
	mag := math.Pow(10, math.Floor(math.Log10(span/float64(targetIntervals-1))))
	best, bestScore := mag, math.MaxFloat64
	for _, c := range candidates {
		step := c * mag
		if step < minStep {
			continue
		}
		count := math.Ceil(span / step)
		if score := math.Abs(count - targetIntervals); score < bestScore {
			best, bestScore = step, score
		}
	}
	if best < minStep {
		best = minStep
	}
	return best
}
