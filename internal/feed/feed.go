// Package feed provides upstream sources of raw daily samples.
package feed

import (
	"context"
	"sort"
	"sync"

	"healthtrend/internal/metric"
	"healthtrend/internal/series"
)

// Source retrieves raw daily samples in base units for one metric kind over
// the inclusive day range [from, to].
type Source interface {
	FetchSamples(ctx context.Context, kind metric.Kind, from, to series.Day) ([]series.Sample, error)
}

// StaticSource serves samples held in memory.
type StaticSource struct {
	mu      sync.RWMutex
	samples map[metric.Kind][]series.Sample
}

// NewStaticSource constructs an empty in-memory source.
func NewStaticSource() *StaticSource {
	return &StaticSource{samples: make(map[metric.Kind][]series.Sample)}
}

// Put appends samples for kind.
func (s *StaticSource) Put(kind metric.Kind, samples ...series.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[kind] = append(s.samples[kind], samples...)
}

// FetchSamples returns the stored samples within range, ascending by day.
func (s *StaticSource) FetchSamples(ctx context.Context, kind metric.Kind, from, to series.Day) ([]series.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterRange(s.samples[kind], from, to), nil
}

func filterRange(samples []series.Sample, from, to series.Day) []series.Sample {
	out := make([]series.Sample, 0, len(samples))
	for _, sample := range samples {
		if sample.Day.Before(from) || sample.Day.After(to) {
			continue
		}
		out = append(out, sample)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out
}

var _ Source = (*StaticSource)(nil)
