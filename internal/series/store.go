// Package series holds the per-metric daily time series mirrored from the
// upstream sample feed. A Series is immutable; Store swaps whole Series values
// on every ingest so readers always see one consistent generation.
package series

import (
	"math"
	"sort"
	"sync/atomic"
)

// Sample is one daily value in the metric's base unit.
type Sample struct {
	Day   Day     `json:"day"`
	Value float64 `json:"value"`
}

// Series is an immutable, day-keyed, ascending collection of samples.
type Series struct {
	byDay   map[Day]float64
	ordered []Sample
}

// New builds a Series from samples. Later samples for the same day replace
// earlier ones; NaN and infinite values are dropped.
func New(samples []Sample) *Series {
	byDay := make(map[Day]float64, len(samples))
	for _, s := range samples {
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			continue
		}
		byDay[s.Day] = s.Value
	}

	ordered := make([]Sample, 0, len(byDay))
	for day, value := range byDay {
		ordered = append(ordered, Sample{Day: day, Value: value})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Day.Before(ordered[j].Day)
	})

	return &Series{byDay: byDay, ordered: ordered}
}

// Empty returns a Series without samples.
func Empty() *Series {
	return &Series{byDay: map[Day]float64{}}
}

// Len returns the number of distinct days.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ordered)
}

// Value returns the sample recorded for day.
func (s *Series) Value(day Day) (float64, bool) {
	if s == nil {
		return 0, false
	}
	v, ok := s.byDay[day]
	return v, ok
}

// All returns a copy of every sample in ascending order.
func (s *Series) All() []Sample {
	if s == nil {
		return nil
	}
	out := make([]Sample, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Query returns samples with from <= day <= to in ascending order.
func (s *Series) Query(from, to Day) []Sample {
	if s == nil || to.Before(from) {
		return nil
	}
	start := sort.Search(len(s.ordered), func(i int) bool {
		return !s.ordered[i].Day.Before(from)
	})
	end := sort.Search(len(s.ordered), func(i int) bool {
		return s.ordered[i].Day.After(to)
	})
	if start >= end {
		return nil
	}
	out := make([]Sample, end-start)
	copy(out, s.ordered[start:end])
	return out
}

// Qualifying returns samples in [from, to] whose value satisfies pred.
func (s *Series) Qualifying(from, to Day, pred func(float64) bool) []Sample {
	window := s.Query(from, to)
	out := window[:0]
	for _, sample := range window {
		if pred(sample.Value) {
			out = append(out, sample)
		}
	}
	return out
}

// LatestQualifying returns the most recent sample on or before day whose value
// satisfies pred.
func (s *Series) LatestQualifying(day Day, pred func(float64) bool) (Sample, bool) {
	if s == nil {
		return Sample{}, false
	}
	idx := sort.Search(len(s.ordered), func(i int) bool {
		return s.ordered[i].Day.After(day)
	})
	for i := idx - 1; i >= 0; i-- {
		if pred(s.ordered[i].Value) {
			return s.ordered[i], true
		}
	}
	return Sample{}, false
}

// Store publishes the current Series for one metric stream.
type Store struct {
	current atomic.Pointer[Series]
}

// NewStore returns a Store holding an empty series.
func NewStore() *Store {
	st := &Store{}
	st.current.Store(Empty())
	return st
}

// Ingest atomically replaces the whole series.
func (st *Store) Ingest(samples []Sample) {
	st.current.Store(New(samples))
}

// Series returns the series published by the latest Ingest.
func (st *Store) Series() *Series {
	return st.current.Load()
}

// Query is shorthand for st.Series().Query.
func (st *Store) Query(from, to Day) []Sample {
	return st.Series().Query(from, to)
}
