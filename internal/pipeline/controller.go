package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"healthtrend/internal/aggregate"
	"healthtrend/internal/metric"
	"healthtrend/internal/series"
)

// State is the controller lifecycle phase.
type State int32

const (
	StateIdle State = iota
	StateRecomputing
	StatePublished
)

func (s State) String() string {
	switch s {
	case StateRecomputing:
		return "recomputing"
	case StatePublished:
		return "published"
	default:
		return "idle"
	}
}

// Observer receives recompute instrumentation.
type Observer interface {
	ObserveRecompute(kind metric.Kind, elapsed time.Duration, err error)
	ObserveCoalesced(kind metric.Kind)
}

type nopObserver struct{}

func (nopObserver) ObserveRecompute(metric.Kind, time.Duration, error) {}
func (nopObserver) ObserveCoalesced(metric.Kind)                       {}

// Config seeds a controller.
type Config struct {
	Unit      metric.Unit
	Target    float64
	Direction metric.Direction
	Windows   []aggregate.Window
	ChartDays int
	Months    int
	Location  *time.Location
	Clock     func() time.Time
	Observer  Observer
}

// Controller owns the inputs of one metric stream and republishes a Snapshot
// whenever they change. Input setters may be called from any goroutine; passes
// run on the goroutine executing Run, or on the caller of Recompute.
type Controller struct {
	kind     metric.Kind
	opts     Options
	loc      *time.Location
	clock    func() time.Time
	observer Observer
	logger   zerolog.Logger

	mu     sync.Mutex
	store  *series.Store
	inputs Inputs

	signal  chan struct{}
	passMu  sync.Mutex
	state   atomic.Int32
	current atomic.Pointer[Snapshot]

	subMu   sync.Mutex
	subs    map[int]func(*Snapshot)
	nextSub int
}

// NewController builds a controller for kind.
func NewController(kind metric.Kind, cfg Config, logger zerolog.Logger) (*Controller, error) {
	policy, ok := metric.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("new controller: unknown metric kind %q", kind)
	}

	unit := cfg.Unit
	if unit == "" {
		unit = policy.Base
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	observer := cfg.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	c := &Controller{
		kind:     kind,
		opts:     Options{Windows: cfg.Windows, ChartDays: cfg.ChartDays, Months: cfg.Months},
		loc:      loc,
		clock:    clock,
		observer: observer,
		logger:   logger.With().Str("component", "controller").Str("kind", string(kind)).Logger(),
		store:    series.NewStore(),
		inputs: Inputs{
			Target:    cfg.Target,
			Unit:      unit,
			Direction: cfg.Direction,
		},
		signal: make(chan struct{}, 1),
		subs:   make(map[int]func(*Snapshot)),
	}
	return c, nil
}

// Kind returns the metric kind this controller serves.
func (c *Controller) Kind() metric.Kind { return c.kind }

// State returns the current lifecycle phase.
func (c *Controller) State() State { return State(c.state.Load()) }

// Current returns the latest published snapshot, or nil before the first one.
func (c *Controller) Current() *Snapshot { return c.current.Load() }

// SetSamples replaces the raw series.
func (c *Controller) SetSamples(samples []series.Sample) {
	c.update(func(in *Inputs) { c.store.Ingest(samples) })
}

// SetCurrent sets today's base value; zero means not yet available.
func (c *Controller) SetCurrent(v float64) {
	c.update(func(in *Inputs) { in.Current = v })
}

// SetTarget sets the target in base units.
func (c *Controller) SetTarget(v float64) {
	c.update(func(in *Inputs) { in.Target = v })
}

// SetUnit switches the display unit.
func (c *Controller) SetUnit(u metric.Unit) {
	c.update(func(in *Inputs) { in.Unit = u })
}

// SetAsOf pins "today". A zero day follows the clock.
func (c *Controller) SetAsOf(day series.Day) {
	c.update(func(in *Inputs) { in.AsOf = day })
}

// SetFeed applies one feed refresh (raw series, today's base value and the
// as-of day) as a single input generation.
func (c *Controller) SetFeed(samples []series.Sample, current float64, asOf series.Day) {
	c.update(func(in *Inputs) {
		c.store.Ingest(samples)
		in.Current = current
		in.AsOf = asOf
	})
}

// SetPreference applies display unit, target and direction as a single input
// generation.
func (c *Controller) SetPreference(u metric.Unit, target float64, d metric.Direction) {
	c.update(func(in *Inputs) {
		in.Unit = u
		in.Target = target
		in.Direction = d
	})
}

func (c *Controller) update(apply func(in *Inputs)) {
	c.mu.Lock()
	apply(&c.inputs)
	c.inputs.Generation++
	c.mu.Unlock()
	c.trigger()
}

func (c *Controller) trigger() {
	select {
	case c.signal <- struct{}{}:
	default:
		c.observer.ObserveCoalesced(c.kind)
	}
}

func (c *Controller) read() Inputs {
	c.mu.Lock()
	defer c.mu.Unlock()
	in := c.inputs
	in.Series = c.store.Series()
	if in.AsOf.IsZero() {
		in.AsOf = series.DayOf(c.clock(), c.loc)
	}
	return in
}

// Subscribe registers fn for every published snapshot. fn runs on the
// recompute goroutine and must not call Recompute. The returned func removes it.
func (c *Controller) Subscribe(fn func(*Snapshot)) func() {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// Run recomputes once per pending trigger until ctx is cancelled. Triggers
// that arrive before a pass reads its inputs are folded into that pass, and a
// trigger whose inputs are already published is dropped.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.signal:
			// failures are logged by pass and leave the previous snapshot current
			_, _ = c.pass(false)
		}
	}
}

// Recompute runs one pass on the calling goroutine, absorbing any pending trigger.
func (c *Controller) Recompute() (*Snapshot, error) {
	return c.pass(true)
}

func (c *Controller) pass(drain bool) (*Snapshot, error) {
	c.passMu.Lock()
	defer c.passMu.Unlock()

	if drain {
		select {
		case <-c.signal:
		default:
		}
	}

	in := c.read()
	if !drain && c.upToDate(in) {
		c.observer.ObserveCoalesced(c.kind)
		return c.current.Load(), nil
	}
	c.state.Store(int32(StateRecomputing))

	start := time.Now()
	snap, err := Compute(c.kind, in, c.opts)
	c.observer.ObserveRecompute(c.kind, time.Since(start), err)
	if err != nil {
		c.restoreState()
		c.logger.Error().Err(err).Uint64("generation", in.Generation).Msg("recompute aborted; keeping previous snapshot")
		return nil, err
	}

	snap.ID = uuid.New()
	snap.ComputedAt = c.clock()
	c.current.Store(snap)
	c.state.Store(int32(StatePublished))

	c.logger.Debug().
		Uint64("generation", snap.Generation).
		Str("as_of", snap.AsOf.String()).
		Str("unit", string(snap.Unit)).
		Msg("snapshot published")

	c.publish(snap)
	return snap, nil
}

// upToDate reports whether the published snapshot already reflects in.
// Callers hold passMu.
func (c *Controller) upToDate(in Inputs) bool {
	cur := c.current.Load()
	return cur != nil && cur.Generation == in.Generation && cur.AsOf == in.AsOf
}

func (c *Controller) restoreState() {
	if c.current.Load() != nil {
		c.state.Store(int32(StatePublished))
		return
	}
	c.state.Store(int32(StateIdle))
}

func (c *Controller) publish(snap *Snapshot) {
	c.subMu.Lock()
	fns := make([]func(*Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
