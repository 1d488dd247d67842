package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"healthtrend/internal/alerting"
	"healthtrend/internal/config"
	"healthtrend/internal/display"
	"healthtrend/internal/feed"
	"healthtrend/internal/metric"
	"healthtrend/internal/observability"
	"healthtrend/internal/pipeline"
	"healthtrend/internal/scheduler"
	"healthtrend/internal/series"
	"healthtrend/internal/storage"
)

const alertQueueSize = 16

// Service orchestrates feed refreshes, controller loops and alerting.
type Service struct {
	scheduler   *scheduler.Scheduler
	source      feed.Source
	controllers []*pipeline.Controller
	byKind      map[metric.Kind]*pipeline.Controller
	alertStore  storage.AlertStore
	notifier    alerting.Notifier
	logger      zerolog.Logger

	loc       *time.Location
	lookback  int
	channels  []string
	alertsOn  bool
	cooldown  time.Duration
	retention time.Duration
	locker    storage.AdvisoryLocker
	lockKey   int64
	now       func() time.Time

	alerts    chan *pipeline.Snapshot
	alertMu   sync.Mutex
	lastAlert map[metric.Kind]time.Time
}

// New constructs the refresh service.
func New(cfg *config.Config, sched *scheduler.Scheduler, source feed.Source, controllers []*pipeline.Controller, alertStore storage.AlertStore, notifier alerting.Notifier, logger zerolog.Logger) (*Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var locker storage.AdvisoryLocker
	if l, ok := source.(storage.AdvisoryLocker); ok {
		locker = l
	}

	byKind := make(map[metric.Kind]*pipeline.Controller, len(controllers))
	for _, c := range controllers {
		byKind[c.Kind()] = c
	}

	return &Service{
		scheduler:   sched,
		source:      source,
		controllers: controllers,
		byKind:      byKind,
		alertStore:  alertStore,
		notifier:    notifier,
		logger:      logger.With().Str("component", "service").Logger(),
		loc:         loc,
		lookback:    cfg.Scheduler.LookbackDays,
		channels:    cfg.Alerting.Channels,
		alertsOn:    cfg.Alerting.Enabled,
		cooldown:    cfg.Alerting.Cooldown,
		retention:   cfg.Alerting.Retention,
		locker:      locker,
		lockKey:     cfg.Scheduler.AdvisoryLockKey,
		now:         time.Now,
		alerts:      make(chan *pipeline.Snapshot, alertQueueSize),
		lastAlert:   make(map[metric.Kind]time.Time),
	}, nil
}

// Run starts one recompute loop per controller, the alert worker and the
// scheduled refresh loop. It returns when ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}

	var wg sync.WaitGroup
	for _, c := range s.controllers {
		unsubscribe := c.Subscribe(s.enqueueAlert)
		defer unsubscribe()

		wg.Add(1)
		go func(c *pipeline.Controller) {
			defer wg.Done()
			_ = c.Run(ctx)
		}(c)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.alertWorker(ctx)
	}()

	err := s.scheduler.Run(ctx, s.Refresh)
	wg.Wait()
	return err
}

// Controller returns the controller for kind.
func (s *Service) Controller(kind metric.Kind) (*pipeline.Controller, bool) {
	c, ok := s.byKind[kind]
	return c, ok
}

// Snapshot returns the current snapshot for kind, if one was published.
func (s *Service) Snapshot(kind metric.Kind) (*pipeline.Snapshot, bool) {
	c, ok := s.byKind[kind]
	if !ok {
		return nil, false
	}
	snap := c.Current()
	return snap, snap != nil
}

// Snapshots returns every published snapshot in controller order.
func (s *Service) Snapshots() []*pipeline.Snapshot {
	out := make([]*pipeline.Snapshot, 0, len(s.controllers))
	for _, c := range s.controllers {
		if snap := c.Current(); snap != nil {
			out = append(out, snap)
		}
	}
	return out
}

// Kinds lists the served metric kinds in controller order.
func (s *Service) Kinds() []metric.Kind {
	out := make([]metric.Kind, 0, len(s.controllers))
	for _, c := range s.controllers {
		out = append(out, c.Kind())
	}
	return out
}

// Refresh pulls the lookback window for every controller and pushes samples,
// today's value and the as-of day. A failed fetch leaves that controller's
// inputs untouched.
func (s *Service) Refresh(ctx context.Context, at time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("at", at).Msg("skip refresh because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	asOf := series.DayOf(at, s.loc)
	from := asOf.AddDays(-s.lookback)

	var errs []error
	for _, c := range s.controllers {
		kind := c.Kind()
		samples, err := s.source.FetchSamples(ctx, kind, from, asOf)
		if err != nil {
			observability.RefreshErrorsTotal.WithLabelValues(string(kind)).Inc()
			s.logger.Error().Err(err).Str("kind", string(kind)).Msg("failed to fetch samples")
			errs = append(errs, fmt.Errorf("refresh %s: %w", kind, err))
			continue
		}

		c.SetFeed(samples, todayValue(samples, asOf), asOf)
		observability.SamplesLoaded.WithLabelValues(string(kind)).Set(float64(len(samples)))

		s.logger.Info().
			Str("kind", string(kind)).
			Str("as_of", asOf.String()).
			Int("samples", len(samples)).
			Msg("samples refreshed")
	}

	s.pruneAlerts(ctx, at)
	return errors.Join(errs...)
}

// pruneAlerts drops audit rows older than the configured retention.
func (s *Service) pruneAlerts(ctx context.Context, at time.Time) {
	s.alertMu.Lock()
	retention := s.retention
	s.alertMu.Unlock()
	if s.alertStore == nil || retention <= 0 {
		return
	}

	cutoff := at.Add(-retention)
	if err := s.alertStore.DeleteAlertsBefore(ctx, cutoff); err != nil && !errors.Is(err, storage.ErrNotConfigured) {
		s.logger.Warn().Err(err).Time("cutoff", cutoff).Msg("failed to prune alert audit")
	}
}

func todayValue(samples []series.Sample, asOf series.Day) float64 {
	for i := len(samples) - 1; i >= 0; i-- {
		if samples[i].Day == asOf {
			return samples[i].Value
		}
	}
	return 0
}

// ApplyPreferences pushes unit, target and direction from cfg into the
// controllers. Used for configuration reloads.
func (s *Service) ApplyPreferences(cfg *config.Config) {
	for _, c := range s.controllers {
		pref, err := cfg.Preference(c.Kind())
		if err != nil {
			s.logger.Warn().Err(err).Str("kind", string(c.Kind())).Msg("skip invalid preference")
			continue
		}
		c.SetPreference(pref.Unit, pref.Target, pref.Direction)
	}
	s.alertMu.Lock()
	s.alertsOn = cfg.Alerting.Enabled
	s.cooldown = cfg.Alerting.Cooldown
	s.retention = cfg.Alerting.Retention
	s.channels = cfg.Alerting.Channels
	s.alertMu.Unlock()
}

func (s *Service) enqueueAlert(snap *pipeline.Snapshot) {
	if snap.KPI.Delta.Tone != display.ToneAdverse {
		return
	}
	select {
	case s.alerts <- snap:
	default:
		s.logger.Warn().Str("kind", string(snap.Kind)).Msg("alert queue full; dropping snapshot")
	}
}

func (s *Service) alertWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-s.alerts:
			if _, err := s.EvaluateAlert(ctx, snap); err != nil {
				s.logger.Error().Err(err).Str("kind", string(snap.Kind)).Msg("failed to dispatch alert")
			}
		}
	}
}

// EvaluateAlert notifies when snap carries an adverse delta and the kind is
// outside its cooldown. It reports whether a notification was sent.
func (s *Service) EvaluateAlert(ctx context.Context, snap *pipeline.Snapshot) (bool, error) {
	s.alertMu.Lock()
	alertsOn, cooldown, channels := s.alertsOn, s.cooldown, s.channels
	s.alertMu.Unlock()

	if !alertsOn || s.notifier == nil || snap == nil {
		return false, nil
	}
	if snap.KPI.Delta.Tone != display.ToneAdverse {
		return false, nil
	}

	now := s.now()
	last, seen, err := s.lastAlertAt(ctx, snap.Kind)
	if err != nil {
		return false, err
	}
	if seen && cooldown > 0 && now.Sub(last) < cooldown {
		s.logger.Debug().Str("kind", string(snap.Kind)).Time("last_alert", last).Msg("alert suppressed by cooldown")
		return false, nil
	}

	note := alerting.Notification{
		Kind:       snap.Kind,
		Day:        snap.AsOf,
		Current:    snap.KPI.Current,
		Target:     snap.KPI.Target,
		Delta:      snap.KPI.Delta,
		Direction:  snap.Direction,
		Channels:   channels,
		SnapshotID: snap.ID.String(),
	}
	if snap.TodayValid && snap.TodayFallback {
		note.AdditionalMsg = fmt.Sprintf("No reading for %s yet; current value is from %s.\n", snap.AsOf, snap.TodayDay)
	}

	if s.alertStore != nil {
		record := storage.AlertRecord{
			Kind:       snap.Kind,
			Day:        snap.AsOf,
			Current:    decimal.NewFromFloat(snap.Today),
			Target:     decimal.NewFromFloat(snap.Target),
			Unit:       snap.Unit,
			DeltaText:  snap.KPI.Delta.Text,
			SnapshotID: snap.ID.String(),
			Channels:   channels,
		}
		if _, err := s.alertStore.InsertAlert(ctx, record); err != nil {
			s.logger.Error().Err(err).Str("kind", string(snap.Kind)).Msg("failed to persist alert record")
		}
	}

	if err := s.notifier.Notify(ctx, note); err != nil {
		return false, fmt.Errorf("notify %s: %w", snap.Kind, err)
	}

	s.alertMu.Lock()
	s.lastAlert[snap.Kind] = now
	s.alertMu.Unlock()
	observability.AlertsSentTotal.WithLabelValues(string(snap.Kind)).Inc()
	return true, nil
}

func (s *Service) lastAlertAt(ctx context.Context, kind metric.Kind) (time.Time, bool, error) {
	s.alertMu.Lock()
	last, ok := s.lastAlert[kind]
	s.alertMu.Unlock()
	if ok || s.alertStore == nil {
		return last, ok, nil
	}

	at, found, err := s.alertStore.LastAlertAt(ctx, kind)
	if err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("load last alert: %w", err)
	}
	return at, found, nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
