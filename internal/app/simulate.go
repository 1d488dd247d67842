package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"healthtrend/internal/feed"
	"healthtrend/internal/metric"
	"healthtrend/internal/pipeline"
	"healthtrend/internal/series"
	"healthtrend/internal/service"
)

// SimulateAlert pushes a synthetic current value and target through a
// controller and the alert path. It reports whether a notification went out.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) (bool, error) {
	if !a.Config.Alerting.Enabled {
		return false, errors.New("alerting is not enabled")
	}
	notifier := a.newNotifier()
	if notifier == nil {
		return false, errors.New("no alert channel configured")
	}

	kind, err := metric.ParseKind(opts.Kind)
	if err != nil {
		return false, err
	}
	pref, err := a.Config.Preference(kind)
	if err != nil {
		return false, err
	}
	current, err := metric.ToBase(opts.Current, kind, pref.Unit)
	if err != nil {
		return false, err
	}
	target, err := metric.ToBase(opts.Target, kind, pref.Unit)
	if err != nil {
		return false, err
	}

	loc, err := a.Config.Location()
	if err != nil {
		return false, err
	}
	now := time.Now().In(loc)

	source := feed.NewStaticSource()
	source.Put(kind, series.Sample{Day: series.DayOf(now, loc), Value: current})

	controller, err := pipeline.NewController(kind, pipeline.Config{
		Unit:      pref.Unit,
		Target:    target,
		Direction: pref.Direction,
		Location:  loc,
	}, a.Logger)
	if err != nil {
		return false, err
	}

	cfg := *a.Config
	cfg.Alerting.Cooldown = 0
	svc, err := service.New(&cfg, nil, source, []*pipeline.Controller{controller}, nil, notifier, a.Logger)
	if err != nil {
		return false, err
	}
	if err := svc.Refresh(ctx, now); err != nil {
		return false, err
	}
	snap, err := controller.Recompute()
	if err != nil {
		return false, err
	}

	sent, err := svc.EvaluateAlert(ctx, snap)
	if err != nil {
		return false, fmt.Errorf("simulate alert: %w", err)
	}
	a.Logger.Info().
		Str("kind", string(kind)).
		Str("delta", snap.KPI.Delta.Text).
		Str("tone", string(snap.KPI.Delta.Tone)).
		Bool("sent", sent).
		Msg("simulated alert evaluated")
	return sent, nil
}
