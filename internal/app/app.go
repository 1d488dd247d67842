package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"healthtrend/internal/alerting"
	"healthtrend/internal/config"
	"healthtrend/internal/feed"
	"healthtrend/internal/httpapi"
	"healthtrend/internal/metric"
	"healthtrend/internal/observability"
	"healthtrend/internal/pipeline"
	"healthtrend/internal/render"
	"healthtrend/internal/scheduler"
	"healthtrend/internal/series"
	"healthtrend/internal/service"
	"healthtrend/internal/storage"
	"healthtrend/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config     *config.Config
	ConfigPath string
	Logger     zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, configPath string, logger zerolog.Logger) *App {
	return &App{Config: cfg, ConfigPath: configPath, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	if a.Config.Alerting.Enabled {
		return alerting.NewLogNotifier(a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// newSource selects the sample feed. The store is returned separately, when a
// database is configured, so alerts can be audited whatever the feed.
func (a *App) newSource(ctx context.Context) (feed.Source, *storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	if closeStore == nil {
		closeStore = func() {}
	}

	switch a.Config.Source.Type {
	case config.SourceHTTP:
		cfg := a.Config.Source.HTTP
		return feed.NewHTTPSource(feed.HTTPOptions{
			BaseURL:       cfg.BaseURL,
			Token:         cfg.Token,
			Timeout:       cfg.RequestTimeout,
			UserAgent:     cfg.UserAgent,
			RatePerSecond: cfg.RatePerSecond,
			Burst:         cfg.Burst,
		}, a.Logger), store, closeStore, nil
	case config.SourceCSV:
		return feed.NewCSVSource(a.Config.Source.CSV.Path), store, closeStore, nil
	default:
		if store == nil {
			return nil, nil, nil, errors.New("database.dsn not configured; postgres source unavailable")
		}
		return store, store, closeStore, nil
	}
}

func (a *App) newControllers(kinds []metric.Kind) ([]*pipeline.Controller, error) {
	loc, err := a.Config.Location()
	if err != nil {
		return nil, err
	}

	prefs := a.Config.Preferences()
	if len(kinds) > 0 {
		prefs = prefs[:0]
		for _, kind := range kinds {
			pref, err := a.Config.Preference(kind)
			if err != nil {
				return nil, err
			}
			prefs = append(prefs, pref)
		}
	}
	if len(prefs) == 0 {
		return nil, errors.New("no metrics enabled; set metrics.<kind>.enabled")
	}

	controllers := make([]*pipeline.Controller, 0, len(prefs))
	for _, pref := range prefs {
		c, err := pipeline.NewController(pref.Kind, pipeline.Config{
			Unit:      pref.Unit,
			Target:    pref.Target,
			Direction: pref.Direction,
			Location:  loc,
			Observer:  observability.Recorder{},
		}, a.Logger)
		if err != nil {
			return nil, err
		}
		controllers = append(controllers, c)
	}
	return controllers, nil
}

func alertStoreOf(store *storage.Store) storage.AlertStore {
	if store == nil {
		return nil
	}
	return store
}

// Run executes the long-running refresh service, the HTTP API and the config watcher.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	source, store, closeStore, err := a.newSource(ctx)
	if err != nil {
		return err
	}
	defer closeStore()
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; alert audit disabled")
	} else {
		applied, err := store.Migrate(ctx, a.Config.Database.MigrationsPath)
		if err != nil {
			return err
		}
		a.Logger.Info().Strs("migrations", applied).Msg("schema up to date")
	}

	controllers, err := a.newControllers(nil)
	if err != nil {
		return err
	}

	loc, err := a.Config.Location()
	if err != nil {
		return err
	}
	sched := scheduler.New(scheduler.Options{
		Interval:      a.Config.Scheduler.Interval,
		AlignToBucket: a.Config.Scheduler.AlignToBucket,
		StartupDelay:  a.Config.Scheduler.StartupDelay,
		Immediate:     true,
		Location:      loc,
	}, a.Logger)

	svc, err := service.New(a.Config, sched, source, controllers, alertStoreOf(store), a.newNotifier(), a.Logger)
	if err != nil {
		return err
	}

	if _, err := config.Watch(a.ConfigPath, a.Logger, svc.ApplyPreferences); err != nil {
		a.Logger.Warn().Err(err).Msg("configuration watch disabled")
	}

	var wg sync.WaitGroup
	if a.Config.HTTP.Enabled {
		router := httpapi.NewRouter(svc, httpapi.Options{
			AllowedOrigins: a.Config.HTTP.AllowedOrigins,
			ChartSize:      render.Size{Width: a.Config.Export.Width, Height: a.Config.Export.Height},
		}, a.Logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := httpapi.Serve(ctx, a.Config.HTTP.Listen, router, a.Logger); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error().Err(err).Msg("http api stopped")
				cancel()
			}
		}()
	}

	a.Logger.Info().
		Int("metrics", len(controllers)).
		Str("source", a.Config.Source.Type).
		Str("version", version.Version).
		Msg("starting refresh service")
	err = svc.Run(ctx)
	wg.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("refresh service stopped")
	return nil
}

// snapshots runs one synchronous refresh and recompute for kinds as of day.
func (a *App) snapshots(ctx context.Context, kinds []metric.Kind, asOf string) ([]*pipeline.Snapshot, error) {
	source, store, closeStore, err := a.newSource(ctx)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	controllers, err := a.newControllers(kinds)
	if err != nil {
		return nil, err
	}
	svc, err := service.New(a.Config, nil, source, controllers, alertStoreOf(store), nil, a.Logger)
	if err != nil {
		return nil, err
	}

	at, err := a.resolveAsOf(asOf)
	if err != nil {
		return nil, err
	}
	if err := svc.Refresh(ctx, at); err != nil {
		return nil, err
	}

	out := make([]*pipeline.Snapshot, 0, len(controllers))
	for _, c := range controllers {
		snap, err := c.Recompute()
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func (a *App) resolveAsOf(asOf string) (time.Time, error) {
	loc, err := a.Config.Location()
	if err != nil {
		return time.Time{}, err
	}
	if asOf == "" {
		return time.Now().In(loc), nil
	}
	day, err := series.ParseDay(asOf)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of value: %w", err)
	}
	return day.Midnight(loc), nil
}

func parseKinds(names []string) ([]metric.Kind, error) {
	kinds := make([]metric.Kind, 0, len(names))
	for _, name := range names {
		kind, err := metric.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// ExportOptions hold parameters for exporting one metric snapshot.
type ExportOptions struct {
	Kind           string
	AsOf           string
	PNGPath        string
	PeriodsPNGPath string
	MonthlyPNGPath string
	CSVPath        string
	JSONPath       string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Kinds  []string
	AsOf   string
	NoPlot bool
	Width  int
	Height int
}

// ImportOptions configure the CSV import job.
type ImportOptions struct {
	Path   string
	Source string
	DryRun bool
}

// SimulateOptions describe a synthetic alert. Values are in the configured display unit.
type SimulateOptions struct {
	Kind    string
	Current float64
	Target  float64
}
