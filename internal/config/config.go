package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"healthtrend/internal/logging"
	"healthtrend/internal/metric"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig               `mapstructure:"app"`
	Logging   logging.Config          `mapstructure:"logging"`
	Database  DatabaseConfig          `mapstructure:"database"`
	Scheduler SchedulerConfig         `mapstructure:"scheduler"`
	Source    SourceConfig            `mapstructure:"source"`
	Metrics   map[string]MetricConfig `mapstructure:"metrics"`
	Alerting  AlertingConfig          `mapstructure:"alerting"`
	Export    ExportConfig            `mapstructure:"export"`
	HTTP      HTTPConfig              `mapstructure:"http"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	TimeZone    string `mapstructure:"time_zone"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs refresh cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	LookbackDays    int           `mapstructure:"lookback_days"`
}

// SourceConfig selects where raw daily samples come from.
type SourceConfig struct {
	Type string     `mapstructure:"type"`
	HTTP HTTPSource `mapstructure:"http"`
	CSV  CSVSource  `mapstructure:"csv"`
}

// HTTPSource configures the JSON sample endpoint.
type HTTPSource struct {
	BaseURL        string        `mapstructure:"base_url"`
	Token          string        `mapstructure:"token"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	Burst          int           `mapstructure:"burst"`
}

// CSVSource points at a day,kind,value file.
type CSVSource struct {
	Path string `mapstructure:"path"`
}

// MetricConfig holds the per-kind display preference. Target is in the kind's
// base unit (kg, count, min, kcal, mg/dL, %).
type MetricConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	Unit      string  `mapstructure:"unit"`
	Target    float64 `mapstructure:"target"`
	Direction string  `mapstructure:"direction"`
}

// AlertingConfig defines alert routing. Retention bounds the alert audit
// table; zero keeps every row.
type AlertingConfig struct {
	Enabled   bool           `mapstructure:"enabled"`
	Cooldown  time.Duration  `mapstructure:"cooldown"`
	Retention time.Duration  `mapstructure:"retention"`
	Channels  []string       `mapstructure:"channels"`
	Telegram  TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram alert parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// HTTPConfig configures the read-only snapshot API.
type HTTPConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Listen         string   `mapstructure:"listen"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Source types.
const (
	SourcePostgres = "postgres"
	SourceHTTP     = "http"
	SourceCSV      = "csv"
)

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := newViper(path)
	if err := readConfig(v); err != nil {
		return nil, err
	}
	return decode(v)
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("HEALTHTREND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "healthtrend")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.time_zone", "Local")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("scheduler.interval", "15m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x68747264))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.lookback_days", 400)

	v.SetDefault("source.type", SourcePostgres)
	v.SetDefault("source.http.request_timeout", "10s")
	v.SetDefault("source.http.user_agent", "healthtrend/1.0")
	v.SetDefault("source.http.rate_per_second", 5.0)
	v.SetDefault("source.http.burst", 1)

	for _, kind := range metric.Kinds() {
		p := metric.MustLookup(kind)
		key := "metrics." + string(kind)
		v.SetDefault(key+".enabled", kind == metric.KindWeight || kind == metric.KindSteps)
		v.SetDefault(key+".unit", string(p.Base))
		v.SetDefault(key+".target", 0.0)
		v.SetDefault(key+".direction", string(p.Direction))
	}

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.cooldown", "24h")
	v.SetDefault("alerting.retention", "2160h")
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.width", 1280)
	v.SetDefault("export.height", 720)

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.listen", ":8080")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.LookbackDays < 366 {
		return fmt.Errorf("scheduler.lookback_days must cover the 365 day window plus today")
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.Source.Type {
	case SourcePostgres:
	case SourceHTTP:
		if c.Source.HTTP.BaseURL == "" {
			return fmt.Errorf("source.http.base_url is required for the http source")
		}
	case SourceCSV:
		if c.Source.CSV.Path == "" {
			return fmt.Errorf("source.csv.path is required for the csv source")
		}
	default:
		return fmt.Errorf("source.type must be one of postgres, http, csv; got %q", c.Source.Type)
	}

	for name, mc := range c.Metrics {
		kind, err := metric.ParseKind(name)
		if err != nil {
			return fmt.Errorf("metrics.%s: %w", name, err)
		}
		if _, err := mc.resolve(kind); err != nil {
			return fmt.Errorf("metrics.%s: %w", name, err)
		}
		if mc.Target < 0 {
			return fmt.Errorf("metrics.%s.target cannot be negative", name)
		}
	}

	if c.Alerting.Retention < 0 {
		return fmt.Errorf("alerting.retention cannot be negative")
	}

	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// Location resolves app.time_zone.
func (c *Config) Location() (*time.Location, error) {
	switch c.App.TimeZone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.App.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("app.time_zone: %w", err)
	}
	return loc, nil
}

// Preference is a validated per-kind setting.
type Preference struct {
	Kind      metric.Kind
	Unit      metric.Unit
	Target    float64
	Direction metric.Direction
}

func (mc MetricConfig) resolve(kind metric.Kind) (Preference, error) {
	policy := metric.MustLookup(kind)
	pref := Preference{Kind: kind, Unit: policy.Base, Target: mc.Target, Direction: policy.Direction}

	if mc.Unit != "" {
		unit, err := metric.ParseUnit(mc.Unit)
		if err != nil {
			return Preference{}, err
		}
		if !policy.Supports(unit) {
			return Preference{}, &metric.UnsupportedUnitError{Kind: kind, Unit: unit}
		}
		pref.Unit = unit
	}
	if mc.Direction != "" {
		dir, err := metric.ParseDirection(mc.Direction)
		if err != nil {
			return Preference{}, err
		}
		pref.Direction = dir
	}
	return pref, nil
}

// Preferences returns the enabled metric preferences ordered by kind.
func (c *Config) Preferences() []Preference {
	out := make([]Preference, 0, len(c.Metrics))
	for name, mc := range c.Metrics {
		if !mc.Enabled {
			continue
		}
		kind, err := metric.ParseKind(name)
		if err != nil {
			continue
		}
		pref, err := mc.resolve(kind)
		if err != nil {
			continue
		}
		out = append(out, pref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Preference returns the configured preference for kind, enabled or not.
func (c *Config) Preference(kind metric.Kind) (Preference, error) {
	mc, ok := c.Metrics[string(kind)]
	if !ok {
		return MetricConfig{}.resolve(kind)
	}
	return mc.resolve(kind)
}
