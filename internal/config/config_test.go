package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthtrend/internal/metric"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, SourcePostgres, cfg.Source.Type)
	assert.Equal(t, ":8080", cfg.HTTP.Listen)
	assert.Equal(t, 90*24*time.Hour, cfg.Alerting.Retention)

	prefs := cfg.Preferences()
	require.Len(t, prefs, 2)
	assert.Equal(t, metric.KindSteps, prefs[0].Kind)
	assert.Equal(t, metric.KindWeight, prefs[1].Kind)
	assert.Equal(t, metric.UnitKilogram, prefs[1].Unit)
	assert.Equal(t, metric.LowerIsBetter, prefs[1].Direction)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
app:
  time_zone: Europe/Berlin
metrics:
  weight:
    enabled: true
    unit: lb
    target: 75
  glucose:
    enabled: true
    unit: mmol/L
alerting:
  channels: telegram
`)
	t.Setenv("HEALTHTREND_METRICS_WEIGHT_TARGET", "72.5")

	cfg, err := Load(path)
	require.NoError(t, err)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())

	weight, err := cfg.Preference(metric.KindWeight)
	require.NoError(t, err)
	assert.Equal(t, metric.UnitPound, weight.Unit)
	assert.Equal(t, 72.5, weight.Target)

	glucose, err := cfg.Preference(metric.KindGlucose)
	require.NoError(t, err)
	assert.Equal(t, metric.UnitMmolPerL, glucose.Unit)
	assert.Equal(t, []string{"telegram"}, cfg.Alerting.Channels)

	kinds := make([]metric.Kind, 0)
	for _, p := range cfg.Preferences() {
		kinds = append(kinds, p.Kind)
	}
	assert.ElementsMatch(t, []metric.Kind{metric.KindGlucose, metric.KindSteps, metric.KindWeight}, kinds)
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"unsupported unit":   "metrics:\n  steps:\n    unit: kg\n",
		"unknown kind":       "metrics:\n  mood:\n    enabled: true\n",
		"negative target":    "metrics:\n  weight:\n    target: -1\n",
		"bad direction":      "metrics:\n  weight:\n    direction: sideways\n",
		"short lookback":     "scheduler:\n  lookback_days: 30\n",
		"http without url":   "source:\n  type: http\n",
		"unknown source":     "source:\n  type: ftp\n",
		"bad zone":           "app:\n  time_zone: Mars/Olympus\n",
		"telegram no chat":   "alerting:\n  telegram:\n    enabled: true\n    bot_token: x\n",
		"negative retention": "alerting:\n  retention: -1h\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, t.TempDir(), body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestWatchPushesValidChanges(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "metrics:\n  weight:\n    target: 75\n")

	var mu sync.Mutex
	var latest *Config
	cfg, err := Watch(path, zerolog.Nop(), func(c *Config) {
		mu.Lock()
		latest = c
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Equal(t, 75.0, cfg.Metrics["weight"].Target)

	require.NoError(t, os.WriteFile(path, []byte("metrics:\n  weight:\n    target: 70\n    unit: lb\n"), 0o600))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return latest != nil && latest.Metrics["weight"].Target == 70 && latest.Metrics["weight"].Unit == "lb"
	}, 5*time.Second, 20*time.Millisecond)
}
