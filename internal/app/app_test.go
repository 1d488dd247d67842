package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthtrend/internal/config"
	"healthtrend/internal/metric"
	"healthtrend/internal/series"
	"healthtrend/internal/storage"
)

const samplesCSV = `day,kind,value,unit
2024-05-13,weight,80,
2024-05-14,weight,80,
2024-05-15,weight,80,
2024-05-16,weight,80,
2024-05-17,weight,80,
2024-05-18,weight,80,
2024-05-19,weight,80,
2024-05-19,steps,12000,
2024-05-20,steps,3000,
`

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "samples.csv")
	require.NoError(t, os.WriteFile(path, []byte(samplesCSV), 0o600))

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.App.TimeZone = "UTC"
	cfg.Source.Type = config.SourceCSV
	cfg.Source.CSV.Path = path
	cfg.Export.Width = 640
	cfg.Export.Height = 360
	cfg.Metrics["weight"] = config.MetricConfig{Enabled: true, Unit: "lb", Target: 75}
	return NewApp(cfg, "", zerolog.Nop())
}

func TestShow(t *testing.T) {
	a := newTestApp(t)

	var out bytes.Buffer
	require.NoError(t, a.Show(context.Background(), &out, ShowOptions{AsOf: "2024-05-20", NoPlot: true}))

	text := out.String()
	assert.Contains(t, text, "steps")
	assert.Contains(t, text, "3000.0 steps")
	assert.Contains(t, text, "weight")
	assert.Contains(t, text, "176.4 lbs (2024-05-19)")
	assert.Contains(t, text, "+11.0 lbs")
}

func TestShowUnknownKind(t *testing.T) {
	a := newTestApp(t)
	err := a.Show(context.Background(), &bytes.Buffer{}, ShowOptions{Kinds: []string{"mood"}})
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	a := newTestApp(t)
	dir := t.TempDir()
	opts := ExportOptions{
		Kind:           "weight",
		AsOf:           "2024-05-20",
		PNGPath:        filepath.Join(dir, "out", "daily.png"),
		PeriodsPNGPath: filepath.Join(dir, "out", "periods.png"),
		MonthlyPNGPath: filepath.Join(dir, "out", "monthly.png"),
		CSVPath:        filepath.Join(dir, "out", "weight.csv"),
		JSONPath:       filepath.Join(dir, "out", "weight.json"),
	}
	require.NoError(t, a.Export(context.Background(), opts))

	for _, p := range []string{opts.PNGPath, opts.PeriodsPNGPath, opts.MonthlyPNGPath} {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")), p)
	}

	csvData, err := os.ReadFile(opts.CSVPath)
	require.NoError(t, err)
	assert.Contains(t, string(csvData), "period,7T,176,lbs")

	var snap struct {
		Kind string `json:"kind"`
		Unit string `json:"unit"`
	}
	jsonData, err := os.ReadFile(opts.JSONPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(jsonData, &snap))
	assert.Equal(t, "weight", snap.Kind)
	assert.Equal(t, "lb", snap.Unit)
}

func TestExportRequiresOutput(t *testing.T) {
	a := newTestApp(t)
	assert.Error(t, a.Export(context.Background(), ExportOptions{Kind: "weight"}))
}

func TestImport(t *testing.T) {
	a := newTestApp(t)

	result, err := a.Import(context.Background(), ImportOptions{Path: a.Config.Source.CSV.Path, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, map[metric.Kind]int{metric.KindWeight: 7, metric.KindSteps: 2}, result.Rows)
	assert.Nil(t, result.Stored)

	_, err = a.Import(context.Background(), ImportOptions{Path: a.Config.Source.CSV.Path})
	require.Error(t, err, "no database configured")
	assert.True(t, strings.Contains(err.Error(), "database.dsn"))
}

type memorySampleStore struct {
	rows map[metric.Kind]map[series.Day]storage.DailySample
}

func (m *memorySampleStore) UpsertSamples(_ context.Context, samples []storage.DailySample) error {
	if m.rows == nil {
		m.rows = make(map[metric.Kind]map[series.Day]storage.DailySample)
	}
	for _, s := range samples {
		if m.rows[s.Kind] == nil {
			m.rows[s.Kind] = make(map[series.Day]storage.DailySample)
		}
		m.rows[s.Kind][s.Day] = s
	}
	return nil
}

func (m *memorySampleStore) ListSamplesBetween(_ context.Context, kind metric.Kind, from, to series.Day) ([]storage.DailySample, error) {
	var out []storage.DailySample
	for day, s := range m.rows[kind] {
		if !day.Before(from) && !day.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memorySampleStore) CountSamples(_ context.Context, kind metric.Kind) (int64, error) {
	return int64(len(m.rows[kind])), nil
}

func TestImportIntoReportsStoredTotals(t *testing.T) {
	a := newTestApp(t)
	day, err := series.ParseDay("2024-05-19")
	require.NoError(t, err)

	store := &memorySampleStore{}
	require.NoError(t, store.UpsertSamples(context.Background(), []storage.DailySample{{Kind: metric.KindSteps, Day: day.AddDays(-30)}}))

	stored, err := a.importInto(context.Background(), store, "test.csv", map[metric.Kind][]series.Sample{
		metric.KindSteps:  {{Day: day, Value: 9000}, {Day: day.AddDays(-1), Value: 8000}},
		metric.KindWeight: {{Day: day, Value: 80}},
	})
	require.NoError(t, err)
	assert.Equal(t, map[metric.Kind]int64{metric.KindSteps: 3, metric.KindWeight: 1}, stored)
	assert.Equal(t, "test.csv", store.rows[metric.KindWeight][day].Source)
}

func TestSimulateAlert(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	a := newTestApp(t)
	_, err := a.SimulateAlert(context.Background(), SimulateOptions{Kind: "weight", Current: 180, Target: 165})
	require.Error(t, err, "alerting disabled")

	a.Config.Alerting.Enabled = true
	a.Config.Alerting.Telegram = config.TelegramConfig{Enabled: true, BotToken: "token", ChatID: "chat", APIBase: srv.URL}

	sent, err := a.SimulateAlert(context.Background(), SimulateOptions{Kind: "weight", Current: 180, Target: 165})
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, int32(1), calls.Load())

	sent, err = a.SimulateAlert(context.Background(), SimulateOptions{Kind: "weight", Current: 160, Target: 165})
	require.NoError(t, err)
	assert.False(t, sent, "below target is favorable for weight")
	assert.Equal(t, int32(1), calls.Load())
}
