package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"healthtrend/internal/feed"
	"healthtrend/internal/metric"
	"healthtrend/internal/series"
	"healthtrend/internal/storage"
)

// ImportResult reports the rows read per kind and, unless the import was a
// dry run, the rows stored per kind afterwards.
type ImportResult struct {
	Rows   map[metric.Kind]int
	Stored map[metric.Kind]int64
}

// Import loads a day,kind,value[,unit] CSV into the daily_samples table.
func (a *App) Import(ctx context.Context, opts ImportOptions) (ImportResult, error) {
	if opts.Path == "" {
		return ImportResult{}, errors.New("--file is required")
	}

	f, err := os.Open(opts.Path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	records, err := feed.ReadCSV(f)
	if err != nil {
		return ImportResult{}, fmt.Errorf("read %s: %w", opts.Path, err)
	}

	grouped := make(map[metric.Kind][]series.Sample)
	for _, rec := range records {
		grouped[rec.Kind] = append(grouped[rec.Kind], rec.Sample)
	}
	result := ImportResult{Rows: make(map[metric.Kind]int, len(grouped))}
	for kind, samples := range grouped {
		result.Rows[kind] = len(samples)
	}

	if opts.DryRun {
		a.Logger.Warn().Int("rows", len(records)).Msg("import dry-run: nothing written")
		return result, nil
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return ImportResult{}, err
	}
	if store == nil {
		return ImportResult{}, errors.New("database.dsn not configured; cannot import")
	}
	defer closeStore()

	source := opts.Source
	if source == "" {
		source = filepath.Base(opts.Path)
	}
	result.Stored, err = a.importInto(ctx, store, source, grouped)
	if err != nil {
		return ImportResult{}, err
	}
	return result, nil
}

// importInto upserts grouped samples kind by kind and returns the stored row
// count per kind.
func (a *App) importInto(ctx context.Context, store storage.SampleStore, source string, grouped map[metric.Kind][]series.Sample) (map[metric.Kind]int64, error) {
	kinds := make([]metric.Kind, 0, len(grouped))
	for kind := range grouped {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	stored := make(map[metric.Kind]int64, len(kinds))
	for _, kind := range kinds {
		rows := storage.FromSeries(kind, source, grouped[kind])
		if err := store.UpsertSamples(ctx, rows); err != nil {
			return nil, err
		}
		total, err := store.CountSamples(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("count %s samples: %w", kind, err)
		}
		stored[kind] = total
		a.Logger.Info().Str("kind", string(kind)).Int("rows", len(rows)).Int64("stored", total).Msg("samples imported")
	}
	return stored, nil
}
