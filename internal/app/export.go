package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"healthtrend/internal/metric"
	"healthtrend/internal/pipeline"
	"healthtrend/internal/render"
)

// Export renders one metric snapshot as PNG charts, CSV and/or JSON.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.PNGPath == "" && opts.PeriodsPNGPath == "" && opts.MonthlyPNGPath == "" && opts.CSVPath == "" && opts.JSONPath == "" {
		return errors.New("at least one of --png, --periods-png, --monthly-png, --csv or --json must be provided")
	}

	kind, err := metric.ParseKind(opts.Kind)
	if err != nil {
		return err
	}

	snaps, err := a.snapshots(ctx, []metric.Kind{kind}, opts.AsOf)
	if err != nil {
		return err
	}
	snap := snaps[0]
	size := render.Size{Width: a.Config.Export.Width, Height: a.Config.Export.Height}

	writers := []struct {
		path  string
		write func(io.Writer, *pipeline.Snapshot) error
	}{
		{opts.PNGPath, func(w io.Writer, s *pipeline.Snapshot) error { return render.WriteDailyPNG(w, s, size) }},
		{opts.PeriodsPNGPath, func(w io.Writer, s *pipeline.Snapshot) error { return render.WritePeriodsPNG(w, s, size) }},
		{opts.MonthlyPNGPath, func(w io.Writer, s *pipeline.Snapshot) error { return render.WriteMonthlyPNG(w, s, size) }},
		{opts.CSVPath, render.WriteCSV},
		{opts.JSONPath, writeJSON},
	}
	for _, out := range writers {
		if out.path == "" {
			continue
		}
		if err := writeFile(out.path, snap, out.write); err != nil {
			return err
		}
		a.Logger.Info().Str("kind", string(kind)).Str("path", out.path).Msg("snapshot exported")
	}
	return nil
}

func writeFile(path string, snap *pipeline.Snapshot, write func(io.Writer, *pipeline.Snapshot) error) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(file, snap); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func writeJSON(w io.Writer, snap *pipeline.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
