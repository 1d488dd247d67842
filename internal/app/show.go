package app

import (
	"context"
	"fmt"
	"io"

	"healthtrend/internal/render"
)

// Show refreshes the selected metrics once and prints their snapshots.
func (a *App) Show(ctx context.Context, w io.Writer, opts ShowOptions) error {
	kinds, err := parseKinds(opts.Kinds)
	if err != nil {
		return err
	}

	snaps, err := a.snapshots(ctx, kinds, opts.AsOf)
	if err != nil {
		return err
	}

	for i, snap := range snaps {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, render.Terminal(snap, render.TerminalOptions{
			PlotWidth:  opts.Width,
			PlotHeight: opts.Height,
			NoPlot:     opts.NoPlot,
		}))
	}
	return nil
}
