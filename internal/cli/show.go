package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"healthtrend/internal/app"
)

var (
	showKinds  []string
	showAsOf   string
	showNoPlot bool
	showWidth  int
	showHeight int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print current snapshots for the enabled metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showWidth < 0 || showHeight < 0 {
			return fmt.Errorf("--width and --height cannot be negative")
		}

		opts := app.ShowOptions{
			Kinds:  showKinds,
			AsOf:   showAsOf,
			NoPlot: showNoPlot,
			Width:  showWidth,
			Height: showHeight,
		}

		return getApp().Show(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

func init() {
	showCmd.Flags().StringSliceVar(&showKinds, "kind", nil, "Metric kinds to show (defaults to every enabled metric)")
	showCmd.Flags().StringVar(&showAsOf, "as-of", "", "Day treated as today (YYYY-MM-DD, defaults to the current local day)")
	showCmd.Flags().BoolVar(&showNoPlot, "no-plot", false, "Omit the 90-day plot")
	showCmd.Flags().IntVar(&showWidth, "width", 60, "Plot width in columns")
	showCmd.Flags().IntVar(&showHeight, "height", 10, "Plot height in rows")
}
