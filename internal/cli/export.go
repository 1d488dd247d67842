package cli

import (
	"github.com/spf13/cobra"

	"healthtrend/internal/app"
)

var (
	exportKind       string
	exportAsOf       string
	exportPNGPath    string
	exportPeriodsPNG string
	exportMonthlyPNG string
	exportCSVPath    string
	exportJSONPath   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export one metric snapshot as PNG charts, CSV or JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Kind:           exportKind,
			AsOf:           exportAsOf,
			PNGPath:        exportPNGPath,
			PeriodsPNGPath: exportPeriodsPNG,
			MonthlyPNGPath: exportMonthlyPNG,
			CSVPath:        exportCSVPath,
			JSONPath:       exportJSONPath,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportKind, "kind", "weight", "Metric kind to export")
	exportCmd.Flags().StringVar(&exportAsOf, "as-of", "", "Day treated as today (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write the 90-day PNG chart")
	exportCmd.Flags().StringVar(&exportPeriodsPNG, "periods-png", "", "Path to write the period averages PNG")
	exportCmd.Flags().StringVar(&exportMonthlyPNG, "monthly-png", "", "Path to write the monthly averages PNG")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().StringVar(&exportJSONPath, "json", "", "Path to write the snapshot as JSON")
}
