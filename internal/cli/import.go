package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"healthtrend/internal/app"
	"healthtrend/internal/metric"
)

var (
	importFile   string
	importSource string
	importDryRun bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import daily samples from a day,kind,value[,unit] CSV into PostgreSQL",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := getApp().Import(cmd.Context(), app.ImportOptions{
			Path:   importFile,
			Source: importSource,
			DryRun: importDryRun,
		})
		if err != nil {
			return err
		}

		kinds := make([]metric.Kind, 0, len(result.Rows))
		for kind := range result.Rows {
			kinds = append(kinds, kind)
		}
		sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
		out := cmd.OutOrStdout()
		for _, kind := range kinds {
			if stored, ok := result.Stored[kind]; ok {
				fmt.Fprintf(out, "%s\t%d\t%d stored\n", kind, result.Rows[kind], stored)
				continue
			}
			fmt.Fprintf(out, "%s\t%d\n", kind, result.Rows[kind])
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "CSV file to import")
	importCmd.Flags().StringVar(&importSource, "source", "", "Source label stored with each row (defaults to the file name)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Parse and count rows without writing")
}
