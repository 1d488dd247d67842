package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"healthtrend/internal/app"
)

var (
	simulateKind    string
	simulateCurrent float64
	simulateTarget  float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Push a synthetic value through the pipeline and the alert channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateCurrent <= 0 || simulateTarget <= 0 {
			return errors.New("--current and --target must be greater than 0")
		}

		sent, err := getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Kind:    simulateKind,
			Current: simulateCurrent,
			Target:  simulateTarget,
		})
		if err != nil {
			return err
		}
		if !sent {
			fmt.Fprintln(cmd.OutOrStdout(), "delta is not adverse; no alert sent")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "alert sent")
		return nil
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateKind, "kind", "weight", "Metric kind")
	simulateCmd.Flags().Float64Var(&simulateCurrent, "current", 0, "Today's value in the configured display unit")
	simulateCmd.Flags().Float64Var(&simulateTarget, "target", 0, "Target in the configured display unit")
}
