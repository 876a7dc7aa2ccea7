package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciliation pass over stale pending orders",
	Long: `Ask each provider for the current state of pending orders whose
webhook never arrived, and apply what it reports.

Examples:
  natrip-payments reconcile
  RECONCILE_STALE_AFTER=10m natrip-payments reconcile`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		sum, err := a.worker.RunOnce(cmd.Context())
		if err != nil {
			return fmt.Errorf("reconcile: %w", err)
		}
		fmt.Printf("checked=%d paid=%d failed=%d skipped=%d errors=%d\n",
			sum.Checked, sum.Paid, sum.Failed, sum.Skipped, sum.Errors)
		return nil
	},
}
