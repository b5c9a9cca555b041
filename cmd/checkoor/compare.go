package main

import (
	"fmt"

	"github.com/ethpandaops/checkoor/pkg/drift"
	"github.com/spf13/cobra"
)

var (
	compareReference string
	compareLatest    string
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare the clocks of two drive info snapshots",
	Long: `Compare the host and device timestamps of a reference and a latest drive
info snapshot and report how far the device clock drifted from the host.`,
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)
	compareCmd.Flags().StringVar(&compareReference, "reference", "", "Reference info snapshot")
	compareCmd.Flags().StringVar(&compareLatest, "latest", "", "Latest info snapshot")

	_ = compareCmd.MarkFlagRequired("reference")
	_ = compareCmd.MarkFlagRequired("latest")
}

func runCompare(cmd *cobra.Command, args []string) error {
	if _, err := drift.NewComparator(log).CompareFiles(compareReference, compareLatest); err != nil {
		return fmt.Errorf("comparing snapshots: %w", err)
	}

	return nil
}
