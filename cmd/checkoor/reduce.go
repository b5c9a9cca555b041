package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethpandaops/checkoor/pkg/monitor"
	"github.com/ethpandaops/checkoor/pkg/telemetry"
	"github.com/spf13/cobra"
)

var (
	reduceJSON bool

	adminRecords string
	adminOut     string
	adminSkip    int
	adminVerbose bool
	adminPrefix  string

	monitorDir string
)

var reduceCmd = &cobra.Command{
	Use:   "reduce",
	Short: "Reduce captured telemetry files",
	Long: `Reduce telemetry captured by an earlier run. The reductions are the same
the checkout suite performs and are logged the same way.`,
}

var reduceAdminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Reduce an admin command record series",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := telemetry.NewReducer(log, nil).ReduceAdminCommands(adminRecords, adminOut, telemetry.AdminOptions{
			Skip:    adminSkip,
			Prefix:  adminPrefix,
			Verbose: adminVerbose,
		})
		if err != nil {
			return fmt.Errorf("reducing admin commands: %w", err)
		}

		return printReport(report)
	},
}

var reduceMonitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Reduce the sample series of a monitor directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := telemetry.NewReducer(log, nil).ReduceMonitor(
			filepath.Join(monitorDir, monitor.DefaultCaptureFile),
			filepath.Join(monitorDir, monitor.DefaultTableFile),
		)
		if err != nil {
			return fmt.Errorf("reducing monitor capture: %w", err)
		}

		return printReport(summary)
	},
}

var reduceLoadCmd = &cobra.Command{
	Use:   "load <result files...>",
	Short: "Sum load generator result files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		totals, err := telemetry.NewReducer(log, nil).ReduceLoadResults(args)
		if err != nil {
			return fmt.Errorf("reducing load results: %w", err)
		}

		return printReport(totals)
	},
}

func init() {
	rootCmd.AddCommand(reduceCmd)
	reduceCmd.AddCommand(reduceAdminCmd, reduceMonitorCmd, reduceLoadCmd)

	reduceCmd.PersistentFlags().BoolVar(&reduceJSON, "json", false, "Also print the reduction as JSON")

	reduceAdminCmd.Flags().StringVar(&adminRecords, "records", "", "Capture file holding the admin command records")
	reduceAdminCmd.Flags().StringVar(&adminOut, "out", "admin_commands.csv", "Table file to write")
	reduceAdminCmd.Flags().IntVar(&adminSkip, "skip", 0, "Records to discard from the start of the series")
	reduceAdminCmd.Flags().BoolVar(&adminVerbose, "verbose", false, "Add sample timing statistics")
	reduceAdminCmd.Flags().StringVar(&adminPrefix, "prefix", "", "Label attached to every reported line")
	_ = reduceAdminCmd.MarkFlagRequired("records")

	reduceMonitorCmd.Flags().StringVar(&monitorDir, "dir", "", "Monitor directory")
	_ = reduceMonitorCmd.MarkFlagRequired("dir")
}

func printReport(v any) error {
	if !reduceJSON {
		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
