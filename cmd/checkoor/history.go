package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ethpandaops/checkoor/pkg/config"
	"github.com/ethpandaops/checkoor/pkg/results"
	"github.com/ethpandaops/checkoor/pkg/store"
	"github.com/ethpandaops/checkoor/pkg/upload"
	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historyRemote bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded checkout runs",
	Long: `List the checkout runs recorded in the history database, or with --remote
the runs uploaded to S3-compatible storage.`,
	RunE: runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run>",
	Short: "Show the tests and steps of one run",
	Long: `Show one run. The argument is the run ID for the history database and the
run directory name with --remote.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistoryShow,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)

	historyCmd.PersistentFlags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to list")
	historyCmd.PersistentFlags().BoolVar(&historyRemote, "remote", false, "Read uploaded runs from S3")
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if historyRemote {
		s3cfg, err := loadS3Config()
		if err != nil {
			return err
		}

		runs, err := upload.NewRemote(log, s3cfg).ListRuns(ctx)
		if err != nil {
			return fmt.Errorf("listing uploaded runs: %w", err)
		}

		if historyLimit > 0 && len(runs) > historyLimit {
			runs = runs[len(runs)-historyLimit:]
		}

		for _, name := range runs {
			fmt.Println(name)
		}

		return nil
	}

	return withStore(ctx, func(st store.Store) error {
		runs, err := st.ListRuns(ctx, historyLimit)
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RUN ID\tSTARTED\tHOST\tNVME\tFAILED\tDIR")

		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
				r.RunID, r.StartedAt.Format(time.DateTime), r.Hostname, r.NVMe, r.Failed, r.ResultsDir)
		}

		return w.Flush()
	})
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if historyRemote {
		s3cfg, err := loadS3Config()
		if err != nil {
			return err
		}

		run, err := upload.NewRemote(log, s3cfg).FetchRun(ctx, args[0])
		if err != nil {
			return fmt.Errorf("fetching uploaded run: %w", err)
		}

		return printRunResult(run)
	}

	return withStore(ctx, func(st store.Store) error {
		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return fmt.Errorf("getting run: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Run %s on %s, nvme %d, %d failed\n", run.RunID, run.Hostname, run.NVMe, run.Failed)

		for _, t := range run.Tests {
			fmt.Fprintf(w, "Test%d\t%s\t%s\terrors=%d\t%dms\n",
				t.Number, t.Name, passFail(t.Passed), t.Errors, t.DurationMS)

			for _, s := range t.Steps {
				fmt.Fprintf(w, "  Step%d\t%s\tcode=%d\t\t%dms\n", s.Seq, s.Name, s.Code, s.DurationMS)
			}
		}

		return w.Flush()
	})
}

func printRunResult(run *results.RunResult) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Run %s, %d failed\n", run.ID, run.Failed)

	for _, t := range run.Tests {
		fmt.Fprintf(w, "Test%d\t%s\t%s\terrors=%d\t%dms\n",
			t.Number, t.Name, passFail(t.Passed), t.Errors, t.DurationMS)

		for _, s := range t.Steps {
			fmt.Fprintf(w, "  Step%d\t%s\tcode=%d\t\t%dms\n", s.Seq, s.Name, s.Code, s.DurationMS)
		}
	}

	return w.Flush()
}

func passFail(passed bool) string {
	if passed {
		return "PASS"
	}

	return "FAIL"
}

func withStore(ctx context.Context, fn func(store.Store) error) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st := store.NewStore(log, &cfg.Store)
	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	defer func() {
		if err := st.Stop(); err != nil {
			log.WithError(err).Warn("Failed to close store")
		}
	}()

	return fn(st)
}
