package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethpandaops/checkoor/pkg/checkout"
	"github.com/ethpandaops/checkoor/pkg/config"
	"github.com/ethpandaops/checkoor/pkg/drift"
	"github.com/ethpandaops/checkoor/pkg/fsutil"
	"github.com/ethpandaops/checkoor/pkg/hostinfo"
	"github.com/ethpandaops/checkoor/pkg/monitor"
	"github.com/ethpandaops/checkoor/pkg/process"
	"github.com/ethpandaops/checkoor/pkg/results"
	"github.com/ethpandaops/checkoor/pkg/store"
	"github.com/ethpandaops/checkoor/pkg/telemetry"
	"github.com/ethpandaops/checkoor/pkg/upload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// LogFileName is the run log written next to the test directories.
const LogFileName = "checkout.log"

var (
	runTests    []int
	runNVMe     int
	runNewDrive bool
	runDir      string
	runNoUpload bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the checkout suite",
	Long: `Run the selected checkout tests against one NVMe drive. Every test and
step gets its own numbered directory under a timestamped run directory.
The exit status is the number of failed tests, or 2 on a fatal error.`,
	RunE: runCheckout,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntSliceVar(&runTests, "tests", nil,
		"Tests to run (comma-separated or repeated flag, overrides checkout.tests)")
	runCmd.Flags().IntVar(&runNVMe, "nvme", 0, "NVMe drive number (overrides checkout.nvme)")
	runCmd.Flags().BoolVar(&runNewDrive, "new", false,
		"Also verify the unused drive rules (overrides checkout.new_drive)")
	runCmd.Flags().StringVar(&runDir, "dir", "",
		"Run directory (default: <results_dir>/<timestamp>)")
	runCmd.Flags().BoolVar(&runNoUpload, "no-upload", false, "Skip the configured results upload")
}

func runCheckout(cmd *cobra.Command, args []string) error {
	start := time.Now()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("tests") {
		cfg.Checkout.Tests = runTests
	}

	if flags.Changed("nvme") {
		cfg.Checkout.NVMe = runNVMe
	}

	if flags.Changed("new") {
		cfg.Checkout.NewDrive = runNewDrive
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	if !flags.Changed("log-level") {
		level, _ := logrus.ParseLevel(cfg.Global.LogLevel)
		log.SetLevel(level)
	}

	dir, owner, logFile, err := openRunDir(cfg, runDir, start)
	if err != nil {
		return err
	}
	defer logFile.Close()
	defer log.SetOutput(os.Stdout)

	ctx, cancel := signalContext()
	defer cancel()

	var uploader upload.Uploader

	if s3 := cfg.Upload.S3; s3 != nil && s3.Enabled && !runNoUpload {
		uploader, err = upload.NewS3Uploader(log, s3)
		if err != nil {
			return fmt.Errorf("creating S3 uploader: %w", err)
		}

		if err := uploader.Preflight(ctx); err != nil {
			return fmt.Errorf("S3 preflight check: %w", err)
		}
	}

	info := hostinfo.Collect(ctx, log)
	if err := hostinfo.Write(dir, info, owner); err != nil {
		log.WithError(err).Warn("Failed to write system info")
	}

	recorder := results.NewRecorder(start)
	runner := process.NewRunner(log)
	reducer := telemetry.NewReducer(log, owner)

	suite := checkout.NewSuite(log, checkout.Config{
		Checkout: cfg.Checkout,
		Tools:    cfg.Tools,
		RunDir:   dir,
		Owner:    owner,
	}, checkout.Deps{
		Runner:     runner,
		Tree:       results.NewTree(log, results.TreeConfig{Owner: owner, Recorder: recorder}),
		Reducer:    reducer,
		Comparator: drift.NewComparator(log),
		NewMonitor: func() monitor.Monitor {
			return monitor.NewMonitor(log, runner, reducer, monitor.Config{
				StopTimeout: cfg.Checkout.StopTimeout,
			})
		},
	})

	failed, runErr := suite.Run(ctx)

	summary, err := recorder.Finish(dir, time.Now(), owner)
	if err != nil {
		log.WithError(err).Error("Failed to write run summary")
	}

	// Bookkeeping still runs after a signal.
	postCtx := context.WithoutCancel(ctx)

	if summary != nil && cfg.Store.Enabled {
		if err := saveRun(postCtx, cfg, summary, info, dir); err != nil {
			log.WithError(err).Error("Failed to store run history")
		}
	}

	if uploader != nil {
		log.WithField("dir", dir).Info("Uploading results")

		if err := uploader.Upload(postCtx, dir); err != nil {
			log.WithError(err).Error("Failed to upload results")
		}
	}

	log.WithFields(logrus.Fields{
		"run_dir":      dir,
		"failed_tests": failed,
		"duration":     time.Since(start).Round(time.Second),
	}).Info("Run complete")

	if runErr != nil {
		return runErr
	}

	exitCode = failed

	return nil
}

// openRunDir creates the run directory and tees the log into its run log.
// The caller closes the log file and restores the log output.
func openRunDir(
	cfg *config.Config,
	dir string,
	start time.Time,
) (string, *fsutil.OwnerConfig, io.Closer, error) {
	owner, err := fsutil.ParseOwner(cfg.Global.ResultsOwner)
	if err != nil {
		return "", nil, nil, fmt.Errorf("parsing results_owner: %w", err)
	}

	if dir == "" {
		dir = filepath.Join(cfg.Global.ResultsDir, start.Format("20060102_150405"))
	}

	if err := fsutil.EnsureDir(dir, owner); err != nil {
		return "", nil, nil, results.NewFatal(results.DirectoryCreateFailure,
			fmt.Errorf("creating run directory: %w", err))
	}

	logFile, err := fsutil.Create(filepath.Join(dir, LogFileName), owner)
	if err != nil {
		return "", nil, nil, fmt.Errorf("creating run log: %w", err)
	}

	log.SetOutput(io.MultiWriter(os.Stdout, logFile))

	return dir, owner, logFile, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			log.WithField("signal", sig).Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

func saveRun(
	ctx context.Context,
	cfg *config.Config,
	summary *results.RunResult,
	info *hostinfo.SystemInfo,
	dir string,
) error {
	st := store.NewStore(log, &cfg.Store)

	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	defer func() {
		if err := st.Stop(); err != nil {
			log.WithError(err).Warn("Failed to close store")
		}
	}()

	run, err := st.SaveRun(ctx, summary, store.RunMeta{
		Hostname:   info.Hostname,
		NVMe:       cfg.Checkout.NVMe,
		ResultsDir: dir,
	})
	if err != nil {
		return err
	}

	log.WithField("run_id", run.RunID).Debug("Stored run history")

	return nil
}
