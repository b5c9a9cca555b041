package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ethpandaops/checkoor/pkg/checkout"
	"github.com/ethpandaops/checkoor/pkg/config"
	"github.com/ethpandaops/checkoor/pkg/process"
	"github.com/ethpandaops/checkoor/pkg/results"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	selfTestNVMe int
	selfTestDir  string
)

var selfTestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Run a short self-test between two info reads",
	Long: `Read the drive info, run a short device self-test and read the info again,
comparing it with the first read. The exit status is the number of failed
steps, or 2 on a fatal error.`,
	RunE: runSelfTest,
}

func init() {
	rootCmd.AddCommand(selfTestCmd)
	selfTestCmd.Flags().IntVar(&selfTestNVMe, "nvme", 0, "NVMe drive number (overrides checkout.nvme)")
	selfTestCmd.Flags().StringVar(&selfTestDir, "dir", "",
		"Run directory (default: <results_dir>/<timestamp>)")
}

func runSelfTest(cmd *cobra.Command, args []string) error {
	start := time.Now()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("nvme") {
		cfg.Checkout.NVMe = selfTestNVMe
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	if !flags.Changed("log-level") {
		level, _ := logrus.ParseLevel(cfg.Global.LogLevel)
		log.SetLevel(level)
	}

	dir, owner, logFile, err := openRunDir(cfg, selfTestDir, start)
	if err != nil {
		return err
	}
	defer logFile.Close()
	defer log.SetOutput(os.Stdout)

	ctx, cancel := signalContext()
	defer cancel()

	recorder := results.NewRecorder(start)

	selfTest := checkout.NewSelfTest(log, checkout.Config{
		Checkout: cfg.Checkout,
		Tools:    cfg.Tools,
		RunDir:   dir,
		Owner:    owner,
	}, checkout.Deps{
		Runner: process.NewRunner(log),
		Tree:   results.NewTree(log, results.TreeConfig{Owner: owner, Recorder: recorder}),
	})

	errs, runErr := selfTest.Run(ctx)

	if _, err := recorder.Finish(dir, time.Now(), owner); err != nil {
		log.WithError(err).Error("Failed to write run summary")
	}

	log.WithFields(logrus.Fields{
		"run_dir":  dir,
		"errors":   errs,
		"duration": time.Since(start).Round(time.Second),
	}).Info("Self-test complete")

	if runErr != nil {
		return runErr
	}

	exitCode = errs

	return nil
}
