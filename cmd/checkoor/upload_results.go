package main

import (
	"fmt"

	"github.com/ethpandaops/checkoor/pkg/config"
	"github.com/ethpandaops/checkoor/pkg/upload"
	"github.com/spf13/cobra"
)

var (
	uploadMethod    string
	uploadResultDir string
)

var uploadResultsCmd = &cobra.Command{
	Use:   "upload-results",
	Short: "Upload checkout results to remote storage",
	Long:  `Upload a local run directory to S3-compatible storage using the config file settings.`,
	RunE:  runUploadResults,
}

func init() {
	rootCmd.AddCommand(uploadResultsCmd)
	uploadResultsCmd.Flags().StringVar(&uploadMethod, "method", "s3",
		"Upload method (currently only \"s3\")")
	uploadResultsCmd.Flags().StringVar(&uploadResultDir, "result-dir", "",
		"Path to the run directory to upload")

	_ = uploadResultsCmd.MarkFlagRequired("result-dir")
}

func runUploadResults(cmd *cobra.Command, args []string) error {
	if uploadMethod != "s3" {
		return fmt.Errorf("unsupported method %q (only \"s3\" is supported)", uploadMethod)
	}

	s3cfg, err := loadS3Config()
	if err != nil {
		return err
	}

	uploader, err := upload.NewS3Uploader(log, s3cfg)
	if err != nil {
		return fmt.Errorf("creating S3 uploader: %w", err)
	}

	ctx := cmd.Context()

	log.WithField("dir", uploadResultDir).Info("Uploading results")

	if err := uploader.Upload(ctx, uploadResultDir); err != nil {
		return fmt.Errorf("uploading results: %w", err)
	}

	log.Info("Upload completed successfully")

	return nil
}

func loadS3Config() (*config.S3UploadConfig, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("config file is required (use --config)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if cfg.Upload.S3 == nil || !cfg.Upload.S3.Enabled {
		return nil, fmt.Errorf("S3 upload is not configured or not enabled in config")
	}

	return cfg.Upload.S3, nil
}
