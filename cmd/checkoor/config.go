package main

import (
	"fmt"
	"os"

	"github.com/ethpandaops/checkoor/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "<redacted>"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults and CHECKOOR_* environment
overrides are applied. Credentials are redacted.`,
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Warn("Configuration is not valid")
	}

	redactSecrets(cfg)

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)

	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	return enc.Close()
}

func redactSecrets(cfg *config.Config) {
	if cfg.Store.Postgres.Password != "" {
		cfg.Store.Postgres.Password = redacted
	}

	if s3 := cfg.Upload.S3; s3 != nil {
		if s3.AccessKeyID != "" {
			s3.AccessKeyID = redacted
		}

		if s3.SecretAccessKey != "" {
			s3.SecretAccessKey = redacted
		}
	}
}
