package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment override, e.g.
	// CHECKOOR_CHECKOUT_NVME=1.
	EnvPrefix = "CHECKOOR"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultResultsDir is the default directory for run results.
	DefaultResultsDir = "./checkout"

	// DefaultReader is the default reader tool executable.
	DefaultReader = "nvmecmd"

	// DefaultLoadTool is the default load generator executable.
	DefaultLoadTool = "fio"

	// DefaultLoadSize is the default size of the load target file.
	DefaultLoadSize = "16g"

	// DefaultDatabaseDriver is the default history store driver.
	DefaultDatabaseDriver = "sqlite"
)

// AllTests lists every checkout test number.
var AllTests = []int{1, 2, 3, 4, 5, 6, 7, 8, 9}

// DefaultIdleIntervalsMS are the idle intervals of the sweep tests.
var DefaultIdleIntervalsMS = []int{0, 20, 50, 70, 90, 150, 200, 500, 700, 900, 1000, 1200, 1500}

// Config is the root configuration for checkoor.
type Config struct {
	Global   GlobalConfig   `yaml:"global" mapstructure:"global"`
	Tools    ToolsConfig    `yaml:"tools" mapstructure:"tools"`
	Checkout CheckoutConfig `yaml:"checkout" mapstructure:"checkout"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Upload   UploadConfig   `yaml:"upload" mapstructure:"upload"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel   string `yaml:"log_level" mapstructure:"log_level"`
	ResultsDir string `yaml:"results_dir" mapstructure:"results_dir"`
	// ResultsOwner is an optional "UID:GID" applied to written results.
	ResultsOwner string `yaml:"results_owner,omitempty" mapstructure:"results_owner"`
}

// ToolsConfig locates the external tools.
type ToolsConfig struct {
	Reader string `yaml:"reader" mapstructure:"reader"`
	// Resources is the directory holding the reader's cmd and rules files.
	Resources string `yaml:"resources" mapstructure:"resources"`
	Load      string `yaml:"load" mapstructure:"load"`
	IOEngine  string `yaml:"io_engine" mapstructure:"io_engine"`
}

// CheckoutConfig contains the checkout suite settings.
type CheckoutConfig struct {
	NVMe     int    `yaml:"nvme" mapstructure:"nvme"`
	Volume   string `yaml:"volume" mapstructure:"volume"`
	NewDrive bool   `yaml:"new_drive" mapstructure:"new_drive"`
	Tests    []int  `yaml:"tests" mapstructure:"tests"`

	IdleIntervalsMS []int `yaml:"idle_intervals_ms" mapstructure:"idle_intervals_ms"`

	// MonitorGrace is how long the collector must survive before load
	// starts. It doubles as the baseline period.
	MonitorGrace time.Duration `yaml:"monitor_grace" mapstructure:"monitor_grace"`
	StopTimeout  time.Duration `yaml:"stop_timeout" mapstructure:"stop_timeout"`

	LoadSize     string        `yaml:"load_size" mapstructure:"load_size"`
	LoadRuntime  time.Duration `yaml:"load_runtime" mapstructure:"load_runtime"`
	LoadEndDelay time.Duration `yaml:"load_end_delay" mapstructure:"load_end_delay"`
	// LoadTimeoutMargin is added to LoadRuntime to bound a load step.
	LoadTimeoutMargin time.Duration `yaml:"load_timeout_margin" mapstructure:"load_timeout_margin"`
	SetupTimeout      time.Duration `yaml:"setup_timeout" mapstructure:"setup_timeout"`
	SweepRuntime      time.Duration `yaml:"sweep_runtime" mapstructure:"sweep_runtime"`
	SweepTimeout      time.Duration `yaml:"sweep_timeout" mapstructure:"sweep_timeout"`
	// ReaderTimeout bounds each reader invocation. Zero waits forever.
	ReaderTimeout time.Duration `yaml:"reader_timeout" mapstructure:"reader_timeout"`
	// SelfTestPause is slept between the short and extended self-test.
	SelfTestPause time.Duration `yaml:"self_test_pause" mapstructure:"self_test_pause"`
	// SelfTestTimeout bounds the short self-test of the selftest workflow.
	SelfTestTimeout time.Duration `yaml:"self_test_timeout" mapstructure:"self_test_timeout"`
}

// HasTest reports whether test n is selected.
func (c *CheckoutConfig) HasTest(n int) bool {
	for _, t := range c.Tests {
		if t == n {
			return true
		}
	}

	return false
}

// LoadSizeBytes parses LoadSize with binary multiples, so "16g" is 16 GiB.
func (c *CheckoutConfig) LoadSizeBytes() (int64, error) {
	return units.RAMInBytes(c.LoadSize)
}

// StoreConfig contains the result history database settings.
type StoreConfig struct {
	Enabled  bool           `yaml:"enabled" mapstructure:"enabled"`
	Driver   string         `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteConfig contains SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// UploadConfig contains result upload settings.
type UploadConfig struct {
	S3 *S3UploadConfig `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3UploadConfig contains S3-compatible storage settings.
type S3UploadConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
	ACL             string `yaml:"acl,omitempty" mapstructure:"acl"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	Concurrency     int    `yaml:"concurrency,omitempty" mapstructure:"concurrency"`
}

// Load reads the configuration file at path (optional) and applies
// CHECKOOR_* environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default so that env-only values are unmarshalled.
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", DefaultLogLevel)
	v.SetDefault("global.results_dir", DefaultResultsDir)
	v.SetDefault("global.results_owner", "")

	v.SetDefault("tools.reader", DefaultReader)
	v.SetDefault("tools.resources", "")
	v.SetDefault("tools.load", DefaultLoadTool)
	v.SetDefault("tools.io_engine", defaultIOEngine())

	v.SetDefault("checkout.nvme", 0)
	v.SetDefault("checkout.volume", defaultVolume())
	v.SetDefault("checkout.new_drive", false)
	v.SetDefault("checkout.tests", AllTests)
	v.SetDefault("checkout.idle_intervals_ms", DefaultIdleIntervalsMS)
	v.SetDefault("checkout.monitor_grace", 420*time.Second)
	v.SetDefault("checkout.stop_timeout", 10*time.Second)
	v.SetDefault("checkout.load_size", DefaultLoadSize)
	v.SetDefault("checkout.load_runtime", 720*time.Second)
	v.SetDefault("checkout.load_end_delay", 420*time.Second)
	v.SetDefault("checkout.load_timeout_margin", 300*time.Second)
	v.SetDefault("checkout.setup_timeout", 300*time.Second)
	v.SetDefault("checkout.sweep_runtime", 180*time.Second)
	v.SetDefault("checkout.sweep_timeout", 240*time.Second)
	v.SetDefault("checkout.reader_timeout", time.Duration(0))
	v.SetDefault("checkout.self_test_pause", defaultSelfTestPause())
	v.SetDefault("checkout.self_test_timeout", 120*time.Second)

	v.SetDefault("store.enabled", false)
	v.SetDefault("store.driver", DefaultDatabaseDriver)
	v.SetDefault("store.sqlite.path", "")
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.user", "")
	v.SetDefault("store.postgres.password", "")
	v.SetDefault("store.postgres.database", "checkoor")
	v.SetDefault("store.postgres.ssl_mode", "disable")
}

// applyDefaults sets values that depend on other settings.
func (c *Config) applyDefaults() {
	if c.Store.SQLite.Path == "" {
		c.Store.SQLite.Path = filepath.Join(c.Global.ResultsDir, "history.db")
	}

	if c.Upload.S3 != nil {
		if c.Upload.S3.Prefix == "" {
			c.Upload.S3.Prefix = "results/runs"
		}

		if c.Upload.S3.Concurrency <= 0 {
			c.Upload.S3.Concurrency = 4
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Global.LogLevel); err != nil {
		return fmt.Errorf("global.log_level: %w", err)
	}

	if c.Tools.Reader == "" {
		return errors.New("tools.reader is required")
	}

	if c.Checkout.NVMe < 0 {
		return fmt.Errorf("checkout.nvme: invalid drive number %d", c.Checkout.NVMe)
	}

	if len(c.Checkout.Tests) == 0 {
		return errors.New("checkout.tests: at least one test must be selected")
	}

	for _, n := range c.Checkout.Tests {
		if n < 1 || n > len(AllTests) {
			return fmt.Errorf("checkout.tests: unknown test %d", n)
		}
	}

	for _, ms := range c.Checkout.IdleIntervalsMS {
		if ms < 0 {
			return fmt.Errorf("checkout.idle_intervals_ms: negative interval %d", ms)
		}
	}

	if c.Checkout.SelfTestTimeout <= 0 {
		return errors.New("checkout.self_test_timeout must be positive")
	}

	if c.usesLoad() {
		if c.Tools.Load == "" {
			return errors.New("tools.load is required for tests 6, 7 and 8")
		}

		if _, err := c.Checkout.LoadSizeBytes(); err != nil {
			return fmt.Errorf("checkout.load_size: %w", err)
		}

		if c.Checkout.LoadRuntime <= 0 {
			return errors.New("checkout.load_runtime must be positive")
		}
	}

	if c.Store.Enabled {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("store.driver: unsupported driver %q", c.Store.Driver)
		}
	}

	if s3 := c.Upload.S3; s3 != nil && s3.Enabled && s3.Bucket == "" {
		return errors.New("upload.s3.bucket is required when upload is enabled")
	}

	if c.Global.ResultsDir != "" {
		dir := filepath.Dir(c.Global.ResultsDir)
		if dir != "." && dir != ".." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("results directory parent %q does not exist", dir)
			}
		}
	}

	return nil
}

func (c *Config) usesLoad() bool {
	return c.Checkout.HasTest(6) || c.Checkout.HasTest(7) || c.Checkout.HasTest(8)
}

func defaultIOEngine() string {
	if runtime.GOOS == "windows" {
		return "windowsaio"
	}

	return "libaio"
}

// defaultSelfTestPause works around Windows refusing an extended self-test
// right after a short one.
func defaultSelfTestPause() time.Duration {
	if runtime.GOOS == "windows" {
		return 10 * time.Minute
	}

	return 0
}

func defaultVolume() string {
	if runtime.GOOS == "windows" {
		return "c:"
	}

	return "/"
}
