package checkout

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ethpandaops/checkoor/pkg/config"
	"github.com/ethpandaops/checkoor/pkg/drift"
	"github.com/ethpandaops/checkoor/pkg/fsutil"
	"github.com/ethpandaops/checkoor/pkg/monitor"
	"github.com/ethpandaops/checkoor/pkg/results"
	"github.com/ethpandaops/checkoor/pkg/telemetry"
	"github.com/ethpandaops/checkoor/pkg/tools"
	"github.com/sirupsen/logrus"
)

// Test numbers and names.
const (
	TestVerifyInfo        = 1
	TestSelfTests         = 2
	TestReliability       = 3
	TestLogPage02Sweep    = 4
	TestLogPage03Sweep    = 5
	TestRandomReadSweep   = 6
	TestRandomMonitor     = 7
	TestSequentialMonitor = 8
	TestCompareTimes      = 9
)

var testNames = map[int]string{
	TestVerifyInfo:        "Nvme-Verify-Info",
	TestSelfTests:         "Nvme-Self-Tests",
	TestReliability:       "Command-Reliability",
	TestLogPage02Sweep:    "LogPage02-Sweep",
	TestLogPage03Sweep:    "LogPage03-Sweep",
	TestRandomReadSweep:   "Random-Read-Sweep",
	TestRandomMonitor:     "Random-Performance-Monitor",
	TestSequentialMonitor: "Sequential-Performance-Monitor",
	TestCompareTimes:      "Nvme-Compare-Times",
}

// Name returns the directory name of test n.
func Name(n int) string {
	return testNames[n]
}

// AdminTableFile is the admin command table written by reduction steps.
const AdminTableFile = "admin_commands.csv"

// CommandRunner runs one external tool invocation to completion.
type CommandRunner interface {
	Run(ctx context.Context, argv []string, dir string, timeout time.Duration) int
}

// Deps are the components the suite drives.
type Deps struct {
	Runner     CommandRunner
	Tree       results.Tree
	Reducer    telemetry.Reducer
	Comparator drift.Comparator
	// NewMonitor returns a fresh background monitor per performance test.
	NewMonitor func() monitor.Monitor
	// Sleep overrides the delay between load steps (optional).
	Sleep func(ctx context.Context, d time.Duration) error
}

// Config configures a Suite.
type Config struct {
	Checkout config.CheckoutConfig
	Tools    config.ToolsConfig
	// RunDir holds every test directory of the run.
	RunDir string
	Owner  *fsutil.OwnerConfig
}

// Suite runs the selected checkout tests in order.
type Suite interface {
	// Run executes the selected tests and returns the number of failed
	// tests. A returned error aborts the run: a *results.FatalError for
	// fatal harness conditions, otherwise a setup or cancellation error.
	Run(ctx context.Context) (int, error)
}

// NewSuite creates a new checkout suite.
func NewSuite(log logrus.FieldLogger, cfg Config, deps Deps) Suite {
	return newSuite(log, cfg, deps)
}

func newSuite(log logrus.FieldLogger, cfg Config, deps Deps) *suite {
	if deps.Sleep == nil {
		deps.Sleep = sleep
	}

	return &suite{
		log:    log.WithField("component", "checkout"),
		cfg:    cfg,
		deps:   deps,
		reader: tools.Reader{Path: cfg.Tools.Reader, Resources: cfg.Tools.Resources},
	}
}

type suite struct {
	log    logrus.FieldLogger
	cfg    Config
	deps   Deps
	reader tools.Reader

	// refInfo is the info snapshot of test 1, compared by test 9.
	refInfo string
	// target is the load tool target file once created.
	target string
	failed int
}

// Ensure interface compliance.
var _ Suite = (*suite)(nil)

// Run implements Suite.
func (s *suite) Run(ctx context.Context) (int, error) {
	defer s.removeTarget()

	cc := &s.cfg.Checkout

	s.log.WithFields(logrus.Fields{
		"nvme":    cc.NVMe,
		"tests":   cc.Tests,
		"run_dir": s.cfg.RunDir,
	}).Info("Starting checkout")

	gates := []struct {
		number int
		run    func(context.Context, *results.Test) error
		// abort stops the run when the test fails.
		abort bool
	}{
		{TestVerifyInfo, s.verifyInfo, true},
		{TestSelfTests, s.selfTests, true},
		{TestReliability, s.reliability, false},
		{TestLogPage02Sweep, s.logPageSweep(tools.LogPage02Cmd, "Get Log Page 2", "logpage2_sweep.csv"), false},
		{TestLogPage03Sweep, s.logPageSweep(tools.LogPage03Cmd, "Get Log Page 3", "logpage3_sweep.csv"), false},
		{TestRandomReadSweep, s.randomReadSweep, false},
		{TestRandomMonitor, s.performance(randomProfile), false},
		{TestSequentialMonitor, s.performance(sequentialProfile), false},
		{TestCompareTimes, s.compareTimes, false},
	}

	for _, g := range gates {
		if !s.selected(g.number) {
			continue
		}

		if err := ctx.Err(); err != nil {
			return s.failed, fmt.Errorf("checkout cancelled: %w", err)
		}

		if usesLoad(g.number) && s.target == "" {
			if err := s.setupTarget(ctx); err != nil {
				return s.failed, err
			}
		}

		test := s.deps.Tree.OpenTest(g.number, Name(g.number), s.cfg.RunDir)

		if err := g.run(ctx, test); err != nil {
			return s.failed, err
		}

		failed := s.deps.Tree.CloseTest(test)
		s.failed += failed

		if g.abort && failed != 0 {
			s.log.WithField("test", g.number).
				Error("Checkout aborted, verify the cmd and rules files before rerunning")

			return s.failed, nil
		}
	}

	s.log.WithField("failed_tests", s.failed).Info("Checkout finished")

	return s.failed, nil
}

// selected reports whether test n runs. The reference snapshot of test 1
// is also needed by test 9.
func (s *suite) selected(n int) bool {
	cc := &s.cfg.Checkout

	if n == TestVerifyInfo {
		return cc.HasTest(TestVerifyInfo) || cc.HasTest(TestCompareTimes)
	}

	return cc.HasTest(n)
}

func usesLoad(n int) bool {
	return n >= TestRandomReadSweep && n <= TestSequentialMonitor
}

// stepFunc runs the body of a step and returns its code. An error aborts
// the run.
type stepFunc func(st *results.Step) (int, error)

// step opens a step on t, runs fn and closes the step into t's errors.
func (s *suite) step(t *results.Test, name string, fn stepFunc) error {
	st, err := s.deps.Tree.OpenStep(name, t)
	if err != nil {
		return err
	}

	code, err := fn(st)
	if err != nil {
		return err
	}

	st.Code = code
	t.AddErrors(s.deps.Tree.CloseStep(st))

	return nil
}

// read runs the reader tool in dir and returns its exit code.
func (s *suite) read(ctx context.Context, args tools.ReaderArgs) int {
	args.NVMe = s.cfg.Checkout.NVMe

	return s.deps.Runner.Run(ctx, s.reader.Argv(args), args.Dir, s.cfg.Checkout.ReaderTimeout)
}

// subDir creates the per interval directory of a sweep.
func (s *suite) subDir(parent string, intervalMS int) (string, error) {
	dir := filepath.Join(parent, strconv.Itoa(intervalMS)+"mS")

	if err := fsutil.EnsureDir(dir, s.cfg.Owner); err != nil {
		return "", results.NewFatal(results.DirectoryCreateFailure, fmt.Errorf("creating sweep directory: %w", err))
	}

	return dir, nil
}

// failure logs err and converts it to a step code.
func (s *suite) failure(msg string, err error) int {
	s.log.WithError(err).Error(msg)

	return 1
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
