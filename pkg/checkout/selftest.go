package checkout

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ethpandaops/checkoor/pkg/results"
	"github.com/ethpandaops/checkoor/pkg/tools"
	"github.com/sirupsen/logrus"
)

// SelfTestName is the test directory name of the self-test workflow.
const SelfTestName = "Short-Self-Test"

// NewSelfTest creates the standalone self-test workflow. It reads the drive
// info, runs a short self-test and reads the info again, comparing it with
// the first read. Run returns the number of failed steps rather than a
// failed test count.
func NewSelfTest(log logrus.FieldLogger, cfg Config, deps Deps) Suite {
	s := newSuite(log, cfg, deps)
	s.log = log.WithField("component", "selftest")

	return &selfTest{suite: s}
}

type selfTest struct {
	*suite
}

// Ensure interface compliance.
var _ Suite = (*selfTest)(nil)

// Run implements Suite.
func (s *selfTest) Run(ctx context.Context) (int, error) {
	cc := &s.cfg.Checkout

	s.log.WithFields(logrus.Fields{
		"nvme":    cc.NVMe,
		"timeout": cc.SelfTestTimeout,
		"run_dir": s.cfg.RunDir,
	}).Info("Starting self-test")

	test := s.deps.Tree.OpenTest(1, SelfTestName, s.cfg.RunDir)

	var before string

	err := s.step(test, "Read-Info", func(st *results.Step) (int, error) {
		before = filepath.Join(st.Dir, tools.InfoFile)

		return s.read(ctx, tools.ReaderArgs{
			CmdFile: tools.ReadCmd,
			Dir:     st.Dir,
			Rules:   tools.DefaultRules,
		}), nil
	})
	if err != nil {
		return test.Errors, err
	}

	err = s.step(test, "Run-Self-Test", func(st *results.Step) (int, error) {
		args := tools.ReaderArgs{CmdFile: tools.SelfTestCmd, Dir: st.Dir, NVMe: cc.NVMe}

		return s.deps.Runner.Run(ctx, s.reader.Argv(args), st.Dir, cc.SelfTestTimeout), nil
	})
	if err != nil {
		return test.Errors, err
	}

	if err := ctx.Err(); err != nil {
		return test.Errors, fmt.Errorf("self-test cancelled: %w", err)
	}

	err = s.step(test, "Verify-Info", func(st *results.Step) (int, error) {
		return s.read(ctx, tools.ReaderArgs{
			CmdFile: tools.ReadCmd,
			Dir:     st.Dir,
			Rules:   tools.DefaultRules,
			Compare: before,
		}), nil
	})
	if err != nil {
		return test.Errors, err
	}

	s.deps.Tree.CloseTest(test)

	s.log.WithField("errors", test.Errors).Info("Self-test finished")

	return test.Errors, nil
}
