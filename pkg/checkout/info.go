package checkout

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/ethpandaops/checkoor/pkg/results"
	"github.com/ethpandaops/checkoor/pkg/tools"
)

var errNoReference = errors.New("no reference info snapshot, test 1 did not run")

// verifyInfo reads the drive info against the feature rules and, for new
// drives, against the unused drive rules. The info file becomes the
// reference snapshot of the time comparison.
func (s *suite) verifyInfo(ctx context.Context, t *results.Test) error {
	err := s.step(t, "Verify-Features-And-Errors", func(st *results.Step) (int, error) {
		s.refInfo = filepath.Join(st.Dir, tools.InfoFile)

		return s.read(ctx, tools.ReaderArgs{
			CmdFile: tools.ReadCmd,
			Dir:     st.Dir,
			Rules:   tools.UserFeaturesRules,
		}), nil
	})
	if err != nil || !s.cfg.Checkout.NewDrive {
		return err
	}

	return s.step(t, "Verify-New-Drive-Rules", func(st *results.Step) (int, error) {
		return s.read(ctx, tools.ReaderArgs{
			CmdFile: tools.ReadCmd,
			Dir:     st.Dir,
			Rules:   tools.UnusedDriveRules,
		}), nil
	})
}

func (s *suite) selfTests(ctx context.Context, t *results.Test) error {
	err := s.step(t, "Short-Self-Test", func(st *results.Step) (int, error) {
		return s.read(ctx, tools.ReaderArgs{CmdFile: tools.SelfTestCmd, Dir: st.Dir}), nil
	})
	if err != nil {
		return err
	}

	if pause := s.cfg.Checkout.SelfTestPause; pause > 0 {
		s.log.WithField("pause", pause).Info("Waiting before the extended self-test")

		if err := s.deps.Sleep(ctx, pause); err != nil {
			return err
		}
	}

	return s.step(t, "Extended-Self-Test", func(st *results.Step) (int, error) {
		return s.read(ctx, tools.ReaderArgs{CmdFile: tools.SelfTestCmd, Dir: st.Dir, Extended: true}), nil
	})
}

// compareTimes reads the latest drive info and reconciles its clocks with
// the reference snapshot.
func (s *suite) compareTimes(ctx context.Context, t *results.Test) error {
	var latest string

	err := s.step(t, "Read-Drive-Info", func(st *results.Step) (int, error) {
		latest = filepath.Join(st.Dir, tools.InfoFile)

		return s.read(ctx, tools.ReaderArgs{CmdFile: tools.ReadCmd, Dir: st.Dir}), nil
	})
	if err != nil {
		return err
	}

	return s.step(t, "Compare-Time", func(_ *results.Step) (int, error) {
		if s.refInfo == "" {
			return s.failure("Cannot compare drive times", errNoReference), nil
		}

		if _, err := s.deps.Comparator.CompareFiles(s.refInfo, latest); err != nil {
			return s.failure("Failed to compare drive times", err), nil
		}

		return 0, nil
	})
}
