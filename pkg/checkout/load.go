package checkout

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ethpandaops/checkoor/pkg/fsutil"
	"github.com/ethpandaops/checkoor/pkg/hostinfo"
	"github.com/ethpandaops/checkoor/pkg/monitor"
	"github.com/ethpandaops/checkoor/pkg/results"
	"github.com/ethpandaops/checkoor/pkg/tools"
	"github.com/sirupsen/logrus"
)

// ErrTargetSetup is returned when the load target file cannot be created.
var ErrTargetSetup = errors.New("load target setup failed")

// Collector settings of a performance test: one log page sample every two
// seconds until stopped.
const (
	monitorSamples    = 1000000
	monitorIntervalMS = 2000
)

// loadProfile is the load shape of a performance test.
type loadProfile struct {
	rw        string
	numJobs   int
	ioDepth   int
	blockSize string
	// label names the block size in step names.
	label       string
	readPercent []int
}

var (
	randomProfile = loadProfile{
		rw: "randrw", numJobs: 1, ioDepth: 8, blockSize: "4k", label: "4K",
		readPercent: []int{0, 100},
	}
	sequentialProfile = loadProfile{
		rw: "rw", numJobs: 2, ioDepth: 64, blockSize: "1024k", label: "1024k",
		readPercent: []int{0, 100},
	}
)

// targetPath returns the load target file at the root of the volume.
func (s *suite) targetPath() string {
	return filepath.Join(s.cfg.Checkout.Volume, string(filepath.Separator), "fio", "target.bin")
}

// loadArgs completes a job with the settings shared by every load step.
func (s *suite) loadArgs(a tools.LoadArgs) []string {
	a.IOEngine = s.cfg.Tools.IOEngine
	a.Direct = true
	a.Thread = true
	a.Filename = s.targetPath()
	a.Size = s.cfg.Checkout.LoadSize

	return a.Argv(s.cfg.Tools.Load)
}

// setupTarget writes the load target file sequentially so every load step
// reads and writes allocated blocks.
func (s *suite) setupTarget(ctx context.Context) error {
	cc := &s.cfg.Checkout
	target := s.targetPath()

	size, err := cc.LoadSizeBytes()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTargetSetup, err)
	}

	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		s.log.WithError(err).Warn("Failed to remove previous load target")
	}

	if err := hostinfo.CheckFreeSpace(ctx, cc.Volume, size); err != nil {
		return fmt.Errorf("%w: %w", ErrTargetSetup, err)
	}

	if err := fsutil.EnsureDir(filepath.Dir(target), nil); err != nil {
		return fmt.Errorf("%w: creating target directory: %w", ErrTargetSetup, err)
	}

	dir := filepath.Join(s.cfg.RunDir, "fio_setup")
	if err := fsutil.EnsureDir(dir, s.cfg.Owner); err != nil {
		return results.NewFatal(results.DirectoryCreateFailure, fmt.Errorf("creating setup directory: %w", err))
	}

	s.log.WithFields(logrus.Fields{
		"target": target,
		"size":   cc.LoadSize,
	}).Info("Creating load target")

	s.target = target

	args := tools.LoadArgs{
		Name:      "fio-setup",
		NumJobs:   1,
		RW:        "write",
		IODepth:   32,
		BlockSize: "1024k",
	}

	if code := s.deps.Runner.Run(ctx, s.loadArgs(args), dir, cc.SetupTimeout); code != 0 {
		return fmt.Errorf("%w: load tool exited with %d", ErrTargetSetup, code)
	}

	return nil
}

func (s *suite) removeTarget() {
	if s.target == "" {
		return
	}

	if err := os.Remove(s.target); err != nil && !os.IsNotExist(err) {
		s.log.WithError(err).Warn("Failed to remove load target")
	}
}

// performance runs the load steps of p while a background monitor samples
// the drive, then reduces the monitor, admin command and load results.
func (s *suite) performance(p loadProfile) func(context.Context, *results.Test) error {
	return func(ctx context.Context, t *results.Test) error {
		cc := &s.cfg.Checkout
		mon := s.deps.NewMonitor()

		var monitorDir string

		err := s.step(t, "Start-Monitor", func(st *results.Step) (int, error) {
			monitorDir = st.Dir

			argv := s.reader.Argv(tools.ReaderArgs{
				CmdFile:    tools.LogPage02Cmd,
				Dir:        st.Dir,
				NVMe:       cc.NVMe,
				Samples:    monitorSamples,
				IntervalMS: monitorIntervalMS,
			})

			if _, err := mon.Start(ctx, argv, st.Dir, cc.MonitorGrace); err != nil {
				return 0, err
			}

			return 0, nil
		})
		if err != nil {
			return err
		}

		outputs, err := s.runLoad(ctx, t, p)
		if err != nil {
			s.stopMonitor(context.WithoutCancel(ctx), t, mon)

			return err
		}

		if err := s.step(t, "Stop-Monitor", func(_ *results.Step) (int, error) {
			return s.stopMonitor(ctx, t, mon), nil
		}); err != nil {
			return err
		}

		if err := s.step(t, "Parse-Admin-Commands", func(st *results.Step) (int, error) {
			return s.reduceAdmin(filepath.Join(monitorDir, monitor.DefaultCaptureFile), st.Dir), nil
		}); err != nil {
			return err
		}

		return s.step(t, "Parse-Fio", func(_ *results.Step) (int, error) {
			if _, err := s.deps.Reducer.ReduceLoadResults(outputs); err != nil {
				return s.failure("Failed to reduce load results", err), nil
			}

			return 0, nil
		})
	}
}

// runLoad runs one load step per read percentage and returns the result
// files. Each step is followed by the cool down delay.
func (s *suite) runLoad(ctx context.Context, t *results.Test, p loadProfile) ([]string, error) {
	cc := &s.cfg.Checkout
	outputs := make([]string, 0, len(p.readPercent))

	for _, pct := range p.readPercent {
		name := "fio-rd" + strconv.Itoa(pct) + "-bs" + p.label

		err := s.step(t, name, func(st *results.Step) (int, error) {
			output := filepath.Join(st.Dir, tools.LoadResultFile)
			outputs = append(outputs, output)

			read := pct
			args := s.loadArgs(tools.LoadArgs{
				Name:      "fio-burst",
				NumJobs:   p.numJobs,
				RW:        p.rw,
				IODepth:   p.ioDepth,
				Runtime:   cc.LoadRuntime,
				Output:    output,
				RWMixRead: &read,
				BlockSize: p.blockSize,
			})

			code := s.deps.Runner.Run(ctx, args, st.Dir, cc.LoadRuntime+cc.LoadTimeoutMargin)

			if err := s.deps.Sleep(ctx, cc.LoadEndDelay); err != nil {
				return 0, err
			}

			return code, nil
		})
		if err != nil {
			return nil, err
		}
	}

	return outputs, nil
}

// stopMonitor stops mon and returns the step code.
func (s *suite) stopMonitor(ctx context.Context, t *results.Test, mon monitor.Monitor) int {
	summary, err := mon.Stop(ctx)
	if summary != nil {
		s.log.WithFields(logrus.Fields{
			"test":         t.Number,
			"max_temp_c":   summary.MaxTemperature,
			"tmt1_delta_s": summary.TMT1Delta,
			"tmt2_delta_s": summary.TMT2Delta,
		}).Info("Drive thermal summary")
	}

	if err != nil {
		return s.failure("Failed to stop monitor", err)
	}

	return 0
}
