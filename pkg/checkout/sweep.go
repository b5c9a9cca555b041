package checkout

import (
	"context"
	"path/filepath"
	"strconv"

	"github.com/ethpandaops/checkoor/pkg/results"
	"github.com/ethpandaops/checkoor/pkg/telemetry"
	"github.com/ethpandaops/checkoor/pkg/tools"
	"github.com/sirupsen/logrus"
)

// Reader sample counts of a log page sweep. Long idle intervals take fewer
// samples to bound the run time.
const (
	sweepSamples     = 200
	sweepSamplesLong = 100
	longIntervalMS   = 999
	// sweepSkip drops the first commands of every interval, which include
	// the drive waking from idle.
	sweepSkip = 2
)

// reliability reads 1000 samples against the feature rules and reduces the
// admin command timing.
func (s *suite) reliability(ctx context.Context, t *results.Test) error {
	var capture string

	err := s.step(t, "Read-Verify-Compare-1K", func(st *results.Step) (int, error) {
		capture = filepath.Join(st.Dir, tools.SummaryFile)

		return s.read(ctx, tools.ReaderArgs{
			CmdFile:    tools.ReadCmd,
			Dir:        st.Dir,
			Rules:      tools.UserFeaturesRules,
			Samples:    1000,
			IntervalMS: 500,
		}), nil
	})
	if err != nil {
		return err
	}

	return s.step(t, "Log-Admin-Times", func(st *results.Step) (int, error) {
		return s.reduceAdmin(capture, st.Dir), nil
	})
}

func (s *suite) reduceAdmin(capture, dir string) int {
	_, err := s.deps.Reducer.ReduceAdminCommands(capture, filepath.Join(dir, AdminTableFile), telemetry.AdminOptions{})
	if err != nil {
		return s.failure("Failed to reduce admin commands", err)
	}

	return 0
}

// sweepPoint measures one idle interval of a sweep. It returns the step
// code contribution and the latency statistics, nil when unavailable.
type sweepPoint func(dir string, intervalMS int) (int, *telemetry.SeriesStats)

// sweep runs point once per idle interval inside a single "Read" step and
// tabulates the latency per interval.
func (s *suite) sweep(t *results.Test, tableName string, point sweepPoint) error {
	return s.step(t, "Read", func(st *results.Step) (int, error) {
		table, err := telemetry.NewTableWriter(filepath.Join(st.Dir, tableName), telemetry.SweepColumns, s.cfg.Owner)
		if err != nil {
			return s.failure("Failed to create sweep table", err), nil
		}

		code := 0

		for _, interval := range s.cfg.Checkout.IdleIntervalsMS {
			dir, err := s.subDir(st.Dir, interval)
			if err != nil {
				_ = table.Close()

				return 0, err
			}

			c, stats := point(dir, interval)
			code += c

			if stats == nil {
				stats = &telemetry.SeriesStats{}
			}

			s.log.WithFields(logrus.Fields{
				"idle_ms": interval,
				"avg_ms":  formatMS(stats.Avg),
				"min_ms":  formatMS(stats.Min),
				"max_ms":  formatMS(stats.Max),
				"count":   stats.Count,
			}).Info("Idle then read latency")

			err = table.Write(strconv.Itoa(interval), formatMS(stats.Avg), formatMS(stats.Min),
				formatMS(stats.Max), strconv.Itoa(stats.Count))
			if err != nil {
				code += s.failure("Failed to write sweep row", err)
			}
		}

		if err := table.Close(); err != nil {
			code += s.failure("Failed to close sweep table", err)
		}

		return code, nil
	})
}

// logPageSweep reads a log page after every idle interval and records the
// latency of the named command.
func (s *suite) logPageSweep(cmdFile, command, tableName string) func(context.Context, *results.Test) error {
	return func(ctx context.Context, t *results.Test) error {
		return s.sweep(t, tableName, func(dir string, interval int) (int, *telemetry.SeriesStats) {
			samples := sweepSamples
			if interval > longIntervalMS {
				samples = sweepSamplesLong
			}

			code := s.read(ctx, tools.ReaderArgs{
				CmdFile:    cmdFile,
				Dir:        dir,
				Samples:    samples,
				IntervalMS: interval,
			})

			stats, err := s.deps.Reducer.SingleCommandStats(command,
				filepath.Join(dir, tools.SummaryFile), filepath.Join(dir, AdminTableFile), sweepSkip)
			if err != nil {
				return code + s.failure("Failed to reduce sweep interval", err), nil
			}

			return code, stats
		})
	}
}

// randomReadSweep issues paced single block random reads and records the
// read completion latency per idle interval.
func (s *suite) randomReadSweep(ctx context.Context, t *results.Test) error {
	cc := &s.cfg.Checkout

	return s.sweep(t, "random_read_sweep.csv", func(dir string, interval int) (int, *telemetry.SeriesStats) {
		// The load tool rejects a zero think time.
		thinkUS := interval * 1000
		if thinkUS == 0 {
			thinkUS = 1
		}

		output := filepath.Join(dir, tools.LoadResultFile)
		args := s.loadArgs(tools.LoadArgs{
			Name:            "fio-burst",
			NumJobs:         1,
			RW:              "randread",
			IODepth:         1,
			ThinkTimeBlocks: 1,
			BlockSize:       "4k",
			Runtime:         cc.SweepRuntime,
			Output:          output,
			ThinkTimeUS:     thinkUS,
		})

		// Load failures count against the test, not the step.
		t.AddErrors(s.deps.Runner.Run(ctx, args, dir, cc.SweepTimeout))

		stats, err := s.deps.Reducer.ReadLatency(output)
		if err != nil {
			return s.failure("Failed to read load latency", err), nil
		}

		return 0, stats
	})
}

func formatMS(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
