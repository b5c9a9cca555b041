package telemetry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// AllCommandsName labels the aggregate row over every command.
const AllCommandsName = "All Commands"

// ErrCommandNotFound is returned by SingleCommandStats when no surviving
// record carries the requested command name.
var ErrCommandNotFound = errors.New("admin command not found")

// AdminOptions controls ReduceAdminCommands.
type AdminOptions struct {
	// Skip discards the first Skip records of the series.
	Skip int
	// Prefix is a label attached to every reported line.
	Prefix string
	// Verbose adds sample timing statistics from the sample series.
	Verbose bool
}

// AdminReport is the reduction of an admin command record series.
type AdminReport struct {
	// Commands holds one entry per distinct command, sorted by name.
	Commands []SeriesStats `json:"commands"`
	// All is set only when more than one distinct command is present.
	All     *SeriesStats `json:"all,omitempty"`
	Errors  int          `json:"errors"`
	Records int          `json:"records"`

	// Verbose only. Timestamp deltas are in seconds, run times in ms.
	TimestampDeltas *SeriesStats `json:"timestamp_deltas,omitempty"`
	RunTimes        *SeriesStats `json:"run_times,omitempty"`
}

// commandGroups is the skip-and-group result over a record series.
type commandGroups struct {
	byName    map[string][]float64
	all       []float64
	errors    int
	surviving []CommandRecord
}

// groupCommands discards the first skip records and groups the rest by
// command name. A nonzero or unparseable return code counts as an error.
func groupCommands(records []CommandRecord, skip int) (*commandGroups, error) {
	g := &commandGroups{byName: make(map[string][]float64, 4)}

	if skip < 0 {
		skip = 0
	}

	if skip >= len(records) {
		return g, nil
	}

	for i, rec := range records[skip:] {
		ms, err := rec.DurationMS.Float()
		if err != nil {
			return nil, fmt.Errorf("record %d (%s): %w", i+skip, rec.Command, err)
		}

		g.byName[rec.Command] = append(g.byName[rec.Command], ms)
		g.all = append(g.all, ms)

		if rc, err := rec.ReturnCode.Int(); err != nil || rc != 0 {
			g.errors++
		}

		g.surviving = append(g.surviving, rec)
	}

	return g, nil
}

// report builds the per-command statistics of the groups.
func (g *commandGroups) report() *AdminReport {
	names := make([]string, 0, len(g.byName))
	for name := range g.byName {
		names = append(names, name)
	}

	sort.Strings(names)

	report := &AdminReport{
		Commands: make([]SeriesStats, 0, len(names)),
		Errors:   g.errors,
		Records:  len(g.surviving),
	}

	for _, name := range names {
		report.Commands = append(report.Commands, *computeStats(name, g.byName[name]))
	}

	if len(names) > 1 {
		report.All = computeStats(AllCommandsName, g.all)
	}

	return report
}

// ReduceAdminCommands implements Reducer.
func (r *reducer) ReduceAdminCommands(
	capturePath, tablePath string,
	opts AdminOptions,
) (*AdminReport, error) {
	capture, err := LoadCapture(capturePath)
	if err != nil {
		return nil, err
	}

	groups, err := groupCommands(capture.CommandTimes, opts.Skip)
	if err != nil {
		return nil, err
	}

	if err := r.writeCommandTable(tablePath, groups.surviving); err != nil {
		return nil, err
	}

	report := groups.report()

	log := r.log
	if opts.Prefix != "" {
		log = log.WithField("label", opts.Prefix)
	}

	for i := range report.Commands {
		logStats(log, &report.Commands[i], "Admin command latency (ms)")
	}

	if report.All != nil {
		logStats(log, report.All, "Admin command latency (ms)")
	}

	if report.Errors != 0 {
		log.WithField("errors", report.Errors).Warn("Admin commands completed with errors")
	}

	if opts.Verbose {
		times, runTimes, err := capture.SampleTimes()
		if err != nil {
			return nil, err
		}

		deltas := make([]float64, 0, len(times))
		for i := 1; i < len(times); i++ {
			deltas = append(deltas, times[i].Sub(times[i-1]).Seconds())
		}

		report.TimestampDeltas = computeStats("timestamp deltas", deltas)
		report.RunTimes = computeStats("run times", runTimes)

		if report.TimestampDeltas != nil {
			logStats(log, report.TimestampDeltas, "Sample timestamp deltas (sec)")
		}

		if report.RunTimes != nil {
			logStats(log, report.RunTimes, "Sample run times (ms)")
		}
	}

	return report, nil
}

// SingleCommandStats implements Reducer.
func (r *reducer) SingleCommandStats(name, capturePath, tablePath string, skip int) (*SeriesStats, error) {
	capture, err := LoadCapture(capturePath)
	if err != nil {
		return nil, err
	}

	groups, err := groupCommands(capture.CommandTimes, skip)
	if err != nil {
		return nil, err
	}

	if err := r.writeCommandTable(tablePath, groups.surviving); err != nil {
		return nil, err
	}

	stats := computeStats(name, groups.byName[name])
	if stats == nil {
		return nil, fmt.Errorf("%w: %q", ErrCommandNotFound, name)
	}

	logStats(r.log, stats, "Admin command latency (ms)")

	return stats, nil
}

func (r *reducer) writeCommandTable(path string, records []CommandRecord) error {
	table, err := NewTableWriter(path, AdminCommandColumns, r.owner)
	if err != nil {
		return err
	}

	for _, rec := range records {
		err := table.Write(
			rec.Timestamp,
			rec.Command,
			rec.DurationMS.String(),
			rec.ReturnCode.String(),
			rec.BytesReturned.String(),
		)
		if err != nil {
			_ = table.Close()

			return err
		}
	}

	return table.Close()
}

func logStats(log logrus.FieldLogger, s *SeriesStats, msg string) {
	log.WithFields(logrus.Fields{
		"name":  s.Name,
		"avg":   fmt.Sprintf("%.2f", s.Avg),
		"min":   fmt.Sprintf("%.2f", s.Min),
		"max":   fmt.Sprintf("%.2f", s.Max),
		"count": s.Count,
	}).Info(msg)
}
