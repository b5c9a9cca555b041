package telemetry

import (
	"github.com/ethpandaops/checkoor/pkg/fsutil"
	"github.com/sirupsen/logrus"
)

// Reducer turns captured telemetry files into summary metrics and flat
// tables.
type Reducer interface {
	// ReduceMonitor reduces the collector's sample series into a thermal and
	// throughput summary and writes one detail row per sample to tablePath.
	ReduceMonitor(capturePath, tablePath string) (*ThermalSummary, error)

	// ReduceAdminCommands groups admin command records by command and
	// writes the surviving records to tablePath.
	ReduceAdminCommands(capturePath, tablePath string, opts AdminOptions) (*AdminReport, error)

	// SingleCommandStats returns the statistics of one named command.
	SingleCommandStats(name, capturePath, tablePath string, skip int) (*SeriesStats, error)

	// ReduceLoadResults sums the load generator result files.
	ReduceLoadResults(paths []string) (*LoadTotals, error)

	// ReadLatency returns the read completion latency of a load result file.
	ReadLatency(path string) (*SeriesStats, error)
}

// NewReducer creates a new telemetry reducer. Tables are created with the
// given owner (may be nil).
func NewReducer(log logrus.FieldLogger, owner *fsutil.OwnerConfig) Reducer {
	return &reducer{
		log:   log.WithField("component", "telemetry"),
		owner: owner,
	}
}

type reducer struct {
	log   logrus.FieldLogger
	owner *fsutil.OwnerConfig
}

// Ensure interface compliance.
var _ Reducer = (*reducer)(nil)
