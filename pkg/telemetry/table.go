package telemetry

import (
	"encoding/csv"
	"fmt"

	"github.com/ethpandaops/checkoor/pkg/fsutil"
)

// Column headers of the flat output tables. Order and naming are consumed by
// downstream tooling and must not change.
var (
	MonitorColumns = []string{
		"Timestamp", "Temp(C)", "DeltaRead(GB/sec)", "DeltaWritten(GB/sec)",
		"DeltaTMT1(Sec)", "DeltaTMT2(Sec)", "DataRead(GB)", "DataWritten(GB)",
		"TMT1(Sec)", "TMT2(Sec)", "WarningThrottle(Min)", "CriticalThrottle(Min)",
		"BusyTime(Min)",
	}

	AdminCommandColumns = []string{"Timestamp", "Command", "Time(mS)", "ReturnCode", "Bytes"}

	SweepColumns = []string{"Idle(ms)", "Avg(ms)", "Min(ms)", "Max(ms)", "Count"}
)

// TableWriter writes one flat CSV table.
type TableWriter struct {
	path string
	w    *csv.Writer
	// close releases the underlying file.
	close func() error
}

// NewTableWriter creates path and writes the header row.
func NewTableWriter(path string, columns []string, owner *fsutil.OwnerConfig) (*TableWriter, error) {
	f, err := fsutil.Create(path, owner)
	if err != nil {
		return nil, fmt.Errorf("creating table %s: %w", path, err)
	}

	t := &TableWriter{
		path:  path,
		w:     csv.NewWriter(f),
		close: f.Close,
	}

	if err := t.Write(columns...); err != nil {
		_ = f.Close()

		return nil, err
	}

	return t, nil
}

// Write appends one row.
func (t *TableWriter) Write(fields ...string) error {
	if err := t.w.Write(fields); err != nil {
		return fmt.Errorf("writing row to %s: %w", t.path, err)
	}

	return nil
}

// Close flushes buffered rows and closes the file.
func (t *TableWriter) Close() error {
	t.w.Flush()

	flushErr := t.w.Error()
	closeErr := t.close()

	if flushErr != nil {
		return fmt.Errorf("flushing table %s: %w", t.path, flushErr)
	}

	if closeErr != nil {
		return fmt.Errorf("closing table %s: %w", t.path, closeErr)
	}

	return nil
}
