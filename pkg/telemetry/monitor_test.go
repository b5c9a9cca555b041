package telemetry

import (
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntry(ts string, temp, tmt1, tmt2 int, read, written string, busy int) map[string]any {
	return map[string]any{
		ParamTimestamp:            ts,
		ParamCompositeTemperature: strconv.Itoa(temp) + " C",
		ParamTMT1Time:             strconv.Itoa(tmt1) + " seconds",
		ParamTMT2Time:             strconv.Itoa(tmt2) + " seconds",
		ParamWarningTime:          "1 minutes",
		ParamCriticalTime:         "0 minutes",
		ParamDataRead:             read,
		ParamDataWritten:          written,
		ParamBusyTime:             strconv.Itoa(busy) + " minutes",
	}
}

func TestReduceMonitor(t *testing.T) {
	dir := t.TempDir()
	capture := writeJSON(t, filepath.Join(dir, "read.summary.json"), map[string]any{
		"_settings": map[string]any{"read": map[string]any{"interval in ms": 2000}},
		"read details": map[string]any{
			"sample": []map[string]any{
				sampleEntry("2024-01-01 00:00:00.000000", 40, 0, 0, "1,000.000 GB", "500.000 GB", 10),
				sampleEntry("2024-01-01 00:00:02.000000", 55, 2, 0, "1,004.000 GB", "501.000 GB", 11),
				sampleEntry("2024-01-01 00:00:04.000000", 48, 5, 1, "1,010.000 GB", "501.000 GB", 13),
			},
		},
	})

	r, _ := newTestReducer(t)
	table := filepath.Join(dir, "monitor.csv")

	summary, err := r.ReduceMonitor(capture, table)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Samples)
	assert.Equal(t, int64(55), summary.MaxTemperature)
	assert.Equal(t, int64(5), summary.TMT1Delta)
	assert.Equal(t, int64(1), summary.TMT2Delta)
	assert.Zero(t, summary.WarningDelta)
	assert.Zero(t, summary.CriticalDelta)
	assert.Equal(t, int64(3), summary.BusyDelta)
	assert.InDelta(t, 10.0, summary.DataReadDelta, 1e-9)
	assert.InDelta(t, 1.0, summary.DataWrittenDelta, 1e-9)

	rows := readTable(t, table)
	require.Len(t, rows, 4)
	assert.Equal(t, MonitorColumns, rows[0])

	// First row compares against itself.
	assert.Equal(t, []string{
		"2024-01-01 00:00:00.000000", "40", "0.000", "0.000", "0", "0",
		"1000.000", "500.000", "0", "0", "1", "0", "10",
	}, rows[1])

	// (1004-1000)/2s read, (501-500)/2s written.
	assert.Equal(t, "2.000", rows[2][2])
	assert.Equal(t, "0.500", rows[2][3])
	assert.Equal(t, "2", rows[2][4])

	assert.Equal(t, "3.000", rows[3][2])
	assert.Equal(t, "0.000", rows[3][3])
	assert.Equal(t, "3", rows[3][4])
	assert.Equal(t, "1", rows[3][5])
}

func TestReduceMonitor_Errors(t *testing.T) {
	tests := []struct {
		name    string
		capture map[string]any
		wantErr error
	}{
		{
			name: "no samples",
			capture: map[string]any{
				"_settings": map[string]any{"read": map[string]any{"interval in ms": 1000}},
			},
			wantErr: ErrNoSamples,
		},
		{
			name: "zero interval",
			capture: map[string]any{
				"_settings": map[string]any{"read": map[string]any{"interval in ms": 0}},
				"read details": map[string]any{"sample": []map[string]any{
					sampleEntry("2024-01-01 00:00:00.000000", 40, 0, 0, "1 GB", "1 GB", 0),
				}},
			},
			wantErr: ErrInvalidInterval,
		},
		{
			name: "missing parameter",
			capture: map[string]any{
				"_settings": map[string]any{"read": map[string]any{"interval in ms": 1000}},
				"read details": map[string]any{"sample": []map[string]any{
					{ParamTimestamp: "2024-01-01 00:00:00.000000"},
				}},
			},
			wantErr: ErrMissingParameter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			capture := writeJSON(t, filepath.Join(dir, "read.summary.json"), tt.capture)

			r, _ := newTestReducer(t)

			_, err := r.ReduceMonitor(capture, filepath.Join(dir, "monitor.csv"))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSummarizeSamples_SingleSample(t *testing.T) {
	summary, rows, err := SummarizeSamples([]Sample{
		{Timestamp: "t0", CompositeTemperature: 33, DataRead: 5},
	}, time.Second)
	require.NoError(t, err)

	assert.Equal(t, int64(33), summary.MaxTemperature)
	assert.Zero(t, summary.DataReadDelta)
	require.Len(t, rows, 1)
	assert.Equal(t, "0.000", rows[0][2])
}
