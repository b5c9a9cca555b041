package telemetry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(readBytes, readRuntimeMS float64, optRuntime string) map[string]any {
	return map[string]any{
		"jobs": []map[string]any{
			{
				"jobname":     "random",
				"job options": map[string]any{"runtime": optRuntime},
				"read": map[string]any{
					"io_bytes": readBytes,
					"runtime":  readRuntimeMS,
					"lat_ns":   map[string]any{"min": 50000, "max": 2500000, "mean": 120000.5, "N": 1000},
				},
				"write": map[string]any{"io_bytes": 0, "runtime": 0},
			},
		},
	}
}

func TestReduceLoadResults(t *testing.T) {
	dir := t.TempDir()
	first := writeJSON(t, filepath.Join(dir, "a.json"), loadFixture(1e9, 10000, "10"))
	second := writeJSON(t, filepath.Join(dir, "b.json"), loadFixture(2e9, 0, "0"))

	r, _ := newTestReducer(t)

	totals, err := r.ReduceLoadResults([]string{first, second})
	require.NoError(t, err)

	require.Len(t, totals.Files, 2)
	assert.InDelta(t, 1.0, totals.Files[0].ReadGB, 1e-9)
	assert.InDelta(t, 0.1, totals.Files[0].ReadGBps, 1e-9)
	assert.Equal(t, int64(10), totals.Files[0].RuntimeSeconds)

	assert.InDelta(t, 2.0, totals.Files[1].ReadGB, 1e-9)
	assert.Zero(t, totals.Files[1].ReadGBps)

	assert.InDelta(t, 3.0, totals.ReadGB, 1e-9)
	assert.Zero(t, totals.WrittenGB)
	assert.Equal(t, int64(10), totals.RuntimeSeconds)
	assert.InDelta(t, 0.3, totals.ReadGBps, 1e-9)
}

func TestReduceLoadResults_MultipleJobsSum(t *testing.T) {
	dir := t.TempDir()
	path := writeJSON(t, filepath.Join(dir, "seq.json"), map[string]any{
		"jobs": []map[string]any{
			{
				"job options": map[string]any{"runtime": "720"},
				"read":        map[string]any{"io_bytes": 4e9, "runtime": 2000},
				"write":       map[string]any{"io_bytes": 1e9, "runtime": 1000},
			},
			{
				"read":  map[string]any{"io_bytes": 2e9, "runtime": 1000},
				"write": map[string]any{"io_bytes": 0, "runtime": 0},
			},
		},
	})

	r, _ := newTestReducer(t)

	totals, err := r.ReduceLoadResults([]string{path})
	require.NoError(t, err)

	file := totals.Files[0]
	assert.InDelta(t, 6.0, file.ReadGB, 1e-9)
	assert.InDelta(t, 4.0, file.ReadGBps, 1e-9)
	assert.InDelta(t, 1.0, file.WrittenGB, 1e-9)
	assert.InDelta(t, 1.0, file.WriteGBps, 1e-9)
	assert.Equal(t, int64(720), file.RuntimeSeconds)
}

func TestReduceLoadResults_Errors(t *testing.T) {
	dir := t.TempDir()
	empty := writeJSON(t, filepath.Join(dir, "empty.json"), map[string]any{"jobs": []any{}})

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte("{"), 0o644))

	r, _ := newTestReducer(t)

	_, err := r.ReduceLoadResults([]string{empty})
	assert.ErrorIs(t, err, ErrNoJobs)

	_, err = r.ReduceLoadResults([]string{broken})
	assert.Error(t, err)

	_, err = r.ReduceLoadResults([]string{filepath.Join(dir, "missing.json")})
	assert.Error(t, err)
}

func TestReadLatency(t *testing.T) {
	dir := t.TempDir()
	path := writeJSON(t, filepath.Join(dir, "load.json"), loadFixture(1e9, 1000, "180"))

	r, _ := newTestReducer(t)

	stats, err := r.ReadLatency(path)
	require.NoError(t, err)

	assert.Equal(t, "random", stats.Name)
	assert.Equal(t, 1000, stats.Count)
	assert.InDelta(t, 0.05, stats.Min, 1e-9)
	assert.InDelta(t, 2.5, stats.Max, 1e-9)
	assert.InDelta(t, 0.1200005, stats.Avg, 1e-9)
}
