package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethpandaops/checkoor/pkg/config"
	"github.com/ethpandaops/checkoor/pkg/results"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()

	log, _ := test.NewNullLogger()
	s := NewStore(log, &config.StoreConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "history.db")},
	})

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func sampleRun(id string, start time.Time) *results.RunResult {
	return &results.RunResult{
		ID:         id,
		StartedAt:  start,
		FinishedAt: start.Add(time.Hour),
		Failed:     1,
		Tests: []*results.TestResult{
			{
				Number: 1, Name: "Nvme-Verify-Info", Passed: true, StartedAt: start,
				Steps: []*results.StepResult{
					{Seq: 1, Name: "Verify-Features-And-Errors"},
				},
			},
			{
				Number: 3, Name: "Command-Reliability", Errors: 1, StartedAt: start,
				Steps: []*results.StepResult{
					{Seq: 2, Name: "Log-Admin-Times"},
					{Seq: 1, Name: "Read-Verify-Compare-1K", Code: 4},
				},
			},
		},
	}
}

func TestStore_SaveAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	saved, err := s.SaveRun(ctx, sampleRun("run-a", start), RunMeta{Hostname: "bench-1", NVMe: 2})
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)

	run, err := s.GetRun(ctx, "run-a")
	require.NoError(t, err)

	assert.Equal(t, "bench-1", run.Hostname)
	assert.Equal(t, 2, run.NVMe)
	assert.Equal(t, 1, run.Failed)
	require.Len(t, run.Tests, 2)
	assert.Equal(t, "Nvme-Verify-Info", run.Tests[0].Name)
	assert.True(t, run.Tests[0].Passed)

	steps := run.Tests[1].Steps
	require.Len(t, steps, 2)
	assert.Equal(t, "Read-Verify-Compare-1K", steps[0].Name)
	assert.Equal(t, 4, steps[0].Code)
}

func TestStore_GetRunNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestStore_ListRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "new", "mid"} {
		offset := map[string]time.Duration{"old": 0, "new": 2 * time.Hour, "mid": time.Hour}[id]

		_, err := s.SaveRun(ctx, sampleRun(id, start.Add(offset)), RunMeta{NVMe: i})
		require.NoError(t, err)
	}

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "new", runs[0].RunID)
	assert.Equal(t, "mid", runs[1].RunID)
	assert.Empty(t, runs[0].Tests)

	runs, err = s.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	_, err = s.SaveRun(ctx, sampleRun("new", start), RunMeta{})
	assert.Error(t, err, "duplicate run id")
}

func TestStore_UnsupportedDriver(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := NewStore(log, &config.StoreConfig{Driver: "mysql"})

	assert.Error(t, s.Start(context.Background()))
	assert.NoError(t, s.Stop())
}
