package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/ethpandaops/checkoor/pkg/process"
	"github.com/ethpandaops/checkoor/pkg/results"
	"github.com/ethpandaops/checkoor/pkg/telemetry"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	runner  process.Runner
	monitor Monitor
	dir     string
}

func newFixture(t *testing.T, stopTimeout time.Duration) *fixture {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("monitor tests use /bin/sh")
	}

	log, _ := test.NewNullLogger()
	runner := process.NewRunner(log)

	return &fixture{
		runner: runner,
		monitor: NewMonitor(log, runner, telemetry.NewReducer(log, nil), Config{
			StopTimeout: stopTimeout,
		}),
		dir: t.TempDir(),
	}
}

func (f *fixture) writeCapture(t *testing.T) {
	t.Helper()

	sample := func(ts, temp, read string) map[string]any {
		return map[string]any{
			telemetry.ParamTimestamp:            ts,
			telemetry.ParamCompositeTemperature: temp,
			telemetry.ParamTMT1Time:             "0",
			telemetry.ParamTMT2Time:             "0",
			telemetry.ParamWarningTime:          "0",
			telemetry.ParamCriticalTime:         "0",
			telemetry.ParamDataRead:             read,
			telemetry.ParamDataWritten:          "0 GB",
			telemetry.ParamBusyTime:             "0",
		}
	}

	data, err := json.Marshal(map[string]any{
		"_settings": map[string]any{"read": map[string]any{"interval in ms": "2000"}},
		"read details": map[string]any{"sample": []map[string]any{
			sample("2024-01-01 00:00:00.000000", "41 C", "10 GB"),
			sample("2024-01-01 00:00:02.000000", "47 C", "14 GB"),
		}},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, DefaultCaptureFile), data, 0o644))
}

func sh(script string) []string {
	return []string{"/bin/sh", "-c", script}
}

func TestMonitor_Lifecycle(t *testing.T) {
	f := newFixture(t, 5*time.Second)
	f.writeCapture(t)

	assert.Equal(t, NotStarted, f.monitor.State())

	h, err := f.monitor.Start(context.Background(), sh("sleep 30"), f.dir, 200*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, Running, f.monitor.State())

	summary, err := f.monitor.Stop(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Stopped, f.monitor.State())
	assert.Equal(t, 2, summary.Samples)
	assert.Equal(t, int64(47), summary.MaxTemperature)
	assert.InDelta(t, 4.0, summary.DataReadDelta, 1e-9)
	assert.FileExists(t, filepath.Join(f.dir, DefaultTableFile))

	_, exited := h.Exited()
	assert.True(t, exited)

	// Single use.
	_, err = f.monitor.Start(context.Background(), sh("sleep 30"), f.dir, time.Millisecond)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestMonitor_StartFatal(t *testing.T) {
	tests := []struct {
		name     string
		argv     []string
		wantKind results.FatalKind
	}{
		{name: "spawn failure", argv: []string{"/nonexistent/collector"}, wantKind: results.ProcessSpawnFailure},
		{name: "exit in grace window", argv: sh("exit 0"), wantKind: results.CollectorEarlyExit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, time.Second)

			_, err := f.monitor.Start(context.Background(), tt.argv, f.dir, 5*time.Second)
			require.Error(t, err)

			var fatal *results.FatalError

			require.True(t, errors.As(err, &fatal))
			assert.Equal(t, tt.wantKind, fatal.Kind)
			assert.Equal(t, results.ExitTestCaseException, results.ExitCode(err))
			assert.Equal(t, NotStarted, f.monitor.State())
		})
	}
}

func TestMonitor_ZeroGraceDoesNotWait(t *testing.T) {
	f := newFixture(t, 5*time.Second)

	started := time.Now()

	_, err := f.monitor.Start(context.Background(), sh("sleep 30"), f.dir, 0)
	require.NoError(t, err)

	defer func() { _, _ = f.monitor.Stop(context.Background()) }()

	assert.Less(t, time.Since(started), 5*time.Second)
	assert.Equal(t, Running, f.monitor.State())
}

func TestMonitor_StateDuringGraceWindow(t *testing.T) {
	f := newFixture(t, 5*time.Second)
	f.writeCapture(t)

	started := make(chan error, 1)

	go func() {
		_, err := f.monitor.Start(context.Background(), sh("sleep 30"), f.dir, time.Second)
		started <- err
	}()

	// State answers while Start is still inside the grace window.
	assert.Eventually(t, func() bool {
		return f.monitor.State() == Starting
	}, 500*time.Millisecond, 10*time.Millisecond)

	require.NoError(t, <-started)
	assert.Equal(t, Running, f.monitor.State())

	_, err := f.monitor.Stop(context.Background())
	require.NoError(t, err)
}

func TestMonitor_StopWithCancelledContext(t *testing.T) {
	f := newFixture(t, 5*time.Second)
	f.writeCapture(t)

	// The collector takes a moment to exit after the interrupt.
	h, err := f.monitor.Start(context.Background(),
		sh("trap 'sleep 0.3; exit 0' INT; while :; do sleep 0.05; done"), f.dir, 200*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := f.monitor.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Samples)

	_, exited := h.Exited()
	assert.True(t, exited)
}

func TestMonitor_StopAfterEarlyDeath(t *testing.T) {
	f := newFixture(t, time.Second)
	f.writeCapture(t)

	h, err := f.monitor.Start(context.Background(), sh("sleep 0.5"), f.dir, 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, h.WaitTimeout(context.Background(), 10*time.Second))

	summary, err := f.monitor.Stop(context.Background())
	require.ErrorIs(t, err, ErrStopFailed)

	// The capture is still reduced.
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.Samples)
	assert.Equal(t, Stopped, f.monitor.State())
}

func TestMonitor_StopTimeoutDoesNotKill(t *testing.T) {
	f := newFixture(t, 300*time.Millisecond)
	f.writeCapture(t)

	h, err := f.monitor.Start(context.Background(), sh("trap '' INT; sleep 30"), f.dir, 200*time.Millisecond)
	require.NoError(t, err)

	defer func() { _ = f.runner.Supervisor().ForceTerminate(h) }()

	summary, err := f.monitor.Stop(context.Background())
	require.ErrorIs(t, err, ErrStopFailed)
	assert.NotNil(t, summary)

	_, exited := h.Exited()
	assert.False(t, exited)
}

func TestMonitor_StopWithoutCapture(t *testing.T) {
	f := newFixture(t, 5*time.Second)

	_, err := f.monitor.Start(context.Background(), sh("sleep 30"), f.dir, 100*time.Millisecond)
	require.NoError(t, err)

	summary, err := f.monitor.Stop(context.Background())
	assert.Error(t, err)
	assert.Nil(t, summary)
}

func TestMonitor_StopNotStarted(t *testing.T) {
	f := newFixture(t, time.Second)

	_, err := f.monitor.Stop(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "starting", Starting.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "stop_requested", StopRequested.String())
	assert.Equal(t, "state(9)", State(9).String())
}
