package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T) (Runner, *test.Hook) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("process tests use /bin/sh")
	}

	log, hook := test.NewNullLogger()

	return NewRunner(log), hook
}

func sh(script string) []string {
	return []string{"/bin/sh", "-c", script}
}

func TestRun_ExitCodes(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   int
	}{
		{name: "success", script: "exit 0", want: 0},
		{name: "nonzero", script: "exit 3", want: 3},
		{name: "killed by signal", script: "kill -9 $$", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRunner(t)

			got := r.Run(context.Background(), sh(tt.script), t.TempDir(), 10*time.Second)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRun_WorkingDirectory(t *testing.T) {
	r, _ := newTestRunner(t)
	dir := t.TempDir()

	code := r.Run(context.Background(), sh("touch marker"), dir, 10*time.Second)
	require.Equal(t, 0, code)

	_, err := os.Stat(filepath.Join(dir, "marker"))
	assert.NoError(t, err)
}

func TestRun_TimeoutKillsProcessGroup(t *testing.T) {
	r, hook := newTestRunner(t)
	dir := t.TempDir()

	// The child outlives the shell unless the whole group is killed.
	started := time.Now()
	code := r.Run(context.Background(), sh("sleep 30 & sleep 30; touch survived"), dir, 200*time.Millisecond)

	assert.Equal(t, 1, code)
	assert.Less(t, time.Since(started), 10*time.Second)

	var timedOut bool

	for _, e := range hook.AllEntries() {
		if e.Message == "Process timed out, force terminating" {
			timedOut = true
		}
	}

	assert.True(t, timedOut)

	_, err := os.Stat(filepath.Join(dir, "survived"))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_ContextCancelled(t *testing.T) {
	r, _ := newTestRunner(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	assert.Equal(t, 1, r.Run(ctx, sh("sleep 30"), t.TempDir(), 0))
}

func TestRun_StartFailure(t *testing.T) {
	r, _ := newTestRunner(t)

	assert.Equal(t, 1, r.Run(context.Background(), []string{"/nonexistent/tool"}, t.TempDir(), time.Second))
	assert.Equal(t, 1, r.Run(context.Background(), nil, t.TempDir(), time.Second))
}

func TestStartAsync(t *testing.T) {
	r, _ := newTestRunner(t)

	t.Run("spawn failure", func(t *testing.T) {
		h, err := r.StartAsync([]string{"/nonexistent/tool"}, t.TempDir())
		assert.Error(t, err)
		assert.Nil(t, h)
	})

	t.Run("empty argv", func(t *testing.T) {
		_, err := r.StartAsync(nil, t.TempDir())
		assert.ErrorIs(t, err, ErrEmptyCommand)
	})

	t.Run("returns while running", func(t *testing.T) {
		h, err := r.StartAsync(sh("sleep 30"), t.TempDir())
		require.NoError(t, err)

		defer func() { _ = r.Supervisor().ForceTerminate(h) }()

		assert.Positive(t, h.Pid())
		assert.False(t, h.StartTime().IsZero())

		_, exited := h.Exited()
		assert.False(t, exited)
	})
}

func TestVerify(t *testing.T) {
	r, _ := newTestRunner(t)

	t.Run("exit code passed through", func(t *testing.T) {
		h, err := r.StartAsync(sh("exit 5"), t.TempDir())
		require.NoError(t, err)

		assert.Equal(t, 5, r.Verify(context.Background(), h, 10*time.Second))
	})

	t.Run("expired wait leaves process running", func(t *testing.T) {
		h, err := r.StartAsync(sh("sleep 30"), t.TempDir())
		require.NoError(t, err)

		assert.Equal(t, 1, r.Verify(context.Background(), h, 100*time.Millisecond))

		_, exited := h.Exited()
		assert.False(t, exited)

		require.NoError(t, r.Supervisor().ForceTerminate(h))
		assert.True(t, h.WaitTimeout(context.Background(), 10*time.Second))
	})
}

func TestSupervisor_RequestGracefulStop(t *testing.T) {
	r, _ := newTestRunner(t)
	dir := t.TempDir()

	h, err := r.StartAsync(sh("trap 'touch stopped; exit 0' INT; while true; do sleep 0.1; done"), dir)
	require.NoError(t, err)

	// Give the shell time to install the trap.
	time.Sleep(300 * time.Millisecond)

	require.NoError(t, r.Supervisor().RequestGracefulStop(h))
	require.True(t, h.WaitTimeout(context.Background(), 10*time.Second))

	_, err = os.Stat(filepath.Join(dir, "stopped"))
	assert.NoError(t, err)

	// Terminating a finished group is a no-op.
	assert.NoError(t, r.Supervisor().ForceTerminate(h))
}

type stubSupervisor struct {
	killErr error
}

func (stubSupervisor) RequestGracefulStop(*Handle) error { return nil }

func (s stubSupervisor) ForceTerminate(*Handle) error { return s.killErr }

func TestRun_TimeoutReturnsWhenProcessNotReaped(t *testing.T) {
	tests := []struct {
		name    string
		killErr error
		message string
	}{
		{
			name:    "force terminate fails",
			killErr: errors.New("operation not permitted"),
			message: "Failed to force terminate process",
		},
		{
			name:    "process ignores force terminate",
			message: "Process not reaped after force terminate",
		},
	}

	defer func(d time.Duration) { reapTimeout = d }(reapTimeout)
	reapTimeout = 200 * time.Millisecond

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if runtime.GOOS == "windows" {
				t.Skip("process tests use /bin/sh")
			}

			log, hook := test.NewNullLogger()
			r := &runner{log: log, supervisor: stubSupervisor{killErr: tt.killErr}}

			started := time.Now()
			code := r.Run(context.Background(), sh("sleep 2"), t.TempDir(), 100*time.Millisecond)

			assert.Equal(t, 1, code)
			assert.Less(t, time.Since(started), time.Second)

			var logged bool

			for _, e := range hook.AllEntries() {
				if e.Message == tt.message {
					logged = true
				}
			}

			assert.True(t, logged)
		})
	}
}
