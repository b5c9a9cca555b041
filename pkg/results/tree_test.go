package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(start time.Time, step time.Duration) func() time.Time {
	now := start

	return func() time.Time {
		now = now.Add(step)

		return now
	}
}

func TestOpenTest_Naming(t *testing.T) {
	log, _ := test.NewNullLogger()
	start := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	tr := NewTree(log, TreeConfig{Now: func() time.Time { return start }})

	t.Run("with base dir", func(t *testing.T) {
		base := t.TempDir()

		tc := tr.OpenTest(3, "Command-Reliability", base)

		assert.Equal(t, filepath.Join(base, "Test3-Command-Reliability"), tc.Dir)
		assert.Equal(t, start, tc.Start)
		assert.Zero(t, tc.Steps())
		assert.Zero(t, tc.Errors)

		// Not created eagerly.
		_, err := os.Stat(tc.Dir)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("default timestamped dir", func(t *testing.T) {
		tc := tr.OpenTest(1, "Info", "")

		assert.Equal(t, filepath.Join("Test1-Info", "20240305_140709"), tc.Dir)
	})
}

func TestOpenStep_Sequence(t *testing.T) {
	log, _ := test.NewNullLogger()
	tr := NewTree(log, TreeConfig{})
	tc := tr.OpenTest(1, "Seq", t.TempDir())

	names := []string{"Read", "Load", "Compare", "Read"}
	codes := []int{0, 1, 0, -1}

	for i, name := range names {
		step, err := tr.OpenStep(name, tc)
		require.NoError(t, err)

		assert.Equal(t, i+1, step.Seq)
		assert.Equal(t, filepath.Join(tc.Dir, fmt.Sprintf("Step%d-%s", i+1, name)), step.Dir)
		assert.Same(t, tc, step.Test())
		assert.DirExists(t, step.Dir)

		step.Code = codes[i]
		tc.AddErrors(tr.CloseStep(step))
	}

	assert.Equal(t, len(names), tc.Steps())
	assert.Equal(t, 2, tc.Errors)
	assert.Equal(t, 1, tr.CloseTest(tc))

	// The test directory holds only its step directories.
	entries, err := os.ReadDir(tc.Dir)
	require.NoError(t, err)
	require.Len(t, entries, len(names))

	for _, e := range entries {
		assert.True(t, e.IsDir(), e.Name())
		assert.True(t, strings.HasPrefix(e.Name(), "Step"), e.Name())
	}
}

func TestOpenStep_ExistingDirectory(t *testing.T) {
	log, _ := test.NewNullLogger()
	tr := NewTree(log, TreeConfig{})
	base := t.TempDir()

	first := tr.OpenTest(2, "Again", base)
	s1, err := tr.OpenStep("Run", first)
	require.NoError(t, err)

	marker := filepath.Join(s1.Dir, "keep")
	require.NoError(t, os.WriteFile(marker, []byte("x"), 0o644))

	// Same test again yields the same step path.
	second := tr.OpenTest(2, "Again", base)
	s2, err := tr.OpenStep("Run", second)
	require.NoError(t, err)

	assert.Equal(t, s1.Dir, s2.Dir)
	assert.FileExists(t, marker)
}

func TestOpenStep_CreateFailureIsFatal(t *testing.T) {
	log, _ := test.NewNullLogger()
	tr := NewTree(log, TreeConfig{})
	base := t.TempDir()

	tc := tr.OpenTest(1, "Blocked", base)

	// A regular file where the test directory should be.
	require.NoError(t, os.WriteFile(tc.Dir, []byte("x"), 0o644))

	_, err := tr.OpenStep("Run", tc)
	require.Error(t, err)

	var fatal *FatalError

	require.True(t, errors.As(err, &fatal))
	assert.Equal(t, DirectoryCreateFailure, fatal.Kind)
	assert.Equal(t, ExitTestCaseException, ExitCode(err))
}

func TestCloseStep_Codes(t *testing.T) {
	log, _ := test.NewNullLogger()
	tr := NewTree(log, TreeConfig{})

	for _, code := range []int{0, 1, 2, 255, -1, -9} {
		want := 1
		if code == 0 {
			want = 0
		}

		assert.Equal(t, want, tr.CloseStep(&Step{Code: code, Start: time.Now()}), "code %d", code)
	}
}

func TestCloseTest(t *testing.T) {
	log, hook := test.NewNullLogger()
	tr := NewTree(log, TreeConfig{})

	assert.Equal(t, 0, tr.CloseTest(&Test{Number: 1, Start: time.Now()}))
	assert.Equal(t, "Test PASSED", hook.LastEntry().Message)

	assert.Equal(t, 1, tr.CloseTest(&Test{Number: 2, Errors: 3, Start: time.Now()}))
	assert.Equal(t, "Test FAILED", hook.LastEntry().Message)

	// A negative count is still a failure.
	assert.Equal(t, 1, tr.CloseTest(&Test{Number: 3, Errors: -1, Start: time.Now()}))
}

func TestRecorder(t *testing.T) {
	log, _ := test.NewNullLogger()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := NewRecorder(start)
	tr := NewTree(log, TreeConfig{Recorder: rec, Now: fixedClock(start, time.Second)})
	dir := t.TempDir()

	tc := tr.OpenTest(1, "Info", dir)
	step, err := tr.OpenStep("Read", tc)
	require.NoError(t, err)

	step.Code = 4
	tc.AddErrors(tr.CloseStep(step))
	tr.CloseTest(tc)

	passed := tr.OpenTest(2, "Empty", dir)
	tr.CloseTest(passed)

	res, err := rec.Finish(dir, start.Add(time.Minute), nil)
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Tests, 2)
	assert.False(t, res.Tests[0].Passed)
	require.Len(t, res.Tests[0].Steps, 1)
	assert.Equal(t, 4, res.Tests[0].Steps[0].Code)
	assert.Equal(t, int64(1000), res.Tests[0].Steps[0].DurationMS)
	assert.True(t, res.Tests[1].Passed)
	assert.Empty(t, res.Tests[1].Steps)

	data, err := os.ReadFile(filepath.Join(dir, ResultFileName))
	require.NoError(t, err)

	var decoded RunResult

	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, res.ID, decoded.ID)
	assert.Len(t, decoded.Tests, 2)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
	assert.Equal(t, ExitTestCaseException, ExitCode(fmt.Errorf("wrapped: %w",
		NewFatal(CollectorEarlyExit, errors.New("gone")))))
}
