package checkout

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethpandaops/checkoor/pkg/tools"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) runSelfTest(t *testing.T) (int, error) {
	t.Helper()

	log, _ := test.NewNullLogger()

	return NewSelfTest(log, f.cfg, f.deps).Run(context.Background())
}

func TestSelfTest_Steps(t *testing.T) {
	f := newFixture(t)
	f.cfg.Checkout.SelfTestTimeout = 120 * time.Second

	errs, err := f.runSelfTest(t)
	require.NoError(t, err)
	assert.Zero(t, errs)

	require.Len(t, f.runner.calls, 3)

	readInfo := f.path("Test1-"+SelfTestName, "Step1-Read-Info")
	runSelfTest := f.path("Test1-"+SelfTestName, "Step2-Run-Self-Test")
	verifyInfo := f.path("Test1-"+SelfTestName, "Step3-Verify-Info")

	assert.Equal(t, []string{
		fakeReader, "/res/read.cmd.json", "--dir", readInfo,
		"--rules", "/res/default.rules.json", "--nvme", "2",
	}, f.runner.calls[0].argv)

	assert.Equal(t, []string{
		fakeReader, "/res/self-test.cmd.json", "--dir", runSelfTest, "--nvme", "2",
	}, f.runner.calls[1].argv)
	assert.Equal(t, 120*time.Second, f.runner.calls[1].timeout)
	assert.Equal(t, runSelfTest, f.runner.calls[1].dir)

	// The second read compares against the info file of the first.
	assert.Equal(t, []string{
		fakeReader, "/res/read.cmd.json", "--dir", verifyInfo,
		"--rules", "/res/default.rules.json",
		"--compare", filepath.Join(readInfo, tools.InfoFile),
		"--nvme", "2",
	}, f.runner.calls[2].argv)
	assert.FileExists(t, filepath.Join(readInfo, tools.InfoFile))
}

func TestSelfTest_ReturnsStepErrors(t *testing.T) {
	tests := []struct {
		name  string
		codes map[string]int
		want  int
	}{
		{name: "pass", want: 0},
		{name: "self-test fails", codes: map[string]int{tools.SelfTestCmd: 1}, want: 1},
		{name: "both reads fail", codes: map[string]int{tools.ReadCmd: 3}, want: 2},
		{name: "every step fails", codes: map[string]int{tools.ReadCmd: 1, tools.SelfTestCmd: 1}, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.cfg.Checkout.SelfTestTimeout = time.Second

			for cmd, code := range tt.codes {
				f.runner.codes[cmd] = code
			}

			errs, err := f.runSelfTest(t)
			require.NoError(t, err)
			assert.Equal(t, tt.want, errs)

			// Failed steps do not stop the workflow.
			assert.Len(t, f.runner.calls, 3)
		})
	}
}

func TestSelfTest_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.cfg.Checkout.SelfTestTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	log, _ := test.NewNullLogger()

	_, err := NewSelfTest(log, f.cfg, f.deps).Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Len(t, f.runner.calls, 2)
}
