package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrEmptyCommand is returned when an empty argument vector is started.
var ErrEmptyCommand = errors.New("empty command")

// reapTimeout bounds the wait for a force terminated process to exit.
var reapTimeout = 5 * time.Second

// Runner executes external tools with bounded waits. Standard streams of
// every process are discarded.
type Runner interface {
	// Run starts argv in dir and blocks until it exits. On timeout the
	// process group is force terminated. Any failure, including a start
	// failure or a timeout, returns 1; otherwise the exit code is returned.
	Run(ctx context.Context, argv []string, dir string, timeout time.Duration) int

	// StartAsync starts argv in dir without waiting for it.
	StartAsync(argv []string, dir string) (*Handle, error)

	// Verify waits on an already started process. An expired wait returns 1
	// and leaves the process running.
	Verify(ctx context.Context, h *Handle, timeout time.Duration) int

	// Supervisor returns the signalling backend used for the processes.
	Supervisor() Supervisor
}

// NewRunner creates a new process runner.
func NewRunner(log logrus.FieldLogger) Runner {
	return &runner{
		log:        log.WithField("component", "process"),
		supervisor: newSupervisor(),
	}
}

type runner struct {
	log        logrus.FieldLogger
	supervisor Supervisor
}

// Ensure interface compliance.
var _ Runner = (*runner)(nil)

// Run implements Runner.
func (r *runner) Run(ctx context.Context, argv []string, dir string, timeout time.Duration) int {
	h, err := r.StartAsync(argv, dir)
	if err != nil {
		r.log.WithError(err).Error("Failed to run process")

		return 1
	}

	log := r.log.WithFields(logrus.Fields{
		"process": h.Name(),
		"pid":     h.Pid(),
	})

	if h.WaitTimeout(ctx, timeout) {
		return r.finished(log, h)
	}

	if ctx.Err() != nil {
		log.Warn("Run cancelled, force terminating process")
	} else {
		log.WithField("timeout", timeout).Error("Process timed out, force terminating")
	}

	if err := r.supervisor.ForceTerminate(h); err != nil {
		log.WithError(err).Error("Failed to force terminate process")

		return 1
	}

	select {
	case <-h.Done():
	case <-time.After(reapTimeout):
		log.WithField("timeout", reapTimeout).Warn("Process not reaped after force terminate")
	}

	return 1
}

// StartAsync implements Runner.
func (r *runner) StartAsync(argv []string, dir string) (*Handle, error) {
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}

	//nolint:gosec // Tool paths and arguments come from the harness configuration.
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	configure(cmd)

	r.log.WithFields(logrus.Fields{
		"argv": argv,
		"dir":  dir,
	}).Debug("Starting process")

	start := time.Now()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", argv[0], err)
	}

	return newHandle(cmd, argv, start), nil
}

// Verify implements Runner.
func (r *runner) Verify(ctx context.Context, h *Handle, timeout time.Duration) int {
	log := r.log.WithFields(logrus.Fields{
		"process": h.Name(),
		"pid":     h.Pid(),
	})

	if !h.WaitTimeout(ctx, timeout) {
		log.WithField("timeout", timeout).Warn("Wait for process expired")

		return 1
	}

	return r.finished(log, h)
}

// Supervisor implements Runner.
func (r *runner) Supervisor() Supervisor {
	return r.supervisor
}

func (r *runner) finished(log logrus.FieldLogger, h *Handle) int {
	code, _ := h.Exited()

	log = log.WithFields(logrus.Fields{
		"exit_code": code,
		"duration":  time.Since(h.StartTime()).Round(time.Millisecond),
	})

	if code != 0 {
		log.WithError(h.waitErr).Warn("Process exited with nonzero status")
	} else {
		log.Debug("Process completed")
	}

	return code
}
