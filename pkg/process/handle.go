package process

import (
	"context"
	"errors"
	"os/exec"
	"time"
)

// Handle is a started external process. A background waiter reaps the
// process so that exit can be polled and awaited with a deadline.
type Handle struct {
	cmd   *exec.Cmd
	argv  []string
	start time.Time

	done     chan struct{}
	exitCode int
	waitErr  error
}

func newHandle(cmd *exec.Cmd, argv []string, start time.Time) *Handle {
	h := &Handle{
		cmd:   cmd,
		argv:  argv,
		start: start,
		done:  make(chan struct{}),
	}

	go func() {
		err := cmd.Wait()
		h.exitCode, h.waitErr = exitCodeFromErr(err)

		close(h.done)
	}()

	return h
}

// Pid returns the OS process ID.
func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// Name returns the executable the process was started from.
func (h *Handle) Name() string {
	return h.argv[0]
}

// StartTime returns when the process was started.
func (h *Handle) StartTime() time.Time {
	return h.start
}

// Done is closed once the process has exited and been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Exited reports the exit code without blocking. ok is false while the
// process is still running.
func (h *Handle) Exited() (code int, ok bool) {
	select {
	case <-h.done:
		return h.exitCode, true
	default:
		return 0, false
	}
}

// WaitTimeout blocks until the process exits, timeout elapses or ctx is
// done. It reports whether the process exited. A timeout of zero waits
// without a deadline.
func (h *Handle) WaitTimeout(ctx context.Context, timeout time.Duration) bool {
	var expired <-chan time.Time

	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		expired = timer.C
	}

	select {
	case <-h.done:
		return true
	case <-expired:
		return false
	case <-ctx.Done():
		return false
	}
}

// exitCodeFromErr maps the result of cmd.Wait to an exit code. A process
// killed by a signal has no exit status and is reported as 1.
func exitCodeFromErr(err error) (int, error) {
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code, err
		}

		return 1, err
	}

	return 1, err
}
