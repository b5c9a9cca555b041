//go:build !windows

package process

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
)

// configure starts the process in its own group so that signals reach the
// tool and everything it spawned.
func configure(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func newSupervisor() Supervisor {
	return &groupSignaller{}
}

// groupSignaller signals the negative pid, i.e. the whole process group.
type groupSignaller struct{}

// Ensure interface compliance.
var _ Supervisor = (*groupSignaller)(nil)

// RequestGracefulStop sends SIGINT, the same signal as a terminal ctrl-c.
func (s *groupSignaller) RequestGracefulStop(h *Handle) error {
	if err := syscall.Kill(-h.Pid(), syscall.SIGINT); err != nil {
		return fmt.Errorf("interrupting process group %d: %w", h.Pid(), err)
	}

	return nil
}

// ForceTerminate sends SIGKILL. A group that is already gone is not an error.
func (s *groupSignaller) ForceTerminate(h *Handle) error {
	err := syscall.Kill(-h.Pid(), syscall.SIGKILL)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}

	return fmt.Errorf("killing process group %d: %w", h.Pid(), err)
}
