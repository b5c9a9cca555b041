//go:build windows

package process

import (
	"fmt"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/windows"
)

// configure starts the process as a new console process group, the only
// target CTRL_BREAK can be delivered to.
func configure(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP,
	}
}

func newSupervisor() Supervisor {
	return &consoleSignaller{}
}

type consoleSignaller struct{}

// Ensure interface compliance.
var _ Supervisor = (*consoleSignaller)(nil)

// RequestGracefulStop sends CTRL_BREAK to the process group.
func (s *consoleSignaller) RequestGracefulStop(h *Handle) error {
	if err := windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(h.Pid())); err != nil {
		return fmt.Errorf("sending ctrl-break to %d: %w", h.Pid(), err)
	}

	return nil
}

// ForceTerminate kills the process tree, falling back to the root process.
func (s *consoleSignaller) ForceTerminate(h *Handle) error {
	//nolint:gosec // The pid is our own child.
	tree := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(h.Pid()))
	if err := tree.Run(); err == nil {
		return nil
	}

	if _, exited := h.Exited(); exited {
		return nil
	}

	if err := h.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("killing process %d: %w", h.Pid(), err)
	}

	return nil
}
