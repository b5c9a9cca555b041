package results

import (
	"errors"
	"fmt"
)

// ExitTestCaseException is the process exit status of a run aborted by a
// fatal condition.
const ExitTestCaseException = 2

// FatalKind enumerates the conditions that abort the whole run.
type FatalKind string

const (
	ProcessSpawnFailure    FatalKind = "process_spawn_failure"
	DirectoryCreateFailure FatalKind = "directory_create_failure"
	CollectorEarlyExit     FatalKind = "collector_early_exit"
)

// FatalError aborts the run. It is returned up to main unchanged.
type FatalError struct {
	Kind FatalKind
	Code int
	Err  error
}

// NewFatal wraps err as a fatal condition of the given kind.
func NewFatal(kind FatalKind, err error) *FatalError {
	return &FatalError{Kind: kind, Code: ExitTestCaseException, Err: err}
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal %s: %v", e.Kind, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// ExitCode maps an error reaching the top level to a process exit status:
// 0 for nil, the fatal code for a FatalError and 1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var fatal *FatalError
	if errors.As(err, &fatal) {
		return fatal.Code
	}

	return 1
}
