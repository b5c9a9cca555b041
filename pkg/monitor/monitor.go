package monitor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethpandaops/checkoor/pkg/process"
	"github.com/ethpandaops/checkoor/pkg/results"
	"github.com/ethpandaops/checkoor/pkg/telemetry"
	"github.com/sirupsen/logrus"
)

// Defaults for Config.
const (
	DefaultCaptureFile = "read.summary.json"
	DefaultTableFile   = "monitor.csv"
	DefaultStopTimeout = 10 * time.Second
)

var (
	// ErrNotStarted is returned by Stop on a monitor that is not running.
	ErrNotStarted = errors.New("monitor not running")
	// ErrAlreadyStarted is returned by Start on a used monitor.
	ErrAlreadyStarted = errors.New("monitor already started")
	// ErrStopFailed is returned by Stop when the collector died early, could
	// not be signalled or did not exit in time.
	ErrStopFailed = errors.New("collector stop failed")
)

// State is the lifecycle state of a Monitor.
type State int

const (
	NotStarted State = iota
	Starting
	Running
	StopRequested
	Stopped
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case StopRequested:
		return "stop_requested"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Monitor runs a telemetry collector in the background while foreground
// load runs, then stops it and reduces what it captured. A Monitor is
// single use.
type Monitor interface {
	// Start spawns the collector in dir and waits up to grace. The collector
	// must still be running when the grace window ends; a spawn failure or an
	// exit inside the window is returned as a *results.FatalError.
	Start(ctx context.Context, argv []string, dir string, grace time.Duration) (*process.Handle, error)

	// Stop asks the collector to exit and reduces its capture file. The
	// collector is never killed. The summary is returned whenever the capture
	// could be reduced, even if the stop itself failed.
	Stop(ctx context.Context) (*telemetry.ThermalSummary, error)

	// State returns the current lifecycle state.
	State() State
}

// Config configures a Monitor.
type Config struct {
	// CaptureFile is the collector's sample file inside the monitor dir.
	CaptureFile string
	// TableFile is the detail table written inside the monitor dir.
	TableFile string
	// StopTimeout bounds the wait after the graceful stop request.
	StopTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.CaptureFile == "" {
		c.CaptureFile = DefaultCaptureFile
	}

	if c.TableFile == "" {
		c.TableFile = DefaultTableFile
	}

	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
}

// NewMonitor creates a new background monitor.
func NewMonitor(
	log logrus.FieldLogger,
	runner process.Runner,
	reducer telemetry.Reducer,
	cfg Config,
) Monitor {
	cfg.applyDefaults()

	return &monitor{
		log:     log.WithField("component", "monitor"),
		runner:  runner,
		reducer: reducer,
		cfg:     cfg,
	}
}

type monitor struct {
	log     logrus.FieldLogger
	runner  process.Runner
	reducer telemetry.Reducer
	cfg     Config

	mu     sync.Mutex
	state  State
	handle *process.Handle
	dir    string
}

// Ensure interface compliance.
var _ Monitor = (*monitor)(nil)

// Start implements Monitor.
func (m *monitor) Start(
	ctx context.Context,
	argv []string,
	dir string,
	grace time.Duration,
) (*process.Handle, error) {
	m.mu.Lock()

	if m.state != NotStarted {
		state := m.state
		m.mu.Unlock()

		return nil, fmt.Errorf("%w (state %s)", ErrAlreadyStarted, state)
	}

	m.state = Starting
	m.mu.Unlock()

	h, err := m.startCollector(ctx, argv, dir, grace)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.state = NotStarted

		return nil, err
	}

	m.state = Running
	m.handle = h
	m.dir = dir

	m.log.WithField("pid", h.Pid()).Info("Collector running")

	return h, nil
}

// startCollector spawns the collector and waits out the grace window
// without holding the lock.
func (m *monitor) startCollector(
	ctx context.Context,
	argv []string,
	dir string,
	grace time.Duration,
) (*process.Handle, error) {
	h, err := m.runner.StartAsync(argv, dir)
	if err != nil {
		return nil, results.NewFatal(results.ProcessSpawnFailure, fmt.Errorf("starting collector: %w", err))
	}

	log := m.log.WithField("pid", h.Pid())
	log.WithField("grace", grace).Info("Collector started, waiting for grace window")

	exited := false
	if grace > 0 {
		exited = h.WaitTimeout(ctx, grace)
	} else {
		_, exited = h.Exited()
	}

	if exited {
		code, _ := h.Exited()

		return nil, results.NewFatal(results.CollectorEarlyExit,
			fmt.Errorf("collector exited with code %d during the grace window", code))
	}

	if err := ctx.Err(); err != nil {
		if killErr := m.runner.Supervisor().ForceTerminate(h); killErr != nil {
			log.WithError(killErr).Warn("Failed to terminate collector")
		}

		return nil, fmt.Errorf("waiting for collector grace window: %w", err)
	}

	return h, nil
}

// Stop implements Monitor.
func (m *monitor) Stop(ctx context.Context) (*telemetry.ThermalSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Running {
		return nil, fmt.Errorf("%w (state %s)", ErrNotStarted, m.state)
	}

	log := m.log.WithField("pid", m.handle.Pid())

	var failures []string

	if code, exited := m.handle.Exited(); exited {
		log.WithField("exit_code", code).Error("Collector exited before it was stopped")

		failures = append(failures, "exited early")
	} else {
		m.state = StopRequested

		if err := m.runner.Supervisor().RequestGracefulStop(m.handle); err != nil {
			log.WithError(err).Error("Failed to signal collector")

			failures = append(failures, "signal failed")
		} else if !m.handle.WaitTimeout(context.WithoutCancel(ctx), m.cfg.StopTimeout) {
			log.WithField("timeout", m.cfg.StopTimeout).Error("Collector did not exit after stop request")

			failures = append(failures, "did not exit")
		}
	}

	m.state = Stopped

	summary, err := m.reducer.ReduceMonitor(
		filepath.Join(m.dir, m.cfg.CaptureFile),
		filepath.Join(m.dir, m.cfg.TableFile),
	)
	if err != nil {
		log.WithError(err).Error("Failed to reduce collector capture")

		return nil, fmt.Errorf("reducing collector capture: %w", err)
	}

	if len(failures) > 0 {
		return summary, fmt.Errorf("%w: %v", ErrStopFailed, failures)
	}

	log.Info("Collector stopped")

	return summary, nil
}

// State implements Monitor.
func (m *monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}
