package results

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethpandaops/checkoor/pkg/fsutil"
	"github.com/sirupsen/logrus"
)

// defaultDirLayout timestamps a test directory when no base dir is given.
const defaultDirLayout = "20060102_150405"

// Test is one numbered test of a run.
//
// Errors is never updated automatically. The caller adds the result of
// every CloseStep (and any other failure) with AddErrors; CloseTest only
// reports what was accumulated.
type Test struct {
	Number int
	Name   string
	Dir    string
	Errors int
	Start  time.Time

	steps int
}

// AddErrors accumulates failures into the test.
func (t *Test) AddErrors(n int) {
	t.Errors += n
}

// Steps returns how many steps have been opened on the test.
func (t *Test) Steps() int {
	return t.steps
}

// Step is one step of a test. Its directory lives under the test directory
// and is named Step<seq>-<name>.
type Step struct {
	Seq   int
	Name  string
	Dir   string
	Code  int
	Start time.Time

	test *Test
}

// Test returns the owning test.
func (s *Step) Test() *Test {
	return s.test
}

// Tree opens and closes tests and steps.
type Tree interface {
	// OpenTest derives the test directory. The directory is not created.
	OpenTest(number int, name, baseDir string) *Test
	// CloseTest returns 1 if the test accumulated errors, 0 otherwise.
	CloseTest(t *Test) int
	// OpenStep creates the next step directory of t. A creation failure is
	// returned as a *FatalError.
	OpenStep(name string, t *Test) (*Step, error)
	// CloseStep returns 1 if the step code is nonzero, 0 otherwise.
	CloseStep(s *Step) int
}

// TreeConfig configures a Tree.
type TreeConfig struct {
	// Owner is applied to created directories (optional).
	Owner *fsutil.OwnerConfig
	// Recorder receives closed tests and steps (optional).
	Recorder *Recorder
	// Now overrides the clock (optional).
	Now func() time.Time
}

// NewTree creates a new result tree.
func NewTree(log logrus.FieldLogger, cfg TreeConfig) Tree {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &tree{
		log:      log.WithField("component", "results"),
		owner:    cfg.Owner,
		recorder: cfg.Recorder,
		now:      now,
	}
}

type tree struct {
	log      logrus.FieldLogger
	owner    *fsutil.OwnerConfig
	recorder *Recorder
	now      func() time.Time
}

// Ensure interface compliance.
var _ Tree = (*tree)(nil)

// OpenTest implements Tree.
func (tr *tree) OpenTest(number int, name, baseDir string) *Test {
	start := tr.now()
	dirName := fmt.Sprintf("Test%d-%s", number, name)

	var dir string
	if baseDir == "" {
		dir = filepath.Join(".", dirName, start.Format(defaultDirLayout))
	} else {
		dir = filepath.Join(absPath(baseDir), dirName)
	}

	t := &Test{
		Number: number,
		Name:   name,
		Dir:    dir,
		Start:  start,
	}

	tr.log.WithFields(logrus.Fields{
		"test": number,
		"name": name,
		"dir":  dir,
	}).Info("Test started")

	return t
}

// CloseTest implements Tree.
func (tr *tree) CloseTest(t *Test) int {
	log := tr.log.WithFields(logrus.Fields{
		"test":     t.Number,
		"name":     t.Name,
		"errors":   t.Errors,
		"duration": tr.now().Sub(t.Start).Round(time.Millisecond),
	})

	result := 0

	if t.Errors != 0 {
		result = 1

		log.Error("Test FAILED")
	} else {
		log.Info("Test PASSED")
	}

	if tr.recorder != nil {
		tr.recorder.RecordTest(t, tr.now())
	}

	return result
}

// OpenStep implements Tree.
func (tr *tree) OpenStep(name string, t *Test) (*Step, error) {
	t.steps++

	s := &Step{
		Seq:   t.steps,
		Name:  name,
		Dir:   filepath.Join(absPath(t.Dir), fmt.Sprintf("Step%d-%s", t.steps, name)),
		Start: tr.now(),
		test:  t,
	}

	if err := fsutil.EnsureDir(s.Dir, tr.owner); err != nil {
		return nil, NewFatal(DirectoryCreateFailure, fmt.Errorf("creating step directory: %w", err))
	}

	tr.log.WithFields(logrus.Fields{
		"test": t.Number,
		"step": s.Seq,
		"name": name,
	}).Info("Step started")

	return s, nil
}

// CloseStep implements Tree.
func (tr *tree) CloseStep(s *Step) int {
	elapsed := tr.now().Sub(s.Start)

	log := tr.log.WithFields(logrus.Fields{
		"step":     s.Seq,
		"name":     s.Name,
		"code":     s.Code,
		"duration": elapsed.Round(time.Millisecond),
	})

	result := 0

	if s.Code != 0 {
		result = 1

		log.Warn("Step failed")
	} else {
		log.Info("Step completed")
	}

	if tr.recorder != nil {
		tr.recorder.RecordStep(s, elapsed)
	}

	return result
}

// absPath returns the absolute form of path, or path itself if the working
// directory cannot be resolved.
func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	return abs
}
