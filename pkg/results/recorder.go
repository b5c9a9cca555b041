package results

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethpandaops/checkoor/pkg/fsutil"
	"github.com/google/uuid"
)

// ResultFileName is the run summary written into the run directory.
const ResultFileName = "results.json"

// RunResult is the persisted summary of one run.
type RunResult struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Failed     int           `json:"failed_tests"`
	Tests      []*TestResult `json:"tests"`
}

// TestResult is one closed test.
type TestResult struct {
	Number     int           `json:"number"`
	Name       string        `json:"name"`
	Dir        string        `json:"dir"`
	Errors     int           `json:"errors"`
	Passed     bool          `json:"passed"`
	StartedAt  time.Time     `json:"started_at"`
	DurationMS int64         `json:"duration_ms"`
	Steps      []*StepResult `json:"steps"`
}

// StepResult is one closed step.
type StepResult struct {
	Seq        int    `json:"seq"`
	Name       string `json:"name"`
	Dir        string `json:"dir"`
	Code       int    `json:"code"`
	DurationMS int64  `json:"duration_ms"`
}

// Recorder collects closed tests and steps of a run.
type Recorder struct {
	mu      sync.Mutex
	result  RunResult
	pending map[*Test][]*StepResult
}

// NewRecorder creates a recorder for a run starting now.
func NewRecorder(start time.Time) *Recorder {
	return &Recorder{
		result: RunResult{
			ID:        uuid.New().String(),
			StartedAt: start,
			Tests:     make([]*TestResult, 0, 16),
		},
		pending: make(map[*Test][]*StepResult, 1),
	}
}

// RecordStep records a closed step under its test.
func (r *Recorder) RecordStep(s *Step, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending[s.test] = append(r.pending[s.test], &StepResult{
		Seq:        s.Seq,
		Name:       s.Name,
		Dir:        s.Dir,
		Code:       s.Code,
		DurationMS: elapsed.Milliseconds(),
	})
}

// RecordTest records a closed test with the steps recorded for it.
func (r *Recorder) RecordTest(t *Test, end time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	steps := r.pending[t]
	delete(r.pending, t)

	if steps == nil {
		steps = []*StepResult{}
	}

	r.result.Tests = append(r.result.Tests, &TestResult{
		Number:     t.Number,
		Name:       t.Name,
		Dir:        t.Dir,
		Errors:     t.Errors,
		Passed:     t.Errors == 0,
		StartedAt:  t.Start,
		DurationMS: end.Sub(t.Start).Milliseconds(),
		Steps:      steps,
	})

	if t.Errors != 0 {
		r.result.Failed++
	}
}

// Result returns a copy of the collected run result.
func (r *Recorder) Result() RunResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := r.result
	res.Tests = append([]*TestResult(nil), r.result.Tests...)

	return res
}

// Finish stamps the run end time and writes results.json into dir.
func (r *Recorder) Finish(dir string, end time.Time, owner *fsutil.OwnerConfig) (*RunResult, error) {
	r.mu.Lock()
	r.result.FinishedAt = end
	r.mu.Unlock()

	res := r.Result()

	data, err := json.MarshalIndent(&res, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling run result: %w", err)
	}

	if err := fsutil.WriteFile(filepath.Join(dir, ResultFileName), data, 0o644, owner); err != nil {
		return nil, fmt.Errorf("writing %s: %w", ResultFileName, err)
	}

	return &res, nil
}
