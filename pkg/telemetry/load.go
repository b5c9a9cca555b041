package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
)

// nsPerMS converts load tool latency (ns) to milliseconds.
const nsPerMS = 1e6

// ErrNoJobs is returned for a load result file without job entries.
var ErrNoJobs = errors.New("no jobs in load result")

// loadResult is the subset of the load tool's JSON output that is reduced.
type loadResult struct {
	Jobs []loadJob `json:"jobs"`
}

type loadJob struct {
	Name    string        `json:"jobname"`
	Options loadJobOpts   `json:"job options"`
	Read    loadDirection `json:"read"`
	Write   loadDirection `json:"write"`
}

type loadJobOpts struct {
	// Runtime is the configured run time in seconds.
	Runtime Value `json:"runtime"`
}

type loadDirection struct {
	IOBytes float64 `json:"io_bytes"`
	// RuntimeMS is the time spent in this direction in milliseconds.
	RuntimeMS float64     `json:"runtime"`
	LatencyNS loadLatency `json:"lat_ns"`
}

type loadLatency struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
	N    int     `json:"N"`
}

// LoadFileResult is the reduction of one load result file.
type LoadFileResult struct {
	Path           string  `json:"path"`
	ReadGB         float64 `json:"read_gb"`
	WrittenGB      float64 `json:"written_gb"`
	ReadGBps       float64 `json:"read_gbps"`
	WriteGBps      float64 `json:"write_gbps"`
	RuntimeSeconds int64   `json:"runtime_sec"`
}

// LoadTotals sums every reduced load result file.
type LoadTotals struct {
	Files          []LoadFileResult `json:"files"`
	ReadGB         float64          `json:"read_gb"`
	WrittenGB      float64          `json:"written_gb"`
	RuntimeSeconds int64            `json:"runtime_sec"`
	// Grand throughput over the summed run time, zero when no run time.
	ReadGBps  float64 `json:"read_gbps"`
	WriteGBps float64 `json:"write_gbps"`
}

func readLoadResult(path string) (*loadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading load result: %w", err)
	}

	var res loadResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parsing load result %s: %w", path, err)
	}

	if len(res.Jobs) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoJobs)
	}

	return &res, nil
}

// gbPerSecond returns gb over runtimeMS, or zero for a zero run time.
func gbPerSecond(gb, runtimeMS float64) float64 {
	if runtimeMS == 0 {
		return 0
	}

	return gb / (runtimeMS / 1000)
}

// reduceLoadFile sums every job of one result file.
func reduceLoadFile(path string, res *loadResult) LoadFileResult {
	out := LoadFileResult{Path: path}

	for _, job := range res.Jobs {
		readGB := job.Read.IOBytes / units.GB
		writtenGB := job.Write.IOBytes / units.GB

		out.ReadGB += readGB
		out.WrittenGB += writtenGB
		out.ReadGBps += gbPerSecond(readGB, job.Read.RuntimeMS)
		out.WriteGBps += gbPerSecond(writtenGB, job.Write.RuntimeMS)
	}

	// An unset job option runtime is an untimed job.
	if rt, err := res.Jobs[0].Options.Runtime.Int(); err == nil {
		out.RuntimeSeconds = rt
	}

	return out
}

// ReduceLoadResults implements Reducer.
func (r *reducer) ReduceLoadResults(paths []string) (*LoadTotals, error) {
	totals := &LoadTotals{Files: make([]LoadFileResult, 0, len(paths))}

	for _, path := range paths {
		res, err := readLoadResult(path)
		if err != nil {
			return nil, err
		}

		file := reduceLoadFile(path, res)

		r.log.WithFields(logrus.Fields{
			"file":        path,
			"read_gb":     formatFixed(file.ReadGB),
			"read_gbps":   formatFixed(file.ReadGBps),
			"written_gb":  formatFixed(file.WrittenGB),
			"write_gbps":  formatFixed(file.WriteGBps),
			"runtime_sec": file.RuntimeSeconds,
		}).Info("Load result")

		totals.Files = append(totals.Files, file)
		totals.ReadGB += file.ReadGB
		totals.WrittenGB += file.WrittenGB
		totals.RuntimeSeconds += file.RuntimeSeconds
	}

	if totals.RuntimeSeconds > 0 {
		totals.ReadGBps = totals.ReadGB / float64(totals.RuntimeSeconds)
		totals.WriteGBps = totals.WrittenGB / float64(totals.RuntimeSeconds)
	}

	r.log.WithFields(logrus.Fields{
		"files":       len(totals.Files),
		"read_gb":     formatFixed(totals.ReadGB),
		"written_gb":  formatFixed(totals.WrittenGB),
		"runtime_sec": totals.RuntimeSeconds,
		"runtime_min": formatFixed(float64(totals.RuntimeSeconds) / 60),
	}).Info("Load totals")

	return totals, nil
}

// ReadLatency implements Reducer.
func (r *reducer) ReadLatency(path string) (*SeriesStats, error) {
	res, err := readLoadResult(path)
	if err != nil {
		return nil, err
	}

	lat := res.Jobs[0].Read.LatencyNS

	return &SeriesStats{
		Name:  res.Jobs[0].Name,
		Count: lat.N,
		Min:   lat.Min / nsPerMS,
		Max:   lat.Max / nsPerMS,
		Avg:   lat.Mean / nsPerMS,
	}, nil
}
