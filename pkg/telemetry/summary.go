package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// Parameter names used by the reader tool in sample series entries.
const (
	ParamTimestamp            = "timestamp"
	ParamRunTime              = "run time"
	ParamCompositeTemperature = "Composite Temperature"
	ParamTMT1Time             = "Thermal Management Temperature 1 Time"
	ParamTMT2Time             = "Thermal Management Temperature 2 Time"
	ParamWarningTime          = "Warning Composite Temperature Time"
	ParamCriticalTime         = "Critical Composite Temperature Time"
	ParamDataRead             = "Data Read"
	ParamDataWritten          = "Data Written"
	ParamBusyTime             = "Controller Busy Time"
)

// SampleTimestampLayout is the layout of the sample timestamp field.
const SampleTimestampLayout = "2006-01-02 15:04:05.999999"

// ErrNoSamples is returned when a capture file has no sample entries.
var ErrNoSamples = errors.New("no samples in capture")

// ErrInvalidInterval is returned when the recorded sample interval is not
// positive.
var ErrInvalidInterval = errors.New("invalid sample interval")

// Capture is the summary file written by the reader tool. It holds the
// sample series, the admin command record series and the read settings.
type Capture struct {
	Settings struct {
		Read struct {
			IntervalMS Value `json:"interval in ms"`
		} `json:"read"`
	} `json:"_settings"`
	ReadDetails struct {
		Samples []map[string]any `json:"sample"`
	} `json:"read details"`
	CommandTimes []CommandRecord `json:"command times"`
}

// CommandRecord is one timed admin command.
type CommandRecord struct {
	Timestamp     string `json:"timestamp"`
	Command       string `json:"admin command"`
	DurationMS    Value  `json:"time in ms"`
	ReturnCode    Value  `json:"return code"`
	BytesReturned Value  `json:"bytes returned"`
}

// Sample is one entry of the collector's sample series.
type Sample struct {
	Timestamp            string  `mapstructure:"timestamp"`
	CompositeTemperature int64   `mapstructure:"Composite Temperature"`
	TMT1Time             int64   `mapstructure:"Thermal Management Temperature 1 Time"`
	TMT2Time             int64   `mapstructure:"Thermal Management Temperature 2 Time"`
	WarningTime          int64   `mapstructure:"Warning Composite Temperature Time"`
	CriticalTime         int64   `mapstructure:"Critical Composite Temperature Time"`
	DataRead             float64 `mapstructure:"Data Read"`
	DataWritten          float64 `mapstructure:"Data Written"`
	BusyTime             int64   `mapstructure:"Controller Busy Time"`
}

var requiredSampleParams = []string{
	ParamTimestamp,
	ParamCompositeTemperature,
	ParamTMT1Time,
	ParamTMT2Time,
	ParamWarningTime,
	ParamCriticalTime,
	ParamDataRead,
	ParamDataWritten,
	ParamBusyTime,
}

// LoadCapture reads and decodes a reader tool summary file.
func LoadCapture(path string) (*Capture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading capture file: %w", err)
	}

	var c Capture
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing capture file %s: %w", path, err)
	}

	return &c, nil
}

// Interval returns the sample interval recorded in the settings.
func (c *Capture) Interval() (time.Duration, error) {
	ms, err := c.Settings.Read.IntervalMS.Float()
	if err != nil {
		return 0, fmt.Errorf("reading sample interval: %w", err)
	}

	if ms <= 0 {
		return 0, fmt.Errorf("%w: %v ms", ErrInvalidInterval, ms)
	}

	return time.Duration(ms * float64(time.Millisecond)), nil
}

// Samples decodes the sample series into typed samples.
func (c *Capture) Samples() ([]Sample, error) {
	if len(c.ReadDetails.Samples) == 0 {
		return nil, ErrNoSamples
	}

	samples := make([]Sample, 0, len(c.ReadDetails.Samples))

	for i, raw := range c.ReadDetails.Samples {
		var s Sample
		if err := DecodeParameters(raw, &s, requiredSampleParams...); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}

		samples = append(samples, s)
	}

	return samples, nil
}

// SampleTimes returns the parsed timestamp and the run time (ms) of every
// sample. Used for verbose timing reports.
func (c *Capture) SampleTimes() ([]time.Time, []float64, error) {
	times := make([]time.Time, 0, len(c.ReadDetails.Samples))
	runTimes := make([]float64, 0, len(c.ReadDetails.Samples))

	for i, raw := range c.ReadDetails.Samples {
		var entry struct {
			Timestamp string  `mapstructure:"timestamp"`
			RunTimeMS float64 `mapstructure:"run time"`
		}

		if err := DecodeParameters(raw, &entry, ParamTimestamp, ParamRunTime); err != nil {
			return nil, nil, fmt.Errorf("sample %d: %w", i, err)
		}

		ts, err := time.Parse(SampleTimestampLayout, entry.Timestamp)
		if err != nil {
			return nil, nil, fmt.Errorf("sample %d: parsing timestamp: %w", i, err)
		}

		times = append(times, ts)
		runTimes = append(runTimes, entry.RunTimeMS)
	}

	return times, runTimes, nil
}
