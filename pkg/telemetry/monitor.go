package telemetry

import (
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// ThermalSummary is the reduction of one collector run. Deltas are taken
// between the first and the last sample.
type ThermalSummary struct {
	Samples          int     `json:"samples"`
	MaxTemperature   int64   `json:"max_temperature_c"`
	TMT1Delta        int64   `json:"tmt1_delta_sec"`
	TMT2Delta        int64   `json:"tmt2_delta_sec"`
	WarningDelta     int64   `json:"warning_delta_min"`
	CriticalDelta    int64   `json:"critical_delta_min"`
	BusyDelta        int64   `json:"busy_delta_min"`
	DataReadDelta    float64 `json:"data_read_delta_gb"`
	DataWrittenDelta float64 `json:"data_written_delta_gb"`
}

// SummarizeSamples computes the thermal summary and the per-sample detail
// rows (MonitorColumns order) of a sample series. Rates are the counter
// change since the previous sample divided by the sample interval.
func SummarizeSamples(samples []Sample, interval time.Duration) (*ThermalSummary, [][]string, error) {
	if len(samples) == 0 {
		return nil, nil, ErrNoSamples
	}

	if interval <= 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}

	first, last := samples[0], samples[len(samples)-1]
	intervalSec := interval.Seconds()

	summary := &ThermalSummary{
		Samples:          len(samples),
		MaxTemperature:   first.CompositeTemperature,
		TMT1Delta:        last.TMT1Time - first.TMT1Time,
		TMT2Delta:        last.TMT2Time - first.TMT2Time,
		WarningDelta:     last.WarningTime - first.WarningTime,
		CriticalDelta:    last.CriticalTime - first.CriticalTime,
		BusyDelta:        last.BusyTime - first.BusyTime,
		DataReadDelta:    last.DataRead - first.DataRead,
		DataWrittenDelta: last.DataWritten - first.DataWritten,
	}

	rows := make([][]string, 0, len(samples))
	prev := first

	for _, s := range samples {
		if s.CompositeTemperature > summary.MaxTemperature {
			summary.MaxTemperature = s.CompositeTemperature
		}

		readRate := (s.DataRead - prev.DataRead) / intervalSec
		writeRate := (s.DataWritten - prev.DataWritten) / intervalSec

		rows = append(rows, []string{
			s.Timestamp,
			strconv.FormatInt(s.CompositeTemperature, 10),
			formatFixed(readRate),
			formatFixed(writeRate),
			strconv.FormatInt(s.TMT1Time-prev.TMT1Time, 10),
			strconv.FormatInt(s.TMT2Time-prev.TMT2Time, 10),
			formatFixed(s.DataRead),
			formatFixed(s.DataWritten),
			strconv.FormatInt(s.TMT1Time, 10),
			strconv.FormatInt(s.TMT2Time, 10),
			strconv.FormatInt(s.WarningTime, 10),
			strconv.FormatInt(s.CriticalTime, 10),
			strconv.FormatInt(s.BusyTime, 10),
		})

		prev = s
	}

	return summary, rows, nil
}

// ReduceMonitor implements Reducer.
func (r *reducer) ReduceMonitor(capturePath, tablePath string) (*ThermalSummary, error) {
	capture, err := LoadCapture(capturePath)
	if err != nil {
		return nil, err
	}

	interval, err := capture.Interval()
	if err != nil {
		return nil, err
	}

	samples, err := capture.Samples()
	if err != nil {
		return nil, err
	}

	summary, rows, err := SummarizeSamples(samples, interval)
	if err != nil {
		return nil, err
	}

	table, err := NewTableWriter(tablePath, MonitorColumns, r.owner)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		if err := table.Write(row...); err != nil {
			_ = table.Close()

			return nil, err
		}
	}

	if err := table.Close(); err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"samples":           summary.Samples,
		"max_temperature_c": summary.MaxTemperature,
		"tmt1_sec":          summary.TMT1Delta,
		"tmt2_sec":          summary.TMT2Delta,
		"warning_min":       summary.WarningDelta,
		"critical_min":      summary.CriticalDelta,
		"busy_min":          summary.BusyDelta,
		"data_read_gb":      formatFixed(summary.DataReadDelta),
		"data_written_gb":   formatFixed(summary.DataWrittenDelta),
		"table":             tablePath,
	}).Info("Monitor summary")

	return summary, nil
}

func formatFixed(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
