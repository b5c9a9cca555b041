package drift

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Comparator compares info snapshot files and logs the outcome.
type Comparator interface {
	// CompareFiles loads both snapshots, compares them and logs the report.
	CompareFiles(refPath, latestPath string) (*Report, error)
}

// NewComparator creates a new drift comparator.
func NewComparator(log logrus.FieldLogger) Comparator {
	return &comparator{
		log: log.WithField("component", "drift"),
	}
}

type comparator struct {
	log logrus.FieldLogger
}

// Ensure interface compliance.
var _ Comparator = (*comparator)(nil)

// CompareFiles implements Comparator.
func (c *comparator) CompareFiles(refPath, latestPath string) (*Report, error) {
	ref, err := LoadSnapshot(refPath)
	if err != nil {
		return nil, fmt.Errorf("loading reference snapshot: %w", err)
	}

	latest, err := LoadSnapshot(latestPath)
	if err != nil {
		return nil, fmt.Errorf("loading latest snapshot: %w", err)
	}

	report, err := Compare(ref, latest)
	if err != nil {
		return nil, fmt.Errorf("comparing snapshots: %w", err)
	}

	c.logReport(report)

	return report, nil
}

func (c *comparator) logReport(r *Report) {
	log := c.log.WithFields(logrus.Fields{
		"host_start":            r.HostStart,
		"host_end":              r.HostEnd,
		"host_change":           msDuration(r.HostDeltaMS),
		"power_on_hours_change": r.PowerOnHoursDelta,
	})

	switch d := r.Device.(type) {
	case Comparable:
		log.WithFields(logrus.Fields{
			"origin":          d.Origin,
			"device_start":    d.DeviceStart,
			"device_end":      d.DeviceEnd,
			"device_change":   msDuration(d.DeviceDeltaMS),
			"drift_ms":        d.DriftMS,
			"start_offset_ms": d.StartOffsetMS,
			"end_offset_ms":   d.EndOffsetMS,
			"stopped":         d.Stopped,
		}).Info("Device timestamp compared")
	case ResetBetweenSnapshots:
		log.WithField("stopped", d.Stopped).
			Warn("Device timestamp change not available, origin changed between snapshots")
	case PartialDeviceInfo:
		log.Info("Device does not support the timestamp feature")
	}
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
