package drift

import (
	"github.com/ethpandaops/checkoor/pkg/telemetry"
)

// Origin is how the device timestamp of a Comparable result is anchored.
type Origin string

const (
	// OriginCalendar means both snapshots carry host programmed calendar
	// time.
	OriginCalendar Origin = "calendar"
	// OriginSinceReset means both snapshots count from a controller reset.
	// The device delta only holds if no reset happened in between, which is
	// not verified.
	OriginSinceReset Origin = "since_reset"
)

// DeviceResult is the device side of a Report. It is one of Comparable,
// ResetBetweenSnapshots or PartialDeviceInfo.
type DeviceResult interface {
	deviceResult()
}

// Comparable holds a device delta that can be set against the host delta.
type Comparable struct {
	Origin        Origin
	HostDeltaMS   int64
	DeviceDeltaMS int64
	// DriftMS is host delta minus device delta.
	DriftMS int64
	// Device minus host clock at each snapshot. Calendar origin only.
	StartOffsetMS int64
	EndOffsetMS   int64

	DeviceStart string
	DeviceEnd   string
	Stopped     string
}

// ResetBetweenSnapshots means the timestamp origin differs between the
// snapshots, so no device delta exists.
type ResetBetweenSnapshots struct {
	HostDeltaMS int64
	Stopped     string
}

// PartialDeviceInfo means the device lacks the timestamp feature.
type PartialDeviceInfo struct {
	HostDeltaMS int64
}

func (Comparable) deviceResult()            {}
func (ResetBetweenSnapshots) deviceResult() {}
func (PartialDeviceInfo) deviceResult()     {}

// Report is the result of comparing two snapshots.
type Report struct {
	HostDeltaMS       int64
	PowerOnHoursDelta int64
	HostStart         string
	HostEnd           string
	Device            DeviceResult
}

// Compare reconciles the host and device clocks of two snapshots taken at
// different times. The device branch is decided in this order:
//
//  1. reference lacks the timestamp feature: PartialDeviceInfo
//  2. both origins host programmed: Comparable with calendar origin
//  3. both origins equal otherwise: Comparable counted since reset
//  4. origins differ: ResetBetweenSnapshots
func Compare(ref, latest *Snapshot) (*Report, error) {
	report := &Report{
		HostDeltaMS:       latest.HostTimestamp - ref.HostTimestamp,
		PowerOnHoursDelta: latest.PowerOnHours - ref.PowerOnHours,
		HostStart:         ref.HostTimestampDecoded,
		HostEnd:           latest.HostTimestampDecoded,
	}

	switch {
	case !ref.SupportsTimestamp():
		report.Device = PartialDeviceInfo{HostDeltaMS: report.HostDeltaMS}

	case ref.TimestampOrigin == OriginHostProgrammed && latest.TimestampOrigin == OriginHostProgrammed:
		c, err := newComparable(report.HostDeltaMS, ref, latest, OriginCalendar)
		if err != nil {
			return nil, err
		}

		c.StartOffsetMS = *ref.Timestamp - ref.HostTimestamp
		c.EndOffsetMS = *latest.Timestamp - latest.HostTimestamp
		report.Device = c

	case ref.TimestampOrigin == latest.TimestampOrigin:
		c, err := newComparable(report.HostDeltaMS, ref, latest, OriginSinceReset)
		if err != nil {
			return nil, err
		}

		report.Device = c

	default:
		report.Device = ResetBetweenSnapshots{
			HostDeltaMS: report.HostDeltaMS,
			Stopped:     latest.TimestampStopped,
		}
	}

	return report, nil
}

func newComparable(hostDelta int64, ref, latest *Snapshot, origin Origin) (Comparable, error) {
	if ref.Timestamp == nil || latest.Timestamp == nil {
		return Comparable{}, &telemetry.MissingParameterError{Name: ParamTimestamp}
	}

	deviceDelta := *latest.Timestamp - *ref.Timestamp

	return Comparable{
		Origin:        origin,
		HostDeltaMS:   hostDelta,
		DeviceDeltaMS: deviceDelta,
		DriftMS:       hostDelta - deviceDelta,
		DeviceStart:   ref.TimestampDecoded,
		DeviceEnd:     latest.TimestampDecoded,
		Stopped:       latest.TimestampStopped,
	}, nil
}
