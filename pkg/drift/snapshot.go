package drift

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethpandaops/checkoor/pkg/telemetry"
)

// Parameter names read from an info snapshot.
const (
	ParamHostTimestamp        = "Host Timestamp"
	ParamHostTimestampDecoded = "Host Timestamp Decoded"
	ParamPowerOnHours         = "Power On Hours"
	ParamTimestampFeature     = "Timestamp Feature"
	ParamTimestampOrigin      = "Timestamp Origin"
	ParamTimestamp            = "Timestamp"
	ParamTimestampDecoded     = "Timestamp Decoded"
	ParamTimestampStopped     = "Timestamp Stopped"
)

// Values of the feature and origin parameters the comparison branches on.
const (
	FeatureSupported     = "Supported"
	OriginHostProgrammed = "Host Programmed"
)

// Snapshot is the clock related part of one device info snapshot.
type Snapshot struct {
	// HostTimestamp is the host clock in ms when the snapshot was taken.
	HostTimestamp        int64  `mapstructure:"Host Timestamp"`
	HostTimestampDecoded string `mapstructure:"Host Timestamp Decoded"`
	PowerOnHours         int64  `mapstructure:"Power On Hours"`

	// The device timestamp fields are optional; older devices lack them.
	TimestampFeature string `mapstructure:"Timestamp Feature"`
	TimestampOrigin  string `mapstructure:"Timestamp Origin"`
	// Timestamp is the device clock in ms.
	Timestamp        *int64 `mapstructure:"Timestamp"`
	TimestampDecoded string `mapstructure:"Timestamp Decoded"`
	TimestampStopped string `mapstructure:"Timestamp Stopped"`
}

// SupportsTimestamp reports whether the device implements the timestamp
// feature.
func (s *Snapshot) SupportsTimestamp() bool {
	return s.TimestampFeature == FeatureSupported
}

// infoFile is the layout of the reader tool's info output.
type infoFile struct {
	NVMe struct {
		Parameters map[string]struct {
			Value telemetry.Value `json:"value"`
		} `json:"parameters"`
	} `json:"nvme"`
}

// ParseSnapshot decodes an info file. Host timestamp and power-on hours
// are required.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	var info infoFile
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parsing info snapshot: %w", err)
	}

	params := make(map[string]any, len(info.NVMe.Parameters))
	for name, p := range info.NVMe.Parameters {
		params[name] = p.Value.String()
	}

	// Devices without the feature may report placeholder text here.
	if _, err := telemetry.ParseLeadingInt(fmt.Sprint(params[ParamTimestamp])); err != nil {
		delete(params, ParamTimestamp)
	}

	var s Snapshot

	err := telemetry.DecodeParameters(params, &s, ParamHostTimestamp, ParamPowerOnHours)
	if err != nil {
		return nil, err
	}

	return &s, nil
}

// LoadSnapshot reads and decodes an info file.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading info snapshot: %w", err)
	}

	s, err := ParseSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return s, nil
}
