package telemetry

// SeriesStats contains aggregated statistics for a series of values.
type SeriesStats struct {
	Name  string  `json:"name,omitempty"`
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
}

// computeStats returns min/max/avg/count of values, or nil for an empty
// series.
func computeStats(name string, values []float64) *SeriesStats {
	if len(values) == 0 {
		return nil
	}

	s := &SeriesStats{
		Name:  name,
		Count: len(values),
		Min:   values[0],
		Max:   values[0],
	}

	var sum float64

	for _, v := range values {
		sum += v

		if v < s.Min {
			s.Min = v
		}

		if v > s.Max {
			s.Max = v
		}
	}

	s.Avg = sum / float64(len(values))

	return s
}
