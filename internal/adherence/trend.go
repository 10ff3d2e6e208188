// ABOUTME: Directional trend detection and summary statistics for numeric series.
// ABOUTME: Compares the latest values with the ones just before them against a relative threshold.
package adherence

import (
	"math"
)

// Direction is the movement of a series.
type Direction string

const (
	TrendUp     Direction = "up"
	TrendDown   Direction = "down"
	TrendStable Direction = "stable"
)

// TrendOptions tunes trend detection.
type TrendOptions struct {
	// Window is how many recent points are compared against the same number before them.
	Window int
	// Threshold is the fraction of the overall average the sub-averages must differ by.
	Threshold float64
}

// DefaultTrendOptions compares the last 3 points with the previous 3 at a 5% threshold.
var DefaultTrendOptions = TrendOptions{Window: 3, Threshold: 0.05}

// Trend applies DefaultTrendOptions to a chronological series.
func Trend(series []float64) Direction {
	return DefaultTrendOptions.Trend(series)
}

// Trend classifies a chronological series (oldest first). Fewer than
// 2×Window points is always stable.
func (o TrendOptions) Trend(series []float64) Direction {
	window := o.Window
	if window <= 0 {
		window = DefaultTrendOptions.Window
	}
	if len(series) < 2*window {
		return TrendStable
	}

	n := len(series)
	recent := mean(series[n-window:])
	previous := mean(series[n-2*window : n-window])
	overall := mean(series)

	if math.Abs(recent-previous) > math.Abs(overall)*o.Threshold {
		if recent > previous {
			return TrendUp
		}
		return TrendDown
	}
	return TrendStable
}

// Stats summarizes a chronological series.
type Stats struct {
	Count   int       `json:"count" yaml:"count"`
	Average float64   `json:"average" yaml:"average"`
	Min     float64   `json:"min" yaml:"min"`
	Max     float64   `json:"max" yaml:"max"`
	Latest  float64   `json:"latest" yaml:"latest"`
	Trend   Direction `json:"trend" yaml:"trend"`
}

// Summarize returns stats for a chronological series; ok is false when it is empty.
// The average is rounded to one decimal place.
func (o TrendOptions) Summarize(series []float64) (Stats, bool) {
	if len(series) == 0 {
		return Stats{}, false
	}
	s := Stats{
		Count:   len(series),
		Average: Round1(mean(series)),
		Min:     series[0],
		Max:     series[0],
		Latest:  series[len(series)-1],
		Trend:   o.Trend(series),
	}
	for _, v := range series[1:] {
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	return s, true
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
