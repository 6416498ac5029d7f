package anomaly

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

const (
	minZScoreSamples = 5
	minMADSamples    = 8
	madThreshold     = 3.5
	madScale         = 1.4826
)

// zScoreFinding flags value when it sits more than sigma population standard
// deviations from the mean of the prior samples. Zero deviation is treated as
// 1.0 so a constant history still surfaces a jump.
func zScoreFinding(prior []float64, value float64, scope string, sigma float64) []string {
	if len(prior) < minZScoreSamples {
		return nil
	}
	mean, err := stats.Mean(prior)
	if err != nil {
		return nil
	}
	std, err := stats.StandardDeviationPopulation(prior)
	if err != nil {
		return nil
	}
	if std == 0 {
		std = 1.0
	}
	z := math.Abs(value-mean) / std
	if z > sigma {
		return []string{fmt.Sprintf("%s amount reached %.2fσ against recent history, manual review suggested", scope, z)}
	}
	return nil
}

// madFinding is the robust counterpart of zScoreFinding: distance from the
// median in units of the scaled median absolute deviation.
func madFinding(prior []float64, value float64, vendor string) []string {
	if len(prior) < minMADSamples {
		return nil
	}
	median, err := stats.Median(prior)
	if err != nil {
		return nil
	}
	mad, err := stats.MedianAbsoluteDeviation(prior)
	if err != nil {
		return nil
	}
	if mad == 0 {
		mad = 1.0
	}
	score := math.Abs(value-median) / (madScale * mad)
	if score > madThreshold {
		if vendor == "" {
			vendor = UnknownVendor
		}
		return []string{fmt.Sprintf("vendor %q amount deviates from its historical median (MAD score %.2f)", vendor, score)}
	}
	return nil
}
