// Package fairness provides robust outlier detection over play-percentage
// samples. It uses the median as center and the median absolute deviation
// (MAD) as spread, which keeps a single extreme value from masking
// itself.
package fairness

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/rotaplanhq/rotaplan/lineup"
)

const (
	// DefaultMinimumDelta is the floor on the flagging threshold, in
	// percentage points. Spreads tighter than this are normal variation.
	DefaultMinimumDelta = 10.0
	// DefaultMADMultiplier scales the MAD into a threshold.
	DefaultMADMultiplier = 2.0
	// DefaultMinSampleSize is the fewest samples worth analyzing.
	DefaultMinSampleSize = 3
)

// Options tune the detector. The zero value means "use defaults".
type Options struct {
	MinimumDelta  float64
	MADMultiplier float64
	MinSampleSize int
}

func (o Options) withDefaults() Options {
	if o.MinimumDelta == 0 {
		o.MinimumDelta = DefaultMinimumDelta
	}
	if o.MADMultiplier == 0 {
		o.MADMultiplier = DefaultMADMultiplier
	}
	if o.MinSampleSize == 0 {
		o.MinSampleSize = DefaultMinSampleSize
	}
	return o
}

func median(sorted []float64) float64 {
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// HighOutliers returns the ids of players whose play percentage sits
// unusually far above the group median. Detection is one-sided: only
// unusually high playtime is flagged. Fewer than MinSampleSize finite
// samples yields an empty result.
func HighOutliers(samples map[lineup.PlayerID]float64, opts Options) []lineup.PlayerID {
	opts = opts.withDefaults()

	ids := make([]lineup.PlayerID, 0, len(samples))
	values := make([]float64, 0, len(samples))
	for id, v := range samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		ids = append(ids, id)
		values = append(values, v)
	}
	if len(values) < opts.MinSampleSize {
		return nil
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	center := median(sorted)

	deviations := make([]float64, len(sorted))
	for i, v := range sorted {
		deviations[i] = math.Abs(v - center)
	}
	sort.Float64s(deviations)
	mad := median(deviations)

	threshold := math.Max(opts.MinimumDelta, opts.MADMultiplier*mad)

	var flagged []lineup.PlayerID
	for i, id := range ids {
		if values[i] > center && values[i]-center >= threshold {
			flagged = append(flagged, id)
		}
	}
	sort.Slice(flagged, func(i, j int) bool { return flagged[i] < flagged[j] })
	return flagged
}

// FromStats builds the sample map HighOutliers expects from solved
// schedule statistics.
func FromStats(stats map[lineup.PlayerID]lineup.PlayerStats) map[lineup.PlayerID]float64 {
	samples := make(map[lineup.PlayerID]float64, len(stats))
	for id, st := range stats {
		samples[id] = float64(st.PlayPct)
	}
	return samples
}
