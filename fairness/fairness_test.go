package fairness

import (
	"math"
	"testing"

	"github.com/matryer/is"

	"github.com/rotaplanhq/rotaplan/lineup"
)

func samples(vals map[string]float64) map[lineup.PlayerID]float64 {
	out := make(map[lineup.PlayerID]float64, len(vals))
	for k, v := range vals {
		out[lineup.PlayerID(k)] = v
	}
	return out
}

func TestHighOutliersFlagsHighPlaytime(t *testing.T) {
	is := is.New(t)
	flagged := HighOutliers(samples(map[string]float64{
		"p1": 50, "p2": 50, "p3": 50, "p4": 50, "p5": 75, "p6": 75,
	}), Options{})
	is.Equal(flagged, []lineup.PlayerID{"p5", "p6"})
}

func TestHighOutliersTightSpread(t *testing.T) {
	is := is.New(t)
	flagged := HighOutliers(samples(map[string]float64{
		"p1": 43, "p2": 48, "p3": 50, "p4": 52, "p5": 55, "p6": 57,
	}), Options{})
	is.Equal(len(flagged), 0)
}

func TestHighOutliersTooFewSamples(t *testing.T) {
	is := is.New(t)
	flagged := HighOutliers(samples(map[string]float64{
		"p1": 10, "p2": 90,
	}), Options{})
	is.Equal(len(flagged), 0)
}

func TestHighOutliersOneSided(t *testing.T) {
	is := is.New(t)
	// p1 is unusually low; nobody is unusually high.
	flagged := HighOutliers(samples(map[string]float64{
		"p1": 10, "p2": 60, "p3": 60, "p4": 60, "p5": 60,
	}), Options{})
	is.Equal(len(flagged), 0)
}

func TestHighOutliersIgnoresNonFinite(t *testing.T) {
	is := is.New(t)
	flagged := HighOutliers(samples(map[string]float64{
		"p1": math.NaN(), "p2": math.Inf(1),
	}), Options{})
	is.Equal(len(flagged), 0)
}

func TestHighOutliersWideMAD(t *testing.T) {
	is := is.New(t)
	// MAD is large enough that 2*MAD exceeds the minimum delta; values
	// 12 and 15 above center stay unflagged, only the extreme one trips.
	flagged := HighOutliers(samples(map[string]float64{
		"p1": 20, "p2": 35, "p3": 50, "p4": 65, "p5": 80, "p6": 62,
	}), Options{})
	is.Equal(flagged, []lineup.PlayerID{"p5"})
}
