package pricing

import (
	"math"

	"github.com/shopspring/decimal"
)

// Round2 rounds a ruble amount to kopecks, half away from zero.
func Round2(v float64) float64 {
	return roundTo(v, 2)
}

// Round3 rounds a volume to millilitres.
func Round3(v float64) float64 {
	return roundTo(v, 3)
}

func roundTo(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// rateEpsilon absorbs float noise in summed percentages such as 70.1 + 4.9.
const rateEpsilon = 1e-9

// reaches compares an unrounded rate total with a threshold.
func reaches(total, threshold float64) bool {
	return total >= threshold-rateEpsilon
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
