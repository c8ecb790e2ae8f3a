package pricing

import (
	"encoding/json"
	"math"
)

// UnavailableCoefficient is the upstream marker for a day closed to acceptance.
const UnavailableCoefficient = -1

// NormalizeCoefficient converts the x100 integer scale to a multiplier.
// It divides blindly; use CoefficientFromRaw for upstream records.
func NormalizeCoefficient(raw int) float64 {
	return float64(raw) / 100
}

func DenormalizeCoefficient(multiplier float64) int {
	return int(math.Round(multiplier * 100))
}

// Coefficient is either an available multiplier or an unavailable day.
// The -1 sentinel never leaves the upstream boundary as a number.
type Coefficient struct {
	value     float64
	available bool
}

func Available(multiplier float64) Coefficient {
	return Coefficient{value: multiplier, available: true}
}

func Unavailable() Coefficient {
	return Coefficient{}
}

// CoefficientFromRaw converts an upstream record. A negative raw value or a
// cleared availability flag yields Unavailable.
func CoefficientFromRaw(raw int, isAvailable bool) Coefficient {
	if !isAvailable || raw < 0 {
		return Unavailable()
	}
	return Available(NormalizeCoefficient(raw))
}

func (c Coefficient) IsAvailable() bool {
	return c.available
}

// Value returns the multiplier and whether the day is available.
func (c Coefficient) Value() (float64, bool) {
	return c.value, c.available
}

// Decimal returns the multiplier, or 0 for an unavailable day.
func (c Coefficient) Decimal() float64 {
	if !c.available {
		return 0
	}
	return c.value
}

func (c Coefficient) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Available bool    `json:"available"`
		Value     float64 `json:"value"`
	}{c.available, c.Decimal()})
}

func (c *Coefficient) UnmarshalJSON(data []byte) error {
	var v struct {
		Available bool    `json:"available"`
		Value     float64 `json:"value"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if !v.Available {
		*c = Unavailable()
		return nil
	}
	*c = Available(v.Value)
	return nil
}

// AverageAvailable averages only available days. ok is false when none are.
func AverageAvailable(coefficients []Coefficient) (avg float64, ok bool) {
	var sum float64
	var n int
	for _, c := range coefficients {
		if v, available := c.Value(); available {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
