package pricing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCoefficient_RoundTrip(t *testing.T) {
	for _, raw := range []int{0, 50, 100, 125, 150, 275, 1000} {
		assert.Equal(t, raw, DenormalizeCoefficient(NormalizeCoefficient(raw)))
	}
	assert.Equal(t, 1.25, NormalizeCoefficient(125))
}

func TestCoefficientFromRaw(t *testing.T) {
	c := CoefficientFromRaw(125, true)
	v, ok := c.Value()
	assert.True(t, ok)
	assert.Equal(t, 1.25, v)

	sentinel := CoefficientFromRaw(UnavailableCoefficient, true)
	assert.False(t, sentinel.IsAvailable())
	assert.Equal(t, 0.0, sentinel.Decimal())

	closed := CoefficientFromRaw(100, false)
	assert.False(t, closed.IsAvailable())
	assert.Equal(t, 0.0, closed.Decimal())
}

func TestAverageAvailable_ExcludesUnavailableDays(t *testing.T) {
	days := []Coefficient{
		CoefficientFromRaw(100, true),
		CoefficientFromRaw(125, true),
		CoefficientFromRaw(UnavailableCoefficient, false),
	}

	avg, ok := AverageAvailable(days)
	require.True(t, ok)
	assert.InDelta(t, 1.125, avg, 1e-9)
}

func TestAverageAvailable_NoneAvailable(t *testing.T) {
	avg, ok := AverageAvailable([]Coefficient{Unavailable(), Unavailable()})
	assert.False(t, ok)
	assert.Zero(t, avg)

	_, ok = AverageAvailable(nil)
	assert.False(t, ok)
}

func TestCoefficient_JSON(t *testing.T) {
	data, err := json.Marshal([]Coefficient{Available(1.5), Unavailable()})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"available":true,"value":1.5},{"available":false,"value":0}]`, string(data))

	var back []Coefficient
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back, 2)
	assert.True(t, back[0].IsAvailable())
	assert.Equal(t, 1.5, back[0].Decimal())
	assert.False(t, back[1].IsAvailable())
}
