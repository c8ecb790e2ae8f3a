package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateRateWarning_Thresholds(t *testing.T) {
	tests := []struct {
		name  string
		rates PercentageRates
		want  WarningLevel
	}{
		{"below warning", PercentageRates{CommissionPct: 25, AcquiringPct: 1.5, TaxIncomePct: 6, AdvertisingPct: 10, MarginPct: 32.4}, WarningNone},
		{"at warning", PercentageRates{CommissionPct: 25, AcquiringPct: 1.5, TaxIncomePct: 6, AdvertisingPct: 10, MarginPct: 32.5}, WarningHigh},
		{"rounds up to warning but stays below", PercentageRates{CommissionPct: 40, MarginPct: 34.996}, WarningNone},
		{"float noise at warning", PercentageRates{CommissionPct: 70.1, MarginPct: 4.9}, WarningHigh},
		{"just below critical", PercentageRates{CommissionPct: 40, MarginPct: 44.99}, WarningHigh},
		{"at critical", PercentageRates{CommissionPct: 40, MarginPct: 45}, WarningCritical},
		{"above 100", PercentageRates{CommissionPct: 80, MarginPct: 30}, WarningCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateRateWarning(tt.rates).Level)
		})
	}
}

func TestEvaluateRateWarning_NoneIsSilent(t *testing.T) {
	got := EvaluateRateWarning(PercentageRates{CommissionPct: 20})
	assert.Equal(t, WarningNone, got.Level)
	assert.Empty(t, got.Message)
	assert.Empty(t, got.TopContributors)
}

func TestEvaluateRateWarning_WarningReportsRemainder(t *testing.T) {
	got := EvaluateRateWarning(PercentageRates{CommissionPct: 30, MarginPct: 50})
	require.Equal(t, WarningHigh, got.Level)
	assert.Equal(t, 80.0, got.TotalPct)
	assert.Equal(t, 20.0, got.RemainingPct)
	assert.Contains(t, got.Message, "остаётся 20%")
	assert.Empty(t, got.TopContributors)
}

func TestEvaluateRateWarning_CriticalRanksContributors(t *testing.T) {
	rates := PercentageRates{
		CommissionPct:  25,
		AcquiringPct:   1.5,
		TaxIncomePct:   25,
		VATPct:         0,
		AdvertisingPct: 8.5,
		MarginPct:      25,
	}
	got := EvaluateRateWarning(rates)
	require.Equal(t, WarningCritical, got.Level)
	assert.Equal(t, 85.0, got.TotalPct)

	// three-way tie keeps commission, tax, margin order
	require.Len(t, got.TopContributors, 3)
	assert.Equal(t, "Комиссия WB 25%", got.TopContributors[0].String())
	assert.Equal(t, "Налог 25%", got.TopContributors[1].String())
	assert.Equal(t, "Маржа 25%", got.TopContributors[2].String())
	assert.Contains(t, got.Message, "Комиссия WB 25%, Налог 25%, Маржа 25%")
}

func TestTopContributors_SkipsZeroAndSorts(t *testing.T) {
	got := TopContributors(PercentageRates{AcquiringPct: 2.5, AdvertisingPct: 90}, 3)
	require.Len(t, got, 2)
	assert.Equal(t, "ДРР 90%", got[0].String())
	assert.Equal(t, "Эквайринг 2.5%", got[1].String())
}

func TestEvaluateRateWarningWith_CustomThresholds(t *testing.T) {
	got := EvaluateRateWarningWith(PercentageRates{CommissionPct: 60}, Thresholds{WarningPct: 50, CriticalPct: 70})
	assert.Equal(t, WarningHigh, got.Level)
}
