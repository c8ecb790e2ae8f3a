package pricing

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	WarningThresholdPct  = 75.0
	CriticalThresholdPct = 85.0

	maxContributors = 3
)

type WarningLevel string

const (
	WarningNone     WarningLevel = "none"
	WarningHigh     WarningLevel = "warning"
	WarningCritical WarningLevel = "critical"
)

type Thresholds struct {
	WarningPct  float64
	CriticalPct float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{WarningPct: WarningThresholdPct, CriticalPct: CriticalThresholdPct}
}

type Contributor struct {
	Label string  `json:"label"`
	Pct   float64 `json:"pct"`
}

func (c Contributor) String() string {
	return c.Label + " " + formatPct(c.Pct) + "%"
}

// RateWarning is advisory only; a price is still computed above the
// critical threshold.
type RateWarning struct {
	Level           WarningLevel  `json:"level"`
	TotalPct        float64       `json:"totalPct"`
	RemainingPct    float64       `json:"remainingPct"`
	TopContributors []Contributor `json:"topContributors,omitempty"`
	Message         string        `json:"message,omitempty"`
}

// contributors keeps the fixed order used to break ranking ties.
func contributors(r PercentageRates) []Contributor {
	return []Contributor{
		{Label: "Комиссия WB", Pct: r.CommissionPct},
		{Label: "Эквайринг", Pct: r.AcquiringPct},
		{Label: "Налог", Pct: r.TaxIncomePct},
		{Label: "НДС", Pct: r.VATPct},
		{Label: "ДРР", Pct: r.AdvertisingPct},
		{Label: "Маржа", Pct: r.MarginPct},
	}
}

func EvaluateRateWarning(rates PercentageRates) RateWarning {
	return EvaluateRateWarningWith(rates, DefaultThresholds())
}

func EvaluateRateWarningWith(rates PercentageRates, th Thresholds) RateWarning {
	total := rates.Total()
	out := RateWarning{
		Level:        WarningNone,
		TotalPct:     Round2(total),
		RemainingPct: Round2(100 - total),
	}

	switch {
	case reaches(total, th.CriticalPct):
		out.Level = WarningCritical
		out.TopContributors = TopContributors(rates, maxContributors)
		labels := make([]string, 0, len(out.TopContributors))
		for _, c := range out.TopContributors {
			labels = append(labels, c.String())
		}
		out.Message = fmt.Sprintf(
			"Процентные расходы съедают %s%% цены, на фиксированные затраты остаётся %s%%. Больше всего: %s",
			formatPct(total), formatPct(out.RemainingPct), strings.Join(labels, ", "),
		)
	case reaches(total, th.WarningPct):
		out.Level = WarningHigh
		out.Message = fmt.Sprintf(
			"Процентные расходы составляют %s%% цены, на фиксированные затраты остаётся %s%%",
			formatPct(total), formatPct(out.RemainingPct),
		)
	}
	return out
}

// TopContributors returns up to n non-zero rates, largest first. Ties keep
// the order commission, acquiring, tax, VAT, DRR, margin.
func TopContributors(rates PercentageRates, n int) []Contributor {
	all := contributors(rates)
	nonZero := all[:0]
	for _, c := range all {
		if c.Pct > 0 {
			nonZero = append(nonZero, c)
		}
	}
	sort.SliceStable(nonZero, func(i, j int) bool {
		return nonZero[i].Pct > nonZero[j].Pct
	})
	if len(nonZero) > n {
		nonZero = nonZero[:n]
	}
	return nonZero
}

func formatPct(v float64) string {
	return strconv.FormatFloat(Round2(v), 'f', -1, 64)
}
