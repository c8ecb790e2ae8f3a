package pricing

import "fmt"

// Default box delivery rates used when a warehouse has no tariff record.
const (
	DefaultBaseLiterRub       = 48.0
	DefaultAdditionalLiterRub = 5.0
	DefaultCoefficient        = 1.0
)

// MinBillableLiters is the smallest volume a shipment is billed for.
const MinBillableLiters = 1.0

const placeholder = "—"

// ReasonWarehouseUnavailable is reported when the warehouse does not accept
// boxes at the moment and its rates cannot be used.
const ReasonWarehouseUnavailable = "склад не принимает короба, логистику нужно указать вручную"

type TariffSource string

const (
	SourceWarehouse TariffSource = "warehouse"
	SourceDefault   TariffSource = "default"
	SourceManual    TariffSource = "manual"
)

// BoxDeliveryTariffs are per-warehouse box delivery rates.
// Coefficient is a decimal multiplier, 1.0 is the standard rate.
type BoxDeliveryTariffs struct {
	BaseLiterRub       float64 `json:"baseLiterRub"`
	AdditionalLiterRub float64 `json:"additionalLiterRub"`
	Coefficient        float64 `json:"coefficient"`
}

func DefaultBoxDeliveryTariffs() BoxDeliveryTariffs {
	return BoxDeliveryTariffs{
		BaseLiterRub:       DefaultBaseLiterRub,
		AdditionalLiterRub: DefaultAdditionalLiterRub,
		Coefficient:        DefaultCoefficient,
	}
}

// EffectiveCoefficient falls back to 1.0 for zero or negative coefficients.
func (t BoxDeliveryTariffs) EffectiveCoefficient() float64 {
	if t.Coefficient > 0 && isFinite(t.Coefficient) {
		return t.Coefficient
	}
	return DefaultCoefficient
}

// ResolvedTariffs are tariffs together with where they came from.
// Unavailable marks a warehouse closed to box delivery; its rates are zero
// and must not be used.
type ResolvedTariffs struct {
	BoxDeliveryTariffs
	Source      TariffSource `json:"source"`
	Unavailable bool         `json:"unavailable,omitempty"`
}

type LogisticsBreakdown struct {
	Base        string `json:"base"`
	Additional  string `json:"additional"`
	Coefficient string `json:"coefficient"`
	Total       string `json:"total"`
}

type LogisticsTariffResult struct {
	VolumeLiters         float64            `json:"volumeLiters"`
	AdditionalLiters     float64            `json:"additionalLiters"`
	BaseCost             float64            `json:"baseCost"`
	AdditionalLitersCost float64            `json:"additionalLitersCost"`
	Coefficient          float64            `json:"coefficient"`
	TotalCost            float64            `json:"totalCost"`
	Source               TariffSource       `json:"source"`
	Breakdown            LogisticsBreakdown `json:"breakdown"`
}

// CalculateLogisticsTariff applies the box delivery formula: the first litre
// is flat-rate, every further litre is charged at the additional rate, the
// sum is scaled by the warehouse coefficient. Volume below one litre is
// billed as one litre.
func CalculateLogisticsTariff(volumeLiters float64, tariffs BoxDeliveryTariffs) LogisticsTariffResult {
	coefficient := tariffs.EffectiveCoefficient()

	if volumeLiters <= 0 || !isFinite(volumeLiters) {
		return LogisticsTariffResult{
			Coefficient: coefficient,
			Source:      SourceDefault,
			Breakdown: LogisticsBreakdown{
				Base:        placeholder,
				Additional:  placeholder,
				Coefficient: placeholder,
				Total:       placeholder,
			},
		}
	}

	effectiveVolume := volumeLiters
	if effectiveVolume < MinBillableLiters {
		effectiveVolume = MinBillableLiters
	}
	additionalLiters := effectiveVolume - MinBillableLiters
	if additionalLiters < 0 {
		additionalLiters = 0
	}

	baseCost := tariffs.BaseLiterRub
	additionalCost := additionalLiters * tariffs.AdditionalLiterRub
	total := Round2((baseCost + additionalCost) * coefficient)

	return LogisticsTariffResult{
		VolumeLiters:         volumeLiters,
		AdditionalLiters:     Round3(additionalLiters),
		BaseCost:             Round2(baseCost),
		AdditionalLitersCost: Round2(additionalCost),
		Coefficient:          coefficient,
		TotalCost:            total,
		Source:               SourceWarehouse,
		Breakdown: LogisticsBreakdown{
			Base:        fmt.Sprintf("Первый литр: %.2f ₽", baseCost),
			Additional:  fmt.Sprintf("Доп. литры: %.3f × %.2f ₽ = %.2f ₽", additionalLiters, tariffs.AdditionalLiterRub, additionalCost),
			Coefficient: fmt.Sprintf("Коэффициент склада: ×%.2f", coefficient),
			Total:       fmt.Sprintf("Итого: (%.2f + %.2f) × %.2f = %.2f ₽", baseCost, additionalCost, coefficient, total),
		},
	}
}

// ForwardLogistics is the warehouse-to-customer cost with the policy applied.
type ForwardLogistics struct {
	VolumeLiters   float64               `json:"volumeLiters"`
	CargoType      CargoType             `json:"cargoType"`
	Tariff         LogisticsTariffResult `json:"tariff"`
	CostRub        float64               `json:"costRub"`
	ManualRequired bool                  `json:"manualRequired"`
	Reason         string                `json:"reason,omitempty"`
}

// ResolveForwardLogistics picks the forward logistics cost for a product.
// A positive manualRub always wins. KGT products are never auto-filled:
// without a manual value the result carries ManualRequired and a reason.
// Tariffs of a warehouse closed to box delivery are not auto-filled either.
// Nil tariffs fall back to the default rates.
func ResolveForwardLogistics(dims Dimensions, tariffs *ResolvedTariffs, manualRub float64) ForwardLogistics {
	volume := VolumeLiters(dims)
	out := ForwardLogistics{
		VolumeLiters: volume,
		CargoType:    DetectCargoType(dims),
	}

	if manualRub > 0 && isFinite(manualRub) {
		cost := Round2(manualRub)
		out.CostRub = cost
		out.Tariff = LogisticsTariffResult{
			VolumeLiters: volume,
			Coefficient:  DefaultCoefficient,
			TotalCost:    cost,
			Source:       SourceManual,
			Breakdown: LogisticsBreakdown{
				Base:        placeholder,
				Additional:  placeholder,
				Coefficient: placeholder,
				Total:       fmt.Sprintf("Указано вручную: %.2f ₽", cost),
			},
		}
		return out
	}

	if !HasValidDimensions(dims) {
		out.Tariff = CalculateLogisticsTariff(0, DefaultBoxDeliveryTariffs())
		out.Reason = ReasonIncompleteDimensions
		return out
	}

	if !out.CargoType.AllowsAutoLogistics() {
		out.Tariff = CalculateLogisticsTariff(0, DefaultBoxDeliveryTariffs())
		out.Tariff.Source = SourceManual
		out.ManualRequired = true
		out.Reason = ReasonKGTManualLogistics
		return out
	}

	if tariffs != nil && tariffs.Unavailable {
		out.Tariff = CalculateLogisticsTariff(0, DefaultBoxDeliveryTariffs())
		out.Tariff.Source = tariffs.Source
		out.ManualRequired = true
		out.Reason = ReasonWarehouseUnavailable
		return out
	}

	resolved := ResolvedTariffs{BoxDeliveryTariffs: DefaultBoxDeliveryTariffs(), Source: SourceDefault}
	if tariffs != nil {
		resolved = *tariffs
	}

	out.Tariff = CalculateLogisticsTariff(volume, resolved.BoxDeliveryTariffs)
	out.Tariff.Source = resolved.Source
	out.CostRub = out.Tariff.TotalCost
	return out
}
