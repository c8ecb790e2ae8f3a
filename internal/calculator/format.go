package calculator

import (
	"fmt"
	"strings"

	"wbcalc/internal/pricing"
)

const separator = "──────────────────"

// FormatSummary renders a result as the plain text report shown in chat and
// printed by the calc command.
func FormatSummary(res *Result) string {
	var b strings.Builder

	d := res.Request.Dimensions
	fmt.Fprintf(&b, "📏 Габариты: %s×%s×%s см, %s л\n", num(d.LengthCM), num(d.WidthCM), num(d.HeightCM), num(res.VolumeLiters))
	fmt.Fprintf(&b, "📦 Тип груза: %s\n", res.CargoLabel)
	if res.Warehouse != nil {
		fmt.Fprintf(&b, "🏬 Склад: %s\n", res.Warehouse.Name)
	}
	if res.Commission != nil {
		fmt.Fprintf(&b, "🗂 Категория: %s (%s%%)\n", res.Commission.SubjectName, num(res.Commission.CommissionPct))
	}
	if a := res.Acceptance; a != nil {
		if a.HasAvailable {
			fmt.Fprintf(&b, "📅 Приёмка: ближайшая %s, x%s, средний x%s\n",
				a.NextAvailable.Format("02.01.2006"), num(a.NextMultiplier), num(a.Average))
		} else {
			b.WriteString("📅 Приёмка: нет доступных дат\n")
		}
	}

	b.WriteString(separator + "\n")
	b.WriteString("🚚 Логистика до покупателя:\n")
	if res.Logistics.Reason != "" {
		fmt.Fprintf(&b, "⚠️ %s\n", res.Logistics.Reason)
	}
	if res.Logistics.Tariff.Source == pricing.SourceManual && !res.Logistics.ManualRequired {
		fmt.Fprintf(&b, "- %s\n", res.Logistics.Tariff.Breakdown.Total)
	} else if !res.Logistics.ManualRequired && res.Logistics.Reason == "" {
		br := res.Logistics.Tariff.Breakdown
		fmt.Fprintf(&b, "- %s\n- %s\n- %s\n- %s\n", br.Base, br.Additional, br.Coefficient, br.Total)
	}
	fmt.Fprintf(&b, "↩️ Обратная логистика с учётом выкупа: %.2f₽\n", res.ReverseEffectiveRub)

	b.WriteString(separator + "\n")
	switch res.Status {
	case StatusManualLogistics:
		b.WriteString("✋ Укажите стоимость логистики вручную, чтобы получить цену\n")
	case StatusUnsolvable:
		fmt.Fprintf(&b, "❌ Цену рассчитать нельзя: сумма процентов %s%% не оставляет места для себестоимости\n", num(res.Warning.TotalPct))
	default:
		writePricing(&b, res)
	}

	if res.Warning.Message != "" {
		b.WriteString(separator + "\n")
		icon := "⚠️"
		if res.Warning.Level == pricing.WarningCritical {
			icon = "🚨"
		}
		fmt.Fprintf(&b, "%s %s\n", icon, res.Warning.Message)
	}

	return strings.TrimRight(b.String(), "\n")
}

func writePricing(b *strings.Builder, res *Result) {
	p := res.Pricing
	costs := p.PercentageCosts

	fmt.Fprintf(b, "💰 Рекомендованная цена: %.2f₽\n", p.Recommended.Price)
	if p.DiscountPct > 0 {
		fmt.Fprintf(b, "🏷 Цена до скидки %s%%: %.2f₽\n", num(p.DiscountPct), p.PriceBeforeDiscount)
	}
	fmt.Fprintf(b, "⚖️ Точка безубыточности: %.2f₽\n\n", p.BreakEven.Price)

	b.WriteString("📊 Детали расчета:\n")
	fmt.Fprintf(b, "- Себестоимость: %.2f₽\n", res.Fixed.COGSRub)
	fmt.Fprintf(b, "- Логистика: %.2f₽\n", res.Fixed.LogisticsForwardRub)
	fmt.Fprintf(b, "- Обратная логистика: %.2f₽\n", res.Fixed.LogisticsReverseRub)
	if res.Fixed.StorageRub > 0 {
		fmt.Fprintf(b, "- Хранение: %.2f₽\n", res.Fixed.StorageRub)
	}
	for _, line := range []struct {
		label string
		cost  pricing.PercentageCost
	}{
		{"Комиссия WB", costs.CommissionWB},
		{"Эквайринг", costs.Acquiring},
		{"ДРР", costs.Advertising},
		{"НДС", costs.VAT},
		{"Налог", costs.TaxIncome},
	} {
		if line.cost.Pct == 0 {
			continue
		}
		fmt.Fprintf(b, "- %s (%s%%): %.2f₽\n", line.label, num(line.cost.Pct), line.cost.Rub)
	}
	b.WriteString(separator + "\n")
	fmt.Fprintf(b, "Маржа (%s%%): %.2f₽\n", num(costs.Margin.Pct), costs.Margin.Rub)
	if p.ROIPct != 0 {
		fmt.Fprintf(b, "ROI: %s%%, наценка x%s\n", num(p.ROIPct), num(p.Markup))
	}
}

func num(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.3f", v), "0"), ".")
}
