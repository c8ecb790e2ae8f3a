package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"wbcalc/internal/calculator"
)

const calculationSheet = "Расчет"

// ExportCalculationToExcel writes a one-sheet breakdown into dir and returns the file path.
func ExportCalculationToExcel(dir string, res *calculator.Result) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", calculationSheet); err != nil {
		return "", fmt.Errorf("failed to create sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create style: %w", err)
	}

	row := 1
	section := func(title string) {
		if row > 1 {
			row++
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		f.SetCellValue(calculationSheet, cell, title)
		f.SetCellStyle(calculationSheet, cell, cell, bold)
		row++
	}
	line := func(label string, value any) {
		labelCell, _ := excelize.CoordinatesToCellName(1, row)
		valueCell, _ := excelize.CoordinatesToCellName(2, row)
		f.SetCellValue(calculationSheet, labelCell, label)
		f.SetCellValue(calculationSheet, valueCell, value)
		row++
	}

	d := res.Request.Dimensions
	section("Товар")
	line("ID расчета", res.ID)
	line("Дата", res.CreatedAt.Format("02.01.2006 15:04"))
	line("Габариты, см", fmt.Sprintf("%g × %g × %g", d.LengthCM, d.WidthCM, d.HeightCM))
	line("Объем, л", res.VolumeLiters)
	line("Тип груза", res.CargoLabel)
	if res.Warehouse != nil {
		line("Склад", res.Warehouse.Name)
	}
	if res.Commission != nil {
		line("Категория", res.Commission.SubjectName)
	}

	section("Логистика")
	line("Источник тарифа", string(res.Logistics.Tariff.Source))
	line("Базовая стоимость", res.Logistics.Tariff.BaseCost)
	line("Доп. литры", res.Logistics.Tariff.AdditionalLitersCost)
	line("Коэффициент склада", res.Logistics.Tariff.Coefficient)
	line("Логистика до покупателя", res.Fixed.LogisticsForwardRub)
	line("Обратная логистика (с учетом выкупа)", res.Fixed.LogisticsReverseRub)
	if res.Logistics.Reason != "" {
		line("Примечание", res.Logistics.Reason)
	}

	section("Фиксированные затраты")
	line("Себестоимость", res.Fixed.COGSRub)
	line("Хранение", res.Fixed.StorageRub)
	line("Итого", res.Fixed.Total())

	section("Процентные затраты")
	if p := res.Pricing; p != nil {
		costs := p.PercentageCosts
		line(fmt.Sprintf("Комиссия WB (%g%%)", costs.CommissionWB.Pct), costs.CommissionWB.Rub)
		line(fmt.Sprintf("Эквайринг (%g%%)", costs.Acquiring.Pct), costs.Acquiring.Rub)
		line(fmt.Sprintf("ДРР (%g%%)", costs.Advertising.Pct), costs.Advertising.Rub)
		line(fmt.Sprintf("НДС (%g%%)", costs.VAT.Pct), costs.VAT.Rub)
		line(fmt.Sprintf("Налог (%g%%)", costs.TaxIncome.Pct), costs.TaxIncome.Rub)
		line(fmt.Sprintf("Маржа (%g%%)", costs.Margin.Pct), costs.Margin.Rub)
	}
	line("Сумма процентов", res.Warning.TotalPct)

	section("Цена")
	if p := res.Pricing; p != nil {
		line("Точка безубыточности", p.BreakEven.Price)
		line("Рекомендованная цена", p.Recommended.Price)
		if p.DiscountPct > 0 {
			line("Цена до скидки", p.PriceBeforeDiscount)
		}
		line("ROI, %", p.ROIPct)
		line("Наценка", p.Markup)
	} else {
		line("Статус", string(res.Status))
		line("Причина", res.Reason)
	}
	if res.Warning.Message != "" {
		line("Предупреждение", res.Warning.Message)
	}

	f.SetColWidth(calculationSheet, "A", "A", 40)
	f.SetColWidth(calculationSheet, "B", "B", 24)

	// Save file
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}

	filename := fmt.Sprintf("calculation_%s_%s.xlsx", res.CreatedAt.Format("20060102_1504"), res.ID)
	path := filepath.Join(dir, filename)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save Excel file: %w", err)
	}

	return path, nil
}
