package pricing

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsolvable means the percentage rates eat the whole price, so no
	// finite positive price covers the fixed costs.
	ErrUnsolvable = errors.New("percentage rates reach 100% of price")

	ErrInvalidInput = errors.New("invalid pricing input")
)

// FixedCosts are per-unit ruble costs independent of the sale price.
// LogisticsReverseRub is the buyback-adjusted value.
type FixedCosts struct {
	COGSRub             float64 `json:"cogsRub"`
	LogisticsForwardRub float64 `json:"logisticsForwardRub"`
	LogisticsReverseRub float64 `json:"logisticsReverseRub"`
	StorageRub          float64 `json:"storageRub"`
}

func (f FixedCosts) Total() float64 {
	return f.COGSRub + f.LogisticsForwardRub + f.LogisticsReverseRub + f.StorageRub
}

func (f FixedCosts) validate() error {
	for name, v := range map[string]float64{
		"cogs":              f.COGSRub,
		"logistics forward": f.LogisticsForwardRub,
		"logistics reverse": f.LogisticsReverseRub,
		"storage":           f.StorageRub,
	} {
		if v < 0 || !isFinite(v) {
			return fmt.Errorf("%w: %s cost %v", ErrInvalidInput, name, v)
		}
	}
	return nil
}

// PercentageRates are shares of the final price, in percent.
type PercentageRates struct {
	CommissionPct  float64 `json:"commissionPct"`
	AcquiringPct   float64 `json:"acquiringPct"`
	AdvertisingPct float64 `json:"advertisingPct"`
	VATPct         float64 `json:"vatPct"`
	TaxIncomePct   float64 `json:"taxIncomePct"`
	MarginPct      float64 `json:"marginPct"`
}

func (r PercentageRates) Total() float64 {
	return r.CommissionPct + r.AcquiringPct + r.AdvertisingPct + r.VATPct + r.TaxIncomePct + r.MarginPct
}

func (r PercentageRates) validate() error {
	for name, v := range map[string]float64{
		"commission":  r.CommissionPct,
		"acquiring":   r.AcquiringPct,
		"advertising": r.AdvertisingPct,
		"vat":         r.VATPct,
		"tax":         r.TaxIncomePct,
		"margin":      r.MarginPct,
	} {
		if v < 0 || !isFinite(v) {
			return fmt.Errorf("%w: %s rate %v", ErrInvalidInput, name, v)
		}
	}
	return nil
}

type PercentageCost struct {
	Pct float64 `json:"pct"`
	Rub float64 `json:"rub"`
}

type PercentageCostBreakdown struct {
	CommissionWB PercentageCost `json:"commissionWb"`
	Acquiring    PercentageCost `json:"acquiring"`
	Advertising  PercentageCost `json:"advertising"`
	VAT          PercentageCost `json:"vat"`
	TaxIncome    PercentageCost `json:"taxIncome"`
	Margin       PercentageCost `json:"margin"`
}

func (b PercentageCostBreakdown) TotalRub() float64 {
	return b.CommissionWB.Rub + b.Acquiring.Rub + b.Advertising.Rub + b.VAT.Rub + b.TaxIncome.Rub + b.Margin.Rub
}

func (b PercentageCostBreakdown) TotalPct() float64 {
	return b.CommissionWB.Pct + b.Acquiring.Pct + b.Advertising.Pct + b.VAT.Pct + b.TaxIncome.Pct + b.Margin.Pct
}

type PriceSolution struct {
	Price        float64                 `json:"price"`
	Fixed        FixedCosts              `json:"fixed"`
	FixedTotal   float64                 `json:"fixedTotal"`
	TotalPctRate float64                 `json:"totalPctRate"`
	Costs        PercentageCostBreakdown `json:"costs"`
}

// Reconciles reports whether fixed costs plus percentage amounts add up to the price.
func (s PriceSolution) Reconciles(tolerance float64) bool {
	diff := s.FixedTotal + s.Costs.TotalRub() - s.Price
	return diff <= tolerance && diff >= -tolerance
}

// SolvePrice finds P such that P = fixed + P*rate/100, i.e.
// P = fixed / (1 - rate/100). A total rate of 100% or more has no finite
// positive solution and yields ErrUnsolvable.
//
// Amounts are rounded to kopecks; the margin takes the rounding remainder
// so the breakdown sums to the price exactly.
func SolvePrice(fixed FixedCosts, rates PercentageRates) (PriceSolution, error) {
	if err := fixed.validate(); err != nil {
		return PriceSolution{}, err
	}
	if err := rates.validate(); err != nil {
		return PriceSolution{}, err
	}

	totalRate := rates.Total()
	fixedTotal := Round2(fixed.Total())
	out := PriceSolution{
		Fixed:        fixed,
		FixedTotal:   fixedTotal,
		TotalPctRate: Round2(totalRate),
	}
	if reaches(totalRate, 100) {
		return out, fmt.Errorf("%w: total %s%%", ErrUnsolvable, formatPct(totalRate))
	}

	price := Round2(fixedTotal / (1 - totalRate/100))
	amount := func(pct float64) PercentageCost {
		return PercentageCost{Pct: pct, Rub: Round2(price * pct / 100)}
	}

	costs := PercentageCostBreakdown{
		CommissionWB: amount(rates.CommissionPct),
		Acquiring:    amount(rates.AcquiringPct),
		Advertising:  amount(rates.AdvertisingPct),
		VAT:          amount(rates.VATPct),
		TaxIncome:    amount(rates.TaxIncomePct),
	}
	costs.Margin = PercentageCost{
		Pct: rates.MarginPct,
		Rub: Round2(price - fixedTotal - costs.TotalRub()),
	}

	out.Price = price
	out.Costs = costs
	return out, nil
}

// TwoLevelPricingResult pairs the break-even price (zero margin) with the
// recommended price (target margin), plus the storefront price before the
// seller discount.
type TwoLevelPricingResult struct {
	BreakEven           PriceSolution           `json:"breakEven"`
	Recommended         PriceSolution           `json:"recommended"`
	PercentageCosts     PercentageCostBreakdown `json:"percentageCosts"`
	DiscountPct         float64                 `json:"discountPct"`
	PriceBeforeDiscount float64                 `json:"priceBeforeDiscount"`
	ROIPct              float64                 `json:"roiPct"`
	Markup              float64                 `json:"markup"`
}

// TotalPct is the aggregate rate used for the high-rate warning.
func (r TwoLevelPricingResult) TotalPct() float64 {
	return r.PercentageCosts.TotalPct()
}

// SolveTwoLevel solves both price levels. When only the recommended level is
// unsolvable the returned result still carries the break-even level.
func SolveTwoLevel(fixed FixedCosts, rates PercentageRates, discountPct float64) (TwoLevelPricingResult, error) {
	var out TwoLevelPricingResult

	breakEvenRates := rates
	breakEvenRates.MarginPct = 0
	breakEven, err := SolvePrice(fixed, breakEvenRates)
	if err != nil {
		return out, fmt.Errorf("break-even price: %w", err)
	}
	out.BreakEven = breakEven

	recommended, err := SolvePrice(fixed, rates)
	if err != nil {
		return out, fmt.Errorf("recommended price: %w", err)
	}
	out.Recommended = recommended
	out.PercentageCosts = recommended.Costs
	out.PriceBeforeDiscount = recommended.Price

	if discountPct > 0 && discountPct < 100 {
		out.DiscountPct = discountPct
		out.PriceBeforeDiscount = Round2(recommended.Price / (1 - discountPct/100))
	}

	if fixed.COGSRub > 0 {
		out.ROIPct = Round2(recommended.Costs.Margin.Rub / fixed.COGSRub * 100)
		out.Markup = Round2(recommended.Price / fixed.COGSRub)
	}
	return out, nil
}
