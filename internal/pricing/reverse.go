package pricing

// EffectiveReverseLogistics discounts a manually entered return shipping cost
// by the buyback share: only unbought items travel back. buybackPct is
// clamped to [0, 100]. The result is rounded to kopecks like every other
// fixed cost.
func EffectiveReverseLogistics(reverseLogisticsRub, buybackPct float64) float64 {
	if reverseLogisticsRub <= 0 || !isFinite(reverseLogisticsRub) {
		return 0
	}
	buyback := clamp(buybackPct, 0, 100)
	return Round2(reverseLogisticsRub * (1 - buyback/100))
}
