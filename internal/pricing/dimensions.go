package pricing

import "math"

// Cargo size boundaries set by the marketplace, by longest side in cm.
const (
	MaxMGTDimensionCM = 60.0
	MaxSGTDimensionCM = 120.0
)

// ReasonKGTManualLogistics is reported when forward logistics cannot be auto-filled.
const ReasonKGTManualLogistics = "КГТ: одна из сторон больше 120 см, логистику нужно указать вручную"

// ReasonIncompleteDimensions is reported when one of the dimensions is missing.
const ReasonIncompleteDimensions = "габариты не заполнены"

type CargoType string

const (
	CargoMGT CargoType = "MGT"
	CargoSGT CargoType = "SGT"
	CargoKGT CargoType = "KGT"
)

// Label returns the seller-facing name of the cargo class.
func (c CargoType) Label() string {
	switch c {
	case CargoMGT:
		return "МГТ (малогабаритный)"
	case CargoSGT:
		return "СГТ (среднегабаритный)"
	case CargoKGT:
		return "КГТ (крупногабаритный)"
	default:
		return string(c)
	}
}

// AllowsAutoLogistics reports whether forward logistics may be filled from tariffs.
func (c CargoType) AllowsAutoLogistics() bool {
	return c != CargoKGT
}

// Dimensions are product package sides in centimetres.
type Dimensions struct {
	LengthCM float64 `json:"length_cm"`
	WidthCM  float64 `json:"width_cm"`
	HeightCM float64 `json:"height_cm"`
}

// HasValidDimensions reports whether every side is positive.
func HasValidDimensions(d Dimensions) bool {
	return d.LengthCM > 0 && d.WidthCM > 0 && d.HeightCM > 0
}

// VolumeLiters returns the billing volume. Incomplete dimensions give 0.
func VolumeLiters(d Dimensions) float64 {
	if !HasValidDimensions(d) {
		return 0
	}
	return Round3(d.LengthCM * d.WidthCM * d.HeightCM / 1000)
}

func MaxDimension(d Dimensions) float64 {
	return math.Max(d.LengthCM, math.Max(d.WidthCM, d.HeightCM))
}

// DetectCargoType classifies by the longest side only, never by volume.
func DetectCargoType(d Dimensions) CargoType {
	m := MaxDimension(d)
	switch {
	case m <= MaxMGTDimensionCM:
		return CargoMGT
	case m <= MaxSGTDimensionCM:
		return CargoSGT
	default:
		return CargoKGT
	}
}
