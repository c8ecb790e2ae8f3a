package bot

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"wbcalc/internal/pricing"
)

const maxSideCM = 1000

var (
	errNotNumber = errors.New("not a number")
	errCallback  = errors.New("unknown callback")
)

const (
	callbackWarehouse = "wh"
	callbackCategory  = "cat"
	callbackExcel     = "xlsx"
)

var dimensionSeparators = strings.NewReplacer(
	"x", " ",
	"X", " ",
	"×", " ",
	"х", " ",
	"Х", " ",
	"*", " ",
	"/", " ",
	";", " ",
)

// parseDimensions accepts "30x20x10", "30×20×10", "30 20 10" or "30*20*10".
// Commas are decimal separators.
func parseDimensions(text string) (pricing.Dimensions, error) {
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "см"))
	fields := strings.Fields(dimensionSeparators.Replace(text))
	if len(fields) != 3 {
		return pricing.Dimensions{}, fmt.Errorf("need 3 sides, got %d", len(fields))
	}

	var sides [3]float64
	for i, f := range fields {
		v, err := parseNumber(f)
		if err != nil {
			return pricing.Dimensions{}, err
		}
		if v <= 0 || v > maxSideCM {
			return pricing.Dimensions{}, fmt.Errorf("side %v out of range", v)
		}
		sides[i] = v
	}
	return pricing.Dimensions{LengthCM: sides[0], WidthCM: sides[1], HeightCM: sides[2]}, nil
}

// parseAmount reads a non-negative ruble amount like "1 200,50 ₽".
func parseAmount(text string) (float64, error) {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, suffix := range []string{"₽", "руб.", "руб", "р."} {
		t = strings.TrimSuffix(t, suffix)
	}
	t = strings.ReplaceAll(strings.TrimSpace(t), " ", "")
	v, err := parseNumber(t)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative amount %v", v)
	}
	return v, nil
}

// parseNumbers reads whitespace separated numbers, "%" signs are ignored.
func parseNumbers(text string) ([]float64, error) {
	fields := strings.Fields(strings.ReplaceAll(text, "%", " "))
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := parseNumber(f)
		if err != nil {
			return nil, err
		}
		if v < 0 {
			return nil, fmt.Errorf("negative value %v", v)
		}
		out = append(out, v)
	}
	return out, nil
}

// parseCommission recognizes an explicit commission like "25%".
func parseCommission(text string) (float64, bool) {
	t := strings.TrimSpace(text)
	if !strings.HasSuffix(t, "%") {
		return 0, false
	}
	v, err := parseNumber(strings.TrimSpace(strings.TrimSuffix(t, "%")))
	if err != nil || v < 0 || v >= 100 {
		return 0, false
	}
	return v, true
}

func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", errNotNumber, s)
	}
	return v, nil
}

func isDefaultsAnswer(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "+", "по умолчанию", "default", "ок", "ok":
		return true
	}
	return false
}

func callbackData(kind string, value string) string {
	return kind + ":" + value
}

func parseCallback(data string) (kind, value string, err error) {
	kind, value, ok := strings.Cut(data, ":")
	if !ok || value == "" {
		return "", "", fmt.Errorf("%w: %q", errCallback, data)
	}
	switch kind {
	case callbackWarehouse, callbackCategory, callbackExcel:
		return kind, value, nil
	}
	return "", "", fmt.Errorf("%w: %q", errCallback, data)
}

func formatNum(v float64) string {
	return strconv.FormatFloat(pricing.Round2(v), 'f', -1, 64)
}
