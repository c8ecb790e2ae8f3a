// Package catalog holds the reference data the calculator is fed with:
// warehouses with box delivery tariffs, category commissions and daily
// acceptance coefficients.
package catalog

import (
	"errors"
	"sort"
	"strings"
	"time"

	"wbcalc/internal/pricing"
)

var ErrNotFound = errors.New("not found")

type Warehouse struct {
	ID      int64                       `json:"id" db:"id"`
	Name    string                      `json:"name" db:"name"`
	Tariffs *pricing.BoxDeliveryTariffs `json:"tariffs,omitempty"`
	// BoxUnavailable is set when upstream reports the box coefficient as
	// unavailable. Tariffs is nil then.
	BoxUnavailable bool `json:"boxUnavailable,omitempty"`
}

// Priced reports whether the warehouse has usable box rates.
func (w Warehouse) Priced() bool {
	return w.Tariffs != nil && !w.BoxUnavailable
}

// ResolvedTariffs returns the warehouse rates, or the defaults when the
// warehouse has none. A warehouse closed to boxes resolves to unavailable
// rates.
func (w Warehouse) ResolvedTariffs() pricing.ResolvedTariffs {
	if w.BoxUnavailable {
		return pricing.ResolvedTariffs{Source: pricing.SourceWarehouse, Unavailable: true}
	}
	if w.Tariffs == nil {
		return pricing.ResolvedTariffs{
			BoxDeliveryTariffs: pricing.DefaultBoxDeliveryTariffs(),
			Source:             pricing.SourceDefault,
		}
	}
	return pricing.ResolvedTariffs{
		BoxDeliveryTariffs: *w.Tariffs,
		Source:             pricing.SourceWarehouse,
	}
}

// CategoryCommission is one row of the bulk commissions dataset: a subject
// (leaf category) and the parent it belongs to.
type CategoryCommission struct {
	SubjectID     int64   `json:"subjectId" db:"subject_id"`
	SubjectName   string  `json:"subjectName" db:"subject_name"`
	ParentID      int64   `json:"parentId" db:"parent_id"`
	ParentName    string  `json:"parentName" db:"parent_name"`
	CommissionPct float64 `json:"commissionPct" db:"commission_pct"`
}

// FindCommission looks the subject up first and falls back to the first
// row of the same parent category.
func FindCommission(rows []CategoryCommission, subjectID, parentID int64) (CategoryCommission, error) {
	if subjectID != 0 {
		for _, r := range rows {
			if r.SubjectID == subjectID {
				return r, nil
			}
		}
	}
	if parentID != 0 {
		for _, r := range rows {
			if r.ParentID == parentID {
				return r, nil
			}
		}
	}
	return CategoryCommission{}, ErrNotFound
}

// SearchCommissions matches subject names case-insensitively, exact matches first.
func SearchCommissions(rows []CategoryCommission, query string, limit int) []CategoryCommission {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var exact, partial []CategoryCommission
	for _, r := range rows {
		name := strings.ToLower(r.SubjectName)
		switch {
		case name == q:
			exact = append(exact, r)
		case strings.Contains(name, q):
			partial = append(partial, r)
		}
	}
	sort.SliceStable(partial, func(i, j int) bool {
		return partial[i].SubjectName < partial[j].SubjectName
	})

	out := append(exact, partial...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// AcceptanceRecord is a raw per-warehouse, per-date acceptance coefficient
// on the upstream x100 scale, where -1 marks a closed day.
type AcceptanceRecord struct {
	WarehouseID int64     `json:"warehouseId" db:"warehouse_id"`
	Date        time.Time `json:"date" db:"date"`
	Coefficient int       `json:"coefficient" db:"coefficient"`
	IsAvailable bool      `json:"isAvailable" db:"is_available"`
}

func (r AcceptanceRecord) Normalized() pricing.Coefficient {
	return pricing.CoefficientFromRaw(r.Coefficient, r.IsAvailable)
}

// AcceptanceSummary is the availability picture of one warehouse.
type AcceptanceSummary struct {
	WarehouseID    int64     `json:"warehouseId"`
	Days           int       `json:"days"`
	AvailableDays  int       `json:"availableDays"`
	Average        float64   `json:"average"`
	HasAvailable   bool      `json:"hasAvailable"`
	NextAvailable  time.Time `json:"nextAvailable,omitempty"`
	NextMultiplier float64   `json:"nextMultiplier,omitempty"`
}

// SummarizeAcceptance averages coefficients over available days only and
// finds the earliest available day.
func SummarizeAcceptance(warehouseID int64, records []AcceptanceRecord) AcceptanceSummary {
	out := AcceptanceSummary{WarehouseID: warehouseID}

	var coefficients []pricing.Coefficient
	for _, r := range records {
		if r.WarehouseID != warehouseID {
			continue
		}
		out.Days++
		c := r.Normalized()
		coefficients = append(coefficients, c)
		if !c.IsAvailable() {
			continue
		}
		out.AvailableDays++
		if out.NextAvailable.IsZero() || r.Date.Before(out.NextAvailable) {
			out.NextAvailable = r.Date
			out.NextMultiplier = c.Decimal()
		}
	}

	out.Average, out.HasAvailable = pricing.AverageAvailable(coefficients)
	out.Average = pricing.Round3(out.Average)
	return out
}
