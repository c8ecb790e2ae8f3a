package calculator

import (
	"context"
	"errors"
	"time"

	"wbcalc/internal/catalog"
)

// TariffProvider returns catalog.ErrNotFound for unknown warehouses.
type TariffProvider interface {
	GetWarehouse(ctx context.Context, id int64) (*catalog.Warehouse, error)
}

type CommissionProvider interface {
	ListCommissions(ctx context.Context) ([]catalog.CategoryCommission, error)
}

type AcceptanceProvider interface {
	ListAcceptance(ctx context.Context, warehouseID int64, from time.Time) ([]catalog.AcceptanceRecord, error)
}

// Store persists results. GetCalculation returns catalog.ErrNotFound for unknown ids.
type Store interface {
	SaveCalculation(ctx context.Context, res *Result) error
	GetCalculation(ctx context.Context, id string) (*Result, error)
}

// FallbackTariffs asks Secondary when Primary does not know the warehouse.
type FallbackTariffs struct {
	Primary   TariffProvider
	Secondary TariffProvider
}

func (f FallbackTariffs) GetWarehouse(ctx context.Context, id int64) (*catalog.Warehouse, error) {
	wh, err := f.Primary.GetWarehouse(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) && f.Secondary != nil {
		return f.Secondary.GetWarehouse(ctx, id)
	}
	return wh, err
}

// WarehouseSource is the upstream listing, see pkg/api.
type WarehouseSource interface {
	GetWarehousesWithTariffs(ctx context.Context) ([]catalog.Warehouse, error)
}

// UpstreamTariffs looks warehouses up in the live upstream listing.
type UpstreamTariffs struct {
	Source WarehouseSource
}

func (u UpstreamTariffs) GetWarehouse(ctx context.Context, id int64) (*catalog.Warehouse, error) {
	warehouses, err := u.Source.GetWarehousesWithTariffs(ctx)
	if err != nil {
		return nil, err
	}
	for i := range warehouses {
		if warehouses[i].ID == id {
			return &warehouses[i], nil
		}
	}
	return nil, catalog.ErrNotFound
}

// MemoryCatalog serves reference data from memory. It backs the offline
// calc command.
type MemoryCatalog struct {
	Warehouses  []catalog.Warehouse
	Commissions []catalog.CategoryCommission
	Acceptance  []catalog.AcceptanceRecord
}

func (m *MemoryCatalog) GetWarehouse(_ context.Context, id int64) (*catalog.Warehouse, error) {
	for i := range m.Warehouses {
		if m.Warehouses[i].ID == id {
			wh := m.Warehouses[i]
			return &wh, nil
		}
	}
	return nil, catalog.ErrNotFound
}

func (m *MemoryCatalog) ListWarehouses(context.Context) ([]catalog.Warehouse, error) {
	return m.Warehouses, nil
}

func (m *MemoryCatalog) ListCommissions(context.Context) ([]catalog.CategoryCommission, error) {
	return m.Commissions, nil
}

func (m *MemoryCatalog) ListAcceptance(_ context.Context, warehouseID int64, from time.Time) ([]catalog.AcceptanceRecord, error) {
	var out []catalog.AcceptanceRecord
	for _, r := range m.Acceptance {
		if r.WarehouseID == warehouseID && !r.Date.Before(from) {
			out = append(out, r)
		}
	}
	return out, nil
}
