package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wbcalc/internal/calculator"
	"wbcalc/internal/catalog"
	"wbcalc/internal/pricing"
	redisclient "wbcalc/pkg/redis"
)

var warehouseColumns = []string{"id", "name", "base_liter_rub", "additional_liter_rub", "coefficient", "box_unavailable"}

func newTestStorage(t *testing.T) (*PostgresStorage, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mr := miniredis.RunT(t)
	cache := redisclient.New(mr.Addr(), "", 0, time.Hour)
	t.Cleanup(cache.Close)

	return New(sqlx.NewDb(db, "postgres"), cache, time.Hour, zap.NewNop()), mock, mr
}

func TestGetWarehouse_ReadThroughCache(t *testing.T) {
	s, mock, mr := newTestStorage(t)
	ctx := context.Background()

	mock.ExpectQuery(`FROM warehouses\s+WHERE id = \$1`).
		WithArgs(int64(507)).
		WillReturnRows(sqlmock.NewRows(warehouseColumns).AddRow(507, "Коледино", 48.0, 5.0, 1.25, false))

	wh, err := s.GetWarehouse(ctx, 507)
	require.NoError(t, err)
	require.NotNil(t, wh.Tariffs)
	assert.Equal(t, 1.25, wh.Tariffs.Coefficient)
	assert.True(t, mr.Exists("warehouse:507"))
	assert.Equal(t, time.Hour, mr.TTL("warehouse:507"))

	// second read is served from redis
	wh, err = s.GetWarehouse(ctx, 507)
	require.NoError(t, err)
	assert.Equal(t, "Коледино", wh.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetWarehouse_WithoutTariffs(t *testing.T) {
	s, mock, _ := newTestStorage(t)

	mock.ExpectQuery(`FROM warehouses\s+WHERE id = \$1`).
		WithArgs(int64(117986)).
		WillReturnRows(sqlmock.NewRows(warehouseColumns).AddRow(117986, "Казань", nil, nil, nil, false))

	wh, err := s.GetWarehouse(context.Background(), 117986)
	require.NoError(t, err)
	assert.Nil(t, wh.Tariffs)
	assert.Equal(t, pricing.SourceDefault, wh.ResolvedTariffs().Source)
}

func TestGetWarehouse_ClosedToBoxes(t *testing.T) {
	s, mock, _ := newTestStorage(t)

	mock.ExpectQuery(`FROM warehouses\s+WHERE id = \$1`).
		WithArgs(int64(206348)).
		WillReturnRows(sqlmock.NewRows(warehouseColumns).AddRow(206348, "Тула", 48.0, 5.0, nil, true))

	wh, err := s.GetWarehouse(context.Background(), 206348)
	require.NoError(t, err)
	assert.True(t, wh.BoxUnavailable)
	assert.Nil(t, wh.Tariffs)
	assert.True(t, wh.ResolvedTariffs().Unavailable)
}

func TestGetWarehouse_NotFound(t *testing.T) {
	s, mock, mr := newTestStorage(t)

	mock.ExpectQuery(`FROM warehouses\s+WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetWarehouse(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	assert.False(t, mr.Exists("warehouse:1"))
}

func TestUpsertWarehouses_InvalidatesCache(t *testing.T) {
	s, mock, mr := newTestStorage(t)
	require.NoError(t, mr.Set("warehouses", "[]"))
	require.NoError(t, mr.Set("warehouse:507", "{}"))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO warehouses`).
		WithArgs(int64(507), "Коледино", 48.0, 5.0, 1.25, false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO warehouses`).
		WithArgs(int64(117986), "Казань", nil, nil, nil, false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO warehouses`).
		WithArgs(int64(206348), "Тула", nil, nil, nil, true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.UpsertWarehouses(context.Background(), []catalog.Warehouse{
		{ID: 507, Name: "Коледино", Tariffs: &pricing.BoxDeliveryTariffs{BaseLiterRub: 48, AdditionalLiterRub: 5, Coefficient: 1.25}},
		{ID: 117986, Name: "Казань"},
		{ID: 206348, Name: "Тула", BoxUnavailable: true},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.False(t, mr.Exists("warehouses"))
	assert.False(t, mr.Exists("warehouse:507"))
}

func TestUpsertCommissions_RollsBack(t *testing.T) {
	s, mock, _ := newTestStorage(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO category_commissions`).
		WithArgs(int64(1), "Футболки", int64(10), "Одежда", 25.0).
		WillReturnError(errors.New("check constraint violated"))
	mock.ExpectRollback()

	err := s.UpsertCommissions(context.Background(), []catalog.CategoryCommission{
		{SubjectID: 1, SubjectName: "Футболки", ParentID: 10, ParentName: "Одежда", CommissionPct: 25},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subject 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListCommissions_Cached(t *testing.T) {
	s, mock, _ := newTestStorage(t)

	mock.ExpectQuery(`FROM category_commissions`).
		WillReturnRows(sqlmock.NewRows([]string{"subject_id", "subject_name", "parent_id", "parent_name", "commission_pct"}).
			AddRow(1, "Футболки", 10, "Одежда", 25.0))

	for i := 0; i < 2; i++ {
		rows, err := s.ListCommissions(context.Background())
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, 25.0, rows[0].CommissionPct)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAcceptance(t *testing.T) {
	s, mock, _ := newTestStorage(t)
	from := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM acceptance_coefficients`).
		WithArgs(int64(507), from).
		WillReturnRows(sqlmock.NewRows([]string{"warehouse_id", "date", "coefficient", "is_available"}).
			AddRow(507, from, -1, false).
			AddRow(507, from.AddDate(0, 0, 1), 150, true))

	records, err := s.ListAcceptance(context.Background(), 507, from)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.False(t, records[0].Normalized().IsAvailable())
	assert.Equal(t, 1.5, records[1].Normalized().Decimal())
}

func solvedResult(t *testing.T) *calculator.Result {
	t.Helper()
	cat := &calculator.MemoryCatalog{
		Warehouses: []catalog.Warehouse{
			{ID: 507, Name: "Коледино", Tariffs: &pricing.BoxDeliveryTariffs{BaseLiterRub: 48, AdditionalLiterRub: 5, Coefficient: 1.25}},
		},
		Commissions: []catalog.CategoryCommission{
			{SubjectID: 1, SubjectName: "Футболки", ParentID: 10, ParentName: "Одежда", CommissionPct: 25},
		},
	}
	svc := calculator.New(calculator.Options{Tariffs: cat, Commissions: cat})

	res, err := svc.Calculate(context.Background(), calculator.Request{
		UserID:              42,
		Dimensions:          pricing.Dimensions{LengthCM: 30, WidthCM: 20, HeightCM: 10},
		WarehouseID:         507,
		SubjectID:           1,
		COGSRub:             500,
		LogisticsReverseRub: 50,
		BuybackPct:          90,
		AcquiringPct:        1.5,
		AdvertisingPct:      10,
		TaxIncomePct:        6,
		MarginPct:           20,
		DiscountPct:         30,
	})
	require.NoError(t, err)
	require.True(t, res.Solvable)
	return res
}

func TestSaveAndGetCalculation(t *testing.T) {
	s, mock, _ := newTestStorage(t)
	ctx := context.Background()
	res := solvedResult(t)

	mock.ExpectExec(`INSERT INTO calculations`).
		WithArgs(res.ID, int64(42), int64(507), "ok", 1590.0, "none", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.SaveCalculation(ctx, res))

	payload, err := json.Marshal(res)
	require.NoError(t, err)
	mock.ExpectQuery(`SELECT payload FROM calculations WHERE id = \$1`).
		WithArgs(res.ID).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

	got, err := s.GetCalculation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.ID, got.ID)
	assert.Equal(t, calculator.StatusOK, got.Status)
	require.NotNil(t, got.Pricing)
	assert.Equal(t, 1590.0, got.Pricing.Recommended.Price)
	assert.Equal(t, 30.0, got.Pricing.DiscountPct)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCalculation_NotFound(t *testing.T) {
	s, mock, _ := newTestStorage(t)
	ctx := context.Background()

	_, err := s.GetCalculation(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)

	id := "3f1f6c1e-5a53-4b0c-9d5e-0b8f5b6d2a11"
	mock.ExpectQuery(`SELECT payload FROM calculations`).WithArgs(id).WillReturnError(sql.ErrNoRows)
	_, err = s.GetCalculation(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListCalculations(t *testing.T) {
	s, mock, _ := newTestStorage(t)
	res := solvedResult(t)
	payload, err := json.Marshal(res)
	require.NoError(t, err)

	mock.ExpectQuery(`FROM calculations\s+WHERE user_id = \$1`).
		WithArgs(int64(42), int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

	list, err := s.ListCalculations(context.Background(), 42, 5)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, res.ID, list[0].ID)
}

func TestInvalidateCatalogCache(t *testing.T) {
	s, mock, mr := newTestStorage(t)
	for _, key := range []string{"warehouses", "commissions", "warehouse:507"} {
		require.NoError(t, mr.Set(key, "x"))
	}

	mock.ExpectQuery(`SELECT id FROM warehouses`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(507))

	require.NoError(t, s.InvalidateCatalogCache(context.Background()))
	assert.Empty(t, mr.Keys())
}

func TestCheckRateLimit(t *testing.T) {
	s, _, mr := newTestStorage(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		limited, err := s.CheckRateLimit(ctx, 42, "calc", 2, time.Minute)
		require.NoError(t, err)
		assert.False(t, limited)
	}

	limited, err := s.CheckRateLimit(ctx, 42, "calc", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, limited)
	assert.Equal(t, time.Minute, mr.TTL("ratelimit:42:calc"))

	mr.FastForward(time.Minute)
	limited, err = s.CheckRateLimit(ctx, 42, "calc", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, limited)
}

func TestCheckRateLimit_NoCache(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(sqlx.NewDb(db, "postgres"), nil, time.Hour, zap.NewNop())
	limited, err := s.CheckRateLimit(context.Background(), 1, "calc", 0, time.Minute)
	require.NoError(t, err)
	assert.False(t, limited)
}
