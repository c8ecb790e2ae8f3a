package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"wbcalc/internal/calculator"
	"wbcalc/internal/catalog"
	"wbcalc/internal/config"
	"wbcalc/internal/pricing"
)

// ErrNotFound is shared with the catalog so callers can match either.
var ErrNotFound = catalog.ErrNotFound

const (
	warehousesCacheKey  = "warehouses"
	commissionsCacheKey = "commissions"
)

// Cache is the redis side of the storage, see pkg/redis.Client.
type Cache interface {
	GetJSON(ctx context.Context, key string, v any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) (bool, error)
}

type PostgresStorage struct {
	db       *sqlx.DB
	cache    Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

type warehouseRow struct {
	ID                 int64           `db:"id"`
	Name               string          `db:"name"`
	BaseLiterRub       sql.NullFloat64 `db:"base_liter_rub"`
	AdditionalLiterRub sql.NullFloat64 `db:"additional_liter_rub"`
	Coefficient        sql.NullFloat64 `db:"coefficient"`
	BoxUnavailable     bool            `db:"box_unavailable"`
}

func (r warehouseRow) toWarehouse() catalog.Warehouse {
	wh := catalog.Warehouse{ID: r.ID, Name: r.Name, BoxUnavailable: r.BoxUnavailable}
	if r.BaseLiterRub.Valid && r.AdditionalLiterRub.Valid && !r.BoxUnavailable {
		wh.Tariffs = &pricing.BoxDeliveryTariffs{
			BaseLiterRub:       r.BaseLiterRub.Float64,
			AdditionalLiterRub: r.AdditionalLiterRub.Float64,
			Coefficient:        r.Coefficient.Float64,
		}
	}
	return wh
}

func NewPostgresStorage(ctx context.Context, cfg config.Config, cache Cache, logger *zap.Logger) (*PostgresStorage, error) {
	const operation = "storage.NewPostgresStorage"

	var db *sqlx.DB
	var err error

	retryPolicy := backoff.NewExponentialBackOff()
	retryPolicy.MaxElapsedTime = cfg.Database.ConnectTimeout
	retryPolicy.MaxInterval = 15 * time.Second

	logger.Info("Connecting to PostgreSQL...")

	err = backoff.RetryNotify(
		func() error {
			db, err = sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN())
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}

			if err = db.PingContext(ctx); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
			return nil
		},
		backoff.WithContext(retryPolicy, ctx),
		func(err error, duration time.Duration) {
			logger.Warn("PostgreSQL connection failed, retrying...",
				zap.Error(err),
				zap.Duration("next_attempt_in", duration))
		},
	)

	if err != nil {
		return nil, fmt.Errorf("%s: failed to connect after retries: %w", operation, err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)

	logger.Info("Successfully connected to PostgreSQL")
	return New(db, cache, cfg.Pricing.TariffCacheTTL, logger), nil
}

// New wraps an open connection. cache may be nil.
func New(db *sqlx.DB, cache Cache, cacheTTL time.Duration, logger *zap.Logger) *PostgresStorage {
	return &PostgresStorage{
		db:       db,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// DB exposes the raw connection for migrations.
func (s *PostgresStorage) DB() *sql.DB {
	return s.db.DB
}

func (s *PostgresStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStorage) GetWarehouse(ctx context.Context, id int64) (*catalog.Warehouse, error) {
	const operation = "storage.GetWarehouse"

	cacheKey := fmt.Sprintf("warehouse:%d", id)

	// Try Redis first
	var cached catalog.Warehouse
	if s.cacheGet(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	// Fall back to Postgres
	const query = `
        SELECT id, name, base_liter_rub, additional_liter_rub, coefficient, box_unavailable
        FROM warehouses
        WHERE id = $1
    `

	var row warehouseRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: warehouse %d: %w", operation, id, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: failed to get warehouse: %w", operation, err)
	}

	wh := row.toWarehouse()
	s.cacheSet(ctx, cacheKey, wh)
	return &wh, nil
}

func (s *PostgresStorage) ListWarehouses(ctx context.Context) ([]catalog.Warehouse, error) {
	const operation = "storage.ListWarehouses"

	var cached []catalog.Warehouse
	if s.cacheGet(ctx, warehousesCacheKey, &cached) {
		return cached, nil
	}

	const query = `
        SELECT id, name, base_liter_rub, additional_liter_rub, coefficient, box_unavailable
        FROM warehouses
        ORDER BY name
    `

	var rows []warehouseRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("%s: failed to list warehouses: %w", operation, err)
	}

	warehouses := make([]catalog.Warehouse, 0, len(rows))
	for _, r := range rows {
		warehouses = append(warehouses, r.toWarehouse())
	}

	s.cacheSet(ctx, warehousesCacheKey, warehouses)
	return warehouses, nil
}

func (s *PostgresStorage) UpsertWarehouses(ctx context.Context, warehouses []catalog.Warehouse) error {
	const operation = "storage.UpsertWarehouses"

	const query = `
        INSERT INTO warehouses (id, name, base_liter_rub, additional_liter_rub, coefficient, box_unavailable, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW())
        ON CONFLICT (id) DO UPDATE SET
            name = EXCLUDED.name,
            base_liter_rub = EXCLUDED.base_liter_rub,
            additional_liter_rub = EXCLUDED.additional_liter_rub,
            coefficient = EXCLUDED.coefficient,
            box_unavailable = EXCLUDED.box_unavailable,
            updated_at = NOW()
    `

	keys := []string{warehousesCacheKey}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, wh := range warehouses {
			var base, additional, coefficient sql.NullFloat64
			if wh.Tariffs != nil {
				base = sql.NullFloat64{Float64: wh.Tariffs.BaseLiterRub, Valid: true}
				additional = sql.NullFloat64{Float64: wh.Tariffs.AdditionalLiterRub, Valid: true}
				coefficient = sql.NullFloat64{Float64: wh.Tariffs.Coefficient, Valid: true}
			}
			if _, err := tx.ExecContext(ctx, query, wh.ID, wh.Name, base, additional, coefficient, wh.BoxUnavailable); err != nil {
				return fmt.Errorf("warehouse %d: %w", wh.ID, err)
			}
			keys = append(keys, fmt.Sprintf("warehouse:%d", wh.ID))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}

	s.cacheDel(ctx, keys...)
	return nil
}

func (s *PostgresStorage) ListCommissions(ctx context.Context) ([]catalog.CategoryCommission, error) {
	const operation = "storage.ListCommissions"

	var cached []catalog.CategoryCommission
	if s.cacheGet(ctx, commissionsCacheKey, &cached) {
		return cached, nil
	}

	const query = `
        SELECT subject_id, subject_name, parent_id, parent_name, commission_pct
        FROM category_commissions
        ORDER BY subject_name
    `

	var rows []catalog.CategoryCommission
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("%s: failed to list commissions: %w", operation, err)
	}

	s.cacheSet(ctx, commissionsCacheKey, rows)
	return rows, nil
}

func (s *PostgresStorage) UpsertCommissions(ctx context.Context, rows []catalog.CategoryCommission) error {
	const operation = "storage.UpsertCommissions"

	const query = `
        INSERT INTO category_commissions (subject_id, subject_name, parent_id, parent_name, commission_pct, updated_at)
        VALUES (:subject_id, :subject_name, :parent_id, :parent_name, :commission_pct, NOW())
        ON CONFLICT (subject_id) DO UPDATE SET
            subject_name = EXCLUDED.subject_name,
            parent_id = EXCLUDED.parent_id,
            parent_name = EXCLUDED.parent_name,
            commission_pct = EXCLUDED.commission_pct,
            updated_at = NOW()
    `

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, row := range rows {
			if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
				return fmt.Errorf("subject %d: %w", row.SubjectID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}

	s.cacheDel(ctx, commissionsCacheKey)
	return nil
}

func (s *PostgresStorage) ListAcceptance(ctx context.Context, warehouseID int64, from time.Time) ([]catalog.AcceptanceRecord, error) {
	const operation = "storage.ListAcceptance"

	const query = `
        SELECT warehouse_id, date, coefficient, is_available
        FROM acceptance_coefficients
        WHERE warehouse_id = $1 AND date >= $2
        ORDER BY date
    `

	var records []catalog.AcceptanceRecord
	if err := s.db.SelectContext(ctx, &records, query, warehouseID, from); err != nil {
		return nil, fmt.Errorf("%s: failed to list coefficients: %w", operation, err)
	}
	return records, nil
}

func (s *PostgresStorage) UpsertAcceptance(ctx context.Context, records []catalog.AcceptanceRecord) error {
	const operation = "storage.UpsertAcceptance"

	const query = `
        INSERT INTO acceptance_coefficients (warehouse_id, date, coefficient, is_available, updated_at)
        VALUES (:warehouse_id, :date, :coefficient, :is_available, NOW())
        ON CONFLICT (warehouse_id, date) DO UPDATE SET
            coefficient = EXCLUDED.coefficient,
            is_available = EXCLUDED.is_available,
            updated_at = NOW()
    `

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, r := range records {
			if _, err := tx.NamedExecContext(ctx, query, r); err != nil {
				return fmt.Errorf("warehouse %d on %s: %w", r.WarehouseID, r.Date.Format("2006-01-02"), err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}

func (s *PostgresStorage) SaveCalculation(ctx context.Context, res *calculator.Result) error {
	const operation = "storage.SaveCalculation"

	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("%s: failed to marshal result: %w", operation, err)
	}

	var warehouseID sql.NullInt64
	if res.Request.WarehouseID != 0 {
		warehouseID = sql.NullInt64{Int64: res.Request.WarehouseID, Valid: true}
	}
	var price sql.NullFloat64
	if res.Solvable {
		price = sql.NullFloat64{Float64: res.RecommendedPrice(), Valid: true}
	}

	const query = `
        INSERT INTO calculations (id, user_id, warehouse_id, status, price, warning_level, payload, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `

	_, err = s.db.ExecContext(ctx, query,
		res.ID,
		res.UserID,
		warehouseID,
		string(res.Status),
		price,
		string(res.Warning.Level),
		string(payload),
		res.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s: failed to save calculation: %w", operation, err)
	}
	return nil
}

func (s *PostgresStorage) GetCalculation(ctx context.Context, id string) (*calculator.Result, error) {
	const operation = "storage.GetCalculation"

	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%s: calculation %q: %w", operation, id, ErrNotFound)
	}

	var payload []byte
	err := s.db.GetContext(ctx, &payload, `SELECT payload FROM calculations WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: calculation %s: %w", operation, id, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: failed to get calculation: %w", operation, err)
	}

	var res calculator.Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("%s: failed to decode calculation: %w", operation, err)
	}
	return &res, nil
}

// ListCalculations returns the user's latest calculations, newest first.
func (s *PostgresStorage) ListCalculations(ctx context.Context, userID int64, limit int) ([]calculator.Result, error) {
	const operation = "storage.ListCalculations"

	const query = `
        SELECT payload FROM calculations
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `

	var payloads [][]byte
	if err := s.db.SelectContext(ctx, &payloads, query, userID, limit); err != nil {
		return nil, fmt.Errorf("%s: failed to list calculations: %w", operation, err)
	}

	results := make([]calculator.Result, 0, len(payloads))
	for _, p := range payloads {
		var res calculator.Result
		if err := json.Unmarshal(p, &res); err != nil {
			return nil, fmt.Errorf("%s: failed to decode calculation: %w", operation, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// InvalidateCatalogCache drops every cached warehouse and the commission list.
func (s *PostgresStorage) InvalidateCatalogCache(ctx context.Context) error {
	const operation = "storage.InvalidateCatalogCache"

	if s.cache == nil {
		return nil
	}

	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, `SELECT id FROM warehouses`); err != nil {
		return fmt.Errorf("%s: failed to list warehouse ids: %w", operation, err)
	}

	keys := []string{warehousesCacheKey, commissionsCacheKey}
	for _, id := range ids {
		keys = append(keys, fmt.Sprintf("warehouse:%d", id))
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}

// CheckRateLimit counts the action and reports whether the user went over limit within window.
func (s *PostgresStorage) CheckRateLimit(ctx context.Context, userID int64, action string, limit int64, window time.Duration) (bool, error) {
	if s.cache == nil {
		return false, nil
	}

	key := fmt.Sprintf("ratelimit:%d:%s", userID, action)

	count, err := s.cache.Incr(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	// Set expiry if this is the first increment
	if count == 1 {
		if _, err := s.cache.Expire(ctx, key, window); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	return count > limit, nil
}

func (s *PostgresStorage) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Cache failures never fail a read, Postgres stays the source of truth.

func (s *PostgresStorage) cacheGet(ctx context.Context, key string, v any) bool {
	if s.cache == nil {
		return false
	}
	found, err := s.cache.GetJSON(ctx, key, v)
	if err != nil {
		s.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return found
}

func (s *PostgresStorage) cacheSet(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetJSON(ctx, key, v, s.cacheTTL); err != nil {
		s.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *PostgresStorage) cacheDel(ctx context.Context, keys ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.logger.Warn("Cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
