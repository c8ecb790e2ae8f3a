// Package calculator turns a seller's inputs into a priced result: it resolves
// warehouse tariffs and category commission, runs the pricing core and keeps
// the outcome.
package calculator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"wbcalc/internal/catalog"
	"wbcalc/internal/pricing"
)

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrWarehouseNotFound   = errors.New("warehouse not found")
	ErrCategoryNotFound    = errors.New("category not found")
	ErrCalculationNotFound = errors.New("calculation not found")
)

type Status string

const (
	StatusOK Status = "ok"
	// StatusUnsolvable means the percentage stack reaches 100% and no price covers it.
	StatusUnsolvable Status = "unsolvable"
	// StatusManualLogistics means forward logistics cannot be auto-filled, for a
	// KGT product or a warehouse closed to boxes, and a manual cost is needed.
	StatusManualLogistics Status = "manual_logistics_required"
)

type Request struct {
	UserID     int64              `json:"userId"`
	Dimensions pricing.Dimensions `json:"dimensions"`
	// WarehouseID 0 prices with the default tariffs.
	WarehouseID int64 `json:"warehouseId" validate:"gte=0"`
	SubjectID   int64 `json:"subjectId" validate:"gte=0"`
	ParentID    int64 `json:"parentId" validate:"gte=0"`
	// CommissionPct overrides the category lookup when set.
	CommissionPct *float64 `json:"commissionPct,omitempty" validate:"omitempty,gte=0,lt=100"`

	COGSRub                   float64 `json:"cogsRub" validate:"gte=0"`
	LogisticsForwardManualRub float64 `json:"logisticsForwardManualRub" validate:"gte=0"`
	LogisticsReverseRub       float64 `json:"logisticsReverseRub" validate:"gte=0"`
	BuybackPct                float64 `json:"buybackPct" validate:"gte=0,lte=100"`
	StorageRub                float64 `json:"storageRub" validate:"gte=0"`

	AcquiringPct   float64 `json:"acquiringPct" validate:"gte=0,lt=100"`
	AdvertisingPct float64 `json:"advertisingPct" validate:"gte=0,lt=100"`
	VATPct         float64 `json:"vatPct" validate:"gte=0,lt=100"`
	TaxIncomePct   float64 `json:"taxIncomePct" validate:"gte=0,lt=100"`
	MarginPct      float64 `json:"marginPct" validate:"gte=0,lt=100"`
	DiscountPct    float64 `json:"discountPct" validate:"gte=0,lt=100"`
}

type Result struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	Request   Request   `json:"request"`

	Status   Status `json:"status"`
	Solvable bool   `json:"solvable"`
	Reason   string `json:"reason,omitempty"`

	VolumeLiters float64           `json:"volumeLiters"`
	CargoType    pricing.CargoType `json:"cargoType"`
	CargoLabel   string            `json:"cargoLabel"`

	Warehouse  *catalog.Warehouse          `json:"warehouse,omitempty"`
	Acceptance *catalog.AcceptanceSummary  `json:"acceptance,omitempty"`
	Commission *catalog.CategoryCommission `json:"commission,omitempty"`

	Logistics           pricing.ForwardLogistics `json:"logistics"`
	ReverseEffectiveRub float64                  `json:"reverseEffectiveRub"`
	Fixed               pricing.FixedCosts       `json:"fixed"`
	Rates               pricing.PercentageRates  `json:"rates"`

	Pricing *pricing.TwoLevelPricingResult `json:"pricing,omitempty"`
	Warning pricing.RateWarning            `json:"warning"`
}

// RecommendedPrice is 0 unless the result is solvable.
func (r *Result) RecommendedPrice() float64 {
	if r.Pricing == nil {
		return 0
	}
	return r.Pricing.Recommended.Price
}

type Options struct {
	Tariffs     TariffProvider
	Commissions CommissionProvider
	// Acceptance and Store are optional.
	Acceptance AcceptanceProvider
	Store      Store

	DefaultTariffs pricing.BoxDeliveryTariffs
	Thresholds     pricing.Thresholds
	Logger         *zap.Logger
}

type Service struct {
	tariffs     TariffProvider
	commissions CommissionProvider
	acceptance  AcceptanceProvider
	store       Store

	defaults   pricing.BoxDeliveryTariffs
	thresholds pricing.Thresholds
	validate   *validator.Validate
	logger     *zap.Logger

	now   func() time.Time
	newID func() string
}

func New(opts Options) *Service {
	if opts.DefaultTariffs == (pricing.BoxDeliveryTariffs{}) {
		opts.DefaultTariffs = pricing.DefaultBoxDeliveryTariffs()
	}
	if opts.Thresholds == (pricing.Thresholds{}) {
		opts.Thresholds = pricing.DefaultThresholds()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Service{
		tariffs:     opts.Tariffs,
		commissions: opts.Commissions,
		acceptance:  opts.Acceptance,
		store:       opts.Store,
		defaults:    opts.DefaultTariffs,
		thresholds:  opts.Thresholds,
		validate:    validator.New(),
		logger:      opts.Logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

func (s *Service) Calculate(ctx context.Context, req Request) (*Result, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	res := &Result{
		ID:        s.newID(),
		UserID:    req.UserID,
		CreatedAt: s.now().UTC(),
		Request:   req,
	}

	tariffs, err := s.resolveTariffs(ctx, req.WarehouseID, res)
	if err != nil {
		return nil, err
	}

	commissionPct, err := s.resolveCommission(ctx, req, res)
	if err != nil {
		return nil, err
	}

	res.Logistics = pricing.ResolveForwardLogistics(req.Dimensions, &tariffs, req.LogisticsForwardManualRub)
	res.VolumeLiters = res.Logistics.VolumeLiters
	res.CargoType = res.Logistics.CargoType
	res.CargoLabel = res.CargoType.Label()
	res.ReverseEffectiveRub = pricing.EffectiveReverseLogistics(req.LogisticsReverseRub, req.BuybackPct)

	res.Fixed = pricing.FixedCosts{
		COGSRub:             req.COGSRub,
		LogisticsForwardRub: res.Logistics.CostRub,
		LogisticsReverseRub: res.ReverseEffectiveRub,
		StorageRub:          req.StorageRub,
	}
	res.Rates = pricing.PercentageRates{
		CommissionPct:  commissionPct,
		AcquiringPct:   req.AcquiringPct,
		AdvertisingPct: req.AdvertisingPct,
		VATPct:         req.VATPct,
		TaxIncomePct:   req.TaxIncomePct,
		MarginPct:      req.MarginPct,
	}
	res.Warning = pricing.EvaluateRateWarningWith(res.Rates, s.thresholds)
	s.attachAcceptance(ctx, req.WarehouseID, res)

	switch {
	case res.Logistics.ManualRequired:
		res.Status = StatusManualLogistics
		res.Reason = res.Logistics.Reason
	default:
		two, err := pricing.SolveTwoLevel(res.Fixed, res.Rates, req.DiscountPct)
		switch {
		case errors.Is(err, pricing.ErrUnsolvable):
			res.Status = StatusUnsolvable
			res.Reason = err.Error()
		case err != nil:
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		default:
			res.Status = StatusOK
			res.Solvable = true
			res.Reason = res.Logistics.Reason
			res.Pricing = &two
		}
	}

	if s.store != nil {
		if err := s.store.SaveCalculation(ctx, res); err != nil {
			return nil, fmt.Errorf("save calculation: %w", err)
		}
	}

	s.logger.Info("Calculation finished",
		zap.String("id", res.ID),
		zap.Int64("user_id", res.UserID),
		zap.String("status", string(res.Status)),
		zap.String("cargo_type", string(res.CargoType)),
		zap.Float64("price", res.RecommendedPrice()),
		zap.String("warning", string(res.Warning.Level)))

	return res, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Result, error) {
	if s.store == nil {
		return nil, ErrCalculationNotFound
	}
	res, err := s.store.GetCalculation(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCalculationNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get calculation %s: %w", id, err)
	}
	return res, nil
}

func (s *Service) resolveTariffs(ctx context.Context, warehouseID int64, res *Result) (pricing.ResolvedTariffs, error) {
	fallback := pricing.ResolvedTariffs{BoxDeliveryTariffs: s.defaults, Source: pricing.SourceDefault}
	if warehouseID == 0 || s.tariffs == nil {
		return fallback, nil
	}

	wh, err := s.tariffs.GetWarehouse(ctx, warehouseID)
	if errors.Is(err, catalog.ErrNotFound) {
		return fallback, fmt.Errorf("%w: %d", ErrWarehouseNotFound, warehouseID)
	}
	if err != nil {
		return fallback, fmt.Errorf("get warehouse %d: %w", warehouseID, err)
	}

	res.Warehouse = wh
	switch {
	case wh.BoxUnavailable:
		s.logger.Info("Warehouse is closed to boxes, forward logistics needs a manual cost",
			zap.Int64("warehouse_id", warehouseID))
		return wh.ResolvedTariffs(), nil
	case wh.Tariffs == nil:
		s.logger.Debug("Warehouse has no box tariffs, using defaults", zap.Int64("warehouse_id", warehouseID))
		return fallback, nil
	}
	return pricing.ResolvedTariffs{BoxDeliveryTariffs: *wh.Tariffs, Source: pricing.SourceWarehouse}, nil
}

func (s *Service) resolveCommission(ctx context.Context, req Request, res *Result) (float64, error) {
	if req.CommissionPct != nil {
		return *req.CommissionPct, nil
	}
	if req.SubjectID == 0 && req.ParentID == 0 {
		return 0, fmt.Errorf("%w: subject or commission is required", ErrCategoryNotFound)
	}
	if s.commissions == nil {
		return 0, fmt.Errorf("%w: no commission source", ErrCategoryNotFound)
	}

	rows, err := s.commissions.ListCommissions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list commissions: %w", err)
	}
	row, err := catalog.FindCommission(rows, req.SubjectID, req.ParentID)
	if err != nil {
		return 0, fmt.Errorf("%w: subject %d, parent %d", ErrCategoryNotFound, req.SubjectID, req.ParentID)
	}

	res.Commission = &row
	return row.CommissionPct, nil
}

// attachAcceptance is informational, failures only get logged.
func (s *Service) attachAcceptance(ctx context.Context, warehouseID int64, res *Result) {
	if s.acceptance == nil || warehouseID == 0 {
		return
	}

	from := s.now().UTC().Truncate(24 * time.Hour)
	records, err := s.acceptance.ListAcceptance(ctx, warehouseID, from)
	if err != nil {
		s.logger.Warn("Failed to load acceptance coefficients",
			zap.Int64("warehouse_id", warehouseID),
			zap.Error(err))
		return
	}
	if len(records) == 0 {
		return
	}

	summary := catalog.SummarizeAcceptance(warehouseID, records)
	res.Acceptance = &summary
}
