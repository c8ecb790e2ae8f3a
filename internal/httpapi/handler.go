package httpapi

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"wbcalc/internal/calculator"
	"wbcalc/internal/catalog"
	"wbcalc/internal/pricing"
)

type Calculator interface {
	Calculate(ctx context.Context, req calculator.Request) (*calculator.Result, error)
	Get(ctx context.Context, id string) (*calculator.Result, error)
}

type WarehouseLister interface {
	ListWarehouses(ctx context.Context) ([]catalog.Warehouse, error)
}

// Exporter writes a result to an xlsx file and returns its path.
type Exporter func(dir string, res *calculator.Result) (string, error)

// Handler serves the calculator over REST.
type Handler struct {
	calc       Calculator
	warehouses WarehouseLister
	export     Exporter
	exportDir  string
	logger     *zap.Logger
}

func NewHandler(calc Calculator, warehouses WarehouseLister, export Exporter, exportDir string, logger *zap.Logger) *Handler {
	return &Handler{
		calc:       calc,
		warehouses: warehouses,
		export:     export,
		exportDir:  exportDir,
		logger:     logger,
	}
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "wbcalc",
		"time":    time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) Calculate(c echo.Context) error {
	var req calculator.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request payload"))
	}

	res, err := h.calc.Calculate(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ListWarehouses(c echo.Context) error {
	warehouses, err := h.warehouses.ListWarehouses(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, warehouses)
}

func (h *Handler) GetCalculation(c echo.Context) error {
	res, err := h.calc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ExportCalculation(c echo.Context) error {
	res, err := h.calc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}

	path, err := h.export(h.exportDir, res)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Attachment(path, filepath.Base(path))
}

type volumeResponse struct {
	VolumeLiters   float64           `json:"volumeLiters"`
	MaxDimension   float64           `json:"maxDimension"`
	CargoType      pricing.CargoType `json:"cargoType"`
	CargoLabel     string            `json:"cargoLabel"`
	AutoLogistics  bool              `json:"autoLogistics"`
	ValidDimension bool              `json:"validDimensions"`
}

func (h *Handler) Volume(c echo.Context) error {
	var dims pricing.Dimensions
	if err := c.Bind(&dims); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request payload"))
	}

	cargo := pricing.DetectCargoType(dims)
	return c.JSON(http.StatusOK, volumeResponse{
		VolumeLiters:   pricing.VolumeLiters(dims),
		MaxDimension:   pricing.MaxDimension(dims),
		CargoType:      cargo,
		CargoLabel:     cargo.Label(),
		AutoLogistics:  cargo.AllowsAutoLogistics(),
		ValidDimension: pricing.HasValidDimensions(dims),
	})
}

type logisticsRequest struct {
	VolumeLiters float64                     `json:"volumeLiters"`
	Tariffs      *pricing.BoxDeliveryTariffs `json:"tariffs"`
	// AcceptanceCoefficient is on the upstream x100 scale and overrides Tariffs.Coefficient.
	AcceptanceCoefficient *int `json:"acceptanceCoefficient"`
}

func (h *Handler) Logistics(c echo.Context) error {
	var req logisticsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request payload"))
	}

	tariffs := pricing.DefaultBoxDeliveryTariffs()
	if req.Tariffs != nil {
		tariffs = *req.Tariffs
	}
	if req.AcceptanceCoefficient != nil {
		coefficient := pricing.CoefficientFromRaw(*req.AcceptanceCoefficient, true)
		if !coefficient.IsAvailable() {
			return c.JSON(http.StatusUnprocessableEntity, errorBody("warehouse does not accept deliveries"))
		}
		tariffs.Coefficient = coefficient.Decimal()
	}

	res := pricing.CalculateLogisticsTariff(req.VolumeLiters, tariffs)
	if req.Tariffs == nil && res.VolumeLiters > 0 {
		res.Source = pricing.SourceDefault
	}
	return c.JSON(http.StatusOK, res)
}

type reverseRequest struct {
	ReverseLogisticsRub float64 `json:"reverseLogisticsRub"`
	BuybackPct          float64 `json:"buybackPct"`
}

func (h *Handler) Reverse(c echo.Context) error {
	var req reverseRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request payload"))
	}
	return c.JSON(http.StatusOK, map[string]float64{
		"effectiveRub": pricing.EffectiveReverseLogistics(req.ReverseLogisticsRub, req.BuybackPct),
	})
}

func (h *Handler) fail(c echo.Context, err error) error {
	switch {
	case errors.Is(err, calculator.ErrInvalidRequest):
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, calculator.ErrWarehouseNotFound),
		errors.Is(err, calculator.ErrCategoryNotFound):
		return c.JSON(http.StatusUnprocessableEntity, errorBody(err.Error()))
	case errors.Is(err, calculator.ErrCalculationNotFound):
		return c.JSON(http.StatusNotFound, errorBody("calculation not found"))
	}

	h.logger.Error("Request failed",
		zap.String("path", c.Path()),
		zap.Error(err))
	return c.JSON(http.StatusInternalServerError, errorBody("internal error"))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
