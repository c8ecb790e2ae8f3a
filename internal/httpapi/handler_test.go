package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wbcalc/internal/calculator"
	"wbcalc/internal/catalog"
	"wbcalc/internal/config"
	"wbcalc/internal/pricing"
)

type memoryStore map[string]*calculator.Result

func (m memoryStore) SaveCalculation(_ context.Context, res *calculator.Result) error {
	m[res.ID] = res
	return nil
}

func (m memoryStore) GetCalculation(_ context.Context, id string) (*calculator.Result, error) {
	res, ok := m[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return res, nil
}

func newTestServer(t *testing.T, httpCfg config.HTTPConfig) *echo.Echo {
	t.Helper()

	cat := &calculator.MemoryCatalog{
		Warehouses: []catalog.Warehouse{
			{ID: 507, Name: "Коледино", Tariffs: &pricing.BoxDeliveryTariffs{BaseLiterRub: 48, AdditionalLiterRub: 5, Coefficient: 1.25}},
		},
		Commissions: []catalog.CategoryCommission{
			{SubjectID: 1, SubjectName: "Футболки", ParentID: 10, ParentName: "Одежда", CommissionPct: 25},
		},
	}
	svc := calculator.New(calculator.Options{Tariffs: cat, Commissions: cat, Store: memoryStore{}})

	export := func(dir string, res *calculator.Result) (string, error) {
		path := filepath.Join(dir, res.ID+".xlsx")
		return path, os.WriteFile(path, []byte("xlsx"), 0o644)
	}

	h := NewHandler(svc, cat, export, t.TempDir(), zap.NewNop())
	return NewServer(httpCfg, h, zap.NewNop())
}

func defaultHTTPConfig() config.HTTPConfig {
	return config.HTTPConfig{Addr: ":0", RequestsPerSec: 1000, Burst: 1000}
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const calculateBody = `{
	"userId": 42,
	"dimensions": {"length_cm": 30, "width_cm": 20, "height_cm": 10},
	"warehouseId": 507,
	"subjectId": 1,
	"cogsRub": 500,
	"logisticsReverseRub": 50,
	"buybackPct": 90,
	"acquiringPct": 1.5,
	"advertisingPct": 10,
	"taxIncomePct": 6,
	"marginPct": 20
}`

func TestHealth(t *testing.T) {
	e := newTestServer(t, defaultHTTPConfig())

	rec := do(e, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "wbcalc", body["service"])
}

func TestCalculate(t *testing.T) {
	e := newTestServer(t, defaultHTTPConfig())

	rec := do(e, http.MethodPost, "/api/v1/calculate", calculateBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res calculator.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Solvable)
	require.NotNil(t, res.Pricing)
	assert.Equal(t, 1590.0, res.Pricing.Recommended.Price)

	rec = do(e, http.MethodGet, "/api/v1/calculations/"+res.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/calculations/"+res.ID+"/xlsx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "attachment")
	assert.Equal(t, "xlsx", rec.Body.String())
}

func TestCalculate_UnsolvableIsNotAnError(t *testing.T) {
	e := newTestServer(t, defaultHTTPConfig())
	body := strings.Replace(calculateBody, `"marginPct": 20`, `"marginPct": 60`, 1)

	rec := do(e, http.MethodPost, "/api/v1/calculate", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var res calculator.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.Solvable)
	assert.Equal(t, calculator.StatusUnsolvable, res.Status)
	assert.Equal(t, pricing.WarningCritical, res.Warning.Level)
}

func TestCalculate_Errors(t *testing.T) {
	e := newTestServer(t, defaultHTTPConfig())

	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed json", `{"cogsRub": `, http.StatusBadRequest},
		{"negative cogs", strings.Replace(calculateBody, `"cogsRub": 500`, `"cogsRub": -1`, 1), http.StatusBadRequest},
		{"unknown warehouse", strings.Replace(calculateBody, `"warehouseId": 507`, `"warehouseId": 1`, 1), http.StatusUnprocessableEntity},
		{"unknown category", strings.Replace(calculateBody, `"subjectId": 1`, `"subjectId": 2`, 1), http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, http.MethodPost, "/api/v1/calculate", tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestGetCalculation_NotFound(t *testing.T) {
	e := newTestServer(t, defaultHTTPConfig())

	rec := do(e, http.MethodGet, "/api/v1/calculations/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/calculations/missing/xlsx", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListWarehouses(t *testing.T) {
	e := newTestServer(t, defaultHTTPConfig())

	rec := do(e, http.MethodGet, "/api/v1/warehouses", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var warehouses []catalog.Warehouse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &warehouses))
	require.Len(t, warehouses, 1)
	assert.Equal(t, "Коледино", warehouses[0].Name)
}

func TestVolumeTool(t *testing.T) {
	e := newTestServer(t, defaultHTTPConfig())

	rec := do(e, http.MethodPost, "/api/v1/tools/volume", `{"length_cm": 130, "width_cm": 40, "height_cm": 40}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body volumeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 208.0, body.VolumeLiters)
	assert.Equal(t, pricing.CargoKGT, body.CargoType)
	assert.False(t, body.AutoLogistics)
	assert.True(t, body.ValidDimension)
}

func TestLogisticsTool(t *testing.T) {
	e := newTestServer(t, defaultHTTPConfig())

	rec := do(e, http.MethodPost, "/api/v1/tools/logistics", `{"volumeLiters": 3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res pricing.LogisticsTariffResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 58.0, res.TotalCost)
	assert.Equal(t, pricing.SourceDefault, res.Source)

	rec = do(e, http.MethodPost, "/api/v1/tools/logistics", `{"volumeLiters": 3, "acceptanceCoefficient": 150}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 87.0, res.TotalCost)

	rec = do(e, http.MethodPost, "/api/v1/tools/logistics", `{"volumeLiters": 3, "acceptanceCoefficient": -1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestReverseTool(t *testing.T) {
	e := newTestServer(t, defaultHTTPConfig())

	rec := do(e, http.MethodPost, "/api/v1/tools/reverse", `{"reverseLogisticsRub": 72.5, "buybackPct": 98}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"effectiveRub": 1.45}`, rec.Body.String())
}

func TestRateLimit(t *testing.T) {
	e := newTestServer(t, config.HTTPConfig{RequestsPerSec: 1, Burst: 1})

	rec := do(e, http.MethodPost, "/api/v1/tools/volume", `{"length_cm": 10, "width_cm": 10, "height_cm": 10}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodPost, "/api/v1/tools/volume", `{"length_cm": 10, "width_cm": 10, "height_cm": 10}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// health is outside the limited group
	rec = do(e, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
