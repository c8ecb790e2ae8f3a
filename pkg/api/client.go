package api

// API CLIENT

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"wbcalc/internal/catalog"
	"wbcalc/internal/pricing"
	"wbcalc/pkg/poll"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      Options
	logger     *zap.Logger
}

type Options struct {
	Timeout        time.Duration
	RequestsPerSec float64
	MaxRetryTime   time.Duration
	// RetryInterval is the first delay of the exponential retry policy.
	RetryInterval time.Duration
}

// StatusError is returned for any non-successful upstream response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Retryable reports whether repeating the request may succeed.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

type WarehouseTariff struct {
	WarehouseID   int64  `json:"warehouseId"`
	WarehouseName string `json:"warehouseName"`
	// Box tariffs are null for warehouses that do not accept boxes.
	BaseLiterRub       *float64 `json:"boxDeliveryBase"`
	AdditionalLiterRub *float64 `json:"boxDeliveryLiter"`
	// CoefficientX100 is the box delivery coefficient on the upstream 100-based scale.
	CoefficientX100 *int `json:"boxDeliveryCoefExpr"`
}

// Warehouse converts the upstream row into the catalog model.
func (t WarehouseTariff) Warehouse() catalog.Warehouse {
	wh := catalog.Warehouse{ID: t.WarehouseID, Name: t.WarehouseName}
	if t.BaseLiterRub == nil || t.AdditionalLiterRub == nil {
		return wh
	}

	tariffs := pricing.BoxDeliveryTariffs{
		BaseLiterRub:       *t.BaseLiterRub,
		AdditionalLiterRub: *t.AdditionalLiterRub,
	}
	if t.CoefficientX100 != nil {
		coefficient := pricing.CoefficientFromRaw(*t.CoefficientX100, true)
		if !coefficient.IsAvailable() {
			wh.BoxUnavailable = true
			return wh
		}
		tariffs.Coefficient = coefficient.Decimal()
	}
	wh.Tariffs = &tariffs
	return wh
}

type ExportJob struct {
	ID        string      `json:"id"`
	Kind      string      `json:"kind"`
	Status    poll.Status `json:"status"`
	Error     string      `json:"error,omitempty"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

func NewClient(baseURL, token string, logger *zap.Logger, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = 2
	}
	if opts.MaxRetryTime <= 0 {
		opts.MaxRetryTime = time.Minute
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSec), int(opts.RequestsPerSec)+1),
		retry:   opts,
		logger:  logger,
	}
}

// GetWarehousesWithTariffs returns every warehouse with its box delivery rates
// already normalized. Warehouses without box rates have nil Tariffs.
func (c *Client) GetWarehousesWithTariffs(ctx context.Context) ([]catalog.Warehouse, error) {
	var tariffs []WarehouseTariff
	if err := c.do(ctx, http.MethodGet, "/api/v1/tariffs/box", nil, nil, &tariffs); err != nil {
		return nil, fmt.Errorf("get warehouse tariffs: %w", err)
	}

	warehouses := make([]catalog.Warehouse, 0, len(tariffs))
	for _, t := range tariffs {
		warehouses = append(warehouses, t.Warehouse())
	}
	return warehouses, nil
}

func (c *Client) GetCategoryCommissions(ctx context.Context) ([]catalog.CategoryCommission, error) {
	var commissions []catalog.CategoryCommission
	if err := c.do(ctx, http.MethodGet, "/api/v1/tariffs/commission", nil, nil, &commissions); err != nil {
		return nil, fmt.Errorf("get category commissions: %w", err)
	}
	return commissions, nil
}

func (c *Client) GetAcceptanceCoefficients(ctx context.Context, warehouseIDs []int64) ([]catalog.AcceptanceRecord, error) {
	query := url.Values{}
	if len(warehouseIDs) > 0 {
		ids := make([]string, len(warehouseIDs))
		for i, id := range warehouseIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		query.Set("warehouseIDs", strings.Join(ids, ","))
	}

	var records []catalog.AcceptanceRecord
	if err := c.do(ctx, http.MethodGet, "/api/v1/acceptance/coefficients", query, nil, &records); err != nil {
		return nil, fmt.Errorf("get acceptance coefficients: %w", err)
	}
	return records, nil
}

// StartExport asks the upstream to rebuild a dataset. The returned job is usually pending.
func (c *Client) StartExport(ctx context.Context, kind string) (*ExportJob, error) {
	var job ExportJob
	body := map[string]string{"kind": kind}
	if err := c.do(ctx, http.MethodPost, "/api/v1/exports", nil, body, &job); err != nil {
		return nil, fmt.Errorf("start export %s: %w", kind, err)
	}
	return &job, nil
}

func (c *Client) GetExportJob(ctx context.Context, id string) (*ExportJob, error) {
	var job ExportJob
	if err := c.do(ctx, http.MethodGet, "/api/v1/exports/"+url.PathEscape(id), nil, nil, &job); err != nil {
		return nil, fmt.Errorf("get export job %s: %w", id, err)
	}
	return &job, nil
}

// WaitExport polls the job until it completes or fails.
func (c *Client) WaitExport(ctx context.Context, id string, opts poll.Options) (*ExportJob, error) {
	fetch := func(ctx context.Context) (*ExportJob, poll.Status, error) {
		job, err := c.GetExportJob(ctx, id)
		if err != nil {
			return nil, "", backoff.Permanent(err)
		}
		return job, job.Status, nil
	}

	job, err := poll.Until(ctx, fetch, opts)
	if errors.Is(err, poll.ErrJobFailed) && job != nil && job.Error != "" {
		return job, fmt.Errorf("%w: %s", err, job.Error)
	}
	return job, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = data
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limit wait: %w", err))
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}

		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("do request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			statusErr := &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
			if statusErr.Retryable() {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retry.RetryInterval
	policy.MaxElapsedTime = c.retry.MaxRetryTime

	return backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), func(err error, d time.Duration) {
		c.logger.Warn("Upstream request failed, retrying",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
			zap.Duration("retry_in", d))
	})
}
