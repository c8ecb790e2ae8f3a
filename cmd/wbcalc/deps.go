package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"wbcalc/internal/calculator"
	"wbcalc/internal/storage"
	"wbcalc/pkg/api"
	"wbcalc/pkg/redis"
)

const redisConnectTimeout = 30 * time.Second

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func (a *app) openRedis(ctx context.Context) (*redis.Client, error) {
	client := redis.New(a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB, a.cfg.Redis.StateTTL)

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = redisConnectTimeout

	err := backoff.RetryNotify(
		func() error { return client.Ping(ctx) },
		backoff.WithContext(policy, ctx),
		func(err error, next time.Duration) {
			a.logger.Warn("Redis ping failed, retrying...",
				zap.Error(err),
				zap.Duration("next_attempt_in", next))
		},
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", a.cfg.Redis.Addr, err)
	}

	a.logger.Info("Connected to Redis", zap.String("addr", a.cfg.Redis.Addr))
	return client, nil
}

// openStorage connects to postgres. A nil cache disables read-through caching.
func (a *app) openStorage(ctx context.Context, cache *redis.Client) (*storage.PostgresStorage, error) {
	if err := a.cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	if cache == nil {
		return storage.NewPostgresStorage(ctx, *a.cfg, nil, a.logger)
	}
	return storage.NewPostgresStorage(ctx, *a.cfg, cache, a.logger)
}

// apiClient is nil when no upstream is configured.
func (a *app) apiClient() *api.Client {
	if a.cfg.RequireAPI() != nil {
		return nil
	}
	return api.NewClient(a.cfg.API.BaseURL, a.cfg.API.Key, a.logger, api.Options{
		Timeout:        a.cfg.API.RequestTimeout,
		RequestsPerSec: a.cfg.API.RequestsPerSec,
		MaxRetryTime:   a.cfg.API.MaxRetryTime,
	})
}

// newCalculator reads tariffs from postgres first and falls back to the live
// upstream listing for warehouses the last sync did not bring.
func (a *app) newCalculator(store *storage.PostgresStorage) *calculator.Service {
	var tariffs calculator.TariffProvider = store
	if client := a.apiClient(); client != nil {
		tariffs = calculator.FallbackTariffs{
			Primary:   store,
			Secondary: calculator.UpstreamTariffs{Source: client},
		}
	}

	return calculator.New(calculator.Options{
		Tariffs:        tariffs,
		Commissions:    store,
		Acceptance:     store,
		Store:          store,
		DefaultTariffs: a.cfg.Pricing.DefaultTariffs(),
		Thresholds:     a.cfg.Pricing.Thresholds(),
		Logger:         a.logger,
	})
}
