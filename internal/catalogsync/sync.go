// Package catalogsync copies reference data from the upstream analytics API
// into local storage.
package catalogsync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wbcalc/internal/catalog"
	"wbcalc/pkg/api"
	"wbcalc/pkg/poll"
)

// Source is implemented by api.Client.
type Source interface {
	GetWarehousesWithTariffs(ctx context.Context) ([]catalog.Warehouse, error)
	GetCategoryCommissions(ctx context.Context) ([]catalog.CategoryCommission, error)
	GetAcceptanceCoefficients(ctx context.Context, warehouseIDs []int64) ([]catalog.AcceptanceRecord, error)
	StartExport(ctx context.Context, kind string) (*api.ExportJob, error)
	WaitExport(ctx context.Context, id string, opts poll.Options) (*api.ExportJob, error)
}

// Sink is implemented by storage.PostgresStorage.
type Sink interface {
	UpsertWarehouses(ctx context.Context, warehouses []catalog.Warehouse) error
	UpsertCommissions(ctx context.Context, rows []catalog.CategoryCommission) error
	UpsertAcceptance(ctx context.Context, records []catalog.AcceptanceRecord) error
}

type Options struct {
	// Backfill names an upstream export to run and wait for before pulling.
	// Empty skips it.
	Backfill       string
	Poll           poll.Options
	SkipAcceptance bool
}

type Report struct {
	Warehouses  int
	Commissions int
	Acceptance  int
	Job         *api.ExportJob
	Duration    time.Duration
}

type Syncer struct {
	source Source
	sink   Sink
	logger *zap.Logger
	now    func() time.Time
}

func New(source Source, sink Sink, logger *zap.Logger) *Syncer {
	return &Syncer{
		source: source,
		sink:   sink,
		logger: logger,
		now:    time.Now,
	}
}

// Run pulls warehouses, commissions and acceptance coefficients once.
// Acceptance coefficients are informational, a failure there is logged and
// does not fail the run.
func (s *Syncer) Run(ctx context.Context, opts Options) (Report, error) {
	const operation = "catalogsync.Run"

	started := s.now()
	var report Report

	if opts.Backfill != "" {
		job, err := s.backfill(ctx, opts)
		report.Job = job
		if err != nil {
			return report, fmt.Errorf("%s: %w", operation, err)
		}
	}

	warehouses, err := s.source.GetWarehousesWithTariffs(ctx)
	if err != nil {
		return report, fmt.Errorf("%s: %w", operation, err)
	}
	if err := s.sink.UpsertWarehouses(ctx, warehouses); err != nil {
		return report, fmt.Errorf("%s: %w", operation, err)
	}
	report.Warehouses = len(warehouses)

	commissions, err := s.source.GetCategoryCommissions(ctx)
	if err != nil {
		return report, fmt.Errorf("%s: %w", operation, err)
	}
	if err := s.sink.UpsertCommissions(ctx, commissions); err != nil {
		return report, fmt.Errorf("%s: %w", operation, err)
	}
	report.Commissions = len(commissions)

	if !opts.SkipAcceptance {
		report.Acceptance = s.syncAcceptance(ctx, warehouses)
	}

	report.Duration = s.now().Sub(started)
	s.logger.Info("Catalog synced",
		zap.Int("warehouses", report.Warehouses),
		zap.Int("commissions", report.Commissions),
		zap.Int("acceptance", report.Acceptance),
		zap.Duration("duration", report.Duration))

	return report, nil
}

// RunEvery repeats Run until ctx is cancelled. Failed runs are logged and
// retried on the next tick.
func (s *Syncer) RunEvery(ctx context.Context, interval time.Duration, opts Options) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Run(ctx, opts); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("Catalog sync failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Syncer) backfill(ctx context.Context, opts Options) (*api.ExportJob, error) {
	job, err := s.source.StartExport(ctx, opts.Backfill)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Backfill started",
		zap.String("job_id", job.ID),
		zap.String("kind", opts.Backfill),
		zap.String("status", string(job.Status)))

	if job.Status == poll.StatusCompleted {
		return job, nil
	}

	pollOpts := opts.Poll
	if pollOpts.OnChange == nil {
		pollOpts.OnChange = func(st poll.Status) {
			s.logger.Info("Backfill status changed",
				zap.String("job_id", job.ID),
				zap.String("status", string(st)))
		}
	}
	if pollOpts.OnError == nil {
		pollOpts.OnError = func(err error) {
			s.logger.Warn("Backfill poll failed, retrying",
				zap.String("job_id", job.ID),
				zap.Error(err))
		}
	}

	done, err := s.source.WaitExport(ctx, job.ID, pollOpts)
	if done == nil {
		done = job
	}
	if err != nil {
		return done, fmt.Errorf("backfill %s: %w", job.ID, err)
	}
	return done, nil
}

func (s *Syncer) syncAcceptance(ctx context.Context, warehouses []catalog.Warehouse) int {
	ids := make([]int64, 0, len(warehouses))
	for _, wh := range warehouses {
		ids = append(ids, wh.ID)
	}
	if len(ids) == 0 {
		return 0
	}

	records, err := s.source.GetAcceptanceCoefficients(ctx, ids)
	if err != nil {
		s.logger.Warn("Failed to fetch acceptance coefficients", zap.Error(err))
		return 0
	}
	if err := s.sink.UpsertAcceptance(ctx, records); err != nil {
		s.logger.Warn("Failed to store acceptance coefficients", zap.Error(err))
		return 0
	}
	return len(records)
}
