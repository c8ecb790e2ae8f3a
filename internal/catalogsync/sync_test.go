package catalogsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wbcalc/internal/catalog"
	"wbcalc/internal/pricing"
	"wbcalc/pkg/api"
	"wbcalc/pkg/poll"
)

type fakeSource struct {
	warehouses    []catalog.Warehouse
	commissions   []catalog.CategoryCommission
	acceptance    []catalog.AcceptanceRecord
	acceptanceErr error
	startStatus   poll.Status
	waitErr       error

	requestedIDs []int64
	exports      []string
	waited       bool
}

func (f *fakeSource) GetWarehousesWithTariffs(context.Context) ([]catalog.Warehouse, error) {
	return f.warehouses, nil
}

func (f *fakeSource) GetCategoryCommissions(context.Context) ([]catalog.CategoryCommission, error) {
	return f.commissions, nil
}

func (f *fakeSource) GetAcceptanceCoefficients(_ context.Context, ids []int64) ([]catalog.AcceptanceRecord, error) {
	f.requestedIDs = ids
	return f.acceptance, f.acceptanceErr
}

func (f *fakeSource) StartExport(_ context.Context, kind string) (*api.ExportJob, error) {
	f.exports = append(f.exports, kind)
	return &api.ExportJob{ID: "job-1", Kind: kind, Status: f.startStatus}, nil
}

func (f *fakeSource) WaitExport(_ context.Context, id string, _ poll.Options) (*api.ExportJob, error) {
	f.waited = true
	if f.waitErr != nil {
		return &api.ExportJob{ID: id, Status: poll.StatusFailed}, f.waitErr
	}
	return &api.ExportJob{ID: id, Status: poll.StatusCompleted}, nil
}

type fakeSink struct {
	warehouses  []catalog.Warehouse
	commissions []catalog.CategoryCommission
	acceptance  []catalog.AcceptanceRecord
	failOn      string
}

func (f *fakeSink) UpsertWarehouses(_ context.Context, w []catalog.Warehouse) error {
	if f.failOn == "warehouses" {
		return errors.New("db down")
	}
	f.warehouses = w
	return nil
}

func (f *fakeSink) UpsertCommissions(_ context.Context, rows []catalog.CategoryCommission) error {
	f.commissions = rows
	return nil
}

func (f *fakeSink) UpsertAcceptance(_ context.Context, records []catalog.AcceptanceRecord) error {
	f.acceptance = records
	return nil
}

func testSource() *fakeSource {
	return &fakeSource{
		warehouses: []catalog.Warehouse{
			{ID: 507, Name: "Коледино", Tariffs: &pricing.BoxDeliveryTariffs{BaseLiterRub: 48, AdditionalLiterRub: 5, Coefficient: 1.25}},
			{ID: 117986, Name: "Казань"},
		},
		commissions: []catalog.CategoryCommission{
			{SubjectID: 1, SubjectName: "Футболки", ParentID: 10, CommissionPct: 25},
		},
		acceptance: []catalog.AcceptanceRecord{
			{WarehouseID: 507, Date: time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), Coefficient: 100, IsAvailable: true},
		},
	}
}

func TestRun_CopiesCatalog(t *testing.T) {
	source, sink := testSource(), &fakeSink{}

	report, err := New(source, sink, zap.NewNop()).Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Warehouses)
	assert.Equal(t, 1, report.Commissions)
	assert.Equal(t, 1, report.Acceptance)
	assert.Nil(t, report.Job)
	assert.Equal(t, source.warehouses, sink.warehouses)
	assert.Equal(t, source.commissions, sink.commissions)
	assert.Equal(t, []int64{507, 117986}, source.requestedIDs)
	assert.Empty(t, source.exports)
}

func TestRun_AcceptanceFailureIsNotFatal(t *testing.T) {
	source, sink := testSource(), &fakeSink{}
	source.acceptanceErr = errors.New("upstream 503")

	report, err := New(source, sink, zap.NewNop()).Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Acceptance)
	assert.Equal(t, 2, report.Warehouses)
}

func TestRun_SkipAcceptance(t *testing.T) {
	source, sink := testSource(), &fakeSink{}

	_, err := New(source, sink, zap.NewNop()).Run(context.Background(), Options{SkipAcceptance: true})
	require.NoError(t, err)
	assert.Nil(t, source.requestedIDs)
	assert.Nil(t, sink.acceptance)
}

func TestRun_StorageFailure(t *testing.T) {
	source, sink := testSource(), &fakeSink{failOn: "warehouses"}

	_, err := New(source, sink, zap.NewNop()).Run(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalogsync.Run")
	assert.Nil(t, sink.commissions)
}

func TestRun_BackfillWaitsForJob(t *testing.T) {
	source, sink := testSource(), &fakeSink{}
	source.startStatus = poll.StatusPending

	report, err := New(source, sink, zap.NewNop()).Run(context.Background(), Options{Backfill: "tariffs"})
	require.NoError(t, err)

	assert.Equal(t, []string{"tariffs"}, source.exports)
	assert.True(t, source.waited)
	require.NotNil(t, report.Job)
	assert.Equal(t, poll.StatusCompleted, report.Job.Status)
	assert.Equal(t, 2, report.Warehouses)
}

func TestRun_BackfillAlreadyCompleted(t *testing.T) {
	source, sink := testSource(), &fakeSink{}
	source.startStatus = poll.StatusCompleted

	_, err := New(source, sink, zap.NewNop()).Run(context.Background(), Options{Backfill: "tariffs"})
	require.NoError(t, err)
	assert.False(t, source.waited)
}

func TestRun_BackfillFailureStopsRun(t *testing.T) {
	source, sink := testSource(), &fakeSink{}
	source.startStatus = poll.StatusPending
	source.waitErr = poll.ErrJobFailed

	report, err := New(source, sink, zap.NewNop()).Run(context.Background(), Options{Backfill: "tariffs"})
	require.ErrorIs(t, err, poll.ErrJobFailed)
	require.NotNil(t, report.Job)
	assert.Equal(t, poll.StatusFailed, report.Job.Status)
	assert.Nil(t, sink.warehouses)
}

func TestRunEvery_StopsOnCancel(t *testing.T) {
	source, sink := testSource(), &fakeSink{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- New(source, sink, zap.NewNop()).RunEvery(ctx, time.Hour, Options{SkipAcceptance: true})
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("RunEvery did not stop")
	}
	assert.Len(t, sink.warehouses, 2)
}
