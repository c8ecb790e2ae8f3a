package settings

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryKV struct {
	data map[string][]byte
	fail error
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: map[string][]byte{}}
}

func (m *memoryKV) GetJSON(_ context.Context, key string, v any) (bool, error) {
	if m.fail != nil {
		return false, m.fail
	}
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

func (m *memoryKV) SetJSON(_ context.Context, key string, v any, _ time.Duration) error {
	if m.fail != nil {
		return m.fail
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func TestStore_GetReturnsFactoryForNewUser(t *testing.T) {
	store := NewStore(newMemoryKV(), 0)

	d, err := store.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, Factory(), d)
}

func TestStore_SaveAndGet(t *testing.T) {
	kv := newMemoryKV()
	store := NewStore(kv, 0)
	ctx := context.Background()

	custom := Defaults{AcquiringPct: 2, AdvertisingPct: 5, VATPct: 20, TaxIncomePct: 0, MarginPct: 15, BuybackPct: 80, StorageRub: 12}
	require.NoError(t, store.Save(ctx, 7, custom))

	d, err := store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, custom, d)
	assert.Contains(t, kv.data, "defaults:7")

	require.NoError(t, store.Reset(ctx, 7))
	d, err = store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, Factory(), d)
}

func TestStore_SaveRejectsInvalid(t *testing.T) {
	store := NewStore(newMemoryKV(), 0)
	ctx := context.Background()

	err := store.Save(ctx, 1, Defaults{BuybackPct: 120})
	assert.ErrorIs(t, err, ErrInvalidDefaults)

	err = store.Save(ctx, 1, Defaults{AcquiringPct: 50, MarginPct: 50})
	assert.ErrorIs(t, err, ErrInvalidDefaults)
}

func TestStore_GetError(t *testing.T) {
	kv := newMemoryKV()
	kv.fail = errors.New("connection refused")
	store := NewStore(kv, 0)

	d, err := store.Get(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, Factory(), d)
}

func TestStore_Acquire(t *testing.T) {
	store := NewStore(newMemoryKV(), 10*time.Second)
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	wait, err := store.Acquire(ctx, 5)
	require.NoError(t, err)
	assert.Zero(t, wait)

	now = now.Add(4 * time.Second)
	wait, err = store.Acquire(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 6*time.Second, wait)

	now = now.Add(6 * time.Second)
	wait, err = store.Acquire(ctx, 5)
	require.NoError(t, err)
	assert.Zero(t, wait)
}

func TestStore_AcquireDisabled(t *testing.T) {
	store := NewStore(newMemoryKV(), 0)
	for i := 0; i < 3; i++ {
		wait, err := store.Acquire(context.Background(), 1)
		require.NoError(t, err)
		assert.Zero(t, wait)
	}
}

func TestDefaults_Rates(t *testing.T) {
	rates := Factory().Rates(25)
	assert.Equal(t, 25.0, rates.CommissionPct)
	assert.Equal(t, 62.5, rates.Total())
}
