// Package settings keeps per-user calculator defaults and the calculation
// cooldown in an external key-value store.
package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"wbcalc/internal/pricing"
)

var ErrInvalidDefaults = errors.New("invalid defaults")

// KV is the persistence port. pkg/redis.Client implements it.
type KV interface {
	GetJSON(ctx context.Context, key string, v any) (found bool, err error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// Defaults prefill the rate step of a calculation.
type Defaults struct {
	AcquiringPct   float64 `json:"acquiringPct" validate:"gte=0,lt=100"`
	AdvertisingPct float64 `json:"advertisingPct" validate:"gte=0,lt=100"`
	VATPct         float64 `json:"vatPct" validate:"gte=0,lt=100"`
	TaxIncomePct   float64 `json:"taxIncomePct" validate:"gte=0,lt=100"`
	MarginPct      float64 `json:"marginPct" validate:"gte=0,lt=100"`
	BuybackPct     float64 `json:"buybackPct" validate:"gte=0,lte=100"`
	StorageRub     float64 `json:"storageRub" validate:"gte=0"`
}

// Factory are the defaults of a user who never changed anything: USN 6%
// without VAT, 10% DRR, 20% margin and a 90% buyback.
func Factory() Defaults {
	return Defaults{
		AcquiringPct:   1.5,
		AdvertisingPct: 10,
		VATPct:         0,
		TaxIncomePct:   6,
		MarginPct:      20,
		BuybackPct:     90,
	}
}

// Rates returns the percentage stack with the given commission.
func (d Defaults) Rates(commissionPct float64) pricing.PercentageRates {
	return pricing.PercentageRates{
		CommissionPct:  commissionPct,
		AcquiringPct:   d.AcquiringPct,
		AdvertisingPct: d.AdvertisingPct,
		VATPct:         d.VATPct,
		TaxIncomePct:   d.TaxIncomePct,
		MarginPct:      d.MarginPct,
	}
}

type Store struct {
	kv       KV
	validate *validator.Validate
	cooldown time.Duration
	now      func() time.Time
}

func NewStore(kv KV, cooldown time.Duration) *Store {
	return &Store{
		kv:       kv,
		validate: validator.New(),
		cooldown: cooldown,
		now:      time.Now,
	}
}

func (s *Store) Get(ctx context.Context, userID int64) (Defaults, error) {
	var d Defaults
	found, err := s.kv.GetJSON(ctx, defaultsKey(userID), &d)
	if err != nil {
		return Factory(), fmt.Errorf("load defaults for %d: %w", userID, err)
	}
	if !found {
		return Factory(), nil
	}
	return d, nil
}

func (s *Store) Save(ctx context.Context, userID int64, d Defaults) error {
	if err := s.validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDefaults, err)
	}
	if total := d.Rates(0).Total(); total >= 100 {
		return fmt.Errorf("%w: rates add up to %.2f%%", ErrInvalidDefaults, total)
	}
	if err := s.kv.SetJSON(ctx, defaultsKey(userID), d, 0); err != nil {
		return fmt.Errorf("save defaults for %d: %w", userID, err)
	}
	return nil
}

func (s *Store) Reset(ctx context.Context, userID int64) error {
	return s.Save(ctx, userID, Factory())
}

// Acquire starts the user's calculation cooldown. When a cooldown is still
// running it returns the time left and does not restart it.
func (s *Store) Acquire(ctx context.Context, userID int64) (time.Duration, error) {
	if s.cooldown <= 0 {
		return 0, nil
	}

	now := s.now()
	var until time.Time
	found, err := s.kv.GetJSON(ctx, cooldownKey(userID), &until)
	if err != nil {
		return 0, fmt.Errorf("load cooldown for %d: %w", userID, err)
	}
	if found && now.Before(until) {
		return until.Sub(now), nil
	}

	if err := s.kv.SetJSON(ctx, cooldownKey(userID), now.Add(s.cooldown), s.cooldown); err != nil {
		return 0, fmt.Errorf("save cooldown for %d: %w", userID, err)
	}
	return 0, nil
}

func defaultsKey(userID int64) string {
	return fmt.Sprintf("defaults:%d", userID)
}

func cooldownKey(userID int64) string {
	return fmt.Sprintf("cooldown:%d", userID)
}
