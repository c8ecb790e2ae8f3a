package bot

import (
	"context"
	"fmt"

	"wbcalc/internal/calculator"
)

const (
	StepDimensions      = "dimensions"
	StepManualLogistics = "manual_logistics"
	StepWarehouse       = "warehouse"
	StepCategory        = "category"
	StepCOGS            = "cogs"
	StepReverse         = "reverse"
	StepRates           = "rates"
)

// UserState is the calculation being filled in by one chat.
type UserState struct {
	Step         string             `json:"step"`
	Request      calculator.Request `json:"request"`
	CategoryName string             `json:"category_name,omitempty"`
}

// StateStore is implemented by pkg/redis.Client.
type StateStore interface {
	SaveState(ctx context.Context, chatID int64, state any) error
	GetState(ctx context.Context, chatID int64, state any) (bool, error)
	ClearState(ctx context.Context, chatID int64) error
}

type StateStorage struct {
	store StateStore
}

func NewStateStorage(store StateStore) *StateStorage {
	return &StateStorage{store: store}
}

func (s *StateStorage) Save(ctx context.Context, chatID int64, state UserState) error {
	if err := s.store.SaveState(ctx, chatID, state); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// Get returns an empty state for chats without one.
func (s *StateStorage) Get(ctx context.Context, chatID int64) (UserState, error) {
	var state UserState
	if _, err := s.store.GetState(ctx, chatID, &state); err != nil {
		return UserState{}, fmt.Errorf("failed to get state: %w", err)
	}
	return state, nil
}

func (s *StateStorage) Clear(ctx context.Context, chatID int64) error {
	if err := s.store.ClearState(ctx, chatID); err != nil {
		return fmt.Errorf("failed to clear state: %w", err)
	}
	return nil
}

func (s *StateStorage) SetStep(ctx context.Context, chatID int64, step string) error {
	state, err := s.Get(ctx, chatID)
	if err != nil {
		return err
	}
	state.Step = step
	return s.Save(ctx, chatID, state)
}

// Update applies fn to the stored state and saves it.
func (s *StateStorage) Update(ctx context.Context, chatID int64, fn func(*UserState)) (UserState, error) {
	state, err := s.Get(ctx, chatID)
	if err != nil {
		return UserState{}, err
	}
	fn(&state)
	return state, s.Save(ctx, chatID, state)
}
