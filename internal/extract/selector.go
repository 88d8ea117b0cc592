package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/Veraticus/browser2excel/internal/common"
)

// SelectorKey is the settings key holding the user's card selector.
const SelectorKey = "cardSelector"

// Settings is the key-value store the selector is persisted in.
type Settings interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// SelectorStore resolves the active card selector.
type SelectorStore struct {
	settings Settings
}

// NewSelectorStore returns a store backed by settings.
func NewSelectorStore(settings Settings) *SelectorStore {
	return &SelectorStore{settings: settings}
}

// Get returns the stored selector or DefaultSelector when none is stored.
func (s *SelectorStore) Get(ctx context.Context) (string, error) {
	selector, err := s.settings.GetSetting(ctx, SelectorKey)
	if errors.Is(err, common.ErrNotFound) || (err == nil && selector == "") {
		return DefaultSelector, nil
	}
	if err != nil {
		return "", err
	}
	return selector, nil
}

// Set validates and stores selector.
func (s *SelectorStore) Set(ctx context.Context, selector string) error {
	if err := common.ValidateString(selector, "selector"); err != nil {
		return err
	}
	if err := ValidateSelector(selector); err != nil {
		return err
	}
	if err := s.settings.SetSetting(ctx, SelectorKey, selector); err != nil {
		return fmt.Errorf("storing selector: %w", err)
	}
	return nil
}

// Reset drops the stored selector so the default applies again.
func (s *SelectorStore) Reset(ctx context.Context) error {
	return s.settings.DeleteSetting(ctx, SelectorKey)
}
