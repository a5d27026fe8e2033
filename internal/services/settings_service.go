package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"quota-platform/internal/db"
	"quota-platform/internal/models"
)

type SettingsService struct {
	store  *db.Store
	logger zerolog.Logger
}

func NewSettingsService(store *db.Store, logger zerolog.Logger) *SettingsService {
	return &SettingsService{store: store, logger: logger}
}

func (s *SettingsService) GetSettings(ctx context.Context) (*models.SystemSettings, error) {
	var settings *models.SystemSettings
	err := s.store.WithTx(ctx, func(tx *db.Tx) error {
		var err error
		settings, err = tx.GetSettings(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return settings, nil
}

// UpdateSettings applies the non-nil fields of req. Superadmin only.
func (s *SettingsService) UpdateSettings(ctx context.Context, adminID int64, req *models.UpdateSettingsRequest) (*models.SystemSettings, error) {
	if req.QuotaPrice != nil {
		if err := validateAmount("quota price", *req.QuotaPrice); err != nil {
			return nil, err
		}
	}
	if req.CreditPrice != nil {
		if err := validateAmount("credit price", *req.CreditPrice); err != nil {
			return nil, err
		}
	}
	if req.DailyPurchaseLimit != nil && *req.DailyPurchaseLimit < 0 {
		return nil, validationError("daily purchase limit cannot be negative")
	}

	var settings *models.SystemSettings
	err := s.store.WithTx(ctx, func(tx *db.Tx) error {
		if err := requireSuperadmin(ctx, tx, adminID); err != nil {
			return err
		}

		var err error
		settings, err = tx.GetSettings(ctx)
		if err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}
		if req.QuotaPrice != nil {
			settings.QuotaPrice = *req.QuotaPrice
		}
		if req.CreditPrice != nil {
			settings.CreditPrice = *req.CreditPrice
		}
		if req.DailyPurchaseLimit != nil {
			settings.DailyPurchaseLimit = *req.DailyPurchaseLimit
		}

		ok, err := tx.UpdateSettings(ctx, settings)
		if err != nil {
			return fmt.Errorf("failed to update settings: %w", err)
		}
		if !ok {
			return fmt.Errorf("settings are not initialized")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("admin_id", adminID).
		Str("quota_price", settings.QuotaPrice.String()).
		Int64("daily_purchase_limit", settings.DailyPurchaseLimit).
		Msg("System settings updated")

	return settings, nil
}
