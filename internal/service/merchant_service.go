package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"crypto-settlement/internal/core/domain"
	"crypto-settlement/internal/core/ports"
	"crypto-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MerchantServiceImpl implements ports.MerchantService.
type MerchantServiceImpl struct {
	merchantRepo ports.MerchantRepository
	vault        ports.Vault
	fees         *FeeCalculator
	log          zerolog.Logger
}

// NewMerchantService creates a new merchant settings service.
func NewMerchantService(merchantRepo ports.MerchantRepository, vault ports.Vault, fees *FeeCalculator, log zerolog.Logger) *MerchantServiceImpl {
	return &MerchantServiceImpl{
		merchantRepo: merchantRepo,
		vault:        vault,
		fees:         fees,
		log:          log,
	}
}

func (s *MerchantServiceImpl) load(ctx context.Context, merchantID uuid.UUID) (*domain.Merchant, error) {
	merchant, err := s.merchantRepo.GetByID(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if merchant == nil {
		return nil, apperror.ErrMerchantNotFound()
	}
	return merchant, nil
}

// GetProfile returns the merchant record.
func (s *MerchantServiceImpl) GetProfile(ctx context.Context, merchantID uuid.UUID) (*domain.Merchant, error) {
	return s.load(ctx, merchantID)
}

// UpdateSettings validates and applies the non-nil fields of req.
func (s *MerchantServiceImpl) UpdateSettings(ctx context.Context, merchantID uuid.UUID, req ports.MerchantSettings) (*domain.Merchant, error) {
	merchant, err := s.load(ctx, merchantID)
	if err != nil {
		return nil, err
	}

	if req.WebhookURL != nil {
		if *req.WebhookURL == "" {
			merchant.WebhookURL = nil
		} else {
			if err := validateWebhookURL(*req.WebhookURL); err != nil {
				return nil, err
			}
			u := *req.WebhookURL
			merchant.WebhookURL = &u
		}
	}
	if req.FeePercentage != nil {
		if err := s.fees.ValidatePercentage(*req.FeePercentage); err != nil {
			return nil, err
		}
		merchant.FeePercentage = *req.FeePercentage
	}
	if req.CustomerPaysFee != nil {
		merchant.CustomerPaysFee = *req.CustomerPaysFee
	}
	if len(req.Destinations) > 0 {
		if merchant.Destinations == nil {
			merchant.Destinations = make(map[domain.Currency]string)
		}
		for currency, addr := range req.Destinations {
			if !currency.Valid() {
				return nil, apperror.Validation(fmt.Sprintf("unsupported currency %q", currency))
			}
			if addr == "" {
				delete(merchant.Destinations, currency)
				continue
			}
			if err := ValidateAddress(currency.Family(), addr); err != nil {
				return nil, err
			}
			merchant.Destinations[currency] = addr
		}
	}

	merchant.UpdatedAt = time.Now().UTC()
	if err := s.merchantRepo.Update(ctx, merchant); err != nil {
		return nil, apperror.InternalError(err)
	}

	s.log.Info().Str("merchant_id", merchant.ID.String()).Msg("merchant settings updated")
	return merchant, nil
}

// RotateWebhookSecret issues a new webhook signing secret.
func (s *MerchantServiceImpl) RotateWebhookSecret(ctx context.Context, merchantID uuid.UUID) (string, error) {
	merchant, err := s.load(ctx, merchantID)
	if err != nil {
		return "", err
	}

	secret, err := generateRandomHex(32)
	if err != nil {
		return "", apperror.InternalError(fmt.Errorf("generate webhook secret: %w", err))
	}
	enc, err := s.vault.Encrypt(secret)
	if err != nil {
		return "", err
	}

	merchant.WebhookSecret = enc
	merchant.UpdatedAt = time.Now().UTC()
	if err := s.merchantRepo.Update(ctx, merchant); err != nil {
		return "", apperror.InternalError(err)
	}
	return secret, nil
}

func validateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return apperror.Validation("webhook_url must be an absolute http(s) URL")
	}
	return nil
}
