package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"crypto-settlement/internal/core/domain"
	"crypto-settlement/internal/core/ports"
	"crypto-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AuthDefaults are applied to newly registered merchants.
type AuthDefaults struct {
	FeePercentage   decimal.Decimal
	CustomerPaysFee bool
}

// AuthServiceImpl implements ports.AuthService.
type AuthServiceImpl struct {
	merchantRepo ports.MerchantRepository
	hashSvc      ports.HashService
	vault        ports.Vault
	tokenSvc     ports.TokenService
	defaults     AuthDefaults
	log          zerolog.Logger
}

// NewAuthService creates a new AuthServiceImpl.
func NewAuthService(
	merchantRepo ports.MerchantRepository,
	hashSvc ports.HashService,
	vault ports.Vault,
	tokenSvc ports.TokenService,
	defaults AuthDefaults,
	log zerolog.Logger,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		merchantRepo: merchantRepo,
		hashSvc:      hashSvc,
		vault:        vault,
		tokenSvc:     tokenSvc,
		defaults:     defaults,
		log:          log,
	}
}

// Register creates a merchant account. The webhook signing secret is returned
// in plaintext only here; it is stored encrypted.
func (s *AuthServiceImpl) Register(ctx context.Context, req ports.RegisterRequest) (*ports.RegisterResponse, error) {
	merchant, secret, err := s.create(ctx, req, domain.RoleMerchant)
	if err != nil {
		return nil, err
	}
	return &ports.RegisterResponse{Merchant: merchant, WebhookSecret: secret}, nil
}

// EnsureAdmin creates the operator account unless the username is taken.
func (s *AuthServiceImpl) EnsureAdmin(ctx context.Context, username, password string) error {
	existing, err := s.merchantRepo.GetByUsername(ctx, username)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("check username: %w", err))
	}
	if existing != nil {
		if existing.Role != domain.RoleAdmin {
			return fmt.Errorf("account %q exists and is not an admin", username)
		}
		return nil
	}
	_, _, err = s.create(ctx, ports.RegisterRequest{Username: username, Password: password, MerchantName: "Operator"}, domain.RoleAdmin)
	if err == nil {
		s.log.Info().Str("username", username).Msg("admin account created")
	}
	return err
}

func (s *AuthServiceImpl) create(ctx context.Context, req ports.RegisterRequest, role domain.Role) (*domain.Merchant, string, error) {
	// Check username uniqueness
	existing, err := s.merchantRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		return nil, "", apperror.InternalError(fmt.Errorf("check username: %w", err))
	}
	if existing != nil {
		return nil, "", apperror.ErrUsernameExists()
	}

	webhookSecret, err := generateRandomHex(32) // 64 hex chars
	if err != nil {
		return nil, "", apperror.InternalError(fmt.Errorf("generate webhook secret: %w", err))
	}

	// Hash password with Argon2id
	passwordHash, err := s.hashSvc.Hash(req.Password)
	if err != nil {
		return nil, "", apperror.InternalError(fmt.Errorf("hash password: %w", err))
	}

	webhookSecretEnc, err := s.vault.Encrypt(webhookSecret)
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	merchant := &domain.Merchant{
		ID:              uuid.New(),
		Username:        req.Username,
		PasswordHash:    passwordHash,
		Name:            req.MerchantName,
		Role:            role,
		FeePercentage:   s.defaults.FeePercentage,
		CustomerPaysFee: s.defaults.CustomerPaysFee,
		Destinations:    map[domain.Currency]string{},
		WebhookURL:      req.WebhookURL,
		WebhookSecret:   webhookSecretEnc,
		Status:          domain.MerchantStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.merchantRepo.Create(ctx, merchant); err != nil {
		return nil, "", apperror.InternalError(fmt.Errorf("create merchant: %w", err))
	}

	s.log.Info().Str("merchant_id", merchant.ID.String()).Str("username", merchant.Username).Str("role", string(role)).Msg("account registered")
	return merchant, webhookSecret, nil
}

// Login validates credentials and returns a JWT token.
func (s *AuthServiceImpl) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	merchant, err := s.merchantRepo.GetByUsername(ctx, username)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("find merchant: %w", err))
	}
	if merchant == nil {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	// Verify password
	valid, err := s.hashSvc.Verify(password, merchant.PasswordHash)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("verify password: %w", err))
	}
	if !valid {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	// Check merchant status
	if !merchant.IsActive() {
		return "", time.Time{}, apperror.ErrMerchantSuspended()
	}

	token, expiry, err := s.tokenSvc.Generate(merchant.ID, merchant.Role)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}

	return token, expiry, nil
}

// generateRandomHex generates a random hex string of n bytes.
func generateRandomHex(n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
