package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto-settlement/internal/core/domain"
	"crypto-settlement/internal/core/ports"
	"crypto-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DepositServiceImpl implements ports.DepositService.
type DepositServiceImpl struct {
	repo   ports.DepositAddressRepository
	keygen ports.KeyGenerator
	vault  ports.Vault
	log    zerolog.Logger
}

// NewDepositService creates a new DepositServiceImpl.
func NewDepositService(repo ports.DepositAddressRepository, keygen ports.KeyGenerator, vault ports.Vault, log zerolog.Logger) *DepositServiceImpl {
	return &DepositServiceImpl{repo: repo, keygen: keygen, vault: vault, log: log}
}

// Issue returns the payment's deposit address, minting one on first call.
// Concurrent callers for the same payment all get the row that won the insert.
func (s *DepositServiceImpl) Issue(ctx context.Context, paymentID uuid.UUID, currency domain.Currency, destination string) (*domain.DepositAddress, error) {
	if !currency.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("unsupported currency %q", currency))
	}

	existing, err := s.repo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lookup deposit address: %w", err))
	}
	if existing != nil {
		return existing, nil
	}

	kp, err := s.keygen.Generate(currency.Family())
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate keypair: %w", err))
	}
	encrypted, err := s.vault.Encrypt(kp.PrivateKey)
	if err != nil {
		return nil, apperror.ErrEncryption(err)
	}

	addr := &domain.DepositAddress{
		PaymentID:           paymentID,
		Currency:            currency,
		Address:             kp.Address,
		EncryptedKey:        encrypted,
		MerchantDestination: destination,
		IssuedAt:            time.Now().UTC(),
	}

	inserted, err := s.repo.Insert(ctx, addr)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("insert deposit address: %w", err))
	}
	if !inserted {
		winner, err := s.repo.GetByPaymentID(ctx, paymentID)
		if err != nil {
			return nil, apperror.ErrDatabaseError(fmt.Errorf("reload deposit address: %w", err))
		}
		if winner == nil {
			return nil, apperror.ErrDuplicateAddressGeneration()
		}
		s.log.Debug().Str("payment_id", paymentID.String()).Msg("deposit address issued concurrently, using existing")
		return winner, nil
	}

	s.log.Info().
		Str("payment_id", paymentID.String()).
		Str("currency", string(currency)).
		Str("address", addr.Address).
		Msg("deposit address issued")

	return addr, nil
}

// Get returns the deposit address of a payment.
func (s *DepositServiceImpl) Get(ctx context.Context, paymentID uuid.UUID) (*domain.DepositAddress, error) {
	addr, err := s.repo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if addr == nil {
		return nil, apperror.ErrPaymentNotFound()
	}
	return addr, nil
}

// RevealPrivateKey decrypts the deposit key. Only the forwarding step calls this.
func (s *DepositServiceImpl) RevealPrivateKey(ctx context.Context, paymentID uuid.UUID) (string, error) {
	addr, err := s.Get(ctx, paymentID)
	if err != nil {
		return "", err
	}

	key, err := s.vault.Decrypt(addr.EncryptedKey)
	if err != nil {
		if errors.Is(err, apperror.ErrDecryptionKind) {
			return "", err
		}
		return "", apperror.ErrDecryption(err)
	}
	return key, nil
}
