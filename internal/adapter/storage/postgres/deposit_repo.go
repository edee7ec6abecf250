package postgres

import (
	"context"
	"errors"
	"fmt"

	"crypto-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DepositAddressRepo implements ports.DepositAddressRepository.
type DepositAddressRepo struct {
	pool Pool
}

// NewDepositAddressRepo creates a new DepositAddressRepo.
func NewDepositAddressRepo(pool Pool) *DepositAddressRepo {
	return &DepositAddressRepo{pool: pool}
}

// Insert stores d unless the payment already has an address.
func (r *DepositAddressRepo) Insert(ctx context.Context, d *domain.DepositAddress) (bool, error) {
	query := `INSERT INTO deposit_addresses (payment_id, currency, address, encrypted_key, merchant_destination, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (payment_id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		d.PaymentID, string(d.Currency), d.Address, d.EncryptedKey, d.MerchantDestination, d.IssuedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert deposit address: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByPaymentID fetches the deposit address issued for a payment.
func (r *DepositAddressRepo) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.DepositAddress, error) {
	query := `SELECT payment_id, currency, address, encrypted_key, merchant_destination, issued_at
		FROM deposit_addresses WHERE payment_id = $1`

	d := &domain.DepositAddress{}
	var currency string
	err := r.pool.QueryRow(ctx, query, paymentID).Scan(
		&d.PaymentID, &currency, &d.Address, &d.EncryptedKey, &d.MerchantDestination, &d.IssuedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get deposit address: %w", err)
	}
	d.Currency = domain.Currency(currency)
	return d, nil
}
