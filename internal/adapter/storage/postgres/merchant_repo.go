package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"crypto-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const merchantColumnList = `id, username, password_hash, name, role, fee_percentage::text, customer_pays_fee,
	destinations, webhook_url, webhook_secret, status, created_at, updated_at`

// MerchantRepo implements ports.MerchantRepository.
type MerchantRepo struct {
	pool Pool
}

// NewMerchantRepo creates a new MerchantRepo.
func NewMerchantRepo(pool Pool) *MerchantRepo {
	return &MerchantRepo{pool: pool}
}

// Create inserts a new merchant into the database.
func (r *MerchantRepo) Create(ctx context.Context, m *domain.Merchant) error {
	destinations, err := encodeDestinations(m.Destinations)
	if err != nil {
		return err
	}

	query := `INSERT INTO merchants (id, username, password_hash, name, role, fee_percentage, customer_pays_fee,
		destinations, webhook_url, webhook_secret, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = r.pool.Exec(ctx, query,
		m.ID, m.Username, m.PasswordHash, m.Name, string(m.Role), m.FeePercentage.String(), m.CustomerPaysFee,
		destinations, m.WebhookURL, m.WebhookSecret, string(m.Status), m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert merchant: %w", err)
	}
	return nil
}

// GetByID fetches a merchant by its UUID.
func (r *MerchantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error) {
	query := `SELECT ` + merchantColumnList + ` FROM merchants WHERE id = $1`

	m, err := scanMerchant(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get merchant by id: %w", err)
	}
	return m, nil
}

// GetByUsername fetches a merchant by username.
func (r *MerchantRepo) GetByUsername(ctx context.Context, username string) (*domain.Merchant, error) {
	query := `SELECT ` + merchantColumnList + ` FROM merchants WHERE username = $1`

	m, err := scanMerchant(r.pool.QueryRow(ctx, query, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get merchant by username: %w", err)
	}
	return m, nil
}

// Update writes the mutable settings of a merchant.
func (r *MerchantRepo) Update(ctx context.Context, m *domain.Merchant) error {
	destinations, err := encodeDestinations(m.Destinations)
	if err != nil {
		return err
	}

	query := `UPDATE merchants
		SET name=$1, fee_percentage=$2, customer_pays_fee=$3, destinations=$4,
			webhook_url=$5, webhook_secret=$6, status=$7, updated_at=NOW()
		WHERE id=$8`
	tag, err := r.pool.Exec(ctx, query,
		m.Name, m.FeePercentage.String(), m.CustomerPaysFee, destinations,
		m.WebhookURL, m.WebhookSecret, string(m.Status), m.ID,
	)
	if err != nil {
		return fmt.Errorf("update merchant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("merchant not found: %s", m.ID)
	}
	return nil
}

func scanMerchant(row pgx.Row) (*domain.Merchant, error) {
	m := &domain.Merchant{}
	var (
		role, status, fee string
		destinations      []byte
	)
	if err := row.Scan(
		&m.ID, &m.Username, &m.PasswordHash, &m.Name, &role, &fee, &m.CustomerPaysFee,
		&destinations, &m.WebhookURL, &m.WebhookSecret, &status, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	m.Role = domain.Role(role)
	m.Status = domain.MerchantStatus(status)

	var err error
	if m.FeePercentage, err = parseDecimal(fee); err != nil {
		return nil, fmt.Errorf("merchant %s fee_percentage: %w", m.ID, err)
	}
	m.Destinations = map[domain.Currency]string{}
	if len(destinations) > 0 {
		if err := json.Unmarshal(destinations, &m.Destinations); err != nil {
			return nil, fmt.Errorf("merchant %s destinations: %w", m.ID, err)
		}
	}
	return m, nil
}

func encodeDestinations(d map[domain.Currency]string) ([]byte, error) {
	if d == nil {
		d = map[domain.Currency]string{}
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode destinations: %w", err)
	}
	return b, nil
}
