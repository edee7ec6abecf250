package postgres

import (
	"context"
	"errors"
	"fmt"

	"crypto-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const balanceReturning = `RETURNING merchant_id, currency, available::text, reserved::text, updated_at`

// BalanceRepo implements ports.BalanceRepository. Each mutation is a single
// UPDATE whose WHERE clause guards the column being decreased; no row back
// means the guard failed.
type BalanceRepo struct {
	pool Pool
}

// NewBalanceRepo creates a new BalanceRepo.
func NewBalanceRepo(pool Pool) *BalanceRepo {
	return &BalanceRepo{pool: pool}
}

// Ensure creates the zero balance row for the pair if it does not exist.
func (r *BalanceRepo) Ensure(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, currency domain.Currency) error {
	query := `INSERT INTO merchant_balances (merchant_id, currency, available, reserved, updated_at)
		VALUES ($1, $2, 0, 0, NOW())
		ON CONFLICT (merchant_id, currency) DO NOTHING`

	if _, err := on(r.pool, tx).Exec(ctx, query, merchantID, string(currency)); err != nil {
		return fmt.Errorf("ensure balance: %w", err)
	}
	return nil
}

// Get returns the balance row for the pair, or nil.
func (r *BalanceRepo) Get(ctx context.Context, merchantID uuid.UUID, currency domain.Currency) (*domain.MerchantBalance, error) {
	query := `SELECT merchant_id, currency, available::text, reserved::text, updated_at
		FROM merchant_balances WHERE merchant_id = $1 AND currency = $2`

	b, err := scanBalance(r.pool.QueryRow(ctx, query, merchantID, string(currency)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return b, nil
}

// ListByMerchant returns every balance row of a merchant.
func (r *BalanceRepo) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.MerchantBalance, error) {
	query := `SELECT merchant_id, currency, available::text, reserved::text, updated_at
		FROM merchant_balances WHERE merchant_id = $1 ORDER BY currency`

	rows, err := r.pool.Query(ctx, query, merchantID)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	return collectBalances(rows)
}

// ListAll returns every balance row, for reconciliation.
func (r *BalanceRepo) ListAll(ctx context.Context) ([]domain.MerchantBalance, error) {
	query := `SELECT merchant_id, currency, available::text, reserved::text, updated_at
		FROM merchant_balances ORDER BY merchant_id, currency`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list all balances: %w", err)
	}
	return collectBalances(rows)
}

// Credit adds amount to available.
func (r *BalanceRepo) Credit(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (*domain.MerchantBalance, error) {
	query := `UPDATE merchant_balances SET available = available + $3::numeric, updated_at = NOW()
		WHERE merchant_id = $1 AND currency = $2 ` + balanceReturning
	return r.mutate(ctx, tx, "credit", query, merchantID, currency, amount)
}

// Debit subtracts amount from available if enough is there.
func (r *BalanceRepo) Debit(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (*domain.MerchantBalance, error) {
	query := `UPDATE merchant_balances SET available = available - $3::numeric, updated_at = NOW()
		WHERE merchant_id = $1 AND currency = $2 AND available >= $3::numeric ` + balanceReturning
	return r.mutate(ctx, tx, "debit", query, merchantID, currency, amount)
}

// Reserve moves amount from available to reserved if enough is available.
func (r *BalanceRepo) Reserve(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (*domain.MerchantBalance, error) {
	query := `UPDATE merchant_balances
		SET available = available - $3::numeric, reserved = reserved + $3::numeric, updated_at = NOW()
		WHERE merchant_id = $1 AND currency = $2 AND available >= $3::numeric ` + balanceReturning
	return r.mutate(ctx, tx, "reserve", query, merchantID, currency, amount)
}

// Release takes amount out of reserved, back to available when toAvailable is set.
func (r *BalanceRepo) Release(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal, toAvailable bool) (*domain.MerchantBalance, error) {
	query := `UPDATE merchant_balances SET reserved = reserved - $3::numeric, updated_at = NOW()
		WHERE merchant_id = $1 AND currency = $2 AND reserved >= $3::numeric ` + balanceReturning
	if toAvailable {
		query = `UPDATE merchant_balances
			SET reserved = reserved - $3::numeric, available = available + $3::numeric, updated_at = NOW()
			WHERE merchant_id = $1 AND currency = $2 AND reserved >= $3::numeric ` + balanceReturning
	}
	return r.mutate(ctx, tx, "release", query, merchantID, currency, amount)
}

func (r *BalanceRepo) mutate(ctx context.Context, tx pgx.Tx, op, query string, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (*domain.MerchantBalance, error) {
	b, err := scanBalance(on(r.pool, tx).QueryRow(ctx, query, merchantID, string(currency), amount.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s balance: %w", op, err)
	}
	return b, nil
}

func collectBalances(rows pgx.Rows) ([]domain.MerchantBalance, error) {
	defer rows.Close()

	var balances []domain.MerchantBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		balances = append(balances, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balances: %w", err)
	}
	return balances, nil
}

func scanBalance(row pgx.Row) (*domain.MerchantBalance, error) {
	b := &domain.MerchantBalance{}
	var currency, available, reserved string
	if err := row.Scan(&b.MerchantID, &currency, &available, &reserved, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Currency = domain.Currency(currency)
	if err := parseNumerics(numeric(&b.Available, available), numeric(&b.Reserved, reserved)); err != nil {
		return nil, err
	}
	return b, nil
}
