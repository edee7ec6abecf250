package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto-settlement/internal/core/domain"
	"crypto-settlement/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const paymentColumnList = `id, merchant_id, currency, requested_amount::text, customer_amount::text,
	processing_fee::text, merchant_amount::text, fee_percentage::text, customer_pays_fee,
	deposit_address, merchant_destination, status, confirmations, required_confirmations,
	inbound_tx_ref, received_amount::text, forward_tx_ref, forward_raw_tx, forward_claimed_at,
	description, idempotency_key, created_at, expires_at, confirmed_at, forwarded_at`

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct {
	pool Pool
}

// NewPaymentRepo creates a new PaymentRepo.
func NewPaymentRepo(pool Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

// Create inserts a new payment.
func (r *PaymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	query := `INSERT INTO payments (id, merchant_id, currency, requested_amount, customer_amount,
		processing_fee, merchant_amount, fee_percentage, customer_pays_fee, deposit_address,
		merchant_destination, status, confirmations, required_confirmations, description,
		idempotency_key, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.MerchantID, string(p.Currency), p.RequestedAmount.String(), p.CustomerAmount.String(),
		p.ProcessingFee.String(), p.MerchantAmount.String(), p.FeePercentage.String(), p.CustomerPaysFee,
		p.DepositAddress, p.MerchantDestination, string(p.Status), p.Confirmations, p.RequiredConfirmations,
		p.Description, p.IdempotencyKey, p.CreatedAt, p.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByID fetches a payment by its UUID.
func (r *PaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumnList + ` FROM payments WHERE id = $1`

	p, err := scanPayment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment by id: %w", err)
	}
	return p, nil
}

// GetByIdempotencyKey finds the payment a merchant created with key.
func (r *PaymentRepo) GetByIdempotencyKey(ctx context.Context, merchantID uuid.UUID, key string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumnList + ` FROM payments WHERE merchant_id = $1 AND idempotency_key = $2`

	p, err := scanPayment(r.pool.QueryRow(ctx, query, merchantID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment by idempotency key: %w", err)
	}
	return p, nil
}

// List returns a merchant's payments with optional status filter, newest first.
func (r *PaymentRepo) List(ctx context.Context, params ports.PaymentListParams) ([]domain.Payment, int64, error) {
	where := `WHERE merchant_id = $1`
	args := []any{params.MerchantID}
	if params.Status != nil {
		args = append(args, string(*params.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payments `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	args = append(args, params.PageSize, offset)
	query := fmt.Sprintf(`SELECT %s FROM payments %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		paymentColumnList, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	payments, err := collectPayments(rows)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// ListActive returns payments the monitor still polls, oldest first.
func (r *PaymentRepo) ListActive(ctx context.Context, limit int) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumnList + ` FROM payments
		WHERE status IN ('PENDING', 'CONFIRMING', 'CONFIRMED')
		ORDER BY created_at ASC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list active payments: %w", err)
	}
	return collectPayments(rows)
}

// Transition applies t only while the stored status still equals t.From.
// Confirmations never decrease.
func (r *PaymentRepo) Transition(ctx context.Context, tx pgx.Tx, id uuid.UUID, t domain.PaymentTransition) (bool, error) {
	var received, fee, merchantAmount *string
	if t.ReceivedAmount != nil {
		s := t.ReceivedAmount.String()
		received = &s
	}
	if t.Fee != nil {
		f, m := t.Fee.ProcessingFee.String(), t.Fee.MerchantAmount.String()
		fee, merchantAmount = &f, &m
	}

	query := `UPDATE payments SET
		status = $1,
		confirmations = GREATEST(confirmations, COALESCE($2, confirmations)),
		inbound_tx_ref = COALESCE($3, inbound_tx_ref),
		received_amount = COALESCE($4::numeric, received_amount),
		processing_fee = COALESCE($5::numeric, processing_fee),
		merchant_amount = COALESCE($6::numeric, merchant_amount),
		forward_tx_ref = COALESCE($7, forward_tx_ref),
		confirmed_at = CASE WHEN $1 = 'CONFIRMED' THEN $8 ELSE confirmed_at END,
		forwarded_at = CASE WHEN $1 = 'FORWARDED' THEN $8 ELSE forwarded_at END
		WHERE id = $9 AND status = $10`

	tag, err := on(r.pool, tx).Exec(ctx, query,
		string(t.To), t.Confirmations, t.InboundTxRef, received, fee, merchantAmount,
		t.ForwardTxRef, t.At, id, string(t.From),
	)
	if err != nil {
		return false, fmt.Errorf("transition payment %s -> %s: %w", t.From, t.To, err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordConfirmations stores max(stored, n) while the payment is Confirming and
// returns the stored count. It returns 0 when the payment has left Confirming.
func (r *PaymentRepo) RecordConfirmations(ctx context.Context, id uuid.UUID, n int) (int, error) {
	query := `UPDATE payments SET confirmations = GREATEST(confirmations, $2)
		WHERE id = $1 AND status = 'CONFIRMING'
		RETURNING confirmations`

	var stored int
	if err := r.pool.QueryRow(ctx, query, id, n).Scan(&stored); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("record confirmations: %w", err)
	}
	return stored, nil
}

// ClaimForward stores the signed forward on a Confirmed payment that has none.
// It reports false when another poller claimed it first.
func (r *PaymentRepo) ClaimForward(ctx context.Context, id uuid.UUID, signed domain.SignedTransfer, at time.Time) (bool, error) {
	query := `UPDATE payments SET forward_tx_ref = $2, forward_raw_tx = $3, forward_claimed_at = $4
		WHERE id = $1 AND status = 'CONFIRMED' AND forward_tx_ref IS NULL`

	tag, err := r.pool.Exec(ctx, query, id, signed.TxRef, signed.Raw, at)
	if err != nil {
		return false, fmt.Errorf("claim forward: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseForward clears a claim that can no longer be included on chain, so
// the next poll signs a fresh transfer.
func (r *PaymentRepo) ReleaseForward(ctx context.Context, id uuid.UUID, txRef string) (bool, error) {
	query := `UPDATE payments SET forward_tx_ref = NULL, forward_raw_tx = NULL, forward_claimed_at = NULL
		WHERE id = $1 AND status = 'CONFIRMED' AND forward_tx_ref = $2`

	tag, err := r.pool.Exec(ctx, query, id, txRef)
	if err != nil {
		return false, fmt.Errorf("release forward: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func collectPayments(rows pgx.Rows) ([]domain.Payment, error) {
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	p := &domain.Payment{}
	var currency, status, requested, customer, fee, merchantAmount, pct, received string
	if err := row.Scan(
		&p.ID, &p.MerchantID, &currency, &requested, &customer,
		&fee, &merchantAmount, &pct, &p.CustomerPaysFee,
		&p.DepositAddress, &p.MerchantDestination, &status, &p.Confirmations, &p.RequiredConfirmations,
		&p.InboundTxRef, &received, &p.ForwardTxRef, &p.ForwardRawTx, &p.ForwardClaimedAt,
		&p.Description, &p.IdempotencyKey,
		&p.CreatedAt, &p.ExpiresAt, &p.ConfirmedAt, &p.ForwardedAt,
	); err != nil {
		return nil, err
	}
	p.Currency = domain.Currency(currency)
	p.Status = domain.PaymentStatus(status)

	if err := parseNumerics(
		numeric(&p.RequestedAmount, requested),
		numeric(&p.CustomerAmount, customer),
		numeric(&p.ProcessingFee, fee),
		numeric(&p.MerchantAmount, merchantAmount),
		numeric(&p.FeePercentage, pct),
		numeric(&p.ReceivedAmount, received),
	); err != nil {
		return nil, fmt.Errorf("payment %s: %w", p.ID, err)
	}
	return p, nil
}
