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

const withdrawalColumnList = `id, merchant_id, currency, amount::text, fee::text, net_amount::text, amount_usd::text,
	destination_address, status, requires_approval, tx_ref, submitted_at, approved_by, approved_at,
	rejection_reason, completed_at, created_at, updated_at`

// WithdrawalRepo implements ports.WithdrawalRepository.
type WithdrawalRepo struct {
	pool Pool
}

// NewWithdrawalRepo creates a new WithdrawalRepo.
func NewWithdrawalRepo(pool Pool) *WithdrawalRepo {
	return &WithdrawalRepo{pool: pool}
}

// Create inserts a withdrawal inside the caller's transaction.
func (r *WithdrawalRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Withdrawal) error {
	query := `INSERT INTO withdrawals (id, merchant_id, currency, amount, fee, net_amount, amount_usd,
		destination_address, status, requires_approval, approved_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := on(r.pool, tx).Exec(ctx, query,
		w.ID, w.MerchantID, string(w.Currency), w.Amount.String(), w.Fee.String(), w.NetAmount.String(),
		w.AmountUSD.String(), w.DestinationAddress, string(w.Status), w.RequiresApproval, w.ApprovedAt,
		w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

// GetByID fetches a withdrawal without locking.
func (r *WithdrawalRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumnList + ` FROM withdrawals WHERE id = $1`

	w, err := scanWithdrawal(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get withdrawal by id: %w", err)
	}
	return w, nil
}

// GetByIDForUpdate fetches a withdrawal with pessimistic locking.
// This MUST be called within a transaction.
func (r *WithdrawalRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumnList + ` FROM withdrawals WHERE id = $1 FOR UPDATE`

	w, err := scanWithdrawal(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get withdrawal for update: %w", err)
	}
	return w, nil
}

// Update writes the status and lifecycle columns.
func (r *WithdrawalRepo) Update(ctx context.Context, tx pgx.Tx, w *domain.Withdrawal) error {
	query := `UPDATE withdrawals
		SET status=$1, tx_ref=$2, submitted_at=$3, approved_by=$4, approved_at=$5,
			rejection_reason=$6, completed_at=$7, updated_at=$8
		WHERE id=$9`

	tag, err := on(r.pool, tx).Exec(ctx, query,
		string(w.Status), w.TxRef, w.SubmittedAt, w.ApprovedBy, w.ApprovedAt,
		w.RejectionReason, w.CompletedAt, w.UpdatedAt, w.ID,
	)
	if err != nil {
		return fmt.Errorf("update withdrawal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("withdrawal not found: %s", w.ID)
	}
	return nil
}

// List returns withdrawals, newest first, optionally scoped to one merchant.
func (r *WithdrawalRepo) List(ctx context.Context, params ports.WithdrawalListParams) ([]domain.Withdrawal, int64, error) {
	where := `WHERE TRUE`
	var args []any
	if params.MerchantID != nil {
		args = append(args, *params.MerchantID)
		where += fmt.Sprintf(" AND merchant_id = $%d", len(args))
	}
	if params.Status != nil {
		args = append(args, string(*params.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM withdrawals `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count withdrawals: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	args = append(args, params.PageSize, offset)
	query := fmt.Sprintf(`SELECT %s FROM withdrawals %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		withdrawalColumnList, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list withdrawals: %w", err)
	}
	items, err := collectWithdrawals(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListReadyForSubmission returns Approved withdrawals not yet submitted, oldest first.
func (r *WithdrawalRepo) ListReadyForSubmission(ctx context.Context, limit int) ([]domain.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumnList + ` FROM withdrawals
		WHERE status = 'APPROVED' AND submitted_at IS NULL
		ORDER BY created_at ASC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list ready withdrawals: %w", err)
	}
	return collectWithdrawals(rows)
}

// MarkSubmitted claims an Approved, unsubmitted withdrawal.
func (r *WithdrawalRepo) MarkSubmitted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := `UPDATE withdrawals SET submitted_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'APPROVED' AND submitted_at IS NULL`

	tag, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("mark withdrawal submitted: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClearSubmitted releases a claim whose payout was never broadcast.
func (r *WithdrawalRepo) ClearSubmitted(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE withdrawals SET submitted_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'APPROVED'`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("clear withdrawal submission: %w", err)
	}
	return nil
}

func collectWithdrawals(rows pgx.Rows) ([]domain.Withdrawal, error) {
	defer rows.Close()

	var items []domain.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan withdrawal: %w", err)
		}
		items = append(items, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate withdrawals: %w", err)
	}
	return items, nil
}

func scanWithdrawal(row pgx.Row) (*domain.Withdrawal, error) {
	w := &domain.Withdrawal{}
	var currency, status, amount, fee, net, usd string
	if err := row.Scan(
		&w.ID, &w.MerchantID, &currency, &amount, &fee, &net, &usd,
		&w.DestinationAddress, &status, &w.RequiresApproval, &w.TxRef, &w.SubmittedAt, &w.ApprovedBy, &w.ApprovedAt,
		&w.RejectionReason, &w.CompletedAt, &w.CreatedAt, &w.UpdatedAt,
	); err != nil {
		return nil, err
	}
	w.Currency = domain.Currency(currency)
	w.Status = domain.WithdrawalStatus(status)
	if err := parseNumerics(
		numeric(&w.Amount, amount),
		numeric(&w.Fee, fee),
		numeric(&w.NetAmount, net),
		numeric(&w.AmountUSD, usd),
	); err != nil {
		return nil, fmt.Errorf("withdrawal %s: %w", w.ID, err)
	}
	return w, nil
}
