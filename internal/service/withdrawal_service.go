package service

import (
	"context"
	"fmt"
	"time"

	"crypto-settlement/internal/core/domain"
	"crypto-settlement/internal/core/ports"
	"crypto-settlement/pkg/apperror"
	"crypto-settlement/pkg/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// WithdrawalOptions holds the withdrawal policy.
type WithdrawalOptions struct {
	MinAmount               decimal.Decimal
	FeePercentage           decimal.Decimal
	AutoApproveThresholdUSD decimal.Decimal
}

// WithdrawalServiceImpl implements ports.WithdrawalService. Every state change
// locks the withdrawal row and moves the reservation in the same transaction.
type WithdrawalServiceImpl struct {
	repo       ports.WithdrawalRepository
	ledger     ports.LedgerService
	transactor ports.DBTransactor
	prices     ports.PriceOracle
	opts       WithdrawalOptions
	metrics    *metrics.Metrics
	log        zerolog.Logger
	now        func() time.Time
}

// NewWithdrawalService creates a new WithdrawalServiceImpl.
func NewWithdrawalService(
	repo ports.WithdrawalRepository,
	ledger ports.LedgerService,
	transactor ports.DBTransactor,
	prices ports.PriceOracle,
	opts WithdrawalOptions,
	m *metrics.Metrics,
	log zerolog.Logger,
) *WithdrawalServiceImpl {
	return &WithdrawalServiceImpl{
		repo:       repo,
		ledger:     ledger,
		transactor: transactor,
		prices:     prices,
		opts:       opts,
		metrics:    m,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Request reserves the amount and records the withdrawal. Small withdrawals
// are approved immediately; the rest wait for an admin.
func (s *WithdrawalServiceImpl) Request(ctx context.Context, req ports.WithdrawalRequest) (*domain.Withdrawal, error) {
	if !req.Currency.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("unsupported currency %q", req.Currency))
	}
	if err := ValidateAddress(req.Currency.Family(), req.DestinationAddress); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.Amount.LessThan(s.opts.MinAmount) {
		return nil, apperror.Validation(fmt.Sprintf("minimum withdrawal is %s %s", s.opts.MinAmount.String(), req.Currency))
	}

	fee := PercentOf(req.Amount, s.opts.FeePercentage, req.Currency.Decimals())
	now := s.now()
	w := &domain.Withdrawal{
		ID:                 uuid.New(),
		MerchantID:         req.MerchantID,
		Currency:           req.Currency,
		Amount:             req.Amount,
		Fee:                fee,
		NetAmount:          req.Amount.Sub(fee),
		DestinationAddress: req.DestinationAddress,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	usd, err := ToUSD(ctx, s.prices, req.Currency, req.Amount)
	if err != nil {
		// without a price the amount cannot be judged small
		s.log.Warn().Err(err).Str("currency", string(req.Currency)).Msg("no USD price, withdrawal needs approval")
		w.RequiresApproval = true
	} else {
		w.AmountUSD = usd
		w.RequiresApproval = !usd.LessThan(s.opts.AutoApproveThresholdUSD)
	}
	if w.RequiresApproval {
		w.Status = domain.WithdrawalStatusPending
	} else {
		w.Status = domain.WithdrawalStatusApproved
		w.ApprovedAt = &now
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if _, err := s.ledger.ReserveTx(ctx, dbTx, w.MerchantID, w.Currency, w.Amount, "withdrawal_requested", w.ID.String()); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, dbTx, w); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create withdrawal: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}

	s.metrics.Withdrawal(string(w.Status))
	s.log.Info().
		Str("withdrawal_id", w.ID.String()).
		Str("merchant_id", w.MerchantID.String()).
		Str("currency", string(w.Currency)).
		Str("amount", w.Amount.String()).
		Str("amount_usd", w.AmountUSD.String()).
		Bool("requires_approval", w.RequiresApproval).
		Msg("withdrawal requested")

	return w, nil
}

// Cancel returns the reservation to available. Only Pending withdrawals and
// Approved ones not yet submitted on chain can be cancelled.
func (s *WithdrawalServiceImpl) Cancel(ctx context.Context, merchantID, withdrawalID uuid.UUID) (*domain.Withdrawal, error) {
	return s.update(ctx, withdrawalID, func(tx pgx.Tx, w *domain.Withdrawal, now time.Time) error {
		if w.MerchantID != merchantID {
			return apperror.ErrWithdrawalNotFound()
		}
		if !w.IsCancellable() {
			return apperror.ErrInvalidWithdrawalState(fmt.Sprintf("withdrawal in status %s cannot be cancelled", w.Status))
		}
		if _, err := s.ledger.ReleaseReserveTx(ctx, tx, w.MerchantID, w.Currency, w.Amount, domain.ReleaseCancel, "withdrawal_cancelled", w.ID.String()); err != nil {
			return err
		}
		w.Status = domain.WithdrawalStatusCancelled
		return nil
	})
}

// Approve lets a Pending withdrawal through to submission.
func (s *WithdrawalServiceImpl) Approve(ctx context.Context, adminID, withdrawalID uuid.UUID) (*domain.Withdrawal, error) {
	return s.update(ctx, withdrawalID, func(_ pgx.Tx, w *domain.Withdrawal, now time.Time) error {
		if w.Status != domain.WithdrawalStatusPending {
			return apperror.ErrInvalidWithdrawalState(fmt.Sprintf("withdrawal in status %s cannot be approved", w.Status))
		}
		w.Status = domain.WithdrawalStatusApproved
		w.ApprovedBy = &adminID
		w.ApprovedAt = &now
		return nil
	})
}

// Reject refuses a Pending withdrawal and returns the funds to available.
func (s *WithdrawalServiceImpl) Reject(ctx context.Context, adminID, withdrawalID uuid.UUID, reason string) (*domain.Withdrawal, error) {
	if reason == "" {
		return nil, apperror.Validation("rejection reason is required")
	}
	return s.update(ctx, withdrawalID, func(tx pgx.Tx, w *domain.Withdrawal, now time.Time) error {
		if w.Status != domain.WithdrawalStatusPending {
			return apperror.ErrInvalidWithdrawalState(fmt.Sprintf("withdrawal in status %s cannot be rejected", w.Status))
		}
		if _, err := s.ledger.ReleaseReserveTx(ctx, tx, w.MerchantID, w.Currency, w.Amount, domain.ReleaseCancel, "withdrawal_rejected", w.ID.String()); err != nil {
			return err
		}
		w.Status = domain.WithdrawalStatusRejected
		w.RejectionReason = &reason
		s.log.Info().Str("withdrawal_id", w.ID.String()).Str("admin_id", adminID.String()).Str("reason", reason).Msg("withdrawal rejected")
		return nil
	})
}

// Complete records a successful chain submission; the reserved funds leave the system.
func (s *WithdrawalServiceImpl) Complete(ctx context.Context, withdrawalID uuid.UUID, txRef string) (*domain.Withdrawal, error) {
	if txRef == "" {
		return nil, apperror.Validation("transaction reference is required")
	}
	return s.update(ctx, withdrawalID, func(tx pgx.Tx, w *domain.Withdrawal, now time.Time) error {
		if w.Status != domain.WithdrawalStatusApproved {
			return apperror.ErrInvalidWithdrawalState(fmt.Sprintf("withdrawal in status %s cannot be completed", w.Status))
		}
		if _, err := s.ledger.ReleaseReserveTx(ctx, tx, w.MerchantID, w.Currency, w.Amount, domain.ReleaseComplete, "withdrawal_completed", w.ID.String()); err != nil {
			return err
		}
		w.Status = domain.WithdrawalStatusCompleted
		w.TxRef = &txRef
		w.CompletedAt = &now
		if w.SubmittedAt == nil {
			w.SubmittedAt = &now
		}
		return nil
	})
}

// update locks the row, applies fn and writes the result in one transaction.
func (s *WithdrawalServiceImpl) update(ctx context.Context, id uuid.UUID, fn func(tx pgx.Tx, w *domain.Withdrawal, now time.Time) error) (*domain.Withdrawal, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	w, err := s.repo.GetByIDForUpdate(ctx, dbTx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lock withdrawal: %w", err))
	}
	if w == nil {
		return nil, apperror.ErrWithdrawalNotFound()
	}

	from := w.Status
	now := s.now()
	if err := fn(dbTx, w, now); err != nil {
		return nil, err
	}
	w.UpdatedAt = now

	if err := s.repo.Update(ctx, dbTx, w); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update withdrawal: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}

	s.metrics.Withdrawal(string(w.Status))
	s.log.Info().
		Str("withdrawal_id", w.ID.String()).
		Str("from", string(from)).
		Str("to", string(w.Status)).
		Msg("withdrawal status changed")
	return w, nil
}

// Get returns a withdrawal owned by merchantID.
func (s *WithdrawalServiceImpl) Get(ctx context.Context, merchantID, withdrawalID uuid.UUID) (*domain.Withdrawal, error) {
	w, err := s.repo.GetByID(ctx, withdrawalID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if w == nil || w.MerchantID != merchantID {
		return nil, apperror.ErrWithdrawalNotFound()
	}
	return w, nil
}

// List returns withdrawals, newest first. A nil MerchantID lists all merchants.
func (s *WithdrawalServiceImpl) List(ctx context.Context, params ports.WithdrawalListParams) ([]domain.Withdrawal, int64, error) {
	params.Page, params.PageSize = normalizePage(params.Page, params.PageSize)
	items, total, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.ErrDatabaseError(err)
	}
	return items, total, nil
}
