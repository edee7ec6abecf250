package ports

import (
	"context"
	"time"

	"crypto-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Methods accepting pgx.Tx run inside the caller's transaction. Where noted,
// a nil tx runs the statement on the pool.

// MerchantRepository defines persistence operations for merchants.
type MerchantRepository interface {
	Create(ctx context.Context, merchant *domain.Merchant) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error)
	GetByUsername(ctx context.Context, username string) (*domain.Merchant, error)
	Update(ctx context.Context, merchant *domain.Merchant) error
}

// PaymentRepository persists payments and applies state transitions.
type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	// GetByIdempotencyKey finds the payment a merchant created with key, or nil.
	GetByIdempotencyKey(ctx context.Context, merchantID uuid.UUID, key string) (*domain.Payment, error)
	List(ctx context.Context, params PaymentListParams) ([]domain.Payment, int64, error)
	// ListActive returns up to limit payments the monitor still has to poll, oldest first.
	ListActive(ctx context.Context, limit int) ([]domain.Payment, error)
	// Transition moves a payment from t.From to t.To. It returns false when the
	// stored status no longer equals t.From. tx may be nil.
	Transition(ctx context.Context, tx pgx.Tx, id uuid.UUID, t domain.PaymentTransition) (bool, error)
	// RecordConfirmations stores max(stored, n) while the payment is Confirming.
	RecordConfirmations(ctx context.Context, id uuid.UUID, n int) (int, error)
	// ClaimForward records a signed forward transfer while the payment is
	// Confirmed and has no claim yet. It returns false when the claim was lost.
	ClaimForward(ctx context.Context, id uuid.UUID, signed domain.SignedTransfer, at time.Time) (bool, error)
	// ReleaseForward drops the claim on txRef so a new transfer can be signed.
	ReleaseForward(ctx context.Context, id uuid.UUID, txRef string) (bool, error)
}

// PaymentListParams holds filter + pagination for listing payments.
type PaymentListParams struct {
	MerchantID uuid.UUID
	Status     *domain.PaymentStatus
	Page       int
	PageSize   int
}

// DepositAddressRepository stores one deposit address per payment.
type DepositAddressRepository interface {
	// Insert stores d unless the payment already has an address; it reports whether d was stored.
	Insert(ctx context.Context, d *domain.DepositAddress) (bool, error)
	GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.DepositAddress, error)
}

// BalanceRepository applies conditional updates to merchant balance rows.
// Debit, Reserve and Release return nil when the guarded column is too small.
type BalanceRepository interface {
	Ensure(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, currency domain.Currency) error
	Get(ctx context.Context, merchantID uuid.UUID, currency domain.Currency) (*domain.MerchantBalance, error)
	ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.MerchantBalance, error)
	ListAll(ctx context.Context) ([]domain.MerchantBalance, error)
	Credit(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (*domain.MerchantBalance, error)
	Debit(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (*domain.MerchantBalance, error)
	Reserve(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (*domain.MerchantBalance, error)
	Release(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal, toAvailable bool) (*domain.MerchantBalance, error)
}

// LedgerRepository is the append-only ledger entry store.
type LedgerRepository interface {
	Append(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error
	List(ctx context.Context, params LedgerListParams) ([]domain.LedgerEntry, int64, error)
	// SumNetChange returns the signed total of all entries for the pair.
	SumNetChange(ctx context.Context, merchantID uuid.UUID, currency domain.Currency) (decimal.Decimal, error)
}

// LedgerListParams holds filter + pagination for ledger history.
type LedgerListParams struct {
	MerchantID uuid.UUID
	Currency   *domain.Currency
	Page       int
	PageSize   int
}

// WithdrawalRepository persists withdrawals.
type WithdrawalRepository interface {
	Create(ctx context.Context, tx pgx.Tx, w *domain.Withdrawal) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Withdrawal, error)
	// Update writes the status and lifecycle columns of w.
	Update(ctx context.Context, tx pgx.Tx, w *domain.Withdrawal) error
	List(ctx context.Context, params WithdrawalListParams) ([]domain.Withdrawal, int64, error)
	ListReadyForSubmission(ctx context.Context, limit int) ([]domain.Withdrawal, error)
	// MarkSubmitted claims an Approved, unsubmitted withdrawal. It returns false if another actor got there first.
	MarkSubmitted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// ClearSubmitted undoes MarkSubmitted when the payout was never broadcast.
	ClearSubmitted(ctx context.Context, id uuid.UUID) error
}

// WithdrawalListParams holds filter + pagination for listing withdrawals.
// A nil MerchantID lists across merchants (admin view).
type WithdrawalListParams struct {
	MerchantID *uuid.UUID
	Status     *domain.WithdrawalStatus
	Page       int
	PageSize   int
}

// WebhookLogRepository records merchant webhook delivery attempts.
type WebhookLogRepository interface {
	Create(ctx context.Context, log *domain.WebhookDeliveryLog) error
	Update(ctx context.Context, log *domain.WebhookDeliveryLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
