package ports

import (
	"context"
	"time"

	"crypto-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Vault seals secrets at rest with AES-256-GCM.
type Vault interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(blob string) (string, error)
}

// KeyGenerator mints fresh keypairs for a chain family.
type KeyGenerator interface {
	Generate(family domain.ChainFamily) (*domain.KeyPair, error)
}

// SignatureService handles HMAC-SHA256 signing and verification of webhook bodies.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
}

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(merchantID uuid.UUID, role domain.Role) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	MerchantID uuid.UUID
	Role       domain.Role
}

// IdempotencyCache is the Redis-layer idempotency check for payment creation.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// PollLease keeps two monitor instances from polling the same payment at once.
type PollLease interface {
	Acquire(ctx context.Context, paymentID uuid.UUID, ttl time.Duration) (bool, error)
	Release(ctx context.Context, paymentID uuid.UUID) error
}

// PriceOracle quotes USD prices.
type PriceOracle interface {
	USDPrice(ctx context.Context, currency domain.Currency) (decimal.Decimal, error)
}

// PaymentNotifier is told about every payment status change. It must not block.
type PaymentNotifier interface {
	PaymentChanged(ctx context.Context, payment *domain.Payment)
}

// --- Service Ports (Business Logic) ---

// DepositService issues and guards per-payment deposit addresses.
type DepositService interface {
	Issue(ctx context.Context, paymentID uuid.UUID, currency domain.Currency, destination string) (*domain.DepositAddress, error)
	Get(ctx context.Context, paymentID uuid.UUID) (*domain.DepositAddress, error)
	RevealPrivateKey(ctx context.Context, paymentID uuid.UUID) (string, error)
}

// LedgerService is the only writer of merchant balances.
type LedgerService interface {
	CreditAvailable(ctx context.Context, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal, reason, reference string) (*domain.MerchantBalance, error)
	CreditAvailableTx(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal, reason, reference string) (*domain.MerchantBalance, error)
	DebitAvailable(ctx context.Context, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal, reason, reference string) (*domain.MerchantBalance, error)
	Reserve(ctx context.Context, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal, reason, reference string) (*domain.MerchantBalance, error)
	ReserveTx(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal, reason, reference string) (*domain.MerchantBalance, error)
	ReleaseReserve(ctx context.Context, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal, mode domain.ReleaseMode, reason, reference string) (*domain.MerchantBalance, error)
	ReleaseReserveTx(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal, mode domain.ReleaseMode, reason, reference string) (*domain.MerchantBalance, error)
	GetBalance(ctx context.Context, merchantID uuid.UUID, currency domain.Currency) (*domain.MerchantBalance, error)
	Summary(ctx context.Context, merchantID uuid.UUID) (*domain.BalanceSummary, error)
	History(ctx context.Context, params LedgerListParams) ([]domain.LedgerEntry, int64, error)
	Reconcile(ctx context.Context, merchantID uuid.UUID, currency domain.Currency) (*domain.Reconciliation, error)
}

// PaymentService creates payments and serves their read views.
type PaymentService interface {
	Create(ctx context.Context, req CreatePaymentRequest) (*domain.Payment, error)
	Get(ctx context.Context, merchantID, paymentID uuid.UUID) (*domain.Payment, error)
	List(ctx context.Context, params PaymentListParams) ([]domain.Payment, int64, error)
	PaymentPage(ctx context.Context, paymentID uuid.UUID) (*PaymentPage, error)
}

// CreatePaymentRequest holds validated input for payment creation.
// Exactly one of Amount and AmountUSD is set.
type CreatePaymentRequest struct {
	MerchantID        uuid.UUID
	Currency          domain.Currency
	Amount            *decimal.Decimal
	AmountUSD         *decimal.Decimal
	ExpirationMinutes *int
	Description       *string
	IdempotencyKey    string
}

// PaymentPage is what the customer-facing checkout needs, nothing more.
type PaymentPage struct {
	PaymentID             uuid.UUID            `json:"payment_id"`
	Currency              domain.Currency      `json:"currency"`
	Network               domain.Network       `json:"network"`
	Symbol                string               `json:"symbol"`
	DepositAddress        string               `json:"deposit_address"`
	Amount                decimal.Decimal      `json:"amount"`
	Status                domain.PaymentStatus `json:"status"`
	Confirmations         int                  `json:"confirmations"`
	RequiredConfirmations int                  `json:"required_confirmations"`
	ExpiresAt             time.Time            `json:"expires_at"`
	Description           *string              `json:"description,omitempty"`
}

// MonitorService advances one payment through the state machine per call.
type MonitorService interface {
	Poll(ctx context.Context, payment *domain.Payment) error
}

// WithdrawalService manages merchant payouts.
type WithdrawalService interface {
	Request(ctx context.Context, req WithdrawalRequest) (*domain.Withdrawal, error)
	Cancel(ctx context.Context, merchantID, withdrawalID uuid.UUID) (*domain.Withdrawal, error)
	Approve(ctx context.Context, adminID, withdrawalID uuid.UUID) (*domain.Withdrawal, error)
	Reject(ctx context.Context, adminID, withdrawalID uuid.UUID, reason string) (*domain.Withdrawal, error)
	Complete(ctx context.Context, withdrawalID uuid.UUID, txRef string) (*domain.Withdrawal, error)
	Get(ctx context.Context, merchantID, withdrawalID uuid.UUID) (*domain.Withdrawal, error)
	List(ctx context.Context, params WithdrawalListParams) ([]domain.Withdrawal, int64, error)
}

// WithdrawalRequest holds validated input for a payout request.
type WithdrawalRequest struct {
	MerchantID         uuid.UUID
	Currency           domain.Currency
	Amount             decimal.Decimal
	DestinationAddress string
}

// AuthService defines authentication business logic.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error)
	Login(ctx context.Context, username, password string) (string, time.Time, error) // token, expiry, error
}

// RegisterRequest holds input for merchant registration.
type RegisterRequest struct {
	Username     string
	Password     string
	MerchantName string
	WebhookURL   *string
}

// RegisterResponse carries the webhook signing secret, shown only once.
type RegisterResponse struct {
	Merchant      *domain.Merchant
	WebhookSecret string
}

// MerchantService manages the merchant's own settings.
type MerchantService interface {
	GetProfile(ctx context.Context, merchantID uuid.UUID) (*domain.Merchant, error)
	UpdateSettings(ctx context.Context, merchantID uuid.UUID, req MerchantSettings) (*domain.Merchant, error)
	// RotateWebhookSecret replaces the signing secret and returns the new plaintext once.
	RotateWebhookSecret(ctx context.Context, merchantID uuid.UUID) (string, error)
}

// MerchantSettings holds optional updates; nil fields are left unchanged.
// An empty destination removes that currency's payout address.
type MerchantSettings struct {
	WebhookURL      *string
	FeePercentage   *decimal.Decimal
	CustomerPaysFee *bool
	Destinations    map[domain.Currency]string
}
