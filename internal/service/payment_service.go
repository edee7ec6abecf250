package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"crypto-settlement/internal/core/domain"
	"crypto-settlement/internal/core/ports"
	"crypto-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	idempotencyTTL       = 24 * time.Hour
	minExpirationMinutes = 5
	maxExpirationMinutes = 1440
)

// PaymentOptions holds the configurable parts of payment creation.
type PaymentOptions struct {
	DefaultExpiry time.Duration
	Confirmations domain.ConfirmationPolicy
}

// PaymentServiceImpl implements ports.PaymentService.
type PaymentServiceImpl struct {
	paymentRepo  ports.PaymentRepository
	merchantRepo ports.MerchantRepository
	deposits     ports.DepositService
	chains       ports.ChainRegistry
	idempCache   ports.IdempotencyCache
	prices       ports.PriceOracle
	fees         *FeeCalculator
	opts         PaymentOptions
	log          zerolog.Logger
	now          func() time.Time
}

// NewPaymentService creates a new PaymentServiceImpl.
func NewPaymentService(
	paymentRepo ports.PaymentRepository,
	merchantRepo ports.MerchantRepository,
	deposits ports.DepositService,
	chains ports.ChainRegistry,
	idempCache ports.IdempotencyCache,
	prices ports.PriceOracle,
	fees *FeeCalculator,
	opts PaymentOptions,
	log zerolog.Logger,
) *PaymentServiceImpl {
	if opts.DefaultExpiry <= 0 {
		opts.DefaultExpiry = 15 * time.Minute
	}
	return &PaymentServiceImpl{
		paymentRepo:  paymentRepo,
		merchantRepo: merchantRepo,
		deposits:     deposits,
		chains:       chains,
		idempCache:   idempCache,
		prices:       prices,
		fees:         fees,
		opts:         opts,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Create validates the request, splits the fee, issues the deposit address
// and stores the Pending payment. A repeated Idempotency-Key returns the
// payment created the first time.
func (s *PaymentServiceImpl) Create(ctx context.Context, req ports.CreatePaymentRequest) (*domain.Payment, error) {
	if !req.Currency.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("unsupported currency %q", req.Currency))
	}
	// A payment on a network without a client could never be detected.
	if _, err := s.chains.For(req.Currency.Network()); err != nil {
		return nil, apperror.Validation(fmt.Sprintf("network %s is not enabled", req.Currency.Network()))
	}
	if (req.Amount == nil) == (req.AmountUSD == nil) {
		return nil, apperror.Validation("exactly one of amount and amount_usd is required")
	}

	var idempKey string
	if req.IdempotencyKey != "" {
		idempKey = domain.BuildPaymentIdempotencyKey(req.MerchantID, req.IdempotencyKey)

		// Layer 1: Redis
		cached, err := s.idempCache.Get(ctx, idempKey)
		if err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("redis idempotency check failed, falling through to DB")
		}
		if cached != nil {
			return s.unmarshalCachedPayment(cached)
		}

		// Layer 2: DB
		existing, err := s.paymentRepo.GetByIdempotencyKey(ctx, req.MerchantID, req.IdempotencyKey)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
		}
		if existing != nil {
			return existing, nil
		}
	}

	merchant, err := s.merchantRepo.GetByID(ctx, req.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get merchant: %w", err))
	}
	if merchant == nil {
		return nil, apperror.ErrMerchantNotFound()
	}
	if !merchant.IsActive() {
		return nil, apperror.ErrMerchantSuspended()
	}
	destination, ok := merchant.DestinationFor(req.Currency)
	if !ok {
		return nil, apperror.Validation(fmt.Sprintf("no payout destination configured for %s", req.Currency))
	}

	amount, err := s.resolveAmount(ctx, req)
	if err != nil {
		return nil, err
	}
	expiry, err := s.resolveExpiry(req.ExpirationMinutes)
	if err != nil {
		return nil, err
	}

	fee, err := s.fees.Calculate(req.Currency, amount, merchant.FeePercentage, merchant.CustomerPaysFee)
	if err != nil {
		return nil, err
	}

	paymentID := uuid.New()
	deposit, err := s.deposits.Issue(ctx, paymentID, req.Currency, destination)
	if err != nil {
		return nil, err
	}

	now := s.now()
	payment := &domain.Payment{
		ID:                    paymentID,
		MerchantID:            merchant.ID,
		Currency:              req.Currency,
		RequestedAmount:       fee.RequestedAmount,
		CustomerAmount:        fee.CustomerAmount,
		ProcessingFee:         fee.ProcessingFee,
		MerchantAmount:        fee.MerchantAmount,
		FeePercentage:         fee.FeePercentage,
		CustomerPaysFee:       fee.CustomerPaysFee,
		DepositAddress:        deposit.Address,
		MerchantDestination:   deposit.MerchantDestination,
		Status:                domain.PaymentStatusPending,
		RequiredConfirmations: s.opts.Confirmations.For(req.Currency),
		Description:           req.Description,
		WebhookURL:            merchant.WebhookURL,
		CreatedAt:             now,
		ExpiresAt:             now.Add(expiry),
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		payment.IdempotencyKey = &key
	}

	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		if req.IdempotencyKey != "" {
			// a concurrent request with the same key may have won the insert
			if winner, getErr := s.paymentRepo.GetByIdempotencyKey(ctx, req.MerchantID, req.IdempotencyKey); getErr == nil && winner != nil {
				return winner, nil
			}
		}
		return nil, apperror.InternalError(fmt.Errorf("create payment: %w", err))
	}

	if idempKey != "" {
		// Post-process: cache in Redis (best-effort)
		respJSON, err := json.Marshal(payment)
		if err == nil {
			err = s.idempCache.Set(ctx, idempKey, respJSON, idempotencyTTL)
		}
		if err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache idempotency in redis")
		}
	}

	s.log.Info().
		Str("payment_id", payment.ID.String()).
		Str("merchant_id", payment.MerchantID.String()).
		Str("currency", string(payment.Currency)).
		Str("customer_amount", payment.CustomerAmount.String()).
		Str("deposit_address", payment.DepositAddress).
		Time("expires_at", payment.ExpiresAt).
		Msg("payment created")

	return payment, nil
}

func (s *PaymentServiceImpl) resolveAmount(ctx context.Context, req ports.CreatePaymentRequest) (amount decimal.Decimal, err error) {
	if req.Amount != nil {
		amount = *req.Amount
	} else {
		if !req.AmountUSD.IsPositive() {
			return amount, apperror.ErrInvalidAmount()
		}
		amount, err = FromUSD(ctx, s.prices, req.Currency, *req.AmountUSD)
		if err != nil {
			return amount, err
		}
	}
	if !amount.IsPositive() {
		return amount, apperror.ErrInvalidAmount()
	}
	return amount, nil
}

func (s *PaymentServiceImpl) resolveExpiry(minutes *int) (time.Duration, error) {
	if minutes == nil {
		return s.opts.DefaultExpiry, nil
	}
	if *minutes < minExpirationMinutes || *minutes > maxExpirationMinutes {
		return 0, apperror.Validation(fmt.Sprintf("expiration_minutes must be between %d and %d", minExpirationMinutes, maxExpirationMinutes))
	}
	return time.Duration(*minutes) * time.Minute, nil
}

// Get returns a payment owned by merchantID.
func (s *PaymentServiceImpl) Get(ctx context.Context, merchantID, paymentID uuid.UUID) (*domain.Payment, error) {
	p, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get payment: %w", err))
	}
	if p == nil || p.MerchantID != merchantID {
		return nil, apperror.ErrPaymentNotFound()
	}
	return p, nil
}

// List returns a page of the merchant's payments, newest first.
func (s *PaymentServiceImpl) List(ctx context.Context, params ports.PaymentListParams) ([]domain.Payment, int64, error) {
	params.Page, params.PageSize = normalizePage(params.Page, params.PageSize)
	payments, total, err := s.paymentRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list payments: %w", err))
	}
	return payments, total, nil
}

// PaymentPage returns the public checkout view of a payment.
func (s *PaymentServiceImpl) PaymentPage(ctx context.Context, paymentID uuid.UUID) (*ports.PaymentPage, error) {
	p, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get payment: %w", err))
	}
	if p == nil {
		return nil, apperror.ErrPaymentNotFound()
	}
	return &ports.PaymentPage{
		PaymentID:             p.ID,
		Currency:              p.Currency,
		Network:               p.Currency.Network(),
		Symbol:                p.Currency.Symbol(),
		DepositAddress:        p.DepositAddress,
		Amount:                p.CustomerAmount,
		Status:                p.Status,
		Confirmations:         p.Confirmations,
		RequiredConfirmations: p.RequiredConfirmations,
		ExpiresAt:             p.ExpiresAt,
		Description:           p.Description,
	}, nil
}

func (s *PaymentServiceImpl) unmarshalCachedPayment(data []byte) (*domain.Payment, error) {
	p := &domain.Payment{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached payment: %w", err))
	}
	return p, nil
}
