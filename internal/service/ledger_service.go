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

// LedgerServiceImpl implements ports.LedgerService. Every mutation is one
// conditional UPDATE plus one ledger entry inside the same DB transaction;
// concurrency control is left to the database.
type LedgerServiceImpl struct {
	balanceRepo ports.BalanceRepository
	ledgerRepo  ports.LedgerRepository
	transactor  ports.DBTransactor
	prices      ports.PriceOracle
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	balanceRepo ports.BalanceRepository,
	ledgerRepo ports.LedgerRepository,
	transactor ports.DBTransactor,
	prices ports.PriceOracle,
	m *metrics.Metrics,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		balanceRepo: balanceRepo,
		ledgerRepo:  ledgerRepo,
		transactor:  transactor,
		prices:      prices,
		metrics:     m,
		log:         log,
	}
}

type ledgerOp struct {
	kind       domain.EntryKind
	mode       domain.ReleaseMode
	merchantID uuid.UUID
	currency   domain.Currency
	amount     decimal.Decimal
	reason     string
	reference  string
}

// CreditAvailable adds funds to available.
func (s *LedgerServiceImpl) CreditAvailable(ctx context.Context, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal, reason, reference string) (*domain.MerchantBalance, error) {
	return s.inTx(ctx, func(tx pgx.Tx) (*domain.MerchantBalance, error) {
		return s.CreditAvailableTx(ctx, tx, merchantID, currency, amount, reason, reference)
	})
}

// CreditAvailableTx is CreditAvailable inside the caller's transaction.
func (s *LedgerServiceImpl) CreditAvailableTx(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal, reason, reference string) (*domain.MerchantBalance, error) {
	return s.apply(ctx, tx, ledgerOp{kind: domain.EntryCredit, merchantID: merchantID, currency: currency, amount: amount, reason: reason, reference: reference})
}

// DebitAvailable removes funds from available; fails with InsufficientBalance.
func (s *LedgerServiceImpl) DebitAvailable(ctx context.Context, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal, reason, reference string) (*domain.MerchantBalance, error) {
	return s.inTx(ctx, func(tx pgx.Tx) (*domain.MerchantBalance, error) {
		return s.apply(ctx, tx, ledgerOp{kind: domain.EntryDebit, merchantID: merchantID, currency: currency, amount: amount, reason: reason, reference: reference})
	})
}

// Reserve moves funds from available to reserved.
func (s *LedgerServiceImpl) Reserve(ctx context.Context, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal, reason, reference string) (*domain.MerchantBalance, error) {
	return s.inTx(ctx, func(tx pgx.Tx) (*domain.MerchantBalance, error) {
		return s.ReserveTx(ctx, tx, merchantID, currency, amount, reason, reference)
	})
}

// ReserveTx is Reserve inside the caller's transaction.
func (s *LedgerServiceImpl) ReserveTx(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal, reason, reference string) (*domain.MerchantBalance, error) {
	return s.apply(ctx, tx, ledgerOp{kind: domain.EntryReserve, merchantID: merchantID, currency: currency, amount: amount, reason: reason, reference: reference})
}

// ReleaseReserve takes funds out of reserved. ReleaseComplete removes them
// from the system, ReleaseCancel returns them to available.
func (s *LedgerServiceImpl) ReleaseReserve(ctx context.Context, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal, mode domain.ReleaseMode, reason, reference string) (*domain.MerchantBalance, error) {
	return s.inTx(ctx, func(tx pgx.Tx) (*domain.MerchantBalance, error) {
		return s.ReleaseReserveTx(ctx, tx, merchantID, currency, amount, mode, reason, reference)
	})
}

// ReleaseReserveTx is ReleaseReserve inside the caller's transaction.
func (s *LedgerServiceImpl) ReleaseReserveTx(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, currency domain.Currency, amount decimal.Decimal, mode domain.ReleaseMode, reason, reference string) (*domain.MerchantBalance, error) {
	if mode != domain.ReleaseComplete && mode != domain.ReleaseCancel {
		return nil, apperror.Validation(fmt.Sprintf("unknown release mode %q", mode))
	}
	return s.apply(ctx, tx, ledgerOp{kind: domain.EntryRelease, mode: mode, merchantID: merchantID, currency: currency, amount: amount, reason: reason, reference: reference})
}

func (s *LedgerServiceImpl) apply(ctx context.Context, tx pgx.Tx, op ledgerOp) (bal *domain.MerchantBalance, err error) {
	defer func() { s.metrics.LedgerOp(string(op.kind), err) }()

	if !op.amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	if !op.currency.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("unsupported currency %q", op.currency))
	}

	if err := s.balanceRepo.Ensure(ctx, tx, op.merchantID, op.currency); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("ensure balance row: %w", err))
	}

	switch op.kind {
	case domain.EntryCredit:
		bal, err = s.balanceRepo.Credit(ctx, tx, op.merchantID, op.currency, op.amount)
	case domain.EntryDebit:
		bal, err = s.balanceRepo.Debit(ctx, tx, op.merchantID, op.currency, op.amount)
	case domain.EntryReserve:
		bal, err = s.balanceRepo.Reserve(ctx, tx, op.merchantID, op.currency, op.amount)
	case domain.EntryRelease:
		bal, err = s.balanceRepo.Release(ctx, tx, op.merchantID, op.currency, op.amount, op.mode == domain.ReleaseCancel)
	}
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("%s balance: %w", op.kind, err))
	}
	if bal == nil {
		return nil, apperror.ErrInsufficientBalance()
	}

	entry := &domain.LedgerEntry{
		ID:         uuid.New(),
		MerchantID: op.merchantID,
		Currency:   op.currency,
		Kind:       op.kind,
		Amount:     op.amount,
		NetChange:  domain.NetChangeOf(op.kind, op.mode, op.amount),
		Reason:     op.reason,
		Reference:  op.reference,
		CreatedAt:  time.Now().UTC(),
	}
	if op.kind == domain.EntryRelease {
		mode := op.mode
		entry.ReleaseMode = &mode
	}
	if err := s.ledgerRepo.Append(ctx, tx, entry); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("append ledger entry: %w", err))
	}

	s.log.Info().
		Str("merchant_id", op.merchantID.String()).
		Str("currency", string(op.currency)).
		Str("kind", string(op.kind)).
		Str("amount", op.amount.String()).
		Str("reference", op.reference).
		Str("available", bal.Available.String()).
		Str("reserved", bal.Reserved.String()).
		Msg("ledger entry recorded")

	return bal, nil
}

func (s *LedgerServiceImpl) inTx(ctx context.Context, fn func(tx pgx.Tx) (*domain.MerchantBalance, error)) (*domain.MerchantBalance, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	bal, err := fn(dbTx)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}
	return bal, nil
}

// GetBalance returns the balance row, zero-valued when none exists yet.
func (s *LedgerServiceImpl) GetBalance(ctx context.Context, merchantID uuid.UUID, currency domain.Currency) (*domain.MerchantBalance, error) {
	bal, err := s.balanceRepo.Get(ctx, merchantID, currency)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if bal == nil {
		return &domain.MerchantBalance{MerchantID: merchantID, Currency: currency}, nil
	}
	return bal, nil
}

// Summary values every balance of the merchant in USD.
// Currencies without a price contribute zero and are logged.
func (s *LedgerServiceImpl) Summary(ctx context.Context, merchantID uuid.UUID) (*domain.BalanceSummary, error) {
	balances, err := s.balanceRepo.ListByMerchant(ctx, merchantID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}

	summary := &domain.BalanceSummary{
		MerchantID: merchantID,
		Balances:   make([]domain.BalanceSnapshot, 0, len(balances)),
		TotalUSD:   decimal.Zero,
	}
	for _, b := range balances {
		snap := domain.BalanceSnapshot{
			Currency:     b.Currency,
			Network:      b.Currency.Network(),
			Available:    b.Available,
			Reserved:     b.Reserved,
			AvailableUSD: decimal.Zero,
		}
		price, err := s.prices.USDPrice(ctx, b.Currency)
		if err != nil {
			s.log.Warn().Err(err).Str("currency", string(b.Currency)).Msg("no USD price for balance summary")
		} else {
			snap.AvailableUSD = b.Available.Mul(price).Round(2)
			summary.TotalUSD = summary.TotalUSD.Add(snap.AvailableUSD)
		}
		summary.Balances = append(summary.Balances, snap)
	}
	return summary, nil
}

// History returns ledger entries, newest first.
func (s *LedgerServiceImpl) History(ctx context.Context, params ports.LedgerListParams) ([]domain.LedgerEntry, int64, error) {
	params.Page, params.PageSize = normalizePage(params.Page, params.PageSize)
	entries, total, err := s.ledgerRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.ErrDatabaseError(err)
	}
	return entries, total, nil
}

// Reconcile checks that available+reserved equals the signed sum of the pair's ledger entries.
func (s *LedgerServiceImpl) Reconcile(ctx context.Context, merchantID uuid.UUID, currency domain.Currency) (*domain.Reconciliation, error) {
	bal, err := s.GetBalance(ctx, merchantID, currency)
	if err != nil {
		return nil, err
	}
	sum, err := s.ledgerRepo.SumNetChange(ctx, merchantID, currency)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}

	r := &domain.Reconciliation{
		MerchantID:   merchantID,
		Currency:     currency,
		BalanceTotal: bal.Total(),
		LedgerTotal:  sum,
	}
	r.Consistent = r.BalanceTotal.Equal(r.LedgerTotal)
	return r, nil
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}
