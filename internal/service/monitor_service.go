package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto-settlement/internal/core/domain"
	"crypto-settlement/internal/core/ports"
	"crypto-settlement/pkg/apperror"
	"crypto-settlement/pkg/metrics"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// MonitorServiceImpl implements ports.MonitorService.
// Chain errors leave the payment untouched and are returned to the caller;
// the next poll retries from the stored status.
type MonitorServiceImpl struct {
	payments   ports.PaymentRepository
	deposits   ports.DepositService
	chains     ports.ChainRegistry
	ledger     ports.LedgerService
	transactor ports.DBTransactor
	fees       *FeeCalculator
	notifier   ports.PaymentNotifier
	metrics    *metrics.Metrics
	log        zerolog.Logger
	now        func() time.Time
}

// NewMonitorService creates a new MonitorServiceImpl.
func NewMonitorService(
	payments ports.PaymentRepository,
	deposits ports.DepositService,
	chains ports.ChainRegistry,
	ledger ports.LedgerService,
	transactor ports.DBTransactor,
	fees *FeeCalculator,
	notifier ports.PaymentNotifier,
	m *metrics.Metrics,
	log zerolog.Logger,
) *MonitorServiceImpl {
	return &MonitorServiceImpl{
		payments:   payments,
		deposits:   deposits,
		chains:     chains,
		ledger:     ledger,
		transactor: transactor,
		fees:       fees,
		notifier:   notifier,
		metrics:    m,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Poll advances p by at most one pass through the state machine.
// p is updated in place as transitions succeed.
func (s *MonitorServiceImpl) Poll(ctx context.Context, p *domain.Payment) error {
	switch p.Status {
	case domain.PaymentStatusPending:
		return s.pollPending(ctx, p)
	case domain.PaymentStatusConfirming:
		return s.pollConfirming(ctx, p)
	case domain.PaymentStatusConfirmed:
		return s.forward(ctx, p)
	default:
		return nil
	}
}

func (s *MonitorServiceImpl) pollPending(ctx context.Context, p *domain.Payment) error {
	client, err := s.chains.For(p.Currency.Network())
	if err != nil {
		if now := s.now(); p.IsExpiredAt(now) {
			s.log.Warn().Err(err).Str("payment_id", p.ID.String()).Msg("no client for payment network, expiring")
			return s.expire(ctx, p, now)
		}
		return err
	}

	in, rpcErr := client.FindInbound(ctx, p.Currency, p.DepositAddress, p.CreatedAt)
	now := s.now()

	if rpcErr != nil || in == nil {
		if p.IsExpiredAt(now) {
			if err := s.expire(ctx, p, now); err != nil {
				return err
			}
		}
		return rpcErr
	}

	confirmations := in.Confirmations
	txRef := in.TxRef
	amount := in.Amount
	ok, err := s.transition(ctx, nil, p, domain.PaymentTransition{
		From:           domain.PaymentStatusPending,
		To:             domain.PaymentStatusConfirming,
		Confirmations:  &confirmations,
		InboundTxRef:   &txRef,
		ReceivedAmount: &amount,
		At:             now,
	})
	if err != nil || !ok {
		return err
	}

	if in.Failed {
		_, err := s.transition(ctx, nil, p, domain.PaymentTransition{
			From: domain.PaymentStatusConfirming,
			To:   domain.PaymentStatusFailed,
			At:   now,
		})
		return err
	}
	if p.HasEnoughConfirmations() {
		return s.confirm(ctx, p)
	}
	return nil
}

func (s *MonitorServiceImpl) pollConfirming(ctx context.Context, p *domain.Payment) error {
	if p.InboundTxRef == nil {
		return apperror.ErrInvalidPaymentState("confirming payment has no inbound transaction")
	}
	client, err := s.chains.For(p.Currency.Network())
	if err != nil {
		return err
	}

	st, err := client.TxStatus(ctx, p.Currency, *p.InboundTxRef)
	if err != nil {
		return err
	}
	if st.Failed {
		_, err := s.transition(ctx, nil, p, domain.PaymentTransition{
			From: domain.PaymentStatusConfirming,
			To:   domain.PaymentStatusFailed,
			At:   s.now(),
		})
		return err
	}
	if !st.Found {
		s.log.Debug().Str("payment_id", p.ID.String()).Str("tx_ref", st.TxRef).Msg("inbound transaction not visible on this node yet")
		return nil
	}

	stored, err := s.payments.RecordConfirmations(ctx, p.ID, st.Confirmations)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("record confirmations: %w", err))
	}
	if stored > p.Confirmations {
		p.Confirmations = stored
	}

	if p.HasEnoughConfirmations() {
		return s.confirm(ctx, p)
	}
	return nil
}

// confirm fixes the fee split on what actually arrived, then forwards.
func (s *MonitorServiceImpl) confirm(ctx context.Context, p *domain.Payment) error {
	fee, err := s.fees.Settle(p.Currency, p.AgreedFee(), p.ReceivedAmount)
	if err != nil {
		return err
	}
	if fee.MerchantAmount.LessThan(p.MerchantAmount) {
		s.log.Warn().
			Str("payment_id", p.ID.String()).
			Str("expected", p.CustomerAmount.String()).
			Str("received", p.ReceivedAmount.String()).
			Msg("underpayment, settling on received amount")
	}

	confirmations := p.Confirmations
	ok, err := s.transition(ctx, nil, p, domain.PaymentTransition{
		From:          domain.PaymentStatusConfirming,
		To:            domain.PaymentStatusConfirmed,
		Confirmations: &confirmations,
		Fee:           fee,
		At:            s.now(),
	})
	if err != nil || !ok {
		return err
	}
	return s.forward(ctx, p)
}

func (s *MonitorServiceImpl) expire(ctx context.Context, p *domain.Payment, now time.Time) error {
	_, err := s.transition(ctx, nil, p, domain.PaymentTransition{
		From: domain.PaymentStatusPending,
		To:   domain.PaymentStatusExpired,
		At:   now,
	})
	return err
}

// forward moves the merchant's share from the deposit address to the
// merchant destination. The signed transaction is claimed on the payment
// before it is broadcast, so a poll that finds a claim resumes that transfer
// instead of signing another.
func (s *MonitorServiceImpl) forward(ctx context.Context, p *domain.Payment) error {
	logger := s.log.With().Str("payment_id", p.ID.String()).Str("currency", string(p.Currency)).Logger()

	client, err := s.chains.For(p.Currency.Network())
	if err != nil {
		return err
	}
	if p.HasForwardClaim() {
		return s.resumeForward(ctx, client, p, logger)
	}

	key, err := s.deposits.RevealPrivateKey(ctx, p.ID)
	if err != nil {
		if errors.Is(err, apperror.ErrDecryptionKind) {
			logger.Error().Err(err).Msg("cannot decrypt deposit key, forwarding halted")
		}
		return err
	}

	signed, err := client.PrepareTransfer(ctx, domain.TransferRequest{
		Currency:   p.Currency,
		From:       p.DepositAddress,
		PrivateKey: key,
		To:         p.MerchantDestination,
		Amount:     p.MerchantAmount,
	})
	if err != nil {
		if errors.Is(err, domain.ErrUnderfunded) {
			logger.Warn().Err(err).Msg("deposit address cannot pay for the forward, payment stays CONFIRMED")
		} else {
			logger.Warn().Err(err).Msg("forward transfer not prepared")
		}
		return err
	}

	at := s.now()
	claimed, err := s.payments.ClaimForward(ctx, p.ID, *signed, at)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("claim forward: %w", err))
	}
	if !claimed {
		logger.Debug().Msg("forward already claimed elsewhere")
		return nil
	}
	p.ForwardTxRef = &signed.TxRef
	p.ForwardRawTx = &signed.Raw
	p.ForwardClaimedAt = &at

	if err := client.Broadcast(ctx, signed); err != nil {
		logger.Warn().Err(err).Str("tx_ref", signed.TxRef).Msg("forward broadcast failed, claim kept")
		return err
	}
	return s.settleForward(ctx, p, signed.TxRef, logger)
}

// resumeForward finishes a claimed forward. The chain is asked about the
// claimed transaction before it is sent again.
func (s *MonitorServiceImpl) resumeForward(ctx context.Context, client ports.ChainClient, p *domain.Payment, logger zerolog.Logger) error {
	ref := *p.ForwardTxRef
	st, err := client.TxStatus(ctx, p.Currency, ref)
	if err != nil {
		return err
	}
	switch {
	case st.Found && st.Failed:
		logger.Warn().Str("tx_ref", ref).Msg("forward transaction failed on chain, releasing claim")
		return s.releaseForward(ctx, p, ref)
	case st.Found:
		return s.settleForward(ctx, p, ref, logger)
	}

	if p.ForwardRawTx == nil {
		return apperror.ErrInvalidPaymentState("forward claim has no signed transaction")
	}
	err = client.Broadcast(ctx, &domain.SignedTransfer{Currency: p.Currency, TxRef: ref, Raw: *p.ForwardRawTx})
	if errors.Is(err, domain.ErrTransferExpired) {
		// it may have been included since the lookup
		st, statusErr := client.TxStatus(ctx, p.Currency, ref)
		if statusErr != nil {
			return statusErr
		}
		if st.Found && !st.Failed {
			return s.settleForward(ctx, p, ref, logger)
		}
		logger.Warn().Str("tx_ref", ref).Msg("forward transaction expired unincluded, releasing claim")
		return s.releaseForward(ctx, p, ref)
	}
	if err != nil {
		logger.Warn().Err(err).Str("tx_ref", ref).Msg("forward rebroadcast failed")
		return err
	}
	logger.Info().Str("tx_ref", ref).Msg("forward rebroadcast")
	return nil
}

func (s *MonitorServiceImpl) releaseForward(ctx context.Context, p *domain.Payment, ref string) error {
	ok, err := s.payments.ReleaseForward(ctx, p.ID, ref)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("release forward: %w", err))
	}
	if ok {
		p.ForwardTxRef = nil
		p.ForwardRawTx = nil
		p.ForwardClaimedAt = nil
	}
	return nil
}

// settleForward records the forward and credits the ledger in one
// transaction.
func (s *MonitorServiceImpl) settleForward(ctx context.Context, p *domain.Payment, txRef string, logger zerolog.Logger) error {
	t := domain.PaymentTransition{
		From:         domain.PaymentStatusConfirmed,
		To:           domain.PaymentStatusForwarded,
		ForwardTxRef: &txRef,
		At:           s.now(),
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	ok, err := s.payments.Transition(ctx, dbTx, p.ID, t)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("mark forwarded: %w", err))
	}
	if !ok {
		logger.Warn().Str("tx_ref", txRef).Msg("payment left CONFIRMED concurrently, forward not recorded")
		return nil
	}

	if _, err := s.ledger.CreditAvailableTx(ctx, dbTx, p.MerchantID, p.Currency, p.MerchantAmount, "payment_settled", p.ID.String()); err != nil {
		return err
	}

	if err := dbTx.Commit(ctx); err != nil {
		logger.Error().Err(err).Str("tx_ref", txRef).Msg("forward broadcast but settlement not committed")
		return apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}

	s.applied(ctx, p, t)
	logger.Info().Str("tx_ref", txRef).Str("amount", p.MerchantAmount.String()).Msg("payment forwarded and settled")
	return nil
}

// transition runs a conditional status update outside any transaction when
// tx is nil. It reports false when another actor already moved the payment.
func (s *MonitorServiceImpl) transition(ctx context.Context, tx pgx.Tx, p *domain.Payment, t domain.PaymentTransition) (bool, error) {
	if p.Status != t.From || !t.From.CanTransitionTo(t.To) {
		return false, apperror.ErrInvalidPaymentState(fmt.Sprintf("cannot move payment from %s to %s", p.Status, t.To))
	}

	ok, err := s.payments.Transition(ctx, tx, p.ID, t)
	if err != nil {
		return false, apperror.ErrDatabaseError(fmt.Errorf("transition %s to %s: %w", t.From, t.To, err))
	}
	if !ok {
		s.log.Debug().
			Str("payment_id", p.ID.String()).
			Str("from", string(t.From)).
			Str("to", string(t.To)).
			Msg("payment already moved on, transition skipped")
		return false, nil
	}

	s.applied(ctx, p, t)
	return true, nil
}

func (s *MonitorServiceImpl) applied(ctx context.Context, p *domain.Payment, t domain.PaymentTransition) {
	p.Apply(t)
	s.metrics.PaymentTransition(string(t.From), string(t.To))
	s.log.Info().
		Str("payment_id", p.ID.String()).
		Str("from", string(t.From)).
		Str("to", string(t.To)).
		Int("confirmations", p.Confirmations).
		Msg("payment status changed")
	s.notifier.PaymentChanged(ctx, p)
}
