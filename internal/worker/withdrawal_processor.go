package worker

import (
	"context"
	"fmt"
	"time"

	"crypto-settlement/internal/core/domain"
	"crypto-settlement/internal/core/ports"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// PayoutWallet is the hot wallet withdrawals of one chain family are paid from.
type PayoutWallet struct {
	Address      string
	EncryptedKey string
}

// WithdrawalProcessorConfig holds the schedule and payout wallets.
type WithdrawalProcessorConfig struct {
	Schedule  string
	BatchSize int
	Timeout   time.Duration
	Wallets   map[domain.ChainFamily]PayoutWallet
}

// WithdrawalProcessor broadcasts Approved withdrawals on a cron schedule and
// completes them once the chain accepted the transfer.
type WithdrawalProcessor struct {
	repo        ports.WithdrawalRepository
	withdrawals ports.WithdrawalService
	chains      ports.ChainRegistry
	vault       ports.Vault
	cfg         WithdrawalProcessorConfig
	cron        *cron.Cron
	log         zerolog.Logger
	now         func() time.Time
}

// NewWithdrawalProcessor creates the worker.
func NewWithdrawalProcessor(
	repo ports.WithdrawalRepository,
	withdrawals ports.WithdrawalService,
	chains ports.ChainRegistry,
	vault ports.Vault,
	cfg WithdrawalProcessorConfig,
	log zerolog.Logger,
) *WithdrawalProcessor {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 50
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &WithdrawalProcessor{
		repo:        repo,
		withdrawals: withdrawals,
		chains:      chains,
		vault:       vault,
		cfg:         cfg,
		cron:        cron.New(),
		log:         log.With().Str("worker", "withdrawal_processor").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Start registers the schedule and starts the cron runner.
func (w *WithdrawalProcessor) Start() error {
	_, err := w.cron.AddFunc(w.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.cfg.Timeout)
		defer cancel()
		if _, err := w.RunOnce(ctx); err != nil {
			w.log.Error().Err(err).Msg("withdrawal run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule withdrawal processor: %w", err)
	}
	w.cron.Start()
	w.log.Info().Str("schedule", w.cfg.Schedule).Msg("withdrawal processor started")
	return nil
}

// Stop waits for a running batch to finish.
func (w *WithdrawalProcessor) Stop() {
	<-w.cron.Stop().Done()
	w.log.Info().Msg("withdrawal processor stopped")
}

// RunOnce submits one batch and returns how many withdrawals were completed.
func (w *WithdrawalProcessor) RunOnce(ctx context.Context) (int, error) {
	ready, err := w.repo.ListReadyForSubmission(ctx, w.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list ready withdrawals: %w", err)
	}

	completed := 0
	for i := range ready {
		if ctx.Err() != nil {
			break
		}
		if w.submit(ctx, &ready[i]) {
			completed++
		}
	}
	if len(ready) > 0 {
		w.log.Info().Int("ready", len(ready)).Int("completed", completed).Msg("withdrawal run finished")
	}
	return completed, nil
}

// submit claims the withdrawal, signs and broadcasts the payout and
// completes it. A payout that fails before signing is released for the next
// run. Once a broadcast has been attempted the claim is kept, so the
// withdrawal is never paid twice.
func (w *WithdrawalProcessor) submit(ctx context.Context, wd *domain.Withdrawal) bool {
	logger := w.log.With().
		Str("withdrawal_id", wd.ID.String()).
		Str("currency", string(wd.Currency)).
		Logger()

	wallet, ok := w.cfg.Wallets[wd.Currency.Family()]
	if !ok || wallet.Address == "" {
		logger.Error().Str("family", string(wd.Currency.Family())).Msg("no payout wallet configured")
		return false
	}
	client, err := w.chains.For(wd.Currency.Network())
	if err != nil {
		logger.Error().Err(err).Msg("no chain client for withdrawal")
		return false
	}

	claimed, err := w.repo.MarkSubmitted(ctx, wd.ID, w.now())
	if err != nil {
		logger.Error().Err(err).Msg("failed to claim withdrawal")
		return false
	}
	if !claimed {
		logger.Debug().Msg("withdrawal claimed elsewhere")
		return false
	}

	key, err := w.vault.Decrypt(wallet.EncryptedKey)
	if err != nil {
		logger.Error().Err(err).Msg("failed to unseal payout key")
		w.unclaim(ctx, wd, logger)
		return false
	}

	signed, err := client.PrepareTransfer(ctx, domain.TransferRequest{
		Currency:   wd.Currency,
		From:       wallet.Address,
		PrivateKey: key,
		To:         wd.DestinationAddress,
		Amount:     wd.NetAmount,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("payout not signed, withdrawal will be retried")
		w.unclaim(ctx, wd, logger)
		return false
	}
	txRef := signed.TxRef

	if err := client.Broadcast(ctx, signed); err != nil {
		logger.Error().Err(err).Str("tx_ref", txRef).Msg("payout broadcast outcome unknown, withdrawal held for review")
		return false
	}

	if _, err := w.withdrawals.Complete(ctx, wd.ID, txRef); err != nil {
		logger.Error().Err(err).Str("tx_ref", txRef).Msg("payout broadcast but completion failed")
		return false
	}
	logger.Info().Str("tx_ref", txRef).Str("net_amount", wd.NetAmount.String()).Msg("withdrawal paid out")
	return true
}

func (w *WithdrawalProcessor) unclaim(ctx context.Context, wd *domain.Withdrawal, logger zerolog.Logger) {
	if err := w.repo.ClearSubmitted(context.WithoutCancel(ctx), wd.ID); err != nil {
		logger.Error().Err(err).Msg("failed to release withdrawal claim")
	}
}
