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

// Reconciler checks every balance row against the ledger on a schedule.
type Reconciler struct {
	balances ports.BalanceRepository
	ledger   ports.LedgerService
	schedule string
	cron     *cron.Cron
	log      zerolog.Logger
}

func NewReconciler(balances ports.BalanceRepository, ledger ports.LedgerService, schedule string, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		balances: balances,
		ledger:   ledger,
		schedule: schedule,
		cron:     cron.New(),
		log:      log.With().Str("worker", "reconciler").Logger(),
	}
}

func (r *Reconciler) Start() error {
	_, err := r.cron.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if _, err := r.RunOnce(ctx); err != nil {
			r.log.Error().Err(err).Msg("reconciliation failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reconciler: %w", err)
	}
	r.cron.Start()
	r.log.Info().Str("schedule", r.schedule).Msg("reconciler started")
	return nil
}

func (r *Reconciler) Stop() {
	<-r.cron.Stop().Done()
	r.log.Info().Msg("reconciler stopped")
}

// RunOnce returns the (merchant, currency) pairs whose balance disagrees with the ledger.
func (r *Reconciler) RunOnce(ctx context.Context) ([]domain.Reconciliation, error) {
	rows, err := r.balances.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}

	var violations []domain.Reconciliation
	for _, b := range rows {
		rec, err := r.ledger.Reconcile(ctx, b.MerchantID, b.Currency)
		if err != nil {
			r.log.Error().Err(err).
				Str("merchant_id", b.MerchantID.String()).
				Str("currency", string(b.Currency)).
				Msg("reconcile balance failed")
			continue
		}
		if !rec.Consistent {
			r.log.Error().
				Str("merchant_id", rec.MerchantID.String()).
				Str("currency", string(rec.Currency)).
				Str("balance_total", rec.BalanceTotal.String()).
				Str("ledger_total", rec.LedgerTotal.String()).
				Str("drift", rec.Drift().String()).
				Msg("ledger conservation violated")
			violations = append(violations, *rec)
		}
	}

	r.log.Info().Int("balances", len(rows)).Int("violations", len(violations)).Msg("reconciliation finished")
	return violations, nil
}
