package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"crypto-settlement/internal/core/domain"
	"crypto-settlement/internal/core/ports"
	"crypto-settlement/pkg/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// PaymentMonitorConfig holds the polling cadence and fan-out.
type PaymentMonitorConfig struct {
	Interval  time.Duration
	Workers   int
	BatchSize int
	LeaseTTL  time.Duration
}

// PaymentMonitor periodically polls every active payment through the MonitorService.
type PaymentMonitor struct {
	payments ports.PaymentRepository
	monitor  ports.MonitorService
	lease    ports.PollLease
	cfg      PaymentMonitorConfig
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// NewPaymentMonitor creates the worker. A nil lease polls without coordination.
func NewPaymentMonitor(
	payments ports.PaymentRepository,
	monitor ports.MonitorService,
	lease ports.PollLease,
	cfg PaymentMonitorConfig,
	m *metrics.Metrics,
	log zerolog.Logger,
) *PaymentMonitor {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 500
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 4 * cfg.Interval
	}
	return &PaymentMonitor{
		payments: payments,
		monitor:  monitor,
		lease:    lease,
		cfg:      cfg,
		metrics:  m,
		log:      log.With().Str("worker", "payment_monitor").Logger(),
	}
}

// Start runs a sweep immediately and then on every tick until ctx is done.
func (w *PaymentMonitor) Start(ctx context.Context) {
	w.log.Info().
		Dur("interval", w.cfg.Interval).
		Int("workers", w.cfg.Workers).
		Msg("payment monitor started")

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("payment monitor stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *PaymentMonitor) sweep(ctx context.Context) {
	if _, err := w.RunOnce(ctx); err != nil {
		w.log.Error().Err(err).Msg("payment sweep failed")
	}
}

// RunOnce polls one batch of active payments and returns how many were polled.
// A failing payment is logged and does not stop the others.
func (w *PaymentMonitor) RunOnce(ctx context.Context) (int, error) {
	defer w.metrics.ObservePoll()()

	active, err := w.payments.ListActive(ctx, w.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list active payments: %w", err)
	}
	if len(active) == 0 {
		return 0, nil
	}

	var polled atomic.Int64
	var g errgroup.Group
	g.SetLimit(w.cfg.Workers)
	for i := range active {
		p := &active[i]
		g.Go(func() error {
			if w.pollOne(ctx, p) {
				polled.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	w.log.Debug().Int("active", len(active)).Int64("polled", polled.Load()).Msg("payment sweep finished")
	return int(polled.Load()), nil
}

func (w *PaymentMonitor) pollOne(ctx context.Context, p *domain.Payment) bool {
	logger := w.log.With().Str("payment_id", p.ID.String()).Logger()

	if w.lease != nil {
		ok, err := w.lease.Acquire(ctx, p.ID, w.cfg.LeaseTTL)
		switch {
		case err != nil:
			// the lease only saves duplicate RPC calls; state changes are conditional in SQL
			logger.Warn().Err(err).Msg("poll lease unavailable, polling anyway")
		case !ok:
			logger.Debug().Msg("payment leased by another instance")
			return false
		default:
			defer func() {
				if err := w.lease.Release(context.WithoutCancel(ctx), p.ID); err != nil {
					logger.Warn().Err(err).Msg("failed to release poll lease")
				}
			}()
		}
	}

	if err := w.monitor.Poll(ctx, p); err != nil {
		logger.Error().Err(err).Str("status", string(p.Status)).Msg("payment poll failed")
	}
	return true
}
