package chain

import (
	"context"
	"errors"
	"time"

	"crypto-settlement/internal/core/domain"
	"crypto-settlement/internal/core/ports"
	"crypto-settlement/pkg/apperror"
	"crypto-settlement/pkg/breaker"
	"crypto-settlement/pkg/metrics"
	"crypto-settlement/pkg/retry"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ResilienceOptions configures the wrapper around one endpoint.
type ResilienceOptions struct {
	// Timeout bounds each individual call. Zero disables it.
	Timeout time.Duration
	// RateLimit is requests per second; zero means unlimited.
	RateLimit float64
	Burst     int
	// Retry applies to every call. Broadcasts resubmit the same signed
	// transaction, so a repeat cannot move funds twice.
	Retry retry.Policy
}

// ResilientClient decorates a ChainClient with throttling, timeouts, retries
// and the endpoint's shared circuit breaker. Errors leave as RPC or CircuitOpen app errors.
type ResilientClient struct {
	inner    ports.ChainClient
	endpoint string
	timeout  time.Duration
	limiter  *rate.Limiter
	retrier  *retry.Retrier
	breaker  *breaker.Breaker
	metrics  *metrics.Metrics
}

// NewResilientClient wraps inner. All clients for the same endpoint share one breaker.
func NewResilientClient(
	inner ports.ChainClient,
	endpoint string,
	opts ResilienceOptions,
	breakers *breaker.Registry,
	m *metrics.Metrics,
	log zerolog.Logger,
) *ResilientClient {
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}

	policy := opts.Retry
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	base := policy.Retryable
	policy.Retryable = func(err error) bool {
		if apperror.HasCode(err, apperror.CodeCircuitOpen) || !IsEndpointFailure(err) {
			return false
		}
		return base == nil || base(err)
	}

	logger := log.With().Str("endpoint", endpoint).Str("network", string(inner.Network())).Logger()
	return &ResilientClient{
		inner:    inner,
		endpoint: endpoint,
		timeout:  opts.Timeout,
		limiter:  rate.NewLimiter(limit, burst),
		retrier:  retry.New(policy, logger),
		breaker:  breakers.For(endpoint),
		metrics:  m,
	}
}

func (c *ResilientClient) Network() domain.Network { return c.inner.Network() }

func (c *ResilientClient) FindInbound(ctx context.Context, currency domain.Currency, address string, since time.Time) (*domain.InboundTransfer, error) {
	return retry.DoWithResult(ctx, c.retrier, "find_inbound", func(ctx context.Context) (*domain.InboundTransfer, error) {
		return guarded(ctx, c, "find_inbound", func(ctx context.Context) (*domain.InboundTransfer, error) {
			return c.inner.FindInbound(ctx, currency, address, since)
		})
	})
}

func (c *ResilientClient) TxStatus(ctx context.Context, currency domain.Currency, txRef string) (*domain.TxStatus, error) {
	return retry.DoWithResult(ctx, c.retrier, "tx_status", func(ctx context.Context) (*domain.TxStatus, error) {
		return guarded(ctx, c, "tx_status", func(ctx context.Context) (*domain.TxStatus, error) {
			return c.inner.TxStatus(ctx, currency, txRef)
		})
	})
}

func (c *ResilientClient) PrepareTransfer(ctx context.Context, req domain.TransferRequest) (*domain.SignedTransfer, error) {
	return retry.DoWithResult(ctx, c.retrier, "prepare_transfer", func(ctx context.Context) (*domain.SignedTransfer, error) {
		return guarded(ctx, c, "prepare_transfer", func(ctx context.Context) (*domain.SignedTransfer, error) {
			return c.inner.PrepareTransfer(ctx, req)
		})
	})
}

func (c *ResilientClient) Broadcast(ctx context.Context, signed *domain.SignedTransfer) error {
	_, err := retry.DoWithResult(ctx, c.retrier, "broadcast", func(ctx context.Context) (struct{}, error) {
		return guarded(ctx, c, "broadcast", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.inner.Broadcast(ctx, signed)
		})
	})
	return err
}

// IsEndpointFailure reports whether err says something about the endpoint's
// health. Cancellation and transfer outcomes reported by the chain do not.
func IsEndpointFailure(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled),
		errors.Is(err, domain.ErrUnderfunded),
		errors.Is(err, domain.ErrTransferExpired):
		return false
	}
	return true
}

// guarded runs one attempt: wait for a rate token, pass the breaker, bound by timeout.
func guarded[T any](ctx context.Context, c *ResilientClient, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	network := string(c.inner.Network())

	if err := c.limiter.Wait(ctx); err != nil {
		c.metrics.RPCRejected(network, op, "rate_limited")
		return zero, apperror.ErrRPC(c.endpoint, err)
	}

	var result T
	started := time.Now()
	err := c.breaker.Execute(func() error {
		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		var callErr error
		result, callErr = fn(callCtx)
		return callErr
	})

	if apperror.HasCode(err, apperror.CodeCircuitOpen) {
		c.metrics.RPCRejected(network, op, "circuit_open")
		return zero, err
	}
	c.metrics.RPCCall(network, op, started, err)
	if err != nil {
		return zero, apperror.ErrRPC(c.endpoint, err)
	}
	return result, nil
}
