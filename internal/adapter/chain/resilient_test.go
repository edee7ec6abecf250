package chain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"crypto-settlement/internal/core/domain"
	"crypto-settlement/internal/core/ports/mocks"
	"crypto-settlement/pkg/apperror"
	"crypto-settlement/pkg/breaker"
	"crypto-settlement/pkg/metrics"
	"crypto-settlement/pkg/retry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var errNodeDown = errors.New("node down")

func newInner(t *testing.T) *mocks.MockChainClient {
	inner := mocks.NewMockChainClient(gomock.NewController(t))
	inner.EXPECT().Network().Return(domain.NetworkEthereum).AnyTimes()
	return inner
}

func newBreakers(threshold uint32) *breaker.Registry {
	return breaker.NewRegistry(breaker.Settings{FailureThreshold: threshold, Cooldown: time.Minute}, zerolog.Nop(), nil)
}

func fastRetry(attempts int) ResilienceOptions {
	return ResilienceOptions{Retry: retry.Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond}}
}

func TestResilientClient_RetriesReadsUntilSuccess(t *testing.T) {
	inner := newInner(t)
	want := &domain.InboundTransfer{TxRef: "0x1", Amount: decimal.NewFromInt(1)}
	gomock.InOrder(
		inner.EXPECT().FindInbound(gomock.Any(), domain.CurrencyETH, "0xabc", gomock.Any()).Return(nil, errNodeDown).Times(2),
		inner.EXPECT().FindInbound(gomock.Any(), domain.CurrencyETH, "0xabc", gomock.Any()).Return(want, nil),
	)

	c := NewResilientClient(inner, "ethereum", fastRetry(3), newBreakers(10), metrics.New(prometheus.NewRegistry()), zerolog.Nop())
	got, err := c.FindInbound(context.Background(), domain.CurrencyETH, "0xabc", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestResilientClient_ExhaustedRetriesReturnRPCError(t *testing.T) {
	inner := newInner(t)
	inner.EXPECT().TxStatus(gomock.Any(), domain.CurrencyETH, "0x1").Return(nil, errNodeDown).Times(3)

	c := NewResilientClient(inner, "ethereum", fastRetry(3), newBreakers(10), nil, zerolog.Nop())
	_, err := c.TxStatus(context.Background(), domain.CurrencyETH, "0x1")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrRPCKind)
	assert.ErrorIs(t, err, errNodeDown)
}

func TestResilientClient_TransferStepsAreRetried(t *testing.T) {
	inner := newInner(t)
	signed := &domain.SignedTransfer{Currency: domain.CurrencyETH, TxRef: "0x1", Raw: "0xf86b"}
	gomock.InOrder(
		inner.EXPECT().PrepareTransfer(gomock.Any(), gomock.Any()).Return(nil, errNodeDown),
		inner.EXPECT().PrepareTransfer(gomock.Any(), gomock.Any()).Return(signed, nil),
		inner.EXPECT().Broadcast(gomock.Any(), signed).Return(errNodeDown),
		inner.EXPECT().Broadcast(gomock.Any(), signed).Return(nil),
	)

	c := NewResilientClient(inner, "ethereum", fastRetry(3), newBreakers(10), nil, zerolog.Nop())
	got, err := c.PrepareTransfer(context.Background(), domain.TransferRequest{Currency: domain.CurrencyETH})
	require.NoError(t, err)
	assert.Same(t, signed, got)
	assert.NoError(t, c.Broadcast(context.Background(), got))
}

func TestResilientClient_TransferOutcomesAreNotRetried(t *testing.T) {
	breakers := breaker.NewRegistry(breaker.Settings{
		FailureThreshold: 1,
		Cooldown:         time.Minute,
		IsFailure:        IsEndpointFailure,
	}, zerolog.Nop(), nil)

	inner := newInner(t)
	inner.EXPECT().PrepareTransfer(gomock.Any(), gomock.Any()).Return(nil, domain.ErrUnderfunded).Times(1)
	inner.EXPECT().Broadcast(gomock.Any(), gomock.Any()).Return(domain.ErrTransferExpired).Times(1)
	inner.EXPECT().TxStatus(gomock.Any(), gomock.Any(), gomock.Any()).Return(&domain.TxStatus{}, nil)

	c := NewResilientClient(inner, "ethereum", fastRetry(5), breakers, nil, zerolog.Nop())
	_, err := c.PrepareTransfer(context.Background(), domain.TransferRequest{Currency: domain.CurrencyETH})
	assert.ErrorIs(t, err, domain.ErrUnderfunded)
	assert.ErrorIs(t, err, apperror.ErrRPCKind)

	err = c.Broadcast(context.Background(), &domain.SignedTransfer{TxRef: "0x1"})
	assert.ErrorIs(t, err, domain.ErrTransferExpired)

	// neither outcome counted against the endpoint
	_, err = c.TxStatus(context.Background(), domain.CurrencyETH, "0x1")
	assert.NoError(t, err)
}

func TestIsEndpointFailure(t *testing.T) {
	assert.False(t, IsEndpointFailure(nil))
	assert.False(t, IsEndpointFailure(context.Canceled))
	assert.False(t, IsEndpointFailure(fmt.Errorf("prepare: %w", domain.ErrUnderfunded)))
	assert.False(t, IsEndpointFailure(fmt.Errorf("send: %w", domain.ErrTransferExpired)))
	assert.True(t, IsEndpointFailure(errNodeDown))
	assert.True(t, IsEndpointFailure(context.DeadlineExceeded))
}

func TestResilientClient_OpenBreakerShortCircuits(t *testing.T) {
	inner := newInner(t)
	inner.EXPECT().TxStatus(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errNodeDown).Times(2)

	c := NewResilientClient(inner, "ethereum", fastRetry(1), newBreakers(2), nil, zerolog.Nop())
	for i := 0; i < 2; i++ {
		_, err := c.TxStatus(context.Background(), domain.CurrencyETH, "0x1")
		require.ErrorIs(t, err, apperror.ErrRPCKind)
	}

	_, err := c.TxStatus(context.Background(), domain.CurrencyETH, "0x1")
	assert.ErrorIs(t, err, apperror.ErrCircuitOpenKind)
}

func TestResilientClient_CircuitOpenIsNotRetried(t *testing.T) {
	inner := newInner(t)
	inner.EXPECT().TxStatus(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errNodeDown).Times(1)

	// the first attempt trips the breaker; the remaining attempts must not be spent
	c := NewResilientClient(inner, "ethereum", fastRetry(4), newBreakers(1), nil, zerolog.Nop())
	_, err := c.TxStatus(context.Background(), domain.CurrencyETH, "0x1")
	assert.ErrorIs(t, err, apperror.ErrCircuitOpenKind)
}

func TestResilientClient_BreakerSharedPerEndpoint(t *testing.T) {
	breakers := newBreakers(1)

	first := newInner(t)
	first.EXPECT().TxStatus(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errNodeDown)
	NewResilientClient(first, "ethereum", fastRetry(1), breakers, nil, zerolog.Nop()).
		TxStatus(context.Background(), domain.CurrencyETH, "0x1") //nolint:errcheck

	// no calls expected: the endpoint is already open
	second := newInner(t)
	_, err := NewResilientClient(second, "ethereum", fastRetry(1), breakers, nil, zerolog.Nop()).
		FindInbound(context.Background(), domain.CurrencyETH, "0xabc", time.Time{})
	assert.ErrorIs(t, err, apperror.ErrCircuitOpenKind)

	// a different endpoint is unaffected
	third := newInner(t)
	third.EXPECT().TxStatus(gomock.Any(), gomock.Any(), gomock.Any()).Return(&domain.TxStatus{Found: true}, nil)
	st, err := NewResilientClient(third, "ethereum-backup", fastRetry(1), breakers, nil, zerolog.Nop()).
		TxStatus(context.Background(), domain.CurrencyETH, "0x1")
	require.NoError(t, err)
	assert.True(t, st.Found)
}

func TestResilientClient_TimeoutBoundsEachCall(t *testing.T) {
	inner := newInner(t)
	inner.EXPECT().TxStatus(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ domain.Currency, _ string) (*domain.TxStatus, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	opts := fastRetry(1)
	opts.Timeout = 20 * time.Millisecond
	c := NewResilientClient(inner, "ethereum", opts, newBreakers(10), nil, zerolog.Nop())

	start := time.Now()
	_, err := c.TxStatus(context.Background(), domain.CurrencyETH, "0x1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, apperror.ErrRPCKind)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResilientClient_RateLimitHonoursCancellation(t *testing.T) {
	inner := newInner(t)
	inner.EXPECT().TxStatus(gomock.Any(), gomock.Any(), gomock.Any()).Return(&domain.TxStatus{}, nil).Times(1)

	opts := fastRetry(1)
	opts.RateLimit = 0.001
	opts.Burst = 1
	c := NewResilientClient(inner, "ethereum", opts, newBreakers(10), nil, zerolog.Nop())

	_, err := c.TxStatus(context.Background(), domain.CurrencyETH, "0x1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.TxStatus(ctx, domain.CurrencyETH, "0x1")
	assert.Error(t, err)
}

func TestRegistry_For(t *testing.T) {
	eth := newInner(t)
	sol := mocks.NewMockChainClient(gomock.NewController(t))
	sol.EXPECT().Network().Return(domain.NetworkSolana).AnyTimes()

	r := NewRegistry(eth, sol)

	got, err := r.For(domain.NetworkSolana)
	require.NoError(t, err)
	assert.Same(t, sol, got)

	_, err = r.For(domain.NetworkBSC)
	assert.Error(t, err)

	assert.Equal(t, []domain.Network{domain.NetworkEthereum, domain.NetworkSolana}, r.Networks())
}
