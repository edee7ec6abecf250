package breaker

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"crypto-settlement/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("endpoint down")

func trip(t *testing.T, b *Breaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := b.Execute(func() error { return errDown })
		require.ErrorIs(t, err, errDown)
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New("eth", Settings{FailureThreshold: 3, Cooldown: time.Minute}, zerolog.Nop(), nil)

	trip(t, b, 2)
	assert.Equal(t, StateClosed, b.State())

	trip(t, b, 1)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	assert.False(t, called, "open breaker must not reach the endpoint")
	assert.ErrorIs(t, err, apperror.ErrCircuitOpenKind)
}

func TestBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	b := New("eth", Settings{FailureThreshold: 3, Cooldown: time.Minute}, zerolog.Nop(), nil)

	trip(t, b, 2)
	require.NoError(t, b.Execute(func() error { return nil }))
	trip(t, b, 2)

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenTrialSuccessCloses(t *testing.T) {
	b := New("sol", Settings{FailureThreshold: 1, Cooldown: 30 * time.Millisecond}, zerolog.Nop(), nil)

	trip(t, b, 1)
	require.Equal(t, StateOpen, b.State())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenTrialFailureReopens(t *testing.T) {
	b := New("sol", Settings{FailureThreshold: 1, Cooldown: 30 * time.Millisecond}, zerolog.Nop(), nil)

	trip(t, b, 1)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	trip(t, b, 1)
	assert.Equal(t, StateOpen, b.State())

	err := b.Execute(func() error { return nil })
	assert.ErrorIs(t, err, apperror.ErrCircuitOpenKind, "cooldown restarts after a failed trial")
}

func TestBreaker_HalfOpenAllowsExactlyOneTrial(t *testing.T) {
	b := New("bsc", Settings{FailureThreshold: 1, Cooldown: 20 * time.Millisecond}, zerolog.Nop(), nil)

	trip(t, b, 1)
	time.Sleep(40 * time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{})
	var trialErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		trialErr = b.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	var reached atomic.Int32
	for i := 0; i < 5; i++ {
		err := b.Execute(func() error {
			reached.Add(1)
			return nil
		})
		assert.ErrorIs(t, err, apperror.ErrCircuitOpenKind)
	}
	close(release)
	wg.Wait()

	require.NoError(t, trialErr)
	assert.Equal(t, int32(0), reached.Load())
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_IsFailureFilter(t *testing.T) {
	notFound := errors.New("not found")
	b := New("eth", Settings{
		FailureThreshold: 1,
		Cooldown:         time.Minute,
		IsFailure:        func(err error) bool { return !errors.Is(err, notFound) },
	}, zerolog.Nop(), nil)

	err := b.Execute(func() error { return notFound })
	assert.ErrorIs(t, err, notFound)
	assert.Equal(t, StateClosed, b.State())
}

func TestRegistry_SharesBreakerPerEndpoint(t *testing.T) {
	var transitions []State
	var mu sync.Mutex
	reg := NewRegistry(Settings{FailureThreshold: 2, Cooldown: time.Minute}, zerolog.Nop(),
		func(_ string, _, to State) {
			mu.Lock()
			transitions = append(transitions, to)
			mu.Unlock()
		})

	a := reg.For("ethereum")
	b := reg.For("ethereum")
	other := reg.For("solana")
	require.Same(t, a, b)

	trip(t, a, 1)
	trip(t, b, 1)

	assert.Equal(t, StateOpen, reg.For("ethereum").State())
	assert.Equal(t, StateClosed, other.State())
	assert.Equal(t, map[string]State{"ethereum": StateOpen, "solana": StateClosed}, reg.States())
	mu.Lock()
	assert.Equal(t, []State{StateOpen}, transitions)
	mu.Unlock()
}
