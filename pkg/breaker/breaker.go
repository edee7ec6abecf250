package breaker

import (
	"errors"
	"sync"
	"time"

	"crypto-settlement/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// State mirrors the breaker state machine.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Settings configures every breaker created by a Registry.
type Settings struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold uint32
	// Cooldown is how long the breaker stays open before allowing one trial call.
	Cooldown time.Duration
	// IsFailure decides whether an error counts against the endpoint. Nil counts every error.
	IsFailure func(error) bool
}

// StateListener is notified on every transition.
type StateListener func(endpoint string, from, to State)

// Breaker guards one endpoint. Safe for concurrent use; state is shared by all callers.
type Breaker struct {
	endpoint string
	cb       *gobreaker.CircuitBreaker
}

// New creates a breaker for endpoint.
func New(endpoint string, s Settings, log zerolog.Logger, listener StateListener) *Breaker {
	threshold := s.FailureThreshold
	if threshold == 0 {
		threshold = 1
	}
	isFailure := s.IsFailure

	cbSettings := gobreaker.Settings{
		Name: endpoint,
		// exactly one trial call while half-open
		MaxRequests: 1,
		Timeout:     s.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("endpoint", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			if listener != nil {
				listener(name, fromGobreaker(from), fromGobreaker(to))
			}
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if isFailure != nil {
				return !isFailure(err)
			}
			return false
		},
	}

	return &Breaker{endpoint: endpoint, cb: gobreaker.NewCircuitBreaker(cbSettings)}
}

// Endpoint returns the guarded endpoint name.
func (b *Breaker) Endpoint() string { return b.endpoint }

// State reports the current state, advancing Open to HalfOpen once the cooldown elapsed.
func (b *Breaker) State() State { return fromGobreaker(b.cb.State()) }

// Execute runs fn through the breaker. While open, fn is not called and a
// CircuitOpen error is returned.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperror.ErrCircuitOpen(b.endpoint)
	}
	return err
}

// Registry hands out one shared breaker per endpoint.
type Registry struct {
	mu       sync.Mutex
	settings Settings
	log      zerolog.Logger
	listener StateListener
	breakers map[string]*Breaker
}

// NewRegistry creates an empty registry.
func NewRegistry(s Settings, log zerolog.Logger, listener StateListener) *Registry {
	return &Registry{
		settings: s,
		log:      log,
		listener: listener,
		breakers: make(map[string]*Breaker),
	}
}

// For returns the breaker for endpoint, creating it on first use.
func (r *Registry) For(endpoint string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[endpoint]; ok {
		return b
	}
	b := New(endpoint, r.settings, r.log, r.listener)
	r.breakers[endpoint] = b
	return b
}

// States snapshots every known breaker.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]State, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State()
	}
	return out
}
