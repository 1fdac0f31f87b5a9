package translator

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/profitpulse/query-gateway/internal/observability"
	"github.com/profitpulse/query-gateway/internal/scope"
)

// CircuitBreakerConfig defines circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxRequests   uint32        // requests let through while half-open
	Interval      time.Duration // closed-state window for clearing counts
	Timeout       time.Duration // how long the circuit stays open
	ReadyToTrip   func(counts gobreaker.Counts) bool
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

// DefaultCircuitBreakerConfig opens after five consecutive failures and
// probes again after thirty seconds.
var DefaultCircuitBreakerConfig = CircuitBreakerConfig{
	MaxRequests: 1,
	Interval:    60 * time.Second,
	Timeout:     30 * time.Second,
	ReadyToTrip: func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	},
}

// CircuitBreaker wraps a Translator with circuit breaker protection.
// Unusable translations and caller cancellations do not count as failures.
type CircuitBreaker struct {
	next    Translator
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreaker creates a breaker-wrapped translator
func NewCircuitBreaker(next Translator, name string, config CircuitBreakerConfig) *CircuitBreaker {
	logger := observability.NewLogger("translator")
	onChange := config.OnStateChange
	if onChange == nil {
		onChange = func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn(context.Background(), "circuit breaker state changed", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		}
	}

	settings := gobreaker.Settings{
		Name:          name,
		MaxRequests:   config.MaxRequests,
		Interval:      config.Interval,
		Timeout:       config.Timeout,
		ReadyToTrip:   config.ReadyToTrip,
		OnStateChange: onChange,
		IsSuccessful: func(err error) bool {
			return err == nil || KindOf(err) == ErrorCanceled
		},
	}

	return &CircuitBreaker{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Translate implements Translator
func (cb *CircuitBreaker) Translate(ctx context.Context, question scope.ScopedQuestion) (Translation, error) {
	result, err := cb.breaker.Execute(func() (interface{}, error) {
		return cb.next.Translate(ctx, question)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Translation{}, &Error{Kind: ErrorCircuitOpen, Err: err}
		}
		return Translation{}, err
	}
	return result.(Translation), nil
}

// State returns the breaker state as "closed", "half-open" or "open"
func (cb *CircuitBreaker) State() string {
	return cb.breaker.State().String()
}

// Counts returns the current failure counts
func (cb *CircuitBreaker) Counts() gobreaker.Counts {
	return cb.breaker.Counts()
}
