package backend

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerSettings configures the per-kind circuit breakers.
type BreakerSettings struct {
	MaxFailures uint32        // consecutive network failures before tripping (default 5)
	OpenTimeout time.Duration // how long calls fail fast once tripped (default 30s)
}

// DefaultBreakerSettings returns the default breaker configuration.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxFailures: 5,
		OpenTimeout: 30 * time.Second,
	}
}

// Breakers manages one circuit breaker per backend kind. Only network-level
// failures count; any HTTP response, whatever its status, is a success as
// far as the breaker is concerned.
type Breakers struct {
	mu       sync.Mutex
	settings BreakerSettings
	log      logrus.FieldLogger
	breakers map[Kind]*gobreaker.CircuitBreaker
}

// NewBreakers creates an empty registry.
func NewBreakers(settings BreakerSettings, log logrus.FieldLogger) *Breakers {
	def := DefaultBreakerSettings()
	if settings.MaxFailures == 0 {
		settings.MaxFailures = def.MaxFailures
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = def.OpenTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Breakers{
		settings: settings,
		log:      log,
		breakers: make(map[Kind]*gobreaker.CircuitBreaker),
	}
}

// Get returns the breaker for k, creating it on first use.
func (b *Breakers) Get(k Kind) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[k]; ok {
		return cb
	}

	maxFailures := b.settings.MaxFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(k),
		MaxRequests: 1, // a single probe call in half-open state
		Timeout:     b.settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.log.WithFields(logrus.Fields{"backend": name, "from": from.String(), "to": to.String()}).
				Warn("circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			// A cancelled call says nothing about the backend.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	b.breakers[k] = cb
	return cb
}

// State reports the breaker state of k without creating a breaker.
func (b *Breakers) State(k Kind) gobreaker.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[k]; ok {
		return cb.State()
	}
	return gobreaker.StateClosed
}

// call runs fn through the breaker of k. Rejections are reported as
// TransportError.
func (b *Breakers) call(k Kind, fn func() (exchangeResult, error)) (exchangeResult, error) {
	out, err := b.Get(k).Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return exchangeResult{}, &Error{Kind: TransportError, Backend: k, Detail: "backend unreachable, retrying later", Err: err}
	}
	if err != nil {
		return exchangeResult{}, err
	}
	return out.(exchangeResult), nil
}
