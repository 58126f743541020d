package dispatcher

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/develper21/kyvro/internal/config"
)

// ErrBreakerOpen is surfaced while the provider is considered down. It is
// retry-worthy: the queue backs off and tries again once the breaker
// half-opens.
var ErrBreakerOpen = errors.New("dispatcher: provider circuit breaker is open")

// Breaker guards provider calls so a provider outage does not burn every
// message's retry budget in a tight loop. Only retry-worthy outcomes count
// as breaker failures; a 400 for one bad phone number says nothing about
// provider health.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

func NewBreaker(cfg *config.CircuitBreakerConfig, logger *zap.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:        "whatsapp-provider",
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.Interval) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.ConsecutiveFails && failureRatio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Breaker{
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: logger,
	}
}

// Execute runs fn through the breaker. While the breaker is open fn is not
// invoked and ErrBreakerOpen is returned.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrBreakerOpen
	}
	return err
}

// State returns the breaker state name for health reporting.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Counts returns total requests and failures observed by the breaker.
func (b *Breaker) Counts() (requests, failures uint32) {
	counts := b.cb.Counts()
	return counts.Requests, counts.TotalFailures
}
