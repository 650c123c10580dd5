package ai

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Breaker stops calling a failing backend for a while so a provider
// outage does not add a full timeout to every message in a batch.
type Breaker struct {
	next Completer
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next in a circuit breaker. Client errors and caller
// cancellation do not count as failures.
func NewBreaker(next Completer, logger *zap.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:        "ai-completion",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status < http.StatusInternalServerError &&
					apiErr.Status != http.StatusTooManyRequests
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *Breaker) Complete(ctx context.Context, req Request) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Complete(ctx, req)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// State reports the breaker state, for logging and tests.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
