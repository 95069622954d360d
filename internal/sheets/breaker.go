package sheets

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerOptions tune the circuit breaker wrapped around a Source.
type BreakerOptions struct {
	Name             string
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
}

// Breaker guards a Source with a circuit breaker so an unreachable sheet
// fails fast instead of stalling every request.
type Breaker struct {
	source Source
	cb     *gobreaker.CircuitBreaker[[]map[string]string]
	logger zerolog.Logger
}

// NewBreaker wraps source.
func NewBreaker(source Source, opts BreakerOptions, logger zerolog.Logger) *Breaker {
	if opts.Name == "" {
		opts.Name = "sheets"
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}
	if opts.HalfOpenRequests == 0 {
		opts.HalfOpenRequests = 1
	}

	b := &Breaker{
		source: source,
		logger: logger.With().Str("component", "sheets_breaker").Logger(),
	}

	b.cb = gobreaker.NewCircuitBreaker[[]map[string]string](gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: opts.HalfOpenRequests,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn().Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
		// Caller cancellation says nothing about the sheet's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return b
}

// LoadRows delegates to the wrapped source unless the breaker is open.
func (b *Breaker) LoadRows(ctx context.Context, table string) ([]map[string]string, error) {
	return b.cb.Execute(func() ([]map[string]string, error) {
		return b.source.LoadRows(ctx, table)
	})
}

// State reports the breaker state ("closed", "half-open", "open").
func (b *Breaker) State() string {
	return b.cb.State().String()
}

var _ Source = (*Breaker)(nil)
