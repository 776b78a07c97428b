package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	perr "querypilot/internal/platform/errors"
)

// Breaker wraps a transport with a circuit breaker so a flapping
// provider fails fast instead of eating the retry budget on every
// request. Only transport-class failures count toward tripping
type Breaker struct {
	inner Transport
	cb    *gobreaker.CircuitBreaker
}

// NewBreaker wraps inner. The circuit opens after five consecutive
// transport failures and probes again after 30s
func NewBreaker(inner Transport) *Breaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "model_transport",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || perr.CodeOf(err) != perr.ErrorCodeModelTransport
		},
	})
	return &Breaker{inner: inner, cb: cb}
}

// Generate delegates through the breaker. An open circuit surfaces as a
// model transport error so the caller's fallback chain still applies
func (b *Breaker) Generate(ctx context.Context, model, prompt string, p Params) (*Response, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.inner.Generate(ctx, model, prompt, p)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, perr.ModelTransportf("model transport unavailable: %v", err)
		}
		return nil, err
	}
	return v.(*Response), nil
}
