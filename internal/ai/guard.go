package ai

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

var (
	// ErrCircuitOpen is returned while the backend is considered down.
	ErrCircuitOpen = errors.New("chat backend unavailable")
	// ErrRateLimited is returned when the request budget is exhausted.
	ErrRateLimited = errors.New("too many chat requests")
)

type GuardOptions struct {
	RatePerSecond float64
	Burst         int
	// MaxFailures consecutive failures open the circuit for OpenTimeout.
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Guarded wraps a Provider with a rate limiter and a circuit breaker, so a
// dead model server fails fast instead of holding every chat request.
type Guarded struct {
	Provider
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func NewGuarded(p Provider, opts GuardOptions) *Guarded {
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 3
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = 3
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}
	return &Guarded{
		Provider: p,
		limiter:  rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "chat-" + p.Name(),
			MaxRequests: 1,
			Timeout:     opts.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= opts.MaxFailures
			},
			// a cancelled request says nothing about the backend
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
		}),
	}
}

func (g *Guarded) Chat(ctx context.Context, messages []Message) (string, error) {
	if !g.limiter.Allow() {
		return "", ErrRateLimited
	}
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.Provider.Chat(ctx, messages)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", ErrCircuitOpen
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// State is "closed", "open" or "half-open".
func (g *Guarded) State() string {
	return g.breaker.State().String()
}
