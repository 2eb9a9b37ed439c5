package sendadapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// Breaker wraps an adapter with a circuit breaker. Permanent errors do not count
// against the circuit.
type Breaker struct {
	inner Adapter
	cb    *gobreaker.CircuitBreaker
}

// BreakerSettings configures a Breaker
type BreakerSettings struct {
	Name                string
	ConsecutiveFailures uint32
	Cooldown            time.Duration
	OnStateChange       func(name string, from, to gobreaker.State)
}

// NewBreaker creates a new Breaker around inner
func NewBreaker(inner Adapter, s BreakerSettings) *Breaker {
	threshold := s.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	return &Breaker{
		inner: inner,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        s.Name,
			MaxRequests: 1,
			Timeout:     s.Cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: s.OnStateChange,
		}),
	}
}

type outcome struct {
	res Result
	err error
}

// Send forwards to the wrapped adapter unless the circuit is open
func (b *Breaker) Send(ctx context.Context, to Recipient, p Payload) (Result, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		res, err := b.inner.Send(ctx, to, p)
		// a provider that stops answering still counts against the circuit
		if err != nil && IsPermanent(err) && !errors.Is(err, context.DeadlineExceeded) {
			return outcome{res: res, err: err}, nil
		}
		return outcome{res: res, err: err}, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return Result{}, err
	}
	o := out.(outcome)
	return o.res, o.err
}

// State reports the current circuit state
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
