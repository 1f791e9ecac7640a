package isolate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/outpostrun/enginehost/internal/domain/model"
)

// BreakerGateway decorates a Gateway with a circuit breaker around
// Spawn: a manifest whose executable is missing or unexecutable (so
// that Spawn itself fails) stops being retried on every balancer tick
// once failures accumulate, rather than hammering the same broken
// launch repeatedly. A child that starts and later exits does not count
// as a failure. Grounded on the teacher's use of sony/gobreaker around
// its outbound delivery calls (wrap the flaky op, fail fast while open).
type BreakerGateway struct {
	inner   Gateway
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerGateway wraps inner with a breaker named
// "isolate.spawn.<appName>", opening after 5 consecutive spawn failures and probing
// again after cooldown.
func NewBreakerGateway(appName string, inner Gateway, cooldown time.Duration) *BreakerGateway {
	settings := gobreaker.Settings{
		Name:    fmt.Sprintf("isolate.spawn.%s", appName),
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &BreakerGateway{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Spawn implements Gateway, routing through the breaker.
func (g *BreakerGateway) Spawn(ctx context.Context, id uuid.UUID, manifest *Manifest, profile *Profile) (model.Channel, error) {
	ch, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.Spawn(ctx, id, manifest, profile)
	})
	if err != nil {
		return nil, fmt.Errorf("isolate: breaker: %w", err)
	}
	return ch.(model.Channel), nil
}

// Signal implements Gateway, passing through uninstrumented: a
// breaker trips on launch failures, not on signalling an already
// running slave.
func (g *BreakerGateway) Signal(ch model.Channel, sig Signal) error {
	return g.inner.Signal(ch, sig)
}

// Reap implements Gateway, passing through uninstrumented.
func (g *BreakerGateway) Reap(ch model.Channel) error {
	return g.inner.Reap(ch)
}
