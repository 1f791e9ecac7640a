package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/outpostrun/enginehost/internal/isolate"
	"github.com/outpostrun/enginehost/internal/pubsub"
)

// Publisher exports lifecycle events to an external bus. Satisfied by
// *pubsub.Exporter; narrowed to an interface here so the engine package
// doesn't need to know about AMQP.
type Publisher interface {
	Publish(ctx context.Context, ev pubsub.LifecycleEvent)
}

// defaultProfile mirrors spec §6's recognised profile options. A zero
// Profile passed to New is filled in from these.
var defaultProfile = isolate.Profile{
	PoolLimit:          4,
	Concurrency:        1,
	QueueLimit:         1024,
	IdleTimeout:        30 * time.Second,
	HeartbeatTimeout:   10 * time.Second,
	StartupTimeout:     5 * time.Second,
	TerminationTimeout: 5 * time.Second,
	IOBulkSize:         64,
}

func mergeProfile(p isolate.Profile) isolate.Profile {
	if p.PoolLimit <= 0 {
		p.PoolLimit = defaultProfile.PoolLimit
	}
	if p.Concurrency <= 0 {
		p.Concurrency = defaultProfile.Concurrency
	}
	if p.QueueLimit <= 0 {
		p.QueueLimit = defaultProfile.QueueLimit
	}
	if p.IdleTimeout <= 0 {
		p.IdleTimeout = defaultProfile.IdleTimeout
	}
	if p.HeartbeatTimeout <= 0 {
		p.HeartbeatTimeout = defaultProfile.HeartbeatTimeout
	}
	if p.StartupTimeout <= 0 {
		p.StartupTimeout = defaultProfile.StartupTimeout
	}
	if p.TerminationTimeout <= 0 {
		p.TerminationTimeout = defaultProfile.TerminationTimeout
	}
	if p.IOBulkSize <= 0 {
		p.IOBulkSize = defaultProfile.IOBulkSize
	}
	return p
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger overrides the engine's structured logger. Defaults to
// slog.Default() with an "app" field.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithGateway overrides the isolate gateway used to spawn slaves.
// Defaults to a process-backed gateway.
func WithGateway(gw isolate.Gateway) Option {
	return func(e *Engine) { e.gateway = gw }
}

// WithPublisher attaches a lifecycle event exporter. Unset, the engine
// runs with no external event export.
func WithPublisher(pub Publisher) Option {
	return func(e *Engine) { e.publisher = pub }
}
