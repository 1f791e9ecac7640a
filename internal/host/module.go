package host

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/outpostrun/enginehost/config"
	"github.com/outpostrun/enginehost/internal/engine"
	"github.com/outpostrun/enginehost/internal/isolate"
	"github.com/outpostrun/enginehost/internal/pubsub"
)

// Module wires the Host into the fx composition root, matching the
// teacher's one-fx.Module-per-package convention
// (internal/service/module.go, internal/handler/amqp/module.go).
var Module = fx.Module("host",
	fx.Provide(newExporter, NewFromConfig),
	fx.Invoke(registerLifecycle),
)

// newExporter dials the configured AMQP broker for lifecycle event
// export. With no amqp_url configured, it returns a nil Publisher and
// every engine runs without external event export.
func newExporter(lc fx.Lifecycle, log *slog.Logger, cfg *config.Config) (engine.Publisher, error) {
	if cfg.AMQPURL == "" {
		return nil, nil
	}
	exporter, err := pubsub.NewExporter(cfg.AMQPURL, "enginehost.lifecycle", log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return exporter.Close()
		},
	})
	return exporter, nil
}

// NewFromConfig builds a Host and registers one Engine per configured
// app manifest.
func NewFromConfig(log *slog.Logger, cfg *config.Config, registry *isolate.Registry, publisher engine.Publisher) (*Host, error) {
	h := New(log, registry, publisher)
	for i := range cfg.Apps {
		manifest := cfg.Apps[i]
		if _, err := h.Add(&manifest, cfg.DefaultProfile); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func registerLifecycle(lc fx.Lifecycle, h *Host) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return h.Start()
		},
		OnStop: func(ctx context.Context) error {
			h.Stop()
			return nil
		},
	})
}
