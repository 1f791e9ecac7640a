package cmd

import (
	"log/slog"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/outpostrun/enginehost/config"
	"github.com/outpostrun/enginehost/internal/host"
	"github.com/outpostrun/enginehost/internal/isolate"
)

// newApp composes the fx.App from every package module, matching the
// teacher's cmd/fx.go composition root. extra lets the caller add
// invokes (e.g. the admin HTTP server) without this function knowing
// about them.
func newApp(v *viper.Viper, extra ...fx.Option) *fx.App {
	opts := []fx.Option{
		LoggerModule,
		fx.Supply(v),
		fx.Provide(
			func(v *viper.Viper) (*config.Config, error) { return config.Load(v, v.GetString("config_file")) },
			newRegistry,
		),
		host.Module,
		fx.Invoke(watchConfig),
	}
	opts = append(opts, extra...)
	return fx.New(opts...)
}

// watchConfig wires config.Watch into the composition root: apps added
// to the config file's apps list after boot are picked up and started
// without a restart, matching the AMBIENT STACK's fsnotify hot-reload
// promise. Already-running apps are untouched by a reload — changing
// an app's executable or profile still requires a restart.
func watchConfig(v *viper.Viper, log *slog.Logger, h *host.Host) {
	config.Watch(v, log, func(cfg *config.Config) {
		if err := h.Reconcile(cfg.Apps, cfg.DefaultProfile); err != nil {
			log.Warn("config reload: failed to reconcile new apps", "error", err)
		}
	})
}

// newRegistry registers the isolate categories a manifest's "isolate"
// field can name. "process" spawns a local OS process directly;
// "process_breaker" wraps the same gateway in a circuit breaker that
// stops spawning an app whose launches keep failing.
func newRegistry(log *slog.Logger) *isolate.Registry {
	r := isolate.NewRegistry()
	r.Register("process", func() (isolate.Gateway, error) {
		return isolate.NewProcessGateway(log), nil
	})
	r.Register("process_breaker", func() (isolate.Gateway, error) {
		return isolate.NewBreakerGateway("process_breaker", isolate.NewProcessGateway(log), 30*time.Second), nil
	})
	return r
}
