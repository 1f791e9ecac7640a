package cmd

import (
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

// NewLogger builds the process-wide structured logger, matching the
// teacher's cmd/logger.go: a slog.Logger bridged to OpenTelemetry via
// otelslog when ENGINEHOST_OTEL_LOGS is set, and a plain text handler
// on stdout otherwise.
func NewLogger() *slog.Logger {
	if os.Getenv("ENGINEHOST_OTEL_LOGS") == "" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return otelslog.NewLogger("enginehost")
}

// fxSlogLogger adapts fx's startup/shutdown event stream onto the
// process logger so dependency wiring failures show up alongside
// application logs instead of fx's default stderr writer.
type fxSlogLogger struct {
	log *slog.Logger
}

func (l *fxSlogLogger) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuting:
		l.log.Debug("fx: starting", "callee", e.FunctionName)
	case *fxevent.Started:
		l.log.Info("fx: app started")
	case *fxevent.Stopped:
		if e.Err != nil {
			l.log.Error("fx: app stopped with error", "error", e.Err)
		}
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			l.log.Error("fx: logger init failed", "error", e.Err)
		}
	}
}

// LoggerModule provides the logger to the fx graph and routes fx's own
// event logging through it.
var LoggerModule = fx.Module("logger",
	fx.Provide(NewLogger),
	fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
		return &fxSlogLogger{log: log}
	}),
)
