// Package cmd assembles the process entrypoint: the urfave/cli
// surface, the fx composition root, and the admin HTTP server,
// matching the teacher's cmd/cmd.go layout.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"

	"github.com/outpostrun/enginehost/config"
	adminhttp "github.com/outpostrun/enginehost/internal/admin/http"
	"github.com/outpostrun/enginehost/internal/host"
)

// NewApp builds the CLI surface: a `host` subcommand that boots the
// multi-app engine host, and a `top` subcommand for the terminal
// dashboard (top.go).
func NewApp() *cli.App {
	return &cli.App{
		Name:  "enginehost",
		Usage: "multi-tenant application engine host",
		Commands: []*cli.Command{
			serverCmd(),
			topCmd(),
		},
	}
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:  "host",
		Usage: "start the engine host and admin surface",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config_file", Usage: "path to the YAML configuration file"},
		},
		Action: func(c *cli.Context) error {
			flags := pflag.NewFlagSet("enginehost", pflag.ContinueOnError)
			flags.String("config_file", c.String("config_file"), "path to the YAML configuration file")
			v := config.New(flags)

			hostApp := newApp(v, fx.Invoke(func(h *host.Host, cfg *config.Config, log *slog.Logger) {
				go serveAdmin(cfg.AdminListenAddr, h, log)
			}))

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := hostApp.Start(ctx); err != nil {
				return fmt.Errorf("cmd: start: %w", err)
			}
			<-ctx.Done()

			stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer stopCancel()
			return hostApp.Stop(stopCtx)
		},
	}
}

func serveAdmin(addr string, h *host.Host, log *slog.Logger) {
	server := &http.Server{Addr: addr, Handler: adminhttp.NewRouter(h, log)}
	_ = server.ListenAndServe()
}

// Main is the package's sole external entrypoint, called from
// the module's main.go.
func Main() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
