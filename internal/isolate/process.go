package isolate

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/outpostrun/enginehost/internal/domain/model"
	"github.com/outpostrun/enginehost/internal/transport"
)

// ProcessGateway spawns slaves as plain child OS processes, wiring
// their stdin/stdout as the frame transport. Grounded on the
// exec.Cmd/os.Process lifecycle used by the cluster worker reference
// (cancel-on-stop, Wait() in a background goroutine).
type ProcessGateway struct {
	log *slog.Logger

	mu    sync.Mutex
	cmds  map[*transport.Conn]*exec.Cmd
}

// NewProcessGateway returns a Gateway that launches manifests as local
// subprocesses.
func NewProcessGateway(log *slog.Logger) *ProcessGateway {
	return &ProcessGateway{
		log:  log,
		cmds: make(map[*transport.Conn]*exec.Cmd),
	}
}

// Spawn implements Gateway.
func (g *ProcessGateway) Spawn(ctx context.Context, id uuid.UUID, manifest *Manifest, profile *Profile) (model.Channel, error) {
	cmd := exec.CommandContext(ctx, manifest.Executable, manifest.Args...)
	for k, v := range manifest.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = append(cmd.Env, fmt.Sprintf("ENGINEHOST_ENDPOINT=%s", manifest.Endpoint))
	cmd.Env = append(cmd.Env, fmt.Sprintf("ENGINEHOST_SLAVE_UUID=%s", id))

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("isolate: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("isolate: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("isolate: launch %s: %w", manifest.Executable, err)
	}

	conn := transport.NewConn(stdout, stdin, profile.IOBulkSize, g.log.With("app", manifest.Name))

	g.mu.Lock()
	g.cmds[conn] = cmd
	g.mu.Unlock()

	go func() {
		if err := cmd.Wait(); err != nil {
			g.log.Debug("slave process exited", "app", manifest.Name, "error", err)
		}
	}()

	return conn, nil
}

// Signal implements Gateway. Terminate sends SIGTERM and lets the
// slave drain in flight work per its termination_timeout; Kill sends
// SIGKILL immediately.
func (g *ProcessGateway) Signal(ch model.Channel, sig Signal) error {
	conn, ok := ch.(*transport.Conn)
	if !ok {
		return fmt.Errorf("isolate: channel is not process-backed")
	}
	g.mu.Lock()
	cmd, ok := g.cmds[conn]
	g.mu.Unlock()
	if !ok || cmd.Process == nil {
		return nil
	}
	switch sig {
	case SignalTerminate:
		return cmd.Process.Signal(syscall.SIGTERM)
	case SignalKill:
		return cmd.Process.Signal(syscall.SIGKILL)
	default:
		return fmt.Errorf("isolate: unknown signal %d", sig)
	}
}

// Reap implements Gateway: closes the transport and releases bookkeeping.
func (g *ProcessGateway) Reap(ch model.Channel) error {
	conn, ok := ch.(*transport.Conn)
	if !ok {
		return fmt.Errorf("isolate: channel is not process-backed")
	}
	g.mu.Lock()
	delete(g.cmds, conn)
	g.mu.Unlock()
	return conn.Close()
}
