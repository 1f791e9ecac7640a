// Package isolate implements the isolate gateway (spec.md §4.8,
// component C8): the abstraction the pool spawns slave processes
// through. Grounded on the cocaine repository_t/isolate_t split (a
// category-keyed factory producing a handle to a sandboxed process) and
// on the teacher's transport package for the "construct a typed
// category, decorate with resilience" shape.
package isolate

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/outpostrun/enginehost/internal/domain/model"
)

// Manifest describes one app's executable and how to invoke it (spec
// §2 "Manifest"). It is the unit the control plane loads from disk.
type Manifest struct {
	Name       string            `mapstructure:"name"`
	Category   string            `mapstructure:"isolate"`
	Executable string            `mapstructure:"executable"`
	Args       []string          `mapstructure:"args"`
	Env        map[string]string `mapstructure:"env"`
	Endpoint   string            `mapstructure:"endpoint"`
}

// Profile carries the tunables spec §6 lists for one engine instance.
type Profile struct {
	PoolLimit         int           `mapstructure:"pool_limit"`
	Concurrency       int           `mapstructure:"concurrency"`
	QueueLimit        int           `mapstructure:"queue_limit"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
	StartupTimeout    time.Duration `mapstructure:"startup_timeout"`
	TerminationTimeout time.Duration `mapstructure:"termination_timeout"`
	IOBulkSize        int           `mapstructure:"io_bulk_size"`
}

// Signal is sent to a running slave out of band from the frame stream.
type Signal int

const (
	SignalTerminate Signal = iota
	SignalKill
)

// Gateway spawns, signals and reaps slave processes. Implementations
// are category-keyed (spec's "isolate" manifest field): a process
// backend, a container backend, anything that can produce a duplex
// model.Channel.
type Gateway interface {
	// Spawn launches one slave instance bound to the given UUID (passed
	// through to the child so its Handshake frame can echo it back for
	// the engine to verify) and returns the channel the reactor will use
	// to write frames to it. Spawn must not block past launch; handshake
	// completion is observed separately by the reactor.
	Spawn(ctx context.Context, id uuid.UUID, manifest *Manifest, profile *Profile) (model.Channel, error)
	// Signal delivers an out-of-band control signal to a running slave.
	Signal(ch model.Channel, sig Signal) error
	// Reap releases OS-level resources once the reactor has observed the
	// slave's channel close (process exit, socket EOF).
	Reap(ch model.Channel) error
}
