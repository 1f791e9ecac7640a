// Package host implements the multi-tenant supplement described in
// SPEC_FULL.md's SUPPLEMENTED FEATURES: one Engine per configured app,
// started and stopped together, with apps newly listed in a reloaded
// config file started without a restart. Grounded on the cocaine-core
// context_t, which owns the process-wide app table that this package
// is the idiomatic Go translation of.
package host

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/outpostrun/enginehost/internal/engine"
	"github.com/outpostrun/enginehost/internal/isolate"
)

// Host owns one Engine per hosted app.
type Host struct {
	log       *slog.Logger
	registry  *isolate.Registry
	publisher engine.Publisher

	mu      sync.RWMutex
	engines map[string]*engine.Engine
	started bool
}

// New returns an empty host. Apps are added via Add (or Reconcile). The
// registry resolves each manifest's Category to the isolate.Gateway
// that runs it, so a host can mix apps of every registered category
// (e.g. "process" and "process_breaker").
// publisher may be nil, in which case engines run with no external
// lifecycle event export.
func New(log *slog.Logger, registry *isolate.Registry, publisher engine.Publisher) *Host {
	return &Host{
		log:       log,
		registry:  registry,
		publisher: publisher,
		engines:   make(map[string]*engine.Engine),
	}
}

// Add constructs and registers an Engine for one app's manifest and
// profile. Add does not start the engine: Start does, or Reconcile for
// apps added after the host has started.
func (h *Host) Add(manifest *isolate.Manifest, profile isolate.Profile) (*engine.Engine, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	gateway, err := h.registry.Build(manifest.Category)
	if err != nil {
		return nil, fmt.Errorf("host: app %s: %w", manifest.Name, err)
	}

	opts := []engine.Option{
		engine.WithLogger(h.log.With("app", manifest.Name)),
		engine.WithGateway(gateway),
	}
	if h.publisher != nil {
		opts = append(opts, engine.WithPublisher(h.publisher))
	}

	e := engine.New(manifest, profile, opts...)
	h.engines[manifest.Name] = e
	return e, nil
}

// Reconcile adds any manifest not already registered (matched by name),
// starting it immediately if the host itself has already started.
// Manifests for already-registered apps are not re-applied — changing
// an already-running app's executable or profile still requires a
// restart; this only picks up apps added to the config file's apps
// list since boot, per SPEC_FULL.md's hot-reload ambient-stack entry.
func (h *Host) Reconcile(manifests []isolate.Manifest, profile isolate.Profile) error {
	h.mu.RLock()
	var fresh []isolate.Manifest
	for i := range manifests {
		if _, ok := h.engines[manifests[i].Name]; !ok {
			fresh = append(fresh, manifests[i])
		}
	}
	started := h.started
	h.mu.RUnlock()

	for i := range fresh {
		e, err := h.Add(&fresh[i], profile)
		if err != nil {
			return err
		}
		if started {
			if err := e.Start(); err != nil {
				return fmt.Errorf("host: start reconciled app %s: %w", fresh[i].Name, err)
			}
			h.log.Info("reconciled new app from config reload", "app", fresh[i].Name)
		}
	}
	return nil
}

// Engine returns the named app's engine, if registered.
func (h *Host) Engine(name string) (*engine.Engine, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.engines[name]
	return e, ok
}

// Start boots every registered app's engine. If any fails to start,
// the ones already started are stopped before returning the error.
func (h *Host) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	started := make([]*engine.Engine, 0, len(h.engines))
	for name, e := range h.engines {
		if err := e.Start(); err != nil {
			for _, s := range started {
				_ = s.Stop()
			}
			return fmt.Errorf("host: start app %s: %w", name, err)
		}
		started = append(started, e)
	}
	h.started = true
	return nil
}

// Stop gracefully stops every app's engine, logging (not failing) on
// any individual error so one wedged app doesn't block the others.
func (h *Host) Stop() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var wg sync.WaitGroup
	for name, e := range h.engines {
		wg.Add(1)
		go func(name string, e *engine.Engine) {
			defer wg.Done()
			if err := e.Stop(); err != nil {
				h.log.Warn("app stop reported an error", "app", name, "error", err)
			}
		}(name, e)
	}
	wg.Wait()
}

// Names returns the registered app names.
func (h *Host) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.engines))
	for name := range h.engines {
		names = append(names, name)
	}
	return names
}
