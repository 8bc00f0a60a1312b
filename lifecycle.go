package loom

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// HookPhase identifies which hook list a hook belongs to.
type HookPhase int

const (
	PhaseStartup HookPhase = iota
	PhaseShutdown
)

func (p HookPhase) String() string {
	switch p {
	case PhaseStartup:
		return "startup"
	case PhaseShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Hook is one lifecycle callback. Higher priority runs first; hooks with
// equal priority run in registration order.
type Hook struct {
	Name     string
	Priority int
	Run      func(ctx context.Context) error
}

// DisposalStrategy selects the order finalizers run in at shutdown.
type DisposalStrategy int

const (
	// DisposeLIFO runs finalizers in reverse registration order, the
	// default: resources close before the resources they were built from.
	DisposeLIFO DisposalStrategy = iota

	// DisposeFIFO runs finalizers in registration order.
	DisposeFIFO

	// DisposeParallel runs all finalizers concurrently, tolerating
	// independent failures.
	DisposeParallel
)

// finalizer is one cleanup callback owned by a container.
type finalizer struct {
	name string
	run  func(ctx context.Context) error
}

// lifecycle is what a container calls into for hook and finalizer handling.
// Request containers share a no-op flyweight until something actually needs
// cleanup; application containers own a real manager.
type lifecycle interface {
	onStartup(h Hook)
	onShutdown(h Hook)
	addFinalizer(name string, run func(ctx context.Context) error)
	runStartupHooks(ctx context.Context) error
	runShutdownHooks(ctx context.Context, log zerolog.Logger)
	runFinalizers(ctx context.Context, strategy DisposalStrategy, log zerolog.Logger)
	empty() bool
	reset()
}

// lifecycleManager owns the ordered startup/shutdown hook lists and the
// finalizer list for one container.
type lifecycleManager struct {
	mu         sync.Mutex
	startup    []Hook
	shutdown   []Hook
	finalizers []finalizer
}

func newLifecycleManager() *lifecycleManager {
	return &lifecycleManager{}
}

func (m *lifecycleManager) onStartup(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startup = insertHook(m.startup, h)
}

func (m *lifecycleManager) onShutdown(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = insertHook(m.shutdown, h)
}

// insertHook appends then re-sorts descending by priority. The sort is
// stable, so ties keep insertion order.
func insertHook(hooks []Hook, h Hook) []Hook {
	hooks = append(hooks, h)
	sort.SliceStable(hooks, func(i, j int) bool {
		return hooks[i].Priority > hooks[j].Priority
	})
	return hooks
}

func (m *lifecycleManager) addFinalizer(name string, run func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalizers = append(m.finalizers, finalizer{name: name, run: run})
}

// runStartupHooks runs every startup hook in priority order. Every hook is
// attempted even after a failure; failures come back as one AggregateError
// so one broken hook cannot mask diagnosis of another.
func (m *lifecycleManager) runStartupHooks(ctx context.Context) error {
	m.mu.Lock()
	hooks := append([]Hook(nil), m.startup...)
	m.mu.Unlock()

	var errs []error
	for _, h := range hooks {
		if err := h.Run(ctx); err != nil {
			errs = append(errs, fmt.Errorf("hook %q: %w", h.Name, err))
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Context: "startup hooks", Errors: errs}
	}

	return nil
}

// runShutdownHooks runs every shutdown hook in priority order. A failing
// hook is logged and does not stop subsequent hooks or finalizers.
func (m *lifecycleManager) runShutdownHooks(ctx context.Context, log zerolog.Logger) {
	m.mu.Lock()
	hooks := append([]Hook(nil), m.shutdown...)
	m.mu.Unlock()

	for _, h := range hooks {
		if err := h.Run(ctx); err != nil {
			log.Error().Err(err).Str("hook", h.Name).Msg("shutdown hook failed")
		}
	}
}

// runFinalizers dispatches the finalizer list per the configured strategy.
// Failures are logged, never propagated: shutdown always runs to the end.
func (m *lifecycleManager) runFinalizers(ctx context.Context, strategy DisposalStrategy, log zerolog.Logger) {
	m.mu.Lock()
	finalizers := m.finalizers
	m.finalizers = nil
	m.mu.Unlock()

	logErr := func(f finalizer, err error) {
		if err != nil {
			log.Error().Err(err).Str("finalizer", f.name).Msg("finalizer failed")
		}
	}

	switch strategy {
	case DisposeFIFO:
		for _, f := range finalizers {
			logErr(f, f.run(ctx))
		}
	case DisposeParallel:
		var wg sync.WaitGroup
		for _, f := range finalizers {
			wg.Add(1)
			go func(f finalizer) {
				defer wg.Done()
				logErr(f, f.run(ctx))
			}(f)
		}
		wg.Wait()
	default: // DisposeLIFO
		for i := len(finalizers) - 1; i >= 0; i-- {
			logErr(finalizers[i], finalizers[i].run(ctx))
		}
	}
}

func (m *lifecycleManager) empty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.startup) == 0 && len(m.shutdown) == 0 && len(m.finalizers) == 0
}

func (m *lifecycleManager) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startup = nil
	m.shutdown = nil
	m.finalizers = nil
}

// nopLifecycle is the shared do-nothing flyweight handed to freshly-forked
// request containers. Request scopes are created many times per second;
// allocating a real manager per request would be waste when most requests
// never register a hook or finalizer. The container swaps in a real manager
// lazily on first use.
type nopLifecycle struct{}

var sharedNopLifecycle lifecycle = nopLifecycle{}

func (nopLifecycle) onStartup(Hook)                                              {}
func (nopLifecycle) onShutdown(Hook)                                             {}
func (nopLifecycle) addFinalizer(string, func(context.Context) error)            {}
func (nopLifecycle) runStartupHooks(context.Context) error                       { return nil }
func (nopLifecycle) runShutdownHooks(context.Context, zerolog.Logger)            {}
func (nopLifecycle) runFinalizers(context.Context, DisposalStrategy, zerolog.Logger) {}
func (nopLifecycle) empty() bool                                                 { return true }
func (nopLifecycle) reset()                                                      {}
