package loom

import (
	"context"
	"errors"
	"fmt"

	"github.com/mkarren/loom/internal/graph"
)

// Builder accumulates provider declarations, validates the whole system as
// a graph, and only then produces a container. Unrecoverable
// misconfiguration (missing dependencies, cycles, scope violations,
// cross-module violations) fails the build before any traffic is served.
//
// Example:
//
//	c, err := loom.NewBuilder().
//	    AddModule(storage).
//	    AddModule(api).
//	    Provide(NewServer, loom.ScopeSingleton).
//	    Build(ctx)
type Builder struct {
	opts    []Option
	modules []*Module
	direct  []pendingReg
	lazy    bool
	err     error // first registration error, sticky
}

type pendingReg struct {
	provider Provider
	tag      string
}

// NewBuilder creates a builder. opts configure the resulting container.
func NewBuilder(opts ...Option) *Builder {
	return &Builder{opts: opts}
}

// AddModule queues a module's declarations.
func (b *Builder) AddModule(m *Module) *Builder {
	if m != nil {
		b.modules = append(b.modules, m)
	}
	return b
}

// Register queues an already-constructed provider.
func (b *Builder) Register(p Provider, tag string) *Builder {
	if p == nil {
		b.fail(ErrProviderNil)
		return b
	}
	b.direct = append(b.direct, pendingReg{provider: p, tag: tag})
	return b
}

// Provide queues a class provider. Constructor analysis runs immediately,
// so a missing dependency annotation fails here, not at build.
func (b *Builder) Provide(ctor any, scope Scope, opts ...ProviderOption) *Builder {
	file, line := callerLocation(1)
	p, err := NewClass(ctor, scope, append(opts, withLocation(file, line))...)
	if err != nil {
		b.fail(err)
		return b
	}
	return b.Register(p, "")
}

// ProvideFactory queues a factory provider under an explicit token.
func (b *Builder) ProvideFactory(token Token, factory any, scope Scope, opts ...ProviderOption) *Builder {
	file, line := callerLocation(1)
	p, err := NewFactory(token, factory, scope, append(opts, withLocation(file, line))...)
	if err != nil {
		b.fail(err)
		return b
	}
	return b.Register(p, "")
}

// ProvideValue queues a constant.
func (b *Builder) ProvideValue(token Token, value any, opts ...ProviderOption) *Builder {
	file, line := callerLocation(1)
	return b.Register(NewValue(token, value, append(opts, withLocation(file, line))...), "")
}

// Bind queues a class provider stored under the interface token.
func (b *Builder) Bind(iface Token, ctor any, scope Scope, tag string, opts ...ProviderOption) *Builder {
	file, line := callerLocation(1)
	opts = append(opts, withLocation(file, line), func(pc *providerConfig) { pc.token = iface })
	p, err := NewClass(ctor, scope, opts...)
	if err != nil {
		b.fail(err)
		return b
	}
	return b.Register(p, tag)
}

// LazySingletons defers singleton instantiation to first resolve instead of
// creating every singleton eagerly at build time.
func (b *Builder) LazySingletons() *Builder {
	b.lazy = true
	return b
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build registers everything, validates the dependency graph, constructs
// the application container, eagerly instantiates singletons in dependency
// order, and runs startup hooks. Any failure aborts the build.
func (b *Builder) Build(ctx context.Context) (*Container, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if b.err != nil {
		return nil, &BuildError{Phase: "registration", Cause: b.err}
	}

	cfg := defaultConfig()
	for _, opt := range b.opts {
		opt(cfg)
	}
	if cfg.buildTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.buildTimeout)
		defer cancel()
	}

	c := New(b.opts...)

	for _, m := range b.modules {
		if err := m.apply(c); err != nil {
			return nil, &BuildError{Phase: "registration", Cause: err}
		}
	}
	for _, reg := range b.direct {
		if err := c.Register(reg.provider, reg.tag); err != nil {
			return nil, &BuildError{Phase: "registration", Cause: err}
		}
	}

	g, err := buildGraph(c, collectRequires(b.modules))
	if err != nil {
		return nil, &BuildError{Phase: "graph", Cause: err}
	}

	if cycles := g.DetectCycles(); len(cycles) > 0 {
		return nil, &BuildError{Phase: "graph", Cause: convertCycleError(g, cycles)}
	}

	if err := validateScopes(c); err != nil {
		return nil, &BuildError{Phase: "scope-validation", Cause: err}
	}

	if err := validateLazyTargets(c); err != nil {
		return nil, &BuildError{Phase: "scope-validation", Cause: err}
	}

	if violations := g.ValidateModules(); len(violations) > 0 {
		v := violations[0]
		return nil, &BuildError{Phase: "cross-module", Cause: &CrossModuleError{
			ConsumerModule: v.ConsumerModule,
			OwnerModule:    v.OwnerModule,
			Token:          ParseKey(string(v.Dependency)),
		}}
	}

	if !b.lazy {
		if err := createSingletons(ctx, c, g); err != nil {
			return nil, err
		}
	}

	if err := c.Start(ctx); err != nil {
		return nil, &BuildError{Phase: "startup", Cause: err}
	}

	return c, nil
}

// collectRequires gathers the prerequisite declarations of every module,
// included submodules too. Several Module values sharing one name merge
// their lists.
func collectRequires(modules []*Module) map[string][]string {
	requires := make(map[string][]string)

	var walk func(m *Module)
	walk = func(m *Module) {
		for _, sub := range m.includes {
			walk(sub)
		}
		if len(m.requires) > 0 {
			requires[m.name] = append(requires[m.name], m.requires...)
		}
	}
	for _, m := range modules {
		walk(m)
	}

	return requires
}

// buildGraph assembles the static graph from the container's registry. A
// non-optional dependency without a matching registration is unsatisfiable
// and fails here.
func buildGraph(c *Container, requires map[string][]string) (*graph.DependencyGraph, error) {
	g := graph.New()

	for _, key := range c.reg.keys() {
		p, _ := c.reg.lookup(key)
		meta := p.Meta()

		var deps, lazyDeps []graph.NodeID
		for _, dep := range p.Dependencies() {
			target, err := c.effectiveKey(dep.Key)
			if err != nil {
				if dep.Optional && errors.Is(err, ErrNotFound) {
					continue
				}
				return nil, fmt.Errorf("dependency of %q: %w", key.String(), err)
			}

			if dep.Lazy {
				lazyDeps = append(lazyDeps, graph.NodeID(target.String()))
			} else {
				deps = append(deps, graph.NodeID(target.String()))
			}
		}

		node := graph.Node{
			ID:       graph.NodeID(key.String()),
			Module:   meta.Module,
			Requires: requires[meta.Module],
			Location: meta.Location(),
		}
		if err := g.AddNode(node, deps, lazyDeps); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// effectiveKey maps a declared dependency key to the registered key it will
// resolve as, applying the same single-tagged-match fallback as resolution.
func (c *Container) effectiveKey(key Key) (Key, error) {
	if _, ok := c.reg.lookup(key); ok {
		return key, nil
	}

	if key.Tag == "" {
		matches := c.reg.matchToken(key.Token)
		switch len(matches) {
		case 1:
			return matches[0], nil
		default:
			if len(matches) > 1 {
				return Key{}, &AmbiguousProviderError{Token: key.Token, Matches: matches}
			}
		}
	}

	return Key{}, &NotFoundError{Key: key, Candidates: similarKeys(key, c.reg.keys())}
}

// validateScopes enforces the injection-compatibility table on every edge:
// a dependency scoped shorter than its consumer is rejected unless the
// dependency's provider permits lazy capture or the edge itself is lazy.
func validateScopes(c *Container) error {
	for _, key := range c.reg.keys() {
		p, _ := c.reg.lookup(key)
		consumerScope := p.Meta().Scope

		for _, dep := range p.Dependencies() {
			if dep.Lazy {
				continue
			}

			target, err := c.effectiveKey(dep.Key)
			if err != nil {
				continue // absence already handled by the graph phase
			}

			dp, _ := c.reg.lookup(target)
			depMeta := dp.Meta()
			if depMeta.Scope.CanInjectInto(consumerScope) || depMeta.AllowLazy {
				continue
			}

			return &ScopeViolationError{
				Consumer:      key,
				ConsumerScope: consumerScope,
				Dependency:    target,
				DepScope:      depMeta.Scope,
			}
		}
	}

	return nil
}

// validateLazyTargets rejects lazy proxies whose target does not permit
// lazy resolution.
func validateLazyTargets(c *Container) error {
	for _, key := range c.reg.keys() {
		p, _ := c.reg.lookup(key)
		proxy, ok := p.(*LazyProxyProvider)
		if !ok {
			continue
		}

		target, err := c.effectiveKey(proxy.Target())
		if err != nil {
			return fmt.Errorf("lazy proxy %q: %w", key.String(), err)
		}

		tp, _ := c.reg.lookup(target)
		if !tp.Meta().AllowLazy {
			return fmt.Errorf("lazy proxy %q: %w: %s", key.String(), ErrLazyNotPermitted, target.String())
		}
	}

	return nil
}

// createSingletons instantiates every singleton in topological order so
// dependencies exist before their dependents.
func createSingletons(ctx context.Context, c *Container, g *graph.DependencyGraph) error {
	sorted, err := g.TopologicalSort()
	if err != nil {
		// Unreachable after DetectCycles passed, but kept precise.
		return &BuildError{Phase: "graph", Cause: err}
	}

	for _, id := range sorted {
		select {
		case <-ctx.Done():
			return &BuildError{Phase: "singleton-creation", Cause: ctx.Err()}
		default:
		}

		key := ParseKey(string(id))
		p, ok := c.reg.lookup(key)
		if !ok {
			continue
		}

		if p.Meta().Scope != ScopeSingleton {
			continue
		}
		if _, forwards := p.(passThrough); forwards {
			continue
		}

		if _, err := c.resolveKey(ctx, nil, key, false); err != nil {
			return &BuildError{Phase: "singleton-creation", Cause: err}
		}
	}

	return nil
}

// convertCycleError lifts the internal graph cycle report into the public
// error type.
func convertCycleError(g *graph.DependencyGraph, cycles [][]graph.NodeID) error {
	first := cycles[0]

	members := make([]Key, 0, len(first))
	locations := make(map[string]string)
	for _, id := range first {
		key := ParseKey(string(id))
		members = append(members, key)
		if n := g.Node(id); n != nil && n.Location != "" {
			locations[key.String()] = n.Location
		}
	}

	return &CycleError{Members: members, Locations: locations}
}
