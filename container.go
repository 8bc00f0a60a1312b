package loom

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// registry is the provider map a container and all of its request-scoped
// children share by reference. It is append-mostly: mutation after
// steady-state operation is discouraged, and reads take the fast RLock path.
type registry struct {
	mu        sync.RWMutex
	providers map[Key]Provider
	order     []Key

	// override permits re-registering a different provider under an
	// existing key. Intended for test containers only; an overriding
	// registry is not production-safe.
	override bool
}

func newRegistry(override bool) *registry {
	return &registry{
		providers: make(map[Key]Provider),
		override:  override,
	}
}

func (r *registry) register(key Key, p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.providers[key]
	if ok {
		if existing == p {
			// Re-registering the identical provider is a no-op.
			return nil
		}
		if !r.override {
			return &DuplicateRegistrationError{
				Key:      key,
				Existing: existing.Meta(),
				Incoming: p.Meta(),
			}
		}
	}

	r.providers[key] = p
	if !ok {
		r.order = append(r.order, key)
	}
	return nil
}

func (r *registry) lookup(key Key) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[key]
	return p, ok
}

// matchToken returns all registered keys sharing the token, in registration
// order.
func (r *registry) matchToken(token Token) []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []Key
	for _, k := range r.order {
		if k.Token == token {
			matches = append(matches, k)
		}
	}
	return matches
}

func (r *registry) keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Key(nil), r.order...)
}

// flight is one in-progress instantiation of a cacheable key. Concurrent
// first-touch resolves of the same key await the owner's result instead of
// instantiating twice (strict single-flight).
type flight struct {
	done chan struct{}
	val  any
	err  error
}

// Container is the resolution and caching authority. An application
// container owns the provider registry and the singleton cache; request
// containers forked from it share the registry by reference, keep a private
// cache for request-scoped values, and delegate singleton resolution upward.
type Container struct {
	id     string
	parent *Container
	reg    *registry

	// cache maps Key -> instantiated value. Mutated only by this
	// container's own resolves; sibling request containers never touch it.
	cache sync.Map

	// flights tracks in-progress cacheable instantiations for single-flight.
	flights sync.Map

	lcMu sync.Mutex
	lc   lifecycle

	strategy DisposalStrategy
	logger   zerolog.Logger

	childrenMu sync.Mutex
	children   map[*Container]struct{}

	started  int32
	disposed int32
}

// New creates an empty application container. Most callers should prefer
// NewBuilder, which validates the dependency graph before the container
// exists; New is the direct path for tests and incremental registration.
func New(opts ...Option) *Container {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	return &Container{
		id:       uuid.NewString(),
		reg:      newRegistry(cfg.override),
		lc:       newLifecycleManager(),
		strategy: cfg.strategy,
		logger:   cfg.logger,
		children: make(map[*Container]struct{}),
	}
}

// ID returns the container's unique identifier.
func (c *Container) ID() string { return c.id }

// Parent returns the container this one was forked from, or nil for the
// application container.
func (c *Container) Parent() *Container { return c.parent }

// IsRequestScope reports whether this is a forked request container.
func (c *Container) IsRequestScope() bool { return c.parent != nil }

// root walks up to the application container.
func (c *Container) root() *Container {
	cur := c
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// Register adds a provider under its token plus the given tag. Registering
// a different provider under an occupied key fails naming both; registering
// the identical provider again is a silent no-op.
func (c *Container) Register(p Provider, tag string) error {
	if c.isDisposed() {
		return ErrContainerDisposed
	}
	if p == nil {
		return ErrProviderNil
	}

	meta := p.Meta()
	if meta == nil || meta.Token == "" {
		return ErrTokenEmpty
	}
	if !meta.Scope.IsValid() {
		return &ScopeError{Value: meta.Scope}
	}

	return c.reg.register(Key{Token: meta.Token, Tag: tag}, p)
}

// Bind registers a ClassProvider for the implementation constructor but
// stores it under the interface token, satisfying an abstraction with a
// concrete type.
//
// Example:
//
//	c.Bind(loom.TokenOf[Store](), NewPostgresStore, loom.ScopeSingleton, "")
func (c *Container) Bind(iface Token, ctor any, scope Scope, tag string, opts ...ProviderOption) error {
	if iface == "" {
		return ErrTokenEmpty
	}

	opts = append(opts, func(pc *providerConfig) { pc.token = iface })
	p, err := NewClass(ctor, scope, opts...)
	if err != nil {
		return err
	}

	return c.Register(p, tag)
}

// IsRegistered reports whether a provider exists for the token and tag.
func (c *Container) IsRegistered(token Token, tag string) bool {
	if c.isDisposed() {
		return false
	}
	_, ok := c.reg.lookup(Key{Token: token, Tag: tag})
	return ok
}

// Resolve resolves the untagged registration for a token. When only tagged
// registrations exist, a single match resolves transparently and multiple
// matches fail with an AmbiguousProviderError.
func (c *Container) Resolve(ctx context.Context, token Token) (any, error) {
	return c.resolveKey(ctx, nil, Key{Token: token}, false)
}

// ResolveTagged resolves the registration under token plus tag.
func (c *Container) ResolveTagged(ctx context.Context, token Token, tag string) (any, error) {
	return c.resolveKey(ctx, nil, Key{Token: token, Tag: tag}, false)
}

// ResolveOptional is like ResolveTagged but returns (nil, nil) when no
// provider is registered for the key.
func (c *Container) ResolveOptional(ctx context.Context, token Token, tag string) (any, error) {
	return c.resolveKey(ctx, nil, Key{Token: token, Tag: tag}, true)
}

// resolveKey is the single resolution path. rc is nil for a top-level call,
// in which case a fresh resolution stack is created before instantiation.
func (c *Container) resolveKey(ctx context.Context, rc *ResolveCtx, key Key, optional bool) (any, error) {
	if c.isDisposed() {
		return nil, ErrContainerDisposed
	}

	// Cache hit is the hot path: one sync.Map read, no locks taken.
	if v, ok := c.cache.Load(key); ok {
		return v, nil
	}

	p, err := c.findProvider(key)
	if err != nil {
		if optional && errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	meta := p.Meta()

	// Singleton resolution through a request container delegates the whole
	// call upward, so every descendant scope shares one true instance.
	if meta.Scope == ScopeSingleton && c.parent != nil {
		return c.root().resolveKey(ctx, rc, key, optional)
	}

	if _, forwards := p.(passThrough); !forwards && meta.Scope.Cacheable() {
		return c.resolveCacheable(ctx, rc, key, p)
	}

	return c.instantiate(ctx, rc, key, p)
}

// resolveCacheable instantiates a cacheable key under strict single-flight:
// concurrent first-touch callers await one instantiation and all see its
// result. A failed flight is cleared and its waiters retry from scratch; a
// cache entry exists only if Instantiate fully completed.
func (c *Container) resolveCacheable(ctx context.Context, rc *ResolveCtx, key Key, p Provider) (any, error) {
	for {
		if v, ok := c.cache.Load(key); ok {
			return v, nil
		}

		// A key already resolving on this chain must not await its own
		// flight: that is a cycle, not contention with another goroutine.
		if rc != nil {
			if err := rc.checkCycle(key); err != nil {
				return nil, err
			}
		}

		f := &flight{done: make(chan struct{})}
		if actual, loaded := c.flights.LoadOrStore(key, f); loaded {
			inflight := actual.(*flight)
			select {
			case <-inflight.done:
				if inflight.err != nil {
					continue
				}
				return inflight.val, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		v, err := c.instantiate(ctx, rc, key, p)
		if err == nil {
			c.cache.Store(key, v)
		}

		f.val, f.err = v, err
		c.flights.Delete(key)
		close(f.done)
		return v, err
	}
}

// instantiate runs the provider with cycle tracking and registers the
// instance's lifecycle capabilities. The stack entry pops on every exit
// path.
func (c *Container) instantiate(ctx context.Context, rc *ResolveCtx, key Key, p Provider) (any, error) {
	if rc == nil {
		rc = newResolveCtx(c)
	}

	if err := rc.push(key); err != nil {
		return nil, err
	}
	defer rc.pop()

	// Nested resolutions inside Instantiate go through this container.
	prev := rc.container
	rc.container = c
	defer func() { rc.container = prev }()

	v, err := p.Instantiate(ctx, rc)
	if err != nil {
		var ie *InstantiationError
		if errors.As(err, &ie) || isResolutionError(err) {
			return nil, err
		}
		return nil, &InstantiationError{Key: key, Cause: err}
	}

	_, forwards := p.(passThrough)
	if !forwards && p.Meta().Scope != ScopePooled {
		if err := c.observe(ctx, key, v); err != nil {
			return nil, err
		}
	}

	return v, nil
}

// isResolutionError reports whether err is already one of the structured
// resolution errors and should propagate unwrapped.
func isResolutionError(err error) bool {
	var (
		nf *NotFoundError
		ce *CycleError
		ae *AmbiguousProviderError
	)
	return errors.As(err, &nf) || errors.As(err, &ce) || errors.As(err, &ae) ||
		errors.Is(err, ErrContainerDisposed)
}

// observe registers the instance's declared lifecycle capabilities with the
// owning container: startup/shutdown hooks and a finalizer for disposables.
// An instance observed after the application has started gets its Start
// invoked immediately instead of registered; a Start failure fails the
// resolve, and the failed instance's other capabilities are not retained.
func (c *Container) observe(ctx context.Context, key Key, v any) error {
	if v == nil {
		return nil
	}

	if s, ok := v.(Startable); ok {
		if c.hasStarted() {
			if err := s.Start(ctx); err != nil {
				return fmt.Errorf("starting %q: %w", key.String(), err)
			}
		} else {
			c.lifecycleRW().onStartup(Hook{Name: key.String(), Run: s.Start})
		}
	}
	if s, ok := v.(Stoppable); ok {
		c.lifecycleRW().onShutdown(Hook{Name: key.String(), Run: s.Stop})
	}

	switch d := v.(type) {
	case DisposableWithContext:
		c.lifecycleRW().addFinalizer(key.String(), d.Close)
	case Disposable:
		c.lifecycleRW().addFinalizer(key.String(), func(context.Context) error { return d.Close() })
	}

	return nil
}

// findProvider looks the key up locally. An untagged lookup falls through to
// a single tagged registration; several tagged registrations without an
// untagged default are ambiguous.
func (c *Container) findProvider(key Key) (Provider, error) {
	if p, ok := c.reg.lookup(key); ok {
		return p, nil
	}

	if key.Tag == "" {
		matches := c.reg.matchToken(key.Token)
		switch len(matches) {
		case 0:
			// fall through to not-found
		case 1:
			p, _ := c.reg.lookup(matches[0])
			return p, nil
		default:
			return nil, &AmbiguousProviderError{Token: key.Token, Matches: matches}
		}
	}

	return nil, &NotFoundError{Key: key, Candidates: similarKeys(key, c.reg.keys())}
}

// lookupProvider is findProvider without error construction, for internal
// existence checks.
func (c *Container) lookupProvider(key Key) (Provider, bool) {
	p, err := c.findProvider(key)
	return p, err == nil
}

// CreateRequestScope forks a lightweight child container. The child shares
// this container's provider registry by reference, starts with an empty
// private cache, and uses the shared no-op lifecycle until something
// registers a hook or finalizer. Request scopes are created many times per
// second; the fork allocates no locks, hooks, or registry copies.
func (c *Container) CreateRequestScope() *Container {
	child := &Container{
		id:       uuid.NewString(),
		parent:   c,
		reg:      c.reg,
		lc:       sharedNopLifecycle,
		strategy: c.strategy,
		logger:   c.logger,
	}

	c.childrenMu.Lock()
	if c.children == nil {
		c.children = make(map[*Container]struct{})
	}
	c.children[child] = struct{}{}
	c.childrenMu.Unlock()

	return child
}

// lifecycleRW returns the container's lifecycle, swapping the shared no-op
// flyweight for a real manager on first mutating use.
func (c *Container) lifecycleRW() lifecycle {
	c.lcMu.Lock()
	defer c.lcMu.Unlock()

	if c.lc == sharedNopLifecycle {
		c.lc = newLifecycleManager()
	}
	return c.lc
}

// OnStartup registers a startup hook. Higher priority runs first; ties run
// in registration order.
func (c *Container) OnStartup(h Hook) {
	c.lifecycleRW().onStartup(h)
}

// OnShutdown registers a shutdown hook.
func (c *Container) OnShutdown(h Hook) {
	c.lifecycleRW().onShutdown(h)
}

// AddFinalizer registers a cleanup callback run when the container shuts
// down, per the configured disposal strategy.
func (c *Container) AddFinalizer(name string, run func(ctx context.Context) error) {
	c.lifecycleRW().addFinalizer(name, run)
}

// Start runs the startup hooks in priority order, attempting every hook and
// aggregating failures. After Start, instances resolved with a Startable
// capability are started at resolve time.
func (c *Container) Start(ctx context.Context) error {
	if c.isDisposed() {
		return ErrContainerDisposed
	}
	atomic.StoreInt32(&c.started, 1)
	return c.currentLifecycle().runStartupHooks(ctx)
}

// hasStarted reports whether the application container has run its startup
// phase. Request scopes follow the root: they have no startup phase of
// their own.
func (c *Container) hasStarted() bool {
	return atomic.LoadInt32(&c.root().started) != 0
}

// Shutdown runs shutdown hooks, then finalizers per the configured disposal
// strategy, then clears the cache and finalizer list. Hook and finalizer
// failures are logged and never abort the remainder; only provider Shutdown
// failures are reported. Repeated calls are safe no-ops, and a request
// container with nothing to clean up short-circuits immediately.
func (c *Container) Shutdown(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.disposed, 0, 1) {
		return nil
	}

	if c.parent != nil {
		c.parent.forgetChild(c)

		// The common case: a request came and went without instantiating
		// anything that needs cleanup.
		if c.currentLifecycle() == sharedNopLifecycle && c.cacheEmpty() {
			return nil
		}
	}

	// Children first: request-scoped resources must not outlive the
	// application container they delegate to.
	c.childrenMu.Lock()
	children := make([]*Container, 0, len(c.children))
	for child := range c.children {
		children = append(children, child)
	}
	c.children = nil
	c.childrenMu.Unlock()

	for _, child := range children {
		if err := child.Shutdown(ctx); err != nil {
			c.logger.Error().Err(err).Str("scope", child.id).Msg("request scope shutdown failed")
		}
	}

	lc := c.currentLifecycle()
	lc.runShutdownHooks(ctx, c.logger)
	lc.runFinalizers(ctx, c.strategy, c.logger)
	lc.reset()

	c.cache.Range(func(k, _ any) bool {
		c.cache.Delete(k)
		return true
	})

	// Providers are owned by the application container; request scopes must
	// not drain shared pools.
	if c.parent != nil {
		return nil
	}

	var errs []error
	for _, key := range c.reg.keys() {
		if p, ok := c.reg.lookup(key); ok {
			if err := p.Shutdown(); err != nil {
				errs = append(errs, fmt.Errorf("provider %q: %w", key.String(), err))
			}
		}
	}

	if len(errs) > 0 {
		return &DisposalError{Context: "container", Errors: errs}
	}
	return nil
}

// Keys returns every registered key in registration order.
func (c *Container) Keys() []Key {
	return c.reg.keys()
}

// ProviderFor returns the provider registered under the key, if any.
func (c *Container) ProviderFor(key Key) (Provider, bool) {
	return c.reg.lookup(key)
}

func (c *Container) currentLifecycle() lifecycle {
	c.lcMu.Lock()
	defer c.lcMu.Unlock()
	return c.lc
}

func (c *Container) forgetChild(child *Container) {
	c.childrenMu.Lock()
	delete(c.children, child)
	c.childrenMu.Unlock()
}

func (c *Container) cacheEmpty() bool {
	empty := true
	c.cache.Range(func(any, any) bool {
		empty = false
		return false
	})
	return empty
}

func (c *Container) isDisposed() bool {
	return atomic.LoadInt32(&c.disposed) != 0
}

// Resolve resolves the untagged registration for T's derived token,
// handling the type assertion.
//
// Example:
//
//	logger, err := loom.Resolve[*Logger](ctx, c)
func Resolve[T any](ctx context.Context, c *Container) (T, error) {
	return ResolveTagged[T](ctx, c, "")
}

// ResolveTagged resolves the registration for T's derived token under the
// given tag.
func ResolveTagged[T any](ctx context.Context, c *Container, tag string) (T, error) {
	var zero T

	if c == nil {
		return zero, ErrContainerDisposed
	}

	v, err := c.ResolveTagged(ctx, TokenOf[T](), tag)
	if err != nil {
		return zero, err
	}

	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("resolved %q holds %T, not the requested type", TokenOf[T](), v)
	}
	return out, nil
}

// MustResolve is Resolve but panics on failure. Useful during application
// initialization where a missing service is fatal.
func MustResolve[T any](ctx context.Context, c *Container) T {
	v, err := Resolve[T](ctx, c)
	if err != nil {
		panic(fmt.Sprintf("loom: failed to resolve service: %v", err))
	}
	return v
}
