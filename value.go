package loom

import (
	"context"
	"reflect"
	"sync"

	"github.com/mkarren/loom/internal/typecache"
)

// ValueProvider returns a pre-bound constant. It is implicitly singleton and
// its value is never recomputed.
type ValueProvider struct {
	meta  *ProviderMeta
	value any
}

// NewValue binds a constant value to a token.
//
// Example:
//
//	p := loom.NewValue("answer", 42)
func NewValue(token Token, value any, opts ...ProviderOption) *ValueProvider {
	cfg := applyProviderOptions(opts)

	qualified := ""
	if value != nil {
		qualified = typecache.Name(reflect.TypeOf(value))
	}

	meta := buildMeta(cfg, token, ScopeSingleton, qualified, 1)
	return &ValueProvider{meta: meta, value: value}
}

func (p *ValueProvider) Meta() *ProviderMeta { return p.meta }

func (p *ValueProvider) Dependencies() []Dep { return nil }

func (p *ValueProvider) Instantiate(ctx context.Context, rc *ResolveCtx) (any, error) {
	return p.value, nil
}

func (p *ValueProvider) Shutdown() error { return nil }

// AliasProvider forwards resolution to a different key without creating a
// second instance. The aliased value is cached (if cacheable) under the
// target key only.
type AliasProvider struct {
	meta   *ProviderMeta
	target Key
}

// NewAlias registers token as another name for the target key.
func NewAlias(token Token, target Key, opts ...ProviderOption) *AliasProvider {
	cfg := applyProviderOptions(opts)
	meta := buildMeta(cfg, token, ScopeTransient, string(target.Token), 1)
	return &AliasProvider{meta: meta, target: target}
}

func (p *AliasProvider) Meta() *ProviderMeta { return p.meta }

func (p *AliasProvider) Dependencies() []Dep {
	return []Dep{{Key: p.target}}
}

func (p *AliasProvider) Instantiate(ctx context.Context, rc *ResolveCtx) (any, error) {
	return rc.container.resolveKey(ctx, rc, p.target, false)
}

func (p *AliasProvider) Shutdown() error { return nil }

func (p *AliasProvider) passThrough() {}

// Target returns the key this alias forwards to.
func (p *AliasProvider) Target() Key { return p.target }

// Deferred is the handle a lazy proxy resolves to. The underlying value is
// produced on first Get and memoized; a failed Get is retried on the next
// call and never memoized.
type Deferred struct {
	mu       sync.Mutex
	resolved bool
	value    any
	resolve  func(ctx context.Context) (any, error)
}

func newDeferred(resolve func(ctx context.Context) (any, error)) *Deferred {
	return &Deferred{resolve: resolve}
}

// Get resolves the underlying value, triggering actual resolution on first
// use.
func (d *Deferred) Get(ctx context.Context) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.resolved {
		return d.value, nil
	}

	v, err := d.resolve(ctx)
	if err != nil {
		return nil, err
	}

	d.value = v
	d.resolved = true
	return v, nil
}

// Resolved reports whether the value has been produced yet.
func (d *Deferred) Resolved() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resolved
}

// LazyProxyProvider produces a *Deferred that postpones resolution of the
// target until first use. It exists solely to break declared cycles, so the
// target provider must be registered with AllowLazy; the build phase rejects
// the proxy otherwise. The edge to the target is marked lazy and excluded
// from static cycle analysis.
type LazyProxyProvider struct {
	meta   *ProviderMeta
	target Key
}

// NewLazyProxy registers token as a deferred handle on the target key.
func NewLazyProxy(token Token, target Key, opts ...ProviderOption) *LazyProxyProvider {
	cfg := applyProviderOptions(opts)
	meta := buildMeta(cfg, token, ScopeTransient, string(target.Token), 1)
	return &LazyProxyProvider{meta: meta, target: target}
}

func (p *LazyProxyProvider) Meta() *ProviderMeta { return p.meta }

func (p *LazyProxyProvider) Dependencies() []Dep {
	return []Dep{{Key: p.target, Lazy: true}}
}

func (p *LazyProxyProvider) Instantiate(ctx context.Context, rc *ResolveCtx) (any, error) {
	target, ok := rc.container.lookupProvider(p.target)
	if ok && !target.Meta().AllowLazy {
		return nil, &InstantiationError{
			Key:   Key{Token: p.meta.Token},
			Cause: ErrLazyNotPermitted,
		}
	}

	return rc.deferred(p.target), nil
}

func (p *LazyProxyProvider) Shutdown() error { return nil }

func (p *LazyProxyProvider) passThrough() {}

// Target returns the key the proxy defers to.
func (p *LazyProxyProvider) Target() Key { return p.target }

// ScopedProvider reinterprets an existing provider's effective scope without
// altering its instantiation behavior.
type ScopedProvider struct {
	meta  *ProviderMeta
	inner Provider
}

// NewScoped wraps inner with a different scope. Useful for narrowing a
// shared provider definition to request scope in one registry.
func NewScoped(inner Provider, scope Scope) *ScopedProvider {
	meta := inner.Meta().clone()
	meta.Scope = scope
	return &ScopedProvider{meta: meta, inner: inner}
}

func (p *ScopedProvider) Meta() *ProviderMeta { return p.meta }

func (p *ScopedProvider) Dependencies() []Dep { return p.inner.Dependencies() }

func (p *ScopedProvider) Instantiate(ctx context.Context, rc *ResolveCtx) (any, error) {
	return p.inner.Instantiate(ctx, rc)
}

func (p *ScopedProvider) Shutdown() error { return p.inner.Shutdown() }

// Unwrap returns the wrapped provider.
func (p *ScopedProvider) Unwrap() Provider { return p.inner }
