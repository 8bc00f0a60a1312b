package loom

import (
	"context"
	"fmt"
	"reflect"
	"runtime"

	"github.com/mkarren/loom/internal/typecache"
)

// Provider is the instantiation-strategy contract. A provider knows how to
// produce a value for its token, which other tokens it needs first, and how
// to release whatever it holds at shutdown.
//
// Providers are created once, at registry-build time, and live for the
// process. All implementations in this package are stateless except
// PoolProvider, which owns its bounded pool.
type Provider interface {
	// Meta returns the immutable description of this provider.
	Meta() *ProviderMeta

	// Dependencies returns the declared dependencies in declaration order.
	// Each is resolved through the current container before construction.
	Dependencies() []Dep

	// Instantiate produces a value. It may resolve further dependencies
	// through rc, recursively, and may block on ctx (a pool wait, a slow
	// factory). A returned error must leave no partial state behind.
	Instantiate(ctx context.Context, rc *ResolveCtx) (any, error)

	// Shutdown releases provider-owned resources. It is idempotent.
	Shutdown() error
}

// passThrough marks providers that forward resolution to another key rather
// than constructing a value. The container skips caching and capability
// handling for these: the nested resolve already did both.
type passThrough interface {
	passThrough()
}

var errType = reflect.TypeOf((*error)(nil)).Elem()
var ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()

// ProviderOption configures provider construction.
type ProviderOption func(*providerConfig)

type providerConfig struct {
	name      string
	tags      []string
	module    string
	version   string
	allowLazy bool
	deps      []Dep // explicit declaration, replaces reflected list
	hasDeps   bool
	token     Token // override for the registration token
	tagByIdx  map[int]string
	optByIdx  map[int]bool

	// declaration site override, used by the module builder so locations
	// point at user code rather than builder internals
	locFile string
	locLine int
}

// withLocation overrides the declaration site recorded in the metadata.
func withLocation(file string, line int) ProviderOption {
	return func(c *providerConfig) {
		c.locFile = file
		c.locLine = line
	}
}

// WithName sets the human-readable provider name.
func WithName(name string) ProviderOption {
	return func(c *providerConfig) { c.name = name }
}

// WithProviderTags attaches descriptive labels for tooling. These do not
// affect key lookup.
func WithProviderTags(tags ...string) ProviderOption {
	return func(c *providerConfig) { c.tags = append(c.tags, tags...) }
}

// WithModule records the declaring module. The module builder applies this
// automatically.
func WithModule(name string) ProviderOption {
	return func(c *providerConfig) { c.module = name }
}

// WithVersion records the declaring module's version.
func WithVersion(v string) ProviderOption {
	return func(c *providerConfig) { c.version = v }
}

// AllowLazy permits the provider to be the target of a lazy proxy. Required
// for any provider that participates in a deliberately-broken cycle.
func AllowLazy() ProviderOption {
	return func(c *providerConfig) { c.allowLazy = true }
}

// DependsOn replaces the reflected dependency list with an explicit one.
// The list length must match the constructor's injectable parameter count;
// dependencies resolve in declared order before construction.
func DependsOn(deps ...Dep) ProviderOption {
	return func(c *providerConfig) {
		c.deps = deps
		c.hasDeps = true
	}
}

// TagParam resolves the constructor parameter at index i (counting
// injectable parameters only) through the given tag.
func TagParam(i int, tag string) ProviderOption {
	return func(c *providerConfig) {
		if c.tagByIdx == nil {
			c.tagByIdx = make(map[int]string)
		}
		c.tagByIdx[i] = tag
	}
}

// OptionalParam marks the constructor parameter at index i as optional: the
// zero value is injected when no provider is registered.
func OptionalParam(i int) ProviderOption {
	return func(c *providerConfig) {
		if c.optByIdx == nil {
			c.optByIdx = make(map[int]bool)
		}
		c.optByIdx[i] = true
	}
}

// ctorInfo is the one-time reflection analysis of a constructor function.
type ctorInfo struct {
	fn         reflect.Value
	fnType     reflect.Type
	hasCtx     bool // leading context.Context parameter
	paramTypes []reflect.Type
	returnType reflect.Type
	returnsErr bool
	qualified  string
}

// analyzeConstructor inspects a constructor function once, at registration.
// Every parameter (after an optional leading context.Context) must map to a
// registrable dependency; a parameter that cannot is an immediate error
// naming the offending parameter and its declared type.
func analyzeConstructor(ctor any, explicit bool) (*ctorInfo, error) {
	if ctor == nil {
		return nil, ErrConstructorNil
	}

	fn := reflect.ValueOf(ctor)
	if fn.Kind() != reflect.Func {
		return nil, fmt.Errorf("constructor must be a function, got %T", ctor)
	}

	fnType := fn.Type()
	if fnType.IsVariadic() {
		return nil, fmt.Errorf("variadic constructors are not supported: %s", fnType)
	}

	info := &ctorInfo{
		fn:        fn,
		fnType:    fnType,
		qualified: runtime.FuncForPC(fn.Pointer()).Name(),
	}

	// Returns: T, or (T, error).
	switch fnType.NumOut() {
	case 1:
		if fnType.Out(0) == errType {
			return nil, fmt.Errorf("constructor %s returns only an error", info.qualified)
		}
		info.returnType = fnType.Out(0)
	case 2:
		if fnType.Out(1) != errType {
			return nil, fmt.Errorf("constructor %s second return must be error, got %s",
				info.qualified, fnType.Out(1))
		}
		info.returnType = fnType.Out(0)
		info.returnsErr = true
	default:
		return nil, fmt.Errorf("constructor %s must return T or (T, error)", info.qualified)
	}

	start := 0
	if fnType.NumIn() > 0 && fnType.In(0) == ctxType {
		info.hasCtx = true
		start = 1
	}

	for i := start; i < fnType.NumIn(); i++ {
		pt := fnType.In(i)

		if !explicit {
			if reason := unresolvableParam(pt); reason != "" {
				return nil, &MissingDependencyError{
					Constructor: info.qualified,
					Parameter:   i - start,
					TypeName:    typecache.Name(pt),
					Reason:      reason,
				}
			}
		}

		info.paramTypes = append(info.paramTypes, pt)
	}

	return info, nil
}

// unresolvableParam explains why a parameter type cannot carry implicit
// dependency metadata, or returns "" when it can.
func unresolvableParam(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Chan:
		return "channel parameters cannot be injected"
	case reflect.UnsafePointer:
		return "unsafe pointers cannot be injected"
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return "bare interface{} carries no type identity; declare the dependency with DependsOn"
		}
	}
	return ""
}

// reflectedDeps derives the dependency list from analyzed parameters,
// applying per-index tag and optionality annotations.
func reflectedDeps(info *ctorInfo, cfg *providerConfig) []Dep {
	deps := make([]Dep, len(info.paramTypes))
	for i, pt := range info.paramTypes {
		deps[i] = Dep{Key: Key{Token: TokenOfType(pt), Tag: cfg.tagByIdx[i]}, Optional: cfg.optByIdx[i]}
	}
	return deps
}

// funcProvider is the shared engine behind ClassProvider and
// FactoryProvider: call a function with resolved arguments.
type funcProvider struct {
	meta *ProviderMeta
	deps []Dep
	info *ctorInfo
}

func (p *funcProvider) Meta() *ProviderMeta { return p.meta }

func (p *funcProvider) Dependencies() []Dep {
	return append([]Dep(nil), p.deps...)
}

func (p *funcProvider) Shutdown() error { return nil }

func (p *funcProvider) Instantiate(ctx context.Context, rc *ResolveCtx) (any, error) {
	args := make([]reflect.Value, 0, len(p.deps)+1)
	if p.info.hasCtx {
		args = append(args, reflect.ValueOf(ctx))
	}

	for i, dep := range p.deps {
		v, err := rc.resolveDep(ctx, dep)
		if err != nil {
			return nil, err
		}

		pt := p.info.paramTypes[i]
		if v == nil {
			// Only reachable for optional dependencies.
			args = append(args, reflect.Zero(pt))
			continue
		}

		rv := reflect.ValueOf(v)
		if !rv.Type().AssignableTo(pt) {
			return nil, fmt.Errorf("dependency %q produced %s, not assignable to parameter %s of %s",
				dep.Key.String(), typecache.Name(rv.Type()), typecache.Name(pt), p.info.qualified)
		}
		args = append(args, rv)
	}

	out := p.info.fn.Call(args)
	if p.info.returnsErr && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}

	return out[0].Interface(), nil
}

// ClassProvider constructs instances of a concrete type by calling its
// constructor function. The constructor signature is inspected once at
// registration; each parameter becomes one declared dependency.
type ClassProvider struct {
	funcProvider
}

// NewClass builds a ClassProvider from a constructor of the form
// func([ctx,] deps...) T or func([ctx,] deps...) (T, error). The provider
// registers under the token of the constructed type.
//
// Example:
//
//	p, err := loom.NewClass(NewLogger, loom.ScopeSingleton)
func NewClass(ctor any, scope Scope, opts ...ProviderOption) (*ClassProvider, error) {
	cfg := applyProviderOptions(opts)

	info, err := analyzeConstructor(ctor, cfg.hasDeps)
	if err != nil {
		return nil, err
	}

	deps, err := resolveDepList(info, cfg)
	if err != nil {
		return nil, err
	}

	token := cfg.token
	if token == "" {
		token = TokenOfType(info.returnType)
	}

	meta := buildMeta(cfg, token, scope, info.qualified, 2)
	return &ClassProvider{funcProvider{meta: meta, deps: deps, info: info}}, nil
}

// Instantiate resolves every dependency, constructs the instance, and runs
// the post-construction Init hook when the type implements Initializable.
func (p *ClassProvider) Instantiate(ctx context.Context, rc *ResolveCtx) (any, error) {
	v, err := p.funcProvider.Instantiate(ctx, rc)
	if err != nil {
		return nil, err
	}

	if init, ok := v.(Initializable); ok {
		if err := init.Init(ctx); err != nil {
			return nil, fmt.Errorf("init of %q: %w", p.meta.Token, err)
		}
	}

	return v, nil
}

// FactoryProvider produces a value by calling an arbitrary factory function,
// registered under an explicit token. The dependency list comes from the
// factory's parameters, exactly as for ClassProvider; the difference is that
// the token names the role, not the constructed type.
type FactoryProvider struct {
	funcProvider
}

// NewFactory builds a FactoryProvider for the given token. Factories of the
// form func(ctx, deps...) (T, error) block on ctx, which is the suspension
// point for slow construction.
func NewFactory(token Token, factory any, scope Scope, opts ...ProviderOption) (*FactoryProvider, error) {
	if token == "" {
		return nil, ErrTokenEmpty
	}

	cfg := applyProviderOptions(opts)

	info, err := analyzeConstructor(factory, cfg.hasDeps)
	if err != nil {
		return nil, err
	}

	deps, err := resolveDepList(info, cfg)
	if err != nil {
		return nil, err
	}

	meta := buildMeta(cfg, token, scope, info.qualified, 2)
	return &FactoryProvider{funcProvider{meta: meta, deps: deps, info: info}}, nil
}

// resolveDepList picks the explicit DependsOn list when given, validating
// its length against the injectable parameter count, and otherwise derives
// the list from reflection.
func resolveDepList(info *ctorInfo, cfg *providerConfig) ([]Dep, error) {
	if !cfg.hasDeps {
		return reflectedDeps(info, cfg), nil
	}

	if len(cfg.deps) != len(info.paramTypes) {
		return nil, fmt.Errorf("DependsOn declares %d dependencies but %s takes %d injectable parameters",
			len(cfg.deps), info.qualified, len(info.paramTypes))
	}

	return append([]Dep(nil), cfg.deps...), nil
}

func applyProviderOptions(opts []ProviderOption) *providerConfig {
	cfg := &providerConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// buildMeta assembles the immutable metadata, stamping the declaring source
// location skip+1 frames up from here.
func buildMeta(cfg *providerConfig, token Token, scope Scope, qualified string, skip int) *ProviderMeta {
	file, line := cfg.locFile, cfg.locLine
	if file == "" {
		file, line = callerLocation(skip + 1)
	}

	name := cfg.name
	if name == "" {
		name = string(token)
	}

	return &ProviderMeta{
		Name:          name,
		Token:         token,
		Scope:         scope,
		Tags:          cfg.tags,
		Module:        cfg.module,
		QualifiedName: qualified,
		File:          file,
		Line:          line,
		Version:       cfg.version,
		AllowLazy:     cfg.allowLazy,
	}
}
