// Package loom provides a scope-aware dependency injection container for Go
// applications. Providers are declared up front, validated as a graph, and
// resolved on demand with per-scope caching, lifecycle management, and
// deterministic shutdown.
//
// # Overview
//
// loom models an application as a set of providers wired by tokens. The
// library provides:
//   - Four scopes: Singleton, Request, Transient, and Pooled
//   - Constructor injection with reflective dependency analysis
//   - Build-time validation: cycles, missing dependencies, scope rules,
//     cross-module boundaries
//   - Lightweight request-scope forking for per-request isolation
//   - Lifecycle hooks, finalizers, and configurable disposal strategies
//   - A module system with explicit cross-module prerequisites
//   - Manifest export with a stable fingerprint for drift detection
//
// # Basic Usage
//
// Declare providers on a builder, build, and resolve:
//
//	c, err := loom.NewBuilder().
//	    Provide(NewConfig, loom.ScopeSingleton).
//	    Provide(NewLogger, loom.ScopeSingleton).
//	    Provide(NewUserService, loom.ScopeRequest).
//	    Build(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Shutdown(ctx)
//
//	svc, err := loom.Resolve[*UserService](ctx, c)
//
// # Scopes
//
// A provider's scope controls instance sharing and lifetime:
//
//   - ScopeSingleton: one instance for the whole application
//   - ScopeRequest: one instance per request scope, isolated from siblings
//   - ScopeTransient: a fresh instance on every resolve, never cached
//   - ScopePooled: a bounded pool of reusable instances
//
// Request scopes are forked from the application container with
// CreateRequestScope; they share the provider registry, keep a private
// cache, and delegate singleton resolution to the root.
//
// # Dependency Injection
//
// Services declare dependencies through constructor parameters:
//
//	func NewUserService(db *Database, logger *Logger) *UserService {
//	    return &UserService{db: db, logger: logger}
//	}
//
// Parameters are matched to registered tokens by type. A leading
// context.Context parameter receives the resolution context. Constructors
// may return (T, error) to report failure.
//
// # Lifecycle
//
// Instances that implement Initializable, Startable, Stoppable, Disposable,
// or DisposableWithContext participate in the container lifecycle
// automatically: Init runs during instantiation, Start and Stop become
// prioritized hooks, and Close becomes a finalizer run at shutdown per the
// configured disposal strategy.
//
// # Modules
//
// Related providers group into named modules, and dependencies that cross
// module boundaries must be declared:
//
//	var Billing = loom.NewModule("billing").
//	    Require("inventory").
//	    Provide(NewInvoiceService, loom.ScopeSingleton)
//
// The build phase rejects undeclared cross-module edges.
package loom
