package loom

import "context"

// The container never probes instances for arbitrary method names; a type
// opts into lifecycle participation by implementing one of these capability
// interfaces, checked via interface conformance at resolve time.

// Initializable runs after construction and before the instance is handed
// to its first consumer. A failed Init fails the resolve; nothing is cached.
type Initializable interface {
	Init(ctx context.Context) error
}

// Startable registers a startup hook when the instance is resolved during
// the build phase. Hooks run in priority order when the container starts.
type Startable interface {
	Start(ctx context.Context) error
}

// Stoppable registers a shutdown hook for the owning container. Failures
// are logged and never abort the remainder of shutdown.
type Stoppable interface {
	Stop(ctx context.Context) error
}

// Disposable marks a resource that must be closed when its owning container
// shuts down. The container registers a finalizer for every Disposable it
// instantiates.
//
// Example:
//
//	func (c *DBConn) Close() error { return c.db.Close() }
type Disposable interface {
	Close() error
}

// DisposableWithContext is Disposable with context-aware cleanup, for
// resources whose teardown should respect cancellation.
type DisposableWithContext interface {
	Close(ctx context.Context) error
}
