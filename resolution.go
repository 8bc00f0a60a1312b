package loom

import (
	"context"
)

// ResolveCtx is the ephemeral per-call-chain state of one resolution. It
// carries the container the chain started on and an explicit stack of the
// keys currently resolving, which is how re-entrant (circular) runtime
// resolution is detected.
//
// A fresh ResolveCtx is created for every top-level Resolve; nested
// dependency resolutions share it. Providers receive it in Instantiate and
// use it to resolve their own dependencies through the current container.
type ResolveCtx struct {
	container *Container
	stack     []Key
}

func newResolveCtx(c *Container) *ResolveCtx {
	return &ResolveCtx{container: c}
}

// Container returns the container this resolution chain started on. For a
// request-scoped chain this is the request container, so nested resolutions
// of request-scoped tokens land in the correct cache.
func (rc *ResolveCtx) Container() *Container {
	return rc.container
}

// Resolve resolves a dependency through the current container as part of
// this chain. Providers call this from Instantiate.
func (rc *ResolveCtx) Resolve(ctx context.Context, token Token, tag string) (any, error) {
	return rc.container.resolveKey(ctx, rc, Key{Token: token, Tag: tag}, false)
}

// ResolveOptional is like Resolve but returns (nil, nil) when no provider is
// registered for the key.
func (rc *ResolveCtx) ResolveOptional(ctx context.Context, token Token, tag string) (any, error) {
	return rc.container.resolveKey(ctx, rc, Key{Token: token, Tag: tag}, true)
}

// resolveDep resolves one declared dependency, honoring the Optional and
// Lazy markers.
func (rc *ResolveCtx) resolveDep(ctx context.Context, dep Dep) (any, error) {
	if dep.Lazy {
		return rc.deferred(dep.Key), nil
	}
	return rc.container.resolveKey(ctx, rc, dep.Key, dep.Optional)
}

// deferred builds a lazy handle that resolves the key on first use. The
// handle starts a fresh chain when triggered: by then the current stack has
// unwound, which is exactly why a lazy edge breaks a cycle.
func (rc *ResolveCtx) deferred(key Key) *Deferred {
	c := rc.container
	return newDeferred(func(ctx context.Context) (any, error) {
		return c.resolveKey(ctx, newResolveCtx(c), key, false)
	})
}

// checkCycle fails with a runtime CycleError when key is already resolving
// on this chain. Members runs from the key's first occurrence to the top of
// the stack, the loop segment.
func (rc *ResolveCtx) checkCycle(key Key) error {
	for i, k := range rc.stack {
		if k == key {
			return &CycleError{
				Members: append([]Key(nil), rc.stack[i:]...),
				Runtime: true,
			}
		}
	}
	return nil
}

// push records that key is now resolving on this chain.
func (rc *ResolveCtx) push(key Key) error {
	if err := rc.checkCycle(key); err != nil {
		return err
	}
	rc.stack = append(rc.stack, key)
	return nil
}

// pop removes the top stack entry. It runs on every exit path of a resolve,
// success or failure.
func (rc *ResolveCtx) pop() {
	rc.stack = rc.stack[:len(rc.stack)-1]
}
