// Package loomtest provides container helpers for tests: an
// override-permitting container so fixtures can swap real providers for
// fakes, and shorthand for the common replace patterns.
package loomtest

import (
	"context"
	"testing"

	"github.com/mkarren/loom"
)

// New creates a container that permits re-registration, so a test can
// register production wiring and then replace individual providers with
// doubles. Replacements must happen before the key is first resolved;
// cached singleton and request instances are not invalidated. The container
// is shut down automatically when the test ends.
func New(t *testing.T, opts ...loom.Option) *loom.Container {
	t.Helper()

	c := loom.New(append(opts, loom.WithOverride())...)
	t.Cleanup(func() {
		if err := c.Shutdown(context.Background()); err != nil {
			t.Errorf("container shutdown: %v", err)
		}
	})

	return c
}

// ReplaceValue overrides the registration for token with a constant.
func ReplaceValue(t *testing.T, c *loom.Container, token loom.Token, value any) {
	t.Helper()

	if err := c.Register(loom.NewValue(token, value), ""); err != nil {
		t.Fatalf("replacing %q: %v", token, err)
	}
}

// Replace overrides the registration for a constructor's return type with a
// new class provider in the given scope.
func Replace(t *testing.T, c *loom.Container, ctor any, scope loom.Scope, opts ...loom.ProviderOption) {
	t.Helper()

	p, err := loom.NewClass(ctor, scope, opts...)
	if err != nil {
		t.Fatalf("building replacement provider: %v", err)
	}
	if err := c.Register(p, ""); err != nil {
		t.Fatalf("replacing %q: %v", p.Meta().Token, err)
	}
}

// Scope forks a request scope that is shut down when the test ends.
func Scope(t *testing.T, c *loom.Container) *loom.Container {
	t.Helper()

	child := c.CreateRequestScope()
	t.Cleanup(func() {
		if err := child.Shutdown(context.Background()); err != nil {
			t.Errorf("request scope shutdown: %v", err)
		}
	})

	return child
}
