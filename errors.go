package loom

import (
	"errors"
	"fmt"
	"strings"
)

// ========================================
// Sentinel errors
// ========================================
// Base errors meant to be wrapped in typed errors with context. They exist so
// callers can branch with errors.Is without parsing messages.

var (
	ErrNotFound          = errors.New("provider not found")
	ErrContainerDisposed = errors.New("container has been shut down")
	ErrProviderNil       = errors.New("provider cannot be nil")
	ErrConstructorNil    = errors.New("constructor cannot be nil")
	ErrTokenEmpty        = errors.New("token cannot be empty")
	ErrPoolClosed        = errors.New("pool has been shut down")
	ErrLazyNotPermitted  = errors.New("target provider does not permit lazy resolution")
)

var (
	_ error = (*ScopeError)(nil)
	_ error = (*NotFoundError)(nil)
	_ error = (*DuplicateRegistrationError)(nil)
	_ error = (*MissingDependencyError)(nil)
	_ error = (*ScopeViolationError)(nil)
	_ error = (*CycleError)(nil)
	_ error = (*CrossModuleError)(nil)
	_ error = (*AmbiguousProviderError)(nil)
	_ error = (*InstantiationError)(nil)
	_ error = (*AggregateError)(nil)
	_ error = (*DisposalError)(nil)
	_ error = (*BuildError)(nil)
)

// ScopeError indicates an invalid scope value.
type ScopeError struct {
	Value any
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("invalid scope: %v", e.Value)
}

// NotFoundError indicates no provider is registered under the requested key.
// It carries near-miss candidates so typos are diagnosable from the message.
type NotFoundError struct {
	Key        Key
	Candidates []Key // similarly-named registered keys, best effort
}

func (e *NotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "no provider registered for %q", e.Key.String())

	if len(e.Candidates) > 0 {
		b.WriteString("\n\nDid you mean one of these?\n")
		for _, k := range e.Candidates {
			fmt.Fprintf(&b, "  • %s\n", k.String())
		}
	}

	b.WriteString("\nMake sure the provider is registered with the correct token and tag.")
	return b.String()
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// DuplicateRegistrationError indicates two different providers were
// registered under the same key. Re-registering the identical provider is a
// silent no-op and does not produce this error.
type DuplicateRegistrationError struct {
	Key      Key
	Existing *ProviderMeta
	Incoming *ProviderMeta
}

func (e *DuplicateRegistrationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "provider already registered for %q", e.Key.String())
	if e.Existing != nil && e.Existing.Location() != "" {
		fmt.Fprintf(&b, "\n  existing: %s (%s)", e.Existing.Name, e.Existing.Location())
	} else if e.Existing != nil {
		fmt.Fprintf(&b, "\n  existing: %s", e.Existing.Name)
	}
	if e.Incoming != nil && e.Incoming.Location() != "" {
		fmt.Fprintf(&b, "\n  incoming: %s (%s)", e.Incoming.Name, e.Incoming.Location())
	} else if e.Incoming != nil {
		fmt.Fprintf(&b, "\n  incoming: %s", e.Incoming.Name)
	}
	b.WriteString("\n\nUse a tag to register multiple providers under one token.")
	return b.String()
}

// MissingDependencyError indicates a constructor or factory parameter lacks
// resolvable dependency metadata. It is raised at registration time, before
// any container exists.
type MissingDependencyError struct {
	Constructor string // qualified name of the constructor or factory
	Parameter   int    // zero-based parameter index
	TypeName    string // declared parameter type
	Reason      string
}

func (e *MissingDependencyError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "parameter %d (%s) of %s has no resolvable dependency metadata",
		e.Parameter, e.TypeName, e.Constructor)
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	b.WriteString("\n\nDeclare the dependency explicitly with DependsOn, or use a registrable type.")
	return b.String()
}

// ScopeViolationError indicates a shorter-lived provider is injected into a
// longer-lived consumer.
type ScopeViolationError struct {
	Consumer      Key
	ConsumerScope Scope
	Dependency    Key
	DepScope      Scope
}

func (e *ScopeViolationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scope violation: %s (%s) cannot depend on %s (%s)\n\n",
		e.Consumer.String(), e.ConsumerScope, e.Dependency.String(), e.DepScope)

	b.WriteString("A request-scoped value captured inside a singleton would outlive the\n")
	b.WriteString("request that produced it.\n\n")

	b.WriteString("To resolve this:\n")
	fmt.Fprintf(&b, "  • Widen %s to singleton scope\n", e.Dependency.String())
	fmt.Fprintf(&b, "  • Narrow %s to request scope\n", e.Consumer.String())
	fmt.Fprintf(&b, "  • Defer the dependency through a factory or lazy indirection\n")
	return b.String()
}

// CycleError indicates a dependency cycle, either a strongly-connected
// component in the static graph or a re-entrant runtime resolve. Members are
// listed in cycle order; Locations carries declaring source positions where
// known.
type CycleError struct {
	Members   []Key
	Locations map[string]string // key string -> "file:line"
	Runtime   bool              // detected during a live resolve rather than static validation
}

func (e *CycleError) Error() string {
	var b strings.Builder
	if e.Runtime {
		b.WriteString("circular resolution detected: ")
	} else {
		b.WriteString("dependency cycle detected: ")
	}

	parts := make([]string, 0, len(e.Members)+1)
	for _, k := range e.Members {
		parts = append(parts, k.String())
	}
	if len(e.Members) > 0 {
		parts = append(parts, e.Members[0].String())
	}
	b.WriteString(strings.Join(parts, " -> "))

	if len(e.Locations) > 0 {
		b.WriteString("\n\nDeclared at:\n")
		for _, k := range e.Members {
			if loc, ok := e.Locations[k.String()]; ok {
				fmt.Fprintf(&b, "  • %s (%s)\n", k.String(), loc)
			}
		}
	}

	b.WriteString("\nTo resolve this:\n")
	b.WriteString("  • Break the cycle with a lazy indirection (AllowLazy + NewLazyProxy)\n")
	b.WriteString("  • Extract a shared abstraction both sides can depend on\n")
	b.WriteString("  • Restructure so the dependency flows one way\n")
	return b.String()
}

// CrossModuleError indicates a consumer depends on a token owned by another
// module without declaring that module a prerequisite.
type CrossModuleError struct {
	ConsumerModule string
	OwnerModule    string
	Token          Key
}

func (e *CrossModuleError) Error() string {
	return fmt.Sprintf(
		"module %q depends on %q owned by module %q without declaring it a prerequisite\n\nAdd %q to the Requires list of module %q.",
		e.ConsumerModule, e.Token.String(), e.OwnerModule, e.OwnerModule, e.ConsumerModule)
}

// AmbiguousProviderError indicates an untagged lookup matched multiple
// tagged registrations and no untagged default exists.
type AmbiguousProviderError struct {
	Token   Token
	Matches []Key
}

func (e *AmbiguousProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ambiguous provider for %q: %d tagged registrations match\n", string(e.Token), len(e.Matches))
	for _, k := range e.Matches {
		fmt.Fprintf(&b, "  • %s\n", k.String())
	}
	b.WriteString("\nResolve with an explicit tag, or register an untagged default.")
	return b.String()
}

// InstantiationError wraps a failure inside a provider's Instantiate. The
// failed attempt leaves no cached value; retrying the same key re-runs the
// provider from scratch.
type InstantiationError struct {
	Key   Key
	Cause error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("instantiating %q: %v", e.Key.String(), e.Cause)
}

func (e *InstantiationError) Unwrap() error { return e.Cause }

// AggregateError collects independent failures from a hook batch so one
// failure does not mask diagnosis of another.
type AggregateError struct {
	Context string
	Errors  []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("%s failed: %v", e.Context, e.Errors[0])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s failed with %d errors:", e.Context, len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "\n  %d. %v", i+1, err)
	}
	return b.String()
}

func (e *AggregateError) Unwrap() []error { return e.Errors }

// DisposalError aggregates failures during container shutdown.
type DisposalError struct {
	Context string
	Errors  []error
}

func (e *DisposalError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("%s disposal failed: %v", e.Context, e.Errors[0])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s disposal failed with %d errors:", e.Context, len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "\n  %d. %v", i+1, err)
	}
	return b.String()
}

func (e *DisposalError) Unwrap() []error { return e.Errors }

// BuildError wraps a failure during the registry build, identifying the
// phase that rejected the configuration. Build failures are unrecoverable
// misconfiguration and must surface before serving traffic.
type BuildError struct {
	Phase string // "registration", "graph", "scope-validation", "cross-module", "singleton-creation", "startup"
	Cause error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed during %s phase: %v", e.Phase, e.Cause)
}

func (e *BuildError) Unwrap() error { return e.Cause }

// similarKeys returns registered keys whose token resembles the requested
// one, for NotFoundError suggestions. Best effort, capped at five.
func similarKeys(want Key, registered []Key) []Key {
	target := strings.ToLower(string(want.Token))
	if target == "" {
		return nil
	}

	// Strip a leading pointer marker and package path for loose matching.
	short := target
	if i := strings.LastIndexByte(short, '.'); i >= 0 {
		short = short[i+1:]
	}

	var similar []Key
	for _, k := range registered {
		if k == want {
			continue
		}

		name := strings.ToLower(string(k.Token))
		if k.Token == want.Token ||
			strings.Contains(name, short) ||
			strings.Contains(target, strings.TrimPrefix(name, "*")) {
			similar = append(similar, k)
		}

		if len(similar) >= 5 {
			break
		}
	}

	return similar
}
