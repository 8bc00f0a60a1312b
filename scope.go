package loom

import (
	"encoding/json"
	"fmt"
)

// Scope specifies the lifetime and caching policy of a provider's instances.
// The scope determines when instances are created, where they are cached, and
// which consumers may depend on them.
type Scope int

const (
	// ScopeSingleton specifies one instance for the lifetime of the process.
	// The instance is created on first resolve (or eagerly at build time) and
	// cached in the application container. Request-scoped values may not be
	// injected into singletons.
	ScopeSingleton Scope = iota

	// ScopeRequest specifies one instance per request container. The
	// instance is cached only within the request container that created it
	// and is destroyed when that container shuts down.
	ScopeRequest

	// ScopeTransient specifies a new instance on every resolve. Transient
	// instances are never container-cached.
	ScopeTransient

	// ScopePooled specifies instances reused through a bounded pool owned by
	// the provider. Pooled instances are never container-cached; reuse is
	// internal to the pool.
	ScopePooled
)

// ScopeApp and ScopeEphemeral are the framework-facing aliases for the two
// cacheable scopes.
const (
	ScopeApp       = ScopeSingleton
	ScopeEphemeral = ScopeRequest
)

// String returns the canonical name of the scope.
func (s Scope) String() string {
	switch s {
	case ScopeSingleton:
		return "singleton"
	case ScopeRequest:
		return "request"
	case ScopeTransient:
		return "transient"
	case ScopePooled:
		return "pooled"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// IsValid reports whether the scope is one of the defined values.
func (s Scope) IsValid() bool {
	return s >= ScopeSingleton && s <= ScopePooled
}

// Cacheable reports whether instances of this scope are cached by a
// container. Transient and pooled instances are never container-cached.
func (s Scope) Cacheable() bool {
	return s == ScopeSingleton || s == ScopeRequest
}

// CanInjectInto reports whether a provider of this scope may be injected
// into a consumer of the given scope.
//
// The rule is directional: a value scoped shorter than its consumer may not
// be captured by it. Concretely, request-scoped values may be injected
// anywhere except singletons; every other scope may be injected anywhere.
// A request-scoped value captured inside a singleton would outlive the
// request that produced it.
func (s Scope) CanInjectInto(consumer Scope) bool {
	if s == ScopeRequest && consumer == ScopeSingleton {
		return false
	}
	return true
}

// MarshalText implements encoding.TextMarshaler.
func (s Scope) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, &ScopeError{Value: int(s)}
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. The "app" and
// "ephemeral" aliases are accepted.
func (s *Scope) UnmarshalText(text []byte) error {
	switch string(text) {
	case "singleton", "app":
		*s = ScopeSingleton
	case "request", "ephemeral":
		*s = ScopeRequest
	case "transient":
		*s = ScopeTransient
	case "pooled":
		*s = ScopePooled
	default:
		return &ScopeError{Value: string(text)}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s Scope) MarshalJSON() ([]byte, error) {
	if !s.IsValid() {
		return nil, &ScopeError{Value: int(s)}
	}
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Scope) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	return s.UnmarshalText([]byte(str))
}
