package loom

import (
	"reflect"
	"strings"

	"github.com/mkarren/loom/internal/typecache"
)

// Token is the unique name under which a dependency is registered and later
// requested. Tokens are either explicit strings chosen by the caller or
// derived from a Go type's fully-qualified name.
type Token string

// TokenOf derives the token for type T. The derivation is memoized
// process-wide, so repeated calls for the same type are cheap.
//
// Example:
//
//	loom.TokenOf[*Logger]() // "*github.com/acme/app.Logger"
func TokenOf[T any]() Token {
	return TokenOfType(reflect.TypeOf((*T)(nil)).Elem())
}

// TokenOfType derives the token for a reflect.Type.
func TokenOfType(t reflect.Type) Token {
	return Token(typecache.Name(t))
}

// Key is the effective lookup key for a registration: a token plus an
// optional tag. Two providers may share a token as long as their tags differ.
type Key struct {
	Token Token
	Tag   string
}

// NewKey builds a Key from a token and tag.
func NewKey(token Token, tag string) Key {
	return Key{Token: token, Tag: tag}
}

// String renders the key as "token" or "token#tag".
func (k Key) String() string {
	if k.Tag == "" {
		return string(k.Token)
	}
	return string(k.Token) + "#" + k.Tag
}

// ParseKey parses a "token" or "token#tag" string back into a Key.
func ParseKey(s string) Key {
	if i := strings.LastIndexByte(s, '#'); i >= 0 {
		return Key{Token: Token(s[:i]), Tag: s[i+1:]}
	}
	return Key{Token: Token(s)}
}

// Dep is one declared dependency of a provider. The contract is positional:
// each declared dependency is resolved before construction, in declared
// order, regardless of how the list was obtained (constructor reflection or
// an explicit DependsOn list).
type Dep struct {
	Key Key

	// Optional dependencies resolve to the type's zero value when no
	// provider is registered instead of failing.
	Optional bool

	// Lazy dependencies are resolved through a deferred indirection and are
	// excluded from static cycle analysis. This is the sanctioned way to
	// break a declared cycle.
	Lazy bool
}

// DepOn declares a dependency on the given token.
func DepOn(token Token, tag string) Dep {
	return Dep{Key: Key{Token: token, Tag: tag}}
}
