// Package typecache memoizes the mapping from reflect.Type to its
// fully-qualified token string. Deriving the name walks the type structure,
// so the result is computed once per type and cached process-wide.
package typecache

import (
	"reflect"
	"sync"
)

// cache maps reflect.Type -> string. Reads vastly outnumber writes after
// warm-up, which is sync.Map's sweet spot.
var cache sync.Map

// Name returns the fully-qualified, stable name for a type, e.g.
// "*github.com/acme/app.Logger" or "github.com/acme/app.Config".
// The empty string is returned for a nil type.
func Name(t reflect.Type) string {
	if t == nil {
		return ""
	}

	if cached, ok := cache.Load(t); ok {
		return cached.(string)
	}

	name := derive(t)

	// LoadOrStore keeps the first writer's value under concurrent misses.
	actual, _ := cache.LoadOrStore(t, name)
	return actual.(string)
}

// derive computes the qualified name without consulting the cache.
func derive(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Pointer:
		return "*" + derive(t.Elem())
	case reflect.Slice:
		return "[]" + derive(t.Elem())
	case reflect.Map:
		return "map[" + derive(t.Key()) + "]" + derive(t.Elem())
	case reflect.Chan:
		return "chan " + derive(t.Elem())
	default:
		if pkg := t.PkgPath(); pkg != "" {
			return pkg + "." + t.Name()
		}
		// Unnamed or builtin types fall back to reflect's representation.
		return t.String()
	}
}
