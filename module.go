package loom

import (
	"fmt"
)

// Module groups related provider declarations under a name. Every provider
// declared through a module carries the module in its metadata, and the
// build phase enforces that dependencies crossing module boundaries are
// backed by an explicit prerequisite in Require.
//
// Example:
//
//	var Billing = loom.NewModule("billing").
//	    Require("inventory").
//	    Provide(NewInvoiceService, loom.ScopeSingleton).
//	    Provide(NewPaymentGateway, loom.ScopeSingleton)
type Module struct {
	name     string
	version  string
	requires []string
	entries  []moduleEntry
	includes []*Module
}

// moduleEntry defers provider construction to build time so a broken
// declaration surfaces as a module-attributed build error.
type moduleEntry struct {
	construct func(m *Module) (Provider, error)
	tag       string
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{name: name}
}

// Name returns the module's name.
func (m *Module) Name() string { return m.name }

// Require declares the modules this one may depend across into. A
// dependency on a token owned by an undeclared module fails the build.
func (m *Module) Require(modules ...string) *Module {
	m.requires = append(m.requires, modules...)
	return m
}

// Version records the module's version in every provider it declares.
func (m *Module) Version(v string) *Module {
	m.version = v
	return m
}

// Provide declares a class provider built from a constructor function.
func (m *Module) Provide(ctor any, scope Scope, opts ...ProviderOption) *Module {
	file, line := callerLocation(1)
	m.entries = append(m.entries, moduleEntry{
		construct: func(m *Module) (Provider, error) {
			return NewClass(ctor, scope, m.stamp(opts, file, line)...)
		},
	})
	return m
}

// ProvideFactory declares a factory provider under an explicit token.
func (m *Module) ProvideFactory(token Token, factory any, scope Scope, opts ...ProviderOption) *Module {
	file, line := callerLocation(1)
	m.entries = append(m.entries, moduleEntry{
		construct: func(m *Module) (Provider, error) {
			return NewFactory(token, factory, scope, m.stamp(opts, file, line)...)
		},
	})
	return m
}

// ProvideValue declares a constant.
func (m *Module) ProvideValue(token Token, value any, opts ...ProviderOption) *Module {
	file, line := callerLocation(1)
	m.entries = append(m.entries, moduleEntry{
		construct: func(m *Module) (Provider, error) {
			return NewValue(token, value, m.stamp(opts, file, line)...), nil
		},
	})
	return m
}

// ProvidePool declares a bounded pool provider.
func (m *Module) ProvidePool(token Token, factory PoolFactory, maxSize int, strategy PoolStrategy, opts ...ProviderOption) *Module {
	file, line := callerLocation(1)
	m.entries = append(m.entries, moduleEntry{
		construct: func(m *Module) (Provider, error) {
			return NewPool(token, factory, maxSize, strategy, m.stamp(opts, file, line)...)
		},
	})
	return m
}

// Alias declares a second name for an existing key.
func (m *Module) Alias(token Token, target Key, opts ...ProviderOption) *Module {
	file, line := callerLocation(1)
	m.entries = append(m.entries, moduleEntry{
		construct: func(m *Module) (Provider, error) {
			return NewAlias(token, target, m.stamp(opts, file, line)...), nil
		},
	})
	return m
}

// LazyProxy declares a deferred handle on a key whose provider permits lazy
// resolution.
func (m *Module) LazyProxy(token Token, target Key, opts ...ProviderOption) *Module {
	file, line := callerLocation(1)
	m.entries = append(m.entries, moduleEntry{
		construct: func(m *Module) (Provider, error) {
			return NewLazyProxy(token, target, m.stamp(opts, file, line)...), nil
		},
	})
	return m
}

// Bind declares a class provider for the implementation stored under the
// interface token.
func (m *Module) Bind(iface Token, ctor any, scope Scope, opts ...ProviderOption) *Module {
	file, line := callerLocation(1)
	m.entries = append(m.entries, moduleEntry{
		construct: func(m *Module) (Provider, error) {
			stamped := m.stamp(opts, file, line)
			stamped = append(stamped, func(pc *providerConfig) { pc.token = iface })
			return NewClass(ctor, scope, stamped...)
		},
	})
	return m
}

// Tagged sets the registration tag for the most recent declaration.
func (m *Module) Tagged(tag string) *Module {
	if len(m.entries) > 0 {
		m.entries[len(m.entries)-1].tag = tag
	}
	return m
}

// Include nests another module. The included module keeps its own name and
// prerequisites; inclusion only controls registration order.
func (m *Module) Include(sub *Module) *Module {
	m.includes = append(m.includes, sub)
	return m
}

// stamp layers module identity and the captured declaration site onto the
// caller's options.
func (m *Module) stamp(opts []ProviderOption, file string, line int) []ProviderOption {
	stamped := make([]ProviderOption, 0, len(opts)+3)
	stamped = append(stamped, opts...)
	stamped = append(stamped, WithModule(m.name), withLocation(file, line))
	if m.version != "" {
		stamped = append(stamped, WithVersion(m.version))
	}
	return stamped
}

// apply registers the module's providers (included modules first) into the
// container. Failures are attributed to the module.
func (m *Module) apply(c *Container) error {
	for _, sub := range m.includes {
		if err := sub.apply(c); err != nil {
			return err
		}
	}

	for _, entry := range m.entries {
		p, err := entry.construct(m)
		if err != nil {
			return fmt.Errorf("module %q: %w", m.name, err)
		}
		if err := c.Register(p, entry.tag); err != nil {
			return fmt.Errorf("module %q: %w", m.name, err)
		}
	}

	return nil
}
