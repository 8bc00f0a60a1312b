package loom

import (
	"runtime"
	"strconv"
)

// ProviderMeta is the immutable description of a registered provider. It is
// what the diagnostic manifest serializes, so every field carries a JSON tag.
type ProviderMeta struct {
	// Name is a human-readable label, defaulting to the token.
	Name string `json:"name"`

	// Token is the identifier the provider is registered under.
	Token Token `json:"token"`

	// Scope is the lifetime/caching policy for instances.
	Scope Scope `json:"scope"`

	// Tags are descriptive labels for tooling. They do not participate in
	// key lookup; the lookup tag is supplied at registration.
	Tags []string `json:"tags,omitempty"`

	// Module is the name of the declaring module, if any.
	Module string `json:"module,omitempty"`

	// QualifiedName is the fully-qualified name of the constructed type or
	// factory, where derivable.
	QualifiedName string `json:"qualified_name,omitempty"`

	// File and Line record where the provider was declared.
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`

	// Version is the declaring module's version, if known.
	Version string `json:"version,omitempty"`

	// AllowLazy permits this provider to be the target of a lazy proxy,
	// which is the sanctioned way to break a declared dependency cycle.
	AllowLazy bool `json:"allow_lazy,omitempty"`
}

// clone returns a copy so callers cannot mutate registered metadata.
func (m *ProviderMeta) clone() *ProviderMeta {
	c := *m
	if m.Tags != nil {
		c.Tags = append([]string(nil), m.Tags...)
	}
	return &c
}

// Location renders "file:line" or the empty string when unknown.
func (m *ProviderMeta) Location() string {
	if m.File == "" {
		return ""
	}
	return m.File + ":" + strconv.Itoa(m.Line)
}

// callerLocation captures the file and line of the caller skip frames up,
// used to stamp provider declarations with their source location.
func callerLocation(skip int) (string, int) {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "", 0
	}
	return file, line
}
