package loom

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Manifest is a serializable snapshot of a container's registration set:
// every provider's metadata plus the dependency edges between them. Two
// deployments with identical manifests wire the same object graph; the
// fingerprint makes that comparison one string.
type Manifest struct {
	// Providers in registration order.
	Providers []ManifestEntry `json:"providers"`

	// Fingerprint is a stable content hash over the providers and edges.
	Fingerprint string `json:"fingerprint"`
}

// ManifestEntry is one provider in the manifest.
type ManifestEntry struct {
	Key  string        `json:"key"`
	Meta *ProviderMeta `json:"meta"`

	// Deps are the declared dependency keys, lazy and optional included.
	Deps []ManifestDep `json:"deps,omitempty"`
}

// ManifestDep is one declared dependency edge.
type ManifestDep struct {
	Key      string `json:"key"`
	Optional bool   `json:"optional,omitempty"`
	Lazy     bool   `json:"lazy,omitempty"`
}

// Manifest snapshots the container's current registrations.
func (c *Container) Manifest() *Manifest {
	m := &Manifest{}

	for _, key := range c.reg.keys() {
		p, ok := c.reg.lookup(key)
		if !ok {
			continue
		}

		entry := ManifestEntry{
			Key:  key.String(),
			Meta: p.Meta().clone(),
		}
		for _, dep := range p.Dependencies() {
			entry.Deps = append(entry.Deps, ManifestDep{
				Key:      dep.Key.String(),
				Optional: dep.Optional,
				Lazy:     dep.Lazy,
			})
		}

		m.Providers = append(m.Providers, entry)
	}

	m.Fingerprint = m.fingerprint()
	return m
}

// fingerprint hashes the structural identity of the registration set. File
// and line are excluded so moving a declaration does not change the
// fingerprint; everything that affects wiring is included.
func (m *Manifest) fingerprint() string {
	// Keys are hashed sorted, so fingerprints compare across processes that
	// registered in different orders.
	entries := make([]ManifestEntry, len(m.Providers))
	copy(entries, m.Providers)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	h := xxhash.New()
	for _, e := range entries {
		h.WriteString(e.Key)
		h.WriteString("\x00")
		if e.Meta != nil {
			h.WriteString(string(e.Meta.Token))
			h.WriteString("\x00")
			h.WriteString(e.Meta.Scope.String())
			h.WriteString("\x00")
			h.WriteString(e.Meta.Module)
			h.WriteString("\x00")
			h.WriteString(e.Meta.Version)
			h.WriteString("\x00")
			h.WriteString(e.Meta.QualifiedName)
			h.WriteString("\x00")
			for _, tag := range e.Meta.Tags {
				h.WriteString(tag)
				h.WriteString("\x1f")
			}
			if e.Meta.AllowLazy {
				h.WriteString("lazy-ok")
			}
			h.WriteString("\x00")
		}
		for _, d := range e.Deps {
			h.WriteString(d.Key)
			if d.Optional {
				h.WriteString("?")
			}
			if d.Lazy {
				h.WriteString("~")
			}
			h.WriteString("\x1f")
		}
		h.WriteString("\x00")
	}

	return fmt.Sprintf("%016x", h.Sum64())
}

// MarshalJSON renders the manifest with a freshly computed fingerprint, so
// a mutated manifest never serializes a stale hash.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	type alias Manifest
	out := alias(*m)
	out.Fingerprint = m.fingerprint()
	return json.Marshal(out)
}

// ParseManifest decodes a manifest and verifies its fingerprint against the
// decoded content.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	if want := m.fingerprint(); m.Fingerprint != "" && m.Fingerprint != want {
		return nil, fmt.Errorf("manifest fingerprint mismatch: recorded %s, computed %s", m.Fingerprint, want)
	}
	m.Fingerprint = m.fingerprint()

	return &m, nil
}

// ManifestDiff describes how one manifest's registration set differs from
// another's.
type ManifestDiff struct {
	Added   []string // keys present only in the newer manifest
	Removed []string // keys present only in the older manifest
	Changed []string // keys present in both with differing wiring
}

// Empty reports whether the two manifests wire identical graphs.
func (d *ManifestDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Diff compares m (the older snapshot) against newer. Key sets and per-key
// wiring are compared; declaration locations are ignored, matching the
// fingerprint.
func (m *Manifest) Diff(newer *Manifest) *ManifestDiff {
	old := make(map[string]ManifestEntry, len(m.Providers))
	for _, e := range m.Providers {
		old[e.Key] = e
	}
	fresh := make(map[string]ManifestEntry, len(newer.Providers))
	for _, e := range newer.Providers {
		fresh[e.Key] = e
	}

	diff := &ManifestDiff{}

	for key, e := range fresh {
		prev, ok := old[key]
		if !ok {
			diff.Added = append(diff.Added, key)
			continue
		}
		if !entriesEqual(prev, e) {
			diff.Changed = append(diff.Changed, key)
		}
	}
	for key := range old {
		if _, ok := fresh[key]; !ok {
			diff.Removed = append(diff.Removed, key)
		}
	}

	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	sort.Strings(diff.Changed)
	return diff
}

func entriesEqual(a, b ManifestEntry) bool {
	single := func(e ManifestEntry) string {
		m := Manifest{Providers: []ManifestEntry{e}}
		return m.fingerprint()
	}
	return single(a) == single(b)
}
