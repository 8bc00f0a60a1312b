package loom_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarren/loom"
)

func buildManifestContainer(t *testing.T, reversed bool) *loom.Container {
	t.Helper()

	c := loom.New()
	regs := []func(){
		func() {
			p, err := loom.NewClass(NewTConfig, loom.ScopeSingleton, loom.WithModule("core"))
			require.NoError(t, err)
			require.NoError(t, c.Register(p, ""))
		},
		func() {
			p, err := loom.NewClass(NewTLogger, loom.ScopeSingleton, loom.WithModule("core"))
			require.NoError(t, err)
			require.NoError(t, c.Register(p, ""))
		},
		func() {
			require.NoError(t, c.Register(loom.NewValue("answer", 42), ""))
		},
	}

	if reversed {
		for i := len(regs) - 1; i >= 0; i-- {
			regs[i]()
		}
	} else {
		for _, reg := range regs {
			reg()
		}
	}

	return c
}

func TestManifest(t *testing.T) {
	t.Parallel()

	t.Run("snapshot covers every registration", func(t *testing.T) {
		t.Parallel()

		c := buildManifestContainer(t, false)
		m := c.Manifest()

		require.Len(t, m.Providers, 3)
		assert.NotEmpty(t, m.Fingerprint)

		logger := m.Providers[1]
		assert.Equal(t, "core", logger.Meta.Module)
		require.Len(t, logger.Deps, 1)
		assert.Equal(t, string(loom.TokenOf[*TConfig]()), logger.Deps[0].Key)
	})

	t.Run("fingerprint independent of registration order", func(t *testing.T) {
		t.Parallel()

		a := buildManifestContainer(t, false).Manifest()
		b := buildManifestContainer(t, true).Manifest()
		assert.Equal(t, a.Fingerprint, b.Fingerprint)
	})

	t.Run("fingerprint changes with wiring", func(t *testing.T) {
		t.Parallel()

		base := buildManifestContainer(t, false).Manifest()

		c := buildManifestContainer(t, false)
		require.NoError(t, c.Register(loom.NewValue("extra", 1), ""))
		assert.NotEqual(t, base.Fingerprint, c.Manifest().Fingerprint)
	})

	t.Run("fingerprint ignores declaration location", func(t *testing.T) {
		t.Parallel()

		// Same wiring declared at different source lines.
		c1 := loom.New()
		require.NoError(t, c1.Register(loom.NewValue("answer", 42), ""))
		c2 := loom.New()
		require.NoError(t, c2.Register(loom.NewValue("answer", 42), ""))

		m1, m2 := c1.Manifest(), c2.Manifest()
		assert.NotEqual(t, m1.Providers[0].Meta.Line, m2.Providers[0].Meta.Line)
		assert.Equal(t, m1.Fingerprint, m2.Fingerprint)
	})

	t.Run("json round trip verifies fingerprint", func(t *testing.T) {
		t.Parallel()

		m := buildManifestContainer(t, false).Manifest()
		data, err := json.Marshal(m)
		require.NoError(t, err)

		parsed, err := loom.ParseManifest(data)
		require.NoError(t, err)
		assert.Equal(t, m.Fingerprint, parsed.Fingerprint)
		assert.Len(t, parsed.Providers, 3)
	})

	t.Run("tampered manifest rejected", func(t *testing.T) {
		t.Parallel()

		m := buildManifestContainer(t, false).Manifest()
		data, err := json.Marshal(m)
		require.NoError(t, err)

		var raw map[string]any
		require.NoError(t, json.Unmarshal(data, &raw))
		raw["fingerprint"] = "0000000000000000"
		tampered, err := json.Marshal(raw)
		require.NoError(t, err)

		_, err = loom.ParseManifest(tampered)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fingerprint mismatch")
	})
}

func TestManifest_Diff(t *testing.T) {
	t.Parallel()

	t.Run("identical manifests diff empty", func(t *testing.T) {
		t.Parallel()

		a := buildManifestContainer(t, false).Manifest()
		b := buildManifestContainer(t, true).Manifest()

		diff := a.Diff(b)
		assert.True(t, diff.Empty())
	})

	t.Run("added and removed keys", func(t *testing.T) {
		t.Parallel()

		old := loom.New()
		require.NoError(t, old.Register(loom.NewValue("keep", 1), ""))
		require.NoError(t, old.Register(loom.NewValue("gone", 2), ""))

		fresh := loom.New()
		require.NoError(t, fresh.Register(loom.NewValue("keep", 1), ""))
		require.NoError(t, fresh.Register(loom.NewValue("new", 3), ""))

		diff := old.Manifest().Diff(fresh.Manifest())
		assert.Equal(t, []string{"new"}, diff.Added)
		assert.Equal(t, []string{"gone"}, diff.Removed)
		assert.Empty(t, diff.Changed)
		assert.False(t, diff.Empty())
	})

	t.Run("changed wiring detected", func(t *testing.T) {
		t.Parallel()

		old := loom.New()
		p, err := loom.NewClass(NewTConfig, loom.ScopeSingleton)
		require.NoError(t, err)
		require.NoError(t, old.Register(p, ""))

		fresh := loom.New()
		p2, err := loom.NewClass(NewTConfig, loom.ScopeRequest)
		require.NoError(t, err)
		require.NoError(t, fresh.Register(p2, ""))

		diff := old.Manifest().Diff(fresh.Manifest())
		require.Len(t, diff.Changed, 1)
		assert.Equal(t, string(loom.TokenOf[*TConfig]()), diff.Changed[0])
	})
}
