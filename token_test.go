package loom_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mkarren/loom"
)

func TestTokenOf(t *testing.T) {
	t.Parallel()

	t.Run("pointer type", func(t *testing.T) {
		t.Parallel()

		tok := loom.TokenOf[*TConfig]()
		assert.Contains(t, string(tok), "TConfig")
		assert.Equal(t, byte('*'), tok[0])
	})

	t.Run("interface type", func(t *testing.T) {
		t.Parallel()

		tok := loom.TokenOf[loom.Disposable]()
		assert.Contains(t, string(tok), "Disposable")
	})

	t.Run("memoized", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, loom.TokenOf[*TLogger](), loom.TokenOf[*TLogger]())
	})
}

func TestKey(t *testing.T) {
	t.Parallel()

	t.Run("string without tag", func(t *testing.T) {
		t.Parallel()

		k := loom.NewKey("database", "")
		assert.Equal(t, "database", k.String())
	})

	t.Run("string with tag", func(t *testing.T) {
		t.Parallel()

		k := loom.NewKey("database", "replica")
		assert.Equal(t, "database#replica", k.String())
	})

	t.Run("parse round trips", func(t *testing.T) {
		t.Parallel()

		for _, k := range []loom.Key{
			loom.NewKey("database", ""),
			loom.NewKey("database", "replica"),
			loom.NewKey("*pkg.Type", "primary"),
		} {
			assert.Equal(t, k, loom.ParseKey(k.String()))
		}
	})

	t.Run("parse uses last separator", func(t *testing.T) {
		t.Parallel()

		k := loom.ParseKey("a#b#c")
		assert.Equal(t, loom.Token("a#b"), k.Token)
		assert.Equal(t, "c", k.Tag)
	})
}

func TestDepOn(t *testing.T) {
	t.Parallel()

	d := loom.DepOn("cache", "redis")
	assert.Equal(t, loom.Token("cache"), d.Key.Token)
	assert.Equal(t, "redis", d.Key.Tag)
	assert.False(t, d.Optional)
	assert.False(t, d.Lazy)
}
