package loom_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarren/loom"
)

func TestModule_Declarations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("providers carry module metadata", func(t *testing.T) {
		t.Parallel()

		m := loom.NewModule("core").
			Version("2.1.0").
			Provide(NewTConfig, loom.ScopeSingleton).
			Provide(NewTLogger, loom.ScopeSingleton)

		c, err := loom.NewBuilder().AddModule(m).Build(ctx)
		require.NoError(t, err)
		defer c.Shutdown(ctx)

		p, ok := c.ProviderFor(loom.NewKey(loom.TokenOf[*TConfig](), ""))
		require.True(t, ok)
		assert.Equal(t, "core", p.Meta().Module)
		assert.Equal(t, "2.1.0", p.Meta().Version)
		assert.Contains(t, p.Meta().Location(), "module_test.go")
	})

	t.Run("value and factory declarations", func(t *testing.T) {
		t.Parallel()

		m := loom.NewModule("config").
			ProvideValue("answer", 42).
			ProvideFactory("greeting", func() string { return "hi" }, loom.ScopeSingleton)

		c, err := loom.NewBuilder().AddModule(m).Build(ctx)
		require.NoError(t, err)
		defer c.Shutdown(ctx)

		v, err := c.Resolve(ctx, "answer")
		require.NoError(t, err)
		assert.Equal(t, 42, v)

		g, err := c.Resolve(ctx, "greeting")
		require.NoError(t, err)
		assert.Equal(t, "hi", g)
	})

	t.Run("tagged sets the tag of the last declaration", func(t *testing.T) {
		t.Parallel()

		m := loom.NewModule("db").
			ProvideValue("conn", "primary-dsn").Tagged("primary").
			ProvideValue("conn", "replica-dsn").Tagged("replica")

		c, err := loom.NewBuilder().AddModule(m).Build(ctx)
		require.NoError(t, err)
		defer c.Shutdown(ctx)

		v, err := c.ResolveTagged(ctx, "conn", "replica")
		require.NoError(t, err)
		assert.Equal(t, "replica-dsn", v)
	})

	t.Run("included modules register first", func(t *testing.T) {
		t.Parallel()

		base := loom.NewModule("base").ProvideValue("base-key", 1)
		top := loom.NewModule("top").Include(base).ProvideValue("top-key", 2)

		c, err := loom.NewBuilder().AddModule(top).Build(ctx)
		require.NoError(t, err)
		defer c.Shutdown(ctx)

		keys := c.Keys()
		require.Len(t, keys, 2)
		assert.Equal(t, "base-key", keys[0].String())

		p, ok := c.ProviderFor(loom.NewKey("base-key", ""))
		require.True(t, ok)
		assert.Equal(t, "base", p.Meta().Module, "included module keeps its own name")
	})

	t.Run("broken declaration attributed to the module", func(t *testing.T) {
		t.Parallel()

		m := loom.NewModule("broken").
			Provide(func() error { return nil }, loom.ScopeSingleton)

		_, err := loom.NewBuilder().AddModule(m).Build(ctx)
		var be *loom.BuildError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, "registration", be.Phase)
		assert.Contains(t, err.Error(), `module "broken"`)
	})
}

func TestModule_CrossModuleValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("undeclared cross-module dependency rejected", func(t *testing.T) {
		t.Parallel()

		inventory := loom.NewModule("inventory").
			Provide(NewTConfig, loom.ScopeSingleton)
		billing := loom.NewModule("billing").
			Provide(NewTLogger, loom.ScopeSingleton)

		_, err := loom.NewBuilder().AddModule(inventory).AddModule(billing).Build(ctx)

		var be *loom.BuildError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, "cross-module", be.Phase)

		var cme *loom.CrossModuleError
		require.ErrorAs(t, err, &cme)
		assert.Equal(t, "billing", cme.ConsumerModule)
		assert.Equal(t, "inventory", cme.OwnerModule)
	})

	t.Run("declared prerequisite passes", func(t *testing.T) {
		t.Parallel()

		inventory := loom.NewModule("inventory").
			Provide(NewTConfig, loom.ScopeSingleton)
		billing := loom.NewModule("billing").
			Require("inventory").
			Provide(NewTLogger, loom.ScopeSingleton)

		c, err := loom.NewBuilder().AddModule(inventory).AddModule(billing).Build(ctx)
		require.NoError(t, err)
		defer c.Shutdown(ctx)

		log, err := loom.Resolve[*TLogger](ctx, c)
		require.NoError(t, err)
		assert.NotNil(t, log.Cfg)
	})

	t.Run("module-less providers are unrestricted", func(t *testing.T) {
		t.Parallel()

		inventory := loom.NewModule("inventory").
			Provide(NewTConfig, loom.ScopeSingleton)

		c, err := loom.NewBuilder().
			AddModule(inventory).
			Provide(NewTLogger, loom.ScopeSingleton).
			Build(ctx)
		require.NoError(t, err)
		defer c.Shutdown(ctx)
	})
}
