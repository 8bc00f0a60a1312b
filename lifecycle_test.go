package loom_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarren/loom"
)

func TestLifecycle_StartupHooks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("priority order, ties by registration", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		var order []string
		record := func(name string) func(context.Context) error {
			return func(context.Context) error {
				mu.Lock()
				defer mu.Unlock()
				order = append(order, name)
				return nil
			}
		}

		c := loom.New()
		c.OnStartup(loom.Hook{Name: "low", Priority: 0, Run: record("low")})
		c.OnStartup(loom.Hook{Name: "high", Priority: 10, Run: record("high")})
		c.OnStartup(loom.Hook{Name: "low-2", Priority: 0, Run: record("low-2")})
		c.OnStartup(loom.Hook{Name: "mid", Priority: 5, Run: record("mid")})

		require.NoError(t, c.Start(ctx))
		assert.Equal(t, []string{"high", "mid", "low", "low-2"}, order)
	})

	t.Run("all hooks attempted, failures aggregated", func(t *testing.T) {
		t.Parallel()

		e1 := errors.New("first failure")
		e2 := errors.New("second failure")
		ran := 0

		c := loom.New()
		c.OnStartup(loom.Hook{Name: "bad-1", Run: func(context.Context) error { ran++; return e1 }})
		c.OnStartup(loom.Hook{Name: "good", Run: func(context.Context) error { ran++; return nil }})
		c.OnStartup(loom.Hook{Name: "bad-2", Run: func(context.Context) error { ran++; return e2 }})

		err := c.Start(ctx)
		var agg *loom.AggregateError
		require.ErrorAs(t, err, &agg)
		assert.Len(t, agg.Errors, 2)
		assert.Equal(t, 3, ran, "a failing hook must not stop the rest")
		require.ErrorIs(t, err, e1)
		require.ErrorIs(t, err, e2)
	})

	t.Run("start after shutdown fails", func(t *testing.T) {
		t.Parallel()

		c := loom.New()
		require.NoError(t, c.Shutdown(ctx))
		require.ErrorIs(t, c.Start(ctx), loom.ErrContainerDisposed)
	})
}

func TestLifecycle_ShutdownHooks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("run before finalizers, failure does not abort", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		var order []string
		record := func(name string) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
		}

		c := loom.New()
		c.OnShutdown(loom.Hook{Name: "drain", Run: func(context.Context) error {
			record("drain")
			return errors.New("drain failed")
		}})
		c.AddFinalizer("close-db", func(context.Context) error {
			record("close-db")
			return nil
		})

		require.NoError(t, c.Shutdown(ctx))
		assert.Equal(t, []string{"drain", "close-db"}, order)
	})
}

func TestLifecycle_Finalizers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	addNamed := func(c *loom.Container, log *closeLog, names ...string) {
		for _, name := range names {
			name := name
			c.AddFinalizer(name, func(context.Context) error {
				log.record(name)
				return nil
			})
		}
	}

	t.Run("parallel strategy runs all finalizers", func(t *testing.T) {
		t.Parallel()

		log := &closeLog{}
		c := loom.New(loom.WithDisposalStrategy(loom.DisposeParallel))
		addNamed(c, log, "a", "b", "c")

		require.NoError(t, c.Shutdown(ctx))
		assert.ElementsMatch(t, []string{"a", "b", "c"}, log.names())
	})

	t.Run("finalizer failure never aborts the rest", func(t *testing.T) {
		t.Parallel()

		log := &closeLog{}
		c := loom.New()
		c.AddFinalizer("bad", func(context.Context) error {
			log.record("bad")
			return errors.New("close failed")
		})
		addNamed(c, log, "good")

		require.NoError(t, c.Shutdown(ctx))
		assert.ElementsMatch(t, []string{"good", "bad"}, log.names())
	})

	t.Run("finalizers run once", func(t *testing.T) {
		t.Parallel()

		log := &closeLog{}
		c := loom.New()
		addNamed(c, log, "once")

		require.NoError(t, c.Shutdown(ctx))
		require.NoError(t, c.Shutdown(ctx))
		assert.Equal(t, []string{"once"}, log.names())
	})
}
