package loomtest_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarren/loom"
	"github.com/mkarren/loom/loomtest"
)

type Store interface {
	Get(key string) string
}

type realStore struct{}

func (realStore) Get(string) string { return "real" }

type fakeStore struct{}

func (fakeStore) Get(string) string { return "fake" }

func TestNew_PermitsOverride(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := loomtest.New(t)

	// Swapping the registration is exactly what a production container
	// rejects.
	require.NoError(t, c.Register(loom.NewValue("store", realStore{}), ""))
	require.NoError(t, c.Register(loom.NewValue("store", fakeStore{}), ""))

	v, err := c.Resolve(ctx, "store")
	require.NoError(t, err)
	assert.Equal(t, "fake", v.(Store).Get("k"))
}

func TestReplaceValue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := loomtest.New(t)

	require.NoError(t, c.Register(loom.NewValue("answer", 1), ""))
	loomtest.ReplaceValue(t, c, "answer", 42)

	v, err := c.Resolve(ctx, "answer")
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

type widget struct {
	Label string
}

func TestReplace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := loomtest.New(t)

	loomtest.Replace(t, c, func() *widget { return &widget{Label: "original"} }, loom.ScopeSingleton)
	loomtest.Replace(t, c, func() *widget { return &widget{Label: "double"} }, loom.ScopeSingleton)

	w, err := loom.Resolve[*widget](ctx, c)
	require.NoError(t, err)
	assert.Equal(t, "double", w.Label)
}

func TestScope(t *testing.T) {
	t.Parallel()

	c := loomtest.New(t)
	scope := loomtest.Scope(t, c)

	assert.True(t, scope.IsRequestScope())
	assert.Same(t, c, scope.Parent())
}
