package loom_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarren/loom"
)

func TestScope_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "singleton", loom.ScopeSingleton.String())
	assert.Equal(t, "request", loom.ScopeRequest.String())
	assert.Equal(t, "transient", loom.ScopeTransient.String())
	assert.Equal(t, "pooled", loom.ScopePooled.String())
	assert.Contains(t, loom.Scope(42).String(), "unknown")
}

func TestScope_Aliases(t *testing.T) {
	t.Parallel()

	assert.Equal(t, loom.ScopeSingleton, loom.ScopeApp)
	assert.Equal(t, loom.ScopeRequest, loom.ScopeEphemeral)
}

func TestScope_Cacheable(t *testing.T) {
	t.Parallel()

	assert.True(t, loom.ScopeSingleton.Cacheable())
	assert.True(t, loom.ScopeRequest.Cacheable())
	assert.False(t, loom.ScopeTransient.Cacheable())
	assert.False(t, loom.ScopePooled.Cacheable())
}

func TestScope_CanInjectInto(t *testing.T) {
	t.Parallel()

	scopes := []loom.Scope{
		loom.ScopeSingleton, loom.ScopeRequest, loom.ScopeTransient, loom.ScopePooled,
	}

	for _, dep := range scopes {
		for _, consumer := range scopes {
			got := dep.CanInjectInto(consumer)
			if dep == loom.ScopeRequest && consumer == loom.ScopeSingleton {
				assert.False(t, got, "request into singleton must be rejected")
			} else {
				assert.True(t, got, "%s into %s should be allowed", dep, consumer)
			}
		}
	}
}

func TestScope_JSON(t *testing.T) {
	t.Parallel()

	t.Run("marshal", func(t *testing.T) {
		t.Parallel()

		data, err := json.Marshal(loom.ScopeRequest)
		require.NoError(t, err)
		assert.Equal(t, `"request"`, string(data))
	})

	t.Run("unmarshal canonical names", func(t *testing.T) {
		t.Parallel()

		var s loom.Scope
		require.NoError(t, json.Unmarshal([]byte(`"pooled"`), &s))
		assert.Equal(t, loom.ScopePooled, s)
	})

	t.Run("unmarshal aliases", func(t *testing.T) {
		t.Parallel()

		var s loom.Scope
		require.NoError(t, json.Unmarshal([]byte(`"app"`), &s))
		assert.Equal(t, loom.ScopeSingleton, s)

		require.NoError(t, json.Unmarshal([]byte(`"ephemeral"`), &s))
		assert.Equal(t, loom.ScopeRequest, s)
	})

	t.Run("unmarshal rejects unknown", func(t *testing.T) {
		t.Parallel()

		var s loom.Scope
		err := json.Unmarshal([]byte(`"global"`), &s)
		var se *loom.ScopeError
		require.ErrorAs(t, err, &se)
	})

	t.Run("marshal rejects invalid", func(t *testing.T) {
		t.Parallel()

		_, err := json.Marshal(loom.Scope(99))
		require.Error(t, err)
	})
}
