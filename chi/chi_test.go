package chi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	chirouter "github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarren/loom"
	loomchi "github.com/mkarren/loom/chi"
)

type Greeter struct {
	Who string
}

func NewGreeter() *Greeter {
	return &Greeter{Who: "world"}
}

type GreetController struct {
	G *Greeter
}

func NewGreetController(g *Greeter) *GreetController {
	return &GreetController{G: g}
}

func (c *GreetController) Greet(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("hello " + c.G.Who))
}

func buildContainer(t *testing.T) *loom.Container {
	t.Helper()

	c, err := loom.NewBuilder().
		Provide(NewGreeter, loom.ScopeSingleton).
		Provide(NewGreetController, loom.ScopeRequest).
		Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, c.Shutdown(context.Background()))
	})

	return c
}

func TestScopeMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("attaches a request scope", func(t *testing.T) {
		t.Parallel()

		c := buildContainer(t)

		var seen *loom.Container
		r := chirouter.NewRouter()
		r.Use(loomchi.ScopeMiddleware(c))
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			seen = loom.FromContext(req.Context())
			w.WriteHeader(http.StatusOK)
		})

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, seen)
		assert.True(t, seen.IsRequestScope())
		assert.Same(t, c, seen.Parent())
	})

	t.Run("scopes are per request", func(t *testing.T) {
		t.Parallel()

		c := buildContainer(t)

		var scopes []*loom.Container
		r := chirouter.NewRouter()
		r.Use(loomchi.ScopeMiddleware(c))
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			scopes = append(scopes, loom.FromContext(req.Context()))
		})

		for i := 0; i < 2; i++ {
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		}

		require.Len(t, scopes, 2)
		assert.NotEqual(t, scopes[0].ID(), scopes[1].ID())
	})

	t.Run("middleware failure short-circuits", func(t *testing.T) {
		t.Parallel()

		c := buildContainer(t)

		handlerRan := false
		r := chirouter.NewRouter()
		r.Use(loomchi.ScopeMiddleware(c,
			loomchi.WithMiddleware(func(scope *loom.Container, req *http.Request) error {
				return assert.AnError
			}),
		))
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			handlerRan = true
		})

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.False(t, handlerRan)
	})
}

func TestHandle(t *testing.T) {
	t.Parallel()

	t.Run("resolves the controller from the scope", func(t *testing.T) {
		t.Parallel()

		c := buildContainer(t)

		r := chirouter.NewRouter()
		r.Use(loomchi.ScopeMiddleware(c))
		r.Get("/greet", loomchi.Handle((*GreetController).Greet))

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/greet", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "hello world", rec.Body.String())
	})

	t.Run("missing scope is a server error", func(t *testing.T) {
		t.Parallel()

		r := chirouter.NewRouter()
		r.Get("/greet", loomchi.Handle((*GreetController).Greet))

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/greet", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("resolution failure uses the configured handler", func(t *testing.T) {
		t.Parallel()

		c, err := loom.NewBuilder().Build(context.Background())
		require.NoError(t, err)
		t.Cleanup(func() { require.NoError(t, c.Shutdown(context.Background())) })

		var resolved error
		r := chirouter.NewRouter()
		r.Use(loomchi.ScopeMiddleware(c))
		r.Get("/greet", loomchi.Handle((*GreetController).Greet,
			loomchi.WithResolutionErrorHandler(func(w http.ResponseWriter, req *http.Request, err error) {
				resolved = err
				w.WriteHeader(http.StatusServiceUnavailable)
			}),
		))

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/greet", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.ErrorIs(t, resolved, loom.ErrNotFound)
	})
}
