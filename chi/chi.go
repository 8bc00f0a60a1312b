// Package chi provides loom integration for the Chi router.
//
// ScopeMiddleware forks a request-scoped container per request and attaches
// it to the request context; Handle resolves a controller from that scope
// with a type-safe wrapper.
//
// Example usage:
//
//	c, _ := loom.NewBuilder().AddModule(api).Build(ctx)
//
//	r := chi.NewRouter()
//	r.Use(loomchi.ScopeMiddleware(c))
//
//	r.Post("/login", loomchi.Handle(AuthController.Login))
//	r.Get("/users/{id}", loomchi.Handle(UserController.GetByID))
package chi

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mkarren/loom"
)

// ErrNoScope indicates the request context carries no container, meaning
// ScopeMiddleware is not installed on the route.
var ErrNoScope = errors.New("no container scope attached to request context")

// Config holds the configuration for the scope middleware.
type Config struct {
	// CloseErrorHandler is called when scope shutdown fails. If nil, the
	// failure is logged.
	CloseErrorHandler func(error)

	// ErrorHandler is called when a post-fork middleware fails. If nil, a
	// default handler returning 500 Internal Server Error is used.
	ErrorHandler func(http.ResponseWriter, *http.Request, error)

	// Middlewares run after the scope is forked, before the handler. They
	// can seed request-scoped state such as auth claims.
	Middlewares []func(*loom.Container, *http.Request) error
}

// Option configures the scope middleware.
type Option func(*Config)

// WithErrorHandler sets the handler for middleware failures.
func WithErrorHandler(h func(http.ResponseWriter, *http.Request, error)) Option {
	return func(c *Config) {
		c.ErrorHandler = h
	}
}

// WithCloseErrorHandler sets the handler for scope shutdown failures.
func WithCloseErrorHandler(h func(error)) Option {
	return func(c *Config) {
		c.CloseErrorHandler = h
	}
}

// WithMiddleware adds a function that runs after scope creation. Multiple
// middlewares run in the order they were added.
func WithMiddleware(mw func(*loom.Container, *http.Request) error) Option {
	return func(c *Config) {
		c.Middlewares = append(c.Middlewares, mw)
	}
}

func defaultConfig() *Config {
	return &Config{
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		},
		CloseErrorHandler: func(err error) {
			log.Error().Err(err).Msg("failed to close request scope")
		},
	}
}

// ScopeMiddleware creates a Chi middleware that forks a request-scoped
// container for each request. The scope is attached to the request context
// and can be retrieved with loom.FromContext.
//
// The scope is shut down when the request completes.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Use(loomchi.ScopeMiddleware(c))
func ScopeMiddleware(c *loom.Container, opts ...Option) func(http.Handler) http.Handler {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope := c.CreateRequestScope()

			defer func() {
				if err := scope.Shutdown(r.Context()); err != nil {
					cfg.CloseErrorHandler(err)
				}
			}()

			r = r.WithContext(loom.NewContext(r.Context(), scope))

			for _, mw := range cfg.Middlewares {
				if err := mw(scope, r); err != nil {
					cfg.ErrorHandler(w, r, err)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// HandlerConfig holds configuration for the Handle wrapper.
type HandlerConfig struct {
	// ScopeErrorHandler is called when no scope is attached to the request.
	ScopeErrorHandler func(http.ResponseWriter, *http.Request, error)

	// ResolutionErrorHandler is called when controller resolution fails.
	ResolutionErrorHandler func(http.ResponseWriter, *http.Request, error)
}

// HandlerOption configures the Handle wrapper.
type HandlerOption func(*HandlerConfig)

// WithScopeErrorHandler sets the handler for missing-scope failures.
func WithScopeErrorHandler(h func(http.ResponseWriter, *http.Request, error)) HandlerOption {
	return func(c *HandlerConfig) {
		c.ScopeErrorHandler = h
	}
}

// WithResolutionErrorHandler sets the handler for resolution failures.
func WithResolutionErrorHandler(h func(http.ResponseWriter, *http.Request, error)) HandlerOption {
	return func(c *HandlerConfig) {
		c.ResolutionErrorHandler = h
	}
}

func defaultHandlerConfig() *HandlerConfig {
	return &HandlerConfig{
		ScopeErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Error().Err(err).Msg("failed to get scope from context")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		},
		ResolutionErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Error().Err(err).Msg("failed to resolve controller")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		},
	}
}

// Handle wraps a controller method for type-safe resolution from the scope
// attached to the request context.
//
// The method signature should be: func(T, http.ResponseWriter, *http.Request)
//
// Example:
//
//	r.Get("/users/{id}", loomchi.Handle(UserController.GetByID))
func Handle[T any](method func(T, http.ResponseWriter, *http.Request), opts ...HandlerOption) http.HandlerFunc {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		scope := loom.FromContext(r.Context())
		if scope == nil {
			cfg.ScopeErrorHandler(w, r, ErrNoScope)
			return
		}

		controller, err := loom.Resolve[T](r.Context(), scope)
		if err != nil {
			cfg.ResolutionErrorHandler(w, r, err)
			return
		}

		method(controller, w, r)
	}
}
