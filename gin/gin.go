// Package gin provides loom integration for the Gin web framework.
//
// ScopeMiddleware forks a request-scoped container per request and attaches
// it to the request context; Handle resolves a controller from that scope
// with a type-safe wrapper.
//
// Example usage:
//
//	c, _ := loom.NewBuilder().AddModule(api).Build(ctx)
//
//	g := gin.New()
//	g.Use(loomgin.ScopeMiddleware(c))
//
//	g.POST("/login", loomgin.Handle(AuthController.Login))
//	g.GET("/users/:id", loomgin.Handle(UserController.GetByID))
package gin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mkarren/loom"
)

// ErrNoScope indicates the request context carries no container, meaning
// ScopeMiddleware is not installed on the route.
var ErrNoScope = errors.New("no container scope attached to request context")

// Config holds the configuration for the scope middleware.
type Config struct {
	// ErrorHandler is called when a post-fork middleware fails. If nil, a
	// default handler returning 500 Internal Server Error is used.
	ErrorHandler func(*gin.Context, error)

	// CloseErrorHandler is called when scope shutdown fails. If nil, the
	// failure is logged.
	CloseErrorHandler func(error)

	// Middlewares run after the scope is forked, before the handler. They
	// can seed request-scoped state such as auth claims.
	Middlewares []func(*loom.Container, *gin.Context) error
}

// Option configures the scope middleware.
type Option func(*Config)

// WithErrorHandler sets the handler for middleware failures.
func WithErrorHandler(h func(*gin.Context, error)) Option {
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
//
// Example:
//
//	loomgin.ScopeMiddleware(c,
//	    loomgin.WithMiddleware(func(scope *loom.Container, gc *gin.Context) error {
//	        reqCtx := loom.MustResolve[*request.Context](gc.Request.Context(), scope)
//	        reqCtx.SetGinContext(gc)
//	        return nil
//	    }),
//	)
func WithMiddleware(mw func(*loom.Container, *gin.Context) error) Option {
	return func(c *Config) {
		c.Middlewares = append(c.Middlewares, mw)
	}
}

func defaultConfig() *Config {
	return &Config{
		ErrorHandler: func(c *gin.Context, err error) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Internal Server Error",
			})
		},
		CloseErrorHandler: func(err error) {
			log.Error().Err(err).Msg("failed to close request scope")
		},
	}
}

// ScopeMiddleware creates a gin.HandlerFunc that forks a request-scoped
// container for each request. The scope is attached to the request context
// and can be retrieved with loom.FromContext.
//
// The scope is shut down when the request completes.
//
// Example:
//
//	g := gin.New()
//	g.Use(loomgin.ScopeMiddleware(c))
func ScopeMiddleware(c *loom.Container, opts ...Option) gin.HandlerFunc {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(gc *gin.Context) {
		scope := c.CreateRequestScope()

		defer func() {
			if err := scope.Shutdown(gc.Request.Context()); err != nil {
				cfg.CloseErrorHandler(err)
			}
		}()

		gc.Request = gc.Request.WithContext(loom.NewContext(gc.Request.Context(), scope))

		for _, mw := range cfg.Middlewares {
			if err := mw(scope, gc); err != nil {
				cfg.ErrorHandler(gc, err)
				return
			}
		}

		gc.Next()
	}
}

// HandlerConfig holds configuration for the Handle wrapper.
type HandlerConfig struct {
	// ScopeErrorHandler is called when no scope is attached to the request.
	ScopeErrorHandler func(*gin.Context, error)

	// ResolutionErrorHandler is called when controller resolution fails.
	ResolutionErrorHandler func(*gin.Context, error)
}

// HandlerOption configures the Handle wrapper.
type HandlerOption func(*HandlerConfig)

// WithScopeErrorHandler sets the handler for missing-scope failures.
func WithScopeErrorHandler(h func(*gin.Context, error)) HandlerOption {
	return func(c *HandlerConfig) {
		c.ScopeErrorHandler = h
	}
}

// WithResolutionErrorHandler sets the handler for resolution failures.
func WithResolutionErrorHandler(h func(*gin.Context, error)) HandlerOption {
	return func(c *HandlerConfig) {
		c.ResolutionErrorHandler = h
	}
}

func defaultHandlerConfig() *HandlerConfig {
	return &HandlerConfig{
		ScopeErrorHandler: func(c *gin.Context, err error) {
			log.Error().Err(err).Msg("failed to get scope from context")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Internal Server Error",
			})
		},
		ResolutionErrorHandler: func(c *gin.Context, err error) {
			log.Error().Err(err).Msg("failed to resolve controller")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Internal Server Error",
			})
		},
	}
}

// Handle wraps a controller method for type-safe resolution from the scope
// attached to the request context.
//
// The method signature should be: func(T, *gin.Context)
//
// Example:
//
//	g.GET("/users/:id", loomgin.Handle(UserController.GetByID))
func Handle[T any](method func(T, *gin.Context), opts ...HandlerOption) gin.HandlerFunc {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(gc *gin.Context) {
		scope := loom.FromContext(gc.Request.Context())
		if scope == nil {
			cfg.ScopeErrorHandler(gc, ErrNoScope)
			return
		}

		controller, err := loom.Resolve[T](gc.Request.Context(), scope)
		if err != nil {
			cfg.ResolutionErrorHandler(gc, err)
			return
		}

		method(controller, gc)
	}
}
