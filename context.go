package loom

import "context"

type containerContextKey struct{}

// NewContext returns a context carrying the container, typically a request
// scope attached by framework middleware.
func NewContext(ctx context.Context, c *Container) context.Context {
	return context.WithValue(ctx, containerContextKey{}, c)
}

// FromContext returns the container attached to the context, or nil when
// none is attached.
func FromContext(ctx context.Context) *Container {
	c, _ := ctx.Value(containerContextKey{}).(*Container)
	return c
}
