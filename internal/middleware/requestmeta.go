package middleware

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/ipguard/internal/handlers"
)

// RequestMeta is a middleware that adds the client key and user-agent to the request context.
func RequestMeta(_ huma.API, keyFunc ClientKeyFunc) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		meta := handlers.RequestMeta{
			ClientKey: keyFunc(ctx),
			UserAgent: ctx.Header("User-Agent"),
		}

		newCtx := handlers.ContextWithRequestMeta(ctx.Context(), meta)
		ctx = huma.WithContext(ctx, newCtx)

		next(ctx)
	}
}
