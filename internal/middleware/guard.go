package middleware

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/ipguard/internal/ratelimit"
	"go.uber.org/zap"
)

// Guard returns a Huma middleware that admits requests through the limiter.
//
// Only operations carrying ratelimit.MetadataKey metadata are guarded; the
// metadata selects the traffic class or disables the check. Storage failures
// are logged and the limiter's decision is still honoured.
func Guard(
	api huma.API,
	limiter ratelimit.Limiter,
	keyFunc ClientKeyFunc,
	logger *zap.Logger,
) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		cfg := ratelimit.GetEndpointConfig(ctx)
		if cfg == nil {
			next(ctx)

			return
		}

		path := getOperationPath(ctx)

		if cfg.Disabled {
			logger.Debug("rate limiting disabled for endpoint",
				zap.String("path", path), zap.String("method", ctx.Method()))
			next(ctx)

			return
		}

		key := keyFunc(ctx)

		result, err := limiter.Admit(ctx.Context(), key, cfg.Class)
		if err != nil {
			if errors.Is(err, ratelimit.ErrInvalidInput) {
				logger.Error("rate limit check rejected input",
					zap.String("path", path),
					zap.String("client_key", string(key)),
					zap.Error(err),
				)
				_ = huma.WriteErr(api, ctx, http.StatusInternalServerError, "internal server error", err)

				return
			}

			logger.Warn("rate limit storage degraded",
				zap.String("path", path),
				zap.String("client_key", string(key)),
				zap.Error(err),
			)
		}

		if !result.Admitted() {
			handleRejected(api, ctx, result, key, path, logger)

			return
		}

		ctx.SetHeader("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		ctx.SetHeader("X-RateLimit-Remaining", strconv.Itoa(max(result.Limit-result.Count, 0)))

		next(ctx)
	}
}

func handleRejected(
	api huma.API,
	ctx huma.Context,
	result ratelimit.Result,
	key ratelimit.ClientKey,
	path string,
	logger *zap.Logger,
) {
	logger.Warn("request rejected",
		zap.String("path", path),
		zap.String("method", ctx.Method()),
		zap.String("client_key", string(key)),
		zap.String("class", string(result.Class)),
		zap.String("reason", string(result.Reason)),
		zap.Int("count", result.Count),
		zap.Int("limit", result.Limit),
		zap.Int64("violations", result.Violations),
	)

	if result.RetryAfter > 0 {
		seconds := int(math.Ceil(result.RetryAfter.Seconds()))
		ctx.SetHeader("Retry-After", strconv.Itoa(seconds))
	}

	msg := "rate limit exceeded"
	if result.Reason == ratelimit.ReasonBlocked {
		msg = "client blocked"
	}

	_ = huma.WriteErr(api, ctx, http.StatusTooManyRequests, msg)
}

// getOperationPath extracts the path from the operation, if available.
func getOperationPath(ctx huma.Context) string {
	if op := ctx.Operation(); op != nil {
		return op.Path
	}

	return ""
}
