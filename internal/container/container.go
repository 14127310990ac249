package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/ipguard/internal/audit"
	auditstore "github.com/serroba/ipguard/internal/audit/store"
	"github.com/serroba/ipguard/internal/handlers"
	"github.com/serroba/ipguard/internal/health"
	"github.com/serroba/ipguard/internal/messaging"
	"github.com/serroba/ipguard/internal/metrics"
	"github.com/serroba/ipguard/internal/middleware"
	"github.com/serroba/ipguard/internal/ratelimit"
	"github.com/serroba/ipguard/internal/store"
	"go.uber.org/zap"
)

const connectTimeout = 5 * time.Second

// RedisClient owns the shared Redis connection.
type RedisClient struct {
	*redis.Client
}

func (r *RedisClient) Shutdown() error {
	return r.Close()
}

// PostgresPool owns the shared PostgreSQL pool.
type PostgresPool struct {
	*pgxpool.Pool
}

func (p *PostgresPool) Shutdown() error {
	p.Close()

	return nil
}

func LoggerPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*zap.Logger, error) {
		opts := do.MustInvoke[*Options](i)

		if opts.LogFormat == "console" {
			return zap.NewDevelopment()
		}

		return zap.NewProduction()
	})
}

func RedisPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*RedisClient, error) {
		opts := do.MustInvoke[*Options](i)

		client := redis.NewClient(&redis.Options{
			Addr: opts.RedisAddr,
		})

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()

			return nil, fmt.Errorf("connect redis %s: %w", opts.RedisAddr, err)
		}

		return &RedisClient{Client: client}, nil
	})
}

func PostgresPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*PostgresPool, error) {
		opts := do.MustInvoke[*Options](i)

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		pool, err := pgxpool.New(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("create postgres pool: %w", err)
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()

			return nil, fmt.Errorf("connect postgres: %w", err)
		}

		return &PostgresPool{Pool: pool}, nil
	})
}

// StorePackage provides the limiter stores for the backend selected by --store.
func StorePackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (ratelimit.Stores, error) {
		opts := do.MustInvoke[*Options](i)

		switch opts.Store {
		case StoreMemory:
			return store.NewMemoryStores(), nil
		case StoreRedis:
			return store.NewRedisStores(do.MustInvoke[*RedisClient](i).Client), nil
		case StorePostgres:
			pool := do.MustInvoke[*PostgresPool](i)

			ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
			defer cancel()

			if err := store.EnsureRateLimitSchema(ctx, pool.Pool); err != nil {
				return ratelimit.Stores{}, err
			}

			stores := store.NewPostgresStores(pool.Pool)

			ttl, err := opts.BlockCacheDuration()
			if err != nil {
				return ratelimit.Stores{}, err
			}

			if ttl > 0 {
				stores.Blocks = store.NewRedisCachedBlockList(stores.Blocks, do.MustInvoke[*RedisClient](i).Client, ttl)
			}

			return stores, nil
		default:
			return ratelimit.Stores{}, fmt.Errorf("unknown store backend %q", opts.Store)
		}
	})
}

func MetricsPackage(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (*metrics.Recorder, error) {
		reg := metrics.NewRegistry()

		return metrics.New(reg, reg), nil
	})
}

// RateLimitPackage provides the limiter wired to metrics and, when enabled,
// the block event stream.
func RateLimitPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*ratelimit.RateLimiter, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		stores := do.MustInvoke[ratelimit.Stores](i)
		recorder := do.MustInvoke[*metrics.Recorder](i)

		cfg, err := opts.RateLimitConfig()
		if err != nil {
			return nil, err
		}

		sinks := ratelimit.MultiSink{recorder}

		if opts.Events {
			group := do.MustInvoke[*messaging.PublisherGroup](i)
			publish := messaging.NewPublishFunc[audit.BlockedEvent](
				group.Publisher(), audit.TopicIPBlocked, ratelimit.EventIPBlocked,
			)
			sinks = append(sinks, audit.NewNotifier(publish, float64(opts.EventRate), opts.EventBurst))
		}

		return ratelimit.New(stores, cfg,
			ratelimit.WithLogger(logger),
			ratelimit.WithObserver(recorder),
			ratelimit.WithEventSink(sinks),
		)
	})
}

func SweeperPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*ratelimit.Sweeper, error) {
		opts := do.MustInvoke[*Options](i)
		limiter := do.MustInvoke[*ratelimit.RateLimiter](i)
		logger := do.MustInvoke[*zap.Logger](i)

		interval, err := opts.SweepDuration()
		if err != nil {
			return nil, err
		}

		return ratelimit.NewSweeper(limiter, interval, logger), nil
	})
}

func PublisherGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		client := do.MustInvoke[*RedisClient](i)
		logger := do.MustInvoke[*zap.Logger](i)

		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: client.Client},
			messaging.NewZapLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("create publisher: %w", err)
		}

		return messaging.NewPublisherGroup(publisher), nil
	})
}

// AuditStorePackage provides the store the audit consumer writes to.
func AuditStorePackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (audit.Store, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		switch opts.AuditStore {
		case AuditLog:
			return auditstore.NewLog(logger), nil
		case AuditPostgres:
			pool := do.MustInvoke[*PostgresPool](i)

			ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
			defer cancel()

			if err := auditstore.EnsureSchema(ctx, pool.Pool); err != nil {
				return nil, err
			}

			return auditstore.NewPostgres(pool.Pool), nil
		default:
			return nil, fmt.Errorf("unknown audit store %q", opts.AuditStore)
		}
	})
}

func ConsumerGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		opts := do.MustInvoke[*Options](i)
		client := do.MustInvoke[*RedisClient](i)
		logger := do.MustInvoke[*zap.Logger](i)
		auditStore := do.MustInvoke[audit.Store](i)

		subscriber, err := redisstream.NewSubscriber(
			redisstream.SubscriberConfig{
				Client:        client.Client,
				ConsumerGroup: opts.ConsumerGroup,
			},
			messaging.NewZapLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("create subscriber: %w", err)
		}

		group := messaging.NewConsumerGroup(subscriber, logger)
		group.Add(messaging.NewConsumer(
			subscriber,
			audit.TopicIPBlocked,
			ratelimit.EventIPBlocked,
			audit.NewHandler(auditStore),
			logger,
		))

		return group, nil
	})
}

// HTTPPackage provides the router and the huma API with every route registered.
var errAdminDisabled = errors.New("admin api disabled")

// AdminRouter serves the operator API on its own listener, apart from the
// guarded public routes.
type AdminRouter struct {
	*chi.Mux
}

func HTTPPackage(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (*chi.Mux, error) {
		return chi.NewMux(), nil
	})

	do.Provide(i, func(i *do.Injector) (huma.API, error) {
		opts := do.MustInvoke[*Options](i)
		router := do.MustInvoke[*chi.Mux](i)
		logger := do.MustInvoke[*zap.Logger](i)
		limiter := do.MustInvoke[*ratelimit.RateLimiter](i)
		recorder := do.MustInvoke[*metrics.Recorder](i)

		router.Method(http.MethodGet, "/metrics", recorder.Handler())

		api := humachi.New(router, huma.DefaultConfig("ipguard", "1.0.0"))

		keyFunc := middleware.ClientKeyResolver(opts.TrustProxy)
		api.UseMiddleware(middleware.RequestMeta(api, keyFunc))
		api.UseMiddleware(middleware.Guard(api, limiter, keyFunc, logger))

		handlers.RegisterRoutes(api, handlers.NewHostHandler(logger))
		health.RegisterRoutes(api, health.NewHandler(healthCheckers(i, opts)))

		return api, nil
	})

	do.Provide(i, func(i *do.Injector) (*AdminRouter, error) {
		opts := do.MustInvoke[*Options](i)
		if opts.AdminPort <= 0 {
			return nil, errAdminDisabled
		}

		if opts.AdminPort == opts.Port {
			return nil, fmt.Errorf("admin port %d must differ from the public port", opts.AdminPort)
		}

		logger := do.MustInvoke[*zap.Logger](i)
		limiter := do.MustInvoke[*ratelimit.RateLimiter](i)

		router := chi.NewMux()
		api := humachi.New(router, huma.DefaultConfig("ipguard admin", "1.0.0"))
		handlers.RegisterAdminRoutes(api, handlers.NewAdminHandler(limiter, logger))

		return &AdminRouter{Mux: router}, nil
	})
}

func healthCheckers(i *do.Injector, opts *Options) map[string]health.Checker {
	checkers := make(map[string]health.Checker)

	if opts.UsesRedis() {
		checkers["redis"] = health.NewRedisChecker(do.MustInvoke[*RedisClient](i).Client)
	}

	if opts.UsesPostgres() {
		checkers["postgres"] = health.NewPostgresChecker(do.MustInvoke[*PostgresPool](i).Pool)
	}

	return checkers
}
